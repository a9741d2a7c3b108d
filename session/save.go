package session

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/wudi/pdfedit/contentstream/editor"
	"github.com/wudi/pdfedit/filters"
	"github.com/wudi/pdfedit/fonts"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/offload"
	"github.com/wudi/pdfedit/writer"
)

// compressLevel is the zlib level of the overlay streams Save writes.
const compressLevel = 6

// Save returns the document with every edit of the current branch
// appended as an incremental update. The original bytes are kept
// unchanged at the start of the result. Without edits the original is
// returned.
func (s *Session) Save(ctx context.Context) ([]byte, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	ctx, span := s.cfg.Tracer.StartSpan(ctx, "session.save")
	defer span.Finish()
	start := time.Now()

	pages, err := s.editedPages()
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return append([]byte(nil), s.doc.Data...), nil
	}

	next := s.doc.XRef.Size()
	alloc := func() raw.ObjectRef {
		r := raw.ObjectRef{Num: next}
		next++
		return r
	}
	objects := map[raw.ObjectRef]raw.Object{}
	for _, n := range pages {
		if err := s.overlay(ctx, n, alloc, objects); err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("save page %d: %w", n, err)
		}
	}

	var out bytes.Buffer
	err = (&writer.Writer{}).Append(ctx, &out, &writer.Update{
		Base:    s.doc.Data,
		Prev:    writer.PrevFromTable(s.doc.XRef),
		Objects: objects,
	}, s.cfg.Writer)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	s.log.Info("document saved",
		observability.Int("pages", len(pages)),
		observability.Int("objects", len(objects)),
		observability.Int("bytes", out.Len()),
		observability.Duration(observability.MetricSaveTime, time.Since(start)))
	return out.Bytes(), nil
}

// overlay adds the objects that paint page n's edits over its existing
// content: a stream saving the graphics state before the old content, one
// restoring it and drawing the edits after, the fonts drawn and a new page
// dictionary referencing them.
func (s *Session) overlay(ctx context.Context, n int, alloc fonts.Alloc, objects map[raw.ObjectRef]raw.Object) error {
	st, err := s.page(ctx, n)
	if err != nil {
		return err
	}
	if len(st.commands) == 0 {
		return nil
	}
	pg, err := s.doc.Page(n)
	if err != nil {
		return err
	}
	m, _, h := pg.Geometry()
	surf, err := editor.NewContentSurface(m, h)
	if err != nil {
		return err
	}
	if err := editor.Replay(st.commands, surf, s.layout); err != nil {
		return err
	}
	if surf.Lossy() {
		s.log.Warn("edited text not representable in WinAnsiEncoding", observability.Int("page", n))
	}

	res := raw.Dict()
	if pg.Resources != nil {
		res = pg.Resources.Clone()
	}
	fontDict := raw.Dict()
	if v, ok := res.Get("Font"); ok {
		if d, ok := raw.DictValue(s.doc, v); ok {
			fontDict = d.Clone()
		}
	}
	for _, use := range surf.Fonts() {
		emb, err := fonts.Embed(use.Font, use.Text, alloc)
		if err != nil {
			return fmt.Errorf("embed %s: %w", use.Font.Name, err)
		}
		if emb.Lossy {
			s.log.Warn("font cannot encode edited text",
				observability.Int("page", n),
				observability.String("font", use.Font.Name))
		}
		for ref, obj := range emb.Objects {
			objects[ref] = obj
		}
		fontDict.Set(use.Resource, raw.Ref(emb.Ref.Num, emb.Ref.Gen))
	}
	res.Set("Font", fontDict)

	pre := alloc()
	objects[pre] = raw.NewStream(raw.Dict(), []byte("q\n"))
	post := alloc()
	data := append([]byte("Q\n"), surf.Bytes()...)
	stream, err := s.compress(ctx, n, data)
	if err != nil {
		return err
	}
	objects[post] = stream

	contents := raw.NewArray(raw.Ref(pre.Num, pre.Gen))
	if v, ok := pg.Dict.Get("Contents"); ok {
		if arr, ok := raw.ArrayValue(s.doc, v); ok {
			for _, item := range arr.Items {
				contents.Append(item)
			}
		} else if ref, ok := v.(raw.RefObj); ok {
			contents.Append(ref)
		}
	}
	contents.Append(raw.Ref(post.Num, post.Gen))

	pd := pg.Dict.Clone()
	pd.Set("Contents", contents)
	pd.Set("Resources", res)
	objects[pg.Ref] = pd
	return nil
}

// compress flate-encodes an overlay on the offloader, or inline when the
// offloader cannot answer in time.
func (s *Session) compress(ctx context.Context, n int, data []byte) (*raw.StreamObj, error) {
	task := offload.Task{ID: fmt.Sprintf("compress-%d", n), Kind: offload.KindCompress, Payload: data}
	reply, err := offload.Await(ctx, s.off, task, s.cfg.OffloadTimeout, func(context.Context) (any, error) {
		return filters.FlateEncode(data, compressLevel)
	}, s.log)
	if err != nil {
		return nil, err
	}
	encoded, ok := reply.Result.([]byte)
	if !ok {
		return nil, fmt.Errorf("compress: unexpected result %T", reply.Result)
	}
	d := raw.Dict()
	d.Set("Filter", raw.NameLiteral("FlateDecode"))
	return raw.NewStream(d, encoded), nil
}
