package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/wudi/pdfedit/filters"
	"github.com/wudi/pdfedit/ir/raw"
)

// Write renders f as a complete file with a single cross-reference section.
func (w *Writer) Write(ctx context.Context, out io.Writer, f *File, cfg Config) error {
	cfg = cfg.withDefaults()
	if f == nil || len(f.Objects) == 0 {
		return errors.New("writer: empty file")
	}
	if _, ok := f.Objects[f.Root]; !ok {
		return fmt.Errorf("writer: catalog %v not among objects", f.Root)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", cfg.Version)

	rows, maxNum, err := w.writeBody(ctx, &buf, f.Objects, cfg)
	if err != nil {
		return err
	}
	rows = append(rows, xrefRow{num: 0, gen: 65535})

	trailer := raw.Dict()
	trailer.Set("Root", raw.Ref(f.Root.Num, f.Root.Gen))
	if f.Info != nil {
		trailer.Set("Info", raw.Ref(f.Info.Num, f.Info.Gen))
	}
	id := raw.HexStr(fileID(buf.Bytes()))
	trailer.Set("ID", raw.NewArray(id, id))
	size := maxNum + 1

	if err := w.writeXRef(&buf, rows, trailer, size, cfg.XRefStreams); err != nil {
		return err
	}
	_, err = out.Write(buf.Bytes())
	return err
}

// writeBody appends objects in object-number order and returns their rows.
func (w *Writer) writeBody(ctx context.Context, buf *bytes.Buffer, objects map[raw.ObjectRef]raw.Object, cfg Config) ([]xrefRow, int, error) {
	refs := make([]raw.ObjectRef, 0, len(objects))
	for ref := range objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Num < refs[j].Num })

	rows := make([]xrefRow, 0, len(refs)+1)
	maxNum := 0
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		obj, err := prepare(objects[ref], cfg.Compression)
		if err != nil {
			return nil, 0, fmt.Errorf("object %v: %w", ref, err)
		}
		for _, ic := range w.interceptors {
			if err := ic.BeforeWrite(ctx, ref, obj); err != nil {
				return nil, 0, err
			}
		}
		offset := int64(buf.Len())
		n, _ := buf.Write(SerializeObject(ref, obj))
		for _, ic := range w.interceptors {
			if err := ic.AfterWrite(ctx, ref, int64(n)); err != nil {
				return nil, 0, err
			}
		}
		rows = append(rows, xrefRow{num: ref.Num, gen: ref.Gen, offset: offset, inUse: true})
		if ref.Num > maxNum {
			maxNum = ref.Num
		}
	}
	return rows, maxNum, nil
}

// prepare fixes /Length and compresses unfiltered streams when requested.
// The input object is never modified.
func prepare(obj raw.Object, level int) (raw.Object, error) {
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return obj, nil
	}
	dict := raw.Dict()
	if st.Dict != nil {
		dict = st.Dict.Clone()
	}
	data := st.Data
	if _, filtered := dict.Get("Filter"); !filtered && level != 0 && len(data) > 0 {
		enc, err := filters.FlateEncode(data, level)
		if err != nil {
			return nil, err
		}
		data = enc
		dict.Set("Filter", raw.NameLiteral("FlateDecode"))
	}
	dict.Set("Length", raw.NumberInt(int64(len(data))))
	return raw.NewStream(dict, data), nil
}

// writeXRef appends the cross-reference section, trailer and startxref.
// trailer is completed with /Size; for xref streams it becomes the stream
// dictionary.
func (w *Writer) writeXRef(buf *bytes.Buffer, rows []xrefRow, trailer *raw.DictObj, size int, stream bool) error {
	if !stream {
		start := int64(buf.Len())
		writeClassicXRef(buf, rows)
		trailer.Set("Size", raw.NumberInt(int64(size)))
		buf.WriteString("trailer\n")
		buf.Write(Serialize(trailer))
		fmt.Fprintf(buf, "\nstartxref\n%d\n%%%%EOF\n", start)
		return nil
	}
	// the xref stream is its own object and must list itself
	self := raw.ObjectRef{Num: size}
	size++
	start := int64(buf.Len())
	rows = append(rows, xrefRow{num: self.Num, offset: start, inUse: true})
	index, data := xrefStreamData(rows)
	dict := trailer
	dict.Set("Type", raw.NameLiteral("XRef"))
	dict.Set("Size", raw.NumberInt(int64(size)))
	dict.Set("W", raw.NewArray(raw.NumberInt(1), raw.NumberInt(4), raw.NumberInt(2)))
	dict.Set("Index", index)
	enc, err := filters.FlateEncode(data, -1)
	if err != nil {
		return err
	}
	dict.Set("Filter", raw.NameLiteral("FlateDecode"))
	dict.Set("Length", raw.NumberInt(int64(len(enc))))
	buf.Write(SerializeObject(self, raw.NewStream(dict, enc)))
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", start)
	return nil
}
