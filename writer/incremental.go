package writer

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/xref"
)

// PrevFromTable describes t as the section an update extends.
func PrevFromTable(t *xref.Table) PrevSection {
	p := PrevSection{Trailer: t.Trailer, Size: t.Size()}
	if t.Type() == "rebuilt" {
		for num, e := range t.Entries {
			p.Entries = append(p.Entries, Entry{
				Num: num, Gen: e.Gen, Offset: e.Offset, InUse: e.InUse,
				Compressed: e.Compressed, StreamNum: e.StreamNum, StreamIndex: e.StreamIndex,
			})
		}
		return p
	}
	p.StartXRef = t.StartXRef
	p.Stream = t.Type() == "xref-stream"
	return p
}

// Append writes u.Base unchanged followed by u.Objects, a cross-reference
// section covering them and a trailer chaining to the previous section.
// The section uses the same form as the newest existing one; rebuilt
// tables are re-emitted in full.
func (w *Writer) Append(ctx context.Context, out io.Writer, u *Update, cfg Config) error {
	cfg = cfg.withDefaults()
	if u == nil || len(u.Base) == 0 {
		return errors.New("writer: incremental update needs a base file")
	}
	if u.Prev.Trailer == nil {
		return errors.New("writer: incremental update needs the previous trailer")
	}
	var buf bytes.Buffer
	buf.Grow(len(u.Base) + 4096)
	buf.Write(u.Base)
	if u.Base[len(u.Base)-1] != '\n' {
		buf.WriteByte('\n')
	}

	rows, maxNum, err := w.writeBody(ctx, &buf, u.Objects, cfg)
	if err != nil {
		return err
	}

	full := u.Prev.StartXRef == 0
	stream := cfg.XRefStreams || u.Prev.Stream
	if full {
		seen := make(map[int]bool, len(rows))
		for _, r := range rows {
			seen[r.num] = true
		}
		for _, e := range u.Prev.Entries {
			if seen[e.Num] {
				continue
			}
			rows = append(rows, xrefRow{
				num: e.Num, gen: e.Gen, offset: e.Offset, inUse: e.InUse,
				compressed: e.Compressed, stream: e.StreamNum, index: e.StreamIndex,
			})
			if e.Compressed {
				stream = true
			}
		}
		if !seen[0] {
			rows = append(rows, xrefRow{num: 0, gen: 65535})
		}
	}

	trailer := raw.Dict()
	for _, key := range []string{"Root", "Info", "ID"} {
		if v, ok := u.Prev.Trailer.Get(key); ok {
			trailer.Set(key, v)
		}
	}
	if u.Root != nil {
		trailer.Set("Root", raw.Ref(u.Root.Num, u.Root.Gen))
	}
	if _, ok := trailer.Get("ID"); !ok {
		id := raw.HexStr(fileID(buf.Bytes()))
		trailer.Set("ID", raw.NewArray(id, id))
	} else if ids, ok := raw.ArrayValue(raw.Direct, trailer.KV["ID"]); ok && ids.Len() == 2 {
		// first half stays, second identifies this revision
		trailer.Set("ID", raw.NewArray(ids.Items[0], raw.HexStr(fileID(buf.Bytes()))))
	}
	if !full {
		trailer.Set("Prev", raw.NumberInt(u.Prev.StartXRef))
	}

	size := u.Prev.Size
	if maxNum+1 > size {
		size = maxNum + 1
	}
	if err := w.writeXRef(&buf, rows, trailer, size, stream); err != nil {
		return err
	}
	_, err = out.Write(buf.Bytes())
	return err
}
