package xref

import (
	"bytes"
	"context"
	"errors"

	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/scanner"
)

// Rebuild reconstructs a table from object headers when the file's own
// cross-reference data is missing or unreadable. Later definitions of the
// same object number win, as they would after an incremental update.
// Objects packed in object streams are not listed; the loader expands
// those on demand.
func Rebuild(ctx context.Context, data []byte) (*Table, error) {
	headers := FindObjectHeaders(data)
	if len(headers) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}
	t := newTable("rebuilt")
	for _, h := range headers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t.Entries[h.ID] = Entry{Offset: h.Offset, Gen: h.Gen, InUse: true}
	}
	t.Trailer = lastTrailer(data)
	if t.Trailer == nil {
		t.Trailer = raw.Dict()
	}
	if _, ok := t.Trailer.Get("Root"); !ok {
		if root, ok := findCatalog(data, headers); ok {
			t.Trailer.Set("Root", raw.Ref(root.ID, root.Gen))
		}
	}
	t.Trailer.Set("Size", raw.NumberInt(int64(t.Size())))
	return t, nil
}

func lastTrailer(data []byte) *raw.DictObj {
	end := len(data)
	for {
		idx := bytes.LastIndex(data[:end], []byte("trailer"))
		if idx < 0 {
			return nil
		}
		s := scanner.New(data, scanner.Config{})
		_ = s.Seek(int64(idx + len("trailer")))
		if obj, err := s.ReadObject(nil); err == nil {
			if d, ok := obj.(*raw.DictObj); ok {
				return d
			}
		}
		end = idx
	}
}

func findCatalog(data []byte, headers []ObjectHeader) (ObjectHeader, bool) {
	var found ObjectHeader
	ok := false
	for _, h := range headers {
		s := scanner.New(data, scanner.Config{})
		_ = s.Seek(h.Offset)
		for i := 0; i < 3; i++ {
			if _, err := s.Next(); err != nil {
				break
			}
		}
		obj, err := s.ReadObject(nil)
		if err != nil {
			continue
		}
		d, isDict := raw.DictValue(raw.Direct, obj)
		if !isDict {
			continue
		}
		if typ, _ := raw.NameValue(raw.Direct, orNull(d, "Type")); typ == "Catalog" {
			found, ok = h, true
		}
	}
	return found, ok
}
