// Package xref reads the binary skeleton of a PDF file: the header, the
// cross-reference sections (classic tables and xref streams, following
// /Prev chains), object headers and end-of-file markers.
package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfedit/filters"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/recovery"
	"github.com/wudi/pdfedit/scanner"
)

// Header is the %PDF-M.m marker.
type Header struct {
	Version string
	Major   int
	Minor   int
	// Offset is the position of '%' in the file; producers sometimes
	// prepend junk and every other offset in the file is then relative to it.
	Offset int
}

const headerWindow = 1024

// ParseHeader locates the version marker within the first 1024 bytes.
func ParseHeader(data []byte) (Header, bool) {
	window := data
	if len(window) > headerWindow {
		window = window[:headerWindow]
	}
	idx := bytes.Index(window, []byte("%PDF-"))
	if idx < 0 {
		return Header{}, false
	}
	rest := data[idx+5:]
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(rest) || rest[i] != '.' {
		return Header{}, false
	}
	j := i + 1
	for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
		j++
	}
	if j == i+1 {
		return Header{}, false
	}
	major, _ := strconv.Atoi(string(rest[:i]))
	minor, _ := strconv.Atoi(string(rest[i+1 : j]))
	return Header{Version: string(rest[:j]), Major: major, Minor: minor, Offset: idx}, true
}

// Entry is one cross-reference record.
type Entry struct {
	Offset int64
	Gen    int
	InUse  bool
	// Compressed entries live inside an object stream.
	Compressed  bool
	StreamNum   int
	StreamIndex int
}

// Table is the merged view over every cross-reference section of a file.
type Table struct {
	Entries map[int]Entry
	// Trailer of the newest section.
	Trailer *raw.DictObj
	// StartXRef is the offset the last startxref keyword points at.
	StartXRef int64
	// Sections lists the offsets of every section that was merged, newest first.
	Sections []int64
	kind     string
}

func newTable(kind string) *Table {
	return &Table{Entries: make(map[int]Entry), kind: kind}
}

// Type reports "table", "xref-stream" or "rebuilt".
func (t *Table) Type() string { return t.kind }

// Lookup returns the byte offset of an uncompressed in-use object.
func (t *Table) Lookup(objNum int) (offset int64, gen int, found bool) {
	e, ok := t.Entries[objNum]
	if !ok || !e.InUse || e.Compressed {
		return 0, 0, false
	}
	return e.Offset, e.Gen, true
}

// ObjStream reports the object stream holding objNum.
func (t *Table) ObjStream(objNum int) (streamNum, index int, found bool) {
	e, ok := t.Entries[objNum]
	if !ok || !e.InUse || !e.Compressed {
		return 0, 0, false
	}
	return e.StreamNum, e.StreamIndex, true
}

// Objects lists every in-use object number in ascending order.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.Entries))
	for k, e := range t.Entries {
		if e.InUse {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

// Size is the value a new trailer must carry: one past the highest object number.
func (t *Table) Size() int {
	size := 0
	if t.Trailer != nil {
		if v, ok := raw.IntValue(raw.Direct, orNull(t.Trailer, "Size")); ok {
			size = v
		}
	}
	for k := range t.Entries {
		if k+1 > size {
			size = k + 1
		}
	}
	return size
}

// merge adds older entries without overriding newer ones.
func (t *Table) merge(older map[int]Entry) {
	for k, e := range older {
		if _, exists := t.Entries[k]; !exists {
			t.Entries[k] = e
		}
	}
}

// ParseCrossReferenceTable locates the cross-reference data tail-first and
// returns the merged table of the whole /Prev chain, or false when none
// can be found.
func ParseCrossReferenceTable(data []byte) (*Table, bool) {
	t, err := parseChain(context.Background(), data, 0)
	if err != nil {
		return nil, false
	}
	return t, true
}

var (
	errNoStartXRef = errors.New("startxref not found")
	errNoXRef      = errors.New("cross-reference table not found")
)

func parseChain(ctx context.Context, data []byte, maxDepth int) (*Table, error) {
	if maxDepth <= 0 {
		maxDepth = 64
	}
	start, ok := lastStartXRef(data)
	if !ok || !sectionAt(data, start) {
		// fall back to the last bare 'xref' keyword
		idx := lastXRefKeyword(data)
		if idx < 0 {
			if !ok {
				return nil, errNoStartXRef
			}
			return nil, errNoXRef
		}
		start = int64(idx)
	}

	var merged *Table
	visited := map[int64]bool{}
	offset := start
	for depth := 0; offset >= 0 && depth < maxDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if visited[offset] {
			break
		}
		visited[offset] = true
		sec, err := parseSection(ctx, data, offset)
		if err != nil {
			if merged == nil {
				return nil, err
			}
			// a broken older section keeps what newer ones established
			break
		}
		if merged == nil {
			merged = newTable(sec.kind)
			merged.Trailer = sec.Trailer
			merged.StartXRef = start
		}
		// hybrid files: the table's /XRefStm entries rank right after the table itself
		if stm, ok := raw.IntValue(raw.Direct, orNull(sec.Trailer, "XRefStm")); ok && !visited[int64(stm)] {
			if hy, err := parseSection(ctx, data, int64(stm)); err == nil {
				sec.merge(hy.Entries)
			}
		}
		merged.merge(sec.Entries)
		merged.Sections = append(merged.Sections, offset)

		prev, ok := raw.IntValue(raw.Direct, orNull(sec.Trailer, "Prev"))
		if !ok {
			break
		}
		offset = int64(prev)
	}
	if merged == nil {
		return nil, errNoXRef
	}
	return merged, nil
}

func sectionAt(data []byte, offset int64) bool {
	if offset < 0 || offset >= int64(len(data)) {
		return false
	}
	rest := bytes.TrimLeft(data[offset:], " \t\r\n\f\x00")
	if bytes.HasPrefix(rest, []byte("xref")) {
		return true
	}
	_, _, ok := objectHeaderAt(rest)
	return ok
}

func parseSection(ctx context.Context, data []byte, offset int64) (*Table, error) {
	if offset < 0 || offset >= int64(len(data)) {
		return nil, fmt.Errorf("xref offset out of range: %d", offset)
	}
	s := scanner.New(data, scanner.Config{})
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	tok, err := s.Next()
	if err != nil {
		return nil, fmt.Errorf("read xref at %d: %w", offset, err)
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		return parseClassic(s, offset)
	}
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	return parseStream(ctx, s, offset)
}

func parseClassic(s *scanner.Scanner, offset int64) (*Table, error) {
	t := newTable("table")
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("xref at %d: missing trailer: %w", offset, err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			break
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return nil, fmt.Errorf("invalid xref subsection header at %d", tok.Pos)
		}
		first := int(tok.Int)
		cnt, err := s.Next()
		if err != nil || cnt.Type != scanner.TokenNumber || !cnt.IsInt {
			return nil, fmt.Errorf("invalid xref subsection count at %d", tok.Pos)
		}
		for i := 0; i < int(cnt.Int); i++ {
			off, err1 := s.Next()
			gen, err2 := s.Next()
			kind, err3 := s.Next()
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, fmt.Errorf("unexpected end of xref section: %w", err)
			}
			if off.Type != scanner.TokenNumber || gen.Type != scanner.TokenNumber || kind.Type != scanner.TokenKeyword {
				return nil, fmt.Errorf("invalid xref entry at %d", off.Pos)
			}
			num := first + i
			// the first occurrence of a number within one section wins
			if _, dup := t.Entries[num]; dup {
				continue
			}
			t.Entries[num] = Entry{Offset: off.Int, Gen: int(gen.Int), InUse: kind.Str == "n"}
		}
	}
	obj, err := s.ReadObject(nil)
	if err != nil {
		return nil, fmt.Errorf("parse trailer: %w", err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("trailer is not a dictionary")
	}
	t.Trailer = dict
	return t, nil
}

func parseStream(ctx context.Context, s *scanner.Scanner, offset int64) (*Table, error) {
	for i := 0; i < 3; i++ { // "n g obj"
		if _, err := s.Next(); err != nil {
			return nil, err
		}
	}
	obj, err := s.ReadObject(nil)
	if err != nil {
		return nil, fmt.Errorf("parse xref stream at %d: %w", offset, err)
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("no cross-reference data at %d", offset)
	}
	if typ, _ := raw.NameValue(raw.Direct, orNull(st.Dict, "Type")); typ != "XRef" {
		return nil, fmt.Errorf("object at %d is not an xref stream", offset)
	}
	payload, err := filters.NewDefaultPipeline(filters.Limits{}).DecodeStream(ctx, raw.Direct, st)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}
	w, ok := raw.Floats(raw.Direct, orNull(st.Dict, "W"))
	if !ok || len(w) != 3 {
		return nil, errors.New("xref stream has invalid /W")
	}
	widths := [3]int{int(w[0]), int(w[1]), int(w[2])}
	rowLen := widths[0] + widths[1] + widths[2]
	if rowLen <= 0 {
		return nil, errors.New("xref stream has empty rows")
	}
	size, _ := raw.IntValue(raw.Direct, orNull(st.Dict, "Size"))
	index := []float64{0, float64(size)}
	if idx, ok := raw.Floats(raw.Direct, orNull(st.Dict, "Index")); ok && len(idx)%2 == 0 {
		index = idx
	}

	t := newTable("xref-stream")
	t.Trailer = st.Dict
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := int(index[i]), int(index[i+1])
		for n := 0; n < count && pos+rowLen <= len(payload); n++ {
			row := payload[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if widths[0] > 0 {
				typ = field(row[:widths[0]])
			}
			f2 := field(row[widths[0] : widths[0]+widths[1]])
			f3 := field(row[widths[0]+widths[1]:])
			num := first + n
			if _, dup := t.Entries[num]; dup {
				continue
			}
			switch typ {
			case 0:
				t.Entries[num] = Entry{Gen: int(f3)}
			case 1:
				t.Entries[num] = Entry{Offset: f2, Gen: int(f3), InUse: true}
			case 2:
				t.Entries[num] = Entry{InUse: true, Compressed: true, StreamNum: int(f2), StreamIndex: int(f3)}
			}
		}
	}
	return t, nil
}

func field(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// lastStartXRef returns the offset recorded after the final startxref keyword.
func lastStartXRef(data []byte) (int64, bool) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, false
	}
	rest := bytes.TrimLeft(data[idx+len("startxref"):], " \t\r\n\f\x00")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// lastXRefKeyword finds the last 'xref' that is not part of 'startxref'.
func lastXRefKeyword(data []byte) int {
	end := len(data)
	for {
		idx := bytes.LastIndex(data[:end], []byte("xref"))
		if idx < 0 {
			return -1
		}
		if idx < 5 || !bytes.Equal(data[idx-5:idx], []byte("start")) {
			return idx
		}
		end = idx
	}
}

func orNull(d *raw.DictObj, key string) raw.Object {
	if d == nil {
		return raw.NullObj{}
	}
	if v, ok := d.Get(key); ok {
		return v
	}
	return raw.NullObj{}
}

// Resolver wraps table parsing with a recovery policy: when no
// cross-reference data can be read it either fails or rebuilds the table
// from object headers.
type Resolver struct {
	cfg        ResolverConfig
	linearized bool
	degraded   bool
}

type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
	Logger       observability.Logger
}

func NewResolver(cfg ResolverConfig) *Resolver {
	cfg.Logger = observability.OrNop(cfg.Logger)
	return &Resolver{cfg: cfg}
}

// Resolve returns the merged table. A rebuilt table is reported by Degraded.
func (r *Resolver) Resolve(ctx context.Context, data []byte) (*Table, error) {
	r.linearized = detectLinearized(data)
	r.degraded = false
	t, err := parseChain(ctx, data, r.cfg.MaxXRefDepth)
	if err == nil {
		err = validateTrailer(t)
	}
	if err == nil {
		return t, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if r.cfg.Recovery == nil {
		return nil, err
	}
	action := r.cfg.Recovery.OnError(ctx, err, recovery.Location{ByteOffset: int64(len(data)), Component: "xref"})
	if action == recovery.ActionFail {
		return nil, err
	}
	r.cfg.Logger.Warn("rebuilding cross-reference table", observability.Error("cause", err))
	rebuilt, rerr := Rebuild(ctx, data)
	if rerr != nil {
		return nil, fmt.Errorf("%v; rebuild: %w", err, rerr)
	}
	r.degraded = true
	return rebuilt, nil
}

// Linearized reports whether the first object carried a /Linearized dictionary.
func (r *Resolver) Linearized() bool { return r.linearized }

// Degraded reports whether the last Resolve had to rebuild the table.
func (r *Resolver) Degraded() bool { return r.degraded }

func validateTrailer(t *Table) error {
	if t.Trailer == nil {
		return errors.New("missing trailer")
	}
	if _, ok := t.Trailer.Get("Root"); !ok {
		return errors.New("trailer missing /Root")
	}
	size, ok := raw.IntValue(raw.Direct, orNull(t.Trailer, "Size"))
	if !ok {
		return errors.New("trailer missing /Size")
	}
	for num, e := range t.Entries {
		if e.InUse && num >= size {
			return fmt.Errorf("object %d exceeds trailer /Size %d", num, size)
		}
	}
	return nil
}

func detectLinearized(data []byte) bool {
	window := data
	if len(window) > headerWindow {
		window = window[:headerWindow]
	}
	headers := FindObjectHeaders(window)
	if len(headers) == 0 {
		return false
	}
	end := bytes.Index(window[headers[0].Offset:], []byte("endobj"))
	if end < 0 {
		return false
	}
	return bytes.Contains(window[headers[0].Offset:headers[0].Offset+int64(end)], []byte("/Linearized"))
}
