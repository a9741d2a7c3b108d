package xref

import (
	"bytes"
	"strconv"
)

// ObjectHeader is one "<id> <gen> obj" occurrence.
type ObjectHeader struct {
	ID     int
	Gen    int
	Offset int64
}

// FindObjectHeaders scans linearly for object headers. It does not parse
// object bodies, so headers inside unrelated stream data are reported too.
func FindObjectHeaders(data []byte) []ObjectHeader {
	var out []ObjectHeader
	needle := []byte("obj")
	for from := 0; ; {
		idx := bytes.Index(data[from:], needle)
		if idx < 0 {
			return out
		}
		pos := from + idx
		from = pos + len(needle)
		if from < len(data) && !isDelim(data[from]) {
			continue
		}
		if h, ok := headerEndingAt(data, pos); ok {
			out = append(out, h)
		}
	}
}

// headerEndingAt walks back from the 'obj' keyword at pos over
// "<digits> <ws> <digits> <ws>".
func headerEndingAt(data []byte, pos int) (ObjectHeader, bool) {
	i := pos - 1
	if i < 0 || !isSpace(data[i]) {
		return ObjectHeader{}, false
	}
	for i >= 0 && isSpace(data[i]) {
		i--
	}
	genEnd := i + 1
	for i >= 0 && isDigit(data[i]) {
		i--
	}
	genStart := i + 1
	if genStart == genEnd || i < 0 || !isSpace(data[i]) {
		return ObjectHeader{}, false
	}
	for i >= 0 && isSpace(data[i]) {
		i--
	}
	idEnd := i + 1
	for i >= 0 && isDigit(data[i]) {
		i--
	}
	idStart := i + 1
	if idStart == idEnd || (i >= 0 && !isDelim(data[i])) {
		return ObjectHeader{}, false
	}
	id, err1 := strconv.Atoi(string(data[idStart:idEnd]))
	gen, err2 := strconv.Atoi(string(data[genStart:genEnd]))
	if err1 != nil || err2 != nil {
		return ObjectHeader{}, false
	}
	return ObjectHeader{ID: id, Gen: gen, Offset: int64(idStart)}, true
}

// objectHeaderAt parses a header at the very start of b.
func objectHeaderAt(b []byte) (id, gen int, ok bool) {
	end := bytes.Index(b, []byte("obj"))
	if end < 0 || end > 32 {
		return 0, 0, false
	}
	h, ok := headerEndingAt(b, end)
	if !ok || h.Offset != 0 {
		return 0, 0, false
	}
	return h.ID, h.Gen, true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return isSpace(c)
}
