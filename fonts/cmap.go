package fonts

import (
	"bytes"
	"errors"
	"io"

	"golang.org/x/text/encoding/unicode"

	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/scanner"
)

// CMap holds the parts of a CMap program used for text extraction: the
// codespace that splits strings into codes, code to Unicode mappings
// (ToUnicode) and code to CID mappings (embedded encodings).
type CMap struct {
	Vertical bool

	codespaces []codespace
	chars      map[string]string
	ranges     []bfRange
	cids       map[string]int
	cidRanges  []cidRange
}

type codespace struct{ lo, hi []byte }

type bfRange struct {
	lo, hi []byte
	dst    []byte   // UTF-16BE start value
	list   []string // explicit destinations, one per code
}

type cidRange struct {
	lo, hi []byte
	cid    int
}

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

func decodeUTF16(b []byte) string {
	out, err := utf16be.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}

// ParseCMap reads a CMap program. Unknown operators are skipped.
func ParseCMap(data []byte) (*CMap, error) {
	c := &CMap{chars: map[string]string{}, cids: map[string]int{}}
	s := scanner.New(data, scanner.Config{NoRefs: true})
	var operands []raw.Object
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return c, err
		}
		if tok.Type != scanner.TokenKeyword {
			obj, err := s.Operand(tok)
			if err != nil {
				return c, err
			}
			operands = append(operands, obj)
			continue
		}
		c.apply(tok.Str, operands)
		operands = operands[:0]
	}
	if len(c.codespaces) == 0 && len(c.chars)+len(c.ranges)+len(c.cids)+len(c.cidRanges) == 0 {
		return c, errors.New("cmap: no mappings")
	}
	return c, nil
}

func str(o raw.Object) ([]byte, bool) {
	s, ok := o.(raw.StringObj)
	return s.Bytes, ok
}

func (c *CMap) apply(op string, args []raw.Object) {
	switch op {
	case "def":
		if len(args) == 2 {
			if n, ok := args[0].(raw.NameObj); ok && n.Val == "WMode" {
				if v, ok := args[1].(raw.NumberObj); ok {
					c.Vertical = v.Int() == 1
				}
			}
		}
	case "endcodespacerange":
		for i := 0; i+1 < len(args); i += 2 {
			lo, ok1 := str(args[i])
			hi, ok2 := str(args[i+1])
			if ok1 && ok2 && len(lo) == len(hi) && len(lo) > 0 {
				c.codespaces = append(c.codespaces, codespace{lo, hi})
			}
		}
	case "endbfchar":
		for i := 0; i+1 < len(args); i += 2 {
			src, ok := str(args[i])
			if !ok {
				continue
			}
			switch dst := args[i+1].(type) {
			case raw.StringObj:
				c.chars[string(src)] = decodeUTF16(dst.Bytes)
			case raw.NameObj:
				if r, ok := GlyphRune(dst.Val); ok {
					c.chars[string(src)] = string(r)
				}
			}
		}
	case "endbfrange":
		for i := 0; i+2 < len(args); i += 3 {
			lo, ok1 := str(args[i])
			hi, ok2 := str(args[i+1])
			if !ok1 || !ok2 || len(lo) != len(hi) {
				continue
			}
			r := bfRange{lo: lo, hi: hi}
			switch dst := args[i+2].(type) {
			case raw.StringObj:
				r.dst = dst.Bytes
			case *raw.ArrayObj:
				for _, it := range dst.Items {
					b, _ := str(it)
					r.list = append(r.list, decodeUTF16(b))
				}
			default:
				continue
			}
			c.ranges = append(c.ranges, r)
		}
	case "endcidchar":
		for i := 0; i+1 < len(args); i += 2 {
			src, ok := str(args[i])
			cid, ok2 := args[i+1].(raw.NumberObj)
			if ok && ok2 {
				c.cids[string(src)] = int(cid.Int())
			}
		}
	case "endcidrange":
		for i := 0; i+2 < len(args); i += 3 {
			lo, ok1 := str(args[i])
			hi, ok2 := str(args[i+1])
			cid, ok3 := args[i+2].(raw.NumberObj)
			if ok1 && ok2 && ok3 && len(lo) == len(hi) {
				c.cidRanges = append(c.cidRanges, cidRange{lo, hi, int(cid.Int())})
			}
		}
	}
}

// NextCode returns the length of the code at the start of s. Without a
// codespace the length is guessed from the mapped codes, defaulting to 1.
func (c *CMap) NextCode(s []byte) int {
	if len(s) == 0 {
		return 0
	}
	for n := 1; n <= 4 && n <= len(s); n++ {
		for _, cs := range c.codespaces {
			if len(cs.lo) == n && inRange(s[:n], cs.lo, cs.hi) {
				return n
			}
		}
	}
	if len(c.codespaces) > 0 {
		return 1
	}
	n := c.mappedWidth()
	if n > len(s) {
		n = len(s)
	}
	return n
}

func (c *CMap) mappedWidth() int {
	for k := range c.chars {
		return len(k)
	}
	for _, r := range c.ranges {
		return len(r.lo)
	}
	return 1
}

// Unicode maps a code to text.
func (c *CMap) Unicode(code []byte) (string, bool) {
	if s, ok := c.chars[string(code)]; ok {
		return s, true
	}
	for _, r := range c.ranges {
		if len(r.lo) != len(code) || !inRange(code, r.lo, r.hi) {
			continue
		}
		off := offset(code, r.lo)
		if r.list != nil {
			if off < len(r.list) {
				return r.list[off], true
			}
			return "", false
		}
		dst := append([]byte(nil), r.dst...)
		addToLast(dst, off)
		return decodeUTF16(dst), true
	}
	return "", false
}

// CID maps a code to a CID.
func (c *CMap) CID(code []byte) (int, bool) {
	if cid, ok := c.cids[string(code)]; ok {
		return cid, true
	}
	for _, r := range c.cidRanges {
		if len(r.lo) == len(code) && inRange(code, r.lo, r.hi) {
			return r.cid + offset(code, r.lo), true
		}
	}
	return 0, false
}

func inRange(code, lo, hi []byte) bool {
	return bytes.Compare(code, lo) >= 0 && bytes.Compare(code, hi) <= 0
}

func offset(code, lo []byte) int {
	var a, b int
	for i := range code {
		a = a<<8 | int(code[i])
		b = b<<8 | int(lo[i])
	}
	return a - b
}

// addToLast adds n to the big-endian number held in the last two bytes.
func addToLast(b []byte, n int) {
	if len(b) < 2 {
		if len(b) == 1 {
			b[0] += byte(n)
		}
		return
	}
	v := int(b[len(b)-2])<<8 | int(b[len(b)-1])
	v += n
	b[len(b)-2], b[len(b)-1] = byte(v>>8), byte(v)
}
