package fonts

import (
	"github.com/wudi/pdfedit/ir/raw"
)

// Glyph is one decoded character code of a shown string.
type Glyph struct {
	Code []byte
	Text string
	// Width is the horizontal displacement in glyph space (1/1000 em).
	Width float64
	// Space marks the single-byte code 32, which receives word spacing.
	Space bool
}

// StreamLoader returns the decoded payload of a stream.
type StreamLoader func(*raw.StreamObj) ([]byte, error)

// WidthFunc supplies glyph widths for fonts that carry none, such as the
// standard 14 fonts.
type WidthFunc func(baseFont, text string) float64

// Decoder turns shown strings into text and widths for one PDF font.
type Decoder struct {
	BaseFont string
	Subtype  string
	Vertical bool

	composite bool
	encoding  *CMap
	toUnicode *CMap
	simple    SimpleEncoding
	first     int
	widths    []float64
	cidWidths map[int]float64
	missing   float64
	fallback  WidthFunc
}

// NewDecoder builds a decoder from a font dictionary. Missing or broken
// parts degrade to defaults; it never fails.
func NewDecoder(r raw.Resolver, dict *raw.DictObj, load StreamLoader, fallback WidthFunc) *Decoder {
	d := &Decoder{fallback: fallback}
	if dict == nil {
		d.simple = StandardEncoding
		return d
	}
	d.BaseFont, _ = raw.NameValue(r, lookup(r, dict, "BaseFont"))
	d.Subtype, _ = raw.NameValue(r, lookup(r, dict, "Subtype"))

	if s, ok := raw.StreamValue(r, lookup(r, dict, "ToUnicode")); ok && load != nil {
		if data, err := load(s); err == nil {
			if cm, err := ParseCMap(data); err == nil {
				d.toUnicode = cm
			}
		}
	}

	if d.Subtype == "Type0" {
		d.composite = true
		d.initComposite(r, dict, load)
		return d
	}
	d.initSimple(r, dict)
	return d
}

func lookup(r raw.Resolver, d *raw.DictObj, key string) raw.Object {
	v, ok := raw.Lookup(r, d, key)
	if !ok {
		return raw.NullObj{}
	}
	return v
}

func (d *Decoder) initComposite(r raw.Resolver, dict *raw.DictObj, load StreamLoader) {
	d.missing = 1000
	switch enc := lookup(r, dict, "Encoding").(type) {
	case raw.NameObj:
		d.Vertical = len(enc.Val) > 2 && enc.Val[len(enc.Val)-2:] == "-V"
	default:
		if s, ok := raw.StreamValue(r, enc); ok && load != nil {
			if data, err := load(s); err == nil {
				if cm, err := ParseCMap(data); err == nil {
					d.encoding = cm
					d.Vertical = cm.Vertical
				}
			}
		}
	}
	kids, ok := raw.ArrayValue(r, lookup(r, dict, "DescendantFonts"))
	if !ok || kids.Len() == 0 {
		return
	}
	desc, ok := raw.DictValue(r, kids.Items[0])
	if !ok {
		return
	}
	if dw, ok := raw.FloatValue(r, lookup(r, desc, "DW")); ok {
		d.missing = dw
	}
	w, ok := raw.ArrayValue(r, lookup(r, desc, "W"))
	if !ok {
		return
	}
	d.cidWidths = make(map[int]float64)
	for i := 0; i < w.Len(); {
		first, ok := raw.IntValue(r, w.Items[i])
		if !ok || i+1 >= w.Len() {
			break
		}
		if arr, ok := raw.ArrayValue(r, w.Items[i+1]); ok {
			for j, it := range arr.Items {
				if v, ok := raw.FloatValue(r, it); ok {
					d.cidWidths[first+j] = v
				}
			}
			i += 2
			continue
		}
		last, ok1 := raw.IntValue(r, w.Items[i+1])
		if i+2 >= w.Len() {
			break
		}
		v, ok2 := raw.FloatValue(r, w.Items[i+2])
		if ok1 && ok2 && last-first < 1<<16 {
			for c := first; c <= last; c++ {
				d.cidWidths[c] = v
			}
		}
		i += 3
	}
}

func (d *Decoder) initSimple(r raw.Resolver, dict *raw.DictObj) {
	d.simple = StandardEncoding
	if d.Subtype == "TrueType" {
		d.simple = WinAnsiEncoding
	}
	if d.BaseFont == "Symbol" || d.BaseFont == "ZapfDingbats" {
		// built-in encodings; Latin-1 keeps codes visible
		for i := range d.simple {
			d.simple[i] = rune(i)
		}
	}
	switch enc := lookup(r, dict, "Encoding").(type) {
	case raw.NameObj:
		if e, ok := EncodingByName(enc.Val); ok {
			d.simple = e
		}
	default:
		if ed, ok := raw.DictValue(r, enc); ok {
			if base, ok := raw.NameValue(r, lookup(r, ed, "BaseEncoding")); ok {
				if e, ok := EncodingByName(base); ok {
					d.simple = e
				}
			}
			if diffs, ok := raw.ArrayValue(r, lookup(r, ed, "Differences")); ok {
				code := 0
				for _, it := range diffs.Items {
					if n, ok := raw.IntValue(r, it); ok {
						code = n
						continue
					}
					if name, ok := raw.NameValue(r, it); ok && code >= 0 && code < 256 {
						if ru, ok := GlyphRune(name); ok {
							d.simple[code] = ru
						}
						code++
					}
				}
			}
		}
	}
	d.first, _ = raw.IntValue(r, lookup(r, dict, "FirstChar"))
	if ws, ok := raw.Floats(r, lookup(r, dict, "Widths")); ok {
		d.widths = ws
	}
	if fd, ok := raw.DictValue(r, lookup(r, dict, "FontDescriptor")); ok {
		d.missing, _ = raw.FloatValue(r, lookup(r, fd, "MissingWidth"))
	}
}

// Decode splits s into codes and maps each to text and width.
func (d *Decoder) Decode(s []byte) []Glyph {
	out := make([]Glyph, 0, len(s))
	for len(s) > 0 {
		n := d.codeLength(s)
		code := s[:n]
		s = s[n:]
		g := Glyph{Code: code, Space: n == 1 && code[0] == ' '}
		g.Text = d.text(code)
		g.Width = d.width(code, g.Text)
		out = append(out, g)
	}
	return out
}

func (d *Decoder) codeLength(s []byte) int {
	n := 1
	switch {
	case d.encoding != nil:
		n = d.encoding.NextCode(s)
	case d.composite:
		n = 2
	}
	if n < 1 {
		n = 1
	}
	if n > len(s) {
		n = len(s)
	}
	return n
}

func (d *Decoder) text(code []byte) string {
	if d.toUnicode != nil {
		if t, ok := d.toUnicode.Unicode(code); ok {
			return t
		}
	}
	if d.composite {
		// without ToUnicode, Identity-encoded CIDs are often Unicode
		cid := d.cid(code)
		if cid >= 0x20 && cid < 0xd800 {
			return string(rune(cid))
		}
		return ""
	}
	if r := d.simple[code[0]]; r != 0 {
		return string(r)
	}
	return ""
}

func (d *Decoder) cid(code []byte) int {
	if d.encoding != nil {
		if cid, ok := d.encoding.CID(code); ok {
			return cid
		}
	}
	v := 0
	for _, b := range code {
		v = v<<8 | int(b)
	}
	return v
}

func (d *Decoder) width(code []byte, text string) float64 {
	if d.composite {
		if w, ok := d.cidWidths[d.cid(code)]; ok {
			return w
		}
		return d.missing
	}
	i := int(code[0]) - d.first
	if i >= 0 && i < len(d.widths) {
		return d.widths[i]
	}
	if d.widths == nil && d.fallback != nil && text != "" {
		return d.fallback(d.BaseFont, text)
	}
	if d.missing > 0 {
		return d.missing
	}
	return 500
}
