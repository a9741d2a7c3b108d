package contentstream

import (
	"bytes"

	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/writer"
)

// Builder writes content stream operators. The zero value is ready to use.
type Builder struct {
	buf bytes.Buffer
}

// Op appends an operator with its operands.
func (b *Builder) Op(op string, operands ...raw.Object) *Builder {
	for _, o := range operands {
		b.buf.Write(writer.Serialize(o))
		b.buf.WriteByte(' ')
	}
	b.buf.WriteString(op)
	b.buf.WriteByte('\n')
	return b
}

func (b *Builder) nums(op string, v ...float64) *Builder {
	for _, f := range v {
		b.buf.WriteString(writer.FormatNumber(f))
		b.buf.WriteByte(' ')
	}
	b.buf.WriteString(op)
	b.buf.WriteByte('\n')
	return b
}

func (b *Builder) Save() *Builder    { return b.Op("q") }
func (b *Builder) Restore() *Builder { return b.Op("Q") }

func (b *Builder) Concat(m coords.Matrix) *Builder {
	return b.nums("cm", m[0], m[1], m[2], m[3], m[4], m[5])
}

func (b *Builder) FillColor(c Color) *Builder   { return b.nums("rg", c.R, c.G, c.B) }
func (b *Builder) StrokeColor(c Color) *Builder { return b.nums("RG", c.R, c.G, c.B) }
func (b *Builder) LineWidth(w float64) *Builder { return b.nums("w", w) }

func (b *Builder) Rect(x, y, w, h float64) *Builder { return b.nums("re", x, y, w, h) }
func (b *Builder) MoveTo(x, y float64) *Builder     { return b.nums("m", x, y) }
func (b *Builder) LineTo(x, y float64) *Builder     { return b.nums("l", x, y) }
func (b *Builder) Fill() *Builder                   { return b.Op("f") }
func (b *Builder) Stroke() *Builder                 { return b.Op("S") }

func (b *Builder) BeginText() *Builder { return b.Op("BT") }
func (b *Builder) EndText() *Builder   { return b.Op("ET") }

// Font selects the font resource name at size.
func (b *Builder) Font(name string, size float64) *Builder {
	return b.Op("Tf", raw.NameLiteral(name), raw.NumberFloat(size))
}

func (b *Builder) TextMatrix(m coords.Matrix) *Builder {
	return b.nums("Tm", m[0], m[1], m[2], m[3], m[4], m[5])
}

func (b *Builder) CharSpacing(v float64) *Builder { return b.nums("Tc", v) }
func (b *Builder) WordSpacing(v float64) *Builder { return b.nums("Tw", v) }

// ShowText shows already encoded character codes.
func (b *Builder) ShowText(codes []byte) *Builder { return b.Op("Tj", raw.Str(codes)) }

// Raw appends pre-built content.
func (b *Builder) Raw(data []byte) *Builder {
	b.buf.Write(data)
	if n := len(data); n > 0 && data[n-1] != '\n' {
		b.buf.WriteByte('\n')
	}
	return b
}

func (b *Builder) Len() int      { return b.buf.Len() }
func (b *Builder) Bytes() []byte { return b.buf.Bytes() }
