package fonts

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/encoding/charmap"

	"github.com/wudi/pdfedit/ir/raw"
)

// Alloc hands out unused object references.
type Alloc func() raw.ObjectRef

// Embedding is the object set of one font resource.
type Embedding struct {
	Ref     raw.ObjectRef
	Objects map[raw.ObjectRef]raw.Object
	// Lossy reports characters of the used text that WinAnsiEncoding
	// cannot represent.
	Lossy bool
}

const (
	firstChar = 32
	lastChar  = 255
)

// Embed writes f as a simple font with WinAnsiEncoding. Embedded faces
// carry a TrueType program subset to the glyphs of used; substituted faces
// reference the standard font by name.
func Embed(f *Font, used string, alloc Alloc) (*Embedding, error) {
	_, lossy := EncodeWinAnsi(used)
	e := &Embedding{Ref: alloc(), Objects: map[raw.ObjectRef]raw.Object{}, Lossy: lossy}
	if !f.Embedded {
		d := raw.Dict()
		d.Set("Type", raw.NameLiteral("Font"))
		d.Set("Subtype", raw.NameLiteral("Type1"))
		d.Set("BaseFont", raw.NameLiteral(f.Standard))
		d.Set("Encoding", raw.NameLiteral("WinAnsiEncoding"))
		e.Objects[e.Ref] = d
		return e, nil
	}

	font, err := sfnt.Parse(f.Program)
	if err != nil {
		return nil, &EmbedError{Family: f.Family, Err: err}
	}
	upem := font.UnitsPerEm()
	if upem == 0 {
		return nil, &EmbedError{Family: f.Family, Err: fmt.Errorf("invalid unitsPerEm")}
	}
	var buf sfnt.Buffer
	ppem := fixed.Int26_6(upem) << 6

	widths := raw.NewArray()
	for c := firstChar; c <= lastChar; c++ {
		w := 0.0
		if r := charmap.Windows1252.DecodeByte(byte(c)); r != utf8.RuneError {
			if gid, err := font.GlyphIndex(&buf, r); err == nil && gid != 0 {
				if adv, err := font.GlyphAdvance(&buf, gid, ppem, xfont.HintingNone); err == nil {
					w = math.Round(scaleFixed(adv, upem))
				}
			}
		}
		widths.Append(raw.NumberInt(int64(w)))
	}

	glyphs := map[int]bool{}
	for _, r := range used + " ?" {
		if gid, err := font.GlyphIndex(&buf, r); err == nil {
			glyphs[int(gid)] = true
		}
	}
	program, err := SubsetTrueType(f.Program, glyphs)
	if err != nil {
		program = f.Program
	}
	name := subsetTag(f.Name, used) + "+" + f.Name

	metrics, _ := font.Metrics(&buf, ppem, xfont.HintingNone)
	bounds, _ := font.Bounds(&buf, ppem, xfont.HintingNone)
	flags := int64(32)
	if f.Italic {
		flags |= 64
	}
	if strings.Contains(f.Name, "Mono") {
		flags |= 1
	}

	fileRef := alloc()
	file := raw.Dict()
	file.Set("Length1", raw.NumberInt(int64(len(program))))
	e.Objects[fileRef] = raw.NewStream(file, program)

	descRef := alloc()
	desc := raw.Dict()
	desc.Set("Type", raw.NameLiteral("FontDescriptor"))
	desc.Set("FontName", raw.NameLiteral(name))
	desc.Set("Flags", raw.NumberInt(flags))
	desc.Set("ItalicAngle", raw.NumberFloat(italicAngle(font)))
	desc.Set("Ascent", raw.NumberInt(int64(math.Round(scaleFixed(metrics.Ascent, upem)))))
	desc.Set("Descent", raw.NumberInt(int64(-math.Round(scaleFixed(metrics.Descent, upem)))))
	desc.Set("CapHeight", raw.NumberInt(int64(math.Round(scaleFixed(metrics.CapHeight, upem)))))
	desc.Set("StemV", raw.NumberInt(80))
	desc.Set("FontBBox", raw.NewArray(
		raw.NumberInt(int64(math.Round(scaleFixed(bounds.Min.X, upem)))),
		raw.NumberInt(int64(math.Round(-scaleFixed(bounds.Max.Y, upem)))),
		raw.NumberInt(int64(math.Round(scaleFixed(bounds.Max.X, upem)))),
		raw.NumberInt(int64(math.Round(-scaleFixed(bounds.Min.Y, upem)))),
	))
	desc.Set("FontFile2", raw.Ref(fileRef.Num, fileRef.Gen))
	e.Objects[descRef] = desc

	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("Font"))
	d.Set("Subtype", raw.NameLiteral("TrueType"))
	d.Set("BaseFont", raw.NameLiteral(name))
	d.Set("Encoding", raw.NameLiteral("WinAnsiEncoding"))
	d.Set("FirstChar", raw.NumberInt(firstChar))
	d.Set("LastChar", raw.NumberInt(lastChar))
	d.Set("Widths", widths)
	d.Set("FontDescriptor", raw.Ref(descRef.Num, descRef.Gen))
	e.Objects[e.Ref] = d
	return e, nil
}

// subsetTag derives the six-letter prefix marking a subset font.
func subsetTag(name, used string) string {
	sum := blake2b.Sum256([]byte(name + "\x00" + used))
	tag := make([]byte, 6)
	for i := range tag {
		tag[i] = 'A' + sum[i]%26
	}
	return string(tag)
}

func italicAngle(font *sfnt.Font) float64 {
	post := font.PostTable()
	if post == nil {
		return 0
	}
	return post.ItalicAngle
}

func scaleFixed(val fixed.Int26_6, unitsPerEm sfnt.Units) float64 {
	return float64(val) * 1000.0 / (64.0 * float64(unitsPerEm))
}
