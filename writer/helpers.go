package writer

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfedit/ir/raw"
)

// SerializeObject renders an indirect object definition.
func SerializeObject(ref raw.ObjectRef, obj raw.Object) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d obj\n", ref.Num, ref.Gen)
	buf.Write(Serialize(obj))
	buf.WriteString("\nendobj\n")
	return buf.Bytes()
}

// Serialize renders a direct object in PDF syntax. Dictionary keys are
// written in sorted order so output is stable.
func Serialize(o raw.Object) []byte {
	var b bytes.Buffer
	writePrimitive(&b, o)
	return b.Bytes()
}

func writePrimitive(b *bytes.Buffer, o raw.Object) {
	switch v := o.(type) {
	case raw.NameObj:
		b.WriteByte('/')
		b.WriteString(pdfNameLiteral(v.Value()))
	case raw.NumberObj:
		if v.IsInteger() {
			b.WriteString(strconv.FormatInt(v.Int(), 10))
			return
		}
		b.WriteString(FormatNumber(v.Float()))
	case raw.BoolObj:
		b.WriteString(strconv.FormatBool(v.Value()))
	case raw.NullObj:
		b.WriteString("null")
	case raw.StringObj:
		if v.IsHex() {
			b.WriteByte('<')
			b.WriteString(strings.ToUpper(hex.EncodeToString(v.Value())))
			b.WriteByte('>')
			return
		}
		b.Write(EscapeLiteralString(v.Value()))
	case *raw.ArrayObj:
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			writePrimitive(b, it)
		}
		b.WriteByte(']')
	case *raw.DictObj:
		b.WriteString("<<")
		for _, k := range v.Keys() {
			b.WriteByte('/')
			b.WriteString(pdfNameLiteral(k))
			b.WriteByte(' ')
			writePrimitive(b, v.KV[k])
		}
		b.WriteString(">>")
	case *raw.StreamObj:
		dict := v.Dict
		if dict == nil {
			dict = raw.Dict()
		}
		writePrimitive(b, dict)
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
	case raw.RefObj:
		fmt.Fprintf(b, "%d %d R", v.Ref().Num, v.Ref().Gen)
	default:
		b.WriteString("null")
	}
}

// FormatNumber writes f with at most four decimals and no trailing zeros.
func FormatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	r := math.Round(f*1e4) / 1e4
	if r == 0 {
		return "0"
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// EscapeLiteralString renders raw bytes as a (...) string.
func EscapeLiteralString(rawBytes []byte) []byte {
	var b bytes.Buffer
	b.Grow(len(rawBytes) + 2)
	b.WriteByte('(')
	for _, c := range rawBytes {
		switch c {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if c < 0x20 || c > 0x7e {
				fmt.Fprintf(&b, "\\%03o", c)
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}

func pdfNameLiteral(value string) string {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch > 0x20 && ch < 0x7f && !strings.ContainsRune("#/()<>[]{}%", rune(ch)) {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "#%02X", ch)
	}
	return b.String()
}

// fileID derives a stable 16-byte identifier from the serialized body.
func fileID(body []byte) []byte {
	sum := blake2b.Sum256(body)
	return sum[:16]
}

// xrefRow is one entry of a cross-reference section.
type xrefRow struct {
	num        int
	offset     int64
	gen        int
	inUse      bool
	compressed bool
	stream     int
	index      int
}

// subsections splits sorted rows into runs of consecutive object numbers.
func subsections(rows []xrefRow) [][]xrefRow {
	sort.Slice(rows, func(i, j int) bool { return rows[i].num < rows[j].num })
	var out [][]xrefRow
	for i := 0; i < len(rows); {
		j := i + 1
		for j < len(rows) && rows[j].num == rows[j-1].num+1 {
			j++
		}
		out = append(out, rows[i:j])
		i = j
	}
	return out
}

func writeClassicXRef(b *bytes.Buffer, rows []xrefRow) {
	b.WriteString("xref\n")
	for _, sub := range subsections(rows) {
		fmt.Fprintf(b, "%d %d\n", sub[0].num, len(sub))
		for _, r := range sub {
			flag := byte('n')
			if !r.inUse {
				flag = 'f'
			}
			fmt.Fprintf(b, "%010d %05d %c\r\n", r.offset, r.gen, flag)
		}
	}
}

// xrefStreamData encodes rows with /W [1 4 2] and returns the /Index array.
func xrefStreamData(rows []xrefRow) (*raw.ArrayObj, []byte) {
	index := raw.NewArray()
	var entries []byte
	for _, sub := range subsections(rows) {
		index.Append(raw.NumberInt(int64(sub[0].num)))
		index.Append(raw.NumberInt(int64(len(sub))))
		for _, r := range sub {
			switch {
			case r.compressed:
				entries = appendXRefStreamEntry(entries, 2, int64(r.stream), r.index)
			case r.inUse:
				entries = appendXRefStreamEntry(entries, 1, r.offset, r.gen)
			default:
				entries = appendXRefStreamEntry(entries, 0, 0, r.gen)
			}
		}
	}
	return index, entries
}

func appendXRefStreamEntry(buf []byte, typ int, field2 int64, field3 int) []byte {
	buf = append(buf, byte(typ))
	off := uint32(field2)
	buf = append(buf, byte(off>>24), byte(off>>16), byte(off>>8), byte(off))
	return append(buf, byte(field3>>8), byte(field3))
}
