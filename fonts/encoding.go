package fonts

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// SimpleEncoding maps single-byte codes to runes. Zero means unmapped.
type SimpleEncoding [256]rune

func fromCharmap(cm *charmap.Charmap) SimpleEncoding {
	var e SimpleEncoding
	for i := 0; i < 256; i++ {
		r := cm.DecodeByte(byte(i))
		if r != utf8.RuneError {
			e[i] = r
		}
	}
	return e
}

var (
	WinAnsiEncoding  = fromCharmap(charmap.Windows1252)
	MacRomanEncoding = fromCharmap(charmap.Macintosh)
	StandardEncoding = standardEncoding()
)

func standardEncoding() SimpleEncoding {
	var e SimpleEncoding
	for i := 0x20; i < 0x7f; i++ {
		e[i] = rune(i)
	}
	e['\''] = '’'
	e['`'] = '‘'
	high := map[byte]rune{
		0xa1: '¡', 0xa2: '¢', 0xa3: '£', 0xa4: '⁄', 0xa5: '¥', 0xa6: 'ƒ', 0xa7: '§',
		0xa8: '¤', 0xa9: '\'', 0xaa: '“', 0xab: '«', 0xac: '‹', 0xad: '›', 0xae: 'ﬁ',
		0xaf: 'ﬂ', 0xb1: '–', 0xb2: '†', 0xb3: '‡', 0xb4: '·', 0xb6: '¶', 0xb7: '•',
		0xb8: '‚', 0xb9: '„', 0xba: '”', 0xbb: '»', 0xbc: '…', 0xbd: '‰', 0xbf: '¿',
		0xc1: '`', 0xc2: '´', 0xc3: 'ˆ', 0xc4: '˜', 0xc5: '¯', 0xc6: '˘', 0xc7: '˙',
		0xc8: '¨', 0xca: '˚', 0xcb: '¸', 0xcd: '˝', 0xce: '˛', 0xcf: 'ˇ', 0xd0: '—',
		0xe1: 'Æ', 0xe3: 'ª', 0xe8: 'Ł', 0xe9: 'Ø', 0xea: 'Œ', 0xeb: 'º', 0xf1: 'æ',
		0xf5: 'ı', 0xf8: 'ł', 0xf9: 'ø', 0xfa: 'œ', 0xfb: 'ß',
	}
	for code, r := range high {
		e[code] = r
	}
	return e
}

// EncodingByName returns a predefined simple encoding.
func EncodingByName(name string) (SimpleEncoding, bool) {
	switch name {
	case "WinAnsiEncoding":
		return WinAnsiEncoding, true
	case "MacRomanEncoding":
		return MacRomanEncoding, true
	case "StandardEncoding":
		return StandardEncoding, true
	}
	return SimpleEncoding{}, false
}

// EncodeWinAnsi converts text to WinAnsiEncoding codes. Runes outside the
// encoding become '?'; the second result reports whether any were replaced.
func EncodeWinAnsi(text string) ([]byte, bool) {
	out := make([]byte, 0, len(text))
	lossy := false
	for _, r := range text {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b, lossy = '?', true
		}
		out = append(out, b)
	}
	return out, lossy
}

var glyphNames = map[string]rune{
	"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#', "dollar": '$',
	"percent": '%', "ampersand": '&', "quotesingle": '\'', "quoteright": '’',
	"parenleft": '(', "parenright": ')', "asterisk": '*', "plus": '+', "comma": ',',
	"hyphen": '-', "minus": '−', "period": '.', "slash": '/', "colon": ':',
	"semicolon": ';', "less": '<', "equal": '=', "greater": '>', "question": '?',
	"at": '@', "bracketleft": '[', "backslash": '\\', "bracketright": ']',
	"asciicircum": '^', "underscore": '_', "grave": '`', "quoteleft": '‘',
	"braceleft": '{', "bar": '|', "braceright": '}', "asciitilde": '~',
	"zero": '0', "one": '1', "two": '2', "three": '3', "four": '4', "five": '5',
	"six": '6', "seven": '7', "eight": '8', "nine": '9',
	"bullet": '•', "endash": '–', "emdash": '—', "quotedblleft": '“',
	"quotedblright": '”', "quotesinglbase": '‚', "quotedblbase": '„', "ellipsis": '…',
	"dagger": '†', "daggerdbl": '‡', "trademark": '™', "copyright": '©',
	"registered": '®', "degree": '°', "Euro": '€', "section": '§', "paragraph": '¶',
	"cent": '¢', "sterling": '£', "yen": '¥', "currency": '¤', "florin": 'ƒ',
	"fi": 'ﬁ', "fl": 'ﬂ', "ff": 'ﬀ', "ffi": 'ﬃ', "ffl": 'ﬄ',
	"exclamdown": '¡', "questiondown": '¿', "guillemotleft": '«', "guillemotright": '»',
	"guilsinglleft": '‹', "guilsinglright": '›', "periodcentered": '·',
	"perthousand": '‰', "multiply": '×', "divide": '÷', "plusminus": '±',
	"germandbls": 'ß', "AE": 'Æ', "ae": 'æ', "OE": 'Œ', "oe": 'œ', "Oslash": 'Ø',
	"oslash": 'ø', "Lslash": 'Ł', "lslash": 'ł', "dotlessi": 'ı', "Eth": 'Ð',
	"eth": 'ð', "Thorn": 'Þ', "thorn": 'þ', "mu": 'µ', "nbspace": '\u00A0',
	"ordfeminine": 'ª', "ordmasculine": 'º', "onehalf": '½', "onequarter": '¼',
	"threequarters": '¾', "brokenbar": '¦', "logicalnot": '¬', "macron": '¯',
	"acute": '´', "dieresis": '¨', "cedilla": '¸', "circumflex": 'ˆ', "tilde": '˜',
	"ring": '˚', "caron": 'ˇ', "breve": '˘', "dotaccent": '˙', "ogonek": '˛',
	"hungarumlaut": '˝', "fraction": '⁄',
}

// combining marks for accented glyph names such as "eacute"
var accentSuffixes = []struct {
	suffix string
	mark   rune
}{
	{"circumflex", '\u0302'},
	{"dieresis", '\u0308'},
	{"cedilla", '\u0327'},
	{"acute", '\u0301'},
	{"grave", '\u0300'},
	{"tilde", '\u0303'},
	{"caron", '\u030C'},
	{"breve", '\u0306'},
	{"ring", '\u030A'},
	{"macron", '\u0304'},
	{"ogonek", '\u0328'},
	{"dotaccent", '\u0307'},
	{"hungarumlaut", '\u030B'},
}

// GlyphRune maps a glyph name to its character using the common Adobe names,
// uniXXXX / uXXXX[XX] forms and accented letters composed with NFC.
func GlyphRune(name string) (rune, bool) {
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if r, ok := glyphNames[name]; ok {
		return r, true
	}
	if len(name) == 1 && (name[0] >= 'A' && name[0] <= 'Z' || name[0] >= 'a' && name[0] <= 'z') {
		return rune(name[0]), true
	}
	if strings.HasPrefix(name, "uni") && len(name) == 7 {
		if v, err := strconv.ParseUint(name[3:], 16, 32); err == nil {
			return rune(v), true
		}
	}
	if strings.HasPrefix(name, "u") && len(name) >= 5 && len(name) <= 7 {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil {
			return rune(v), true
		}
	}
	for _, a := range accentSuffixes {
		base, ok := strings.CutSuffix(name, a.suffix)
		if !ok || len(base) != 1 {
			continue
		}
		composed := norm.NFC.String(base + string(a.mark))
		r, size := utf8.DecodeRuneInString(composed)
		if size == len(composed) {
			return r, true
		}
	}
	return 0, false
}
