// Package scanner tokenizes PDF syntax held in memory: file objects,
// content streams and CMap programs share the same lexical rules.
package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	"github.com/wudi/pdfedit/recovery"
)

type TokenType int

const (
	TokenDict        TokenType = iota // '<<'
	TokenArray                        // '['
	TokenName                         // '/Name'
	TokenString                       // literal or hex string
	TokenNumber                       // numeric value
	TokenBoolean                      // true/false
	TokenNull                         // null
	TokenRef                          // indirect ref '5 0 R'
	TokenStream                       // 'stream' keyword with its payload
	TokenInlineImage                  // data between ID and EI (content streams only)
	TokenKeyword                      // operators and other keywords (obj, ], >>, Tj, ...)
)

func (t TokenType) String() string {
	switch t {
	case TokenDict:
		return "dict"
	case TokenArray:
		return "array"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenBoolean:
		return "boolean"
	case TokenNull:
		return "null"
	case TokenRef:
		return "ref"
	case TokenStream:
		return "stream"
	case TokenInlineImage:
		return "inline-image"
	case TokenKeyword:
		return "keyword"
	}
	return "unknown"
}

// Token is a lexical unit. Which value fields are set depends on Type:
// names and keywords use Str, strings/streams/inline images use Bytes,
// numbers use Int or Float (IsInt tells which), references use Int and Gen.
type Token struct {
	Type  TokenType
	Pos   int64
	Str   string
	Bytes []byte
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Gen   int
	Hex   bool
}

// Number returns the numeric value of a number token.
func (t Token) Number() float64 {
	if t.IsInt {
		return float64(t.Int)
	}
	return t.Float
}

type Config struct {
	MaxNameLength   int
	MaxStringLength int64
	MaxArrayDepth   int
	MaxDictDepth    int
	MaxStreamLength int64
	MaxStreamScan   int64
	MaxInlineImage  int64
	// NoRefs disables "n g R" detection; content streams have no references.
	NoRefs   bool
	Recovery recovery.Strategy
}

// Scanner walks a byte slice token by token.
type Scanner struct {
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	arrayDepth    int
	dictDepth     int
	recLoc        recovery.Location
	lastAction    recovery.Action
}

func New(data []byte, cfg Config) *Scanner {
	return &Scanner{data: data, cfg: cfg, nextStreamLen: -1}
}

func (s *Scanner) Position() int64 { return s.pos }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return errors.New("seek out of range")
	}
	s.pos = offset
	return nil
}

// SetNextStreamLength tells the scanner the declared /Length of the stream
// that follows; a negative value makes it search for endstream.
func (s *Scanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

func (s *Scanner) SetRecoveryLocation(loc recovery.Location) { s.recLoc = loc }

func (s *Scanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		if s.arrayDepth > 0 && s.cfg.Recovery != nil {
			if err := s.recover(errors.New("unclosed array at EOF"), "array"); err == nil {
				s.arrayDepth--
				return Token{Type: TokenKeyword, Str: "]", Pos: s.pos}, nil
			}
		}
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return s.emit(Token{Type: TokenDict, Str: "<<", Pos: start})
		}
		return s.scanHexString()
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return s.emit(Token{Type: TokenKeyword, Str: ">>", Pos: start})
		}
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: ">", Pos: start})
	case '[':
		s.pos++
		return s.emit(Token{Type: TokenArray, Str: "[", Pos: start})
	case ']':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: "]", Pos: start})
	case '{', '}':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isNumberStart(c) {
		if tok, ok := s.scanNumberOrRef(); ok {
			return s.emit(tok)
		}
	}
	return s.scanKeyword()
}

func (s *Scanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *Scanner) peek(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++
	var out bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
		if s.cfg.MaxNameLength > 0 && out.Len() > s.cfg.MaxNameLength {
			return Token{}, s.recover(errors.New("name too long"), "name")
		}
	}
	return s.emit(Token{Type: TokenName, Str: out.String(), Pos: start})
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++
	var buf bytes.Buffer
	depth := 1
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= int64(len(s.data)) {
				continue
			}
			esc := s.data[s.pos]
			s.pos++
			switch {
			case esc == '\r':
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case esc == '\n':
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				for k := 0; k < 2 && s.pos < int64(len(s.data)); k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(translateEscape(esc))
			}
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s.emit(Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start})
			}
		}
		buf.WriteByte(c)
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, s.recover(errors.New("literal string too long"), "literal")
		}
	}
	if err := s.recover(errors.New("unterminated literal string"), "literal"); err != nil {
		return Token{}, err
	}
	return s.emit(Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start})
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++
	var nibbles []byte
	closed := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			closed = true
			break
		}
		if isWhitespace(c) {
			continue
		}
		nibbles = append(nibbles, c)
	}
	if !closed {
		if err := s.recover(errors.New("unterminated hex string"), "hex"); err != nil {
			return Token{}, err
		}
	}
	if len(nibbles)%2 == 1 {
		nibbles = append(nibbles, '0')
	}
	if s.cfg.MaxStringLength > 0 && int64(len(nibbles)/2) > s.cfg.MaxStringLength {
		return Token{}, s.recover(errors.New("hex string too long"), "hex")
	}
	out := make([]byte, 0, len(nibbles)/2)
	for i := 0; i < len(nibbles); i += 2 {
		out = append(out, fromHex(nibbles[i])<<4|fromHex(nibbles[i+1]))
	}
	return s.emit(Token{Type: TokenString, Bytes: out, Hex: true, Pos: start})
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
	if s.pos == start {
		// stray delimiter such as ')'
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Str: kw, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: kw, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	case "ID":
		return s.scanInlineImage(start)
	}
	return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
}

func (s *Scanner) scanNumberOrRef() (Token, bool) {
	start := s.pos
	first, ok := s.scanNumber()
	if !ok {
		s.pos = start
		return Token{}, false
	}
	first.Pos = start
	if s.cfg.NoRefs || !first.IsInt || first.Int < 0 {
		return first, true
	}
	save := s.pos
	s.skipWSAndComments()
	second, ok := s.scanNumber()
	if ok && second.IsInt && second.Int >= 0 {
		s.skipWSAndComments()
		if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
			(s.pos+1 >= int64(len(s.data)) || isDelimiter(s.data[s.pos+1])) {
			s.pos++
			return Token{Type: TokenRef, Int: first.Int, Gen: int(second.Int), IsInt: true, Pos: start}, true
		}
	}
	s.pos = save
	return first, true
}

func (s *Scanner) scanNumber() (Token, bool) {
	start := s.pos
	seenDigit := false
	seenDot := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
		case c == '.':
			seenDot = true
		case (c == '+' || c == '-') && s.pos == start:
		default:
			goto done
		}
		s.pos++
	}
done:
	if !seenDigit {
		s.pos = start
		return Token{}, false
	}
	lit := string(s.data[start:s.pos])
	if !seenDot {
		if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return Token{Type: TokenNumber, Int: i, IsInt: true, Str: lit}, true
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		// malformed numbers like "1.2.3" or "--5" read as zero, as viewers do
		f = 0
	}
	return Token{Type: TokenNumber, Float: f, Str: lit}, true
}

// scanStream consumes the stream payload following the 'stream' keyword.
func (s *Scanner) scanStream(start int64) (Token, error) {
	if s.pos >= int64(len(s.data)) || !isEOL(s.data[s.pos]) {
		if err := s.recover(errors.New("stream missing EOL before data"), "stream"); err != nil {
			return Token{}, err
		}
	} else {
		s.skipEOL()
	}
	dataStart := s.pos
	needle := []byte("endstream")
	if s.nextStreamLen >= 0 {
		l := s.nextStreamLen
		s.nextStreamLen = -1
		if s.cfg.MaxStreamLength > 0 && l > s.cfg.MaxStreamLength {
			return Token{}, s.recover(errors.New("stream too long"), "stream")
		}
		end := dataStart + l
		if end > int64(len(s.data)) {
			if err := s.recover(errors.New("stream ended before declared length"), "stream"); err != nil {
				return Token{}, err
			}
			end = int64(len(s.data))
		}
		payload := append([]byte(nil), s.data[dataStart:end]...)
		s.pos = end
		s.skipEOL()
		s.skipWSAndComments()
		if bytes.HasPrefix(s.data[s.pos:], needle) {
			s.pos += int64(len(needle))
		} else if idx := bytes.Index(s.data[s.pos:], needle); idx >= 0 {
			// declared length was short; fall back to the marker
			payload = trimTrailingEOL(s.data[dataStart : s.pos+int64(idx)])
			payload = append([]byte(nil), payload...)
			s.pos += int64(idx + len(needle))
		}
		return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
	}

	limit := int64(len(s.data))
	if s.cfg.MaxStreamScan > 0 && dataStart+s.cfg.MaxStreamScan+int64(len(needle)) < limit {
		limit = dataStart + s.cfg.MaxStreamScan + int64(len(needle))
	}
	idx := bytes.Index(s.data[dataStart:limit], needle)
	if idx < 0 {
		if s.cfg.MaxStreamScan > 0 {
			if err := s.recover(errors.New("endstream not found within scan limit"), "stream"); err != nil {
				return Token{}, err
			}
		}
		payload := append([]byte(nil), s.data[dataStart:]...)
		s.pos = int64(len(s.data))
		return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
	}
	payload := append([]byte(nil), trimTrailingEOL(s.data[dataStart:dataStart+int64(idx)])...)
	if s.cfg.MaxStreamLength > 0 && int64(len(payload)) > s.cfg.MaxStreamLength {
		return Token{}, s.recover(errors.New("stream too long"), "stream")
	}
	s.pos = dataStart + int64(idx+len(needle))
	return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
}

// scanInlineImage returns the bytes after ID up to an EI that sits on its
// own whitespace boundary.
func (s *Scanner) scanInlineImage(start int64) (Token, error) {
	if s.pos >= int64(len(s.data)) || !isWhitespace(s.data[s.pos]) {
		return Token{}, s.recover(errors.New("inline image missing required whitespace after ID"), "inline_image")
	}
	s.pos++
	s.skipEOL()
	dataStart := s.pos
	for i := dataStart; i+1 < int64(len(s.data)); i++ {
		if s.cfg.MaxInlineImage > 0 && i-dataStart > s.cfg.MaxInlineImage {
			return Token{}, s.recover(errors.New("inline image too long"), "inline_image")
		}
		if s.data[i] != 'E' || s.data[i+1] != 'I' {
			continue
		}
		if i == dataStart || !isWhitespace(s.data[i-1]) {
			continue
		}
		if i+2 < int64(len(s.data)) && !isDelimiter(s.data[i+2]) {
			continue
		}
		payload := append([]byte(nil), s.data[dataStart:i]...)
		s.pos = i + 2
		return Token{Type: TokenInlineImage, Bytes: payload, Pos: start}, nil
	}
	s.pos = int64(len(s.data))
	return Token{}, s.recover(errors.New("unterminated inline image"), "inline_image")
}

func (s *Scanner) skipEOL() {
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
}

func (s *Scanner) recover(err error, loc string) error {
	if s.cfg.Recovery == nil {
		s.lastAction = recovery.ActionFail
		return err
	}
	location := s.recLoc
	location.ByteOffset = s.pos
	if location.Component != "" {
		location.Component += "->"
	}
	location.Component += "scanner:" + loc
	s.lastAction = s.cfg.Recovery.OnError(nil, err, location)
	switch s.lastAction {
	case recovery.ActionSkip, recovery.ActionFix:
		return nil
	}
	return err
}

func (s *Scanner) emit(tok Token) (Token, error) {
	switch tok.Type {
	case TokenArray:
		s.arrayDepth++
		if s.cfg.MaxArrayDepth > 0 && s.arrayDepth > s.cfg.MaxArrayDepth {
			return Token{}, s.recover(errors.New("array depth exceeded"), "array")
		}
	case TokenDict:
		s.dictDepth++
		if s.cfg.MaxDictDepth > 0 && s.dictDepth > s.cfg.MaxDictDepth {
			return Token{}, s.recover(errors.New("dict depth exceeded"), "dict")
		}
	case TokenKeyword:
		switch tok.Str {
		case "]":
			if s.arrayDepth == 0 {
				if err := s.recover(errors.New("array depth underflow"), "array"); err != nil {
					return Token{}, err
				}
				return s.Next()
			}
			s.arrayDepth--
		case ">>":
			if s.dictDepth == 0 {
				if err := s.recover(errors.New("dict depth underflow"), "dict"); err != nil {
					return Token{}, err
				}
				return s.Next()
			}
			s.dictDepth--
		}
	}
	return tok, nil
}

func trimTrailingEOL(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	return b
}

func isNumberStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isEOL(c byte) bool { return c == '\r' || c == '\n' }

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return isWhitespace(c)
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	}
	return 0
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	}
	return c
}
