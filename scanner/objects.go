package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfedit/ir/raw"
)

// LengthFunc resolves an indirect /Length while a stream is being read.
type LengthFunc func(ref raw.ObjectRef) (int64, bool)

// ReadObject parses one complete object starting at the current position.
// A dictionary immediately followed by 'stream' is returned as *raw.StreamObj.
func (s *Scanner) ReadObject(length LengthFunc) (raw.Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return s.objectFrom(tok, length, 0)
}

const maxNesting = 256

func (s *Scanner) objectFrom(tok Token, length LengthFunc, depth int) (raw.Object, error) {
	if depth > maxNesting {
		return nil, errors.New("object nesting too deep")
	}
	switch tok.Type {
	case TokenNumber:
		if tok.IsInt {
			return raw.NumberInt(tok.Int), nil
		}
		return raw.NumberFloat(tok.Float), nil
	case TokenName:
		return raw.NameLiteral(tok.Str), nil
	case TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenRef:
		return raw.Ref(int(tok.Int), tok.Gen), nil
	case TokenArray:
		arr := raw.NewArray()
		for {
			next, err := s.Next()
			if err != nil {
				return nil, fmt.Errorf("array at %d: %w", tok.Pos, unexpected(err))
			}
			if next.Type == TokenKeyword && next.Str == "]" {
				return arr, nil
			}
			item, err := s.objectFrom(next, length, depth+1)
			if err != nil {
				return nil, err
			}
			arr.Append(item)
		}
	case TokenDict:
		dict, err := s.readDict(tok, length, depth)
		if err != nil {
			return nil, err
		}
		return s.maybeStream(dict, length)
	case TokenKeyword:
		return nil, fmt.Errorf("unexpected keyword %q at %d", tok.Str, tok.Pos)
	}
	return nil, fmt.Errorf("unexpected %s token at %d", tok.Type, tok.Pos)
}

func (s *Scanner) readDict(open Token, length LengthFunc, depth int) (*raw.DictObj, error) {
	dict := raw.Dict()
	for {
		key, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("dictionary at %d: %w", open.Pos, unexpected(err))
		}
		if key.Type == TokenKeyword && key.Str == ">>" {
			return dict, nil
		}
		if key.Type != TokenName {
			// tolerate junk between entries
			continue
		}
		valTok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("dictionary at %d: %w", open.Pos, unexpected(err))
		}
		if valTok.Type == TokenKeyword && valTok.Str == ">>" {
			dict.Set(key.Str, raw.NullObj{})
			return dict, nil
		}
		val, err := s.objectFrom(valTok, length, depth+1)
		if err != nil {
			return nil, err
		}
		dict.Set(key.Str, val)
	}
}

func (s *Scanner) maybeStream(dict *raw.DictObj, length LengthFunc) (raw.Object, error) {
	save := s.pos
	s.skipWSAndComments()
	if !bytes.HasPrefix(s.data[s.pos:], []byte("stream")) {
		s.pos = save
		return dict, nil
	}
	n := int64(-1)
	switch l := mustLookup(dict, "Length").(type) {
	case raw.NumberObj:
		n = l.Int()
	case raw.RefObj:
		if length != nil {
			if v, ok := length(l.R); ok {
				n = v
			}
		}
	}
	s.SetNextStreamLength(n)
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	if tok.Type != TokenStream {
		return nil, fmt.Errorf("expected stream payload at %d", tok.Pos)
	}
	return raw.NewStream(dict, tok.Bytes), nil
}

func mustLookup(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Get(key)
	return v
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Operand converts a token already read by Next into an object, reading
// the rest of an array or dictionary when tok opens one. Content stream
// and CMap interpreters use it to collect operator arguments.
func (s *Scanner) Operand(tok Token) (raw.Object, error) {
	return s.objectFrom(tok, nil, 0)
}
