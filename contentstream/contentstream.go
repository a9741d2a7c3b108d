// Package contentstream parses page content streams into operations, runs
// the text operators against a graphics state and writes new operators.
package contentstream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/scanner"
)

// Operation is one operator with the operands that preceded it. Inline
// images are reported as a single "BI" operation whose operands are the
// image dictionary entries and whose Data is the image payload.
type Operation struct {
	Operator string
	Operands []raw.Object
	Data     []byte
}

// Parse splits a content stream into operations. On a syntax error it
// returns the operations read so far together with the error.
func Parse(data []byte) ([]Operation, error) {
	s := scanner.New(data, scanner.Config{NoRefs: true, MaxArrayDepth: 64, MaxDictDepth: 64})
	var ops []Operation
	var operands []raw.Object
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			return ops, nil
		}
		if err != nil {
			return ops, fmt.Errorf("content stream at %d: %w", s.Position(), err)
		}
		switch tok.Type {
		case scanner.TokenKeyword:
			if tok.Str == "BI" {
				operands = nil
				continue
			}
			ops = append(ops, Operation{Operator: tok.Str, Operands: operands})
			operands = nil
		case scanner.TokenInlineImage:
			ops = append(ops, Operation{Operator: "BI", Operands: operands, Data: tok.Bytes})
			operands = nil
		default:
			obj, err := s.Operand(tok)
			if err != nil {
				return ops, fmt.Errorf("content stream operand at %d: %w", tok.Pos, err)
			}
			operands = append(operands, obj)
		}
	}
}

// OperatorHandler executes one operator.
type OperatorHandler interface {
	Handle(ec *ExecutionContext, op Operation) error
}

// HandlerFunc adapts a function to OperatorHandler.
type HandlerFunc func(ec *ExecutionContext, op Operation) error

func (f HandlerFunc) Handle(ec *ExecutionContext, op Operation) error { return f(ec, op) }

// ExecutionContext is the state shared by the handlers of one stream.
type ExecutionContext struct {
	GraphicsState *GraphicsState
	Resources     *raw.DictObj
	// Depth counts the form XObjects entered to reach this stream.
	Depth int
}

// Processor dispatches operations to registered handlers. Operators with
// no handler are ignored.
type Processor struct {
	handlers map[string]OperatorHandler
}

func NewProcessor() *Processor {
	return &Processor{handlers: make(map[string]OperatorHandler)}
}

func (p *Processor) RegisterHandler(op string, h OperatorHandler) { p.handlers[op] = h }

// Process runs ops in order. It stops at the first handler error or when
// ctx is cancelled.
func (p *Processor) Process(ctx context.Context, ops []Operation, ec *ExecutionContext) error {
	for i, op := range ops {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		h, ok := p.handlers[op.Operator]
		if !ok {
			continue
		}
		if err := h.Handle(ec, op); err != nil {
			return fmt.Errorf("operator %s: %w", op.Operator, err)
		}
	}
	return nil
}

// GraphicsState holds the parameters saved by q and restored by Q. Text
// state parameters are part of it; the text matrices are not.
type GraphicsState struct {
	CTM       coords.Matrix
	FillColor Color
	Text      TextState

	stack []GraphicsState
}

// TextState holds the text parameters set by Tc, Tw, Tz, TL, Tf, Tr and Ts.
type TextState struct {
	Font        *FontEntry
	FontSize    float64
	CharSpacing float64
	WordSpacing float64
	// Scale is the horizontal scaling in percent.
	Scale      float64
	Leading    float64
	Rise       float64
	RenderMode TextRenderMode
}

// NewGraphicsState returns the initial state of a page.
func NewGraphicsState(ctm coords.Matrix) *GraphicsState {
	return &GraphicsState{CTM: ctm, Text: TextState{Scale: 100}}
}

func (gs *GraphicsState) Save() {
	clone := *gs
	clone.stack = nil
	gs.stack = append(gs.stack, clone)
}

func (gs *GraphicsState) Restore() error {
	n := len(gs.stack)
	if n == 0 {
		return errors.New("state stack empty")
	}
	stack := gs.stack[:n-1]
	*gs = gs.stack[n-1]
	gs.stack = stack
	return nil
}

// Depth is the number of saved states.
func (gs *GraphicsState) Depth() int { return len(gs.stack) }
