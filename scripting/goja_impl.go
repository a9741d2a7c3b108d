package scripting

import (
	"context"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/textlayer"
)

type GojaEngine struct {
	vm  *goja.Runtime
	log observability.Logger
}

func NewEngine(log observability.Logger) *GojaEngine {
	vm := goja.New()
	e := &GojaEngine{vm: vm, log: observability.OrNop(log)}
	console := vm.NewObject()
	console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		e.log.Info("script", observability.String("message", strings.Join(parts, " ")))
		return goja.Undefined()
	})
	vm.Set("console", console)
	return e
}

// guard interrupts the runtime when ctx ends before the returned stop
// function is called.
func (e *GojaEngine) guard(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	return func() {
		close(done)
		e.vm.ClearInterrupt()
	}
}

func interrupted(err error) error {
	if interruptedErr, ok := err.(*goja.InterruptedError); ok {
		if cause := interruptedErr.Unwrap(); cause != nil {
			return cause
		}
		return context.Canceled
	}
	return err
}

func (e *GojaEngine) Execute(ctx context.Context, script string) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := e.guard(ctx)
	defer stop()

	val, err := e.vm.RunString(script)
	if err != nil {
		return nil, interrupted(err)
	}
	return val.Export(), nil
}

func (e *GojaEngine) Replacer(ctx context.Context, source string) (textlayer.ReplaceFunc, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := e.guard(ctx)
	val, err := e.vm.RunString("(" + source + "\n)")
	stop()
	if err != nil {
		return nil, fmt.Errorf("compile replacement: %w", interrupted(err))
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return nil, fmt.Errorf("compile replacement: %s is not a function", val.String())
	}

	return func(m textlayer.Match) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		groups := make([]interface{}, len(m.Groups))
		for i, g := range m.Groups {
			groups[i] = g
		}
		info := e.vm.NewObject()
		info.Set("runId", m.RunID)
		info.Set("start", m.Start)
		info.Set("end", m.End)

		stop := e.guard(ctx)
		defer stop()
		out, err := fn(goja.Undefined(), e.vm.ToValue(m.Text), e.vm.ToValue(m.Page), e.vm.NewArray(groups...), info)
		if err != nil {
			return "", fmt.Errorf("replacement for %q: %w", m.Text, interrupted(err))
		}
		if goja.IsUndefined(out) || goja.IsNull(out) {
			return "", nil
		}
		return out.String(), nil
	}, nil
}

func (e *GojaEngine) RegisterDocument(d Document) error {
	obj := e.vm.NewObject()
	err := obj.Set("pageCount", func(goja.FunctionCall) goja.Value {
		return e.vm.ToValue(d.PageCount())
	})
	if err != nil {
		return err
	}
	err = obj.Set("pageText", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return goja.Undefined()
		}
		texts, err := d.PageText(int(call.Arguments[0].ToInteger()))
		if err != nil {
			return goja.Null()
		}
		items := make([]interface{}, len(texts))
		for i, t := range texts {
			items[i] = t
		}
		return e.vm.NewArray(items...)
	})
	if err != nil {
		return err
	}
	return e.vm.Set("doc", obj)
}
