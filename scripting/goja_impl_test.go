package scripting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wudi/pdfedit/textlayer"
)

func TestGojaEngine_ContextCancellation(t *testing.T) {
	engine := NewEngine(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	if _, err := engine.Execute(ctx, "while (true) {}"); err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}

	if _, err := engine.Execute(context.Background(), "1 + 1"); err != nil {
		t.Fatalf("engine should recover after cancellation, got %v", err)
	}
}

func TestGojaEngine_ImmediateCancel(t *testing.T) {
	engine := NewEngine(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Execute(ctx, "42"); err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}

func TestReplacer(t *testing.T) {
	engine := NewEngine(nil)
	ctx := context.Background()
	m := textlayer.Match{RunID: "run-2-0", Page: 2, Start: 7, End: 9, Text: "42", Groups: []string{"4", "2"}}

	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"arrow", `m => "#" + m`, "#42"},
		{"page", `function (m, page) { return m + "@" + page }`, "42@2"},
		{"groups", `(m, p, g) => g[1] + g[0]`, "24"},
		{"info", `(m, p, g, info) => info.runId + ":" + info.start + "-" + info.end`, "run-2-0:7-9"},
		{"number", `m => Number(m) + 1`, "43"},
		{"undefined", `m => {}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := engine.Replacer(ctx, tt.source)
			if err != nil {
				t.Fatal(err)
			}
			got, err := fn(m)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReplacerWithMatcher(t *testing.T) {
	engine := NewEngine(nil)
	fn, err := engine.Replacer(context.Background(), `m => m.toUpperCase()`)
	if err != nil {
		t.Fatal(err)
	}
	matcher, err := textlayer.Compile(`total`, textlayer.SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	got, n, err := matcher.Replace("Total: 42, subtotal: 40", fn)
	if err != nil {
		t.Fatal(err)
	}
	if got != "TOTAL: 42, subTOTAL: 40" || n != 2 {
		t.Errorf("Replace = %q, %d", got, n)
	}
}

func TestReplacerErrors(t *testing.T) {
	engine := NewEngine(nil)
	ctx := context.Background()
	if _, err := engine.Replacer(ctx, `42`); err == nil {
		t.Error("non-function accepted")
	}
	if _, err := engine.Replacer(ctx, `m => (`); err == nil {
		t.Error("syntax error accepted")
	}

	fn, err := engine.Replacer(ctx, `m => { throw new Error("nope") }`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fn(textlayer.Match{Text: "x"}); err == nil {
		t.Error("thrown error swallowed")
	}

	tctx, cancel := context.WithTimeout(ctx, 25*time.Millisecond)
	defer cancel()
	loop, err := engine.Replacer(tctx, `m => { while (true) {} }`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := loop(textlayer.Match{Text: "x"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("runaway replacement err = %v", err)
	}
}

type fakeDoc map[int][]string

func (d fakeDoc) PageCount() int { return len(d) }

func (d fakeDoc) PageText(n int) ([]string, error) {
	texts, ok := d[n]
	if !ok {
		return nil, errors.New("no such page")
	}
	return texts, nil
}

func TestRegisterDocument(t *testing.T) {
	engine := NewEngine(nil)
	if err := engine.RegisterDocument(fakeDoc{1: {"Invoice", "Total: 42"}, 2: {"Thanks"}}); err != nil {
		t.Fatal(err)
	}
	got, err := engine.Execute(context.Background(), `doc.pageCount() + ":" + doc.pageText(1).join("|") + ":" + doc.pageText(9)`)
	if err != nil {
		t.Fatal(err)
	}
	if got != "2:Invoice|Total: 42:null" {
		t.Errorf("got %v", got)
	}
}
