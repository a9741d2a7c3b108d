package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfedit/builder"
	"github.com/wudi/pdfedit/contentstream/editor"
	"github.com/wudi/pdfedit/offload"
	"github.com/wudi/pdfedit/parser"
	"github.com/wudi/pdfedit/textlayer"
	"github.com/wudi/pdfedit/xref"
)

func invoicePDF(t *testing.T) []byte {
	t.Helper()
	data, err := builder.NewBuilder().
		NewPage(612, 792).
		DrawText("Invoice", 72, 700, builder.TextOptions{FontSize: 24}).
		DrawText("Total: 42", 72, 650, builder.TextOptions{FontSize: 12, Font: "Helvetica-Bold"}).
		Finish().
		NewPage(612, 792).
		DrawText("Thanks", 72, 700, builder.TextOptions{}).
		Finish().
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return data
}

func open(t *testing.T, cfg Config) *Session {
	t.Helper()
	s, err := Open(context.Background(), invoicePDF(t), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func texts(runs []textlayer.TextRun) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.Text
	}
	return out
}

func pageTexts(t *testing.T, s *Session, n int) []string {
	t.Helper()
	runs, err := s.Extract(context.Background(), n)
	if err != nil {
		t.Fatalf("Extract(%d): %v", n, err)
	}
	return texts(runs)
}

func mutate(t *testing.T, s *Session, runID, text string) {
	t.Helper()
	_, err := s.Mutate(context.Background(), 1, []editor.Mutation{{RunID: runID, NewText: text}})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
}

func TestOpenAndExtract(t *testing.T) {
	s := open(t, Config{})
	n, err := s.PageCount()
	if err != nil || n != 2 {
		t.Fatalf("PageCount = %d, %v", n, err)
	}
	if s.Degraded() {
		t.Error("well-formed file reported degraded")
	}
	if diff := cmp.Diff([]string{"Invoice", "Total: 42"}, pageTexts(t, s, 1)); diff != "" {
		t.Errorf("page 1 (-want +got):\n%s", diff)
	}
	items, err := s.Items(context.Background(), 2)
	if err != nil || len(items) != 1 || items[0].Text != "Thanks" {
		t.Errorf("Items(2) = %+v, %v", items, err)
	}
	if _, err := s.Extract(context.Background(), 9); err == nil {
		t.Error("page out of range accepted")
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	_, err := Open(context.Background(), []byte("not a pdf"), Config{})
	var serr *parser.StructuralError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want StructuralError", err)
	}
}

func TestFindRunAtPoint(t *testing.T) {
	s := open(t, Config{})
	ctx := context.Background()
	run, ok, err := s.FindRunAtPoint(ctx, 1, 80, 137)
	if err != nil || !ok || run.Text != "Total: 42" {
		t.Errorf("hit = %+v, %v, %v", run, ok, err)
	}
	if _, ok, _ := s.FindRunAtPoint(ctx, 1, 500, 400); ok {
		t.Error("hit in empty area")
	}
}

func TestMutateUndoRedo(t *testing.T) {
	s := open(t, Config{})
	ctx := context.Background()
	if s.CanUndo() {
		t.Fatal("fresh session can undo")
	}
	mutate(t, s, "run-1-1", "Total: 99")
	if got := pageTexts(t, s, 1); got[1] != "Total: 99" {
		t.Fatalf("after mutate: %q", got)
	}

	c, ok, err := s.Undo(ctx)
	if err != nil || !ok {
		t.Fatalf("Undo = %v, %v", ok, err)
	}
	if c.Page != 1 || texts(c.Runs)[1] != "Total: 42" {
		t.Errorf("undo change = page %d %q", c.Page, texts(c.Runs))
	}
	if _, ok, _ := s.Undo(ctx); ok {
		t.Error("undo past the root")
	}

	c, ok, err = s.Redo(ctx)
	if err != nil || !ok || texts(c.Runs)[1] != "Total: 99" {
		t.Fatalf("Redo = %q, %v, %v", texts(c.Runs), ok, err)
	}
	if s.CanRedo() {
		t.Error("redo left after reaching the head")
	}
	hist, err := s.History()
	if err != nil || len(hist) != 1 || hist[0].Operation != editor.OpMutate {
		t.Errorf("History = %+v, %v", hist, err)
	}
}

func TestRedoRebuildUsesCache(t *testing.T) {
	s := open(t, Config{})
	ctx := context.Background()
	mutate(t, s, "run-1-1", "Total: 99")
	s.Undo(ctx)
	before := s.cache.Stats().Hits
	s.Redo(ctx)
	if got := s.cache.Stats().Hits; got != before+1 {
		t.Errorf("cache hits = %d, want %d", got, before+1)
	}
	if got := pageTexts(t, s, 1); got[1] != "Total: 99" {
		t.Errorf("cached state = %q", got)
	}
}

func TestMutateUnknownRun(t *testing.T) {
	s := open(t, Config{})
	_, err := s.Mutate(context.Background(), 1, []editor.Mutation{
		{RunID: "run-1-0", NewText: "Bill"},
		{RunID: "run-1-7", NewText: "x"},
	})
	if !errors.Is(err, editor.ErrRunNotFound) {
		t.Fatalf("err = %v", err)
	}
	if s.CanUndo() {
		t.Error("failed mutation recorded")
	}
	if got := pageTexts(t, s, 1); got[0] != "Invoice" {
		t.Errorf("page changed: %q", got)
	}
}

func TestBranches(t *testing.T) {
	s := open(t, Config{})
	mutate(t, s, "run-1-1", "Total: 99")
	alt, err := s.CreateBranch("alt", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SwitchBranch(alt); err != nil {
		t.Fatal(err)
	}
	if got := pageTexts(t, s, 1)[1]; got != "Total: 99" {
		t.Fatalf("branch did not inherit edits: %q", got)
	}
	mutate(t, s, "run-1-1", "Total: 7")

	if err := s.SwitchBranch("main"); err != nil {
		t.Fatal(err)
	}
	if got := pageTexts(t, s, 1)[1]; got != "Total: 99" {
		t.Errorf("main sees branch edit: %q", got)
	}
	if err := s.MergeBranches(alt, "main", "theirs"); err != nil {
		t.Fatal(err)
	}
	if got := pageTexts(t, s, 1)[1]; got != "Total: 7" {
		t.Errorf("after merge: %q", got)
	}
	if err := s.MergeBranches(alt, "main", "rebase"); err == nil {
		t.Error("unknown strategy accepted")
	}
	if err := s.SwitchBranch("nope"); err == nil {
		t.Error("unknown branch accepted")
	}
	if len(s.Branches()) != 2 {
		t.Errorf("branches = %+v", s.Branches())
	}
}

func TestSave(t *testing.T) {
	s := open(t, Config{})
	ctx := context.Background()
	orig := invoicePDF(t)

	unchanged, err := s.Save(ctx)
	if err != nil || !bytes.Equal(unchanged, orig) {
		t.Fatalf("save without edits changed the file (err %v)", err)
	}

	mutate(t, s, "run-1-1", "Total: 99")
	saved, err := s.Save(ctx)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !bytes.HasPrefix(saved, orig) {
		t.Fatal("original bytes not preserved")
	}
	if !bytes.Contains(saved[len(orig):], []byte("/"+editor.FontPrefix+"1")) {
		t.Error("edit font missing from the update")
	}
	if rep := xref.ValidateStructure(saved); !rep.Valid {
		t.Errorf("saved file invalid: %v", rep.Errors)
	}

	again, err := Open(ctx, saved, Config{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	if n, _ := again.PageCount(); n != 2 {
		t.Errorf("page count = %d", n)
	}
	p1 := strings.Join(pageTexts(t, again, 1), "|")
	if !strings.HasPrefix(p1, "Invoice|") || !strings.Contains(p1, "Total: 99") {
		t.Errorf("reopened page 1 = %q", p1)
	}
	if diff := cmp.Diff([]string{"Thanks"}, pageTexts(t, again, 2)); diff != "" {
		t.Errorf("untouched page changed (-want +got):\n%s", diff)
	}
}

func TestSaveWithInlineOffloader(t *testing.T) {
	in := offload.NewInline()
	for kind, h := range Handlers() {
		in.Handle(kind, h)
	}
	s := open(t, Config{Offloader: in})
	mutate(t, s, "run-1-0", "Receipt")
	saved, err := s.Save(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(saved, []byte("/FlateDecode")) {
		t.Error("overlay not compressed")
	}
}

func TestBatchReplace(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		opts    textlayer.SearchOptions
		repl    Replacement
		want    string
		matches int
	}{
		{"literal", "total", textlayer.SearchOptions{}, Replacement{Text: "Sum"}, "Sum: 42", 1},
		{"case sensitive miss", "total", textlayer.SearchOptions{CaseSensitive: true}, Replacement{Text: "Sum"}, "Total: 42", 0},
		{"script", `\d+`, textlayer.SearchOptions{Regex: true}, Replacement{Script: `m => String(Number(m) * 2)`}, "Total: 84", 1},
		{"script reads doc", "42", textlayer.SearchOptions{}, Replacement{Script: `(m, page) => doc.pageText(page + 1)[0]`}, "Total: Thanks", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t, Config{})
			rep, err := s.BatchReplace(context.Background(), tt.query, tt.opts, tt.repl, []int{1})
			if err != nil {
				t.Fatal(err)
			}
			if rep.Matches != tt.matches {
				t.Errorf("matches = %d, want %d", rep.Matches, tt.matches)
			}
			if got := pageTexts(t, s, 1)[1]; got != tt.want {
				t.Errorf("run = %q, want %q", got, tt.want)
			}
			hist, _ := s.History()
			if want := min(tt.matches, 1); len(hist) != want {
				t.Errorf("history nodes = %d, want %d", len(hist), want)
			}
		})
	}
}

func TestBatchReplaceAllPages(t *testing.T) {
	s := open(t, Config{})
	rep, err := s.BatchReplace(context.Background(), "[a-z]+s$", textlayer.SearchOptions{Regex: true}, Replacement{Text: "x"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(ReplaceReport{Matches: 1, Runs: 1, Pages: []int{2}}, rep); diff != "" {
		t.Errorf("report (-want +got):\n%s", diff)
	}
	if got := pageTexts(t, s, 2)[0]; got != "x" {
		t.Errorf("page 2 = %q", got)
	}
}

func TestBatchReplaceScriptError(t *testing.T) {
	s := open(t, Config{})
	_, err := s.BatchReplace(context.Background(), "42", textlayer.SearchOptions{}, Replacement{Script: `m => { throw new Error("no") }`}, nil)
	if err == nil {
		t.Fatal("script error swallowed")
	}
	if s.CanUndo() {
		t.Error("failed replace recorded")
	}
}

func TestSearch(t *testing.T) {
	s := open(t, Config{})
	found, err := s.Search(context.Background(), "t", textlayer.SearchOptions{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, m := range found {
		got = append(got, m.RunID)
	}
	if diff := cmp.Diff([]string{"run-1-1", "run-1-1", "run-2-0"}, got); diff != "" {
		t.Errorf("matches (-want +got):\n%s", diff)
	}
}

func TestAnalyze(t *testing.T) {
	s := open(t, Config{})
	rep, err := s.Analyze(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Valid || len(rep.Errors) != 0 {
		t.Errorf("report = %+v", rep)
	}
}

func TestTextLayerHTML(t *testing.T) {
	s := open(t, Config{})
	mutate(t, s, "run-1-0", "Receipt")
	out, err := s.TextLayerHTML(context.Background(), 1, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Receipt") || strings.Contains(out, "Invoice") {
		t.Errorf("html = %s", out)
	}
}

func TestPreview(t *testing.T) {
	s := open(t, Config{})
	mutate(t, s, "run-1-1", "Total: 99")
	img := image.NewRGBA(image.Rect(0, 0, 612, 792))
	if err := s.Preview(context.Background(), 1, img, 1); err != nil {
		t.Fatal(err)
	}
	white := color.RGBA{255, 255, 255, 255}
	if got := img.RGBAAt(70, 136); got != white {
		t.Errorf("overpaint pixel = %v", got)
	}
	if got := img.RGBAAt(500, 400); got == white {
		t.Error("preview painted outside the edit")
	}
}

func TestClose(t *testing.T) {
	s, err := Open(context.Background(), invoicePDF(t), Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if _, err := s.Extract(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Extract after Close = %v", err)
	}
	if _, err := s.Save(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Save after Close = %v", err)
	}
}
