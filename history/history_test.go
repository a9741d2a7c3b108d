package history

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func fixedClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func ops(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Operation
	}
	return out
}

func pathOps(t *testing.T, g *Graph, branch string) []string {
	t.Helper()
	p, err := g.Path(branch)
	if err != nil {
		t.Fatalf("Path(%q): %v", branch, err)
	}
	return ops(p)
}

func TestRecordUndoRedo(t *testing.T) {
	g := New(Config{Clock: fixedClock()})
	if _, ok := g.Undo(); ok {
		t.Fatal("undo on empty history")
	}
	a := g.Record("a", 1)
	b := g.Record("b", 2)
	if a.ParentID != RootID || b.ParentID != a.ID || b.BranchID != MainBranch {
		t.Fatalf("links: a=%+v b=%+v", a, b)
	}
	if !b.Timestamp.After(a.Timestamp) || b.Seq <= a.Seq {
		t.Errorf("ordering: a=%v/%d b=%v/%d", a.Timestamp, a.Seq, b.Timestamp, b.Seq)
	}

	n, ok := g.Undo()
	if !ok || n.ID != b.ID {
		t.Fatalf("Undo = %+v, %v", n, ok)
	}
	if diff := cmp.Diff([]string{"a"}, pathOps(t, g, "")); diff != "" {
		t.Errorf("path after undo (-want +got):\n%s", diff)
	}
	if !g.CanRedo() {
		t.Error("CanRedo = false")
	}
	n, ok = g.Redo()
	if !ok || n.ID != b.ID || n.Payload != 2 {
		t.Fatalf("Redo = %+v, %v", n, ok)
	}
	if _, ok := g.Redo(); ok {
		t.Error("redo past head")
	}

	g.Undo()
	g.Undo()
	if g.CanUndo() {
		t.Error("CanUndo at root")
	}
	head, _ := g.Head("")
	if !head.IsRoot() {
		t.Errorf("head = %s, want root", head.ID)
	}
}

func TestUndoRedoInverse(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for trial := 0; trial < 20; trial++ {
		g := New(Config{})
		n := 1 + r.Intn(30)
		for i := 0; i < n; i++ {
			g.Record("edit", r.Int())
		}
		want, _ := g.Path("")
		for i := 0; i < n; i++ {
			if _, ok := g.Undo(); !ok {
				t.Fatalf("undo %d failed", i)
			}
		}
		for i := 0; i < n; i++ {
			if _, ok := g.Redo(); !ok {
				t.Fatalf("redo %d failed", i)
			}
		}
		got, _ := g.Path("")
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("undo/redo not inverse (-want +got):\n%s", diff)
		}
	}
}

func TestRecordAfterUndoDiscardsRedoPath(t *testing.T) {
	g := New(Config{})
	g.Record("a", nil)
	g.Record("b", nil)
	g.Undo()
	g.Record("c", nil)
	if diff := cmp.Diff([]string{"a", "c"}, pathOps(t, g, "")); diff != "" {
		t.Errorf("path (-want +got):\n%s", diff)
	}
	if g.CanRedo() {
		t.Error("abandoned path still redoable")
	}
	if info := g.Branches()[0]; info.Nodes != 2 {
		t.Errorf("nodes = %d, want 2", info.Nodes)
	}
}

func TestBranchIsolation(t *testing.T) {
	g := New(Config{})
	g.Record("a", nil)
	id, err := g.CreateBranch("alt", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := g.SwitchBranch(id); err != nil {
		t.Fatal(err)
	}
	g.Record("b1", nil)
	g.Record("b2", nil)

	if diff := cmp.Diff([]string{"a"}, pathOps(t, g, MainBranch)); diff != "" {
		t.Errorf("main leaked branch edits (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b1", "b2"}, pathOps(t, g, id)); diff != "" {
		t.Errorf("branch path (-want +got):\n%s", diff)
	}

	// undo on the branch leaves main alone
	g.Undo()
	g.Undo()
	g.Undo()
	if diff := cmp.Diff([]string{"a"}, pathOps(t, g, MainBranch)); diff != "" {
		t.Errorf("main after branch undo (-want +got):\n%s", diff)
	}

	if err := g.SwitchBranch("nope"); !errors.Is(err, ErrUnknownBranch) {
		t.Errorf("SwitchBranch unknown = %v", err)
	}
}

func TestMergeBranches(t *testing.T) {
	setup := func() (*Graph, string) {
		g := New(Config{Clock: fixedClock()})
		g.Record("a", nil)
		id, _ := g.CreateBranch("feature", "")
		g.SwitchBranch(id)
		g.Record("f1", nil)
		g.SwitchBranch(MainBranch)
		g.Record("m1", nil)
		g.SwitchBranch(id)
		g.Record("f2", nil)
		g.SwitchBranch(MainBranch)
		return g, id
	}

	t.Run("ours", func(t *testing.T) {
		g, id := setup()
		if err := g.MergeBranches(id, MainBranch, Ours); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"a", "m1"}, pathOps(t, g, MainBranch)); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})
	t.Run("theirs", func(t *testing.T) {
		g, id := setup()
		if err := g.MergeBranches(id, MainBranch, Theirs); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"a", "f1", "f2"}, pathOps(t, g, MainBranch)); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
		// the source keeps its own copy
		g.SwitchBranch(id)
		g.Undo()
		if diff := cmp.Diff([]string{"a", "f1", "f2"}, pathOps(t, g, MainBranch)); diff != "" {
			t.Errorf("target shares nodes with source (-want +got):\n%s", diff)
		}
	})
	t.Run("merge takes the newer head", func(t *testing.T) {
		g, id := setup()
		if err := g.MergeBranches(id, MainBranch, Merge); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"a", "f1", "f2"}, pathOps(t, g, MainBranch)); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
		info := g.Branches()[0]
		if info.Nodes != 4 {
			t.Errorf("merged nodes = %d, want 4", info.Nodes)
		}
		// the older head stays reachable as a side path
		a, _ := g.Node(MainBranch, pathNode(t, g, MainBranch, 0))
		if len(a.ChildIDs) != 2 {
			t.Errorf("children of a = %v", a.ChildIDs)
		}
	})
	t.Run("merge keeps the newer target head", func(t *testing.T) {
		g, id := setup()
		g.Record("m2", nil)
		if err := g.MergeBranches(id, MainBranch, Merge); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"a", "m1", "m2"}, pathOps(t, g, MainBranch)); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})
}

func pathNode(t *testing.T, g *Graph, branch string, i int) string {
	t.Helper()
	p, err := g.Path(branch)
	if err != nil || i >= len(p) {
		t.Fatalf("Path(%q)[%d]: %v", branch, i, err)
	}
	return p[i].ID
}

func TestBranchEviction(t *testing.T) {
	g := New(Config{MaxBranches: 3})
	g.Record("a", nil)
	b1, _ := g.CreateBranch("b1", "")
	g.SwitchBranch(b1)
	g.Record("b1", nil)
	b2, _ := g.CreateBranch("b2", "")
	g.SwitchBranch(b2)
	g.Record("b2", nil)
	g.SwitchBranch(b1)

	// main has the oldest head; b1 is current
	b3, err := g.CreateBranch("b3", b2)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, b := range g.Branches() {
		ids = append(ids, b.ID)
	}
	if diff := cmp.Diff([]string{b1, b2, b3}, ids); diff != "" {
		t.Errorf("branches (-want +got):\n%s", diff)
	}

	g2 := New(Config{MaxBranches: 1})
	if _, err := g2.CreateBranch("x", ""); !errors.Is(err, ErrTooManyBranches) {
		t.Errorf("CreateBranch at limit = %v", err)
	}
}

func TestPruneFoldsAncestors(t *testing.T) {
	g := New(Config{MaxNodes: 3})
	for _, op := range []string{"a", "b", "c", "d", "e"} {
		g.Record(op, nil)
	}
	if diff := cmp.Diff([]string{"c", "d", "e"}, pathOps(t, g, "")); diff != "" {
		t.Errorf("path (-want +got):\n%s", diff)
	}
	base, _ := g.Baseline("")
	if diff := cmp.Diff([]string{"a", "b"}, ops(base)); diff != "" {
		t.Errorf("baseline (-want +got):\n%s", diff)
	}
	for g.CanUndo() {
		g.Undo()
	}
	first, ok := g.Redo()
	if !ok || first.Operation != "c" || first.ParentID != RootID {
		t.Errorf("oldest live node = %+v", first)
	}
}

func TestPruneDropsSidePaths(t *testing.T) {
	g := New(Config{MaxNodes: 4})
	g.Record("a", nil)
	g.Record("b", nil)
	side, _ := g.CreateBranch("", "")
	g.SwitchBranch(side)
	g.Undo()
	g.Undo()
	g.Record("x", nil)
	g.SwitchBranch(MainBranch)
	g.Record("c", nil)
	if err := g.MergeBranches(side, MainBranch, Merge); err != nil {
		t.Fatal(err)
	}
	// x hangs off the root next to a; folding a drops it
	g.Record("d", nil)
	if diff := cmp.Diff([]string{"b", "c", "d"}, pathOps(t, g, "")); diff != "" {
		t.Errorf("path (-want +got):\n%s", diff)
	}
	base, _ := g.Baseline("")
	if diff := cmp.Diff([]string{"a"}, ops(base)); diff != "" {
		t.Errorf("baseline (-want +got):\n%s", diff)
	}
	if n := g.Branches()[0].Nodes; n != 3 {
		t.Errorf("nodes = %d, want 3", n)
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []Strategy{Theirs, Ours, Merge} {
		got, ok := ParseStrategy(s.String())
		if !ok || got != s {
			t.Errorf("ParseStrategy(%q) = %v, %v", s, got, ok)
		}
	}
	if _, ok := ParseStrategy("rebase"); ok {
		t.Error("ParseStrategy accepted rebase")
	}
}
