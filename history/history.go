// Package history records edits as nodes of a branching graph. Each branch
// owns a head pointer into its own copy of the graph; undo and redo only
// move that pointer.
//
// All branches descend from a sentinel root node, so undoing every edit of
// a branch leaves its head on the root. When a branch grows past the node
// limit its oldest edits are folded: they leave the graph and become part
// of the branch's baseline, which callers replay before the path.
package history

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wudi/pdfedit/observability"
)

const (
	RootID     = "root"
	MainBranch = "main"

	DefaultMaxNodes    = 100
	DefaultMaxBranches = 10
)

var (
	ErrUnknownBranch = errors.New("history: unknown branch")
	ErrUnknownNode   = errors.New("history: unknown node")
)

// Node is one recorded operation. Payload is stored as given and must not
// be modified after Record.
type Node struct {
	ID        string
	Seq       uint64
	Timestamp time.Time
	Operation string
	Payload   any
	ParentID  string
	ChildIDs  []string
	BranchID  string
}

// IsRoot reports whether n is the sentinel root.
func (n Node) IsRoot() bool { return n.ID == RootID }

func (n *Node) snapshot() Node {
	c := *n
	c.ChildIDs = append([]string(nil), n.ChildIDs...)
	return c
}

func (n *Node) clone() *Node {
	c := n.snapshot()
	return &c
}

// Strategy selects how MergeBranches combines two branches.
type Strategy int

const (
	// Theirs replaces the target's graph and head with the source's.
	Theirs Strategy = iota
	// Ours keeps the target unchanged.
	Ours
	// Merge unions both node sets and moves the target's head to whichever
	// head was recorded last. Conflicting edits to the same run are not
	// reconciled: the losing head's edits stay reachable only as a side
	// path.
	Merge
)

func (s Strategy) String() string {
	switch s {
	case Theirs:
		return "theirs"
	case Ours:
		return "ours"
	case Merge:
		return "merge"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy maps "theirs", "ours" and "merge" to a Strategy.
func ParseStrategy(s string) (Strategy, bool) {
	switch s {
	case "theirs":
		return Theirs, true
	case "ours":
		return Ours, true
	case "merge":
		return Merge, true
	}
	return 0, false
}

type Config struct {
	// MaxNodes caps the recorded nodes of one branch, root excluded.
	MaxNodes    int
	MaxBranches int
	Clock       func() time.Time
	Logger      observability.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxNodes <= 0 {
		c.MaxNodes = DefaultMaxNodes
	}
	if c.MaxBranches <= 0 {
		c.MaxBranches = DefaultMaxBranches
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	c.Logger = observability.OrNop(c.Logger)
	return c
}

type branch struct {
	id      string
	name    string
	created uint64
	head    string
	nodes   map[string]*Node
	folded  []Node
}

func newBranch(id, name string, created uint64) *branch {
	root := &Node{ID: RootID, BranchID: id}
	return &branch{id: id, name: name, created: created, head: RootID, nodes: map[string]*Node{RootID: root}}
}

func (b *branch) clone(id, name string, created uint64) *branch {
	c := &branch{
		id: id, name: name, created: created, head: b.head,
		nodes:  make(map[string]*Node, len(b.nodes)),
		folded: append([]Node(nil), b.folded...),
	}
	for k, n := range b.nodes {
		c.nodes[k] = n.clone()
	}
	return c
}

// BranchInfo describes a branch.
type BranchInfo struct {
	ID      string
	Name    string
	Head    string
	Nodes   int
	Folded  int
	Current bool
}

// Graph is a branching edit history. It is safe for concurrent use.
type Graph struct {
	cfg Config

	mu       sync.Mutex
	seq      uint64
	branchN  int
	current  string
	branches map[string]*branch
}

// New returns a graph with an empty main branch.
func New(cfg Config) *Graph {
	g := &Graph{cfg: cfg.withDefaults(), branches: map[string]*branch{}}
	g.branches[MainBranch] = newBranch(MainBranch, MainBranch, 0)
	g.current = MainBranch
	return g
}

// Current is the id of the branch Record, Undo and Redo act on.
func (g *Graph) Current() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Record appends a node below the current head, makes it the head and
// returns it. Nodes below the old head that an undo left behind are
// discarded; use CreateBranch first to keep them.
func (g *Graph) Record(operation string, payload any) Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := g.branches[g.current]
	parent := b.nodes[b.head]
	for _, c := range parent.ChildIDs {
		g.drop(b, c)
	}
	parent.ChildIDs = parent.ChildIDs[:0]

	g.seq++
	n := &Node{
		ID:        fmt.Sprintf("node-%d", g.seq),
		Seq:       g.seq,
		Timestamp: g.cfg.Clock(),
		Operation: operation,
		Payload:   payload,
		ParentID:  parent.ID,
		BranchID:  b.id,
	}
	b.nodes[n.ID] = n
	parent.ChildIDs = append(parent.ChildIDs, n.ID)
	b.head = n.ID
	g.prune(b)
	return n.snapshot()
}

// Undo moves the current head to its parent and returns the node that was
// undone. At the root it reports false.
func (g *Graph) Undo() (Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := g.branches[g.current]
	n := b.nodes[b.head]
	if n.IsRoot() {
		return Node{}, false
	}
	b.head = n.ParentID
	return n.snapshot(), true
}

// Redo moves the current head to its first child and returns it. Without
// children it reports false.
func (g *Graph) Redo() (Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := g.branches[g.current]
	n := b.nodes[b.head]
	if len(n.ChildIDs) == 0 {
		return Node{}, false
	}
	b.head = n.ChildIDs[0]
	return b.nodes[b.head].snapshot(), true
}

// CanUndo and CanRedo report whether Undo and Redo would move the head.
func (g *Graph) CanUndo() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := g.branches[g.current]
	return b.head != RootID
}

func (g *Graph) CanRedo() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := g.branches[g.current]
	return len(b.nodes[b.head].ChildIDs) > 0
}

// Head returns the head node of a branch. An empty id means the current
// branch.
func (g *Graph) Head(branchID string) (Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, err := g.branch(branchID)
	if err != nil {
		return Node{}, err
	}
	return b.nodes[b.head].snapshot(), nil
}

// Node returns a node of a branch.
func (g *Graph) Node(branchID, id string) (Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, err := g.branch(branchID)
	if err != nil {
		return Node{}, err
	}
	n, ok := b.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return n.snapshot(), nil
}

// Path returns the nodes from the root, exclusive, to the head of a
// branch, oldest first.
func (g *Graph) Path(branchID string) ([]Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, err := g.branch(branchID)
	if err != nil {
		return nil, err
	}
	return b.path(), nil
}

func (b *branch) path() []Node {
	var out []Node
	for id := b.head; id != RootID; {
		n := b.nodes[id]
		out = append(out, n.snapshot())
		id = n.ParentID
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Baseline returns the nodes folded out of a branch, oldest first. Their
// effect precedes every node of Path.
func (g *Graph) Baseline(branchID string) ([]Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, err := g.branch(branchID)
	if err != nil {
		return nil, err
	}
	return append([]Node(nil), b.folded...), nil
}

// Branches lists the branches in creation order.
func (g *Graph) Branches() []BranchInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]BranchInfo, 0, len(g.branches))
	for _, b := range g.sorted() {
		out = append(out, BranchInfo{
			ID: b.id, Name: b.name, Head: b.head,
			Nodes: len(b.nodes) - 1, Folded: len(b.folded),
			Current: b.id == g.current,
		})
	}
	return out
}

func (g *Graph) sorted() []*branch {
	out := make([]*branch, 0, len(g.branches))
	for _, b := range g.branches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].created < out[j].created })
	return out
}

func (g *Graph) branch(id string) (*branch, error) {
	if id == "" {
		id = g.current
	}
	b, ok := g.branches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBranch, id)
	}
	return b, nil
}
