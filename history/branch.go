package history

import (
	"errors"
	"fmt"
	"sort"

	"github.com/wudi/pdfedit/observability"
)

var ErrTooManyBranches = errors.New("history: branch limit reached")

// CreateBranch copies a branch, its nodes, head and baseline, under a new
// id and returns the id. An empty from means the current branch. At the
// branch limit the branch whose head is oldest is evicted first; the
// current branch and the source are never evicted.
func (g *Graph) CreateBranch(name, from string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	src, err := g.branch(from)
	if err != nil {
		return "", err
	}
	if len(g.branches) >= g.cfg.MaxBranches {
		if !g.evict(src.id) {
			return "", ErrTooManyBranches
		}
	}
	g.branchN++
	id := fmt.Sprintf("branch-%d", g.branchN)
	if name == "" {
		name = id
	}
	g.branches[id] = src.clone(id, name, uint64(g.branchN))
	g.cfg.Logger.Debug("branch created",
		observability.String("branch", id),
		observability.String("from", src.id))
	return id, nil
}

func (g *Graph) evict(keep string) bool {
	var victim *branch
	var victimSeq uint64
	for _, b := range g.sorted() {
		if b.id == g.current || b.id == keep {
			continue
		}
		seq := b.nodes[b.head].Seq
		if victim == nil || seq < victimSeq {
			victim, victimSeq = b, seq
		}
	}
	if victim == nil {
		return false
	}
	delete(g.branches, victim.id)
	g.cfg.Logger.Debug("branch evicted", observability.String("branch", victim.id))
	return true
}

// SwitchBranch makes id the current branch.
func (g *Graph) SwitchBranch(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, err := g.branch(id)
	if err != nil {
		return err
	}
	g.current = b.id
	return nil
}

// DeleteBranch removes a branch other than the current one.
func (g *Graph) DeleteBranch(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, err := g.branch(id)
	if err != nil {
		return err
	}
	if b.id == g.current {
		return fmt.Errorf("history: cannot delete current branch %s", id)
	}
	delete(g.branches, b.id)
	return nil
}

// MergeBranches folds source into target according to s. Source is left
// unchanged.
func (g *Graph) MergeBranches(source, target string, s Strategy) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	src, err := g.branch(source)
	if err != nil {
		return err
	}
	dst, err := g.branch(target)
	if err != nil {
		return err
	}
	if src == dst {
		return nil
	}
	switch s {
	case Ours:
		return nil
	case Theirs:
		g.branches[dst.id] = src.clone(dst.id, dst.name, dst.created)
	case Merge:
		g.union(src, dst)
		g.prune(dst)
	default:
		return fmt.Errorf("history: unknown merge strategy %v", s)
	}
	g.cfg.Logger.Debug("branches merged",
		observability.String("source", src.id),
		observability.String("target", dst.id),
		observability.String("strategy", s.String()))
	return nil
}

func (g *Graph) union(src, dst *branch) {
	folded := map[string]bool{}
	baseline := append([]Node(nil), dst.folded...)
	for _, n := range dst.folded {
		folded[n.ID] = true
	}
	for _, n := range src.folded {
		if !folded[n.ID] {
			folded[n.ID] = true
			baseline = append(baseline, n)
		}
	}
	sort.SliceStable(baseline, func(i, j int) bool { return baseline[i].Seq < baseline[j].Seq })
	dst.folded = baseline

	var added []*Node
	for id, n := range src.nodes {
		if _, ok := dst.nodes[id]; ok || folded[id] {
			continue
		}
		c := n.clone()
		c.ChildIDs = nil
		dst.nodes[id] = c
		added = append(added, c)
	}
	sort.Slice(added, func(i, j int) bool { return added[i].Seq < added[j].Seq })
	root := dst.nodes[RootID]
	for _, n := range added {
		parent, ok := dst.nodes[n.ParentID]
		if !ok {
			n.ParentID, parent = RootID, root
		}
		parent.ChildIDs = append(parent.ChildIDs, n.ID)
	}

	// nodes folded on the source side leave the target's graph too
	for _, f := range baseline {
		if n, ok := dst.nodes[f.ID]; ok {
			g.unlinkFolded(dst, n)
		}
	}

	if h, ok := dst.nodes[src.head]; ok && h.Seq > dst.nodes[dst.head].Seq {
		dst.head = src.head
	}
}

// prune folds or drops the oldest nodes until b is within the node limit.
// The oldest live node always hangs off the root. On the head's path it is
// folded into the baseline and the root's other subtrees, built without
// it, are dropped; off the path its subtree is dropped.
func (g *Graph) prune(b *branch) {
	for len(b.nodes)-1 > g.cfg.MaxNodes {
		root := b.nodes[RootID]
		var oldest *Node
		for _, id := range root.ChildIDs {
			if n := b.nodes[id]; oldest == nil || n.Seq < oldest.Seq {
				oldest = n
			}
		}
		if oldest == nil {
			return
		}
		if !b.onHeadPath(oldest.ID) {
			g.drop(b, oldest.ID)
			root.ChildIDs = remove(root.ChildIDs, oldest.ID)
			continue
		}
		for _, id := range root.ChildIDs {
			if id != oldest.ID {
				g.drop(b, id)
			}
		}
		root.ChildIDs = []string{oldest.ID}
		g.unlinkFolded(b, oldest)
		g.cfg.Logger.Debug("history node folded",
			observability.String("branch", b.id),
			observability.String("node", oldest.ID))
	}
}

// unlinkFolded moves n into the baseline and hangs its children off the
// root.
func (g *Graph) unlinkFolded(b *branch, n *Node) {
	root := b.nodes[RootID]
	root.ChildIDs = remove(root.ChildIDs, n.ID)
	if p, ok := b.nodes[n.ParentID]; ok && p != root {
		p.ChildIDs = remove(p.ChildIDs, n.ID)
	}
	for _, c := range n.ChildIDs {
		if child, ok := b.nodes[c]; ok {
			child.ParentID = RootID
			root.ChildIDs = append(root.ChildIDs, c)
		}
	}
	delete(b.nodes, n.ID)
	if !containsNode(b.folded, n.ID) {
		f := n.snapshot()
		f.ChildIDs = nil
		b.folded = append(b.folded, f)
		sort.SliceStable(b.folded, func(i, j int) bool { return b.folded[i].Seq < b.folded[j].Seq })
	}
	if b.head == n.ID {
		b.head = RootID
	}
}

// drop deletes the subtree at id. The parent's child list is left to the
// caller.
func (g *Graph) drop(b *branch, id string) {
	n, ok := b.nodes[id]
	if !ok {
		return
	}
	for _, c := range n.ChildIDs {
		g.drop(b, c)
	}
	delete(b.nodes, id)
	if b.head == id {
		b.head = RootID
	}
}

func (b *branch) onHeadPath(id string) bool {
	for cur := b.head; cur != RootID; cur = b.nodes[cur].ParentID {
		if cur == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func containsNode(nodes []Node, id string) bool {
	for _, n := range nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}
