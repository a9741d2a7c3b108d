package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wudi/pdfedit/cache"
	"github.com/wudi/pdfedit/contentstream/editor"
	"github.com/wudi/pdfedit/history"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/textlayer"
)

// Change describes the page a history move affected and its runs after
// the move.
type Change struct {
	Page int
	Runs []textlayer.TextRun
	Node history.Node
}

// snapshot is the cached form of a pageState.
type snapshot struct {
	Runs     []textlayer.TextRun `json:"runs"`
	Commands []editor.Command    `json:"commands"`
}

// Mutate applies mutations to page n and records them as one history
// node. Unknown run ids fail the whole call before anything changes.
func (s *Session) Mutate(ctx context.Context, n int, mutations []editor.Mutation) (*editor.Result, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return s.mutate(ctx, n, mutations)
}

func (s *Session) mutate(ctx context.Context, n int, mutations []editor.Mutation) (*editor.Result, error) {
	ctx, span := s.cfg.Tracer.StartSpan(ctx, "session.mutate")
	defer span.Finish()
	start := time.Now()

	st, err := s.page(ctx, n)
	if err != nil {
		return nil, err
	}
	var rec editor.Recorder
	res, err := s.editor.Apply(ctx, &rec, editor.Request{Page: n, Runs: st.runs, Mutations: mutations})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	for _, w := range res.Warnings {
		s.log.Warn("edit degraded", observability.Int("page", n), observability.Error("warning", w))
	}

	next := &pageState{
		runs:     res.Runs,
		commands: append(append([]editor.Command(nil), st.commands...), rec.Commands...),
	}
	next.index = textlayer.NewIndex(next.runs)
	s.pages[n] = next
	if edits, err := s.edits(n); err == nil {
		s.store(n, edits, next)
	}
	span.SetTag("mutations", len(mutations))
	s.log.Debug("page mutated",
		observability.Int("page", n),
		observability.Int("mutations", len(mutations)),
		observability.Duration(observability.MetricMutateTime, time.Since(start)))
	return res, nil
}

// Undo reverts the newest edit of the current branch. It reports false
// when there is nothing to undo.
func (s *Session) Undo(ctx context.Context) (Change, bool, error) {
	if err := s.lock(); err != nil {
		return Change{}, false, err
	}
	defer s.mu.Unlock()
	node, ok := s.graph.Undo()
	if !ok {
		return Change{}, false, nil
	}
	c, err := s.moved(ctx, node)
	return c, true, err
}

// Redo reapplies the edit below the current head. Where an undo was
// followed by a branch switch or merge that left several children, the
// oldest child is taken.
func (s *Session) Redo(ctx context.Context) (Change, bool, error) {
	if err := s.lock(); err != nil {
		return Change{}, false, err
	}
	defer s.mu.Unlock()
	node, ok := s.graph.Redo()
	if !ok {
		return Change{}, false, nil
	}
	c, err := s.moved(ctx, node)
	return c, true, err
}

func (s *Session) CanUndo() bool { return s.graph.CanUndo() }
func (s *Session) CanRedo() bool { return s.graph.CanRedo() }

// moved rebuilds the page node touched after the head moved across it.
func (s *Session) moved(ctx context.Context, node history.Node) (Change, error) {
	edit, ok := node.Payload.(editor.Edit)
	if !ok {
		return Change{Node: node}, nil
	}
	delete(s.pages, edit.Page)
	st, err := s.page(ctx, edit.Page)
	if err != nil {
		return Change{Page: edit.Page, Node: node}, err
	}
	return Change{Page: edit.Page, Runs: append([]textlayer.TextRun(nil), st.runs...), Node: node}, nil
}

// History returns the edits of the current branch from oldest to newest.
// Edits folded into the baseline are not included.
func (s *Session) History() ([]history.Node, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return s.graph.Path("")
}

func (s *Session) Branches() []history.BranchInfo { return s.graph.Branches() }

// CreateBranch forks from (the current branch when empty) and returns the
// new branch id. The current branch does not change.
func (s *Session) CreateBranch(name, from string) (string, error) {
	if err := s.lock(); err != nil {
		return "", err
	}
	defer s.mu.Unlock()
	return s.graph.CreateBranch(name, from)
}

func (s *Session) SwitchBranch(id string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if err := s.graph.SwitchBranch(id); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

func (s *Session) DeleteBranch(id string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.graph.DeleteBranch(id)
}

// MergeBranches merges source into target with strategy, one of "theirs",
// "ours" or "merge".
func (s *Session) MergeBranches(source, target, strategy string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	st, ok := history.ParseStrategy(strategy)
	if !ok {
		return fmt.Errorf("unknown merge strategy %q", strategy)
	}
	if err := s.graph.MergeBranches(source, target, st); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// invalidate drops every page state. Cached snapshots stay: they are
// keyed by the edits that produced them.
func (s *Session) invalidate() {
	for n := range s.pages {
		delete(s.pages, n)
	}
}

// page returns the state of page n for the current history path.
func (s *Session) page(ctx context.Context, n int) (*pageState, error) {
	if st, ok := s.pages[n]; ok {
		return st, nil
	}
	st, err := s.rebuild(ctx, n)
	if err != nil {
		return nil, err
	}
	s.pages[n] = st
	return st, nil
}

// edits lists the edits of page n on the current branch, baseline first.
func (s *Session) edits(n int) ([]editor.Edit, error) {
	base, err := s.graph.Baseline("")
	if err != nil {
		return nil, err
	}
	path, err := s.graph.Path("")
	if err != nil {
		return nil, err
	}
	var out []editor.Edit
	for _, node := range append(base, path...) {
		if e, ok := node.Payload.(editor.Edit); ok && e.Page == n {
			out = append(out, e)
		}
	}
	return out, nil
}

// editedPages lists the pages with at least one edit on the current
// branch, in first-edit order.
func (s *Session) editedPages() ([]int, error) {
	base, err := s.graph.Baseline("")
	if err != nil {
		return nil, err
	}
	path, err := s.graph.Path("")
	if err != nil {
		return nil, err
	}
	seen := map[int]bool{}
	var out []int
	for _, node := range append(base, path...) {
		if e, ok := node.Payload.(editor.Edit); ok && !seen[e.Page] {
			seen[e.Page] = true
			out = append(out, e.Page)
		}
	}
	return out, nil
}

func cacheKey(n int, edits []editor.Edit) (string, error) {
	data, err := json.Marshal(edits)
	if err != nil {
		return "", err
	}
	return cache.Key(n, data), nil
}

func (s *Session) store(n int, edits []editor.Edit, st *pageState) {
	if len(edits) == 0 {
		return
	}
	key, err := cacheKey(n, edits)
	if err != nil {
		return
	}
	data, err := json.Marshal(snapshot{Runs: st.runs, Commands: st.commands})
	if err != nil {
		s.log.Warn("page snapshot not cached", observability.Int("page", n), observability.Error("error", err))
		return
	}
	s.cache.Set(key, data)
}

// rebuild replays the edits of page n over its extracted runs, or loads
// the result of an earlier replay from the cache.
func (s *Session) rebuild(ctx context.Context, n int) (*pageState, error) {
	ex, err := s.extract(ctx, n)
	if err != nil {
		return nil, err
	}
	edits, err := s.edits(n)
	if err != nil {
		return nil, err
	}
	if len(edits) == 0 {
		runs := append([]textlayer.TextRun(nil), ex.runs...)
		return &pageState{runs: runs, index: textlayer.NewIndex(runs)}, nil
	}

	key, err := cacheKey(n, edits)
	if err == nil {
		if data, ok := s.cache.Get(key); ok {
			var snap snapshot
			if err := json.Unmarshal(data, &snap); err == nil {
				s.log.Debug("page state from cache", observability.Int("page", n), observability.Bool(observability.MetricCacheHit, true))
				return &pageState{runs: snap.Runs, commands: snap.Commands, index: textlayer.NewIndex(snap.Runs)}, nil
			}
			s.cache.Delete(key)
		}
	}

	runs := ex.runs
	var rec editor.Recorder
	for _, e := range edits {
		res, err := s.editor.Apply(ctx, &rec, editor.Request{
			Page: n, Runs: runs, Mutations: e.Mutations, SuppressHistory: true,
		})
		if err != nil {
			s.log.Warn("edit skipped during replay", observability.Int("page", n), observability.Error("error", err))
			continue
		}
		runs = res.Runs
	}
	st := &pageState{runs: runs, commands: rec.Commands, index: textlayer.NewIndex(runs)}
	s.log.Debug("page state replayed",
		observability.Int("page", n),
		observability.Int("edits", len(edits)),
		observability.Bool(observability.MetricCacheMiss, true))
	s.store(n, edits, st)
	return st, nil
}
