package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfedit/contentstream/editor"
	"github.com/wudi/pdfedit/filters"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/offload"
	"github.com/wudi/pdfedit/scripting"
	"github.com/wudi/pdfedit/textlayer"
	"github.com/wudi/pdfedit/xref"
)

// Replacement is what BatchReplace puts in place of each match: either
// literal text or the source of a JavaScript function expression called
// as fn(match, page, groups, info).
type Replacement struct {
	Text   string
	Script string
}

// ReplaceReport summarizes a BatchReplace.
type ReplaceReport struct {
	Matches int
	// Runs counts the runs whose text changed.
	Runs  int
	Pages []int
}

type searchJob struct {
	matcher *textlayer.Matcher
	runs    []textlayer.TextRun
}

func (j searchJob) run() ([]textlayer.Match, error) {
	var out []textlayer.Match
	for _, r := range j.runs {
		found, err := j.matcher.FindAll(r.Text)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		for _, f := range found {
			f.RunID, f.Page = r.ID, r.Page
			out = append(out, f)
		}
	}
	return out, nil
}

// Handlers returns the handlers a session's offloader needs. Sessions
// that start their own pool register them already.
func Handlers() map[offload.Kind]offload.Handler {
	return map[offload.Kind]offload.Handler{
		offload.KindAnalyze: func(_ context.Context, p any) (any, error) {
			data, ok := p.([]byte)
			if !ok {
				return nil, fmt.Errorf("analyze: unexpected payload %T", p)
			}
			return xref.ValidateStructure(data), nil
		},
		offload.KindSearch: func(_ context.Context, p any) (any, error) {
			job, ok := p.(searchJob)
			if !ok {
				return nil, fmt.Errorf("search: unexpected payload %T", p)
			}
			return job.run()
		},
		offload.KindCompress: func(_ context.Context, p any) (any, error) {
			data, ok := p.([]byte)
			if !ok {
				return nil, fmt.Errorf("compress: unexpected payload %T", p)
			}
			return filters.FlateEncode(data, compressLevel)
		},
	}
}

// Analyze checks the structure of the loaded file.
func (s *Session) Analyze(ctx context.Context) (xref.Report, error) {
	if err := s.lock(); err != nil {
		return xref.Report{}, err
	}
	data := s.doc.Data
	s.mu.Unlock()

	task := offload.Task{ID: "analyze", Kind: offload.KindAnalyze, Payload: data}
	reply, err := offload.Await(ctx, s.off, task, s.cfg.OffloadTimeout, func(context.Context) (any, error) {
		return xref.ValidateStructure(data), nil
	}, s.log)
	if err != nil {
		return xref.Report{}, err
	}
	rep, ok := reply.Result.(xref.Report)
	if !ok {
		return xref.Report{}, fmt.Errorf("analyze: unexpected result %T", reply.Result)
	}
	return rep, nil
}

// Search finds query in the current runs of pages, or of every page when
// pages is empty.
func (s *Session) Search(ctx context.Context, query string, opts textlayer.SearchOptions, pages []int) ([]textlayer.Match, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	m, err := textlayer.Compile(query, opts)
	if err != nil {
		return nil, err
	}
	var out []textlayer.Match
	for _, n := range s.pageList(pages) {
		found, err := s.search(ctx, n, m)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

func (s *Session) search(ctx context.Context, n int, m *textlayer.Matcher) ([]textlayer.Match, error) {
	st, err := s.page(ctx, n)
	if err != nil {
		return nil, err
	}
	job := searchJob{matcher: m, runs: st.runs}
	task := offload.Task{ID: fmt.Sprintf("search-%d", n), Kind: offload.KindSearch, Payload: job}
	reply, err := offload.Await(ctx, s.off, task, s.cfg.OffloadTimeout, func(context.Context) (any, error) {
		return job.run()
	}, s.log)
	if err != nil {
		return nil, err
	}
	found, _ := reply.Result.([]textlayer.Match)
	return found, nil
}

// BatchReplace replaces every match of query on pages, or on every page
// when pages is empty. Each page with matches becomes one history node.
// A failing replacement script aborts the call; pages already replaced
// stay replaced.
func (s *Session) BatchReplace(ctx context.Context, query string, opts textlayer.SearchOptions, repl Replacement, pages []int) (ReplaceReport, error) {
	if err := s.lock(); err != nil {
		return ReplaceReport{}, err
	}
	defer s.mu.Unlock()
	ctx, span := s.cfg.Tracer.StartSpan(ctx, "session.batch_replace")
	defer span.Finish()

	m, err := textlayer.Compile(query, opts)
	if err != nil {
		return ReplaceReport{}, err
	}
	fn := textlayer.Literal(repl.Text)
	if repl.Script != "" {
		eng, err := s.scripts()
		if err != nil {
			return ReplaceReport{}, err
		}
		if fn, err = eng.Replacer(ctx, repl.Script); err != nil {
			return ReplaceReport{}, err
		}
	}

	var rep ReplaceReport
	for _, n := range s.pageList(pages) {
		found, err := s.search(ctx, n, m)
		if err != nil {
			return rep, err
		}
		if len(found) == 0 {
			continue
		}
		st, err := s.page(ctx, n)
		if err != nil {
			return rep, err
		}
		var muts []editor.Mutation
		for _, run := range st.runs {
			if !hasMatch(found, run.ID) {
				continue
			}
			run := run
			text, count, err := m.Replace(run.Text, func(mt textlayer.Match) (string, error) {
				mt.RunID, mt.Page = run.ID, run.Page
				return fn(mt)
			})
			if err != nil {
				span.SetError(err)
				return rep, fmt.Errorf("page %d: %w", n, err)
			}
			rep.Matches += count
			if text != run.Text {
				muts = append(muts, editor.Mutation{RunID: run.ID, NewText: text})
			}
		}
		if len(muts) == 0 {
			continue
		}
		if _, err := s.mutate(ctx, n, muts); err != nil {
			return rep, err
		}
		rep.Runs += len(muts)
		rep.Pages = append(rep.Pages, n)
	}
	s.log.Info("batch replace",
		observability.String("query", query),
		observability.Int("matches", rep.Matches),
		observability.Int("runs", rep.Runs))
	return rep, nil
}

func hasMatch(found []textlayer.Match, runID string) bool {
	for _, f := range found {
		if f.RunID == runID {
			return true
		}
	}
	return false
}

// pageList returns pages, or every page number when pages is empty.
func (s *Session) pageList(pages []int) []int {
	if len(pages) > 0 {
		return pages
	}
	out := make([]int, len(s.doc.Pages))
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// scripts returns the session's script engine, creating it on first use.
func (s *Session) scripts() (scripting.Engine, error) {
	if s.script != nil {
		return s.script, nil
	}
	eng := scripting.NewEngine(s.log)
	if err := eng.RegisterDocument(docView{s}); err != nil {
		return nil, err
	}
	s.script = eng
	return eng, nil
}

// docView exposes the session to scripts. Scripts only run while the
// session is locked, so it reads session state directly.
type docView struct{ s *Session }

func (d docView) PageCount() int { return len(d.s.doc.Pages) }

func (d docView) PageText(n int) ([]string, error) {
	if n < 1 || n > len(d.s.doc.Pages) {
		return nil, errors.New("page out of range")
	}
	st, err := d.s.page(context.Background(), n)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(st.runs))
	for i, r := range st.runs {
		out[i] = r.Text
	}
	return out, nil
}
