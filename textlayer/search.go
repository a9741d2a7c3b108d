package textlayer

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/unicode/norm"
)

// SearchOptions controls how a query matches run text.
type SearchOptions struct {
	// Regex treats the query as a regular expression with JavaScript-like
	// syntax (lookarounds and backreferences are supported).
	Regex         bool
	CaseSensitive bool
	// WholeWords rejects matches that start or end inside a word.
	WholeWords bool
}

// Match is one occurrence of a query. Start and End are rune offsets into
// the NFC-normalized run text.
type Match struct {
	RunID  string
	Page   int
	Start  int
	End    int
	Text   string
	Groups []string
}

const matchTimeout = time.Second

// Matcher finds a compiled query in text.
type Matcher struct {
	re    *regexp2.Regexp
	whole bool
}

// Compile prepares query for repeated matching. The query is normalized
// the same way run text is.
func Compile(query string, opts SearchOptions) (*Matcher, error) {
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	pattern := norm.NFC.String(query)
	if !opts.Regex {
		pattern = regexp2.Escape(pattern)
	}
	var flags regexp2.RegexOptions
	if !opts.CaseSensitive {
		flags |= regexp2.IgnoreCase
	}
	re, err := regexp2.Compile(pattern, flags)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	re.MatchTimeout = matchTimeout
	return &Matcher{re: re, whole: opts.WholeWords}, nil
}

// FindAll returns the non-empty matches in the normalized form of text.
func (m *Matcher) FindAll(text string) ([]Match, error) {
	runes := []rune(norm.NFC.String(text))
	var out []Match
	match, err := m.re.FindRunesMatch(runes)
	for ; match != nil && err == nil; match, err = m.re.FindNextMatch(match) {
		start, end := match.Index, match.Index+match.Length
		if start == end || (m.whole && !wordBounded(runes, start, end)) {
			continue
		}
		mt := Match{Start: start, End: end, Text: match.String()}
		for _, g := range match.Groups()[1:] {
			mt.Groups = append(mt.Groups, g.String())
		}
		out = append(out, mt)
	}
	if err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}
	return out, nil
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || r == '_'
}

func wordBounded(runes []rune, start, end int) bool {
	if start > 0 && isWordRune(runes[start-1]) && isWordRune(runes[start]) {
		return false
	}
	if end < len(runes) && isWordRune(runes[end-1]) && isWordRune(runes[end]) {
		return false
	}
	return true
}

// Search finds query in every run.
func Search(runs []TextRun, query string, opts SearchOptions) ([]Match, error) {
	m, err := Compile(query, opts)
	if err != nil {
		return nil, err
	}
	var out []Match
	for _, r := range runs {
		found, err := m.FindAll(r.Text)
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

// ReplaceFunc computes the replacement for one match.
type ReplaceFunc func(Match) (string, error)

// Replace substitutes every match in the normalized form of text and
// reports how many matches were replaced.
func (m *Matcher) Replace(text string, repl ReplaceFunc) (string, int, error) {
	found, err := m.FindAll(text)
	if err != nil || len(found) == 0 {
		return text, 0, err
	}
	runes := []rune(norm.NFC.String(text))
	var b strings.Builder
	last := 0
	for _, f := range found {
		s, err := repl(f)
		if err != nil {
			return text, 0, err
		}
		b.WriteString(string(runes[last:f.Start]))
		b.WriteString(s)
		last = f.End
	}
	b.WriteString(string(runes[last:]))
	return b.String(), len(found), nil
}

// Literal replaces every match with s.
func Literal(s string) ReplaceFunc {
	return func(Match) (string, error) { return s, nil }
}
