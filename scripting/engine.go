// Package scripting runs user-supplied JavaScript, chiefly replacement
// functions for batch search and replace.
package scripting

import (
	"context"

	"github.com/wudi/pdfedit/textlayer"
)

// Engine represents a scripting engine (e.g., JavaScript). Engines are not
// safe for concurrent use.
type Engine interface {
	// Execute executes a script and returns its completion value.
	Execute(ctx context.Context, script string) (interface{}, error)

	// Replacer compiles a function expression into a replacement function.
	// The function is called as fn(match, page, groups, info) where match is
	// the matched text, page the 1-based page number, groups the capture
	// groups and info an object with runId, start and end. Its result is
	// converted to a string.
	Replacer(ctx context.Context, source string) (textlayer.ReplaceFunc, error)

	// RegisterDocument exposes the open document to scripts as the global
	// doc, with the methods pageCount() and pageText(n).
	RegisterDocument(doc Document) error
}

// Document is the read-only view of a document scripts see.
type Document interface {
	PageCount() int
	// PageText returns the text of every run on page n.
	PageText(n int) ([]string, error)
}
