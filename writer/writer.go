// Package writer serializes object graphs to PDF files, either as a complete
// file or as an incremental update appended to an existing one.
package writer

import (
	"context"

	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/observability"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF17 PDFVersion = "1.7"
)

type Config struct {
	Version PDFVersion
	// Compression is the flate level applied to streams that carry no
	// /Filter yet. Zero leaves streams as they are.
	Compression int
	// XRefStreams writes cross-reference streams instead of tables.
	XRefStreams bool
	Logger      observability.Logger
}

func (c Config) withDefaults() Config {
	if c.Version == "" {
		c.Version = PDF17
	}
	c.Logger = observability.OrNop(c.Logger)
	return c
}

// Interceptor observes every object as it is written.
type Interceptor interface {
	BeforeWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object) error
	AfterWrite(ctx context.Context, ref raw.ObjectRef, bytesWritten int64) error
}

type WriterBuilder struct{ interceptors []Interceptor }

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}

func (b *WriterBuilder) Build() *Writer { return &Writer{interceptors: b.interceptors} }

// Writer renders files. The zero value is ready to use.
type Writer struct{ interceptors []Interceptor }

// File is a complete object graph rooted at a catalog.
type File struct {
	Objects map[raw.ObjectRef]raw.Object
	Root    raw.ObjectRef
	Info    *raw.ObjectRef
}

// Update is a set of new or replaced objects appended after an existing
// file. Prev describes the file being extended.
type Update struct {
	Base    []byte
	Prev    PrevSection
	Objects map[raw.ObjectRef]raw.Object
	// Root replaces the catalog reference when non-nil.
	Root *raw.ObjectRef
}

// PrevSection summarizes the newest cross-reference section of the file
// an update extends.
type PrevSection struct {
	// StartXRef is the offset of the newest section, or 0 when the table
	// was rebuilt and no usable section exists.
	StartXRef int64
	Trailer   *raw.DictObj
	Size      int
	// Stream reports whether the newest section is an xref stream.
	Stream bool
	// Entries must be set when StartXRef is 0: they are re-emitted so the
	// updated file has a complete table.
	Entries []Entry
}

// Entry mirrors a cross-reference entry of the base file.
type Entry struct {
	Num         int
	Gen         int
	Offset      int64
	InUse       bool
	Compressed  bool
	StreamNum   int
	StreamIndex int
}
