// Package parser loads a PDF into a Document: it reads the structure via
// xref, resolves objects lazily and flattens the page tree with inherited
// attributes applied.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/filters"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/recovery"
	"github.com/wudi/pdfedit/xref"
)

type Config struct {
	// Recovery decides whether a missing or broken cross-reference table
	// fails the load or degrades to a rebuilt table. Nil fails.
	Recovery    recovery.Strategy
	MaxIndirect int
	Limits      filters.Limits
	Cache       Cache
	Logger      observability.Logger
	Tracer      observability.Tracer
}

// Document is a loaded file. Objects are read from Data on demand.
type Document struct {
	Data     []byte
	Header   xref.Header
	XRef     *xref.Table
	Trailer  *raw.DictObj
	Catalog  *raw.DictObj
	Pages    []*Page
	Degraded bool
	Warnings []string

	loader *ObjectLoader
}

// Box is a PDF rectangle [llx lly urx ury] in default user space.
type Box struct{ LLX, LLY, URX, URY float64 }

func (b Box) Width() float64  { return b.URX - b.LLX }
func (b Box) Height() float64 { return b.URY - b.LLY }

// Page is a leaf of the page tree with inheritable attributes resolved.
type Page struct {
	Number    int
	Ref       raw.ObjectRef
	Dict      *raw.DictObj
	MediaBox  Box
	CropBox   Box
	Rotate    int
	Resources *raw.DictObj
}

// Geometry returns the matrix from user space to the displayed page's
// document space together with the displayed size. The crop box is the
// visible area.
func (p *Page) Geometry() (coords.Matrix, float64, float64) {
	b := p.CropBox
	return coords.PageTransform(b.LLX, b.LLY, b.URX, b.URY, p.Rotate)
}

// Open parses data. Structural problems return *StructuralError, encrypted
// files return *EncryptedError.
func Open(ctx context.Context, data []byte, cfg Config) (*Document, error) {
	log := observability.OrNop(cfg.Logger)
	ctx, span := observability.TracerOrNop(cfg.Tracer).StartSpan(ctx, "parser.open")
	defer span.Finish()
	start := time.Now()

	header, ok := xref.ParseHeader(data)
	if !ok {
		err := &StructuralError{Reason: "missing or invalid PDF header"}
		span.SetError(err)
		return nil, err
	}
	resolver := xref.NewResolver(xref.ResolverConfig{Recovery: cfg.Recovery, Logger: log})
	table, err := resolver.Resolve(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		serr := &StructuralError{Reason: "unreadable cross-reference table", Err: err}
		span.SetError(serr)
		return nil, serr
	}

	loader, err := (&ObjectLoaderBuilder{}).
		WithData(data).
		WithXRef(table).
		WithCache(cfg.Cache).
		WithRecovery(cfg.Recovery).
		WithLimits(cfg.Limits).
		WithMaxDepth(cfg.MaxIndirect).
		Build()
	if err != nil {
		return nil, err
	}
	doc := &Document{
		Data:     data,
		Header:   header,
		XRef:     table,
		Trailer:  table.Trailer,
		Degraded: resolver.Degraded(),
		loader:   loader,
	}
	if doc.Degraded {
		doc.Warnings = append(doc.Warnings, "cross-reference table rebuilt from object headers")
	}

	if enc, ok := doc.Trailer.Get("Encrypt"); ok {
		if _, null := enc.(raw.NullObj); !null {
			e := &EncryptedError{}
			if d, ok := raw.DictValue(doc, enc); ok {
				e.Filter, _ = raw.NameValue(doc, get(d, "Filter"))
				e.Version, _ = raw.IntValue(doc, get(d, "V"))
			}
			span.SetError(e)
			return nil, e
		}
	}

	catalog, ok := raw.DictValue(doc, get(doc.Trailer, "Root"))
	if !ok {
		serr := &StructuralError{Reason: "document catalog missing"}
		span.SetError(serr)
		return nil, serr
	}
	doc.Catalog = catalog
	if err := doc.collectPages(ctx); err != nil {
		serr := &StructuralError{Reason: "page tree", Err: err}
		span.SetError(serr)
		return nil, serr
	}
	span.SetTag(observability.MetricPageCount, len(doc.Pages))
	log.Debug("document loaded",
		observability.String("version", header.Version),
		observability.Int("pages", len(doc.Pages)),
		observability.Bool("degraded", doc.Degraded),
		observability.Duration("took", time.Since(start)),
	)
	return doc, nil
}

// Resolve implements raw.Resolver. Unresolvable references become null.
func (d *Document) Resolve(obj raw.Object) raw.Object {
	return d.loader.Resolver(context.Background()).Resolve(obj)
}

// Object loads one indirect object.
func (d *Document) Object(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	return d.loader.Load(ctx, ref)
}

// Page returns the 1-based page n.
func (d *Document) Page(n int) (*Page, error) {
	if n < 1 || n > len(d.Pages) {
		return nil, fmt.Errorf("page %d out of range [1, %d]", n, len(d.Pages))
	}
	return d.Pages[n-1], nil
}

// DecodeStream returns the filtered payload of s.
func (d *Document) DecodeStream(ctx context.Context, s *raw.StreamObj) ([]byte, error) {
	return d.loader.pipeline.DecodeStream(ctx, d, s)
}

// Contents concatenates the page's content streams, separated by
// whitespace so operators never fuse across stream boundaries.
func (d *Document) Contents(ctx context.Context, p *Page) ([]byte, error) {
	obj, ok := raw.Lookup(d, p.Dict, "Contents")
	if !ok {
		return nil, nil
	}
	var streams []*raw.StreamObj
	switch v := obj.(type) {
	case *raw.StreamObj:
		streams = append(streams, v)
	case *raw.ArrayObj:
		for _, item := range v.Items {
			if s, ok := raw.StreamValue(d, item); ok {
				streams = append(streams, s)
			}
		}
	default:
		return nil, fmt.Errorf("page %d: unexpected /Contents %s", p.Number, obj.Type())
	}
	var out bytes.Buffer
	for i, s := range streams {
		data, err := d.DecodeStream(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("page %d content stream %d: %w", p.Number, i, err)
		}
		if i > 0 {
			out.WriteByte('\n')
		}
		out.Write(data)
	}
	return out.Bytes(), nil
}

type inherited struct {
	resources *raw.DictObj
	mediaBox  *Box
	cropBox   *Box
	rotate    *int
}

func (d *Document) collectPages(ctx context.Context) error {
	rootRef, isRef := get(d.Catalog, "Pages").(raw.RefObj)
	root, ok := raw.DictValue(d, get(d.Catalog, "Pages"))
	if !ok {
		return errors.New("catalog has no /Pages")
	}
	visited := map[raw.ObjectRef]bool{}
	var walk func(node *raw.DictObj, ref raw.ObjectRef, inh inherited, depth int) error
	walk = func(node *raw.DictObj, ref raw.ObjectRef, inh inherited, depth int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if depth > 64 {
			return errors.New("page tree too deep")
		}
		if r, ok := raw.DictValue(d, get(node, "Resources")); ok {
			inh.resources = r
		}
		if b, ok := d.box(node, "MediaBox"); ok {
			inh.mediaBox = &b
		}
		if b, ok := d.box(node, "CropBox"); ok {
			inh.cropBox = &b
		}
		if r, ok := raw.IntValue(d, get(node, "Rotate")); ok {
			inh.rotate = &r
		}
		typ, _ := raw.NameValue(d, get(node, "Type"))
		kids, hasKids := raw.ArrayValue(d, get(node, "Kids"))
		if typ == "Page" || (!hasKids && typ != "Pages") {
			d.Pages = append(d.Pages, d.newPage(node, ref, inh))
			return nil
		}
		for _, kid := range kids.Items {
			kidRef, isRef := kid.(raw.RefObj)
			if isRef {
				if visited[kidRef.R] {
					d.Warnings = append(d.Warnings, fmt.Sprintf("page tree cycle at %v", kidRef.R))
					continue
				}
				visited[kidRef.R] = true
			}
			kd, ok := raw.DictValue(d, kid)
			if !ok {
				d.Warnings = append(d.Warnings, fmt.Sprintf("unresolvable page tree node %v", kid))
				continue
			}
			if err := walk(kd, kidRef.R, inh, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if isRef {
		visited[rootRef.R] = true
	}
	return walk(root, rootRef.R, inherited{}, 0)
}

var letter = Box{0, 0, 612, 792}

func (d *Document) newPage(node *raw.DictObj, ref raw.ObjectRef, inh inherited) *Page {
	p := &Page{Number: len(d.Pages) + 1, Ref: ref, Dict: node, MediaBox: letter, Resources: inh.resources}
	if inh.mediaBox != nil {
		p.MediaBox = *inh.mediaBox
	}
	p.CropBox = p.MediaBox
	if inh.cropBox != nil {
		p.CropBox = *inh.cropBox
	}
	if inh.rotate != nil {
		p.Rotate = ((*inh.rotate % 360) + 360) % 360
	}
	if p.Resources == nil {
		p.Resources = raw.Dict()
	}
	return p
}

func (d *Document) box(node *raw.DictObj, key string) (Box, bool) {
	v, ok := raw.Floats(d, get(node, key))
	if !ok || len(v) != 4 {
		return Box{}, false
	}
	b := Box{LLX: v[0], LLY: v[1], URX: v[2], URY: v[3]}
	if b.LLX > b.URX {
		b.LLX, b.URX = b.URX, b.LLX
	}
	if b.LLY > b.URY {
		b.LLY, b.URY = b.URY, b.LLY
	}
	return b, true
}
