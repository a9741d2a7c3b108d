package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wudi/pdfedit/filters"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/recovery"
	"github.com/wudi/pdfedit/scanner"
	"github.com/wudi/pdfedit/xref"
)

var ErrObjectNotFound = errors.New("object not found")

type Cache interface {
	Get(ref raw.ObjectRef) (raw.Object, bool)
	Put(ref raw.ObjectRef, obj raw.Object)
}

type ObjectLoaderBuilder struct {
	data     []byte
	table    *xref.Table
	maxDepth int
	cache    Cache
	recovery recovery.Strategy
	limits   filters.Limits
}

func (b *ObjectLoaderBuilder) WithData(data []byte) *ObjectLoaderBuilder {
	b.data = data
	return b
}
func (b *ObjectLoaderBuilder) WithXRef(table *xref.Table) *ObjectLoaderBuilder {
	b.table = table
	return b
}
func (b *ObjectLoaderBuilder) WithCache(c Cache) *ObjectLoaderBuilder { b.cache = c; return b }
func (b *ObjectLoaderBuilder) WithRecovery(r recovery.Strategy) *ObjectLoaderBuilder {
	b.recovery = r
	return b
}
func (b *ObjectLoaderBuilder) WithLimits(l filters.Limits) *ObjectLoaderBuilder {
	b.limits = l
	return b
}
func (b *ObjectLoaderBuilder) WithMaxDepth(n int) *ObjectLoaderBuilder {
	b.maxDepth = n
	return b
}

func (b *ObjectLoaderBuilder) Build() (*ObjectLoader, error) {
	if b.data == nil || b.table == nil {
		return nil, errors.New("data and xref table required")
	}
	maxDepth := b.maxDepth
	if maxDepth == 0 {
		maxDepth = 32
	}
	cache := b.cache
	if cache == nil {
		cache = &mapCache{}
	}
	return &ObjectLoader{
		data:     b.data,
		table:    b.table,
		maxDepth: maxDepth,
		cache:    cache,
		recovery: b.recovery,
		pipeline: filters.NewDefaultPipeline(b.limits),
		objstm:   make(map[int]map[int]raw.Object),
	}, nil
}

// ObjectLoader reads indirect objects on demand. It is safe for
// concurrent use.
type ObjectLoader struct {
	data     []byte
	table    *xref.Table
	maxDepth int
	cache    Cache
	recovery recovery.Strategy
	pipeline *filters.Pipeline

	mu       sync.Mutex
	objstm   map[int]map[int]raw.Object
	expanded bool
	loading  map[raw.ObjectRef]bool
}

func (o *ObjectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.load(ctx, ref, 0)
}

func (o *ObjectLoader) load(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error) {
	if depth > o.maxDepth {
		return nil, errors.New("max depth exceeded")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if obj, ok := o.cache.Get(ref); ok {
		return obj, nil
	}
	if o.loading == nil {
		o.loading = make(map[raw.ObjectRef]bool)
	}
	if o.loading[ref] {
		return nil, fmt.Errorf("reference cycle at %v", ref)
	}
	o.loading[ref] = true
	defer delete(o.loading, ref)

	obj, err := o.loadOnce(ctx, ref, depth)
	if err != nil {
		return nil, err
	}
	o.cache.Put(ref, obj)
	return obj, nil
}

func (o *ObjectLoader) loadOnce(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error) {
	if offset, gen, found := o.table.Lookup(ref.Num); found {
		return o.loadAtOffset(ctx, ref.Num, offset, gen, depth)
	}
	if osNum, idx, ok := o.table.ObjStream(ref.Num); ok {
		return o.loadFromObjectStream(ctx, ref, osNum, idx, depth)
	}
	if o.table.Type() == "rebuilt" {
		if err := o.expandObjectStreams(ctx, depth); err != nil {
			return nil, err
		}
		for _, objs := range o.objstm {
			if obj, ok := objs[ref.Num]; ok {
				return obj, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrObjectNotFound, ref)
}

func (o *ObjectLoader) loadAtOffset(ctx context.Context, objNum int, offset int64, gen int, depth int) (raw.Object, error) {
	s := scanner.New(o.data, scanner.Config{Recovery: o.recovery})
	s.SetRecoveryLocation(recovery.Location{ObjectNum: objNum, ObjectGen: gen, Component: "parser"})
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	tokNum, err := s.Next()
	if err != nil {
		return nil, err
	}
	if tokNum.Type != scanner.TokenNumber || !tokNum.IsInt || int(tokNum.Int) != objNum {
		return nil, fmt.Errorf("object %d: header number mismatch at %d", objNum, offset)
	}
	tokGen, err := s.Next()
	if err != nil {
		return nil, err
	}
	if tokGen.Type != scanner.TokenNumber || !tokGen.IsInt {
		return nil, fmt.Errorf("object %d: header generation missing", objNum)
	}
	tokObj, err := s.Next()
	if err != nil {
		return nil, err
	}
	if tokObj.Type != scanner.TokenKeyword || tokObj.Str != "obj" {
		return nil, fmt.Errorf("object %d: expected obj keyword", objNum)
	}
	return s.ReadObject(func(ref raw.ObjectRef) (int64, bool) {
		obj, err := o.load(ctx, ref, depth+1)
		if err != nil {
			return 0, false
		}
		n, ok := obj.(raw.NumberObj)
		return n.Int(), ok
	})
}

func (o *ObjectLoader) loadFromObjectStream(ctx context.Context, ref raw.ObjectRef, streamNum, idx, depth int) (raw.Object, error) {
	objs, err := o.objectStream(ctx, streamNum, depth)
	if err != nil {
		return nil, err
	}
	if obj, ok := objs[ref.Num]; ok {
		return obj, nil
	}
	return nil, fmt.Errorf("%w: %v in object stream %d", ErrObjectNotFound, ref, streamNum)
}

func (o *ObjectLoader) objectStream(ctx context.Context, streamNum, depth int) (map[int]raw.Object, error) {
	if objs, ok := o.objstm[streamNum]; ok {
		return objs, nil
	}
	streamObj, err := o.load(ctx, raw.ObjectRef{Num: streamNum}, depth+1)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
	}
	st, ok := streamObj.(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("object stream %d is not a stream", streamNum)
	}
	objs, err := o.parseObjectStream(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
	}
	o.objstm[streamNum] = objs
	return objs, nil
}

func (o *ObjectLoader) parseObjectStream(ctx context.Context, st *raw.StreamObj) (map[int]raw.Object, error) {
	n, _ := raw.IntValue(raw.Direct, get(st.Dict, "N"))
	first, _ := raw.IntValue(raw.Direct, get(st.Dict, "First"))
	data, err := o.pipeline.DecodeStream(ctx, raw.Direct, st)
	if err != nil {
		return nil, err
	}
	if first < 0 || first > len(data) {
		return nil, errors.New("object stream First exceeds length")
	}
	hs := scanner.New(data[:first], scanner.Config{NoRefs: true})
	var pairs []int
	for len(pairs) < 2*n {
		tok, err := hs.Next()
		if err != nil {
			break
		}
		if tok.Type == scanner.TokenNumber && tok.IsInt {
			pairs = append(pairs, int(tok.Int))
		}
	}
	body := data[first:]
	objs := make(map[int]raw.Object, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		num, off := pairs[i], pairs[i+1]
		if off < 0 || off >= len(body) {
			continue
		}
		bs := scanner.New(body, scanner.Config{Recovery: o.recovery})
		_ = bs.Seek(int64(off))
		obj, err := bs.ReadObject(nil)
		if err != nil {
			if o.recovery == nil {
				return nil, fmt.Errorf("object %d: %w", num, err)
			}
			continue
		}
		objs[num] = obj
	}
	return objs, nil
}

// expandObjectStreams finds every object stream in a rebuilt table so the
// objects they hold become reachable.
func (o *ObjectLoader) expandObjectStreams(ctx context.Context, depth int) error {
	if o.expanded {
		return nil
	}
	o.expanded = true
	for _, num := range o.table.Objects() {
		if _, done := o.objstm[num]; done {
			continue
		}
		obj, err := o.load(ctx, raw.ObjectRef{Num: num}, depth+1)
		if err != nil {
			continue
		}
		st, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		if typ, _ := raw.NameValue(raw.Direct, get(st.Dict, "Type")); typ != "ObjStm" {
			continue
		}
		if _, err := o.objectStream(ctx, num, depth); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// Resolver returns a raw.Resolver bound to ctx. Unresolvable references
// resolve to null, as PDF readers are required to treat them.
func (o *ObjectLoader) Resolver(ctx context.Context) raw.Resolver {
	return raw.ResolverFunc(func(obj raw.Object) raw.Object {
		for i := 0; i < o.maxDepth; i++ {
			ref, ok := obj.(raw.RefObj)
			if !ok {
				return obj
			}
			loaded, err := o.Load(ctx, ref.R)
			if err != nil {
				return raw.NullObj{}
			}
			obj = loaded
		}
		return raw.NullObj{}
	})
}

type mapCache struct {
	mu sync.Mutex
	m  map[raw.ObjectRef]raw.Object
}

func (c *mapCache) Get(ref raw.ObjectRef) (raw.Object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[ref]
	return v, ok
}

func (c *mapCache) Put(ref raw.ObjectRef, obj raw.Object) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[raw.ObjectRef]raw.Object)
	}
	c.m[ref] = obj
}

func get(d *raw.DictObj, key string) raw.Object {
	if v, ok := d.Get(key); ok {
		return v
	}
	return raw.NullObj{}
}
