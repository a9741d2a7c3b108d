// Package raw holds the untyped PDF object model shared by the loader,
// the content stream interpreter and the incremental writer.
package raw

import "fmt"

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// Resolver dereferences indirect references. Implementations return the
// object unchanged when it is not a reference.
type Resolver interface {
	Resolve(obj Object) Object
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(Object) Object

func (f ResolverFunc) Resolve(obj Object) Object { return f(obj) }

// Direct is a Resolver that never follows references.
var Direct Resolver = ResolverFunc(func(o Object) Object { return o })
