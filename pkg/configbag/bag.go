// Package configbag is a layered, type-keyed store used to pass values
// between the stages of a single request pipeline.
//
// A client builds one shared layer (resolver, defaults), freezes it, and every
// request attempt opens its own child layer on top. Reads fall through to the
// parent; writes always land in the child, so shared state is never mutated by
// a request.
package configbag

import "fmt"

// key is a zero-size, per-type map key. Two values of key[T] compare equal
// exactly when their T is identical.
type key[T any] struct{}

type Bag struct {
	name   string
	parent *Bag
	values map[any]any
	frozen bool
}

// New returns an empty root layer.
func New(name string) *Bag {
	return &Bag{name: name, values: map[any]any{}}
}

// Layer returns a child scope reading through to b.
func (b *Bag) Layer(name string) *Bag {
	return &Bag{name: name, parent: b, values: map[any]any{}}
}

// Freeze makes b read-only. A frozen layer can be shared by concurrent requests.
func (b *Bag) Freeze() *Bag {
	b.frozen = true
	return b
}

func (b *Bag) Frozen() bool { return b != nil && b.frozen }

func (b *Bag) Name() string {
	if b == nil {
		return ""
	}
	return b.name
}

func (b *Bag) String() string {
	if b == nil {
		return "configbag(<nil>)"
	}
	depth := 0
	for p := b.parent; p != nil; p = p.parent {
		depth++
	}
	return fmt.Sprintf("configbag(%s depth=%d entries=%d)", b.name, depth, len(b.values))
}

// Put stores v in the top layer of b, replacing any value of the same type in
// that layer. Values in parent layers are shadowed, not modified.
func Put[T any](b *Bag, v T) {
	if b.frozen {
		panic(fmt.Sprintf("configbag: put %T on frozen layer %q", v, b.name))
	}
	b.values[key[T]{}] = v
}

// Get returns the nearest value of type T, searching from b towards the root.
func Get[T any](b *Bag) (T, bool) {
	for l := b; l != nil; l = l.parent {
		if raw, ok := l.values[key[T]{}]; ok {
			v, ok := raw.(T)
			return v, ok
		}
	}
	var zero T
	return zero, false
}

// MustGet is Get for values the pipeline cannot run without.
func MustGet[T any](b *Bag) T {
	v, ok := Get[T](b)
	if !ok {
		var zero T
		panic(fmt.Sprintf("configbag: no %T in %s", zero, b))
	}
	return v
}

// Remove deletes T from the top layer only; a parent value becomes visible again.
func Remove[T any](b *Bag) {
	if b.frozen {
		var zero T
		panic(fmt.Sprintf("configbag: remove %T on frozen layer %q", zero, b.name))
	}
	delete(b.values, key[T]{})
}
