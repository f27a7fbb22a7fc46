package endpoint

import "fmt"

// Params is the type-erased resolver parameter container. It holds at most
// one concrete value, chosen by whoever wires the pipeline, and only the
// resolver knows its type.
type Params struct {
	value any
}

func NewParams(v any) Params {
	return Params{value: v}
}

func (p Params) IsEmpty() bool { return p.value == nil }

// TypeName names the dynamic type held, for diagnostics.
func (p Params) TypeName() string {
	if p.value == nil {
		return "<none>"
	}
	return fmt.Sprintf("%T", p.value)
}

// ParamsAs extracts the held value as T. ok is false when p is empty or holds
// a different type.
func ParamsAs[T any](p Params) (T, bool) {
	v, ok := p.value.(T)
	return v, ok
}
