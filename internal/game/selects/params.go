package selects

// Params holds the values chosen for each slot of an action.
type Params map[string][]any

// Values returns the values of a slot that have type T.
func Values[T any](p Params, name string) []T {
	var out []T
	for _, v := range p[name] {
		if typed, ok := v.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

// One returns the first value of a slot with type T.
func One[T any](p Params, name string) (T, bool) {
	for _, v := range p[name] {
		if typed, ok := v.(T); ok {
			return typed, true
		}
	}
	var zero T
	return zero, false
}

// Clone copies the slot lists.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for name, values := range p {
		out[name] = append([]any(nil), values...)
	}
	return out
}
