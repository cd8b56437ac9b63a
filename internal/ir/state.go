package ir

// State maps each Base to its current Value at one program point.
//
// A State is never changed after it is built. With returns a fresh copy,
// so the states of two branches leaving the same block never alias.
// The zero State is empty and ready to use.
type State struct {
	m map[Base]*Value
}

// Get returns the value of b, if any.
func (s State) Get(b Base) (*Value, bool) {
	v, ok := s.m[b]
	return v, ok
}

// With returns a copy of s where b holds v.
func (s State) With(b Base, v *Value) State {
	m := s.clone(1)
	m[b] = v
	return State{m: m}
}

// Extend returns a copy of s where each value is bound at its own Base.
func (s State) Extend(values ...*Value) State {
	m := s.clone(len(values))
	for _, v := range values {
		m[v.Base] = v
	}
	return State{m: m}
}

func (s State) clone(extra int) map[Base]*Value {
	m := make(map[Base]*Value, len(s.m)+extra)
	for k, v := range s.m {
		m[k] = v
	}
	return m
}

// Len returns the number of bound bases.
func (s State) Len() int { return len(s.m) }

// Bases returns the bound bases in Less order.
func (s State) Bases() []Base {
	out := make([]Base, 0, len(s.m))
	for b := range s.m {
		out = append(out, b)
	}
	SortBases(out)
	return out
}

// Equal reports whether s and o bind the same bases to the same values.
func (s State) Equal(o State) bool {
	if len(s.m) != len(o.m) {
		return false
	}
	for b, v := range s.m {
		if o.m[b] != v {
			return false
		}
	}
	return true
}

func (s State) String() string {
	out := "{"
	for i, b := range s.Bases() {
		if i > 0 {
			out += ", "
		}
		out += b.String() + ": " + s.m[b].Name()
	}
	return out + "}"
}
