package mi

import "strconv"

// Value is an MI value: Const, Tuple or *List.
type Value interface {
	isValue()
}

// Const is a C-string constant, already unescaped.
type Const string

// Result is a name=value pair.
type Result struct {
	Name  string
	Value Value
}

// Tuple is an ordered set of results. Names may repeat.
type Tuple []Result

// List is either a list of values or a list of results. At most one of
// Values and Results is non-empty.
type List struct {
	Values  []Value
	Results []Result
}

func (Const) isValue() {}
func (Tuple) isValue() {}
func (*List) isValue() {}

// Get returns the first value named name.
func (t Tuple) Get(name string) (Value, bool) {
	for _, r := range t {
		if r.Name == name {
			return r.Value, true
		}
	}
	return nil, false
}

// String returns the constant named name, or "".
func (t Tuple) String(name string) string {
	v, _ := t.Get(name)
	if c, ok := v.(Const); ok {
		return string(c)
	}
	return ""
}

// Int returns the constant named name as an int.
func (t Tuple) Int(name string) (int, bool) {
	s := t.String(name)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Tuple returns the tuple named name.
func (t Tuple) Tuple(name string) Tuple {
	v, _ := t.Get(name)
	if tt, ok := v.(Tuple); ok {
		return tt
	}
	return nil
}

// List returns the list named name.
func (t Tuple) List(name string) *List {
	v, _ := t.Get(name)
	if l, ok := v.(*List); ok {
		return l
	}
	return nil
}

// Len returns the number of elements.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Values) + len(l.Results)
}

// Tuples returns the elements that are tuples, whether the list holds
// values or results. gdb writes frame lists as [frame={...},...] and
// thread lists as [{...},...]; both come back as tuples.
func (l *List) Tuples() []Tuple {
	if l == nil {
		return nil
	}
	var out []Tuple
	for _, v := range l.Values {
		if t, ok := v.(Tuple); ok {
			out = append(out, t)
		}
	}
	for _, r := range l.Results {
		if t, ok := r.Value.(Tuple); ok {
			out = append(out, t)
		}
	}
	return out
}

// Strings returns the constant elements.
func (l *List) Strings() []string {
	if l == nil {
		return nil
	}
	var out []string
	for _, v := range l.Values {
		if c, ok := v.(Const); ok {
			out = append(out, string(c))
		}
	}
	for _, r := range l.Results {
		if c, ok := r.Value.(Const); ok {
			out = append(out, string(c))
		}
	}
	return out
}
