package transform

// Violation is a cell holding a value outside its column's declared bounds.
type Violation struct {
	Row    int
	Column string
	Value  int64
	Min    int64
	Max    int64
}

// Violations lists every bounded cell of f outside the range declared by s.
func Violations(s Schema, f *Frame) []Violation {
	var out []Violation
	for _, c := range s.Fields {
		if !c.bounded() {
			continue
		}
		idx := f.Index(c.Name)
		if idx < 0 {
			continue
		}
		for r, row := range f.Rows {
			n, ok := row[idx].(int64)
			if !ok {
				continue
			}
			if n < c.Min || n > c.Max {
				out = append(out, Violation{Row: r, Column: c.Name, Value: n, Min: c.Min, Max: c.Max})
			}
		}
	}
	return out
}
