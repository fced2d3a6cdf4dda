package vectorstore

import "fmt"

// FilterOp is a metadata filter operator. The store's filter language
// supports equality and set membership only; there are no range or
// full-text operators.
type FilterOp string

const (
	FilterEq  FilterOp = "$eq"
	FilterNe  FilterOp = "$ne"
	FilterIn  FilterOp = "$in"
	FilterNin FilterOp = "$nin"
)

// Condition is a single field predicate.
type Condition struct {
	Field  string
	Op     FilterOp
	Value  any      // for $eq / $ne
	Values []string // for $in / $nin
}

// Filter is a conjunction of conditions. All conditions must match.
type Filter struct {
	Conditions []Condition
}

// Eq matches records whose field equals value.
func Eq(field string, value any) *Filter {
	return &Filter{Conditions: []Condition{{Field: field, Op: FilterEq, Value: value}}}
}

// Ne matches records whose field does not equal value.
func Ne(field string, value any) *Filter {
	return &Filter{Conditions: []Condition{{Field: field, Op: FilterNe, Value: value}}}
}

// In matches records whose field is one of values.
func In(field string, values ...string) *Filter {
	return &Filter{Conditions: []Condition{{Field: field, Op: FilterIn, Values: values}}}
}

// Nin matches records whose field is none of values.
func Nin(field string, values ...string) *Filter {
	return &Filter{Conditions: []Condition{{Field: field, Op: FilterNin, Values: values}}}
}

// And returns a filter combining the receiver's conditions with other's.
func (f *Filter) And(other *Filter) *Filter {
	if f == nil {
		return other
	}
	if other == nil {
		return f
	}
	combined := make([]Condition, 0, len(f.Conditions)+len(other.Conditions))
	combined = append(combined, f.Conditions...)
	combined = append(combined, other.Conditions...)
	return &Filter{Conditions: combined}
}

// Validate checks operator/operand pairing and value types.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	for _, c := range f.Conditions {
		if c.Field == "" {
			return &ValidationError{Field: "filter", Reason: "condition field is required"}
		}
		switch c.Op {
		case FilterEq, FilterNe:
			switch c.Value.(type) {
			case string, bool, int, int64:
			default:
				return &ValidationError{
					Field:  c.Field,
					Reason: fmt.Sprintf("%s requires a string, bool or integer value, got %T", c.Op, c.Value),
				}
			}
		case FilterIn, FilterNin:
			if len(c.Values) == 0 {
				return &ValidationError{Field: c.Field, Reason: fmt.Sprintf("%s requires at least one value", c.Op)}
			}
		default:
			return &ValidationError{Field: c.Field, Reason: fmt.Sprintf("unsupported filter operator %q", c.Op)}
		}
	}
	return nil
}
