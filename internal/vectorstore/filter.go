package vectorstore

import (
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// RangeBound is an inclusive numeric range; nil ends are unbounded.
type RangeBound struct {
	GTE *float64
	LTE *float64
}

// Condition constrains one payload field: either an equality Match or a
// numeric Range, never both.
type Condition struct {
	Field string
	Match any
	Range *RangeBound
}

// Filter is a conjunction of conditions over point payloads.
type Filter struct {
	Conditions []Condition
}

// MatchField is a convenience constructor for a single equality filter.
func MatchField(field string, value any) *Filter {
	return &Filter{Conditions: []Condition{{Field: field, Match: value}}}
}

// And appends an equality condition and returns the filter for chaining.
func (f *Filter) And(field string, value any) *Filter {
	f.Conditions = append(f.Conditions, Condition{Field: field, Match: value})
	return f
}

// AndRange appends a range condition and returns the filter for chaining.
func (f *Filter) AndRange(field string, gte, lte *float64) *Filter {
	f.Conditions = append(f.Conditions, Condition{Field: field, Range: &RangeBound{GTE: gte, LTE: lte}})
	return f
}

// toQdrant lowers the filter into qdrant conditions. A nil or empty filter
// lowers to nil, meaning unfiltered.
func (f *Filter) toQdrant() (*qdrant.Filter, error) {
	if f == nil || len(f.Conditions) == 0 {
		return nil, nil
	}

	must := make([]*qdrant.Condition, 0, len(f.Conditions))
	for _, c := range f.Conditions {
		cond, err := c.toQdrant()
		if err != nil {
			return nil, err
		}
		must = append(must, cond)
	}

	return &qdrant.Filter{Must: must}, nil
}

func (c Condition) toQdrant() (*qdrant.Condition, error) {
	if c.Range != nil {
		return qdrant.NewRange(c.Field, &qdrant.Range{
			Gte: c.Range.GTE,
			Lte: c.Range.LTE,
		}), nil
	}

	switch v := c.Match.(type) {
	case string:
		return qdrant.NewMatch(c.Field, v), nil
	case int:
		return qdrant.NewMatchInt(c.Field, int64(v)), nil
	case int64:
		return qdrant.NewMatchInt(c.Field, v), nil
	case bool:
		return qdrant.NewMatchBool(c.Field, v), nil
	default:
		return nil, fmt.Errorf("unsupported match value type %T for field %q", c.Match, c.Field)
	}
}
