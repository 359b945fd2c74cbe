package docstore

import (
	"fmt"
	"sort"
)

// Operators accepted by Query.Where.
const (
	OpEqual          = "=="
	OpNotEqual       = "!="
	OpLess           = "<"
	OpLessOrEqual    = "<="
	OpGreater        = ">"
	OpGreaterOrEqual = ">="
)

// Direction orders query results.
type Direction int

const (
	Asc Direction = iota
	Desc
)

type filter struct {
	field string
	op    string
	value any
}

type order struct {
	field string
	dir   Direction
}

// Query selects documents of one collection. Queries are immutable values;
// every builder method returns a copy.
type Query struct {
	Collection string
	filters    []filter
	orders     []order
	limit      int
	err        error
}

// NewQuery starts a query over collection.
func NewQuery(collection string) Query {
	return Query{Collection: collection}
}

// Where adds a filter. A document lacking field never matches.
func (q Query) Where(field, op string, value any) Query {
	out := q.clone()
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
	default:
		if out.err == nil {
			out.err = fmt.Errorf("%w: unknown operator %q", ErrInvalidValue, op)
		}
		return out
	}
	nv, err := normalizeValue(value)
	if err != nil && out.err == nil {
		out.err = fmt.Errorf("where %s: %w", field, err)
	}
	out.filters = append(out.filters, filter{field: field, op: op, value: nv})
	return out
}

// OrderBy adds a sort key. A document lacking field is excluded.
func (q Query) OrderBy(field string, dir Direction) Query {
	out := q.clone()
	out.orders = append(out.orders, order{field: field, dir: dir})
	return out
}

// Limit caps the result size. Zero means unbounded.
func (q Query) Limit(n int) Query {
	out := q.clone()
	out.limit = n
	return out
}

// Err reports a builder error such as an unknown operator.
func (q Query) Err() error {
	return q.err
}

func (q Query) clone() Query {
	out := q
	out.filters = append([]filter(nil), q.filters...)
	out.orders = append([]order(nil), q.orders...)
	return out
}

// stringEqualities returns the == filters whose value is a string.
func (q Query) stringEqualities() []filter {
	var out []filter
	for _, f := range q.filters {
		if _, ok := f.value.(string); ok && f.op == OpEqual {
			out = append(out, f)
		}
	}
	return out
}

func (q Query) matches(data Fields) bool {
	for _, f := range q.filters {
		v, ok := data[f.field]
		if !ok {
			return false
		}
		c := compareValues(v, f.value)
		switch f.op {
		case OpEqual:
			if c != 0 {
				return false
			}
		case OpNotEqual:
			if c == 0 {
				return false
			}
		case OpLess:
			if c >= 0 {
				return false
			}
		case OpLessOrEqual:
			if c > 0 {
				return false
			}
		case OpGreater:
			if c <= 0 {
				return false
			}
		case OpGreaterOrEqual:
			if c < 0 {
				return false
			}
		}
	}
	for _, o := range q.orders {
		if _, ok := data[o.field]; !ok {
			return false
		}
	}
	return true
}

// apply filters, orders and limits docs. Ties on every order key break by id.
func (q Query) apply(docs []*Snapshot) []*Snapshot {
	out := make([]*Snapshot, 0, len(docs))
	for _, d := range docs {
		if d.Exists && q.matches(d.Data) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range q.orders {
			c := compareValues(out[i].Data[o.field], out[j].Data[o.field])
			if c == 0 {
				continue
			}
			if o.dir == Desc {
				return c > 0
			}
			return c < 0
		}
		return out[i].Ref.ID < out[j].Ref.ID
	})
	if q.limit > 0 && len(out) > q.limit {
		out = out[:q.limit]
	}
	return out
}
