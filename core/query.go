package core

import (
	"fmt"
	"strings"
)

// Operator is the comparison applied by a Criterion.
type Operator string

const (
	OpEqual    Operator = "="
	OpNotEqual Operator = "!="
	OpIn       Operator = "in"
	OpLike     Operator = "like"
	OpContains Operator = "contains"
)

var validOperators = map[Operator]struct{}{
	OpEqual:    {},
	OpNotEqual: {},
	OpIn:       {},
	OpLike:     {},
	OpContains: {},
}

// Criterion is one filter clause. Left is a column name or a dotted path into
// a JSON payload column (for example "claims.person.name").
type Criterion struct {
	Left     string
	Operator Operator
	Right    any
}

func NewCriterion(left string, op Operator, right any) Criterion {
	return Criterion{Left: strings.TrimSpace(left), Operator: Operator(strings.ToLower(strings.TrimSpace(string(op)))), Right: right}
}

func (c Criterion) Validate() error {
	if c.Left == "" {
		return fmt.Errorf("%w: criterion left operand is required", ErrInvalidFilter)
	}
	if _, ok := validOperators[c.Operator]; !ok {
		return fmt.Errorf("%w: unsupported operator %q", ErrInvalidFilter, string(c.Operator))
	}
	if c.Operator == OpIn {
		switch c.Right.(type) {
		case []any, []string, []int, []int64:
		default:
			return fmt.Errorf("%w: operator \"in\" requires a list operand", ErrInvalidFilter)
		}
	}
	return nil
}

// SortOrder direction for QuerySpec.
type SortOrder string

const (
	SortAscending  SortOrder = "ASC"
	SortDescending SortOrder = "DESC"
)

// QuerySpec describes a read-only query: filters, sort, and a page window.
// It never interacts with leases.
type QuerySpec struct {
	Criteria  []Criterion
	SortField string
	SortOrder SortOrder
	Offset    int
	Limit     int
}

// DefaultQueryLimit bounds unpaged queries.
const DefaultQueryLimit = 50

func NewQuerySpec() QuerySpec {
	return QuerySpec{SortOrder: SortAscending, Limit: DefaultQueryLimit}
}

func (q QuerySpec) WithCriterion(left string, op Operator, right any) QuerySpec {
	q.Criteria = append(append([]Criterion(nil), q.Criteria...), NewCriterion(left, op, right))
	return q
}

func (q QuerySpec) WithSort(field string, order SortOrder) QuerySpec {
	q.SortField = strings.TrimSpace(field)
	q.SortOrder = order
	return q
}

func (q QuerySpec) WithPage(offset, limit int) QuerySpec {
	q.Offset = offset
	q.Limit = limit
	return q
}

func (q QuerySpec) Validate() error {
	for _, criterion := range q.Criteria {
		if err := criterion.Validate(); err != nil {
			return err
		}
	}
	switch q.SortOrder {
	case "", SortAscending, SortDescending:
	default:
		return fmt.Errorf("%w: sort order must be ASC or DESC", ErrInvalidFilter)
	}
	if q.Offset < 0 {
		return fmt.Errorf("%w: offset cannot be negative", ErrInvalidFilter)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: limit cannot be negative", ErrInvalidFilter)
	}
	return nil
}

// Normalized returns the spec with paging defaults applied.
func (q QuerySpec) Normalized() QuerySpec {
	if q.Limit <= 0 {
		q.Limit = DefaultQueryLimit
	}
	if q.SortOrder == "" {
		q.SortOrder = SortAscending
	}
	return q
}
