package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tavenor/credstate/core"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// queryMapping translates domain-level criteria into SQL for one record
// type. Plain fields resolve through the column whitelist; dotted paths
// resolve through the JSON column whitelist (for example
// "claims.person.name" extracts $.person.name from the claims column).
type queryMapping struct {
	columns     map[string]string
	jsonColumns map[string]string
	stateParser func(string) (int, bool)
}

// criterionApplier is a compiled WHERE clause ready to attach to a select.
type criterionApplier func(*bun.SelectQuery) *bun.SelectQuery

// compileCriteria validates every criterion up front and returns the
// appliers, so callers can hand them to a repository processor without a
// late error path.
func (m queryMapping) compileCriteria(name dialect.Name, criteria []core.Criterion) ([]criterionApplier, error) {
	appliers := make([]criterionApplier, 0, len(criteria))
	for _, criterion := range criteria {
		if err := criterion.Validate(); err != nil {
			return nil, err
		}
		applier, err := m.compileCriterion(name, criterion)
		if err != nil {
			return nil, err
		}
		appliers = append(appliers, applier)
	}
	return appliers, nil
}

func (m queryMapping) applyCriteria(query *bun.SelectQuery, name dialect.Name, criteria []core.Criterion) (*bun.SelectQuery, error) {
	appliers, err := m.compileCriteria(name, criteria)
	if err != nil {
		return nil, err
	}
	for _, applier := range appliers {
		query = applier(query)
	}
	return query, nil
}

func (m queryMapping) compileCriterion(name dialect.Name, criterion core.Criterion) (criterionApplier, error) {
	expr, isJSON, err := m.resolveOperand(name, criterion.Left)
	if err != nil {
		return nil, err
	}

	switch criterion.Operator {
	case core.OpEqual, core.OpNotEqual, core.OpLike:
		value, err := m.normalizeValue(criterion.Left, isJSON, criterion.Right)
		if err != nil {
			return nil, err
		}
		op := "="
		switch criterion.Operator {
		case core.OpNotEqual:
			op = "!="
		case core.OpLike:
			op = "LIKE"
		}
		return func(query *bun.SelectQuery) *bun.SelectQuery {
			return query.Where(expr+" "+op+" ?", value)
		}, nil

	case core.OpIn:
		values, err := m.normalizeListValue(criterion.Left, isJSON, criterion.Right)
		if err != nil {
			return nil, err
		}
		return func(query *bun.SelectQuery) *bun.SelectQuery {
			return query.Where(expr+" IN (?)", bun.In(values))
		}, nil

	case core.OpContains:
		value, err := m.normalizeValue(criterion.Left, true, criterion.Right)
		if err != nil {
			return nil, err
		}
		arrayExpr, err := m.resolveArrayOperand(name, criterion.Left)
		if err != nil {
			return nil, err
		}
		if name == dialect.PG {
			return func(query *bun.SelectQuery) *bun.SelectQuery {
				return query.Where(
					"EXISTS (SELECT 1 FROM jsonb_array_elements_text("+arrayExpr+") AS cs_member WHERE cs_member = ?)",
					value,
				)
			}, nil
		}
		return func(query *bun.SelectQuery) *bun.SelectQuery {
			return query.Where(
				"EXISTS (SELECT 1 FROM json_each("+arrayExpr+") WHERE json_each.value = ?)",
				value,
			)
		}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported operator %q", core.ErrInvalidFilter, string(criterion.Operator))
	}
}

// resolveOperand maps a criterion's left side to a SQL expression yielding a
// comparable scalar.
func (m queryMapping) resolveOperand(name dialect.Name, left string) (string, bool, error) {
	if column, ok := m.columns[left]; ok {
		return column, false, nil
	}
	prefix, path, found := strings.Cut(left, ".")
	if !found {
		return "", false, fmt.Errorf("%w: unknown field %q", core.ErrInvalidFilter, left)
	}
	column, ok := m.jsonColumns[prefix]
	if !ok {
		return "", false, fmt.Errorf("%w: unknown field %q", core.ErrInvalidFilter, left)
	}
	segments := strings.Split(path, ".")
	switch name {
	case dialect.PG:
		return column + " #>> '{" + strings.Join(segments, ",") + "}'", true, nil
	default:
		return "json_extract(" + column + ", '$." + strings.Join(segments, ".") + "')", true, nil
	}
}

// resolveArrayOperand maps a criterion's left side to an expression yielding
// a JSON array, for membership checks.
func (m queryMapping) resolveArrayOperand(name dialect.Name, left string) (string, error) {
	if column, ok := m.jsonColumns[left]; ok {
		return column, nil
	}
	prefix, path, found := strings.Cut(left, ".")
	if !found {
		return "", fmt.Errorf("%w: field %q does not hold an array", core.ErrInvalidFilter, left)
	}
	column, ok := m.jsonColumns[prefix]
	if !ok {
		return "", fmt.Errorf("%w: unknown field %q", core.ErrInvalidFilter, left)
	}
	segments := strings.Split(path, ".")
	switch name {
	case dialect.PG:
		return column + " #> '{" + strings.Join(segments, ",") + "}'", nil
	default:
		return "json_extract(" + column + ", '$." + strings.Join(segments, ".") + "')", nil
	}
}

// normalizeValue coerces criterion operands. The state column accepts either
// the numeric code or the workflow's state name; JSON extractions compare as
// text.
func (m queryMapping) normalizeValue(left string, isJSON bool, value any) (any, error) {
	if m.columns[left] == "state" {
		return m.normalizeStateValue(value)
	}
	if isJSON {
		switch typed := value.(type) {
		case string:
			return typed, nil
		case nil:
			return nil, fmt.Errorf("%w: nil operand for field %q", core.ErrInvalidFilter, left)
		default:
			return fmt.Sprint(typed), nil
		}
	}
	return value, nil
}

func (m queryMapping) normalizeListValue(left string, isJSON bool, value any) ([]any, error) {
	var raw []any
	switch typed := value.(type) {
	case []any:
		raw = typed
	case []string:
		for _, item := range typed {
			raw = append(raw, item)
		}
	case []int:
		for _, item := range typed {
			raw = append(raw, item)
		}
	case []int64:
		for _, item := range typed {
			raw = append(raw, item)
		}
	default:
		return nil, fmt.Errorf("%w: operator \"in\" requires a list operand", core.ErrInvalidFilter)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: operator \"in\" requires a non-empty list", core.ErrInvalidFilter)
	}
	normalized := make([]any, 0, len(raw))
	for _, item := range raw {
		value, err := m.normalizeValue(left, isJSON, item)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, value)
	}
	return normalized, nil
}

func (m queryMapping) normalizeStateValue(value any) (any, error) {
	switch typed := value.(type) {
	case int:
		return typed, nil
	case int64:
		return typed, nil
	case core.IssuanceProcessState:
		return int(typed), nil
	case core.HolderRequestState:
		return int(typed), nil
	case string:
		trimmed := strings.TrimSpace(typed)
		if code, err := strconv.Atoi(trimmed); err == nil {
			return code, nil
		}
		if m.stateParser != nil {
			if state, ok := m.stateParser(trimmed); ok {
				return state, nil
			}
		}
		return nil, fmt.Errorf("%w: unknown state %q", core.ErrInvalidFilter, typed)
	default:
		return nil, fmt.Errorf("%w: state operand must be a code or name", core.ErrInvalidFilter)
	}
}

// resolveSortColumn restricts sorting to whitelisted plain columns.
func (m queryMapping) resolveSortColumn(field string) (string, error) {
	if column, ok := m.columns[field]; ok {
		return column, nil
	}
	return "", fmt.Errorf("%w: cannot sort by %q", core.ErrInvalidFilter, field)
}
