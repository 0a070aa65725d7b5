// Package memstore provides in-memory implementations of the process stores
// with full lease semantics. Intended for tests and single-process
// embedding; the SQL stores are the production path.
package memstore

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tavenor/credstate/core"
)

type lease struct {
	leasedBy      string
	leasedAt      int64
	leaseDuration time.Duration
}

func (l lease) activeAt(nowMillis int64) bool {
	return l.leasedAt+l.leaseDuration.Milliseconds() > nowMillis
}

// processStore is the shared engine behind both typed stores.
type processStore[E any] struct {
	mu       sync.Mutex
	owner    string
	duration time.Duration
	now      func() time.Time

	entities map[string]*E
	leases   map[string]lease

	entityID func(*E) string
	clone    func(*E) *E
	fields   func(*E, string) (any, bool)
	sortable map[string]bool
	parser   func(string) (int, bool)
}

func newProcessStore[E any](
	owner string,
	duration time.Duration,
	now func() time.Time,
	entityID func(*E) string,
	clone func(*E) *E,
	fields func(*E, string) (any, bool),
	sortable []string,
	parser func(string) (int, bool),
) (*processStore[E], error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("memstore: lease owner is required")
	}
	if duration <= 0 {
		return nil, fmt.Errorf("memstore: lease duration must be positive")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	sortableSet := make(map[string]bool, len(sortable))
	for _, field := range sortable {
		sortableSet[field] = true
	}
	return &processStore[E]{
		owner:    owner,
		duration: duration,
		now:      now,
		entities: map[string]*E{},
		leases:   map[string]lease{},
		entityID: entityID,
		clone:    clone,
		fields:   fields,
		sortable: sortableSet,
		parser:   parser,
	}, nil
}

func (s *processStore[E]) save(entity *E) error {
	if entity == nil {
		return fmt.Errorf("memstore: entity is required")
	}
	id := strings.TrimSpace(s.entityID(entity))
	if id == "" {
		return fmt.Errorf("memstore: entity id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMillis := s.now().UnixMilli()
	if existing, ok := s.leases[id]; ok {
		if existing.leasedBy != s.owner && existing.activeAt(nowMillis) {
			return fmt.Errorf("%w: %s is leased by another runtime", core.ErrAlreadyLeased, id)
		}
		delete(s.leases, id)
	}
	s.entities[id] = s.clone(entity)
	return nil
}

func (s *processStore[E]) findByID(id string) (*E, error) {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	entity, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return s.clone(entity), nil
}

func (s *processStore[E]) findByIDAndLease(id string) (*E, error) {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	entity, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	if err := s.acquireLocked(id); err != nil {
		return nil, err
	}
	return s.clone(entity), nil
}

func (s *processStore[E]) acquireLocked(id string) error {
	nowMillis := s.now().UnixMilli()
	if existing, ok := s.leases[id]; ok {
		if existing.leasedBy != s.owner && existing.activeAt(nowMillis) {
			return fmt.Errorf("%w: %s", core.ErrAlreadyLeased, id)
		}
	}
	s.leases[id] = lease{leasedBy: s.owner, leasedAt: nowMillis, leaseDuration: s.duration}
	return nil
}

func (s *processStore[E]) nextNotLeased(max int, criteria []core.Criterion) ([]*E, error) {
	if max <= 0 {
		max = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMillis := s.now().UnixMilli()
	var candidates []*E
	for id, entity := range s.entities {
		if existing, ok := s.leases[id]; ok && existing.activeAt(nowMillis) {
			continue
		}
		match, err := s.matchesAll(entity, criteria)
		if err != nil {
			return nil, err
		}
		if match {
			candidates = append(candidates, entity)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		left, _ := s.fields(candidates[i], "stateTimestamp")
		right, _ := s.fields(candidates[j], "stateTimestamp")
		return toInt64(left) < toInt64(right)
	})
	if len(candidates) > max {
		candidates = candidates[:max]
	}

	claimed := make([]*E, 0, len(candidates))
	for _, entity := range candidates {
		id := s.entityID(entity)
		if err := s.acquireLocked(id); err != nil {
			continue
		}
		claimed = append(claimed, s.clone(entity))
	}
	return claimed, nil
}

func (s *processStore[E]) query(spec core.QuerySpec) ([]*E, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec = spec.Normalized()

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*E
	for _, entity := range s.entities {
		match, err := s.matchesAll(entity, spec.Criteria)
		if err != nil {
			return nil, err
		}
		if match {
			matched = append(matched, entity)
		}
	}

	sortField := spec.SortField
	if sortField == "" {
		sortField = "id"
	}
	// Sorting is restricted to plain fields, matching the SQL stores.
	if !s.sortable[sortField] {
		return nil, fmt.Errorf("%w: cannot sort by %q", core.ErrInvalidFilter, sortField)
	}
	descending := spec.SortOrder == core.SortDescending
	sort.Slice(matched, func(i, j int) bool {
		left, _ := s.fields(matched[i], sortField)
		right, _ := s.fields(matched[j], sortField)
		less := compareValues(left, right) < 0
		if descending {
			return !less
		}
		return less
	})

	if spec.Offset >= len(matched) {
		return []*E{}, nil
	}
	matched = matched[spec.Offset:]
	if len(matched) > spec.Limit {
		matched = matched[:spec.Limit]
	}
	out := make([]*E, 0, len(matched))
	for _, entity := range matched {
		out = append(out, s.clone(entity))
	}
	return out, nil
}

func (s *processStore[E]) matchesAll(entity *E, criteria []core.Criterion) (bool, error) {
	for _, criterion := range criteria {
		if err := criterion.Validate(); err != nil {
			return false, err
		}
		match, err := s.matches(entity, criterion)
		if err != nil {
			return false, err
		}
		if !match {
			return false, nil
		}
	}
	return true, nil
}

func (s *processStore[E]) matches(entity *E, criterion core.Criterion) (bool, error) {
	value, ok := s.fields(entity, criterion.Left)
	if !ok {
		return false, fmt.Errorf("%w: unknown field %q", core.ErrInvalidFilter, criterion.Left)
	}
	right := criterion.Right
	if criterion.Left == "state" {
		normalized, err := s.normalizeState(right)
		if err != nil {
			return false, err
		}
		right = normalized
	}

	switch criterion.Operator {
	case core.OpEqual:
		return compareValues(value, right) == 0, nil
	case core.OpNotEqual:
		return compareValues(value, right) != 0, nil
	case core.OpIn:
		items, err := toList(right)
		if err != nil {
			return false, err
		}
		for _, item := range items {
			if criterion.Left == "state" {
				normalized, err := s.normalizeState(item)
				if err != nil {
					return false, err
				}
				item = normalized
			}
			if compareValues(value, item) == 0 {
				return true, nil
			}
		}
		return false, nil
	case core.OpLike:
		pattern, ok := right.(string)
		if !ok {
			return false, fmt.Errorf("%w: like requires a string pattern", core.ErrInvalidFilter)
		}
		return likeMatch(fmt.Sprint(value), pattern), nil
	case core.OpContains:
		items, err := toList(value)
		if err != nil {
			return false, nil
		}
		for _, item := range items {
			if compareValues(item, right) == 0 {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: unsupported operator %q", core.ErrInvalidFilter, string(criterion.Operator))
	}
}

func (s *processStore[E]) normalizeState(value any) (any, error) {
	switch typed := value.(type) {
	case string:
		trimmed := strings.TrimSpace(typed)
		if code, err := strconv.Atoi(trimmed); err == nil {
			return code, nil
		}
		if s.parser != nil {
			if code, ok := s.parser(trimmed); ok {
				return code, nil
			}
		}
		return nil, fmt.Errorf("%w: unknown state %q", core.ErrInvalidFilter, typed)
	case []any, []string, []int, []int64:
		return typed, nil
	default:
		return value, nil
	}
}

// lookupPath walks a dotted path through nested maps.
func lookupPath(root map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var current any = root
	for _, segment := range segments {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = asMap[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func toList(value any) ([]any, error) {
	switch typed := value.(type) {
	case []any:
		return typed, nil
	case []string:
		out := make([]any, 0, len(typed))
		for _, item := range typed {
			out = append(out, item)
		}
		return out, nil
	case []int:
		out := make([]any, 0, len(typed))
		for _, item := range typed {
			out = append(out, item)
		}
		return out, nil
	case []int64:
		out := make([]any, 0, len(typed))
		for _, item := range typed {
			out = append(out, item)
		}
		return out, nil
	case []core.RequestedCredential:
		out := make([]any, 0, len(typed))
		for _, item := range typed {
			out = append(out, item)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("memstore: value %T is not a list", value)
	}
}

func compareValues(left, right any) int {
	leftInt, leftOK := asInt64(left)
	rightInt, rightOK := asInt64(right)
	if leftOK && rightOK {
		switch {
		case leftInt < rightInt:
			return -1
		case leftInt > rightInt:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(left), fmt.Sprint(right))
}

func asInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int:
		return int64(typed), true
	case int64:
		return typed, true
	case float64:
		return int64(typed), true
	case core.IssuanceProcessState:
		return int64(typed), true
	case core.HolderRequestState:
		return int64(typed), true
	default:
		return 0, false
	}
}

func toInt64(value any) int64 {
	out, _ := asInt64(value)
	return out
}

func likeMatch(value, pattern string) bool {
	var builder strings.Builder
	builder.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			builder.WriteString(".*")
		case '_':
			builder.WriteString(".")
		default:
			builder.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	builder.WriteString("$")
	matched, err := regexp.MatchString(builder.String(), value)
	if err != nil {
		return false
	}
	return matched
}
