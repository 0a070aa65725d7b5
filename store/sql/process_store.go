package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/tavenor/credstate/core"
	"github.com/uptrace/bun"
)

// recordCodec describes how one workflow's entities map onto their table.
type recordCodec[E any, R any] struct {
	kind          string
	idRef         string
	newRecord     func() R
	newSlice      func() *[]R
	recordID      func(R) string
	toRecord      func(*E) R
	toDomain      func(R) *E
	entityID      func(*E) string
	updateColumns []string
	mapping       queryMapping
}

// processStore is the shared save/find/claim/query engine. Both workflow
// stores delegate to it; only the codec differs. Plain reads go through the
// repository; lease-conditional writes and claims need raw SQL in a
// transaction and bypass it.
type processStore[E any, R any] struct {
	db     *bun.DB
	repo   repository.Repository[R]
	leases *leaseEngine
	codec  recordCodec[E, R]
}

func newProcessStore[E any, R any](db *bun.DB, repo repository.Repository[R], leases *leaseEngine, codec recordCodec[E, R]) (*processStore[E, R], error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("sqlstore: record repository is required")
	}
	if leases == nil {
		return nil, fmt.Errorf("sqlstore: lease engine is required")
	}
	if strings.TrimSpace(codec.kind) == "" {
		return nil, fmt.Errorf("sqlstore: process kind is required")
	}
	return &processStore[E, R]{db: db, repo: repo, leases: leases, codec: codec}, nil
}

// save upserts the entity inside one transaction. Before writing it breaks
// the entity's lease, which fails when another owner holds an active one; on
// success the entity leaves the store unleased regardless of who claimed it.
func (s *processStore[E, R]) save(ctx context.Context, entity *E) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: process store is not configured")
	}
	if entity == nil {
		return fmt.Errorf("sqlstore: entity is required")
	}
	id := strings.TrimSpace(s.codec.entityID(entity))
	if id == "" {
		return fmt.Errorf("sqlstore: entity id is required")
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.leases.release(ctx, tx, s.codec.kind, id); err != nil {
			return err
		}
		record := s.codec.toRecord(entity)
		insert := tx.NewInsert().
			Model(record).
			On("CONFLICT (id) DO UPDATE")
		for _, column := range s.codec.updateColumns {
			insert = insert.Set(column + " = EXCLUDED." + column)
		}
		_, err := insert.Exec(ctx)
		return err
	})
}

func (s *processStore[E, R]) findByID(ctx context.Context, id string) (*E, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: process store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("sqlstore: entity id is required")
	}
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, fmt.Errorf("%w: %s %s", core.ErrNotFound, s.codec.kind, id)
		}
		return nil, err
	}
	return s.codec.toDomain(record), nil
}

func isRecordNotFound(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.Category == goerrors.CategoryNotFound
}

// findByIDAndLease loads the entity and acquires its lease in the same
// transaction, so a concurrent claimer cannot slip between the two.
func (s *processStore[E, R]) findByIDAndLease(ctx context.Context, id string) (*E, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: process store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("sqlstore: entity id is required")
	}
	var entity *E
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := s.codec.newRecord()
		if err := tx.NewSelect().
			Model(record).
			Where("id = ?", id).
			Limit(1).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s %s", core.ErrNotFound, s.codec.kind, id)
			}
			return err
		}
		if err := s.leases.acquire(ctx, tx, s.codec.kind, id); err != nil {
			return err
		}
		entity = s.codec.toDomain(record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// nextNotLeased claims up to max matching entities, oldest state timestamp
// first. Candidate selection and lease acquisition run in one transaction so
// two runtimes polling the same table never claim the same entity.
func (s *processStore[E, R]) nextNotLeased(ctx context.Context, max int, criteria ...core.Criterion) ([]*E, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: process store is not configured")
	}
	if max <= 0 {
		max = 1
	}

	var claimed []*E
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		records := s.codec.newSlice()
		query := tx.NewSelect().Model(records)
		query, err := s.codec.mapping.applyCriteria(query, s.db.Dialect().Name(), criteria)
		if err != nil {
			return err
		}
		query = s.leases.notLeasedFilter(query, s.codec.kind, s.codec.idRef)
		if err := query.
			Order("state_timestamp ASC").
			Limit(max).
			Scan(ctx); err != nil {
			return err
		}

		for _, record := range *records {
			id := s.codec.recordID(record)
			if err := s.leases.acquire(ctx, tx, s.codec.kind, id); err != nil {
				if errors.Is(err, core.ErrAlreadyLeased) {
					continue
				}
				return err
			}
			claimed = append(claimed, s.codec.toDomain(record))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// query runs a read-only query through the repository. Leases are neither
// checked nor taken.
func (s *processStore[E, R]) query(ctx context.Context, spec core.QuerySpec) ([]*E, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: process store is not configured")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec = spec.Normalized()

	appliers, err := s.codec.mapping.compileCriteria(s.db.Dialect().Name(), spec.Criteria)
	if err != nil {
		return nil, err
	}
	order := "id ASC"
	if spec.SortField != "" {
		column, err := s.codec.mapping.resolveSortColumn(spec.SortField)
		if err != nil {
			return nil, err
		}
		order = column + " " + string(spec.SortOrder)
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(query *bun.SelectQuery) *bun.SelectQuery {
			for _, applier := range appliers {
				query = applier(query)
			}
			return query
		}),
		repository.OrderBy(order),
		repository.SelectPaginate(spec.Limit, spec.Offset),
	)
	if err != nil {
		return nil, err
	}

	entities := make([]*E, 0, len(records))
	for _, record := range records {
		entities = append(entities, s.codec.toDomain(record))
	}
	return entities, nil
}
