package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tavenor/credstate/core"
	"github.com/uptrace/bun"
)

// leaseEngine implements time-bounded, owner-tagged leases over the shared
// credential_process_leases table. Expired leases are never swept; they are
// treated as absent by every predicate and overwritten in place on the next
// acquisition.
type leaseEngine struct {
	owner    string
	duration time.Duration
	now      func() time.Time
}

func newLeaseEngine(owner string, duration time.Duration, now func() time.Time) (*leaseEngine, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("sqlstore: lease owner is required")
	}
	if duration <= 0 {
		return nil, fmt.Errorf("sqlstore: lease duration must be positive")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &leaseEngine{owner: owner, duration: duration, now: now}, nil
}

// acquire takes the lease for the engine's owner in one conditional upsert.
// The update branch only fires when the current holder is the same owner
// (re-acquire) or the existing lease has expired; otherwise zero rows are
// affected and ErrAlreadyLeased is returned.
func (l *leaseEngine) acquire(ctx context.Context, tx bun.IDB, kind, entityID string) error {
	if l == nil {
		return fmt.Errorf("sqlstore: lease engine is not configured")
	}
	nowMillis := l.now().UnixMilli()
	result, err := tx.NewRaw(`
INSERT INTO credential_process_leases (process_kind, entity_id, leased_by, leased_at, lease_duration_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (process_kind, entity_id) DO UPDATE
SET leased_by = EXCLUDED.leased_by,
    leased_at = EXCLUDED.leased_at,
    lease_duration_ms = EXCLUDED.lease_duration_ms
WHERE credential_process_leases.leased_by = EXCLUDED.leased_by
   OR credential_process_leases.leased_at + credential_process_leases.lease_duration_ms <= EXCLUDED.leased_at
`, kind, entityID, l.owner, nowMillis, l.duration.Milliseconds()).Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %s", core.ErrAlreadyLeased, kind, entityID)
	}
	return nil
}

// release drops the lease when it is held by this owner or already expired.
// A remaining row after the conditional delete means another owner holds an
// active lease.
func (l *leaseEngine) release(ctx context.Context, tx bun.IDB, kind, entityID string) error {
	if l == nil {
		return fmt.Errorf("sqlstore: lease engine is not configured")
	}
	nowMillis := l.now().UnixMilli()
	if _, err := tx.NewDelete().
		Model((*processLeaseRecord)(nil)).
		Where("process_kind = ?", kind).
		Where("entity_id = ?", entityID).
		Where("leased_by = ? OR leased_at + lease_duration_ms <= ?", l.owner, nowMillis).
		Exec(ctx); err != nil {
		return err
	}

	remaining, err := tx.NewSelect().
		Model((*processLeaseRecord)(nil)).
		Where("process_kind = ?", kind).
		Where("entity_id = ?", entityID).
		Count(ctx)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return fmt.Errorf("%w: %s %s is leased by another runtime", core.ErrAlreadyLeased, kind, entityID)
	}
	return nil
}

// notLeasedFilter appends a predicate excluding entities under any active
// lease. Expired rows pass the filter without being deleted.
func (l *leaseEngine) notLeasedFilter(query *bun.SelectQuery, kind, idColumn string) *bun.SelectQuery {
	nowMillis := l.now().UnixMilli()
	return query.Where(
		"NOT EXISTS (SELECT 1 FROM credential_process_leases cpl WHERE cpl.process_kind = ? AND cpl.entity_id = "+idColumn+" AND cpl.leased_at + cpl.lease_duration_ms > ?)",
		kind, nowMillis,
	)
}
