package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/tavenor/credstate/core"
)

// IssuanceProcessStore is the in-memory counterpart of the SQL store.
type IssuanceProcessStore struct {
	inner *processStore[core.IssuanceProcess]
}

func NewIssuanceProcessStore(owner string, leaseDuration time.Duration, now func() time.Time) (*IssuanceProcessStore, error) {
	inner, err := newProcessStore(
		owner, leaseDuration, now,
		func(process *core.IssuanceProcess) string { return process.ID },
		func(process *core.IssuanceProcess) *core.IssuanceProcess { return process.Copy() },
		issuanceProcessField,
		issuanceSortableFields,
		func(name string) (int, bool) {
			state, ok := core.ParseIssuanceProcessState(name)
			return int(state), ok
		},
	)
	if err != nil {
		return nil, err
	}
	return &IssuanceProcessStore{inner: inner}, nil
}

func (s *IssuanceProcessStore) Save(_ context.Context, process *core.IssuanceProcess) error {
	if s == nil || s.inner == nil {
		return fmt.Errorf("memstore: issuance process store is not configured")
	}
	if process != nil {
		process.UpdatedAt = s.inner.now().UnixMilli()
	}
	return s.inner.save(process)
}

func (s *IssuanceProcessStore) FindByID(_ context.Context, id string) (*core.IssuanceProcess, error) {
	if s == nil || s.inner == nil {
		return nil, fmt.Errorf("memstore: issuance process store is not configured")
	}
	return s.inner.findByID(id)
}

func (s *IssuanceProcessStore) FindByIDAndLease(_ context.Context, id string) (*core.IssuanceProcess, error) {
	if s == nil || s.inner == nil {
		return nil, fmt.Errorf("memstore: issuance process store is not configured")
	}
	return s.inner.findByIDAndLease(id)
}

func (s *IssuanceProcessStore) NextNotLeased(_ context.Context, max int, criteria ...core.Criterion) ([]*core.IssuanceProcess, error) {
	if s == nil || s.inner == nil {
		return nil, fmt.Errorf("memstore: issuance process store is not configured")
	}
	return s.inner.nextNotLeased(max, criteria)
}

func (s *IssuanceProcessStore) Query(_ context.Context, spec core.QuerySpec) ([]*core.IssuanceProcess, error) {
	if s == nil || s.inner == nil {
		return nil, fmt.Errorf("memstore: issuance process store is not configured")
	}
	return s.inner.query(spec)
}

var issuanceSortableFields = []string{
	"id", "state", "stateCount", "stateTimestamp", "createdAt", "updatedAt",
	"errorDetail", "holderId", "participantContextId", "holderPid",
}

func issuanceProcessField(process *core.IssuanceProcess, field string) (any, bool) {
	switch field {
	case "id":
		return process.ID, true
	case "state":
		return process.State, true
	case "stateCount":
		return process.StateCount, true
	case "stateTimestamp":
		return process.StateTimestamp, true
	case "createdAt":
		return process.CreatedAt, true
	case "updatedAt":
		return process.UpdatedAt, true
	case "errorDetail":
		return process.ErrorDetail, true
	case "holderId":
		return process.HolderID, true
	case "participantContextId":
		return process.ParticipantContextID, true
	case "holderPid":
		return process.HolderPID, true
	case "credentialDefinitions":
		return process.CredentialDefinitions, true
	}
	// Missing JSON path values are absent, not unknown fields.
	if rest, found := cutPrefix(field, "claims."); found {
		value, _ := lookupPath(process.Claims, rest)
		return value, true
	}
	if rest, found := cutPrefix(field, "traceContext."); found {
		return process.TraceContext[rest], true
	}
	return nil, false
}

func cutPrefix(value, prefix string) (string, bool) {
	if len(value) > len(prefix) && value[:len(prefix)] == prefix {
		return value[len(prefix):], true
	}
	return "", false
}

var _ core.IssuanceProcessStore = (*IssuanceProcessStore)(nil)
