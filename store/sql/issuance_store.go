package sqlstore

import (
	"context"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/tavenor/credstate/core"
	"github.com/uptrace/bun"
)

const issuanceProcessKind = "issuance_process"

// IssuanceProcessStore persists issuer-side processes with lease-guarded
// writes and atomic batch claims.
type IssuanceProcessStore struct {
	inner *processStore[core.IssuanceProcess, *issuanceProcessRecord]
	now   func() time.Time
}

func NewIssuanceProcessStore(db *bun.DB, leases *leaseEngine, now func() time.Time) (*IssuanceProcessStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*issuanceProcessRecord](db, issuanceProcessHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid issuance process repository wiring: %w", err)
		}
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	inner, err := newProcessStore(db, repo, leases, issuanceProcessCodec())
	if err != nil {
		return nil, err
	}
	return &IssuanceProcessStore{inner: inner, now: now}, nil
}

func (s *IssuanceProcessStore) Save(ctx context.Context, process *core.IssuanceProcess) error {
	if s == nil || s.inner == nil {
		return fmt.Errorf("sqlstore: issuance process store is not configured")
	}
	if process == nil {
		return fmt.Errorf("sqlstore: issuance process is required")
	}
	process.UpdatedAt = s.now().UnixMilli()
	return s.inner.save(ctx, process)
}

func (s *IssuanceProcessStore) FindByID(ctx context.Context, id string) (*core.IssuanceProcess, error) {
	if s == nil || s.inner == nil {
		return nil, fmt.Errorf("sqlstore: issuance process store is not configured")
	}
	return s.inner.findByID(ctx, id)
}

func (s *IssuanceProcessStore) FindByIDAndLease(ctx context.Context, id string) (*core.IssuanceProcess, error) {
	if s == nil || s.inner == nil {
		return nil, fmt.Errorf("sqlstore: issuance process store is not configured")
	}
	return s.inner.findByIDAndLease(ctx, id)
}

func (s *IssuanceProcessStore) NextNotLeased(ctx context.Context, max int, criteria ...core.Criterion) ([]*core.IssuanceProcess, error) {
	if s == nil || s.inner == nil {
		return nil, fmt.Errorf("sqlstore: issuance process store is not configured")
	}
	return s.inner.nextNotLeased(ctx, max, criteria...)
}

func (s *IssuanceProcessStore) Query(ctx context.Context, spec core.QuerySpec) ([]*core.IssuanceProcess, error) {
	if s == nil || s.inner == nil {
		return nil, fmt.Errorf("sqlstore: issuance process store is not configured")
	}
	return s.inner.query(ctx, spec)
}

func issuanceProcessCodec() recordCodec[core.IssuanceProcess, *issuanceProcessRecord] {
	return recordCodec[core.IssuanceProcess, *issuanceProcessRecord]{
		kind:  issuanceProcessKind,
		idRef: "cip.id",
		newRecord: func() *issuanceProcessRecord {
			return &issuanceProcessRecord{}
		},
		newSlice: func() *[]*issuanceProcessRecord {
			records := make([]*issuanceProcessRecord, 0)
			return &records
		},
		recordID: func(record *issuanceProcessRecord) string {
			return record.ID
		},
		entityID: func(process *core.IssuanceProcess) string {
			return process.ID
		},
		toRecord:      issuanceProcessToRecord,
		toDomain:      issuanceProcessToDomain,
		updateColumns: issuanceProcessUpdateColumns,
		mapping:       issuanceProcessMapping(),
	}
}

var issuanceProcessUpdateColumns = []string{
	"state", "state_count", "state_timestamp", "updated_at",
	"trace_context", "error_detail", "holder_id", "participant_context_id",
	"holder_pid", "claims", "credential_definitions", "credential_formats",
}

func issuanceProcessMapping() queryMapping {
	return queryMapping{
		columns: map[string]string{
			"id":                   "id",
			"state":                "state",
			"stateCount":           "state_count",
			"stateTimestamp":       "state_timestamp",
			"createdAt":            "created_at",
			"updatedAt":            "updated_at",
			"errorDetail":          "error_detail",
			"holderId":             "holder_id",
			"participantContextId": "participant_context_id",
			"holderPid":            "holder_pid",
		},
		jsonColumns: map[string]string{
			"claims":                "claims",
			"traceContext":          "trace_context",
			"credentialDefinitions": "credential_definitions",
			"credentialFormats":     "credential_formats",
		},
		stateParser: func(name string) (int, bool) {
			state, ok := core.ParseIssuanceProcessState(name)
			return int(state), ok
		},
	}
}

func issuanceProcessToRecord(process *core.IssuanceProcess) *issuanceProcessRecord {
	return &issuanceProcessRecord{
		ID:                    process.ID,
		State:                 process.State,
		StateCount:            process.StateCount,
		StateTimestamp:        process.StateTimestamp,
		CreatedAt:             process.CreatedAt,
		UpdatedAt:             process.UpdatedAt,
		TraceContext:          copyStringMap(process.TraceContext),
		ErrorDetail:           process.ErrorDetail,
		HolderID:              process.HolderID,
		ParticipantContextID:  process.ParticipantContextID,
		HolderPID:             process.HolderPID,
		Claims:                copyAnyMap(process.Claims),
		CredentialDefinitions: append([]string{}, process.CredentialDefinitions...),
		CredentialFormats:     copyStringMap(process.CredentialFormats),
	}
}

func issuanceProcessToDomain(record *issuanceProcessRecord) *core.IssuanceProcess {
	return &core.IssuanceProcess{
		StatefulEntity: core.StatefulEntity{
			ID:             record.ID,
			State:          record.State,
			StateCount:     record.StateCount,
			StateTimestamp: record.StateTimestamp,
			CreatedAt:      record.CreatedAt,
			UpdatedAt:      record.UpdatedAt,
			TraceContext:   copyStringMap(record.TraceContext),
			ErrorDetail:    record.ErrorDetail,
		},
		HolderID:              record.HolderID,
		ParticipantContextID:  record.ParticipantContextID,
		HolderPID:             record.HolderPID,
		Claims:                copyAnyMap(record.Claims),
		CredentialDefinitions: append([]string{}, record.CredentialDefinitions...),
		CredentialFormats:     copyStringMap(record.CredentialFormats),
	}
}

func copyStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
