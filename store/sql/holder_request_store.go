package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/tavenor/credstate/core"
	"github.com/uptrace/bun"
)

const holderRequestKind = "holder_credential_request"

// HolderCredentialRequestStore persists holder-side requests with the same
// lease semantics as IssuanceProcessStore.
type HolderCredentialRequestStore struct {
	inner *processStore[core.HolderCredentialRequest, *holderRequestRecord]
	now   func() time.Time
}

func NewHolderCredentialRequestStore(db *bun.DB, leases *leaseEngine, now func() time.Time) (*HolderCredentialRequestStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*holderRequestRecord](db, holderRequestHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid holder request repository wiring: %w", err)
		}
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	inner, err := newProcessStore(db, repo, leases, holderRequestCodec())
	if err != nil {
		return nil, err
	}
	return &HolderCredentialRequestStore{inner: inner, now: now}, nil
}

func (s *HolderCredentialRequestStore) Save(ctx context.Context, request *core.HolderCredentialRequest) error {
	if s == nil || s.inner == nil {
		return fmt.Errorf("sqlstore: holder request store is not configured")
	}
	if request == nil {
		return fmt.Errorf("sqlstore: holder request is required")
	}
	request.UpdatedAt = s.now().UnixMilli()
	return s.inner.save(ctx, request)
}

func (s *HolderCredentialRequestStore) FindByID(ctx context.Context, id string) (*core.HolderCredentialRequest, error) {
	if s == nil || s.inner == nil {
		return nil, fmt.Errorf("sqlstore: holder request store is not configured")
	}
	return s.inner.findByID(ctx, id)
}

func (s *HolderCredentialRequestStore) FindByIDAndLease(ctx context.Context, id string) (*core.HolderCredentialRequest, error) {
	if s == nil || s.inner == nil {
		return nil, fmt.Errorf("sqlstore: holder request store is not configured")
	}
	return s.inner.findByIDAndLease(ctx, id)
}

func (s *HolderCredentialRequestStore) NextNotLeased(ctx context.Context, max int, criteria ...core.Criterion) ([]*core.HolderCredentialRequest, error) {
	if s == nil || s.inner == nil {
		return nil, fmt.Errorf("sqlstore: holder request store is not configured")
	}
	return s.inner.nextNotLeased(ctx, max, criteria...)
}

func (s *HolderCredentialRequestStore) Query(ctx context.Context, spec core.QuerySpec) ([]*core.HolderCredentialRequest, error) {
	if s == nil || s.inner == nil {
		return nil, fmt.Errorf("sqlstore: holder request store is not configured")
	}
	return s.inner.query(ctx, spec)
}

func holderRequestCodec() recordCodec[core.HolderCredentialRequest, *holderRequestRecord] {
	return recordCodec[core.HolderCredentialRequest, *holderRequestRecord]{
		kind:  holderRequestKind,
		idRef: "hcr.id",
		newRecord: func() *holderRequestRecord {
			return &holderRequestRecord{}
		},
		newSlice: func() *[]*holderRequestRecord {
			records := make([]*holderRequestRecord, 0)
			return &records
		},
		recordID: func(record *holderRequestRecord) string {
			return record.ID
		},
		entityID: func(request *core.HolderCredentialRequest) string {
			return request.ID
		},
		toRecord:      holderRequestToRecord,
		toDomain:      holderRequestToDomain,
		updateColumns: holderRequestUpdateColumns,
		mapping:       holderRequestMapping(),
	}
}

var holderRequestUpdateColumns = []string{
	"state", "state_count", "state_timestamp", "updated_at",
	"trace_context", "error_detail", "participant_context_id",
	"issuer_did", "requested_credentials", "issuer_pid",
}

func holderRequestMapping() queryMapping {
	return queryMapping{
		columns: map[string]string{
			"id":                   "id",
			"state":                "state",
			"stateCount":           "state_count",
			"stateTimestamp":       "state_timestamp",
			"createdAt":            "created_at",
			"updatedAt":            "updated_at",
			"errorDetail":          "error_detail",
			"participantContextId": "participant_context_id",
			"issuerDid":            "issuer_did",
			"issuerPid":            "issuer_pid",
		},
		jsonColumns: map[string]string{
			"traceContext":         "trace_context",
			"requestedCredentials": "requested_credentials",
		},
		stateParser: func(name string) (int, bool) {
			state, ok := core.ParseHolderRequestState(name)
			return int(state), ok
		},
	}
}

func holderRequestToRecord(request *core.HolderCredentialRequest) *holderRequestRecord {
	requested := make([]map[string]any, 0, len(request.RequestedCredentials))
	for _, credential := range request.RequestedCredentials {
		requested = append(requested, map[string]any{
			"credentialObjectId": credential.CredentialObjectID,
			"type":               credential.Type,
			"format":             credential.Format,
		})
	}
	return &holderRequestRecord{
		ID:                   request.ID,
		State:                request.State,
		StateCount:           request.StateCount,
		StateTimestamp:       request.StateTimestamp,
		CreatedAt:            request.CreatedAt,
		UpdatedAt:            request.UpdatedAt,
		TraceContext:         copyStringMap(request.TraceContext),
		ErrorDetail:          request.ErrorDetail,
		ParticipantContextID: request.ParticipantContextID,
		IssuerDID:            request.IssuerDID,
		RequestedCredentials: requested,
		IssuerPID:            request.IssuerPID,
	}
}

func holderRequestToDomain(record *holderRequestRecord) *core.HolderCredentialRequest {
	requested := make([]core.RequestedCredential, 0, len(record.RequestedCredentials))
	for _, entry := range record.RequestedCredentials {
		requested = append(requested, core.RequestedCredential{
			CredentialObjectID: stringValue(entry["credentialObjectId"]),
			Type:               stringValue(entry["type"]),
			Format:             stringValue(entry["format"]),
		})
	}
	return &core.HolderCredentialRequest{
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
		ParticipantContextID: record.ParticipantContextID,
		IssuerDID:            record.IssuerDID,
		RequestedCredentials: requested,
		IssuerPID:            record.IssuerPID,
	}
}

func stringValue(value any) string {
	if value == nil {
		return ""
	}
	if typed, ok := value.(string); ok {
		return typed
	}
	return strings.TrimSpace(fmt.Sprint(value))
}
