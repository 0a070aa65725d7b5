package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/tavenor/credstate/core"
)

// HolderCredentialRequestStore is the in-memory counterpart of the SQL store.
type HolderCredentialRequestStore struct {
	inner *processStore[core.HolderCredentialRequest]
}

func NewHolderCredentialRequestStore(owner string, leaseDuration time.Duration, now func() time.Time) (*HolderCredentialRequestStore, error) {
	inner, err := newProcessStore(
		owner, leaseDuration, now,
		func(request *core.HolderCredentialRequest) string { return request.ID },
		func(request *core.HolderCredentialRequest) *core.HolderCredentialRequest { return request.Copy() },
		holderRequestField,
		holderRequestSortableFields,
		func(name string) (int, bool) {
			state, ok := core.ParseHolderRequestState(name)
			return int(state), ok
		},
	)
	if err != nil {
		return nil, err
	}
	return &HolderCredentialRequestStore{inner: inner}, nil
}

func (s *HolderCredentialRequestStore) Save(_ context.Context, request *core.HolderCredentialRequest) error {
	if s == nil || s.inner == nil {
		return fmt.Errorf("memstore: holder request store is not configured")
	}
	if request != nil {
		request.UpdatedAt = s.inner.now().UnixMilli()
	}
	return s.inner.save(request)
}

func (s *HolderCredentialRequestStore) FindByID(_ context.Context, id string) (*core.HolderCredentialRequest, error) {
	if s == nil || s.inner == nil {
		return nil, fmt.Errorf("memstore: holder request store is not configured")
	}
	return s.inner.findByID(id)
}

func (s *HolderCredentialRequestStore) FindByIDAndLease(_ context.Context, id string) (*core.HolderCredentialRequest, error) {
	if s == nil || s.inner == nil {
		return nil, fmt.Errorf("memstore: holder request store is not configured")
	}
	return s.inner.findByIDAndLease(id)
}

func (s *HolderCredentialRequestStore) NextNotLeased(_ context.Context, max int, criteria ...core.Criterion) ([]*core.HolderCredentialRequest, error) {
	if s == nil || s.inner == nil {
		return nil, fmt.Errorf("memstore: holder request store is not configured")
	}
	return s.inner.nextNotLeased(max, criteria)
}

func (s *HolderCredentialRequestStore) Query(_ context.Context, spec core.QuerySpec) ([]*core.HolderCredentialRequest, error) {
	if s == nil || s.inner == nil {
		return nil, fmt.Errorf("memstore: holder request store is not configured")
	}
	return s.inner.query(spec)
}

var holderRequestSortableFields = []string{
	"id", "state", "stateCount", "stateTimestamp", "createdAt", "updatedAt",
	"errorDetail", "participantContextId", "issuerDid", "issuerPid",
}

func holderRequestField(request *core.HolderCredentialRequest, field string) (any, bool) {
	switch field {
	case "id":
		return request.ID, true
	case "state":
		return request.State, true
	case "stateCount":
		return request.StateCount, true
	case "stateTimestamp":
		return request.StateTimestamp, true
	case "createdAt":
		return request.CreatedAt, true
	case "updatedAt":
		return request.UpdatedAt, true
	case "errorDetail":
		return request.ErrorDetail, true
	case "participantContextId":
		return request.ParticipantContextID, true
	case "issuerDid":
		return request.IssuerDID, true
	case "issuerPid":
		return request.IssuerPID, true
	case "requestedCredentials":
		return request.RequestedCredentials, true
	}
	if rest, found := cutPrefix(field, "traceContext."); found {
		return request.TraceContext[rest], true
	}
	return nil, false
}

var _ core.HolderCredentialRequestStore = (*HolderCredentialRequestStore)(nil)
