package query

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/tavenor/credstate/core"
)

type stubIssuanceReader struct {
	process  *core.IssuanceProcess
	list     []*core.IssuanceProcess
	findErr  error
	queryErr error
	lastID   string
	lastSpec core.QuerySpec
}

func (r *stubIssuanceReader) FindByID(_ context.Context, id string) (*core.IssuanceProcess, error) {
	r.lastID = id
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.process, nil
}

func (r *stubIssuanceReader) Query(_ context.Context, spec core.QuerySpec) ([]*core.IssuanceProcess, error) {
	r.lastSpec = spec
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	return r.list, nil
}

type stubHolderReader struct {
	request *core.HolderCredentialRequest
	list    []*core.HolderCredentialRequest
	findErr error
}

func (r *stubHolderReader) FindByID(context.Context, string) (*core.HolderCredentialRequest, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.request, nil
}

func (r *stubHolderReader) Query(context.Context, core.QuerySpec) ([]*core.HolderCredentialRequest, error) {
	return r.list, nil
}

func testProcess(t *testing.T, id string) *core.IssuanceProcess {
	t.Helper()
	process, err := core.NewIssuanceProcess(id, "holder-1", "participant-1", "holder-pid-1", time.Now().UTC())
	if err != nil {
		t.Fatalf("new issuance process: %v", err)
	}
	return process
}

func testRequest(t *testing.T, id string) *core.HolderCredentialRequest {
	t.Helper()
	request, err := core.NewHolderCredentialRequest(id, "participant-1", "did:web:issuer.example", []core.RequestedCredential{
		{CredentialObjectID: "membership-object"},
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("new holder request: %v", err)
	}
	return request
}

func TestGetIssuanceProcessQuery_DelegatesToReader(t *testing.T) {
	reader := &stubIssuanceReader{process: testProcess(t, "proc_1")}
	qry := NewGetIssuanceProcessQuery(reader)

	process, err := qry.Query(context.Background(), GetIssuanceProcessMessage{ProcessID: "proc_1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if process.ID != "proc_1" || reader.lastID != "proc_1" {
		t.Fatalf("expected lookup by id, got %q (reader saw %q)", process.ID, reader.lastID)
	}
}

func TestGetIssuanceProcessQuery_PropagatesNotFound(t *testing.T) {
	reader := &stubIssuanceReader{findErr: core.ErrNotFound}
	qry := NewGetIssuanceProcessQuery(reader)

	if _, err := qry.Query(context.Background(), GetIssuanceProcessMessage{ProcessID: "missing"}); err != core.ErrNotFound {
		t.Fatalf("expected ErrNotFound passthrough, got %v", err)
	}
}

func TestListIssuanceProcessesQuery_PassesSpecThrough(t *testing.T) {
	reader := &stubIssuanceReader{list: []*core.IssuanceProcess{testProcess(t, "proc_1")}}
	qry := NewListIssuanceProcessesQuery(reader)

	spec := core.NewQuerySpec().WithCriterion("state", core.OpEqual, "APPROVED").WithPage(5, 10)
	list, err := qry.Query(context.Background(), ListIssuanceProcessesMessage{Spec: spec})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one result, got %d", len(list))
	}
	if reader.lastSpec.Offset != 5 || reader.lastSpec.Limit != 10 {
		t.Fatalf("expected spec passthrough, got %+v", reader.lastSpec)
	}
	if len(reader.lastSpec.Criteria) != 1 {
		t.Fatalf("expected criteria passthrough, got %v", reader.lastSpec.Criteria)
	}
}

func TestHolderRequestQueries_DelegateToReader(t *testing.T) {
	reader := &stubHolderReader{
		request: testRequest(t, "req_1"),
		list:    []*core.HolderCredentialRequest{testRequest(t, "req_1")},
	}

	request, err := NewGetHolderRequestQuery(reader).Query(context.Background(), GetHolderRequestMessage{RequestID: "req_1"})
	if err != nil {
		t.Fatalf("get query: %v", err)
	}
	if request.ID != "req_1" {
		t.Fatalf("unexpected request: %#v", request)
	}

	list, err := NewListHolderRequestsQuery(reader).Query(context.Background(), ListHolderRequestsMessage{Spec: core.NewQuerySpec()})
	if err != nil {
		t.Fatalf("list query: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one result, got %d", len(list))
	}
}

func TestQueries_RequireConfiguredReader(t *testing.T) {
	_, err := (&GetIssuanceProcessQuery{}).Query(context.Background(), GetIssuanceProcessMessage{ProcessID: "proc_1"})
	if err == nil {
		t.Fatalf("expected dependency error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal || rich.TextCode != core.ServiceErrorInternal {
		t.Fatalf("unexpected dependency envelope: %q %q", rich.Category, rich.TextCode)
	}

	if _, err := (&ListHolderRequestsQuery{}).Query(context.Background(), ListHolderRequestsMessage{}); err == nil {
		t.Fatalf("expected dependency error for list query")
	}
}

func TestQueryMessages_Validate(t *testing.T) {
	if err := (GetIssuanceProcessMessage{ProcessID: "proc_1"}).Validate(); err != nil {
		t.Fatalf("expected valid get message, got %v", err)
	}
	if err := (GetIssuanceProcessMessage{ProcessID: "  "}).Validate(); err == nil {
		t.Fatalf("expected blank process id to fail")
	}
	if err := (GetHolderRequestMessage{}).Validate(); err == nil {
		t.Fatalf("expected blank request id to fail")
	}

	if err := (ListIssuanceProcessesMessage{Spec: core.NewQuerySpec()}).Validate(); err != nil {
		t.Fatalf("expected valid list message, got %v", err)
	}
	bad := core.NewQuerySpec().WithCriterion("state", core.Operator(">"), 100)
	if err := (ListHolderRequestsMessage{Spec: bad}).Validate(); err == nil {
		t.Fatalf("expected invalid spec to fail validation")
	}

	types := map[string]string{
		GetIssuanceProcessMessage{}.Type():    TypeGetIssuanceProcess,
		ListIssuanceProcessesMessage{}.Type(): TypeListIssuanceProcesses,
		GetHolderRequestMessage{}.Type():      TypeGetHolderRequest,
		ListHolderRequestsMessage{}.Type():    TypeListHolderRequests,
	}
	for got, want := range types {
		if got != want {
			t.Fatalf("unexpected message type: got %q want %q", got, want)
		}
	}
}
