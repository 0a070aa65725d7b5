package query

import (
	"context"

	"github.com/tavenor/credstate/core"
)

type IssuanceProcessReader interface {
	FindByID(ctx context.Context, id string) (*core.IssuanceProcess, error)
	Query(ctx context.Context, spec core.QuerySpec) ([]*core.IssuanceProcess, error)
}

type HolderRequestReader interface {
	FindByID(ctx context.Context, id string) (*core.HolderCredentialRequest, error)
	Query(ctx context.Context, spec core.QuerySpec) ([]*core.HolderCredentialRequest, error)
}

type GetIssuanceProcessQuery struct {
	reader IssuanceProcessReader
}

func NewGetIssuanceProcessQuery(reader IssuanceProcessReader) *GetIssuanceProcessQuery {
	return &GetIssuanceProcessQuery{reader: reader}
}

func (q *GetIssuanceProcessQuery) Query(ctx context.Context, msg GetIssuanceProcessMessage) (*core.IssuanceProcess, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: issuance process reader is required")
	}
	return q.reader.FindByID(ctx, msg.ProcessID)
}

type ListIssuanceProcessesQuery struct {
	reader IssuanceProcessReader
}

func NewListIssuanceProcessesQuery(reader IssuanceProcessReader) *ListIssuanceProcessesQuery {
	return &ListIssuanceProcessesQuery{reader: reader}
}

func (q *ListIssuanceProcessesQuery) Query(
	ctx context.Context,
	msg ListIssuanceProcessesMessage,
) ([]*core.IssuanceProcess, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: issuance process reader is required")
	}
	return q.reader.Query(ctx, msg.Spec)
}

type GetHolderRequestQuery struct {
	reader HolderRequestReader
}

func NewGetHolderRequestQuery(reader HolderRequestReader) *GetHolderRequestQuery {
	return &GetHolderRequestQuery{reader: reader}
}

func (q *GetHolderRequestQuery) Query(ctx context.Context, msg GetHolderRequestMessage) (*core.HolderCredentialRequest, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: holder request reader is required")
	}
	return q.reader.FindByID(ctx, msg.RequestID)
}

type ListHolderRequestsQuery struct {
	reader HolderRequestReader
}

func NewListHolderRequestsQuery(reader HolderRequestReader) *ListHolderRequestsQuery {
	return &ListHolderRequestsQuery{reader: reader}
}

func (q *ListHolderRequestsQuery) Query(
	ctx context.Context,
	msg ListHolderRequestsMessage,
) ([]*core.HolderCredentialRequest, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: holder request reader is required")
	}
	return q.reader.Query(ctx, msg.Spec)
}
