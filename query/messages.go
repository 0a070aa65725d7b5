package query

import (
	"fmt"
	"strings"

	"github.com/tavenor/credstate/core"
)

const (
	TypeGetIssuanceProcess    = "credstate.query.issuance_process.get"
	TypeListIssuanceProcesses = "credstate.query.issuance_process.list"
	TypeGetHolderRequest      = "credstate.query.holder_request.get"
	TypeListHolderRequests    = "credstate.query.holder_request.list"
)

type GetIssuanceProcessMessage struct {
	ProcessID string
}

func (GetIssuanceProcessMessage) Type() string { return TypeGetIssuanceProcess }

func (m GetIssuanceProcessMessage) Validate() error {
	if strings.TrimSpace(m.ProcessID) == "" {
		return fmt.Errorf("query: process id is required")
	}
	return nil
}

type ListIssuanceProcessesMessage struct {
	Spec core.QuerySpec
}

func (ListIssuanceProcessesMessage) Type() string { return TypeListIssuanceProcesses }

func (m ListIssuanceProcessesMessage) Validate() error {
	if err := m.Spec.Validate(); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return nil
}

type GetHolderRequestMessage struct {
	RequestID string
}

func (GetHolderRequestMessage) Type() string { return TypeGetHolderRequest }

func (m GetHolderRequestMessage) Validate() error {
	if strings.TrimSpace(m.RequestID) == "" {
		return fmt.Errorf("query: request id is required")
	}
	return nil
}

type ListHolderRequestsMessage struct {
	Spec core.QuerySpec
}

func (ListHolderRequestsMessage) Type() string { return TypeListHolderRequests }

func (m ListHolderRequestsMessage) Validate() error {
	if err := m.Spec.Validate(); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return nil
}
