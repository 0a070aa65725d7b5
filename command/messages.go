package command

import (
	"fmt"
	"strings"

	"github.com/tavenor/credstate/core"
)

const (
	TypeApproveIssuance           = "credstate.command.issuance.approve"
	TypeInitiateCredentialRequest = "credstate.command.holder_request.initiate"
)

type ApproveIssuanceMessage struct {
	HolderID              string
	ParticipantContextID  string
	HolderPID             string
	Claims                map[string]any
	CredentialDefinitions []string
	CredentialFormats     map[string]string
}

func (ApproveIssuanceMessage) Type() string { return TypeApproveIssuance }

func (m ApproveIssuanceMessage) Validate() error {
	if strings.TrimSpace(m.HolderID) == "" {
		return fmt.Errorf("command: holder id is required")
	}
	if strings.TrimSpace(m.ParticipantContextID) == "" {
		return fmt.Errorf("command: participant context id is required")
	}
	if len(m.CredentialDefinitions) == 0 {
		return fmt.Errorf("command: at least one credential definition is required")
	}
	return nil
}

type InitiateCredentialRequestMessage struct {
	ParticipantContextID string
	IssuerDID            string
	Credentials          []core.RequestedCredential
}

func (InitiateCredentialRequestMessage) Type() string { return TypeInitiateCredentialRequest }

func (m InitiateCredentialRequestMessage) Validate() error {
	if strings.TrimSpace(m.ParticipantContextID) == "" {
		return fmt.Errorf("command: participant context id is required")
	}
	if strings.TrimSpace(m.IssuerDID) == "" {
		return fmt.Errorf("command: issuer did is required")
	}
	if len(m.Credentials) == 0 {
		return fmt.Errorf("command: at least one requested credential is required")
	}
	for _, credential := range m.Credentials {
		if strings.TrimSpace(credential.CredentialObjectID) == "" {
			return fmt.Errorf("command: requested credential object id is required")
		}
	}
	return nil
}
