package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/tavenor/credstate/core"
)

type IssuanceMutatingService interface {
	Approve(ctx context.Context, holderID, participantContextID, holderPID string, claims map[string]any, definitions []string, formats map[string]string) (*core.IssuanceProcess, error)
}

type HolderRequestMutatingService interface {
	InitiateRequest(ctx context.Context, participantContextID, issuerDID string, requested []core.RequestedCredential) (string, error)
}

type ApproveIssuanceCommand struct {
	service IssuanceMutatingService
}

func NewApproveIssuanceCommand(service IssuanceMutatingService) *ApproveIssuanceCommand {
	return &ApproveIssuanceCommand{service: service}
}

func (c *ApproveIssuanceCommand) Execute(ctx context.Context, msg ApproveIssuanceMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: issuance service is required")
	}
	process, err := c.service.Approve(
		ctx,
		msg.HolderID,
		msg.ParticipantContextID,
		msg.HolderPID,
		msg.Claims,
		msg.CredentialDefinitions,
		msg.CredentialFormats,
	)
	if err != nil {
		return err
	}
	storeResult(ctx, process)
	return nil
}

type InitiateCredentialRequestCommand struct {
	service HolderRequestMutatingService
}

func NewInitiateCredentialRequestCommand(service HolderRequestMutatingService) *InitiateCredentialRequestCommand {
	return &InitiateCredentialRequestCommand{service: service}
}

func (c *InitiateCredentialRequestCommand) Execute(ctx context.Context, msg InitiateCredentialRequestMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: holder request service is required")
	}
	id, err := c.service.InitiateRequest(ctx, msg.ParticipantContextID, msg.IssuerDID, msg.Credentials)
	if err != nil {
		return err
	}
	storeResult(ctx, id)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
