package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ApproveIssuanceMessage]           = (*ApproveIssuanceCommand)(nil)
	_ gocmd.Commander[InitiateCredentialRequestMessage] = (*InitiateCredentialRequestCommand)(nil)
)
