package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func issuanceProcessHandlers() repository.ModelHandlers[*issuanceProcessRecord] {
	return repository.ModelHandlers[*issuanceProcessRecord]{
		NewRecord: func() *issuanceProcessRecord {
			return &issuanceProcessRecord{}
		},
		GetID: func(record *issuanceProcessRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *issuanceProcessRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *issuanceProcessRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func holderRequestHandlers() repository.ModelHandlers[*holderRequestRecord] {
	return repository.ModelHandlers[*holderRequestRecord]{
		NewRecord: func() *holderRequestRecord {
			return &holderRequestRecord{}
		},
		GetID: func(record *holderRequestRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *holderRequestRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *holderRequestRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
