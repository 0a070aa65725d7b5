package sqlstore

import (
	"github.com/uptrace/bun"
)

type issuanceProcessRecord struct {
	bun.BaseModel `bun:"table:credential_issuance_processes,alias:cip"`

	ID                    string            `bun:"id,pk"`
	State                 int               `bun:"state,notnull"`
	StateCount            int               `bun:"state_count,notnull"`
	StateTimestamp        int64             `bun:"state_timestamp,notnull"`
	CreatedAt             int64             `bun:"created_at,notnull"`
	UpdatedAt             int64             `bun:"updated_at,notnull"`
	TraceContext          map[string]string `bun:"trace_context,type:jsonb"`
	ErrorDetail           string            `bun:"error_detail"`
	HolderID              string            `bun:"holder_id,notnull"`
	ParticipantContextID  string            `bun:"participant_context_id,notnull"`
	HolderPID             string            `bun:"holder_pid,notnull"`
	Claims                map[string]any    `bun:"claims,type:jsonb"`
	CredentialDefinitions []string          `bun:"credential_definitions,type:jsonb"`
	CredentialFormats     map[string]string `bun:"credential_formats,type:jsonb"`
}

type holderRequestRecord struct {
	bun.BaseModel `bun:"table:holder_credential_requests,alias:hcr"`

	ID                   string            `bun:"id,pk"`
	State                int               `bun:"state,notnull"`
	StateCount           int               `bun:"state_count,notnull"`
	StateTimestamp       int64             `bun:"state_timestamp,notnull"`
	CreatedAt            int64             `bun:"created_at,notnull"`
	UpdatedAt            int64             `bun:"updated_at,notnull"`
	TraceContext         map[string]string `bun:"trace_context,type:jsonb"`
	ErrorDetail          string            `bun:"error_detail"`
	ParticipantContextID string            `bun:"participant_context_id,notnull"`
	IssuerDID            string            `bun:"issuer_did,notnull"`
	RequestedCredentials []map[string]any  `bun:"requested_credentials,type:jsonb"`
	IssuerPID            string            `bun:"issuer_pid"`
}

// processLeaseRecord is shared by every workflow; the (process_kind,
// entity_id) pair is the primary key so an entity can carry at most one
// lease at a time.
type processLeaseRecord struct {
	bun.BaseModel `bun:"table:credential_process_leases,alias:cpl"`

	ProcessKind     string `bun:"process_kind,pk"`
	EntityID        string `bun:"entity_id,pk"`
	LeasedBy        string `bun:"leased_by,notnull"`
	LeasedAt        int64  `bun:"leased_at,notnull"`
	LeaseDurationMS int64  `bun:"lease_duration_ms,notnull"`
}
