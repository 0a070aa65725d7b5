package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Logger is the structured logger contract used across the module.
type Logger = glog.Logger

// LoggerProvider resolves named loggers for subsystems.
type LoggerProvider = glog.LoggerProvider

// FieldsLogger augments a logger with structured fields.
type FieldsLogger = glog.FieldsLogger

// MetricsRecorder receives operational counters and histograms. A no-op
// implementation is used unless the host wires a real backend.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Clock supplies the current time. Stores and managers take it injected so
// tests can drive lease expiry and pending-time limits deterministically.
type Clock func() time.Time

// SystemClock is the production clock.
func SystemClock() time.Time { return time.Now() }

// IssuanceProcessStore persists issuer-side processes.
//
// Save is the single durable-transition entry point: it upserts the entity
// and always releases any lease the caller holds. It fails with
// ErrAlreadyLeased when another owner holds an active lease.
type IssuanceProcessStore interface {
	Save(ctx context.Context, process *IssuanceProcess) error
	FindByID(ctx context.Context, id string) (*IssuanceProcess, error)
	// FindByIDAndLease loads the entity and acquires a lease for the caller
	// in one operation.
	FindByIDAndLease(ctx context.Context, id string) (*IssuanceProcess, error)
	// NextNotLeased atomically claims up to max entities matching the
	// criteria, oldest state timestamp first. Claimed rows are leased to the
	// caller until saved or the lease expires.
	NextNotLeased(ctx context.Context, max int, criteria ...Criterion) ([]*IssuanceProcess, error)
	Query(ctx context.Context, spec QuerySpec) ([]*IssuanceProcess, error)
}

// HolderCredentialRequestStore persists holder-side requests with the same
// lease semantics as IssuanceProcessStore.
type HolderCredentialRequestStore interface {
	Save(ctx context.Context, request *HolderCredentialRequest) error
	FindByID(ctx context.Context, id string) (*HolderCredentialRequest, error)
	FindByIDAndLease(ctx context.Context, id string) (*HolderCredentialRequest, error)
	NextNotLeased(ctx context.Context, max int, criteria ...Criterion) ([]*HolderCredentialRequest, error)
	Query(ctx context.Context, spec QuerySpec) ([]*HolderCredentialRequest, error)
}

// CredentialContainer is a generated credential plus its serialized form.
type CredentialContainer struct {
	CredentialDefinitionID string
	Format                 string
	Payload                string
	Metadata               map[string]any
}

// CredentialGenerator produces signed credential containers for one
// issuance process. Signing mechanics live behind this interface.
type CredentialGenerator interface {
	Generate(ctx context.Context, process *IssuanceProcess) ([]CredentialContainer, error)
}

// StatusListRegistrar adds freshly generated credentials to the issuer's
// revocation bookkeeping and re-signs them with status entries attached.
type StatusListRegistrar interface {
	Register(ctx context.Context, participantContextID string, credentials []CredentialContainer) ([]CredentialContainer, error)
}

// CredentialDeliveryClient pushes credentials to the holder's storage
// endpoint.
type CredentialDeliveryClient interface {
	Deliver(ctx context.Context, process *IssuanceProcess, credentials []CredentialContainer) error
}

// IssuedCredentialStore records delivered credentials on the issuer side.
type IssuedCredentialStore interface {
	StoreIssued(ctx context.Context, process *IssuanceProcess, credentials []CredentialContainer) error
}

// IssuerEndpointResolver resolves the issuer's credential-request endpoint
// from its DID document.
type IssuerEndpointResolver interface {
	ResolveRequestEndpoint(ctx context.Context, issuerDID string) (string, error)
}

// TokenService obtains a self-issued token for authenticating against the
// issuer endpoint.
type TokenService interface {
	SelfIssuedToken(ctx context.Context, participantContextID string, audience string) (string, error)
}

// CredentialRequestStatus is the issuer's answer to a status poll.
type CredentialRequestStatus string

const (
	RequestStatusReceived CredentialRequestStatus = "RECEIVED"
	RequestStatusIssued   CredentialRequestStatus = "ISSUED"
	RequestStatusRejected CredentialRequestStatus = "REJECTED"
)

// CredentialRequestClient speaks the credential-request protocol with an
// issuer endpoint.
type CredentialRequestClient interface {
	// SendRequest submits the request and returns the issuer-assigned
	// process id.
	SendRequest(ctx context.Context, endpoint, token string, request *HolderCredentialRequest) (string, error)
	// GetStatus polls the issuer for the state of a previously sent request.
	GetStatus(ctx context.Context, endpoint, token string, issuerPID string) (CredentialRequestStatus, error)
}
