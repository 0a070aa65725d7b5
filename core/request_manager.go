package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CredentialRequestManager drives holder-side requests from CREATED through
// ISSUED. Sending the request and polling its status are separate processors
// so a runtime restart between them resumes cleanly from persisted state.
type CredentialRequestManager struct {
	store            HolderCredentialRequestStore
	endpointResolver IssuerEndpointResolver
	tokenService     TokenService
	client           CredentialRequestClient

	batchSize        int
	maxStateCount    int
	requestTimeLimit time.Duration
	obs              observer
	clock            Clock
	mapErr           ErrorMapper
}

type CredentialRequestManagerDeps struct {
	Store            HolderCredentialRequestStore
	EndpointResolver IssuerEndpointResolver
	TokenService     TokenService
	Client           CredentialRequestClient
	Logger           Logger
	MetricsRecorder  MetricsRecorder
	Clock            Clock
	ErrorMapper      ErrorMapper
}

func NewCredentialRequestManager(cfg Config, deps CredentialRequestManagerDeps) (*CredentialRequestManager, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("core: holder credential request store is required")
	}
	if deps.EndpointResolver == nil {
		return nil, fmt.Errorf("core: issuer endpoint resolver is required")
	}
	if deps.TokenService == nil {
		return nil, fmt.Errorf("core: token service is required")
	}
	if deps.Client == nil {
		return nil, fmt.Errorf("core: credential request client is required")
	}
	batchSize := cfg.Worker.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultConfig().Worker.BatchSize
	}
	maxStateCount := cfg.Worker.MaxStateCount
	if maxStateCount <= 0 {
		maxStateCount = DefaultConfig().Worker.MaxStateCount
	}
	requestTimeLimit := cfg.RequestTimeLimit
	if requestTimeLimit <= 0 {
		requestTimeLimit = DefaultConfig().RequestTimeLimit
	}
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock
	}
	return &CredentialRequestManager{
		store:            deps.Store,
		endpointResolver: deps.EndpointResolver,
		tokenService:     deps.TokenService,
		client:           deps.Client,
		batchSize:        batchSize,
		maxStateCount:    maxStateCount,
		requestTimeLimit: requestTimeLimit,
		obs:              newObserver(deps.Logger, deps.MetricsRecorder, clock),
		clock:            clock,
		mapErr:           deps.ErrorMapper,
	}, nil
}

func (m *CredentialRequestManager) mapError(err error) error {
	return mapWithConfiguredMapper(m.mapErr, err)
}

// InitiateRequest persists a new request in the CREATED state and returns
// its holder-assigned id. The worker picks it up on the next tick.
func (m *CredentialRequestManager) InitiateRequest(ctx context.Context, participantContextID, issuerDID string, requested []RequestedCredential) (string, error) {
	if m == nil || m.store == nil {
		return "", fmt.Errorf("core: credential request manager is not configured")
	}
	request, err := NewHolderCredentialRequest(uuid.NewString(), participantContextID, issuerDID, requested, m.clock())
	if err != nil {
		return "", m.mapError(err)
	}
	if err := m.store.Save(ctx, request); err != nil {
		return "", m.mapError(err)
	}
	return request.ID, nil
}

// FindByID loads a request without touching its lease.
func (m *CredentialRequestManager) FindByID(ctx context.Context, id string) (*HolderCredentialRequest, error) {
	if m == nil || m.store == nil {
		return nil, fmt.Errorf("core: credential request manager is not configured")
	}
	request, err := m.store.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, m.mapError(err)
	}
	return request, nil
}

// Query runs a read-only query over requests.
func (m *CredentialRequestManager) Query(ctx context.Context, spec QuerySpec) ([]*HolderCredentialRequest, error) {
	if m == nil || m.store == nil {
		return nil, fmt.Errorf("core: credential request manager is not configured")
	}
	requests, err := m.store.Query(ctx, spec)
	if err != nil {
		return nil, m.mapError(err)
	}
	return requests, nil
}

// Processors returns the state processors to register with a StateMachine.
func (m *CredentialRequestManager) Processors() []Processor {
	return []Processor{
		processorFunc{name: "send_requests", fn: m.processPending},
		processorFunc{name: "poll_requested", fn: m.processRequested},
	}
}

// processPending claims CREATED and REQUESTING requests and sends them to
// the issuer. REQUESTING entries are resends after a crash mid-send.
func (m *CredentialRequestManager) processPending(ctx context.Context) (int, error) {
	if m == nil || m.store == nil {
		return 0, fmt.Errorf("core: credential request manager is not configured")
	}
	claimed, err := m.store.NextNotLeased(ctx, m.batchSize,
		NewCriterion("state", OpIn, []int{int(HolderRequestCreated), int(HolderRequestRequesting)}))
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, request := range claimed {
		if ctx.Err() != nil {
			break
		}
		m.handlePending(ctx, request)
		processed++
	}
	return processed, nil
}

func (m *CredentialRequestManager) handlePending(ctx context.Context, request *HolderCredentialRequest) {
	startedAt := m.clock()
	fields := map[string]any{
		"process_id": request.ID,
		"issuer_did": request.IssuerDID,
	}

	err := m.sendRequest(ctx, request)
	if err != nil {
		m.failRequest(request, err)
	}
	if saveErr := m.store.Save(ctx, request); saveErr != nil {
		err = joinErrors(err, saveErr)
	}
	fields["state"] = request.StateAsString()
	m.obs.observeOperation(ctx, startedAt, "credential_request_send", err, fields)
}

func (m *CredentialRequestManager) sendRequest(ctx context.Context, request *HolderCredentialRequest) error {
	endpoint, err := m.endpointResolver.ResolveRequestEndpoint(ctx, request.IssuerDID)
	if err != nil {
		return fmt.Errorf("core: issuer endpoint resolution failed for %s: %w", request.IssuerDID, err)
	}
	token, err := m.tokenService.SelfIssuedToken(ctx, request.ParticipantContextID, request.IssuerDID)
	if err != nil {
		return fmt.Errorf("core: token issuance failed: %w", err)
	}
	if err := request.TransitionRequesting(m.clock()); err != nil {
		return err
	}
	issuerPID, err := m.client.SendRequest(ctx, endpoint, token, request)
	if err != nil {
		return fmt.Errorf("core: credential request to %s failed: %w", endpoint, err)
	}
	if strings.TrimSpace(issuerPID) == "" {
		return fmt.Errorf("core: issuer returned an empty process id")
	}
	return request.TransitionRequested(issuerPID, m.clock())
}

// processRequested claims REQUESTED requests and polls the issuer for their
// outcome. Requests pending beyond the configured limit are errored out.
func (m *CredentialRequestManager) processRequested(ctx context.Context) (int, error) {
	if m == nil || m.store == nil {
		return 0, fmt.Errorf("core: credential request manager is not configured")
	}
	claimed, err := m.store.NextNotLeased(ctx, m.batchSize,
		NewCriterion("state", OpEqual, int(HolderRequestRequested)))
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, request := range claimed {
		if ctx.Err() != nil {
			break
		}
		m.handleRequested(ctx, request)
		processed++
	}
	return processed, nil
}

func (m *CredentialRequestManager) handleRequested(ctx context.Context, request *HolderCredentialRequest) {
	startedAt := m.clock()
	fields := map[string]any{
		"process_id": request.ID,
		"issuer_pid": request.IssuerPID,
	}

	err := m.pollStatus(ctx, request)
	if err != nil {
		m.failRequest(request, err)
	}
	if saveErr := m.store.Save(ctx, request); saveErr != nil {
		err = joinErrors(err, saveErr)
	}
	fields["state"] = request.StateAsString()
	m.obs.observeOperation(ctx, startedAt, "credential_request_poll", err, fields)
}

func (m *CredentialRequestManager) pollStatus(ctx context.Context, request *HolderCredentialRequest) error {
	pendingFor := m.clock().Sub(time.UnixMilli(request.StateTimestamp))
	if pendingFor > m.requestTimeLimit {
		return request.TransitionError(
			fmt.Sprintf("issuer did not answer within %s", m.requestTimeLimit), m.clock())
	}

	endpoint, err := m.endpointResolver.ResolveRequestEndpoint(ctx, request.IssuerDID)
	if err != nil {
		return fmt.Errorf("core: issuer endpoint resolution failed for %s: %w", request.IssuerDID, err)
	}
	token, err := m.tokenService.SelfIssuedToken(ctx, request.ParticipantContextID, request.IssuerDID)
	if err != nil {
		return fmt.Errorf("core: token issuance failed: %w", err)
	}
	status, err := m.client.GetStatus(ctx, endpoint, token, request.IssuerPID)
	if err != nil {
		return fmt.Errorf("core: status poll for %s failed: %w", request.IssuerPID, err)
	}

	switch status {
	case RequestStatusIssued:
		return request.TransitionIssued(m.clock())
	case RequestStatusReceived:
		// Still pending at the issuer; saving as-is releases the lease and
		// keeps the request eligible for the next poll.
		return nil
	case RequestStatusRejected:
		return request.TransitionError("issuer rejected the credential request", m.clock())
	default:
		return request.TransitionError(
			fmt.Sprintf("issuer reported unexpected status %q", string(status)), m.clock())
	}
}

// failRequest records the failure. Retryable failures keep the current state
// with an incremented attempt count until the retry budget runs out.
func (m *CredentialRequestManager) failRequest(request *HolderCredentialRequest, cause error) {
	if request.StateCount >= m.maxStateCount {
		_ = request.TransitionError(
			fmt.Sprintf("retries exhausted after %d attempts: %s", request.StateCount, cause.Error()), m.clock())
		return
	}
	state := HolderRequestState(request.State)
	if state == HolderRequestError || state == HolderRequestIssued {
		return
	}
	request.ErrorDetail = cause.Error()
	request.StateCount++
	request.Touch(m.clock())
}
