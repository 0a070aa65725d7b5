package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// IssuanceProcessManager drives issuer-side processes through the
// APPROVED -> DELIVERED pipeline. It never holds a lease beyond a single
// processor pass: every claimed entity is saved before the pass returns,
// which releases its lease.
type IssuanceProcessManager struct {
	store      IssuanceProcessStore
	generator  CredentialGenerator
	statusList StatusListRegistrar
	delivery   CredentialDeliveryClient
	issued     IssuedCredentialStore

	batchSize     int
	maxStateCount int
	obs           observer
	clock         Clock
	mapErr        ErrorMapper
}

type IssuanceProcessManagerDeps struct {
	Store           IssuanceProcessStore
	Generator       CredentialGenerator
	StatusList      StatusListRegistrar
	Delivery        CredentialDeliveryClient
	IssuedStore     IssuedCredentialStore
	Logger          Logger
	MetricsRecorder MetricsRecorder
	Clock           Clock
	ErrorMapper     ErrorMapper
}

func NewIssuanceProcessManager(cfg Config, deps IssuanceProcessManagerDeps) (*IssuanceProcessManager, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("core: issuance process store is required")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("core: credential generator is required")
	}
	if deps.StatusList == nil {
		return nil, fmt.Errorf("core: status list registrar is required")
	}
	if deps.Delivery == nil {
		return nil, fmt.Errorf("core: credential delivery client is required")
	}
	if deps.IssuedStore == nil {
		return nil, fmt.Errorf("core: issued credential store is required")
	}
	batchSize := cfg.Worker.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultConfig().Worker.BatchSize
	}
	maxStateCount := cfg.Worker.MaxStateCount
	if maxStateCount <= 0 {
		maxStateCount = DefaultConfig().Worker.MaxStateCount
	}
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock
	}
	return &IssuanceProcessManager{
		store:         deps.Store,
		generator:     deps.Generator,
		statusList:    deps.StatusList,
		delivery:      deps.Delivery,
		issued:        deps.IssuedStore,
		batchSize:     batchSize,
		maxStateCount: maxStateCount,
		obs:           newObserver(deps.Logger, deps.MetricsRecorder, clock),
		clock:         clock,
		mapErr:        deps.ErrorMapper,
	}, nil
}

func (m *IssuanceProcessManager) mapError(err error) error {
	return mapWithConfiguredMapper(m.mapErr, err)
}

// Approve creates and persists a new process in the APPROVED state, making
// it eligible for the delivery pipeline.
func (m *IssuanceProcessManager) Approve(ctx context.Context, holderID, participantContextID, holderPID string, claims map[string]any, definitions []string, formats map[string]string) (*IssuanceProcess, error) {
	if m == nil || m.store == nil {
		return nil, fmt.Errorf("core: issuance process manager is not configured")
	}
	process, err := NewIssuanceProcess(uuid.NewString(), holderID, participantContextID, holderPID, m.clock())
	if err != nil {
		return nil, m.mapError(err)
	}
	if len(claims) > 0 {
		process.Claims = copyAnyMap(claims)
	}
	process.CredentialDefinitions = append([]string(nil), definitions...)
	if len(formats) > 0 {
		process.CredentialFormats = copyStringMap(formats)
	}
	if err := m.store.Save(ctx, process); err != nil {
		return nil, m.mapError(err)
	}
	return process, nil
}

// FindByID loads a process without touching its lease.
func (m *IssuanceProcessManager) FindByID(ctx context.Context, id string) (*IssuanceProcess, error) {
	if m == nil || m.store == nil {
		return nil, fmt.Errorf("core: issuance process manager is not configured")
	}
	process, err := m.store.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, m.mapError(err)
	}
	return process, nil
}

// Query runs a read-only query over processes.
func (m *IssuanceProcessManager) Query(ctx context.Context, spec QuerySpec) ([]*IssuanceProcess, error) {
	if m == nil || m.store == nil {
		return nil, fmt.Errorf("core: issuance process manager is not configured")
	}
	processes, err := m.store.Query(ctx, spec)
	if err != nil {
		return nil, m.mapError(err)
	}
	return processes, nil
}

// Processors returns the state processors to register with a StateMachine.
func (m *IssuanceProcessManager) Processors() []Processor {
	return []Processor{
		processorFunc{name: "process_approved", fn: m.processApproved},
	}
}

func (m *IssuanceProcessManager) processApproved(ctx context.Context) (int, error) {
	if m == nil || m.store == nil {
		return 0, fmt.Errorf("core: issuance process manager is not configured")
	}
	claimed, err := m.store.NextNotLeased(ctx, m.batchSize,
		NewCriterion("state", OpEqual, int(IssuanceProcessApproved)))
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, process := range claimed {
		if ctx.Err() != nil {
			break
		}
		m.handleApproved(ctx, process)
		processed++
	}
	return processed, nil
}

// handleApproved runs the four-step delivery pipeline for one claimed
// process. Whatever happens, the entity is saved so the lease is released.
func (m *IssuanceProcessManager) handleApproved(ctx context.Context, process *IssuanceProcess) {
	startedAt := m.clock()
	err := m.deliverCredentials(ctx, process)
	fields := map[string]any{
		"process_id": process.ID,
		"state":      process.StateAsString(),
	}

	switch {
	case err == nil:
		if transitionErr := process.TransitionDelivered(m.clock()); transitionErr != nil {
			err = transitionErr
		}
	case process.StateCount >= m.maxStateCount:
		detail := fmt.Sprintf("delivery retries exhausted after %d attempts: %s", process.StateCount, err.Error())
		if transitionErr := process.TransitionErrored(detail, m.clock()); transitionErr != nil {
			err = joinErrors(err, transitionErr)
		}
	default:
		process.ErrorDetail = err.Error()
		if transitionErr := process.TransitionApproved(m.clock()); transitionErr != nil {
			err = joinErrors(err, transitionErr)
		}
	}

	if saveErr := m.store.Save(ctx, process); saveErr != nil {
		err = joinErrors(err, saveErr)
	}
	fields["state"] = process.StateAsString()
	m.obs.observeOperation(ctx, startedAt, "issuance_delivery", err, fields)
}

func (m *IssuanceProcessManager) deliverCredentials(ctx context.Context, process *IssuanceProcess) error {
	credentials, err := m.generator.Generate(ctx, process)
	if err != nil {
		return fmt.Errorf("core: credential generation failed: %w", err)
	}
	credentials, err = m.statusList.Register(ctx, process.ParticipantContextID, credentials)
	if err != nil {
		return fmt.Errorf("core: status list registration failed: %w", err)
	}
	if err := m.delivery.Deliver(ctx, process, credentials); err != nil {
		return fmt.Errorf("core: credential delivery failed: %w", err)
	}
	if err := m.issued.StoreIssued(ctx, process, credentials); err != nil {
		return fmt.Errorf("core: issued credential storage failed: %w", err)
	}
	return nil
}

type processorFunc struct {
	name string
	fn   func(ctx context.Context) (int, error)
}

func (p processorFunc) Name() string { return p.name }

func (p processorFunc) Process(ctx context.Context) (int, error) { return p.fn(ctx) }

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}
