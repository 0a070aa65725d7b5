package credstate

import (
	"context"
	"fmt"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/tavenor/credstate/core"
	"github.com/tavenor/credstate/query"
	sqlstore "github.com/tavenor/credstate/store/sql"
)

// Queries exposes the read-side handlers for hosts that dispatch through a
// command bus. Handlers for a workflow that is not wired are nil.
type Queries struct {
	GetIssuanceProcess    *query.GetIssuanceProcessQuery
	ListIssuanceProcesses *query.ListIssuanceProcessesQuery
	GetHolderRequest      *query.GetHolderRequestQuery
	ListHolderRequests    *query.ListHolderRequestsQuery
}

type Facade struct {
	service *core.Service
	queries Queries
}

// NewFacade wraps an already constructed service with its query handlers.
func NewFacade(service *core.Service) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("credstate: service is required")
	}
	facade := &Facade{service: service}
	if manager := service.IssuanceProcesses(); manager != nil {
		facade.queries.GetIssuanceProcess = query.NewGetIssuanceProcessQuery(manager)
		facade.queries.ListIssuanceProcesses = query.NewListIssuanceProcessesQuery(manager)
	}
	if manager := service.CredentialRequests(); manager != nil {
		facade.queries.GetHolderRequest = query.NewGetHolderRequestQuery(manager)
		facade.queries.ListHolderRequests = query.NewListHolderRequestsQuery(manager)
	}
	return facade, nil
}

func (f *Facade) Service() *core.Service {
	if f == nil {
		return nil
	}
	return f.service
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Start(ctx context.Context) error {
	if f == nil || f.service == nil {
		return fmt.Errorf("credstate: facade is not configured")
	}
	return f.service.Start(ctx)
}

func (f *Facade) Stop(ctx context.Context) error {
	if f == nil || f.service == nil {
		return nil
	}
	return f.service.Stop(ctx)
}

type SetupOption func(*setupOptions)

type setupOptions struct {
	disableIssuance      bool
	disableHolderRequest bool
	issuanceCache        repositorycache.CacheService
}

// WithoutIssuance skips the issuer-side workflow even when the SQL stores
// can serve it.
func WithoutIssuance() SetupOption {
	return func(options *setupOptions) {
		options.disableIssuance = true
	}
}

// WithoutHolderRequests skips the holder-side workflow.
func WithoutHolderRequests() SetupOption {
	return func(options *setupOptions) {
		options.disableHolderRequest = true
	}
}

// WithIssuanceCache layers a read-through cache over issuance point lookups.
func WithIssuanceCache(cacheService repositorycache.CacheService) SetupOption {
	return func(options *setupOptions) {
		options.issuanceCache = cacheService
	}
}

// New builds a service over a provided *core.Config with explicit options.
// It is the low-level entry point; most hosts use Setup.
func New(ctx context.Context, runtime Config, options ...Option) (*Service, error) {
	return core.New(ctx, runtime, options...)
}

// Setup wires SQL-backed stores from a persistence client (or *bun.DB),
// builds the service, and returns a facade with query handlers. Workflow
// collaborators still arrive through the core With* options.
func Setup(
	ctx context.Context,
	runtime Config,
	persistenceClient any,
	setupOpts []SetupOption,
	options ...Option,
) (*Facade, error) {
	cfg := setupOptions{}
	for _, opt := range setupOpts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.disableIssuance && cfg.disableHolderRequest {
		return nil, fmt.Errorf("credstate: at least one workflow must stay enabled")
	}

	// The lease owner and duration must come from the resolved config, not
	// the raw runtime overrides, so hosts relying on config providers or
	// defaults still get a valid lease identity.
	resolved, err := core.ResolveRuntimeConfig(ctx, runtime, options...)
	if err != nil {
		return nil, fmt.Errorf("credstate: config resolution failed: %w", err)
	}

	factory := sqlstore.NewRepositoryFactory(sqlstore.FactoryConfig{
		Owner:         resolved.RuntimeID,
		LeaseDuration: resolved.LeaseDuration,
	})
	if err := factory.BuildStores(persistenceClient); err != nil {
		return nil, err
	}

	wired := make([]Option, 0, len(options)+2)
	if !cfg.disableIssuance {
		issuanceStore := factory.IssuanceProcessStore()
		if cfg.issuanceCache != nil {
			cached, err := sqlstore.NewCachedIssuanceProcessStore(issuanceStore, cfg.issuanceCache)
			if err != nil {
				return nil, err
			}
			issuanceStore = cached
		}
		wired = append(wired, core.WithIssuanceProcessStore(issuanceStore))
	}
	if !cfg.disableHolderRequest {
		wired = append(wired, core.WithHolderCredentialRequestStore(factory.HolderCredentialRequestStore()))
	}
	wired = append(wired, options...)

	service, err := core.New(ctx, resolved, wired...)
	if err != nil {
		return nil, err
	}
	return NewFacade(service)
}
