package core

import (
	"context"
	"fmt"
)

// Service bundles both workflow managers and their state machines behind one
// lifecycle. Hosts construct it with New and the With* options, then call
// Start/Stop around their own lifecycle.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	clock           Clock

	issuanceManager *IssuanceProcessManager
	requestManager  *CredentialRequestManager
	machines        []*StateMachine
}

// New resolves configuration through the provider/resolver chain and wires
// the managers. A missing workflow store disables that workflow's state
// machine rather than failing construction, so issuer-only and holder-only
// runtimes are both valid.
func New(ctx context.Context, runtime Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(runtime)
	for _, option := range options {
		if option != nil {
			option(&builder)
		}
	}

	cfg, err := ResolveConfig(ctx, builder.configProvider, builder.optionsResolver, builder.runtimeConfig)
	if err != nil {
		return nil, fmt.Errorf("core: config resolution failed: %w", err)
	}

	service := &Service{
		config:          cfg,
		logger:          builder.logger,
		loggerProvider:  builder.loggerProvider,
		metricsRecorder: builder.metricsRecorder,
		clock:           builder.clock,
	}

	if builder.issuanceStore != nil {
		if builder.generator == nil || builder.statusList == nil || builder.delivery == nil || builder.issuedStore == nil {
			return nil, fmt.Errorf("core: issuance workflow needs generator, status list registrar, delivery client, and issued credential store")
		}
		manager, err := NewIssuanceProcessManager(cfg, IssuanceProcessManagerDeps{
			Store:           builder.issuanceStore,
			Generator:       builder.generator,
			StatusList:      builder.statusList,
			Delivery:        builder.delivery,
			IssuedStore:     builder.issuedStore,
			Logger:          service.namedLogger("issuance"),
			MetricsRecorder: builder.metricsRecorder,
			Clock:           builder.clock,
			ErrorMapper:     builder.errorMapper,
		})
		if err != nil {
			return nil, err
		}
		machine, err := NewStateMachine("issuance", cfg.Worker.PollInterval,
			service.namedLogger("issuance"), builder.metricsRecorder, manager.Processors()...)
		if err != nil {
			return nil, err
		}
		service.issuanceManager = manager
		service.machines = append(service.machines, machine)
	}

	if builder.requestStore != nil {
		if builder.endpointResolver == nil || builder.tokenService == nil || builder.requestClient == nil {
			return nil, fmt.Errorf("core: holder request workflow needs endpoint resolver, token service, and request client")
		}
		manager, err := NewCredentialRequestManager(cfg, CredentialRequestManagerDeps{
			Store:            builder.requestStore,
			EndpointResolver: builder.endpointResolver,
			TokenService:     builder.tokenService,
			Client:           builder.requestClient,
			Logger:           service.namedLogger("holder_request"),
			MetricsRecorder:  builder.metricsRecorder,
			Clock:            builder.clock,
			ErrorMapper:      builder.errorMapper,
		})
		if err != nil {
			return nil, err
		}
		machine, err := NewStateMachine("holder_request", cfg.Worker.PollInterval,
			service.namedLogger("holder_request"), builder.metricsRecorder, manager.Processors()...)
		if err != nil {
			return nil, err
		}
		service.requestManager = manager
		service.machines = append(service.machines, machine)
	}

	if service.issuanceManager == nil && service.requestManager == nil {
		return nil, fmt.Errorf("core: at least one workflow store is required")
	}

	return service, nil
}

func (s *Service) namedLogger(name string) Logger {
	if s.loggerProvider != nil {
		if logger := s.loggerProvider.GetLogger(name); logger != nil {
			return logger
		}
	}
	return s.logger
}

// Config returns the resolved configuration.
func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

// IssuanceProcesses returns the issuer-side manager, or nil when the
// issuance workflow is not wired.
func (s *Service) IssuanceProcesses() *IssuanceProcessManager {
	if s == nil {
		return nil
	}
	return s.issuanceManager
}

// CredentialRequests returns the holder-side manager, or nil when the
// holder workflow is not wired.
func (s *Service) CredentialRequests() *CredentialRequestManager {
	if s == nil {
		return nil
	}
	return s.requestManager
}

// Start launches all configured state machines.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	for _, machine := range s.machines {
		if err := machine.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop halts all state machines, waiting for in-flight ticks to drain.
func (s *Service) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var stopErr error
	for _, machine := range s.machines {
		if err := machine.Stop(ctx); err != nil {
			stopErr = joinErrors(stopErr, err)
		}
	}
	return stopErr
}
