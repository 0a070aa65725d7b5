package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig    Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorMapper      ErrorMapper
	clock            Clock
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	issuanceStore    IssuanceProcessStore
	requestStore     HolderCredentialRequestStore
	generator        CredentialGenerator
	statusList       StatusListRegistrar
	delivery         CredentialDeliveryClient
	issuedStore      IssuedCredentialStore
	endpointResolver IssuerEndpointResolver
	tokenService     TokenService
	requestClient    CredentialRequestClient
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

// WithErrorMapper replaces the default service error mapper. The configured
// mapper shapes every error the workflow managers return.
func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithClock(clock Clock) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithIssuanceProcessStore(store IssuanceProcessStore) Option {
	return func(b *serviceBuilder) {
		b.issuanceStore = store
	}
}

func WithHolderCredentialRequestStore(store HolderCredentialRequestStore) Option {
	return func(b *serviceBuilder) {
		b.requestStore = store
	}
}

func WithCredentialGenerator(generator CredentialGenerator) Option {
	return func(b *serviceBuilder) {
		b.generator = generator
	}
}

func WithStatusListRegistrar(registrar StatusListRegistrar) Option {
	return func(b *serviceBuilder) {
		b.statusList = registrar
	}
}

func WithCredentialDeliveryClient(client CredentialDeliveryClient) Option {
	return func(b *serviceBuilder) {
		b.delivery = client
	}
}

func WithIssuedCredentialStore(store IssuedCredentialStore) Option {
	return func(b *serviceBuilder) {
		b.issuedStore = store
	}
}

func WithIssuerEndpointResolver(resolver IssuerEndpointResolver) Option {
	return func(b *serviceBuilder) {
		b.endpointResolver = resolver
	}
}

func WithTokenService(service TokenService) Option {
	return func(b *serviceBuilder) {
		b.tokenService = service
	}
}

func WithCredentialRequestClient(client CredentialRequestClient) Option {
	return func(b *serviceBuilder) {
		b.requestClient = client
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("credstate", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		clock:           SystemClock,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.RuntimeID) != "" {
		layer["runtime_id"] = cfg.RuntimeID
	}
	if includeZero || cfg.LeaseDuration > 0 {
		layer["lease_duration"] = cfg.LeaseDuration
	}
	if includeZero || cfg.RequestTimeLimit > 0 {
		layer["request_time_limit"] = cfg.RequestTimeLimit
	}

	worker := map[string]any{}
	if includeZero || cfg.Worker.BatchSize > 0 {
		worker["batch_size"] = cfg.Worker.BatchSize
	}
	if includeZero || cfg.Worker.PollInterval > 0 {
		worker["poll_interval"] = cfg.Worker.PollInterval
	}
	if includeZero || cfg.Worker.MaxStateCount > 0 {
		worker["max_state_count"] = cfg.Worker.MaxStateCount
	}
	if len(worker) > 0 {
		layer["worker"] = worker
	}
	return layer
}

// ResolveRuntimeConfig resolves the configuration exactly as New would,
// honoring any WithConfigProvider/WithOptionsResolver options. Hosts that
// need resolved values before constructing collaborators (lease owner,
// lease duration) call this first.
func ResolveRuntimeConfig(ctx context.Context, runtime Config, options ...Option) (Config, error) {
	builder := defaultServiceBuilder(runtime)
	for _, option := range options {
		if option != nil {
			option(&builder)
		}
	}
	return ResolveConfig(ctx, builder.configProvider, builder.optionsResolver, builder.runtimeConfig)
}

// ResolveConfig layers defaults, provider-loaded config, and runtime
// overrides into one validated Config.
func ResolveConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}
