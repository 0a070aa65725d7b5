package credstate

import "github.com/tavenor/credstate/core"

type Config = core.Config

type WorkerConfig = core.WorkerConfig

type Option = core.Option

type Service = core.Service

type QuerySpec = core.QuerySpec
type Criterion = core.Criterion

type IssuanceProcess = core.IssuanceProcess
type HolderCredentialRequest = core.HolderCredentialRequest
type RequestedCredential = core.RequestedCredential

type IssuanceProcessStore = core.IssuanceProcessStore
type HolderCredentialRequestStore = core.HolderCredentialRequestStore
type CredentialGenerator = core.CredentialGenerator
type StatusListRegistrar = core.StatusListRegistrar
type CredentialDeliveryClient = core.CredentialDeliveryClient
type IssuedCredentialStore = core.IssuedCredentialStore
type IssuerEndpointResolver = core.IssuerEndpointResolver
type TokenService = core.TokenService
type CredentialRequestClient = core.CredentialRequestClient

var (
	WithLogger                       = core.WithLogger
	WithLoggerProvider               = core.WithLoggerProvider
	WithMetricsRecorder              = core.WithMetricsRecorder
	WithErrorMapper                  = core.WithErrorMapper
	WithClock                        = core.WithClock
	WithConfigProvider               = core.WithConfigProvider
	WithOptionsResolver              = core.WithOptionsResolver
	WithIssuanceProcessStore         = core.WithIssuanceProcessStore
	WithHolderCredentialRequestStore = core.WithHolderCredentialRequestStore
	WithCredentialGenerator          = core.WithCredentialGenerator
	WithStatusListRegistrar          = core.WithStatusListRegistrar
	WithCredentialDeliveryClient     = core.WithCredentialDeliveryClient
	WithIssuedCredentialStore        = core.WithIssuedCredentialStore
	WithIssuerEndpointResolver       = core.WithIssuerEndpointResolver
	WithTokenService                 = core.WithTokenService
	WithCredentialRequestClient      = core.WithCredentialRequestClient
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}
