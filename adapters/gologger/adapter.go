package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Logger names for the runtime and its two workflow machines. Hosts that
// plug in their own glog provider see these as child logger scopes.
const (
	LoggerNameRuntime       = "credstate"
	LoggerNameIssuance      = "credstate.issuance"
	LoggerNameHolderRequest = "credstate.holder_request"
)

// WorkflowLoggerName maps a workflow machine name to its logger scope.
// Unknown workflows log under the runtime scope.
func WorkflowLoggerName(workflow string) string {
	switch strings.TrimSpace(workflow) {
	case "issuance":
		return LoggerNameIssuance
	case "holder_request":
		return LoggerNameHolderRequest
	}
	return LoggerNameRuntime
}

// Resolve picks the runtime logger pair with precedence provider > logger > nop.
func Resolve(provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(LoggerNameRuntime, provider, logger)
}

// ResolveWorkflow resolves the logger pair scoped to one workflow machine.
func ResolveWorkflow(workflow string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(WorkflowLoggerName(workflow), provider, logger)
}

// ToJobProvider bridges a glog provider into the go-job logger provider
// contract so queue workers log through the same sink as the machines.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger bridges a glog logger into the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the workflow logger pair and returns the go-job
// bridges alongside, for hosts wiring the tick jobs onto a queue worker.
func ResolveForJob(
	workflow string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := ResolveWorkflow(workflow, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
