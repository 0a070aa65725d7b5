package gologger

import (
	"context"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	var resolvedProvider glog.LoggerProvider
	_, resolved := Resolve(provider, loggerOnly)
	got := resolved.(*capturingLogger)
	if got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved = Resolve(nil, loggerOnly)
	got = resolved.(*capturingLogger)
	if got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	_, resolved = Resolve(nil, nil)
	if resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestWorkflowLoggerScopes(t *testing.T) {
	if name := WorkflowLoggerName("issuance"); name != LoggerNameIssuance {
		t.Fatalf("expected issuance scope, got %q", name)
	}
	if name := WorkflowLoggerName("holder_request"); name != LoggerNameHolderRequest {
		t.Fatalf("expected holder request scope, got %q", name)
	}
	if name := WorkflowLoggerName("  issuance  "); name != LoggerNameIssuance {
		t.Fatalf("expected trimmed workflow name, got %q", name)
	}
	if name := WorkflowLoggerName("unknown"); name != LoggerNameRuntime {
		t.Fatalf("expected runtime scope for unknown workflow, got %q", name)
	}

	provider := &capturingProvider{logger: &capturingLogger{id: "provider"}}
	_, resolved := ResolveWorkflow("issuance", provider, nil)
	if resolved == nil {
		t.Fatalf("expected workflow logger resolution")
	}
}

func TestGoJobBridgeCompatibility(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	_, _, jobProvider, jobLogger := ResolveForJob("holder_request", provider, nil)
	if jobProvider == nil {
		t.Fatalf("expected go-job provider bridge")
	}
	if jobLogger == nil {
		t.Fatalf("expected go-job logger bridge")
	}

	bridged := jobProvider.GetLogger("credstate")
	bridged.Info("issuance tick scheduled", "runtime_id", "issuer-east-1")

	captured := providerLogger.lastInfo
	if captured.msg != "issuance tick scheduled" {
		t.Fatalf("expected bridged message, got %q", captured.msg)
	}
	if captured.args[0] != "runtime_id" || captured.args[1] != "issuer-east-1" {
		t.Fatalf("expected bridged args, got %#v", captured.args)
	}
}

func TestToJobBridgesHandleNil(t *testing.T) {
	if ToJobProvider(nil) != nil {
		t.Fatalf("expected nil provider passthrough")
	}
	if ToJobLogger(nil) != nil {
		t.Fatalf("expected nil logger passthrough")
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger *capturingLogger
}

func (p *capturingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
