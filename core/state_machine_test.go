package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

type countingProcessor struct {
	name      string
	processed int
	err       error
	calls     atomic.Int64
}

func (p *countingProcessor) Name() string { return p.name }

func (p *countingProcessor) Process(context.Context) (int, error) {
	p.calls.Add(1)
	return p.processed, p.err
}

func TestNewStateMachine_RequiresNameAndProcessors(t *testing.T) {
	if _, err := NewStateMachine("", time.Second, stubLogger{}, NopMetricsRecorder{}, &countingProcessor{name: "noop"}); err == nil {
		t.Fatalf("expected missing name to fail")
	}
	if _, err := NewStateMachine("issuance", time.Second, stubLogger{}, NopMetricsRecorder{}); err == nil {
		t.Fatalf("expected missing processors to fail")
	}
	if _, err := NewStateMachine("issuance", time.Second, stubLogger{}, NopMetricsRecorder{}, nil, &countingProcessor{name: "only"}); err != nil {
		t.Fatalf("expected nil processors to be skipped: %v", err)
	}
}

func TestStateMachine_TickRunsEveryProcessor(t *testing.T) {
	first := &countingProcessor{name: "first", processed: 2}
	second := &countingProcessor{name: "second", processed: 1}

	machine, err := NewStateMachine("issuance", time.Second, stubLogger{}, NopMetricsRecorder{}, first, second)
	if err != nil {
		t.Fatalf("new state machine: %v", err)
	}

	stats := machine.Tick(context.Background())
	if stats.Processed != 3 {
		t.Fatalf("expected 3 processed, got %d", stats.Processed)
	}
	if stats.Failures != 0 {
		t.Fatalf("expected no failures, got %d", stats.Failures)
	}
	if first.calls.Load() != 1 || second.calls.Load() != 1 {
		t.Fatalf("expected each processor to run once")
	}
}

func TestStateMachine_ProcessorErrorDoesNotStallOthers(t *testing.T) {
	failing := &countingProcessor{name: "failing", err: fmt.Errorf("claim failed")}
	healthy := &countingProcessor{name: "healthy", processed: 1}
	metrics := newRecordingMetrics()

	machine, err := NewStateMachine("holder_request", time.Second, stubLogger{}, metrics, failing, healthy)
	if err != nil {
		t.Fatalf("new state machine: %v", err)
	}

	stats := machine.Tick(context.Background())
	if stats.Failures != 1 {
		t.Fatalf("expected 1 failure, got %d", stats.Failures)
	}
	if stats.Processed != 1 {
		t.Fatalf("expected healthy processor to still run, got %d processed", stats.Processed)
	}
	if healthy.calls.Load() != 1 {
		t.Fatalf("expected healthy processor to be reached after failure")
	}
}

func TestStateMachine_TickStopsOnCancelledContext(t *testing.T) {
	first := &countingProcessor{name: "first"}
	machine, err := NewStateMachine("issuance", time.Second, stubLogger{}, NopMetricsRecorder{}, first)
	if err != nil {
		t.Fatalf("new state machine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats := machine.Tick(ctx)
	if stats.Processed != 0 || first.calls.Load() != 0 {
		t.Fatalf("expected cancelled tick to do nothing")
	}
}

func TestStateMachine_StartAndStop(t *testing.T) {
	processor := &countingProcessor{name: "poller"}
	machine, err := NewStateMachine("issuance", 5*time.Millisecond, stubLogger{}, NopMetricsRecorder{}, processor)
	if err != nil {
		t.Fatalf("new state machine: %v", err)
	}

	if err := machine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := machine.Start(context.Background()); err == nil {
		t.Fatalf("expected double start to fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for processor.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if processor.calls.Load() < 2 {
		t.Fatalf("expected the loop to tick repeatedly, got %d calls", processor.calls.Load())
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := machine.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	settled := processor.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if processor.calls.Load() != settled {
		t.Fatalf("expected no ticks after stop")
	}

	if err := machine.Stop(context.Background()); err != nil {
		t.Fatalf("expected repeated stop to be a no-op, got %v", err)
	}
}

func TestStateMachine_BusyLoopDrainsBacklog(t *testing.T) {
	// Report work for the first ticks so the loop re-polls without sleeping,
	// then report an empty batch.
	var remaining atomic.Int64
	remaining.Store(3)
	processor := &adaptiveProcessor{remaining: &remaining}

	machine, err := NewStateMachine("issuance", time.Hour, stubLogger{}, NopMetricsRecorder{}, processor)
	if err != nil {
		t.Fatalf("new state machine: %v", err)
	}
	if err := machine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = machine.Stop(stopCtx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for remaining.Load() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if remaining.Load() != 0 {
		t.Fatalf("expected backlog to drain despite the long poll interval, %d left", remaining.Load())
	}
}

type adaptiveProcessor struct {
	remaining *atomic.Int64
}

func (p *adaptiveProcessor) Name() string { return "adaptive" }

func (p *adaptiveProcessor) Process(context.Context) (int, error) {
	if p.remaining.Load() > 0 {
		p.remaining.Add(-1)
		return 1, nil
	}
	return 0, nil
}
