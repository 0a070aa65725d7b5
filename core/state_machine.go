package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Processor handles one state of a workflow: claim a batch, run the business
// logic for each entity, and persist the resulting transition. It returns the
// number of entities it processed. An empty batch is not an error.
type Processor interface {
	Name() string
	Process(ctx context.Context) (int, error)
}

// TickStats summarizes one pass over all processors of a state machine.
type TickStats struct {
	Processed int
	Failures  int
}

// StateMachine drives a workflow's processors on a fixed poll interval.
// Each tick runs every processor once; when a tick processes nothing the
// machine sleeps for the poll interval before the next one. Leases are never
// held across ticks because every processor saves (and thereby releases)
// each claimed entity before returning.
type StateMachine struct {
	name       string
	processors []Processor
	interval   time.Duration
	obs        observer
	clock      Clock

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func NewStateMachine(name string, interval time.Duration, logger Logger, recorder MetricsRecorder, processors ...Processor) (*StateMachine, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("core: state machine name is required")
	}
	if interval <= 0 {
		interval = DefaultConfig().Worker.PollInterval
	}
	active := make([]Processor, 0, len(processors))
	for _, processor := range processors {
		if processor != nil {
			active = append(active, processor)
		}
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("core: state machine %q needs at least one processor", name)
	}
	return &StateMachine{
		name:       name,
		processors: active,
		interval:   interval,
		obs:        newObserver(logger, recorder, nil),
		clock:      SystemClock,
	}, nil
}

// Tick runs every processor once and reports aggregate counts. Processor
// errors are logged and counted, never propagated: one failing processor
// must not stall the others.
func (m *StateMachine) Tick(ctx context.Context) TickStats {
	if m == nil {
		return TickStats{}
	}
	stats := TickStats{}
	for _, processor := range m.processors {
		if ctx.Err() != nil {
			break
		}
		startedAt := m.clock()
		processed, err := processor.Process(ctx)
		stats.Processed += processed
		if err != nil {
			stats.Failures++
		}
		m.obs.observeOperation(ctx, startedAt, m.name+"."+processor.Name(), err, map[string]any{
			"process_kind": m.name,
			"processed":    processed,
		})
	}
	return stats
}

// Start launches the poll loop. It returns immediately; the loop stops when
// Stop is called or the context is cancelled.
func (m *StateMachine) Start(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("core: state machine is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("core: state machine %q already started", m.name)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.started = true

	go m.run(loopCtx)
	return nil
}

func (m *StateMachine) run(ctx context.Context) {
	defer close(m.done)
	for {
		if ctx.Err() != nil {
			return
		}
		stats := m.Tick(ctx)
		if stats.Processed > 0 {
			// Work was found; poll again immediately to drain backlog.
			continue
		}
		if err := waitWithContext(ctx, m.interval); err != nil {
			return
		}
	}
}

// Stop cancels the loop and waits for the in-flight tick to drain. The
// context bounds how long to wait.
func (m *StateMachine) Stop(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	started := m.started
	m.started = false
	m.cancel = nil
	m.mu.Unlock()

	if !started {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("core: state machine %q did not stop in time: %w", m.name, ctx.Err())
	}
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
