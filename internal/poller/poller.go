// Package poller implements the polling state machine that drives job
// status checks against the workflow backend. A Poller owns at most one
// ticker loop at a time; starting a new run cancels the previous one so a
// resubmitted job can never receive status updates from a stale loop.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the delay between consecutive status checks.
const DefaultInterval = 2000 * time.Millisecond

// ErrMaxAttempts is the terminal error when a bounded run exhausts its
// attempt budget without reaching a terminal outcome.
var ErrMaxAttempts = errors.New("polling attempt limit reached")

// State describes the lifecycle of a polling run.
type State int

const (
	// StateIdle means no run is active and none has finished
	StateIdle State = iota

	// StatePolling means a ticker loop is checking job status
	StatePolling

	// StateCompleted means the last run observed a completed job
	StateCompleted

	// StateErrored means the last run ended with a terminal failure
	StateErrored
)

// String returns the state name for logging
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Outcome is the result of a single status check.
type Outcome int

const (
	// OutcomePending means the job is still running; keep polling
	OutcomePending Outcome = iota

	// OutcomeCompleted means the job finished and its result was consumed
	OutcomeCompleted

	// OutcomeFailed means the backend reported a terminal job failure
	OutcomeFailed
)

// CheckFunc performs one status check. Returning a non-nil error marks the
// check as a transport failure: it is logged and the loop keeps ticking,
// because a dropped request says nothing about the job itself. Only
// OutcomeFailed ends the run in StateErrored.
type CheckFunc func(ctx context.Context) (Outcome, error)

// Config contains poller configuration
type Config struct {
	// Interval between checks; DefaultInterval when zero
	Interval time.Duration

	// MaxAttempts bounds the number of checks per run; 0 means unbounded
	MaxAttempts int
}

// Poller runs status checks on a fixed interval until a terminal outcome.
type Poller struct {
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger

	mu     sync.Mutex
	state  State
	err    error
	cancel context.CancelFunc
	loop   chan struct{}
}

// New creates an idle Poller
func New(cfg Config, logger *slog.Logger) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Poller{
		interval:    interval,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger,
		state:       StateIdle,
	}
}

// Start begins a new polling run for the given check. Any previous run is
// cancelled and fully drained before the new loop starts, so checks from
// different runs never overlap.
func (p *Poller) Start(ctx context.Context, kind string, check CheckFunc) {
	p.mu.Lock()
	// stopLocked releases the lock while draining, so another caller can
	// install a run in the meantime; loop until none is active.
	for p.cancel != nil {
		p.stopLocked()
	}

	runCtx, cancel := context.WithCancel(ctx)
	loop := make(chan struct{})

	p.state = StatePolling
	p.err = nil
	p.cancel = cancel
	p.loop = loop
	p.mu.Unlock()

	p.logger.Info("Polling started",
		slog.String("kind", kind),
		slog.Duration("interval", p.interval),
	)

	go p.run(runCtx, kind, check, loop)
}

// run is the ticker loop for a single polling run
func (p *Poller) run(ctx context.Context, kind string, check CheckFunc, loop chan struct{}) {
	defer close(loop)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	attempts := 0

	for {
		select {
		case <-ctx.Done():
			p.finish(loop, StateIdle, nil)
			return

		case <-ticker.C:
			attempts++

			outcome, err := check(ctx)
			if err != nil {
				if ctx.Err() != nil {
					p.finish(loop, StateIdle, nil)
					return
				}

				// Transport failures are transient: the job may
				// still be running, so keep the loop alive.
				p.logger.Warn("Status check failed",
					slog.String("kind", kind),
					slog.Int("attempt", attempts),
					slog.String("error", err.Error()),
				)
			} else {
				switch outcome {
				case OutcomeCompleted:
					p.logger.Info("Polling completed",
						slog.String("kind", kind),
						slog.Int("attempts", attempts),
					)
					p.finish(loop, StateCompleted, nil)
					return

				case OutcomeFailed:
					p.logger.Warn("Job reported failure",
						slog.String("kind", kind),
						slog.Int("attempts", attempts),
					)
					p.finish(loop, StateErrored, errors.New("job failed"))
					return
				}
			}

			if p.maxAttempts > 0 && attempts >= p.maxAttempts {
				p.logger.Warn("Polling attempt limit reached",
					slog.String("kind", kind),
					slog.Int("attempts", attempts),
				)
				p.finish(loop, StateErrored, ErrMaxAttempts)
				return
			}
		}
	}
}

// finish records the terminal state of a run, unless a newer run has
// already replaced it.
func (p *Poller) finish(loop chan struct{}, state State, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loop != loop {
		return
	}

	p.state = state
	p.err = err
	p.cancel = nil
	p.loop = nil
}

// Stop cancels the active run, if any, and waits for its loop to exit.
// The poller returns to StateIdle.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopLocked()
	// A Start racing this Stop can install a new run while the lock is
	// released for the drain; leave that run's state alone.
	if p.loop == nil && p.state == StatePolling {
		p.state = StateIdle
	}
	p.mu.Unlock()
}

// stopLocked cancels the active loop and drains it. Callers hold p.mu;
// the lock is released while waiting so finish can record its state.
func (p *Poller) stopLocked() {
	if p.cancel == nil {
		return
	}

	cancel := p.cancel
	loop := p.loop
	p.cancel = nil
	p.loop = nil

	cancel()

	p.mu.Unlock()
	<-loop
	p.mu.Lock()
}

// State returns the current lifecycle state
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the terminal error of the last run, if any
func (p *Poller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Wait blocks until the active run reaches a terminal state or the context
// is cancelled. It returns the state observed when the run ended.
func (p *Poller) Wait(ctx context.Context) (State, error) {
	p.mu.Lock()
	loop := p.loop
	p.mu.Unlock()

	if loop != nil {
		select {
		case <-loop:
		case <-ctx.Done():
			return p.State(), ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.err
}
