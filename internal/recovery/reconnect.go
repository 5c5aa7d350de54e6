package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bluebuzzah/firmware/internal/faults"
)

// Default bounds for the reconnect cycle.
const (
	DefaultMaxAttempts  = 3
	DefaultAttemptDelay = 2 * time.Second
	DefaultScanWindow   = 10 * time.Second
)

// ReconnectState names where a ReconnectManager is in its bounded attempt
// cycle.
type ReconnectState uint8

const (
	ReconnectIdle ReconnectState = iota
	ReconnectScanning
	ReconnectSucceeded
	ReconnectExhausted
)

func (s ReconnectState) String() string {
	switch s {
	case ReconnectIdle:
		return "IDLE"
	case ReconnectScanning:
		return "SCANNING"
	case ReconnectSucceeded:
		return "SUCCEEDED"
	case ReconnectExhausted:
		return "EXHAUSTED"
	default:
		return "UNKNOWN"
	}
}

// ScanFunc attempts to re-establish the link. It should respect ctx
// cancellation/deadline.
type ScanFunc func(ctx context.Context) error

// ReconnectManager runs a fixed, bounded reconnect cycle: at most
// MaxAttempts calls to ScanFunc, each bounded by ScanWindow, spaced
// AttemptDelay apart. There is deliberately no open-ended exponential
// backoff -- a dead link must surface as an explicit fault rather than
// retry forever.
type ReconnectManager struct {
	mu            sync.Mutex
	state         ReconnectState
	maxAttempts   int
	attemptDelay  time.Duration
	scanWindow    time.Duration
	attempts      int
	scanFn        ScanFunc
	onAttempt     func(attempt int)
	onStateChange func(old, new ReconnectState)
	sleepFn       func(ctx context.Context, d time.Duration) error
}

// Option configures a ReconnectManager.
type Option func(*ReconnectManager)

// WithMaxAttempts overrides the default attempt budget.
func WithMaxAttempts(n int) Option {
	return func(m *ReconnectManager) { m.maxAttempts = n }
}

// WithAttemptDelay overrides the delay between attempts.
func WithAttemptDelay(d time.Duration) Option {
	return func(m *ReconnectManager) { m.attemptDelay = d }
}

// WithScanWindow overrides the per-attempt scan timeout.
func WithScanWindow(d time.Duration) Option {
	return func(m *ReconnectManager) { m.scanWindow = d }
}

// WithOnAttempt registers a callback invoked before each scan attempt.
func WithOnAttempt(fn func(attempt int)) Option {
	return func(m *ReconnectManager) { m.onAttempt = fn }
}

// WithOnStateChange registers a state-transition callback.
func WithOnStateChange(fn func(old, new ReconnectState)) Option {
	return func(m *ReconnectManager) { m.onStateChange = fn }
}

// NewReconnectManager creates a manager around scanFn with the default
// bounds, adjustable via Option.
func NewReconnectManager(scanFn ScanFunc, opts ...Option) *ReconnectManager {
	m := &ReconnectManager{
		maxAttempts:  DefaultMaxAttempts,
		attemptDelay: DefaultAttemptDelay,
		scanWindow:   DefaultScanWindow,
		scanFn:       scanFn,
		sleepFn:      ctxSleep,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the manager's current state.
func (m *ReconnectManager) State() ReconnectState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the number of scan attempts made in the current cycle.
func (m *ReconnectManager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Run executes the bounded reconnect cycle: up to maxAttempts calls to
// scanFn, spaced attemptDelay apart, each bounded by scanWindow. It
// returns nil on the first successful scan, or a faults.ErrReconnectExhausted
// wrapping the last scan error if the attempt budget is exhausted. ctx
// cancellation aborts the cycle immediately and returns ctx.Err().
func (m *ReconnectManager) Run(ctx context.Context) error {
	m.setState(ReconnectScanning)

	var lastErr error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		m.mu.Lock()
		m.attempts = attempt
		m.mu.Unlock()

		if m.onAttempt != nil {
			m.onAttempt(attempt)
		}

		scanCtx, cancel := context.WithTimeout(ctx, m.scanWindow)
		err := m.scanFn(scanCtx)
		cancel()

		if err == nil {
			m.setState(ReconnectSucceeded)
			return nil
		}
		lastErr = err

		if attempt == m.maxAttempts {
			break
		}
		if sleepErr := m.sleepFn(ctx, m.attemptDelay); sleepErr != nil {
			m.setState(ReconnectIdle)
			return sleepErr
		}
	}

	m.setState(ReconnectExhausted)
	return fmt.Errorf("%w: after %d attempts: %v", faults.ErrReconnectExhausted, m.maxAttempts, lastErr)
}

// Reset returns the manager to idle, ready for a new Run cycle.
func (m *ReconnectManager) Reset() {
	m.mu.Lock()
	m.attempts = 0
	m.mu.Unlock()
	m.setState(ReconnectIdle)
}

func (m *ReconnectManager) setState(s ReconnectState) {
	m.mu.Lock()
	old := m.state
	m.state = s
	m.mu.Unlock()
	if old != s && m.onStateChange != nil {
		m.onStateChange(old, s)
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
