package engine

import (
	"math/rand"
	"sync"
	"time"

	"github.com/bluebuzzah/firmware/internal/actuator"
)

// CommandSink receives burst emissions from the engine's hot path: an
// ExecuteBuzz when a step activates and a Deactivate when its burst
// expires, so the follower's fingers track the local ones. Only the
// PRIMARY engine emits to a sink; the SECONDARY engine is never ticked
// and is driven purely by received commands instead
// (see internal/apploop).
type CommandSink interface {
	ExecuteBuzz(leftFinger, rightFinger, amplitudePct int, seq uint64, tsUs int64)
	Deactivate(leftFinger, rightFinger int)
}

// FaultLogger receives non-fatal faults from the engine's hot path, e.g. an
// individual actuator error during activate/deactivate. Implementations
// must not block.
type FaultLogger interface {
	LogFault(context string, err error)
}

type noopFaultLogger struct{}

func (noopFaultLogger) LogFault(string, error) {}

// Engine is the per-cycle pattern/scheduler engine. An
// Engine is only ever driven from one goroutine at a time and is not
// internally synchronized beyond what's needed for IsRunning to be called
// from an observer.
type Engine struct {
	port   actuator.Port
	sink   CommandSink
	faults FaultLogger
	nowFn  func() time.Time

	mu sync.Mutex

	running bool
	paused  bool

	patternType PatternType
	params      GeneratorParams
	amplitude   int
	rng         *rand.Rand

	current         Pattern
	stepIdx         int
	stepStartTs     time.Time
	burstOn         bool
	pauseStartTs    time.Time
	sessionDeadline time.Time

	cyclesCompleted  int
	totalActivations int
	sequenceCounter  uint64

	onCycleComplete func()
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithClock overrides the time source (for tests).
func WithClock(nowFn func() time.Time) Option {
	return func(e *Engine) { e.nowFn = nowFn }
}

// WithFaultLogger overrides the non-fatal fault sink.
func WithFaultLogger(fl FaultLogger) Option {
	return func(e *Engine) { e.faults = fl }
}

// New creates an Engine driving port and, on PRIMARY, emitting EXECUTE_BUZZ
// through sink. sink may be nil on SECONDARY, where the engine is never
// ticked.
func New(port actuator.Port, sink CommandSink, opts ...Option) *Engine {
	e := &Engine{
		port:   port,
		sink:   sink,
		faults: noopFaultLogger{},
		nowFn:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetOnCycleComplete registers the callback invoked each time the pattern
// wraps back to step 0.
func (e *Engine) SetOnCycleComplete(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCycleComplete = fn
}

// IsRunning reports whether a session is active (running, whether or not
// currently paused).
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// CyclesCompleted returns the number of full pattern cycles completed in
// the current session.
func (e *Engine) CyclesCompleted() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cyclesCompleted
}

// TotalActivations returns the number of EXECUTE_BUZZ activations emitted
// in the current session.
func (e *Engine) TotalActivations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalActivations
}

// StartSession resets engine stats, computes the session deadline, and
// generates the first pattern. An error here (pattern generation failure)
// is fatal to the session and the session is left not running.
func (e *Engine) StartSession(durationSec float64, patternType PatternType, params GeneratorParams, amplitudePct int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	seed := uint64(e.nowFn().UnixNano())
	if params.RandomSeed != nil {
		seed = *params.RandomSeed
	}

	e.patternType = patternType
	e.params = params
	e.amplitude = amplitudePct
	e.rng = rand.New(rand.NewSource(int64(seed)))

	pattern, err := Generate(patternType, params, e.rng)
	if err != nil {
		return err
	}

	now := e.nowFn()
	e.current = pattern
	e.stepIdx = 0
	e.stepStartTs = now
	e.burstOn = false
	e.sessionDeadline = now.Add(time.Duration(durationSec * float64(time.Second)))
	e.cyclesCompleted = 0
	e.totalActivations = 0
	e.sequenceCounter = 0
	e.running = true
	// Stop also clears `paused`; clearing it here too means a new session
	// never starts frozen, whatever ran before it.
	e.paused = false
	return nil
}

// Pause flips the engine to paused. While paused, Tick is a no-op and the
// step clock does not advance.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.paused {
		return
	}
	e.paused = true
	e.pauseStartTs = e.nowFn()
}

// Resume flips the engine back to running, re-anchoring the step clock and
// session deadline forward by however long the engine was paused so paused
// time is never counted against either.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || !e.paused {
		return
	}
	elapsed := e.nowFn().Sub(e.pauseStartTs)
	e.stepStartTs = e.stepStartTs.Add(elapsed)
	e.sessionDeadline = e.sessionDeadline.Add(elapsed)
	e.paused = false
}

// Stop clears running and deactivates any currently-on fingers.
func (e *Engine) Stop() {
	e.mu.Lock()
	wasBurstOn := e.burstOn
	pattern := e.current
	stepIdx := e.stepIdx
	e.running = false
	e.paused = false
	e.burstOn = false
	e.mu.Unlock()

	if wasBurstOn && stepIdx < pattern.Len() {
		e.deactivateStep(pattern, stepIdx)
	}
}

// Tick drives the engine's state machine. It must be called at >=20Hz by
// the outer application loop.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	if !e.running || e.paused {
		e.mu.Unlock()
		return
	}
	if !now.Before(e.sessionDeadline) {
		e.mu.Unlock()
		e.Stop()
		return
	}

	if e.burstOn {
		e.tickBurstOn(now)
		return
	}
	e.tickBurstOff(now)
}

// tickBurstOn handles the "currently on" half of the tick contract. Caller
// holds e.mu.
func (e *Engine) tickBurstOn(now time.Time) {
	elapsed := now.Sub(e.stepStartTs).Seconds() * 1000
	if elapsed < e.current.BurstDurationMs {
		e.mu.Unlock()
		return
	}

	pattern := e.current
	stepIdx := e.stepIdx
	sink := e.sink
	e.mu.Unlock()
	e.deactivateStep(pattern, stepIdx)
	if sink != nil {
		sink.Deactivate(pattern.LeftSequence[stepIdx], pattern.RightSequence[stepIdx])
	}

	e.mu.Lock()
	e.burstOn = false
	e.stepIdx++
	e.stepStartTs = now
	wrapped := e.stepIdx >= e.current.Len()
	if wrapped {
		e.stepIdx = 0
		e.cyclesCompleted++
		onCycleComplete := e.onCycleComplete
		patternType := e.patternType
		params := e.params
		rng := e.rng
		e.mu.Unlock()

		if onCycleComplete != nil {
			onCycleComplete()
		}

		next, err := Generate(patternType, params, rng)
		if err != nil {
			// Generation failure for the next cycle is fatal to the session.
			e.faults.LogFault("engine: next-cycle pattern generation", err)
			e.Stop()
			return
		}

		e.mu.Lock()
		e.current = next
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
}

// tickBurstOff handles the "currently off" half of the tick contract.
// Caller holds e.mu.
func (e *Engine) tickBurstOff(now time.Time) {
	timing := e.current.TimingMs[e.stepIdx]
	elapsed := now.Sub(e.stepStartTs).Seconds() * 1000
	if elapsed < timing {
		e.mu.Unlock()
		return
	}

	left := e.current.LeftSequence[e.stepIdx]
	right := e.current.RightSequence[e.stepIdx]
	amplitude := e.amplitude
	seq := e.sequenceCounter
	e.sequenceCounter++
	tsUs := now.UnixMicro()
	sink := e.sink
	e.burstOn = true
	e.stepStartTs = now
	e.totalActivations++
	e.mu.Unlock()

	e.activateFinger(left, amplitude)
	e.activateFinger(right, amplitude)

	if sink != nil {
		sink.ExecuteBuzz(left, right, amplitude, seq, tsUs)
	}
}

func (e *Engine) activateFinger(fingerIdx, amplitudePct int) {
	if err := e.port.Activate(fingerIdx, amplitudePct); err != nil {
		e.faults.LogFault("engine: actuator activate", err)
	}
}

func (e *Engine) deactivateStep(pattern Pattern, stepIdx int) {
	if stepIdx >= pattern.Len() {
		return
	}
	if err := e.port.Deactivate(pattern.LeftSequence[stepIdx]); err != nil {
		e.faults.LogFault("engine: actuator deactivate", err)
	}
	if err := e.port.Deactivate(pattern.RightSequence[stepIdx]); err != nil {
		e.faults.LogFault("engine: actuator deactivate", err)
	}
}
