// Package statemachine implements the therapy device's role-state machine:
// a pure data structure mapping (current state, trigger) to a next state,
// plus synchronous observer notification. It depends on nothing else in
// the module.
package statemachine

import (
	"reflect"
	"sync"
)

// State is the therapy device's lifecycle state.
type State uint8

const (
	Idle State = iota
	Ready
	Running
	Paused
	Stopping
	ConnectionLost
	LowBattery
	CriticalBattery
	Error
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Paused:
		return "PAUSED"
	case Stopping:
		return "STOPPING"
	case ConnectionLost:
		return "CONNECTION_LOST"
	case LowBattery:
		return "LOW_BATTERY"
	case CriticalBattery:
		return "CRITICAL_BATTERY"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsActive reports whether a session is in flight in some form.
func (s State) IsActive() bool {
	return s == Running || s == Paused || s == Stopping
}

// IsError reports whether the state represents a fault condition.
func (s State) IsError() bool {
	return s == Error || s == CriticalBattery || s == ConnectionLost
}

// CanStartTherapy reports whether a new session may be started from this state.
func (s State) CanStartTherapy() bool {
	return s == Idle || s == Ready
}

// CanPause reports whether the state machine may transition to PAUSED.
func (s State) CanPause() bool {
	return s == Running
}

// CanResume reports whether the state machine may transition back to RUNNING.
func (s State) CanResume() bool {
	return s == Paused
}

// Trigger is an event applied to the state machine.
type Trigger uint8

const (
	Connected Trigger = iota
	Disconnected
	StartSession
	PauseSession
	ResumeSession
	StopSession
	Stopped
	ErrorTrigger
	EmergencyStop
	Force
)

// String returns a human-readable trigger name.
func (t Trigger) String() string {
	switch t {
	case Connected:
		return "CONNECTED"
	case Disconnected:
		return "DISCONNECTED"
	case StartSession:
		return "START_SESSION"
	case PauseSession:
		return "PAUSE_SESSION"
	case ResumeSession:
		return "RESUME_SESSION"
	case StopSession:
		return "STOP_SESSION"
	case Stopped:
		return "STOPPED"
	case ErrorTrigger:
		return "ERROR"
	case EmergencyStop:
		return "EMERGENCY_STOP"
	case Force:
		return "FORCE"
	default:
		return "UNKNOWN"
	}
}

// transitionKey is a (from, trigger) lookup key into the transition table.
type transitionKey struct {
	from    State
	trigger Trigger
}

// transitions is the authoritative lifecycle table. Any (state, trigger)
// pair not present here leaves the state unchanged.
var transitions = map[transitionKey]State{
	{Idle, Connected}: Ready,

	{Idle, StartSession}:  Running,
	{Ready, StartSession}: Running,

	{Running, PauseSession}: Paused,
	{Paused, ResumeSession}: Running,

	{Running, StopSession}: Stopping,
	{Paused, StopSession}:  Stopping,

	{Stopping, Stopped}: Idle,
}

// allStates enumerates every State value, used to apply the "any state"
// rows of the transition table (DISCONNECTED, ERROR, EMERGENCY_STOP).
var allStates = []State{
	Idle, Ready, Running, Paused, Stopping, ConnectionLost, LowBattery, CriticalBattery, Error,
}

func init() {
	for _, s := range allStates {
		transitions[transitionKey{s, Disconnected}] = ConnectionLost
		transitions[transitionKey{s, ErrorTrigger}] = Error
		transitions[transitionKey{s, EmergencyStop}] = Error
	}
}

// Metadata carries observer-notification context. Keys are small and
// command-specific; FORCE notifications always carry a "reason".
type Metadata map[string]any

// Observer is notified synchronously, in subscription order, whenever the
// state machine changes state (or on every FORCE, even a no-op one).
type Observer func(from, to State, trigger Trigger, meta Metadata)

// Machine owns the current State and its observer list. Machine is safe
// for concurrent use, though the core only ever drives it from a single
// loop goroutine per device (see internal/apploop).
type Machine struct {
	mu         sync.Mutex
	current    State
	observers  []Observer
	subscribed map[uintptr]bool
}

// New creates a state machine starting in IDLE.
func New() *Machine {
	return &Machine{current: Idle, subscribed: make(map[uintptr]bool)}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe registers an observer. Subscribing the same observer twice
// registers it only once: identity is compared by the underlying function
// pointer, so the same closure or method value passed twice is a no-op the
// second time, but two distinct closures (even with identical bodies) are
// treated as distinct listeners.
func (m *Machine) Subscribe(obs Observer) {
	key := reflect.ValueOf(obs).Pointer()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribed[key] {
		return
	}
	m.subscribed[key] = true
	m.observers = append(m.observers, obs)
}

// Transition looks up (current, trigger) in the transition table. If a
// mapped next state exists and differs from the current state, the state
// machine updates and notifies observers. Triggers with no table entry, or
// that map to the current state, leave the state unchanged and do not
// notify. Transition never fails: it always returns true.
func (m *Machine) Transition(trigger Trigger) bool {
	m.mu.Lock()
	from := m.current
	to, ok := transitions[transitionKey{from, trigger}]
	if !ok || to == from {
		m.mu.Unlock()
		return true
	}
	m.current = to
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	notify(observers, from, to, trigger, nil)
	return true
}

// Force unconditionally jumps to target, always notifying observers with
// the synthetic FORCE trigger, even if target equals the current state.
func (m *Machine) Force(target State, reason string) {
	m.mu.Lock()
	from := m.current
	m.current = target
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	notify(observers, from, target, Force, Metadata{"reason": reason})
}

// notify calls each observer in registration order. A panicking observer
// is recovered so later observers still run and the state machine's own
// state is never affected.
func notify(observers []Observer, from, to State, trigger Trigger, meta Metadata) {
	for _, obs := range observers {
		callObserver(obs, from, to, trigger, meta)
	}
}

func callObserver(obs Observer, from, to State, trigger Trigger, meta Metadata) {
	defer func() {
		_ = recover()
	}()
	obs(from, to, trigger, meta)
}
