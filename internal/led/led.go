// Package led defines the abstract status-indicator surface. Real RGB
// LED driving and the state-to-color/blink mapping are out of scope for
// this module; LogIndicator is a reference adapter that records the
// requested state for the CLI and tests, without defining any mapping.
package led

import (
	"github.com/bluebuzzah/firmware/internal/devlog"
	"github.com/bluebuzzah/firmware/internal/statemachine"
)

// Indicator is the abstract status-light surface the core drives after
// every therapy state change.
type Indicator interface {
	// SetState reports the current therapy state. Implementations must
	// not block the caller's critical path.
	SetState(state statemachine.State)
}

// LogIndicator records every state it is shown, most-recent last, and
// optionally emits a devlog event for each change.
type LogIndicator struct {
	History []statemachine.State
	Logger  devlog.Logger
}

// NewLogIndicator creates a LogIndicator. logger may be nil.
func NewLogIndicator(logger devlog.Logger) *LogIndicator {
	if logger == nil {
		logger = devlog.NoopLogger{}
	}
	return &LogIndicator{Logger: logger}
}

// SetState implements Indicator.
func (l *LogIndicator) SetState(state statemachine.State) {
	l.History = append(l.History, state)
	l.Logger.Log(devlog.Event{
		Category: devlog.CategoryStateChange,
		StateChange: &devlog.StateChangeEvent{
			NewState: "led:" + state.String(),
		},
	})
}

// Current returns the most recently shown state, or statemachine.Idle if
// SetState has never been called.
func (l *LogIndicator) Current() statemachine.State {
	if len(l.History) == 0 {
		return statemachine.Idle
	}
	return l.History[len(l.History)-1]
}

var _ Indicator = (*LogIndicator)(nil)
