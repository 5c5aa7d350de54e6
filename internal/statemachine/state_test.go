package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullLifecycleTransitions(t *testing.T) {
	m := New()
	require.Equal(t, Idle, m.Current())

	m.Transition(Connected)
	assert.Equal(t, Ready, m.Current())

	m.Transition(StartSession)
	assert.Equal(t, Running, m.Current())

	m.Transition(PauseSession)
	assert.Equal(t, Paused, m.Current())

	m.Transition(ResumeSession)
	assert.Equal(t, Running, m.Current())

	m.Transition(StopSession)
	assert.Equal(t, Stopping, m.Current())

	m.Transition(Stopped)
	assert.Equal(t, Idle, m.Current())
}

func TestUnmappedTriggerLeavesStateUnchanged(t *testing.T) {
	m := New()
	require.Equal(t, Idle, m.Current())

	ok := m.Transition(PauseSession)
	assert.True(t, ok, "Transition always returns true")
	assert.Equal(t, Idle, m.Current())
}

func TestAnyStateDisconnectsToConnectionLost(t *testing.T) {
	for _, s := range allStates {
		m := &Machine{current: s, subscribed: make(map[uintptr]bool)}
		m.Transition(Disconnected)
		assert.Equal(t, ConnectionLost, m.Current())
	}
}

func TestForceAlwaysNotifiesEvenAsNoOp(t *testing.T) {
	m := New()
	calls := 0
	m.Subscribe(func(from, to State, trigger Trigger, meta Metadata) {
		calls++
		assert.Equal(t, Force, trigger)
	})

	m.Force(Idle, "self jump") // target == current
	assert.Equal(t, 1, calls)

	m.Force(Error, "fault")
	assert.Equal(t, 2, calls)
	assert.Equal(t, Error, m.Current())
}

func TestSubscribeIsIdempotentByIdentity(t *testing.T) {
	m := New()
	calls := 0
	obs := func(from, to State, trigger Trigger, meta Metadata) {
		calls++
	}

	m.Subscribe(obs)
	m.Subscribe(obs)
	m.Subscribe(obs)

	m.Transition(Connected)
	assert.Equal(t, 1, calls, "duplicate subscribe of the same observer must not double-fire")
}

func TestObserverPanicDoesNotBlockLaterObserversOrCorruptState(t *testing.T) {
	m := New()
	var secondRan bool

	m.Subscribe(func(from, to State, trigger Trigger, meta Metadata) {
		panic("boom")
	})
	m.Subscribe(func(from, to State, trigger Trigger, meta Metadata) {
		secondRan = true
	})

	assert.NotPanics(t, func() {
		m.Transition(Connected)
	})
	assert.True(t, secondRan)
	assert.Equal(t, Ready, m.Current())
}

func TestObserverNotNotifiedOnNoOpTransition(t *testing.T) {
	m := New()
	calls := 0
	m.Subscribe(func(from, to State, trigger Trigger, meta Metadata) {
		calls++
	})

	m.Transition(PauseSession) // no mapping from IDLE
	assert.Equal(t, 0, calls)
}

func TestStatePredicates(t *testing.T) {
	assert.True(t, Running.IsActive())
	assert.True(t, Paused.IsActive())
	assert.True(t, Stopping.IsActive())
	assert.False(t, Idle.IsActive())

	assert.True(t, Error.IsError())
	assert.True(t, CriticalBattery.IsError())
	assert.True(t, ConnectionLost.IsError())
	assert.False(t, Running.IsError())

	assert.True(t, Idle.CanStartTherapy())
	assert.True(t, Ready.CanStartTherapy())
	assert.False(t, Running.CanStartTherapy())
}
