package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebuzzah/firmware/internal/actuator"
)

type fakeSink struct {
	calls       []sinkCall
	deactivated []sinkCall
}

type sinkCall struct {
	left, right, amplitude int
	seq                    uint64
	tsUs                   int64
}

func (f *fakeSink) ExecuteBuzz(left, right, amplitude int, seq uint64, tsUs int64) {
	f.calls = append(f.calls, sinkCall{left, right, amplitude, seq, tsUs})
}

func (f *fakeSink) Deactivate(left, right int) {
	f.deactivated = append(f.deactivated, sinkCall{left: left, right: right})
}

func fixedParams() GeneratorParams {
	seed := uint64(7)
	return GeneratorParams{
		NumFingers: 5,
		RandomSeed: &seed,
		TimeOnMs:   10,
		TimeOffMs:  10,
	}
}

func TestEngineActivatesPairedLeftRightInSameTick(t *testing.T) {
	port := actuator.NewSimPort(5)
	sink := &fakeSink{}
	now := time.Unix(0, 0)
	e := New(port, sink, WithClock(func() time.Time { return now }))

	require.NoError(t, e.StartSession(10, Rndp, fixedParams(), 75))

	// First off-phase timing elapses; tick should activate both fingers.
	now = now.Add(time.Duration(fixedParams().InterBurstIntervalMs()) * time.Millisecond)
	e.Tick(now)

	require.Len(t, sink.calls, 1)
	call := sink.calls[0]
	_, leftOn := port.IsActive(call.left)
	_, rightOn := port.IsActive(call.right)
	assert.True(t, leftOn)
	assert.True(t, rightOn)
	assert.Equal(t, 75, call.amplitude)
	assert.Equal(t, uint64(0), call.seq)
}

func TestEngineBurstOffThenOnCycle(t *testing.T) {
	port := actuator.NewSimPort(5)
	sink := &fakeSink{}
	now := time.Unix(0, 0)
	e := New(port, sink, WithClock(func() time.Time { return now }))

	params := fixedParams()
	require.NoError(t, e.StartSession(10, Sequential, params, 50))

	interval := time.Duration(params.InterBurstIntervalMs()) * time.Millisecond
	now = now.Add(interval)
	e.Tick(now) // activates step 0

	// burst duration elapses -> deactivate, advance step
	now = now.Add(time.Duration(params.TimeOnMs) * time.Millisecond)
	e.Tick(now)

	_, on := port.IsActive(0)
	assert.False(t, on, "finger should be deactivated once burst duration elapses")
}

func TestEngineCompletesCycleAndInvokesCallback(t *testing.T) {
	port := actuator.NewSimPort(3)
	sink := &fakeSink{}
	now := time.Unix(0, 0)
	e := New(port, sink, WithClock(func() time.Time { return now }))

	params := fixedParams()
	params.NumFingers = 3
	require.NoError(t, e.StartSession(1000, Sequential, params, 50))

	cycleCalls := 0
	e.SetOnCycleComplete(func() { cycleCalls++ })

	interval := time.Duration(params.InterBurstIntervalMs()) * time.Millisecond
	onDuration := time.Duration(params.TimeOnMs) * time.Millisecond

	for step := 0; step < 3; step++ {
		now = now.Add(interval)
		e.Tick(now) // activate
		now = now.Add(onDuration)
		e.Tick(now) // deactivate, advance
	}

	assert.Equal(t, 1, cycleCalls)
	assert.Equal(t, 1, e.CyclesCompleted())
}

func TestEngineStopDeactivatesCurrentlyOnFingers(t *testing.T) {
	port := actuator.NewSimPort(5)
	now := time.Unix(0, 0)
	e := New(port, nil, WithClock(func() time.Time { return now }))

	params := fixedParams()
	require.NoError(t, e.StartSession(10, Sequential, params, 50))

	interval := time.Duration(params.InterBurstIntervalMs()) * time.Millisecond
	now = now.Add(interval)
	e.Tick(now)
	assert.Equal(t, 2, port.ActiveCount())

	e.Stop()
	assert.Equal(t, 0, port.ActiveCount())
	assert.False(t, e.IsRunning())
}

func TestEnginePauseDoesNotAdvanceStepClock(t *testing.T) {
	port := actuator.NewSimPort(5)
	sink := &fakeSink{}
	now := time.Unix(0, 0)
	e := New(port, sink, WithClock(func() time.Time { return now }))

	params := fixedParams()
	require.NoError(t, e.StartSession(1000, Sequential, params, 50))

	e.Pause()
	now = now.Add(time.Hour) // huge gap while paused
	e.Tick(now)              // no-op
	assert.Empty(t, sink.calls)

	e.Resume()
	interval := time.Duration(params.InterBurstIntervalMs()) * time.Millisecond
	now = now.Add(interval)
	e.Tick(now)
	assert.Len(t, sink.calls, 1, "resume should re-anchor the step clock, not count paused time")
}

func TestEngineSessionDeadlineStopsSession(t *testing.T) {
	port := actuator.NewSimPort(5)
	now := time.Unix(0, 0)
	e := New(port, nil, WithClock(func() time.Time { return now }))

	require.NoError(t, e.StartSession(1, Sequential, fixedParams(), 50))
	now = now.Add(2 * time.Second)
	e.Tick(now)
	assert.False(t, e.IsRunning())
}

func TestEngineIndividualActuatorFaultDoesNotAbortSession(t *testing.T) {
	port := actuator.NewSimPort(5)
	port.FailFinger = 0
	sink := &fakeSink{}
	now := time.Unix(0, 0)
	e := New(port, sink, WithClock(func() time.Time { return now }))

	params := fixedParams()
	params.MirrorPattern = false
	require.NoError(t, e.StartSession(10, Sequential, params, 50))

	interval := time.Duration(params.InterBurstIntervalMs()) * time.Millisecond
	now = now.Add(interval)

	assert.NotPanics(t, func() { e.Tick(now) })
	assert.True(t, e.IsRunning(), "a single actuator fault must not abort the session")
}
