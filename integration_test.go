package firmware_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebuzzah/firmware/internal/actuator"
	"github.com/bluebuzzah/firmware/internal/apploop"
	"github.com/bluebuzzah/firmware/internal/battery"
	"github.com/bluebuzzah/firmware/internal/config"
	"github.com/bluebuzzah/firmware/internal/engine"
	"github.com/bluebuzzah/firmware/internal/led"
	"github.com/bluebuzzah/firmware/internal/link"
	"github.com/bluebuzzah/firmware/internal/link/loopback"
	"github.com/bluebuzzah/firmware/internal/recovery"
	"github.com/bluebuzzah/firmware/internal/session"
	"github.com/bluebuzzah/firmware/internal/statemachine"
	"github.com/bluebuzzah/firmware/internal/syncstats"
)

// bilateralPair wires a full PRIMARY and SECONDARY stack over an
// in-process loopback link, with both sides sharing one fake clock so
// the burst schedule is deterministic.
type bilateralPair struct {
	now time.Time

	primaryLoop    *apploop.Primary
	primaryMachine *statemachine.Machine
	manager        *session.Manager

	secondaryLoop    *apploop.Secondary
	secondaryMachine *statemachine.Machine
	secondarySim     *actuator.SimPort
	stats            *syncstats.Stats
	heartbeat        *recovery.HeartbeatMonitor
}

func newBilateralPair(t *testing.T) *bilateralPair {
	t.Helper()
	primaryPort, primaryConn, secondaryPort, secondaryConn :=
		loopback.NewPair(link.SlotSecondary, link.SlotPrimary)

	p := &bilateralPair{now: time.Now()}
	nowFn := func() time.Time { return p.now }

	// PRIMARY side.
	p.primaryMachine = statemachine.New()
	p.primaryMachine.Transition(statemachine.Connected)
	primarySim := actuator.NewSimPort(5)
	relay := &apploop.SinkRelay{}
	eng := engine.New(primarySim, relay, engine.WithClock(nowFn), engine.WithFaultLogger(relay))
	p.primaryLoop = apploop.NewPrimary(apploop.PrimaryDeps{
		Port:     primaryPort,
		Machine:  p.primaryMachine,
		Engine:   eng,
		Actuator: primarySim,
		Battery:  battery.NewSimMonitor(),
		LED:      led.NewLogIndicator(nil),
	}, map[link.Slot]link.ConnID{link.SlotSecondary: primaryConn})
	p.primaryLoop.SetClock(nowFn)
	relay.Bind(p.primaryLoop)
	p.manager = session.New(p.primaryMachine, eng,
		session.WithClock(nowFn), session.WithSender(p.primaryLoop))
	p.primaryLoop.SetManager(p.manager)

	// SECONDARY side.
	p.secondaryMachine = statemachine.New()
	p.secondaryMachine.Transition(statemachine.Connected)
	p.secondarySim = actuator.NewSimPort(5)
	p.stats = syncstats.New(syncstats.DefaultMaxSamples)
	p.heartbeat = recovery.NewHeartbeatMonitor(recovery.DefaultHeartbeatTimeout, nil)
	p.secondaryLoop = apploop.NewSecondary(apploop.SecondaryDeps{
		Port:      secondaryPort,
		Machine:   p.secondaryMachine,
		Actuator:  p.secondarySim,
		Battery:   battery.NewSimMonitor(),
		LED:       led.NewLogIndicator(nil),
		Stats:     p.stats,
		Heartbeat: p.heartbeat,
	}, secondaryConn)
	p.secondaryLoop.SetClock(nowFn)
	return p
}

// step advances the shared clock in 10ms increments, ticking the PRIMARY
// then the SECONDARY each increment, the way the two 20Hz loops
// interleave in practice.
func (p *bilateralPair) step(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		p.now = p.now.Add(10 * time.Millisecond)
		p.primaryLoop.TickOnce(ctx)
		p.secondaryLoop.TickOnce(ctx)
	}
}

func therapyProfile() *config.TherapyProfile {
	return &config.TherapyProfile{
		Name:               "integration",
		ActuatorType:       "vibration_motor",
		NumFingers:         5,
		SessionDurationMin: 10,
		PatternType:        "sequential",
		TimeOnMs:           10,
		TimeOffMs:          5,
		AmplitudePercent:   80,
	}
}

func TestE2E_BilateralSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	pair := newBilateralPair(t)

	ok, err := pair.manager.Start(therapyProfile())
	require.NoError(t, err)
	require.True(t, ok)

	// One exchange carries START_SESSION (and the first heartbeat) across.
	pair.step(ctx, 1)
	assert.Equal(t, statemachine.Running, pair.primaryMachine.Current())
	assert.Equal(t, statemachine.Running, pair.secondaryMachine.Current())
	assert.Equal(t, recovery.HeartbeatAlive, pair.heartbeat.Check(pair.now))

	// Inter-burst interval is 4*(10+5)=60ms; at the 60ms tick the first
	// EXECUTE_BUZZ crosses and fires the follower's finger 0.
	pair.step(ctx, 5)
	require.GreaterOrEqual(t, pair.stats.Len(), 1)
	amp, on := pair.secondarySim.IsActive(0)
	require.True(t, on, "follower finger 0 should be buzzing")
	assert.Equal(t, 80, amp)

	// Burst duration is 10ms; the paired DEACTIVATE silences the follower.
	pair.step(ctx, 2)
	assert.Equal(t, 0, pair.secondarySim.ActiveCount())

	pair.manager.Pause()
	pair.step(ctx, 1)
	assert.Equal(t, statemachine.Paused, pair.primaryMachine.Current())
	assert.Equal(t, statemachine.Paused, pair.secondaryMachine.Current())

	// Paused time produces no activations on either side.
	before := pair.stats.Len()
	pair.step(ctx, 20)
	assert.Equal(t, before, pair.stats.Len())

	pair.manager.Resume()
	pair.step(ctx, 1)
	assert.Equal(t, statemachine.Running, pair.secondaryMachine.Current())

	pair.manager.Stop("")
	pair.step(ctx, 1)
	assert.Equal(t, statemachine.Idle, pair.primaryMachine.Current())
	assert.Equal(t, statemachine.Idle, pair.secondaryMachine.Current())

	history := pair.manager.History()
	require.Len(t, history, 1)
	assert.Equal(t, "USER", history[0].Reason)
	assert.Equal(t, "integration", history[0].ProfileName)
}

func TestE2E_EmergencyStopSilencesFollower(t *testing.T) {
	ctx := context.Background()
	pair := newBilateralPair(t)

	ok, err := pair.manager.Start(therapyProfile())
	require.NoError(t, err)
	require.True(t, ok)
	pair.step(ctx, 6)
	_, on := pair.secondarySim.IsActive(0)
	require.True(t, on)

	pair.manager.EmergencyStop()
	pair.step(ctx, 1)

	assert.Equal(t, statemachine.Error, pair.primaryMachine.Current())
	assert.Equal(t, statemachine.Idle, pair.secondaryMachine.Current())
	assert.Equal(t, 0, pair.secondarySim.ActiveCount())
	assert.Empty(t, pair.manager.History())
}
