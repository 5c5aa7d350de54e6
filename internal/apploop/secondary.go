package apploop

import (
	"context"
	"log/slog"
	"time"

	"github.com/bluebuzzah/firmware/internal/actuator"
	"github.com/bluebuzzah/firmware/internal/battery"
	"github.com/bluebuzzah/firmware/internal/devlog"
	"github.com/bluebuzzah/firmware/internal/led"
	"github.com/bluebuzzah/firmware/internal/link"
	"github.com/bluebuzzah/firmware/internal/recovery"
	runtimectx "github.com/bluebuzzah/firmware/internal/runtime"
	"github.com/bluebuzzah/firmware/internal/statemachine"
	"github.com/bluebuzzah/firmware/internal/syncstats"
	"github.com/bluebuzzah/firmware/internal/wire"
)

// SecondaryDeps are the collaborators a Secondary loop drives. Reconnect
// may be nil, in which case a heartbeat timeout skips straight to the
// exhausted path. Logger and Slog are optional.
type SecondaryDeps struct {
	Runtime   runtimectx.Context
	Port      link.Port
	Machine   *statemachine.Machine
	Actuator  actuator.Port
	Battery   battery.Monitor
	LED       led.Indicator
	Stats     *syncstats.Stats
	Heartbeat *recovery.HeartbeatMonitor
	Reconnect *recovery.ReconnectManager
	Logger    devlog.Logger
	Slog      *slog.Logger
}

// Secondary is the follower-role application loop. It never ticks a
// pattern engine: every actuator activation comes from a received
// EXECUTE_BUZZ.
type Secondary struct {
	deps SecondaryDeps
	conn link.ConnID

	lastSeenSeq      int64
	missedCommands   int64
	lastSyncCommand  time.Time
	lastStatsReport  time.Time
	lastHousekeeping time.Time
	statsInterval    time.Duration
	prevBattery      battery.Reading
	shutdown         bool

	nowFn func() time.Time
}

// NewSecondary creates a Secondary loop reading from conn, the connection
// to the PRIMARY established at boot.
func NewSecondary(deps SecondaryDeps, conn link.ConnID) *Secondary {
	if deps.Logger == nil {
		deps.Logger = devlog.NoopLogger{}
	}
	if deps.Slog == nil {
		deps.Slog = slog.Default()
	}
	if deps.Heartbeat == nil {
		deps.Heartbeat = recovery.NewHeartbeatMonitor(recovery.DefaultHeartbeatTimeout, nil)
	}
	if deps.Stats == nil {
		deps.Stats = syncstats.New(syncstats.DefaultMaxSamples)
	}
	now := time.Now()
	return &Secondary{
		deps:             deps,
		conn:             conn,
		lastSeenSeq:      -1,
		lastStatsReport:  now,
		lastHousekeeping: now,
		statsInterval:    DefaultStatsReportInterval,
		prevBattery:      battery.Reading{Voltage: battery.DefaultWarningVoltage + 1},
		nowFn:            time.Now,
	}
}

// SetClock overrides the time source (for tests). Must be called before
// the first tick.
func (s *Secondary) SetClock(nowFn func() time.Time) {
	s.nowFn = nowFn
	s.lastStatsReport = nowFn()
	s.lastHousekeeping = s.lastStatsReport
}

// SetStatsInterval overrides the sync-latency report cadence.
func (s *Secondary) SetStatsInterval(d time.Duration) {
	if d > 0 {
		s.statsInterval = d
	}
}

// MissedCommands returns how many EXECUTE_BUZZ sequence numbers have been
// observed as lost so far this run.
func (s *Secondary) MissedCommands() int64 {
	return s.missedCommands
}

// Run drives the loop at the nominal tick rate until ctx is cancelled or
// an emergency shutdown stops the device.
func (s *Secondary) Run(ctx context.Context) error {
	return runTicker(ctx, func(ctx context.Context) bool {
		s.TickOnce(ctx)
		return s.shutdown
	})
}

// TickOnce executes one cooperative tick.
func (s *Secondary) TickOnce(ctx context.Context) {
	s.drainInbound(ctx)

	now := s.nowFn()
	if s.deps.Heartbeat.Check(now) == recovery.HeartbeatTimedOut {
		s.heartbeatTimeout(ctx)
	}

	if !s.lastSyncCommand.IsZero() &&
		now.Sub(s.lastSyncCommand) > StaleSessionWarning &&
		s.deps.Machine.Current() == statemachine.Running {
		s.deps.Slog.Warn("no sync command received while running",
			"silent_for", now.Sub(s.lastSyncCommand))
		// Re-arm so the warning doesn't repeat every tick.
		s.lastSyncCommand = now
	}

	s.deps.LED.SetState(s.deps.Machine.Current())
	s.pollBattery()
	s.housekeeping(now)
	s.reportStats(now)
}

// drainInbound processes every frame waiting on the PRIMARY connection,
// bounded so a flood cannot starve the watchdogs.
func (s *Secondary) drainInbound(ctx context.Context) {
	timeout := ReceiveTimeout
	for i := 0; i < inboundDrainMax; i++ {
		msg, err := s.deps.Port.Receive(ctx, s.conn, timeout)
		if err != nil {
			s.logFault("apploop: receive", err)
			return
		}
		if msg == nil {
			return
		}
		// Capture the receive timestamp before any decode work so the
		// latency sample reflects transport delay, not parsing.
		s.HandleFrame(msg, s.nowFn())
		timeout = 0
	}
}

// HandleFrame decodes and dispatches one SYNC frame received at
// tReceive. Malformed frames are logged and dropped; they never abort
// the loop or change device state.
func (s *Secondary) HandleFrame(frame []byte, tReceive time.Time) {
	cmd, data, err := wire.Decode(frame)
	if err != nil {
		s.logFault("sync: decode", err)
		return
	}

	valid := true
	switch cmd {
	case wire.CmdExecuteBuzz:
		valid = s.handleExecuteBuzz(data, tReceive)
	case wire.CmdDeactivate:
		valid = s.handleDeactivate(data)
	case wire.CmdStartSession:
		valid = s.handleStartSession(data)
	case wire.CmdPauseSession:
		s.deps.Machine.Transition(statemachine.PauseSession)
		s.deps.LED.SetState(s.deps.Machine.Current())
	case wire.CmdResumeSession:
		s.deps.Machine.Transition(statemachine.ResumeSession)
		s.deps.LED.SetState(s.deps.Machine.Current())
	case wire.CmdStopSession:
		s.handleStopSession(data)
	case wire.CmdHeartbeat:
		s.deps.Heartbeat.RecordHeartbeat(tReceive)
	default:
		s.deps.Slog.Warn("unknown sync command", "cmd", cmd)
		valid = false
	}

	if valid {
		s.lastSyncCommand = s.nowFn()
	}
}

// handleExecuteBuzz is the hot path: gap accounting, latency measurement,
// paired activation, one all-or-nothing stats sample.
func (s *Secondary) handleExecuteBuzz(data map[string]any, tReceive time.Time) bool {
	c, err := wire.DecodeExecuteBuzz(data)
	if err != nil {
		s.logFault("sync: execute_buzz", err)
		return false
	}

	if s.lastSeenSeq >= 0 && c.Seq > s.lastSeenSeq+1 {
		gap := c.Seq - s.lastSeenSeq - 1
		s.missedCommands += gap
		s.deps.Slog.Warn("missed execute_buzz commands",
			"gap", gap, "last_seen", s.lastSeenSeq, "received", c.Seq)
	}
	s.lastSeenSeq = c.Seq

	// Clocks are unsynchronised between the two devices; a negative
	// network latency is recorded as-is.
	networkUs := float64(tReceive.UnixMicro() - c.TimestampUs)

	tExecStart := s.nowFn()
	if err := s.deps.Actuator.Activate(int(c.LeftFinger), int(c.Amplitude)); err != nil {
		s.logFault("sync: activate left", err)
	}
	if err := s.deps.Actuator.Activate(int(c.RightFinger), int(c.Amplitude)); err != nil {
		s.logFault("sync: activate right", err)
	}
	tExecComplete := s.nowFn()

	execUs := float64(tExecComplete.Sub(tExecStart).Microseconds())
	totalUs := float64(tExecComplete.Sub(tReceive).Microseconds())
	s.deps.Stats.AddSample(networkUs, execUs, totalUs)

	s.deps.Logger.Log(devlog.Event{
		BootRunID: s.deps.Runtime.BootRunID,
		Role:      s.deps.Runtime.Role.String(),
		Direction: devlog.DirectionIn,
		Category:  devlog.CategorySync,
		Sync: &devlog.SyncSampleEvent{
			NetworkLatencyUs: networkUs,
			ExecutionTimeUs:  execUs,
			TotalLatencyUs:   totalUs,
			Compliant:        totalUs < syncstats.TargetLatencyUs,
		},
	})
	return true
}

func (s *Secondary) handleDeactivate(data map[string]any) bool {
	c, err := wire.DecodeDeactivate(data)
	if err != nil {
		s.logFault("sync: deactivate", err)
		return false
	}
	if err := s.deps.Actuator.Deactivate(int(c.LeftFinger)); err != nil {
		s.logFault("sync: deactivate left", err)
	}
	if err := s.deps.Actuator.Deactivate(int(c.RightFinger)); err != nil {
		s.logFault("sync: deactivate right", err)
	}
	return true
}

// handleStartSession transitions the local state machine only. The
// follower never starts its own engine; the pattern metadata in the
// payload is logged for diagnostics but not acted on.
func (s *Secondary) handleStartSession(data map[string]any) bool {
	c, err := wire.DecodeStartSession(data)
	if err != nil {
		s.logFault("sync: start_session", err)
		return false
	}
	s.deps.Machine.Transition(statemachine.StartSession)
	s.deps.LED.SetState(s.deps.Machine.Current())
	s.deps.Slog.Info("session started by primary",
		"duration_sec", c.DurationSec,
		"pattern_type", c.PatternType,
		"jitter_tenths_pct", c.JitterPercent,
	)
	return true
}

func (s *Secondary) handleStopSession(data map[string]any) {
	reason := "unspecified"
	if c, err := wire.DecodeStopSession(data); err == nil {
		reason = c.Reason
	}
	if err := s.deps.Actuator.StopAll(false); err != nil {
		s.logFault("sync: stop_all", err)
	}
	s.deps.Machine.Transition(statemachine.StopSession)
	s.deps.Machine.Transition(statemachine.Stopped)
	s.deps.LED.SetState(s.deps.Machine.Current())
	s.deps.Slog.Info("session stopped by primary", "reason", reason)
}

// heartbeatTimeout runs the recovery sequence: silence the actuators
// before any state change, mark the connection lost, clear the heartbeat
// baseline, then attempt the bounded reconnect cycle.
func (s *Secondary) heartbeatTimeout(ctx context.Context) {
	s.deps.Actuator.EmergencyStop()
	s.deps.Machine.Force(statemachine.ConnectionLost, "heartbeat_timeout")
	s.deps.Heartbeat.Reset()
	s.deps.LED.SetState(s.deps.Machine.Current())

	if s.deps.Reconnect == nil {
		s.deps.Machine.Force(statemachine.Idle, "reconnect_unavailable")
		s.deps.LED.SetState(s.deps.Machine.Current())
		return
	}

	s.deps.Reconnect.Reset()
	if err := s.deps.Reconnect.Run(ctx); err != nil {
		s.logFault("recovery: reconnect", err)
		s.deps.Machine.Force(statemachine.Idle, "reconnect_exhausted")
		s.deps.LED.SetState(s.deps.Machine.Current())
		return
	}
	s.deps.Machine.Force(statemachine.Ready, "reconnected")
	s.deps.LED.SetState(s.deps.Machine.Current())
}

// SetConnection swaps the PRIMARY connection handle, used after a
// successful reconnect established a fresh link.
func (s *Secondary) SetConnection(conn link.ConnID) {
	s.conn = conn
}

func (s *Secondary) pollBattery() {
	r := s.deps.Battery.Read()
	prev := s.prevBattery
	s.prevBattery = r

	if r.IsCritical && !prev.IsCritical && !s.deps.Machine.Current().IsError() {
		s.deps.Actuator.EmergencyStop()
		s.deps.Machine.Force(statemachine.CriticalBattery, "battery_critical")
		s.deps.LED.SetState(s.deps.Machine.Current())
		s.shutdown = true
		s.deps.Slog.Error("emergency shutdown", "reason", "battery_critical")
		return
	}
	if r.IsLow && !prev.IsLow && s.deps.Machine.Current() == statemachine.Running {
		s.deps.Slog.Warn("battery low", "voltage", r.Voltage)
	}
}

func (s *Secondary) housekeeping(now time.Time) {
	if now.Sub(s.lastHousekeeping) < HousekeepingInterval {
		return
	}
	s.lastHousekeeping = now
	rep := readMemReport()
	s.deps.Slog.Info("memory report",
		"heap_alloc", rep.HeapAllocBytes,
		"sys", rep.SysBytes,
		"num_gc", rep.NumGC,
	)
}

// reportStats emits the sync-latency summary once per interval.
func (s *Secondary) reportStats(now time.Time) {
	if now.Sub(s.lastStatsReport) < s.statsInterval {
		return
	}
	s.lastStatsReport = now
	rep, ok := s.deps.Stats.Report()
	if !ok {
		return
	}
	s.deps.Slog.Info("sync latency report",
		"samples", rep.SampleCount,
		"total_mean_us", rep.Total.Mean,
		"total_p95_us", rep.Total.P95,
		"total_p99_us", rep.Total.P99,
		"missed_commands", s.missedCommands,
		"mean_compliant", rep.MeanCompliant,
		"p95_compliant", rep.P95Compliant,
	)
}

func (s *Secondary) logFault(context string, err error) {
	s.deps.Logger.Log(devlog.Event{
		BootRunID: s.deps.Runtime.BootRunID,
		Role:      s.deps.Runtime.Role.String(),
		Category:  devlog.CategoryFault,
		Fault:     &devlog.FaultEvent{Context: context, Message: err.Error()},
	})
}
