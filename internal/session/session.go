// Package session implements the session lifecycle manager:
// start/pause/resume/stop/emergency-stop around the state machine and
// pattern engine, plus an in-memory session history log.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/bluebuzzah/firmware/internal/config"
	"github.com/bluebuzzah/firmware/internal/devlog"
	"github.com/bluebuzzah/firmware/internal/engine"
	"github.com/bluebuzzah/firmware/internal/faults"
	"github.com/bluebuzzah/firmware/internal/ringbuffer"
	"github.com/bluebuzzah/firmware/internal/statemachine"
	"github.com/bluebuzzah/firmware/internal/wire"
)

// DefaultHistoryCapacity bounds how many completed SessionRecords are
// retained in memory.
const DefaultHistoryCapacity = 100

// Sender emits a SYNC command over the link. The PRIMARY's Manager uses
// it to announce lifecycle transitions to the SECONDARY.
type Sender interface {
	SendSync(cmd string, fields []wire.Field) error
}

// Context describes the currently active session, if any.
type Context struct {
	SessionID       string
	Profile         *config.TherapyProfile
	StartTs         time.Time
	PauseTs         *time.Time
	TotalPauseS     float64
	CyclesCompleted int
}

// Record is a completed session's summary, retained in history.
type Record struct {
	SessionID       string
	ProfileName     string
	StartTs         time.Time
	EndTs           time.Time
	DurationS       float64
	ElapsedS        float64
	PauseDurationS  float64
	CyclesCompleted int
	CompletionPct   float64
	Reason          string
}

// Lifecycle hooks, all optional. Called synchronously from the owning
// loop goroutine; implementations must not block.
type Hooks struct {
	OnStarted func(ctx Context)
	OnPaused  func(ctx Context)
	OnResumed func(ctx Context)
	OnStopped func(record Record)
}

// Manager binds a state machine and pattern engine into the session
// lifecycle. A Manager is only ever driven from one goroutine at a time.
type Manager struct {
	mu      sync.Mutex
	machine *statemachine.Machine
	engine  *engine.Engine
	sender  Sender // nil on SECONDARY, which never emits lifecycle commands
	logger  devlog.Logger
	hooks   Hooks
	nowFn   func() time.Time

	history *ringbuffer.Buffer[Record]
	active  *Context
	nextID  int
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithSender sets the Sender used to announce lifecycle transitions.
func WithSender(s Sender) Option {
	return func(m *Manager) { m.sender = s }
}

// WithLogger sets the devlog.Logger used for fault/event logging.
func WithLogger(l devlog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithHooks sets the lifecycle observer callbacks.
func WithHooks(h Hooks) Option {
	return func(m *Manager) { m.hooks = h }
}

// WithClock overrides the time source (for tests).
func WithClock(nowFn func() time.Time) Option {
	return func(m *Manager) { m.nowFn = nowFn }
}

// WithHistoryCapacity overrides the default history ring size.
func WithHistoryCapacity(n int) Option {
	return func(m *Manager) { m.history = ringbuffer.New[Record](n) }
}

// New creates a Manager driving machine and eng.
func New(machine *statemachine.Machine, eng *engine.Engine, opts ...Option) *Manager {
	m := &Manager{
		machine: machine,
		engine:  eng,
		logger:  devlog.NoopLogger{},
		nowFn:   time.Now,
		history: ringbuffer.New[Record](DefaultHistoryCapacity),
	}
	for _, opt := range opts {
		opt(m)
	}
	eng.SetOnCycleComplete(m.onCycleComplete)
	return m
}

// Active returns the active session context and whether one is running.
func (m *Manager) Active() (Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Context{}, false
	}
	return *m.active, true
}

// Start begins a new session from profile. It fails if a session is
// already active or the state machine does not permit starting therapy.
func (m *Manager) Start(profile *config.TherapyProfile) (bool, error) {
	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		return false, nil
	}
	if !m.machine.Current().CanStartTherapy() {
		m.mu.Unlock()
		return false, fmt.Errorf("%w: cannot start therapy from %s", faults.ErrSessionPreconditionFailed, m.machine.Current())
	}
	now := m.nowFn()
	m.nextID++
	ctx := Context{
		SessionID: fmt.Sprintf("session_%04d", m.nextID),
		Profile:   profile,
		StartTs:   now,
	}
	m.active = &ctx
	m.mu.Unlock()

	if err := m.engine.StartSession(profile.SessionDurationSec(), profile.ParsePatternType(), profile.GeneratorParams(), profile.AmplitudePercent); err != nil {
		m.mu.Lock()
		m.active = nil
		m.mu.Unlock()
		return false, err
	}

	m.machine.Transition(statemachine.StartSession)

	if m.sender != nil {
		if err := m.sender.SendSync(wire.CmdStartSession, []wire.Field{
			wire.F("duration_sec", int64(profile.SessionDurationSec())),
			wire.F("pattern_type", profile.PatternType),
			wire.F("jitter_percent", int64(profile.JitterPercentTenths)),
			wire.F("time_on_ms", int64(profile.TimeOnMs)),
			wire.F("time_off_ms", int64(profile.TimeOffMs)),
			wire.F("num_fingers", int64(profile.NumFingers)),
			wire.F("mirror_pattern", profile.MirrorPattern),
		}); err != nil {
			m.logger.Log(devlog.Event{Category: devlog.CategoryFault, Fault: &devlog.FaultEvent{Context: "session.start", Message: err.Error()}})
		}
	}

	if m.hooks.OnStarted != nil {
		m.hooks.OnStarted(ctx)
	}
	return true, nil
}

// Pause pauses the active session. No-op (returns false) if the state
// machine does not permit pausing.
func (m *Manager) Pause() bool {
	m.mu.Lock()
	if m.active == nil || !m.machine.Current().CanPause() {
		m.mu.Unlock()
		return false
	}
	now := m.nowFn()
	m.active.PauseTs = &now
	ctx := *m.active
	m.mu.Unlock()

	m.engine.Pause()
	m.machine.Transition(statemachine.PauseSession)

	if m.sender != nil {
		if err := m.sender.SendSync(wire.CmdPauseSession, nil); err != nil {
			m.logger.Log(devlog.Event{Category: devlog.CategoryFault, Fault: &devlog.FaultEvent{Context: "session.pause", Message: err.Error()}})
		}
	}
	if m.hooks.OnPaused != nil {
		m.hooks.OnPaused(ctx)
	}
	return true
}

// Resume resumes a paused session. No-op (returns false) if the state
// machine does not permit resuming.
func (m *Manager) Resume() bool {
	m.mu.Lock()
	if m.active == nil || !m.machine.Current().CanResume() {
		m.mu.Unlock()
		return false
	}
	if m.active.PauseTs != nil {
		m.active.TotalPauseS += m.nowFn().Sub(*m.active.PauseTs).Seconds()
		m.active.PauseTs = nil
	}
	ctx := *m.active
	m.mu.Unlock()

	m.engine.Resume()
	m.machine.Transition(statemachine.ResumeSession)

	if m.sender != nil {
		if err := m.sender.SendSync(wire.CmdResumeSession, nil); err != nil {
			m.logger.Log(devlog.Event{Category: devlog.CategoryFault, Fault: &devlog.FaultEvent{Context: "session.resume", Message: err.Error()}})
		}
	}
	if m.hooks.OnResumed != nil {
		m.hooks.OnResumed(ctx)
	}
	return true
}

// DefaultStopReason is used when Stop is called with an empty reason.
const DefaultStopReason = "USER"

// Stop ends the active session, recording it to history. Returns false if
// no session is active.
func (m *Manager) Stop(reason string) bool {
	if reason == "" {
		reason = DefaultStopReason
	}
	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		return false
	}
	ctx := *m.active
	m.active = nil
	m.mu.Unlock()

	if m.sender != nil {
		if err := m.sender.SendSync(wire.CmdStopSession, []wire.Field{wire.F("reason", reason)}); err != nil {
			m.logger.Log(devlog.Event{Category: devlog.CategoryFault, Fault: &devlog.FaultEvent{Context: "session.stop", Message: err.Error()}})
		}
	}

	m.engine.Stop()

	now := m.nowFn()
	record := newRecord(ctx, now, m.engine.CyclesCompleted(), reason)
	m.history.Push(record)

	m.machine.Transition(statemachine.StopSession)
	m.machine.Transition(statemachine.Stopped)

	if m.hooks.OnStopped != nil {
		m.hooks.OnStopped(record)
	}
	return true
}

// EmergencyStop halts the active session without recording history,
// announcing STOP_SESSION before forcing the state machine directly to
// ERROR. A no-op if no session is active.
func (m *Manager) EmergencyStop() bool {
	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		return false
	}
	m.active = nil
	m.mu.Unlock()

	if m.sender != nil {
		if err := m.sender.SendSync(wire.CmdStopSession, []wire.Field{wire.F("reason", "EMERGENCY")}); err != nil {
			m.logger.Log(devlog.Event{Category: devlog.CategoryFault, Fault: &devlog.FaultEvent{Context: "session.emergency_stop", Message: err.Error()}})
		}
	}

	m.engine.Stop()
	m.machine.Force(statemachine.Error, "emergency_stop")
	return true
}

// Elapsed returns the active session's elapsed running time, excluding
// any time spent paused. Zero if no session is active. Never negative.
func (m *Manager) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return 0
	}
	return time.Duration(elapsed(*m.active, m.nowFn()) * float64(time.Second))
}

func elapsed(ctx Context, now time.Time) float64 {
	pauseS := ctx.TotalPauseS
	if ctx.PauseTs != nil {
		pauseS += now.Sub(*ctx.PauseTs).Seconds()
	}
	e := now.Sub(ctx.StartTs).Seconds() - pauseS
	if e < 0 {
		return 0
	}
	return e
}

// onCycleComplete is the engine's SetOnCycleComplete callback.
func (m *Manager) onCycleComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.active.CyclesCompleted++
	}
}

// History returns completed session records, oldest first.
func (m *Manager) History() []Record {
	return m.history.Slice()
}

// ExportHistory returns the history as a list of plain key/value maps, the
// snapshot shape the menu surface serves.
func (m *Manager) ExportHistory() []map[string]any {
	records := m.history.Slice()
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = map[string]any{
			"session_id":       r.SessionID,
			"profile_name":     r.ProfileName,
			"start_ts":         r.StartTs,
			"end_ts":           r.EndTs,
			"duration_s":       r.DurationS,
			"elapsed_s":        r.ElapsedS,
			"pause_duration_s": r.PauseDurationS,
			"cycles_completed": r.CyclesCompleted,
			"completion_pct":   r.CompletionPct,
			"stop_reason":      r.Reason,
		}
	}
	return out
}

// newRecord summarises a finished session context as of now.
func newRecord(ctx Context, now time.Time, cycles int, reason string) Record {
	durationS := ctx.Profile.SessionDurationSec()
	elapsedS := elapsed(ctx, now)
	completion := 0.0
	if durationS > 0 {
		completion = elapsedS / durationS * 100
		if completion > 100 {
			completion = 100
		}
	}
	pauseS := ctx.TotalPauseS
	if ctx.PauseTs != nil {
		pauseS += now.Sub(*ctx.PauseTs).Seconds()
	}
	return Record{
		SessionID:       ctx.SessionID,
		ProfileName:     ctx.Profile.Name,
		StartTs:         ctx.StartTs,
		EndTs:           now,
		DurationS:       durationS,
		ElapsedS:        elapsedS,
		PauseDurationS:  pauseS,
		CyclesCompleted: cycles,
		CompletionPct:   completion,
		Reason:          reason,
	}
}
