package session

import (
	"testing"
	"time"

	"github.com/bluebuzzah/firmware/internal/actuator"
	"github.com/bluebuzzah/firmware/internal/config"
	"github.com/bluebuzzah/firmware/internal/engine"
	"github.com/bluebuzzah/firmware/internal/statemachine"
	"github.com/bluebuzzah/firmware/internal/wire"
)

type fakeSender struct {
	sent   []string
	fields map[string][]wire.Field
}

func (f *fakeSender) SendSync(cmd string, fields []wire.Field) error {
	f.sent = append(f.sent, cmd)
	if f.fields == nil {
		f.fields = make(map[string][]wire.Field)
	}
	f.fields[cmd] = fields
	return nil
}

func testProfile() *config.TherapyProfile {
	return &config.TherapyProfile{
		ActuatorType:       "vibration_motor",
		NumFingers:         5,
		SessionDurationMin: 0.01,
		PatternType:        "sequential",
		TimeOnMs:           10,
		TimeOffMs:          10,
		AmplitudePercent:   50,
	}
}

func newTestManager(t *testing.T, now *time.Time) (*Manager, *statemachine.Machine, *fakeSender) {
	t.Helper()
	machine := statemachine.New()
	machine.Transition(statemachine.Connected)
	eng := engine.New(actuator.NewSimPort(5), nil, engine.WithClock(func() time.Time { return *now }))
	sender := &fakeSender{}
	m := New(machine, eng, WithSender(sender), WithClock(func() time.Time { return *now }))
	return m, machine, sender
}

func TestStartTransitionsToRunningAndEmitsCommand(t *testing.T) {
	now := time.Now()
	m, machine, sender := newTestManager(t, &now)

	ok, err := m.Start(testProfile())
	if err != nil || !ok {
		t.Fatalf("expected start to succeed, got ok=%v err=%v", ok, err)
	}
	if machine.Current() != statemachine.Running {
		t.Fatalf("expected RUNNING, got %s", machine.Current())
	}
	if len(sender.sent) != 1 || sender.sent[0] != "START_SESSION" {
		t.Fatalf("expected START_SESSION sent, got %v", sender.sent)
	}
}

func TestStartFailsWhenAlreadyActive(t *testing.T) {
	now := time.Now()
	m, _, _ := newTestManager(t, &now)
	m.Start(testProfile())

	ok, err := m.Start(testProfile())
	if ok || err != nil {
		t.Fatalf("expected second start to return false,nil got ok=%v err=%v", ok, err)
	}
}

func TestPauseResumeRoundTrip(t *testing.T) {
	now := time.Now()
	m, machine, sender := newTestManager(t, &now)
	m.Start(testProfile())

	if !m.Pause() {
		t.Fatal("expected pause to succeed")
	}
	if machine.Current() != statemachine.Paused {
		t.Fatalf("expected PAUSED, got %s", machine.Current())
	}

	if !m.Resume() {
		t.Fatal("expected resume to succeed")
	}
	if machine.Current() != statemachine.Running {
		t.Fatalf("expected RUNNING, got %s", machine.Current())
	}

	found := map[string]bool{}
	for _, c := range sender.sent {
		found[c] = true
	}
	if !found["PAUSE_SESSION"] || !found["RESUME_SESSION"] {
		t.Fatalf("expected pause/resume commands sent, got %v", sender.sent)
	}
}

func TestStopRecordsHistoryAndTransitionsToIdle(t *testing.T) {
	now := time.Now()
	m, machine, _ := newTestManager(t, &now)
	m.Start(testProfile())

	if !m.Stop("USER") {
		t.Fatal("expected stop to succeed")
	}
	if machine.Current() != statemachine.Idle {
		t.Fatalf("expected IDLE, got %s", machine.Current())
	}
	hist := m.History()
	if len(hist) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(hist))
	}
	if hist[0].Reason != "USER" {
		t.Fatalf("expected reason USER, got %q", hist[0].Reason)
	}
}

func TestEmergencyStopForcesErrorWithoutHistory(t *testing.T) {
	now := time.Now()
	m, machine, sender := newTestManager(t, &now)
	m.Start(testProfile())
	sender.sent = nil

	if !m.EmergencyStop() {
		t.Fatal("expected emergency stop to succeed")
	}
	if machine.Current() != statemachine.Error {
		t.Fatalf("expected ERROR, got %s", machine.Current())
	}
	if len(m.History()) != 0 {
		t.Fatalf("expected no history entry for emergency stop, got %d", len(m.History()))
	}
	if len(sender.sent) != 1 || sender.sent[0] != "STOP_SESSION" {
		t.Fatalf("expected STOP_SESSION sent before force, got %v", sender.sent)
	}
}

func TestElapsedExcludesPauseTime(t *testing.T) {
	now := time.Now()
	m, _, _ := newTestManager(t, &now)
	m.Start(testProfile())

	now = now.Add(5 * time.Second)
	m.Pause()
	now = now.Add(3 * time.Second)
	m.Resume()
	now = now.Add(2 * time.Second)

	elapsed := m.Elapsed()
	if elapsed < 6*time.Second || elapsed > 8*time.Second {
		t.Fatalf("expected ~7s elapsed excluding pause, got %v", elapsed)
	}
}

func TestElapsedNeverNegative(t *testing.T) {
	now := time.Now()
	m, _, _ := newTestManager(t, &now)
	m.Start(testProfile())
	now = now.Add(-time.Second)
	if m.Elapsed() < 0 {
		t.Fatal("expected elapsed to never go negative")
	}
}

func TestSessionIDsAreMonotonicPerRun(t *testing.T) {
	now := time.Now()
	m, _, _ := newTestManager(t, &now)

	m.Start(testProfile())
	first, _ := m.Active()
	m.Stop("USER")
	m.Start(testProfile())
	second, _ := m.Active()

	if first.SessionID != "session_0001" {
		t.Fatalf("expected session_0001, got %q", first.SessionID)
	}
	if second.SessionID != "session_0002" {
		t.Fatalf("expected session_0002, got %q", second.SessionID)
	}
}

func TestStartSessionPayloadCarriesEngineParams(t *testing.T) {
	now := time.Now()
	m, _, sender := newTestManager(t, &now)
	m.Start(testProfile())

	fields := sender.fields["START_SESSION"]
	keys := make(map[string]bool, len(fields))
	for _, f := range fields {
		keys[f.Key] = true
	}
	for _, want := range []string{
		"duration_sec", "pattern_type", "jitter_percent",
		"time_on_ms", "time_off_ms", "num_fingers", "mirror_pattern",
	} {
		if !keys[want] {
			t.Fatalf("START_SESSION payload missing %q, got %v", want, fields)
		}
	}
}

func TestExportHistorySnapshot(t *testing.T) {
	now := time.Now()
	m, _, _ := newTestManager(t, &now)
	profile := testProfile()
	profile.Name = "morning"
	m.Start(profile)
	now = now.Add(30 * time.Second)
	m.Stop("USER")

	export := m.ExportHistory()
	if len(export) != 1 {
		t.Fatalf("expected 1 exported record, got %d", len(export))
	}
	rec := export[0]
	if rec["session_id"] != "session_0001" {
		t.Fatalf("unexpected session_id %v", rec["session_id"])
	}
	if rec["profile_name"] != "morning" {
		t.Fatalf("unexpected profile_name %v", rec["profile_name"])
	}
	if rec["stop_reason"] != "USER" {
		t.Fatalf("unexpected stop_reason %v", rec["stop_reason"])
	}
	if rec["pause_duration_s"].(float64) != 0 {
		t.Fatalf("unexpected pause_duration_s %v", rec["pause_duration_s"])
	}
	if rec["completion_pct"].(float64) <= 0 {
		t.Fatalf("expected positive completion_pct, got %v", rec["completion_pct"])
	}
}
