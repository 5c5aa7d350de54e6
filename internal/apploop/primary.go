package apploop

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bluebuzzah/firmware/internal/actuator"
	"github.com/bluebuzzah/firmware/internal/battery"
	"github.com/bluebuzzah/firmware/internal/devlog"
	"github.com/bluebuzzah/firmware/internal/engine"
	"github.com/bluebuzzah/firmware/internal/led"
	"github.com/bluebuzzah/firmware/internal/link"
	"github.com/bluebuzzah/firmware/internal/menu"
	runtimectx "github.com/bluebuzzah/firmware/internal/runtime"
	"github.com/bluebuzzah/firmware/internal/session"
	"github.com/bluebuzzah/firmware/internal/statemachine"
	"github.com/bluebuzzah/firmware/internal/wire"
)

// PrimaryDeps are the collaborators a Primary loop drives. All fields are
// required except Menu, Logger, and Slog.
type PrimaryDeps struct {
	Runtime  runtimectx.Context
	Port     link.Port
	Machine  *statemachine.Machine
	Engine   *engine.Engine
	Manager  *session.Manager
	Actuator actuator.Port
	Battery  battery.Monitor
	LED      led.Indicator
	Menu     menu.Handler
	Logger   devlog.Logger
	Slog     *slog.Logger
}

// Primary is the master-role application loop. It owns the
// slot-to-connection map and the outbound frame queue; the engine and
// session manager reach the link only through Primary's send callbacks.
type Primary struct {
	deps  PrimaryDeps
	conns map[link.Slot]link.ConnID

	// outMu guards outbound: SendSync may be called from the interactive
	// surface's goroutine while the loop goroutine flushes.
	outMu             sync.Mutex
	outbound          []outboundFrame
	lastHeartbeatSent time.Time
	lastHousekeeping  time.Time
	prevBattery       battery.Reading
	shutdown          bool

	nowFn func() time.Time
}

// NewPrimary creates a Primary loop over deps. conns maps each already-
// established boot connection to its slot; SlotSecondary must be present
// for SYNC commands to reach the follower.
func NewPrimary(deps PrimaryDeps, conns map[link.Slot]link.ConnID) *Primary {
	if deps.Logger == nil {
		deps.Logger = devlog.NoopLogger{}
	}
	if deps.Slog == nil {
		deps.Slog = slog.Default()
	}
	p := &Primary{
		deps:             deps,
		conns:            conns,
		lastHousekeeping: time.Now(),
		prevBattery:      battery.Reading{Voltage: battery.DefaultWarningVoltage + 1},
		nowFn:            time.Now,
	}
	return p
}

// SetManager attaches the session manager after construction. The manager
// needs the loop as its Sender and the loop needs the manager for the
// emergency-shutdown path, so one of the two binds late.
func (p *Primary) SetManager(m *session.Manager) {
	p.deps.Manager = m
}

// SetClock overrides the time source (for tests). Must be called before
// the first tick.
func (p *Primary) SetClock(nowFn func() time.Time) {
	p.nowFn = nowFn
	p.lastHousekeeping = nowFn()
}

// SendSync implements session.Sender by queueing the frame for the
// SECONDARY slot. The queue is drained later in the same tick, so
// lifecycle and EXECUTE_BUZZ commands never wait a full tick period.
func (p *Primary) SendSync(cmd string, fields []wire.Field) error {
	conn, ok := p.conns[link.SlotSecondary]
	if !ok {
		return link.ErrNoConnection
	}
	p.enqueue(conn, wire.EncodeBody(cmd, fields))
	return nil
}

// ExecuteBuzz implements engine.CommandSink.
func (p *Primary) ExecuteBuzz(leftFinger, rightFinger, amplitudePct int, seq uint64, tsUs int64) {
	err := p.SendSync(wire.CmdExecuteBuzz, []wire.Field{
		wire.F("left_finger", leftFinger),
		wire.F("right_finger", rightFinger),
		wire.F("amplitude", amplitudePct),
		wire.F("seq", seq),
		wire.F("timestamp", tsUs),
	})
	if err != nil {
		p.deps.Slog.Warn("execute_buzz not sent", "err", err)
	}
}

// Deactivate implements engine.CommandSink, mirroring each local burst
// expiry to the follower.
func (p *Primary) Deactivate(leftFinger, rightFinger int) {
	err := p.SendSync(wire.CmdDeactivate, []wire.Field{
		wire.F("left_finger", leftFinger),
		wire.F("right_finger", rightFinger),
	})
	if err != nil {
		p.deps.Slog.Warn("deactivate not sent", "err", err)
	}
}

// LogFault implements engine.FaultLogger.
func (p *Primary) LogFault(context string, err error) {
	p.deps.Logger.Log(devlog.Event{
		BootRunID: p.deps.Runtime.BootRunID,
		Role:      p.deps.Runtime.Role.String(),
		Category:  devlog.CategoryFault,
		Fault:     &devlog.FaultEvent{Context: context, Message: err.Error()},
	})
}

// Run drives the loop at the nominal tick rate until ctx is cancelled or
// an emergency shutdown stops the device.
func (p *Primary) Run(ctx context.Context) error {
	return runTicker(ctx, func(ctx context.Context) bool {
		p.TickOnce(ctx)
		return p.shutdown
	})
}

// SinkRelay forwards engine emissions to a Primary bound after the engine
// is built, breaking the construction cycle between the two (the engine
// takes its sink at New; the loop takes the engine in its deps).
type SinkRelay struct {
	p *Primary
}

// Bind attaches the relay to its loop. Emissions before Bind are dropped;
// the engine does not run before the loop exists.
func (r *SinkRelay) Bind(p *Primary) { r.p = p }

// ExecuteBuzz implements engine.CommandSink.
func (r *SinkRelay) ExecuteBuzz(leftFinger, rightFinger, amplitudePct int, seq uint64, tsUs int64) {
	if r.p != nil {
		r.p.ExecuteBuzz(leftFinger, rightFinger, amplitudePct, seq, tsUs)
	}
}

// Deactivate implements engine.CommandSink.
func (r *SinkRelay) Deactivate(leftFinger, rightFinger int) {
	if r.p != nil {
		r.p.Deactivate(leftFinger, rightFinger)
	}
}

// LogFault implements engine.FaultLogger.
func (r *SinkRelay) LogFault(context string, err error) {
	if r.p != nil {
		r.p.LogFault(context, err)
	}
}

// TickOnce executes one cooperative tick. Exported so tests and the
// single-process demo can drive the loop with a controlled clock.
func (p *Primary) TickOnce(ctx context.Context) {
	now := p.nowFn()

	p.deps.Engine.Tick(now)

	if p.deps.Engine.IsRunning() && now.Sub(p.lastHeartbeatSent) >= HeartbeatInterval {
		if err := p.SendSync(wire.CmdHeartbeat, []wire.Field{
			wire.F("ts", now.UnixMicro()),
		}); err == nil {
			p.lastHeartbeatSent = now
		}
	}

	p.drainInbound(ctx)
	p.flushOutbound(ctx)

	p.deps.LED.SetState(p.deps.Machine.Current())
	p.pollBattery(ctx)
	p.housekeeping(now)
}

// drainInbound polls each active slot for one message. SYNC frames
// arriving at PRIMARY are unexpected and dropped; everything else is
// routed to the menu handler and the response queued back to the same
// connection.
func (p *Primary) drainInbound(ctx context.Context) {
	for slot, conn := range p.conns {
		msg, err := p.deps.Port.Receive(ctx, conn, ReceiveTimeout)
		if err != nil {
			p.LogFault("apploop: receive "+string(slot), err)
			continue
		}
		if msg == nil {
			continue
		}
		if strings.HasPrefix(string(msg), "SYNC:") {
			p.deps.Slog.Warn("unexpected SYNC frame on primary", "slot", slot)
			continue
		}
		if p.deps.Menu == nil {
			continue
		}
		resp := p.deps.Menu.Handle(string(msg))
		if resp != "" {
			p.enqueue(conn, []byte(resp))
		}
	}
}

func (p *Primary) enqueue(conn link.ConnID, data []byte) {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	p.outbound = append(p.outbound, outboundFrame{conn: conn, data: data})
}

// flushOutbound sends up to OutboundDrainMax queued frames. A send
// failure drops the frame and logs; the reliable ordered transport makes
// retrying at this layer pointless.
func (p *Primary) flushOutbound(ctx context.Context) {
	p.outMu.Lock()
	n := len(p.outbound)
	if n > OutboundDrainMax {
		n = OutboundDrainMax
	}
	batch := p.outbound[:n:n]
	p.outbound = p.outbound[n:]
	p.outMu.Unlock()

	for _, f := range batch {
		if err := p.deps.Port.Send(ctx, f.conn, f.data); err != nil {
			p.LogFault("apploop: send", err)
		}
	}
}

// pollBattery watches for threshold crossings: a low crossing while
// RUNNING logs a warning; a critical crossing in any non-error state
// triggers emergency shutdown.
func (p *Primary) pollBattery(ctx context.Context) {
	r := p.deps.Battery.Read()
	prev := p.prevBattery
	p.prevBattery = r

	if r.IsCritical && !prev.IsCritical && !p.deps.Machine.Current().IsError() {
		p.emergencyShutdown(ctx, "battery_critical")
		return
	}
	if r.IsLow && !prev.IsLow && p.deps.Machine.Current() == statemachine.Running {
		p.deps.Slog.Warn("battery low", "voltage", r.Voltage)
		p.deps.Logger.Log(devlog.Event{
			BootRunID: p.deps.Runtime.BootRunID,
			Role:      p.deps.Runtime.Role.String(),
			Category:  devlog.CategoryFault,
			Fault:     &devlog.FaultEvent{Context: "battery_low", Message: "warning threshold crossed"},
		})
	}
}

// emergencyShutdown silences everything and halts the loop. The session
// manager's EmergencyStop announces STOP_SESSION to the follower first,
// then the Force names the cause so the terminal state reads
// CRITICAL_BATTERY rather than the generic ERROR.
func (p *Primary) emergencyShutdown(ctx context.Context, reason string) {
	p.deps.Manager.EmergencyStop()
	p.flushOutbound(ctx)
	p.deps.Actuator.EmergencyStop()
	p.deps.Machine.Force(statemachine.CriticalBattery, reason)
	p.deps.LED.SetState(p.deps.Machine.Current())
	p.shutdown = true
	p.deps.Slog.Error("emergency shutdown", "reason", reason)
}

// housekeeping emits a free-memory report once per interval.
func (p *Primary) housekeeping(now time.Time) {
	if now.Sub(p.lastHousekeeping) < HousekeepingInterval {
		return
	}
	p.lastHousekeeping = now
	rep := readMemReport()
	p.deps.Slog.Info("memory report",
		"heap_alloc", rep.HeapAllocBytes,
		"sys", rep.SysBytes,
		"num_gc", rep.NumGC,
	)
}
