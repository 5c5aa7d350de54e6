package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bluebuzzah/firmware/internal/actuator"
	"github.com/bluebuzzah/firmware/internal/apploop"
	"github.com/bluebuzzah/firmware/internal/battery"
	"github.com/bluebuzzah/firmware/internal/config"
	"github.com/bluebuzzah/firmware/internal/devlog"
	"github.com/bluebuzzah/firmware/internal/engine"
	"github.com/bluebuzzah/firmware/internal/led"
	"github.com/bluebuzzah/firmware/internal/link"
	"github.com/bluebuzzah/firmware/internal/menu"
	"github.com/bluebuzzah/firmware/internal/recovery"
	runtimectx "github.com/bluebuzzah/firmware/internal/runtime"
	"github.com/bluebuzzah/firmware/internal/session"
	"github.com/bluebuzzah/firmware/internal/statemachine"
	"github.com/bluebuzzah/firmware/internal/syncstats"
)

// primaryDevice bundles everything the PRIMARY role wires together, so
// the interactive surface can reach the session manager and stats.
type primaryDevice struct {
	loop    *apploop.Primary
	machine *statemachine.Machine
	manager *session.Manager
	menu    *menu.Router
	batt    *battery.SimMonitor
}

// buildPrimary wires the PRIMARY stack: simulated actuators, pattern
// engine, session manager, menu surface, application loop.
func buildPrimary(rt runtimectx.Context, port link.Port, conns map[link.Slot]link.ConnID,
	profile *config.TherapyProfile, events devlog.Logger, logger *slog.Logger) *primaryDevice {

	machine := statemachine.New()
	sim := actuator.NewSimPort(profile.NumFingers)
	batt := battery.NewSimMonitor()
	batt.WarningVoltage = profile.BatteryWarningVoltage
	batt.CriticalVoltage = profile.BatteryCriticalVoltage

	relay := &apploop.SinkRelay{}
	eng := engine.New(sim, relay, engine.WithFaultLogger(relay))

	router := menu.NewRouter()

	loop := apploop.NewPrimary(apploop.PrimaryDeps{
		Runtime:  rt,
		Port:     port,
		Machine:  machine,
		Engine:   eng,
		Actuator: sim,
		Battery:  batt,
		LED:      led.NewLogIndicator(events),
		Menu:     router,
		Logger:   events,
		Slog:     logger,
	}, conns)
	relay.Bind(loop)

	manager := session.New(machine, eng,
		session.WithSender(loop),
		session.WithLogger(events),
		session.WithHooks(session.Hooks{
			OnStarted: func(ctx session.Context) {
				logger.Info("session started", "id", ctx.SessionID, "profile", ctx.Profile.Name)
			},
			OnStopped: func(r session.Record) {
				logger.Info("session stopped", "id", r.SessionID,
					"reason", r.Reason, "cycles", r.CyclesCompleted,
					"completion_pct", fmt.Sprintf("%.1f", r.CompletionPct))
			},
		}))
	loop.SetManager(manager)
	machine.Transition(statemachine.Connected)

	d := &primaryDevice{loop: loop, machine: machine, manager: manager, menu: router, batt: batt}
	d.registerCommands(profile)
	return d
}

// registerCommands binds the menu surface commands. The same Router
// answers both link-delivered commands and the local readline REPL.
func (d *primaryDevice) registerCommands(profile *config.TherapyProfile) {
	d.menu.Register("status", func(args []string) string {
		state := d.machine.Current()
		if ctx, ok := d.manager.Active(); ok {
			return fmt.Sprintf("STATE %s SESSION %s ELAPSED %.0fs CYCLES %d",
				state, ctx.SessionID, d.manager.Elapsed().Seconds(), ctx.CyclesCompleted)
		}
		return "STATE " + state.String()
	})
	d.menu.Register("start", func(args []string) string {
		ok, err := d.manager.Start(profile)
		if err != nil {
			return "ERR " + err.Error()
		}
		if !ok {
			return "ERR session already active"
		}
		return "OK"
	})
	d.menu.Register("pause", func(args []string) string {
		if !d.manager.Pause() {
			return "ERR cannot pause"
		}
		return "OK"
	})
	d.menu.Register("resume", func(args []string) string {
		if !d.manager.Resume() {
			return "ERR cannot resume"
		}
		return "OK"
	})
	d.menu.Register("stop", func(args []string) string {
		if !d.manager.Stop("") {
			return "ERR no active session"
		}
		return "OK"
	})
	d.menu.Register("estop", func(args []string) string {
		d.manager.EmergencyStop()
		return "OK"
	})
	d.menu.Register("history", func(args []string) string {
		records := d.manager.ExportHistory()
		if len(records) == 0 {
			return "no sessions recorded"
		}
		var b strings.Builder
		for _, r := range records {
			fmt.Fprintf(&b, "%s %s %.0fs cycles=%v %s\n",
				r["session_id"], r["profile_name"], r["elapsed_s"],
				r["cycles_completed"], r["stop_reason"])
		}
		return strings.TrimRight(b.String(), "\n")
	})
	d.menu.Register("battery", func(args []string) string {
		r := d.batt.Read()
		return fmt.Sprintf("%.2fV low=%v critical=%v", r.Voltage, r.IsLow, r.IsCritical)
	})
	d.menu.Register("help", func(args []string) string {
		return "commands: status start pause resume stop estop history battery help"
	})
}

// runPrimary builds and drives the PRIMARY role until ctx is cancelled.
func runPrimary(ctx context.Context, rt runtimectx.Context, port link.Port,
	conns map[link.Slot]link.ConnID, profile *config.TherapyProfile,
	events devlog.Logger, logger *slog.Logger, interactive bool) error {

	d := buildPrimary(rt, port, conns, profile, events, logger)
	if interactive {
		go runREPL(ctx, "primary> ", d.menu)
	}
	return d.loop.Run(ctx)
}

// runSecondary builds and drives the SECONDARY role until ctx is
// cancelled. The reconnect scan re-runs the boot-time discovery against
// the PRIMARY's advertised name.
func runSecondary(ctx context.Context, rt runtimectx.Context, port link.Port,
	conn link.ConnID, primaryName string, events devlog.Logger, logger *slog.Logger) error {

	machine := statemachine.New()
	machine.Transition(statemachine.Connected)
	sim := actuator.NewSimPort(5)

	var loop *apploop.Secondary
	reconnect := recovery.NewReconnectManager(func(scanCtx context.Context) error {
		fresh, err := port.ScanAndConnect(scanCtx, link.SlotPrimary, primaryName, recovery.DefaultScanWindow)
		if err != nil {
			return err
		}
		loop.SetConnection(fresh)
		return nil
	})

	loop = apploop.NewSecondary(apploop.SecondaryDeps{
		Runtime:   rt,
		Port:      port,
		Machine:   machine,
		Actuator:  sim,
		Battery:   battery.NewSimMonitor(),
		LED:       led.NewLogIndicator(events),
		Stats:     syncstats.New(syncstats.DefaultMaxSamples),
		Heartbeat: recovery.NewHeartbeatMonitor(recovery.DefaultHeartbeatTimeout, nil),
		Reconnect: reconnect,
		Logger:    events,
		Slog:      logger,
	}, conn)

	return loop.Run(ctx)
}
