package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bluebuzzah/firmware/internal/actuator"
	"github.com/bluebuzzah/firmware/internal/apploop"
	"github.com/bluebuzzah/firmware/internal/battery"
	"github.com/bluebuzzah/firmware/internal/config"
	"github.com/bluebuzzah/firmware/internal/devlog"
	"github.com/bluebuzzah/firmware/internal/led"
	"github.com/bluebuzzah/firmware/internal/link"
	"github.com/bluebuzzah/firmware/internal/link/loopback"
	"github.com/bluebuzzah/firmware/internal/recovery"
	"github.com/bluebuzzah/firmware/internal/role"
	runtimectx "github.com/bluebuzzah/firmware/internal/runtime"
	"github.com/bluebuzzah/firmware/internal/statemachine"
	"github.com/bluebuzzah/firmware/internal/syncstats"
)

// runDemo drives both roles of a bilateral pair inside one process over a
// loopback link: the PRIMARY's engine emits EXECUTE_BUZZ frames that the
// SECONDARY's handler executes against its own simulated actuator array.
// No network, no boot window; the pair is wired directly.
func runDemo(ctx context.Context, device *config.DeviceConfig, profile *config.TherapyProfile,
	events devlog.Logger, logger *slog.Logger, interactive bool) error {

	primaryPort, primaryConn, secondaryPort, secondaryConn :=
		loopback.NewPair(link.SlotSecondary, link.SlotPrimary)

	rt := runtimectx.New(device)
	primaryLogger := logger.With("role", role.Primary.String())
	secondaryLogger := logger.With("role", role.Secondary.String())

	d := buildPrimary(rt, primaryPort,
		map[link.Slot]link.ConnID{link.SlotSecondary: primaryConn},
		profile, events, primaryLogger)

	secondaryRt := rt
	secondaryRt.Role = role.Secondary

	secondaryMachine := statemachine.New()
	secondaryMachine.Transition(statemachine.Connected)
	secondaryLoop := apploop.NewSecondary(apploop.SecondaryDeps{
		Runtime:   secondaryRt,
		Port:      secondaryPort,
		Machine:   secondaryMachine,
		Actuator:  actuator.NewSimPort(profile.NumFingers),
		Battery:   battery.NewSimMonitor(),
		LED:       led.NewLogIndicator(events),
		Stats:     syncstats.New(syncstats.DefaultMaxSamples),
		Heartbeat: recovery.NewHeartbeatMonitor(recovery.DefaultHeartbeatTimeout, nil),
		Logger:    events,
		Slog:      secondaryLogger,
	}, secondaryConn)

	demoCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- d.loop.Run(demoCtx) }()
	go func() { errCh <- secondaryLoop.Run(demoCtx) }()

	if interactive {
		runREPL(demoCtx, "demo> ", d.menu)
		cancel()
	}

	err := <-errCh
	cancel()
	<-errCh
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
