// Command bbctl runs one half of a BlueBuzzah bilateral therapy pair on a
// development host: it loads the device and therapy profile documents,
// establishes the paired link (mDNS discovery over TCP transport, standing
// in for the radio), and drives the role's application loop against the
// simulated actuator array.
//
// Usage:
//
//	bbctl [flags]
//
// Flags:
//
//	-config string        Device config file (YAML)
//	-profile string       Therapy profile file (YAML)
//	-listen string        Transport listen address (default ":0")
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  File path for protocol event logging (CBOR format)
//	-interactive          Enable the local readline command surface
//	-demo                 Run both roles in-process over a loopback link
//
// Examples:
//
//	# Primary half of a pair
//	bbctl -config primary.yaml -profile vcr.yaml -interactive
//
//	# Secondary half, on another host on the same LAN
//	bbctl -config secondary.yaml -profile vcr.yaml
//
//	# Both halves in one process, no network
//	bbctl -config primary.yaml -profile vcr.yaml -demo -interactive
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bluebuzzah/firmware/internal/boot"
	"github.com/bluebuzzah/firmware/internal/config"
	"github.com/bluebuzzah/firmware/internal/devlog"
	"github.com/bluebuzzah/firmware/internal/link"
	"github.com/bluebuzzah/firmware/internal/link/mdns"
	"github.com/bluebuzzah/firmware/internal/role"
	runtimectx "github.com/bluebuzzah/firmware/internal/runtime"
)

func main() {
	var (
		configPath  = flag.String("config", "", "device config file (YAML)")
		profilePath = flag.String("profile", "", "therapy profile file (YAML)")
		listen      = flag.String("listen", ":0", "transport listen address")
		logLevel    = flag.String("log-level", "info", "log level: debug, info, warn, error")
		protocolLog = flag.String("protocol-log", "", "protocol event log file (CBOR)")
		interactive = flag.Bool("interactive", false, "enable the local command surface")
		demo        = flag.Bool("demo", false, "run both roles in-process over a loopback link")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))
	slog.SetDefault(logger)

	if *configPath == "" || *profilePath == "" {
		fmt.Fprintln(os.Stderr, "bbctl: -config and -profile are required")
		os.Exit(2)
	}

	device, err := config.LoadDeviceConfig(*configPath)
	if err != nil {
		logger.Error("device config", "err", err)
		os.Exit(1)
	}
	profile, err := config.LoadTherapyProfile(*profilePath)
	if err != nil {
		logger.Error("therapy profile", "err", err)
		os.Exit(1)
	}

	events := devlog.Logger(devlog.NoopLogger{})
	if *protocolLog != "" {
		fl, err := devlog.NewFileLogger(*protocolLog)
		if err != nil {
			logger.Error("protocol log", "err", err)
			os.Exit(1)
		}
		defer fl.Close()
		events = devlog.NewMultiLogger(fl, devlog.NewSlogAdapter(logger))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *demo {
		if err := runDemo(ctx, device, profile, events, logger, *interactive); err != nil {
			logger.Error("demo", "err", err)
			os.Exit(1)
		}
		return
	}

	port, err := mdns.New(*listen)
	if err != nil {
		logger.Error("transport", "err", err)
		os.Exit(1)
	}

	rt := runtimectx.New(device)
	logger.Info("booting",
		"role", rt.Role, "firmware", rt.FirmwareVersion, "run", rt.BootRunID)

	var result boot.Result
	switch rt.Role {
	case role.Primary:
		result = boot.RunPrimary(ctx, port, device, boot.Options{Slog: logger})
	case role.Secondary:
		result = boot.RunSecondary(ctx, port, device, boot.Options{Slog: logger})
	}
	if !result.Outcome.Ok() {
		logger.Error("boot failed, restart required", "outcome", result.Outcome)
		os.Exit(1)
	}
	logger.Info("boot complete", "outcome", result.Outcome)

	switch rt.Role {
	case role.Primary:
		err = runPrimary(ctx, rt, port, result.Connections, profile, events, logger, *interactive)
	case role.Secondary:
		err = runSecondary(ctx, rt, port, result.Connections[link.SlotPrimary], device.BLEName, events, logger)
	}
	if err != nil && ctx.Err() == nil {
		logger.Error("loop exited", "err", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
