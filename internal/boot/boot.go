// Package boot implements the per-role boot sequences:
// PRIMARY advertises and accepts the SECONDARY (plus an optional phone)
// within the startup window; SECONDARY scans for the PRIMARY's identity
// in bounded inner windows until the outer window expires. A FAILED
// outcome halts the device; there is no in-place retry.
package boot

import (
	"context"
	"log/slog"
	"time"

	"github.com/bluebuzzah/firmware/internal/config"
	"github.com/bluebuzzah/firmware/internal/link"
	"github.com/bluebuzzah/firmware/internal/role"
)

// Inner-window constants for the SECONDARY scan loop.
const (
	// ScanWindow bounds one SECONDARY scan pass.
	ScanWindow = 5 * time.Second

	// ConnectWait bounds how long SECONDARY waits for a fresh connection
	// to report live.
	ConnectWait = 5 * time.Second

	// DiscoveryPause is the settle delay after the link reports connected,
	// giving the transport time to finish service discovery.
	DiscoveryPause = 200 * time.Millisecond

	// connectPoll is how often ConnectWait re-checks link liveness.
	connectPoll = 50 * time.Millisecond

	// scanRetryPause paces the SECONDARY scan loop when an adapter fails
	// faster than its scan window (no radio, transient adapter error), so
	// the loop cannot spin hot for the whole startup window.
	scanRetryPause = 100 * time.Millisecond
)

// Result is a completed boot attempt. Connections are only populated for
// the slots the outcome says were established.
type Result struct {
	Outcome     role.BootResult
	Connections map[link.Slot]link.ConnID
}

// Options tune the boot sequence, primarily for tests; zero values take
// the defaults above.
type Options struct {
	ScanWindow     time.Duration
	ConnectWait    time.Duration
	DiscoveryPause time.Duration
	Slog           *slog.Logger
}

func (o *Options) fill() {
	if o.ScanWindow <= 0 {
		o.ScanWindow = ScanWindow
	}
	if o.ConnectWait <= 0 {
		o.ConnectWait = ConnectWait
	}
	if o.DiscoveryPause <= 0 {
		o.DiscoveryPause = DiscoveryPause
	}
	if o.Slog == nil {
		o.Slog = slog.Default()
	}
}

// RunPrimary executes the PRIMARY boot sequence: set identity, advertise,
// accept the first SECONDARY within the startup window, then keep the
// remainder of the window open for an optional phone connection.
func RunPrimary(ctx context.Context, port link.Port, cfg *config.DeviceConfig, opts Options) Result {
	opts.fill()
	window := time.Duration(cfg.StartupWindowSec) * time.Second
	deadline := time.Now().Add(window)

	port.SetIdentity(cfg.BLEName)
	if err := port.Advertise(ctx); err != nil {
		opts.Slog.Error("advertise failed", "err", err)
		return Result{Outcome: role.Failed}
	}
	opts.Slog.Info("advertising", "identity", cfg.BLEName, "window", window)

	secondary, err := port.WaitForConnection(ctx, link.SlotSecondary, window)
	if err != nil {
		opts.Slog.Error("no secondary connected within startup window", "err", err)
		return Result{Outcome: role.Failed}
	}
	conns := map[link.Slot]link.ConnID{link.SlotSecondary: secondary}
	opts.Slog.Info("secondary connected", "conn", secondary)

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return Result{Outcome: role.SuccessNoPhone, Connections: conns}
	}
	phone, err := port.WaitForConnection(ctx, link.SlotPhone, remaining)
	if err != nil {
		return Result{Outcome: role.SuccessNoPhone, Connections: conns}
	}
	conns[link.SlotPhone] = phone
	opts.Slog.Info("phone connected", "conn", phone)
	return Result{Outcome: role.SuccessWithPhone, Connections: conns}
}

// RunSecondary executes the SECONDARY boot sequence: set the derived
// identity, then repeatedly scan for the PRIMARY's name in ScanWindow
// passes until the outer startup window expires.
func RunSecondary(ctx context.Context, port link.Port, cfg *config.DeviceConfig, opts Options) Result {
	opts.fill()
	window := time.Duration(cfg.StartupWindowSec) * time.Second
	deadline := time.Now().Add(window)

	port.SetIdentity(cfg.AdvertisedIdentity())
	opts.Slog.Info("scanning for primary", "target", cfg.BLEName, "window", window)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 || ctx.Err() != nil {
			opts.Slog.Error("primary not found within startup window")
			return Result{Outcome: role.Failed}
		}
		scan := opts.ScanWindow
		if remaining < scan {
			scan = remaining
		}

		scanStart := time.Now()
		conn, err := port.ScanAndConnect(ctx, link.SlotPrimary, cfg.BLEName, scan)
		if err != nil {
			if time.Since(scanStart) < scanRetryPause {
				sleepCtx(ctx, scanRetryPause)
			}
			continue
		}

		if !awaitConnected(ctx, port, conn, opts.ConnectWait) {
			opts.Slog.Warn("connection did not come up, rescanning", "conn", conn)
			_ = port.Disconnect(conn)
			continue
		}
		// Settle delay for service discovery.
		sleepCtx(ctx, opts.DiscoveryPause)
		opts.Slog.Info("connected to primary", "conn", conn)
		return Result{
			Outcome:     role.Success,
			Connections: map[link.Slot]link.ConnID{link.SlotPrimary: conn},
		}
	}
}

// awaitConnected polls until the link reports conn live or the wait
// window expires.
func awaitConnected(ctx context.Context, port link.Port, conn link.ConnID, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for {
		if port.IsConnected(conn) {
			return true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		sleepCtx(ctx, connectPoll)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
