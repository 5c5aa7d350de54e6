// Package apploop implements the per-role cooperative application loops:
// a single goroutine per device ticking at 20 Hz, owning the link port,
// menu surface, battery monitor, and everything downstream of them. The
// PRIMARY loop drives the pattern engine and emits SYNC commands; the
// SECONDARY loop never ticks an engine and is driven purely by received
// commands plus the heartbeat watchdog.
package apploop

import (
	"context"
	"runtime"
	"time"

	"github.com/bluebuzzah/firmware/internal/link"
)

// Loop timing constants.
const (
	// TickPeriod is the nominal cooperative tick interval (20 Hz).
	TickPeriod = 50 * time.Millisecond

	// ReceiveTimeout bounds a single link.Receive poll inside a tick.
	ReceiveTimeout = 10 * time.Millisecond

	// HeartbeatInterval is how often PRIMARY announces liveness while a
	// session is running.
	HeartbeatInterval = 2 * time.Second

	// StaleSessionWarning is how long SECONDARY tolerates silence while
	// RUNNING before logging a stale-session warning.
	StaleSessionWarning = 10 * time.Second

	// OutboundDrainMax bounds how many queued frames PRIMARY flushes to
	// the link per tick.
	OutboundDrainMax = 5

	// HousekeepingInterval is how often the loops run memory housekeeping
	// and emit a free-memory report.
	HousekeepingInterval = 60 * time.Second

	// DefaultStatsReportInterval is how often SECONDARY emits its
	// sync-latency report.
	DefaultStatsReportInterval = 60 * time.Second

	// inboundDrainMax bounds how many frames SECONDARY processes per tick
	// so a flood cannot starve the watchdog checks.
	inboundDrainMax = 64
)

// outboundFrame is one queued frame body awaiting a link.Send.
type outboundFrame struct {
	conn link.ConnID
	data []byte
}

// memReport is one memory housekeeping snapshot.
type memReport struct {
	HeapAllocBytes uint64
	SysBytes       uint64
	NumGC          uint32
}

// readMemReport samples the Go runtime's allocator counters. The runtime
// collects on its own schedule, so housekeeping only reports; it does not
// force a collection.
func readMemReport() memReport {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return memReport{
		HeapAllocBytes: ms.HeapAlloc,
		SysBytes:       ms.Sys,
		NumGC:          ms.NumGC,
	}
}

// runTicker drives tick at TickPeriod until ctx is cancelled or tick
// reports done.
func runTicker(ctx context.Context, tick func(ctx context.Context) (done bool)) error {
	ticker := time.NewTicker(TickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if tick(ctx) {
				return nil
			}
		}
	}
}
