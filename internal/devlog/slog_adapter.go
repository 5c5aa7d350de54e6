package devlog

import (
	"context"
	"log/slog"
)

// SlogAdapter writes events to an slog.Logger, for console development
// output alongside the durable FileLogger sink.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps an existing slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("boot_run_id", event.BootRunID),
		slog.String("category", event.Category.String()),
	}
	if event.Role != "" {
		attrs = append(attrs, slog.String("role", event.Role))
	}
	if event.Direction != DirectionNone {
		attrs = append(attrs, slog.String("direction", event.Direction.String()))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.String("command", event.Frame.Command),
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Trigger != "" {
			attrs = append(attrs, slog.String("trigger", event.StateChange.Trigger))
		}
	case event.Sync != nil:
		attrs = append(attrs,
			slog.Float64("network_latency_us", event.Sync.NetworkLatencyUs),
			slog.Float64("execution_time_us", event.Sync.ExecutionTimeUs),
			slog.Float64("total_latency_us", event.Sync.TotalLatencyUs),
			slog.Bool("compliant", event.Sync.Compliant),
		)
	case event.Fault != nil:
		attrs = append(attrs,
			slog.String("fault_context", event.Fault.Context),
			slog.String("fault_message", event.Fault.Message),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "bluebuzzah", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
