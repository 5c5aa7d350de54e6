// Package battery defines the abstract battery monitoring surface: a
// polled source returning {voltage, is_low, is_critical}. Real
// fuel-gauge telemetry is out of scope for this module; SimMonitor is a
// reference adapter so the rest of the core has something real to
// exercise, following the same shape as internal/actuator's SimPort.
package battery

// Reading is one battery sample, voltage in volts.
type Reading struct {
	Voltage    float64
	IsLow      bool
	IsCritical bool
}

// Monitor is the abstract battery surface the application loop polls
// once per tick.
type Monitor interface {
	// Read returns the current battery state. Implementations must be
	// cheap enough to call once per application tick.
	Read() Reading
}

// Default thresholds, overridable per therapy profile
// (battery_warning_voltage / battery_critical_voltage).
const (
	DefaultWarningVoltage  = 3.3
	DefaultCriticalVoltage = 3.0
)

// SimMonitor is a software-driven stand-in for a battery fuel gauge.
// Tests and the CLI set Voltage directly to exercise low/critical
// transitions.
type SimMonitor struct {
	Voltage         float64
	WarningVoltage  float64
	CriticalVoltage float64
}

// NewSimMonitor creates a SimMonitor starting at a healthy voltage with
// the default thresholds.
func NewSimMonitor() *SimMonitor {
	return &SimMonitor{
		Voltage:         4.2,
		WarningVoltage:  DefaultWarningVoltage,
		CriticalVoltage: DefaultCriticalVoltage,
	}
}

// Read implements Monitor.
func (m *SimMonitor) Read() Reading {
	return Reading{
		Voltage:    m.Voltage,
		IsLow:      m.Voltage <= m.WarningVoltage,
		IsCritical: m.Voltage <= m.CriticalVoltage,
	}
}

var _ Monitor = (*SimMonitor)(nil)
