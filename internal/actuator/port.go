// Package actuator defines the abstract actuator port the core drives.
// The multiplexed I2C haptic driver behind this interface is out of scope
// for this module; SimPort is a reference adapter used by the
// CLI and integration tests so the rest of the core has something real to
// exercise.
package actuator

import "fmt"

// Port is the abstract actuator surface the pattern engine and the
// SECONDARY sync handler drive. Implementations must be safe to call from
// a single owning goroutine only; the core never calls a Port
// concurrently with itself.
type Port interface {
	// Activate turns on the actuator at fingerIdx at the given amplitude
	// percentage (0-100).
	Activate(fingerIdx int, amplitudePct int) error

	// Deactivate turns off the actuator at fingerIdx.
	Deactivate(fingerIdx int) error

	// StopAll deactivates every actuator. If force is true, implementations
	// should not wait for in-flight operations to settle.
	StopAll(force bool) error

	// EmergencyStop immediately silences every actuator. Unlike StopAll,
	// this must never block and should not return a recoverable error to
	// the caller's critical path -- implementations log failures instead.
	EmergencyStop()
}

// ErrInvalidFinger is returned when a finger index is out of range for the
// configured actuator count.
type ErrInvalidFinger struct {
	Index int
	Count int
}

func (e *ErrInvalidFinger) Error() string {
	return fmt.Sprintf("actuator: finger index %d out of range [0,%d)", e.Index, e.Count)
}
