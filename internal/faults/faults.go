// Package faults defines the sentinel error taxonomy shared across the
// module. Components wrap one of these with fmt.Errorf("%w: ...") so
// callers can classify failures with errors.Is regardless of which layer
// raised them.
package faults

import "errors"

var (
	// ErrConfigurationMissing is returned when a required configuration
	// value is absent and has no safe default.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrLinkUnavailable is returned when a link.Port operation is
	// attempted before a connection has been established.
	ErrLinkUnavailable = errors.New("link unavailable")

	// ErrActuatorFault is returned by actuator.Port operations that fail at
	// the hardware boundary.
	ErrActuatorFault = errors.New("actuator fault")

	// ErrPatternInvariantViolation is returned when a generated pattern
	// fails the left/right/timing length invariant.
	ErrPatternInvariantViolation = errors.New("pattern invariant violation")

	// ErrFramingOverflow is returned when an inbound byte stream exceeds
	// the maximum frame size before an EOT is observed.
	ErrFramingOverflow = errors.New("framing overflow")

	// ErrProtocolMalformed is returned when a decoded SYNC frame fails
	// grammar or required-key validation.
	ErrProtocolMalformed = errors.New("protocol malformed")

	// ErrSessionPreconditionFailed is returned when a session lifecycle
	// transition is requested from a state that does not permit it.
	ErrSessionPreconditionFailed = errors.New("session precondition failed")

	// ErrBatteryCritical is returned when a battery reading crosses the
	// critical threshold and the caller must stop drawing actuator power.
	ErrBatteryCritical = errors.New("battery critical")

	// ErrHeartbeatTimeout is returned when no heartbeat has been observed
	// within the configured liveness window.
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")

	// ErrReconnectExhausted is returned when the bounded reconnect loop
	// exhausts its attempt budget without re-establishing the link.
	ErrReconnectExhausted = errors.New("reconnect exhausted")
)
