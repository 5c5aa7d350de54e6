// Package link defines the abstract wireless transport surface. The
// paired serial-over-radio link itself is out of scope; internal/link/tcp,
// internal/link/mdns, and internal/link/loopback are reference adapters
// so the rest of the core has something real to run against.
package link

import (
	"context"
	"errors"
	"time"
)

// Slot names one of the three logical connection roles a device can hold
// at once.
type Slot string

const (
	SlotPrimary   Slot = "primary"
	SlotSecondary Slot = "secondary"
	SlotPhone     Slot = "phone"
)

// ConnID is an opaque per-connection handle.
type ConnID string

var (
	// ErrNoConnection is returned by Receive/Send/Disconnect when conn is
	// not a handle currently held by the port.
	ErrNoConnection = errors.New("link: no such connection")

	// ErrConnectTimeout is returned by WaitForConnection/ScanAndConnect
	// when no peer is found within the given timeout.
	ErrConnectTimeout = errors.New("link: connect timeout")
)

// Port is the abstract link surface the boot sequence and application
// loop drive. A Port has a single owning goroutine; implementations need
// not be safe for concurrent callers.
type Port interface {
	// SetIdentity sets the name this device presents to peers. PRIMARY
	// advertises it; SECONDARY appends "-Secondary" and never advertises.
	SetIdentity(name string)

	// Advertise begins advertising this device's identity so peers can
	// find it. Returns once advertising has started, not once a peer
	// connects.
	Advertise(ctx context.Context) error

	// ScanAndConnect searches for a peer advertising name and connects to
	// it, returning a handle for slot. Bounded by timeout.
	ScanAndConnect(ctx context.Context, slot Slot, name string, timeout time.Duration) (ConnID, error)

	// WaitForConnection blocks until an inbound connection is accepted
	// into slot, or timeout elapses.
	WaitForConnection(ctx context.Context, slot Slot, timeout time.Duration) (ConnID, error)

	// Send writes data to conn.
	Send(ctx context.Context, conn ConnID, data []byte) error

	// Receive reads the next available message from conn, blocking up to
	// timeout. Returns (nil, nil) on timeout with no data available.
	Receive(ctx context.Context, conn ConnID, timeout time.Duration) ([]byte, error)

	// IsConnected reports whether conn currently refers to a live
	// connection.
	IsConnected(conn ConnID) bool

	// Disconnect closes conn. Safe to call on an already-closed handle.
	Disconnect(conn ConnID) error
}
