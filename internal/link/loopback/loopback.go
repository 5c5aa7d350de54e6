// Package loopback is an in-process link.Port backed by buffered
// channels, used by tests and by the CLI's single-process two-role demo
// mode. Frames are queued rather than written through a real socket, so a
// sender never blocks on its peer draining — matching the "drain up to 5
// outbound per tick" discipline of the application loop
// without requiring the two sides to interleave Send/Receive calls.
package loopback

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/bluebuzzah/firmware/internal/link"
	"github.com/bluebuzzah/firmware/internal/wire"
)

// queueSize bounds how many undelivered frames a single connection holds.
const queueSize = 64

// Port is an in-process link.Port. A Port never advertises or scans for
// real peers; pairs are wired together with NewPair.
type Port struct {
	mu    sync.Mutex
	conns map[link.ConnID]*endpoint
	next  int
}

type endpoint struct {
	peer   chan []byte // frames this end has sent, read by the peer
	own    chan []byte // frames the peer has sent, read by this end
	closed bool
}

// New creates an unpaired loopback Port.
func New() *Port {
	return &Port{conns: make(map[link.ConnID]*endpoint)}
}

// NewPair creates two loopback ports already connected to each other,
// skipping SetIdentity/Advertise/ScanAndConnect entirely.
func NewPair(slotA, slotB link.Slot) (a *Port, aConn link.ConnID, b *Port, bConn link.ConnID) {
	a, b = New(), New()
	toB := make(chan []byte, queueSize)
	toA := make(chan []byte, queueSize)
	aConn = a.adopt(&endpoint{peer: toB, own: toA})
	bConn = b.adopt(&endpoint{peer: toA, own: toB})
	_ = slotA
	_ = slotB
	return a, aConn, b, bConn
}

func (p *Port) adopt(ep *endpoint) link.ConnID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	id := link.ConnID("loopback-" + strconv.Itoa(p.next))
	p.conns[id] = ep
	return id
}

// SetIdentity implements link.Port. Loopback pairing does not consult
// identity, so this is a no-op kept for interface conformance.
func (p *Port) SetIdentity(name string) {}

// Advertise implements link.Port. Loopback never advertises to anything;
// it returns nil so callers exercising the boot sequence against a
// pre-wired pair don't need a special case.
func (p *Port) Advertise(ctx context.Context) error {
	return nil
}

// ScanAndConnect implements link.Port. Loopback pairs are wired with
// NewPair, so ScanAndConnect always fails with link.ErrConnectTimeout.
func (p *Port) ScanAndConnect(ctx context.Context, slot link.Slot, name string, timeout time.Duration) (link.ConnID, error) {
	return "", link.ErrConnectTimeout
}

// WaitForConnection implements link.Port. Loopback pairs are wired with
// NewPair, so WaitForConnection always fails with link.ErrConnectTimeout.
func (p *Port) WaitForConnection(ctx context.Context, slot link.Slot, timeout time.Duration) (link.ConnID, error) {
	return "", link.ErrConnectTimeout
}

// Send implements link.Port. data is a complete frame body (as produced
// by wire.Encode, without its trailing EOT); Send copies it onto the
// peer's inbound queue.
func (p *Port) Send(ctx context.Context, conn link.ConnID, data []byte) error {
	ep, err := p.endpoint(conn)
	if err != nil {
		return err
	}
	frame := append([]byte{}, data...)
	select {
	case ep.peer <- frame:
		return nil
	default:
		return wire.ErrFramingOverflow
	}
}

// Receive implements link.Port. The returned bytes are one complete frame
// body, EOT already stripped, ready for wire.Decode. Returns (nil, nil) on
// timeout with nothing queued.
func (p *Port) Receive(ctx context.Context, conn link.ConnID, timeout time.Duration) ([]byte, error) {
	ep, err := p.endpoint(conn)
	if err != nil {
		return nil, err
	}
	select {
	case frame := <-ep.own:
		return frame, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case frame := <-ep.own:
		return frame, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsConnected implements link.Port.
func (p *Port) IsConnected(conn link.ConnID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.conns[conn]
	return ok && !ep.closed
}

// Disconnect implements link.Port.
func (p *Port) Disconnect(conn link.ConnID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.conns[conn]
	if !ok || ep.closed {
		return nil
	}
	ep.closed = true
	return nil
}

func (p *Port) endpoint(conn link.ConnID) (*endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.conns[conn]
	if !ok {
		return nil, link.ErrNoConnection
	}
	return ep, nil
}

var _ link.Port = (*Port)(nil)
