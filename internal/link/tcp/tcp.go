// Package tcp is a real-socket link.Port adapter, standing in for the
// BLE/radio transport on development hosts. It carries the sync wire
// protocol's EOT-terminated frames (internal/wire) over net.TCPConn: an
// accept loop feeds inbound sockets to WaitForConnection, and each
// connection owns a frame splitter and a write-side mutex.
package tcp

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/bluebuzzah/firmware/internal/link"
	"github.com/bluebuzzah/firmware/internal/wire"
)

// Port is a link.Port backed by a TCP listener (for the accepting side)
// and outbound dials (for the connecting side).
type Port struct {
	mu       sync.Mutex
	identity string
	listener net.Listener
	accepted chan net.Conn
	conns    map[link.ConnID]*endpoint
	next     int
}

type endpoint struct {
	mu       sync.Mutex
	conn     net.Conn
	splitter *wire.FrameSplitter
	closed   bool
}

// New creates a Port that listens on addr (host:port, or ":0" to pick a
// free port) for inbound connections. This adapter has no peer discovery:
// Advertise is a no-op and ScanAndConnect dials its name argument as a
// host:port address; internal/link/mdns wraps it to add discovery.
func New(addr string) (*Port, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	p := &Port{
		listener: l,
		accepted: make(chan net.Conn, 4),
		conns:    make(map[link.ConnID]*endpoint),
	}
	go p.acceptLoop()
	return p, nil
}

// Addr returns the listener's bound address.
func (p *Port) Addr() net.Addr {
	return p.listener.Addr()
}

func (p *Port) acceptLoop() {
	for {
		c, err := p.listener.Accept()
		if err != nil {
			return
		}
		p.accepted <- c
	}
}

func (p *Port) adopt(c net.Conn) link.ConnID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	id := link.ConnID("tcp-" + strconv.Itoa(p.next))
	p.conns[id] = &endpoint{conn: c, splitter: wire.NewFrameSplitter()}
	return id
}

// SetIdentity implements link.Port.
func (p *Port) SetIdentity(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identity = name
}

// Advertise implements link.Port. Raw TCP has no discovery mechanism of
// its own; this adapter is meant to be composed behind internal/link/mdns,
// so Advertise is a no-op here.
func (p *Port) Advertise(ctx context.Context) error {
	return nil
}

// ScanAndConnect implements link.Port by dialing name directly as a
// host:port address; real peer discovery belongs to internal/link/mdns.
func (p *Port) ScanAndConnect(ctx context.Context, slot link.Slot, name string, timeout time.Duration) (link.ConnID, error) {
	d := net.Dialer{Timeout: timeout}
	c, err := d.DialContext(ctx, "tcp", name)
	if err != nil {
		return "", link.ErrConnectTimeout
	}
	return p.adopt(c), nil
}

// WaitForConnection implements link.Port by waiting for the next accepted
// socket from the listener.
func (p *Port) WaitForConnection(ctx context.Context, slot link.Slot, timeout time.Duration) (link.ConnID, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c := <-p.accepted:
		return p.adopt(c), nil
	case <-timer.C:
		return "", link.ErrConnectTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Send implements link.Port. data is a complete frame body (as produced
// by wire.EncodeBody, without EOT); Send appends the trailing EOT
// terminator.
func (p *Port) Send(ctx context.Context, conn link.ConnID, data []byte) error {
	ep, err := p.endpoint(conn)
	if err != nil {
		return err
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		ep.conn.SetWriteDeadline(dl)
	} else {
		ep.conn.SetWriteDeadline(time.Time{})
	}
	frame := append(append([]byte{}, data...), wire.EOT)
	_, err = ep.conn.Write(frame)
	return err
}

// Receive implements link.Port. The returned bytes are one complete frame
// body, EOT already stripped, ready for wire.Decode.
func (p *Port) Receive(ctx context.Context, conn link.ConnID, timeout time.Duration) ([]byte, error) {
	ep, err := p.endpoint(conn)
	if err != nil {
		return nil, err
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if msg, ok := ep.splitter.ReceiveOne(); ok {
		return msg, nil
	}
	ep.conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 4096)
	n, err := ep.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil
		}
		return nil, err
	}
	if err := ep.splitter.Feed(buf[:n]); err != nil {
		return nil, err
	}
	if msg, ok := ep.splitter.ReceiveOne(); ok {
		return msg, nil
	}
	return nil, nil
}

// IsConnected implements link.Port.
func (p *Port) IsConnected(conn link.ConnID) bool {
	p.mu.Lock()
	ep, ok := p.conns[conn]
	p.mu.Unlock()
	if !ok {
		return false
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return !ep.closed
}

// Disconnect implements link.Port.
func (p *Port) Disconnect(conn link.ConnID) error {
	p.mu.Lock()
	ep, ok := p.conns[conn]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.closed {
		return nil
	}
	ep.closed = true
	return ep.conn.Close()
}

// Close stops accepting new connections.
func (p *Port) Close() error {
	return p.listener.Close()
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
