// Package mdns is a link.Port adapter that discovers peers over mDNS
// using github.com/enbility/zeroconf/v3 and then hands the resulting
// address to internal/link/tcp for the actual byte transport, standing
// in for the BLE advertise/scan primitives on development hosts.
package mdns

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/bluebuzzah/firmware/internal/link"
	"github.com/bluebuzzah/firmware/internal/link/tcp"
)

// ServiceType is the mDNS service type this module's devices advertise
// and browse under.
const ServiceType = "_bluebuzzah._tcp"

// Domain is the mDNS domain devices advertise and browse within.
const Domain = "local."

// Port is a link.Port that layers mDNS-based discovery over a tcp.Port.
// Advertise registers this device's identity as an mDNS service pointing
// at the wrapped tcp.Port's listener; ScanAndConnect browses for a peer's
// identity and dials the first matching address.
type Port struct {
	*tcp.Port

	identity string
	server   *zeroconf.Server
}

// New creates an mDNS-backed Port listening on addr for the underlying
// TCP transport.
func New(addr string) (*Port, error) {
	tp, err := tcp.New(addr)
	if err != nil {
		return nil, err
	}
	return &Port{Port: tp}, nil
}

// SetIdentity implements link.Port.
func (p *Port) SetIdentity(name string) {
	p.identity = name
	p.Port.SetIdentity(name)
}

// Advertise implements link.Port by registering an mDNS service under
// p.identity, pointing at the wrapped tcp.Port's bound port.
func (p *Port) Advertise(ctx context.Context) error {
	if p.identity == "" {
		return fmt.Errorf("mdns: SetIdentity must be called before Advertise")
	}
	tcpAddr, ok := p.Port.Addr().(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("mdns: unexpected listener address type %T", p.Port.Addr())
	}
	server, err := zeroconf.Register(p.identity, ServiceType, Domain, tcpAddr.Port, nil, nil)
	if err != nil {
		return fmt.Errorf("mdns: register: %w", err)
	}
	p.server = server
	return nil
}

// ScanAndConnect implements link.Port by browsing for a service instance
// named name and dialing its first advertised address.
func (p *Port) ScanAndConnect(ctx context.Context, slot link.Slot, name string, timeout time.Duration) (link.ConnID, error) {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 8)
	removed := make(chan *zeroconf.ServiceEntry, 8)
	go func() {
		_ = zeroconf.Browse(scanCtx, ServiceType, Domain, entries, removed)
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", link.ErrConnectTimeout
			}
			if entry.Instance != name {
				continue
			}
			addr, ok := entryAddr(entry)
			if !ok {
				continue
			}
			return p.Port.ScanAndConnect(ctx, slot, addr, timeout)
		case <-scanCtx.Done():
			return "", link.ErrConnectTimeout
		}
	}
}

func entryAddr(entry *zeroconf.ServiceEntry) (string, bool) {
	if len(entry.AddrIPv4) > 0 {
		return fmt.Sprintf("%s:%d", entry.AddrIPv4[0].String(), entry.Port), true
	}
	if len(entry.AddrIPv6) > 0 {
		return fmt.Sprintf("[%s]:%d", entry.AddrIPv6[0].String(), entry.Port), true
	}
	return "", false
}

// Close stops advertising (if started) and closes the wrapped listener.
func (p *Port) Close() error {
	if p.server != nil {
		p.server.Shutdown()
	}
	return p.Port.Close()
}

var _ link.Port = (*Port)(nil)
