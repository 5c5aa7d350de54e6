package mdns

import (
	"context"
	"testing"

	"github.com/enbility/zeroconf/v3"
)

func TestAdvertiseRequiresIdentity(t *testing.T) {
	p, err := New("127.0.0.1:0")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer p.Close()

	if err := p.Advertise(context.Background()); err == nil {
		t.Fatal("expected error advertising without an identity")
	}
}

func TestEntryAddrEmptyEntryHasNoAddress(t *testing.T) {
	entry := &zeroconf.ServiceEntry{}
	entry.Port = 4242
	entry.AddrIPv4 = nil
	entry.AddrIPv6 = nil
	if _, ok := entryAddr(entry); ok {
		t.Fatal("expected no address with empty entry")
	}
}
