package discovery

import (
	"net"
	"testing"
	"time"

	"filemesh/pkg/peertable"
	"filemesh/pkg/progresslog"
)

type countingMetrics struct{ n int }

func (c *countingMetrics) RecordDiscoveryMessage() { c.n++ }

func selfAddr() peertable.Address {
	return peertable.Address{Host: "10.0.0.1", Port: 9001}
}

func TestHandleDiscoveryRequestSuppressesReplayedID(t *testing.T) {
	sink := progresslog.NewMemorySink()
	metrics := &countingMetrics{}
	svc := New(selfAddr(), sink, metrics)

	parts := []string{typeDiscover, "fixed-id", "3", "10.0.0.2", "9002"}
	svc.handleDiscoveryRequest(parts, nil)
	if !svc.processed.Contains("fixed-id") {
		t.Fatalf("expected message id to be recorded as processed")
	}

	// Replaying the identical id must be suppressed: AddUnique returns
	// true (already present) so handling stops before any forwarding.
	if !svc.processed.AddUnique("fixed-id") {
		t.Fatalf("expected replayed id to report already-processed")
	}
}

func TestHandleDiscoveryResponseUpdatesPeerTable(t *testing.T) {
	sink := progresslog.NewMemorySink()
	svc := New(selfAddr(), sink, &countingMetrics{})

	parts := []string{typeResponse, "msg-1", "3", "10.0.0.5", "9500"}
	svc.handleDiscoveryResponse(parts)

	addrs := svc.table.Addresses()
	if len(addrs) != 1 || addrs[0].Host != "10.0.0.5" || addrs[0].Port != 9500 {
		t.Fatalf("expected peer table to contain 10.0.0.5:9500, got %v", addrs)
	}
}

func TestHandleHeartbeatUpdatesPeerTable(t *testing.T) {
	sink := progresslog.NewMemorySink()
	svc := New(selfAddr(), sink, &countingMetrics{})

	svc.handleHeartbeat([]string{typeHeartbeat, "10.0.0.9", "9009"})

	addrs := svc.table.Addresses()
	if len(addrs) != 1 || addrs[0].Host != "10.0.0.9" || addrs[0].Port != 9009 {
		t.Fatalf("expected peer table to contain 10.0.0.9:9009, got %v", addrs)
	}
}

func TestUpdatePeerNeverStoresSelf(t *testing.T) {
	sink := progresslog.NewMemorySink()
	self := selfAddr()
	svc := New(self, sink, &countingMetrics{})

	svc.updatePeer(self.Host, "9001")

	if svc.table.Len() != 0 {
		t.Fatalf("expected self address to never be added to peer table")
	}
}

func TestUpdatePeerDropsInvalidAddress(t *testing.T) {
	sink := progresslog.NewMemorySink()
	svc := New(selfAddr(), sink, &countingMetrics{})

	svc.updatePeer("not-an-ip", "9009")
	svc.updatePeer("10.0.0.9", "not-a-port")

	if svc.table.Len() != 0 {
		t.Fatalf("expected invalid addresses to be dropped silently, got %d entries", svc.table.Len())
	}
}

func TestCleanupEvictsStalePeers(t *testing.T) {
	sink := progresslog.NewMemorySink()
	svc := New(selfAddr(), sink, &countingMetrics{})

	stale := peertable.Address{Host: "10.0.0.20", Port: 7000}
	svc.table.Touch(stale, time.Now().Add(-10*time.Minute))

	svc.cleanup()

	if svc.table.Len() != 0 {
		t.Fatalf("expected stale peer to be evicted, table still has %d entries", svc.table.Len())
	}
	found := false
	for _, line := range sink.Lines {
		if line == "discovery: evicted stale peer 10.0.0.20:7000" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected eviction to be logged, got lines %v", sink.Lines)
	}
}

func TestProcessPacketRecordsMetricOnValidAndInvalidPackets(t *testing.T) {
	sink := progresslog.NewMemorySink()
	metrics := &countingMetrics{}
	svc := New(selfAddr(), sink, metrics)

	svc.processPacket("garbage", nil)
	svc.processPacket(typeHeartbeat+";10.0.0.3;9003", nil)

	if metrics.n != 2 {
		t.Fatalf("expected every inbound packet to increment the discovery counter, got %d", metrics.n)
	}
}

func TestBroadcastForIPNetComputesSubnetBroadcast(t *testing.T) {
	ipNet := &net.IPNet{IP: net.ParseIP("192.168.1.42").To4(), Mask: net.CIDRMask(24, 32)}
	got := broadcastForIPNet(ipNet)
	if got.String() != "192.168.1.255" {
		t.Fatalf("got %v, want 192.168.1.255", got)
	}
}

func TestBroadcastForIPNetRejectsIPv6(t *testing.T) {
	ipNet := &net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)}
	if got := broadcastForIPNet(ipNet); got != nil {
		t.Fatalf("got %v, want nil for a non-IPv4 network", got)
	}
}

func TestLocalBroadcastAddrFallsBackWhenNoUsableInterface(t *testing.T) {
	// localBroadcastAddr always returns a non-nil result even in
	// environments with no configured non-loopback IPv4 interface, since
	// it falls back to net.IPv4bcast.
	got := localBroadcastAddr()
	if got == nil {
		t.Fatalf("expected a non-nil broadcast address")
	}
}
