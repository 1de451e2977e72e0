package peertable

import (
	"testing"
	"time"
)

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("192.168.1.5:9000")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr.Host != "192.168.1.5" || addr.Port != 9000 {
		t.Fatalf("got %+v", addr)
	}
	if addr.String() != "192.168.1.5:9000" {
		t.Fatalf("got %q", addr.String())
	}
}

func TestParseAddressRejectsNonIPv4(t *testing.T) {
	if _, err := ParseAddress("[::1]:9000"); err == nil {
		t.Fatalf("expected error for IPv6 literal")
	}
	if _, err := ParseAddress("not-an-ip:9000"); err == nil {
		t.Fatalf("expected error for hostname")
	}
}

func TestTableNeverStoresSelf(t *testing.T) {
	self := Address{Host: "10.0.0.1", Port: 8888}
	table := NewTable(self)

	table.Touch(self, time.Now())
	if table.Len() != 0 {
		t.Fatalf("self address must never be stored, got len=%d", table.Len())
	}

	other := Address{Host: "10.0.0.2", Port: 8888}
	isNew := table.Touch(other, time.Now())
	if !isNew {
		t.Fatalf("expected first touch to report a new peer")
	}
	if table.Len() != 1 {
		t.Fatalf("expected 1 peer, got %d", table.Len())
	}
}

func TestTableCleanupEvictsStaleEntries(t *testing.T) {
	table := NewTable(Address{Host: "127.0.0.1", Port: 1})
	peer := Address{Host: "10.0.0.2", Port: 9000}

	start := time.Now()
	table.Touch(peer, start)

	evicted := table.Cleanup(start.Add(1*time.Minute), 5*time.Minute)
	if len(evicted) != 0 {
		t.Fatalf("peer should not be evicted before timeout, got %v", evicted)
	}

	evicted = table.Cleanup(start.Add(6*time.Minute), 5*time.Minute)
	if len(evicted) != 1 || evicted[0] != peer {
		t.Fatalf("expected peer to be evicted after timeout, got %v", evicted)
	}
	if table.Len() != 0 {
		t.Fatalf("expected empty table after cleanup, got len=%d", table.Len())
	}
}

func TestProcessedMessageSetDedup(t *testing.T) {
	set := NewProcessedMessageSet(100)

	if set.AddUnique("msg-1") {
		t.Fatalf("first insertion should report not-already-present")
	}
	if !set.AddUnique("msg-1") {
		t.Fatalf("second insertion of same id should report already-present")
	}
	if !set.Contains("msg-1") {
		t.Fatalf("expected msg-1 to be recorded")
	}
}

func TestProcessedMessageSetEvictsAtCapacity(t *testing.T) {
	set := NewProcessedMessageSet(2)

	set.AddUnique("a")
	set.AddUnique("b")
	set.AddUnique("c") // forces an eviction since cap is 2

	count := 0
	for _, id := range []string{"a", "b", "c"} {
		if set.Contains(id) {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("expected exactly 2 of 3 ids retained after eviction, got %d", count)
	}
}
