package address

import (
	"testing"

	"github.com/caio-sobreiro/bacnetstack/types"
)

func TestAddGetByDevice(t *testing.T) {
	tbl := NewTable(30)
	addr := NewLocalMAC([]byte{192, 168, 1, 10, 0xBA, 0xC0})

	if !tbl.Add(123, 1476, types.SegmentationNone, 0, addr, -1) {
		t.Fatal("Add failed")
	}

	b, ok := tbl.GetByDevice(123)
	if !ok {
		t.Fatal("expected binding")
	}
	if b.MaxAPDU != 1476 || b.Segmentation != types.SegmentationNone {
		t.Fatalf("unexpected binding: %+v", b)
	}
}

func TestAddReplacesExistingEntry(t *testing.T) {
	tbl := NewTable(30)
	addr := NewLocalMAC([]byte{1, 2, 3, 4})
	tbl.Add(1, 480, types.SegmentationBoth, 4, addr, -1)
	tbl.Add(1, 1024, types.SegmentationBoth, 8, addr, -1)

	if tbl.Len() != 1 {
		t.Fatalf("expected 1 entry after replace, got %d", tbl.Len())
	}
	b, _ := tbl.GetByDevice(1)
	if b.MaxAPDU != 1024 {
		t.Fatalf("expected replaced MaxAPDU 1024, got %d", b.MaxAPDU)
	}
}

func TestEvictionOnOverflow(t *testing.T) {
	tbl := NewTable(30)
	addr := NewLocalMAC([]byte{9, 9, 9, 9})

	for i := 0; i < MaxAddressCache; i++ {
		if !tbl.Add(uint32(i), 480, types.SegmentationNone, 0, addr, int32(i+1)) {
			t.Fatalf("Add(%d) failed while under capacity", i)
		}
	}
	if tbl.Len() != MaxAddressCache {
		t.Fatalf("expected full table, got %d", tbl.Len())
	}

	// Inserting one more distinct device must evict exactly one entry
	// (the lowest-TTL one, device 0)
	if !tbl.Add(uint32(MaxAddressCache), 480, types.SegmentationNone, 0, addr, 1000) {
		t.Fatal("Add over capacity should evict, not fail")
	}
	if tbl.Len() != MaxAddressCache {
		t.Fatalf("expected table to stay at capacity, got %d", tbl.Len())
	}
	if _, ok := tbl.GetByDevice(0); ok {
		t.Fatal("expected device 0 (lowest TTL) to be evicted")
	}
	if _, ok := tbl.GetByDevice(uint32(MaxAddressCache)); !ok {
		t.Fatal("expected newly-added device to be present")
	}
}

func TestBindRequestEmitsWhoIsOnce(t *testing.T) {
	tbl := NewTable(60)
	var whoIsCount int
	tbl.OnWhoIs = func(low, high uint32) { whoIsCount++ }

	if _, ok := tbl.BindRequest(42, 1000); ok {
		t.Fatal("expected no binding yet")
	}
	if _, ok := tbl.BindRequest(42, 1010); ok {
		t.Fatal("expected still no binding")
	}
	if whoIsCount != 1 {
		t.Fatalf("expected exactly one Who-Is within retry interval, got %d", whoIsCount)
	}

	if _, ok := tbl.BindRequest(42, 1000+61); ok {
		t.Fatal("expected still no binding")
	}
	if whoIsCount != 2 {
		t.Fatalf("expected a second Who-Is after the retry interval, got %d", whoIsCount)
	}
}

func TestTimerEvictsExpiredEntries(t *testing.T) {
	tbl := NewTable(30)
	addr := NewLocalMAC([]byte{1, 1, 1, 1})
	tbl.Add(7, 480, types.SegmentationNone, 0, addr, 10)
	tbl.Add(8, 480, types.SegmentationNone, 0, addr, -1) // static, never evicted

	tbl.Timer(10)

	if _, ok := tbl.GetByDevice(7); ok {
		t.Fatal("expected device 7 to be evicted after TTL expiry")
	}
	if _, ok := tbl.GetByDevice(8); !ok {
		t.Fatal("expected static device 8 to survive")
	}
}
