package tsm

import (
	"testing"

	"github.com/caio-sobreiro/bacnetstack/address"
)

func newTestManager(t *testing.T, cfg Config) (*Manager, *[][]byte) {
	t.Helper()
	var sent [][]byte
	m := NewManager(cfg, func(peer address.Address, apdu []byte) (int, error) {
		sent = append(sent, append([]byte(nil), apdu...))
		return len(apdu), nil
	})
	return m, &sent
}

func TestNextFreeInvokeIDRotates(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())
	first, ok := m.NextFreeInvokeID()
	if !ok {
		t.Fatal("expected an invoke id")
	}
	m.SetConfirmedTransaction(first, address.Address{}, []byte{0x00})

	second, ok := m.NextFreeInvokeID()
	if !ok || second == first {
		t.Fatalf("expected a different id, got first=%d second=%d", first, second)
	}
}

func TestCorrelationIsolatesSlots(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())
	a, _ := m.NextFreeInvokeID()
	m.SetConfirmedTransaction(a, address.Address{}, []byte{0x00})
	b, _ := m.NextFreeInvokeID()
	m.SetConfirmedTransaction(b, address.Address{}, []byte{0x00})

	if !m.CompleteAck(a) {
		t.Fatal("expected CompleteAck(a) to succeed")
	}
	state, inUse := m.State(b)
	if !inUse || state != StateAwaitConfirmation {
		t.Fatalf("slot b should remain AwaitConfirmation, got state=%v inUse=%v", state, inUse)
	}
	if !m.InvokeIDFree(a) {
		t.Fatal("expected a to be observably free")
	}
}

func TestTimeoutExhaustsRetriesThenFails(t *testing.T) {
	cfg := Config{APDUTimeoutMs: 100, NumberOfAPDURetries: 2, APDUSegmentTimeoutMs: 100}
	m, sent := newTestManager(t, cfg)

	id, _ := m.NextFreeInvokeID()
	m.SetConfirmedTransaction(id, address.Address{}, []byte{0xAA})

	// original + two retries = three transmissions across 300ms.
	m.TimerMilliseconds(100)
	m.TimerMilliseconds(100)
	m.TimerMilliseconds(100)

	if len(*sent) != 3 {
		t.Fatalf("expected 3 transmissions (original + 2 retries), got %d", len(*sent))
	}
	if !m.InvokeIDFailed(id) {
		t.Fatal("expected invoke id to be failed after exhausting retries")
	}
	if m.InvokeIDFailed(id) {
		t.Fatal("expected InvokeIDFailed to be false on second observation")
	}
	if !m.InvokeIDFree(id) {
		t.Fatal("expected invoke id to be free thereafter")
	}
}

func TestFreeInvokeIDReleasesSlotUnconditionally(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())
	id, _ := m.NextFreeInvokeID()
	m.SetConfirmedTransaction(id, address.Address{}, []byte{0x00})

	m.FreeInvokeID(id)

	if ok := m.CompleteAck(id); ok {
		t.Fatal("expected CompleteAck on a freed slot to report not-in-use")
	}
}

func TestSlotTableExhaustion(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig())
	for i := 0; i < MaxTSMTransactions; i++ {
		id, ok := m.NextFreeInvokeID()
		if !ok {
			t.Fatalf("expected id at iteration %d", i)
		}
		m.SetConfirmedTransaction(id, address.Address{}, []byte{0x00})
	}
	if _, ok := m.NextFreeInvokeID(); ok {
		t.Fatal("expected the 256th allocation to fail (table holds 255 distinct invoke ids, not 256)")
	}
}
