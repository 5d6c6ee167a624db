// Package address implements the device-instance -> datalink-address
// binding table: a fixed-capacity cache populated by Who-Is/I-Am
// discovery. It generalizes a bounded map-like lookup keyed by an
// identifier to an array-backed table, so no entry ever allocates on
// the hot path.
package address

import (
	"sync"

	"github.com/caio-sobreiro/bacnetstack/types"
)

// MaxMACLen bounds DatalinkAddress.Mac/Adr, large enough for BACnet/IP
// (6 bytes: 4 IP + 2 port) and MS/TP (1 byte).
const MaxMACLen = 7

// MaxAddressCache is the compile-time capacity of Table
const MaxAddressCache = 255

// Address is the datalink address carried by a binding.
type Address struct {
	Mac [MaxMACLen]byte
	MacLen uint8
	Net uint16
	Adr [MaxMACLen]byte
	AdrLen uint8
}

// IsLocal reports whether this address names the local segment
// (Net == 0 && AdrLen == 0)
func (a Address) IsLocal() bool {
	return a.Net == 0 && a.AdrLen == 0
}

// NewLocalMAC builds a local-segment address from a raw MAC.
func NewLocalMAC(mac []byte) Address {
	var a Address
	n := copy(a.Mac[:], mac)
	a.MacLen = uint8(n)
	return a
}

// entry is one slot of Table
type entry struct {
	valid bool
	deviceID uint32
	address Address
	maxAPDU uint16
	segmentation types.Segmentation
	maxSegments uint8
	ttlSeconds int32 // <0 = static, never evicted
}

// Table is the fixed-capacity device binding cache. Zero value is
// ready to use.
type Table struct {
	mu sync.Mutex
	entries [MaxAddressCache]entry

	bindRequestRetry map[uint32]int64 // deviceID -> last Who-Is emit (unix seconds)
	retryIntervalSecs int64

	// Metrics hooks, set by node.Node; nil-safe.
	OnInsert func()
	OnEvict func()
	OnWhoIs func(low, high uint32)

	// OnBind fires on every upsert with the full binding, letting a
	// caller mirror it into a durable store (see BadgerStore); nil-safe.
	OnBind func(deviceID uint32, maxAPDU uint16, seg types.Segmentation, maxSegments uint8, addr Address)
}

// NewTable constructs a Table with the given bind_request_retry_interval
// (D), in seconds.
func NewTable(bindRequestRetryIntervalSeconds int64) *Table {
	return &Table{
		bindRequestRetry: make(map[uint32]int64),
		retryIntervalSecs: bindRequestRetryIntervalSeconds,
	}
}

// Add upserts a binding for deviceIDD. Replaces an
// existing entry for the same device; if the table is full, evicts the
// non-static entry with the lowest remaining ttlSeconds, whether or not
// it has expired. Returns false only if the table is full of static
// entries.
func (t *Table) Add(deviceID uint32, maxAPDU uint16, seg types.Segmentation, maxSegments uint8, addr Address, ttlSeconds int32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if t.entries[i].valid && t.entries[i].deviceID == deviceID {
			t.entries[i] = entry{
				valid: true, deviceID: deviceID, address: addr,
				maxAPDU: maxAPDU, segmentation: seg, maxSegments: maxSegments,
				ttlSeconds: ttlSeconds,
			}
			t.notifyInsert(deviceID, maxAPDU, seg, maxSegments, addr)
			return true
		}
	}

	for i := range t.entries {
		if !t.entries[i].valid {
			t.entries[i] = entry{
				valid: true, deviceID: deviceID, address: addr,
				maxAPDU: maxAPDU, segmentation: seg, maxSegments: maxSegments,
				ttlSeconds: ttlSeconds,
			}
			t.notifyInsert(deviceID, maxAPDU, seg, maxSegments, addr)
			return true
		}
	}

	// Full: evict the oldest non-static entry (lowest non-negative
	// ttlSeconds wins; ties broken by table order).
	victim := -1
	for i := range t.entries {
		if t.entries[i].ttlSeconds < 0 {
			continue
		}
		if victim == -1 || t.entries[i].ttlSeconds < t.entries[victim].ttlSeconds {
			victim = i
		}
	}
	if victim == -1 {
		return false
	}
	if t.OnEvict != nil {
		t.OnEvict()
	}
	t.entries[victim] = entry{
		valid: true, deviceID: deviceID, address: addr,
		maxAPDU: maxAPDU, segmentation: seg, maxSegments: maxSegments,
		ttlSeconds: ttlSeconds,
	}
	t.notifyInsert(deviceID, maxAPDU, seg, maxSegments, addr)
	return true
}

func (t *Table) notifyInsert(deviceID uint32, maxAPDU uint16, seg types.Segmentation, maxSegments uint8, addr Address) {
	if t.OnInsert != nil {
		t.OnInsert()
	}
	if t.OnBind != nil {
		t.OnBind(deviceID, maxAPDU, seg, maxSegments, addr)
	}
}

// Binding is the public view of an entry, returned by GetByDevice.
type Binding struct {
	MaxAPDU uint16
	Segmentation types.Segmentation
	MaxSegments uint8
	Address Address
}

// GetByDevice looks up a binding by device instance.
func (t *Table) GetByDevice(deviceID uint32) (Binding, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if t.entries[i].valid && t.entries[i].deviceID == deviceID {
			e := t.entries[i]
			return Binding{MaxAPDU: e.maxAPDU, Segmentation: e.segmentation, MaxSegments: e.maxSegments, Address: e.address}, true
		}
	}
	return Binding{}, false
}

// IndexedBinding is the public view returned by GetByIndex.
type IndexedBinding struct {
	DeviceID uint32
	MaxAPDU uint16
	Address Address
}

// GetByIndex returns the entry in table slot i, if that slot is occupied.
func (t *Table) GetByIndex(i int) (IndexedBinding, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.entries) || !t.entries[i].valid {
		return IndexedBinding{}, false
	}
	e := t.entries[i]
	return IndexedBinding{DeviceID: e.deviceID, MaxAPDU: e.maxAPDU, Address: e.address}, true
}

// BindRequest implements D's bind_request: if no entry exists,
// the caller SHOULD emit a Who-Is (via OnWhoIs) at most once per
// bind_request_retry_interval; returns the binding once an I-Am has
// populated the table. nowUnixSeconds is supplied by the caller so the
// table never touches the wall clock directly outside this one call.
func (t *Table) BindRequest(deviceID uint32, nowUnixSeconds int64) (Binding, bool) {
	if b, ok := t.GetByDevice(deviceID); ok {
		return b, true
	}

	t.mu.Lock()
	last, emitted := t.bindRequestRetry[deviceID]
	shouldEmit := !emitted || nowUnixSeconds-last >= t.retryIntervalSecs
	if shouldEmit {
		t.bindRequestRetry[deviceID] = nowUnixSeconds
	}
	t.mu.Unlock()

	if shouldEmit && t.OnWhoIs != nil {
		t.OnWhoIs(deviceID, deviceID)
	}
	return Binding{}, false
}

// Timer decrements TTLs by elapsedSeconds and evicts entries that reach
// zeroD. Static entries (ttlSeconds < 0) are untouched.
func (t *Table) Timer(elapsedSeconds int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		e := &t.entries[i]
		if !e.valid || e.ttlSeconds < 0 {
			continue
		}
		e.ttlSeconds -= elapsedSeconds
		if e.ttlSeconds <= 0 {
			*e = entry{}
			if t.OnEvict != nil {
				t.OnEvict()
			}
		}
	}
}

// Len returns the number of occupied slots.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.entries {
		if e.valid {
			n++
		}
	}
	return n
}

// Snapshot returns every valid entry, for diagnostics (diag package).
func (t *Table) Snapshot() []IndexedBinding {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]IndexedBinding, 0, len(t.entries))
	for _, e := range t.entries {
		if e.valid {
			out = append(out, IndexedBinding{DeviceID: e.deviceID, MaxAPDU: e.maxAPDU, Address: e.address})
		}
	}
	return out
}
