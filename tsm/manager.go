// Package tsm implements the confirmed-request Transaction State
// Machine: invoke-ID allocation, request/response correlation over an
// unordered datagram datalink, retry/timeout handling, and the
// segmentation sub-states. It generalizes a single TCP connection's
// connect/retry/timeout idiom into a fixed-capacity table of concurrent
// outstanding transactions.
package tsm

import (
	"sync"

	"github.com/caio-sobreiro/bacnetstack/address"
)

// MaxTSMTransactions is the compile-time invoke-ID slot capacity: one
// slot per possible invoke ID value (0..254).
const MaxTSMTransactions = 255

// State is one TSM slot's lifecycle state.
type State uint8

const (
	StateIdle State = iota
	StateAwaitConfirmation
	StateSegmentedRequest
	StateAwaitSegmentedAck
	StateSegmentedResponse
)

func (s State) String() string {
	switch s {
	case StateAwaitConfirmation:
		return "await-confirmation"
	case StateSegmentedRequest:
		return "segmented-request"
	case StateAwaitSegmentedAck:
		return "await-segmented-ack"
	case StateSegmentedResponse:
		return "segmented-response"
	default:
		return "idle"
	}
}

// slot is a Transaction record
type slot struct {
	inUse bool
	invokeID uint8
	state State
	peer address.Address
	retryCount uint8
	timerMs uint32
	apduBuffer []byte
	segmentSize uint16
	windowSize uint8
	actualWindow uint8
	lastSegment uint8
	segmentRetries uint8

	completed bool // observable via InvokeIDFree, cleared on observation
	failed bool // observable via InvokeIDFailed, cleared on observation
}

// SendFunc transmits apdu to peer and reports bytes sent (or an error),
// matching the Datalink's send_pdu contract.
type SendFunc func(peer address.Address, apdu []byte) (int, error)

// Config holds the process-wide TSM timing parameters.
type Config struct {
	APDUTimeoutMs uint32
	NumberOfAPDURetries uint8
	APDUSegmentTimeoutMs uint32
}

// DefaultConfig returns stated defaults.
func DefaultConfig() Config {
	return Config{APDUTimeoutMs: 3000, NumberOfAPDURetries: 3, APDUSegmentTimeoutMs: 2000}
}

// Manager is the fixed-capacity Transaction State Machine. The zero
// value is not ready for use; construct with NewManager.
type Manager struct {
	mu sync.Mutex
	slots [MaxTSMTransactions]slot
	next uint8
	cfg Config
	send SendFunc

	OnRetry func(invokeID uint8)
	OnFailure func(invokeID uint8)
	OnExhausted func()
}

// NewManager builds a Manager that transmits via send, using cfg for
// retry/timeout parameters.
func NewManager(cfg Config, send SendFunc) *Manager {
	return &Manager{cfg: cfg, send: send}
}

// NextFreeInvokeID returns an invoke ID not currently in use, rotating
// through the ID space to avoid immediate reuse.
// Returns (0, false) if the slot table is full.
func (m *Manager) NextFreeInvokeID() (uint8, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.next
	for i := 0; i < MaxTSMTransactions; i++ {
		id := uint8((int(start) + i) % MaxTSMTransactions)
		if !m.slots[id].inUse {
			m.next = id + 1
			return id, true
		}
	}
	if m.OnExhausted != nil {
		m.OnExhausted()
	}
	return 0, false
}

// SetConfirmedTransaction stores a new outstanding transaction, sends
// apdu, and arms the retry timer.
func (m *Manager) SetConfirmedTransaction(invokeID uint8, peer address.Address, apdu []byte) (int, error) {
	m.mu.Lock()
	m.slots[invokeID] = slot{
		inUse: true, invokeID: invokeID, state: StateAwaitConfirmation,
		peer: peer, apduBuffer: append([]byte(nil), apdu...),
	}
	m.mu.Unlock()

	return m.send(peer, apdu)
}

// MarkSegmented transitions invokeID into SegmentedRequest, for callers
// coordinating with the segment package.
func (m *Manager) MarkSegmented(invokeID uint8, segmentSize uint16, windowSize uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.slots[invokeID]
	if s.inUse {
		s.state = StateSegmentedRequest
		s.segmentSize = segmentSize
		s.windowSize = windowSize
	}
}

// MarkAwaitingConfirmation transitions invokeID from SegmentedRequest
// (all segments sent) into AwaitConfirmation.
func (m *Manager) MarkAwaitingConfirmation(invokeID uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.slots[invokeID]
	if s.inUse {
		s.state = StateAwaitConfirmation
		s.timerMs = 0
	}
}

// CompleteAck correlates a Simple-Ack/Complex-Ack with invokeID,
// releasing the slot to Idle/completed.
func (m *Manager) CompleteAck(invokeID uint8) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.slots[invokeID]
	if !s.inUse {
		return false
	}
	s.state = StateIdle
	s.completed = true
	s.inUse = false
	return true
}

// CompleteFailure correlates a Reject/Abort/Error PDU with invokeID;
// terminal and never retried.
func (m *Manager) CompleteFailure(invokeID uint8) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.slots[invokeID]
	if !s.inUse {
		return false
	}
	s.state = StateIdle
	s.failed = true
	s.inUse = false
	if m.OnFailure != nil {
		m.mu.Unlock()
		m.OnFailure(invokeID)
		m.mu.Lock()
	}
	return true
}

// InvokeIDFree reports whether invokeID's slot is idle and was
// previously in use (completed since last observation), clearing the
// completed flag.
func (m *Manager) InvokeIDFree(invokeID uint8) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.slots[invokeID]
	if s.completed {
		s.completed = false
		return true
	}
	return !s.inUse && !s.failed
}

// InvokeIDFailed reports whether a terminal failure is pending
// observation, clearing the failed flag.
func (m *Manager) InvokeIDFailed(invokeID uint8) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.slots[invokeID]
	if s.failed {
		s.failed = false
		return true
	}
	return false
}

// FreeInvokeID forcibly releases invokeID; subsequent responses
// carrying that ID are silently dropped by the caller.
func (m *Manager) FreeInvokeID(invokeID uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[invokeID] = slot{}
}

// State returns invokeID's current state, for the segment/apdu packages
// and diagnostics.
func (m *Manager) State(invokeID uint8) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.slots[invokeID]
	return s.state, s.inUse
}

// TransactionSnapshot is a read-only view of one outstanding slot, for
// diagnostics.
type TransactionSnapshot struct {
	InvokeID uint8
	State State
	Peer address.Address
	RetryCount uint8
	TimerMilliseconds uint32
}

// Snapshot returns every currently in-use slot, ordered by invoke ID.
func (m *Manager) Snapshot() []TransactionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TransactionSnapshot
	for id := range m.slots {
		s := &m.slots[id]
		if !s.inUse {
			continue
		}
		out = append(out, TransactionSnapshot{
			InvokeID: s.invokeID, State: s.state, Peer: s.peer,
			RetryCount: s.retryCount, TimerMilliseconds: s.timerMs,
		})
	}
	return out
}

// TimerMilliseconds advances every outstanding slot's timer by
// elapsedMs, retransmitting on expiry until NumberOfAPDURetries is
// reached, then failing the transaction, per ASHRAE 135's retry
// semantics. Never touches the wall clock; the caller supplies elapsed
// milliseconds.
func (m *Manager) TimerMilliseconds(elapsedMs uint32) {
	type retransmit struct {
		invokeID uint8
		peer address.Address
		apdu []byte
	}
	var retransmits []retransmit
	var exhausted []uint8

	m.mu.Lock()
	for id := range m.slots {
		s := &m.slots[id]
		if !s.inUse || s.state != StateAwaitConfirmation {
			continue
		}
		s.timerMs += elapsedMs
		if s.timerMs < m.cfg.APDUTimeoutMs {
			continue
		}
		s.timerMs = 0
		if s.retryCount >= m.cfg.NumberOfAPDURetries {
			s.state = StateIdle
			s.failed = true
			s.inUse = false
			exhausted = append(exhausted, uint8(id))
			continue
		}
		s.retryCount++
		retransmits = append(retransmits, retransmit{invokeID: uint8(id), peer: s.peer, apdu: s.apduBuffer})
	}
	m.mu.Unlock()

	for _, r := range retransmits {
		if m.OnRetry != nil {
			m.OnRetry(r.invokeID)
		}
		m.send(r.peer, r.apdu)
	}
	for _, id := range exhausted {
		if m.OnFailure != nil {
			m.OnFailure(id)
		}
	}
}
