// Package segment implements the segmentation/reassembly engine:
// splitting an outgoing APDU larger than the peer's max-APDU into
// sequence-numbered segments with a window-based Segment-Ack handshake,
// and reassembling an incoming segment stream with gap detection. It
// generalizes a linear fragment-stream splitter (bounded by a negotiated
// maximum length per fragment) to BACnet's windowed, negative-ack-aware
// scheme.
package segment

import (
	"github.com/caio-sobreiro/bacnetstack/bnerror"
)

// HeaderOverhead is the per-segment APDU header cost subtracted from
// the peer's max-APDU to compute segment_size. It accounts for the
// fixed confirmed-request header plus the sequence-number/window-size
// octets present on every segment.
const HeaderOverhead = 6

// SegmentSize computes the per-segment payload size for a transaction:
// min(peer_max_apdu, local_max_apdu) - header_overhead.
func SegmentSize(peerMaxAPDU, localMaxAPDU uint16) uint16 {
	maxAPDU := peerMaxAPDU
	if localMaxAPDU < maxAPDU {
		maxAPDU = localMaxAPDU
	}
	if int(maxAPDU) <= HeaderOverhead {
		return 0
	}
	return maxAPDU - HeaderOverhead
}

// WindowSize picks the effective window size:
// min(proposed, peerActual).
func WindowSize(proposed, peerActual uint8) uint8 {
	if peerActual < proposed {
		return peerActual
	}
	return proposed
}

// Segment is one outgoing or incoming fragment.
type Segment struct {
	SequenceNumber uint8
	MoreFollows bool
	Payload []byte
}

// Split divides apdu into segment_size chunks carrying consecutive,
// mod-256-wrapping sequence numbers. segmentSize must be > 0.
func Split(apdu []byte, segmentSize uint16) []Segment {
	if segmentSize == 0 {
		return nil
	}
	n := (len(apdu) + int(segmentSize) - 1) / int(segmentSize)
	if n == 0 {
		n = 1
	}
	segments := make([]Segment, 0, n)
	seq := uint8(0)
	for offset := 0; offset < len(apdu) || (offset == 0 && len(apdu) == 0); {
		end := offset + int(segmentSize)
		if end > len(apdu) {
			end = len(apdu)
		}
		segments = append(segments, Segment{
			SequenceNumber: seq,
			MoreFollows: end < len(apdu),
			Payload: apdu[offset:end],
		})
		seq++
		offset = end
		if offset >= len(apdu) {
			break
		}
	}
	return segments
}

// OutgoingWindow drives the sender side of one transaction's
// segmentation sub-state machine: TSM's SegmentedRequest state and the
// window/rewind handshake with the peer's Segment-Ack. Not safe for
// concurrent use; callers serialize access the way tsm.Manager
// serializes slot access.
type OutgoingWindow struct {
	segments []Segment
	windowSize uint8
	nextToSend int // index into segments of the next unsent segment
	windowStart int // index of the first segment in the current in-flight window
}

// NewOutgoingWindow builds a sender-side window over segments.
func NewOutgoingWindow(segments []Segment, windowSize uint8) *OutgoingWindow {
	if windowSize == 0 {
		windowSize = 1
	}
	return &OutgoingWindow{segments: segments, windowSize: windowSize}
}

// NextWindow returns the next batch of segments to transmit (up to
// windowSize), advancing past them. Returns nil once every segment has
// been sent and is awaiting its ack.
func (w *OutgoingWindow) NextWindow() []Segment {
	if w.nextToSend >= len(w.segments) {
		return nil
	}
	w.windowStart = w.nextToSend
	end := w.nextToSend + int(w.windowSize)
	if end > len(w.segments) {
		end = len(w.segments)
	}
	batch := w.segments[w.nextToSend:end]
	w.nextToSend = end
	return batch
}

// Done reports whether every segment has been transmitted (there is
// nothing left to send). It does not track whether the final window has
// been acknowledged; a later Ack can still rewind.
func (w *OutgoingWindow) Done() bool {
	return w.nextToSend >= len(w.segments)
}

// Ack applies a Segment-Ack: on negativeAck or when sequenceNumber
// differs from the last segment sent, rewind to that sequence
// number so NextWindow retransmits from there.
func (w *OutgoingWindow) Ack(sequenceNumber uint8, negativeAck bool) {
	lastSentIndex := w.nextToSend - 1
	if lastSentIndex < 0 || lastSentIndex >= len(w.segments) {
		return
	}
	lastSentSeq := w.segments[lastSentIndex].SequenceNumber
	if negativeAck || sequenceNumber != lastSentSeq {
		rewindTo := indexOfSequence(w.segments, sequenceNumber)
		if rewindTo >= 0 {
			w.nextToSend = rewindTo
		} else {
			w.nextToSend = w.windowStart
		}
	}
}

func indexOfSequence(segments []Segment, seq uint8) int {
	for i, s := range segments {
		if s.SequenceNumber == seq {
			return i
		}
	}
	return -1
}

// IncomingReassembly buffers an incoming segment stream for one
// transaction: delivers the assembled APDU once !more_follows has been
// received for the highest contiguous sequence number, and reports
// gaps so the caller can Segment-Ack(negative=true).
type IncomingReassembly struct {
	windowSize uint8
	received map[uint8][]byte
	expectedNext uint8
	totalSegments int // known once the final (!more_follows) segment arrives; 0 until then
	haveFinal bool
}

// NewIncomingReassembly builds a receiver-side reassembly buffer.
func NewIncomingReassembly(windowSize uint8) *IncomingReassembly {
	if windowSize == 0 {
		windowSize = 1
	}
	return &IncomingReassembly{windowSize: windowSize, received: make(map[uint8][]byte)}
}

// ReassemblyResult reports the outcome of delivering one segment.
type ReassemblyResult struct {
	// Complete is true once every segment up to the final one has
	// arrived; Assembled then holds the full APDU.
	Complete bool
	Assembled []byte

	// AckRequired is true when the number of buffered segments reaches a
	// multiple of windowSize (a positive ack), or when a gap is detected
	// (AckNegative, AckSequence naming the missing segment). The delivery
	// that completes the APDU reports Complete without an ack.
	AckRequired bool
	AckSequence uint8
	AckNegative bool

	// Abort is non-nil when the segment fell outside the receive
	// window and the caller must Abort the transaction.
	Abort *bnerror.AbortError
}

// Deliver feeds one incoming segment into the reassembly buffer.
func (r *IncomingReassembly) Deliver(seg Segment) ReassemblyResult {
	if r.haveFinal && len(r.received) == r.totalSegments {
		// Late duplicate after completion; nothing more to do.
		return ReassemblyResult{}
	}

	if _, dup := r.received[seg.SequenceNumber]; dup {
		// Duplicate segment within the window; silently dropped, since
		// a retransmitted Segment-Ack can make the peer resend one.
		return ReassemblyResult{}
	}

	distance := int(seg.SequenceNumber) - int(r.expectedNext)
	if distance < 0 {
		distance += 256
	}
	if distance >= int(r.windowSize)*2 {
		return ReassemblyResult{Abort: bnerror.NewAbortError(bnerror.AbortInvalidAPDUInThisState)}
	}

	r.received[seg.SequenceNumber] = seg.Payload
	if !seg.MoreFollows {
		r.haveFinal = true
		r.totalSegments = int(seg.SequenceNumber) + 1
	}

	// Advance expectedNext across any contiguous run already buffered.
	for {
		if _, ok := r.received[r.expectedNext]; !ok {
			break
		}
		r.expectedNext++
		if r.haveFinal && int(r.expectedNext) >= r.totalSegments {
			break
		}
	}

	if r.haveFinal && len(r.received) == r.totalSegments {
		assembled := make([]byte, 0)
		for seq := uint8(0); int(seq) < r.totalSegments; seq++ {
			assembled = append(assembled, r.received[seq]...)
		}
		return ReassemblyResult{Complete: true, Assembled: assembled}
	}

	// Gap detected: expectedNext sits below a segment that has already
	// arrived, so it is the missing sequence number to negative-ack.
	if r.hasSegmentBeyond(r.expectedNext) {
		return ReassemblyResult{AckRequired: true, AckSequence: r.expectedNext, AckNegative: true}
	}

	if len(r.received)%int(r.windowSize) == 0 {
		return ReassemblyResult{AckRequired: true, AckSequence: seg.SequenceNumber, AckNegative: false}
	}
	return ReassemblyResult{}
}

// hasSegmentBeyond reports whether any segment with sequence number
// strictly greater than seq has already been received, meaning seq
// itself is a confirmed gap rather than simply not-yet-sent.
func (r *IncomingReassembly) hasSegmentBeyond(seq uint8) bool {
	for s := range r.received {
		if s > seq {
			return true
		}
	}
	return false
}
