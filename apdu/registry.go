package apdu

import (
	"log/slog"

	"github.com/caio-sobreiro/bacnetstack/address"
	"github.com/caio-sobreiro/bacnetstack/bnerror"
	"github.com/caio-sobreiro/bacnetstack/types"
)

// UnconfirmedHandler processes a fully-decoded Unconfirmed-Request.
type UnconfirmedHandler func(src address.Address, serviceChoice uint8, payload []byte)

// ConfirmedHandler processes a fully-decoded (and, if segmented,
// reassembled) Confirmed-Request and returns the bytes to send back as
// a Simple-Ack or Complex-Ack payload, or an error to report as
// Reject/Abort/Error. A nil response with a nil error means the
// service has no reply body (Simple-Ack).
type ConfirmedHandler func(src address.Address, invokeID uint8, hdr ConfirmedHeader, payload []byte) ([]byte, error)

// ConfirmedAckHandler processes a Complex-Ack payload correlated to an
// outstanding invoke ID.
type ConfirmedAckHandler func(invokeID uint8, serviceChoice uint8, payload []byte)

// ConfirmedSimpleAckHandler processes a Simple-Ack correlated to an
// outstanding invoke ID.
type ConfirmedSimpleAckHandler func(invokeID uint8, serviceChoice uint8)

// ErrorHandler processes an Error PDU correlated to an outstanding
// invoke ID.
type ErrorHandler func(invokeID uint8, serviceChoice uint8, class bnerror.ErrorClass, code bnerror.ErrorCode)

// AbortHandler processes an Abort PDU.
type AbortHandler func(invokeID uint8, reason bnerror.AbortReason, server bool)

// RejectHandler processes a Reject PDU.
type RejectHandler func(invokeID uint8, reason bnerror.RejectReason)

// UnrecognizedServiceHandler is invoked when no handler is bound for an
// incoming (PDU type, service choice) pair. The
// Registry always has a default that emits a Reject; callers may
// override it.
type UnrecognizedServiceHandler func(src address.Address, pduType byte, serviceChoice uint8) bnerror.RejectReason

// Registry is the (PDU type, service choice) -> handler table,
// generalizing a flat command-field map to BACnet's richer PDU-type
// space.
type Registry struct {
	unconfirmed map[uint8]UnconfirmedHandler
	confirmed map[uint8]ConfirmedHandler
	confirmedAck map[uint8]ConfirmedAckHandler
	confirmedSimpleAck map[uint8]ConfirmedSimpleAckHandler
	errorHandlers map[uint8]ErrorHandler

	abortHandler AbortHandler
	rejectHandler RejectHandler
	unrecognized UnrecognizedServiceHandler
}

// NewRegistry builds an empty Registry. The unrecognized-service
// handler defaults to returning RejectUnrecognizedService.
func NewRegistry() *Registry {
	return &Registry{
		unconfirmed: make(map[uint8]UnconfirmedHandler),
		confirmed: make(map[uint8]ConfirmedHandler),
		confirmedAck: make(map[uint8]ConfirmedAckHandler),
		confirmedSimpleAck: make(map[uint8]ConfirmedSimpleAckHandler),
		errorHandlers: make(map[uint8]ErrorHandler),
		unrecognized: func(address.Address, byte, uint8) bnerror.RejectReason {
			return bnerror.RejectUnrecognizedService
		},
	}
}

func (r *Registry) SetUnconfirmedHandler(serviceChoice uint8, fn UnconfirmedHandler) {
	r.unconfirmed[serviceChoice] = fn
}

func (r *Registry) SetConfirmedHandler(serviceChoice uint8, fn ConfirmedHandler) {
	r.confirmed[serviceChoice] = fn
}

func (r *Registry) SetConfirmedAckHandler(serviceChoice uint8, fn ConfirmedAckHandler) {
	r.confirmedAck[serviceChoice] = fn
}

func (r *Registry) SetConfirmedSimpleAckHandler(serviceChoice uint8, fn ConfirmedSimpleAckHandler) {
	r.confirmedSimpleAck[serviceChoice] = fn
}

func (r *Registry) SetErrorHandler(serviceChoice uint8, fn ErrorHandler) {
	r.errorHandlers[serviceChoice] = fn
}

func (r *Registry) SetAbortHandler(fn AbortHandler) {
	r.abortHandler = fn
}

func (r *Registry) SetRejectHandler(fn RejectHandler) {
	r.rejectHandler = fn
}

func (r *Registry) SetUnrecognizedServiceHandler(fn UnrecognizedServiceHandler) {
	r.unrecognized = fn
}

// TransactionStore is the subset of tsm.Manager the dispatcher needs to
// correlate acks/errors/rejects/aborts with outstanding invoke IDs,
// kept as an interface so apdu does not import tsm directly: services
// stay decoupled from the transport they ride on.
type TransactionStore interface {
	CompleteAck(invokeID uint8) bool
	CompleteFailure(invokeID uint8) bool
}

// Dispatcher classifies and routes an incoming APDUE.
type Dispatcher struct {
	Registry *Registry
	TSM TransactionStore

	// Reassembler is consulted for Complex-Ack/Confirmed-Request PDUs
	// carrying the segmented bit; it owns per-invoke-ID reassembly
	// state. Left nil, segmented PDUs are answered with an Abort
	// (segmentation-not-supported), which is acceptable for nodes that
	// never accept segmentation.
	Reassembler SegmentReassembler

	// Send transmits a reply APDU (Simple-Ack, Complex-Ack, Reject,
	// Abort, Error, Segment-Ack) back to src.
	Send func(dst address.Address, apdu []byte) error
}

// SegmentReassembler is implemented by the segment package's
// per-transaction incoming buffers, addressed by invoke ID.
type SegmentReassembler interface {
	Deliver(invokeID uint8, sequenceNumber uint8, moreFollows bool, payload []byte) (complete bool, assembled []byte, ackRequired bool, ackSeq uint8, ackNegative bool, abortReason bnerror.AbortReason, aborted bool)
}

// Dispatch classifies buf's first octet and routes it. src is the
// datalink address the PDU arrived from.
func (d *Dispatcher) Dispatch(src address.Address, buf []byte) {
	if len(buf) == 0 {
		return
	}
	switch PDUType(buf[0]) {
	case types.PDUConfirmedRequest:
		d.dispatchConfirmed(src, buf)
	case types.PDUUnconfirmedRequest:
		d.dispatchUnconfirmed(src, buf)
	case types.PDUSimpleAck:
		d.dispatchSimpleAck(buf)
	case types.PDUComplexAck:
		d.dispatchComplexAck(src, buf)
	case types.PDUSegmentAck:
		d.dispatchSegmentAck(buf)
	case types.PDUError:
		d.dispatchError(buf)
	case types.PDUReject:
		d.dispatchReject(buf)
	case types.PDUAbort:
		d.dispatchAbort(buf)
	default:
		slog.Warn("apdu: unrecognized PDU type", "first_octet", buf[0])
	}
}

func (d *Dispatcher) dispatchUnconfirmed(src address.Address, buf []byte) {
	consumed, hdr, err := DecodeUnconfirmedHeader(buf)
	if err != nil {
		return
	}
	handler, ok := d.Registry.unconfirmed[hdr.ServiceChoice]
	if !ok {
		// Unconfirmed-Request has no invoke ID and expects no reply;
		// an unrecognized service is simply dropped, per ASHRAE 135
		// clause 5.4. The hook still fires for diagnostics/metrics.
		if d.Registry.unrecognized != nil {
			d.Registry.unrecognized(src, types.PDUUnconfirmedRequest, hdr.ServiceChoice)
		}
		return
	}
	handler(src, hdr.ServiceChoice, buf[consumed:])
}

func (d *Dispatcher) dispatchConfirmed(src address.Address, buf []byte) {
	consumed, hdr, err := DecodeConfirmedHeader(buf)
	if err != nil {
		return
	}
	payload := buf[consumed:]

	if hdr.Segmented {
		if d.Reassembler == nil {
			d.sendAbort(src, hdr.InvokeID, bnerror.AbortSegmentationNotSupported)
			return
		}
		complete, assembled, ackRequired, ackSeq, ackNeg, abortReason, aborted := d.Reassembler.Deliver(hdr.InvokeID, hdr.SequenceNumber, hdr.MoreFollows, payload)
		if aborted {
			d.sendAbort(src, hdr.InvokeID, abortReason)
			return
		}
		if ackRequired {
			d.sendSegmentAck(src, hdr.InvokeID, ackSeq, ackNeg)
		}
		if !complete {
			return
		}
		payload = assembled
	}

	handler, ok := d.Registry.confirmed[hdr.ServiceChoice]
	if !ok {
		d.rejectUnrecognized(src, types.PDUConfirmedRequest, hdr.ServiceChoice, hdr.InvokeID)
		return
	}

	resp, err := handler(src, hdr.InvokeID, hdr, payload)
	if err != nil {
		d.respondToConfirmedError(src, hdr.InvokeID, hdr.ServiceChoice, err)
		return
	}
	if resp == nil {
		d.Send(src, EncodeSimpleAckHeader(SimpleAckHeader{InvokeID: hdr.InvokeID, ServiceChoice: hdr.ServiceChoice}))
		return
	}
	ack := append(EncodeComplexAckHeader(ComplexAckHeader{InvokeID: hdr.InvokeID, ServiceChoice: hdr.ServiceChoice}), resp...)
	d.Send(src, ack)
}

func (d *Dispatcher) respondToConfirmedError(src address.Address, invokeID uint8, serviceChoice uint8, err error) {
	if rej, ok := err.(*bnerror.RejectError); ok {
		d.Send(src, EncodeRejectHeader(RejectHeader{InvokeID: invokeID, Reason: rej.Reason}))
		return
	}
	if ab, ok := err.(*bnerror.AbortError); ok {
		d.sendAbort(src, invokeID, ab.Reason)
		return
	}
	if class, code, ok := bnerror.AsServiceError(err); ok {
		msg := append(EncodeErrorHeader(ErrorHeader{InvokeID: invokeID, ServiceChoice: serviceChoice}), encodeErrorClassCode(class, code)...)
		d.Send(src, msg)
		return
	}
	d.sendAbort(src, invokeID, bnerror.AbortOther)
}

func (d *Dispatcher) sendAbort(dst address.Address, invokeID uint8, reason bnerror.AbortReason) {
	if d.Send == nil {
		return
	}
	d.Send(dst, EncodeAbortHeader(AbortHeader{Server: true, InvokeID: invokeID, Reason: reason}))
}

func (d *Dispatcher) sendSegmentAck(dst address.Address, invokeID, seq uint8, negative bool) {
	if d.Send == nil {
		return
	}
	d.Send(dst, EncodeSegmentAckHeader(SegmentAckHeader{Server: true, NegativeAck: negative, InvokeID: invokeID, SequenceNumber: seq}))
}

func (d *Dispatcher) rejectUnrecognized(src address.Address, pduType byte, serviceChoice uint8, invokeID uint8) {
	reason := bnerror.RejectUnrecognizedService
	if d.Registry.unrecognized != nil {
		reason = d.Registry.unrecognized(src, pduType, serviceChoice)
	}
	if d.Send != nil {
		d.Send(src, EncodeRejectHeader(RejectHeader{InvokeID: invokeID, Reason: reason}))
	}
}

func (d *Dispatcher) dispatchSimpleAck(buf []byte) {
	_, hdr, err := DecodeSimpleAckHeader(buf)
	if err != nil {
		return
	}
	if d.TSM != nil {
		d.TSM.CompleteAck(hdr.InvokeID)
	}
	if fn, ok := d.Registry.confirmedSimpleAck[hdr.ServiceChoice]; ok {
		fn(hdr.InvokeID, hdr.ServiceChoice)
	}
}

func (d *Dispatcher) dispatchComplexAck(src address.Address, buf []byte) {
	consumed, hdr, err := DecodeComplexAckHeader(buf)
	if err != nil {
		return
	}
	payload := buf[consumed:]

	if hdr.Segmented {
		if d.Reassembler == nil {
			d.sendAbort(src, hdr.InvokeID, bnerror.AbortSegmentationNotSupported)
			return
		}
		complete, assembled, ackRequired, ackSeq, ackNeg, abortReason, aborted := d.Reassembler.Deliver(hdr.InvokeID, hdr.SequenceNumber, hdr.MoreFollows, payload)
		if aborted {
			d.sendAbort(src, hdr.InvokeID, abortReason)
			if d.TSM != nil {
				d.TSM.CompleteFailure(hdr.InvokeID)
			}
			return
		}
		if ackRequired {
			d.sendSegmentAck(src, hdr.InvokeID, ackSeq, ackNeg)
		}
		if !complete {
			return
		}
		payload = assembled
	}

	if d.TSM != nil {
		d.TSM.CompleteAck(hdr.InvokeID)
	}
	if fn, ok := d.Registry.confirmedAck[hdr.ServiceChoice]; ok {
		fn(hdr.InvokeID, hdr.ServiceChoice, payload)
	}
}

func (d *Dispatcher) dispatchSegmentAck(buf []byte) {
	// Segment-Acks feed the outgoing segment.OutgoingWindow for the
	// transaction; the node package wires that correlation since it
	// owns the per-invoke-ID window, not this dispatcher.
}

func (d *Dispatcher) dispatchError(buf []byte) {
	_, hdr, err := DecodeErrorHeader(buf)
	if err != nil {
		return
	}
	class, code := DecodeErrorClassCode(buf[3:])
	if d.TSM != nil {
		d.TSM.CompleteFailure(hdr.InvokeID)
	}
	if fn, ok := d.Registry.errorHandlers[hdr.ServiceChoice]; ok {
		fn(hdr.InvokeID, hdr.ServiceChoice, class, code)
	}
}

func (d *Dispatcher) dispatchReject(buf []byte) {
	_, hdr, err := DecodeRejectHeader(buf)
	if err != nil {
		return
	}
	if d.TSM != nil {
		d.TSM.CompleteFailure(hdr.InvokeID)
	}
	if d.Registry.rejectHandler != nil {
		d.Registry.rejectHandler(hdr.InvokeID, hdr.Reason)
	}
}

func (d *Dispatcher) dispatchAbort(buf []byte) {
	_, hdr, err := DecodeAbortHeader(buf)
	if err != nil {
		return
	}
	if d.TSM != nil {
		d.TSM.CompleteFailure(hdr.InvokeID)
	}
	if d.Registry.abortHandler != nil {
		d.Registry.abortHandler(hdr.InvokeID, hdr.Reason, hdr.Server)
	}
}

// encodeErrorClassCode/DecodeErrorClassCode encode the (ErrorClass,
// ErrorCode) pair as two BACnet enumerated application tags, per
// ASHRAE 135 clause 20.1.2.11.
func encodeErrorClassCode(class bnerror.ErrorClass, code bnerror.ErrorCode) []byte {
	out := make([]byte, 0, 6)
	out = append(out, encodeSmallEnumerated(uint32(class))...)
	out = append(out, encodeSmallEnumerated(uint32(code))...)
	return out
}

// DecodeErrorClassCode parses the Error-PDU body following the fixed
// Error-PDU header, exported for callers that build and inspect Error
// PDUs directly in tests.
func DecodeErrorClassCode(buf []byte) (bnerror.ErrorClass, bnerror.ErrorCode) {
	class, rest := decodeSmallEnumerated(buf)
	code, _ := decodeSmallEnumerated(rest)
	return bnerror.ErrorClass(class), bnerror.ErrorCode(code)
}

func encodeSmallEnumerated(v uint32) []byte {
	if v <= 0xFF {
		return []byte{0x91, byte(v)}
	}
	return []byte{0x92, byte(v >> 8), byte(v)}
}

func decodeSmallEnumerated(buf []byte) (uint32, []byte) {
	if len(buf) < 2 {
		return 0, nil
	}
	lvt := buf[0] & 0x07
	if int(lvt) > len(buf)-1 {
		return 0, nil
	}
	var v uint32
	for i := 0; i < int(lvt); i++ {
		v = v<<8 | uint32(buf[1+i])
	}
	return v, buf[1+int(lvt):]
}
