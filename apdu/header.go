// Package apdu implements the APDU dispatcher: PDU header encode/decode,
// first-octet classification, and a handler registry keyed by (PDU
// type, service choice). It generalizes a flat command-field handler
// map to BACnet's PDU-type/service-choice pair, and the NPDU framing
// generalizes a fixed/variable header split.
package apdu

import (
	"github.com/caio-sobreiro/bacnetstack/bnerror"
	"github.com/caio-sobreiro/bacnetstack/types"
)

// NPDUData is the parsed Network-Layer PDU control fields that precede
// every APDU. Routing is out of scope; this stack only needs to know
// whether the message MAY expect a reply and whether it originated
// locally.
type NPDUData struct {
	Version uint8
	ExpectingReply bool
	NetworkPriority uint8
	HopCount uint8
	HasDestination bool
	HasSource bool
}

// DecodeNPDU parses the fixed NPDU header, returning the number of
// octets consumed and the remaining buffer holds the APDU.
func DecodeNPDU(buf []byte) (consumed int, data NPDUData, err error) {
	if len(buf) < 2 {
		return 0, NPDUData{}, bnerror.ErrTruncated
	}
	data.Version = buf[0]
	control := buf[1]
	data.HasDestination = control&0x20 != 0
	data.HasSource = control&0x08 != 0
	data.ExpectingReply = control&0x04 != 0
	data.NetworkPriority = control & 0x03
	consumed = 2

	// DNET/DLEN/DADR and SNET/SLEN/SADR and hop count are routing
	// fields this stack does not act on; skip past them if present.
	if data.HasDestination {
		if len(buf) < consumed+3 {
			return 0, NPDUData{}, bnerror.ErrTruncated
		}
		dlen := int(buf[consumed+2])
		consumed += 3 + dlen
	}
	if data.HasSource {
		if len(buf) < consumed+3 {
			return 0, NPDUData{}, bnerror.ErrTruncated
		}
		slen := int(buf[consumed+2])
		consumed += 3 + slen
	}
	if data.HasDestination {
		if len(buf) < consumed+1 {
			return 0, NPDUData{}, bnerror.ErrTruncated
		}
		data.HopCount = buf[consumed]
		consumed++
	}
	return consumed, data, nil
}

// EncodeNPDU emits the fixed NPDU header for a locally-originated,
// unrouted message (no DNET/SNET).
func EncodeNPDU(data NPDUData) []byte {
	control := byte(0)
	if data.ExpectingReply {
		control |= 0x04
	}
	control |= data.NetworkPriority & 0x03
	return []byte{0x01, control}
}

// ConfirmedHeader is the parsed fixed+variable header of a
// Confirmed-Request PDU
type ConfirmedHeader struct {
	Segmented bool
	MoreFollows bool
	SegmentedAccepted bool
	MaxSegments uint8
	MaxAPDU uint16
	InvokeID uint8
	SequenceNumber uint8
	WindowSize uint8
	ServiceChoice uint8
}

// maxAPDUBySizeCode maps the four-bit max-apdu-size encoding of
// to an octet count, per ASHRAE 135 Table 20-11.
var maxAPDUBySizeCode = [16]uint16{
	0: 50, 1: 128, 2: 206, 3: 480, 4: 1024, 5: 1476,
}

func maxAPDUSizeCode(maxAPDU uint16) uint8 {
	switch {
	case maxAPDU <= 50:
		return 0
	case maxAPDU <= 128:
		return 1
	case maxAPDU <= 206:
		return 2
	case maxAPDU <= 480:
		return 3
	case maxAPDU <= 1024:
		return 4
	default:
		return 5
	}
}

// DecodeConfirmedHeader parses a Confirmed-Request APDU's fixed and
// optional segmentation header. buf must begin at the PDU-type octet
// (0x00 high nibble).
func DecodeConfirmedHeader(buf []byte) (consumed int, hdr ConfirmedHeader, err error) {
	if len(buf) < 3 {
		return 0, ConfirmedHeader{}, bnerror.ErrTruncated
	}
	flags := buf[0]
	hdr.Segmented = flags&0x08 != 0
	hdr.MoreFollows = flags&0x04 != 0
	hdr.SegmentedAccepted = flags&0x02 != 0

	hdr.MaxSegments = (buf[1] >> 4) & 0x07
	sizeCode := buf[1] & 0x0F
	hdr.MaxAPDU = maxAPDUBySizeCode[sizeCode]
	hdr.InvokeID = buf[2]
	consumed = 3

	if hdr.Segmented {
		if len(buf) < consumed+2 {
			return 0, ConfirmedHeader{}, bnerror.ErrTruncated
		}
		hdr.SequenceNumber = buf[consumed]
		hdr.WindowSize = buf[consumed+1]
		consumed += 2
	}

	if len(buf) < consumed+1 {
		return 0, ConfirmedHeader{}, bnerror.ErrTruncated
	}
	hdr.ServiceChoice = buf[consumed]
	consumed++
	return consumed, hdr, nil
}

// EncodeConfirmedHeader emits a Confirmed-Request PDU header.
func EncodeConfirmedHeader(hdr ConfirmedHeader) []byte {
	flags := byte(types.PDUConfirmedRequest)
	if hdr.Segmented {
		flags |= 0x08
	}
	if hdr.MoreFollows {
		flags |= 0x04
	}
	if hdr.SegmentedAccepted {
		flags |= 0x02
	}

	out := []byte{flags, (hdr.MaxSegments&0x07)<<4 | maxAPDUSizeCode(hdr.MaxAPDU)&0x0F, hdr.InvokeID}
	if hdr.Segmented {
		out = append(out, hdr.SequenceNumber, hdr.WindowSize)
	}
	return append(out, hdr.ServiceChoice)
}

// SimpleAckHeader is the fixed header of a Simple-Ack PDU.
type SimpleAckHeader struct {
	InvokeID uint8
	ServiceChoice uint8
}

func DecodeSimpleAckHeader(buf []byte) (consumed int, hdr SimpleAckHeader, err error) {
	if len(buf) < 3 {
		return 0, SimpleAckHeader{}, bnerror.ErrTruncated
	}
	hdr.InvokeID = buf[1]
	hdr.ServiceChoice = buf[2]
	return 3, hdr, nil
}

func EncodeSimpleAckHeader(hdr SimpleAckHeader) []byte {
	return []byte{byte(types.PDUSimpleAck), hdr.InvokeID, hdr.ServiceChoice}
}

// ComplexAckHeader is the fixed+variable header of a Complex-Ack PDU,
// possibly segmented.
type ComplexAckHeader struct {
	Segmented bool
	MoreFollows bool
	InvokeID uint8
	SequenceNumber uint8
	WindowSize uint8
	ServiceChoice uint8
}

func DecodeComplexAckHeader(buf []byte) (consumed int, hdr ComplexAckHeader, err error) {
	if len(buf) < 3 {
		return 0, ComplexAckHeader{}, bnerror.ErrTruncated
	}
	flags := buf[0]
	hdr.Segmented = flags&0x08 != 0
	hdr.MoreFollows = flags&0x04 != 0
	hdr.InvokeID = buf[1]
	consumed = 2

	if hdr.Segmented {
		if len(buf) < consumed+2 {
			return 0, ComplexAckHeader{}, bnerror.ErrTruncated
		}
		hdr.SequenceNumber = buf[consumed]
		hdr.WindowSize = buf[consumed+1]
		consumed += 2
	}
	if len(buf) < consumed+1 {
		return 0, ComplexAckHeader{}, bnerror.ErrTruncated
	}
	hdr.ServiceChoice = buf[consumed]
	consumed++
	return consumed, hdr, nil
}

func EncodeComplexAckHeader(hdr ComplexAckHeader) []byte {
	flags := byte(types.PDUComplexAck)
	if hdr.Segmented {
		flags |= 0x08
	}
	if hdr.MoreFollows {
		flags |= 0x04
	}
	out := []byte{flags, hdr.InvokeID}
	if hdr.Segmented {
		out = append(out, hdr.SequenceNumber, hdr.WindowSize)
	}
	return append(out, hdr.ServiceChoice)
}

// SegmentAckHeader is the fixed body of a Segment-Ack PDU.
type SegmentAckHeader struct {
	NegativeAck bool
	Server bool
	InvokeID uint8
	SequenceNumber uint8
	ActualWindowSize uint8
}

func DecodeSegmentAckHeader(buf []byte) (consumed int, hdr SegmentAckHeader, err error) {
	if len(buf) < 4 {
		return 0, SegmentAckHeader{}, bnerror.ErrTruncated
	}
	flags := buf[0]
	hdr.NegativeAck = flags&0x02 != 0
	hdr.Server = flags&0x01 != 0
	hdr.InvokeID = buf[1]
	hdr.SequenceNumber = buf[2]
	hdr.ActualWindowSize = buf[3]
	return 4, hdr, nil
}

func EncodeSegmentAckHeader(hdr SegmentAckHeader) []byte {
	flags := byte(types.PDUSegmentAck)
	if hdr.NegativeAck {
		flags |= 0x02
	}
	if hdr.Server {
		flags |= 0x01
	}
	return []byte{flags, hdr.InvokeID, hdr.SequenceNumber, hdr.ActualWindowSize}
}

// ErrorHeader is the fixed header of an Error PDU.
type ErrorHeader struct {
	InvokeID uint8
	ServiceChoice uint8
}

func DecodeErrorHeader(buf []byte) (consumed int, hdr ErrorHeader, err error) {
	if len(buf) < 3 {
		return 0, ErrorHeader{}, bnerror.ErrTruncated
	}
	hdr.InvokeID = buf[1]
	hdr.ServiceChoice = buf[2]
	return 3, hdr, nil
}

func EncodeErrorHeader(hdr ErrorHeader) []byte {
	return []byte{byte(types.PDUError), hdr.InvokeID, hdr.ServiceChoice}
}

// RejectHeader is the fixed body of a Reject PDU.
type RejectHeader struct {
	InvokeID uint8
	Reason bnerror.RejectReason
}

func DecodeRejectHeader(buf []byte) (consumed int, hdr RejectHeader, err error) {
	if len(buf) < 3 {
		return 0, RejectHeader{}, bnerror.ErrTruncated
	}
	hdr.InvokeID = buf[1]
	hdr.Reason = bnerror.RejectReason(buf[2])
	return 3, hdr, nil
}

func EncodeRejectHeader(hdr RejectHeader) []byte {
	return []byte{byte(types.PDUReject), hdr.InvokeID, byte(hdr.Reason)}
}

// AbortHeader is the fixed body of an Abort PDU.
type AbortHeader struct {
	Server bool
	InvokeID uint8
	Reason bnerror.AbortReason
}

func DecodeAbortHeader(buf []byte) (consumed int, hdr AbortHeader, err error) {
	if len(buf) < 3 {
		return 0, AbortHeader{}, bnerror.ErrTruncated
	}
	hdr.Server = buf[0]&0x01 != 0
	hdr.InvokeID = buf[1]
	hdr.Reason = bnerror.AbortReason(buf[2])
	return 3, hdr, nil
}

func EncodeAbortHeader(hdr AbortHeader) []byte {
	flags := byte(types.PDUAbort)
	if hdr.Server {
		flags |= 0x01
	}
	return []byte{flags, hdr.InvokeID, byte(hdr.Reason)}
}

// UnconfirmedHeader is the fixed header of an Unconfirmed-Request PDU.
type UnconfirmedHeader struct {
	ServiceChoice uint8
}

func DecodeUnconfirmedHeader(buf []byte) (consumed int, hdr UnconfirmedHeader, err error) {
	if len(buf) < 2 {
		return 0, UnconfirmedHeader{}, bnerror.ErrTruncated
	}
	hdr.ServiceChoice = buf[1]
	return 2, hdr, nil
}

func EncodeUnconfirmedHeader(hdr UnconfirmedHeader) []byte {
	return []byte{byte(types.PDUUnconfirmedRequest), hdr.ServiceChoice}
}

// PDUType classifies the first octet of an APDUE.
func PDUType(firstOctet byte) byte {
	return firstOctet & 0xF0
}
