package service

import (
	"github.com/caio-sobreiro/bacnetstack/encoding"
	"github.com/caio-sobreiro/bacnetstack/types"
)

// ReadRangeRequest is the ReadRange-Request argument list, per ASHRAE
// 135 clause 15.8. This core implements the by-position selector
// (RequestedCount from ReferenceIndex) and the unrestricted
// (no-selector, "read everything") form; by-sequence-number and
// by-time selectors are not implemented since no in-scope object type
// (Trend Log is out of scope) can exercise them.
type ReadRangeRequest struct {
	ObjectType uint16
	ObjectInstance uint32
	PropertyID uint32
	ArrayIndex uint32 // types.ArrayIndexAll if omitted

	HasPositionRange bool
	ReferenceIndex uint32
	RequestedCount int32 // negative counts backward from ReferenceIndex
}

func EncodeReadRangeRequest(req ReadRangeRequest) []byte {
	var out []byte
	out = encodeObjectIDContext(out, 0, req.ObjectType, req.ObjectInstance)
	out = encodeEnumeratedContext(out, 1, req.PropertyID)
	if req.ArrayIndex != types.ArrayIndexAll {
		out = encodeUnsignedContext(out, 2, req.ArrayIndex)
	}
	if req.HasPositionRange {
		out = append(out, encoding.OpeningTag(3)...)
		out = encoding.EncodeApplicationData(out, encoding.ApplicationValue{Kind: encoding.KindUnsignedInt, Unsigned: req.ReferenceIndex})
		out = encoding.EncodeApplicationData(out, encoding.ApplicationValue{Kind: encoding.KindSignedInt, Signed: req.RequestedCount})
		out = append(out, encoding.ClosingTag(3)...)
	}
	return out
}

func DecodeReadRangeRequest(buf []byte) (ReadRangeRequest, error) {
	var req ReadRangeRequest
	req.ArrayIndex = types.ArrayIndexAll

	n, objType, inst, err := decodeObjectIDContext(buf, 0)
	if err != nil {
		return req, err
	}
	req.ObjectType, req.ObjectInstance = objType, inst
	buf = buf[n:]

	n, prop, err := decodeEnumeratedContext(buf)
	if err != nil {
		return req, err
	}
	req.PropertyID = prop
	buf = buf[n:]

	if hasContextTag(buf, 2) {
		n, idx, err := decodeUnsignedContext(buf)
		if err != nil {
			return req, err
		}
		req.ArrayIndex = idx
		buf = buf[n:]
	}

	if hasContextTag(buf, 3) {
		consumed, _, err := encoding.DecodeTagNumberAndValue(buf)
		if err != nil {
			return req, err
		}
		buf = buf[consumed:]
		n, refIdx, err := encoding.DecodeApplicationData(buf)
		if err != nil {
			return req, err
		}
		buf = buf[n:]
		n, count, err := encoding.DecodeApplicationData(buf)
		if err != nil {
			return req, err
		}
		buf = buf[n:]
		req.HasPositionRange = true
		req.ReferenceIndex = refIdx.Unsigned
		req.RequestedCount = count.Signed
	}
	return req, nil
}

// ResultFlag bits for ReadRange-ACK, per ASHRAE 135 clause 21 (BACnet
// Result Flags bit string).
const (
	ResultFlagFirstItem = 1 << iota
	ResultFlagLastItem
	ResultFlagMoreItems
)

// ReadRangeAck is the ReadRange-ACK reply.
type ReadRangeAck struct {
	ObjectType uint16
	ObjectInstance uint32
	PropertyID uint32
	ArrayIndex uint32
	ResultFlags uint8
	ItemCount uint32
	Items []encoding.ApplicationValue
	FirstSequenceNumber uint32
	HasFirstSequenceNumber bool
}

func EncodeReadRangeAck(ack ReadRangeAck) []byte {
	var out []byte
	out = encodeObjectIDContext(out, 0, ack.ObjectType, ack.ObjectInstance)
	out = encodeEnumeratedContext(out, 1, ack.PropertyID)
	if ack.ArrayIndex != types.ArrayIndexAll {
		out = encodeUnsignedContext(out, 2, ack.ArrayIndex)
	}
	bits := encoding.BitString{BitsUsed: 3, Bytes: []byte{resultFlagsByte(ack.ResultFlags)}}
	out = encoding.EncodeContextData(out, 3, encoding.ApplicationValue{Kind: encoding.KindBitString, Bits: bits})
	out = encodeUnsignedContext(out, 4, ack.ItemCount)
	out = append(out, encoding.OpeningTag(5)...)
	for _, v := range ack.Items {
		out = encoding.EncodeApplicationData(out, v)
	}
	out = append(out, encoding.ClosingTag(5)...)
	if ack.HasFirstSequenceNumber {
		out = encodeUnsignedContext(out, 6, ack.FirstSequenceNumber)
	}
	return out
}

// DecodeReadRangeAck parses a ReadRange-ACK payload, the mirror of
// EncodeReadRangeAck.
func DecodeReadRangeAck(buf []byte) (ReadRangeAck, error) {
	var ack ReadRangeAck

	n, objType, inst, err := decodeObjectIDContext(buf, 0)
	if err != nil {
		return ack, err
	}
	ack.ObjectType, ack.ObjectInstance = objType, inst
	buf = buf[n:]

	n, prop, err := decodeEnumeratedContext(buf)
	if err != nil {
		return ack, err
	}
	ack.PropertyID = prop
	buf = buf[n:]

	ack.ArrayIndex = types.ArrayIndexAll
	if hasContextTag(buf, 2) {
		n, idx, err := decodeUnsignedContext(buf)
		if err != nil {
			return ack, err
		}
		ack.ArrayIndex = idx
		buf = buf[n:]
	}

	n, flags, err := encoding.DecodeContextData(buf, encoding.KindBitString)
	if err != nil {
		return ack, err
	}
	ack.ResultFlags = resultFlagsFromByte(flags.Bits)
	buf = buf[n:]

	n, count, err := decodeUnsignedContext(buf)
	if err != nil {
		return ack, err
	}
	ack.ItemCount = count
	buf = buf[n:]

	consumed, openTag, err := encoding.DecodeTagNumberAndValue(buf)
	if err != nil || !encoding.IsOpeningTag(openTag) || openTag.Number != 5 {
		return ack, errMalformed
	}
	buf = buf[consumed:]
	for {
		tag, err := peekTag(buf)
		if err != nil {
			return ack, err
		}
		if encoding.IsClosingTag(tag) && tag.Number == 5 {
			consumed, _, _ := encoding.DecodeTagNumberAndValue(buf)
			buf = buf[consumed:]
			break
		}
		n, v, err := encoding.DecodeApplicationData(buf)
		if err != nil {
			return ack, err
		}
		ack.Items = append(ack.Items, v)
		buf = buf[n:]
	}

	if hasContextTag(buf, 6) {
		n, seq, err := decodeUnsignedContext(buf)
		if err != nil {
			return ack, err
		}
		ack.FirstSequenceNumber = seq
		ack.HasFirstSequenceNumber = true
		buf = buf[n:]
	}

	return ack, nil
}

func resultFlagsFromByte(bits encoding.BitString) uint8 {
	if len(bits.Bytes) == 0 {
		return 0
	}
	b := bits.Bytes[0]
	var flags uint8
	if b&0x80 != 0 {
		flags |= ResultFlagFirstItem
	}
	if b&0x40 != 0 {
		flags |= ResultFlagLastItem
	}
	if b&0x20 != 0 {
		flags |= ResultFlagMoreItems
	}
	return flags
}

func resultFlagsByte(flags uint8) byte {
	var b byte
	if flags&ResultFlagFirstItem != 0 {
		b |= 0x80
	}
	if flags&ResultFlagLastItem != 0 {
		b |= 0x40
	}
	if flags&ResultFlagMoreItems != 0 {
		b |= 0x20
	}
	return b
}
