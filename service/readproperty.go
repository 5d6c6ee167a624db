package service

import (
	"github.com/caio-sobreiro/bacnetstack/encoding"
	"github.com/caio-sobreiro/bacnetstack/types"
)

// ReadPropertyRequest is the ReadProperty-Request service argument list,
// per ASHRAE 135 clause 15.5.
type ReadPropertyRequest struct {
	ObjectType uint16
	ObjectInstance uint32
	PropertyID uint32
	ArrayIndex uint32 // types.ArrayIndexAll if omitted
}

// EncodeReadPropertyRequest builds the service-choice payload (the part
// after the fixed confirmed-request header).
func EncodeReadPropertyRequest(req ReadPropertyRequest) []byte {
	var out []byte
	out = encodeObjectIDContext(out, 0, req.ObjectType, req.ObjectInstance)
	out = encodeEnumeratedContext(out, 1, req.PropertyID)
	if req.ArrayIndex != types.ArrayIndexAll {
		out = encodeUnsignedContext(out, 2, req.ArrayIndex)
	}
	return out
}

// DecodeReadPropertyRequest parses a ReadProperty-Request payload.
func DecodeReadPropertyRequest(buf []byte) (ReadPropertyRequest, error) {
	var req ReadPropertyRequest
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
		_, idx, err := decodeUnsignedContext(buf)
		if err != nil {
			return req, err
		}
		req.ArrayIndex = idx
	}
	return req, nil
}

// ReadPropertyAck is the ReadProperty-ACK service reply, per ASHRAE 135
// clause 15.5: the object/property identification echoed back alongside
// the decoded property value(s).
type ReadPropertyAck struct {
	ObjectType uint16
	ObjectInstance uint32
	PropertyID uint32
	ArrayIndex uint32
	Value []encoding.ApplicationValue
}

// EncodeReadPropertyAck builds the Complex-Ack payload.
func EncodeReadPropertyAck(ack ReadPropertyAck) []byte {
	var out []byte
	out = encodeObjectIDContext(out, 0, ack.ObjectType, ack.ObjectInstance)
	out = encodeEnumeratedContext(out, 1, ack.PropertyID)
	if ack.ArrayIndex != types.ArrayIndexAll {
		out = encodeUnsignedContext(out, 2, ack.ArrayIndex)
	}
	out = append(out, encoding.OpeningTag(3)...)
	for _, v := range ack.Value {
		out = encoding.EncodeApplicationData(out, v)
	}
	out = append(out, encoding.ClosingTag(3)...)
	return out
}

// DecodeReadPropertyAck parses a ReadProperty-ACK payload.
func DecodeReadPropertyAck(buf []byte) (ReadPropertyAck, error) {
	var ack ReadPropertyAck
	ack.ArrayIndex = types.ArrayIndexAll

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

	if hasContextTag(buf, 2) {
		n, idx, err := decodeUnsignedContext(buf)
		if err != nil {
			return ack, err
		}
		ack.ArrayIndex = idx
		buf = buf[n:]
	}

	consumed, openTag, err := encoding.DecodeTagNumberAndValue(buf)
	if err != nil || !encoding.IsOpeningTag(openTag) || openTag.Number != 3 {
		return ack, errMalformed
	}
	buf = buf[consumed:]

	for {
		tag, err := peekTag(buf)
		if err != nil {
			return ack, err
		}
		if encoding.IsClosingTag(tag) && tag.Number == 3 {
			break
		}
		n, v, err := encoding.DecodeApplicationData(buf)
		if err != nil {
			return ack, err
		}
		ack.Value = append(ack.Value, v)
		buf = buf[n:]
	}
	return ack, nil
}
