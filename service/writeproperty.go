package service

import (
	"github.com/caio-sobreiro/bacnetstack/encoding"
	"github.com/caio-sobreiro/bacnetstack/types"
)

// NoPriority marks WriteProperty.Priority as absent (no priority array
// slot requested), per ASHRAE 135 clause 15.9.
const NoPriority = 0

// WritePropertyRequest is the WriteProperty-Request argument list, per
// ASHRAE 135 clause 15.9.
type WritePropertyRequest struct {
	ObjectType uint16
	ObjectInstance uint32
	PropertyID uint32
	ArrayIndex uint32 // types.ArrayIndexAll if omitted
	Value []encoding.ApplicationValue
	Priority uint32 // NoPriority if omitted; else 1..16
}

func EncodeWritePropertyRequest(req WritePropertyRequest) []byte {
	var out []byte
	out = encodeObjectIDContext(out, 0, req.ObjectType, req.ObjectInstance)
	out = encodeEnumeratedContext(out, 1, req.PropertyID)
	if req.ArrayIndex != types.ArrayIndexAll {
		out = encodeUnsignedContext(out, 2, req.ArrayIndex)
	}
	out = append(out, encoding.OpeningTag(3)...)
	for _, v := range req.Value {
		out = encoding.EncodeApplicationData(out, v)
	}
	out = append(out, encoding.ClosingTag(3)...)
	if req.Priority != NoPriority {
		out = encodeUnsignedContext(out, 4, req.Priority)
	}
	return out
}

func DecodeWritePropertyRequest(buf []byte) (WritePropertyRequest, error) {
	var req WritePropertyRequest
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

	consumed, openTag, err := encoding.DecodeTagNumberAndValue(buf)
	if err != nil || !encoding.IsOpeningTag(openTag) || openTag.Number != 3 {
		return req, errMalformed
	}
	buf = buf[consumed:]

	for {
		tag, err := peekTag(buf)
		if err != nil {
			return req, err
		}
		if encoding.IsClosingTag(tag) && tag.Number == 3 {
			consumed, _, _ := encoding.DecodeTagNumberAndValue(buf)
			buf = buf[consumed:]
			break
		}
		n, v, err := encoding.DecodeApplicationData(buf)
		if err != nil {
			return req, err
		}
		req.Value = append(req.Value, v)
		buf = buf[n:]
	}

	if hasContextTag(buf, 4) {
		_, pr, err := decodeUnsignedContext(buf)
		if err != nil {
			return req, err
		}
		req.Priority = pr
	}
	return req, nil
}
