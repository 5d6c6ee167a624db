package service

import (
	"github.com/caio-sobreiro/bacnetstack/encoding"
	"github.com/caio-sobreiro/bacnetstack/types"
)

// ReadAccessSpecification names one object and the properties to read
// from it, per ASHRAE 135 clause 15.7's ListOfReadAccessSpecs.
type ReadAccessSpecification struct {
	ObjectType     uint16
	ObjectInstance uint32
	PropertyIDs    []uint32 // empty means "all properties" (ALL)
	ArrayIndex     uint32   // types.ArrayIndexAll if not applicable
}

// ReadPropertyMultipleRequest is the ReadPropertyMultiple-Request
// argument list: one or more ReadAccessSpecifications.
type ReadPropertyMultipleRequest struct {
	Specs []ReadAccessSpecification
}

func EncodeReadPropertyMultipleRequest(req ReadPropertyMultipleRequest) []byte {
	var out []byte
	for _, spec := range req.Specs {
		out = encodeObjectIDContext(out, 0, spec.ObjectType, spec.ObjectInstance)
		out = append(out, encoding.OpeningTag(1)...)
		for _, pid := range spec.PropertyIDs {
			out = encodeEnumeratedContext(out, 0, pid)
			if spec.ArrayIndex != types.ArrayIndexAll {
				out = encodeUnsignedContext(out, 1, spec.ArrayIndex)
			}
		}
		out = append(out, encoding.ClosingTag(1)...)
	}
	return out
}

func DecodeReadPropertyMultipleRequest(buf []byte) (ReadPropertyMultipleRequest, error) {
	var req ReadPropertyMultipleRequest
	for len(buf) > 0 {
		n, objType, inst, err := decodeObjectIDContext(buf, 0)
		if err != nil {
			return req, err
		}
		buf = buf[n:]
		spec := ReadAccessSpecification{ObjectType: objType, ObjectInstance: inst, ArrayIndex: types.ArrayIndexAll}

		consumed, openTag, err := encoding.DecodeTagNumberAndValue(buf)
		if err != nil || !encoding.IsOpeningTag(openTag) || openTag.Number != 1 {
			return req, errMalformed
		}
		buf = buf[consumed:]

		for {
			tag, err := peekTag(buf)
			if err != nil {
				return req, err
			}
			if encoding.IsClosingTag(tag) && tag.Number == 1 {
				consumed, _, _ := encoding.DecodeTagNumberAndValue(buf)
				buf = buf[consumed:]
				break
			}
			n, pid, err := decodeEnumeratedContext(buf)
			if err != nil {
				return req, err
			}
			spec.PropertyIDs = append(spec.PropertyIDs, pid)
			buf = buf[n:]
			if hasContextTag(buf, 1) {
				n, idx, err := decodeUnsignedContext(buf)
				if err != nil {
					return req, err
				}
				spec.ArrayIndex = idx
				buf = buf[n:]
			}
		}
		req.Specs = append(req.Specs, spec)
	}
	return req, nil
}

// ReadAccessResult carries one property's result (value or error) for
// one object, an element of ASHRAE 135 clause 15.7's
// ListOfReadAccessResults.
type ReadAccessResult struct {
	ObjectType     uint16
	ObjectInstance uint32
	PropertyID     uint32
	ArrayIndex     uint32
	Value          []encoding.ApplicationValue
	Error          *AccessError // non-nil means this property read failed
}

// AccessError is the (error-class, error-code) pair reported in place
// of a value for one property within a ReadPropertyMultiple-ACK.
type AccessError struct {
	Class uint32
	Code  uint32
}

type ReadPropertyMultipleAck struct {
	Results []ReadAccessResult
}

func EncodeReadPropertyMultipleAck(ack ReadPropertyMultipleAck) []byte {
	var out []byte
	var currentObjType uint16
	var currentInst uint32
	open := false
	for i, r := range ack.Results {
		if !open || r.ObjectType != currentObjType || r.ObjectInstance != currentInst {
			if open {
				out = append(out, encoding.ClosingTag(1)...)
			}
			out = encodeObjectIDContext(out, 0, r.ObjectType, r.ObjectInstance)
			out = append(out, encoding.OpeningTag(1)...)
			currentObjType, currentInst, open = r.ObjectType, r.ObjectInstance, true
		}
		out = encodeEnumeratedContext(out, 2, r.PropertyID)
		if r.ArrayIndex != types.ArrayIndexAll {
			out = encodeUnsignedContext(out, 3, r.ArrayIndex)
		}
		if r.Error != nil {
			out = append(out, encoding.OpeningTag(5)...)
			out = encodeEnumeratedContext(out, 0, r.Error.Class)
			out = encodeEnumeratedContext(out, 1, r.Error.Code)
			out = append(out, encoding.ClosingTag(5)...)
		} else {
			out = append(out, encoding.OpeningTag(4)...)
			for _, v := range r.Value {
				out = encoding.EncodeApplicationData(out, v)
			}
			out = append(out, encoding.ClosingTag(4)...)
		}
		if i == len(ack.Results)-1 {
			out = append(out, encoding.ClosingTag(1)...)
		}
	}
	return out
}

// DecodeReadPropertyMultipleAck parses a ReadPropertyMultiple-ACK
// payload into its per-object, per-property results.
func DecodeReadPropertyMultipleAck(buf []byte) (ReadPropertyMultipleAck, error) {
	var ack ReadPropertyMultipleAck
	for len(buf) > 0 {
		n, objType, inst, err := decodeObjectIDContext(buf, 0)
		if err != nil {
			return ack, err
		}
		buf = buf[n:]

		consumed, openTag, err := encoding.DecodeTagNumberAndValue(buf)
		if err != nil || !encoding.IsOpeningTag(openTag) || openTag.Number != 1 {
			return ack, errMalformed
		}
		buf = buf[consumed:]

		for {
			tag, err := peekTag(buf)
			if err != nil {
				return ack, err
			}
			if encoding.IsClosingTag(tag) && tag.Number == 1 {
				consumed, _, _ := encoding.DecodeTagNumberAndValue(buf)
				buf = buf[consumed:]
				break
			}

			n, propID, err := decodeEnumeratedContext(buf)
			if err != nil {
				return ack, err
			}
			buf = buf[n:]
			result := ReadAccessResult{ObjectType: objType, ObjectInstance: inst, PropertyID: propID, ArrayIndex: types.ArrayIndexAll}

			if hasContextTag(buf, 3) {
				n, idx, err := decodeUnsignedContext(buf)
				if err != nil {
					return ack, err
				}
				result.ArrayIndex = idx
				buf = buf[n:]
			}

			resultTag, err := peekTag(buf)
			if err != nil {
				return ack, err
			}
			switch {
			case resultTag.Class == encoding.ClassContext && resultTag.Number == 5 && encoding.IsOpeningTag(resultTag):
				consumed, _, _ := encoding.DecodeTagNumberAndValue(buf)
				buf = buf[consumed:]
				n, class, err := decodeEnumeratedContext(buf)
				if err != nil {
					return ack, err
				}
				buf = buf[n:]
				n, code, err := decodeEnumeratedContext(buf)
				if err != nil {
					return ack, err
				}
				buf = buf[n:]
				consumed, closeTag, err := encoding.DecodeTagNumberAndValue(buf)
				if err != nil || !encoding.IsClosingTag(closeTag) || closeTag.Number != 5 {
					return ack, errMalformed
				}
				buf = buf[consumed:]
				result.Error = &AccessError{Class: class, Code: code}
			case resultTag.Class == encoding.ClassContext && resultTag.Number == 4 && encoding.IsOpeningTag(resultTag):
				consumed, _, _ := encoding.DecodeTagNumberAndValue(buf)
				buf = buf[consumed:]
				for {
					inner, err := peekTag(buf)
					if err != nil {
						return ack, err
					}
					if encoding.IsClosingTag(inner) && inner.Number == 4 {
						consumed, _, _ := encoding.DecodeTagNumberAndValue(buf)
						buf = buf[consumed:]
						break
					}
					n, v, err := encoding.DecodeApplicationData(buf)
					if err != nil {
						return ack, err
					}
					result.Value = append(result.Value, v)
					buf = buf[n:]
				}
			default:
				return ack, errMalformed
			}

			ack.Results = append(ack.Results, result)
		}
	}
	return ack, nil
}
