package service

import (
	"github.com/caio-sobreiro/bacnetstack/encoding"
)

// WhoHasRequest is the Who-Has unconfirmed-request argument list, per
// ASHRAE 135 clause 16.9. The target object is named by either
// ObjectType/ObjectInstance (ByObjectID true) or ObjectName.
type WhoHasRequest struct {
	HasLimits  bool
	Low        uint32
	High       uint32
	ByObjectID bool
	ObjectType uint16
	Instance   uint32
	ObjectName string
}

func EncodeWhoHasRequest(req WhoHasRequest) []byte {
	var out []byte
	if req.HasLimits {
		out = encodeUnsignedContext(out, 0, req.Low)
		out = encodeUnsignedContext(out, 1, req.High)
	}
	if req.ByObjectID {
		out = encodeObjectIDContext(out, 2, req.ObjectType, req.Instance)
	} else {
		out = encodeCharacterStringContext(out, 3, req.ObjectName)
	}
	return out
}

func DecodeWhoHasRequest(buf []byte) (WhoHasRequest, error) {
	var req WhoHasRequest

	if hasContextTag(buf, 0) {
		n, low, err := decodeUnsignedContext(buf)
		if err != nil {
			return req, err
		}
		buf = buf[n:]
		n, high, err := decodeUnsignedContext(buf)
		if err != nil {
			return req, err
		}
		buf = buf[n:]
		req.HasLimits = true
		req.Low, req.High = low, high
	}

	if hasContextTag(buf, 2) {
		_, objType, inst, err := decodeObjectIDContext(buf, 2)
		if err != nil {
			return req, err
		}
		req.ByObjectID = true
		req.ObjectType, req.Instance = objType, inst
		return req, nil
	}

	_, name, err := decodeCharacterStringContext(buf)
	if err != nil {
		return req, err
	}
	req.ObjectName = name
	return req, nil
}

// IHaveRequest is the I-Have unconfirmed-request argument list, per
// ASHRAE 135 clause 16.8: three flat application-tagged fields, like
// I-Am.
type IHaveRequest struct {
	DeviceInstance uint32
	ObjectType     uint16
	ObjectInstance uint32
	ObjectName     string
}

func EncodeIHaveRequest(req IHaveRequest, deviceObjectType uint16) []byte {
	var out []byte
	out = encoding.EncodeApplicationData(out, encoding.ApplicationValue{
		Kind:   encoding.KindObjectID,
		Object: encoding.ObjectID{ObjectType: deviceObjectType, Instance: req.DeviceInstance},
	})
	out = encoding.EncodeApplicationData(out, encoding.ApplicationValue{
		Kind:   encoding.KindObjectID,
		Object: encoding.ObjectID{ObjectType: req.ObjectType, Instance: req.ObjectInstance},
	})
	out = encoding.EncodeApplicationData(out, encoding.ApplicationValue{
		Kind:       encoding.KindCharacterString,
		CharString: encoding.CharacterString{Encoding: 0, Bytes: []byte(req.ObjectName)},
	})
	return out
}

func DecodeIHaveRequest(buf []byte) (IHaveRequest, error) {
	var req IHaveRequest

	n, v, err := encoding.DecodeApplicationData(buf)
	if err != nil {
		return req, err
	}
	req.DeviceInstance = v.Object.Instance
	buf = buf[n:]

	n, v, err = encoding.DecodeApplicationData(buf)
	if err != nil {
		return req, err
	}
	req.ObjectType, req.ObjectInstance = v.Object.ObjectType, v.Object.Instance
	buf = buf[n:]

	_, v, err = encoding.DecodeApplicationData(buf)
	if err != nil {
		return req, err
	}
	req.ObjectName = string(v.CharString.Bytes)
	return req, nil
}
