package service

import (
	"github.com/caio-sobreiro/bacnetstack/encoding"
	"github.com/caio-sobreiro/bacnetstack/types"
)

// WhoIsRequest is the Who-Is unconfirmed-request argument list. Both
// limits are present together or both absent (an unrestricted Who-Is),
// per ASHRAE 135 clause 16.10.
type WhoIsRequest struct {
	HasLimits bool
	Low uint32
	High uint32
}

func EncodeWhoIsRequest(req WhoIsRequest) []byte {
	if !req.HasLimits {
		return nil
	}
	var out []byte
	out = encodeUnsignedContext(out, 0, req.Low)
	out = encodeUnsignedContext(out, 1, req.High)
	return out
}

func DecodeWhoIsRequest(buf []byte) (WhoIsRequest, error) {
	if len(buf) == 0 {
		return WhoIsRequest{}, nil
	}
	n, low, err := decodeUnsignedContext(buf)
	if err != nil {
		return WhoIsRequest{}, err
	}
	buf = buf[n:]
	_, high, err := decodeUnsignedContext(buf)
	if err != nil {
		return WhoIsRequest{}, err
	}
	return WhoIsRequest{HasLimits: true, Low: low, High: high}, nil
}

// IAmRequest is the I-Am unconfirmed-request argument list. Unlike most
// services, every field is application-tagged (not context-tagged):
// ASHRAE 135 clause 16.10 defines I-Am as a flat, always-present
// positional list.
type IAmRequest struct {
	DeviceInstance uint32
	MaxAPDU uint32
	Segmentation types.Segmentation
	VendorID uint32
}

func EncodeIAmRequest(req IAmRequest) []byte {
	var out []byte
	out = encoding.EncodeApplicationData(out, encoding.ApplicationValue{
		Kind: encoding.KindObjectID,
		Object: encoding.ObjectID{ObjectType: types.ObjectDevice, Instance: req.DeviceInstance},
	})
	out = encoding.EncodeApplicationData(out, encoding.ApplicationValue{Kind: encoding.KindUnsignedInt, Unsigned: req.MaxAPDU})
	out = encoding.EncodeApplicationData(out, encoding.ApplicationValue{Kind: encoding.KindEnumerated, Enum: uint32(req.Segmentation)})
	out = encoding.EncodeApplicationData(out, encoding.ApplicationValue{Kind: encoding.KindUnsignedInt, Unsigned: req.VendorID})
	return out
}

func DecodeIAmRequest(buf []byte) (IAmRequest, error) {
	var req IAmRequest

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
	req.MaxAPDU = v.Unsigned
	buf = buf[n:]

	n, v, err = encoding.DecodeApplicationData(buf)
	if err != nil {
		return req, err
	}
	req.Segmentation = types.Segmentation(v.Enum)
	buf = buf[n:]

	_, v, err = encoding.DecodeApplicationData(buf)
	if err != nil {
		return req, err
	}
	req.VendorID = v.Unsigned
	return req, nil
}
