package service

// LifeSafetyOperationValue is the LifeSafetyOperation request
// parameter, per ASHRAE 135 clause 13.3 Table 13-2 (a non-exhaustive
// subset sufficient for the core's Life Safety Zone/Point services).
type LifeSafetyOperationValue uint32

const (
	LSONone LifeSafetyOperationValue = 0
	LSOSilence LifeSafetyOperationValue = 1
	LSOSilenceAudible LifeSafetyOperationValue = 2
	LSOSilenceVisual LifeSafetyOperationValue = 3
	LSOReset LifeSafetyOperationValue = 4
	LSOResetAlarm LifeSafetyOperationValue = 5
	LSOResetFault LifeSafetyOperationValue = 6
	LSOUnsilence LifeSafetyOperationValue = 7
)

// LifeSafetyOperationRequest is the LifeSafetyOperation-Request
// argument list.
type LifeSafetyOperationRequest struct {
	RequestingProcessID uint32
	RequestingSource string
	Request LifeSafetyOperationValue
	HasObject bool
	ObjectType uint16
	ObjectInstance uint32
}

func EncodeLifeSafetyOperationRequest(req LifeSafetyOperationRequest) []byte {
	var out []byte
	out = encodeUnsignedContext(out, 0, req.RequestingProcessID)
	out = encodeCharacterStringContext(out, 1, req.RequestingSource)
	out = encodeEnumeratedContext(out, 2, uint32(req.Request))
	if req.HasObject {
		out = encodeObjectIDContext(out, 3, req.ObjectType, req.ObjectInstance)
	}
	return out
}

func DecodeLifeSafetyOperationRequest(buf []byte) (LifeSafetyOperationRequest, error) {
	var req LifeSafetyOperationRequest

	n, pid, err := decodeUnsignedContext(buf)
	if err != nil {
		return req, err
	}
	req.RequestingProcessID = pid
	buf = buf[n:]

	n, src, err := decodeCharacterStringContext(buf)
	if err != nil {
		return req, err
	}
	req.RequestingSource = src
	buf = buf[n:]

	n, op, err := decodeEnumeratedContext(buf)
	if err != nil {
		return req, err
	}
	req.Request = LifeSafetyOperationValue(op)
	buf = buf[n:]

	if len(buf) > 0 {
		_, objType, inst, err := decodeObjectIDContext(buf, 3)
		if err != nil {
			return req, err
		}
		req.HasObject = true
		req.ObjectType, req.ObjectInstance = objType, inst
	}
	return req, nil
}
