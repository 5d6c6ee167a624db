package service

// EnableDisable is the DeviceCommunicationControl enable_disable
// parameter, per ASHRAE 135 clause 16.1.
type EnableDisable uint32

const (
	Enable EnableDisable = 0
	Disable EnableDisable = 1
	DisableInitiation EnableDisable = 2
)

// DeviceCommunicationControlRequest is the
// DeviceCommunicationControl-Request argument list, per ASHRAE 135
// clause 16.1, including the optional password challenge a device can
// require before honoring a disable request.
type DeviceCommunicationControlRequest struct {
	HasTimeDuration bool
	TimeDurationMin uint32
	EnableDisable EnableDisable
	HasPassword bool
	Password string
}

func EncodeDeviceCommunicationControlRequest(req DeviceCommunicationControlRequest) []byte {
	var out []byte
	if req.HasTimeDuration {
		out = encodeUnsignedContext(out, 0, req.TimeDurationMin)
	}
	out = encodeEnumeratedContext(out, 1, uint32(req.EnableDisable))
	if req.HasPassword {
		out = encodeCharacterStringContext(out, 2, req.Password)
	}
	return out
}

func DecodeDeviceCommunicationControlRequest(buf []byte) (DeviceCommunicationControlRequest, error) {
	var req DeviceCommunicationControlRequest

	if hasContextTag(buf, 0) {
		n, dur, err := decodeUnsignedContext(buf)
		if err != nil {
			return req, err
		}
		req.HasTimeDuration = true
		req.TimeDurationMin = dur
		buf = buf[n:]
	}

	n, ed, err := decodeEnumeratedContext(buf)
	if err != nil {
		return req, err
	}
	req.EnableDisable = EnableDisable(ed)
	buf = buf[n:]

	if len(buf) > 0 {
		_, pw, err := decodeCharacterStringContext(buf)
		if err != nil {
			return req, err
		}
		req.HasPassword = true
		req.Password = pw
	}
	return req, nil
}
