package service

// ReinitializedState is the ReinitializeDevice state parameter, per
// ASHRAE 135 clause 16.4.
type ReinitializedState uint32

const (
	ReinitColdstart ReinitializedState = 0
	ReinitWarmstart ReinitializedState = 1
	ReinitStartBackup ReinitializedState = 2
	ReinitEndBackup ReinitializedState = 3
	ReinitStartRestore ReinitializedState = 4
	ReinitEndRestore ReinitializedState = 5
	ReinitAbortRestore ReinitializedState = 6
)

// ReinitializeDeviceRequest is the ReinitializeDevice-Request argument
// list.
type ReinitializeDeviceRequest struct {
	State ReinitializedState
	HasPassword bool
	Password string
}

func EncodeReinitializeDeviceRequest(req ReinitializeDeviceRequest) []byte {
	var out []byte
	out = encodeEnumeratedContext(out, 0, uint32(req.State))
	if req.HasPassword {
		out = encodeCharacterStringContext(out, 1, req.Password)
	}
	return out
}

func DecodeReinitializeDeviceRequest(buf []byte) (ReinitializeDeviceRequest, error) {
	var req ReinitializeDeviceRequest

	n, state, err := decodeEnumeratedContext(buf)
	if err != nil {
		return req, err
	}
	req.State = ReinitializedState(state)
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
