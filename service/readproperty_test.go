package service

import (
	"bytes"
	"testing"

	"github.com/caio-sobreiro/bacnetstack/apdu"
	"github.com/caio-sobreiro/bacnetstack/encoding"
	"github.com/caio-sobreiro/bacnetstack/types"
)

// TestReadPropertyDeviceObjectIdentifierHeaderBytes verifies the header
// byte sequence described for ReadProperty(Device.Object_Identifier):
// confirmed, max-seg 0, max-apdu size-code 5, invoke-id 1, ReadProperty.
func TestReadPropertyDeviceObjectIdentifierHeaderBytes(t *testing.T) {
	hdr := apdu.ConfirmedHeader{
		MaxSegments: 0, MaxAPDU: 1476, InvokeID: 1, ServiceChoice: types.ServiceReadProperty,
	}
	got := apdu.EncodeConfirmedHeader(hdr)
	want := []byte{0x00, 0x05, 0x01, 0x0C}
	if !bytes.Equal(got, want) {
		t.Fatalf("header bytes = % X want % X", got, want)
	}
}

func TestReadPropertyRequestRoundTrip(t *testing.T) {
	req := ReadPropertyRequest{
		ObjectType: types.ObjectDevice, ObjectInstance: 260001,
		PropertyID: types.PropertyObjectIdentifier, ArrayIndex: types.ArrayIndexAll,
	}
	buf := EncodeReadPropertyRequest(req)
	got, err := DecodeReadPropertyRequest(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != req {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, req)
	}
}

func TestReadPropertyAckObjectIdentifier(t *testing.T) {
	ack := ReadPropertyAck{
		ObjectType: types.ObjectDevice, ObjectInstance: 260001,
		PropertyID: types.PropertyObjectIdentifier, ArrayIndex: types.ArrayIndexAll,
		Value: []encoding.ApplicationValue{{
			Kind:   encoding.KindObjectID,
			Object: encoding.ObjectID{ObjectType: types.ObjectDevice, Instance: 260001},
		}},
	}
	buf := EncodeReadPropertyAck(ack)
	got, err := DecodeReadPropertyAck(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Value) != 1 || got.Value[0].Kind != encoding.KindObjectID {
		t.Fatalf("expected one ObjectID value, got %+v", got.Value)
	}
	if got.Value[0].Object.ObjectType != types.ObjectDevice || got.Value[0].Object.Instance != 260001 {
		t.Fatalf("unexpected object id: %+v", got.Value[0].Object)
	}
}

func TestReadPropertyRequestWithArrayIndex(t *testing.T) {
	req := ReadPropertyRequest{
		ObjectType: types.ObjectAnalogInput, ObjectInstance: 1,
		PropertyID: types.PropertyPresentValue, ArrayIndex: 3,
	}
	buf := EncodeReadPropertyRequest(req)
	got, err := DecodeReadPropertyRequest(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.ArrayIndex != 3 {
		t.Fatalf("expected array index 3, got %d", got.ArrayIndex)
	}
}
