package main

import (
	"sync"
	"testing"

	"github.com/caio-sobreiro/bacnetstack/address"
	"github.com/caio-sobreiro/bacnetstack/apdu"
	"github.com/caio-sobreiro/bacnetstack/bnerror"
	"github.com/caio-sobreiro/bacnetstack/node"
	"github.com/caio-sobreiro/bacnetstack/service"
	"github.com/caio-sobreiro/bacnetstack/types"
)

func newTestDevice() *deviceObject {
	return &deviceObject{instance: 260001, objectName: "test-device", vendorID: 42}
}

func TestDeviceObjectReadPropertyObjectIdentifier(t *testing.T) {
	d := newTestDevice()
	values, err := d.readProperty(types.PropertyObjectIdentifier)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 1 || values[0].Object.Instance != 260001 {
		t.Fatalf("unexpected values: %+v", values)
	}
}

func TestDeviceObjectReadPropertyObjectName(t *testing.T) {
	d := newTestDevice()
	values, err := d.readProperty(types.PropertyObjectName)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 1 || string(values[0].CharString.Bytes) != "test-device" {
		t.Fatalf("unexpected values: %+v", values)
	}
}

func TestDeviceObjectReadPropertyUnknownIsServiceError(t *testing.T) {
	d := newTestDevice()
	_, err := d.readProperty(9999)
	class, code, ok := bnerror.AsServiceError(err)
	if !ok {
		t.Fatal("expected a service error")
	}
	if class != bnerror.ErrorClassProperty || code != bnerror.ErrorCodeUnknownProperty {
		t.Fatalf("unexpected class/code: %v %v", class, code)
	}
}

func TestHandleReadPropertyNonDeviceObjectIsServiceError(t *testing.T) {
	d := newTestDevice()
	req := service.ReadPropertyRequest{ObjectType: types.ObjectAnalogInput, ObjectInstance: 1, PropertyID: types.PropertyPresentValue, ArrayIndex: types.ArrayIndexAll}
	payload := service.EncodeReadPropertyRequest(req)
	_, err := handleReadProperty(d, payload)
	if _, _, ok := bnerror.AsServiceError(err); !ok {
		t.Fatalf("expected a service error, got %v", err)
	}
}

func TestHandleReadPropertyReturnsAck(t *testing.T) {
	d := newTestDevice()
	req := service.ReadPropertyRequest{ObjectType: types.ObjectDevice, ObjectInstance: 260001, PropertyID: types.PropertyVendorIdentifier, ArrayIndex: types.ArrayIndexAll}
	payload := service.EncodeReadPropertyRequest(req)
	ackBuf, err := handleReadProperty(d, payload)
	if err != nil {
		t.Fatal(err)
	}
	ack, err := service.DecodeReadPropertyAck(ackBuf)
	if err != nil {
		t.Fatal(err)
	}
	if len(ack.Value) != 1 || ack.Value[0].Unsigned != 42 {
		t.Fatalf("unexpected ack: %+v", ack)
	}
}

func TestHandleReadPropertyMultipleMixedResults(t *testing.T) {
	d := newTestDevice()
	req := service.ReadPropertyMultipleRequest{Specs: []service.ReadAccessSpecification{
		{
			ObjectType: types.ObjectDevice, ObjectInstance: 260001,
			PropertyIDs: []uint32{types.PropertyObjectName, 9999}, ArrayIndex: types.ArrayIndexAll,
		},
		{
			ObjectType: types.ObjectAnalogInput, ObjectInstance: 1,
			PropertyIDs: []uint32{types.PropertyPresentValue}, ArrayIndex: types.ArrayIndexAll,
		},
	}}
	payload := service.EncodeReadPropertyMultipleRequest(req)

	ackBuf, err := handleReadPropertyMultiple(d, payload)
	if err != nil {
		t.Fatal(err)
	}
	ack, err := service.DecodeReadPropertyMultipleAck(ackBuf)
	if err != nil {
		t.Fatal(err)
	}
	if len(ack.Results) != 3 {
		t.Fatalf("expected 3 results, got %d: %+v", len(ack.Results), ack.Results)
	}
	if ack.Results[0].Error != nil || string(ack.Results[0].Value[0].CharString.Bytes) != "test-device" {
		t.Fatalf("unexpected result[0]: %+v", ack.Results[0])
	}
	if ack.Results[1].Error == nil || ack.Results[1].Error.Code != uint32(bnerror.ErrorCodeUnknownProperty) {
		t.Fatalf("unexpected result[1]: %+v", ack.Results[1])
	}
	if ack.Results[2].Error == nil || ack.Results[2].Error.Code != uint32(bnerror.ErrorCodeUnknownObject) {
		t.Fatalf("unexpected result[2]: %+v", ack.Results[2])
	}
}

// fakeDatalink is an in-memory Datalink for handleWhoIs tests: SendPDU
// appends to a log instead of touching the network.
type fakeDatalink struct {
	mu   sync.Mutex
	sent int
	rx   chan struct{}
	my   address.Address
	bc   address.Address
}

func newFakeDatalink() *fakeDatalink { return &fakeDatalink{rx: make(chan struct{})} }

func (f *fakeDatalink) Receive() (address.Address, []byte, error) {
	<-f.rx
	return address.Address{}, nil, nil
}

func (f *fakeDatalink) SendPDU(dst address.Address, payload []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	return len(payload), nil
}

func (f *fakeDatalink) GetBroadcastAddress() address.Address { return f.bc }
func (f *fakeDatalink) GetMyAddress() address.Address        { return f.my }
func (f *fakeDatalink) Close() error                         { close(f.rx); return nil }

func (f *fakeDatalink) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

func TestHandleWhoIsAnswersWhenInstanceInRange(t *testing.T) {
	d := newTestDevice()
	dl := newFakeDatalink()
	n := node.New(dl, d.instance, apdu.NewRegistry())
	defer dl.Close()

	payload := service.EncodeWhoIsRequest(service.WhoIsRequest{HasLimits: true, Low: 260000, High: 260002})
	handleWhoIs(nil, n, d, payload)
	if got := dl.sentCount(); got != 1 {
		t.Fatalf("expected one I-Am broadcast, got %d", got)
	}
}

func TestHandleWhoIsIgnoresOutOfRange(t *testing.T) {
	d := newTestDevice()
	dl := newFakeDatalink()
	n := node.New(dl, d.instance, apdu.NewRegistry())
	defer dl.Close()

	payload := service.EncodeWhoIsRequest(service.WhoIsRequest{HasLimits: true, Low: 1, High: 2})
	handleWhoIs(nil, n, d, payload)
	if got := dl.sentCount(); got != 0 {
		t.Fatalf("expected no I-Am broadcast, got %d", got)
	}
}
