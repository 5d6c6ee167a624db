package node

import (
	"errors"
	"sync"
	"testing"

	"github.com/caio-sobreiro/bacnetstack/address"
	"github.com/caio-sobreiro/bacnetstack/apdu"
)

// fakeDatalink is an in-memory Datalink for tests: SendPDU appends to a
// log instead of touching the network, and Receive blocks on a channel
// fed by the test.
type fakeDatalink struct {
	mu   sync.Mutex
	sent []sentFrame
	rx   chan rxFrame
	my   address.Address
	bc   address.Address
}

type sentFrame struct {
	dst     address.Address
	payload []byte
}

type rxFrame struct {
	src     address.Address
	payload []byte
}

func newFakeDatalink() *fakeDatalink {
	return &fakeDatalink{rx: make(chan rxFrame, 8), my: address.NewLocalMAC([]byte{10, 0, 0, 1, 0xBA, 0xC0})}
}

func (f *fakeDatalink) Receive() (address.Address, []byte, error) {
	r, ok := <-f.rx
	if !ok {
		return address.Address{}, nil, errors.New("closed")
	}
	return r.src, r.payload, nil
}

func (f *fakeDatalink) SendPDU(dst address.Address, payload []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentFrame{dst: dst, payload: append([]byte(nil), payload...)})
	return len(payload), nil
}

func (f *fakeDatalink) GetBroadcastAddress() address.Address { return f.bc }
func (f *fakeDatalink) GetMyAddress() address.Address        { return f.my }
func (f *fakeDatalink) Close() error                         { close(f.rx); return nil }

func (f *fakeDatalink) lastSent() sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func TestSendConfirmedRequestUnsegmented(t *testing.T) {
	dl := newFakeDatalink()
	n := New(dl, 1, apdu.NewRegistry())

	peer := address.NewLocalMAC([]byte{10, 0, 0, 2, 0xBA, 0xC0})
	invokeID, err := n.SendConfirmedRequest(peer, 12, []byte{0xDE, 0xAD}, 1476, false)
	if err != nil {
		t.Fatal(err)
	}

	sent := dl.lastSent()
	consumed, _, err := apdu.DecodeNPDU(sent.payload)
	if err != nil {
		t.Fatal(err)
	}
	_, hdr, err := apdu.DecodeConfirmedHeader(sent.payload[consumed:])
	if err != nil {
		t.Fatal(err)
	}
	if hdr.InvokeID != invokeID || hdr.Segmented {
		t.Fatalf("unexpected header: %+v", hdr)
	}

	if state, inUse := n.TSM.State(invokeID); !inUse || state.String() != "await-confirmation" {
		t.Fatalf("expected await-confirmation, got %v inUse=%v", state, inUse)
	}
}

func TestSendConfirmedRequestSegmentsLargePayload(t *testing.T) {
	dl := newFakeDatalink()
	n := New(dl, 1, apdu.NewRegistry(), WithSegmentationSupport(2), WithLocalMaxAPDU(50))

	peer := address.NewLocalMAC([]byte{10, 0, 0, 2, 0xBA, 0xC0})
	big := make([]byte, 200)
	invokeID, err := n.SendConfirmedRequest(peer, 15, big, 50, true)
	if err != nil {
		t.Fatal(err)
	}

	if len(dl.sent) < 2 {
		t.Fatalf("expected multiple segments sent, got %d", len(dl.sent))
	}
	consumed, _, err := apdu.DecodeNPDU(dl.sent[0].payload)
	if err != nil {
		t.Fatal(err)
	}
	_, hdr, err := apdu.DecodeConfirmedHeader(dl.sent[0].payload[consumed:])
	if err != nil {
		t.Fatal(err)
	}
	if !hdr.Segmented || hdr.InvokeID != invokeID || hdr.ServiceChoice != 15 {
		t.Fatalf("unexpected first segment header: %+v", hdr)
	}
}

func TestSimpleAckCompletesTransaction(t *testing.T) {
	dl := newFakeDatalink()
	n := New(dl, 1, apdu.NewRegistry())

	peer := address.NewLocalMAC([]byte{10, 0, 0, 2, 0xBA, 0xC0})
	invokeID, err := n.SendConfirmedRequest(peer, 15, []byte{0x01}, 1476, false)
	if err != nil {
		t.Fatal(err)
	}

	ackFrame := append(apdu.EncodeNPDU(apdu.NPDUData{}), apdu.EncodeSimpleAckHeader(apdu.SimpleAckHeader{InvokeID: invokeID, ServiceChoice: 15})...)
	n.handleFrame(peer, ackFrame)

	if !n.TSM.InvokeIDFree(invokeID) {
		t.Fatal("expected invoke id to be observably free after simple ack")
	}
}

func TestAnnounceIAmBroadcasts(t *testing.T) {
	dl := newFakeDatalink()
	dl.bc = address.NewLocalMAC([]byte{10, 255, 255, 255, 0xBA, 0xC0})
	n := New(dl, 260001, apdu.NewRegistry())

	n.AnnounceIAm(1476, 3, 42)

	sent := dl.lastSent()
	if sent.dst != dl.bc {
		t.Fatalf("expected broadcast destination, got %+v", sent.dst)
	}
}
