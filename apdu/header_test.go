package apdu

import (
	"testing"

	"github.com/caio-sobreiro/bacnetstack/types"
)

func TestConfirmedHeaderRoundTrip(t *testing.T) {
	hdr := ConfirmedHeader{
		Segmented: false, MaxSegments: 4, MaxAPDU: 1476,
		InvokeID: 7, ServiceChoice: types.ServiceReadProperty,
	}
	buf := EncodeConfirmedHeader(hdr)
	consumed, got, err := DecodeConfirmedHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != len(buf) {
		t.Fatalf("consumed %d want %d", consumed, len(buf))
	}
	if got.InvokeID != 7 || got.ServiceChoice != types.ServiceReadProperty || got.MaxAPDU != 1476 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestConfirmedHeaderSegmentedRoundTrip(t *testing.T) {
	hdr := ConfirmedHeader{
		Segmented: true, MoreFollows: true, SegmentedAccepted: true,
		MaxSegments: 2, MaxAPDU: 480, InvokeID: 200,
		SequenceNumber: 3, WindowSize: 4, ServiceChoice: types.ServiceReadPropertyMultiple,
	}
	buf := EncodeConfirmedHeader(hdr)
	consumed, got, err := DecodeConfirmedHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != len(buf) {
		t.Fatalf("consumed %d want %d", consumed, len(buf))
	}
	if !got.Segmented || !got.MoreFollows || got.SequenceNumber != 3 || got.WindowSize != 4 {
		t.Fatalf("segmented round trip mismatch: %+v", got)
	}
}

func TestPDUTypeClassification(t *testing.T) {
	cases := map[byte]byte{
		0x00: types.PDUConfirmedRequest,
		0x08: types.PDUConfirmedRequest,
		0x10: types.PDUUnconfirmedRequest,
		0x20: types.PDUSimpleAck,
		0x30: types.PDUComplexAck,
		0x4F: types.PDUSegmentAck,
		0x50: types.PDUError,
		0x60: types.PDUReject,
		0x70: types.PDUAbort,
	}
	for first, want := range cases {
		if got := PDUType(first); got != want {
			t.Fatalf("PDUType(0x%02x) = 0x%02x want 0x%02x", first, got, want)
		}
	}
}

func TestSegmentAckHeaderRoundTrip(t *testing.T) {
	hdr := SegmentAckHeader{NegativeAck: true, Server: false, InvokeID: 9, SequenceNumber: 2, ActualWindowSize: 4}
	buf := EncodeSegmentAckHeader(hdr)
	consumed, got, err := DecodeSegmentAckHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != 4 || got != hdr {
		t.Fatalf("round trip mismatch: %+v want %+v", got, hdr)
	}
}

func TestNPDURoundTripLocalUnrouted(t *testing.T) {
	data := NPDUData{ExpectingReply: true, NetworkPriority: 1}
	buf := EncodeNPDU(data)
	consumed, got, err := DecodeNPDU(append(buf, 0x00))
	if err != nil {
		t.Fatal(err)
	}
	if consumed != 2 {
		t.Fatalf("consumed %d want 2", consumed)
	}
	if !got.ExpectingReply || got.NetworkPriority != 1 || got.HasDestination || got.HasSource {
		t.Fatalf("unexpected decode: %+v", got)
	}
}

func TestDecodeConfirmedHeaderTruncated(t *testing.T) {
	if _, _, err := DecodeConfirmedHeader([]byte{0x00, 0x04}); err == nil {
		t.Fatal("expected truncation error")
	}
}
