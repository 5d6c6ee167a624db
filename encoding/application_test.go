package encoding

import (
	"math"
	"testing"

	deep "github.com/go-test/deep"
)

// roundTrip is shared by every property test below: encode then decode
// must reproduce the exact value and exact byte count
// "Round-trip (codec)".
func roundTrip(t *testing.T, v ApplicationValue) {
	t.Helper()
	encoded := EncodeApplicationData(nil, v)
	consumed, decoded, err := DecodeApplicationData(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if consumed != len(encoded) {
		t.Fatalf("consumed %d, want %d", consumed, len(encoded))
	}
	if diff := deep.Equal(decoded, v); diff != nil {
		t.Fatalf("round-trip mismatch: %v", diff)
	}
}

func TestRoundTripUnsignedInt(t *testing.T) {
	for _, v := range []uint32{0, 0xFFFF, 0xFFFFFFFF} {
		roundTrip(t, ApplicationValue{Kind: KindUnsignedInt, Unsigned: v})
	}
}

func TestRoundTripSignedInt(t *testing.T) {
	for _, v := range []int32{0, -1, -32768, 32767} {
		roundTrip(t, ApplicationValue{Kind: KindSignedInt, Signed: v})
	}
}

func TestRoundTripReal(t *testing.T) {
	for _, v := range []float32{0.0, -1.0, float32(math.Pi)} {
		roundTrip(t, ApplicationValue{Kind: KindReal, Real: v})
	}
}

func TestRoundTripObjectID(t *testing.T) {
	roundTrip(t, ApplicationValue{Kind: KindObjectID, Object: ObjectID{ObjectType: 0, Instance: 0}})
	roundTrip(t, ApplicationValue{Kind: KindObjectID, Object: ObjectID{ObjectType: 28, Instance: 0x3FFFFF}})
}

func TestRoundTripDate(t *testing.T) {
	roundTrip(t, ApplicationValue{Kind: KindDate, Date: Date{
		Year: W(5), Month: W(5), Day: W(22), DayOfWeek: W(1),
	}})
}

func TestRoundTripTime(t *testing.T) {
	roundTrip(t, ApplicationValue{Kind: KindTime, Time: Time{
		Hour: W(23), Minute: W(59), Second: W(59), Hundredths: W(12),
	}})
}

func TestRoundTripCharacterString(t *testing.T) {
	roundTrip(t, ApplicationValue{Kind: KindCharacterString, CharString: CharacterString{
		Encoding: 0, Bytes: []byte("hello world"),
	}})
}

func TestRoundTripBitString(t *testing.T) {
	roundTrip(t, ApplicationValue{Kind: KindBitString, Bits: BitString{
		BitsUsed: 12, Bytes: []byte{0xAB, 0xF0},
	}})
}

func TestRoundTripBooleanAndNull(t *testing.T) {
	roundTrip(t, ApplicationValue{Kind: KindNull})
	roundTrip(t, ApplicationValue{Kind: KindBoolean, Bool: true})
	roundTrip(t, ApplicationValue{Kind: KindBoolean, Bool: false})
}

func TestUnknownTagDecodesAsUnknown(t *testing.T) {
	// Application tag number 13 is reserved/unassigned at the primitive
	// level; decoding it must not error.
	encoded := EncodeTag(13, ClassApplication, 2)
	encoded = append(encoded, 0xAA, 0xBB)

	consumed, v, err := DecodeApplicationData(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumed != len(encoded) {
		t.Fatalf("consumed %d, want %d", consumed, len(encoded))
	}
	if v.Kind != KindUnknown || v.UnknownTagNumber != 13 {
		t.Fatalf("got %+v, want Unknown(13...)", v)
	}
}

func TestCanonicalSignedEncoding(t *testing.T) {
	cases := []struct {
		v int32
		want int
	}{
		{0, 1},
		{127, 1},
		{128, 2}, // needs sign-extension octet
		{-1, 1},
		{-128, 1},
		{-129, 2},
		{32767, 2},
		{-32768, 2},
	}
	for _, c := range cases {
		got := EncodeSigned(c.v)
		if len(got) != c.want {
			t.Errorf("EncodeSigned(%d) = %d bytes, want %d", c.v, len(got), c.want)
		}
		decoded, err := DecodeSigned(got)
		if err != nil || decoded != c.v {
			t.Errorf("round trip %d: got %d, err %v", c.v, decoded, err)
		}
	}
}

func TestTagNumberBoundaries(t *testing.T) {
	// tag_number == 14 fits in one header octet.
	b := EncodeTag(14, ClassApplication, 0)
	if len(b) != 1 {
		t.Fatalf("tag 14 header: got %d bytes, want 1", len(b))
	}
	consumed, tag, err := DecodeTagNumberAndValue(b)
	if err != nil || consumed != 1 || tag.Number != 14 {
		t.Fatalf("decode tag 14: %+v %d %v", tag, consumed, err)
	}

	// tag_number == 15 triggers the extended tag-number form.
	b = EncodeTag(15, ClassApplication, 0)
	if len(b) != 2 {
		t.Fatalf("tag 15 header: got %d bytes, want 2", len(b))
	}
	consumed, tag, err = DecodeTagNumberAndValue(b)
	if err != nil || consumed != 2 || tag.Number != 15 {
		t.Fatalf("decode tag 15: %+v %d %v", tag, consumed, err)
	}
}

func TestLengthBoundaries(t *testing.T) {
	cases := []struct {
		length uint32
		wantHdrLen int
	}{
		{253, 2}, // single-octet LVT-extended (5, then 253)
		{254, 4}, // two-octet form (5, 254, hi, lo)
		{65535, 6}, // four-octet form (5, 255, 4 bytes)
	}
	for _, c := range cases {
		hdr := EncodeTag(1, ClassApplication, c.length)
		if len(hdr) != c.wantHdrLen {
			t.Errorf("length %d: header is %d bytes, want %d", c.length, len(hdr), c.wantHdrLen)
		}
		consumed, tag, err := DecodeTagNumberAndValue(hdr)
		if err != nil || consumed != len(hdr) || tag.LVT != c.length {
			t.Errorf("length %d: decode got lvt=%d consumed=%d err=%v", c.length, tag.LVT, consumed, err)
		}
	}
}

func TestOpeningClosingTagRoundTrip(t *testing.T) {
	open := OpeningTag(3)
	_, tag, err := DecodeTagNumberAndValue(open)
	if err != nil || !IsOpeningTag(tag) || tag.Number != 3 {
		t.Fatalf("opening tag round trip failed: %+v %v", tag, err)
	}

	closeTag := ClosingTag(3)
	_, tag, err = DecodeTagNumberAndValue(closeTag)
	if err != nil || !IsClosingTag(tag) || tag.Number != 3 {
		t.Fatalf("closing tag round trip failed: %+v %v", tag, err)
	}
}

func TestDecodeTruncatedBuffer(t *testing.T) {
	if _, _, err := DecodeTagNumberAndValue(nil); err == nil {
		t.Fatal("expected error on empty buffer")
	}
	// Header claims 4 octets of payload but none are present.
	hdr := EncodeTag(2, ClassApplication, 4)
	if _, _, err := DecodeApplicationData(hdr); err == nil {
		t.Fatal("expected truncated error")
	}
}
