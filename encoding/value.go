package encoding

import (
	"encoding/binary"
	"math"

	"github.com/caio-sobreiro/bacnetstack/bnerror"
)

// Kind discriminates the ApplicationValue union.
type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindUnsignedInt
	KindSignedInt
	KindReal
	KindDouble
	KindOctetString
	KindCharacterString
	KindBitString
	KindEnumerated
	KindDate
	KindTime
	KindObjectID
	KindUnknown // forward-compatible: unrecognized application tag number
)

// Date holds the wire fields, with first-class wildcard
// markers instead of raw 0xFF sentinels at the logic layer.
type Date struct {
	Year WildcardU8 // actual_year - 1900
	Month WildcardU8 // 1..12, 13=odd months, 14=even months
	Day WildcardU8 // 1..31, 32=last day, 33=odd days, 34=even days
	DayOfWeek WildcardU8 // 1=Monday..7=Sunday
}

// Time holds the wire fields.
type Time struct {
	Hour WildcardU8
	Minute WildcardU8
	Second WildcardU8
	Hundredths WildcardU8
}

// WildcardU8 is a byte-sized field that may be the wire wildcard (0xFF).
type WildcardU8 struct {
	Value uint8
	Wild bool
}

func W(v uint8) WildcardU8 { return WildcardU8{Value: v} }
func Wildcard() WildcardU8 { return WildcardU8{Wild: true} }

func (w WildcardU8) encode() byte {
	if w.Wild {
		return 0xFF
	}
	return w.Value
}

func decodeWildcardU8(b byte) WildcardU8 {
	if b == 0xFF {
		return Wildcard()
	}
	return W(b)
}

// ObjectID is the (object_type, instance) pair, per ASHRAE 135 clause 6.3.
type ObjectID struct {
	ObjectType uint16 // 10 bits
	Instance uint32 // 22 bits
}

// CharacterString carries one of the six encodings, per ASHRAE 135 clause 3.6.
type CharacterString struct {
	Encoding uint8
	Bytes []byte
}

// BitString carries the number of significant bits and the packed octets,
// per ASHRAE 135 clause 3.6.
type BitString struct {
	BitsUsed uint16
	Bytes []byte
}

// ApplicationValue is the tagged union over every BACnet primitive type.
// Exactly one of the typed fields is meaningful, selected by Kind: an
// exhaustively-matched sum type rather than an interface{} payload.
type ApplicationValue struct {
	Kind Kind

	Bool bool
	Unsigned uint32
	Signed int32
	Real float32
	Double float64
	Octets []byte
	CharString CharacterString
	Bits BitString
	Enum uint32
	Date Date
	Time Time
	Object ObjectID

	// UnknownTagNumber/UnknownPayload hold the raw tag and bytes of a
	// value whose application tag number we don't recognize: decoding
	// such a value must not error, so the caller can forward it
	// unmodified instead of dropping or rejecting the whole APDU.
	UnknownTagNumber uint8
	UnknownPayload []byte
}

// --- unsigned integer ---

// EncodeUnsigned emits the minimal 1..4 octet big-endian encoding of v.
func EncodeUnsigned(v uint32) []byte {
	switch {
	case v <= 0xFF:
		return []byte{byte(v)}
	case v <= 0xFFFF:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(v))
		return b
	case v <= 0xFFFFFF:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, v)
		return b
	}
}

// DecodeUnsigned decodes a 1..4 octet big-endian unsigned integer.
func DecodeUnsigned(b []byte) (uint32, error) {
	switch len(b) {
	case 0:
		return 0, bnerror.ErrTruncated
	case 1:
		return uint32(b[0]), nil
	case 2:
		return uint32(binary.BigEndian.Uint16(b)), nil
	case 3:
		return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
	case 4:
		return binary.BigEndian.Uint32(b), nil
	default:
		return 0, bnerror.ErrInvalidTag
	}
}

// --- signed integer ---

// EncodeSigned emits the minimal two's-complement 1..4 octet big-endian
// encoding of v, dropping leading 0x00/0xFF octets only when the
// following octet's sign bit still agrees — A's
// sign-preserving minimal form.
func EncodeSigned(v int32) []byte {
	full := make([]byte, 4)
	binary.BigEndian.PutUint32(full, uint32(v))

	n := 0
	for n < 3 {
		b := full[n]
		next := full[n+1]
		if b == 0x00 && next&0x80 == 0 {
			n++
			continue
		}
		if b == 0xFF && next&0x80 != 0 {
			n++
			continue
		}
		break
	}
	return full[n:]
}

// DecodeSigned sign-extends a 1..4 octet two's-complement big-endian
// integer to int32.
func DecodeSigned(b []byte) (int32, error) {
	n := len(b)
	if n == 0 || n > 4 {
		return 0, bnerror.ErrInvalidTag
	}
	var v int32
	if b[0]&0x80 != 0 {
		v = -1 // sign-extend with all 1s
	}
	for _, c := range b {
		v = (v << 8) | int32(c)
	}
	return v, nil
}

// --- real / double ---

func EncodeReal(v float32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, math.Float32bits(v))
	return b
}

func DecodeReal(b []byte) (float32, error) {
	if len(b) != 4 {
		return 0, bnerror.ErrInvalidTag
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
}

func EncodeDouble(v float64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	return b
}

func DecodeDouble(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, bnerror.ErrInvalidTag
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// --- object identifier ---

func EncodeObjectID(o ObjectID) []byte {
	packed := (uint32(o.ObjectType&0x3FF) << 22) | (o.Instance & 0x3FFFFF)
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, packed)
	return b
}

func DecodeObjectID(b []byte) (ObjectID, error) {
	if len(b) != 4 {
		return ObjectID{}, bnerror.ErrInvalidTag
	}
	packed := binary.BigEndian.Uint32(b)
	return ObjectID{
		ObjectType: uint16(packed >> 22 & 0x3FF),
		Instance: packed & 0x3FFFFF,
	}, nil
}

// --- date / time ---

func EncodeDate(d Date) []byte {
	return []byte{d.Year.encode(), d.Month.encode(), d.Day.encode(), d.DayOfWeek.encode()}
}

func DecodeDate(b []byte) (Date, error) {
	if len(b) != 4 {
		return Date{}, bnerror.ErrInvalidTag
	}
	return Date{
		Year: decodeWildcardU8(b[0]),
		Month: decodeWildcardU8(b[1]),
		Day: decodeWildcardU8(b[2]),
		DayOfWeek: decodeWildcardU8(b[3]),
	}, nil
}

func EncodeTime(t Time) []byte {
	return []byte{t.Hour.encode(), t.Minute.encode(), t.Second.encode(), t.Hundredths.encode()}
}

func DecodeTime(b []byte) (Time, error) {
	if len(b) != 4 {
		return Time{}, bnerror.ErrInvalidTag
	}
	return Time{
		Hour: decodeWildcardU8(b[0]),
		Minute: decodeWildcardU8(b[1]),
		Second: decodeWildcardU8(b[2]),
		Hundredths: decodeWildcardU8(b[3]),
	}, nil
}

// --- character string / bit string ---

func EncodeCharacterString(s CharacterString) []byte {
	out := make([]byte, 0, len(s.Bytes)+1)
	out = append(out, s.Encoding)
	out = append(out, s.Bytes...)
	return out
}

func DecodeCharacterString(b []byte) (CharacterString, error) {
	if len(b) < 1 {
		return CharacterString{}, bnerror.ErrTruncated
	}
	return CharacterString{Encoding: b[0], Bytes: append([]byte(nil), b[1:]...)}, nil
}

func EncodeBitString(bs BitString) []byte {
	unused := 0
	if len(bs.Bytes) > 0 {
		unused = len(bs.Bytes)*8 - int(bs.BitsUsed)
	}
	out := make([]byte, 0, len(bs.Bytes)+1)
	out = append(out, byte(unused))
	out = append(out, bs.Bytes...)
	return out
}

func DecodeBitString(b []byte) (BitString, error) {
	if len(b) < 1 {
		return BitString{}, bnerror.ErrTruncated
	}
	unused := int(b[0])
	payload := b[1:]
	bitsUsed := 0
	if len(payload) > 0 {
		bitsUsed = len(payload)*8 - unused
	}
	if bitsUsed < 0 {
		return BitString{}, bnerror.ErrInvalidTag
	}
	return BitString{BitsUsed: uint16(bitsUsed), Bytes: append([]byte(nil), payload...)}, nil
}
