package encoding

import "github.com/caio-sobreiro/bacnetstack/bnerror"

// EncodeApplicationData appends the application-tagged encoding of v to
// dst and returns the extended sliceB. Boolean is the
// one primitive whose value lives in the tag header's LVT field rather
// than a payload.
func EncodeApplicationData(dst []byte, v ApplicationValue) []byte {
	switch v.Kind {
	case KindNull:
		return append(dst, EncodeTag(TagNull, ClassApplication, 0)...)
	case KindBoolean:
		lvt := uint32(0)
		if v.Bool {
			lvt = 1
		}
		return append(dst, EncodeTag(TagBoolean, ClassApplication, lvt)...)
	case KindUnsignedInt:
		payload := EncodeUnsigned(v.Unsigned)
		dst = append(dst, EncodeTag(TagUnsignedInt, ClassApplication, uint32(len(payload)))...)
		return append(dst, payload...)
	case KindSignedInt:
		payload := EncodeSigned(v.Signed)
		dst = append(dst, EncodeTag(TagSignedInt, ClassApplication, uint32(len(payload)))...)
		return append(dst, payload...)
	case KindReal:
		payload := EncodeReal(v.Real)
		dst = append(dst, EncodeTag(TagReal, ClassApplication, uint32(len(payload)))...)
		return append(dst, payload...)
	case KindDouble:
		payload := EncodeDouble(v.Double)
		dst = append(dst, EncodeTag(TagDouble, ClassApplication, uint32(len(payload)))...)
		return append(dst, payload...)
	case KindOctetString:
		dst = append(dst, EncodeTag(TagOctetString, ClassApplication, uint32(len(v.Octets)))...)
		return append(dst, v.Octets...)
	case KindCharacterString:
		payload := EncodeCharacterString(v.CharString)
		dst = append(dst, EncodeTag(TagCharacterString, ClassApplication, uint32(len(payload)))...)
		return append(dst, payload...)
	case KindBitString:
		payload := EncodeBitString(v.Bits)
		dst = append(dst, EncodeTag(TagBitString, ClassApplication, uint32(len(payload)))...)
		return append(dst, payload...)
	case KindEnumerated:
		payload := EncodeUnsigned(v.Enum)
		dst = append(dst, EncodeTag(TagEnumerated, ClassApplication, uint32(len(payload)))...)
		return append(dst, payload...)
	case KindDate:
		payload := EncodeDate(v.Date)
		dst = append(dst, EncodeTag(TagDate, ClassApplication, uint32(len(payload)))...)
		return append(dst, payload...)
	case KindTime:
		payload := EncodeTime(v.Time)
		dst = append(dst, EncodeTag(TagTime, ClassApplication, uint32(len(payload)))...)
		return append(dst, payload...)
	case KindObjectID:
		payload := EncodeObjectID(v.Object)
		dst = append(dst, EncodeTag(TagObjectID, ClassApplication, uint32(len(payload)))...)
		return append(dst, payload...)
	case KindUnknown:
		dst = append(dst, EncodeTag(v.UnknownTagNumber, ClassApplication, uint32(len(v.UnknownPayload)))...)
		return append(dst, v.UnknownPayload...)
	default:
		return dst
	}
}

// DecodeApplicationData decodes one application-tagged value starting at
// buf[0], returning the number of bytes consumed and the value. Unknown
// application tag numbers decode as KindUnknown rather than an error,
// for forward compatibility with tag numbers this core doesn't yet know.
func DecodeApplicationData(buf []byte) (int, ApplicationValue, error) {
	consumed, tag, err := DecodeTagNumberAndValue(buf)
	if err != nil {
		return 0, ApplicationValue{}, err
	}
	if tag.Class != ClassApplication {
		return 0, ApplicationValue{}, bnerror.ErrInvalidTag
	}

	if tag.Number == TagBoolean {
		return consumed, ApplicationValue{Kind: KindBoolean, Bool: tag.LVT != 0}, nil
	}

	length := int(tag.LVT)
	if len(buf) < consumed+length {
		return 0, ApplicationValue{}, bnerror.ErrTruncated
	}
	payload := buf[consumed : consumed+length]
	total := consumed + length

	switch tag.Number {
	case TagNull:
		return total, ApplicationValue{Kind: KindNull}, nil
	case TagUnsignedInt:
		u, err := DecodeUnsigned(payload)
		if err != nil {
			return 0, ApplicationValue{}, err
		}
		return total, ApplicationValue{Kind: KindUnsignedInt, Unsigned: u}, nil
	case TagSignedInt:
		s, err := DecodeSigned(payload)
		if err != nil {
			return 0, ApplicationValue{}, err
		}
		return total, ApplicationValue{Kind: KindSignedInt, Signed: s}, nil
	case TagReal:
		r, err := DecodeReal(payload)
		if err != nil {
			return 0, ApplicationValue{}, err
		}
		return total, ApplicationValue{Kind: KindReal, Real: r}, nil
	case TagDouble:
		d, err := DecodeDouble(payload)
		if err != nil {
			return 0, ApplicationValue{}, err
		}
		return total, ApplicationValue{Kind: KindDouble, Double: d}, nil
	case TagOctetString:
		return total, ApplicationValue{Kind: KindOctetString, Octets: append([]byte(nil), payload...)}, nil
	case TagCharacterString:
		cs, err := DecodeCharacterString(payload)
		if err != nil {
			return 0, ApplicationValue{}, err
		}
		return total, ApplicationValue{Kind: KindCharacterString, CharString: cs}, nil
	case TagBitString:
		bs, err := DecodeBitString(payload)
		if err != nil {
			return 0, ApplicationValue{}, err
		}
		return total, ApplicationValue{Kind: KindBitString, Bits: bs}, nil
	case TagEnumerated:
		e, err := DecodeUnsigned(payload)
		if err != nil {
			return 0, ApplicationValue{}, err
		}
		return total, ApplicationValue{Kind: KindEnumerated, Enum: e}, nil
	case TagDate:
		d, err := DecodeDate(payload)
		if err != nil {
			return 0, ApplicationValue{}, err
		}
		return total, ApplicationValue{Kind: KindDate, Date: d}, nil
	case TagTime:
		t, err := DecodeTime(payload)
		if err != nil {
			return 0, ApplicationValue{}, err
		}
		return total, ApplicationValue{Kind: KindTime, Time: t}, nil
	case TagObjectID:
		o, err := DecodeObjectID(payload)
		if err != nil {
			return 0, ApplicationValue{}, err
		}
		return total, ApplicationValue{Kind: KindObjectID, Object: o}, nil
	default:
		return total, ApplicationValue{
			Kind: KindUnknown,
			UnknownTagNumber: tag.Number,
			UnknownPayload: append([]byte(nil), payload...),
		}, nil
	}
}

// EncodeContextData appends the context-tagged encoding of v under
// contextTag to dstB. Context-tagged primitives carry
// the same payload format as their application-tagged form, but with
// the class bit flipped and the caller-supplied context number.
func EncodeContextData(dst []byte, contextTag uint8, v ApplicationValue) []byte {
	payload := encodePayload(v)
	dst = append(dst, EncodeTag(contextTag, ClassContext, uint32(len(payload)))...)
	return append(dst, payload...)
}

// DecodeContextData decodes a context-tagged value of the given
// application Kind (the caller must know what was encoded, since context
// tags carry no type information on the wire).
func DecodeContextData(buf []byte, kind Kind) (int, ApplicationValue, error) {
	consumed, tag, err := DecodeTagNumberAndValue(buf)
	if err != nil {
		return 0, ApplicationValue{}, err
	}
	if tag.Class != ClassContext {
		return 0, ApplicationValue{}, bnerror.ErrInvalidTag
	}
	length := int(tag.LVT)
	if len(buf) < consumed+length {
		return 0, ApplicationValue{}, bnerror.ErrTruncated
	}
	payload := buf[consumed : consumed+length]
	v, err := decodePayload(kind, payload)
	return consumed + length, v, err
}

func encodePayload(v ApplicationValue) []byte {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBoolean:
		if v.Bool {
			return []byte{1}
		}
		return []byte{0}
	case KindUnsignedInt:
		return EncodeUnsigned(v.Unsigned)
	case KindSignedInt:
		return EncodeSigned(v.Signed)
	case KindReal:
		return EncodeReal(v.Real)
	case KindDouble:
		return EncodeDouble(v.Double)
	case KindOctetString:
		return v.Octets
	case KindCharacterString:
		return EncodeCharacterString(v.CharString)
	case KindBitString:
		return EncodeBitString(v.Bits)
	case KindEnumerated:
		return EncodeUnsigned(v.Enum)
	case KindDate:
		return EncodeDate(v.Date)
	case KindTime:
		return EncodeTime(v.Time)
	case KindObjectID:
		return EncodeObjectID(v.Object)
	default:
		return nil
	}
}

func decodePayload(kind Kind, payload []byte) (ApplicationValue, error) {
	switch kind {
	case KindNull:
		return ApplicationValue{Kind: KindNull}, nil
	case KindBoolean:
		if len(payload) != 1 {
			return ApplicationValue{}, bnerror.ErrInvalidTag
		}
		return ApplicationValue{Kind: KindBoolean, Bool: payload[0] != 0}, nil
	case KindUnsignedInt:
		u, err := DecodeUnsigned(payload)
		return ApplicationValue{Kind: KindUnsignedInt, Unsigned: u}, err
	case KindSignedInt:
		s, err := DecodeSigned(payload)
		return ApplicationValue{Kind: KindSignedInt, Signed: s}, err
	case KindReal:
		r, err := DecodeReal(payload)
		return ApplicationValue{Kind: KindReal, Real: r}, err
	case KindDouble:
		d, err := DecodeDouble(payload)
		return ApplicationValue{Kind: KindDouble, Double: d}, err
	case KindOctetString:
		return ApplicationValue{Kind: KindOctetString, Octets: append([]byte(nil), payload...)}, nil
	case KindCharacterString:
		cs, err := DecodeCharacterString(payload)
		return ApplicationValue{Kind: KindCharacterString, CharString: cs}, err
	case KindBitString:
		bs, err := DecodeBitString(payload)
		return ApplicationValue{Kind: KindBitString, Bits: bs}, err
	case KindEnumerated:
		e, err := DecodeUnsigned(payload)
		return ApplicationValue{Kind: KindEnumerated, Enum: e}, err
	case KindDate:
		d, err := DecodeDate(payload)
		return ApplicationValue{Kind: KindDate, Date: d}, err
	case KindTime:
		t, err := DecodeTime(payload)
		return ApplicationValue{Kind: KindTime, Time: t}, err
	case KindObjectID:
		o, err := DecodeObjectID(payload)
		return ApplicationValue{Kind: KindObjectID, Object: o}, err
	default:
		return ApplicationValue{}, bnerror.ErrInvalidTag
	}
}
