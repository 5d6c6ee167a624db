// Package service implements the per-service encode/decode function
// pairs, built on the encoding package's tag/value layer. Each service
// is a pure function pair with no I/O: pure (de)serializers consumed by
// the higher-level dispatch/registry layer rather than stateful
// client/server types.
package service

import (
	"github.com/caio-sobreiro/bacnetstack/bnerror"
	"github.com/caio-sobreiro/bacnetstack/encoding"
	"github.com/caio-sobreiro/bacnetstack/types"
)

func encodeObjectIDContext(dst []byte, contextTag uint8, objectType uint16, instance uint32) []byte {
	return encoding.EncodeContextData(dst, contextTag, encoding.ApplicationValue{
		Kind: encoding.KindObjectID,
		Object: encoding.ObjectID{ObjectType: objectType, Instance: instance},
	})
}

func decodeObjectIDContext(buf []byte, contextTag uint8) (consumed int, objectType uint16, instance uint32, err error) {
	consumed, v, err := encoding.DecodeContextData(buf, encoding.KindObjectID)
	if err != nil {
		return 0, 0, 0, err
	}
	return consumed, v.Object.ObjectType, v.Object.Instance, nil
}

func encodeEnumeratedContext(dst []byte, contextTag uint8, value uint32) []byte {
	return encoding.EncodeContextData(dst, contextTag, encoding.ApplicationValue{Kind: encoding.KindEnumerated, Enum: value})
}

func decodeEnumeratedContext(buf []byte) (consumed int, value uint32, err error) {
	consumed, v, err := encoding.DecodeContextData(buf, encoding.KindEnumerated)
	if err != nil {
		return 0, 0, err
	}
	return consumed, v.Enum, nil
}

func encodeUnsignedContext(dst []byte, contextTag uint8, value uint32) []byte {
	return encoding.EncodeContextData(dst, contextTag, encoding.ApplicationValue{Kind: encoding.KindUnsignedInt, Unsigned: value})
}

func decodeUnsignedContext(buf []byte) (consumed int, value uint32, err error) {
	consumed, v, err := encoding.DecodeContextData(buf, encoding.KindUnsignedInt)
	if err != nil {
		return 0, 0, err
	}
	return consumed, v.Unsigned, nil
}

func encodeCharacterStringContext(dst []byte, contextTag uint8, s string) []byte {
	return encoding.EncodeContextData(dst, contextTag, encoding.ApplicationValue{
		Kind: encoding.KindCharacterString,
		CharString: encoding.CharacterString{Encoding: types.CharEncodingUTF8, Bytes: []byte(s)},
	})
}

func decodeCharacterStringContext(buf []byte) (consumed int, s string, err error) {
	consumed, v, err := encoding.DecodeContextData(buf, encoding.KindCharacterString)
	if err != nil {
		return 0, "", err
	}
	return consumed, string(v.CharString.Bytes), nil
}

// peekTag reports the tag number and class of the header at
// buf[0], without consuming it, so callers can decide whether an
// optional context field is present.
func peekTag(buf []byte) (encoding.Tag, error) {
	_, tag, err := encoding.DecodeTagNumberAndValue(buf)
	if err != nil {
		return encoding.Tag{}, err
	}
	return tag, nil
}

// hasContextTag reports whether buf begins with a context tag numbered
// contextTag (used to detect optional fields positionally, the way
// ASHRAE 135's service ASN.1 defines optional SEQUENCE members).
func hasContextTag(buf []byte, contextTag uint8) bool {
	if len(buf) == 0 {
		return false
	}
	tag, err := peekTag(buf)
	if err != nil {
		return false
	}
	return tag.Class == encoding.ClassContext && tag.Number == contextTag
}

var errMalformed = bnerror.NewRejectError(bnerror.RejectInvalidTag)
