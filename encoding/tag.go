// Package encoding implements the BACnet application-layer TLV codec:
// tag headers (this file), primitive values, and the tagged ApplicationValue
// union (value.go). It generalizes an explicit-VR little-endian element
// codec to BACnet's tag-number/class/length-value-type header.
package encoding

import (
	"encoding/binary"

	"github.com/caio-sobreiro/bacnetstack/bnerror"
)

// Tag carries (tag_number, class, length_value_type)
type Tag struct {
	Number uint8
	Class TagClass
	LVT uint32
}

// TagClass mirrors types.TagClass without importing types, to keep this
// package leaf-level: it has no dependency on the sibling enum package.
type TagClass uint8

const (
	ClassApplication TagClass = 0
	ClassContext TagClass = 1
)

const (
	lvtOpening uint32 = 6
	lvtClosing uint32 = 7
)

// Application tag numbers (ASHRAE 135 clause 20.2.1.3.1), duplicated from
// types.Tag* here so this package stays leaf-level (no import of the
// sibling enum package).
const (
	TagNull = 0
	TagBoolean = 1
	TagUnsignedInt = 2
	TagSignedInt = 3
	TagReal = 4
	TagDouble = 5
	TagOctetString = 6
	TagCharacterString = 7
	TagBitString = 8
	TagEnumerated = 9
	TagDate = 10
	TagTime = 11
	TagObjectID = 12
)

// EncodeTag emits the 1..7 octet tag header. Extended lengths 5..253
// use the one-octet form, 254..65534 the 254-prefixed two-octet form,
// and 65535 and above the 255-prefixed four-octet form.
func EncodeTag(tagNumber uint8, class TagClass, lvt uint32) []byte {
	buf := make([]byte, 0, 7)

	var header byte
	if tagNumber <= 14 {
		header = byte(tagNumber) << 4
	} else {
		header = 0xF0
	}
	if class == ClassContext {
		header |= 0x08
	}

	switch {
	case lvt == lvtOpening || lvt == lvtClosing:
		header |= byte(lvt)
	case lvt <= 4:
		header |= byte(lvt)
	default:
		header |= 0x05
	}

	buf = append(buf, header)

	if tagNumber > 14 {
		buf = append(buf, tagNumber)
	}

	if lvt != lvtOpening && lvt != lvtClosing && lvt > 4 {
		switch {
		case lvt < 254:
			buf = append(buf, byte(lvt))
		case lvt < 0xFFFF:
			var b [2]byte
			binary.BigEndian.PutUint16(b[:], uint16(lvt))
			buf = append(buf, 254)
			buf = append(buf, b[:]...)
		default:
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], lvt)
			buf = append(buf, 255)
			buf = append(buf, b[:]...)
		}
	}

	return buf
}

// OpeningTag encodes a context-tagged constructed opening marker
// (tag_number, class=context, lvt=6).
func OpeningTag(tagNumber uint8) []byte {
	return EncodeTag(tagNumber, ClassContext, lvtOpening)
}

// ClosingTag encodes the matching closing marker (lvt=7).
func ClosingTag(tagNumber uint8) []byte {
	return EncodeTag(tagNumber, ClassContext, lvtClosing)
}

// DecodeTagNumberAndValue parses the tag header at the start of buf,
// returning the number of bytes consumed, the decoded Tag, and an error
// if buf is too short to hold a legal header.
func DecodeTagNumberAndValue(buf []byte) (consumed int, tag Tag, err error) {
	if len(buf) < 1 {
		return 0, Tag{}, bnerror.ErrTruncated
	}

	header := buf[0]
	tagNumber := uint8(header >> 4)
	class := TagClass((header >> 3) & 0x01)
	lvtField := uint32(header & 0x07)

	offset := 1

	if tagNumber == 0x0F {
		if len(buf) < offset+1 {
			return 0, Tag{}, bnerror.ErrTruncated
		}
		tagNumber = buf[offset]
		offset++
	}

	var lvt uint32
	switch lvtField {
	case lvtOpening, lvtClosing:
		lvt = lvtField
	case 5:
		if len(buf) < offset+1 {
			return 0, Tag{}, bnerror.ErrTruncated
		}
		switch buf[offset] {
		case 254:
			if len(buf) < offset+3 {
				return 0, Tag{}, bnerror.ErrTruncated
			}
			lvt = uint32(binary.BigEndian.Uint16(buf[offset+1 : offset+3]))
			offset += 3
		case 255:
			if len(buf) < offset+5 {
				return 0, Tag{}, bnerror.ErrTruncated
			}
			lvt = binary.BigEndian.Uint32(buf[offset+1 : offset+5])
			offset += 5
		default:
			lvt = uint32(buf[offset])
			offset++
		}
	default:
		lvt = lvtField
	}

	return offset, Tag{Number: tagNumber, Class: class, LVT: lvt}, nil
}

// IsOpeningTag reports whether tag is a context opening marker.
func IsOpeningTag(tag Tag) bool {
	return tag.Class == ClassContext && tag.LVT == lvtOpening
}

// IsClosingTag reports whether tag is a context closing marker.
func IsClosingTag(tag Tag) bool {
	return tag.Class == ClassContext && tag.LVT == lvtClosing
}
