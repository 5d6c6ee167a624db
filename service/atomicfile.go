package service

import (
	"github.com/caio-sobreiro/bacnetstack/bnerror"
	"github.com/caio-sobreiro/bacnetstack/encoding"
)

// AtomicReadFileRequest is the AtomicReadFile-Request argument list,
// per ASHRAE 135 clause 14.1. Only stream access is implemented;
// record access (for structured/record-oriented files) is out of
// scope since no in-scope object type uses it, and decoding one
// makes DecodeAtomicReadFileRequest return bnerror.ErrInvalidTag.
type AtomicReadFileRequest struct {
	ObjectType        uint16
	ObjectInstance    uint32
	FileStartPosition int32
	RequestedOctets   uint32
}

// EncodeAtomicReadFileRequest builds a stream-access
// AtomicReadFile-Request payload: the file's objectIdentifier
// (application-tagged, per ASHRAE 135 clause 14.1) followed by the
// streamAccess CHOICE (context tag 0) wrapping fileStartPosition and
// requestedOctetCount.
func EncodeAtomicReadFileRequest(req AtomicReadFileRequest) []byte {
	out := encoding.EncodeApplicationData(nil, encoding.ApplicationValue{
		Kind:   encoding.KindObjectID,
		Object: encoding.ObjectID{ObjectType: req.ObjectType, Instance: req.ObjectInstance},
	})
	out = append(out, encoding.OpeningTag(0)...)
	out = encoding.EncodeApplicationData(out, encoding.ApplicationValue{Kind: encoding.KindSignedInt, Signed: req.FileStartPosition})
	out = encoding.EncodeApplicationData(out, encoding.ApplicationValue{Kind: encoding.KindUnsignedInt, Unsigned: req.RequestedOctets})
	out = append(out, encoding.ClosingTag(0)...)
	return out
}

// DecodeAtomicReadFileRequest parses a stream-access
// AtomicReadFile-Request. A record-access request (choice tag 1) is
// reported as bnerror.ErrInvalidTag since this core only serves
// stream-access files.
func DecodeAtomicReadFileRequest(buf []byte) (AtomicReadFileRequest, error) {
	var req AtomicReadFileRequest

	n, v, err := encoding.DecodeApplicationData(buf)
	if err != nil {
		return req, err
	}
	req.ObjectType, req.ObjectInstance = v.Object.ObjectType, v.Object.Instance
	buf = buf[n:]

	consumed, openTag, err := encoding.DecodeTagNumberAndValue(buf)
	if err != nil {
		return req, err
	}
	if !encoding.IsOpeningTag(openTag) || openTag.Number != 0 {
		return req, bnerror.ErrInvalidTag
	}
	buf = buf[consumed:]

	n, start, err := encoding.DecodeApplicationData(buf)
	if err != nil {
		return req, err
	}
	req.FileStartPosition = start.Signed
	buf = buf[n:]

	_, count, err := encoding.DecodeApplicationData(buf)
	if err != nil {
		return req, err
	}
	req.RequestedOctets = count.Unsigned
	return req, nil
}

// AtomicReadFileAck is the stream-access AtomicReadFile-ACK reply.
type AtomicReadFileAck struct {
	EndOfFile         bool
	FileStartPosition int32
	FileData          []byte
}

func EncodeAtomicReadFileAck(ack AtomicReadFileAck) []byte {
	out := encoding.EncodeApplicationData(nil, encoding.ApplicationValue{Kind: encoding.KindBoolean, Bool: ack.EndOfFile})
	out = append(out, encoding.OpeningTag(0)...)
	out = encoding.EncodeApplicationData(out, encoding.ApplicationValue{Kind: encoding.KindSignedInt, Signed: ack.FileStartPosition})
	out = encoding.EncodeApplicationData(out, encoding.ApplicationValue{Kind: encoding.KindOctetString, Octets: ack.FileData})
	out = append(out, encoding.ClosingTag(0)...)
	return out
}

func DecodeAtomicReadFileAck(buf []byte) (AtomicReadFileAck, error) {
	var ack AtomicReadFileAck

	n, v, err := encoding.DecodeApplicationData(buf)
	if err != nil {
		return ack, err
	}
	ack.EndOfFile = v.Bool
	buf = buf[n:]

	consumed, openTag, err := encoding.DecodeTagNumberAndValue(buf)
	if err != nil {
		return ack, err
	}
	if !encoding.IsOpeningTag(openTag) {
		return ack, bnerror.ErrInvalidTag
	}
	buf = buf[consumed:]

	n, start, err := encoding.DecodeApplicationData(buf)
	if err != nil {
		return ack, err
	}
	ack.FileStartPosition = start.Signed
	buf = buf[n:]

	_, data, err := encoding.DecodeApplicationData(buf)
	if err != nil {
		return ack, err
	}
	ack.FileData = data.Octets
	return ack, nil
}
