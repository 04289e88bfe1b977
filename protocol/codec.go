package protocol

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// EncodeHeader packs the six header fields. Control and format values must fit in
// one byte and lengths in four bytes, otherwise ErrEncoding is returned.
func EncodeHeader(control, format1 int, length1 int64, format2 int, length2 int64) ([]byte, error) {
	if err := checkByte("control", control); err != nil {
		return nil, err
	}
	if err := checkByte("format-1", format1); err != nil {
		return nil, err
	}
	if err := checkByte("format-2", format2); err != nil {
		return nil, err
	}
	if err := checkLength("length-1", length1); err != nil {
		return nil, err
	}
	if err := checkLength("length-2", length2); err != nil {
		return nil, err
	}

	h := Header{
		Control: byte(control),
		Format1: Format(format1),
		Length1: uint32(length1),
		Format2: Format(format2),
		Length2: uint32(length2),
	}
	return h.Bytes(), nil
}

// Bytes returns the 12 byte wire form of the header.
func (h Header) Bytes() []byte {
	return h.AppendTo(make([]byte, 0, HeaderLen))
}

// AppendTo appends the wire form of the header to b.
func (h Header) AppendTo(b []byte) []byte {
	b = append(b, h.Reserved, h.Control, byte(h.Format1))
	b = binary.BigEndian.AppendUint32(b, h.Length1)
	b = append(b, byte(h.Format2))
	return binary.BigEndian.AppendUint32(b, h.Length2)
}

// DecodeHeader unpacks the first 12 bytes of b. Control and format codes are
// returned as-is; interpreting them is up to the caller.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: need %d bytes, got %d", ErrMalformedHeader, HeaderLen, len(b))
	}
	return Header{
		Reserved: b[0],
		Control:  b[1],
		Format1:  Format(b[2]),
		Length1:  binary.BigEndian.Uint32(b[3:7]),
		Format2:  Format(b[7]),
		Length2:  binary.BigEndian.Uint32(b[8:12]),
	}, nil
}

// EncodeRecord builds a complete record. Lengths are the UTF-8 byte lengths of the
// contents, not their character counts.
func EncodeRecord(control, format1 int, content1 string, format2 int, content2 string) ([]byte, error) {
	header, err := EncodeHeader(control, format1, int64(len(content1)), format2, int64(len(content2)))
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, HeaderLen+len(content1)+len(content2))
	out = append(out, header...)
	out = append(out, content1...)
	out = append(out, content2...)
	return out, nil
}

// DecodeRecord reassembles a record from a raw header and two payloads that were
// already read to their declared lengths.
func DecodeRecord(header, content1, content2 []byte) (*Record, error) {
	h, err := DecodeHeader(header)
	if err != nil {
		return nil, err
	}
	return &Record{
		Header:   h,
		Content1: content1,
		Content2: content2,
	}, nil
}

// MarshalBinary encodes the record, taking lengths from the payloads.
func (r *Record) MarshalBinary() ([]byte, error) {
	buf := GetBufferWithSize(r.Size())
	defer PutBuffer(buf)

	if err := r.encodeTo(buf); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.Bytes()...), nil
}

// Validate checks that both payload formats are known and that text payloads
// are valid UTF-8.
func (r *Record) Validate() error {
	if err := validatePayload(1, r.Header.Format1, r.Content1); err != nil {
		return err
	}
	return validatePayload(2, r.Header.Format2, r.Content2)
}

func validatePayload(index int, format Format, content []byte) error {
	if !format.Known() {
		return fmt.Errorf("%w: payload %d has format %d", ErrUnknownFormat, index, byte(format))
	}
	if format.IsText() && !utf8.Valid(content) {
		return fmt.Errorf("%w: payload %d (%s)", ErrInvalidUTF8, index, format)
	}
	return nil
}

func checkByte(field string, v int) error {
	if v < 0 || v > 0xFF {
		return fmt.Errorf("%w: %s=%d does not fit in one byte", ErrEncoding, field, v)
	}
	return nil
}

func checkLength(field string, v int64) error {
	if v < 0 || v > MaxContentLength {
		return fmt.Errorf("%w: %s=%d does not fit in four bytes", ErrEncoding, field, v)
	}
	return nil
}
