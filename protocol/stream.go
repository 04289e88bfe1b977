package protocol

import (
	"bytes"
	"fmt"
	"io"
	"slices"
)

// Limits constrains how a record is read from a stream.
type Limits struct {
	// ChunkSize is the most bytes requested from the reader per call.
	ChunkSize int
	// MaxPayloadSize is the largest declared length accepted for either payload.
	MaxPayloadSize uint32
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		ChunkSize:      8192,
		MaxPayloadSize: DefaultMaxPayloadSize,
	}
}

func (l Limits) normalize() Limits {
	def := DefaultLimits()
	if l.ChunkSize <= 0 {
		l.ChunkSize = def.ChunkSize
	}
	if l.MaxPayloadSize == 0 {
		l.MaxPayloadSize = def.MaxPayloadSize
	}
	return l
}

// WriteRecord encodes the record into a pooled buffer and writes it out,
// retrying short writes until every byte is sent.
func WriteRecord(w io.Writer, r *Record) error {
	buf := GetBufferWithSize(r.Size())
	defer PutBuffer(buf)

	if err := r.encodeTo(buf); err != nil {
		return err
	}

	if err := WriteFull(w, buf.Bytes()); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// ReadRecord reads one complete record. The header is checked against limits
// before any payload byte is read, and payload buffers grow with received
// data rather than with the declared length.
func ReadRecord(r io.Reader, limits Limits) (*Record, error) {
	limits = limits.normalize()

	var raw [HeaderLen]byte
	if n, err := readChunked(r, raw[:], limits.ChunkSize); err != nil {
		return nil, fmt.Errorf("%w: got %d of %d bytes: %w", ErrIncompleteHeader, n, HeaderLen, err)
	}

	header, err := DecodeHeader(raw[:])
	if err != nil {
		return nil, err
	}
	if header.Reserved != Reserved {
		return nil, fmt.Errorf("%w: unsupported reserved byte %d", ErrMalformedHeader, header.Reserved)
	}
	if header.Length1 > limits.MaxPayloadSize || header.Length2 > limits.MaxPayloadSize {
		return nil, fmt.Errorf("%w: declared %d/%d bytes, limit %d",
			ErrPayloadTooLarge, header.Length1, header.Length2, limits.MaxPayloadSize)
	}

	content1, err := readPayload(r, int(header.Length1), limits.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("%w: payload 1: got %d of %d bytes: %w", ErrStreamRead, len(content1), header.Length1, err)
	}
	content2, err := readPayload(r, int(header.Length2), limits.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("%w: payload 2: got %d of %d bytes: %w", ErrStreamRead, len(content2), header.Length2, err)
	}

	return &Record{Header: header, Content1: content1, Content2: content2}, nil
}

func (r *Record) encodeTo(buf *bytes.Buffer) error {
	header, err := EncodeHeader(int(r.Header.Control), int(r.Header.Format1), int64(len(r.Content1)),
		int(r.Header.Format2), int64(len(r.Content2)))
	if err != nil {
		return err
	}
	buf.Write(header)
	buf.Write(r.Content1)
	buf.Write(r.Content2)
	return nil
}

// readPayload reads exactly length bytes in calls of at most chunkSize bytes.
func readPayload(r io.Reader, length, chunkSize int) ([]byte, error) {
	out := make([]byte, 0, min(length, chunkSize))
	for len(out) < length {
		want := min(chunkSize, length-len(out))
		out = slices.Grow(out, want)
		n, err := r.Read(out[len(out) : len(out)+want])
		out = out[:len(out)+n]
		if len(out) == length {
			break
		}
		if err != nil {
			return out, unexpectedEOF(err)
		}
		if n == 0 {
			// A zero-length read with bytes still owed means the peer is gone.
			return out, io.ErrUnexpectedEOF
		}
	}
	return out, nil
}

// readChunked fills dst in calls of at most chunkSize bytes.
func readChunked(r io.Reader, dst []byte, chunkSize int) (int, error) {
	read := 0
	for read < len(dst) {
		want := min(chunkSize, len(dst)-read)
		n, err := r.Read(dst[read : read+want])
		read += n
		if read == len(dst) {
			break
		}
		if err != nil {
			return read, unexpectedEOF(err)
		}
		if n == 0 {
			return read, io.ErrUnexpectedEOF
		}
	}
	return read, nil
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// WriteFull writes all of b, looping over short writes. A write that makes no
// progress without reporting an error fails with ErrShortWrite.
func WriteFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		b = b[n:]
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrShortWrite
		}
	}
	return nil
}
