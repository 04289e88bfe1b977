package protocol

import "fmt"

// Record header layout, version 0:
// [1 byte reserved][1 byte control][1 byte format-1][4 bytes length-1][1 byte format-2][4 bytes length-2]
// All integers are unsigned big endian. Payload 1 and payload 2 follow the header back to back.
const (
	HeaderLen = 12

	// Reserved is the only reserved byte value understood by this version.
	Reserved = 0

	// MaxContentLength is the largest length a 4 byte length field can carry.
	MaxContentLength = 1<<32 - 1

	// DefaultMaxPayloadSize bounds a single declared payload length on read.
	DefaultMaxPayloadSize = 64 * 1024 * 1024
)

// Operation is the request meaning of the control byte.
type Operation byte

const (
	OpParseTemplate Operation = 10 // Render a template against a schema
)

func (o Operation) String() string {
	switch o {
	case OpParseTemplate:
		return "parse-template"
	default:
		return fmt.Sprintf("operation(%d)", byte(o))
	}
}

// Status is the response meaning of the control byte.
type Status byte

const (
	StatusOK Status = 0
	StatusKO Status = 1
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusKO:
		return "ko"
	default:
		return fmt.Sprintf("status(%d)", byte(s))
	}
}

// Format identifies how a payload section is interpreted.
type Format byte

const (
	FormatJSON   Format = 10 // Structured data as JSON text
	FormatPath   Format = 20 // File path text
	FormatText   Format = 30 // Plain text
	FormatBinary Format = 40 // Opaque bytes
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatPath:
		return "path"
	case FormatText:
		return "text"
	case FormatBinary:
		return "binary"
	default:
		return fmt.Sprintf("format(%d)", byte(f))
	}
}

// Known reports whether f is one of the defined content formats.
func (f Format) Known() bool {
	switch f {
	case FormatJSON, FormatPath, FormatText, FormatBinary:
		return true
	}
	return false
}

// IsText reports whether payloads of this format must be valid UTF-8.
func (f Format) IsText() bool {
	return f == FormatJSON || f == FormatPath || f == FormatText
}

// Header is the decoded fixed-width record header
type Header struct {
	Reserved byte
	Control  byte
	Format1  Format
	Length1  uint32
	Format2  Format
	Length2  uint32
}

// Record is one complete protocol message in wire form.
type Record struct {
	Header   Header
	Content1 []byte
	Content2 []byte
}

// Request is a record sent by the client
type Request struct {
	Op       Operation
	Format1  Format
	Content1 string
	Format2  Format
	Content2 string
}

// Record converts the request to its wire form.
func (r Request) Record() *Record {
	return &Record{
		Header: Header{
			Control: byte(r.Op),
			Format1: r.Format1,
			Length1: uint32(len(r.Content1)),
			Format2: r.Format2,
			Length2: uint32(len(r.Content2)),
		},
		Content1: []byte(r.Content1),
		Content2: []byte(r.Content2),
	}
}

// Response is a record returned by the rendering peer
type Response struct {
	Status   Status
	Format1  Format
	Content1 []byte
	Format2  Format
	Content2 []byte
}

// Record converts the response to its wire form.
func (r Response) Record() *Record {
	return &Record{
		Header: Header{
			Control: byte(r.Status),
			Format1: r.Format1,
			Length1: uint32(len(r.Content1)),
			Format2: r.Format2,
			Length2: uint32(len(r.Content2)),
		},
		Content1: r.Content1,
		Content2: r.Content2,
	}
}

// Request interprets the record control byte as an operation.
func (r *Record) Request() Request {
	return Request{
		Op:       Operation(r.Header.Control),
		Format1:  r.Header.Format1,
		Content1: string(r.Content1),
		Format2:  r.Header.Format2,
		Content2: string(r.Content2),
	}
}

// Response interprets the record control byte as a status.
func (r *Record) Response() Response {
	return Response{
		Status:   Status(r.Header.Control),
		Format1:  r.Header.Format1,
		Content1: r.Content1,
		Format2:  r.Header.Format2,
		Content2: r.Content2,
	}
}

// Size returns the number of bytes the record occupies on the wire.
func (r *Record) Size() int {
	return HeaderLen + len(r.Content1) + len(r.Content2)
}
