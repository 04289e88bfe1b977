package protocol

import "errors"

var (
	ErrEncoding         = errors.New("ipc: header field out of range")
	ErrMalformedHeader  = errors.New("ipc: malformed header")
	ErrIncompleteHeader = errors.New("ipc: incomplete header received")
	ErrStreamRead       = errors.New("ipc: error reading from stream")
	ErrShortWrite       = errors.New("ipc: short write")
	ErrPayloadTooLarge  = errors.New("ipc: payload too large")
	ErrInvalidUTF8      = errors.New("ipc: invalid utf-8 in text payload")
	ErrUnknownFormat    = errors.New("ipc: unknown content format")
)
