package session

import (
	"errors"
	"fmt"

	"github.com/neutralts/nipc/protocol"
)

var (
	// ErrProtocol matches every *ProtocolError
	ErrProtocol      = errors.New("ipc: protocol error")
	ErrInvalidSchema = errors.New("ipc: schema must be a JSON object")
)

// ProtocolError reports a response that was received in full but cannot be
// accepted: a failure status, an unexpected format, or undecodable metadata.
type ProtocolError struct {
	Status protocol.Status
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("ipc: protocol error (status %s): %s", e.Status, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
