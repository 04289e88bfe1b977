package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/neutralts/nipc/protocol"
)

// Stage errors: where in the exchange a failure happened.
var (
	ErrConnect = errors.New("ipc: connect failed")
	ErrSend    = errors.New("ipc: send failed")

	ErrIncompleteHeader = protocol.ErrIncompleteHeader
	ErrStreamRead       = protocol.ErrStreamRead
)

// Cause errors, matched alongside the stage error when the cause is known.
var (
	ErrTimeout   = errors.New("ipc: deadline exceeded")
	ErrCanceled  = errors.New("ipc: exchange canceled")
	ErrRefused   = errors.New("ipc: connection refused")
	ErrConnReset = errors.New("ipc: connection reset by peer")
	ErrShortRead = errors.New("ipc: peer closed before declared length")
)

// classify attaches a cause error to err when one can be identified.
func classify(ctx context.Context, err error) error {
	cause := causeOf(ctx, err)
	if cause == nil {
		return err
	}
	return fmt.Errorf("%w: %w", cause, err)
}

func causeOf(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.Canceled) {
			return ErrCanceled
		}
		return ErrTimeout
	}

	var netErr net.Error
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ErrTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return ErrConnReset
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return ErrShortRead
	}
	return nil
}
