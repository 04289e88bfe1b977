package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/neutralts/nipc/config"
	"github.com/neutralts/nipc/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// expired is used to unblock pending I/O when an exchange is canceled
var expired = time.Unix(1, 0)

// Dialer opens the connection for one exchange. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, network, address string) (net.Conn, error)

func (f DialerFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

// Option configures a Transport.
type Option func(*Transport)

// WithDialer replaces the default TCP dialer.
func WithDialer(d Dialer) Option {
	return func(t *Transport) {
		t.dialer = d
	}
}

// WithLogger sets the logger used for exchange diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithMaxPayloadSize bounds the payload lengths accepted from the peer.
func WithMaxPayloadSize(size uint32) Option {
	return func(t *Transport) {
		t.limits.MaxPayloadSize = size
	}
}

// Transport performs request/response exchanges with the rendering peer.
// Every exchange uses its own connection, so a Transport is safe for
// concurrent use and holds no state between exchanges.
type Transport struct {
	cfg    config.IPC
	dialer Dialer
	limits protocol.Limits
	logger zerolog.Logger
}

// New creates a Transport for the given configuration.
func New(cfg config.IPC, opts ...Option) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ipc config: %w", err)
	}

	t := &Transport{
		cfg:    cfg,
		dialer: &net.Dialer{},
		limits: protocol.Limits{
			ChunkSize:      cfg.BufferSize,
			MaxPayloadSize: protocol.DefaultMaxPayloadSize,
		},
		logger: log.With().Str("com", "ipc-transport").Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Config returns the configuration the transport was built with.
func (t *Transport) Config() config.IPC {
	return t.cfg
}

// Exchange connects, sends req, reads one response record and closes the
// connection. The configured timeout is a single deadline for the whole
// exchange; an earlier ctx deadline takes precedence, and canceling ctx
// aborts pending I/O.
func (t *Transport) Exchange(ctx context.Context, req protocol.Request) (*protocol.Response, error) {
	raw, err := req.Record().MarshalBinary()
	if err != nil {
		return nil, err
	}

	addr := t.cfg.Address()
	logger := t.logger.With().
		Str("exchange_id", uuid.NewString()).
		Str("addr", addr).
		Stringer("op", req.Op).
		Logger()

	start := time.Now()
	deadline := start.Add(t.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	conn, err := t.dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		logger.Debug().Err(err).Msg("dial failed")
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, addr, classify(dialCtx, err))
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: set deadline: %w", ErrConnect, err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(expired)
	})
	defer stop()

	if err := protocol.WriteFull(conn, raw); err != nil {
		logger.Debug().Err(err).Msg("send failed")
		return nil, fmt.Errorf("%w: %w", ErrSend, classify(ctx, err))
	}

	rec, err := protocol.ReadRecord(conn, t.limits)
	if err != nil {
		logger.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("receive failed")
		return nil, classify(ctx, err)
	}

	logger.Debug().
		Int("sent", len(raw)).
		Int("received", rec.Size()).
		Uint8("control", rec.Header.Control).
		Dur("elapsed", time.Since(start)).
		Msg("exchange completed")

	resp := rec.Response()
	return &resp, nil
}
