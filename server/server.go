// Package server implements the peer side of the IPC protocol. It is used to
// run a stub rendering peer for development and tests; it does not render
// templates itself.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/neutralts/nipc/protocol"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultConnTimeout bounds one exchange on the server side
const DefaultConnTimeout = 10 * time.Second

// Handler answers one request.
type Handler interface {
	ServeIPC(ctx context.Context, req protocol.Request) protocol.Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req protocol.Request) protocol.Response

func (f HandlerFunc) ServeIPC(ctx context.Context, req protocol.Request) protocol.Response {
	return f(ctx, req)
}

// Server accepts connections and answers exactly one record per connection.
type Server struct {
	addr    string
	handler Handler
	limits  protocol.Limits
	timeout time.Duration
	logger  zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
}

// New creates a server for addr. Call Listen, then Serve.
func New(addr string, handler Handler, logger zerolog.Logger) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		limits:  protocol.DefaultLimits(),
		timeout: DefaultConnTimeout,
		logger:  logger.With().Str("com", "ipc-server").Logger(),
	}
}

// Listen binds the listening socket.
func (s *Server) Listen(ctx context.Context) error {
	lc := net.ListenConfig{
		Control: setSocketOptions,
	}
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is canceled, then closes the listener
// and waits for in-flight exchanges. It returns nil on cancellation.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("server is not listening")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		return listener.Close()
	})

	g.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if errors.Is(err, net.ErrClosed) {
					return err
				}
				s.logger.Error().Err(err).Msg("accept connection failed")
				continue
			}
			g.Go(func() error {
				s.handleConn(ctx, conn)
				return nil
			})
		}
	})

	err := g.Wait()
	s.logger.Info().Msg("server stopped")
	return err
}

// ListenAndServe binds and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	logger := s.logger.With().Str("remote", conn.RemoteAddr().String()).Logger()
	start := time.Now()

	_ = conn.SetDeadline(start.Add(s.timeout))
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	rec, err := protocol.ReadRecord(conn, s.limits)
	if err != nil {
		logger.Debug().Err(err).Msg("read request failed")
		return
	}

	var resp protocol.Response
	if err := rec.Validate(); err != nil {
		resp = Failure(400, "Bad Request", err.Error())
	} else {
		resp = s.handler.ServeIPC(ctx, rec.Request())
	}

	if err := protocol.WriteRecord(conn, resp.Record()); err != nil {
		logger.Debug().Err(err).Msg("write response failed")
		return
	}

	logger.Debug().
		Uint8("control", rec.Header.Control).
		Stringer("status", resp.Status).
		Dur("elapsed", time.Since(start)).
		Msg("exchange served")
}
