package server

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neutralts/nipc/client"
	"github.com/neutralts/nipc/config"
	"github.com/neutralts/nipc/protocol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestMain ensures no goroutine leaks across all tests in this package
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startServer runs a server on a random local port until the test ends.
func startServer(t *testing.T, handler Handler) *client.Transport {
	t.Helper()

	srv := New("127.0.0.1:0", handler, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Listen(ctx))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, srv.Serve(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	cfg := config.Default()
	cfg.Port = srv.Addr().(*net.TCPAddr).Port
	cfg.Timeout = 2 * time.Second
	transport, err := client.New(cfg, client.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return transport
}

func TestServe_StubHandler(t *testing.T) {
	transport := startServer(t, StubHandler())

	resp, err := transport.Exchange(context.Background(), protocol.Request{
		Op:       protocol.OpParseTemplate,
		Format1:  protocol.FormatJSON,
		Content1: `{"title":"hi"}`,
		Format2:  protocol.FormatPath,
		Content2: "/tpl/home.tpl",
	})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, resp.Status)
	assert.Equal(t, protocol.FormatJSON, resp.Format1)
	assert.JSONEq(t, `{"has_error":false,"status_code":200,"status_text":"OK","status_param":""}`, string(resp.Content1))
	assert.True(t, strings.HasPrefix(string(resp.Content2), "path: /tpl/home.tpl\n"))
	assert.Contains(t, string(resp.Content2), `"title": "hi"`)
}

func TestServe_StubRejectsUnknownOperation(t *testing.T) {
	transport := startServer(t, StubHandler())

	resp, err := transport.Exchange(context.Background(), protocol.Request{
		Op:      protocol.Operation(99),
		Format1: protocol.FormatJSON,
		Format2: protocol.FormatText,
	})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusKO, resp.Status)
	assert.Contains(t, string(resp.Content1), `"status_code":400`)
}

func TestServe_StubReportsBadSchema(t *testing.T) {
	transport := startServer(t, StubHandler())

	resp, err := transport.Exchange(context.Background(), protocol.Request{
		Op:       protocol.OpParseTemplate,
		Format1:  protocol.FormatJSON,
		Content1: `{"broken":`,
		Format2:  protocol.FormatText,
		Content2: "{:;x:}",
	})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Content1), `"has_error":true`)
}

func TestServe_InvalidRequestPayload(t *testing.T) {
	var called atomic.Bool
	transport := startServer(t, HandlerFunc(func(ctx context.Context, req protocol.Request) protocol.Response {
		called.Store(true)
		return Respond(protocol.StatusOK, Metadata{StatusCode: 200}, "")
	}))

	resp, err := transport.Exchange(context.Background(), protocol.Request{
		Op:       protocol.OpParseTemplate,
		Format1:  protocol.FormatJSON,
		Content1: "{}",
		Format2:  protocol.FormatText,
		Content2: string([]byte{0xff, 0xfe}),
	})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusKO, resp.Status)
	assert.False(t, called.Load())
}

func TestServe_TruncatedRequestIsDropped(t *testing.T) {
	transport := startServer(t, StubHandler())
	addr := transport.Config().Address()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	header, err := protocol.EncodeHeader(int(protocol.OpParseTemplate), int(protocol.FormatJSON), 100, int(protocol.FormatText), 0)
	require.NoError(t, err)
	_, err = conn.Write(append(header, []byte("{}")...))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	// The server closes without answering.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	n, _ := conn.Read(buf)
	assert.Equal(t, 0, n)
	conn.Close()
}

func TestServe_ConcurrentClients(t *testing.T) {
	transport := startServer(t, StubHandler())

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := transport.Exchange(context.Background(), protocol.Request{
				Op:       protocol.OpParseTemplate,
				Format1:  protocol.FormatJSON,
				Content1: `{}`,
				Format2:  protocol.FormatPath,
				Content2: "/tpl/a.tpl",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestServe_NotListening(t *testing.T) {
	srv := New("127.0.0.1:0", StubHandler(), zerolog.Nop())
	assert.Nil(t, srv.Addr())
	assert.Error(t, srv.Serve(context.Background()))
}
