package run

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestStub_StopsWithCommandContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	Cmd.SetOut(&bytes.Buffer{})
	Cmd.SetErr(&bytes.Buffer{})
	Cmd.SetArgs([]string{"stub", "--listen", "127.0.0.1:0"})

	done := make(chan error, 1)
	go func() { done <- Cmd.ExecuteContext(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stub did not stop after the context was canceled")
	}
}
