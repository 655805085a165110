package server_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/behaviorlab/crowdsim/internal/app"
	"github.com/behaviorlab/crowdsim/internal/server"
	"github.com/behaviorlab/crowdsim/internal/testutil"
)

func TestListenAndServeShutsDownOnCancel(t *testing.T) {
	logBuffer := &testutil.SafeBuffer{}
	a := app.New(logBuffer, app.Config{ExpRoot: t.TempDir(), LogFormat: "text", LogLevel: "debug"})
	srv := server.New(a, t.TempDir(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down after cancellation")
	}
	assert.Contains(t, logBuffer.String(), "API server shutting down")
}
