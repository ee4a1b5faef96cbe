package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunServerClosesSessionWhenListenFails(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	closed := 0
	srv := &http.Server{Addr: busy.Addr().String(), Handler: http.NotFoundHandler()}
	err = runServer(srv, make(chan os.Signal), func(context.Context) error {
		closed++
		return nil
	}, zap.NewNop())

	require.Error(t, err)
	assert.Equal(t, 1, closed)
}

func TestRunServerClosesSessionOnSignal(t *testing.T) {
	quit := make(chan os.Signal, 1)
	closed := make(chan struct{})
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() {
		done <- runServer(srv, quit, func(context.Context) error {
			close(closed)
			return nil
		}, zap.NewNop())
	}()
	quit <- syscall.SIGTERM

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after the signal")
	}
	select {
	case <-closed:
	default:
		t.Fatal("session was not closed")
	}
}
