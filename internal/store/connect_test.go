package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestConnectSucceedsAfterRetries(t *testing.T) {
	calls := 0
	ping := func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}
	err := Connect(context.Background(), 5, time.Millisecond, ping, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestConnectGivesUp(t *testing.T) {
	refused := errors.New("connection refused")
	calls := 0
	err := Connect(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		return refused
	}, quietLogger())
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, 3, calls)
}

func TestConnectZeroAttemptsTriesOnce(t *testing.T) {
	calls := 0
	_ = Connect(context.Background(), 0, time.Hour, func(context.Context) error {
		calls++
		return errors.New("nope")
	}, nil)
	assert.Equal(t, 1, calls)
}

func TestConnectHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Connect(ctx, 10, time.Hour, func(context.Context) error {
			return errors.New("down")
		}, quietLogger())
	}()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Connect did not return after cancel")
	}
}
