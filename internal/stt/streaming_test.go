package stt

import (
	"context"
	"errors"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconnectorDialSucceedsFirstTry(t *testing.T) {
	var r reconnector
	calls := 0
	dialFn := func(ctx context.Context) (*websocket.Conn, error) {
		calls++
		return &websocket.Conn{}, nil
	}

	conn, err := r.dial(context.Background(), dialFn)
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, 1, calls)
	assert.True(t, r.isConnected())
}

func TestReconnectorDialRetriesUpToMaxAttempts(t *testing.T) {
	var r reconnector
	calls := 0
	wantErr := errors.New("dial refused")
	dialFn := func(ctx context.Context) (*websocket.Conn, error) {
		calls++
		return nil, wantErr
	}

	_, err := r.dial(context.Background(), dialFn)
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, maxReconnectAttempts, calls)
	assert.False(t, r.isConnected())
}

func TestReconnectorDialSucceedsOnLastAttempt(t *testing.T) {
	var r reconnector
	calls := 0
	dialFn := func(ctx context.Context) (*websocket.Conn, error) {
		calls++
		if calls < maxReconnectAttempts {
			return nil, errors.New("not yet")
		}
		return &websocket.Conn{}, nil
	}

	conn, err := r.dial(context.Background(), dialFn)
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, maxReconnectAttempts, calls)
}

func TestReconnectorDialRespectsContextCancellation(t *testing.T) {
	var r reconnector
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	dialFn := func(ctx context.Context) (*websocket.Conn, error) {
		calls++
		return nil, errors.New("refused")
	}

	_, err := r.dial(ctx, dialFn)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestReconnectorBufferDrainOrdersAndCopiesChunks(t *testing.T) {
	var r reconnector
	r.markDisconnected()
	assert.False(t, r.isConnected())

	a := []byte{1, 2, 3}
	b := []byte{4, 5}
	r.buffer(a)
	r.buffer(b)

	// Mutating the caller's slice after buffering must not affect the
	// queued copy.
	a[0] = 99

	drained := r.drain()
	require.Len(t, drained, 2)
	assert.Equal(t, []byte{1, 2, 3}, drained[0])
	assert.Equal(t, []byte{4, 5}, drained[1])

	// drain empties the queue.
	assert.Empty(t, r.drain())
}

func TestReconnectorMarkDisconnectedTogglesIsConnected(t *testing.T) {
	var r reconnector
	r.connected = true
	r.markDisconnected()
	assert.False(t, r.isConnected())
}
