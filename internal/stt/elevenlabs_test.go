package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElevenLabsReconnectsAndReplaysBufferedAudioAfterDrop(t *testing.T) {
	wsURL, conns, received := fakeWSServer(t)

	p, err := NewElevenLabsProvider("test-key", "", "")
	require.NoError(t, err)
	p.dialOverride = func(ctx context.Context) (*websocket.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		return conn, err
	}

	ctx := context.Background()
	require.NoError(t, p.Connect(ctx))
	t.Cleanup(func() { p.Disconnect() })

	var first *websocket.Conn
	select {
	case first = <-conns:
	case <-time.After(time.Second):
		t.Fatal("expected the initial connection")
	}

	first.Close()

	require.Eventually(t, func() bool {
		return !p.recon.isConnected()
	}, time.Second, 10*time.Millisecond, "readLoop should observe the drop")

	buffered := make([]byte, MinAudioBytes+4)
	for i := range buffered {
		buffered[i] = byte(i)
	}
	require.NoError(t, p.Send(ctx, buffered))

	wantChunk := elevenlabsAudioChunk{
		MessageType: "input_audio_chunk",
		AudioBase64: base64.StdEncoding.EncodeToString(buffered),
		SampleRate:  16000,
	}
	wantData, err := json.Marshal(wantChunk)
	require.NoError(t, err)

	select {
	case <-conns:
	case <-time.After(5 * time.Second):
		t.Fatal("expected reconnectLoop to redial")
	}

	select {
	case got := <-received:
		assert.JSONEq(t, string(wantData), string(got))
	case <-time.After(time.Second):
		t.Fatal("expected the buffered frame to be replayed after reconnect")
	}

	require.Eventually(t, func() bool {
		return p.recon.isConnected()
	}, time.Second, 10*time.Millisecond)
}

func TestElevenLabsEmitsDisconnectedAfterExhaustingReconnectAttempts(t *testing.T) {
	wsURL, _, _ := fakeWSServer(t)

	p, err := NewElevenLabsProvider("test-key", "", "")
	require.NoError(t, err)

	dialed := 0
	p.dialOverride = func(ctx context.Context) (*websocket.Conn, error) {
		dialed++
		if dialed == 1 {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
			return conn, err
		}
		return nil, errors.New("carrier unreachable")
	}

	ctx := context.Background()
	require.NoError(t, p.Connect(ctx))
	t.Cleanup(func() { p.Disconnect() })

	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	require.NoError(t, conn.Close())

	select {
	case ev := <-p.Events():
		assert.Equal(t, EventDisconnected, ev.Kind)
	case <-time.After(8 * time.Second):
		t.Fatal("expected a disconnected event once reconnect attempts are exhausted")
	}
	assert.Equal(t, maxReconnectAttempts+1, dialed)
}
