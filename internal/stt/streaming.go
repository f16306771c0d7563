package stt

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxReconnectAttempts = 3
	reconnectBaseDelay   = time.Second
)

// reconnector holds the shared retry/backoff and mid-reconnect audio
// buffering logic used by the websocket-backed streaming providers
// (Deepgram, ElevenLabs). Up to 3 attempts with linear backoff (1s *
// attempt) on a non-clean close; audio submitted while disconnected is
// queued and flushed in order once the session reconnects.
type reconnector struct {
	mu        sync.Mutex
	pending   [][]byte
	connected bool
}

// dial attempts dialFn up to maxReconnectAttempts times with linear backoff,
// returning the first successful connection.
func (r *reconnector) dial(ctx context.Context, dialFn func(ctx context.Context) (*websocket.Conn, error)) (*websocket.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		conn, err := dialFn(ctx)
		if err == nil {
			r.mu.Lock()
			r.connected = true
			r.mu.Unlock()
			return conn, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(reconnectBaseDelay * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}

// markDisconnected flips the reconnector into buffering mode; subsequent
// buffer() calls queue audio instead of assuming a live socket.
func (r *reconnector) markDisconnected() {
	r.mu.Lock()
	r.connected = false
	r.mu.Unlock()
}

// buffer queues a chunk submitted while disconnected.
func (r *reconnector) buffer(pcm []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	r.pending = append(r.pending, cp)
}

// isConnected reports the reconnector's current view of liveness.
func (r *reconnector) isConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// drain returns and clears the queued audio, to be replayed in order once a
// new connection is established.
func (r *reconnector) drain() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	return out
}
