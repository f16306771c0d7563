package mediastream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPair spins up a local WebSocket server and returns the server-side
// Session plus the raw client connection used to drive it, the way the
// carrier's media-stream WebSocket drives a real session.
func newTestPair(t *testing.T) (*Session, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}

	sessCh := make(chan *Session, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		sessCh <- New(conn)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	sess := <-sessCh
	return sess, client
}

func TestHandleStartSetsIdentifiers(t *testing.T) {
	sess, client := newTestPair(t)
	go sess.Start(context.Background())

	require.NoError(t, client.WriteJSON(envelope{
		Event: "start",
		Start: &startPayload{
			AccountSID: "AC1", StreamSID: "MZ1", CallSID: "CA1",
			Tracks: []string{"inbound"},
		},
	}))

	select {
	case ev := <-sess.Events():
		require.Equal(t, EventStarted, ev.Kind)
		assert.Equal(t, "CA1", ev.CallSID)
		assert.Equal(t, "MZ1", ev.StreamSID)
	case <-time.After(time.Second):
		t.Fatal("expected a started event")
	}
	assert.Equal(t, "MZ1", sess.StreamSID)
	assert.Equal(t, "CA1", sess.CallSID)
	assert.Equal(t, "AC1", sess.AccountSID)
}

func TestMediaFlushesEveryTenFrames(t *testing.T) {
	sess, client := newTestPair(t)
	go sess.Start(context.Background())

	payload := base64.StdEncoding.EncodeToString(make([]byte, 160))
	for i := 0; i < 9; i++ {
		require.NoError(t, client.WriteJSON(envelope{
			Event: "media",
			Media: &mediaPayload{Track: "inbound", Payload: payload},
		}))
	}

	select {
	case ev := <-sess.Events():
		t.Fatalf("unexpected early flush: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, client.WriteJSON(envelope{
		Event: "media",
		Media: &mediaPayload{Track: "inbound", Payload: payload},
	}))

	select {
	case ev := <-sess.Events():
		require.Equal(t, EventAudio, ev.Kind)
		assert.NotEmpty(t, ev.PCM)
	case <-time.After(time.Second):
		t.Fatal("expected a flushed audio event")
	}
}

func TestOutboundTrackIgnored(t *testing.T) {
	sess, client := newTestPair(t)
	go sess.Start(context.Background())

	payload := base64.StdEncoding.EncodeToString(make([]byte, 160))
	for i := 0; i < 10; i++ {
		require.NoError(t, client.WriteJSON(envelope{
			Event: "media",
			Media: &mediaPayload{Track: "outbound", Payload: payload},
		}))
	}

	select {
	case ev := <-sess.Events():
		t.Fatalf("outbound track should not be forwarded: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDTMFEmitsEvent(t *testing.T) {
	sess, client := newTestPair(t)
	go sess.Start(context.Background())

	require.NoError(t, client.WriteJSON(envelope{
		Event: "dtmf",
		DTMF:  &dtmfPayload{Track: "inbound", Digit: "5"},
	}))

	select {
	case ev := <-sess.Events():
		require.Equal(t, EventDTMF, ev.Kind)
		assert.Equal(t, "5", ev.Digit)
	case <-time.After(time.Second):
		t.Fatal("expected a dtmf event")
	}
}

func TestSendAudioFramesResolvesOnMarkEcho(t *testing.T) {
	sess, client := newTestPair(t)
	go sess.Start(context.Background())

	frames := [][]byte{make([]byte, 160)}
	resolver, err := sess.SendAudioFrames(context.Background(), frames)
	require.NoError(t, err)
	assert.True(t, sess.IsSpeaking())

	// Drain the outbound media envelope, then read the mark envelope to
	// learn its generated name, then echo it back like the carrier would.
	var mediaEnv envelope
	require.NoError(t, client.ReadJSON(&mediaEnv))
	assert.Equal(t, "media", mediaEnv.Event)

	var markEnv envelope
	require.NoError(t, client.ReadJSON(&markEnv))
	require.Equal(t, "mark", markEnv.Event)
	require.NotNil(t, markEnv.Mark)

	require.NoError(t, client.WriteJSON(envelope{
		Event: "mark",
		Mark:  &markPayload{Name: markEnv.Mark.Name},
	}))

	select {
	case <-resolver:
	case <-time.After(time.Second):
		t.Fatal("expected mark resolver to resolve")
	}

	time.Sleep(20 * time.Millisecond)
	assert.False(t, sess.IsSpeaking())
}

func TestClearAudioDropsResolversAndStopsSpeaking(t *testing.T) {
	sess, client := newTestPair(t)
	go sess.Start(context.Background())

	resolver, err := sess.SendAudioFrames(context.Background(), [][]byte{make([]byte, 160)})
	require.NoError(t, err)

	// Drain the media + mark envelopes the send produced.
	var discard envelope
	require.NoError(t, client.ReadJSON(&discard))
	require.NoError(t, client.ReadJSON(&discard))

	require.NoError(t, sess.ClearAudio())

	var clearEnv envelope
	require.NoError(t, client.ReadJSON(&clearEnv))
	assert.Equal(t, "clear", clearEnv.Event)
	assert.False(t, sess.IsSpeaking())

	select {
	case _, ok := <-resolver:
		assert.False(t, ok, "resolver should be closed, not resolved with data")
	case <-time.After(time.Second):
		t.Fatal("expected resolver to be released on clear")
	}
}

func TestCloseIsIdempotentAndReleasesResolvers(t *testing.T) {
	sess, client := newTestPair(t)
	go sess.Start(context.Background())

	resolver, err := sess.SendAudioFrames(context.Background(), [][]byte{make([]byte, 160)})
	require.NoError(t, err)
	var discard envelope
	require.NoError(t, client.ReadJSON(&discard))
	require.NoError(t, client.ReadJSON(&discard))

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())

	select {
	case <-resolver:
	case <-time.After(time.Second):
		t.Fatal("expected resolver released on close")
	}
}

func TestStopFlushesRemainingBufferAndEmitsDisconnected(t *testing.T) {
	sess, client := newTestPair(t)
	go sess.Start(context.Background())

	payload := base64.StdEncoding.EncodeToString(make([]byte, 160))
	require.NoError(t, client.WriteJSON(envelope{
		Event: "media",
		Media: &mediaPayload{Track: "inbound", Payload: payload},
	}))
	require.NoError(t, client.WriteJSON(envelope{Event: "stop"}))

	var gotAudio, gotDisconnected bool
	deadline := time.After(time.Second)
	for !gotAudio || !gotDisconnected {
		select {
		case ev := <-sess.Events():
			switch ev.Kind {
			case EventAudio:
				gotAudio = true
			case EventDisconnected:
				gotDisconnected = true
			}
		case <-deadline:
			t.Fatalf("timed out waiting for flush+disconnected, got audio=%v disconnected=%v", gotAudio, gotDisconnected)
		}
	}
}

func TestEnvelopeJSONRoundTrip(t *testing.T) {
	env := envelope{
		Event:     "media",
		StreamSID: "MZ1",
		Media:     &mediaPayload{Payload: "abc"},
	}
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var back envelope
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, env.Event, back.Event)
	assert.Equal(t, env.Media.Payload, back.Media.Payload)
}
