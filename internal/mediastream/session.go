// Package mediastream implements the per-call carrier WebSocket session: it
// parses the carrier's media-stream envelope, buffers and flushes inbound
// audio, and drives outbound audio with playback marks and barge-in clearing.
package mediastream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voicebridge/callbridge/internal/audio"
)

// inboundFlushFrames is how many 20ms inbound frames accumulate before the
// session decodes and emits them as PCM, tuned for Twilio's 20ms cadence and
// typical STT latency (see SPEC_FULL.md §4.4).
const inboundFlushFrames = 10

// EventKind discriminates the events a Session emits to the call manager.
type EventKind string

const (
	// EventStarted fires once, when the carrier's start envelope arrives and
	// CallSID/StreamSID become known.
	EventStarted          EventKind = "started"
	EventAudio            EventKind = "audio"
	EventDTMF             EventKind = "dtmf"
	EventDisconnected     EventKind = "disconnected"
	EventSpeakingFinished EventKind = "speaking_finished"
	EventError            EventKind = "error"
)

// Event is one notification raised by a Session's read loop.
type Event struct {
	Kind      EventKind
	PCM       []byte // EventAudio: 16kHz little-endian PCM
	Digit     string // EventDTMF
	Err       error  // EventError
	CallSID   string // EventStarted
	StreamSID string // EventStarted
}

// envelope is the carrier's tagged media-stream message, inbound or outbound.
type envelope struct {
	Event          string           `json:"event"`
	SequenceNumber string           `json:"sequenceNumber,omitempty"`
	StreamSID      string           `json:"streamSid,omitempty"`
	Protocol       string           `json:"protocol,omitempty"`
	Version        string           `json:"version,omitempty"`
	Start          *startPayload    `json:"start,omitempty"`
	Media          *mediaPayload    `json:"media,omitempty"`
	Stop           *stopPayload     `json:"stop,omitempty"`
	Mark           *markPayload     `json:"mark,omitempty"`
	DTMF           *dtmfPayload     `json:"dtmf,omitempty"`
}

type mediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

type startPayload struct {
	AccountSID  string            `json:"accountSid"`
	StreamSID   string            `json:"streamSid"`
	CallSID     string            `json:"callSid"`
	Tracks      []string          `json:"tracks"`
	MediaFormat mediaFormat       `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type mediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type stopPayload struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

type markPayload struct {
	Name string `json:"name"`
}

type dtmfPayload struct {
	Track string `json:"track"`
	Digit string `json:"digit"`
}

// Session owns one carrier WebSocket for the lifetime of a call.
type Session struct {
	conn *websocket.Conn

	StreamSID  string
	CallSID    string
	AccountSID string

	events chan Event

	writeMu sync.Mutex
	closed  atomic.Bool

	inboundMu  sync.Mutex
	inboundBuf [][]byte

	markMu  sync.Mutex
	pending map[string]chan struct{}

	isSpeaking atomic.Bool

	// started makes Start run its read loop at most once; later calls
	// return immediately.
	started atomic.Bool
}

// New wraps an already-upgraded carrier WebSocket connection.
func New(conn *websocket.Conn) *Session {
	return &Session{
		conn:    conn,
		events:  make(chan Event, 64),
		pending: make(map[string]chan struct{}),
	}
}

// Events returns the channel of session-level notifications. Closed once the
// read loop exits.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Start begins the blocking read loop. Call it from its own goroutine; it
// returns when the WebSocket closes or a fatal read error occurs.
func (s *Session) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	defer close(s.events)
	defer s.Close()

	for {
		if s.closed.Load() || ctx.Err() != nil {
			return
		}

		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.emit(Event{Kind: EventError, Err: err})
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			slog.Warn("mediastream: malformed envelope", "error", err)
			continue
		}

		s.handle(&env)
	}
}

func (s *Session) handle(env *envelope) {
	switch env.Event {
	case "connected":
		slog.Debug("mediastream: connected", "protocol", env.Protocol, "version", env.Version)

	case "start":
		s.handleStart(env)

	case "media":
		s.handleMedia(env)

	case "stop":
		s.handleStop(env)

	case "mark":
		s.handleMark(env)

	case "dtmf":
		s.handleDTMF(env)

	default:
		slog.Debug("mediastream: unknown event", "event", env.Event)
	}
}

func (s *Session) handleStart(env *envelope) {
	if env.Start == nil {
		return
	}
	s.StreamSID = env.Start.StreamSID
	s.CallSID = env.Start.CallSID
	s.AccountSID = env.Start.AccountSID
	s.emit(Event{Kind: EventStarted, CallSID: s.CallSID, StreamSID: s.StreamSID})
}

func (s *Session) handleMedia(env *envelope) {
	if env.Media == nil || env.Media.Payload == "" {
		return
	}
	// Only the caller's own audio is forwarded to STT; the bridge's own
	// outbound playback, when echoed with a track tag, is ignored.
	if env.Media.Track != "" && env.Media.Track != "inbound" {
		return
	}

	mulaw, err := base64.StdEncoding.DecodeString(env.Media.Payload)
	if err != nil {
		slog.Warn("mediastream: bad base64 payload", "error", err)
		return
	}

	s.inboundMu.Lock()
	s.inboundBuf = append(s.inboundBuf, mulaw)
	shouldFlush := len(s.inboundBuf) >= inboundFlushFrames
	var flushed [][]byte
	if shouldFlush {
		flushed = s.inboundBuf
		s.inboundBuf = nil
	}
	s.inboundMu.Unlock()

	if shouldFlush {
		s.flush(flushed)
	}
}

func (s *Session) flush(frames [][]byte) {
	if len(frames) == 0 {
		return
	}
	pcm := audio.ConvertFromTwilio(frames, 16000)
	s.emit(Event{Kind: EventAudio, PCM: pcm})
}

func (s *Session) handleStop(env *envelope) {
	s.inboundMu.Lock()
	flushed := s.inboundBuf
	s.inboundBuf = nil
	s.inboundMu.Unlock()
	s.flush(flushed)
	s.emit(Event{Kind: EventDisconnected})
}

func (s *Session) handleMark(env *envelope) {
	if env.Mark == nil {
		return
	}
	s.markMu.Lock()
	resolver, ok := s.pending[env.Mark.Name]
	if ok {
		delete(s.pending, env.Mark.Name)
	}
	noneLeft := len(s.pending) == 0
	s.markMu.Unlock()

	if ok {
		close(resolver)
	}

	if noneLeft && s.isSpeaking.CompareAndSwap(true, false) {
		s.emit(Event{Kind: EventSpeakingFinished})
	}
}

func (s *Session) handleDTMF(env *envelope) {
	if env.DTMF == nil {
		return
	}
	s.emit(Event{Kind: EventDTMF, Digit: env.DTMF.Digit})
}

func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
		slog.Warn("mediastream: event channel full, dropping event", "kind", e.Kind)
	}
}

// SendAudioFrames sets is_speaking, writes every frame as an outbound media
// envelope, then sends one mark with a unique name. The returned channel is
// closed when the carrier echoes that mark back, or earlier when ClearAudio
// or Close releases the pending resolvers.
func (s *Session) SendAudioFrames(ctx context.Context, frames [][]byte) (<-chan struct{}, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("mediastream: session closed")
	}

	s.isSpeaking.Store(true)

	for _, frame := range frames {
		if err := s.writeMedia(frame); err != nil {
			return nil, err
		}
	}

	name := s.nextMarkName()
	resolver := make(chan struct{})
	s.markMu.Lock()
	s.pending[name] = resolver
	s.markMu.Unlock()

	if err := s.writeMark(name); err != nil {
		s.markMu.Lock()
		delete(s.pending, name)
		s.markMu.Unlock()
		return nil, err
	}

	return resolver, nil
}

func (s *Session) nextMarkName() string {
	return "mark-" + uuid.NewString()
}

func (s *Session) writeMedia(frame []byte) error {
	env := envelope{
		Event:     "media",
		StreamSID: s.StreamSID,
		Media:     &mediaPayload{Payload: base64.StdEncoding.EncodeToString(frame)},
	}
	return s.writeJSON(env)
}

func (s *Session) writeMark(name string) error {
	env := envelope{
		Event:     "mark",
		StreamSID: s.StreamSID,
		Mark:      &markPayload{Name: name},
	}
	return s.writeJSON(env)
}

// ClearAudio sends a clear envelope, releases (closes) all pending mark
// resolvers and forgets them, and clears is_speaking. Used for barge-in.
func (s *Session) ClearAudio() error {
	if s.closed.Load() {
		return nil
	}

	s.markMu.Lock()
	for name, resolver := range s.pending {
		close(resolver)
		delete(s.pending, name)
	}
	s.markMu.Unlock()
	s.isSpeaking.Store(false)

	env := envelope{Event: "clear", StreamSID: s.StreamSID}
	return s.writeJSON(env)
}

func (s *Session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Load() {
		return fmt.Errorf("mediastream: session closed")
	}
	return s.conn.WriteJSON(v)
}

// IsSpeaking reports whether the bridge currently has unacknowledged
// outbound audio in flight.
func (s *Session) IsSpeaking() bool {
	return s.isSpeaking.Load()
}

// Close performs a best-effort flush of buffered inbound audio, releases any
// pending mark resolvers without leaking them, and terminates the WebSocket.
// Safe to call more than once.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.inboundMu.Lock()
	flushed := s.inboundBuf
	s.inboundBuf = nil
	s.inboundMu.Unlock()
	s.flush(flushed)

	s.markMu.Lock()
	for name, resolver := range s.pending {
		close(resolver)
		delete(s.pending, name)
	}
	s.markMu.Unlock()

	return s.conn.Close()
}
