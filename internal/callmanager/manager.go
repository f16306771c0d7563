// Package callmanager implements the per-call conversation state machine: it
// places and answers calls, attaches STT/TTS to a live media stream, enforces
// turn-taking between caller audio and the bridge's own speech, and
// reconciles the carrier's signaling callbacks.
package callmanager

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicebridge/callbridge/internal/audio"
	"github.com/voicebridge/callbridge/internal/bridgeerr"
	"github.com/voicebridge/callbridge/internal/callrecord"
	"github.com/voicebridge/callbridge/internal/carrier"
	"github.com/voicebridge/callbridge/internal/mediastream"
	"github.com/voicebridge/callbridge/internal/stt"
	"github.com/voicebridge/callbridge/internal/telemetry"
	"github.com/voicebridge/callbridge/internal/tts"
)

// defaultSpeakAndListenTimeout is used when SpeakAndListen is called with a
// zero timeout.
const defaultSpeakAndListenTimeout = 30 * time.Second

// CarrierClient is the narrow surface the manager needs from a carrier REST
// client, small enough to fake in tests without a real HTTP server.
type CarrierClient interface {
	MakeCall(ctx context.Context, p carrier.CallParams) (*carrier.CallResult, error)
	UpdateCallStatus(ctx context.Context, callSID, status string) error
	UpdateCallTwiML(ctx context.Context, callSID, twiml string) error
}

// TranscriptionHandler is invoked once per finalized caller turn; the
// webhook server wires this to the agent gateway.
type TranscriptionHandler func(callSID, from, text string)

// Config parameterizes a Manager.
type Config struct {
	Carrier     CarrierClient
	STTConfig   stt.Config
	TTSProvider tts.Provider

	AccountSID     string
	PhoneNumber    string
	Voice          string
	Language       string
	DefaultCountry string

	// BaseURL is the bridge's own public https base (webhook.base_url);
	// the media-stream URL is derived by replacing http->ws.
	BaseURL string

	GatherActionURL string
	GatherTimeout   int // seconds
}

type activeCall struct {
	record *callrecord.Record

	mu      sync.Mutex
	session *mediastream.Session
	stt     stt.Provider
	cancel  context.CancelFunc
	waiter  chan string // set by SpeakAndListen, consumed by the next final transcript
}

// Manager owns every live call's state and is safe for concurrent use
// across carrier events, API handlers, and STT callbacks.
type Manager struct {
	cfg Config

	mu    sync.RWMutex
	calls map[string]*activeCall

	transcriptionHandler TranscriptionHandler
}

// New constructs a Manager from its dependencies.
func New(cfg Config) *Manager {
	return &Manager{
		cfg:   cfg,
		calls: make(map[string]*activeCall),
	}
}

// SetTranscriptionHandler registers the callback invoked on every finalized
// caller turn (the webhook server uses this to forward to the agent).
func (m *Manager) SetTranscriptionHandler(h TranscriptionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcriptionHandler = h
}

func (m *Manager) streamURL() string {
	url := m.cfg.BaseURL
	url = strings.Replace(url, "https://", "wss://", 1)
	url = strings.Replace(url, "http://", "ws://", 1)
	return strings.TrimRight(url, "/") + "/voice/stream"
}

func (m *Manager) getCall(callSID string) (*activeCall, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.calls[callSID]
	return c, ok
}

func (m *Manager) putCall(c *activeCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[c.record.CallSID] = c
}

// GetRecord returns the call record for callSID, if known.
func (m *Manager) GetRecord(callSID string) (*callrecord.Record, bool) {
	c, ok := m.getCall(callSID)
	if !ok {
		return nil, false
	}
	return c.record, true
}

// ListActiveCalls returns the records for every call whose signaling state
// is not yet terminal.
func (m *Manager) ListActiveCalls() []*callrecord.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*callrecord.Record, 0, len(m.calls))
	for _, c := range m.calls {
		if !c.record.GetSignalingState().IsTerminal() {
			out = append(out, c.record)
		}
	}
	return out
}

// MakeCall places a one-shot call that plays message and hangs up.
func (m *Manager) MakeCall(ctx context.Context, to, message string, metadata map[string]string) (*callrecord.Record, error) {
	to = carrier.NormalizePhoneNumber(to, m.cfg.DefaultCountry)
	twiml := carrier.SayHangupTwiML(message, m.cfg.Voice, m.cfg.Language)

	result, err := m.cfg.Carrier.MakeCall(ctx, carrier.CallParams{
		To:    to,
		From:  m.cfg.PhoneNumber,
		TwiML: twiml,
	})
	if err != nil {
		return nil, err
	}

	record := callrecord.New(result.SID, m.cfg.AccountSID, callrecord.DirectionOutbound, m.cfg.PhoneNumber, to)
	record.SetSignalingState(callrecord.ParseStatus(result.Status))
	record.AddAssistantTurn(message)
	applyMetadata(record, metadata)

	m.putCall(&activeCall{record: record})
	return record, nil
}

// MakeConversationCall places a call whose TwiML opens a media WebSocket
// back to this bridge, with greeting spoken once the stream attaches.
func (m *Manager) MakeConversationCall(ctx context.Context, to, greeting string, metadata map[string]string) (*callrecord.Record, error) {
	to = carrier.NormalizePhoneNumber(to, m.cfg.DefaultCountry)
	twiml := carrier.MediaStreamTwiML(m.streamURL())

	result, err := m.cfg.Carrier.MakeCall(ctx, carrier.CallParams{
		To:    to,
		From:  m.cfg.PhoneNumber,
		TwiML: twiml,
	})
	if err != nil {
		return nil, err
	}

	record := callrecord.New(result.SID, m.cfg.AccountSID, callrecord.DirectionOutbound, m.cfg.PhoneNumber, to)
	record.SetSignalingState(callrecord.ParseStatus(result.Status))
	if greeting != "" {
		record.SetPendingGreeting(greeting)
	}
	applyMetadata(record, metadata)

	m.putCall(&activeCall{record: record})
	return record, nil
}

// HandleInboundCall creates the call record for a carrier-initiated inbound
// call and returns the TwiML that opens the media WebSocket.
func (m *Manager) HandleInboundCall(params map[string]string, greeting string) (string, error) {
	callSID := params["CallSid"]
	if callSID == "" {
		return "", bridgeerr.New(bridgeerr.KindInvalidRequest, "callmanager", "missing CallSid")
	}

	record := callrecord.New(callSID, params["AccountSid"], callrecord.DirectionInbound, params["From"], params["To"])
	record.SetSignalingState(callrecord.SignalingInProgress)
	if greeting != "" {
		record.SetPendingGreeting(greeting)
	}

	m.putCall(&activeCall{record: record})

	return carrier.MediaStreamTwiML(m.streamURL()), nil
}

// HandleMediaStream takes ownership of an already-upgraded carrier
// WebSocket, attaches it (and a fresh STT session) to the call it announces
// itself as, and runs the turn-taking loop until the stream closes.
func (m *Manager) HandleMediaStream(ctx context.Context, conn *websocket.Conn) error {
	session := mediastream.New(conn)
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go session.Start(callCtx)

	started, ok := waitForStarted(session, 10*time.Second)
	if !ok {
		session.Close()
		return bridgeerr.New(bridgeerr.KindCarrierTransport, "callmanager", "media stream never sent a start envelope")
	}

	call, ok := m.getCall(started.CallSID)
	if !ok {
		slog.Warn("callmanager: media stream for unknown call", "call_sid", started.CallSID)
		session.Close()
		return bridgeerr.New(bridgeerr.KindInvalidRequest, "callmanager", "unknown call id "+started.CallSID)
	}

	call.mu.Lock()
	call.session = session
	call.cancel = cancel
	call.mu.Unlock()

	call.record.SetStreamSID(started.StreamSID)
	call.record.SetSignalingState(callrecord.SignalingInProgress)
	call.record.MarkAnswered()

	sttProvider, err := stt.New(m.cfg.STTConfig)
	if err != nil {
		slog.Error("callmanager: stt init failed", "call_sid", call.record.CallSID, "error", err)
	} else if err := sttProvider.Connect(callCtx); err != nil {
		slog.Error("callmanager: stt connect failed", "call_sid", call.record.CallSID, "error", err)
		sttProvider = nil
	}

	call.mu.Lock()
	call.stt = sttProvider
	call.mu.Unlock()

	if sttProvider != nil {
		go m.pumpSTTEvents(callCtx, call, sttProvider)
	}

	if greeting, ok := call.record.TakePendingGreeting(); ok {
		go func() {
			if err := m.Speak(callCtx, call.record.CallSID, greeting); err != nil {
				slog.Error("callmanager: greeting failed", "call_sid", call.record.CallSID, "error", err)
			}
		}()
	} else {
		call.record.SetConversationState(callrecord.ConversationListening)
	}

	m.runSessionLoop(callCtx, call, session)
	return nil
}

func waitForStarted(session *mediastream.Session, timeout time.Duration) (mediastream.Event, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-session.Events():
			if !ok {
				return mediastream.Event{}, false
			}
			if ev.Kind == mediastream.EventStarted {
				return ev, true
			}
		case <-deadline:
			return mediastream.Event{}, false
		}
	}
}

func (m *Manager) runSessionLoop(ctx context.Context, call *activeCall, session *mediastream.Session) {
	for ev := range session.Events() {
		switch ev.Kind {
		case mediastream.EventAudio:
			m.handleInboundAudio(ctx, call, ev.PCM)
		case mediastream.EventDTMF:
			slog.Debug("callmanager: dtmf received", "call_sid", call.record.CallSID, "digit", ev.Digit)
		case mediastream.EventSpeakingFinished:
			call.record.SetConversationState(callrecord.ConversationListening)
		case mediastream.EventDisconnected:
			m.releaseCallResources(call)
			return
		case mediastream.EventError:
			slog.Warn("callmanager: session error", "call_sid", call.record.CallSID, "error", ev.Err)
		}
	}
	m.releaseCallResources(call)
}

// handleInboundAudio applies the turn-taking gate: only while listening is
// caller audio forwarded to STT. While speaking or processing it is
// discarded; because it was never sent, the provider's own buffer never
// accumulates stale audio, satisfying the "STT buffer cleared" requirement
// without a separate clear call the Provider interface does not expose.
func (m *Manager) handleInboundAudio(ctx context.Context, call *activeCall, pcm []byte) {
	if call.record.GetConversationState() != callrecord.ConversationListening {
		return
	}

	call.mu.Lock()
	provider := call.stt
	call.mu.Unlock()
	if provider == nil {
		return
	}

	if err := provider.Send(ctx, pcm); err != nil {
		slog.Warn("callmanager: stt send failed", "call_sid", call.record.CallSID, "error", err)
	}
}

func (m *Manager) pumpSTTEvents(ctx context.Context, call *activeCall, provider stt.Provider) {
	for ev := range provider.Events() {
		switch ev.Kind {
		case stt.EventFinalTranscript:
			m.handleFinalTranscript(call, ev)
		case stt.EventSpeechStarted:
			m.handleBargeIn(call, provider)
		case stt.EventError:
			slog.Warn("callmanager: stt error", "call_sid", call.record.CallSID, "error", ev.Err)
		case stt.EventDisconnected:
			// The provider already retried its own reconnect budget (see
			// internal/stt's reconnector); reaching here means it gave up, so
			// the call's transcription is gone for the remainder of the call.
			slog.Warn("callmanager: stt permanently disconnected after exhausting reconnect attempts", "call_sid", call.record.CallSID, "error", ev.Err)
		}
	}
}

func (m *Manager) handleFinalTranscript(call *activeCall, ev stt.Event) {
	if call.record.GetConversationState() != callrecord.ConversationListening {
		return // stale: arrived after the manager already moved on
	}

	call.record.SetConversationState(callrecord.ConversationProcessing)

	var confidence *float32
	if ev.Confidence > 0 {
		c := ev.Confidence
		confidence = &c
	}
	call.record.AddUserTurn(ev.Text, confidence)

	call.mu.Lock()
	waiter := call.waiter
	call.waiter = nil
	call.mu.Unlock()

	if waiter != nil {
		select {
		case waiter <- ev.Text:
		default:
		}
		return
	}

	m.mu.RLock()
	handler := m.transcriptionHandler
	m.mu.RUnlock()
	if handler != nil {
		handler(call.record.CallSID, call.record.From, ev.Text)
	}
}

// handleBargeIn is the manager's optional policy: a streaming STT backend
// that supports it may interrupt bridge playback mid-utterance.
func (m *Manager) handleBargeIn(call *activeCall, provider stt.Provider) {
	if !provider.SupportsBargeIn() {
		return
	}

	call.mu.Lock()
	session := call.session
	call.mu.Unlock()
	if session == nil || !session.IsSpeaking() {
		return
	}

	if err := session.ClearAudio(); err != nil {
		slog.Warn("callmanager: clear_audio failed", "call_sid", call.record.CallSID, "error", err)
		return
	}
	call.record.SetConversationState(callrecord.ConversationListening)
}

// Speak synthesizes text and plays it to the caller, via the live media
// stream when attached, else via a TwiML update.
func (m *Manager) Speak(ctx context.Context, callSID, text string) error {
	call, ok := m.getCall(callSID)
	if !ok {
		return bridgeerr.New(bridgeerr.KindInvalidRequest, "callmanager", "unknown call id "+callSID)
	}

	call.record.SetConversationState(callrecord.ConversationSpeaking)
	call.record.AddAssistantTurn(text)

	call.mu.Lock()
	session := call.session
	call.mu.Unlock()

	if session == nil {
		twiml := carrier.SayHangupTwiML(text, m.cfg.Voice, m.cfg.Language)
		if err := m.cfg.Carrier.UpdateCallTwiML(ctx, callSID, twiml); err != nil {
			return err
		}
		call.record.SetConversationState(callrecord.ConversationListening)
		return nil
	}

	spanCtx, finishTTS := telemetry.StartTTSSpan(ctx, m.cfg.TTSProvider.Name(), m.cfg.Voice, text)
	frames, err := m.cfg.TTSProvider.SynthesizeAllForTwilio(spanCtx, text, m.cfg.Voice)
	finishTTS(len(frames)*audio.TwilioFrameBytes, err)
	if err != nil {
		fallback := carrier.SayHangupTwiML(text, m.cfg.Voice, m.cfg.Language)
		if ferr := m.cfg.Carrier.UpdateCallTwiML(ctx, callSID, fallback); ferr != nil {
			return fmt.Errorf("synthesis failed (%w) and twiml fallback failed: %v", err, ferr)
		}
		call.record.SetConversationState(callrecord.ConversationListening)
		return nil
	}

	resolver, err := session.SendAudioFrames(ctx, frames)
	if err != nil {
		return err
	}

	select {
	case <-resolver:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// SpeakAndListen speaks text, then waits for the next finalized caller
// transcript or returns "" on timeout.
func (m *Manager) SpeakAndListen(ctx context.Context, callSID, text string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = defaultSpeakAndListenTimeout
	}

	call, ok := m.getCall(callSID)
	if !ok {
		return "", bridgeerr.New(bridgeerr.KindInvalidRequest, "callmanager", "unknown call id "+callSID)
	}

	waiter := make(chan string, 1)
	call.mu.Lock()
	call.waiter = waiter
	call.mu.Unlock()

	if err := m.Speak(ctx, callSID, text); err != nil {
		call.mu.Lock()
		call.waiter = nil
		call.mu.Unlock()
		return "", err
	}

	select {
	case transcript := <-waiter:
		return transcript, nil
	case <-time.After(timeout):
		call.mu.Lock()
		call.waiter = nil
		call.mu.Unlock()
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// EndCall optionally speaks a goodbye, marks the carrier call completed, and
// releases the call's stream and STT session.
func (m *Manager) EndCall(ctx context.Context, callSID, message string) error {
	call, ok := m.getCall(callSID)
	if !ok {
		return bridgeerr.New(bridgeerr.KindInvalidRequest, "callmanager", "unknown call id "+callSID)
	}

	if message != "" {
		if err := m.Speak(ctx, callSID, message); err != nil {
			slog.Warn("callmanager: goodbye speak failed", "call_sid", callSID, "error", err)
		}
	}

	if err := m.cfg.Carrier.UpdateCallStatus(ctx, callSID, "completed"); err != nil {
		slog.Warn("callmanager: carrier hangup failed", "call_sid", callSID, "error", err)
	}

	call.record.SetSignalingState(callrecord.SignalingCompleted)
	call.record.MarkEnded()
	m.releaseCallResources(call)
	return nil
}

// HandleStatusCallback idempotently reconciles the carrier's signaling
// status for a call, creating the record on first observation of an inbound
// call id, and releasing resources once the call reaches a terminal state.
func (m *Manager) HandleStatusCallback(params map[string]string) error {
	callSID := params["CallSid"]
	if callSID == "" {
		return bridgeerr.New(bridgeerr.KindInvalidRequest, "callmanager", "missing CallSid")
	}

	call, ok := m.getCall(callSID)
	if !ok {
		record := callrecord.New(callSID, params["AccountSid"], callrecord.DirectionInbound, params["From"], params["To"])
		call = &activeCall{record: record}
		m.putCall(call)
	}

	state := callrecord.ParseStatus(params["CallStatus"])
	call.record.SetSignalingState(state)

	if state.IsTerminal() {
		call.record.MarkEnded()
		m.releaseCallResources(call)
	}
	return nil
}

// HandleGatherCallback handles the non-media-stream speech-gathering path:
// it records the caller's turn, forwards it for a reply, and re-opens a
// gather loop.
func (m *Manager) HandleGatherCallback(params map[string]string) (string, error) {
	callSID := params["CallSid"]
	call, ok := m.getCall(callSID)
	if !ok {
		return "", bridgeerr.New(bridgeerr.KindInvalidRequest, "callmanager", "unknown call id "+callSID)
	}

	if speech := params["SpeechResult"]; speech != "" {
		call.record.AddUserTurn(speech, nil)

		m.mu.RLock()
		handler := m.transcriptionHandler
		m.mu.RUnlock()
		if handler != nil {
			handler(callSID, call.record.From, speech)
		}
	}

	if digits := params["Digits"]; digits != "" {
		slog.Debug("callmanager: dtmf via gather", "call_sid", callSID, "digits", digits)
	}

	timeout := m.cfg.GatherTimeout
	if timeout <= 0 {
		timeout = 5
	}
	return carrier.GatherTwiML("", m.cfg.Voice, m.cfg.Language, m.cfg.GatherActionURL, timeout), nil
}

func (m *Manager) releaseCallResources(call *activeCall) {
	call.mu.Lock()
	session := call.session
	sttProvider := call.stt
	cancel := call.cancel
	call.session = nil
	call.stt = nil
	call.cancel = nil
	call.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if session != nil {
		_ = session.Close()
	}
	if sttProvider != nil {
		_ = sttProvider.Disconnect()
	}
}

func applyMetadata(record *callrecord.Record, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	record.WithLock(func(r *callrecord.Record) {
		for k, v := range metadata {
			r.Metadata[k] = v
		}
	})
}
