package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicebridge/callbridge/internal/bridgeerr"
)

const (
	deepgramWSURL              = "wss://api.deepgram.com/v1/listen"
	deepgramDefaultModel       = "nova-2"
	deepgramConnectionTimeout  = 10 * time.Second
)

// DeepgramProvider is a streaming STT provider over Deepgram's live
// transcription WebSocket API. Audio is sent as raw binary linear16 frames
// rather than JSON-wrapped, per Deepgram's wire protocol.
type DeepgramProvider struct {
	apiKey   string
	model    string
	language string

	recon        reconnector
	mu           sync.Mutex
	conn         *websocket.Conn
	connCtx      context.Context
	reconnecting bool
	events       chan Event
	send         chan []byte
	done         chan struct{}

	// dialOverride, when set, replaces the real Deepgram dial in tests so
	// reconnect behavior can be exercised against a local fake server.
	dialOverride func(ctx context.Context) (*websocket.Conn, error)
}

func NewDeepgramProvider(apiKey, model, language string) (*DeepgramProvider, error) {
	if apiKey == "" {
		return nil, bridgeerr.New(bridgeerr.KindInvalidRequest, "stt.deepgram", "API key is required")
	}
	if model == "" {
		model = deepgramDefaultModel
	}
	return &DeepgramProvider{
		apiKey:   apiKey,
		model:    model,
		language: NormalizeLanguage(language),
	}, nil
}

func (p *DeepgramProvider) Name() string { return "deepgram" }

func (p *DeepgramProvider) SupportsBargeIn() bool { return true }

type deepgramAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float32 `json:"confidence"`
}

type deepgramChannel struct {
	Alternatives []deepgramAlternative `json:"alternatives"`
}

type deepgramMessage struct {
	Type         string          `json:"type"`
	IsFinal      bool            `json:"is_final"`
	SpeechFinal  bool            `json:"speech_final"`
	Channel      deepgramChannel `json:"channel"`
}

func (p *DeepgramProvider) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.events != nil {
		p.mu.Unlock()
		return nil
	}
	p.events = make(chan Event, 16)
	p.send = make(chan []byte, 64)
	p.done = make(chan struct{})
	p.connCtx = ctx
	p.mu.Unlock()

	conn, err := p.recon.dial(ctx, p.dial)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.KindUpstreamProvider, "stt.deepgram", "connect failed", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()

	go p.readLoop()
	go p.writeLoop()
	return nil
}

func (p *DeepgramProvider) dial(ctx context.Context) (*websocket.Conn, error) {
	if p.dialOverride != nil {
		return p.dialOverride(ctx)
	}
	params := url.Values{}
	params.Set("model", p.model)
	params.Set("encoding", "linear16")
	params.Set("sample_rate", "16000")
	params.Set("interim_results", "true")
	params.Set("vad_events", "true")
	if p.language != "" {
		params.Set("language", p.language)
	}
	wsURL := fmt.Sprintf("%s?%s", deepgramWSURL, params.Encode())

	dialer := websocket.Dialer{HandshakeTimeout: deepgramConnectionTimeout}
	headers := map[string][]string{"Authorization": {"Token " + p.apiKey}}

	conn, _, err := dialer.DialContext(ctx, wsURL, headers)
	return conn, err
}

// handleDisconnect reacts to a read or write failure against the live
// connection: it marks the reconnector disconnected and, unless a reconnect
// is already underway, spawns reconnectLoop to redial with buffered replay.
// EventDisconnected is only surfaced to the call manager once reconnectLoop
// exhausts its attempts (see streaming.go's maxReconnectAttempts).
func (p *DeepgramProvider) handleDisconnect() {
	p.mu.Lock()
	if p.reconnecting {
		p.mu.Unlock()
		return
	}
	p.reconnecting = true
	p.conn = nil
	ctx := p.connCtx
	p.mu.Unlock()

	p.recon.markDisconnected()
	go p.reconnectLoop(ctx)
}

func (p *DeepgramProvider) reconnectLoop(ctx context.Context) {
	defer func() {
		p.mu.Lock()
		p.reconnecting = false
		p.mu.Unlock()
	}()

	conn, err := p.recon.dial(ctx, p.dial)
	if err != nil {
		p.emit(Event{Kind: EventDisconnected, Err: err})
		return
	}

	select {
	case <-p.done:
		conn.Close()
		return
	default:
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()

	for _, frame := range p.recon.drain() {
		if werr := conn.WriteMessage(websocket.BinaryMessage, frame); werr != nil {
			p.handleDisconnect()
			return
		}
	}

	go p.readLoop()
}

func (p *DeepgramProvider) readLoop() {
	for {
		p.mu.Lock()
		conn := p.conn
		p.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			p.handleDisconnect()
			return
		}

		var msg deepgramMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "Results":
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			alt := msg.Channel.Alternatives[0]
			if alt.Transcript == "" {
				continue
			}
			final := msg.IsFinal || msg.SpeechFinal
			p.emit(Event{Kind: EventTranscript, Text: alt.Transcript, Confidence: alt.Confidence, IsFinal: final})
			if final {
				p.emit(Event{Kind: EventFinalTranscript, Text: alt.Transcript, Confidence: alt.Confidence, IsFinal: true})
			}
		case "SpeechStarted":
			p.emit(Event{Kind: EventSpeechStarted})
		}
	}
}

func (p *DeepgramProvider) writeLoop() {
	for {
		select {
		case frame, ok := <-p.send:
			if !ok {
				return
			}
			if !p.recon.isConnected() {
				p.recon.buffer(frame)
				continue
			}
			p.mu.Lock()
			conn := p.conn
			p.mu.Unlock()
			if conn == nil {
				p.recon.buffer(frame)
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				p.recon.buffer(frame)
				p.handleDisconnect()
			}
		case <-p.done:
			return
		}
	}
}

func (p *DeepgramProvider) emit(ev Event) {
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

func (p *DeepgramProvider) Send(ctx context.Context, pcm []byte) error {
	if len(pcm) < MinAudioBytes {
		return nil
	}
	select {
	case p.send <- pcm:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return bridgeerr.New(bridgeerr.KindInternal, "stt.deepgram", "provider closed")
	}
}

func (p *DeepgramProvider) Finalize(ctx context.Context) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return nil
	}
	closeMsg := []byte(`{"type":"CloseStream"}`)
	return conn.WriteMessage(websocket.TextMessage, closeMsg)
}

func (p *DeepgramProvider) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		return nil
	}
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	if p.events != nil {
		close(p.events)
		p.events = nil
	}
	return nil
}

func (p *DeepgramProvider) Events() <-chan Event { return p.events }
