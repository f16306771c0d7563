package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicebridge/callbridge/internal/bridgeerr"
)

const (
	elevenlabsRealtimeWSURL     = "wss://api.elevenlabs.io/v1/speech-to-text/realtime"
	elevenlabsDefaultModel      = "scribe_v2_realtime"
	elevenlabsConnectionTimeout = 10 * time.Second
)

// ElevenLabsProvider is a streaming STT provider over ElevenLabs' Scribe
// realtime WebSocket API, using a manual commit strategy so Finalize can
// force a committed transcript deterministically.
type ElevenLabsProvider struct {
	apiKey   string
	model    string
	language string

	recon        reconnector
	mu           sync.Mutex
	conn         *websocket.Conn
	connCtx      context.Context
	reconnecting bool
	events       chan Event
	send         chan elevenlabsAudioChunk
	done         chan struct{}

	// dialOverride, when set, replaces the real ElevenLabs dial in tests so
	// reconnect behavior can be exercised against a local fake server.
	dialOverride func(ctx context.Context) (*websocket.Conn, error)
}

func NewElevenLabsProvider(apiKey, model, language string) (*ElevenLabsProvider, error) {
	if apiKey == "" {
		return nil, bridgeerr.New(bridgeerr.KindInvalidRequest, "stt.elevenlabs", "API key is required")
	}
	if model == "" {
		model = elevenlabsDefaultModel
	}
	return &ElevenLabsProvider{
		apiKey:   apiKey,
		model:    model,
		language: NormalizeLanguage(language),
	}, nil
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

func (p *ElevenLabsProvider) SupportsBargeIn() bool { return true }

type elevenlabsMessage struct {
	MessageType string `json:"message_type"`
	Text        string `json:"text,omitempty"`
	Confidence  *float32 `json:"confidence,omitempty"`
}

type elevenlabsAudioChunk struct {
	MessageType string `json:"message_type"`
	AudioBase64 string `json:"audio_base_64"`
	Commit      bool   `json:"commit"`
	SampleRate  int    `json:"sample_rate"`
}

func (p *ElevenLabsProvider) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.events != nil {
		p.mu.Unlock()
		return nil // idempotent
	}
	p.events = make(chan Event, 16)
	p.send = make(chan elevenlabsAudioChunk, 64)
	p.done = make(chan struct{})
	p.connCtx = ctx
	p.mu.Unlock()

	conn, err := p.recon.dial(ctx, p.dial)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.KindUpstreamProvider, "stt.elevenlabs", "connect failed", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()

	go p.readLoop()
	go p.writeLoop()
	return nil
}

func (p *ElevenLabsProvider) dial(ctx context.Context) (*websocket.Conn, error) {
	if p.dialOverride != nil {
		return p.dialOverride(ctx)
	}
	params := url.Values{}
	params.Set("model_id", p.model)
	params.Set("commit_strategy", "manual")
	if p.language != "" {
		params.Set("language_code", p.language)
	}
	wsURL := fmt.Sprintf("%s?%s", elevenlabsRealtimeWSURL, params.Encode())

	dialer := websocket.Dialer{HandshakeTimeout: elevenlabsConnectionTimeout}
	headers := map[string][]string{"xi-api-key": {p.apiKey}}

	conn, _, err := dialer.DialContext(ctx, wsURL, headers)
	return conn, err
}

// handleDisconnect reacts to a read or write failure against the live
// connection: it marks the reconnector disconnected and, unless a reconnect
// is already underway, spawns reconnectLoop to redial with buffered replay.
// EventDisconnected is only surfaced to the call manager once reconnectLoop
// exhausts its attempts (see streaming.go's maxReconnectAttempts).
func (p *ElevenLabsProvider) handleDisconnect() {
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

func (p *ElevenLabsProvider) reconnectLoop(ctx context.Context) {
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
		if werr := conn.WriteMessage(websocket.TextMessage, frame); werr != nil {
			p.handleDisconnect()
			return
		}
	}

	go p.readLoop()
}

func (p *ElevenLabsProvider) readLoop() {
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

		var msg elevenlabsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.MessageType {
		case "partial_transcript":
			conf := float32(0)
			if msg.Confidence != nil {
				conf = *msg.Confidence
			}
			p.emit(Event{Kind: EventTranscript, Text: msg.Text, Confidence: conf, IsFinal: false})
		case "committed_transcript":
			conf := float32(1)
			if msg.Confidence != nil {
				conf = *msg.Confidence
			}
			p.emit(Event{Kind: EventTranscript, Text: msg.Text, Confidence: conf, IsFinal: true})
			p.emit(Event{Kind: EventFinalTranscript, Text: msg.Text, Confidence: conf, IsFinal: true})
		case "vad_speech_started":
			p.emit(Event{Kind: EventSpeechStarted})
		case "error":
			p.emit(Event{Kind: EventError, Err: bridgeerr.New(bridgeerr.KindUpstreamProvider, "stt.elevenlabs", msg.Text)})
		}
	}
}

func (p *ElevenLabsProvider) writeLoop() {
	for {
		select {
		case chunk, ok := <-p.send:
			if !ok {
				return
			}
			data, err := json.Marshal(chunk)
			if err != nil {
				continue
			}
			if !p.recon.isConnected() {
				p.recon.buffer(data)
				continue
			}
			p.mu.Lock()
			conn := p.conn
			p.mu.Unlock()
			if conn == nil {
				p.recon.buffer(data)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				p.recon.buffer(data)
				p.handleDisconnect()
			}
		case <-p.done:
			return
		}
	}
}

func (p *ElevenLabsProvider) emit(ev Event) {
	select {
	case p.events <- ev:
	case <-p.done:
	}
}

func (p *ElevenLabsProvider) Send(ctx context.Context, pcm []byte) error {
	if len(pcm) < MinAudioBytes {
		return nil
	}
	chunk := elevenlabsAudioChunk{
		MessageType: "input_audio_chunk",
		AudioBase64: base64.StdEncoding.EncodeToString(pcm),
		SampleRate:  16000,
	}
	select {
	case p.send <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return bridgeerr.New(bridgeerr.KindInternal, "stt.elevenlabs", "provider closed")
	}
}

func (p *ElevenLabsProvider) Finalize(ctx context.Context) error {
	chunk := elevenlabsAudioChunk{MessageType: "input_audio_chunk", Commit: true, SampleRate: 16000}
	select {
	case p.send <- chunk:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
	}
	return nil
}

func (p *ElevenLabsProvider) Disconnect() error {
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

func (p *ElevenLabsProvider) Events() <-chan Event { return p.events }
