package stt

import (
	"bytes"
	"context"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/voicebridge/callbridge/internal/audio"
	"github.com/voicebridge/callbridge/internal/bridgeerr"
)

const groqDefaultBaseURL = "https://api.groq.com/openai/v1"

// GroqProvider is a batch STT provider against Groq's Whisper-compatible
// transcription endpoint; it reuses the OpenAI wire format (and SDK) against
// Groq's base URL, the same way Groq's own client libraries work.
type GroqProvider struct {
	client   *openai.Client
	language string
	model    string

	mu     sync.Mutex
	buf    *batchBuffer
	events chan Event
}

// NewGroqProvider builds a Groq batch provider. model defaults to
// "whisper-large-v3" when empty.
func NewGroqProvider(apiKey, model, language string) (*GroqProvider, error) {
	if apiKey == "" {
		return nil, bridgeerr.New(bridgeerr.KindInvalidRequest, "stt.groq", "API key is required")
	}
	if model == "" {
		model = "whisper-large-v3"
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = groqDefaultBaseURL
	return &GroqProvider{
		client:   openai.NewClientWithConfig(cfg),
		language: NormalizeLanguage(language),
		model:    model,
	}, nil
}

func (p *GroqProvider) Name() string { return "groq" }

func (p *GroqProvider) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events != nil {
		return nil
	}
	p.events = make(chan Event, 16)
	p.buf = newBatchBuffer(ctx, p.transcribe, p.events)
	return nil
}

func (p *GroqProvider) Send(ctx context.Context, pcm []byte) error {
	p.mu.Lock()
	buf := p.buf
	p.mu.Unlock()
	if buf == nil {
		return bridgeerr.New(bridgeerr.KindInternal, "stt.groq", "Send called before Connect")
	}
	buf.append(pcm)
	return nil
}

func (p *GroqProvider) Finalize(ctx context.Context) error {
	p.mu.Lock()
	buf := p.buf
	p.mu.Unlock()
	if buf != nil {
		buf.finalize()
	}
	return nil
}

func (p *GroqProvider) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf != nil {
		p.buf.close()
	}
	if p.events != nil {
		close(p.events)
		p.events = nil
	}
	return nil
}

func (p *GroqProvider) Events() <-chan Event { return p.events }

func (p *GroqProvider) SupportsBargeIn() bool { return false }

func (p *GroqProvider) transcribe(ctx context.Context, pcm []byte) (string, float32, error) {
	wav := audio.WrapPCM(pcm, 16000)
	req := openai.AudioRequest{
		Model:    p.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: p.language,
	}
	resp, err := p.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", 0, bridgeerr.Wrap(bridgeerr.KindUpstreamProvider, "stt.groq", "transcription request failed", err)
	}
	return resp.Text, -1, nil
}
