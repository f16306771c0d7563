package stt

import (
	"bytes"
	"context"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/voicebridge/callbridge/internal/audio"
	"github.com/voicebridge/callbridge/internal/bridgeerr"
)

// OpenAIProvider is a batch STT provider backed by OpenAI's Whisper
// transcription endpoint. It buffers incoming PCM per the idle-timer/
// hard-cap policy in batchBuffer and wraps each flush in a WAV container
// before POSTing.
type OpenAIProvider struct {
	client   *openai.Client
	language string
	model    string

	mu     sync.Mutex
	buf    *batchBuffer
	events chan Event
}

// NewOpenAIProvider builds an OpenAI Whisper batch provider. model defaults
// to whisper-1 when empty.
func NewOpenAIProvider(apiKey, model, language string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, bridgeerr.New(bridgeerr.KindInvalidRequest, "stt.openai", "API key is required")
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIProvider{
		client:   openai.NewClient(apiKey),
		language: NormalizeLanguage(language),
		model:    model,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events != nil {
		return nil // idempotent
	}
	p.events = make(chan Event, 16)
	p.buf = newBatchBuffer(ctx, p.transcribe, p.events)
	return nil
}

func (p *OpenAIProvider) Send(ctx context.Context, pcm []byte) error {
	p.mu.Lock()
	buf := p.buf
	p.mu.Unlock()
	if buf == nil {
		return bridgeerr.New(bridgeerr.KindInternal, "stt.openai", "Send called before Connect")
	}
	buf.append(pcm)
	return nil
}

func (p *OpenAIProvider) Finalize(ctx context.Context) error {
	p.mu.Lock()
	buf := p.buf
	p.mu.Unlock()
	if buf != nil {
		buf.finalize()
	}
	return nil
}

func (p *OpenAIProvider) Disconnect() error {
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

func (p *OpenAIProvider) Events() <-chan Event { return p.events }

func (p *OpenAIProvider) SupportsBargeIn() bool { return false }

func (p *OpenAIProvider) transcribe(ctx context.Context, pcm []byte) (string, float32, error) {
	wav := audio.WrapPCM(pcm, 16000)
	req := openai.AudioRequest{
		Model:    p.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: p.language,
	}
	resp, err := p.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", 0, bridgeerr.Wrap(bridgeerr.KindUpstreamProvider, "stt.openai", "transcription request failed", err)
	}
	return resp.Text, -1, nil
}
