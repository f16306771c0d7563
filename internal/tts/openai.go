package tts

import (
	"bytes"
	"context"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/voicebridge/callbridge/internal/bridgeerr"
)

const (
	openaiDefaultVoice = "coral"
	openaiDefaultModel = "gpt-4o-mini-tts"
)

// OpenAIProvider synthesizes speech via OpenAI's audio/speech endpoint,
// requesting raw 24kHz PCM directly so no resampling is needed downstream.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	voice  string
}

func NewOpenAIProvider(apiKey, model, voice string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, bridgeerr.New(bridgeerr.KindInvalidRequest, "tts.openai", "API key is required")
	}
	if model == "" {
		model = openaiDefaultModel
	}
	if voice == "" {
		voice = openaiDefaultVoice
	}
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
		voice:  voice,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = p.voice
	}

	req := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	}

	resp, err := p.client.CreateSpeech(ctx, req)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindUpstreamProvider, "tts.openai", "speech synthesis failed", err)
	}
	defer resp.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp); err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindUpstreamProvider, "tts.openai", "failed reading synthesized audio", err)
	}

	return appendSilence(buf.Bytes(), SynthesisSampleRate, TrailingSilenceMillis), nil
}

func (p *OpenAIProvider) SynthesizeForTwilio(ctx context.Context, text, voice string) (<-chan []byte, <-chan error) {
	return synthesizeForTwilio(ctx, p, text, voice)
}

func (p *OpenAIProvider) SynthesizeAllForTwilio(ctx context.Context, text, voice string) ([][]byte, error) {
	return synthesizeAllForTwilio(ctx, p, text, voice)
}
