package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voicebridge/callbridge/internal/bridgeerr"
)

const (
	deepgramTTSBaseURL    = "https://api.deepgram.com/v1/speak"
	deepgramDefaultVoice  = "aura-asteria-en"
)

// DeepgramProvider synthesizes speech via Deepgram's speak REST endpoint,
// requesting raw 24kHz linear16 PCM so no resampling is needed downstream.
type DeepgramProvider struct {
	apiKey     string
	voice      string
	httpClient *http.Client
}

func NewDeepgramProvider(apiKey, voice string) (*DeepgramProvider, error) {
	if apiKey == "" {
		return nil, bridgeerr.New(bridgeerr.KindInvalidRequest, "tts.deepgram", "API key is required")
	}
	if voice == "" {
		voice = deepgramDefaultVoice
	}
	return &DeepgramProvider{
		apiKey:     apiKey,
		voice:      voice,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (p *DeepgramProvider) Name() string { return "deepgram" }

type deepgramTTSRequest struct {
	Text string `json:"text"`
}

func (p *DeepgramProvider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = p.voice
	}

	body, err := json.Marshal(deepgramTTSRequest{Text: text})
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindInternal, "tts.deepgram", "failed to marshal request", err)
	}

	url := fmt.Sprintf("%s?model=%s&encoding=linear16&sample_rate=%d", deepgramTTSBaseURL, voice, SynthesisSampleRate)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindInternal, "tts.deepgram", "failed to build request", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindUpstreamProvider, "tts.deepgram", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, bridgeerr.New(bridgeerr.KindUpstreamProvider, "tts.deepgram", fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindUpstreamProvider, "tts.deepgram", "failed reading response body", err)
	}

	return appendSilence(pcm, SynthesisSampleRate, TrailingSilenceMillis), nil
}

func (p *DeepgramProvider) SynthesizeForTwilio(ctx context.Context, text, voice string) (<-chan []byte, <-chan error) {
	return synthesizeForTwilio(ctx, p, text, voice)
}

func (p *DeepgramProvider) SynthesizeAllForTwilio(ctx context.Context, text, voice string) ([][]byte, error) {
	return synthesizeAllForTwilio(ctx, p, text, voice)
}
