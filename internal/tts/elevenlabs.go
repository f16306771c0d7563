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
	elevenlabsTTSBaseURL   = "https://api.elevenlabs.io/v1/text-to-speech"
	elevenlabsDefaultModel = "eleven_turbo_v2_5"
	elevenlabsDefaultVoice = "21m00Tcm4TlvDq8ikWAM" // "Rachel", ElevenLabs' default sample voice
)

// ElevenLabsProvider synthesizes speech via ElevenLabs' text-to-speech REST
// endpoint, requesting raw 24kHz PCM so no resampling is needed downstream.
type ElevenLabsProvider struct {
	apiKey     string
	model      string
	voice      string
	httpClient *http.Client
}

func NewElevenLabsProvider(apiKey, model, voice string) (*ElevenLabsProvider, error) {
	if apiKey == "" {
		return nil, bridgeerr.New(bridgeerr.KindInvalidRequest, "tts.elevenlabs", "API key is required")
	}
	if model == "" {
		model = elevenlabsDefaultModel
	}
	if voice == "" {
		voice = elevenlabsDefaultVoice
	}
	return &ElevenLabsProvider{
		apiKey:     apiKey,
		model:      model,
		voice:      voice,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

type elevenlabsTTSRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		voice = p.voice
	}

	body, err := json.Marshal(elevenlabsTTSRequest{Text: text, ModelID: p.model})
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindInternal, "tts.elevenlabs", "failed to marshal request", err)
	}

	url := fmt.Sprintf("%s/%s?output_format=pcm_24000", elevenlabsTTSBaseURL, voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindInternal, "tts.elevenlabs", "failed to build request", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindUpstreamProvider, "tts.elevenlabs", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, bridgeerr.New(bridgeerr.KindUpstreamProvider, "tts.elevenlabs", fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindUpstreamProvider, "tts.elevenlabs", "failed reading response body", err)
	}

	return appendSilence(pcm, SynthesisSampleRate, TrailingSilenceMillis), nil
}

func (p *ElevenLabsProvider) SynthesizeForTwilio(ctx context.Context, text, voice string) (<-chan []byte, <-chan error) {
	return synthesizeForTwilio(ctx, p, text, voice)
}

func (p *ElevenLabsProvider) SynthesizeAllForTwilio(ctx context.Context, text, voice string) ([][]byte, error) {
	return synthesizeAllForTwilio(ctx, p, text, voice)
}
