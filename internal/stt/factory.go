package stt

import (
	"fmt"

	"github.com/voicebridge/callbridge/internal/bridgeerr"
)

// Config selects and parameterizes one STT provider.
type Config struct {
	Provider string // deepgram, openai, groq, elevenlabs
	APIKey   string
	Model    string
	Language string
}

// New constructs the Provider named by cfg.Provider.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "deepgram":
		return NewDeepgramProvider(cfg.APIKey, cfg.Model, cfg.Language)
	case "elevenlabs":
		return NewElevenLabsProvider(cfg.APIKey, cfg.Model, cfg.Language)
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.Language)
	case "groq":
		return NewGroqProvider(cfg.APIKey, cfg.Model, cfg.Language)
	default:
		return nil, bridgeerr.New(bridgeerr.KindInvalidRequest, "stt.factory", fmt.Sprintf("unknown STT provider %q", cfg.Provider))
	}
}
