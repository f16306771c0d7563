package tts

import (
	"fmt"

	"github.com/voicebridge/callbridge/internal/bridgeerr"
)

// Config selects and parameterizes one TTS provider.
type Config struct {
	Provider string // openai, deepgram, elevenlabs
	APIKey   string
	Voice    string
	Model    string
}

// New constructs the Provider named by cfg.Provider.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.Voice)
	case "deepgram":
		return NewDeepgramProvider(cfg.APIKey, cfg.Voice)
	case "elevenlabs":
		return NewElevenLabsProvider(cfg.APIKey, cfg.Model, cfg.Voice)
	default:
		return nil, bridgeerr.New(bridgeerr.KindInvalidRequest, "tts.factory", fmt.Sprintf("unknown TTS provider %q", cfg.Provider))
	}
}
