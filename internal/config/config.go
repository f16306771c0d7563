// Package config loads the bridge's process configuration from environment
// variables (optionally backed by a .env file), the same env-first approach
// the teacher's example entrypoints use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the complete set of knobs SPEC_FULL.md §6 names.
type Config struct {
	Carrier   CarrierConfig
	STT       STTConfig
	TTS       TTSConfig
	Agent     AgentConfig
	Server    ServerConfig
	Telemetry TelemetryConfig
}

// CarrierConfig parameterizes the carrier REST client and webhook signing.
type CarrierConfig struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
	// BaseURL is the bridge's own public https base used to build carrier
	// callback URLs; the media-stream URL is derived by replacing http with
	// ws. Empty means development mode: signature verification is skipped
	// when the signature header is also absent.
	BaseURL        string
	DefaultCountry string
	APIBaseURL     string // override for tests; empty uses the real endpoint
}

// STTConfig selects and parameterizes the speech-to-text provider.
type STTConfig struct {
	Provider string // deepgram, openai, groq, elevenlabs
	APIKey   string
	Model    string
	Language string
}

// TTSConfig selects and parameterizes the text-to-speech provider.
type TTSConfig struct {
	Provider string // openai, deepgram, elevenlabs
	APIKey   string
	Voice    string
	Model    string
}

// AgentConfig points at the conversational agent gateway.
type AgentConfig struct {
	GatewayURL string
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host     string
	Port     string
	LogLevel string

	GatherActionURL string
	GatherTimeout   int // seconds

	// DefaultGreeting is spoken on inbound calls when the webhook request
	// carries no explicit greeting query parameter.
	DefaultGreeting string
}

// TelemetryConfig controls tracing export.
type TelemetryConfig struct {
	ServiceName  string
	Environment  string
	ExporterType string // stdout or none
}

// Load reads a .env file if present (missing is not an error, matching
// godotenv's own convention) and assembles Config from the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Carrier: CarrierConfig{
			AccountSID:     os.Getenv("CARRIER_ACCOUNT_SID"),
			AuthToken:      os.Getenv("CARRIER_AUTH_TOKEN"),
			PhoneNumber:    os.Getenv("CARRIER_PHONE_NUMBER"),
			BaseURL:        strings.TrimRight(os.Getenv("WEBHOOK_BASE_URL"), "/"),
			DefaultCountry: getEnv("DEFAULT_COUNTRY", "US"),
			APIBaseURL:     os.Getenv("CARRIER_API_BASE_URL"),
		},
		STT: STTConfig{
			Provider: getEnv("STT_PROVIDER", "deepgram"),
			APIKey:   os.Getenv("STT_API_KEY"),
			Model:    os.Getenv("STT_MODEL"),
			Language: getEnv("STT_LANGUAGE", "en"),
		},
		TTS: TTSConfig{
			Provider: getEnv("TTS_PROVIDER", "openai"),
			APIKey:   os.Getenv("TTS_API_KEY"),
			Voice:    os.Getenv("TTS_VOICE"),
			Model:    os.Getenv("TTS_MODEL"),
		},
		Agent: AgentConfig{
			GatewayURL: strings.TrimRight(os.Getenv("AGENT_GATEWAY_URL"), "/"),
		},
		Server: ServerConfig{
			Host:     getEnv("HOST", "0.0.0.0"),
			Port:     getEnv("PORT", "8080"),
			LogLevel: getEnv("LOG_LEVEL", "info"),

			GatherActionURL: os.Getenv("GATHER_ACTION_URL"),
			GatherTimeout:   getEnvInt("GATHER_TIMEOUT_SECONDS", 5),
			DefaultGreeting: os.Getenv("DEFAULT_GREETING"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  getEnv("SERVICE_NAME", "callbridge"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ExporterType: getEnv("TRACE_EXPORTER", "stdout"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.Carrier.AccountSID == "" {
		missing = append(missing, "CARRIER_ACCOUNT_SID")
	}
	if c.Carrier.AuthToken == "" {
		missing = append(missing, "CARRIER_AUTH_TOKEN")
	}
	if c.Carrier.PhoneNumber == "" {
		missing = append(missing, "CARRIER_PHONE_NUMBER")
	}
	if c.STT.APIKey == "" {
		missing = append(missing, "STT_API_KEY")
	}
	if c.TTS.APIKey == "" {
		missing = append(missing, "TTS_API_KEY")
	}
	if c.Agent.GatewayURL == "" {
		missing = append(missing, "AGENT_GATEWAY_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
