// Package stt defines the bridge's uniform speech-to-text provider contract
// and its streaming and batch implementations (Deepgram, ElevenLabs, OpenAI,
// Groq).
package stt

import (
	"context"
	"strings"
)

// EventKind tags the variant carried by an Event.
type EventKind string

const (
	EventTranscript      EventKind = "transcript"
	EventFinalTranscript EventKind = "final_transcript"
	EventSpeechStarted   EventKind = "speech_started"
	EventDisconnected    EventKind = "disconnected"
	EventError           EventKind = "error"
)

// Event is the single union type emitted by every provider on its Events
// channel, language-neutral pub/sub between the provider and the call
// manager.
type Event struct {
	Kind       EventKind
	Text       string
	Confidence float32
	IsFinal    bool
	Err        error
}

// Provider is the uniform interface streaming and batch speech-to-text
// backends both implement. The call manager holds a Provider without
// knowing which concrete backend it wraps.
type Provider interface {
	// Name identifies the provider for logs and tracing.
	Name() string

	// Connect idempotently establishes any backing session. When a streaming
	// connection drops after a successful Connect, the provider redials on
	// its own and emits EventDisconnected on the Events channel (not a
	// returned error) only once its reconnect attempts are exhausted.
	Connect(ctx context.Context) error

	// Send submits a chunk of 16kHz, 16-bit little-endian, mono PCM.
	Send(ctx context.Context, pcm []byte) error

	// Finalize flushes any buffered audio, emitting a final transcript if the
	// flush produces one. Deepgram also asks the server to close its stream;
	// the ElevenLabs and batch providers only flush (ElevenLabs by sending a
	// commit) and keep the session open until Disconnect.
	Finalize(ctx context.Context) error

	// Disconnect tears the session down unconditionally; pending buffers
	// are discarded.
	Disconnect() error

	// Events returns the channel of transcript and lifecycle events. It is
	// closed after Disconnect.
	Events() <-chan Event

	// SupportsBargeIn reports whether this provider emits speech_started
	// events, making it eligible for the manager's optional barge-in policy.
	SupportsBargeIn() bool
}

// MinAudioBytes is the minimum chunk size (in 16kHz/16-bit PCM bytes) worth
// submitting to a provider; smaller chunks are dropped as below the
// provider-specific recognition floor of roughly 0.1s of audio.
const MinAudioBytes = 16000 * 2 / 10 // 0.1s at 16kHz, 16-bit mono

// isoLanguageAliases maps common locale-qualified codes to their ISO 639-1
// base form for providers that reject region subtags.
var isoLanguageAliases = map[string]string{
	"zh-cn": "zh",
	"zh-tw": "zh",
	"en-us": "en",
	"en-gb": "en",
	"pt-br": "pt",
	"pt-pt": "pt",
	"es-es": "es",
	"es-mx": "es",
	"fr-fr": "fr",
	"fr-ca": "fr",
}

// NormalizeLanguage reduces a locale code (e.g. "en-US", "zh_CN") to its
// ISO 639-1 two-letter form, as required by providers such as Deepgram and
// ElevenLabs that reject region-qualified codes.
func NormalizeLanguage(language string) string {
	if language == "" {
		return ""
	}
	lower := strings.ToLower(strings.ReplaceAll(language, "_", "-"))
	if alias, ok := isoLanguageAliases[lower]; ok {
		return alias
	}
	if idx := strings.IndexByte(lower, '-'); idx > 0 {
		return lower[:idx]
	}
	return lower
}
