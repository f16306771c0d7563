// Package tts defines the bridge's uniform text-to-speech provider contract
// and its HTTP-backed implementations (OpenAI, Deepgram, ElevenLabs).
package tts

import (
	"context"

	"github.com/voicebridge/callbridge/internal/audio"
)

const (
	// SynthesisSampleRate is the rate Synthesize always returns PCM at;
	// providers that generate audio at another rate resample before
	// returning, keeping downstream framing uniform.
	SynthesisSampleRate = 24000
	// TrailingSilenceMillis is appended to synthesized audio by providers
	// prone to end-of-utterance clipping.
	TrailingSilenceMillis = 200
)

// Provider is the uniform interface every TTS backend implements. The call
// manager holds a Provider without knowing which concrete backend it wraps,
// and the same instance is shared (read-only) across all live calls.
type Provider interface {
	// Name identifies the provider for logs and tracing.
	Name() string

	// Synthesize returns 16-bit little-endian mono PCM at SynthesisSampleRate.
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)

	// SynthesizeForTwilio synthesizes text and streams it back as a lazy
	// sequence of fixed 160-byte mu-law frames, so a caller that wants to
	// start playback before the whole utterance is framed can do so. The
	// channel is closed after the last frame; a synthesis error is
	// delivered on errc and both channels are then closed.
	SynthesizeForTwilio(ctx context.Context, text, voice string) (<-chan []byte, <-chan error)

	// SynthesizeAllForTwilio synthesizes text and returns the whole
	// materialized sequence of 160-byte mu-law frames, convenient when the
	// caller enqueues the entire utterance before playback begins.
	SynthesizeAllForTwilio(ctx context.Context, text, voice string) ([][]byte, error)
}

// synthesizeAllForTwilio is the shared materialized-reframing step every
// provider's SynthesizeAllForTwilio delegates to.
func synthesizeAllForTwilio(ctx context.Context, p Provider, text, voice string) ([][]byte, error) {
	pcm, err := p.Synthesize(ctx, text, voice)
	if err != nil {
		return nil, err
	}
	return audio.ConvertToTwilioFrames(pcm, SynthesisSampleRate), nil
}

// synthesizeForTwilio is the shared lazy-reframing step every provider's
// SynthesizeForTwilio delegates to: synthesis still happens eagerly (none of
// these providers stream PCM incrementally), but frames are handed to the
// caller one at a time over a channel rather than as one materialized slice.
func synthesizeForTwilio(ctx context.Context, p Provider, text, voice string) (<-chan []byte, <-chan error) {
	frames := make(chan []byte)
	errc := make(chan error, 1)

	go func() {
		defer close(frames)
		defer close(errc)

		all, err := p.SynthesizeAllForTwilio(ctx, text, voice)
		if err != nil {
			errc <- err
			return
		}
		for _, f := range all {
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, errc
}

// appendSilence pads PCM with n milliseconds of silence at sampleRate,
// masking end-of-utterance artifacts some providers produce.
func appendSilence(pcm []byte, sampleRate, millis int) []byte {
	samples := sampleRate * millis / 1000
	silence := make([]byte, samples*2)
	return append(pcm, silence...)
}
