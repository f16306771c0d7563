package tts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicebridge/callbridge/internal/audio"
)

// fakeProvider synthesizes silence of a fixed duration, used to exercise the
// shared framing helpers without a network dependency.
type fakeProvider struct {
	pcm []byte
	err error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	return f.pcm, f.err
}

func (f *fakeProvider) SynthesizeForTwilio(ctx context.Context, text, voice string) (<-chan []byte, <-chan error) {
	return synthesizeForTwilio(ctx, f, text, voice)
}

func (f *fakeProvider) SynthesizeAllForTwilio(ctx context.Context, text, voice string) ([][]byte, error) {
	return synthesizeAllForTwilio(ctx, f, text, voice)
}

func TestSynthesizeAllForTwilioFramesExactMultiple(t *testing.T) {
	// 500ms of PCM at the 24kHz synthesis rate resamples down to 4000 8kHz
	// samples, exactly 25 mu-law frames: exercise that the whole pipeline
	// composes.
	samples := SynthesisSampleRate / 1000 * 500 // 500ms
	p := &fakeProvider{pcm: make([]byte, samples*2)}

	frames, err := p.SynthesizeAllForTwilio(context.Background(), "hello", "")
	require.NoError(t, err)
	require.NotEmpty(t, frames)
	for _, f := range frames {
		assert.Len(t, f, audio.TwilioFrameBytes)
	}
}

func TestSynthesizeForTwilioStreamsFrames(t *testing.T) {
	samples := SynthesisSampleRate / 1000 * 200
	p := &fakeProvider{pcm: make([]byte, samples*2)}

	frames, errc := p.SynthesizeForTwilio(context.Background(), "hi", "")

	count := 0
	for range frames {
		count++
	}
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected errc to close")
	}
	assert.Greater(t, count, 0)
}

func TestSynthesizeForTwilioPropagatesError(t *testing.T) {
	p := &fakeProvider{err: assertError}

	frames, errc := p.SynthesizeForTwilio(context.Background(), "hi", "")

	for range frames {
		t.Fatal("expected no frames on synthesis error")
	}
	err := <-errc
	assert.ErrorIs(t, err, assertError)
}

var assertError = &testSynthesisError{"synthesis failed"}

type testSynthesisError struct{ msg string }

func (e *testSynthesisError) Error() string { return e.msg }
