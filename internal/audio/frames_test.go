package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToTwilioFramesExactFit(t *testing.T) {
	// 320 bytes of 8kHz 16-bit PCM = 160 samples = exactly one mu-law frame.
	pcm := make([]byte, 320)
	frames := ConvertToTwilioFrames(pcm, TwilioSampleRate)
	require.Len(t, frames, 1)
	assert.Len(t, frames[0], TwilioFrameBytes)
}

func TestConvertToTwilioFramesPadsLastFrame(t *testing.T) {
	// Half a frame's worth of samples: 80 samples = 160 bytes PCM.
	pcm := make([]byte, 160)
	frames := ConvertToTwilioFrames(pcm, TwilioSampleRate)
	require.Len(t, frames, 1)
	last := frames[len(frames)-1]
	assert.Len(t, last, TwilioFrameBytes)
	for _, b := range last[80:] {
		assert.Equal(t, byte(MuLawSilenceByte), b)
	}
}

func TestConvertFromTwilioConcatenatesFrames(t *testing.T) {
	frames := [][]byte{
		{0xFF, 0xFF, 0xFF},
		{0x00, 0x00},
	}
	pcm := ConvertFromTwilio(frames, TwilioSampleRate)
	assert.Len(t, pcm, 10) // 5 mu-law bytes -> 10 PCM bytes at identity rate
}

func TestConvertToTwilioFramesEmptyInput(t *testing.T) {
	frames := ConvertToTwilioFrames(nil, TwilioSampleRate)
	assert.Nil(t, frames)
}
