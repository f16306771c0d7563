package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResampleIdentityWhenRatesMatch(t *testing.T) {
	pcm := int16ToBytes([]int16{1, 2, 3, 4, 5})
	out := ResamplePCM16(pcm, 8000, 8000)
	assert.Equal(t, pcm, out)
}

func TestResampleUpsampleDoublesLength(t *testing.T) {
	pcm := int16ToBytes([]int16{0, 1000, 2000, 3000})
	out := ResamplePCM16(pcm, 8000, 16000)
	samples := bytesToInt16(out)
	assert.InDelta(t, len(samples), 8, 1)
}

func TestResampleDownsampleHalvesLength(t *testing.T) {
	pcm := int16ToBytes([]int16{0, 1000, 2000, 3000, 4000, 5000, 6000, 7000})
	out := ResamplePCM16(pcm, 16000, 8000)
	samples := bytesToInt16(out)
	assert.InDelta(t, len(samples), 4, 1)
}

func TestResampleEmptyInput(t *testing.T) {
	out := ResamplePCM16(nil, 8000, 16000)
	assert.Empty(t, out)
}
