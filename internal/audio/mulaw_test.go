package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMuLawEncodeDecode(t *testing.T) {
	cases := []struct {
		name string
		pcm  int16
	}{
		{"zero", 0},
		{"small-positive", 100},
		{"small-negative", -100},
		{"max-positive", 32767},
		{"max-negative", -32768},
		{"mid-positive", 16000},
		{"mid-negative", -16000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := MuLawEncode(tc.pcm)
			decoded := MuLawDecode(encoded)

			diff := math.Abs(float64(decoded) - float64(tc.pcm))
			tolerance := math.Max(math.Abs(float64(tc.pcm))*0.05, 200)
			assert.LessOrEqualf(t, diff, tolerance, "round trip %d -> %d (byte %#x) exceeds quantization tolerance", tc.pcm, decoded, encoded)
		})
	}
}

func TestMuLawDecodeLookupTable(t *testing.T) {
	// Known fixed points from the ITU-T G.711 table layout.
	assert.Equal(t, int16(0), MuLawDecode(0xFF))
	assert.Equal(t, int16(-32124), MuLawDecode(0x00))
	assert.Equal(t, int16(32124), MuLawDecode(0x80))
}

func TestMuLawToPCM(t *testing.T) {
	mulaw := []byte{0xFF, 0x00, 0x80}
	pcm := MuLawToPCM(mulaw)
	require.Len(t, pcm, 6)

	assert.Equal(t, int16(0), int16(pcm[0])|int16(pcm[1])<<8)
	assert.Equal(t, int16(-32124), int16(pcm[2])|int16(pcm[3])<<8)
	assert.Equal(t, int16(32124), int16(pcm[4])|int16(pcm[5])<<8)
}

func TestPCMToMuLaw(t *testing.T) {
	pcm := int16ToBytes([]int16{0, 1000, -1000})
	mulaw := PCMToMuLaw(pcm)
	require.Len(t, mulaw, 3)

	// Round-tripping each byte should land close to the original sample.
	for i, want := range []int16{0, 1000, -1000} {
		got := MuLawDecode(mulaw[i])
		diff := math.Abs(float64(got) - float64(want))
		assert.LessOrEqual(t, diff, math.Max(float64(want)*0.1, 200))
	}
}

func TestPCMToMuLawTruncatesOddTrailingByte(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03}
	mulaw := PCMToMuLaw(pcm)
	assert.Len(t, mulaw, 1)
}

func BenchmarkMuLawDecode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		MuLawDecode(byte(i % 256))
	}
}

func BenchmarkMuLawEncode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		MuLawEncode(int16(i % 30000))
	}
}
