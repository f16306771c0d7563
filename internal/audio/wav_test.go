package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPCMHeader(t *testing.T) {
	data := make([]byte, 3200) // 100ms at 16kHz/16-bit/mono
	wav := WrapPCM(data, 16000)

	require.Len(t, wav, wavHeaderSize+len(data))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, "fmt ", string(wav[12:16]))
	assert.Equal(t, "data", string(wav[36:40]))

	chunkSize := binary.LittleEndian.Uint32(wav[4:8])
	assert.Equal(t, uint32(len(data)+36), chunkSize)

	byteRate := binary.LittleEndian.Uint32(wav[28:32])
	assert.Equal(t, uint32(32000), byteRate)

	blockAlign := binary.LittleEndian.Uint16(wav[32:34])
	assert.Equal(t, uint16(2), blockAlign)

	dataLen := binary.LittleEndian.Uint32(wav[40:44])
	assert.Equal(t, uint32(len(data)), dataLen)
}
