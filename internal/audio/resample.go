package audio

// ResamplePCM16 linearly resamples 16-bit little-endian mono PCM from
// srcRate to dstRate. It is deliberately not spectrally accurate: the bridge
// only ever resamples voice-band telephony audio between integer-related
// rates (8k/16k/24k), where deterministic, allocation-predictable behavior
// matters more than fidelity. Returns the input unchanged when the rates
// match.
func ResamplePCM16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}

	samples := bytesToInt16(pcm)
	if len(samples) == 0 {
		return pcm
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(float64(len(samples)) / ratio)
	if outLen < 1 {
		outLen = 1
	}

	out := make([]int16, outLen)
	for i := range out {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)

		var a, b int16
		a = samples[idx]
		if idx+1 < len(samples) {
			b = samples[idx+1]
		} else {
			b = a
		}
		out[i] = int16(float64(a) + (float64(b)-float64(a))*frac)
	}

	return int16ToBytes(out)
}

func bytesToInt16(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return out
}

func int16ToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
