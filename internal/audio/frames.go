package audio

const (
	// TwilioFrameBytes is 20ms of mu-law audio at 8kHz: the canonical
	// outbound frame size the carrier's media stream expects.
	TwilioFrameBytes = 160
	// TwilioSampleRate is the carrier's telephony sample rate.
	TwilioSampleRate = 8000
	// MuLawSilenceByte is the mu-law encoding of zero-amplitude silence,
	// used to right-pad a short trailing frame.
	MuLawSilenceByte = 0xFF
)

// ConvertToTwilioFrames takes little-endian 16-bit PCM at srcRate, resamples
// it to 8kHz, mu-law encodes it, and splits it into fixed TwilioFrameBytes
// chunks. The final frame is right-padded with mu-law silence when the input
// does not align to the frame size.
func ConvertToTwilioFrames(pcm []byte, srcRate int) [][]byte {
	resampled := ResamplePCM16(pcm, srcRate, TwilioSampleRate)
	mulaw := PCMToMuLaw(resampled)

	if len(mulaw) == 0 {
		return nil
	}

	numFrames := (len(mulaw) + TwilioFrameBytes - 1) / TwilioFrameBytes
	frames := make([][]byte, 0, numFrames)
	for i := 0; i < numFrames; i++ {
		start := i * TwilioFrameBytes
		end := start + TwilioFrameBytes
		if end > len(mulaw) {
			frame := make([]byte, TwilioFrameBytes)
			copy(frame, mulaw[start:])
			for j := len(mulaw) - start; j < TwilioFrameBytes; j++ {
				frame[j] = MuLawSilenceByte
			}
			frames = append(frames, frame)
		} else {
			frames = append(frames, mulaw[start:end])
		}
	}
	return frames
}

// ConvertFromTwilio concatenates a run of inbound mu-law frames, decodes
// them to PCM, and resamples to dstRate (16kHz to feed STT).
func ConvertFromTwilio(frames [][]byte, dstRate int) []byte {
	total := 0
	for _, f := range frames {
		total += len(f)
	}
	mulaw := make([]byte, 0, total)
	for _, f := range frames {
		mulaw = append(mulaw, f...)
	}

	pcm := MuLawToPCM(mulaw)
	return ResamplePCM16(pcm, TwilioSampleRate, dstRate)
}
