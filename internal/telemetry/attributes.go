package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	AttrCallSID       = "call.sid"
	AttrCallDirection = "call.direction"
	AttrCallState     = "call.state"

	AttrAudioSampleRate = "audio.sample_rate"
	AttrAudioEncoding   = "audio.encoding"
	AttrAudioDataSize   = "audio.data_size"

	AttrSTTProvider = "stt.provider"
	AttrTTSProvider = "tts.provider"
	AttrTTSVoice    = "tts.voice"

	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

func CallAttrs(callSID, direction, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCallSID, callSID),
		attribute.String(AttrCallDirection, direction),
		attribute.String(AttrCallState, state),
	}
}

func ErrorAttrs(errType, errMsg string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, errMsg),
	}
}

// StartSTTSpan instruments a single speech-to-text round trip. The caller
// must invoke the returned finish func with the recognized text (or error)
// once the round trip completes.
func StartSTTSpan(ctx context.Context, provider string, audioSize int) (context.Context, func(text string, err error)) {
	spanCtx, span := StartSpan(ctx, "stt.recognize",
		trace.WithAttributes(
			attribute.String(AttrSTTProvider, provider),
			attribute.Int(AttrAudioDataSize, audioSize),
		),
	)
	return spanCtx, func(text string, err error) {
		if err != nil {
			span.RecordError(err)
		} else {
			span.SetAttributes(attribute.Int("text.length", len(text)))
		}
		span.End()
	}
}

// StartTTSSpan instruments a single text-to-speech synthesis call.
func StartTTSSpan(ctx context.Context, provider, voice, text string) (context.Context, func(audioSize int, err error)) {
	spanCtx, span := StartSpan(ctx, "tts.synthesize",
		trace.WithAttributes(
			attribute.String(AttrTTSProvider, provider),
			attribute.String(AttrTTSVoice, voice),
			attribute.Int("text.length", len(text)),
		),
	)
	return spanCtx, func(audioSize int, err error) {
		if err != nil {
			span.RecordError(err)
		} else {
			span.SetAttributes(attribute.Int(AttrAudioDataSize, audioSize))
		}
		span.End()
	}
}
