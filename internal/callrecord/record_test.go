package callrecord

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordDefaults(t *testing.T) {
	r := New("CA1", "AC1", DirectionOutbound, "+15550001", "+15559999")
	assert.Equal(t, SignalingQueued, r.GetSignalingState())
	assert.Equal(t, ConversationIdle, r.GetConversationState())
	assert.Nil(t, r.AnsweredAt)
	assert.Nil(t, r.EndedAt)
}

func TestDurationBeforeAnsweredIsZero(t *testing.T) {
	r := New("CA1", "AC1", DirectionOutbound, "a", "b")
	assert.Equal(t, time.Duration(0), r.Duration())
}

func TestMarkEndedComputesDuration(t *testing.T) {
	r := New("CA1", "AC1", DirectionOutbound, "a", "b")
	r.MarkAnswered()
	time.Sleep(10 * time.Millisecond)
	d := r.MarkEnded()
	assert.GreaterOrEqual(t, d, time.Duration(0))

	// Idempotent: calling MarkEnded again must not move EndedAt forward.
	first := *r.EndedAt
	time.Sleep(5 * time.Millisecond)
	r.MarkEnded()
	assert.Equal(t, first, *r.EndedAt)
}

func TestTranscriptOrdering(t *testing.T) {
	r := New("CA1", "AC1", DirectionInbound, "a", "b")
	conf := float32(0.95)
	r.AddUserTurn("hello", &conf)
	r.AddAssistantTurn("hi there")

	snap := r.TranscriptSnapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, RoleUser, snap[0].Role)
	assert.Equal(t, RoleAssistant, snap[1].Role)
	assert.Equal(t, float32(0.95), *snap[0].Confidence)
	assert.Nil(t, snap[1].Confidence)
}

func TestParseStatus(t *testing.T) {
	cases := map[string]SignalingState{
		"queued":      SignalingQueued,
		"RINGING":     SignalingRinging,
		"in-progress": SignalingInProgress,
		"In_Progress": SignalingInProgress,
		"completed":   SignalingCompleted,
		"BUSY":        SignalingBusy,
		"failed":      SignalingFailed,
		"no-answer":   SignalingNoAnswer,
		"canceled":    SignalingCanceled,
		"gibberish":   SignalingInitiated,
		"":            SignalingInitiated,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseStatus(in), "input %q", in)
	}
}

func TestSignalingStateIsTerminal(t *testing.T) {
	terminal := []SignalingState{SignalingCompleted, SignalingFailed, SignalingBusy, SignalingNoAnswer, SignalingCanceled}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), s)
	}
	nonTerminal := []SignalingState{SignalingQueued, SignalingInitiated, SignalingRinging, SignalingInProgress}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), s)
	}
}
