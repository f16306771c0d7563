// Package callrecord holds the per-call data model: identity, lifecycle
// timestamps, transcript, signaling state and the conversation state
// machine that enforces turn-taking.
package callrecord

import (
	"sync"
	"time"
)

// Direction is the call's originating side.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// SignalingState is the carrier-visible call status, the closed set the
// carrier's own status strings are mapped onto.
type SignalingState string

const (
	SignalingQueued     SignalingState = "queued"
	SignalingInitiated  SignalingState = "initiated"
	SignalingRinging    SignalingState = "ringing"
	SignalingInProgress SignalingState = "in-progress"
	SignalingCompleted  SignalingState = "completed"
	SignalingBusy       SignalingState = "busy"
	SignalingFailed     SignalingState = "failed"
	SignalingNoAnswer   SignalingState = "no-answer"
	SignalingCanceled   SignalingState = "canceled"
)

// IsTerminal reports whether the state ends the call's lifecycle; resources
// are released once a call reaches one of these.
func (s SignalingState) IsTerminal() bool {
	switch s {
	case SignalingCompleted, SignalingFailed, SignalingBusy, SignalingNoAnswer, SignalingCanceled:
		return true
	default:
		return false
	}
}

// ConversationState is the internal per-call state machine that gates audio
// flow between the caller and the speech-to-text backend.
type ConversationState string

const (
	ConversationIdle       ConversationState = "idle"
	ConversationSpeaking   ConversationState = "speaking"
	ConversationListening  ConversationState = "listening"
	ConversationProcessing ConversationState = "processing"
)

// Role identifies who produced a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptEntry is one immutable turn in the call's transcript. It is
// created once (on a final STT result for the user, or immediately before
// synthesis for the assistant) and never mutated afterward.
type TranscriptEntry struct {
	Role       Role
	Text       string
	Timestamp  time.Time
	Confidence *float32 // nil when the source has no notion of confidence
}

// Record is one call's complete mutable state. All mutation goes through
// its own mutex; the call manager never reaches into these fields directly.
type Record struct {
	mu sync.Mutex

	CallSID     string
	AccountSID  string
	StreamSID   string
	Direction   Direction
	From        string
	To          string

	CreatedAt  time.Time
	AnsweredAt *time.Time
	EndedAt    *time.Time

	Transcript []TranscriptEntry

	// Metadata holds arbitrary caller-supplied key/value pairs. Keys
	// prefixed with "_" are reserved for internal bookkeeping conventions
	// carried over from the bridge's own use (see PendingGreeting below,
	// which supersedes the "_greeting" string-keyed convention with a typed
	// field but keeps Metadata available for anything else callers stash).
	Metadata map[string]string

	SignalingState    SignalingState
	ConversationState ConversationState

	// PendingGreeting holds text queued by MakeConversationCall to be
	// spoken once the media stream attaches; cleared once spoken.
	PendingGreeting *string

	RecordingURL *string
}

// New creates a call record in its initial state.
func New(callSID, accountSID string, direction Direction, from, to string) *Record {
	return &Record{
		CallSID:           callSID,
		AccountSID:        accountSID,
		Direction:         direction,
		From:              from,
		To:                to,
		CreatedAt:         time.Now(),
		Metadata:          make(map[string]string),
		SignalingState:    SignalingQueued,
		ConversationState: ConversationIdle,
	}
}

// WithLock runs fn while holding the record's mutex, the single-writer
// boundary every mutation (from carrier events, API handlers, or STT
// callbacks) must go through.
func (r *Record) WithLock(fn func(r *Record)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

// addTranscriptEntry appends an entry without taking the lock; the caller
// must already hold r.mu (as AddUserTurn, AddAssistantTurn and WithLock do).
func (r *Record) addTranscriptEntry(role Role, text string, confidence *float32) {
	r.Transcript = append(r.Transcript, TranscriptEntry{
		Role:       role,
		Text:       text,
		Timestamp:  time.Now(),
		Confidence: confidence,
	})
}

// AddUserTurn appends a user transcript entry with an optional confidence.
func (r *Record) AddUserTurn(text string, confidence *float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addTranscriptEntry(RoleUser, text, confidence)
}

// AddAssistantTurn appends an assistant transcript entry.
func (r *Record) AddAssistantTurn(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addTranscriptEntry(RoleAssistant, text, nil)
}

// MarkAnswered sets AnsweredAt if not already set.
func (r *Record) MarkAnswered() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.AnsweredAt == nil {
		now := time.Now()
		r.AnsweredAt = &now
	}
}

// MarkEnded sets EndedAt if not already set and returns the call's duration
// in whole seconds (0 if never answered).
func (r *Record) MarkEnded() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.EndedAt == nil {
		now := time.Now()
		r.EndedAt = &now
	}
	return r.durationLocked()
}

// Duration returns the current (possibly still-open) call duration.
func (r *Record) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.durationLocked()
}

func (r *Record) durationLocked() time.Duration {
	if r.AnsweredAt == nil {
		return 0
	}
	end := time.Now()
	if r.EndedAt != nil {
		end = *r.EndedAt
	}
	d := end.Sub(*r.AnsweredAt)
	if d < 0 {
		return 0
	}
	return d.Round(time.Second)
}

// SetStreamSID records the media-stream id once the carrier WebSocket
// attaches.
func (r *Record) SetStreamSID(streamSID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StreamSID = streamSID
}

// SetPendingGreeting stashes text to be spoken once the media stream
// attaches.
func (r *Record) SetPendingGreeting(greeting string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PendingGreeting = &greeting
}

// TakePendingGreeting returns and clears the pending greeting, if any, so
// it is spoken at most once.
func (r *Record) TakePendingGreeting() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.PendingGreeting == nil {
		return "", false
	}
	greeting := *r.PendingGreeting
	r.PendingGreeting = nil
	return greeting, true
}

// SetSignalingState updates the signaling state under lock.
func (r *Record) SetSignalingState(s SignalingState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SignalingState = s
}

// GetSignalingState reads the signaling state under lock.
func (r *Record) GetSignalingState() SignalingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.SignalingState
}

// SetConversationState updates the conversation state under lock.
func (r *Record) SetConversationState(s ConversationState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ConversationState = s
}

// GetConversationState reads the conversation state under lock.
func (r *Record) GetConversationState() ConversationState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ConversationState
}

// TranscriptSnapshot returns a copy of the transcript for read-only use
// (e.g. serializing the call record to JSON for the REST API).
func (r *Record) TranscriptSnapshot() []TranscriptEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TranscriptEntry, len(r.Transcript))
	copy(out, r.Transcript)
	return out
}
