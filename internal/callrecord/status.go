package callrecord

import "strings"

// ParseStatus maps a carrier status string to the closed SignalingState set,
// case-insensitively; unknown strings default to SignalingInitiated.
func ParseStatus(provider string) SignalingState {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "queued":
		return SignalingQueued
	case "initiated":
		return SignalingInitiated
	case "ringing":
		return SignalingRinging
	case "in-progress", "in_progress", "answered":
		return SignalingInProgress
	case "completed":
		return SignalingCompleted
	case "busy":
		return SignalingBusy
	case "failed":
		return SignalingFailed
	case "no-answer", "no_answer":
		return SignalingNoAnswer
	case "canceled", "cancelled":
		return SignalingCanceled
	default:
		return SignalingInitiated
	}
}
