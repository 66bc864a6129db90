package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrSessionActive is returned when an outcome is requested for a session
// that has not reached a terminal state.
var ErrSessionActive = errors.New("call session still active")

// CallState enumerates lifecycle stages of an announcement call.
type CallState string

const (
	CallStateInitiated         CallState = "initiated"
	CallStatePolling           CallState = "polling"
	CallStateConnected         CallState = "connected"
	CallStateConnectTimeout    CallState = "connect_timeout"
	CallStatePlaybackTriggered CallState = "playback_triggered"
	CallStatePlaybackFailed    CallState = "playback_failed"
	CallStateCompleted         CallState = "completed"
	CallStateFailed            CallState = "failed"
)

// Terminal reports whether no further transition is expected.
func (s CallState) Terminal() bool {
	switch s {
	case CallStateConnectTimeout, CallStatePlaybackFailed, CallStateCompleted, CallStateFailed:
		return true
	}
	return false
}

// Outcome messages reported to callers.
const (
	MessageCompleted      = "Call initiated and audio playback started"
	MessageConnectTimeout = "Call initiated but not established yet"
)

// CallRequest is the inbound request to place an announcement call.
type CallRequest struct {
	DestinationNumber string
	AudioURL          string
}

// CallSession tracks one call for the lifetime of a single request.
type CallSession struct {
	CallConnectionID  string
	OriginNumber      string
	DestinationNumber string
	AudioURL          string
	State             CallState
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewCallSession starts a session in the initiated state.
func NewCallSession(callConnectionID, origin, destination, audioURL string) *CallSession {
	now := time.Now().UTC()
	return &CallSession{
		CallConnectionID:  callConnectionID,
		OriginNumber:      origin,
		DestinationNumber: destination,
		AudioURL:          audioURL,
		State:             CallStateInitiated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Transition moves the session to the given state.
func (s *CallSession) Transition(state CallState) {
	s.State = state
	s.UpdatedAt = time.Now().UTC()
}

// CallOutcome is the response payload derived from a terminal session.
type CallOutcome struct {
	Success          bool   `json:"success"`
	CallConnectionID string `json:"callConnectionId"`
	From             string `json:"from"`
	To               string `json:"to"`
	Message          string `json:"message"`
	AudioURL         string `json:"audioUrl,omitempty"`
}

// OutcomeFrom builds the outcome for a terminal session. Completed and
// connect-timeout sessions carry their caller-facing message; other terminal
// states report the state name.
func OutcomeFrom(s *CallSession) (*CallOutcome, error) {
	if !s.State.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrSessionActive, s.CallConnectionID, s.State)
	}

	out := &CallOutcome{
		CallConnectionID: s.CallConnectionID,
		From:             s.OriginNumber,
		To:               s.DestinationNumber,
	}
	switch s.State {
	case CallStateCompleted:
		out.Success = true
		out.Message = MessageCompleted
		out.AudioURL = s.AudioURL
	case CallStateConnectTimeout:
		out.Message = MessageConnectTimeout
	default:
		out.Message = string(s.State)
	}
	return out, nil
}
