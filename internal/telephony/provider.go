package telephony

import "context"

// StateConnected is the platform-reported state of an answered call.
const StateConnected = "connected"

// CallConnection is the platform's view of a call.
type CallConnection struct {
	ID    string
	State string
	From  string
	To    string
}

// CreateCallParams are the arguments for placing an outbound call.
type CreateCallParams struct {
	From        string
	To          string
	CallbackURL string
}

// Client abstracts the call-control operations of the telephony platform.
type Client interface {
	CreateCall(ctx context.Context, params CreateCallParams) (*CallConnection, error)
	GetCallConnectionProperties(ctx context.Context, callConnectionID string) (*CallConnection, error)
	// PlayMedia starts playback of a platform-fetched audio URL to every
	// participant. It returns once the platform accepted the request.
	PlayMedia(ctx context.Context, callConnectionID, audioURL string) error
	// HangUp terminates the call for all participants.
	HangUp(ctx context.Context, callConnectionID string) error
}
