package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/acme/announcement-call/internal/config"
	"github.com/acme/announcement-call/internal/telephony"
)

var _ telephony.Client = (*Provider)(nil)

// Provider simulates the telephony platform for local runs. A call reports
// "connecting" until it has been polled connectAfter times.
type Provider struct {
	connectAfter int

	mu    sync.Mutex
	calls map[string]*simulatedCall
}

type simulatedCall struct {
	conn  telephony.CallConnection
	polls int
}

// NewProvider constructs a mock provider.
func NewProvider(cfg config.CommunicationConfig) *Provider {
	return &Provider{
		connectAfter: cfg.MockConnectAfter,
		calls:        make(map[string]*simulatedCall),
	}
}

// CreateCall registers a simulated call.
func (p *Provider) CreateCall(ctx context.Context, params telephony.CreateCallParams) (*telephony.CallConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params.To == "" || params.From == "" {
		return nil, fmt.Errorf("mock: from and to are required")
	}

	call := &simulatedCall{conn: telephony.CallConnection{
		ID:    uuid.NewString(),
		State: "connecting",
		From:  params.From,
		To:    params.To,
	}}

	p.mu.Lock()
	p.calls[call.conn.ID] = call
	p.mu.Unlock()

	conn := call.conn
	return &conn, nil
}

// GetCallConnectionProperties advances the simulated call by one poll.
func (p *Provider) GetCallConnectionProperties(ctx context.Context, callConnectionID string) (*telephony.CallConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	call, ok := p.calls[callConnectionID]
	if !ok {
		return nil, fmt.Errorf("mock: call %s not found", callConnectionID)
	}
	call.polls++
	if call.conn.State == "connecting" && call.polls >= p.connectAfter {
		call.conn.State = telephony.StateConnected
	}
	conn := call.conn
	return &conn, nil
}

// PlayMedia accepts playback on connected calls.
func (p *Provider) PlayMedia(ctx context.Context, callConnectionID, audioURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	call, ok := p.calls[callConnectionID]
	if !ok {
		return fmt.Errorf("mock: call %s not found", callConnectionID)
	}
	if call.conn.State != telephony.StateConnected {
		return fmt.Errorf("mock: call %s is %s, cannot play %s", callConnectionID, call.conn.State, audioURL)
	}
	return nil
}

// HangUp disconnects and forgets the call.
func (p *Provider) HangUp(ctx context.Context, callConnectionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.calls[callConnectionID]; !ok {
		return fmt.Errorf("mock: call %s not found", callConnectionID)
	}
	delete(p.calls, callConnectionID)
	return nil
}
