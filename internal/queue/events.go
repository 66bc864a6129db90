package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event types written to the call event stream.
const (
	EventTypeCallOutcome      = "call.outcome"
	EventTypePlatformCallback = "platform.callback"
)

// CallEvent describes something that happened to an announcement call.
type CallEvent struct {
	ID               uuid.UUID       `json:"id"`
	Type             string          `json:"type"`
	CallConnectionID string          `json:"call_connection_id"`
	State            string          `json:"state,omitempty"`
	From             string          `json:"from,omitempty"`
	To               string          `json:"to,omitempty"`
	AudioURL         string          `json:"audio_url,omitempty"`
	Success          bool            `json:"success"`
	Message          string          `json:"message,omitempty"`
	Error            string          `json:"error,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CallEventPublisher publishes call events to Kafka.
type CallEventPublisher struct {
	writer messageWriter
}

// NewCallEventPublisher constructs a publisher for the given topic.
func NewCallEventPublisher(k *Kafka, topic string) *CallEventPublisher {
	return &CallEventPublisher{writer: k.NewWriter(topic)}
}

// PublishCallEvent emits an event keyed by call connection id, so events of
// one call stay ordered within a partition.
func (p *CallEventPublisher) PublishCallEvent(ctx context.Context, event CallEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("call event publisher: marshal event: %w", err)
	}
	record := kafka.Message{
		Key:   []byte(event.CallConnectionID),
		Value: value,
		Time:  event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("call event publisher: write message: %w", err)
	}
	return nil
}

// Close closes the publisher.
func (p *CallEventPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event. It stands in when no brokers are configured.
type NopPublisher struct{}

// PublishCallEvent implements the publisher contract.
func (NopPublisher) PublishCallEvent(context.Context, CallEvent) error { return nil }
