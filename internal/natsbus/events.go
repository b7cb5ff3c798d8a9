package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/lumichat/agent-queue/internal/model"
	"github.com/lumichat/agent-queue/pkg/metrics"
)

const (
	// StreamName is the JetStream audit stream capturing every queue event.
	StreamName = "AGENT_EVENTS"

	// SubjectPrefix is the prefix for all queue event subjects.
	SubjectPrefix = "agentq"
)

// Bus exposes typed event subscriptions over the NATS client.
type Bus struct {
	client *Client
}

// NewBus creates a bus on an established client.
func NewBus(client *Client) *Bus {
	return &Bus{client: client}
}

// EventSubject returns the subject an event kind is published on.
func EventSubject(kind model.EventKind) string {
	return fmt.Sprintf("%s.events.%s", SubjectPrefix, kind)
}

// EnsureStream ensures the audit stream exists. The stream is retention
// only: the engine consumes the live core subscription, the stream keeps
// a replayable history for debugging missed state.
func (b *Bus) EnsureStream(ctx context.Context) error {
	js := b.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil // Stream already exists
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.events.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxBytes:    1024 * 1024 * 1024, // 1GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Agent queue real-time events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// PublishEvent publishes an event to the audit stream. Used for locally
// originated events (outgoing-send markers) so they appear in the same
// history as upstream events.
func (b *Bus) PublishEvent(ctx context.Context, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := b.client.JetStream().Publish(ctx, EventSubject(ev.Type), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// SubscribeEvents registers a handler for every queue event subject and
// returns an unsubscribe function. Events are delivered in transport
// arrival order; no buffering or reordering happens here. Envelopes that
// fail to decode are dropped and counted.
func (b *Bus) SubscribeEvents(handler func(model.Event)) (func(), error) {
	subject := fmt.Sprintf("%s.events.>", SubjectPrefix)

	sub, err := b.client.Conn().Subscribe(subject, func(msg *nats.Msg) {
		var ev model.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			metrics.RecordDroppedEvent("undecodable", "bad_json")
			return
		}
		if ev.Type == "" {
			metrics.RecordDroppedEvent("undecodable", "missing_type")
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	return func() {
		_ = sub.Unsubscribe()
	}, nil
}
