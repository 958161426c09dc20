package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/guided-resolution/internal/model"
)

const (
	// StreamName is the name of the guidance stream.
	StreamName = "GUIDANCE"

	// NotifyPrefix prefixes admin notification subjects.
	NotifyPrefix = "notify"

	// FlowPrefix prefixes flow event subjects.
	FlowPrefix = "flow"
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the guidance stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{NotifyPrefix + ".>", FlowPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Duplicates:  10 * time.Minute,
		Description: "Escalation notifications and flow session events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// Publish publishes data on subject. msgID is used for JetStream
// de-duplication so a relay retry after a lost ack is not delivered twice.
func (m *StreamManager) Publish(ctx context.Context, subject, msgID string, data []byte) (uint64, error) {
	msg := nats.NewMsg(subject)
	msg.Data = data
	var opts []jetstream.PublishOpt
	if msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}

	ack, err := m.client.JetStream().PublishMsg(ctx, msg, opts...)
	if err != nil {
		return 0, fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	return ack.Sequence, nil
}

// AdminSubject returns the notification subject of one admin.
func AdminSubject(adminID string) string {
	return fmt.Sprintf("%s.admin.%s", NotifyPrefix, token(adminID))
}

// QueueSubject returns the notification subject of an unassigned queue.
func QueueSubject(queue string) string {
	return fmt.Sprintf("%s.queue.%s", NotifyPrefix, token(queue))
}

// FlowEventSubject returns the subject of a flow event on a thread.
func FlowEventSubject(eventType model.EventType, threadID string) string {
	return fmt.Sprintf("%s.%s.%s", FlowPrefix, eventType, token(threadID))
}

// token makes s safe to use as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
