package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"

	"github.com/feastline/api/internal/services"
)

// envelope is the wire shape of an order notification message. Consumers key on
// messageId for their own dedup before fanning out email or SMS.
type envelope struct {
	MessageID   string            `json:"message_id"`
	Type        string            `json:"type"`
	OrderID     string            `json:"order_id"`
	OrderNumber string            `json:"order_number,omitempty"`
	Status      string            `json:"status,omitempty"`
	Recipient   string            `json:"recipient,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PubSubNotifier publishes order notifications to a Pub/Sub topic.
type PubSubNotifier struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
	newID   func() string
}

var _ services.Notifier = (*PubSubNotifier)(nil)

// NewPubSubNotifier constructs a Pub/Sub backed notifier over the given topic.
func NewPubSubNotifier(topic *pubsub.Topic) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("pubsub notifier: topic is required")
	}
	return &PubSubNotifier{
		topic:   topic,
		marshal: json.Marshal,
		newID:   uuid.NewString,
	}, nil
}

// Publish enqueues the notification on the configured topic and blocks until
// the broker acknowledges it.
func (p *PubSubNotifier) Publish(ctx context.Context, n services.Notification) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub notifier: not initialised")
	}

	data, err := p.marshal(envelope{
		MessageID:   p.newID(),
		Type:        n.Type,
		OrderID:     n.OrderID,
		OrderNumber: n.OrderNumber,
		Status:      n.Status,
		Recipient:   n.Recipient,
		OccurredAt:  n.OccurredAt.UTC(),
		Metadata:    n.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", n.Type)
	setAttr(attrs, "orderId", n.OrderID)
	setAttr(attrs, "orderNumber", n.OrderNumber)
	setAttr(attrs, "status", n.Status)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
