package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/feastline/api/internal/services"
)

func TestPubSubNotifierPublishesEnvelope(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "order-notifications")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	notifier, err := NewPubSubNotifier(topic)
	if err != nil {
		t.Fatalf("NewPubSubNotifier: %v", err)
	}

	occurredAt := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	err = notifier.Publish(ctx, services.Notification{
		Type:        "order.payment.confirmed",
		OrderID:     "ord_01",
		OrderNumber: "FL-2026-000007",
		Status:      "paid",
		Recipient:   "guest@example.com",
		OccurredAt:  occurredAt,
		Metadata:    map[string]string{"gateway": "paystack"},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload envelope
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.MessageID == "" {
		t.Errorf("expected generated message id")
	}
	if payload.OrderID != "ord_01" || payload.OrderNumber != "FL-2026-000007" {
		t.Errorf("unexpected payload %#v", payload)
	}
	if !payload.OccurredAt.Equal(occurredAt) {
		t.Errorf("expected occurred_at preserved, got %s", payload.OccurredAt)
	}
	if payload.Metadata["gateway"] != "paystack" {
		t.Errorf("expected metadata preserved, got %#v", payload.Metadata)
	}

	if attr := messages[0].Attributes["type"]; attr != "order.payment.confirmed" {
		t.Errorf("expected type attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["orderId"]; attr != "ord_01" {
		t.Errorf("expected orderId attribute, got %q", attr)
	}
	if _, ok := messages[0].Attributes["recipient"]; ok {
		t.Errorf("recipient must not leak into attributes")
	}
}

func TestNewPubSubNotifierRequiresTopic(t *testing.T) {
	if _, err := NewPubSubNotifier(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
