package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/google/uuid"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hoangphuc3604/my-shop-backend/internal/services"
)

func sampleEvent() services.OrderEvent {
	return services.OrderEvent{
		Type:           "order.status.changed",
		OrderID:        "ord_01",
		PreviousStatus: "Created",
		CurrentStatus:  "Paid",
		ActorID:        "user-1",
		OccurredAt:     time.Date(2025, 5, 6, 9, 0, 0, 0, time.FixedZone("JST", 9*3600)),
		Metadata:       map[string]any{"finalPrice": 2025},
	}
}

func TestPubSubPublisherPublishesEnvelope(t *testing.T) {
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

	topic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	publisher, err := NewPubSubPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}
	defer publisher.Close()

	if err := publisher.Ping(ctx); err != nil {
		t.Fatalf("Ping on existing topic: %v", err)
	}
	if err := publisher.PublishOrderEvent(ctx, sampleEvent()); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	msg := messages[0]

	var payload Envelope
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if _, err := uuid.Parse(payload.EventID); err != nil {
		t.Fatalf("expected uuid event id, got %q", payload.EventID)
	}
	if payload.OrderID != "ord_01" || payload.CurrentStatus != "Paid" || payload.OccurredAt.Location() != time.UTC {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if msg.Attributes["eventType"] != "order.status.changed" || msg.Attributes["eventId"] != payload.EventID {
		t.Fatalf("unexpected attributes %v", msg.Attributes)
	}
	if msg.OrderingKey != "ord_01" {
		t.Fatalf("expected ordering key ord_01, got %q", msg.OrderingKey)
	}

	missing, err := NewPubSubPublisher(client.Topic("no-such-topic"))
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}
	if err := missing.Ping(ctx); err == nil {
		t.Fatal("expected Ping to fail for a missing topic")
	}
}

func TestNewPubSubPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
