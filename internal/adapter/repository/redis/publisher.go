package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iho/carbonledger/internal/domain"
)

// EventMessage is the JSON body published for every lot event.
type EventMessage struct {
	ID            string         `json:"id"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   string         `json:"aggregate_id"`
	EventType     string         `json:"event_type"`
	Payload       map[string]any `json:"payload"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Publisher publishes outbox events on a Redis pub/sub channel.
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher creates a Publisher for channel.
func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

// Publish sends event to the channel. Having no subscribers is not an error.
func (p *Publisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	body, err := json.Marshal(EventMessage{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       event.Payload,
		CreatedAt:     event.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}

	return p.client.Publish(ctx, p.channel, body).Err()
}
