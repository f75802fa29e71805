package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/waitlist"
)

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	ch       channel
	producer string
	now      func() time.Time
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}

	return newPublisher(ch), nil
}

func newPublisher(ch channel) *Publisher {
	return &Publisher{
		ch:       ch,
		producer: waitlistServiceName,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

// EventMeta ties published outcomes back to the restock event that caused them.
type EventMeta struct {
	CorrelationID string
	CausationID   string
}

func (p *Publisher) PublishNotified(ctx context.Context, meta EventMeta, sub waitlist.Subscription) error {
	at := p.now()
	payload := WaitlistNotifiedPayload{
		SubscriptionID:  sub.ID,
		Email:           sub.Email,
		ProductID:       sub.ProductID,
		VariantID:       sub.VariantID,
		InventoryItemID: sub.InventoryItemID,
		NotifiedAt:      at,
	}
	env, err := newEnvelope(p.producer, meta, EventTypeWaitlistNotified, waitlistNotifiedSchema, sub.ID, at, payload)
	if err != nil {
		return err
	}
	return p.publishJSON(ctx, WaitlistNotifiedRoutingKey, env)
}

func (p *Publisher) PublishNotifyFailed(ctx context.Context, meta EventMeta, sub waitlist.Subscription, reason string) error {
	at := p.now()
	payload := WaitlistNotifyFailedPayload{
		SubscriptionID:  sub.ID,
		ProductID:       sub.ProductID,
		VariantID:       sub.VariantID,
		InventoryItemID: sub.InventoryItemID,
		Reason:          reason,
		FailedAt:        at,
	}
	env, err := newEnvelope(p.producer, meta, EventTypeWaitlistNotifyFailed, waitlistNotifyFailedSchema, sub.ID, at, payload)
	if err != nil {
		return err
	}
	return p.publishJSON(ctx, WaitlistNotifyFailedRoutingKey, env)
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey string, env EventEnvelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", env.EventName, err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    env.EventID,
			Timestamp:    env.OccurredAt,
			Body:         body,
		},
	)
}
