package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes to the topic exchange in confirm mode: every
// call blocks until the broker acknowledges the message or ctx is
// done, per spec.md §4.4. The producer's cursor
// advance (internal/cursor) must only run after a batch's publishes
// all succeed this way.
type Publisher struct {
	ch *amqp.Channel

	confirms chan amqp.Confirmation
}

// NewPublisher wraps ch in confirm mode. ch is not shared with a
// consumer — publishers and consumers use separate channels.
func NewPublisher(ch *amqp.Channel) (*Publisher, error) {
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("bus: enable publisher confirms: %w", err)
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 16))
	return &Publisher{ch: ch, confirms: confirms}, nil
}

// Publish marshals msg to canonical JSON and publishes it as a
// persistent message, waiting for the broker's confirm.
func (p *Publisher) Publish(ctx context.Context, msg Publishable) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("bus: marshal message: %w", err)
	}

	if err := p.ch.PublishWithContext(ctx, ExchangeName, msg.RoutingKey(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	}); err != nil {
		return fmt.Errorf("bus: publish: %w", err)
	}

	select {
	case confirm := <-p.confirms:
		if !confirm.Ack {
			return fmt.Errorf("bus: publish to %s: broker nacked", msg.RoutingKey())
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) Close() error { return p.ch.Close() }
