package bus

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cfchain/indexer/internal/xlog"
)

// retryCountHeader is the fallback retry counter spec.md §4.9 names
// for brokers that don't expose their own delivery count.
const retryCountHeader = "x-retry-count"

// Outcome is what a Handler decided to do with one delivery.
type Outcome int

const (
	// OutcomeAck: processed successfully (including a detected
	// duplicate) — ack, no retry.
	OutcomeAck Outcome = iota
	// OutcomeRetryable: a transient failure (store connection drop,
	// deadlock) — retry up to maxRetries, then DLQ.
	OutcomeRetryable
	// OutcomeFatal: a parse error or unknown message_type — straight
	// to the DLQ, no retry.
	OutcomeFatal
)

// Handler processes one delivery body and reports the outcome.
type Handler func(ctx context.Context, body []byte) Outcome

// Consumer drains one or more queues with manual ack and the retry
// policy from spec.md §4.9: duplicates ack immediately, transient
// failures retry via a republished copy carrying an incremented
// x-retry-count header, exhausted retries and fatal errors reject
// without requeue so the per-queue DLX argument routes them to
// dlq.events.
type Consumer struct {
	ch         *amqp.Channel
	log        xlog.Logger
	maxRetries int
}

func NewConsumer(ch *amqp.Channel, prefetch int, maxRetries int, log xlog.Logger) (*Consumer, error) {
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, err
	}
	return &Consumer{ch: ch, log: log, maxRetries: maxRetries}, nil
}

// Consume blocks, handling deliveries from queue until ctx is
// cancelled or the channel closes.
func (c *Consumer) Consume(ctx context.Context, queue string, handler Handler) error {
	deliveries, err := c.ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, d, handler)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, handler Handler) {
	switch handler(ctx, d.Body) {
	case OutcomeAck:
		if err := d.Ack(false); err != nil {
			c.log.Warn("ack failed", "err", err)
		}
	case OutcomeFatal:
		if err := d.Reject(false); err != nil {
			c.log.Warn("reject failed", "err", err)
		}
	case OutcomeRetryable:
		c.retryOrDLQ(ctx, d)
	}
}

func (c *Consumer) retryOrDLQ(ctx context.Context, d amqp.Delivery) {
	count := retryCountOf(d)
	if count >= c.maxRetries {
		c.log.Warn("max retries exceeded, rejecting to dlq", "routing_key", d.RoutingKey, "retries", count)
		if err := d.Reject(false); err != nil {
			c.log.Warn("reject failed", "err", err)
		}
		return
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[retryCountHeader] = int32(count + 1)

	err := c.ch.PublishWithContext(ctx, ExchangeName, d.RoutingKey, false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         d.Body,
	})
	if err != nil {
		c.log.Warn("republish for retry failed, nacking with requeue", "err", err)
		_ = d.Nack(false, true)
		return
	}
	if err := d.Ack(false); err != nil {
		c.log.Warn("ack of retried original failed", "err", err)
	}
}

func retryCountOf(d amqp.Delivery) int {
	v, ok := d.Headers[retryCountHeader]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
