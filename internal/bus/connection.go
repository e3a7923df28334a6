package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cfchain/indexer/internal/xlog"
)

// Conn owns a single AMQP connection and exposes fresh channels,
// reconnecting with exponential backoff the way
// messaging/rabbitmq.py's RabbitMQConnection does with pika.
type Conn struct {
	url string
	log xlog.Logger

	conn *amqp.Connection
}

// Dial connects to url (an amqp:// DSN), retrying indefinitely with
// exponential backoff until ctx is cancelled.
func Dial(ctx context.Context, url string, log xlog.Logger) (*Conn, error) {
	c := &Conn{url: url, log: log}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conn) connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 60 * time.Second
	b.MaxElapsedTime = 0
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("rabbitmq connection failed, retrying", "attempt", attempt, "err", err)
			return err
		}
		c.conn = conn
		c.log.Info("connected to rabbitmq")
		return nil
	}, backoff.WithContext(b, ctx))
}

// Channel opens a new AMQP channel, reconnecting first if the
// underlying connection has dropped.
func (c *Conn) Channel(ctx context.Context) (*amqp.Channel, error) {
	if c.conn == nil || c.conn.IsClosed() {
		if err := c.connect(ctx); err != nil {
			return nil, fmt.Errorf("bus: reconnect: %w", err)
		}
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("bus: open channel: %w", err)
	}
	return ch, nil
}

func (c *Conn) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
