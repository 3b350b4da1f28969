// Package rabbitmq wraps the broker connection with a producer and a
// consumer loop. RabbitMQ is the at-least-once job queue behind
// delayed-payment reconciliation, notification retries and scheduled
// notification sweeps; every consumer registered against it must be
// idempotent on its message key.
package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bodaboda-insure/core/internal/platform/log"
)

// Connection is a hub which deals with rabbitmq connections.
type Connection struct {
	ConnectionString string
	Logger           log.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// GetChannel returns the shared channel, dialing and declaring it on
// first use.
func (c *Connection) GetChannel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil && !c.ch.IsClosed() {
		return c.ch, nil
	}

	conn, err := amqp.Dial(c.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if c.Logger != nil {
		c.Logger.Info("connected to rabbitmq")
	}

	c.conn = conn
	c.ch = ch

	return c.ch, nil
}

// HealthCheck reports whether the channel is open and the broker still
// reachable.
func (c *Connection) HealthCheck() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ch != nil && !c.ch.IsClosed()
}

// Producer publishes persistent JSON messages to an exchange with a
// routing key. In this repo the only publisher is the command layer's
// reconcile-job enqueue after a payment push is sent.
type Producer struct {
	conn *Connection
}

func NewProducer(conn *Connection) *Producer {
	return &Producer{conn: conn}
}

func (p *Producer) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	ch, err := p.conn.GetChannel()
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// ConsumerFunc handles one delivery body; a non-nil return nacks and
// requeues the delivery so an at-least-once consumer retries it.
type ConsumerFunc func(ctx context.Context, body []byte) error

// Consumer drives a single queue with a registered handler, acking on
// success and nacking-with-requeue on error so the broker eventually
// retries; the handler itself must be idempotent.
type Consumer struct {
	conn    *Connection
	queue   string
	handler ConsumerFunc
	logger  log.Logger
}

func NewConsumer(conn *Connection, queue string, handler ConsumerFunc, logger log.Logger) *Consumer {
	return &Consumer{conn: conn, queue: queue, handler: handler, logger: logger}
}

// Run blocks consuming deliveries until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	ch, err := c.conn.GetChannel()
	if err != nil {
		return err
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume queue %s: %w", c.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}

			if err := c.handler(ctx, d.Body); err != nil {
				if c.logger != nil {
					c.logger.Errorf("handler failed for queue %s: %v", c.queue, err)
				}

				_ = d.Nack(false, true)

				continue
			}

			_ = d.Ack(false)
		}
	}
}
