package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queues Queues
}

// NewConsumer opens a channel with prefetch set to concurrency.
func NewConsumer(url, queue string, concurrency int) (*Consumer, error) {
	q := QueuesFor(queue)
	conn, ch, err := dial(url, q)
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Consumer{conn: conn, ch: ch, queues: q}, nil
}

// Deliveries starts a manual-ack consumer on the main queue.
func (c *Consumer) Deliveries(tag string) (<-chan amqp.Delivery, error) {
	return c.ch.Consume(c.queues.Main, tag, false, false, false, false, nil)
}

// Closed reports connection loss.
func (c *Consumer) Closed() <-chan *amqp.Error {
	return c.conn.NotifyClose(make(chan *amqp.Error, 1))
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
