package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// JobMessage is the body of every chat job delivery.
type JobMessage struct {
	JobID   string `json:"job_id"`
	Attempt int    `json:"attempt"`
}

func DecodeJobMessage(body []byte) (JobMessage, error) {
	var m JobMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return m, err
	}
	if m.JobID == "" {
		return m, errors.New("rabbitmq: job message without job_id")
	}
	return m, nil
}

type Publisher struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queues Queues
	// amqp channels are not safe for concurrent publishes
	mu sync.Mutex
}

func NewPublisher(url, queue string) (*Publisher, error) {
	q := QueuesFor(queue)
	conn, ch, err := dial(url, q)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queues: q}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) PublishJob(ctx context.Context, jobID string) error {
	return p.publish(ctx, p.queues.Main, JobMessage{JobID: jobID}, 0)
}

// PublishRetry parks the message on the retry queue; it returns to the main queue
// once delay has passed.
func (p *Publisher) PublishRetry(ctx context.Context, m JobMessage, delay time.Duration) error {
	return p.publish(ctx, p.queues.Retry, m, delay)
}

func (p *Publisher) publish(ctx context.Context, queue string, m JobMessage, delay time.Duration) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	}
	if delay > 0 {
		msg.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(cctx,
		"",    // default exchange
		queue, // routing key = queue
		false,
		false,
		msg,
	)
}
