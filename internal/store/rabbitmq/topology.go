package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Queues names the main queue and the two queues derived from it.
type Queues struct {
	Main  string
	Retry string
	DLQ   string
}

func QueuesFor(queue string) Queues {
	return Queues{Main: queue, Retry: queue + ".retry", DLQ: queue + ".dlq"}
}

// DeclareTopology declares the three queues. Publisher and consumer both call it,
// so either side can start first.
func DeclareTopology(ch *amqp.Channel, q Queues) error {
	// DLQ
	if _, err := ch.QueueDeclare(
		q.DLQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	// Retry queue: per-message expiration -> dead-letter back to main queue
	if _, err := ch.QueueDeclare(
		q.Retry,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": q.Main,
		},
	); err != nil {
		return err
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	_, err := ch.QueueDeclare(
		q.Main,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": q.DLQ,
		},
	)
	return err
}

func dial(url string, q Queues) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if err := DeclareTopology(ch, q); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}
