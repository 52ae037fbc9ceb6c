package queue

import (
	"context"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// maxRedeliveries bounds how often a failing delivery is requeued.
const maxRedeliveries = 3

const retryHeader = "x-retry-count"

// AMQPQueue is a RabbitMQ-backed Queue with manual acknowledgements.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	Log  *zap.Logger
}

func DialAMQP(url string, log *zap.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, Log: log}, nil
}

func (q *AMQPQueue) declare(topic string) (amqp.Queue, error) {
	return q.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
}

func (q *AMQPQueue) Publish(_ context.Context, topic string, body []byte) error {
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retries int) error {
	if _, err := q.declare(topic); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	return q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: int32(retries)},
		Body:         body,
	})
}

// Subscribe consumes topic in the background until the channel closes.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	if _, err := q.declare(topic); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for d := range msgs {
			err := handler(context.Background(), d.Body)
			q.settle(topic, d, err)
		}
		q.Log.Info("consumer stopped", zap.String("topic", topic))
	}()
	return nil
}

// settle acks done jobs. A failed job is republished with a bumped retry
// count until maxRedeliveries, then dropped.
func (q *AMQPQueue) settle(topic string, d amqp.Delivery, err error) {
	if err == nil {
		if aerr := d.Ack(false); aerr != nil {
			q.Log.Error("ack failed", zap.Error(aerr))
		}
		return
	}

	retries := RetryCount(d.Headers)
	if retries >= maxRedeliveries {
		q.Log.Error("dropping delivery after retries",
			zap.String("topic", topic),
			zap.Int("retries", retries),
			zap.Error(err),
		)
		_ = d.Nack(false, false)
		return
	}

	q.Log.Warn("delivery failed, requeueing",
		zap.String("topic", topic),
		zap.Int("retry", retries+1),
		zap.Error(err),
	)
	if perr := q.publish(topic, d.Body, retries+1); perr != nil {
		q.Log.Error("republish failed", zap.Error(perr))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// RetryCount reads the retry header in whatever integer type the broker
// returned it as.
func RetryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}

func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
