// Package queue carries status callbacks from the workflow orchestrator to
// the lifecycle tracker, in process or over RabbitMQ.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StatusTopic is the default queue for orchestrator status callbacks.
const StatusTopic = "prospect_status_updates"

// Handler returns nil once a job is done for good. An error asks for redelivery.
type Handler func(ctx context.Context, body []byte) error

type Queue interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Subscribe(topic string, handler Handler) error
}

// InMemoryQueue delivers each job to every subscriber with bounded retries.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]Handler
	wg         sync.WaitGroup
	MaxRetries int
	Backoff    time.Duration
	Log        *zap.Logger
}

func NewInMemoryQueue(log *zap.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
		Log:        log,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Topic      string
	Body       []byte
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, body []byte) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		job := JobPayload{Topic: topic, Body: body, MaxRetries: q.MaxRetries}
		q.wg.Add(1)
		go func(h Handler) {
			defer q.wg.Done()
			q.processJob(context.WithoutCancel(ctx), h, job)
		}(handler)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(ctx context.Context, handler Handler, job JobPayload) {
	for {
		err := handler(ctx, job.Body)
		if err == nil {
			return
		}

		job.RetryCount++
		if job.RetryCount > job.MaxRetries {
			q.Log.Error("job permanently failed",
				zap.String("topic", job.Topic),
				zap.Int("attempts", job.RetryCount),
				zap.Error(err),
			)
			return
		}
		q.Log.Warn("job failed, retrying",
			zap.String("topic", job.Topic),
			zap.Int("attempt", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Error(err),
		)
		time.Sleep(time.Duration(job.RetryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has finished.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

// StartStatusCallbackSubscriber wires handler to the status topic.
func StartStatusCallbackSubscriber(q Queue, topic string, handler Handler, log *zap.Logger) error {
	if topic == "" {
		topic = StatusTopic
	}
	if err := q.Subscribe(topic, handler); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	log.Info("status callback subscriber started", zap.String("topic", topic))
	return nil
}
