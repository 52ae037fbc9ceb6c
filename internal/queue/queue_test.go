package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestQueue() *InMemoryQueue {
	q := NewInMemoryQueue(zap.NewNop())
	q.Backoff = 0
	return q
}

func TestInMemoryQueue_DeliversToSubscribers(t *testing.T) {
	q := newTestQueue()
	var got atomic.Value
	require.NoError(t, StartStatusCallbackSubscriber(q, "", func(_ context.Context, body []byte) error {
		got.Store(string(body))
		return nil
	}, zap.NewNop()))

	require.NoError(t, q.Publish(context.Background(), StatusTopic, []byte(`{"prospect_id":"p-1"}`)))
	q.Wait()
	assert.Equal(t, `{"prospect_id":"p-1"}`, got.Load())
}

func TestInMemoryQueue_RetriesUntilSuccess(t *testing.T) {
	q := newTestQueue()
	var calls atomic.Int32
	require.NoError(t, q.Subscribe("t", func(context.Context, []byte) error {
		if calls.Add(1) < 3 {
			return errors.New("store unavailable")
		}
		return nil
	}))

	require.NoError(t, q.Publish(context.Background(), "t", nil))
	q.Wait()
	assert.EqualValues(t, 3, calls.Load())
}

func TestInMemoryQueue_GivesUpAfterMaxRetries(t *testing.T) {
	q := newTestQueue()
	q.MaxRetries = 2
	var calls atomic.Int32
	require.NoError(t, q.Subscribe("t", func(context.Context, []byte) error {
		calls.Add(1)
		return errors.New("always")
	}))

	require.NoError(t, q.Publish(context.Background(), "t", nil))
	q.Wait()
	assert.EqualValues(t, 3, calls.Load())
}

func TestInMemoryQueue_NoSubscribers(t *testing.T) {
	assert.Error(t, newTestQueue().Publish(context.Background(), "nobody", nil))
}

type fakeAcknowledger struct {
	acked, nacked, requeued int
}

func (a *fakeAcknowledger) Ack(uint64, bool) error { a.acked++; return nil }

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	if requeue {
		a.requeued++
	}
	return nil
}

func (a *fakeAcknowledger) Reject(uint64, bool) error { return nil }

func TestAMQPQueue_Settle(t *testing.T) {
	q := &AMQPQueue{Log: zap.NewNop()}

	ack := &fakeAcknowledger{}
	q.settle(StatusTopic, amqp.Delivery{Acknowledger: ack}, nil)
	assert.Equal(t, 1, ack.acked)

	dropped := &fakeAcknowledger{}
	q.settle(StatusTopic, amqp.Delivery{
		Acknowledger: dropped,
		Headers:      amqp.Table{retryHeader: int32(maxRedeliveries)},
	}, errors.New("still failing"))
	assert.Equal(t, 1, dropped.nacked)
	assert.Zero(t, dropped.requeued)
}

func TestRetryCount(t *testing.T) {
	assert.Equal(t, 0, RetryCount(nil))
	assert.Equal(t, 2, RetryCount(amqp.Table{retryHeader: int32(2)}))
	assert.Equal(t, 3, RetryCount(amqp.Table{retryHeader: int64(3)}))
	assert.Equal(t, 0, RetryCount(amqp.Table{retryHeader: "x"}))
}
