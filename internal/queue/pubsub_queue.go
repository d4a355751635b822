package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// PubSubQueue carries enrichment tasks over Google Cloud Pub/Sub so the
// search and enrichment stages can run in separate processes. It
// authenticates with Application Default Credentials.
type PubSubQueue struct {
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	recvOnce sync.Once
	tasks    chan Task
	cancel   context.CancelFunc
	done     chan struct{}
	recvErr  error
}

// DialPubSub connects a client and verifies the topic exists. The
// caller owns the returned client and builds per-run queues over it
// with NewPubSub.
func DialPubSub(ctx context.Context, projectID, topicID string) (*pubsub.Client, *pubsub.Topic, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !ok {
		_ = client.Close()
		return nil, nil, fmt.Errorf("pubsub topic %q does not exist", topicID)
	}
	return client, topic, nil
}

// NewPubSub builds a queue over an already-dialed topic and
// subscription. Close stops this queue's receiver only; the topic and
// subscription stay usable, so callers can mint one queue per run over
// a shared connection.
func NewPubSub(topic *pubsub.Topic, sub *pubsub.Subscription, logger *zap.Logger) *PubSubQueue {
	return &PubSubQueue{
		topic:  topic,
		sub:    sub,
		logger: logger,
		tasks:  make(chan Task, 64),
		done:   make(chan struct{}),
	}
}

// Enqueue publishes the task and waits for the server ack.
func (q *PubSubQueue) Enqueue(ctx context.Context, task Task) error {
	if q.topic == nil {
		return fmt.Errorf("pubsub queue has no topic configured")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	res := q.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish task %s: %w", task.OpportunityID, err)
	}
	return nil
}

// Dequeue returns the next task from the subscription. The first call
// starts the streaming receiver.
func (q *PubSubQueue) Dequeue(ctx context.Context) (Task, error) {
	if q.sub == nil {
		return Task{}, fmt.Errorf("pubsub queue has no subscription configured")
	}
	q.recvOnce.Do(q.startReceiver)

	select {
	case <-ctx.Done():
		return Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.tasks:
		if !ok {
			if q.recvErr != nil {
				return Task{}, q.recvErr
			}
			return Task{}, ErrClosed
		}
		return task, nil
	}
}

func (q *PubSubQueue) startReceiver() {
	recvCtx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	go func() {
		defer close(q.done)
		defer close(q.tasks)
		err := q.sub.Receive(recvCtx, func(_ context.Context, m *pubsub.Message) {
			var task Task
			if err := json.Unmarshal(m.Data, &task); err != nil {
				q.logger.Warn("dropping malformed task message", zap.Error(err))
				m.Ack()
				return
			}
			select {
			case q.tasks <- task:
				m.Ack()
			case <-recvCtx.Done():
				m.Nack()
			}
		})
		if err != nil && recvCtx.Err() == nil {
			q.recvErr = fmt.Errorf("pubsub receive: %w", err)
		}
	}()
}

// Close stops the receiver. Undelivered messages are nacked and
// redelivered to the next queue on the subscription.
func (q *PubSubQueue) Close() {
	if q.cancel != nil {
		q.cancel()
		<-q.done
	}
}
