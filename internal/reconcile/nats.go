package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Default subject and queue group for reconcile requests.
const (
	DefaultSubject    = "ratings.reconcile"
	DefaultQueueGroup = "rating-reconcilers"
)

// NATSQueue publishes requests on a subject and receives them through a queue
// subscription, so each request is handled by one instance of the group.
type NATSQueue struct {
	nc      *nats.Conn
	subject string
	sub     *nats.Subscription
	ch      chan Request
	done    chan struct{}
	log     *zap.Logger
	once    sync.Once
}

// NewNATSQueue subscribes to subject within queue group and buffers up to
// size decoded requests.
func NewNATSQueue(nc *nats.Conn, subject, group string, size int, log *zap.Logger) (*NATSQueue, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if group == "" {
		group = DefaultQueueGroup
	}
	if size <= 0 {
		size = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	q := &NATSQueue{nc: nc, subject: subject, ch: make(chan Request, size), done: make(chan struct{}), log: log}

	sub, err := nc.QueueSubscribe(subject, group, q.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	q.sub = sub
	return q, nil
}

func (q *NATSQueue) handle(msg *nats.Msg) {
	var req Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		q.log.Warn("dropping malformed reconcile request", zap.Error(err))
		return
	}
	if req.MovieID == "" {
		q.log.Warn("dropping reconcile request without movie id", zap.String("event_id", req.EventID))
		return
	}
	// Blocking here applies back-pressure to the NATS subscription.
	select {
	case q.ch <- req:
	case <-q.done:
	}
}

// Enqueue publishes the request as JSON.
func (q *NATSQueue) Enqueue(_ context.Context, req Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode reconcile request: %w", err)
	}
	if err := q.nc.Publish(q.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", q.subject, err)
	}
	return nil
}

// Requests exposes decoded requests. The channel is never closed; consumers
// stop on their own context.
func (q *NATSQueue) Requests() <-chan Request {
	return q.ch
}

// Close unsubscribes and releases a handler blocked on a full buffer.
func (q *NATSQueue) Close() error {
	var err error
	q.once.Do(func() {
		close(q.done)
		if q.sub != nil {
			err = q.sub.Unsubscribe()
		}
	})
	return err
}
