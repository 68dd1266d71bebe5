// Package reconcile repairs stale movie ratings.
//
// A vote whose projection write failed is queued as a Request; the Worker
// recomputes that movie and also sweeps every movie periodically, so a lost
// request only delays convergence until the next sweep.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQueueFull is returned by LocalQueue when its buffer is exhausted.
var ErrQueueFull = errors.New("reconcile: queue full")

// ErrQueueClosed is returned after Close.
var ErrQueueClosed = errors.New("reconcile: queue closed")

// Request asks for one movie's rating to be recomputed.
type Request struct {
	EventID     string    `json:"event_id"`
	MovieID     string    `json:"movie_id"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Queue transports reconcile requests to a Worker.
type Queue interface {
	Enqueue(ctx context.Context, req Request) error
	Requests() <-chan Request
	Close() error
}

// LocalQueue is an in-process buffered queue.
type LocalQueue struct {
	mu     sync.RWMutex
	ch     chan Request
	closed bool
}

// NewLocalQueue returns a queue holding up to size pending requests.
func NewLocalQueue(size int) *LocalQueue {
	if size <= 0 {
		size = 1
	}
	return &LocalQueue{ch: make(chan Request, size)}
}

// Enqueue never blocks; a full buffer yields ErrQueueFull.
func (q *LocalQueue) Enqueue(_ context.Context, req Request) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Requests exposes the receive side.
func (q *LocalQueue) Requests() <-chan Request {
	return q.ch
}

// Close stops accepting requests and closes the channel.
func (q *LocalQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}
