package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher turns stale-aggregate reports into queued reconcile requests.
type Dispatcher struct {
	Queue  Queue
	Logger *zap.Logger
	Now    func() time.Time
}

// ReportStale enqueues a request for movieID. Enqueue failures are logged;
// the periodic sweep still covers the movie.
func (d *Dispatcher) ReportStale(ctx context.Context, movieID string, cause error) {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	req := Request{
		EventID:     uuid.NewString(),
		MovieID:     movieID,
		RequestedAt: now().UTC(),
	}
	if cause != nil {
		req.Reason = cause.Error()
	}
	if err := d.Queue.Enqueue(ctx, req); err != nil && d.Logger != nil {
		d.Logger.Warn("could not queue rating reconcile",
			zap.String("movie_id", movieID),
			zap.String("event_id", req.EventID),
			zap.Error(err),
		)
	}
}
