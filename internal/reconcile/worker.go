package reconcile

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Clark-Hu/movie-ratings/internal/logging"
)

const (
	defaultSeenTTL = time.Hour
	defaultMaxSeen = 10000
)

// Reconciler recomputes and republishes one movie's rating.
type Reconciler interface {
	Reconcile(ctx context.Context, movieID string) (float64, error)
}

// Lister enumerates the movies a sweep visits.
type Lister interface {
	IDs(ctx context.Context) ([]string, error)
}

// Worker consumes reconcile requests and runs periodic sweeps.
type Worker struct {
	Queue      Queue
	Reconciler Reconciler
	Lister     Lister
	Logger     *zap.Logger

	// SweepInterval of zero disables periodic sweeps.
	SweepInterval time.Duration
	// Concurrency bounds parallel reconciles during a sweep.
	Concurrency int
	// SeenTTL is how long processed event ids are remembered.
	SeenTTL time.Duration
	// MaxSeen caps remembered event ids; the oldest are dropped first.
	MaxSeen int

	mu   sync.Mutex
	seen map[string]time.Time
}

// Run blocks until ctx is done or the queue is closed.
func (w *Worker) Run(ctx context.Context) error {
	log := w.logger()
	var tick <-chan time.Time
	if w.SweepInterval > 0 && w.Lister != nil {
		ticker := time.NewTicker(w.SweepInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var requests <-chan Request
	if w.Queue != nil {
		requests = w.Queue.Requests()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-requests:
			if !ok {
				return nil
			}
			w.Handle(ctx, req)
		case <-tick:
			if err := w.Sweep(ctx); err != nil {
				log.Warn("rating sweep failed", zap.Error(err))
			}
		}
	}
}

// Handle reconciles the movie named by req unless the event was already handled.
func (w *Worker) Handle(ctx context.Context, req Request) {
	log := w.logger()
	if req.EventID != "" && !w.markSeen(req.EventID) {
		log.Debug("skipping duplicate reconcile request", zap.String("event_id", req.EventID))
		return
	}
	rating, err := w.Reconciler.Reconcile(ctx, req.MovieID)
	if err != nil {
		log.Warn("reconcile failed",
			zap.String("movie_id", req.MovieID),
			zap.String("event_id", req.EventID),
			zap.Error(err),
		)
		// Let a redelivery or the next sweep try again.
		w.forget(req.EventID)
		return
	}
	log.Info("rating reconciled",
		zap.String("movie_id", req.MovieID),
		zap.String("event_id", req.EventID),
		zap.Float64("rating", rating),
	)
}

// Sweep reconciles every listed movie with bounded concurrency. Individual
// failures are logged; only listing errors abort the sweep.
func (w *Worker) Sweep(ctx context.Context) error {
	log := w.logger()
	ids, err := w.Lister.IDs(ctx)
	if err != nil {
		return err
	}

	limit := w.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var failed int
	var mu sync.Mutex
	for _, id := range ids {
		g.Go(func() error {
			if _, err := w.Reconciler.Reconcile(gctx, id); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				log.Warn("sweep reconcile failed", zap.String("movie_id", id), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	w.pruneSeen()
	log.Info("rating sweep finished", zap.Int("movies", len(ids)), zap.Int("failed", failed))
	return nil
}

func (w *Worker) markSeen(eventID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen == nil {
		w.seen = make(map[string]time.Time)
	}
	if _, ok := w.seen[eventID]; ok {
		return false
	}
	if limit := w.maxSeen(); len(w.seen) >= limit {
		w.pruneSeenLocked(time.Now().Add(-w.seenTTL()))
		for len(w.seen) >= limit {
			w.dropOldestLocked()
		}
	}
	w.seen[eventID] = time.Now()
	return true
}

func (w *Worker) forget(eventID string) {
	if eventID == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.seen, eventID)
}

func (w *Worker) pruneSeen() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneSeenLocked(time.Now().Add(-w.seenTTL()))
}

func (w *Worker) pruneSeenLocked(cutoff time.Time) {
	for id, at := range w.seen {
		if at.Before(cutoff) {
			delete(w.seen, id)
		}
	}
}

func (w *Worker) dropOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, at := range w.seen {
		if oldestID == "" || at.Before(oldest) {
			oldestID, oldest = id, at
		}
	}
	delete(w.seen, oldestID)
}

func (w *Worker) seenTTL() time.Duration {
	if w.SeenTTL <= 0 {
		return defaultSeenTTL
	}
	return w.SeenTTL
}

func (w *Worker) maxSeen() int {
	if w.MaxSeen <= 0 {
		return defaultMaxSeen
	}
	return w.MaxSeen
}

func (w *Worker) logger() *zap.Logger {
	return logging.OrNop(w.Logger)
}
