package rating

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

const (
	defaultProjectionAttempts = 3
	defaultRetryBackoff       = 50 * time.Millisecond
)

// Options wires a Service. Store and Movies are required.
type Options struct {
	Store      Store
	Movies     Movies
	Aggregator Aggregator
	Locker     Locker
	Reporter   StaleReporter
	Logger     *zap.Logger

	// ProjectionAttempts bounds recompute+write attempts per call.
	ProjectionAttempts int
	// RetryBackoff is multiplied by the attempt number between attempts.
	RetryBackoff time.Duration
}

// Service is the only writer of Movie.Rating.
type Service struct {
	store      Store
	movies     Movies
	aggregator Aggregator
	projection Projection
	locker     Locker
	reporter   StaleReporter
	log        *zap.Logger
	tracer     trace.Tracer
	attempts   int
	backoff    time.Duration
}

// SetResult is the outcome of a successful SetRating.
type SetResult struct {
	Vote     domain.Rating
	Inserted bool
	Movie    domain.Movie
}

// NewService builds a Service, filling unset options with defaults.
func NewService(opts Options) *Service {
	agg := opts.Aggregator
	if agg == nil {
		agg = MeanAggregator{Store: opts.Store}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	attempts := opts.ProjectionAttempts
	if attempts <= 0 {
		attempts = defaultProjectionAttempts
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	return &Service{
		store:      opts.Store,
		movies:     opts.Movies,
		aggregator: agg,
		projection: Projection{Movies: opts.Movies},
		locker:     opts.Locker,
		reporter:   opts.Reporter,
		log:        log.Named("rating"),
		tracer:     otel.Tracer("github.com/Clark-Hu/movie-ratings/internal/rating"),
		attempts:   attempts,
		backoff:    backoff,
	}
}

// SetRating records the user's vote and refreshes the movie's rating.
//
// Invalid input and unknown movies are rejected before anything is written.
// If the vote is stored but the rating cannot be refreshed, the returned
// error is a *StaleAggregateError and the SetResult still carries the vote.
func (s *Service) SetRating(ctx context.Context, userID, movieID string, value int) (result SetResult, err error) {
	ctx, span := s.tracer.Start(ctx, "rating.SetRating", trace.WithAttributes(
		attribute.String("movie.id", movieID),
		attribute.Int("rating.value", value),
	))
	defer func() { endSpan(span, err) }()

	if err := validateVote(userID, movieID, value); err != nil {
		return SetResult{}, err
	}

	exists, err := s.movies.Exists(ctx, movieID)
	if err != nil {
		return SetResult{}, fmt.Errorf("check movie %s: %w", movieID, err)
	}
	if !exists {
		return SetResult{}, fmt.Errorf("movie %s: %w", movieID, domain.ErrNotFound)
	}

	vote, inserted, err := s.upsert(ctx, userID, movieID, value)
	if err != nil {
		return SetResult{}, err
	}
	result = SetResult{Vote: vote, Inserted: inserted}

	movie, err := s.refresh(ctx, movieID)
	if err != nil {
		s.log.Warn("vote recorded but rating projection is stale",
			zap.String("movie_id", movieID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		if s.reporter != nil {
			s.reporter.ReportStale(context.WithoutCancel(ctx), movieID, err)
		}
		return result, &StaleAggregateError{MovieID: movieID, Vote: vote, Err: err}
	}

	result.Movie = movie
	s.log.Debug("rating updated",
		zap.String("movie_id", movieID),
		zap.Bool("inserted", inserted),
		zap.Float64("rating", movie.Rating),
	)
	return result, nil
}

// GetMovieValueByUser returns the user's vote; ok is false when the user has
// not voted on the movie.
func (s *Service) GetMovieValueByUser(ctx context.Context, movieID, userID string) (value int, ok bool, err error) {
	ctx, span := s.tracer.Start(ctx, "rating.GetMovieValueByUser", trace.WithAttributes(
		attribute.String("movie.id", movieID),
	))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(userID) == "" || strings.TrimSpace(movieID) == "" {
		return 0, false, fmt.Errorf("%w: user id and movie id are required", domain.ErrValidation)
	}
	value, ok, err = s.store.ValueFor(ctx, userID, movieID)
	if err != nil {
		return 0, false, fmt.Errorf("read vote: %w", err)
	}
	return value, ok, nil
}

// Reconcile recomputes a movie's rating from its votes and writes it.
// Running it any number of times leaves the same result.
func (s *Service) Reconcile(ctx context.Context, movieID string) (rating float64, err error) {
	ctx, span := s.tracer.Start(ctx, "rating.Reconcile", trace.WithAttributes(
		attribute.String("movie.id", movieID),
	))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(movieID) == "" {
		return 0, fmt.Errorf("%w: movie id is required", domain.ErrValidation)
	}
	movie, err := s.refresh(ctx, movieID)
	if err != nil {
		return 0, err
	}
	return movie.Rating, nil
}

func (s *Service) upsert(ctx context.Context, userID, movieID string, value int) (domain.Rating, bool, error) {
	vote, inserted, err := s.store.Upsert(ctx, userID, movieID, value)
	if errors.Is(err, domain.ErrConflict) {
		// A concurrent first vote for the same pair won the insert; ours is now an update.
		s.log.Debug("retrying conflicting vote", zap.String("movie_id", movieID), zap.String("user_id", userID))
		vote, inserted, err = s.store.Upsert(ctx, userID, movieID, value)
	}
	if err != nil {
		return domain.Rating{}, false, fmt.Errorf("upsert vote: %w", err)
	}
	return vote, inserted, nil
}

// refresh recomputes and writes the projection under the movie lock. Every
// attempt recomputes, so a retried write never publishes a cached average.
func (s *Service) refresh(ctx context.Context, movieID string) (domain.Movie, error) {
	unlock, err := s.lock(ctx, movieID)
	if err != nil {
		return domain.Movie{}, err
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, time.Duration(attempt-1)*s.backoff); err != nil {
				return domain.Movie{}, fmt.Errorf("%w: %w (last: %v)", domain.ErrStorageUnavailable, err, lastErr)
			}
		}

		movie, err := s.recompute(ctx, movieID)
		if err == nil {
			return movie, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrStorageUnavailable) || ctx.Err() != nil {
			break
		}
		s.log.Debug("retrying rating projection",
			zap.String("movie_id", movieID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return domain.Movie{}, lastErr
}

func (s *Service) recompute(ctx context.Context, movieID string) (domain.Movie, error) {
	average, err := s.aggregator.Compute(ctx, movieID)
	if err != nil {
		return domain.Movie{}, fmt.Errorf("compute rating: %w", err)
	}
	return s.projection.Write(ctx, movieID, average)
}

// lock takes the per-movie lock when one is configured. A locker failure other
// than the caller's own deadline degrades to the unlocked path: the result
// still converges, only without per-movie ordering.
func (s *Service) lock(ctx context.Context, movieID string) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	unlock, err := s.locker.Lock(ctx, "movie-rating:"+movieID)
	if err == nil {
		return unlock, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("acquire movie lock: %w: %w", domain.ErrStorageUnavailable, ctx.Err())
	}
	s.log.Warn("movie lock unavailable, continuing unlocked", zap.String("movie_id", movieID), zap.Error(err))
	return noop, nil
}

func validateVote(userID, movieID string, value int) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(movieID) == "" {
		return fmt.Errorf("%w: movie id is required", domain.ErrValidation)
	}
	if !domain.ValidRatingValue(value) {
		return fmt.Errorf("%w: rating must be between %d and %d, got %d",
			domain.ErrValidation, domain.MinRatingValue, domain.MaxRatingValue, value)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
