// Package rating owns the vote -> aggregate -> projection write path.
//
// A vote is upserted first, then the movie's mean is recomputed from the
// store and written to the movie's rating field. The three steps are not one
// transaction; concurrent votes on the same movie converge because every
// recompute reads the full committed vote set, and the optional Locker
// serializes recompute+write per movie.
package rating

import (
	"context"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// Store persists one vote per (user, movie).
type Store interface {
	Upsert(ctx context.Context, userID, movieID string, value int) (domain.Rating, bool, error)
	ValueFor(ctx context.Context, userID, movieID string) (int, bool, error)
	MeanFor(ctx context.Context, movieID string) (float64, bool, error)
}

// Movies is the slice of the movie catalog the rating core depends on.
type Movies interface {
	Exists(ctx context.Context, movieID string) (bool, error)
	SetRating(ctx context.Context, movieID string, value float64) (domain.Movie, error)
}

// Locker serializes work on a key. Unlock must be safe to call once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// StaleReporter is told when a vote was stored but the movie's rating could
// not be refreshed.
type StaleReporter interface {
	ReportStale(ctx context.Context, movieID string, cause error)
}
