package rating

import (
	"context"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// Aggregator turns a movie's current vote set into its published rating.
type Aggregator interface {
	Compute(ctx context.Context, movieID string) (float64, error)
}

// MeanAggregator publishes the plain arithmetic mean at full precision.
type MeanAggregator struct {
	Store Store
}

// Compute returns domain.EmptyRating for a movie without votes.
func (a MeanAggregator) Compute(ctx context.Context, movieID string) (float64, error) {
	mean, ok, err := a.Store.MeanFor(ctx, movieID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return domain.EmptyRating, nil
	}
	return mean, nil
}
