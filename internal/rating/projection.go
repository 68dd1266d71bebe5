package rating

import (
	"context"
	"fmt"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// Projection writes computed averages onto the movie's rating field.
type Projection struct {
	Movies Movies
}

// Write sets only the rating field. Repeating a write is harmless.
func (p Projection) Write(ctx context.Context, movieID string, average float64) (domain.Movie, error) {
	movie, err := p.Movies.SetRating(ctx, movieID, average)
	if err != nil {
		return domain.Movie{}, fmt.Errorf("write rating projection: %w", err)
	}
	return movie, nil
}
