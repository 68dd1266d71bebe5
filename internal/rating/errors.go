package rating

import (
	"errors"
	"fmt"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// ErrAggregateStale matches a StaleAggregateError via errors.Is.
var ErrAggregateStale = errors.New("vote recorded, aggregate stale")

// StaleAggregateError reports a vote that was stored while the movie's
// rating could not be refreshed. The store is correct; the projection lags
// until a later vote or a reconciliation pass.
type StaleAggregateError struct {
	MovieID string
	Vote    domain.Rating
	Err     error
}

func (e *StaleAggregateError) Error() string {
	return fmt.Sprintf("movie %s: %s: %v", e.MovieID, ErrAggregateStale, e.Err)
}

func (e *StaleAggregateError) Unwrap() []error {
	return []error{ErrAggregateStale, e.Err}
}
