package domain

import "time"

// Allowed bounds for a single vote.
const (
	MinRatingValue = 1
	MaxRatingValue = 5
)

// Rating represents a single user's rating for a movie.
type Rating struct {
	MovieID   string
	UserID    string
	Value     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RatingAggregate provides average and count for a movie's ratings.
type RatingAggregate struct {
	Average float64
	Count   int64
}

// ValidRatingValue reports whether v is inside the accepted vote range.
func ValidRatingValue(v int) bool {
	return v >= MinRatingValue && v <= MaxRatingValue
}
