package domain

import "time"

// EmptyRating is the projected rating of a movie nobody has voted on yet.
const EmptyRating float64 = 0

// Movie represents the canonical movie entity in the database/service.
//
// Rating is a projection of the movie's votes and is written only by the
// rating service.
type Movie struct {
	ID          string
	Title       string
	Slug        string
	ReleaseDate time.Time
	ReleaseYear int
	Genre       string
	Rating      float64
	CountOpened int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
