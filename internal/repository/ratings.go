package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// RatingsRepository stores one vote per (movie, user) pair.
type RatingsRepository struct {
	pool *pgxpool.Pool
}

// Upsert inserts or updates a vote and indicates whether it was newly created.
// The (movie_id, user_id) primary key makes this a single atomic statement.
func (r *RatingsRepository) Upsert(ctx context.Context, userID, movieID string, value int) (domain.Rating, bool, error) {
	const query = `
        INSERT INTO ratings (movie_id, user_id, value)
        VALUES ($1,$2,$3)
        ON CONFLICT (movie_id, user_id)
        DO UPDATE SET value = EXCLUDED.value, updated_at = now()
        RETURNING movie_id, user_id, value, created_at, updated_at, (xmax = 0) AS inserted
    `

	var rating domain.Rating
	var inserted bool
	err := r.pool.QueryRow(ctx, query, movieID, userID, value).Scan(
		&rating.MovieID,
		&rating.UserID,
		&rating.Value,
		&rating.CreatedAt,
		&rating.UpdatedAt,
		&inserted,
	)
	if err != nil {
		return domain.Rating{}, false, classify("upsert rating", err)
	}
	return rating, inserted, nil
}

// ValueFor returns the user's vote for a movie; ok is false when there is none.
func (r *RatingsRepository) ValueFor(ctx context.Context, userID, movieID string) (int, bool, error) {
	const query = `SELECT value FROM ratings WHERE movie_id = $1 AND user_id = $2`

	var value int
	err := r.pool.QueryRow(ctx, query, movieID, userID).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, classify("rating value", err)
	}
	return value, true, nil
}

// MeanFor returns the unrounded mean of a movie's votes; ok is false when the
// movie has no votes.
func (r *RatingsRepository) MeanFor(ctx context.Context, movieID string) (float64, bool, error) {
	agg, err := r.Aggregate(ctx, movieID)
	if err != nil {
		return 0, false, err
	}
	if agg.Count == 0 {
		return 0, false, nil
	}
	return agg.Average, true, nil
}

// Aggregate returns the rating average and count for a movie.
func (r *RatingsRepository) Aggregate(ctx context.Context, movieID string) (domain.RatingAggregate, error) {
	const query = `
        SELECT COALESCE(AVG(value)::float8, 0) AS average,
               COUNT(*)::int8 AS count
        FROM ratings
        WHERE movie_id = $1
    `

	var agg domain.RatingAggregate
	if err := r.pool.QueryRow(ctx, query, movieID).Scan(&agg.Average, &agg.Count); err != nil {
		return domain.RatingAggregate{}, classify("aggregate ratings", err)
	}
	return agg, nil
}

// Get retrieves the full vote row for a user/movie combination.
func (r *RatingsRepository) Get(ctx context.Context, userID, movieID string) (domain.Rating, error) {
	const query = `
        SELECT movie_id, user_id, value, created_at, updated_at
        FROM ratings
        WHERE movie_id = $1 AND user_id = $2
    `
	var rating domain.Rating
	err := r.pool.QueryRow(ctx, query, movieID, userID).Scan(
		&rating.MovieID,
		&rating.UserID,
		&rating.Value,
		&rating.CreatedAt,
		&rating.UpdatedAt,
	)
	if err != nil {
		return domain.Rating{}, classify("get rating", err)
	}
	return rating, nil
}

// CountFor returns how many rows exist for the pair; used to assert uniqueness.
func (r *RatingsRepository) CountFor(ctx context.Context, userID, movieID string) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ratings WHERE movie_id = $1 AND user_id = $2`, movieID, userID).Scan(&n)
	if err != nil {
		return 0, classify("count ratings", err)
	}
	return n, nil
}
