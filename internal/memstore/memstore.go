// Package memstore keeps movies and votes in process memory.
// State is lost on restart and is not shared between instances; use it for
// local development and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// Store holds movies and their votes behind one RWMutex, so every read sees
// only committed votes.
type Store struct {
	mu      sync.RWMutex
	movies  map[string]domain.Movie
	ratings map[string]map[string]domain.Rating // movie_id -> user_id -> vote
	now     func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		movies:  make(map[string]domain.Movie),
		ratings: make(map[string]map[string]domain.Rating),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// AddMovie inserts a movie, assigning an id when empty.
func (s *Store) AddMovie(movie domain.Movie) domain.Movie {
	s.mu.Lock()
	defer s.mu.Unlock()
	if movie.ID == "" {
		movie.ID = uuid.NewString()
	}
	now := s.now()
	if movie.CreatedAt.IsZero() {
		movie.CreatedAt = now
	}
	movie.UpdatedAt = now
	s.movies[movie.ID] = movie
	return movie
}

// Movie returns a copy of the stored movie.
func (s *Store) Movie(id string) (domain.Movie, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.movies[id]
	return m, ok
}

// RatingCount returns the number of votes stored for a movie.
func (s *Store) RatingCount(movieID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ratings[movieID])
}

// Exists reports whether the movie is present.
func (s *Store) Exists(ctx context.Context, movieID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, unavailable(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.movies[movieID]
	return ok, nil
}

// SetRating overwrites the movie's rating field only.
func (s *Store) SetRating(ctx context.Context, movieID string, value float64) (domain.Movie, error) {
	if err := ctx.Err(); err != nil {
		return domain.Movie{}, unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.movies[movieID]
	if !ok {
		return domain.Movie{}, fmt.Errorf("movie %s: %w", movieID, domain.ErrNotFound)
	}
	m.Rating = value
	s.movies[movieID] = m
	return m, nil
}

// IDs lists all movie ids in a stable order.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.movies))
	for id := range s.movies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Upsert stores the vote, replacing any earlier vote for the pair.
func (s *Store) Upsert(ctx context.Context, userID, movieID string, value int) (domain.Rating, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Rating{}, false, unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.movies[movieID]; !ok {
		return domain.Rating{}, false, fmt.Errorf("movie %s: %w", movieID, domain.ErrNotFound)
	}
	votes := s.ratings[movieID]
	if votes == nil {
		votes = make(map[string]domain.Rating)
		s.ratings[movieID] = votes
	}
	now := s.now()
	vote, existed := votes[userID]
	if !existed {
		vote = domain.Rating{MovieID: movieID, UserID: userID, CreatedAt: now}
	}
	vote.Value = value
	vote.UpdatedAt = now
	votes[userID] = vote
	return vote, !existed, nil
}

// ValueFor returns the user's vote; ok is false when absent.
func (s *Store) ValueFor(ctx context.Context, userID, movieID string) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, unavailable(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	vote, ok := s.ratings[movieID][userID]
	if !ok {
		return 0, false, nil
	}
	return vote.Value, true, nil
}

// MeanFor returns the mean of the movie's votes; ok is false when there are none.
func (s *Store) MeanFor(ctx context.Context, movieID string) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, unavailable(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	votes := s.ratings[movieID]
	if len(votes) == 0 {
		return 0, false, nil
	}
	total := 0
	for _, v := range votes {
		total += v.Value
	}
	return float64(total) / float64(len(votes)), true, nil
}

// HealthCheck always succeeds.
func (s *Store) HealthCheck(context.Context) error {
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
}
