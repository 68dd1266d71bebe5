package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

func TestStore_UpsertAndMean(t *testing.T) {
	s := New()
	ctx := context.Background()
	movie := s.AddMovie(domain.Movie{Title: "Heat"})

	mean, ok, err := s.MeanFor(ctx, movie.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || mean != 0 {
		t.Fatalf("expected no ratings, got mean=%v ok=%v", mean, ok)
	}

	if _, inserted, err := s.Upsert(ctx, "user-a", movie.ID, 4); err != nil || !inserted {
		t.Fatalf("first upsert: inserted=%v err=%v", inserted, err)
	}
	if _, inserted, err := s.Upsert(ctx, "user-b", movie.ID, 2); err != nil || !inserted {
		t.Fatalf("second upsert: inserted=%v err=%v", inserted, err)
	}
	if _, inserted, err := s.Upsert(ctx, "user-a", movie.ID, 5); err != nil || inserted {
		t.Fatalf("re-vote: inserted=%v err=%v", inserted, err)
	}

	mean, ok, _ = s.MeanFor(ctx, movie.ID)
	if !ok || mean != 3.5 {
		t.Fatalf("mean = %v (ok=%v), want 3.5", mean, ok)
	}
	if n := s.RatingCount(movie.ID); n != 2 {
		t.Fatalf("RatingCount = %d, want 2", n)
	}
}

func TestStore_UpsertUnknownMovie(t *testing.T) {
	s := New()
	_, _, err := s.Upsert(context.Background(), "user-a", "missing", 3)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ValueForAbsent(t *testing.T) {
	s := New()
	movie := s.AddMovie(domain.Movie{Title: "Ronin"})
	_, ok, err := s.ValueFor(context.Background(), "nobody", movie.ID)
	if err != nil || ok {
		t.Fatalf("expected absent vote, got ok=%v err=%v", ok, err)
	}
}

func TestStore_CanceledContextIsUnavailable(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := s.MeanFor(ctx, "any")
	if !errors.Is(err, domain.ErrStorageUnavailable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected unavailable wrapping context.Canceled, got %v", err)
	}
}

func TestStore_SetRatingTouchesOnlyRating(t *testing.T) {
	s := New()
	movie := s.AddMovie(domain.Movie{Title: "Alien", Genre: "Horror", CountOpened: 7})
	updated, err := s.SetRating(context.Background(), movie.ID, 4.25)
	if err != nil {
		t.Fatalf("SetRating: %v", err)
	}
	if updated.Rating != 4.25 || updated.Title != "Alien" || updated.Genre != "Horror" || updated.CountOpened != 7 {
		t.Fatalf("unexpected movie after SetRating: %+v", updated)
	}
}
