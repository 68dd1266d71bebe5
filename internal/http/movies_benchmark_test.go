package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

func movieFixture() domain.Movie {
	return domain.Movie{
		Title:       "Benchmark Movie",
		Slug:        "benchmark-movie",
		Genre:       "Action",
		ReleaseDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		ReleaseYear: 2020,
	}
}

func BenchmarkHandleSetRating(b *testing.B) {
	srv := buildTestServer(b)

	fixture := movieFixture()
	movie, err := srv.repo.Movies.Create(context.Background(), repository.MovieCreateParams{
		Title:       fixture.Title,
		Genre:       fixture.Genre,
		ReleaseDate: fixture.ReleaseDate,
	})
	if err != nil {
		b.Fatalf("create movie: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		token := tokenFor(b, fmt.Sprintf("bench-%d", i%50), "")
		rec := do(b, srv.Handler(), http.MethodPost, "/ratings/set-rating", token, map[string]any{"movieId": movie.ID, "value": i%5 + 1})
		if rec.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}

func BenchmarkHandleSetRating_Memory(b *testing.B) {
	srv, st := buildMemoryServer(b)
	movie := st.AddMovie(movieFixture())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		token := tokenFor(b, fmt.Sprintf("bench-%d", i%50), "")
		rec := do(b, srv.Handler(), http.MethodPost, "/ratings/set-rating", token, map[string]any{"movieId": movie.ID, "value": i%5 + 1})
		if rec.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}
