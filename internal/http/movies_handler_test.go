package httpserver

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

func TestHandleCreateMovie_AuthValidation(t *testing.T) {
	srv := buildTestServer(t)
	body := map[string]any{"title": "Test", "genre": "Action", "releaseDate": "2024-01-01"}

	if rec := do(t, srv.Handler(), http.MethodPost, "/movies", "", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec := do(t, srv.Handler(), http.MethodPost, "/movies", tokenFor(t, "u1", ""), body); rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestHandleCreateMovie_InvalidPayload(t *testing.T) {
	srv := buildTestServer(t)
	admin := tokenFor(t, "root", RoleAdmin)

	if rec := do(t, srv.Handler(), http.MethodPost, "/movies", admin, "invalid json"); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (invalid json)", rec.Code)
	}
	rec := do(t, srv.Handler(), http.MethodPost, "/movies", admin, map[string]any{"title": "", "genre": "", "releaseDate": ""})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (missing fields)", rec.Code)
	}
	rec = do(t, srv.Handler(), http.MethodPost, "/movies", admin, map[string]any{"title": "X", "genre": "Y", "releaseDate": "01/02/2024"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (bad date)", rec.Code)
	}
}

func TestHandleCreateMovie_CreatesAndConflicts(t *testing.T) {
	srv := buildTestServer(t)
	admin := tokenFor(t, "root", RoleAdmin)
	body := map[string]any{"title": "The Thing", "genre": "Horror", "releaseDate": "1982-06-25"}

	rec := do(t, srv.Handler(), http.MethodPost, "/movies", admin, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	created := decode[movieResponse](t, rec)
	if created.Slug != "the-thing" || created.Rating != 0 || created.ReleaseDate != "1982-06-25" {
		t.Fatalf("unexpected movie %+v", created)
	}
	if loc := rec.Header().Get("Location"); loc != "/movies/by-slug/the-thing" {
		t.Fatalf("Location = %q", loc)
	}

	rec = do(t, srv.Handler(), http.MethodPost, "/movies", admin, body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate slug status = %d, want 409", rec.Code)
	}
	if errResp := decode[errorResponse](t, rec); errResp.Code != "SLUG_TAKEN" {
		t.Fatalf("duplicate slug code = %q, want SLUG_TAKEN", errResp.Code)
	}
}

func TestHandleCreateMovie_CyrillicTitleIsReachable(t *testing.T) {
	srv := buildTestServer(t)
	admin := tokenFor(t, "root", RoleAdmin)

	for _, title := range []string{"Сталкер", "Зеркало"} {
		rec := do(t, srv.Handler(), http.MethodPost, "/movies", admin,
			map[string]any{"title": title, "genre": "Drama", "releaseDate": "1979-05-25"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %q status = %d body=%s", title, rec.Code, rec.Body.String())
		}
	}

	rec := do(t, srv.Handler(), http.MethodGet, "/movies/by-slug/"+url.PathEscape("сталкер"), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("by-slug status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode[movieResponse](t, rec); got.Title != "Сталкер" {
		t.Fatalf("by-slug movie = %+v", got)
	}

	rec = do(t, srv.Handler(), http.MethodPut, "/movies/update-count-opened", "", map[string]any{"slug": "зеркало"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update-count-opened status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode[movieResponse](t, rec); got.CountOpened != 1 {
		t.Fatalf("countOpened = %d, want 1", got.CountOpened)
	}
}

func TestHandleListMovies_InvalidYear(t *testing.T) {
	srv := buildTestServer(t)
	if rec := do(t, srv.Handler(), http.MethodGet, "/movies?year=abc", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleListMovies_SearchAndPaginate(t *testing.T) {
	srv := buildTestServer(t)
	ctx := context.Background()
	for i, title := range []string{"Star Wars", "Star Trek", "Stargate", "Heat"} {
		_, err := srv.repo.Movies.Create(ctx, repository.MovieCreateParams{
			Title:       title,
			Genre:       "Sci-Fi",
			ReleaseDate: time.Date(1977+i, 1, 1, 0, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}

	rec := do(t, srv.Handler(), http.MethodGet, "/movies?searchTerms=star&limit=2", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	first := decode[movieListResponse](t, rec)
	if len(first.Items) != 2 || first.NextCursor == nil {
		t.Fatalf("first page = %+v", first)
	}

	rec = do(t, srv.Handler(), http.MethodGet, "/movies?searchTerms=star&limit=2&cursor="+url.QueryEscape(*first.NextCursor), "", nil)
	second := decode[movieListResponse](t, rec)
	if len(second.Items) != 1 {
		t.Fatalf("second page = %+v", second)
	}
	for _, m := range append(first.Items, second.Items...) {
		if !strings.Contains(strings.ToLower(m.Title), "star") {
			t.Fatalf("unexpected match %q", m.Title)
		}
	}
}

func TestHandleGetMovieBySlug_NotFound(t *testing.T) {
	srv := buildTestServer(t)
	if rec := do(t, srv.Handler(), http.MethodGet, "/movies/by-slug/nope", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleUpdateCountOpened_FeedsMostPopular(t *testing.T) {
	srv := buildTestServer(t)
	ctx := context.Background()
	for _, title := range []string{"Jaws", "Rocky"} {
		if _, err := srv.repo.Movies.Create(ctx, repository.MovieCreateParams{
			Title:       title,
			Genre:       "Drama",
			ReleaseDate: time.Date(1976, 1, 1, 0, 0, 0, 0, time.UTC),
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		rec := do(t, srv.Handler(), http.MethodPut, "/movies/update-count-opened", "", map[string]any{"slug": "rocky"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
		}
	}
	do(t, srv.Handler(), http.MethodPut, "/movies/update-count-opened", "", map[string]any{"slug": "jaws"})

	if rec := do(t, srv.Handler(), http.MethodPut, "/movies/update-count-opened", "", map[string]any{"slug": "missing"}); rec.Code != http.StatusNotFound {
		t.Fatalf("missing slug status = %d, want 404", rec.Code)
	}

	rec := do(t, srv.Handler(), http.MethodGet, "/movies/most-popular", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	popular := decode[[]movieResponse](t, rec)
	if len(popular) != 2 || popular[0].Slug != "rocky" || popular[0].CountOpened != 3 {
		t.Fatalf("most popular = %+v", popular)
	}
}
