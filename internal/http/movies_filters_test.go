package httpserver

import (
	"net/url"
	"testing"
	"time"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

func TestBuildMovieFilters(t *testing.T) {
	values, _ := url.ParseQuery("searchTerms= Nolan &year=2010&genre=Action&limit=150")

	filters, err := buildMovieFilters(values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filters.Query == nil || *filters.Query != "Nolan" {
		t.Fatalf("query not trimmed: %+v", filters.Query)
	}
	if filters.Year == nil || *filters.Year != 2010 {
		t.Fatalf("year parse failed: %+v", filters.Year)
	}
	if filters.Genre == nil || *filters.Genre != "Action" {
		t.Fatalf("genre parse failed: %+v", filters.Genre)
	}
	if filters.Limit != 150 {
		t.Fatalf("limit not parsed: %d", filters.Limit)
	}
}

func TestBuildMovieFilters_QAlias(t *testing.T) {
	values, _ := url.ParseQuery("q=heat")
	filters, err := buildMovieFilters(values)
	if err != nil || filters.Query == nil || *filters.Query != "heat" {
		t.Fatalf("q alias not honoured: %+v err=%v", filters.Query, err)
	}
}

func TestBuildMovieFilters_Invalid(t *testing.T) {
	for _, raw := range []string{"year=abc", "limit=ten", "cursor=***"} {
		values, _ := url.ParseQuery(raw)
		if _, err := buildMovieFilters(values); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestToMovieResponse(t *testing.T) {
	movie := domain.Movie{
		ID:          "m1",
		Title:       "Heat",
		Slug:        "heat",
		ReleaseDate: time.Date(1995, 12, 15, 0, 0, 0, 0, time.UTC),
		Genre:       "Crime",
		Rating:      3.5,
		CountOpened: 7,
	}
	got := toMovieResponse(movie)
	if got.ReleaseDate != "1995-12-15" || got.Rating != 3.5 || got.CountOpened != 7 || got.Slug != "heat" {
		t.Fatalf("toMovieResponse = %+v", got)
	}
}
