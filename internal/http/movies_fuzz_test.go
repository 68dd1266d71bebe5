package httpserver

import (
	"net/url"
	"testing"
)

func FuzzBuildMovieFilters(f *testing.F) {
	seeds := []string{
		"searchTerms=Inception&genre=Action&year=2010",
		"year=abc",
		"limit=200",
		"cursor=eyJpZCI6IngifQ",
		"",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		values, err := url.ParseQuery(raw)
		if err != nil {
			return
		}
		_, _ = buildMovieFilters(values)
	})
}

func FuzzSetRatingBody(f *testing.F) {
	f.Add(`{"movieId":"m1","value":3}`)
	f.Add(`{"movieId":"m1","value":0}`)
	f.Add(`{"movieId":"","value":9}`)
	f.Add(`{`)

	srv, st := buildMemoryServer(f)
	movieID := st.AddMovie(movieFixture()).ID
	token := tokenFor(f, "fuzzer", "")

	f.Fuzz(func(t *testing.T, body string) {
		rec := do(t, srv.Handler(), "POST", "/ratings/set-rating", token, body)
		if rec.Code >= 500 {
			t.Fatalf("status %d for body %q", rec.Code, body)
		}
		if value, ok, _ := st.ValueFor(t.Context(), "fuzzer", movieID); ok && (value < 1 || value > 5) {
			t.Fatalf("out of range vote %d stored", value)
		}
	})
}
