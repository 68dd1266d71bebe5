package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

const releaseDateLayout = "2006-01-02"

type movieCreateRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Slug        string `json:"slug" validate:"max=200"`
	Genre       string `json:"genre" validate:"required,max=100"`
	ReleaseDate string `json:"releaseDate" validate:"required,datetime=2006-01-02"`
}

type countOpenedRequest struct {
	Slug string `json:"slug" validate:"required"`
}

type movieListResponse struct {
	Items      []movieResponse `json:"items"`
	NextCursor *string         `json:"nextCursor,omitempty"`
}

type movieResponse struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Slug        string  `json:"slug"`
	ReleaseDate string  `json:"releaseDate"`
	Genre       string  `json:"genre"`
	Rating      float64 `json:"rating"`
	CountOpened int64   `json:"countOpened"`
}

func (s *Server) handleListMovies(w http.ResponseWriter, r *http.Request) {
	filters, err := buildMovieFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := s.catalog.List(r.Context(), filters)
	if err != nil {
		s.respondServiceError(w, err, "list movies")
		return
	}

	resp := movieListResponse{
		Items:      toMovieResponses(result.Items),
		NextCursor: result.NextCursor,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func buildMovieFilters(query url.Values) (repository.MovieListFilters, error) {
	var filters repository.MovieListFilters

	term := strings.TrimSpace(query.Get("searchTerms"))
	if term == "" {
		term = strings.TrimSpace(query.Get("q"))
	}
	if term != "" {
		filters.Query = &term
	}
	if val := strings.TrimSpace(query.Get("year")); val != "" {
		year, err := strconv.Atoi(val)
		if err != nil {
			return filters, fmt.Errorf("invalid year value")
		}
		filters.Year = &year
	}
	if val := strings.TrimSpace(query.Get("genre")); val != "" {
		filters.Genre = &val
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil {
			return filters, fmt.Errorf("invalid limit value")
		}
		filters.Limit = limit
	}
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		cursor, err := repository.DecodeCursor(val)
		if err != nil {
			return filters, fmt.Errorf("invalid cursor")
		}
		filters.Cursor = cursor
	}
	return filters, nil
}

func (s *Server) handleGetMovieBySlug(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	movie, err := s.catalog.GetBySlug(r.Context(), slug)
	if err != nil {
		s.respondServiceError(w, err, "fetch movie")
		return
	}
	s.respondJSON(w, http.StatusOK, toMovieResponse(movie))
}

func (s *Server) handleMostPopular(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if val := strings.TrimSpace(r.URL.Query().Get("limit")); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid limit value")
			return
		}
		limit = parsed
	}
	movies, err := s.catalog.MostPopular(r.Context(), limit)
	if err != nil {
		s.respondServiceError(w, err, "list popular movies")
		return
	}
	s.respondJSON(w, http.StatusOK, toMovieResponses(movies))
}

func (s *Server) handleUpdateCountOpened(w http.ResponseWriter, r *http.Request) {
	var req countOpenedRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	req.Slug = strings.TrimSpace(req.Slug)
	if err := validate.Struct(req); err != nil {
		s.respondValidationError(w, err)
		return
	}
	movie, err := s.catalog.IncrementOpened(r.Context(), req.Slug)
	if err != nil {
		s.respondServiceError(w, err, "update open count")
		return
	}
	s.respondJSON(w, http.StatusOK, toMovieResponse(movie))
}

func (s *Server) handleCreateMovie(w http.ResponseWriter, r *http.Request) {
	var req movieCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Genre = strings.TrimSpace(req.Genre)
	req.Slug = strings.TrimSpace(req.Slug)
	if err := validate.Struct(req); err != nil {
		s.respondValidationError(w, err)
		return
	}
	releaseDate, err := time.Parse(releaseDateLayout, req.ReleaseDate)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "releaseDate must follow YYYY-MM-DD format")
		return
	}

	movie, err := s.catalog.Create(r.Context(), repository.MovieCreateParams{
		Title:       req.Title,
		Slug:        req.Slug,
		ReleaseDate: releaseDate,
		Genre:       req.Genre,
	})
	if errors.Is(err, domain.ErrConflict) {
		s.respondError(w, http.StatusConflict, "SLUG_TAKEN", "A movie with this slug already exists")
		return
	}
	if err != nil {
		s.respondServiceError(w, err, "create movie")
		return
	}

	w.Header().Set("Location", "/movies/by-slug/"+url.PathEscape(movie.Slug))
	s.respondJSON(w, http.StatusCreated, toMovieResponse(movie))
}

func toMovieResponse(movie domain.Movie) movieResponse {
	return movieResponse{
		ID:          movie.ID,
		Title:       movie.Title,
		Slug:        movie.Slug,
		ReleaseDate: movie.ReleaseDate.Format(releaseDateLayout),
		Genre:       movie.Genre,
		Rating:      movie.Rating,
		CountOpened: movie.CountOpened,
	}
}

func toMovieResponses(movies []domain.Movie) []movieResponse {
	items := make([]movieResponse, 0, len(movies))
	for _, movie := range movies {
		items = append(items, toMovieResponse(movie))
	}
	return items
}
