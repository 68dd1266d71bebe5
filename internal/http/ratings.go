package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/rating"
)

type setRatingRequest struct {
	MovieID string `json:"movieId" validate:"required,max=64"`
	Value   *int   `json:"value" validate:"required,gte=1,lte=5"`
}

type setRatingResponse struct {
	MovieID string  `json:"movieId"`
	Rating  float64 `json:"rating"`
	Value   int     `json:"value"`
}

type userRatingResponse struct {
	MovieID string `json:"movieId"`
	Value   *int   `json:"value"`
}

type reconcileResponse struct {
	MovieID string  `json:"movieId"`
	Rating  float64 `json:"rating"`
}

func (s *Server) handleSetRating(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	var req setRatingRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	req.MovieID = strings.TrimSpace(req.MovieID)
	if err := validate.Struct(req); err != nil {
		s.respondValidationError(w, err)
		return
	}

	result, err := s.ratings.SetRating(r.Context(), userID, req.MovieID, *req.Value)
	if err != nil {
		var stale *rating.StaleAggregateError
		if errors.As(err, &stale) {
			s.logger.Warn("rating accepted with stale aggregate",
				zap.String("movie_id", req.MovieID),
				zap.Error(err),
			)
			s.respondJSON(w, http.StatusAccepted, errorResponse{
				Code:    "AGGREGATE_STALE",
				Message: "Vote recorded; the movie rating will be refreshed shortly",
				Details: userRatingResponse{MovieID: req.MovieID, Value: &result.Vote.Value},
			})
			return
		}
		s.respondServiceError(w, err, "set rating")
		return
	}

	s.respondJSON(w, http.StatusOK, setRatingResponse{
		MovieID: result.Movie.ID,
		Rating:  result.Movie.Rating,
		Value:   result.Vote.Value,
	})
}

func (s *Server) handleGetUserRating(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}
	movieID := strings.TrimSpace(chi.URLParam(r, "movieId"))

	value, found, err := s.ratings.GetMovieValueByUser(r.Context(), movieID, userID)
	if err != nil {
		s.respondServiceError(w, err, "fetch rating")
		return
	}
	resp := userRatingResponse{MovieID: movieID}
	if found {
		resp.Value = &value
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	movieID := strings.TrimSpace(chi.URLParam(r, "movieId"))
	avg, err := s.ratings.Reconcile(r.Context(), movieID)
	if err != nil {
		s.respondServiceError(w, err, "reconcile rating")
		return
	}
	s.respondJSON(w, http.StatusOK, reconcileResponse{MovieID: movieID, Rating: avg})
}
