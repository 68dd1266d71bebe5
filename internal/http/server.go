package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/config"
	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/rating"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

// RatingService is the rating core as seen by the handlers.
type RatingService interface {
	SetRating(ctx context.Context, userID, movieID string, value int) (rating.SetResult, error)
	GetMovieValueByUser(ctx context.Context, movieID, userID string) (int, bool, error)
	Reconcile(ctx context.Context, movieID string) (float64, error)
}

// MovieCatalog serves the catalog routes. The Postgres and Mongo backends
// provide one; the in-memory backend does not.
type MovieCatalog interface {
	Create(ctx context.Context, params repository.MovieCreateParams) (domain.Movie, error)
	GetBySlug(ctx context.Context, slug string) (domain.Movie, error)
	IncrementOpened(ctx context.Context, slug string) (domain.Movie, error)
	MostPopular(ctx context.Context, limit int) ([]domain.Movie, error)
	List(ctx context.Context, filters repository.MovieListFilters) (repository.MovieListResult, error)
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the collaborators the server routes to. Catalog may be nil.
type Deps struct {
	Ratings RatingService
	Catalog MovieCatalog
	Health  HealthChecker
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg      config.Config
	ratings  RatingService
	catalog  MovieCatalog
	health   HealthChecker
	verifier JWTVerifier
	logger   *zap.Logger
	router   chi.Router
	httpSrv  *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.RequestTimeoutSecs > 0 {
		r.Use(middleware.Timeout(time.Duration(cfg.RequestTimeoutSecs) * time.Second))
	}

	s := &Server{
		cfg:      cfg,
		ratings:  deps.Ratings,
		catalog:  deps.Catalog,
		health:   deps.Health,
		verifier: JWTVerifier{Secret: []byte(cfg.JWTSecret)},
		logger:   logger.Named("http"),
		router:   r,
	}
	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)

	s.router.Route("/ratings", func(r chi.Router) {
		r.Use(RequireUser(s.verifier))
		r.Post("/set-rating", s.handleSetRating)
		r.Get("/{movieId}", s.handleGetUserRating)
	})

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(RequireUser(s.verifier))
		r.Use(RequireAdmin)
		r.Post("/ratings/reconcile/{movieId}", s.handleReconcile)
	})

	if s.catalog == nil {
		return
	}
	s.router.Route("/movies", func(r chi.Router) {
		r.Get("/", s.handleListMovies)
		r.Get("/most-popular", s.handleMostPopular)
		r.Get("/by-slug/{slug}", s.handleGetMovieBySlug)
		r.Put("/update-count-opened", s.handleUpdateCountOpened)
		r.With(RequireUser(s.verifier), RequireAdmin).Post("/", s.handleCreateMovie)
	})
}

// Start boots the HTTP server and blocks until ctx is done or serving fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", zap.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.HealthCheck(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			s.respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Storage unavailable")
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger writes one access log line per request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
