package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/store"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = domain.ErrNotFound

// Postgres SQLSTATE codes the repositories care about.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeSerialization       = "40001"
	codeDeadlock            = "40P01"
	codeAdminShutdown       = "57P01"
	codeCannotConnectNow    = "57P03"
	codeQueryCanceled       = "57014"
)

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Movies  *MoviesRepository
	Ratings *RatingsRepository
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{
		Movies:  &MoviesRepository{pool: pool},
		Ratings: &RatingsRepository{pool: pool},
	}
}

// classify maps driver errors onto the domain error taxonomy. The original
// error stays in the chain so callers can still inspect it.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrConflict, err)
		case pgErr.Code == codeForeignKeyViolation:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrNotFound, err)
		case pgErr.Code == codeSerialization, pgErr.Code == codeDeadlock,
			pgErr.Code == codeAdminShutdown, pgErr.Code == codeCannotConnectNow,
			pgErr.Code == codeQueryCanceled,
			len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "53"):
			return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	// Anything that never reached the server (dial, TLS, broken pipe) is transient.
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) || isConnError(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConnError(err error) bool {
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}
