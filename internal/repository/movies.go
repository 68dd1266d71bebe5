package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
)

// MoviesRepository provides persistence helpers for movie entities.
type MoviesRepository struct {
	pool *pgxpool.Pool
}

const movieColumns = `
    id,
    title,
    slug,
    release_date,
    release_year,
    genre,
    rating,
    count_opened,
    created_at,
    updated_at
`

// MovieCreateParams bundles the fields required to create a movie.
type MovieCreateParams struct {
	Title       string
	Slug        string
	ReleaseDate time.Time
	Genre       string
}

// MovieListFilters encapsulates search and pagination options.
type MovieListFilters struct {
	Query  *string
	Genre  *string
	Year   *int
	Limit  int
	Cursor *MovieCursor
}

// MovieCursor allows stable pagination by created_at/id.
type MovieCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// MovieListResult returns the paginated payload.
type MovieListResult struct {
	Items      []domain.Movie
	NextCursor *string
}

// Create inserts a new movie row and returns the stored entity. The slug is
// derived from the title when empty, and generated when the title has no
// letters or digits.
func (r *MoviesRepository) Create(ctx context.Context, params MovieCreateParams) (domain.Movie, error) {
	slug := SlugFor(params.Title, params.Slug)

	query := fmt.Sprintf(`
        INSERT INTO movies (title, slug, release_date, release_year, genre)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING %s
    `, movieColumns)

	row := r.pool.QueryRow(ctx, query, params.Title, slug, params.ReleaseDate, params.ReleaseDate.Year(), params.Genre)
	movie, err := scanMovie(row)
	if err != nil {
		return domain.Movie{}, classify("create movie", err)
	}
	return movie, nil
}

// GetByID fetches a movie by its identifier.
func (r *MoviesRepository) GetByID(ctx context.Context, id string) (domain.Movie, error) {
	query := fmt.Sprintf(`SELECT %s FROM movies WHERE id = $1`, movieColumns)
	movie, err := scanMovie(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Movie{}, classify("get movie", err)
	}
	return movie, nil
}

// GetBySlug fetches a movie by its URL slug.
func (r *MoviesRepository) GetBySlug(ctx context.Context, slug string) (domain.Movie, error) {
	query := fmt.Sprintf(`SELECT %s FROM movies WHERE slug = $1`, movieColumns)
	movie, err := scanMovie(r.pool.QueryRow(ctx, query, slug))
	if err != nil {
		return domain.Movie{}, classify("get movie by slug", err)
	}
	return movie, nil
}

// Exists reports whether a movie with the given id is present.
func (r *MoviesRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM movies WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, classify("movie exists", err)
	}
	return exists, nil
}

// SetRating overwrites only the rating column. No other movie field is read
// or written, so concurrent catalog edits are never clobbered.
func (r *MoviesRepository) SetRating(ctx context.Context, id string, value float64) (domain.Movie, error) {
	query := fmt.Sprintf(`
        UPDATE movies
        SET rating = $2
        WHERE id = $1
        RETURNING %s
    `, movieColumns)

	movie, err := scanMovie(r.pool.QueryRow(ctx, query, id, value))
	if err != nil {
		return domain.Movie{}, classify("set movie rating", err)
	}
	return movie, nil
}

// IncrementOpened bumps the open counter of the movie identified by slug.
func (r *MoviesRepository) IncrementOpened(ctx context.Context, slug string) (domain.Movie, error) {
	query := fmt.Sprintf(`
        UPDATE movies
        SET count_opened = count_opened + 1
        WHERE slug = $1
        RETURNING %s
    `, movieColumns)

	movie, err := scanMovie(r.pool.QueryRow(ctx, query, slug))
	if err != nil {
		return domain.Movie{}, classify("increment opened", err)
	}
	return movie, nil
}

// MostPopular lists opened movies ordered by open count.
func (r *MoviesRepository) MostPopular(ctx context.Context, limit int) ([]domain.Movie, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := fmt.Sprintf(`
        SELECT %s FROM movies
        WHERE count_opened > 0
        ORDER BY count_opened DESC, id
        LIMIT $1
    `, movieColumns)

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, classify("most popular", err)
	}
	defer rows.Close()

	items := make([]domain.Movie, 0)
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return nil, classify("most popular", err)
		}
		items = append(items, movie)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("most popular", err)
	}
	return items, nil
}

// IDs returns every movie id, used by reconciliation sweeps.
func (r *MoviesRepository) IDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM movies ORDER BY id`)
	if err != nil {
		return nil, classify("list movie ids", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify("list movie ids", err)
	}
	return ids, nil
}

// List returns movies that match the provided filters.
func (r *MoviesRepository) List(ctx context.Context, filters MovieListFilters) (MovieListResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	} else if filters.Limit > 100 {
		filters.Limit = 100
	}

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Query != nil && strings.TrimSpace(*filters.Query) != "" {
		where = append(where, fmt.Sprintf("title ILIKE %s", arg("%"+strings.TrimSpace(*filters.Query)+"%")))
	}
	if filters.Year != nil {
		where = append(where, fmt.Sprintf("release_year = %s", arg(*filters.Year)))
	}
	if filters.Genre != nil && strings.TrimSpace(*filters.Genre) != "" {
		where = append(where, fmt.Sprintf("genre ILIKE %s", arg(strings.TrimSpace(*filters.Genre))))
	}
	if filters.Cursor != nil {
		cursorCreated := arg(filters.Cursor.CreatedAt)
		cursorID := arg(filters.Cursor.ID)
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s)", cursorCreated, cursorID))
	}

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString("SELECT ")
	queryBuilder.WriteString(movieColumns)
	queryBuilder.WriteString(" FROM movies")

	if len(where) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(where, " AND "))
	}

	queryBuilder.WriteString(" ORDER BY created_at DESC, id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d", filters.Limit))

	rows, err := r.pool.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return MovieListResult{}, classify("list movies", err)
	}
	defer rows.Close()

	items := make([]domain.Movie, 0)
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return MovieListResult{}, classify("list movies", err)
		}
		items = append(items, movie)
	}
	if err := rows.Err(); err != nil {
		return MovieListResult{}, classify("list movies", err)
	}

	var nextCursor *string
	if len(items) == filters.Limit {
		last := items[len(items)-1]
		token, err := EncodeCursor(MovieCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return MovieListResult{}, err
		}
		nextCursor = &token
	}

	return MovieListResult{Items: items, NextCursor: nextCursor}, nil
}

func scanMovie(row pgx.Row) (domain.Movie, error) {
	var movie domain.Movie
	err := row.Scan(
		&movie.ID,
		&movie.Title,
		&movie.Slug,
		&movie.ReleaseDate,
		&movie.ReleaseYear,
		&movie.Genre,
		&movie.Rating,
		&movie.CountOpened,
		&movie.CreatedAt,
		&movie.UpdatedAt,
	)
	if err != nil {
		return domain.Movie{}, err
	}
	return movie, nil
}

// EncodeCursor renders c as an opaque, URL-safe page token.
func EncodeCursor(c MovieCursor) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// DecodeCursor parses a cursor token into a MovieCursor.
func DecodeCursor(token string) (*MovieCursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var cursor MovieCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	return &cursor, nil
}

// Slugify lowercases a title and joins its runs of letters and digits with
// dashes. Letters from any script are kept.
func Slugify(title string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// SlugFor returns slug when set, else Slugify(title), else a random id.
func SlugFor(title, slug string) string {
	if slug = strings.TrimSpace(slug); slug != "" {
		return slug
	}
	if slug = Slugify(title); slug != "" {
		return slug
	}
	return uuid.NewString()
}
