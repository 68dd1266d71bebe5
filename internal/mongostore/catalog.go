package mongostore

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/repository"
)

// Create inserts a catalog movie. Slug rules match the Postgres catalog.
func (s *Store) Create(ctx context.Context, params repository.MovieCreateParams) (domain.Movie, error) {
	return s.AddMovie(ctx, domain.Movie{
		Title:       params.Title,
		Slug:        repository.SlugFor(params.Title, params.Slug),
		ReleaseDate: params.ReleaseDate,
		ReleaseYear: params.ReleaseDate.Year(),
		Genre:       params.Genre,
	})
}

// GetBySlug fetches a movie by its URL slug.
func (s *Store) GetBySlug(ctx context.Context, slug string) (domain.Movie, error) {
	var doc movieDoc
	if err := s.movies.FindOne(ctx, bson.M{"slug": slug}).Decode(&doc); err != nil {
		return domain.Movie{}, classify("get movie by slug", err)
	}
	return doc.toDomain(), nil
}

// IncrementOpened bumps countOpened atomically with $inc.
func (s *Store) IncrementOpened(ctx context.Context, slug string) (domain.Movie, error) {
	var doc movieDoc
	err := s.movies.FindOneAndUpdate(ctx,
		bson.M{"slug": slug},
		bson.M{
			"$inc": bson.M{"countOpened": 1},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return domain.Movie{}, classify("increment opened", err)
	}
	return doc.toDomain(), nil
}

// MostPopular lists opened movies ordered by open count.
func (s *Store) MostPopular(ctx context.Context, limit int) ([]domain.Movie, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "countOpened", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	return s.findMovies(ctx, "most popular", bson.M{"countOpened": bson.M{"$gt": 0}}, opts)
}

// List applies the same filters and keyset pagination as the Postgres catalog.
func (s *Store) List(ctx context.Context, filters repository.MovieListFilters) (repository.MovieListResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	} else if filters.Limit > 100 {
		filters.Limit = 100
	}

	filter := bson.M{}
	if filters.Query != nil && strings.TrimSpace(*filters.Query) != "" {
		filter["title"] = primitive.Regex{Pattern: regexp.QuoteMeta(strings.TrimSpace(*filters.Query)), Options: "i"}
	}
	if filters.Year != nil {
		filter["releaseYear"] = *filters.Year
	}
	if filters.Genre != nil && strings.TrimSpace(*filters.Genre) != "" {
		filter["genre"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(strings.TrimSpace(*filters.Genre)) + "$", Options: "i"}
	}
	if c := filters.Cursor; c != nil {
		filter["$or"] = bson.A{
			bson.M{"createdAt": bson.M{"$lt": c.CreatedAt}},
			bson.M{"createdAt": c.CreatedAt, "_id": bson.M{"$lt": c.ID}},
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(filters.Limit))
	items, err := s.findMovies(ctx, "list movies", filter, opts)
	if err != nil {
		return repository.MovieListResult{}, err
	}

	var next *string
	if len(items) == filters.Limit {
		last := items[len(items)-1]
		token, err := repository.EncodeCursor(repository.MovieCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return repository.MovieListResult{}, err
		}
		next = &token
	}
	return repository.MovieListResult{Items: items, NextCursor: next}, nil
}

func (s *Store) findMovies(ctx context.Context, op string, filter bson.M, opts *options.FindOptions) ([]domain.Movie, error) {
	cur, err := s.movies.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(op, err)
	}
	defer cur.Close(ctx)

	items := make([]domain.Movie, 0)
	for cur.Next(ctx) {
		var doc movieDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, classify(op, err)
		}
		items = append(items, doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, classify(op, err)
	}
	return items, nil
}
