// Package mongostore keeps movies and votes in MongoDB.
//
// Votes live in the "ratings" collection with a unique {movieId, userId}
// index; movie documents in "movies" carry the rating projection.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-ratings/internal/domain"
	"github.com/Clark-Hu/movie-ratings/internal/logging"
)

const (
	moviesCollection  = "movies"
	ratingsCollection = "ratings"
)

type movieDoc struct {
	ID          string    `bson:"_id"`
	Title       string    `bson:"title"`
	Slug        string    `bson:"slug"`
	ReleaseDate time.Time `bson:"releaseDate"`
	ReleaseYear int       `bson:"releaseYear"`
	Genre       string    `bson:"genre"`
	Rating      float64   `bson:"rating"`
	CountOpened int64     `bson:"countOpened"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

func (d movieDoc) toDomain() domain.Movie {
	return domain.Movie{
		ID:          d.ID,
		Title:       d.Title,
		Slug:        d.Slug,
		ReleaseDate: d.ReleaseDate,
		ReleaseYear: d.ReleaseYear,
		Genre:       d.Genre,
		Rating:      d.Rating,
		CountOpened: d.CountOpened,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type ratingDoc struct {
	MovieID   string    `bson:"movieId"`
	UserID    string    `bson:"userId"`
	Value     int       `bson:"value"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// Store is a MongoDB-backed rating store and movie projection.
type Store struct {
	client  *mongo.Client
	movies  *mongo.Collection
	ratings *mongo.Collection
	log     *zap.Logger
}

// Open connects, pings, and ensures the indexes the store relies on.
func Open(ctx context.Context, uri, database string, log *zap.Logger) (*Store, error) {
	log = logging.OrNop(log)
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := NewWithDatabase(client, client.Database(database), log)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	log.Info("mongo store ready", zap.String("database", database))
	return s, nil
}

// NewWithDatabase wraps an existing database handle.
func NewWithDatabase(client *mongo.Client, db *mongo.Database, log *zap.Logger) *Store {
	log = logging.OrNop(log)
	return &Store{
		client:  client,
		movies:  db.Collection(moviesCollection),
		ratings: db.Collection(ratingsCollection),
		log:     log,
	}
}

// EnsureIndexes creates the unique vote index and the movie slug index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.ratings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "movieId", Value: 1}, {Key: "userId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_movie_user"),
		},
	})
	if err != nil {
		return classify("create rating indexes", err)
	}
	_, err = s.movies.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_slug"),
	})
	if err != nil {
		return classify("create movie indexes", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// HealthCheck pings the primary.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return classify("ping mongo", err)
	}
	return nil
}

// AddMovie inserts a movie document, assigning an id when empty.
func (s *Store) AddMovie(ctx context.Context, movie domain.Movie) (domain.Movie, error) {
	if movie.ID == "" {
		movie.ID = uuid.NewString()
	}
	// BSON dates hold milliseconds; truncating keeps returned and stored values equal.
	now := time.Now().UTC().Truncate(time.Millisecond)
	if movie.CreatedAt.IsZero() {
		movie.CreatedAt = now
	}
	movie.UpdatedAt = now
	if movie.ReleaseYear == 0 && !movie.ReleaseDate.IsZero() {
		movie.ReleaseYear = movie.ReleaseDate.Year()
	}
	doc := movieDoc{
		ID:          movie.ID,
		Title:       movie.Title,
		Slug:        movie.Slug,
		ReleaseDate: movie.ReleaseDate,
		ReleaseYear: movie.ReleaseYear,
		Genre:       movie.Genre,
		Rating:      movie.Rating,
		CountOpened: movie.CountOpened,
		CreatedAt:   movie.CreatedAt,
		UpdatedAt:   movie.UpdatedAt,
	}
	if doc.Slug == "" {
		doc.Slug = movie.ID
		movie.Slug = movie.ID
	}
	if _, err := s.movies.InsertOne(ctx, doc); err != nil {
		return domain.Movie{}, classify("insert movie", err)
	}
	return movie, nil
}

// Exists reports whether the movie document is present.
func (s *Store) Exists(ctx context.Context, movieID string) (bool, error) {
	n, err := s.movies.CountDocuments(ctx, bson.M{"_id": movieID}, options.Count().SetLimit(1))
	if err != nil {
		return false, classify("movie exists", err)
	}
	return n > 0, nil
}

// SetRating overwrites only the rating field and returns the updated movie.
func (s *Store) SetRating(ctx context.Context, movieID string, value float64) (domain.Movie, error) {
	var doc movieDoc
	err := s.movies.FindOneAndUpdate(ctx,
		bson.M{"_id": movieID},
		bson.M{"$set": bson.M{"rating": value}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return domain.Movie{}, classify("set movie rating", err)
	}
	return doc.toDomain(), nil
}

// IDs lists every movie id.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	cur, err := s.movies.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, classify("list movie ids", err)
	}
	defer cur.Close(ctx)

	ids := make([]string, 0)
	for cur.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, classify("decode movie id", err)
		}
		ids = append(ids, row.ID)
	}
	if err := cur.Err(); err != nil {
		return nil, classify("list movie ids", err)
	}
	return ids, nil
}

// Upsert inserts or replaces the user's vote. Inserted is true when no vote
// existed before. A lost race on the unique index surfaces as ErrConflict.
func (s *Store) Upsert(ctx context.Context, userID, movieID string, value int) (domain.Rating, bool, error) {
	exists, err := s.Exists(ctx, movieID)
	if err != nil {
		return domain.Rating{}, false, err
	}
	if !exists {
		return domain.Rating{}, false, fmt.Errorf("upsert rating: movie %s: %w", movieID, domain.ErrNotFound)
	}

	now := time.Now().UTC()
	var before ratingDoc
	err = s.ratings.FindOneAndUpdate(ctx,
		bson.M{"movieId": movieID, "userId": userID},
		bson.M{
			"$set":         bson.M{"value": value, "updatedAt": now},
			"$setOnInsert": bson.M{"createdAt": now},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.Before),
	).Decode(&before)

	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.Rating{MovieID: movieID, UserID: userID, Value: value, CreatedAt: now, UpdatedAt: now}, true, nil
	case err != nil:
		return domain.Rating{}, false, classify("upsert rating", err)
	}
	return domain.Rating{MovieID: movieID, UserID: userID, Value: value, CreatedAt: before.CreatedAt, UpdatedAt: now}, false, nil
}

// ValueFor returns the user's vote; ok is false when there is none.
func (s *Store) ValueFor(ctx context.Context, userID, movieID string) (int, bool, error) {
	var doc ratingDoc
	err := s.ratings.FindOne(ctx, bson.M{"movieId": movieID, "userId": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classify("rating value", err)
	}
	return doc.Value, true, nil
}

// MeanFor averages the movie's votes server-side; ok is false with no votes.
func (s *Store) MeanFor(ctx context.Context, movieID string) (float64, bool, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"movieId": movieID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"avg":   bson.M{"$avg": "$value"},
			"count": bson.M{"$sum": 1},
		}}},
	}
	cur, err := s.ratings.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, false, classify("aggregate ratings", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		Avg   float64 `bson:"avg"`
		Count int64   `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, false, classify("aggregate ratings", err)
	}
	if len(rows) == 0 || rows[0].Count == 0 {
		return 0, false, nil
	}
	return rows[0].Avg, true, nil
}

func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrConflict, err)
	case mongo.IsTimeout(err), mongo.IsNetworkError(err), errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) && (serverErr.HasErrorLabel("RetryableWriteError") || serverErr.HasErrorLabel("TransientTransactionError")) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
