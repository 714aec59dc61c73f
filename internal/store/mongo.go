package store

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"transcripts/internal/logger"
	"transcripts/pkg/models"
)

// UniqueIndexName is the index enforcing one record per student and period.
const UniqueIndexName = "student_period_unique"

// upsertAttempts bounds retries of an upsert that lost an insert race on
// the unique index.
const upsertAttempts = 3

// MongoConfig holds MongoDB connection configuration.
type MongoConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
	MaxPoolSize    uint64
	MinPoolSize    uint64
	MaxIdleTime    time.Duration
}

// DefaultMongoConfig returns the connection defaults for uri, database and
// collection.
func DefaultMongoConfig(uri, database, collection string) MongoConfig {
	return MongoConfig{
		URI:            uri,
		Database:       database,
		Collection:     collection,
		ConnectTimeout: 20 * time.Second,
		QueryTimeout:   10 * time.Second,
		MaxPoolSize:    50,
		MinPoolSize:    5,
		MaxIdleTime:    30 * time.Second,
	}
}

// Mongo is a Store backed by a MongoDB collection.
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
	cfg        MongoConfig
	logger     zerolog.Logger
}

// ConnectMongo connects, pings the primary and ensures the unique index.
func ConnectMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	const op = "ConnectMongo"
	log := logger.WithComponent("store")

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxIdleTime).
		SetServerSelectionTimeout(10 * time.Second).
		SetConnectTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: ping: %w: %w", op, ErrUnavailable, err)
	}

	m := &Mongo{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		cfg:        cfg,
		logger:     log,
	}

	if err := m.EnsureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	log.Info().
		Str("database", cfg.Database).
		Str("collection", cfg.Collection).
		Msg("Connected to MongoDB")
	return m, nil
}

// EnsureIndexes creates the unique (student, year, period) index.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, uniqueIndex())
	if err != nil {
		return fmt.Errorf("EnsureIndexes: %w: %w", ErrUnavailable, err)
	}
	return nil
}

func uniqueIndex() mongo.IndexModel {
	return mongo.IndexModel{
		Keys: bson.D{
			{Key: "student_id", Value: 1},
			{Key: "year_of_study", Value: 1},
			{Key: "academic_period", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName(UniqueIndexName),
	}
}

func keyFilter(key models.RecordKey) bson.D {
	return bson.D{
		{Key: "student_id", Value: key.StudentID},
		{Key: "year_of_study", Value: key.YearOfStudy},
		{Key: "academic_period", Value: key.AcademicPeriod},
	}
}

// upsertUpdate replaces every mutable field and stamps created_at only when
// the document is inserted.
func upsertUpdate(rec models.PerformanceRecord, now time.Time) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "student_id", Value: rec.StudentID},
			{Key: "year_of_study", Value: rec.YearOfStudy},
			{Key: "academic_period", Value: rec.AcademicPeriod},
			{Key: "gpa", Value: rec.GPA},
			{Key: "raw_average", Value: rec.RawAverage},
			{Key: "mean_grade", Value: rec.MeanGrade},
			{Key: "status", Value: rec.GradeSignal.Status()},
			{Key: "source_document_id", Value: rec.SourceDocumentID},
			{Key: "updated_at", Value: now},
		}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "created_at", Value: now},
		}},
	}
}

// Upsert writes rec in one atomic find-and-modify keyed on the unique index.
// An insert that loses a race to a concurrent writer is retried as an update.
func (m *Mongo) Upsert(ctx context.Context, rec models.PerformanceRecord) (models.PerformanceRecord, error) {
	const op = "Upsert"
	if err := validate(rec); err != nil {
		return models.PerformanceRecord{}, err
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored models.PerformanceRecord
	err := retry.Do(
		func() error {
			queryCtx, cancel := context.WithTimeout(ctx, m.cfg.QueryTimeout)
			defer cancel()

			now := time.Now().UTC()
			return m.collection.
				FindOneAndUpdate(queryCtx, keyFilter(rec.Key()), upsertUpdate(rec, now), opts).
				Decode(&stored)
		},
		retry.Context(ctx),
		retry.Attempts(upsertAttempts),
		retry.Delay(50*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(mongo.IsDuplicateKeyError),
		retry.OnRetry(func(n uint, err error) {
			m.logger.Debug().Uint("attempt", n+1).Err(err).Msg("Upsert lost insert race, retrying")
		}),
	)
	if err != nil {
		m.logger.Error().
			Str("op", op).
			Str("student_id", rec.StudentID).
			Int("year_of_study", rec.YearOfStudy).
			Str("academic_period", rec.AcademicPeriod).
			Err(err).
			Msg("Failed to upsert performance record")
		return models.PerformanceRecord{}, fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return stored, nil
}

// FindByStudent returns the student's records sorted by year and period.
func (m *Mongo) FindByStudent(ctx context.Context, studentID string) ([]models.PerformanceRecord, error) {
	const op = "FindByStudent"

	queryCtx, cancel := context.WithTimeout(ctx, m.cfg.QueryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{
		{Key: "year_of_study", Value: 1},
		{Key: "academic_period", Value: 1},
	})
	cursor, err := m.collection.Find(queryCtx, bson.D{{Key: "student_id", Value: studentID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	defer cursor.Close(queryCtx)

	var records []models.PerformanceRecord
	if err := cursor.All(queryCtx, &records); err != nil {
		return nil, fmt.Errorf("%s: decode: %w: %w", op, ErrUnavailable, err)
	}
	return records, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("Close: %w", err)
	}
	m.logger.Info().Msg("Disconnected from MongoDB")
	return nil
}
