package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/SearchHarvest/internal/config"
	"github.com/IshaanNene/SearchHarvest/internal/types"
)

// Collection names.
const (
	RunsCollection    = "extraction_runs"
	RecordsCollection = "merged_records"
)

func connectMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("connect: %w", err)}
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("ping: %w", err)}
	}
	return client, nil
}

func disconnect(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Disconnect(ctx)
}

// MongoStorage writes merged records to a MongoDB collection.
type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
	mu         sync.Mutex
	count      int
	logger     *slog.Logger
}

// NewMongoStorage connects and targets the merged records collection.
func NewMongoStorage(ctx context.Context, cfg config.MongoConfig, logger *slog.Logger) (*MongoStorage, error) {
	client, err := connectMongo(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &MongoStorage{
		client:     client,
		collection: client.Database(cfg.Database).Collection(RecordsCollection),
		timeout:    cfg.Timeout,
		logger:     logger.With("component", "mongo_storage"),
	}, nil
}

func (s *MongoStorage) Name() string { return "mongodb" }

func (s *MongoStorage) Store(ctx context.Context, records []*types.Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]any, len(records))
	now := time.Now().UTC()
	for i, rec := range records {
		docs[i] = recordDocument(rec, now)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("insert: %w", err)}
	}

	s.count += len(records)
	s.logger.Debug("records stored in mongodb", "count", len(records), "total", s.count)
	return nil
}

func (s *MongoStorage) Close() error {
	s.logger.Info("mongodb storage closing", "total_records", s.count)
	return disconnect(s.client)
}

// MongoResultStore upserts one extraction run document per site.
type MongoResultStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
	logger     *slog.Logger
}

// NewMongoResultStore connects and targets the runs collection.
func NewMongoResultStore(ctx context.Context, cfg config.MongoConfig, logger *slog.Logger) (*MongoResultStore, error) {
	client, err := connectMongo(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &MongoResultStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(RunsCollection),
		timeout:    cfg.Timeout,
		logger:     logger.With("component", "mongo_result_store"),
	}, nil
}

func (s *MongoResultStore) Name() string { return "mongodb" }

func (s *MongoResultStore) SaveResult(ctx context.Context, r *types.Result) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"site": r.SiteKey},
		resultDocument(r),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("upsert run: %w", err)}
	}
	s.logger.Debug("run stored in mongodb", "site", r.SiteKey, "run_id", r.RunID)
	return nil
}

func (s *MongoResultStore) Close() error {
	return disconnect(s.client)
}

func resultDocument(r *types.Result) bson.M {
	doc := bson.M{
		"site":        r.SiteKey,
		"run_id":      r.RunID,
		"status":      r.State.String(),
		"pages":       r.Pages,
		"url_count":   len(r.URLs),
		"urls":        r.URLs,
		"started_at":  r.StartedAt.UTC(),
		"finished_at": r.FinishedAt.UTC(),
	}
	if r.StopReason != "" {
		doc["stop_reason"] = string(r.StopReason)
	}
	if r.Error != "" {
		doc["error"] = r.Error
	}
	if r.Snapshot != "" {
		doc["snapshot"] = r.Snapshot
	}
	return doc
}

func recordDocument(rec *types.Record, stored time.Time) bson.M {
	doc := make(bson.M, len(rec.Fields)+2)
	for k, v := range rec.Fields {
		doc[k] = bsonValue(v)
	}
	doc["_source_file"] = rec.Source
	doc["_stored_at"] = stored
	return doc
}

// bsonValue converts decoded JSON so numbers are stored as numbers rather
// than the strings json.Number would encode to.
func bsonValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = bsonValue(e)
		}
		return out
	case map[string]any:
		out := make(bson.M, len(val))
		for k, e := range val {
			out[k] = bsonValue(e)
		}
		return out
	default:
		return v
	}
}

// --- Fan-Out ---

// MultiStorage writes records to multiple backends.
type MultiStorage struct {
	backends []Storage
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to multiple backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string { return "multi" }

func (s *MultiStorage) Store(ctx context.Context, records []*types.Record) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Store(ctx, records); err != nil {
			s.logger.Error("backend store failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *MultiStorage) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// MultiResultStore saves results to multiple backends.
type MultiResultStore struct {
	backends []ResultStore
	logger   *slog.Logger
}

// NewMultiResultStore creates a result store that fans out to backends.
func NewMultiResultStore(backends []ResultStore, logger *slog.Logger) *MultiResultStore {
	return &MultiResultStore{
		backends: backends,
		logger:   logger.With("component", "multi_result_store"),
	}
}

func (s *MultiResultStore) Name() string { return "multi" }

func (s *MultiResultStore) SaveResult(ctx context.Context, r *types.Result) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.SaveResult(ctx, r); err != nil {
			s.logger.Error("backend save failed", "backend", backend.Name(), "site", r.SiteKey, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *MultiResultStore) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
