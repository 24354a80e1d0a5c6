// Package storage persists extraction results and merged records.
package storage

import (
	"context"

	"github.com/IshaanNene/SearchHarvest/internal/types"
)

// Storage is the interface for merged-record backends.
type Storage interface {
	// Store persists a batch of records.
	Store(ctx context.Context, records []*types.Record) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// ResultStore is the interface for extraction-result backends.
type ResultStore interface {
	SaveResult(ctx context.Context, r *types.Result) error
	Close() error
	Name() string
}
