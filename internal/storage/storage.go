// Package storage defines the vector store collaborators read by the ranker
// and their SQLite, MongoDB, and in-memory implementations.
package storage

import (
	"context"

	"github.com/hyperjump/lookalike/internal/models"
)

// Store type identifiers accepted by NewStore.
const (
	TypeMemory = "memory"
	TypeSQLite = "sqlite"
	TypeMongo  = "mongo"
)

// Store is the read side of a vector collection. Implementations are safe for concurrent reads.
type Store interface {
	// FetchAll returns every item in a stable order (insertion order where the backend has one).
	FetchAll(ctx context.Context) ([]*models.StoredItem, error)
	Count(ctx context.Context) (int64, error)
	// Ping reports whether the backing connection is established.
	Ping(ctx context.Context) error
	Type() string
	Close() error
}

// Searcher is implemented by stores that can score and rank inside the backend.
// Results must match vector.Rank for the same inputs. MongoStore scores the stored
// float64 values, so documents written by other tools with more than float32
// precision may score slightly differently than on the scan path.
type Searcher interface {
	SearchSimilar(ctx context.Context, query []float32, k int) ([]*models.RankedResult, error)
}

// Getter looks up a single item. A missing id is apperr.ErrNotFound.
type Getter interface {
	Get(ctx context.Context, id string) (*models.StoredItem, error)
}

// Writer is the ingestion side of a store. Every write keeps one vector length
// across the collection; a write that would mix lengths fails with
// apperr.ErrDimensionMismatch and changes nothing.
type Writer interface {
	Upsert(ctx context.Context, items []*models.StoredItem) error
	Delete(ctx context.Context, id string) error
	// Replace swaps the whole collection for items. Atomic where the backend has transactions.
	Replace(ctx context.Context, items []*models.StoredItem) error
}

// ReadWriter is a store that supports both sides.
type ReadWriter interface {
	Store
	Writer
}
