package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hyperjump/lookalike/internal/apperr"
	"github.com/hyperjump/lookalike/internal/models"
)

// SQLiteStore implements ReadWriter using SQLite. Vectors are stored as
// little-endian float32 blobs; rowid order is insertion order.
type SQLiteStore struct {
	db         *sql.DB
	path       string
	dimensions int
	logger     *zap.Logger
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string, dimensions int, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", apperr.ErrStoreUnavailable, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to enable WAL: %v", apperr.ErrStoreUnavailable, err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath, dimensions: dimensions, logger: logger}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		dimensions INTEGER NOT NULL,
		display_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_items_dimensions ON items(dimensions);
	`
	_, err := db.Exec(schema)
	return err
}

// Type returns the store type identifier.
func (s *SQLiteStore) Type() string {
	return TypeSQLite
}

// FetchAll returns every item in insertion order. A row whose vector blob cannot be
// decoded fails the call rather than being skipped.
func (s *SQLiteStore) FetchAll(ctx context.Context) ([]*models.StoredItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vector, display_url, created_at FROM items ORDER BY rowid`)
	if err != nil {
		return nil, s.readError(err)
	}
	defer rows.Close()

	items := make([]*models.StoredItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			s.logger.Error("malformed stored item", zap.Error(err))
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, s.readError(err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.StoredItem, error) {
	var item models.StoredItem
	var blob []byte
	if err := row.Scan(&item.ID, &blob, &item.DisplayURL, &item.CreatedAt); err != nil {
		return nil, err
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: item %s: %v", apperr.ErrInvalidItem, item.ID, err)
	}
	item.Vector = vec
	if err := item.Validate(0); err != nil {
		return nil, err
	}
	return &item, nil
}

// Get returns an item by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.StoredItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, vector, display_url, created_at FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: item %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Upsert inserts or updates items in a transaction. Updated items keep their position.
// Vectors must match the configured length, or else the length already stored.
func (s *SQLiteStore) Upsert(ctx context.Context, items []*models.StoredItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.readError(err)
	}
	defer tx.Rollback()
	want, err := s.collectionDimensions(ctx, tx)
	if err != nil {
		return err
	}
	if _, err := models.ValidateBatch(items, want); err != nil {
		return err
	}
	if err := s.insertItems(ctx, tx, items); err != nil {
		return err
	}
	return tx.Commit()
}

// Replace deletes every item and inserts items in one transaction.
func (s *SQLiteStore) Replace(ctx context.Context, items []*models.StoredItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.readError(err)
	}
	defer tx.Rollback()
	if _, err := models.ValidateBatch(items, s.dimensions); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return err
	}
	if err := s.insertItems(ctx, tx, items); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) insertItems(ctx context.Context, tx *sql.Tx, items []*models.StoredItem) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO items (id, vector, dimensions, display_url, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   vector = excluded.vector,
		   dimensions = excluded.dimensions,
		   display_url = excluded.display_url`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, item := range items {
		created := item.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx, item.ID, encodeVector(item.Vector), len(item.Vector), item.DisplayURL, created); err != nil {
			return fmt.Errorf("insert item %s: %w", item.ID, err)
		}
	}
	return nil
}

// Delete removes an item by id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: item %s", apperr.ErrNotFound, id)
	}
	return nil
}

// Count returns the total number of items.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count); err != nil {
		return 0, s.readError(err)
	}
	return count, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Dimensions returns the distinct vector lengths present in the table.
func (s *SQLiteStore) Dimensions(ctx context.Context) ([]int, error) {
	return s.storedDimensions(ctx, s.db)
}

// collectionDimensions returns the length new vectors must have: the configured one,
// else the single stored length, else 0 for an empty table.
func (s *SQLiteStore) collectionDimensions(ctx context.Context, q queryer) (int, error) {
	if s.dimensions > 0 {
		return s.dimensions, nil
	}
	dims, err := s.storedDimensions(ctx, q)
	if err != nil {
		return 0, err
	}
	switch len(dims) {
	case 0:
		return 0, nil
	case 1:
		return dims[0], nil
	default:
		return 0, fmt.Errorf("%w: stored vectors have lengths %v", apperr.ErrDimensionMismatch, dims)
	}
}

func (s *SQLiteStore) storedDimensions(ctx context.Context, q queryer) ([]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT DISTINCT dimensions FROM items ORDER BY dimensions`)
	if err != nil {
		return nil, s.readError(err)
	}
	defer rows.Close()
	var dims []int
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}
	return dims, rows.Err()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.readError(err)
	}
	return nil
}

// DiskUsage returns the size of the database file and its WAL side files.
func (s *SQLiteStore) DiskUsage() (int64, error) {
	return DiskUsageBytes(SQLiteFiles(s.path)...)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) readError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
}
