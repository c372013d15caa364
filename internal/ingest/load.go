package ingest

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hyperjump/lookalike/internal/models"
	"github.com/hyperjump/lookalike/internal/storage"
	"github.com/hyperjump/lookalike/internal/vector"
	"github.com/hyperjump/lookalike/pkg/utils"
)

const unitTolerance = 1e-3

// Options controls how a file is loaded.
type Options struct {
	// Dimensions, when positive, is the required vector length.
	Dimensions int
	// Normalize scales every vector to unit length so that dot-product ranking
	// orders by cosine similarity.
	Normalize bool
	// Logger receives a warning when vectors are stored without unit length.
	Logger *zap.Logger
}

// ReadFile reads and validates the items in path.
func ReadFile(path string, opts Options) ([]*models.StoredItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	items, err := ReadItems(f, opts.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if opts.Normalize {
		for _, item := range items {
			utils.NormalizeL2(item.Vector)
		}
	} else if n := CountNonUnit(items); n > 0 && opts.Logger != nil {
		opts.Logger.Warn("vectors are not unit length; scores are dot products, not cosine similarity",
			zap.String("path", path), zap.Int("items", n), zap.Int("total", len(items)))
	}
	return items, nil
}

// CountNonUnit returns how many items have a vector whose L2 norm is not 1.
func CountNonUnit(items []*models.StoredItem) int {
	n := 0
	for _, item := range items {
		if !vector.IsUnitLength(item.Vector, unitTolerance) {
			n++
		}
	}
	return n
}

// Load replaces the store's contents with the items in path and returns how many were loaded.
func Load(ctx context.Context, path string, w storage.Writer, opts Options) (int, error) {
	items, err := ReadFile(path, opts)
	if err != nil {
		return 0, err
	}
	if err := w.Replace(ctx, items); err != nil {
		return 0, fmt.Errorf("failed to replace items: %w", err)
	}
	return len(items), nil
}

// Import upserts the items in path, keeping items that are not in the file.
func Import(ctx context.Context, path string, w storage.Writer, opts Options) (int, error) {
	items, err := ReadFile(path, opts)
	if err != nil {
		return 0, err
	}
	if err := w.Upsert(ctx, items); err != nil {
		return 0, fmt.Errorf("failed to upsert items: %w", err)
	}
	return len(items), nil
}

// ReloadOnChange returns a Watcher callback that reloads the file into w. Failures are
// logged and leave the previous contents in place. after, if set, receives the new count.
func ReloadOnChange(ctx context.Context, w storage.Writer, opts Options, logger *zap.Logger, after func(n int)) func(path string) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(path string) {
		n, err := Load(ctx, path, w, opts)
		if err != nil {
			logger.Error("seed reload failed", zap.String("path", path), zap.Error(err))
			return
		}
		logger.Info("seed reloaded", zap.String("path", path), zap.Int("items", n))
		if after != nil {
			after(n)
		}
	}
}
