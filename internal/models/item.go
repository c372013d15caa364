// Package models defines core data structures for stored items, queries, and search results.
package models

import (
	"fmt"
	"math"
	"time"

	"github.com/hyperjump/lookalike/internal/apperr"
)

// StoredItem is a precomputed embedding with the URL used to display its image.
// Items are owned by the store and read-only to the ranker.
type StoredItem struct {
	ID         string    `json:"id"`
	Vector     []float32 `json:"vector"`
	DisplayURL string    `json:"displayUrl"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Validate checks the item shape. When dimensions > 0 the vector length must equal it.
func (i *StoredItem) Validate(dimensions int) error {
	if i == nil {
		return fmt.Errorf("%w: nil item", apperr.ErrInvalidItem)
	}
	if i.ID == "" {
		return fmt.Errorf("%w: id is required", apperr.ErrInvalidItem)
	}
	if len(i.Vector) == 0 {
		return fmt.Errorf("%w: item %s has no vector", apperr.ErrInvalidItem, i.ID)
	}
	if dimensions > 0 && len(i.Vector) != dimensions {
		return fmt.Errorf("%w: item %s has %d dimensions, expected %d",
			apperr.ErrDimensionMismatch, i.ID, len(i.Vector), dimensions)
	}
	for j, v := range i.Vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: item %s has non-finite value at %d", apperr.ErrInvalidItem, i.ID, j)
		}
	}
	return nil
}

// ValidateBatch validates items and requires one vector length across them: dimensions
// when positive, otherwise the first item's. It returns that length (0 for no items).
func ValidateBatch(items []*StoredItem, dimensions int) (int, error) {
	want := dimensions
	for _, item := range items {
		if err := item.Validate(want); err != nil {
			return 0, err
		}
		if want <= 0 {
			want = len(item.Vector)
		}
	}
	return want, nil
}

// Clone returns a deep copy so callers cannot mutate store-owned vectors.
func (i *StoredItem) Clone() *StoredItem {
	c := *i
	c.Vector = append([]float32(nil), i.Vector...)
	return &c
}
