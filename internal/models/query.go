package models

import (
	"fmt"

	"github.com/hyperjump/lookalike/internal/apperr"
)

// ImageQuery is an uploaded image to search with.
type ImageQuery struct {
	Image    []byte
	Filename string
	Limit    int
}

// Validate rejects a query with no image bytes.
func (q *ImageQuery) Validate() error {
	if q == nil || len(q.Image) == 0 {
		return fmt.Errorf("%w: image payload is empty", apperr.ErrNoInputProvided)
	}
	return nil
}

// VectorQuery is a search by an already computed embedding.
type VectorQuery struct {
	Vector []float32 `json:"vector"`
	Limit  int       `json:"limit,omitempty"`
}

// Validate rejects a query with no vector.
func (q *VectorQuery) Validate() error {
	if q == nil || len(q.Vector) == 0 {
		return fmt.Errorf("%w: vector is required", apperr.ErrNoInputProvided)
	}
	return nil
}

// ResolveLimit applies the default when limit is unset and caps it at maxLimit.
// A negative limit is kept as is; ranking treats it as "no results".
func ResolveLimit(limit, defaultLimit, maxLimit int) int {
	if limit == 0 {
		limit = defaultLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return limit
}
