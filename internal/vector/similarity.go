// Package vector provides similarity scoring and exact top-k ranking over stored embeddings.
package vector

import (
	"fmt"
	"math"

	"github.com/hyperjump/lookalike/internal/apperr"
)

// DotProduct returns the raw inner product of a and b.
// Vectors of different length are an error, never truncated.
func DotProduct(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: got %d, expected %d", apperr.ErrDimensionMismatch, len(b), len(a))
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot, nil
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// IsUnitLength reports whether x has L2 norm 1 within tolerance.
func IsUnitLength(x []float32, tolerance float64) bool {
	return math.Abs(L2Norm(x)-1) <= tolerance
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
