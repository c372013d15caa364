package vector

import (
	"errors"
	"testing"

	"github.com/hyperjump/lookalike/internal/apperr"
)

func TestDotProduct(t *testing.T) {
	got, err := DotProduct([]float32{1, 2, 3}, []float32{4, 5, 6})
	if err != nil {
		t.Fatal(err)
	}
	if got != 32 {
		t.Errorf("DotProduct = %v, want 32", got)
	}
	if _, err := DotProduct([]float32{1}, []float32{1, 2}); !errors.Is(err, apperr.ErrDimensionMismatch) {
		t.Errorf("mismatch err = %v", err)
	}
	got, err = DotProduct(nil, nil)
	if err != nil || got != 0 {
		t.Errorf("empty: %v, %v", got, err)
	}
}

func TestL2Norm(t *testing.T) {
	if got := L2Norm([]float32{3, 4}); got != 5 {
		t.Errorf("L2Norm = %v, want 5", got)
	}
	if got := L2Norm(nil); got != 0 {
		t.Errorf("L2Norm(nil) = %v", got)
	}
}

func TestIsUnitLength(t *testing.T) {
	if !IsUnitLength([]float32{0.6, 0.8}, 1e-6) {
		t.Error("0.6,0.8 should be unit length")
	}
	if IsUnitLength([]float32{1, 1}, 1e-6) {
		t.Error("1,1 is not unit length")
	}
}
