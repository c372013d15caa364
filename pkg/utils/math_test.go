package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	x := []float32{3, 4}
	if !NormalizeL2(x) {
		t.Fatal("NormalizeL2 returned false for non-zero vector")
	}
	if math.Abs(float64(x[0])-0.6) > 1e-6 || math.Abs(float64(x[1])-0.8) > 1e-6 {
		t.Errorf("NormalizeL2([3 4]) = %v, want [0.6 0.8]", x)
	}
}

func TestNormalizeL2_zeroVectorUnchanged(t *testing.T) {
	x := []float32{0, 0, 0}
	if NormalizeL2(x) {
		t.Error("NormalizeL2 returned true for zero vector")
	}
	for i, v := range x {
		if v != 0 {
			t.Errorf("x[%d] = %v, want 0", i, v)
		}
	}
}
