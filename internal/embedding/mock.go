package embedding

import (
	"context"
	"math"

	"github.com/hyperjump/lookalike/internal/apperr"
)

// MockClient is a deterministic client for tests and offline runs. The same bytes
// always produce the same unit-length vector.
type MockClient struct {
	dimensions int
}

// NewMockClient returns a client that produces vectors of the given dimensions.
func NewMockClient(dimensions int) *MockClient {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockClient{dimensions: dimensions}
}

// Embed returns a deterministic embedding based on a hash of image.
func (m *MockClient) Embed(ctx context.Context, image []byte, filename string) ([]float32, error) {
	if len(image) == 0 {
		return nil, apperr.ErrNoInputProvided
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := hashBytes(image)
	emb := make([]float32, m.dimensions)
	for i := 0; i < m.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	var sum float64
	for _, v := range emb {
		sum += float64(v * v)
	}
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range emb {
			emb[i] *= float32(norm)
		}
	}
	return emb, nil
}

// Close is a no-op.
func (m *MockClient) Close() error {
	return nil
}

func hashBytes(b []byte) int {
	h := 0
	for _, c := range b {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h % 1000003
}
