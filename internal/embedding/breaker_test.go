package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/lookalike/internal/apperr"
)

type stubClient struct {
	calls int
	err   error
	vec   []float32
}

func (s *stubClient) Embed(ctx context.Context, image []byte, filename string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

func (s *stubClient) Close() error { return nil }

func TestBreakerClient_OpensAfterFailures(t *testing.T) {
	stub := &stubClient{err: apperr.ErrUpstreamUnavailable}
	b := NewBreakerClient(stub, "test", 2, time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := b.Embed(context.Background(), []byte("x"), "")
		assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	}
	assert.Equal(t, "open", b.State())

	_, err := b.Embed(context.Background(), []byte("x"), "")
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	assert.Equal(t, 2, stub.calls, "open breaker must not call the service")
}

func TestBreakerClient_ClientErrorsDoNotTrip(t *testing.T) {
	stub := &stubClient{err: apperr.ErrNoInputProvided}
	b := NewBreakerClient(stub, "test", 1, time.Minute, nil)

	for i := 0; i < 3; i++ {
		_, err := b.Embed(context.Background(), nil, "")
		assert.ErrorIs(t, err, apperr.ErrNoInputProvided)
	}
	assert.Equal(t, "closed", b.State())
	assert.Equal(t, 3, stub.calls)
}

func TestBreakerClient_PassesThrough(t *testing.T) {
	stub := &stubClient{vec: []float32{1, 2}}
	b := NewBreakerClient(stub, "test", 1, time.Minute, nil)
	vec, err := b.Embed(context.Background(), []byte("x"), "")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
}
