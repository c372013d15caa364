package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Set("c", []float32{6}) // evicts a
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestCachedClient_HitsCache(t *testing.T) {
	stub := &stubClient{vec: []float32{1, 2}}
	c := NewCachedClient(stub, 4)

	first, err := c.Embed(context.Background(), []byte("same"), "a.jpg")
	require.NoError(t, err)
	first[0] = 99

	second, err := c.Embed(context.Background(), []byte("same"), "b.jpg")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, second, "cached value must not be affected by caller mutation")
	assert.Equal(t, 1, stub.calls)

	_, err = c.Embed(context.Background(), []byte("different"), "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls)
}

func TestCachedClient_ErrorsNotCached(t *testing.T) {
	stub := &stubClient{err: assert.AnError}
	c := NewCachedClient(stub, 4)
	_, err := c.Embed(context.Background(), []byte("x"), "")
	assert.ErrorIs(t, err, assert.AnError)

	stub.err = nil
	stub.vec = []float32{3}
	vec, err := c.Embed(context.Background(), []byte("x"), "")
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, vec)
	assert.Equal(t, 2, stub.calls)
}

func TestImageKey(t *testing.T) {
	assert.Equal(t, ImageKey([]byte("a")), ImageKey([]byte("a")))
	assert.NotEqual(t, ImageKey([]byte("a")), ImageKey([]byte("b")))
	assert.Len(t, ImageKey(nil), 64)
}
