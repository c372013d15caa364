package ingest

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/lookalike/internal/apperr"
)

func TestReadItems_Array(t *testing.T) {
	in := `[
		{"id": "a", "vector": [1, 0], "displayUrl": "https://img/a"},
		{"id": "b", "embedding": [0, 1], "imageUrl": "https://img/b"}
	]`
	items, err := ReadItems(strings.NewReader(in), 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, []float32{1, 0}, items[0].Vector)
	assert.Equal(t, "https://img/a", items[0].DisplayURL)
	assert.Equal(t, "b", items[1].ID)
	assert.Equal(t, []float32{0, 1}, items[1].Vector)
	assert.Equal(t, "https://img/b", items[1].DisplayURL)
	assert.False(t, items[0].CreatedAt.IsZero())
}

func TestReadItems_MongoExportLines(t *testing.T) {
	in := `{"_id":{"$oid":"65a1f0c2e4b0a1b2c3d4e5f6"},"embedding":[0.5,0.5],"imageUrl":"/img/ring.jpg"}
{"_id":"sku-2","embedding":[1,0],"imageUrl":"/img/chain.jpg"}

{"_id":17,"embedding":[0,1]}
`
	items, err := ReadItems(strings.NewReader(in), 0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "65a1f0c2e4b0a1b2c3d4e5f6", items[0].ID)
	assert.Equal(t, "sku-2", items[1].ID)
	assert.Equal(t, "17", items[2].ID)
}

func TestReadItems_GeneratesMissingIDs(t *testing.T) {
	items, err := ReadItems(strings.NewReader(`[{"vector":[1]},{"vector":[2]}]`), 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		_, err := uuid.Parse(item.ID)
		assert.NoError(t, err, "id %q should be a uuid", item.ID)
	}
	assert.NotEqual(t, items[0].ID, items[1].ID)
}

func TestReadItems_Empty(t *testing.T) {
	items, err := ReadItems(strings.NewReader("  \n"), 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestReadItems_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		dims int
		want error
	}{
		{"malformed json", `[{"id": "a", "vector": [1,`, 0, apperr.ErrInvalidItem},
		{"malformed line", "{\"id\":\"a\",\"vector\":[1]}\n{oops}\n", 0, apperr.ErrInvalidItem},
		{"empty vector", `[{"id": "a", "vector": []}]`, 0, apperr.ErrInvalidItem},
		{"wrong dimensions", `[{"id": "a", "vector": [1, 2, 3]}]`, 2, apperr.ErrDimensionMismatch},
		{"mixed lengths", `[{"id": "a", "vector": [1, 0]}, {"id": "b", "vector": [1, 0, 0]}]`, 0, apperr.ErrDimensionMismatch},
		{"duplicate id", `[{"id": "a", "vector": [1]}, {"id": "a", "vector": [2]}]`, 0, apperr.ErrInvalidItem},
		{"bad id type", `[{"id": true, "vector": [1]}]`, 0, apperr.ErrInvalidItem},
		{"overflow", `[{"id": "a", "vector": [1e300]}]`, 0, apperr.ErrInvalidItem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ReadItems(strings.NewReader(tt.in), tt.dims)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, items)
		})
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{``, ""},
		{`null`, ""},
		{`"abc"`, "abc"},
		{`42`, "42"},
		{`{"$oid": "65a1f0c2e4b0a1b2c3d4e5f6"}`, "65a1f0c2e4b0a1b2c3d4e5f6"},
	}
	for _, tt := range tests {
		got, err := parseID([]byte(tt.raw))
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}
	_, err := parseID([]byte(`{"name": "x"}`))
	assert.ErrorIs(t, err, apperr.ErrInvalidItem)
}
