package search

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hyperjump/lookalike/internal/apperr"
	"github.com/hyperjump/lookalike/internal/config"
	"github.com/hyperjump/lookalike/internal/embedding"
	"github.com/hyperjump/lookalike/internal/metrics"
	"github.com/hyperjump/lookalike/internal/models"
	"github.com/hyperjump/lookalike/internal/storage"
)

type fixedClient struct {
	vec   []float32
	err   error
	calls int
}

func (c *fixedClient) Embed(ctx context.Context, image []byte, filename string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.vec, nil
}

func (c *fixedClient) Close() error { return nil }

// countingStore records reads and delegates to a MemoryStore.
type countingStore struct {
	*storage.MemoryStore
	fetches  int
	searches int
	fetchErr error
	// fetched, when set, replaces what FetchAll returns (rows written around the store's checks).
	fetched []*models.StoredItem
}

func (s *countingStore) FetchAll(ctx context.Context) ([]*models.StoredItem, error) {
	s.fetches++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if s.fetched != nil {
		return s.fetched, nil
	}
	return s.MemoryStore.FetchAll(ctx)
}

// pushDownStore also implements storage.Searcher.
type pushDownStore struct {
	*countingStore
}

func (s *pushDownStore) SearchSimilar(ctx context.Context, query []float32, k int) ([]*models.RankedResult, error) {
	s.searches++
	return []*models.RankedResult{{ID: "from-store", Score: 1}}, nil
}

func newStore(t *testing.T, items ...*models.StoredItem) *countingStore {
	t.Helper()
	mem := storage.NewMemoryStore(0)
	if err := mem.Upsert(context.Background(), items); err != nil {
		t.Fatal(err)
	}
	return &countingStore{MemoryStore: mem}
}

func searchConfig() *config.SearchConfig {
	return &config.SearchConfig{DefaultLimit: 5, MaxLimit: 100}
}

func TestEngine_Search(t *testing.T) {
	store := newStore(t,
		&models.StoredItem{ID: "a", Vector: []float32{1, 0}, DisplayURL: "u/a"},
		&models.StoredItem{ID: "b", Vector: []float32{0, 1}, DisplayURL: "u/b"},
		&models.StoredItem{ID: "c", Vector: []float32{0.7, 0.7}, DisplayURL: "u/c"},
	)
	client := &fixedClient{vec: []float32{1, 0}}
	engine := NewEngine(client, store, searchConfig(), nil)

	resp, err := engine.Search(context.Background(), &models.ImageQuery{Image: []byte("img"), Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	if resp.Results[0].ID != "a" || resp.Results[0].Score != 1.0 {
		t.Errorf("first = %+v, want a with 1.0", resp.Results[0])
	}
	if resp.Results[1].ID != "c" || resp.Results[1].DisplayURL != "u/c" {
		t.Errorf("second = %+v, want c", resp.Results[1])
	}
	if resp.Results[1].Score < 0.69 || resp.Results[1].Score > 0.71 {
		t.Errorf("c score = %v, want ~0.7", resp.Results[1].Score)
	}
}

func TestEngine_Search_DefaultLimit(t *testing.T) {
	var items []*models.StoredItem
	for _, id := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		items = append(items, &models.StoredItem{ID: id, Vector: []float32{1}})
	}
	engine := NewEngine(&fixedClient{vec: []float32{1}}, newStore(t, items...), searchConfig(), nil)
	resp, err := engine.Search(context.Background(), &models.ImageQuery{Image: []byte("img")})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 5 {
		t.Errorf("got %d results, want default 5", len(resp.Results))
	}
	for i, r := range resp.Results {
		if r.ID != items[i].ID {
			t.Errorf("tie order broken at %d: %s", i, r.ID)
		}
	}
}

func TestEngine_Search_NoInput(t *testing.T) {
	client := &fixedClient{vec: []float32{1}}
	store := newStore(t)
	engine := NewEngine(client, store, searchConfig(), nil)

	_, err := engine.Search(context.Background(), &models.ImageQuery{})
	if !errors.Is(err, apperr.ErrNoInputProvided) {
		t.Fatalf("err = %v, want no input", err)
	}
	if client.calls != 0 || store.fetches != 0 {
		t.Errorf("embed calls = %d, fetches = %d; want none", client.calls, store.fetches)
	}
}

func TestEngine_Search_UpstreamFailureSkipsStore(t *testing.T) {
	client := &fixedClient{err: apperr.ErrUpstreamUnavailable}
	store := newStore(t, &models.StoredItem{ID: "a", Vector: []float32{1}})
	m := metrics.New()
	engine := NewEngine(client, store, searchConfig(), nil, WithMetrics(m))

	resp, err := engine.Search(context.Background(), &models.ImageQuery{Image: []byte("img")})
	if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want upstream unavailable", err)
	}
	if resp != nil {
		t.Error("expected no response on failure")
	}
	if store.fetches != 0 {
		t.Errorf("store was queried %d times after embedding failure", store.fetches)
	}
	if got := testutil.ToFloat64(m.SearchRequests.WithLabelValues("upstream_unavailable")); got != 1 {
		t.Errorf("outcome counter = %v, want 1", got)
	}
}

func TestEngine_Search_UnclassifiedEmbedError(t *testing.T) {
	client := &fixedClient{err: errors.New("socket closed")}
	engine := NewEngine(client, newStore(t), searchConfig(), nil)
	_, err := engine.Search(context.Background(), &models.ImageQuery{Image: []byte("img")})
	if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Errorf("err = %v, want upstream unavailable", err)
	}
}

func TestEngine_Search_DimensionMismatch(t *testing.T) {
	store := newStore(t)
	store.fetched = []*models.StoredItem{
		{ID: "ok", Vector: []float32{1, 0}},
		{ID: "short", Vector: []float32{1}},
	}
	engine := NewEngine(&fixedClient{vec: []float32{1, 0}}, store, searchConfig(), nil)
	resp, err := engine.Search(context.Background(), &models.ImageQuery{Image: []byte("img")})
	if !errors.Is(err, apperr.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want dimension mismatch", err)
	}
	if resp != nil {
		t.Error("partial results returned")
	}
}

func TestEngine_Search_StoreFailure(t *testing.T) {
	store := newStore(t)
	store.fetchErr = errors.New("disk on fire")
	engine := NewEngine(&fixedClient{vec: []float32{1}}, store, searchConfig(), nil)
	_, err := engine.Search(context.Background(), &models.ImageQuery{Image: []byte("img")})
	if !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Errorf("err = %v, want store unavailable", err)
	}
}

func TestEngine_Search_NonPositiveLimit(t *testing.T) {
	store := newStore(t, &models.StoredItem{ID: "a", Vector: []float32{1}})
	engine := NewEngine(&fixedClient{vec: []float32{1}}, store, searchConfig(), nil)
	resp, err := engine.Search(context.Background(), &models.ImageQuery{Image: []byte("img"), Limit: -1})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("results = %v, want empty", resp.Results)
	}
}

func TestEngine_PushDown(t *testing.T) {
	store := &pushDownStore{countingStore: newStore(t, &models.StoredItem{ID: "a", Vector: []float32{1}})}

	scan := NewEngine(&fixedClient{vec: []float32{1}}, store, searchConfig(), nil)
	if scan.Strategy() != StrategyScan {
		t.Errorf("push-down disabled: strategy = %s", scan.Strategy())
	}
	if _, err := scan.Search(context.Background(), &models.ImageQuery{Image: []byte("x")}); err != nil {
		t.Fatal(err)
	}
	if store.fetches != 1 || store.searches != 0 {
		t.Errorf("scan: fetches=%d searches=%d", store.fetches, store.searches)
	}

	pushed := NewEngine(&fixedClient{vec: []float32{1}}, store, searchConfig(), nil, WithPushDown(true))
	resp, err := pushed.Search(context.Background(), &models.ImageQuery{Image: []byte("x")})
	if err != nil {
		t.Fatal(err)
	}
	if store.searches != 1 || resp.Results[0].ID != "from-store" {
		t.Errorf("push-down not used: searches=%d results=%+v", store.searches, resp.Results)
	}

	// A store without Searcher falls back to scanning.
	plain := NewEngine(&fixedClient{vec: []float32{1}}, newStore(t), searchConfig(), nil, WithPushDown(true))
	if plain.Strategy() != StrategyScan {
		t.Errorf("strategy = %s, want scan", plain.Strategy())
	}
}

func TestEngine_SearchVector(t *testing.T) {
	store := newStore(t,
		&models.StoredItem{ID: "a", Vector: []float32{1, 0}},
		&models.StoredItem{ID: "b", Vector: []float32{0, 1}},
	)
	client := &fixedClient{}
	engine := NewEngine(client, store, searchConfig(), nil)

	resp, err := engine.SearchVector(context.Background(), &models.VectorQuery{Vector: []float32{0, 2}, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "b" || resp.Results[0].Score != 2 {
		t.Errorf("results = %+v", resp.Results)
	}
	if client.calls != 0 {
		t.Error("vector search must not call the embedding client")
	}

	if _, err := engine.SearchVector(context.Background(), &models.VectorQuery{}); !errors.Is(err, apperr.ErrNoInputProvided) {
		t.Errorf("empty vector: %v", err)
	}
}

func TestEngine_WithMockClient(t *testing.T) {
	ctx := context.Background()
	client := embedding.NewMockClient(8)
	target, _ := client.Embed(ctx, []byte("ring-photo"), "")
	other, _ := client.Embed(ctx, []byte("necklace-photo"), "")

	store := newStore(t,
		&models.StoredItem{ID: "necklace", Vector: other},
		&models.StoredItem{ID: "ring", Vector: target},
	)
	engine := NewEngine(client, store, searchConfig(), nil)
	resp, err := engine.Search(ctx, &models.ImageQuery{Image: []byte("ring-photo"), Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Results[0].ID != "ring" {
		t.Errorf("top result = %s, want ring", resp.Results[0].ID)
	}
}

func TestEngine_Status(t *testing.T) {
	m := metrics.New()
	store := newStore(t, &models.StoredItem{ID: "a", Vector: []float32{1}})
	engine := NewEngine(&fixedClient{}, store, searchConfig(), nil, WithMetrics(m))
	st, err := engine.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Items != 1 || st.StoreType != storage.TypeMemory || st.PushDown {
		t.Errorf("status = %+v", st)
	}
	if got := testutil.ToFloat64(m.StoredItems); got != 1 {
		t.Errorf("stored items gauge = %v", got)
	}
}
