// Package search runs image similarity search: embed the query image, then rank
// stored items against it.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/lookalike/internal/apperr"
	"github.com/hyperjump/lookalike/internal/config"
	"github.com/hyperjump/lookalike/internal/embedding"
	"github.com/hyperjump/lookalike/internal/metrics"
	"github.com/hyperjump/lookalike/internal/models"
	"github.com/hyperjump/lookalike/internal/storage"
	"github.com/hyperjump/lookalike/internal/vector"
)

// Ranking strategies, also used as the metrics label.
const (
	StrategyScan     = "scan"
	StrategyPushDown = "push_down"
)

// Engine relays a query image to the embedding client and ranks the store against
// the returned vector.
type Engine struct {
	client   embedding.Client
	store    storage.Store
	config   *config.SearchConfig
	logger   *zap.Logger
	metrics  *metrics.Metrics
	pushDown bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records search and embedding metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPushDown lets stores that implement storage.Searcher score items themselves.
func WithPushDown(enabled bool) Option {
	return func(e *Engine) { e.pushDown = enabled }
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(client embedding.Client, store storage.Store, cfg *config.SearchConfig, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		client: client,
		store:  store,
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strategy reports how ranking is performed for the configured store.
func (e *Engine) Strategy() string {
	if e.pushDown {
		if _, ok := e.store.(storage.Searcher); ok {
			return StrategyPushDown
		}
	}
	return StrategyScan
}

// Search embeds the query image and returns the most similar stored items.
// An empty image fails with apperr.ErrNoInputProvided before the embedding
// service is contacted. Any failure returns no partial results.
func (e *Engine) Search(ctx context.Context, query *models.ImageQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	strategy := e.Strategy()

	resp, err := e.searchImage(ctx, query, strategy)
	e.metrics.ObserveSearch(apperr.Code(err), strategy, time.Since(startTime))
	if err != nil {
		e.logFailure("image search failed", err)
		return nil, err
	}
	resp.QueryTime = time.Since(startTime).Milliseconds()
	return resp, nil
}

func (e *Engine) searchImage(ctx context.Context, query *models.ImageQuery, strategy string) (*models.SearchResponse, error) {
	limit, err := ProcessQuery(query, e.config)
	if err != nil {
		return nil, err
	}

	embedStart := time.Now()
	queryVector, err := e.client.Embed(ctx, query.Image, query.Filename)
	e.metrics.ObserveEmbedding(time.Since(embedStart))
	if err != nil {
		if apperr.Code(err) == "internal" {
			err = fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
		}
		return nil, err
	}
	e.logger.Debug("query embedded",
		zap.Int("dimensions", len(queryVector)),
		zap.Duration("took", time.Since(embedStart)))

	return e.rank(ctx, queryVector, limit, strategy)
}

// SearchVector ranks the store against a vector the caller already holds.
func (e *Engine) SearchVector(ctx context.Context, query *models.VectorQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	strategy := e.Strategy()

	resp, err := e.searchVector(ctx, query, strategy)
	e.metrics.ObserveSearch(apperr.Code(err), strategy, time.Since(startTime))
	if err != nil {
		e.logFailure("vector search failed", err)
		return nil, err
	}
	resp.QueryTime = time.Since(startTime).Milliseconds()
	return resp, nil
}

func (e *Engine) searchVector(ctx context.Context, query *models.VectorQuery, strategy string) (*models.SearchResponse, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	for i, v := range query.Vector {
		if !vector.IsFinite(v) {
			return nil, fmt.Errorf("%w: non-finite value at index %d", apperr.ErrInvalidRequest, i)
		}
	}
	limit := models.ResolveLimit(query.Limit, e.config.DefaultLimit, e.config.MaxLimit)
	return e.rank(ctx, query.Vector, limit, strategy)
}

func (e *Engine) rank(ctx context.Context, queryVector []float32, limit int, strategy string) (*models.SearchResponse, error) {
	if limit <= 0 {
		return &models.SearchResponse{Results: []*models.RankedResult{}}, nil
	}

	var (
		results []*models.RankedResult
		err     error
	)
	if strategy == StrategyPushDown {
		results, err = e.store.(storage.Searcher).SearchSimilar(ctx, queryVector, limit)
	} else {
		var items []*models.StoredItem
		items, err = e.store.FetchAll(ctx)
		if err == nil {
			results, err = vector.Rank(queryVector, items, limit)
		}
	}
	if err != nil {
		if apperr.Code(err) == "internal" {
			err = fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
		}
		return nil, err
	}
	return &models.SearchResponse{Results: results}, nil
}

// Status reports the store's item count and the ranking strategy.
func (e *Engine) Status(ctx context.Context) (*models.StatusResponse, error) {
	count, err := e.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	e.metrics.SetStoredItems(count)
	return &models.StatusResponse{
		Items:     count,
		StoreType: e.store.Type(),
		PushDown:  e.Strategy() == StrategyPushDown,
	}, nil
}

// Store returns the underlying store.
func (e *Engine) Store() storage.Store {
	return e.store
}

func (e *Engine) logFailure(msg string, err error) {
	if apperr.IsClientError(err) {
		e.logger.Debug(msg, zap.String("code", apperr.Code(err)), zap.Error(err))
		return
	}
	e.logger.Error(msg, zap.String("code", apperr.Code(err)), zap.Error(err))
}
