package search

import (
	"github.com/hyperjump/lookalike/internal/config"
	"github.com/hyperjump/lookalike/internal/models"
)

// ProcessQuery validates the query and resolves its limit against cfg.
func ProcessQuery(query *models.ImageQuery, cfg *config.SearchConfig) (int, error) {
	if err := query.Validate(); err != nil {
		return 0, err
	}
	return models.ResolveLimit(query.Limit, cfg.DefaultLimit, cfg.MaxLimit), nil
}
