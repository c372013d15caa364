package vector

import (
	"fmt"
	"sort"

	"github.com/hyperjump/lookalike/internal/models"
)

// Rank scores every item by raw dot product against query and returns the top k,
// highest score first. Equal scores keep their input order.
//
// Scores are not normalized; normalize vectors at ingestion to get cosine similarity.
//
// Any item whose vector length differs from the query fails the whole call with
// apperr.ErrDimensionMismatch. This is an exact scan with no index.
func Rank(query []float32, items []*models.StoredItem, k int) ([]*models.RankedResult, error) {
	if k <= 0 || len(items) == 0 {
		return []*models.RankedResult{}, nil
	}
	type scored struct {
		item  *models.StoredItem
		score float64
	}
	scores := make([]scored, len(items))
	for i, item := range items {
		if item == nil {
			return nil, fmt.Errorf("rank: nil item at position %d", i)
		}
		dot, err := DotProduct(query, item.Vector)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", item.ID, err)
		}
		scores[i] = scored{item: item, score: dot}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if k > len(scores) {
		k = len(scores)
	}
	result := make([]*models.RankedResult, k)
	for i := 0; i < k; i++ {
		result[i] = &models.RankedResult{
			ID:         scores[i].item.ID,
			DisplayURL: scores[i].item.DisplayURL,
			Score:      scores[i].score,
		}
	}
	return result, nil
}
