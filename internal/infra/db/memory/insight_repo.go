package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/bryanwahyu/geoanalysis/internal/domain/insight"
)

// InsightRepository keeps insights in insertion order.
type InsightRepository struct {
	mu    sync.RWMutex
	items []insight.Insight
}

func NewInsightRepository() *InsightRepository { return &InsightRepository{} }

func (r *InsightRepository) Save(_ context.Context, in *insight.Insight) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, *in)
	return nil
}

func (r *InsightRepository) LatestByAnalysis(_ context.Context, analysisID string) (*insight.Insight, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].AnalysisID == analysisID {
			c := r.items[i]
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: analysis %s", insight.ErrInsightNotFound, analysisID)
}

func (r *InsightRepository) Paginate(_ context.Context, owner string, page, pageSize int) ([]*insight.Insight, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	skip := (page - 1) * pageSize

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*insight.Insight
	for i := len(r.items) - 1; i >= 0 && len(out) < pageSize; i-- {
		if r.items[i].OwnerID != owner {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		c := r.items[i]
		out = append(out, &c)
	}
	return out, nil
}
