package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bryanwahyu/geoanalysis/internal/domain/analyses"
)

// AnalysisRepository keeps analyses in process memory. Readers always get
// copies, so they never observe a half-applied update.
type AnalysisRepository struct {
	mu    sync.RWMutex
	items map[analyses.ID]*analyses.Analysis
	seq   map[analyses.ID]int
}

func NewAnalysisRepository() *AnalysisRepository {
	return &AnalysisRepository{
		items: map[analyses.ID]*analyses.Analysis{},
		seq:   map[analyses.ID]int{},
	}
}

func (r *AnalysisRepository) Save(_ context.Context, a *analyses.Analysis) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: analysis id is required", analyses.ErrStorage)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[a.ID]; ok {
		return fmt.Errorf("%w: analysis %s already exists", analyses.ErrStorage, a.ID)
	}
	r.seq[a.ID] = len(r.seq)
	r.items[a.ID] = a.Clone()
	return nil
}

func (r *AnalysisRepository) Update(_ context.Context, a *analyses.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[a.ID]
	if !ok {
		return fmt.Errorf("%w: %s", analyses.ErrAnalysisNotFound, a.ID)
	}
	next := a.Clone()
	next.TaskID = cur.TaskID
	r.items[a.ID] = next
	return nil
}

func (r *AnalysisRepository) AttachTask(_ context.Context, id analyses.ID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", analyses.ErrAnalysisNotFound, id)
	}
	cur.TaskID = taskID
	return nil
}

func (r *AnalysisRepository) Get(_ context.Context, id analyses.ID) (*analyses.Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", analyses.ErrAnalysisNotFound, id)
	}
	return a.Clone(), nil
}

func (r *AnalysisRepository) GetByTask(_ context.Context, taskID string) (*analyses.Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.items {
		if a.TaskID != "" && a.TaskID == taskID {
			return a.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: task %s", analyses.ErrAnalysisNotFound, taskID)
}

func (r *AnalysisRepository) ListByOwner(_ context.Context, owner string, limit int) ([]*analyses.Analysis, error) {
	out := r.newestFirst(func(a *analyses.Analysis) bool { return a.OwnerID == owner })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *AnalysisRepository) ListByDataset(_ context.Context, datasetID string) ([]*analyses.Analysis, error) {
	return r.newestFirst(func(a *analyses.Analysis) bool { return a.DatasetID == datasetID }), nil
}

func (r *AnalysisRepository) newestFirst(keep func(*analyses.Analysis) bool) []*analyses.Analysis {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*analyses.Analysis
	for _, a := range r.items {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return r.seq[out[i].ID] > r.seq[out[j].ID]
	})
	return out
}

// ErrorLog keeps failure entries in process memory.
type ErrorLog struct {
	mu      sync.RWMutex
	entries []*analyses.ErrorEntry
}

func NewErrorLog() *ErrorLog { return &ErrorLog{} }

func (l *ErrorLog) Save(_ context.Context, e *analyses.ErrorEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := *e
	c.ID = int64(len(l.entries) + 1)
	e.ID = c.ID
	l.entries = append(l.entries, &c)
	return nil
}

func (l *ErrorLog) ListByAnalysis(_ context.Context, id analyses.ID, limit int) ([]*analyses.ErrorEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	limit = min(limit, 100)
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*analyses.ErrorEntry
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if l.entries[i].AnalysisID == id {
			c := *l.entries[i]
			out = append(out, &c)
		}
	}
	return out, nil
}
