package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"

	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
)

// DatasetRepository keeps datasets in process memory.
type DatasetRepository struct {
	mu    sync.RWMutex
	items map[string]*spatial.Dataset
	seq   map[string]int
}

func NewDatasetRepository() *DatasetRepository {
	return &DatasetRepository{items: map[string]*spatial.Dataset{}, seq: map[string]int{}}
}

func (r *DatasetRepository) Save(_ context.Context, d *spatial.Dataset) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("%w: dataset id is required", spatial.ErrStorage)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seq[d.ID]; !ok {
		r.seq[d.ID] = len(r.seq)
	}
	r.items[d.ID] = cloneDataset(d)
	return nil
}

func (r *DatasetRepository) Get(_ context.Context, id string) (*spatial.Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", spatial.ErrDatasetNotFound, id)
	}
	return cloneDataset(d), nil
}

func (r *DatasetRepository) ListByOwner(_ context.Context, owner string, limit int) ([]*spatial.Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*spatial.Dataset
	for _, d := range r.items {
		if d.OwnerID == owner {
			out = append(out, cloneDataset(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return r.seq[out[i].ID] > r.seq[out[j].ID]
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *DatasetRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return fmt.Errorf("%w: %s", spatial.ErrDatasetNotFound, id)
	}
	delete(r.items, id)
	delete(r.seq, id)
	return nil
}

func cloneDataset(d *spatial.Dataset) *spatial.Dataset {
	c := *d
	if d.Metadata != nil {
		c.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// LayerRepository keeps layers in process memory.
type LayerRepository struct {
	mu    sync.RWMutex
	items map[string]*spatial.Layer
	order []string
}

func NewLayerRepository() *LayerRepository {
	return &LayerRepository{items: map[string]*spatial.Layer{}}
}

func (r *LayerRepository) Save(_ context.Context, l *spatial.Layer) error {
	if l == nil || l.ID == "" {
		return fmt.Errorf("%w: layer id is required", spatial.ErrStorage)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[l.ID]; !ok {
		r.order = append(r.order, l.ID)
	}
	c := *l
	r.items[l.ID] = &c
	return nil
}

func (r *LayerRepository) Get(_ context.Context, id string) (*spatial.Layer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", spatial.ErrLayerNotFound, id)
	}
	c := *l
	return &c, nil
}

func (r *LayerRepository) ListByDataset(_ context.Context, datasetID string) ([]*spatial.Layer, error) {
	return r.filter(func(l *spatial.Layer) bool { return l.DatasetID == datasetID }), nil
}

func (r *LayerRepository) ListByAnalysis(_ context.Context, analysisID string) ([]*spatial.Layer, error) {
	return r.filter(func(l *spatial.Layer) bool { return l.AnalysisID == analysisID }), nil
}

func (r *LayerRepository) Update(_ context.Context, l *spatial.Layer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[l.ID]
	if !ok {
		return fmt.Errorf("%w: %s", spatial.ErrLayerNotFound, l.ID)
	}
	c := *cur
	c.Style = l.Style
	c.Visible = l.Visible
	c.UpdatedAt = l.UpdatedAt
	r.items[l.ID] = &c
	return nil
}

func (r *LayerRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return fmt.Errorf("%w: %s", spatial.ErrLayerNotFound, id)
	}
	delete(r.items, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// filter returns matches in insertion order.
func (r *LayerRepository) filter(keep func(*spatial.Layer) bool) []*spatial.Layer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*spatial.Layer
	for _, id := range r.order {
		if l := r.items[id]; keep(l) {
			c := *l
			out = append(out, &c)
		}
	}
	return out
}

// FeatureRepository keeps features per layer in process memory.
type FeatureRepository struct {
	mu      sync.RWMutex
	byLayer map[string][]*spatial.Feature
}

func NewFeatureRepository() *FeatureRepository {
	return &FeatureRepository{byLayer: map[string][]*spatial.Feature{}}
}

func (r *FeatureRepository) SaveBatch(_ context.Context, layerID string, features []*spatial.Feature) error {
	batch := make([]*spatial.Feature, 0, len(features))
	for _, f := range features {
		c := cloneFeature(f)
		c.LayerID = layerID
		batch = append(batch, c)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLayer[layerID] = append(r.byLayer[layerID], batch...)
	return nil
}

// ListByLayer filters by bounding box overlap of the stored geometry.
func (r *FeatureRepository) ListByLayer(_ context.Context, layerID string, q spatial.FeatureQuery) ([]*spatial.Feature, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*spatial.Feature
	for _, f := range r.byLayer[layerID] {
		if q.BBox != nil && (f.Geometry == nil || !q.BBox.Intersects(f.Geometry.Bound())) {
			continue
		}
		out = append(out, cloneFeature(f))
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (r *FeatureRepository) DeleteByLayer(_ context.Context, layerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byLayer, layerID)
	return nil
}

func cloneFeature(f *spatial.Feature) *spatial.Feature {
	c := *f
	if f.Geometry != nil {
		c.Geometry = orb.Clone(f.Geometry)
	}
	c.Properties = make(map[string]any, len(f.Properties))
	for k, v := range f.Properties {
		c.Properties[k] = v
	}
	return &c
}
