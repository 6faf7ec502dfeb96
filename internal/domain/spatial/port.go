package spatial

import (
	"context"

	"github.com/paulmach/orb"
)

// DatasetRepository port (persistence dataset)
type DatasetRepository interface {
	Save(ctx context.Context, d *Dataset) error
	Get(ctx context.Context, id string) (*Dataset, error)
	ListByOwner(ctx context.Context, owner string, limit int) ([]*Dataset, error)
	// Delete removes only the dataset row; layers are deleted by the caller.
	Delete(ctx context.Context, id string) error
}

// LayerRepository port
type LayerRepository interface {
	Save(ctx context.Context, l *Layer) error
	Get(ctx context.Context, id string) (*Layer, error)
	ListByDataset(ctx context.Context, datasetID string) ([]*Layer, error)
	ListByAnalysis(ctx context.Context, analysisID string) ([]*Layer, error)
	// Update writes only Style, Visible and UpdatedAt.
	Update(ctx context.Context, l *Layer) error
	Delete(ctx context.Context, id string) error
}

// FeatureQuery filters ListByLayer. BBox keeps features whose geometry
// intersects it; Limit <= 0 means no limit.
type FeatureQuery struct {
	BBox  *orb.Bound
	Limit int
}

// FeatureRepository port
type FeatureRepository interface {
	SaveBatch(ctx context.Context, layerID string, features []*Feature) error
	ListByLayer(ctx context.Context, layerID string, q FeatureQuery) ([]*Feature, error)
	DeleteByLayer(ctx context.Context, layerID string) error
}
