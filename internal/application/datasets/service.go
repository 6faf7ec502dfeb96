package datasets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/bryanwahyu/geoanalysis/internal/application"
	"github.com/bryanwahyu/geoanalysis/internal/domain/operations"
	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
	"github.com/bryanwahyu/geoanalysis/internal/geometry"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Service manages input datasets and their vector layers.
type Service struct {
	Datasets spatial.DatasetRepository
	Layers   spatial.LayerRepository
	Features spatial.FeatureRepository
	Clock    application.Clock
	Log      *zap.Logger
}

//
// ==== USE CASES ====
//

// CreateCommand untuk upload dataset baru (satu FeatureCollection = satu layer)
type CreateCommand struct {
	Name         string
	Description  string
	OwnerID      string
	SourceFormat string
	Metadata     map[string]any
	Features     *geojson.FeatureCollection
}

// Create stores a dataset with one vector layer holding the features.
// Nothing is stored when any geometry is missing or out of range.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*spatial.Dataset, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", operations.ErrInvalidParameter)
	}
	fc := cmd.Features
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	geoms := make([]orb.Geometry, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			return nil, fmt.Errorf("%w: feature %d has no geometry", operations.ErrInvalidParameter, i)
		}
		if !geometry.ValidGeometry(f.Geometry) {
			return nil, fmt.Errorf("%w: feature %d has coordinates outside lon/lat bounds", operations.ErrInvalidParameter, i)
		}
		geoms = append(geoms, f.Geometry)
	}
	format := cmd.SourceFormat
	if format == "" {
		format = "geojson"
	}

	now := s.Clock.Now().UTC()
	d := &spatial.Dataset{
		ID:          uuid.New().String(),
		Name:        name,
		Description: cmd.Description,
		Format:      format,
		Metadata:    cmd.Metadata,
		OwnerID:     cmd.OwnerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	layer := &spatial.Layer{
		ID:           uuid.New().String(),
		Name:         name,
		DatasetID:    d.ID,
		GeometryKind: spatial.KindOfAll(geoms),
		Type:         spatial.LayerVector,
		Style:        spatial.Style{Type: spatial.StyleSimple},
		Visible:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	features := spatial.FromFeatureCollection(layer.ID, fc)
	for _, f := range features {
		// id dari file upload tidak dijamin unik antar dataset
		if f.ID != "" {
			f.Properties["source_id"] = f.ID
		}
		f.ID = uuid.New().String()
		f.CreatedAt = now
	}

	if err := s.Datasets.Save(ctx, d); err != nil {
		return nil, err
	}
	if err := s.Layers.Save(ctx, layer); err != nil {
		return nil, err
	}
	if err := s.Features.SaveBatch(ctx, layer.ID, features); err != nil {
		return nil, err
	}

	s.log().Info("dataset created",
		zap.String("dataset_id", d.ID),
		zap.String("layer_id", layer.ID),
		zap.Int("features", len(features)))
	return d, nil
}

func (s *Service) Get(ctx context.Context, id string) (*spatial.Dataset, error) {
	return s.Datasets.Get(ctx, id)
}

// ListForUser returns the newest datasets of a user.
func (s *Service) ListForUser(ctx context.Context, owner string, limit int) ([]*spatial.Dataset, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.Datasets.ListByOwner(ctx, owner, min(limit, maxListLimit))
}

// LayerData returns the layers of a dataset with their features. A non-nil
// q.BBox must be a valid lon/lat bound.
func (s *Service) LayerData(ctx context.Context, datasetID string, q spatial.FeatureQuery) ([]spatial.LayerData, error) {
	if q.BBox != nil && !geometry.ValidBound(*q.BBox) {
		return nil, fmt.Errorf("%w: bbox %v", operations.ErrInvalidParameter, *q.BBox)
	}
	if q.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", operations.ErrInvalidParameter)
	}
	if _, err := s.Datasets.Get(ctx, datasetID); err != nil {
		return nil, err
	}
	layers, err := s.Layers.ListByDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	out := make([]spatial.LayerData, 0, len(layers))
	for _, l := range layers {
		fs, err := s.Features.ListByLayer(ctx, l.ID, q)
		if err != nil {
			return nil, err
		}
		out = append(out, spatial.NewLayerData(l, fs))
	}
	return out, nil
}

// Delete removes a dataset with its layers and their features. Only the
// owner may delete; for anyone else the dataset does not exist. Output
// layers of analyses that ran on the dataset are kept.
func (s *Service) Delete(ctx context.Context, id, owner string) error {
	d, err := s.Datasets.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.OwnerID != owner {
		return fmt.Errorf("%w: %s", spatial.ErrDatasetNotFound, id)
	}
	layers, err := s.Layers.ListByDataset(ctx, id)
	if err != nil {
		return err
	}
	// features dulu, supaya kalau gagal di tengah layer masih bisa dihapus ulang
	for _, l := range layers {
		if err := s.Features.DeleteByLayer(ctx, l.ID); err != nil {
			return err
		}
		if err := s.Layers.Delete(ctx, l.ID); err != nil && !errors.Is(err, spatial.ErrLayerNotFound) {
			return err
		}
	}
	if err := s.Datasets.Delete(ctx, id); err != nil {
		return err
	}
	s.log().Info("dataset deleted", zap.String("dataset_id", id), zap.Int("layers", len(layers)))
	return nil
}

// ListLayers returns the layer descriptors, without features, of the
// newest datasets of a user.
func (s *Service) ListLayers(ctx context.Context, owner string) ([]*spatial.Layer, error) {
	sets, err := s.Datasets.ListByOwner(ctx, owner, maxListLimit)
	if err != nil {
		return nil, err
	}
	out := []*spatial.Layer{}
	for _, d := range sets {
		layers, err := s.Layers.ListByDataset(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, layers...)
	}
	return out, nil
}

// LayerUpdate: nil field = tidak diubah
type LayerUpdate struct {
	Style   *spatial.Style
	Visible *bool
}

// UpdateLayer changes the style and/or visibility of a layer. Nothing else
// of a layer is ever modified.
func (s *Service) UpdateLayer(ctx context.Context, id string, upd LayerUpdate) (*spatial.Layer, error) {
	if upd.Style == nil && upd.Visible == nil {
		return nil, fmt.Errorf("%w: style or visible is required", operations.ErrInvalidParameter)
	}
	if upd.Style != nil {
		if err := validStyle(*upd.Style); err != nil {
			return nil, err
		}
	}
	l, err := s.Layers.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Style != nil {
		l.Style = *upd.Style
	}
	if upd.Visible != nil {
		l.Visible = *upd.Visible
	}
	l.UpdatedAt = s.Clock.Now().UTC()
	if err := s.Layers.Update(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func validStyle(st spatial.Style) error {
	switch st.Type {
	case spatial.StyleSimple, spatial.StyleCategorical, spatial.StyleContinuous:
	default:
		return fmt.Errorf("%w: unknown style type %q", operations.ErrInvalidParameter, st.Type)
	}
	check := func(v spatial.StyleValue) error {
		if v.Opacity < 0 || v.Opacity > 1 {
			return fmt.Errorf("%w: opacity must be in [0, 1], got %v", operations.ErrInvalidParameter, v.Opacity)
		}
		if v.Weight < 0 || v.Radius < 0 {
			return fmt.Errorf("%w: weight and radius must not be negative", operations.ErrInvalidParameter)
		}
		return nil
	}
	if st.Default != nil {
		if err := check(*st.Default); err != nil {
			return err
		}
	}
	for _, v := range st.Values {
		if err := check(v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
