package datasets

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bryanwahyu/geoanalysis/internal/domain/operations"
	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
	"github.com/bryanwahyu/geoanalysis/internal/infra/db/memory"
)

type tickClock struct{ now time.Time }

func (c *tickClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newService() *Service {
	return &Service{
		Datasets: memory.NewDatasetRepository(),
		Layers:   memory.NewLayerRepository(),
		Features: memory.NewFeatureRepository(),
		Clock:    &tickClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)},
		Log:      zap.NewNop(),
	}
}

func collection(geoms ...orb.Geometry) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, g := range geoms {
		f := geojson.NewFeature(g)
		f.ID = i + 1
		f.Properties["n"] = i
		fc.Append(f)
	}
	return fc
}

func TestCreateStoresOneVectorLayer(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	d, err := svc.Create(ctx, CreateCommand{
		Name:     "halte",
		OwnerID:  "u1",
		Features: collection(orb.Point{106.82, -6.17}, orb.Point{106.83, -6.18}),
	})
	require.NoError(t, err)
	assert.Equal(t, "geojson", d.Format)

	layers, err := svc.LayerData(ctx, d.ID, spatial.FeatureQuery{})
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, spatial.LayerVector, layers[0].Type)
	assert.Equal(t, spatial.KindPoint, layers[0].GeometryKind)
	require.Len(t, layers[0].Data.Features, 2)
	assert.Equal(t, "1", layers[0].Data.Features[0].Properties["source_id"])
	assert.NotEqual(t, "1", layers[0].Data.Features[0].ID)
}

func TestCreateAllowsEmptyCollection(t *testing.T) {
	svc := newService()
	d, err := svc.Create(context.Background(), CreateCommand{Name: "kosong"})
	require.NoError(t, err)

	layers, err := svc.LayerData(context.Background(), d.ID, spatial.FeatureQuery{})
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Empty(t, layers[0].Data.Features)
	assert.Equal(t, spatial.KindMixed, layers[0].GeometryKind)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	missing := geojson.NewFeatureCollection()
	missing.Append(&geojson.Feature{Type: "Feature", Properties: geojson.Properties{}})

	cases := map[string]CreateCommand{
		"no name":      {Features: collection(orb.Point{0, 0})},
		"out of range": {Name: "x", Features: collection(orb.Point{0, 0}, orb.Point{181, 0})},
		"nan":          {Name: "x", Features: collection(orb.LineString{{0, 0}, {1, math.NaN()}})},
		"no geometry":  {Name: "x", Features: missing},
	}
	for name, cmd := range cases {
		t.Run(name, func(t *testing.T) {
			svc := newService()
			_, err := svc.Create(context.Background(), cmd)
			require.ErrorIs(t, err, operations.ErrInvalidParameter)

			list, err := svc.ListForUser(context.Background(), "", 0)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestLayersBBoxAndLimit(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	d, err := svc.Create(ctx, CreateCommand{
		Name: "titik",
		Features: collection(
			orb.Point{106.5, -6.5},
			orb.Point{106.6, -6.4},
			orb.Point{110.0, -7.5},
		),
	})
	require.NoError(t, err)

	bb := orb.Bound{Min: orb.Point{106, -7}, Max: orb.Point{107, -6}}
	layers, err := svc.LayerData(ctx, d.ID, spatial.FeatureQuery{BBox: &bb})
	require.NoError(t, err)
	assert.Len(t, layers[0].Data.Features, 2)

	layers, err = svc.LayerData(ctx, d.ID, spatial.FeatureQuery{BBox: &bb, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, layers[0].Data.Features, 1)

	flipped := orb.Bound{Min: orb.Point{107, -6}, Max: orb.Point{106, -7}}
	_, err = svc.LayerData(ctx, d.ID, spatial.FeatureQuery{BBox: &flipped})
	assert.ErrorIs(t, err, operations.ErrInvalidParameter)

	_, err = svc.LayerData(ctx, "nope", spatial.FeatureQuery{})
	assert.ErrorIs(t, err, spatial.ErrDatasetNotFound)
}

func TestListForUserNewestFirst(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		_, err := svc.Create(ctx, CreateCommand{Name: name, OwnerID: "u1"})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, CreateCommand{Name: "other", OwnerID: "u2"})
	require.NoError(t, err)

	list, err := svc.ListForUser(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].Name)
	assert.Equal(t, "b", list[1].Name)
}

func TestDeleteRemovesLayersAndFeatures(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	keep, err := svc.Create(ctx, CreateCommand{Name: "tetap", OwnerID: "u1", Features: collection(orb.Point{106.8, -6.2})})
	require.NoError(t, err)
	d, err := svc.Create(ctx, CreateCommand{Name: "hapus", OwnerID: "u1", Features: collection(orb.Point{106.8, -6.2}, orb.Point{106.9, -6.3})})
	require.NoError(t, err)
	layers, err := svc.Layers.ListByDataset(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	layerID := layers[0].ID

	require.NoError(t, svc.Delete(ctx, d.ID, "u1"))

	_, err = svc.Get(ctx, d.ID)
	assert.ErrorIs(t, err, spatial.ErrDatasetNotFound)
	_, err = svc.Layers.Get(ctx, layerID)
	assert.ErrorIs(t, err, spatial.ErrLayerNotFound)
	fs, err := svc.Features.ListByLayer(ctx, layerID, spatial.FeatureQuery{})
	require.NoError(t, err)
	assert.Empty(t, fs)

	left, err := svc.LayerData(ctx, keep.ID, spatial.FeatureQuery{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Len(t, left[0].Data.Features, 1)

	err = svc.Delete(ctx, d.ID, "u1")
	assert.ErrorIs(t, err, spatial.ErrDatasetNotFound)
}

func TestDeleteByOtherUserIsNotFound(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	d, err := svc.Create(ctx, CreateCommand{Name: "milik u1", OwnerID: "u1"})
	require.NoError(t, err)

	err = svc.Delete(ctx, d.ID, "u2")
	require.ErrorIs(t, err, spatial.ErrDatasetNotFound)
	_, err = svc.Get(ctx, d.ID)
	require.NoError(t, err)
}

func TestUpdateLayerStyleAndVisibility(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	d, err := svc.Create(ctx, CreateCommand{Name: "jalan", OwnerID: "u1", Features: collection(orb.LineString{{106.8, -6.2}, {106.9, -6.2}})})
	require.NoError(t, err)
	layers, err := svc.Layers.ListByDataset(ctx, d.ID)
	require.NoError(t, err)
	before := layers[0]

	hidden := false
	l, err := svc.UpdateLayer(ctx, before.ID, LayerUpdate{Visible: &hidden})
	require.NoError(t, err)
	assert.False(t, l.Visible)
	assert.Equal(t, before.Style, l.Style)

	style := spatial.Style{Type: spatial.StyleSimple, Default: &spatial.StyleValue{Color: "#ff8800", Opacity: 0.4, Weight: 3}}
	_, err = svc.UpdateLayer(ctx, before.ID, LayerUpdate{Style: &style})
	require.NoError(t, err)

	stored, err := svc.Layers.Get(ctx, before.ID)
	require.NoError(t, err)
	assert.False(t, stored.Visible)
	assert.Equal(t, style, stored.Style)
	assert.True(t, stored.UpdatedAt.After(before.UpdatedAt))
	assert.Equal(t, before.Name, stored.Name)
	assert.Equal(t, before.DatasetID, stored.DatasetID)
	assert.Equal(t, before.CreatedAt, stored.CreatedAt)
}

func TestUpdateLayerRejectsInvalid(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	d, err := svc.Create(ctx, CreateCommand{Name: "x", OwnerID: "u1"})
	require.NoError(t, err)
	layers, err := svc.Layers.ListByDataset(ctx, d.ID)
	require.NoError(t, err)
	id := layers[0].ID

	cases := []struct {
		name string
		upd  LayerUpdate
	}{
		{"empty", LayerUpdate{}},
		{"unknown type", LayerUpdate{Style: &spatial.Style{Type: "gradient"}}},
		{"opacity", LayerUpdate{Style: &spatial.Style{Type: spatial.StyleSimple, Default: &spatial.StyleValue{Opacity: 1.5}}}},
		{"negative weight", LayerUpdate{Style: &spatial.Style{
			Type:   spatial.StyleCategorical,
			Values: map[string]spatial.StyleValue{"a": {Weight: -1}},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.UpdateLayer(ctx, id, tc.upd)
			assert.ErrorIs(t, err, operations.ErrInvalidParameter)
		})
	}

	visible := true
	_, err = svc.UpdateLayer(ctx, "missing", LayerUpdate{Visible: &visible})
	assert.ErrorIs(t, err, spatial.ErrLayerNotFound)
}

func TestListLayersOfUser(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	for _, name := range []string{"a", "b"} {
		_, err := svc.Create(ctx, CreateCommand{Name: name, OwnerID: "u1", Features: collection(orb.Point{106.8, -6.2})})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, CreateCommand{Name: "lain", OwnerID: "u2"})
	require.NoError(t, err)

	layers, err := svc.ListLayers(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Equal(t, "b", layers[0].Name)
	assert.Equal(t, "a", layers[1].Name)

	none, err := svc.ListLayers(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
