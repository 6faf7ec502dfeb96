package operations

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
	"github.com/bryanwahyu/geoanalysis/internal/geometry"
)

func collection(gs ...orb.Geometry) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, g := range gs {
		f := geojson.NewFeature(g)
		f.ID = i
		f.Properties["idx"] = i
		fc.Append(f)
	}
	return fc
}

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
}

// three tight groups of 15 points around Jakarta, Bandung and Surabaya
func groupedPoints() []orb.Geometry {
	centers := []orb.Point{{106.8456, -6.2088}, {107.6191, -6.9175}, {112.7521, -7.2575}}
	var out []orb.Geometry
	for _, c := range centers {
		for i := 0; i < 15; i++ {
			angle := float64(i) * 2 * math.Pi / 15
			out = append(out, orb.Point{c[0] + 0.002*math.Cos(angle), c[1] + 0.002*math.Sin(angle)})
		}
	}
	return out
}

func TestParseKindAndLookup(t *testing.T) {
	for _, k := range Kinds() {
		parsed, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, parsed)

		op, err := Lookup(k)
		require.NoError(t, err)
		assert.NotNil(t, op)
	}

	_, err := ParseKind("voronoi")
	assert.ErrorIs(t, err, ErrUnsupportedAnalysisType)
	_, err = Lookup(Kind("CLUSTERING"))
	assert.ErrorIs(t, err, ErrUnsupportedAnalysisType)
	assert.ErrorIs(t, Validate(Kind(""), nil), ErrUnsupportedAnalysisType)
}

func TestParameters(t *testing.T) {
	p := Parameters{
		"a": 3,
		"b": 2.5,
		"c": "7",
		"d": json.Number("12"),
		"e": "abc",
		"f": 1.5,
	}

	v, err := p.Float(0, "b")
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	n, err := p.Int(0, "missing", "c")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = p.Int(0, "d")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	n, err = p.Int(9, "nope")
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	_, err = p.Float(0, "e")
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = p.Int(0, "f")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	s, err := p.String("x", "a")
	require.NoError(t, err)
	assert.Equal(t, "3", s)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		kind   Kind
		params Parameters
		ok     bool
	}{
		{"buffer defaults", KindBuffer, nil, true},
		{"buffer negative distance", KindBuffer, Parameters{"distance": -5}, false},
		{"buffer zero segments", KindBuffer, Parameters{"segments": 0}, false},
		{"kmeans without k", KindClustering, Parameters{"algorithm": "kmeans"}, false},
		{"kmeans with k", KindClustering, Parameters{"n_clusters": 3}, true},
		{"kmeans alias", KindClustering, Parameters{"cluster_count": 2}, true},
		{"dbscan defaults", KindClustering, Parameters{"algorithm": "dbscan"}, true},
		{"dbscan bad eps", KindClustering, Parameters{"algorithm": "dbscan", "eps": 0}, false},
		{"unknown algorithm", KindClustering, Parameters{"algorithm": "hdbscan"}, false},
		{"intersection missing target", KindIntersection, Parameters{}, false},
		{"intersection alias", KindIntersection, Parameters{"target_dataset_id": "7"}, true},
		{"heatmap defaults", KindHeatmap, nil, true},
		{"heatmap bad gradient", KindHeatmap, Parameters{"gradient": "rainbow"}, false},
		{"heatmap zero radius", KindHeatmap, Parameters{"radius": 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.kind, tc.params)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidParameter)
			}
		})
	}
}

func TestClusterKMeans(t *testing.T) {
	out, err := Cluster(Input{
		Features: collection(groupedPoints()...),
		Params:   Parameters{"algorithm": "kmeans", "n_clusters": 3},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, out.Statistics["num_clusters"])
	perCluster := out.Statistics["features_per_cluster"].([]int)
	require.Len(t, perCluster, 3)
	sum := 0
	for _, c := range perCluster {
		sum += c
		assert.Equal(t, 15, c)
	}
	assert.Equal(t, 45, sum)
	assert.Len(t, out.Features.Features, 45)

	// members of the same group share a label
	for g := 0; g < 3; g++ {
		first := out.Features.Features[g*15].Properties["cluster"]
		for i := 1; i < 15; i++ {
			assert.Equal(t, first, out.Features.Features[g*15+i].Properties["cluster"])
		}
	}
	assert.Equal(t, spatial.StyleCategorical, out.Style.Type)
	assert.Equal(t, "cluster", out.Style.Property)
}

func TestClusterKMeansDeterministic(t *testing.T) {
	in := Input{Features: collection(groupedPoints()...), Params: Parameters{"n_clusters": 4, "seed": 7}}
	a, err := Cluster(in)
	require.NoError(t, err)
	b, err := Cluster(in)
	require.NoError(t, err)
	assert.Equal(t, a.Statistics, b.Statistics)
	assert.Equal(t, 4, a.Statistics["num_clusters"])
}

func TestClusterKMeansTooFewFeatures(t *testing.T) {
	_, err := Cluster(Input{
		Features: collection(orb.Point{1, 1}, orb.Point{2, 2}),
		Params:   Parameters{"n_clusters": 3},
	})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestClusterDBSCANNoise(t *testing.T) {
	gs := groupedPoints()[:15]
	gs = append(gs, orb.Point{110.0, -7.5}) // far away
	out, err := Cluster(Input{
		Features: collection(gs...),
		Params:   Parameters{"algorithm": "dbscan", "eps": 1000, "min_samples": 3},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Statistics["num_clusters"])
	assert.Equal(t, []int{15}, out.Statistics["features_per_cluster"])
	assert.Equal(t, 1, out.Statistics["noise_points"])
	assert.Equal(t, NoiseCluster, out.Features.Features[15].Properties["cluster"])
	assert.Contains(t, out.Style.Values, "-1")
}

func TestClusterPolygonsUseCentroids(t *testing.T) {
	out, err := Cluster(Input{
		Features: collection(square(106.80, -6.20, 0.001), square(106.801, -6.20, 0.001), square(110, -7, 0.001)),
		Params:   Parameters{"n_clusters": 2},
	})
	require.NoError(t, err)
	f := out.Features.Features
	assert.Equal(t, f[0].Properties["cluster"], f[1].Properties["cluster"])
	assert.NotEqual(t, f[0].Properties["cluster"], f[2].Properties["cluster"])
	assert.Equal(t, 2, f[2].Properties["idx"])
}

func TestBufferPointDisc(t *testing.T) {
	out, err := Buffer(Input{
		Features: collection(orb.Point{106.8456, -6.2088}),
		Params:   Parameters{"distance": 100, "segments": 4},
	})
	require.NoError(t, err)
	require.Len(t, out.Features.Features, 1)

	poly, ok := out.Features.Features[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	assert.Len(t, poly[0], 17)

	// regular 16-gon of radius 100 m
	want := 0.5 * 16 * 100 * 100 * math.Sin(2*math.Pi/16)
	assert.InDelta(t, want, geometry.Area(poly, geometry.SquareMeters), want*0.01)
	assert.Equal(t, 100.0, out.Features.Features[0].Properties["buffer_distance"])
}

func TestBufferPolygonsGrow(t *testing.T) {
	a := square(106.80, -6.20, 0.01)
	b := square(106.90, -6.25, 0.02)
	out, err := Buffer(Input{
		Features: collection(a, b),
		Params:   Parameters{"distance": 500, "segments": 16},
	})
	require.NoError(t, err)
	require.Len(t, out.Features.Features, 2)
	assert.Equal(t, 2, out.Statistics["features_processed"])

	for i, in := range []orb.Polygon{a, b} {
		g := out.Features.Features[i].Geometry
		assert.Equal(t, spatial.KindPolygon, spatial.KindOf(g))
		assert.Greater(t, geometry.Area(g, geometry.SquareMeters), geometry.Area(in, geometry.SquareMeters))
		assert.True(t, g.Bound().Contains(in.Bound().Min))
		assert.True(t, g.Bound().Contains(in.Bound().Max))
	}
}

func TestBufferLine(t *testing.T) {
	line := orb.LineString{{106.80, -6.20}, {106.81, -6.20}, {106.81, -6.21}}
	out, err := Buffer(Input{
		Features: collection(line),
		Params:   Parameters{"distance": 50},
	})
	require.NoError(t, err)
	require.Len(t, out.Features.Features, 1)

	l := geometry.Length(line, geometry.Meters)
	area := geometry.Area(out.Features.Features[0].Geometry, geometry.SquareMeters)
	want := 2*50*l + math.Pi*50*50
	assert.InDelta(t, want, area, want*0.03)
}

func TestBufferRejectsBadParams(t *testing.T) {
	_, err := Buffer(Input{Features: collection(orb.Point{1, 1}), Params: Parameters{"distance": -1}})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestEmptyInputs(t *testing.T) {
	empty := geojson.NewFeatureCollection()

	out, err := Buffer(Input{Features: empty})
	require.NoError(t, err)
	assert.Empty(t, out.Features.Features)
	assert.Equal(t, 0, out.Statistics["features_processed"])

	out, err = Cluster(Input{Features: empty, Params: Parameters{"n_clusters": 3}})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Statistics["num_clusters"])

	out, err = Heatmap(Input{Features: empty})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Statistics["points_processed"])

	out, err = Intersect(Input{Features: empty, Params: Parameters{"target_dataset": "2"}})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Statistics["intersections_found"])
}

func TestIntersect(t *testing.T) {
	src := geojson.NewFeatureCollection()
	s := geojson.NewFeature(square(0, 0, 2))
	s.Properties["name"] = "source"
	s.Properties["shared"] = "src"
	src.Append(s)
	far := geojson.NewFeature(square(10, 10, 1))
	far.Properties["name"] = "far"
	src.Append(far)

	tgt := geojson.NewFeatureCollection()
	tf := geojson.NewFeature(square(1, 1, 2))
	tf.Properties["zone"] = "b"
	tf.Properties["shared"] = "tgt"
	tgt.Append(tf)

	out, err := Intersect(Input{Features: src, Target: tgt, Params: Parameters{"target_dataset": "9"}})
	require.NoError(t, err)

	assert.Equal(t, 1, out.Statistics["intersections_found"])
	assert.Equal(t, 2, out.Statistics["features_processed"])
	assert.Equal(t, "9", out.Statistics["target_dataset_id"])

	f := out.Features.Features[0]
	assert.Equal(t, "src", f.Properties["shared"])
	assert.Equal(t, "b", f.Properties["zone"])
	assert.Equal(t, "source", f.Properties["name"])
	assert.InDelta(t, 1.0, planar.Area(f.Geometry), 1e-9)
}

func TestIntersectEmptyTarget(t *testing.T) {
	out, err := Intersect(Input{
		Features: collection(square(0, 0, 1)),
		Target:   geojson.NewFeatureCollection(),
		Params:   Parameters{"target_dataset": "empty"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Statistics["intersections_found"])
	assert.Equal(t, 1, out.Statistics["features_processed"])
}

func TestHeatmapSinglePoint(t *testing.T) {
	out, err := Heatmap(Input{
		Features: collection(orb.Point{106.8456, -6.2088}),
		Params:   Parameters{"radius": 100, "intensity": 2, "cell_size": 10},
	})
	require.NoError(t, err)

	cells := out.Statistics["cells"].(int)
	assert.Greater(t, cells, 0)
	assert.Len(t, out.Features.Features, cells)
	assert.Equal(t, 1, out.Statistics["points_processed"])

	// kernel integrates to ~1 over the plane
	mass := 0.0
	for _, f := range out.Features.Features {
		d := f.Properties["density"].(float64)
		w := f.Properties["weight"].(float64)
		assert.Greater(t, d, 0.0)
		assert.LessOrEqual(t, w, 1.0)
		mass += d / 2 * 10 * 10
	}
	assert.InDelta(t, 1.0, mass, 0.05)

	peak := 3 / (math.Pi * 100 * 100) * 2
	assert.InDelta(t, peak, out.Statistics["max_density"].(float64), peak*0.05)
	assert.Equal(t, spatial.StyleContinuous, out.Style.Type)
	assert.Equal(t, spatial.LayerHeatmap, out.LayerType)
}

func TestHeatmapUsesCentroids(t *testing.T) {
	out, err := Heatmap(Input{
		Features: collection(square(106.80, -6.20, 0.001), orb.LineString{{106.80, -6.20}, {106.801, -6.20}}),
		Params:   Parameters{"gradient": "viridis"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Statistics["points_processed"])
	assert.Equal(t, "viridis", out.Statistics["gradient"])
}

func TestDensityGridStaysUnderCellCap(t *testing.T) {
	small := newDensityGrid(orb.Bound{Max: orb.Point{100, 100}}, 25, 12.5)
	assert.Equal(t, 12.5, small.cell)
	assert.Equal(t, 12, small.nx)

	for w := 100.0; w <= 200_000; w *= 1.05 {
		for _, ratio := range []float64{1, 0.63, 0.1} {
			g := newDensityGrid(orb.Bound{Max: orb.Point{w, w * ratio}}, 25, 12.5)
			require.LessOrEqual(t, g.nx*g.ny, maxHeatCells, "bounds %.0fx%.0f", w, w*ratio)
			require.Len(t, g.values, g.nx*g.ny)
			// grid tetap menutupi seluruh bound + radius
			assert.GreaterOrEqual(t, float64(g.nx)*g.cell, w+50)
			assert.GreaterOrEqual(t, float64(g.ny)*g.cell, w*ratio+50)
		}
	}
}

func TestColorAt(t *testing.T) {
	assert.Equal(t, "#0000ff", colorAt("default", 0))
	assert.Equal(t, "#ff0000", colorAt("default", 1))
	assert.Equal(t, "#808080", mixHex("#000000", "#ffffff", 0.5))
}
