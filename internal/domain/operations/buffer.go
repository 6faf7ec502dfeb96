package operations

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/peterstace/simplefeatures/geom"

	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
	"github.com/bryanwahyu/geoanalysis/internal/geometry"
)

const (
	defaultBufferDistance = 100.0
	defaultBufferSegments = 16
	maxBufferSegments     = 256
)

type bufferParams struct {
	Distance float64
	Segments int
}

func parseBufferParams(p Parameters) (bufferParams, error) {
	distance, err := p.Float(defaultBufferDistance, "distance")
	if err != nil {
		return bufferParams{}, err
	}
	segments, err := p.Int(defaultBufferSegments, "segments")
	if err != nil {
		return bufferParams{}, err
	}
	if distance <= 0 {
		return bufferParams{}, fmt.Errorf("%w: distance must be > 0, got %v", ErrInvalidParameter, distance)
	}
	if segments < 1 || segments > maxBufferSegments {
		return bufferParams{}, fmt.Errorf("%w: segments must be in [1, %d], got %d", ErrInvalidParameter, maxBufferSegments, segments)
	}
	return bufferParams{Distance: distance, Segments: segments}, nil
}

// Buffer expands every geometry outward by distance meters. Each geometry
// is buffered in its own UTM zone and projected back to WGS84. Arcs use
// segments line segments per quarter circle.
func Buffer(in Input) (Output, error) {
	params, err := parseBufferParams(in.Params)
	if err != nil {
		return Output{}, err
	}

	stats := map[string]any{
		"distance":           params.Distance,
		"segments":           params.Segments,
		"features_processed": 0,
	}
	style := simpleStyle("#3388ff")
	name := fmt.Sprintf("Buffer %gm", params.Distance)
	if featureCount(in.Features) == 0 {
		return emptyOutput(name, spatial.LayerGeoJSON, stats, style), nil
	}

	out := geojson.NewFeatureCollection()
	for i, f := range in.Features.Features {
		if f.Geometry == nil {
			continue
		}
		buffered, err := bufferGeometry(f.Geometry, params)
		if err != nil {
			return Output{}, fmt.Errorf("%w: buffer feature %d: %v", ErrGeometryOperation, i, err)
		}
		if buffered == nil {
			continue
		}
		nf := geojson.NewFeature(buffered)
		nf.ID = f.ID
		nf.Properties = copyProperties(f.Properties, 1)
		nf.Properties["buffer_distance"] = params.Distance
		out.Append(nf)
	}

	stats["features_processed"] = len(out.Features)
	return Output{
		Features:     out,
		Statistics:   stats,
		Style:        style,
		LayerName:    name,
		LayerType:    spatial.LayerGeoJSON,
		GeometryKind: spatial.KindPolygon,
	}, nil
}

func bufferGeometry(g orb.Geometry, params bufferParams) (orb.Geometry, error) {
	crs := geometry.UTMFor(g)
	local, err := geometry.Reproject(g, geometry.WGS84, crs)
	if err != nil {
		return nil, err
	}

	b := buffer{radius: params.Distance, steps: 4 * params.Segments}
	parts, err := b.parts(local)
	if err != nil {
		return nil, err
	}
	merged, err := unionAll(parts)
	if err != nil {
		return nil, err
	}
	result, err := fromOverlay(merged)
	if err != nil || result == nil {
		return nil, err
	}
	return geometry.Reproject(result, crs, geometry.WGS84)
}

// buffer builds the pieces whose union is the buffered shape, in planar meters.
type buffer struct {
	radius float64
	steps  int
}

func (b buffer) parts(g orb.Geometry) ([]geom.Geometry, error) {
	switch v := g.(type) {
	case orb.Point:
		d, err := toOverlay(b.disc(v))
		if err != nil {
			return nil, err
		}
		return []geom.Geometry{d}, nil
	case orb.MultiPoint:
		var out []geom.Geometry
		for _, p := range v {
			ps, err := b.parts(p)
			if err != nil {
				return nil, err
			}
			out = append(out, ps...)
		}
		return out, nil
	case orb.LineString:
		return b.path(v)
	case orb.MultiLineString:
		var out []geom.Geometry
		for _, ls := range v {
			ps, err := b.path(ls)
			if err != nil {
				return nil, err
			}
			out = append(out, ps...)
		}
		return out, nil
	case orb.Ring:
		return b.parts(orb.Polygon{v})
	case orb.Polygon:
		body, err := toOverlay(v)
		if err != nil {
			return nil, err
		}
		out := []geom.Geometry{body}
		for _, r := range v {
			ps, err := b.path(orb.LineString(r))
			if err != nil {
				return nil, err
			}
			out = append(out, ps...)
		}
		return out, nil
	case orb.MultiPolygon:
		var out []geom.Geometry
		for _, p := range v {
			ps, err := b.parts(p)
			if err != nil {
				return nil, err
			}
			out = append(out, ps...)
		}
		return out, nil
	case orb.Collection:
		var out []geom.Geometry
		for _, c := range v {
			ps, err := b.parts(c)
			if err != nil {
				return nil, err
			}
			out = append(out, ps...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported geometry %s", g.GeoJSONType())
}

// path buffers a polyline as the union of one capsule per edge.
func (b buffer) path(ls orb.LineString) ([]geom.Geometry, error) {
	if len(ls) == 0 {
		return nil, nil
	}
	if len(ls) == 1 {
		return b.parts(ls[0])
	}
	out := make([]geom.Geometry, 0, len(ls)-1)
	for i := 1; i < len(ls); i++ {
		if ls[i-1].Equal(ls[i]) {
			continue
		}
		c, err := b.capsule(ls[i-1], ls[i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return b.parts(ls[0])
	}
	return out, nil
}

// capsule is the convex hull of the discs around both endpoints.
func (b buffer) capsule(p, q orb.Point) (geom.Geometry, error) {
	pts := make(orb.MultiPoint, 0, 2*b.steps)
	pts = append(pts, b.disc(p)[0][:b.steps]...)
	pts = append(pts, b.disc(q)[0][:b.steps]...)
	mp, err := toOverlay(pts)
	if err != nil {
		return geom.Geometry{}, err
	}
	return mp.ConvexHull(), nil
}

// disc vertices sit on a fixed angle grid, so discs around a shared vertex
// are identical and overlay inputs stay consistent.
func (b buffer) disc(c orb.Point) orb.Polygon {
	ring := make(orb.Ring, 0, b.steps+1)
	for j := 0; j < b.steps; j++ {
		theta := 2 * math.Pi * float64(j) / float64(b.steps)
		ring = append(ring, orb.Point{
			c[0] + b.radius*math.Cos(theta),
			c[1] + b.radius*math.Sin(theta),
		})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}
