package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/simplify"
	"github.com/peterstace/simplefeatures/geom"
)

// polygon yang invalid setelah simplify dicoba ulang dengan tolerance/2
const simplifyRetries = 4

// Simplify reduces vertices with Douglas-Peucker while keeping polygons
// valid. Tolerance is in the geometry's own units. A ring is never
// collapsed below 4 points. A polygon whose simplified rings cross or
// escape each other is retried at half the tolerance, and keeps its
// original vertices when no retry yields a valid polygon.
func Simplify(g orb.Geometry, tolerance float64) (orb.Geometry, error) {
	if tolerance < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTolerance, tolerance)
	}
	if g == nil {
		return nil, nil
	}
	if tolerance == 0 {
		return orb.Clone(g), nil
	}
	return simplifyGeometry(g, tolerance), nil
}

func simplifyGeometry(g orb.Geometry, tolerance float64) orb.Geometry {
	s := simplify.DouglasPeucker(tolerance)
	switch v := g.(type) {
	case orb.Point, orb.MultiPoint, orb.Bound:
		return orb.Clone(v)
	case orb.LineString:
		return s.Simplify(orb.Clone(v))
	case orb.MultiLineString:
		return s.Simplify(orb.Clone(v))
	case orb.Ring:
		return simplifyRing(v, s)
	case orb.Polygon:
		return simplifyPolygon(v, tolerance)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, 0, len(v))
		for _, p := range v {
			out = append(out, simplifyPolygon(p, tolerance))
		}
		return out
	case orb.Collection:
		out := make(orb.Collection, 0, len(v))
		for _, c := range v {
			out = append(out, simplifyGeometry(c, tolerance))
		}
		return out
	}
	return orb.Clone(g)
}

func simplifyPolygon(p orb.Polygon, tolerance float64) orb.Polygon {
	t := tolerance
	for i := 0; i < simplifyRetries; i++ {
		s := simplify.DouglasPeucker(t)
		out := make(orb.Polygon, 0, len(p))
		for _, r := range p {
			out = append(out, simplifyRing(r, s))
		}
		if validPolygon(out) {
			return out
		}
		t /= 2
	}
	return orb.Clone(p).(orb.Polygon)
}

func simplifyRing(r orb.Ring, s simplifier) orb.Ring {
	orig := orb.Clone(r).(orb.Ring)
	res, ok := s.Simplify(orb.Clone(r)).(orb.Ring)
	if !ok || len(res) < 4 {
		return orig
	}
	return res
}

// validPolygon runs the simplefeatures constructor checks: closed rings,
// no self intersection, holes inside the shell and rings touching at
// most at single points.
func validPolygon(p orb.Polygon) bool {
	b, err := wkb.Marshal(p)
	if err != nil {
		return false
	}
	_, err = geom.UnmarshalWKB(b)
	return err == nil
}

type simplifier interface {
	Simplify(g orb.Geometry) orb.Geometry
}
