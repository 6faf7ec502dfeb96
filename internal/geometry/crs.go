package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// CRS is an EPSG code.
type CRS int

const (
	WGS84       CRS = 4326
	WebMercator CRS = 3857
)

var (
	ErrUnsupportedCRS   = errors.New("unsupported crs")
	ErrInvalidTolerance = errors.New("invalid simplify tolerance")
)

func (c CRS) String() string { return fmt.Sprintf("EPSG:%d", int(c)) }

// UTMZone returns the zone and hemisphere for EPSG:326zz / EPSG:327zz codes.
func (c CRS) UTMZone() (zone int, south bool, ok bool) {
	switch {
	case c > 32600 && c <= 32660:
		return int(c) - 32600, false, true
	case c > 32700 && c <= 32760:
		return int(c) - 32700, true, true
	}
	return 0, false, false
}

// UTMZoneFor → zone UTM dari longitude, di-clamp ke [1, 60].
func UTMZoneFor(lon float64) int {
	zone := int(math.Floor((lon+180)/6)) + 1
	if zone < 1 {
		return 1
	}
	if zone > 60 {
		return 60
	}
	return zone
}

// UTMEPSGFor returns 32600+zone north of the equator, 32700+zone south of it.
func UTMEPSGFor(lat float64, zone int) int {
	if lat >= 0 {
		return 32600 + zone
	}
	return 32700 + zone
}

// UTMFor picks the UTM CRS around the centroid of g.
func UTMFor(g orb.Geometry) CRS {
	c := Centroid(g)
	return CRS(UTMEPSGFor(c[1], UTMZoneFor(c[0])))
}

// Projector builds a point-wise transform between two CRSs. Pairs that do
// not include WGS84 are routed through it.
func Projector(from, to CRS) (orb.Projection, error) {
	toGeo, err := inverse(from)
	if err != nil {
		return nil, err
	}
	fromGeo, err := forward(to)
	if err != nil {
		return nil, err
	}
	switch {
	case from == to:
		return func(p orb.Point) orb.Point { return p }, nil
	case from == WGS84:
		return fromGeo, nil
	case to == WGS84:
		return toGeo, nil
	}
	return func(p orb.Point) orb.Point { return fromGeo(toGeo(p)) }, nil
}

// Reproject transforms every vertex of g. Vertex order and count are kept
// and g itself is not modified.
func Reproject(g orb.Geometry, from, to CRS) (orb.Geometry, error) {
	if g == nil {
		return nil, nil
	}
	proj, err := Projector(from, to)
	if err != nil {
		return nil, err
	}
	return project.Geometry(orb.Clone(g), proj), nil
}

// ReprojectPoint is Reproject for a single coordinate.
func ReprojectPoint(p orb.Point, from, to CRS) (orb.Point, error) {
	proj, err := Projector(from, to)
	if err != nil {
		return orb.Point{}, err
	}
	return proj(p), nil
}

func forward(c CRS) (orb.Projection, error) {
	if c == WGS84 {
		return func(p orb.Point) orb.Point { return p }, nil
	}
	if c == WebMercator {
		return project.WGS84.ToMercator, nil
	}
	if zone, south, ok := c.UTMZone(); ok {
		return toUTM(zone, south), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCRS, c)
}

func inverse(c CRS) (orb.Projection, error) {
	if c == WGS84 {
		return func(p orb.Point) orb.Point { return p }, nil
	}
	if c == WebMercator {
		return project.Mercator.ToWGS84, nil
	}
	if zone, south, ok := c.UTMZone(); ok {
		return fromUTM(zone, south), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCRS, c)
}
