package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// EarthRadiusKm dipakai untuk haversine
const EarthRadiusKm = 6371.0

type AreaUnit string

const (
	SquareMeters     AreaUnit = "m2"
	SquareKilometers AreaUnit = "km2"
)

type LengthUnit string

const (
	Meters     LengthUnit = "m"
	Kilometers LengthUnit = "km"
)

// Centroid returns the planar centroid of g in its own coordinates.
// Polygonal input uses the area-weighted centroid, lines the length-weighted one.
func Centroid(g orb.Geometry) orb.Point {
	if g == nil {
		return orb.Point{}
	}
	if p, ok := g.(orb.Point); ok {
		return p
	}
	c, _ := planar.CentroidArea(g)
	return c
}

// Area of a polygonal geometry given in WGS84. Any other kind yields 0.
func Area(g orb.Geometry, unit AreaUnit) float64 {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return 0
	}

	projected, err := Reproject(g, WGS84, UTMFor(g))
	if err != nil {
		return 0
	}
	a := math.Abs(planar.Area(projected))
	if unit == SquareKilometers {
		return a / 1_000_000
	}
	return a
}

// Length of a line geometry given in WGS84. Any other kind yields 0.
func Length(g orb.Geometry, unit LengthUnit) float64 {
	switch g.(type) {
	case orb.LineString, orb.MultiLineString:
	default:
		return 0
	}

	projected, err := Reproject(g, WGS84, UTMFor(g))
	if err != nil {
		return 0
	}
	l := planar.Length(projected)
	if unit == Kilometers {
		return l / 1000
	}
	return l
}

// HaversineDistance great-circle distance antara dua titik lon/lat.
func HaversineDistance(lon1, lat1, lon2, lat2 float64, unit LengthUnit) float64 {
	if lon1 == lon2 && lat1 == lat2 {
		return 0
	}
	dLat := (lat2 - lat1) * deg2rad
	dLon := (lon2 - lon1) * deg2rad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*deg2rad)*math.Cos(lat2*deg2rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	d := 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))

	if unit == Meters {
		return d * 1000
	}
	return d
}

// ValidCoordinate reports whether lon/lat fall inside geographic bounds.
func ValidCoordinate(lon, lat float64) bool {
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

// ValidBound: kedua sudut valid dan min < max di kedua sumbu.
func ValidBound(b orb.Bound) bool {
	if !ValidCoordinate(b.Min[0], b.Min[1]) || !ValidCoordinate(b.Max[0], b.Max[1]) {
		return false
	}
	return b.Min[0] < b.Max[0] && b.Min[1] < b.Max[1]
}

// ValidGeometry reports whether every vertex of g is a valid coordinate.
// A nil geometry is not valid.
func ValidGeometry(g orb.Geometry) bool {
	switch v := g.(type) {
	case orb.Point:
		return ValidCoordinate(v[0], v[1])
	case orb.MultiPoint:
		return validPoints(v)
	case orb.LineString:
		return validPoints(v)
	case orb.Ring:
		return validPoints(v)
	case orb.MultiLineString:
		for _, ls := range v {
			if !validPoints(ls) {
				return false
			}
		}
		return true
	case orb.Polygon:
		for _, r := range v {
			if !validPoints(r) {
				return false
			}
		}
		return true
	case orb.MultiPolygon:
		for _, p := range v {
			if !ValidGeometry(p) {
				return false
			}
		}
		return true
	case orb.Collection:
		for _, c := range v {
			if !ValidGeometry(c) {
				return false
			}
		}
		return true
	case orb.Bound:
		return ValidCoordinate(v.Min[0], v.Min[1]) && ValidCoordinate(v.Max[0], v.Max[1])
	}
	return false
}

func validPoints(ps []orb.Point) bool {
	for _, p := range ps {
		if !ValidCoordinate(p[0], p[1]) {
			return false
		}
	}
	return true
}
