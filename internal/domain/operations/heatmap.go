package operations

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
	"github.com/bryanwahyu/geoanalysis/internal/geometry"
)

const (
	defaultHeatRadius    = 25.0
	defaultHeatIntensity = 0.5
	defaultGradient      = "default"

	// grid dibatasi supaya output tidak meledak untuk radius kecil
	maxHeatCells = 250_000
)

type heatmapParams struct {
	Radius    float64
	Intensity float64
	Gradient  string
	CellSize  float64
}

// Gradients lists the accepted heatmap gradient names.
func Gradients() []string {
	names := make([]string, 0, len(gradients))
	for n := range gradients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func parseHeatmapParams(p Parameters) (heatmapParams, error) {
	var hp heatmapParams
	var err error
	if hp.Radius, err = p.Float(defaultHeatRadius, "radius"); err != nil {
		return hp, err
	}
	if hp.Radius <= 0 {
		return hp, fmt.Errorf("%w: radius must be > 0, got %v", ErrInvalidParameter, hp.Radius)
	}
	if hp.Intensity, err = p.Float(defaultHeatIntensity, "intensity"); err != nil {
		return hp, err
	}
	if hp.Intensity <= 0 {
		return hp, fmt.Errorf("%w: intensity must be > 0, got %v", ErrInvalidParameter, hp.Intensity)
	}
	g, err := p.String(defaultGradient, "gradient")
	if err != nil {
		return hp, err
	}
	hp.Gradient = strings.ToLower(g)
	if _, ok := gradients[hp.Gradient]; !ok {
		return hp, fmt.Errorf("%w: unknown gradient %q (want one of %s)", ErrInvalidParameter, g, strings.Join(Gradients(), ", "))
	}
	if hp.CellSize, err = p.Float(hp.Radius/2, "cell_size"); err != nil {
		return hp, err
	}
	if hp.CellSize <= 0 {
		return hp, fmt.Errorf("%w: cell_size must be > 0, got %v", ErrInvalidParameter, hp.CellSize)
	}
	return hp, nil
}

// Heatmap estimates a quartic kernel density surface over the point
// locations (centroids for other kinds) and emits one polygon per grid
// cell with a positive density. Distances are meters in the UTM zone of
// the collection.
func Heatmap(in Input) (Output, error) {
	params, err := parseHeatmapParams(in.Params)
	if err != nil {
		return Output{}, err
	}

	stats := map[string]any{
		"radius":           params.Radius,
		"intensity":        params.Intensity,
		"gradient":         params.Gradient,
		"cell_size":        params.CellSize,
		"points_processed": 0,
		"cells":            0,
		"max_density":      0.0,
	}
	name := "Heatmap"

	var pts []orb.Point
	if in.Features != nil {
		for _, f := range in.Features.Features {
			switch g := f.Geometry.(type) {
			case nil:
			case orb.Point:
				pts = append(pts, g)
			case orb.MultiPoint:
				pts = append(pts, g...)
			default:
				pts = append(pts, geometry.Centroid(g))
			}
		}
	}
	if len(pts) == 0 {
		return emptyOutput(name, spatial.LayerHeatmap, stats, heatmapStyle(params.Gradient, 0)), nil
	}

	crs := geometry.UTMFor(orb.MultiPoint(pts))
	toLocal, err := geometry.Projector(geometry.WGS84, crs)
	if err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrGeometryOperation, err)
	}
	toGeo, err := geometry.Projector(crs, geometry.WGS84)
	if err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrGeometryOperation, err)
	}

	local := make([]orb.Point, len(pts))
	for i, p := range pts {
		local[i] = toLocal(p)
	}

	grid := newDensityGrid(orb.MultiPoint(local).Bound(), params.Radius, params.CellSize)
	for _, p := range local {
		grid.add(p)
	}

	maxRaw := 0.0
	for _, v := range grid.values {
		maxRaw = math.Max(maxRaw, v)
	}

	out := geojson.NewFeatureCollection()
	for idx, v := range grid.values {
		if v <= 0 {
			continue
		}
		weight := v / maxRaw
		nf := geojson.NewFeature(grid.cellPolygon(idx, toGeo))
		nf.Properties["density"] = v * params.Intensity
		nf.Properties["weight"] = weight
		nf.Properties["color"] = colorAt(params.Gradient, weight)
		out.Append(nf)
	}

	maxDensity := maxRaw * params.Intensity
	stats["points_processed"] = len(pts)
	stats["cells"] = len(out.Features)
	stats["max_density"] = maxDensity
	stats["cell_size"] = grid.cell

	return Output{
		Features:     out,
		Statistics:   stats,
		Style:        heatmapStyle(params.Gradient, maxDensity),
		LayerName:    name,
		LayerType:    spatial.LayerHeatmap,
		GeometryKind: spatial.KindPolygon,
	}, nil
}

// densityGrid is a regular grid in planar meters; values are kept per cell
// center, row-major from origin.
type densityGrid struct {
	origin orb.Point
	cell   float64
	nx, ny int
	radius float64
	values []float64
}

func newDensityGrid(b orb.Bound, radius, cell float64) *densityGrid {
	minX, minY := b.Min[0]-radius, b.Min[1]-radius
	w := b.Max[0] - b.Min[0] + 2*radius
	h := b.Max[1] - b.Min[1] + 2*radius

	nx := int(math.Ceil(w / cell))
	ny := int(math.Ceil(h / cell))
	// ceil bisa bikin grid masih sedikit di atas batas, jadi ulang sampai muat
	for nx*ny > maxHeatCells {
		cell *= math.Max(math.Sqrt(float64(nx)*float64(ny)/maxHeatCells), 1.001)
		nx = int(math.Ceil(w / cell))
		ny = int(math.Ceil(h / cell))
	}
	nx, ny = max(nx, 1), max(ny, 1)

	return &densityGrid{
		origin: orb.Point{minX, minY},
		cell:   cell,
		nx:     nx,
		ny:     ny,
		radius: radius,
		values: make([]float64, nx*ny),
	}
}

// add accumulates the quartic kernel K(d) = 3/(πr²)·(1-d²/r²)² of p.
func (g *densityGrid) add(p orb.Point) {
	r2 := g.radius * g.radius
	norm := 3 / (math.Pi * r2)
	span := int(math.Ceil(g.radius/g.cell)) + 1

	ci := int((p[0] - g.origin[0]) / g.cell)
	cj := int((p[1] - g.origin[1]) / g.cell)
	for j := max(cj-span, 0); j <= min(cj+span, g.ny-1); j++ {
		for i := max(ci-span, 0); i <= min(ci+span, g.nx-1); i++ {
			cx := g.origin[0] + (float64(i)+0.5)*g.cell
			cy := g.origin[1] + (float64(j)+0.5)*g.cell
			d2 := (cx-p[0])*(cx-p[0]) + (cy-p[1])*(cy-p[1])
			if d2 >= r2 {
				continue
			}
			u := 1 - d2/r2
			g.values[j*g.nx+i] += norm * u * u
		}
	}
}

func (g *densityGrid) cellPolygon(idx int, proj orb.Projection) orb.Polygon {
	i, j := idx%g.nx, idx/g.nx
	x0 := g.origin[0] + float64(i)*g.cell
	y0 := g.origin[1] + float64(j)*g.cell
	x1, y1 := x0+g.cell, y0+g.cell
	return orb.Polygon{{
		proj(orb.Point{x0, y0}),
		proj(orb.Point{x1, y0}),
		proj(orb.Point{x1, y1}),
		proj(orb.Point{x0, y1}),
		proj(orb.Point{x0, y0}),
	}}
}
