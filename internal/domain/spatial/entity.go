package spatial

import (
	"time"

	"github.com/paulmach/orb"
)

// GeometryKind enum untuk layer
type GeometryKind string

const (
	KindPoint   GeometryKind = "point"
	KindLine    GeometryKind = "line"
	KindPolygon GeometryKind = "polygon"
	KindMixed   GeometryKind = "mixed"
)

// Layer type tags
const (
	LayerVector  = "vector"
	LayerGeoJSON = "geojson"
	LayerHeatmap = "heatmap"
)

// Dataset is a stored collection of layers owned by one user.
type Dataset struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Format      string         `json:"format,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	OwnerID     string         `json:"owner_id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Layer belongs either to a dataset (input) or to an analysis (output), never both.
type Layer struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	DatasetID    string       `json:"dataset_id,omitempty"`
	AnalysisID   string       `json:"analysis_id,omitempty"`
	GeometryKind GeometryKind `json:"geometry_type"`
	Type         string       `json:"type"`
	Style        Style        `json:"style"`
	Visible      bool         `json:"visible"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Feature: satu geometry (WGS84 lon/lat) + atribut
type Feature struct {
	ID         string         `json:"id"`
	LayerID    string         `json:"layer_id"`
	Properties map[string]any `json:"properties"`
	Geometry   orb.Geometry   `json:"-"`
	CreatedAt  time.Time      `json:"created_at"`
}

// KindOf maps a geometry to its layer geometry kind.
func KindOf(g orb.Geometry) GeometryKind {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return KindPoint
	case orb.LineString, orb.MultiLineString:
		return KindLine
	case orb.Polygon, orb.MultiPolygon, orb.Ring:
		return KindPolygon
	}
	return KindMixed
}

// KindOfAll returns the shared kind of all geometries, KindMixed when they differ.
func KindOfAll(gs []orb.Geometry) GeometryKind {
	var kind GeometryKind
	for _, g := range gs {
		if g == nil {
			continue
		}
		k := KindOf(g)
		if kind == "" {
			kind = k
		} else if kind != k {
			return KindMixed
		}
	}
	if kind == "" {
		return KindMixed
	}
	return kind
}
