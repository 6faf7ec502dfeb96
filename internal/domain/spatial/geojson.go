package spatial

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// ToFeatureCollection converts stored features to GeoJSON. The feature id
// is carried as the GeoJSON id.
func ToFeatureCollection(features []*Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		gf := geojson.NewFeature(f.Geometry)
		if f.ID != "" {
			gf.ID = f.ID
		}
		for k, v := range f.Properties {
			gf.Properties[k] = v
		}
		fc.Append(gf)
	}
	return fc
}

// FromFeatureCollection is the reverse of ToFeatureCollection. Features
// without a geometry are skipped; ids are kept when present.
func FromFeatureCollection(layerID string, fc *geojson.FeatureCollection) []*Feature {
	if fc == nil {
		return nil
	}
	out := make([]*Feature, 0, len(fc.Features))
	for _, gf := range fc.Features {
		if gf == nil || gf.Geometry == nil {
			continue
		}
		props := make(map[string]any, len(gf.Properties))
		for k, v := range gf.Properties {
			props[k] = v
		}
		id := ""
		if gf.ID != nil {
			id = fmt.Sprint(gf.ID)
		}
		out = append(out, &Feature{
			ID:         id,
			LayerID:    layerID,
			Properties: props,
			Geometry:   gf.Geometry,
		})
	}
	return out
}

// LayerData is a layer descriptor together with its features, the shape
// returned to API callers.
type LayerData struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"`
	Type         string                     `json:"type"`
	GeometryKind GeometryKind               `json:"geometry_type"`
	Data         *geojson.FeatureCollection `json:"data"`
	Style        Style                      `json:"style"`
}

// NewLayerData pairs l with its features.
func NewLayerData(l *Layer, features []*Feature) LayerData {
	return LayerData{
		ID:           l.ID,
		Name:         l.Name,
		Type:         l.Type,
		GeometryKind: l.GeometryKind,
		Data:         ToFeatureCollection(features),
		Style:        l.Style,
	}
}
