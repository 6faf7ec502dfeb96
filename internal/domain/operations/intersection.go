package operations

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/peterstace/simplefeatures/geom"

	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
)

// TargetDataset returns the required target dataset id of an intersection.
func TargetDataset(p Parameters) (string, error) {
	id, err := p.String("", "target_dataset", "target_dataset_id")
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%w: target_dataset is required", ErrInvalidParameter)
	}
	return id, nil
}

// Intersect emits one feature per non-empty pairwise intersection between
// the source and target collections. Properties are merged and source
// values win on key collision.
func Intersect(in Input) (Output, error) {
	targetID, err := TargetDataset(in.Params)
	if err != nil {
		return Output{}, err
	}

	stats := map[string]any{
		"target_dataset_id":   targetID,
		"features_processed":  featureCount(in.Features),
		"intersections_found": 0,
	}
	style := simpleStyle("#e31a1c")
	name := "Intersection"
	if featureCount(in.Features) == 0 || featureCount(in.Target) == 0 {
		return emptyOutput(name, spatial.LayerGeoJSON, stats, style), nil
	}

	targets := make([]geom.Geometry, len(in.Target.Features))
	converted := make([]bool, len(in.Target.Features))

	out := geojson.NewFeatureCollection()
	for i, src := range in.Features.Features {
		if src.Geometry == nil {
			continue
		}
		srcBound := src.Geometry.Bound()
		var srcGeom geom.Geometry
		srcReady := false

		for j, tgt := range in.Target.Features {
			if tgt.Geometry == nil || !srcBound.Intersects(tgt.Geometry.Bound()) {
				continue
			}
			if !srcReady {
				if srcGeom, err = toOverlay(src.Geometry); err != nil {
					return Output{}, fmt.Errorf("%w: source feature %d: %v", ErrGeometryOperation, i, err)
				}
				srcReady = true
			}
			if !converted[j] {
				if targets[j], err = toOverlay(tgt.Geometry); err != nil {
					return Output{}, fmt.Errorf("%w: target feature %d: %v", ErrGeometryOperation, j, err)
				}
				converted[j] = true
			}

			res, err := geom.Intersection(srcGeom, targets[j])
			if err != nil {
				return Output{}, fmt.Errorf("%w: intersect %d/%d: %v", ErrGeometryOperation, i, j, err)
			}
			g, err := fromOverlay(res)
			if err != nil {
				return Output{}, fmt.Errorf("%w: intersect %d/%d: %v", ErrGeometryOperation, i, j, err)
			}
			if g == nil {
				continue
			}

			nf := geojson.NewFeature(g)
			nf.Properties = copyProperties(tgt.Properties, len(src.Properties))
			for k, v := range src.Properties {
				nf.Properties[k] = v
			}
			out.Append(nf)
		}
	}

	stats["intersections_found"] = len(out.Features)
	return Output{
		Features:     out,
		Statistics:   stats,
		Style:        style,
		LayerName:    name,
		LayerType:    spatial.LayerGeoJSON,
		GeometryKind: collectionKind(out),
	}, nil
}
