package operations

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
)

var (
	ErrUnsupportedAnalysisType = errors.New("unsupported analysis type")
	ErrInvalidParameter        = errors.New("invalid parameter")
	ErrGeometryOperation       = errors.New("geometry operation failed")
)

// Kind is the closed set of analysis operations.
type Kind string

const (
	KindClustering   Kind = "clustering"
	KindBuffer       Kind = "buffer"
	KindIntersection Kind = "intersection"
	KindHeatmap      Kind = "heatmap"
)

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{KindClustering, KindBuffer, KindIntersection, KindHeatmap}
}

func (k Kind) Valid() bool {
	_, err := Lookup(k)
	return err == nil
}

// ParseKind validates a raw analysis type string.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAnalysisType, s)
	}
	return k, nil
}

// Input of an operation. Target is only read by intersection.
type Input struct {
	Features *geojson.FeatureCollection
	Target   *geojson.FeatureCollection
	Params   Parameters
}

// Output of an operation: the result layer content plus statistics.
type Output struct {
	Features     *geojson.FeatureCollection
	Statistics   map[string]any
	Style        spatial.Style
	LayerName    string
	LayerType    string
	GeometryKind spatial.GeometryKind
}

// Operation is a pure transformation; it never touches storage.
type Operation func(in Input) (Output, error)

// Lookup returns the operation bound to k.
func Lookup(k Kind) (Operation, error) {
	switch k {
	case KindClustering:
		return Cluster, nil
	case KindBuffer:
		return Buffer, nil
	case KindIntersection:
		return Intersect, nil
	case KindHeatmap:
		return Heatmap, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedAnalysisType, k)
}

// Validate checks parameters for k without running anything.
func Validate(k Kind, p Parameters) error {
	var err error
	switch k {
	case KindClustering:
		_, err = parseClusterParams(p)
	case KindBuffer:
		_, err = parseBufferParams(p)
	case KindIntersection:
		_, err = TargetDataset(p)
	case KindHeatmap:
		_, err = parseHeatmapParams(p)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedAnalysisType, k)
	}
	return err
}

func emptyOutput(name, layerType string, stats map[string]any, style spatial.Style) Output {
	return Output{
		Features:     geojson.NewFeatureCollection(),
		Statistics:   stats,
		Style:        style,
		LayerName:    name,
		LayerType:    layerType,
		GeometryKind: spatial.KindMixed,
	}
}

func collectionKind(fc *geojson.FeatureCollection) spatial.GeometryKind {
	gs := make([]orb.Geometry, 0, len(fc.Features))
	for _, f := range fc.Features {
		gs = append(gs, f.Geometry)
	}
	return spatial.KindOfAll(gs)
}

func copyProperties(p geojson.Properties, extra int) geojson.Properties {
	out := make(geojson.Properties, len(p)+extra)
	for k, v := range p {
		out[k] = v
	}
	return out
}

func featureCount(fc *geojson.FeatureCollection) int {
	if fc == nil {
		return 0
	}
	return len(fc.Features)
}
