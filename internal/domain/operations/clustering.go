package operations

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/bryanwahyu/geoanalysis/internal/domain/spatial"
	"github.com/bryanwahyu/geoanalysis/internal/geometry"
)

const (
	AlgorithmKMeans = "kmeans"
	AlgorithmDBSCAN = "dbscan"

	defaultMaxIter    = 300
	defaultSeed       = 42
	defaultEpsMeters  = 500.0
	defaultMinSamples = 5

	// NoiseCluster labels dbscan outliers.
	NoiseCluster = -1
)

type clusterParams struct {
	Algorithm  string
	K          int
	MaxIter    int
	Seed       int64
	Eps        float64
	MinSamples int
}

func parseClusterParams(p Parameters) (clusterParams, error) {
	algo, err := p.String(AlgorithmKMeans, "algorithm")
	if err != nil {
		return clusterParams{}, err
	}
	cp := clusterParams{Algorithm: strings.ToLower(algo)}

	switch cp.Algorithm {
	case AlgorithmKMeans:
		if !p.Has("n_clusters", "cluster_count", "clusterCount") {
			return clusterParams{}, fmt.Errorf("%w: kmeans requires n_clusters", ErrInvalidParameter)
		}
		if cp.K, err = p.Int(0, "n_clusters", "cluster_count", "clusterCount"); err != nil {
			return clusterParams{}, err
		}
		if cp.K < 1 {
			return clusterParams{}, fmt.Errorf("%w: n_clusters must be >= 1, got %d", ErrInvalidParameter, cp.K)
		}
		if cp.MaxIter, err = p.Int(defaultMaxIter, "max_iter"); err != nil {
			return clusterParams{}, err
		}
		if cp.MaxIter < 1 {
			return clusterParams{}, fmt.Errorf("%w: max_iter must be >= 1", ErrInvalidParameter)
		}
		seed, err := p.Int(defaultSeed, "seed", "random_state")
		if err != nil {
			return clusterParams{}, err
		}
		cp.Seed = int64(seed)
	case AlgorithmDBSCAN:
		if cp.Eps, err = p.Float(defaultEpsMeters, "eps", "epsilon"); err != nil {
			return clusterParams{}, err
		}
		if cp.Eps <= 0 {
			return clusterParams{}, fmt.Errorf("%w: eps must be > 0, got %v", ErrInvalidParameter, cp.Eps)
		}
		if cp.MinSamples, err = p.Int(defaultMinSamples, "min_samples", "min_points", "minPoints"); err != nil {
			return clusterParams{}, err
		}
		if cp.MinSamples < 1 {
			return clusterParams{}, fmt.Errorf("%w: min_samples must be >= 1, got %d", ErrInvalidParameter, cp.MinSamples)
		}
	default:
		return clusterParams{}, fmt.Errorf("%w: unsupported clustering algorithm %q", ErrInvalidParameter, algo)
	}
	return cp, nil
}

// Cluster groups features by the proximity of their representative point
// (the point itself or a planar centroid). Every output feature carries a
// cluster property; dbscan noise is labelled NoiseCluster.
func Cluster(in Input) (Output, error) {
	params, err := parseClusterParams(in.Params)
	if err != nil {
		return Output{}, err
	}

	stats := map[string]any{
		"algorithm":            params.Algorithm,
		"num_clusters":         0,
		"features_per_cluster": []int{},
		"features_processed":   0,
	}
	if params.Algorithm == AlgorithmDBSCAN {
		stats["noise_points"] = 0
	}
	name := fmt.Sprintf("Clusters (%s)", params.Algorithm)
	if featureCount(in.Features) == 0 {
		return emptyOutput(name, spatial.LayerGeoJSON, stats, clusterStyle(nil)), nil
	}

	reps := make([]orb.Point, len(in.Features.Features))
	for i, f := range in.Features.Features {
		if f.Geometry == nil {
			return Output{}, fmt.Errorf("%w: feature %d has no geometry", ErrGeometryOperation, i)
		}
		reps[i] = geometry.Centroid(f.Geometry)
	}

	var labels []int
	switch params.Algorithm {
	case AlgorithmKMeans:
		if len(reps) < params.K {
			return Output{}, fmt.Errorf("%w: n_clusters=%d exceeds feature count %d", ErrInvalidParameter, params.K, len(reps))
		}
		planar, err := toLocalPlane(reps)
		if err != nil {
			return Output{}, fmt.Errorf("%w: %v", ErrGeometryOperation, err)
		}
		labels = kmeans(planar, params.K, params.MaxIter, params.Seed)
	case AlgorithmDBSCAN:
		labels = dbscan(reps, params.Eps, params.MinSamples)
	}

	out := geojson.NewFeatureCollection()
	counts := map[int]int{}
	for i, f := range in.Features.Features {
		nf := geojson.NewFeature(orb.Clone(f.Geometry))
		nf.ID = f.ID
		nf.Properties = copyProperties(f.Properties, 1)
		nf.Properties["cluster"] = labels[i]
		out.Append(nf)
		counts[labels[i]]++
	}

	ids := make([]int, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	perCluster := make([]int, 0, len(ids))
	for _, id := range ids {
		if id != NoiseCluster {
			perCluster = append(perCluster, counts[id])
		}
	}

	stats["num_clusters"] = len(perCluster)
	stats["features_per_cluster"] = perCluster
	stats["features_processed"] = len(labels)
	if params.Algorithm == AlgorithmDBSCAN {
		stats["noise_points"] = counts[NoiseCluster]
	}

	return Output{
		Features:     out,
		Statistics:   stats,
		Style:        clusterStyle(ids),
		LayerName:    name,
		LayerType:    spatial.LayerGeoJSON,
		GeometryKind: collectionKind(out),
	}, nil
}

// toLocalPlane projects lon/lat points into the UTM zone of their mean.
func toLocalPlane(pts []orb.Point) ([]orb.Point, error) {
	crs := geometry.UTMFor(orb.MultiPoint(pts))
	proj, err := geometry.Projector(geometry.WGS84, crs)
	if err != nil {
		return nil, err
	}
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = proj(p)
	}
	return out, nil
}
