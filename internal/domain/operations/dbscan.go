package operations

import (
	"github.com/paulmach/orb"

	"github.com/bryanwahyu/geoanalysis/internal/geometry"
)

// dbscan labels lon/lat points by density. eps is a great-circle distance
// in meters; a neighbourhood includes the point itself. Outliers get
// NoiseCluster, clusters are numbered from 0 in discovery order.
func dbscan(pts []orb.Point, eps float64, minSamples int) []int {
	const unvisited = -2

	labels := make([]int, len(pts))
	for i := range labels {
		labels[i] = unvisited
	}

	neighbours := func(i int) []int {
		var out []int
		for j, q := range pts {
			if geometry.HaversineDistance(pts[i][0], pts[i][1], q[0], q[1], geometry.Meters) <= eps {
				out = append(out, j)
			}
		}
		return out
	}

	cluster := 0
	for i := range pts {
		if labels[i] != unvisited {
			continue
		}
		seeds := neighbours(i)
		if len(seeds) < minSamples {
			labels[i] = NoiseCluster
			continue
		}

		labels[i] = cluster
		queue := append([]int(nil), seeds...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			if labels[j] == NoiseCluster {
				labels[j] = cluster // border point
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			if n := neighbours(j); len(n) >= minSamples {
				queue = append(queue, n...)
			}
		}
		cluster++
	}
	return labels
}
