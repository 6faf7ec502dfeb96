package operations

import (
	"math/rand"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// kmeans runs k-means++ seeding followed by Lloyd iterations. The result
// always has k non-empty clusters when len(pts) >= k.
func kmeans(pts []orb.Point, k, maxIter int, seed int64) []int {
	rng := rand.New(rand.NewSource(seed))
	centers := seedCenters(pts, k, rng)
	labels := make([]int, len(pts))
	for i := range labels {
		labels[i] = -1
	}

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, p := range pts {
			best := nearest(centers, p)
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		if fillEmpty(pts, centers, labels, k) {
			changed = true
		}
		if !changed {
			break
		}
		centers = means(pts, labels, centers)
	}
	return labels
}

func seedCenters(pts []orb.Point, k int, rng *rand.Rand) []orb.Point {
	centers := make([]orb.Point, 0, k)
	centers = append(centers, pts[rng.Intn(len(pts))])

	dist := make([]float64, len(pts))
	for len(centers) < k {
		total := 0.0
		for i, p := range pts {
			dist[i] = planar.DistanceSquared(p, centers[nearest(centers, p)])
			total += dist[i]
		}
		if total == 0 {
			// semua titik sudah jadi center (duplikat); pilih acak
			centers = append(centers, pts[rng.Intn(len(pts))])
			continue
		}
		target := rng.Float64() * total
		idx := len(pts) - 1
		for i, d := range dist {
			target -= d
			if target <= 0 && d > 0 {
				idx = i
				break
			}
		}
		centers = append(centers, pts[idx])
	}
	return centers
}

func nearest(centers []orb.Point, p orb.Point) int {
	best, bestDist := 0, planar.DistanceSquared(p, centers[0])
	for j := 1; j < len(centers); j++ {
		if d := planar.DistanceSquared(p, centers[j]); d < bestDist {
			best, bestDist = j, d
		}
	}
	return best
}

// fillEmpty moves the point farthest from its center into each empty
// cluster. Only points from clusters with more than one member are taken.
func fillEmpty(pts []orb.Point, centers []orb.Point, labels []int, k int) bool {
	sizes := make([]int, k)
	for _, l := range labels {
		sizes[l]++
	}

	moved := false
	for j := 0; j < k; j++ {
		if sizes[j] > 0 {
			continue
		}
		far, farDist := -1, -1.0
		for i, p := range pts {
			if sizes[labels[i]] < 2 {
				continue
			}
			if d := planar.DistanceSquared(p, centers[labels[i]]); d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			break
		}
		sizes[labels[far]]--
		labels[far] = j
		sizes[j]++
		centers[j] = pts[far]
		moved = true
	}
	return moved
}

func means(pts []orb.Point, labels []int, prev []orb.Point) []orb.Point {
	sums := make([]orb.Point, len(prev))
	counts := make([]int, len(prev))
	for i, p := range pts {
		l := labels[i]
		sums[l][0] += p[0]
		sums[l][1] += p[1]
		counts[l]++
	}
	out := make([]orb.Point, len(prev))
	for j := range out {
		if counts[j] == 0 {
			out[j] = prev[j]
			continue
		}
		out[j] = orb.Point{sums[j][0] / float64(counts[j]), sums[j][1] / float64(counts[j])}
	}
	return out
}
