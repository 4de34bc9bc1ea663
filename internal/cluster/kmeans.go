// Package cluster partitions embeddings into a fixed number of groups.
package cluster

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Defaults follow the usual Lloyd k-means settings.
const (
	DefaultK       = 10
	DefaultMaxIter = 300
	DefaultNInit   = 10
	DefaultTol     = 1e-4
)

// KMeans is a k-means++ initialised Lloyd clusterer. Each Fit starts from scratch.
type KMeans struct {
	K       int
	MaxIter int
	NInit   int
	Tol     float64
	Seed    uint64
}

// New returns a clusterer with default iteration settings.
func New(k int, seed uint64) *KMeans {
	return &KMeans{K: k, MaxIter: DefaultMaxIter, NInit: DefaultNInit, Tol: DefaultTol, Seed: seed}
}

// Fit assigns every row of data a label in [0, K). With fewer rows than
// clusters each row gets its own label.
func (km *KMeans) Fit(ctx context.Context, data mat.Matrix) ([]int, error) {
	if km.K <= 0 {
		return nil, errors.New("cluster count must be positive")
	}
	n, d := data.Dims()
	if n == 0 {
		return []int{}, nil
	}
	if n <= km.K {
		labels := make([]int, n)
		for i := range labels {
			labels[i] = i
		}
		return labels, nil
	}

	points := make([][]float64, n)
	for i := range points {
		points[i] = mat.Row(nil, i, data)
	}

	rng := rand.New(rand.NewPCG(km.Seed, km.Seed^0x9e3779b97f4a7c15))
	runs := max(km.NInit, 1)

	// centroid shift below this ends a run
	threshold := km.Tol * variance(points, d)

	var (
		best        []int
		bestInertia = math.Inf(1)
	)
	for run := 0; run < runs; run++ {
		labels, inertia, err := km.lloyd(ctx, points, d, threshold, rng)
		if err != nil {
			return nil, err
		}
		if inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
	}
	return best, nil
}

func (km *KMeans) lloyd(ctx context.Context, points [][]float64, d int, threshold float64, rng *rand.Rand) ([]int, float64, error) {
	centroids := seedPlusPlus(points, km.K, rng)
	labels := make([]int, len(points))
	maxIter := km.MaxIter
	if maxIter <= 0 {
		maxIter = DefaultMaxIter
	}

	var inertia float64
	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		inertia = assign(points, centroids, labels)
		next := recompute(points, labels, centroids, d)

		var shift float64
		for c := range centroids {
			shift += sqDist(centroids[c], next[c])
		}
		centroids = next
		if shift <= threshold {
			break
		}
	}
	inertia = assign(points, centroids, labels)
	return labels, inertia, nil
}

// seedPlusPlus picks initial centroids with probability proportional to the
// squared distance from the nearest already chosen centroid.
func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.IntN(n)]))

	closest := make([]float64, n)
	for i, p := range points {
		closest[i] = sqDist(p, centroids[0])
	}

	for len(centroids) < k {
		total := floats.Sum(closest)
		var pick int
		if total == 0 {
			pick = rng.IntN(n)
		} else {
			target := rng.Float64() * total
			var acc float64
			pick = n - 1
			for i, w := range closest {
				acc += w
				if acc >= target {
					pick = i
					break
				}
			}
		}
		c := clone(points[pick])
		centroids = append(centroids, c)
		for i, p := range points {
			if dist := sqDist(p, c); dist < closest[i] {
				closest[i] = dist
			}
		}
	}
	return centroids
}

func assign(points, centroids [][]float64, labels []int) float64 {
	var inertia float64
	for i, p := range points {
		best, bestDist := 0, math.Inf(1)
		for c, centroid := range centroids {
			if dist := sqDist(p, centroid); dist < bestDist {
				best, bestDist = c, dist
			}
		}
		labels[i] = best
		inertia += bestDist
	}
	return inertia
}

// recompute averages members per cluster; an emptied cluster keeps its previous centroid.
func recompute(points [][]float64, labels []int, prev [][]float64, d int) [][]float64 {
	sums := make([][]float64, len(prev))
	counts := make([]int, len(prev))
	for c := range sums {
		sums[c] = make([]float64, d)
	}
	for i, p := range points {
		floats.Add(sums[labels[i]], p)
		counts[labels[i]]++
	}
	for c := range sums {
		if counts[c] == 0 {
			copy(sums[c], prev[c])
			continue
		}
		floats.Scale(1/float64(counts[c]), sums[c])
	}
	return sums
}

// variance is the mean per-feature variance, the scale for the convergence tolerance.
func variance(points [][]float64, d int) float64 {
	if d == 0 {
		return 0
	}
	mean := make([]float64, d)
	for _, p := range points {
		floats.Add(mean, p)
	}
	floats.Scale(1/float64(len(points)), mean)

	var total float64
	for _, p := range points {
		total += sqDist(p, mean)
	}
	return total / float64(len(points)*d)
}

func sqDist(a, b []float64) float64 {
	dist := floats.Distance(a, b, 2)
	return dist * dist
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
