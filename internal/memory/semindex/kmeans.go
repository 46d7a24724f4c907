package semindex

import (
	"math"
	"math/rand"
)

const kmeansMaxIter = 100

// kmeansAssign runs Lloyd's algorithm over flattened row-major vectors and
// returns one cluster label per vector. The seed fixes initialization so
// the grouping is reproducible for a given data set. Assumes 0 < k <= n.
func kmeansAssign(vectors []float32, dim, k int, seed int64) []int {
	n := len(vectors) / dim
	rng := rand.New(rand.NewSource(seed))

	centroids := make([]float32, k*dim)
	perm := rng.Perm(n)
	for i := 0; i < k; i++ {
		copy(centroids[i*dim:(i+1)*dim], vectors[perm[i]*dim:(perm[i]+1)*dim])
	}

	assignments := make([]int, n)
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false

		for i := 0; i < n; i++ {
			vec := vectors[i*dim : (i+1)*dim]
			best := -1
			minDist := math.MaxFloat64

			for j := 0; j < k; j++ {
				d := squaredDistance(vec, centroids[j*dim:(j+1)*dim])
				if d < minDist {
					minDist = d
					best = j
				}
			}

			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		if !changed && iter > 0 {
			break
		}

		for i := range sums {
			sums[i] = 0
		}
		for i := range counts {
			counts[i] = 0
		}
		for i := 0; i < n; i++ {
			cluster := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			for d := 0; d < dim; d++ {
				sums[cluster*dim+d] += vec[d]
			}
			counts[cluster]++
		}
		for j := 0; j < k; j++ {
			if counts[j] > 0 {
				scale := 1 / float32(counts[j])
				for d := 0; d < dim; d++ {
					centroids[j*dim+d] = sums[j*dim+d] * scale
				}
			} else {
				// Re-seed an empty cluster from a random point.
				idx := rng.Intn(n)
				copy(centroids[j*dim:(j+1)*dim], vectors[idx*dim:(idx+1)*dim])
			}
		}
	}

	return assignments
}

func squaredDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
