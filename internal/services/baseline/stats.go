// Package baseline implements C5, the baseline computer: for each active
// service, a statistical summary of its error rate, latency percentiles,
// throughput, per-dependency and per-database latency/error rate, and
// exception rate over a trailing window.
package baseline

import (
	"math"
	"sort"
)

// summary is the statistical summary spec §4.5 defines over a vector of
// per-bucket samples: mean, stddev, min, max, and three percentiles.
type summary struct {
	mean, stddev   float64
	min, max       float64
	p50, p95, p99  float64
	sampleCount    int
}

// summarize computes the spec §4.5 statistical summary for v. It returns
// ok=false if len(v) < 2, the formula's minimum domain.
func summarize(v []float64) (summary, bool) {
	n := len(v)
	if n < 2 {
		return summary{}, false
	}

	sorted := make([]float64, n)
	copy(sorted, v)
	sort.Float64s(sorted)

	var sum float64
	for _, x := range sorted {
		sum += x
	}
	mean := sum / float64(n)

	var variance float64
	for _, x := range sorted {
		d := x - mean
		variance += d * d
	}
	variance /= float64(n)
	stddev := math.Sqrt(variance)

	p50 := sorted[percentileIndex(n, 0.5)]

	var p95 float64
	if n <= 20 {
		p95 = sorted[n-1]
	} else {
		p95 = sorted[percentileIndex(n, 0.95)]
	}

	var p99 float64
	if n <= 100 {
		p99 = sorted[n-1]
	} else {
		p99 = sorted[percentileIndex(n, 0.99)]
	}

	return summary{
		mean:        mean,
		stddev:      stddev,
		min:         sorted[0],
		max:         sorted[n-1],
		p50:         p50,
		p95:         p95,
		p99:         p99,
		sampleCount: n,
	}, true
}

func percentileIndex(n int, q float64) int {
	idx := int(math.Floor(q * float64(n)))
	if idx >= n {
		idx = n - 1
	}
	return idx
}
