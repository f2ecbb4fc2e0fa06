package provenance

import (
	"math"
	"slices"

	"github.com/arloliu/atmogrid/internal/pool"
)

// Stats summarizes the valid samples of one time step.
type Stats struct {
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	Count  int
}

// Summarize computes statistics over values, skipping NaN and values equal to
// missing. With no valid samples every statistic is NaN. values is not modified.
func Summarize(values []float64, missing float64) Stats {
	scratch, cleanup := pool.GetFloat64Slice(len(values))
	defer cleanup()

	valid := scratch[:0]
	for _, v := range values {
		if math.IsNaN(v) || v == missing {
			continue
		}
		valid = append(valid, v)
	}
	if len(valid) == 0 {
		nan := math.NaN()
		return Stats{Min: nan, Max: nan, Mean: nan, Median: nan}
	}

	slices.Sort(valid)

	sum := 0.0
	for _, v := range valid {
		sum += v
	}

	n := len(valid)
	median := valid[n/2]
	if n%2 == 0 {
		median = (valid[n/2-1] + valid[n/2]) / 2
	}

	return Stats{
		Min:    valid[0],
		Max:    valid[n-1],
		Mean:   sum / float64(n),
		Median: median,
		Count:  n,
	}
}
