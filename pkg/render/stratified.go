package render

import "github.com/fieldray/fieldray/pkg/core"

// SampleDepths picks n depth values along the ray between its near and
// far bounds. Parameters are spaced evenly in [0,1] and mapped linearly
// in depth, or linearly in inverse depth when lindisp is set. A jitter
// amount in (0,1] perturbs each value to a uniformly random position
// within its own midpoint-bounded interval: interval boundaries are the
// midpoints between adjacent values, clamped to the first and last
// nominal values, so jittered samples stay sorted and inside
// [near, far]. jitter 0 keeps the regular grid.
func SampleDepths(r core.Ray, n int, lindisp bool, jitter float64, sampler core.Sampler) []float64 {
	z := make([]float64, n)
	for i := range z {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		if lindisp {
			z[i] = 1 / (1/r.Near*(1-t) + 1/r.Far*t)
		} else {
			z[i] = r.Near*(1-t) + r.Far*t
		}
	}

	if jitter <= 0 || n < 2 {
		return z
	}

	lower := make([]float64, n)
	upper := make([]float64, n)
	lower[0] = z[0]
	upper[n-1] = z[n-1]
	for i := 0; i < n-1; i++ {
		mid := 0.5 * (z[i] + z[i+1])
		upper[i] = mid
		lower[i+1] = mid
	}
	for i := range z {
		z[i] = lower[i] + (upper[i]-lower[i])*jitter*sampler.Get1D()
	}
	return z
}
