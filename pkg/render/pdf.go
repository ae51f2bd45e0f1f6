package render

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/fieldray/fieldray/pkg/core"
)

const (
	// pdfFloor gives zero-weight regions a small uniform mass so every
	// bin stays reachable.
	pdfFloor = 1e-5
	// cdfEps marks a CDF bin as degenerate (zero width).
	cdfEps = 1e-5
)

// SamplePDF draws n depth values from the piecewise-constant
// distribution that weights define over the intervals between bins
// (len(weights) == len(bins)-1), by inverse-transform sampling.
// In deterministic mode the quantiles are spaced evenly over [0,1];
// otherwise each is an independent uniform draw from the sampler.
// The returned depths are unsorted; callers merge and sort them with
// the coarse samples. The draw is a sampling decision only: no
// dependency flows back through it.
func SamplePDF(bins, weights []float64, n int, det bool, sampler core.Sampler) []float64 {
	nb := len(weights)

	pdf := make([]float64, nb)
	var total float64
	for i, w := range weights {
		pdf[i] = w + pdfFloor
		total += pdf[i]
	}
	for i := range pdf {
		pdf[i] /= total
	}

	// CDF over bin boundaries, with 0 prepended; same length as bins.
	cdf := make([]float64, nb+1)
	floats.CumSum(cdf[1:], pdf)

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var u float64
		switch {
		case det && n > 1:
			u = float64(i) / float64(n-1)
		case det:
			u = 0
		default:
			u = sampler.Get1D()
		}

		// Index of the first CDF entry above u; the enclosing bin is
		// [ind-1, ind], clamped to the valid range.
		ind := sort.Search(len(cdf), func(j int) bool { return cdf[j] > u })
		below := max(ind-1, 0)
		above := min(ind, len(cdf)-1)

		denom := cdf[above] - cdf[below]
		if denom < cdfEps {
			denom = 1
		}
		t := (u - cdf[below]) / denom
		out[i] = bins[below] + t*(bins[above]-bins[below])
	}
	return out
}
