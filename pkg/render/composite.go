package render

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/fieldray/fieldray/pkg/core"
)

const (
	// lastDist stands in for the unbounded interval behind the final
	// sample, so it absorbs whatever transmittance remains.
	lastDist = 1e10
	// transEps keeps the running transmittance product away from an
	// exact zero.
	transEps = 1e-10
	// dispEps guards the disparity denominator when total weight is
	// vanishingly small.
	dispEps = 1e-10
)

// CompositeRay converts raw field samples along a ray into color,
// disparity, accumulated opacity, depth and per-sample weights via
// discretized alpha compositing.
//
// Raw colors pass through a logistic sigmoid and raw densities through
// a rectifier. alpha_i = 1 - exp(-density_i * dist_i), with distances
// scaled by |Dir| so unnormalized directions yield true spatial
// lengths; weight_i is alpha_i times the exclusive transmittance
// product over (1 - alpha + 1e-10). rawNoise > 0 adds zero-mean
// Gaussian noise to densities before rectification. whiteBkgd
// composites the remaining transmittance as additive white.
func CompositeRay(raw []core.FieldSample, zvals []float64, dir mgl64.Vec3, rawNoise float64, whiteBkgd bool, sampler core.Sampler) RayOutput {
	n := len(raw)
	norm := dir.Len()

	weights := make([]float64, n)
	var rgb mgl64.Vec3
	var acc, depth float64

	trans := 1.0
	for i := 0; i < n; i++ {
		dist := lastDist
		if i < n-1 {
			dist = zvals[i+1] - zvals[i]
		}
		dist *= norm

		density := raw[i].Density
		if rawNoise > 0 {
			density += sampler.GetGaussian() * rawNoise
		}
		alpha := 1 - math.Exp(-relu(density)*dist)

		w := alpha * trans
		trans *= 1 - alpha + transEps

		weights[i] = w
		color := mgl64.Vec3{
			sigmoid(raw[i].Color.X()),
			sigmoid(raw[i].Color.Y()),
			sigmoid(raw[i].Color.Z()),
		}
		rgb = rgb.Add(color.Mul(w))
		depth += w * zvals[i]
		acc += w
	}

	disp := 1 / math.Max(dispEps, depth/acc)

	if whiteBkgd {
		rest := 1 - acc
		rgb = rgb.Add(mgl64.Vec3{rest, rest, rest})
	}

	return RayOutput{
		RGB:       rgb,
		Disparity: disp,
		Acc:       acc,
		Depth:     depth,
		Weights:   weights,
	}
}

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
