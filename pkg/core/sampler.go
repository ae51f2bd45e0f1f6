package core

import (
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
)

// Sampler provides random draws for rendering and selection algorithms.
// Can be swapped out for deterministic testing or different sampling
// patterns.
type Sampler interface {
	// Get1D returns a uniform float64 in [0, 1).
	Get1D() float64
	// Get2D returns two uniform float64 values in [0, 1).
	Get2D() mgl64.Vec2
	// GetGaussian returns a standard normal draw (mean 0, stddev 1).
	GetGaussian() float64
}

// RandomSampler wraps a standard Go random generator.
type RandomSampler struct {
	random *rand.Rand
}

// NewRandomSampler creates a sampler from a Go random generator.
func NewRandomSampler(random *rand.Rand) *RandomSampler {
	return &RandomSampler{random: random}
}

// NewSeededSampler creates an independent sampler for one work unit
// (a ray, a training step). Keying the seed by unit keeps draws
// identical no matter how units are batched; +42 avoids seed 0.
func NewSeededSampler(seed, unit int64) *RandomSampler {
	return &RandomSampler{random: rand.New(rand.NewSource(seed + unit + 42))}
}

// Get1D returns a uniform float64 in [0, 1).
func (r *RandomSampler) Get1D() float64 {
	return r.random.Float64()
}

// Get2D returns two uniform float64 values in [0, 1).
func (r *RandomSampler) Get2D() mgl64.Vec2 {
	return mgl64.Vec2{r.random.Float64(), r.random.Float64()}
}

// GetGaussian returns a standard normal draw.
func (r *RandomSampler) GetGaussian() float64 {
	return r.random.NormFloat64()
}

// Intn draws a uniform int in [0, n) through a Sampler.
func Intn(s Sampler, n int) int {
	i := int(s.Get1D() * float64(n))
	// Get1D is < 1, but the product can round up to n.
	if i >= n {
		i = n - 1
	}
	return i
}
