// Package field provides analytic radiance fields for demo renders and
// tests. Fields return pre-activation values: the compositor squashes
// colors with a sigmoid and rectifies densities, so helpers here map
// display-space values back to raw ones.
package field

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// EmptyDensity is the raw density for empty space; it rectifies
	// to zero with margin for compositor noise.
	EmptyDensity = -10
	// colorClamp bounds display colors away from 0 and 1 so the logit
	// stays finite.
	colorClamp = 1e-4
)

// RawColor converts a display color in [0,1] to the pre-activation
// value whose sigmoid recovers it.
func RawColor(c mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{logit(c.X()), logit(c.Y()), logit(c.Z())}
}

func logit(p float64) float64 {
	p = math.Min(math.Max(p, colorClamp), 1-colorClamp)
	return math.Log(p / (1 - p))
}
