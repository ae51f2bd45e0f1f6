package core

import "github.com/go-gl/mathgl/mgl64"

// Ray is a single camera ray with near/far integration bounds.
// Dir is deliberately left unnormalized: depth values are expressed in
// units of Dir, and the compositor rescales inter-sample distances by
// |Dir| to recover true spatial lengths.
type Ray struct {
	Origin mgl64.Vec3
	Dir    mgl64.Vec3
	Near   float64
	Far    float64

	// ViewDir is the unit viewing direction handed to the radiance
	// field when view-dependent effects are enabled. It is derived from
	// the pre-remap direction, so it survives the NDC transform intact.
	ViewDir    mgl64.Vec3
	HasViewDir bool
}

// NewRay creates a ray with the given integration bounds.
func NewRay(origin, dir mgl64.Vec3, near, far float64) Ray {
	return Ray{Origin: origin, Dir: dir, Near: near, Far: far}
}

// At returns the point at depth t along the ray.
func (r Ray) At(t float64) mgl64.Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}

// WithViewDir returns a copy of the ray carrying dir, normalized, as
// its viewing direction.
func (r Ray) WithViewDir(dir mgl64.Vec3) Ray {
	r.ViewDir = dir.Normalize()
	r.HasViewDir = true
	return r
}
