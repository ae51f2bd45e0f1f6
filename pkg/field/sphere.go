package field

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/fieldray/fieldray/pkg/core"
)

// Sphere is a solid ball of uniform density and color.
type Sphere struct {
	Center  mgl64.Vec3
	Radius  float64
	Color   mgl64.Vec3 // display color in [0,1]
	Density float64    // spatial density inside the ball
}

// NewSphere creates a sphere field.
func NewSphere(center mgl64.Vec3, radius float64, color mgl64.Vec3, density float64) *Sphere {
	return &Sphere{Center: center, Radius: radius, Color: color, Density: density}
}

// Query implements core.RadianceField.
func (s *Sphere) Query(points []mgl64.Vec3, dirs []mgl64.Vec3) ([]core.FieldSample, error) {
	raw := RawColor(s.Color)
	out := make([]core.FieldSample, len(points))
	for i, p := range points {
		d := p.Sub(s.Center)
		if d.Dot(d) <= s.Radius*s.Radius {
			out[i] = core.FieldSample{Color: raw, Density: s.Density}
		} else {
			out[i] = core.FieldSample{Color: raw, Density: EmptyDensity}
		}
	}
	return out, nil
}
