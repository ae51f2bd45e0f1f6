package field

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/fieldray/fieldray/pkg/core"
)

// Box is an axis-aligned solid of uniform density and color.
type Box struct {
	Min     mgl64.Vec3
	Max     mgl64.Vec3
	Color   mgl64.Vec3 // display color in [0,1]
	Density float64
}

// NewBox creates a box field spanning min to max.
func NewBox(min, max, color mgl64.Vec3, density float64) *Box {
	return &Box{Min: min, Max: max, Color: color, Density: density}
}

func (b *Box) contains(p mgl64.Vec3) bool {
	for axis := 0; axis < 3; axis++ {
		if p[axis] < b.Min[axis] || p[axis] > b.Max[axis] {
			return false
		}
	}
	return true
}

// Query implements core.RadianceField.
func (b *Box) Query(points []mgl64.Vec3, dirs []mgl64.Vec3) ([]core.FieldSample, error) {
	raw := RawColor(b.Color)
	out := make([]core.FieldSample, len(points))
	for i, p := range points {
		out[i] = core.FieldSample{Color: raw, Density: EmptyDensity}
		if b.contains(p) {
			out[i].Density = b.Density
		}
	}
	return out, nil
}
