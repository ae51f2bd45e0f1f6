package field

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/fieldray/fieldray/pkg/core"
)

// Shell is a hollow spherical shell whose color shifts with viewing
// angle: head-on surfaces show ColorA, grazing ones ColorB. It is the
// demo field for view-dependent rendering; without view directions it
// shows the midpoint color.
type Shell struct {
	Center  mgl64.Vec3
	Inner   float64
	Outer   float64
	ColorA  mgl64.Vec3
	ColorB  mgl64.Vec3
	Density float64
}

// NewShell creates a shell field between the inner and outer radii.
func NewShell(center mgl64.Vec3, inner, outer float64, colorA, colorB mgl64.Vec3, density float64) *Shell {
	return &Shell{Center: center, Inner: inner, Outer: outer, ColorA: colorA, ColorB: colorB, Density: density}
}

// Query implements core.RadianceField.
func (s *Shell) Query(points []mgl64.Vec3, dirs []mgl64.Vec3) ([]core.FieldSample, error) {
	out := make([]core.FieldSample, len(points))
	for i, p := range points {
		rel := p.Sub(s.Center)
		r2 := rel.Dot(rel)
		if r2 < s.Inner*s.Inner || r2 > s.Outer*s.Outer {
			out[i] = core.FieldSample{Color: RawColor(s.ColorA), Density: EmptyDensity}
			continue
		}

		// Blend by incidence angle: |n.d| is 1 head-on, 0 grazing.
		t := 0.5
		if dirs != nil && r2 > 0 {
			normal := rel.Normalize()
			t = 1 - absDot(normal, dirs[i])
		}
		color := s.ColorA.Mul(1 - t).Add(s.ColorB.Mul(t))
		out[i] = core.FieldSample{Color: RawColor(color), Density: s.Density}
	}
	return out, nil
}

func absDot(a, b mgl64.Vec3) float64 {
	d := a.Dot(b)
	if d < 0 {
		return -d
	}
	return d
}
