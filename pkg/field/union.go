package field

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/fieldray/fieldray/pkg/core"
)

// Union combines member fields into one scene: each point takes the
// member sample with the highest density, so solids occlude the empty
// space of their neighbors.
type Union struct {
	Fields []core.RadianceField
}

// NewUnion creates a union over the given fields.
func NewUnion(fields ...core.RadianceField) *Union {
	return &Union{Fields: fields}
}

// Query implements core.RadianceField.
func (u *Union) Query(points []mgl64.Vec3, dirs []mgl64.Vec3) ([]core.FieldSample, error) {
	if len(u.Fields) == 0 {
		out := make([]core.FieldSample, len(points))
		for i := range out {
			out[i].Density = EmptyDensity
		}
		return out, nil
	}

	best, err := u.queryMember(u.Fields[0], points, dirs)
	if err != nil {
		return nil, err
	}
	for _, f := range u.Fields[1:] {
		samples, err := u.queryMember(f, points, dirs)
		if err != nil {
			return nil, err
		}
		for i := range best {
			if samples[i].Density > best[i].Density {
				best[i] = samples[i]
			}
		}
	}
	return best, nil
}

func (u *Union) queryMember(f core.RadianceField, points, dirs []mgl64.Vec3) ([]core.FieldSample, error) {
	samples, err := f.Query(points, dirs)
	if err != nil {
		return nil, err
	}
	if len(samples) != len(points) {
		return nil, fmt.Errorf("union member returned %d samples for %d points", len(samples), len(points))
	}
	return samples, nil
}
