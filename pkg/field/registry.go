package field

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/fieldray/fieldray/pkg/core"
)

// Demo scenes are sized for cameras orbiting the origin at radius 4
// with near 2 and far 6.
var builders = map[string]func() core.RadianceField{
	"sphere": func() core.RadianceField {
		return NewSphere(mgl64.Vec3{0, 0, 0}, 1.0, mgl64.Vec3{0.9, 0.2, 0.15}, 8.0)
	},
	"box": func() core.RadianceField {
		return NewBox(
			mgl64.Vec3{-0.8, -0.8, -0.8},
			mgl64.Vec3{0.8, 0.8, 0.8},
			mgl64.Vec3{0.2, 0.4, 0.9},
			8.0,
		)
	},
	"shell": func() core.RadianceField {
		return NewShell(
			mgl64.Vec3{0, 0, 0}, 0.7, 1.2,
			mgl64.Vec3{0.95, 0.6, 0.1},
			mgl64.Vec3{0.1, 0.3, 0.85},
			5.0,
		)
	},
	"trio": func() core.RadianceField {
		return NewUnion(
			NewSphere(mgl64.Vec3{-1.1, 0, 0}, 0.6, mgl64.Vec3{0.9, 0.2, 0.15}, 8.0),
			NewBox(
				mgl64.Vec3{0.6, -0.5, -0.5},
				mgl64.Vec3{1.6, 0.5, 0.5},
				mgl64.Vec3{0.2, 0.4, 0.9},
				8.0,
			),
			NewShell(
				mgl64.Vec3{0, 1.0, 0}, 0.3, 0.55,
				mgl64.Vec3{0.95, 0.6, 0.1},
				mgl64.Vec3{0.2, 0.8, 0.3},
				5.0,
			),
		)
	},
}

// New builds the named demo field.
func New(name string) (core.RadianceField, error) {
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown field %q (have %s)", name, strings.Join(Names(), ", "))
	}
	return build(), nil
}

// Names lists the available demo fields in sorted order.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
