package render

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/fieldray/fieldray/pkg/core"
)

func constRaw(n int, color mgl64.Vec3, density float64) []core.FieldSample {
	raw := make([]core.FieldSample, n)
	for i := range raw {
		raw[i] = core.FieldSample{Color: color, Density: density}
	}
	return raw
}

func TestCompositeRayEmptySpace(t *testing.T) {
	raw := constRaw(4, mgl64.Vec3{3, 3, 3}, -10)
	zvals := []float64{0, 1, 2, 3}

	out := CompositeRay(raw, zvals, mgl64.Vec3{0, 0, -1}, 0, false, nil)
	if !vecNear(out.RGB, mgl64.Vec3{}, 1e-12) {
		t.Errorf("RGB = %v, expected black", out.RGB)
	}
	if out.Acc != 0 {
		t.Errorf("Acc = %v, expected 0", out.Acc)
	}
	for i, w := range out.Weights {
		if w != 0 {
			t.Errorf("weight %d = %v, expected 0", i, w)
		}
	}

	white := CompositeRay(raw, zvals, mgl64.Vec3{0, 0, -1}, 0, true, nil)
	if !vecNear(white.RGB, mgl64.Vec3{1, 1, 1}, 1e-12) {
		t.Errorf("white background RGB = %v, expected white", white.RGB)
	}
}

func TestCompositeRayOpaqueSurface(t *testing.T) {
	// A wall of effectively infinite density at the first sample grabs
	// all the transmittance.
	raw := constRaw(4, mgl64.Vec3{20, -20, -20}, 0)
	raw[0].Density = 1e10
	zvals := []float64{1, 2, 3, 4}

	out := CompositeRay(raw, zvals, mgl64.Vec3{0, 0, -1}, 0, false, nil)
	if math.Abs(out.Weights[0]-1) > 1e-9 {
		t.Errorf("first weight = %v, expected ~1", out.Weights[0])
	}
	if math.Abs(out.Acc-1) > 1e-9 {
		t.Errorf("Acc = %v, expected ~1", out.Acc)
	}
	if math.Abs(out.Depth-1) > 1e-9 {
		t.Errorf("Depth = %v, expected ~1", out.Depth)
	}
	// sigmoid(20) is red to within a few 1e-9.
	if !vecNear(out.RGB, mgl64.Vec3{1, 0, 0}, 1e-6) {
		t.Errorf("RGB = %v, expected red", out.RGB)
	}
	if math.Abs(out.Disparity-1) > 1e-9 {
		t.Errorf("Disparity = %v, expected ~1", out.Disparity)
	}
}

func TestCompositeRayConstantDensity(t *testing.T) {
	// Unit density over unit intervals: alpha = 1 - 1/e per interval,
	// weights decay geometrically, and the sentinel interval behind the
	// last sample absorbs the remaining (1-alpha)^3.
	raw := constRaw(4, mgl64.Vec3{0, 0, 0}, 1)
	zvals := []float64{0, 1, 2, 3}

	out := CompositeRay(raw, zvals, mgl64.Vec3{0, 0, 1}, 0, false, nil)

	a := 1 - math.Exp(-1)
	want := []float64{a, a * (1 - a), a * (1 - a) * (1 - a), (1 - a) * (1 - a) * (1 - a)}
	for i, w := range out.Weights {
		if math.Abs(w-want[i]) > 1e-6 {
			t.Errorf("weight %d = %v, expected %v", i, w, want[i])
		}
	}
	if math.Abs(out.Acc-1) > 1e-6 {
		t.Errorf("Acc = %v, expected ~1", out.Acc)
	}
	// Raw color 0 squashes to 0.5 per channel, so RGB ~= Acc/2.
	if !vecNear(out.RGB, mgl64.Vec3{0.5, 0.5, 0.5}, 1e-6) {
		t.Errorf("RGB = %v, expected mid gray", out.RGB)
	}
}

func TestCompositeRayVanishingLastSample(t *testing.T) {
	// Zero density on the final sample leaves the sentinel interval
	// empty: opacity saturates at 1 - e^-3, not 1.
	raw := constRaw(4, mgl64.Vec3{20, -20, -20}, 1)
	raw[3].Density = -10
	zvals := []float64{0, 1, 2, 3}

	out := CompositeRay(raw, zvals, mgl64.Vec3{0, 0, 1}, 0, false, nil)

	wantAcc := 1 - math.Exp(-3)
	if math.Abs(out.Acc-wantAcc) > 1e-6 {
		t.Errorf("Acc = %v, expected %v", out.Acc, wantAcc)
	}
	if w := out.Weights[3]; w != 0 {
		t.Errorf("last weight = %v, expected 0", w)
	}
	if math.Abs(out.RGB.X()-wantAcc) > 1e-5 {
		t.Errorf("red channel = %v, expected ~%v", out.RGB.X(), wantAcc)
	}
}

func TestCompositeRayWeightsFormProbability(t *testing.T) {
	raw := []core.FieldSample{
		{Color: mgl64.Vec3{1, 0, 0}, Density: 0.3},
		{Color: mgl64.Vec3{0, 1, 0}, Density: 2.5},
		{Color: mgl64.Vec3{0, 0, 1}, Density: -1},
		{Color: mgl64.Vec3{1, 1, 0}, Density: 0.7},
	}
	zvals := []float64{1, 1.5, 2.5, 4}

	out := CompositeRay(raw, zvals, mgl64.Vec3{0.2, -0.3, -1}, 0, false, nil)

	sum := 0.0
	for i, w := range out.Weights {
		if w < 0 {
			t.Errorf("weight %d = %v, negative", i, w)
		}
		sum += w
	}
	if sum > 1+1e-6 {
		t.Errorf("weight sum = %v, exceeds 1", sum)
	}
	if math.Abs(sum-out.Acc) > 1e-12 {
		t.Errorf("Acc = %v, expected weight sum %v", out.Acc, sum)
	}
	// Disparity is the reciprocal of weight-normalized depth.
	if got, want := out.Disparity, 1/(out.Depth/out.Acc); math.Abs(got-want) > 1e-12 {
		t.Errorf("Disparity = %v, expected %v", got, want)
	}
}

func TestCompositeRayDirectionScaling(t *testing.T) {
	// Doubling |Dir| doubles the spatial distance between samples, so
	// halved depth spacing gives identical opacity.
	raw := constRaw(3, mgl64.Vec3{0.2, 0.4, 0.6}, 1.3)

	unit := CompositeRay(raw, []float64{0, 1, 2}, mgl64.Vec3{0, 0, 1}, 0, false, nil)
	scaled := CompositeRay(raw, []float64{0, 0.5, 1}, mgl64.Vec3{0, 0, 2}, 0, false, nil)

	if !floatsNear(unit.Weights, scaled.Weights, 1e-12) {
		t.Errorf("weights %v and %v differ under direction scaling", unit.Weights, scaled.Weights)
	}
	if math.Abs(unit.Acc-scaled.Acc) > 1e-12 {
		t.Errorf("Acc %v and %v differ under direction scaling", unit.Acc, scaled.Acc)
	}
}

func TestCompositeRayDensityNoise(t *testing.T) {
	raw := constRaw(4, mgl64.Vec3{0, 0, 0}, 1)
	zvals := []float64{0, 1, 2, 3}
	dir := mgl64.Vec3{0, 0, 1}

	a := CompositeRay(raw, zvals, dir, 1.0, false, core.NewSeededSampler(7, 0))
	b := CompositeRay(raw, zvals, dir, 1.0, false, core.NewSeededSampler(7, 0))
	if a.Acc != b.Acc || !floatsNear(a.Weights, b.Weights, 0) {
		t.Error("same seed should reproduce noisy compositing exactly")
	}

	clean := CompositeRay(raw, zvals, dir, 0, false, nil)
	if a.Acc == clean.Acc {
		t.Error("density noise had no effect on opacity")
	}
}

func TestCompositeRayNoOpacityDisparity(t *testing.T) {
	out := CompositeRay(constRaw(3, mgl64.Vec3{}, -5), []float64{0, 1, 2}, mgl64.Vec3{0, 0, 1}, 0, false, nil)
	if !math.IsNaN(out.Disparity) {
		t.Errorf("Disparity = %v, expected NaN for zero opacity", out.Disparity)
	}
}
