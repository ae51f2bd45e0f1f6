package render

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"

	"github.com/fieldray/fieldray/pkg/core"
)

// waveField is a smooth analytic field: density and color vary with
// position, and color picks up a view-dependent term when directions
// are supplied. Deterministic, so renders can be compared exactly.
func waveField() core.FieldFunc {
	return func(points, dirs []mgl64.Vec3) ([]core.FieldSample, error) {
		out := make([]core.FieldSample, len(points))
		for i, p := range points {
			c := mgl64.Vec3{math.Sin(p.X()), math.Cos(p.Y()), math.Sin(p.Z())}
			if dirs != nil {
				c = c.Add(dirs[i].Mul(0.5))
			}
			out[i] = core.FieldSample{Color: c, Density: 0.5 + 0.4*math.Sin(p.Len())}
		}
		return out, nil
	}
}

func testCamera() *Camera {
	return NewCamera(10, 5, 4.0, mgl64.Translate3D(0, 0, 1))
}

func renderOnce(t *testing.T, cfg Config) *Result {
	t.Helper()
	r := NewRenderer(waveField(), nil, cfg, zerolog.Nop())
	res, err := r.RenderCamera(context.Background(), testCamera(), 2, 6)
	if err != nil {
		t.Fatalf("RenderCamera failed: %v", err)
	}
	return res
}

func requireEqualResults(t *testing.T, label string, a, b *Result) {
	t.Helper()
	if a.Len() != b.Len() {
		t.Fatalf("%s: lengths %d and %d differ", label, a.Len(), b.Len())
	}
	for i := 0; i < a.Len(); i++ {
		if a.RGB[i] != b.RGB[i] || a.Disparity[i] != b.Disparity[i] ||
			a.Acc[i] != b.Acc[i] || a.Depth[i] != b.Depth[i] {
			t.Fatalf("%s: ray %d differs: %+v vs %+v", label, i, a.RGB[i], b.RGB[i])
		}
		if a.RGB0 != nil && (a.RGB0[i] != b.RGB0[i] || a.DepthStd[i] != b.DepthStd[i]) {
			t.Fatalf("%s: ray %d coarse outputs differ", label, i)
		}
	}
}

func TestRenderChunkInvariance(t *testing.T) {
	base := Config{
		Samples:    8,
		Importance: 8,
		Perturb:    1,
		RawNoise:   1,
		Workers:    1,
		Seed:       9,
	}
	want := renderOnce(t, base)

	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"chunk of 7", func(c *Config) { c.Chunk = 7 }},
		{"chunk of 1", func(c *Config) { c.Chunk = 1 }},
		{"parallel workers", func(c *Config) { c.Chunk = 3; c.Workers = 4 }},
		{"net chunk of 5", func(c *Config) { c.NetChunk = 5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mod(&cfg)
			requireEqualResults(t, tt.name, want, renderOnce(t, cfg))
		})
	}
}

func TestRenderSeedDeterminism(t *testing.T) {
	cfg := Config{Samples: 8, Importance: 4, Perturb: 1, Workers: 1, Seed: 3}

	a := renderOnce(t, cfg)
	b := renderOnce(t, cfg)
	requireEqualResults(t, "same seed", a, b)

	cfg.Seed = 4
	c := renderOnce(t, cfg)
	same := true
	for i := 0; i < a.Len(); i++ {
		if a.RGB[i] != c.RGB[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical renders")
	}
}

func TestRenderHierarchicalOutputs(t *testing.T) {
	cfg := Config{Samples: 6, Importance: 4, Workers: 1, RetainRaw: true}
	res := renderOnce(t, cfg)

	if res.RGB0 == nil || res.Disparity0 == nil || res.Acc0 == nil || res.DepthStd == nil {
		t.Fatal("hierarchical render missing coarse outputs")
	}
	for i := 0; i < res.Len(); i++ {
		if res.DepthStd[i] < 0 {
			t.Errorf("ray %d: DepthStd = %v, negative", i, res.DepthStd[i])
		}
		if got := len(res.Weights[i]); got != cfg.Samples+cfg.Importance {
			t.Errorf("ray %d: %d weights, expected %d", i, got, cfg.Samples+cfg.Importance)
		}
		if got := len(res.Raw[i]); got != cfg.Samples+cfg.Importance {
			t.Errorf("ray %d: %d raw samples, expected %d", i, got, cfg.Samples+cfg.Importance)
		}
	}

	flat := renderOnce(t, Config{Samples: 6, Workers: 1})
	if flat.RGB0 != nil || flat.DepthStd != nil {
		t.Error("coarse-only render allocated hierarchical outputs")
	}
}

func TestRenderImportanceNeedsCoarseSamples(t *testing.T) {
	r := NewRenderer(waveField(), nil, Config{Samples: 2, Importance: 4, Workers: 1}, zerolog.Nop())
	if _, err := r.Render(context.Background(), testCamera().Rays(2, 6)); err == nil {
		t.Fatal("expected an error for Importance with fewer than 3 coarse samples")
	}
}

func TestRenderCameraShapeAndFiniteness(t *testing.T) {
	res := renderOnce(t, Config{Samples: 8, Workers: 1})
	if res.Len() != 50 {
		t.Errorf("Len = %d, expected 50", res.Len())
	}
	if n := res.CountInvalid(); n != 0 {
		t.Errorf("CountInvalid = %d, expected 0", n)
	}
}

func TestRenderPassesViewDirections(t *testing.T) {
	var sawDirs bool
	var badNorm float64
	field := core.FieldFunc(func(points, dirs []mgl64.Vec3) ([]core.FieldSample, error) {
		if dirs != nil {
			sawDirs = true
			for _, d := range dirs {
				if math.Abs(d.Len()-1) > 1e-9 {
					badNorm = d.Len()
				}
			}
		}
		return make([]core.FieldSample, len(points)), nil
	})

	r := NewRenderer(field, nil, Config{Samples: 4, Workers: 1, UseViewDirs: true}, zerolog.Nop())
	if _, err := r.RenderCamera(context.Background(), testCamera(), 2, 6); err != nil {
		t.Fatalf("RenderCamera failed: %v", err)
	}
	if !sawDirs {
		t.Error("field never received view directions")
	}
	if badNorm != 0 {
		t.Errorf("view direction norm = %v, expected 1", badNorm)
	}

	sawDirs = false
	r = NewRenderer(field, nil, Config{Samples: 4, Workers: 1}, zerolog.Nop())
	if _, err := r.RenderCamera(context.Background(), testCamera(), 2, 6); err != nil {
		t.Fatalf("RenderCamera failed: %v", err)
	}
	if sawDirs {
		t.Error("field received view directions without UseViewDirs")
	}
}

func TestPrepareRaysNDC(t *testing.T) {
	cam := NewCamera(8, 6, 3.0, mgl64.Ident4())
	r := NewRenderer(waveField(), nil, Config{Samples: 4, Workers: 1, NDC: true, UseViewDirs: true}, zerolog.Nop())

	rays := r.PrepareRays(cam.Rays(2, 6), cam)
	for i, ray := range rays {
		if ray.Near != 0 || ray.Far != 1 {
			t.Fatalf("ray %d bounds = (%v, %v), expected (0, 1)", i, ray.Near, ray.Far)
		}
		if math.Abs(ray.Origin.Z()-(-1)) > 1e-12 {
			t.Fatalf("ray %d origin z = %v, expected -1", i, ray.Origin.Z())
		}
		if !ray.HasViewDir {
			t.Fatalf("ray %d missing view direction", i)
		}
	}
}

func TestRenderStaticView(t *testing.T) {
	staticCam := testCamera()
	viewCam := NewCamera(10, 5, 4.0, LookAtPose(mgl64.Vec3{3, 0, 1}, mgl64.Vec3{}, mgl64.Vec3{0, 1, 0}))
	cfg := Config{Samples: 6, Workers: 1, UseViewDirs: true}

	r := NewRenderer(waveField(), nil, Config{Samples: 6, Workers: 1}, zerolog.Nop())
	if _, err := r.RenderStaticView(context.Background(), staticCam, viewCam, 2, 6); err == nil {
		t.Fatal("expected an error without UseViewDirs")
	}

	r = NewRenderer(waveField(), nil, cfg, zerolog.Nop())
	if _, err := r.RenderStaticView(context.Background(), staticCam, viewCam.Downscale(2), 2, 6); err == nil {
		t.Fatal("expected an error for mismatched camera sizes")
	}

	same, err := r.RenderStaticView(context.Background(), staticCam, staticCam, 2, 6)
	if err != nil {
		t.Fatalf("RenderStaticView failed: %v", err)
	}
	direct, err := r.RenderCamera(context.Background(), staticCam, 2, 6)
	if err != nil {
		t.Fatalf("RenderCamera failed: %v", err)
	}
	requireEqualResults(t, "identical cameras", same, direct)

	moved, err := r.RenderStaticView(context.Background(), staticCam, viewCam, 2, 6)
	if err != nil {
		t.Fatalf("RenderStaticView failed: %v", err)
	}
	differs := false
	for i := 0; i < moved.Len(); i++ {
		if moved.RGB[i] != direct.RGB[i] {
			differs = true
			break
		}
	}
	if !differs {
		t.Error("foreign view directions did not change the view-dependent render")
	}
}

func TestRenderPath(t *testing.T) {
	poses := []mgl64.Mat4{
		LookAtPose(mgl64.Vec3{0, 0, 4}, mgl64.Vec3{}, mgl64.Vec3{0, 1, 0}),
		LookAtPose(mgl64.Vec3{4, 0, 0}, mgl64.Vec3{}, mgl64.Vec3{0, 1, 0}),
	}
	r := NewRenderer(waveField(), nil, Config{Samples: 4, Workers: 1}, zerolog.Nop())

	results, cam, err := r.RenderPath(context.Background(), testCamera(), poses, 2, 2, 6)
	if err != nil {
		t.Fatalf("RenderPath failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, expected 2", len(results))
	}
	if cam.Width != 5 || cam.Height != 2 {
		t.Errorf("path camera = %dx%d, expected 5x2", cam.Width, cam.Height)
	}
	for i, res := range results {
		if res.Len() != cam.Width*cam.Height {
			t.Errorf("pose %d: Len = %d, expected %d", i, res.Len(), cam.Width*cam.Height)
		}
	}
}

func TestRenderContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRenderer(waveField(), nil, Config{Samples: 4, Workers: 1}, zerolog.Nop())
	if _, err := r.RenderCamera(ctx, testCamera(), 2, 6); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, expected context.Canceled", err)
	}
}

func TestRenderProgressive(t *testing.T) {
	cfg := Config{Samples: 6, Importance: 4, Workers: 1}
	r := NewRenderer(waveField(), nil, cfg, zerolog.Nop())
	cam := testCamera()

	passChan, errChan := r.RenderProgressive(context.Background(), cam, 2, 6, ProgressiveConfig{Passes: 3})

	var passes []PassResult
	for pass := range passChan {
		passes = append(passes, pass)
	}
	if err := <-errChan; err != nil {
		t.Fatalf("progressive render failed: %v", err)
	}

	if len(passes) != 3 {
		t.Fatalf("got %d passes, expected 3", len(passes))
	}
	wantSamples := []int{2, 4, 6}
	for i, pass := range passes {
		if pass.Pass != i+1 {
			t.Errorf("pass %d numbered %d", i, pass.Pass)
		}
		if pass.Samples != wantSamples[i] {
			t.Errorf("pass %d used %d samples, expected %d", i+1, pass.Samples, wantSamples[i])
		}
		if pass.IsLast != (i == 2) {
			t.Errorf("pass %d IsLast = %v", i+1, pass.IsLast)
		}
		if pass.Result.Len() != cam.Width*cam.Height {
			t.Errorf("pass %d: Len = %d, expected %d", i+1, pass.Result.Len(), cam.Width*cam.Height)
		}
		if pass.Image == nil || pass.Image.Bounds().Dx() != cam.Width {
			t.Errorf("pass %d image missing or mis-sized", i+1)
		}
		if hierarchical := pass.Result.RGB0 != nil; hierarchical != pass.IsLast {
			t.Errorf("pass %d hierarchical = %v, expected only on the final pass", i+1, hierarchical)
		}
	}
}

func TestRenderProgressiveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRenderer(waveField(), nil, Config{Samples: 4, Workers: 1}, zerolog.Nop())
	passChan, errChan := r.RenderProgressive(ctx, testCamera(), 2, 6, ProgressiveConfig{Passes: 3})

	for range passChan {
	}
	if err := <-errChan; !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, expected context.Canceled", err)
	}
}

func TestRenderDiagnosticsLogsInvalid(t *testing.T) {
	field := core.FieldFunc(func(points, dirs []mgl64.Vec3) ([]core.FieldSample, error) {
		out := make([]core.FieldSample, len(points))
		for i := range out {
			out[i] = core.FieldSample{Color: mgl64.Vec3{math.NaN(), 0, 0}, Density: 1}
		}
		return out, nil
	})

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r := NewRenderer(field, nil, Config{Samples: 4, Workers: 1, Diagnostics: true}, logger)

	if _, err := r.RenderCamera(context.Background(), testCamera(), 2, 6); err != nil {
		t.Fatalf("RenderCamera failed: %v", err)
	}
	if !strings.Contains(buf.String(), "non-finite") {
		t.Errorf("diagnostics log missing, got %q", buf.String())
	}
}

func TestRenderFieldErrorPropagates(t *testing.T) {
	boom := errors.New("field exploded")
	field := core.FieldFunc(func(points, dirs []mgl64.Vec3) ([]core.FieldSample, error) {
		return nil, boom
	})

	r := NewRenderer(field, nil, Config{Samples: 4, Workers: 1}, zerolog.Nop())
	if _, err := r.RenderCamera(context.Background(), testCamera(), 2, 6); !errors.Is(err, boom) {
		t.Errorf("error = %v, expected wrapped field error", err)
	}
}
