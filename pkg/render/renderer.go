package render

import (
	"context"
	"fmt"
	"image"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/fieldray/fieldray/pkg/core"
)

// Pipeline defaults.
const (
	DefaultChunk    = 1024 * 32
	DefaultNetChunk = 1024 * 64
	DefaultSamples  = 64
)

// Config controls the render pipeline.
type Config struct {
	Samples     int     // coarse samples per ray
	Importance  int     // additional fine samples per ray; 0 disables the second pass
	Perturb     float64 // stratified jitter amount in [0,1]; 0 is deterministic
	RawNoise    float64 // stddev of density regularization noise
	LinDisp     bool    // sample linearly in inverse depth
	WhiteBkgd   bool    // composite remaining transmittance as white
	NDC         bool    // remap camera rays to normalized device coordinates
	UseViewDirs bool    // hand unit view directions to the field
	RetainRaw   bool    // keep per-sample weights and raw field output
	Chunk       int     // rays per chunk; 0 uses DefaultChunk
	NetChunk    int     // points per field query; 0 uses DefaultNetChunk
	Workers     int     // parallel chunk workers; 1 forces sequential, 0 uses the CPU count
	Seed        int64   // base seed for per-ray samplers
	Diagnostics bool    // scan outputs for non-finite values and log
}

// withDefaults fills unset sizes with the package defaults.
func (c Config) withDefaults() Config {
	if c.Samples <= 0 {
		c.Samples = DefaultSamples
	}
	if c.Chunk <= 0 {
		c.Chunk = DefaultChunk
	}
	if c.NetChunk <= 0 {
		c.NetChunk = DefaultNetChunk
	}
	return c
}

// Renderer drives the two-pass volumetric pipeline over ray batches.
type Renderer struct {
	coarse core.RadianceField
	fine   core.RadianceField
	config Config
	logger zerolog.Logger
}

// NewRenderer creates a renderer over the given fields. fine may be
// nil, in which case the coarse field serves both passes. Point batches
// handed to either field are bounded by NetChunk.
func NewRenderer(coarse, fine core.RadianceField, config Config, logger zerolog.Logger) *Renderer {
	config = config.withDefaults()
	if fine == nil {
		fine = coarse
	}
	return &Renderer{
		coarse: core.NewChunkedField(coarse, config.NetChunk),
		fine:   core.NewChunkedField(fine, config.NetChunk),
		config: config,
		logger: logger,
	}
}

// Config returns the renderer's effective configuration.
func (r *Renderer) Config() Config {
	return r.config
}

// Render processes an ordered ray batch and returns per-ray outputs in
// the same order. Batches larger than Chunk are processed in slices;
// chunking is pure partitioning and never changes the numbers, only
// peak memory. With Workers != 1 chunks run in parallel: outputs land
// in disjoint rows of the shared result, and per-ray seeded samplers
// keep every value identical to the sequential path.
func (r *Renderer) Render(ctx context.Context, rays []core.Ray) (*Result, error) {
	if r.config.Importance > 0 && r.config.Samples < 3 {
		return nil, fmt.Errorf("hierarchical sampling needs at least 3 coarse samples, have %d", r.config.Samples)
	}

	result := NewResult(len(rays), r.config.Importance > 0, r.config.RetainRaw)
	chunks := splitChunks(len(rays), r.config.Chunk)

	if r.config.Workers == 1 || len(chunks) == 1 {
		for _, c := range chunks {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := r.renderChunk(rays, c, result); err != nil {
				return nil, err
			}
		}
	} else {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pool := newWorkerPool(r.config.Workers, len(chunks), func(t chunkTask) error {
			return r.renderChunk(rays, t.Range, result)
		})
		pool.start()
		for i, c := range chunks {
			pool.submit(chunkTask{ID: i, Range: c})
		}
		var firstErr error
		for range chunks {
			if res := pool.getResult(); res.Err != nil && firstErr == nil {
				firstErr = res.Err
			}
		}
		pool.stop()
		if firstErr != nil {
			return nil, firstErr
		}
	}

	if r.config.Diagnostics {
		if n := result.CountInvalid(); n > 0 {
			r.logger.Warn().Int("values", n).Msg("non-finite values in render output")
		}
	}
	return result, nil
}

// renderChunk runs the full pipeline for rays[c.Start:c.End], writing
// outputs into the shared result. Chunks never overlap, so the writes
// need no locking.
func (r *Renderer) renderChunk(rays []core.Ray, c chunkRange, result *Result) error {
	n := c.End - c.Start
	nc := r.config.Samples

	// One sampler per ray, keyed by the ray's global index, keeps every
	// draw independent of the chunk partition.
	samplers := make([]core.Sampler, n)
	zvals := make([][]float64, n)
	for i := 0; i < n; i++ {
		samplers[i] = core.NewSeededSampler(r.config.Seed, int64(c.Start+i))
		zvals[i] = SampleDepths(rays[c.Start+i], nc, r.config.LinDisp, r.config.Perturb, samplers[i])
	}

	raw, err := r.queryField(r.coarse, rays[c.Start:c.End], zvals)
	if err != nil {
		return err
	}

	outputs := make([]RayOutput, n)
	for i := 0; i < n; i++ {
		outputs[i] = CompositeRay(raw[i], zvals[i], rays[c.Start+i].Dir, r.config.RawNoise, r.config.WhiteBkgd, samplers[i])
	}

	if r.config.Importance > 0 {
		fineDepths := make([][]float64, n)
		for i := 0; i < n; i++ {
			// Resample between the coarse midpoints, weighting by the
			// interior coarse weights (first and last dropped).
			mids := make([]float64, nc-1)
			for j := range mids {
				mids[j] = 0.5 * (zvals[i][j] + zvals[i][j+1])
			}
			interior := outputs[i].Weights[1 : nc-1]
			fineDepths[i] = SamplePDF(mids, interior, r.config.Importance, r.config.Perturb == 0, samplers[i])

			merged := make([]float64, 0, nc+r.config.Importance)
			merged = append(merged, zvals[i]...)
			merged = append(merged, fineDepths[i]...)
			sort.Float64s(merged)
			zvals[i] = merged
		}

		raw, err = r.queryField(r.fine, rays[c.Start:c.End], zvals)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			fine := CompositeRay(raw[i], zvals[i], rays[c.Start+i].Dir, r.config.RawNoise, r.config.WhiteBkgd, samplers[i])
			fine.RGB0 = outputs[i].RGB
			fine.Disparity0 = outputs[i].Disparity
			fine.Acc0 = outputs[i].Acc
			fine.DepthStd = stat.PopStdDev(fineDepths[i], nil)
			outputs[i] = fine
		}
	}

	for i := 0; i < n; i++ {
		if r.config.RetainRaw {
			outputs[i].Raw = raw[i]
		}
		result.Set(c.Start+i, outputs[i])
	}
	return nil
}

// queryField flattens per-ray sample points into one batch, queries the
// field, and regroups the results per ray.
func (r *Renderer) queryField(field core.RadianceField, rays []core.Ray, zvals [][]float64) ([][]core.FieldSample, error) {
	total := 0
	for _, z := range zvals {
		total += len(z)
	}

	points := make([]mgl64.Vec3, 0, total)
	var dirs []mgl64.Vec3
	if r.config.UseViewDirs {
		dirs = make([]mgl64.Vec3, 0, total)
	}
	for i, ray := range rays {
		for _, z := range zvals[i] {
			points = append(points, ray.At(z))
		}
		if dirs != nil {
			for range zvals[i] {
				dirs = append(dirs, ray.ViewDir)
			}
		}
	}

	flat, err := field.Query(points, dirs)
	if err != nil {
		return nil, fmt.Errorf("field query: %w", err)
	}

	out := make([][]core.FieldSample, len(rays))
	idx := 0
	for i := range rays {
		out[i] = flat[idx : idx+len(zvals[i])]
		idx += len(zvals[i])
	}
	return out, nil
}

// PrepareRays derives unit view directions from the raw directions and
// applies the NDC remap when configured; cam supplies the remap's
// width, height and focal length. Camera entry points call this
// internally; it is exported for callers bringing their own rays.
func (r *Renderer) PrepareRays(rays []core.Ray, cam *Camera) []core.Ray {
	out := make([]core.Ray, len(rays))
	for i, ray := range rays {
		if r.config.UseViewDirs {
			ray = ray.WithViewDir(ray.Dir)
		}
		if r.config.NDC {
			ray = NDCRay(cam.Width, cam.Height, cam.Focal(), 1, ray)
		}
		out[i] = ray
	}
	return out
}

// RenderCamera renders every pixel of the camera in row-major order.
func (r *Renderer) RenderCamera(ctx context.Context, cam *Camera, near, far float64) (*Result, error) {
	rays := r.PrepareRays(cam.Rays(near, far), cam)
	return r.Render(ctx, rays)
}

// RenderStaticView renders the geometry of staticCam while taking view
// directions from viewCam, isolating the effect of view dependence.
// Requires UseViewDirs.
func (r *Renderer) RenderStaticView(ctx context.Context, staticCam, viewCam *Camera, near, far float64) (*Result, error) {
	if !r.config.UseViewDirs {
		return nil, fmt.Errorf("static view rendering requires view directions")
	}
	rays := staticCam.Rays(near, far)
	viewRays := viewCam.Rays(near, far)
	if len(rays) != len(viewRays) {
		return nil, fmt.Errorf("camera sizes differ: %d vs %d rays", len(rays), len(viewRays))
	}
	for i := range rays {
		rays[i] = rays[i].WithViewDir(viewRays[i].Dir)
		if r.config.NDC {
			rays[i] = NDCRay(staticCam.Width, staticCam.Height, staticCam.Focal(), 1, rays[i])
		}
	}
	return r.Render(ctx, rays)
}

// RenderPath renders the camera at each pose in sequence, optionally
// downscaled by factor for fast previews. Returns one result per pose
// together with the camera actually used (which carries the downscaled
// dimensions).
func (r *Renderer) RenderPath(ctx context.Context, cam *Camera, poses []mgl64.Mat4, factor int, near, far float64) ([]*Result, *Camera, error) {
	small := cam.Downscale(factor)
	results := make([]*Result, 0, len(poses))
	for i, pose := range poses {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		frame := &Camera{Width: small.Width, Height: small.Height, K: small.K, Pose: pose}
		start := time.Now()
		res, err := r.RenderCamera(ctx, frame, near, far)
		if err != nil {
			return nil, nil, fmt.Errorf("pose %d: %w", i, err)
		}
		r.logger.Debug().Int("pose", i).Dur("elapsed", time.Since(start)).Msg("path frame rendered")
		results = append(results, res)
	}
	return results, small, nil
}

// ProgressiveConfig controls progressive camera rendering.
type ProgressiveConfig struct {
	Passes int // number of refinement passes, >= 1
}

// PassResult is one completed progressive refinement round.
type PassResult struct {
	Pass    int
	Samples int
	Result  *Result
	Image   *image.RGBA
	IsLast  bool
}

// RenderProgressive renders the camera in rounds of increasing quality:
// early passes use a reduced coarse sample count and skip the
// hierarchical pass, the final pass runs the full configuration. Each
// completed round is delivered on the result channel; the error channel
// receives at most one error. Both channels close when rendering
// finishes or ctx is cancelled.
func (r *Renderer) RenderProgressive(ctx context.Context, cam *Camera, near, far float64, cfg ProgressiveConfig) (<-chan PassResult, <-chan error) {
	passes := max(cfg.Passes, 1)
	passChan := make(chan PassResult, 1)
	errChan := make(chan error, 1)

	go func() {
		defer close(passChan)
		defer close(errChan)

		for pass := 1; pass <= passes; pass++ {
			select {
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			default:
			}

			passCfg := r.config
			if pass < passes {
				passCfg.Samples = max(1, r.config.Samples*pass/passes)
				passCfg.Importance = 0
				passCfg.RetainRaw = false
			}
			passRenderer := &Renderer{coarse: r.coarse, fine: r.fine, config: passCfg, logger: r.logger}

			start := time.Now()
			res, err := passRenderer.RenderCamera(ctx, cam, near, far)
			if err != nil {
				errChan <- err
				return
			}
			r.logger.Info().
				Int("pass", pass).
				Int("samples", passCfg.Samples).
				Dur("elapsed", time.Since(start)).
				Msg("progressive pass complete")

			result := PassResult{
				Pass:    pass,
				Samples: passCfg.Samples,
				Result:  res,
				Image:   res.Image(cam.Width, cam.Height),
				IsLast:  pass == passes,
			}
			select {
			case passChan <- result:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
	}()

	return passChan, errChan
}
