// Command fieldray renders volumetric fields and probes the adaptive
// ray sampler from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
	"github.com/urfave/cli"

	"github.com/fieldray/fieldray/pkg/adaptive"
	"github.com/fieldray/fieldray/pkg/config"
	"github.com/fieldray/fieldray/pkg/core"
	"github.com/fieldray/fieldray/pkg/field"
	"github.com/fieldray/fieldray/pkg/loaders"
	"github.com/fieldray/fieldray/pkg/render"
	"github.com/fieldray/fieldray/web/server"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "fieldray"
	app.Usage = "volumetric field renderer with adaptive ray sampling"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "YAML settings file; flags override file values",
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "enable debug logging",
		},
	}

	cameraFlags := []cli.Flag{
		cli.StringFlag{Name: "field", Value: "trio", Usage: "demo field to render"},
		cli.IntFlag{Name: "width", Value: 400, Usage: "image width in pixels"},
		cli.IntFlag{Name: "height", Value: 400, Usage: "image height in pixels"},
		cli.Float64Flag{Name: "fov", Value: 40, Usage: "horizontal field of view in degrees"},
		cli.Float64Flag{Name: "radius", Value: 4, Usage: "camera orbit distance from the origin"},
	}
	renderFlags := []cli.Flag{
		cli.IntFlag{Name: "samples", Usage: "coarse samples per ray"},
		cli.IntFlag{Name: "importance", Usage: "fine samples per ray"},
		cli.BoolFlag{Name: "white-bkgd", Usage: "composite onto a white background"},
		cli.Float64Flag{Name: "near", Usage: "near bound along each ray"},
		cli.Float64Flag{Name: "far", Usage: "far bound along each ray"},
		cli.Int64Flag{Name: "seed", Usage: "base sampler seed"},
	}

	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render a single view to PNG",
			Flags: append(append([]cli.Flag{
				cli.Float64Flag{Name: "azimuth", Value: 45, Usage: "orbit azimuth in degrees"},
				cli.Float64Flag{Name: "elevation", Value: 30, Usage: "orbit elevation in degrees"},
				cli.StringFlag{Name: "truth", Usage: "ground-truth image for MSE/PSNR reporting"},
				cli.StringFlag{Name: "out", Value: "render.png", Usage: "output PNG path"},
			}, cameraFlags...), renderFlags...),
			Action: renderCommand,
		},
		{
			Name:  "path",
			Usage: "render a spiral of poses to numbered PNGs plus metadata",
			Flags: append(append([]cli.Flag{
				cli.IntFlag{Name: "poses", Value: 40, Usage: "number of poses along the path"},
				cli.Float64Flag{Name: "rotations", Value: 2, Usage: "full turns around the scene"},
				cli.Float64Flag{Name: "max-elevation", Value: 30, Usage: "peak elevation in degrees"},
				cli.IntFlag{Name: "render-factor", Usage: "integer downscale for fast previews"},
				cli.StringFlag{Name: "out-dir", Value: "frames", Usage: "output directory"},
			}, cameraFlags...), renderFlags...),
			Action: pathCommand,
		},
		{
			Name:  "probe",
			Usage: "run a selection policy and report where it samples",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "policy", Usage: "uniform, multinomial, rejection or metropolis-hastings"},
				cli.IntFlag{Name: "width", Value: 64, Usage: "map width in pixels"},
				cli.IntFlag{Name: "height", Value: 64, Usage: "map height in pixels"},
				cli.IntFlag{Name: "rays", Value: 256, Usage: "pixels selected per step"},
				cli.IntFlag{Name: "steps", Value: 100, Usage: "selection steps to run"},
				cli.Float64Flag{Name: "sigma", Usage: "Gaussian walk stddev for metropolis-hastings"},
				cli.Float64Flag{Name: "weight-exp", Usage: "exponent scale for exponential probabilities"},
				cli.StringFlag{Name: "update", Usage: "heat update method: value or average"},
				cli.StringFlag{Name: "prob", Usage: "probability method: value or exponential"},
				cli.StringFlag{Name: "init", Usage: "map initialization: none, loss or edge"},
				cli.IntFlag{Name: "precrop-iters", Usage: "steps restricted to the center crop"},
				cli.StringFlag{Name: "truth", Usage: "image for edge initialization"},
				cli.StringFlag{Name: "out", Usage: "write the probability map as a grayscale PNG"},
				cli.Int64Flag{Name: "seed", Usage: "sampler seed"},
			},
			Action: probeCommand,
		},
		{
			Name:  "serve",
			Usage: "start the web server",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "port", Value: 8080, Usage: "port to serve on"},
			},
			Action: serveCommand,
		},
	}
	return app
}

func setupLogger(c *cli.Context) zerolog.Logger {
	level := zerolog.InfoLevel
	if c.GlobalBool("verbose") {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

func loadSettings(c *cli.Context) (config.Settings, error) {
	if path := c.GlobalString("config"); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

// applyRenderFlags lets explicit flags override the settings file.
func applyRenderFlags(c *cli.Context, s *config.Settings) {
	if c.IsSet("samples") {
		s.Render.Samples = c.Int("samples")
	}
	if c.IsSet("importance") {
		s.Render.Importance = c.Int("importance")
	}
	if c.IsSet("white-bkgd") {
		s.Render.WhiteBkgd = c.Bool("white-bkgd")
	}
	if c.IsSet("near") {
		s.Render.Near = c.Float64("near")
	}
	if c.IsSet("far") {
		s.Render.Far = c.Float64("far")
	}
	if c.IsSet("seed") {
		s.Render.Seed = c.Int64("seed")
	}
}

func applyProbeFlags(c *cli.Context, s *config.Settings) {
	if c.IsSet("policy") {
		s.Adaptive.SamplingType = c.String("policy")
	}
	if c.IsSet("sigma") {
		s.Adaptive.Sigma = c.Float64("sigma")
	}
	if c.IsSet("weight-exp") {
		s.Adaptive.WeightExp = c.Float64("weight-exp")
	}
	if c.IsSet("update") {
		s.Adaptive.UpdateMethod = c.String("update")
	}
	if c.IsSet("prob") {
		s.Adaptive.ProbMethod = c.String("prob")
	}
	if c.IsSet("init") {
		s.Adaptive.Initialize = c.String("init")
	}
	if c.IsSet("precrop-iters") {
		s.Adaptive.PrecropIters = c.Int("precrop-iters")
	}
	if c.IsSet("seed") {
		s.Render.Seed = c.Int64("seed")
	}
}

func cameraFromFlags(c *cli.Context, azimuth, elevation float64) *render.Camera {
	width := c.Int("width")
	height := c.Int("height")
	focal := focalLength(width, c.Float64("fov"))
	pose := render.OrbitPose(mgl64.Vec3{}, c.Float64("radius"), radians(azimuth), radians(elevation))
	return render.NewCamera(width, height, focal, pose)
}

func renderCommand(c *cli.Context) error {
	logger := setupLogger(c)
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	applyRenderFlags(c, &settings)

	f, err := field.New(c.String("field"))
	if err != nil {
		return err
	}

	cfg := settings.RenderConfig()
	cfg.Diagnostics = c.GlobalBool("verbose")
	r := render.NewRenderer(f, nil, cfg, logger)
	cam := cameraFromFlags(c, c.Float64("azimuth"), c.Float64("elevation"))

	start := time.Now()
	result, err := r.RenderCamera(context.Background(), cam, settings.Render.Near, settings.Render.Far)
	if err != nil {
		return err
	}
	logger.Info().
		Int("rays", result.Len()).
		Int("samples", cfg.Samples+cfg.Importance).
		Dur("elapsed", time.Since(start)).
		Msg("render complete")

	if truthPath := c.String("truth"); truthPath != "" {
		truth, err := loaders.LoadImage(truthPath)
		if err != nil {
			return err
		}
		if truth.Width != cam.Width || truth.Height != cam.Height {
			return fmt.Errorf("ground truth is %dx%d, render is %dx%d",
				truth.Width, truth.Height, cam.Width, cam.Height)
		}
		mse := core.MSE(result.RGB, truth.Pixels)
		logger.Info().
			Float64("mse", mse).
			Float64("psnr", core.PSNR(mse)).
			Msg("ground-truth comparison")
	}

	out := c.String("out")
	if err := writePNG(out, result.Image(cam.Width, cam.Height)); err != nil {
		return err
	}
	logger.Info().Str("file", out).Msg("render saved")
	return nil
}

func pathCommand(c *cli.Context) error {
	logger := setupLogger(c)
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	applyRenderFlags(c, &settings)

	f, err := field.New(c.String("field"))
	if err != nil {
		return err
	}

	cfg := settings.RenderConfig()
	r := render.NewRenderer(f, nil, cfg, logger)
	cam := cameraFromFlags(c, 0, 0)
	poses := render.SpiralPath(mgl64.Vec3{}, c.Float64("radius"),
		radians(c.Float64("max-elevation")), c.Float64("rotations"), c.Int("poses"))

	outDir := c.String("out-dir")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	start := time.Now()
	results, frameCam, err := r.RenderPath(context.Background(), cam, poses,
		c.Int("render-factor"), settings.Render.Near, settings.Render.Far)
	if err != nil {
		return err
	}
	logger.Info().
		Int("frames", len(results)).
		Dur("elapsed", time.Since(start)).
		Msg("path render complete")

	meta := newPathMetadata(frameCam)
	for i, res := range results {
		name := fmt.Sprintf("frame_%03d.png", i)
		if err := writePNG(filepath.Join(outDir, name), res.Image(frameCam.Width, frameCam.Height)); err != nil {
			return err
		}
		meta.Frames = append(meta.Frames, pathFrame{
			FilePath:        name,
			TransformMatrix: matrixRows(poses[i]),
		})
	}

	if err := writeTransforms(filepath.Join(outDir, "transforms.json"), meta); err != nil {
		return err
	}
	logger.Info().Str("dir", outDir).Msg("frames saved")
	return nil
}

func probeCommand(c *cli.Context) error {
	logger := setupLogger(c)
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	applyProbeFlags(c, &settings)

	acfg, err := settings.AdaptiveConfig()
	if err != nil {
		return err
	}
	initMethod, err := settings.InitMethod()
	if err != nil {
		return err
	}

	width := c.Int("width")
	height := c.Int("height")
	sampler := adaptive.NewSampler(1, height, width, acfg, logger)

	switch initMethod {
	case adaptive.InitEdge:
		truthPath := c.String("truth")
		if truthPath == "" {
			return fmt.Errorf("edge initialization needs a --truth image")
		}
		img, err := loaders.DecodeImage(truthPath)
		if err != nil {
			return err
		}
		// The maps take the image's resolution.
		bounds := img.Bounds()
		width, height = bounds.Dx(), bounds.Dy()
		sampler = adaptive.NewSampler(1, height, width, acfg, logger)
		if err := sampler.InitEdge(0, img); err != nil {
			return err
		}
	case adaptive.InitLoss:
		rendered, target := syntheticHotspot(width, height)
		if err := sampler.UpdateFull(0, rendered, target); err != nil {
			return err
		}
	}

	rng := core.NewSeededSampler(settings.Render.Seed, 0)
	rays := c.Int("rays")
	steps := c.Int("steps")
	selected := make([]int, width*height)

	start := time.Now()
	for step := 0; step < steps; step++ {
		pixels, err := sampler.Select(0, rays, step, rng)
		if err != nil {
			return err
		}
		for _, p := range pixels {
			selected[p.Y*width+p.X]++
		}
	}

	acceptance, err := sampler.Acceptance(0)
	if err != nil {
		return err
	}
	logger.Info().
		Str("policy", acfg.Policy.String()).
		Int("selections", rays*steps).
		Floats64("quadrant_share", quadrantShares(selected, width, height)).
		Float64("acceptance", acceptance).
		Dur("elapsed", time.Since(start)).
		Msg("probe complete")

	if out := c.String("out"); out != "" {
		prob, err := sampler.Prob(0)
		if err != nil {
			return err
		}
		if err := writePNG(out, probImage(prob, width, height)); err != nil {
			return err
		}
		logger.Info().Str("file", out).Msg("probability map saved")
	}
	return nil
}

func serveCommand(c *cli.Context) error {
	logger := setupLogger(c)
	return server.NewServer(c.Int("port"), logger).Start()
}

// pathFrame and pathMetadata mirror the transforms.json layout used by
// synthetic capture datasets.
type pathFrame struct {
	FilePath        string        `json:"file_path"`
	TransformMatrix [4][4]float64 `json:"transform_matrix"`
}

type pathMetadata struct {
	CameraAngleX float64     `json:"camera_angle_x"`
	FlX          float64     `json:"fl_x"`
	FlY          float64     `json:"fl_y"`
	Cx           float64     `json:"cx"`
	Cy           float64     `json:"cy"`
	W            int         `json:"w"`
	H            int         `json:"h"`
	Frames       []pathFrame `json:"frames"`
}

func newPathMetadata(cam *render.Camera) pathMetadata {
	fx := cam.K.At(0, 0)
	return pathMetadata{
		CameraAngleX: 2 * math.Atan(0.5*float64(cam.Width)/fx),
		FlX:          fx,
		FlY:          cam.K.At(1, 1),
		Cx:           cam.K.At(0, 2),
		Cy:           cam.K.At(1, 2),
		W:            cam.Width,
		H:            cam.Height,
	}
}

func writeTransforms(path string, meta pathMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transforms: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write transforms: %w", err)
	}
	return nil
}

// matrixRows converts a column-major mgl64 matrix to row-major nested
// arrays for JSON output.
func matrixRows(m mgl64.Mat4) [4][4]float64 {
	var rows [4][4]float64
	for r := 0; r < 4; r++ {
		for col := 0; col < 4; col++ {
			rows[r][col] = m.At(r, col)
		}
	}
	return rows
}

func writePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("encode PNG: %w", err)
	}
	return nil
}

// syntheticHotspot builds a rendered/target pair whose error peaks in a
// Gaussian blob at the image center, giving the policies structure to
// follow without a trained model.
func syntheticHotspot(width, height int) (rendered, target []mgl64.Vec3) {
	rendered = make([]mgl64.Vec3, width*height)
	target = make([]mgl64.Vec3, width*height)

	cx := 0.5 * float64(width-1)
	cy := 0.5 * float64(height-1)
	spread := float64(width) / 6

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx := float64(x) - cx
			dy := float64(y) - cy
			v := math.Exp(-(dx*dx + dy*dy) / (2 * spread * spread))
			rendered[y*width+x] = mgl64.Vec3{v, v, v}
		}
	}
	return rendered, target
}

// quadrantShares returns the fraction of selections landing in each
// image quadrant, in row-major quadrant order.
func quadrantShares(selected []int, width, height int) []float64 {
	var quads [4]float64
	total := 0.0
	for i, count := range selected {
		x := i % width
		y := i / width
		q := 0
		if x >= width/2 {
			q |= 1
		}
		if y >= height/2 {
			q |= 2
		}
		quads[q] += float64(count)
		total += float64(count)
	}

	shares := make([]float64, 4)
	if total == 0 {
		return shares
	}
	for i, q := range quads {
		shares[i] = q / total
	}
	return shares
}

// probImage renders a probability map as a grayscale image, normalized
// to the map's maximum.
func probImage(prob []float64, width, height int) *image.Gray {
	maxProb := 0.0
	for _, p := range prob {
		maxProb = max(maxProb, p)
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	if maxProb <= 0 {
		return img
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := prob[y*width+x] / maxProb
			img.SetGray(x, y, color.Gray{Y: uint8(math.Round(255 * v))})
		}
	}
	return img
}

func focalLength(width int, fovDegrees float64) float64 {
	return 0.5 * float64(width) / math.Tan(0.5*radians(fovDegrees))
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
