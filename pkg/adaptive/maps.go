package adaptive

import (
	"fmt"
	"image"
	"sync"

	"github.com/anthonynsimon/bild/effect"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"

	"github.com/fieldray/fieldray/pkg/core"
)

// Default values for the adaptive sampling knobs.
const (
	DefaultSigma       = 2.0
	DefaultWeightExp   = 1.0
	DefaultPrecropFrac = 0.5
	DefaultRetryBudget = 1000
)

// edgeFloor keeps non-edge pixels reachable after edge initialization.
const edgeFloor = 0.01

// Config holds the adaptive sampling parameters for one training run.
type Config struct {
	Policy       Policy
	Metric       Metric
	Update       UpdateMethod
	Prob         ProbMethod
	WeightExp    float64 // exponent scale for ProbExponential
	Sigma        float64 // Gaussian walk stddev for PolicyMetropolis
	PrecropIters int     // steps restricted to the center crop
	PrecropFrac  float64 // fractional half-size of the center crop
	RetryBudget  int     // rejection attempts before uniform fallback
}

// withDefaults fills unset numeric knobs with the package defaults.
func (c Config) withDefaults() Config {
	if c.Sigma <= 0 {
		c.Sigma = DefaultSigma
	}
	if c.WeightExp == 0 {
		c.WeightExp = DefaultWeightExp
	}
	if c.PrecropFrac <= 0 {
		c.PrecropFrac = DefaultPrecropFrac
	}
	if c.RetryBudget <= 0 {
		c.RetryBudget = DefaultRetryBudget
	}
	return c
}

// Pixel is one selected coordinate: X indexes columns, Y rows.
type Pixel struct {
	X int
	Y int
}

// Sampler owns the heat, count and probability maps for a set of
// training images, plus the Metropolis-Hastings chain state. All images
// share one resolution. Methods on different images may run
// concurrently; per-image state is guarded by a per-image mutex.
type Sampler struct {
	cfg    Config
	width  int
	height int
	logger zerolog.Logger

	mu         []sync.Mutex
	heat       [][]float64
	count      [][]float64
	prob       [][]float64
	prev       [][]Pixel
	acceptance []float64
}

// NewSampler creates maps for numImages images of height x width
// pixels: heat and count start at zero, probability at one everywhere.
func NewSampler(numImages, height, width int, cfg Config, logger zerolog.Logger) *Sampler {
	s := &Sampler{
		cfg:        cfg.withDefaults(),
		width:      width,
		height:     height,
		logger:     logger,
		mu:         make([]sync.Mutex, numImages),
		heat:       make([][]float64, numImages),
		count:      make([][]float64, numImages),
		prob:       make([][]float64, numImages),
		prev:       make([][]Pixel, numImages),
		acceptance: make([]float64, numImages),
	}
	for img := range s.heat {
		s.heat[img] = make([]float64, height*width)
		s.count[img] = make([]float64, height*width)
		s.prob[img] = make([]float64, height*width)
		for i := range s.prob[img] {
			s.prob[img][i] = 1
		}
	}
	return s
}

// Config returns the sampler's effective configuration.
func (s *Sampler) Config() Config {
	return s.cfg
}

// Dims returns the per-image height and width.
func (s *Sampler) Dims() (height, width int) {
	return s.height, s.width
}

// NumImages returns how many images the sampler tracks.
func (s *Sampler) NumImages() int {
	return len(s.heat)
}

func (s *Sampler) checkImage(img int) error {
	if img < 0 || img >= len(s.heat) {
		return fmt.Errorf("image %d out of range [0, %d)", img, len(s.heat))
	}
	return nil
}

// Heat returns a copy of the image's accumulated error map, row-major.
func (s *Sampler) Heat(img int) ([]float64, error) {
	return s.snapshot(img, s.heat)
}

// Count returns a copy of the image's update count map, row-major.
func (s *Sampler) Count(img int) ([]float64, error) {
	return s.snapshot(img, s.count)
}

// Prob returns a copy of the image's probability map, row-major.
func (s *Sampler) Prob(img int) ([]float64, error) {
	return s.snapshot(img, s.prob)
}

func (s *Sampler) snapshot(img int, maps [][]float64) ([]float64, error) {
	if err := s.checkImage(img); err != nil {
		return nil, err
	}
	s.mu[img].Lock()
	defer s.mu[img].Unlock()
	out := make([]float64, len(maps[img]))
	copy(out, maps[img])
	return out, nil
}

// Acceptance returns the fraction of proposals accepted by the last
// Metropolis-Hastings step on the image (1 after chain seeding, 0
// before any step).
func (s *Sampler) Acceptance(img int) (float64, error) {
	if err := s.checkImage(img); err != nil {
		return 0, err
	}
	s.mu[img].Lock()
	defer s.mu[img].Unlock()
	return s.acceptance[img], nil
}

// InitEdge seeds the image's heat and probability maps from the edge
// magnitude of its ground-truth image, so early sampling concentrates
// on high-frequency regions. A small floor keeps flat regions
// reachable. Update counts are left at zero.
func (s *Sampler) InitEdge(img int, truth image.Image) error {
	if err := s.checkImage(img); err != nil {
		return err
	}
	bounds := truth.Bounds()
	if bounds.Dx() != s.width || bounds.Dy() != s.height {
		return fmt.Errorf("edge image is %dx%d, maps are %dx%d",
			bounds.Dx(), bounds.Dy(), s.width, s.height)
	}

	edges := effect.Sobel(truth)

	s.mu[img].Lock()
	defer s.mu[img].Unlock()
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			c := edges.RGBAAt(bounds.Min.X+x, bounds.Min.Y+y)
			v := core.Luminance(rgbTo01(c.R, c.G, c.B)) + edgeFloor
			i := y*s.width + x
			s.heat[img][i] = v
			s.prob[img][i] = v
		}
	}
	return nil
}

func rgbTo01(r, g, b uint8) mgl64.Vec3 {
	return mgl64.Vec3{float64(r) / 255, float64(g) / 255, float64(b) / 255}
}
