package adaptive

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// pixelError measures the color difference under the configured metric,
// averaged over the three channels.
func (s *Sampler) pixelError(rendered, target mgl64.Vec3) float64 {
	d := rendered.Sub(target)
	if s.cfg.Metric == MetricL1 {
		return (math.Abs(d.X()) + math.Abs(d.Y()) + math.Abs(d.Z())) / 3
	}
	return d.Dot(d) / 3
}

// Update folds one training step's errors into the image's maps: for
// each touched pixel, heat accumulates the error, the count increments,
// and the probability map entry is rederived under the configured
// update and probability methods. Untouched pixels keep their values.
// rendered and target must each hold one color per pixel.
func (s *Sampler) Update(img int, pixels []Pixel, rendered, target []mgl64.Vec3) error {
	if err := s.checkImage(img); err != nil {
		return err
	}
	if len(rendered) != len(pixels) || len(target) != len(pixels) {
		return fmt.Errorf("update: %d pixels, %d rendered, %d target colors",
			len(pixels), len(rendered), len(target))
	}

	s.mu[img].Lock()
	defer s.mu[img].Unlock()
	for k, p := range pixels {
		if p.X < 0 || p.X >= s.width || p.Y < 0 || p.Y >= s.height {
			return fmt.Errorf("update: pixel (%d, %d) outside %dx%d image", p.X, p.Y, s.width, s.height)
		}
		s.updateLocked(img, p.Y*s.width+p.X, rendered[k], target[k])
	}
	return nil
}

// UpdateFull refreshes every pixel of the image's maps from a complete
// rendering, row-major. Used by the loss initialization mode and by
// periodic global sampling passes.
func (s *Sampler) UpdateFull(img int, rendered, target []mgl64.Vec3) error {
	if err := s.checkImage(img); err != nil {
		return err
	}
	if want := s.height * s.width; len(rendered) != want || len(target) != want {
		return fmt.Errorf("full update: %d rendered, %d target colors for %d pixels",
			len(rendered), len(target), want)
	}

	s.mu[img].Lock()
	defer s.mu[img].Unlock()
	for i := range rendered {
		s.updateLocked(img, i, rendered[i], target[i])
	}
	return nil
}

func (s *Sampler) updateLocked(img, i int, rendered, target mgl64.Vec3) {
	e := s.pixelError(rendered, target)
	s.heat[img][i] += e
	s.count[img][i]++

	v := e
	if s.cfg.Update == UpdateAverage {
		v = s.heat[img][i] / s.count[img][i]
	}
	if s.cfg.Prob == ProbExponential {
		v = math.Exp(s.cfg.WeightExp * v)
	}
	s.prob[img][i] = v
}
