package adaptive

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/fieldray/fieldray/pkg/core"
)

// ratioEps guards the Metropolis acceptance ratio against a zero
// denominator.
const ratioEps = 1e-7

// Select picks n pixel coordinates from the image's grid for the given
// training step, according to the configured policy. During the warm-up
// window (iter < PrecropIters) every policy is overridden by a uniform
// draw from a centered crop, which also seeds the Metropolis chain. The
// returned coordinates index rays row-major (y*W + x).
func (s *Sampler) Select(img, n, iter int, rng core.Sampler) ([]Pixel, error) {
	if err := s.checkImage(img); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("selection size %d must be positive", n)
	}

	s.mu[img].Lock()
	defer s.mu[img].Unlock()

	if iter < s.cfg.PrecropIters {
		return s.selectPrecrop(img, n, rng)
	}
	switch s.cfg.Policy {
	case PolicyUniform:
		return s.selectUniform(img, n, rng)
	case PolicyMultinomial:
		return s.selectMultinomial(img, n, rng)
	case PolicyRejection:
		return s.selectRejection(img, n, rng)
	case PolicyMetropolis:
		return s.selectMetropolis(img, n, rng)
	}
	return nil, fmt.Errorf("unknown sampling policy %v", s.cfg.Policy)
}

// uniformDraw picks n distinct indices from [0, m) by a partial
// Fisher-Yates shuffle.
func uniformDraw(m, n int, rng core.Sampler) ([]int, error) {
	if n > m {
		return nil, fmt.Errorf("cannot draw %d pixels without replacement from %d", n, m)
	}
	idx := make([]int, m)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < n; i++ {
		j := i + core.Intn(rng, m-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:n], nil
}

func (s *Sampler) pixelAt(flat int) Pixel {
	return Pixel{X: flat % s.width, Y: flat / s.width}
}

func (s *Sampler) fullGridUniform(n int, rng core.Sampler) ([]Pixel, error) {
	flat, err := uniformDraw(s.height*s.width, n, rng)
	if err != nil {
		return nil, err
	}
	out := make([]Pixel, n)
	for i, f := range flat {
		out[i] = s.pixelAt(f)
	}
	return out, nil
}

// selectPrecrop draws uniformly from a centered window of fractional
// half-size PrecropFrac, biasing early training toward image centers.
func (s *Sampler) selectPrecrop(img, n int, rng core.Sampler) ([]Pixel, error) {
	dH := int(float64(s.height/2) * s.cfg.PrecropFrac)
	dW := int(float64(s.width/2) * s.cfg.PrecropFrac)

	y0, x0 := s.height/2-dH, s.width/2-dW
	ch, cw := 2*dH, 2*dW
	if ch < 1 || cw < 1 {
		y0, x0 = 0, 0
		ch, cw = s.height, s.width
	}

	flat, err := uniformDraw(ch*cw, n, rng)
	if err != nil {
		return nil, fmt.Errorf("center crop: %w", err)
	}
	out := make([]Pixel, n)
	for i, f := range flat {
		out[i] = Pixel{X: x0 + f%cw, Y: y0 + f/cw}
	}
	s.prev[img] = append([]Pixel(nil), out...)
	return out, nil
}

func (s *Sampler) selectUniform(img, n int, rng core.Sampler) ([]Pixel, error) {
	out, err := s.fullGridUniform(n, rng)
	if err != nil {
		return nil, err
	}
	s.prev[img] = append([]Pixel(nil), out...)
	return out, nil
}

// selectMultinomial draws without replacement proportionally to the
// probability map, using exponential race keys: each positive-mass
// pixel gets key -ln(1-u)/prob and the n smallest keys win.
func (s *Sampler) selectMultinomial(img, n int, rng core.Sampler) ([]Pixel, error) {
	type keyed struct {
		key  float64
		flat int
	}
	prob := s.prob[img]
	cand := make([]keyed, 0, len(prob))
	for i, w := range prob {
		if w > 0 {
			cand = append(cand, keyed{key: -math.Log1p(-rng.Get1D()) / w, flat: i})
		}
	}
	if len(cand) < n {
		s.logger.Warn().
			Int("image", img).
			Int("positive", len(cand)).
			Int("requested", n).
			Msg("multinomial selection short of mass, falling back to uniform")
		return s.fullGridUniform(n, rng)
	}

	sort.Slice(cand, func(i, j int) bool { return cand[i].key < cand[j].key })
	out := make([]Pixel, n)
	for i := 0; i < n; i++ {
		out[i] = s.pixelAt(cand[i].flat)
	}
	return out, nil
}

// selectRejection repeatedly thresholds the whole grid against the
// probability map, collecting accepted pixels until n are found. Each
// pixel's threshold is a uniform draw scaled by the total map mass.
// When one sweep over-collects, a random subset of the accepted pixels
// fills the remainder. Exhausting the retry budget falls back to a
// uniform draw so a step is always produced.
func (s *Sampler) selectRejection(img, n int, rng core.Sampler) ([]Pixel, error) {
	prob := s.prob[img]
	total := floats.Sum(prob)
	if total <= 0 {
		s.logger.Warn().Int("image", img).Msg("rejection sampling over empty map, falling back to uniform")
		return s.fullGridUniform(n, rng)
	}

	out := make([]Pixel, 0, n)
	var accepted []Pixel
	for attempt := 1; attempt <= s.cfg.RetryBudget && len(out) < n; attempt++ {
		accepted = accepted[:0]
		for y := 0; y < s.height; y++ {
			for x := 0; x < s.width; x++ {
				if rng.Get1D()*total < prob[y*s.width+x] {
					accepted = append(accepted, Pixel{X: x, Y: y})
				}
			}
		}

		remaining := n - len(out)
		if len(accepted) > remaining {
			pick, err := uniformDraw(len(accepted), remaining, rng)
			if err != nil {
				return nil, err
			}
			for _, k := range pick {
				out = append(out, accepted[k])
			}
		} else {
			out = append(out, accepted...)
		}
	}

	if len(out) < n {
		s.logger.Warn().
			Int("image", img).
			Int("collected", len(out)).
			Int("requested", n).
			Int("budget", s.cfg.RetryBudget).
			Msg("rejection budget exhausted, falling back to uniform")
		return s.fullGridUniform(n, rng)
	}
	return out, nil
}

// selectMetropolis proposes an integer Gaussian walk from the image's
// current pixel set and accepts each proposal independently when a
// uniform draw falls below the probability ratio new/old. The first
// call (or a selection-size change) seeds the chain uniformly.
func (s *Sampler) selectMetropolis(img, n int, rng core.Sampler) ([]Pixel, error) {
	prev := s.prev[img]
	if len(prev) != n {
		out, err := s.fullGridUniform(n, rng)
		if err != nil {
			return nil, err
		}
		s.prev[img] = append([]Pixel(nil), out...)
		s.acceptance[img] = 1
		return out, nil
	}

	prob := s.prob[img]
	out := make([]Pixel, n)
	accepted := 0
	for i, p := range prev {
		next := Pixel{
			X: wrapCoord(float64(p.X)+rng.GetGaussian()*s.cfg.Sigma, s.width-1),
			Y: wrapCoord(float64(p.Y)+rng.GetGaussian()*s.cfg.Sigma, s.height-1),
		}
		ratio := prob[next.Y*s.width+next.X] / (prob[p.Y*s.width+p.X] + ratioEps)
		if rng.Get1D() < ratio {
			out[i] = next
			accepted++
		} else {
			out[i] = p
		}
	}

	s.prev[img] = append([]Pixel(nil), out...)
	s.acceptance[img] = float64(accepted) / float64(n)
	s.logger.Debug().
		Int("image", img).
		Float64("acceptance", s.acceptance[img]).
		Msg("metropolis step")
	return out, nil
}

// wrapCoord wraps a proposed coordinate modulo m and rounds to the
// nearest integer, keeping it inside [0, m].
func wrapCoord(v float64, m int) int {
	if m <= 0 {
		return 0
	}
	w := math.Mod(v, float64(m))
	if w < 0 {
		w += float64(m)
	}
	return int(math.Round(w))
}
