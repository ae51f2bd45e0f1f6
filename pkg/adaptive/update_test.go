package adaptive

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSampler(t *testing.T, h, w int, cfg Config) *Sampler {
	t.Helper()
	return NewSampler(1, h, w, cfg, zerolog.Nop())
}

func probAt(t *testing.T, s *Sampler, p Pixel) float64 {
	t.Helper()
	prob, err := s.Prob(0)
	require.NoError(t, err)
	_, w := s.Dims()
	return prob[p.Y*w+p.X]
}

func TestUpdateAccumulatesHeat(t *testing.T) {
	s := newTestSampler(t, 2, 2, Config{Metric: MetricL2})
	px := []Pixel{{X: 1, Y: 0}}

	// Squared error (0.3^2)/3 = 0.03 per update.
	rendered := []mgl64.Vec3{{0.3, 0, 0}}
	target := []mgl64.Vec3{{0, 0, 0}}
	require.NoError(t, s.Update(0, px, rendered, target))
	require.NoError(t, s.Update(0, px, rendered, target))

	heat, err := s.Heat(0)
	require.NoError(t, err)
	count, err := s.Count(0)
	require.NoError(t, err)

	assert.InDelta(t, 0.06, heat[1], 1e-12)
	assert.Equal(t, 2.0, count[1])
	assert.InDelta(t, 0.03, probAt(t, s, px[0]), 1e-12, "value method uses the latest error")

	// Untouched pixels keep their initial values.
	assert.Equal(t, 0.0, heat[0])
	assert.Equal(t, 0.0, count[0])
	assert.Equal(t, 1.0, probAt(t, s, Pixel{X: 0, Y: 0}))
}

func TestUpdateMetricL1(t *testing.T) {
	s := newTestSampler(t, 1, 1, Config{Metric: MetricL1})
	rendered := []mgl64.Vec3{{0.3, -0.3, 0}}
	target := []mgl64.Vec3{{0, 0, 0.3}}

	require.NoError(t, s.Update(0, []Pixel{{0, 0}}, rendered, target))

	// (|0.3| + |-0.3| + |-0.3|) / 3 = 0.3
	assert.InDelta(t, 0.3, probAt(t, s, Pixel{0, 0}), 1e-12)
}

func TestUpdateAverageMethod(t *testing.T) {
	s := newTestSampler(t, 1, 1, Config{Metric: MetricL2, Update: UpdateAverage})
	px := []Pixel{{0, 0}}
	target := []mgl64.Vec3{{0, 0, 0}}

	require.NoError(t, s.Update(0, px, []mgl64.Vec3{{0.3, 0, 0}}, target)) // error 0.03
	require.NoError(t, s.Update(0, px, []mgl64.Vec3{{0.6, 0, 0}}, target)) // error 0.12

	// Average of accumulated heat: (0.03 + 0.12) / 2.
	assert.InDelta(t, 0.075, probAt(t, s, px[0]), 1e-12)
}

func TestUpdateExponentialProb(t *testing.T) {
	s := newTestSampler(t, 1, 1, Config{Metric: MetricL2, Prob: ProbExponential, WeightExp: 2})
	px := []Pixel{{0, 0}}

	require.NoError(t, s.Update(0, px, []mgl64.Vec3{{0.3, 0, 0}}, []mgl64.Vec3{{0, 0, 0}}))

	assert.InDelta(t, math.Exp(2*0.03), probAt(t, s, px[0]), 1e-12)
}

func TestUpdateFull(t *testing.T) {
	s := newTestSampler(t, 2, 2, Config{Metric: MetricL2})
	rendered := []mgl64.Vec3{{0.3, 0, 0}, {0, 0, 0}, {0, 0, 0}, {0.6, 0, 0}}
	target := make([]mgl64.Vec3, 4)

	require.NoError(t, s.UpdateFull(0, rendered, target))

	count, err := s.Count(0)
	require.NoError(t, err)
	for i, c := range count {
		assert.Equal(t, 1.0, c, "pixel %d count", i)
	}
	assert.InDelta(t, 0.03, probAt(t, s, Pixel{0, 0}), 1e-12)
	assert.InDelta(t, 0.12, probAt(t, s, Pixel{1, 1}), 1e-12)

	err = s.UpdateFull(0, rendered[:2], target[:2])
	assert.Error(t, err, "short full update must be rejected")
}

func TestUpdateValidation(t *testing.T) {
	s := newTestSampler(t, 2, 2, Config{})

	err := s.Update(0, []Pixel{{0, 0}}, nil, nil)
	assert.Error(t, err, "length mismatch")

	err = s.Update(0, []Pixel{{5, 0}}, []mgl64.Vec3{{}}, []mgl64.Vec3{{}})
	assert.Error(t, err, "out-of-bounds pixel")

	err = s.Update(3, []Pixel{{0, 0}}, []mgl64.Vec3{{}}, []mgl64.Vec3{{}})
	assert.Error(t, err, "image index out of range")
}
