package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldray/fieldray/pkg/adaptive"
	"github.com/fieldray/fieldray/pkg/render"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultSettings(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())

	assert.Equal(t, 2.0, s.Render.Near)
	assert.Equal(t, 6.0, s.Render.Far)
	assert.Equal(t, render.DefaultSamples, s.Render.Samples)
	assert.Equal(t, render.DefaultChunk, s.Render.Chunk)
	assert.Equal(t, render.DefaultNetChunk, s.Render.NetChunk)
	assert.Equal(t, 1.0, s.Render.Perturb)
	assert.True(t, s.Render.UseViewDirs)
	assert.Equal(t, 32*32*4, s.Adaptive.Rays)

	cfg, err := s.AdaptiveConfig()
	require.NoError(t, err)
	assert.Equal(t, adaptive.PolicyMultinomial, cfg.Policy)
	assert.Equal(t, adaptive.MetricL2, cfg.Metric)
	assert.Equal(t, adaptive.UpdateValue, cfg.Update)
	assert.Equal(t, adaptive.ProbValue, cfg.Prob)
	assert.Equal(t, adaptive.DefaultSigma, cfg.Sigma)
	assert.Equal(t, adaptive.DefaultRetryBudget, cfg.RetryBudget)

	init, err := s.InitMethod()
	require.NoError(t, err)
	assert.Equal(t, adaptive.InitNone, init)
}

func TestRenderConfigConversion(t *testing.T) {
	s := Default()
	s.Render.Importance = 128
	s.Render.RawNoiseStd = 1
	s.Render.NDC = true
	s.Render.Workers = 3
	s.Render.Seed = 17

	cfg := s.RenderConfig()
	assert.Equal(t, s.Render.Samples, cfg.Samples)
	assert.Equal(t, 128, cfg.Importance)
	assert.Equal(t, 1.0, cfg.RawNoise)
	assert.True(t, cfg.NDC)
	assert.True(t, cfg.UseViewDirs)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, int64(17), cfg.Seed)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
render:
  n_importance: 128
  perturb: 0
  white_bkgd: true
adaptive:
  sampling_type: metropolis-hastings
  sigma: 0.5
`)
	s, err := Load(path)
	require.NoError(t, err)

	// Overridden keys take the file values, including explicit zeros.
	assert.Equal(t, 128, s.Render.Importance)
	assert.Equal(t, 0.0, s.Render.Perturb)
	assert.True(t, s.Render.WhiteBkgd)
	assert.Equal(t, "metropolis-hastings", s.Adaptive.SamplingType)
	assert.Equal(t, 0.5, s.Adaptive.Sigma)

	// Untouched keys keep their defaults.
	assert.Equal(t, render.DefaultSamples, s.Render.Samples)
	assert.Equal(t, 2.0, s.Render.Near)
	assert.Equal(t, 32*32*4, s.Adaptive.Rays)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "render: [not, a, mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"near beyond far", "render:\n  near: 7\n"},
		{"unknown policy", "adaptive:\n  sampling_type: gibbs\n"},
		{"unknown init", "adaptive:\n  initialize: oracle\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero samples", func(s *Settings) { s.Render.Samples = 0 }},
		{"negative importance", func(s *Settings) { s.Render.Importance = -1 }},
		{"perturb above one", func(s *Settings) { s.Render.Perturb = 1.5 }},
		{"zero rays", func(s *Settings) { s.Adaptive.Rays = 0 }},
		{"zero precrop fraction", func(s *Settings) { s.Adaptive.PrecropFrac = 0 }},
		{"precrop fraction above one", func(s *Settings) { s.Adaptive.PrecropFrac = 1.5 }},
		{"unknown metric", func(s *Settings) { s.Adaptive.DiffType = "linf" }},
		{"unknown update method", func(s *Settings) { s.Adaptive.UpdateMethod = "median" }},
		{"unknown prob method", func(s *Settings) { s.Adaptive.ProbMethod = "softmax" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	s := Default()
	s.Render.Importance = 64
	s.Render.NDC = true
	s.Render.Seed = 99
	s.Adaptive.SamplingType = "rejection"
	s.Adaptive.UpdateMethod = "average"
	s.Adaptive.ProbMethod = "exponential"
	s.Adaptive.PrecropIters = 500

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestAdaptiveConfigParsesModes(t *testing.T) {
	s := Default()
	s.Adaptive.DiffType = "l1"
	s.Adaptive.UpdateMethod = "average"
	s.Adaptive.ProbMethod = "exponential"
	s.Adaptive.Initialize = "edge"

	cfg, err := s.AdaptiveConfig()
	require.NoError(t, err)
	assert.Equal(t, adaptive.MetricL1, cfg.Metric)
	assert.Equal(t, adaptive.UpdateAverage, cfg.Update)
	assert.Equal(t, adaptive.ProbExponential, cfg.Prob)

	init, err := s.InitMethod()
	require.NoError(t, err)
	assert.Equal(t, adaptive.InitEdge, init)
}
