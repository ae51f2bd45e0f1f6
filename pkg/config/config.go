// Package config loads, validates and saves pipeline settings. A
// settings file only needs the keys it overrides; everything else
// keeps its default.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fieldray/fieldray/pkg/adaptive"
	"github.com/fieldray/fieldray/pkg/render"
)

// Settings holds every tunable of the render and adaptive pipelines.
type Settings struct {
	Render   RenderSettings   `yaml:"render"`
	Adaptive AdaptiveSettings `yaml:"adaptive"`
}

// RenderSettings covers scene bounds and the render pipeline knobs.
type RenderSettings struct {
	Near        float64 `yaml:"near"`
	Far         float64 `yaml:"far"`
	Samples     int     `yaml:"n_samples"`
	Importance  int     `yaml:"n_importance"`
	Perturb     float64 `yaml:"perturb"`
	RawNoiseStd float64 `yaml:"raw_noise_std"`
	WhiteBkgd   bool    `yaml:"white_bkgd"`
	LinDisp     bool    `yaml:"lindisp"`
	NDC         bool    `yaml:"ndc"`
	UseViewDirs bool    `yaml:"use_viewdirs"`
	Chunk       int     `yaml:"chunk"`
	NetChunk    int     `yaml:"netchunk"`
	Workers     int     `yaml:"workers"`
	Seed        int64   `yaml:"seed"`
}

// AdaptiveSettings covers the heat-map and selection policy knobs.
type AdaptiveSettings struct {
	SamplingType string  `yaml:"sampling_type"`
	DiffType     string  `yaml:"diff_type"`
	UpdateMethod string  `yaml:"update_method"`
	ProbMethod   string  `yaml:"prob_method"`
	Initialize   string  `yaml:"initialize"`
	Rays         int     `yaml:"n_rand"`
	Sigma        float64 `yaml:"sigma"`
	WeightExp    float64 `yaml:"weight_exponential"`
	PrecropIters int     `yaml:"precrop_iters"`
	PrecropFrac  float64 `yaml:"precrop_frac"`
	RetryBudget  int     `yaml:"retry_budget"`
}

// Default returns the baseline settings: an inward-facing scene with
// bounds [2, 6], 64 coarse samples, full stratified jitter and
// multinomial adaptive sampling over 4096 rays per step.
func Default() Settings {
	return Settings{
		Render: RenderSettings{
			Near:        2,
			Far:         6,
			Samples:     render.DefaultSamples,
			Importance:  0,
			Perturb:     1,
			UseViewDirs: true,
			Chunk:       render.DefaultChunk,
			NetChunk:    render.DefaultNetChunk,
		},
		Adaptive: AdaptiveSettings{
			SamplingType: "multinomial",
			DiffType:     "none",
			UpdateMethod: "none",
			ProbMethod:   "none",
			Initialize:   "none",
			Rays:         32 * 32 * 4,
			Sigma:        adaptive.DefaultSigma,
			WeightExp:    adaptive.DefaultWeightExp,
			PrecropFrac:  adaptive.DefaultPrecropFrac,
			RetryBudget:  adaptive.DefaultRetryBudget,
		},
	}
}

// Load reads a YAML settings file on top of the defaults and validates
// the result.
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("config %s: %w", path, err)
	}
	return s, nil
}

// Save writes the settings as YAML.
func (s Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks numeric ranges and that every named mode parses.
func (s Settings) Validate() error {
	if s.Render.Near >= s.Render.Far {
		return fmt.Errorf("near %v must be below far %v", s.Render.Near, s.Render.Far)
	}
	if s.Render.Samples < 1 {
		return fmt.Errorf("n_samples must be positive, have %d", s.Render.Samples)
	}
	if s.Render.Importance < 0 {
		return fmt.Errorf("n_importance must not be negative, have %d", s.Render.Importance)
	}
	if s.Render.Perturb < 0 || s.Render.Perturb > 1 {
		return fmt.Errorf("perturb must lie in [0, 1], have %v", s.Render.Perturb)
	}
	if s.Adaptive.Rays < 1 {
		return fmt.Errorf("n_rand must be positive, have %d", s.Adaptive.Rays)
	}
	if s.Adaptive.PrecropFrac <= 0 || s.Adaptive.PrecropFrac > 1 {
		return fmt.Errorf("precrop_frac must lie in (0, 1], have %v", s.Adaptive.PrecropFrac)
	}
	if _, err := s.AdaptiveConfig(); err != nil {
		return err
	}
	if _, err := s.InitMethod(); err != nil {
		return err
	}
	return nil
}

// RenderConfig converts the render settings for render.NewRenderer.
func (s Settings) RenderConfig() render.Config {
	return render.Config{
		Samples:     s.Render.Samples,
		Importance:  s.Render.Importance,
		Perturb:     s.Render.Perturb,
		RawNoise:    s.Render.RawNoiseStd,
		LinDisp:     s.Render.LinDisp,
		WhiteBkgd:   s.Render.WhiteBkgd,
		NDC:         s.Render.NDC,
		UseViewDirs: s.Render.UseViewDirs,
		Chunk:       s.Render.Chunk,
		NetChunk:    s.Render.NetChunk,
		Workers:     s.Render.Workers,
		Seed:        s.Render.Seed,
	}
}

// AdaptiveConfig converts the adaptive settings for adaptive.NewSampler.
func (s Settings) AdaptiveConfig() (adaptive.Config, error) {
	policy, err := adaptive.ParsePolicy(s.Adaptive.SamplingType)
	if err != nil {
		return adaptive.Config{}, err
	}
	metric, err := adaptive.ParseMetric(s.Adaptive.DiffType)
	if err != nil {
		return adaptive.Config{}, err
	}
	update, err := adaptive.ParseUpdateMethod(s.Adaptive.UpdateMethod)
	if err != nil {
		return adaptive.Config{}, err
	}
	prob, err := adaptive.ParseProbMethod(s.Adaptive.ProbMethod)
	if err != nil {
		return adaptive.Config{}, err
	}
	return adaptive.Config{
		Policy:       policy,
		Metric:       metric,
		Update:       update,
		Prob:         prob,
		WeightExp:    s.Adaptive.WeightExp,
		Sigma:        s.Adaptive.Sigma,
		PrecropIters: s.Adaptive.PrecropIters,
		PrecropFrac:  s.Adaptive.PrecropFrac,
		RetryBudget:  s.Adaptive.RetryBudget,
	}, nil
}

// InitMethod parses the configured map initialization mode.
func (s Settings) InitMethod() (adaptive.InitMethod, error) {
	return adaptive.ParseInitMethod(s.Adaptive.Initialize)
}
