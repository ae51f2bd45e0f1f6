package server

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/fieldray/fieldray/pkg/adaptive"
	"github.com/fieldray/fieldray/pkg/core"
)

// ProbeRequest holds the parameters of one selection-policy probe.
type ProbeRequest struct {
	Policy    string  `json:"policy"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Rays      int     `json:"rays"`  // pixels selected per step
	Steps     int     `json:"steps"` // selection steps to run
	Sigma     float64 `json:"sigma"`
	WeightExp float64 `json:"weightExp"`
	Prob      string  `json:"prob"` // probability method
	Seed      int64   `json:"seed"`
}

// ProbeResponse reports the maps and selection frequencies after
// running a policy against a synthetic error hotspot.
type ProbeResponse struct {
	Policy     string    `json:"policy"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Rays       int       `json:"rays"`
	Steps      int       `json:"steps"`
	Heat       []float64 `json:"heat"`       // row-major H*W
	Prob       []float64 `json:"prob"`       // row-major H*W
	Count      []float64 `json:"count"`      // row-major H*W
	Selected   []int     `json:"selected"`   // times each pixel was drawn
	Acceptance float64   `json:"acceptance"` // Metropolis-Hastings only
}

// handleProbe seeds a single-image sampler with a synthetic hotspot,
// runs the requested policy for a number of steps and returns the
// resulting maps and per-pixel selection frequencies.
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	req, err := s.parseProbeRequest(r)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	policy, err := adaptive.ParsePolicy(req.Policy)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	prob, err := adaptive.ParseProbMethod(req.Prob)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sampler := adaptive.NewSampler(1, req.Height, req.Width, adaptive.Config{
		Policy:    policy,
		Prob:      prob,
		Sigma:     req.Sigma,
		WeightExp: req.WeightExp,
	}, s.logger)

	rendered, target := syntheticMismatch(req.Width, req.Height)
	if err := sampler.UpdateFull(0, rendered, target); err != nil {
		sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rng := core.NewSeededSampler(req.Seed, 0)
	selected := make([]int, req.Width*req.Height)
	for step := 0; step < req.Steps; step++ {
		pixels, err := sampler.Select(0, req.Rays, step, rng)
		if err != nil {
			sendJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, p := range pixels {
			selected[p.Y*req.Width+p.X]++
		}
	}

	heat, _ := sampler.Heat(0)
	probMap, _ := sampler.Prob(0)
	count, _ := sampler.Count(0)
	acceptance, _ := sampler.Acceptance(0)

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ProbeResponse{
		Policy:     policy.String(),
		Width:      req.Width,
		Height:     req.Height,
		Rays:       req.Rays,
		Steps:      req.Steps,
		Heat:       heat,
		Prob:       probMap,
		Count:      count,
		Selected:   selected,
		Acceptance: acceptance,
	})
}

// parseProbeRequest parses and validates the probe query parameters.
func (s *Server) parseProbeRequest(r *http.Request) (*ProbeRequest, error) {
	values := r.URL.Query()
	req := &ProbeRequest{}

	req.Policy = values.Get("policy")
	if req.Policy == "" {
		req.Policy = "multinomial"
	}
	req.Prob = values.Get("prob")

	var err error
	if req.Width, err = parseIntParam(values, "width", 64, 4, 512); err != nil {
		return nil, err
	}
	if req.Height, err = parseIntParam(values, "height", 64, 4, 512); err != nil {
		return nil, err
	}
	if req.Rays, err = parseIntParam(values, "rays", 128, 1, 65536); err != nil {
		return nil, err
	}
	if req.Steps, err = parseIntParam(values, "steps", 50, 1, 10000); err != nil {
		return nil, err
	}
	if req.Sigma, err = parseFloatParam(values, "sigma", adaptive.DefaultSigma, 0.1, 100); err != nil {
		return nil, err
	}
	if req.WeightExp, err = parseFloatParam(values, "weightExp", adaptive.DefaultWeightExp, 0.01, 100); err != nil {
		return nil, err
	}
	seed, err := parseIntParam(values, "seed", 0, 0, 1<<30)
	if err != nil {
		return nil, err
	}
	req.Seed = int64(seed)

	return req, nil
}

// syntheticMismatch builds a rendered/target pair whose error forms a
// Gaussian hotspot off the image center, giving every policy visible
// structure to follow.
func syntheticMismatch(width, height int) (rendered, target []mgl64.Vec3) {
	rendered = make([]mgl64.Vec3, width*height)
	target = make([]mgl64.Vec3, width*height)

	cx := 0.65 * float64(width)
	cy := 0.35 * float64(height)
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
