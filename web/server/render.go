package server

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"

	"github.com/fieldray/fieldray/pkg/field"
	"github.com/fieldray/fieldray/pkg/render"
)

// RenderRequest holds the parameters of one progressive render.
type RenderRequest struct {
	Field      string  `json:"field"`      // registered demo field name
	Width      int     `json:"width"`      // image width in pixels
	Height     int     `json:"height"`     // image height in pixels
	Samples    int     `json:"samples"`    // coarse samples per ray
	Importance int     `json:"importance"` // fine samples per ray
	Passes     int     `json:"passes"`     // progressive refinement passes
	FOV        float64 `json:"fov"`        // horizontal field of view, degrees
	Radius     float64 `json:"radius"`     // orbit distance from the origin
	Azimuth    float64 `json:"azimuth"`    // orbit azimuth, degrees
	Elevation  float64 `json:"elevation"`  // orbit elevation, degrees
	Near       float64 `json:"near"`       // near bound along each ray
	Far        float64 `json:"far"`        // far bound along each ray
	WhiteBkgd  bool    `json:"whiteBkgd"`  // composite onto white
	Seed       int64   `json:"seed"`       // base sampler seed
}

// PassUpdate is one completed progressive pass sent via SSE.
type PassUpdate struct {
	Pass        int    `json:"pass"`
	TotalPasses int    `json:"totalPasses"`
	Samples     int    `json:"samples"`
	Rays        int    `json:"rays"`
	ImageData   string `json:"imageData"` // base64 encoded PNG
	ElapsedMs   int64  `json:"elapsedMs"`
	IsComplete  bool   `json:"isComplete"`
}

// handleRender streams a progressive render over SSE: one "pass" event
// per refinement round, interleaved "console" events carrying the
// renderer's log, then a final "complete" event. The handler is the
// only writer on the connection.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	setSSEHeaders(w)
	ctx := r.Context()

	req, err := s.parseRenderRequest(r)
	if err != nil {
		sendSSEEvent(w, "error", fmt.Sprintf("invalid request: %v", err))
		return
	}

	f, err := field.New(req.Field)
	if err != nil {
		sendSSEEvent(w, "error", err.Error())
		return
	}

	// The render goroutine logs into a channel; log lines are forwarded
	// between pass events below.
	console := make(chan ConsoleMessage, 64)
	logger := zerolog.New(newConsoleWriter(console))

	cfg := render.Config{
		Samples:     req.Samples,
		Importance:  req.Importance,
		Perturb:     1,
		WhiteBkgd:   req.WhiteBkgd,
		UseViewDirs: true,
		Seed:        req.Seed,
	}
	renderer := render.NewRenderer(f, nil, cfg, logger)

	pose := render.OrbitPose(mgl64.Vec3{}, req.Radius, radians(req.Azimuth), radians(req.Elevation))
	focal := 0.5 * float64(req.Width) / math.Tan(0.5*radians(req.FOV))
	cam := render.NewCamera(req.Width, req.Height, focal, pose)

	start := time.Now()
	passChan, errChan := renderer.RenderProgressive(ctx, cam, req.Near, req.Far, render.ProgressiveConfig{
		Passes: req.Passes,
	})

	for {
		select {
		case msg := <-console:
			s.sendConsoleEvent(w, msg)

		case pass, ok := <-passChan:
			if !ok {
				s.drainConsole(w, console)
				if err := <-errChan; err != nil {
					sendSSEEvent(w, "error", fmt.Sprintf("render failed: %v", err))
					return
				}
				sendSSEEvent(w, "complete", "render complete")
				return
			}
			if err := s.sendPassUpdate(w, pass, req, start); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// sendPassUpdate encodes the pass image and sends one "pass" event.
func (s *Server) sendPassUpdate(w http.ResponseWriter, pass render.PassResult, req *RenderRequest, start time.Time) error {
	imageData, err := imageToBase64PNG(pass.Image)
	if err != nil {
		sendSSEEvent(w, "error", fmt.Sprintf("encode pass image: %v", err))
		return err
	}

	update := PassUpdate{
		Pass:        pass.Pass,
		TotalPasses: req.Passes,
		Samples:     pass.Samples,
		Rays:        req.Width * req.Height,
		ImageData:   imageData,
		ElapsedMs:   time.Since(start).Milliseconds(),
		IsComplete:  pass.IsLast,
	}
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return sendSSEEvent(w, "pass", string(data))
}

// sendConsoleEvent forwards one log line as a "console" event.
func (s *Server) sendConsoleEvent(w http.ResponseWriter, msg ConsoleMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	sendSSEEvent(w, "console", string(data))
}

// drainConsole forwards any log lines still buffered after the render.
func (s *Server) drainConsole(w http.ResponseWriter, console <-chan ConsoleMessage) {
	for {
		select {
		case msg := <-console:
			s.sendConsoleEvent(w, msg)
		default:
			return
		}
	}
}

// parseRenderRequest parses and validates the render query parameters.
func (s *Server) parseRenderRequest(r *http.Request) (*RenderRequest, error) {
	values := r.URL.Query()
	req := &RenderRequest{}

	req.Field = values.Get("field")
	if req.Field == "" {
		req.Field = "trio"
	}

	var err error
	if req.Width, err = parseIntParam(values, "width", 400, 16, 2000); err != nil {
		return nil, err
	}
	if req.Height, err = parseIntParam(values, "height", 400, 16, 2000); err != nil {
		return nil, err
	}
	if req.Samples, err = parseIntParam(values, "samples", 64, 1, 1024); err != nil {
		return nil, err
	}
	if req.Importance, err = parseIntParam(values, "importance", 0, 0, 1024); err != nil {
		return nil, err
	}
	if req.Passes, err = parseIntParam(values, "passes", 6, 1, 64); err != nil {
		return nil, err
	}
	if req.FOV, err = parseFloatParam(values, "fov", 40, 10, 120); err != nil {
		return nil, err
	}
	if req.Radius, err = parseFloatParam(values, "radius", 4, 0.5, 100); err != nil {
		return nil, err
	}
	if req.Azimuth, err = parseFloatParam(values, "azimuth", 45, -360, 360); err != nil {
		return nil, err
	}
	if req.Elevation, err = parseFloatParam(values, "elevation", 30, -89, 89); err != nil {
		return nil, err
	}
	if req.Near, err = parseFloatParam(values, "near", 2, 0.01, 1000); err != nil {
		return nil, err
	}
	if req.Far, err = parseFloatParam(values, "far", 6, 0.02, 10000); err != nil {
		return nil, err
	}
	if req.Near >= req.Far {
		return nil, fmt.Errorf("near %v must be below far %v", req.Near, req.Far)
	}
	if req.WhiteBkgd, err = parseBoolParam(values, "whiteBkgd", true); err != nil {
		return nil, err
	}
	seed, err := parseIntParam(values, "seed", 0, 0, 1<<30)
	if err != nil {
		return nil, err
	}
	req.Seed = int64(seed)

	return req, nil
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
