package render

import (
	"image"
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/fieldray/fieldray/pkg/core"
)

// RayOutput is the composited result for a single ray.
type RayOutput struct {
	RGB       mgl64.Vec3
	Disparity float64
	Acc       float64
	Depth     float64
	Weights   []float64

	// Coarse-pass results, set when hierarchical sampling ran.
	RGB0       mgl64.Vec3
	Disparity0 float64
	Acc0       float64
	DepthStd   float64

	// Raw per-sample field output, retained only on request.
	Raw []core.FieldSample
}

// Result holds per-ray outputs for an ordered ray batch, one row per
// ray: row i of every field corresponds to input ray i.
type Result struct {
	RGB       []mgl64.Vec3
	Disparity []float64
	Acc       []float64
	Depth     []float64

	// Coarse-pass outputs and fine-depth spread, allocated only for
	// hierarchical renders.
	RGB0       []mgl64.Vec3
	Disparity0 []float64
	Acc0       []float64
	DepthStd   []float64

	// Per-sample weights and raw field output, allocated only when the
	// renderer retains raw data.
	Weights [][]float64
	Raw     [][]core.FieldSample
}

// NewResult allocates a result for n rays.
func NewResult(n int, hierarchical, retainRaw bool) *Result {
	r := &Result{
		RGB:       make([]mgl64.Vec3, n),
		Disparity: make([]float64, n),
		Acc:       make([]float64, n),
		Depth:     make([]float64, n),
	}
	if hierarchical {
		r.RGB0 = make([]mgl64.Vec3, n)
		r.Disparity0 = make([]float64, n)
		r.Acc0 = make([]float64, n)
		r.DepthStd = make([]float64, n)
	}
	if retainRaw {
		r.Weights = make([][]float64, n)
		r.Raw = make([][]core.FieldSample, n)
	}
	return r
}

// Len returns the number of rays in the result.
func (r *Result) Len() int {
	return len(r.RGB)
}

// Set writes one ray's output at row i. Concurrent callers must write
// disjoint rows.
func (r *Result) Set(i int, out RayOutput) {
	r.RGB[i] = out.RGB
	r.Disparity[i] = out.Disparity
	r.Acc[i] = out.Acc
	r.Depth[i] = out.Depth
	if r.RGB0 != nil {
		r.RGB0[i] = out.RGB0
		r.Disparity0[i] = out.Disparity0
		r.Acc0[i] = out.Acc0
		r.DepthStd[i] = out.DepthStd
	}
	if r.Weights != nil {
		r.Weights[i] = out.Weights
		r.Raw[i] = out.Raw
	}
}

// CountInvalid reports how many non-finite values appear in the color,
// disparity and opacity outputs.
func (r *Result) CountInvalid() int {
	invalid := 0
	for i := range r.RGB {
		for _, v := range [5]float64{
			r.RGB[i].X(), r.RGB[i].Y(), r.RGB[i].Z(),
			r.Disparity[i], r.Acc[i],
		} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				invalid++
			}
		}
	}
	return invalid
}

// Image converts the result's colors into an RGBA image of the given
// dimensions, assuming row-major rays. Values are clamped to [0,1].
func (r *Result) Image(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			if i >= len(r.RGB) {
				return img
			}
			img.SetRGBA(x, y, color.RGBA{
				R: to8(r.RGB[i].X()),
				G: to8(r.RGB[i].Y()),
				B: to8(r.RGB[i].Z()),
				A: 255,
			})
		}
	}
	return img
}

// DisparityImage renders the disparity channel as a grayscale RGBA
// image, normalized by the maximum finite disparity.
func (r *Result) DisparityImage(width, height int) *image.RGBA {
	maxDisp := 0.0
	for _, d := range r.Disparity {
		if !math.IsNaN(d) && !math.IsInf(d, 0) && d > maxDisp {
			maxDisp = d
		}
	}
	if maxDisp == 0 {
		maxDisp = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			if i >= len(r.Disparity) {
				return img
			}
			v := to8(r.Disparity[i] / maxDisp)
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func to8(v float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Min(math.Max(v, 0), 1)
	return uint8(v*255 + 0.5)
}
