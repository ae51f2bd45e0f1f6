package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// MSE returns the mean squared color error between rendered and target
// pixels, averaged over pixels and channels. Both slices must have the
// same length.
func MSE(rendered, target []mgl64.Vec3) float64 {
	if len(rendered) == 0 {
		return 0
	}
	var sum float64
	for i, c := range rendered {
		d := c.Sub(target[i])
		sum += d.Dot(d)
	}
	return sum / float64(3*len(rendered))
}

// PSNR converts a mean squared error into peak signal-to-noise ratio in
// decibels, assuming a [0, 1] signal range.
func PSNR(mse float64) float64 {
	if mse <= 0 {
		return math.Inf(1)
	}
	return -10 * math.Log10(mse)
}

// Luminance returns the perceptual luminance of an RGB color.
// Uses standard luminance weights: 0.299*R + 0.587*G + 0.114*B
func Luminance(c mgl64.Vec3) float64 {
	return 0.299*c.X() + 0.587*c.Y() + 0.114*c.Z()
}
