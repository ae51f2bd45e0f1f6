// Package loaders reads ground-truth images for metric reporting and
// adaptive-map initialization.
package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"os"

	"github.com/go-gl/mathgl/mgl64"
)

// ImageData holds a decoded image as a row-major array of [0,1] colors,
// matching the renderer's result layout: pixel (x, y) sits at y*W+x.
type ImageData struct {
	Width  int
	Height int
	Pixels []mgl64.Vec3
}

// LoadImage reads a PNG or JPEG file into the row-major color layout.
func LoadImage(filename string) (*ImageData, error) {
	img, err := DecodeImage(filename)
	if err != nil {
		return nil, err
	}
	return FromImage(img), nil
}

// DecodeImage reads a PNG or JPEG file; the format is detected from the
// file header.
func DecodeImage(filename string) (image.Image, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", filename, err)
	}
	return img, nil
}

// FromImage converts a decoded image to the row-major color layout.
func FromImage(img image.Image) *ImageData {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	pixels := make([]mgl64.Vec3, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			// RGBA returns 16-bit channels; scale to [0, 1].
			pixels[y*width+x] = mgl64.Vec3{
				float64(r) / 65535.0,
				float64(g) / 65535.0,
				float64(b) / 65535.0,
			}
		}
	}

	return &ImageData{Width: width, Height: height, Pixels: pixels}
}

// At returns the color at pixel (x, y).
func (d *ImageData) At(x, y int) mgl64.Vec3 {
	return d.Pixels[y*d.Width+x]
}
