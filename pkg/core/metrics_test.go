package core

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestMSE(t *testing.T) {
	red := mgl64.Vec3{1, 0, 0}
	black := mgl64.Vec3{0, 0, 0}

	tests := []struct {
		name     string
		rendered []mgl64.Vec3
		target   []mgl64.Vec3
		expected float64
	}{
		{"identical", []mgl64.Vec3{red, black}, []mgl64.Vec3{red, black}, 0},
		{"one channel off", []mgl64.Vec3{red}, []mgl64.Vec3{black}, 1.0 / 3.0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MSE(tt.rendered, tt.target)
			if math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("got %f, expected %f", got, tt.expected)
			}
		})
	}
}

func TestPSNR(t *testing.T) {
	if got := PSNR(0.01); math.Abs(got-20) > 1e-9 {
		t.Errorf("PSNR(0.01) = %f, expected 20", got)
	}
	if got := PSNR(1); math.Abs(got) > 1e-9 {
		t.Errorf("PSNR(1) = %f, expected 0", got)
	}
	if got := PSNR(0); !math.IsInf(got, 1) {
		t.Errorf("PSNR(0) = %f, expected +Inf", got)
	}
}

func TestLuminance(t *testing.T) {
	if got := Luminance(mgl64.Vec3{1, 1, 1}); math.Abs(got-1) > 1e-9 {
		t.Errorf("got %f, expected 1", got)
	}
	if got := Luminance(mgl64.Vec3{0, 1, 0}); math.Abs(got-0.587) > 1e-9 {
		t.Errorf("got %f, expected 0.587", got)
	}
}
