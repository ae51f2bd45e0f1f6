package core

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// FieldSample is the raw field output for one query point, before
// activation: the compositor squashes Color to [0,1] with a sigmoid and
// rectifies Density, not the field.
type FieldSample struct {
	Color   mgl64.Vec3
	Density float64
}

// RadianceField is the queryable scene representation. Query evaluates
// the field at each point; dirs is nil or holds one unit view direction
// per point. Implementations must return exactly one sample per point
// and be deterministic for fixed parameters.
type RadianceField interface {
	Query(points []mgl64.Vec3, dirs []mgl64.Vec3) ([]FieldSample, error)
}

// FieldFunc adapts a plain function to the RadianceField interface.
type FieldFunc func(points []mgl64.Vec3, dirs []mgl64.Vec3) ([]FieldSample, error)

// Query implements RadianceField.
func (f FieldFunc) Query(points []mgl64.Vec3, dirs []mgl64.Vec3) ([]FieldSample, error) {
	return f(points, dirs)
}

// ChunkedField bounds the peak size of any single field query by
// slicing point batches into groups of at most ChunkSize and
// concatenating the results in order. Slicing never changes the
// returned values, only peak memory.
type ChunkedField struct {
	Field     RadianceField
	ChunkSize int
}

// NewChunkedField wraps field so no underlying query sees more than
// chunkSize points. chunkSize <= 0 disables slicing.
func NewChunkedField(field RadianceField, chunkSize int) *ChunkedField {
	return &ChunkedField{Field: field, ChunkSize: chunkSize}
}

// Query implements RadianceField.
func (cf *ChunkedField) Query(points []mgl64.Vec3, dirs []mgl64.Vec3) ([]FieldSample, error) {
	if dirs != nil && len(dirs) != len(points) {
		return nil, fmt.Errorf("field query: %d directions for %d points", len(dirs), len(points))
	}
	if cf.ChunkSize <= 0 || len(points) <= cf.ChunkSize {
		return cf.queryChecked(points, dirs)
	}

	out := make([]FieldSample, 0, len(points))
	for start := 0; start < len(points); start += cf.ChunkSize {
		end := min(start+cf.ChunkSize, len(points))
		var dirChunk []mgl64.Vec3
		if dirs != nil {
			dirChunk = dirs[start:end]
		}
		samples, err := cf.queryChecked(points[start:end], dirChunk)
		if err != nil {
			return nil, err
		}
		out = append(out, samples...)
	}
	return out, nil
}

func (cf *ChunkedField) queryChecked(points, dirs []mgl64.Vec3) ([]FieldSample, error) {
	samples, err := cf.Field.Query(points, dirs)
	if err != nil {
		return nil, err
	}
	if len(samples) != len(points) {
		return nil, fmt.Errorf("field returned %d samples for %d points", len(samples), len(points))
	}
	return samples, nil
}
