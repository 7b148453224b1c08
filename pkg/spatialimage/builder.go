// Package spatialimage derives the geometry of a Spatial SBML model from a
// labeled voxel volume: the flattened sample buffer, the spatial dimension of
// every domain type and the voxel spacing in micrometers.
package spatialimage

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"spatialimg/internal/models"
	"spatialimg/pkg/logging"
)

// membraneMarker identifies membrane domain types by name
const membraneMarker = "membrane"

// Flatten copies the planes of a volume into a single buffer, plane after
// plane, each plane in row-major order. The planes are copied, never aliased.
func Flatten(vol *models.VoxelVolume) ([]byte, error) {
	if vol == nil || vol.Depth() == 0 || vol.Width < 1 || vol.Height < 1 {
		return nil, ErrEmptyVolume
	}

	size := vol.PlaneSize()
	raw := make([]byte, size*vol.Depth())
	for i, plane := range vol.Planes {
		if len(plane) != size {
			return nil, fmt.Errorf("plane %d has %d pixels, want %dx%d=%d: %w",
				i+1, len(plane), vol.Width, vol.Height, size, ErrDimensionMismatch)
		}
		copy(raw[i*size:(i+1)*size], plane)
	}
	return raw, nil
}

// Classify assigns a spatial dimension to every domain type in the table.
// Names containing "membrane" are surfaces in a stack and curves in a single
// plane; every other name is a volume in a stack and a region in a plane.
func Classify(labels models.LabelTable, depth int) models.DomainTypes {
	types := make(models.DomainTypes, len(labels))
	for name := range labels {
		membrane := strings.Contains(name, membraneMarker)
		switch {
		case membrane && depth > 1:
			types[name] = 2
		case membrane:
			types[name] = 1
		case depth > 1:
			types[name] = 3
		default:
			types[name] = 2
		}
	}
	return types
}

// NormalizeSpacing expresses the voxel spacing in micrometers. Only
// nanometers are converted; any other unit, including none, is taken to be
// micrometers already. Non-positive components are passed through unchanged.
func NormalizeSpacing(raw r3.Vec, unit string) models.VoxelSpacing {
	for _, c := range []struct {
		axis string
		v    float64
	}{{"x", raw.X}, {"y", raw.Y}, {"z", raw.Z}} {
		if c.v <= 0 {
			logging.Warningf("voxel spacing along %s is %g", c.axis, c.v)
		}
	}
	delta := raw
	if unit == "nm" {
		delta = r3.Vec{X: raw.X / 1000, Y: raw.Y / 1000, Z: raw.Z / 1000}
	}
	return models.VoxelSpacing{Delta: delta, Unit: models.CanonicalUnit}
}
