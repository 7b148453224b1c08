package models

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// CanonicalUnit is the length unit all voxel spacing is expressed in
// once it has been normalized.
const CanonicalUnit = "um"

// VoxelVolume represents a labeled image stack as an ordered set of 2D planes
type VoxelVolume struct {
	// Planes holds the 8-bit pixel data of each plane in row-major order.
	// Planes[0] is the first plane of the stack.
	Planes [][]byte

	// Width is the width of every plane in pixels
	Width int

	// Height is the height of every plane in pixels
	Height int
}

// Depth returns the number of planes in the volume
func (v *VoxelVolume) Depth() int {
	return len(v.Planes)
}

// PlaneSize returns the number of pixels a single plane must hold
func (v *VoxelVolume) PlaneSize() int {
	return v.Width * v.Height
}

// LabelTable maps a domain type name to the pixel value that marks its voxels
type LabelTable map[string]uint8

// Names returns the domain type names in sorted order
func (t LabelTable) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DomainTypes maps a domain type name to its spatial dimension (1, 2 or 3)
type DomainTypes map[string]int

// VoxelSpacing is the physical size of a voxel along each axis
type VoxelSpacing struct {
	// Delta holds dx, dy and dz
	Delta r3.Vec

	// Unit is the length unit of Delta
	Unit string
}

// AdjacentPair records two domain types whose voxels touch.
// A is always lexically smaller than B.
type AdjacentPair struct {
	A, B string
}
