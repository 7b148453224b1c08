package spatialimage

import "errors"

var (
	// ErrDimensionMismatch is returned when a plane does not hold exactly
	// width*height pixels.
	ErrDimensionMismatch = errors.New("plane size does not match volume dimensions")

	// ErrEmptyVolume is returned for volumes without planes or with a zero
	// width or height.
	ErrEmptyVolume = errors.New("volume has no voxels")
)
