package spatialimage

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/spatial/r3"

	"spatialimg/internal/models"
	"spatialimg/pkg/logging"
)

// Geometry is everything derived from one volume and label table.
// It is built once and never modified; callers must treat its maps and
// buffer as read-only.
type Geometry struct {
	// Version identifies the volume and label table the geometry was built from
	Version uint64

	// Raw is the flattened volume, plane after plane in row-major order
	Raw []byte

	// Width, Height and Depth are the dimensions of the volume in voxels
	Width, Height, Depth int

	// Labels is the label table the geometry was built from
	Labels models.LabelTable

	// DomainTypes holds the spatial dimension of each domain type
	DomainTypes models.DomainTypes

	// Spacing is the voxel spacing in micrometers
	Spacing models.VoxelSpacing

	// DomainNum holds the number of voxels of each domain type
	DomainNum map[string]int

	// InteriorPoints holds a point inside each domain type that has voxels,
	// in the units of Spacing
	InteriorPoints map[string]r3.Vec

	// Adjacents lists the domain types whose voxels share a face
	Adjacents []models.AdjacentPair
}

// Plane returns plane i (1-based) of the flattened volume.
// The returned slice shares storage with Raw.
func (g *Geometry) Plane(i int) []byte {
	size := g.Width * g.Height
	return g.Raw[(i-1)*size : i*size]
}

// SpatialImage keeps the geometry of a labeled image up to date with its
// volume and label table. Replacing either rebuilds the whole geometry.
// The zero value has no volume until SetVolume is called.
type SpatialImage struct {
	// Title is a display name for the image
	Title string

	mu         sync.RWMutex
	rawSpacing r3.Vec
	unit       string
	version    uint64
	geometry   *Geometry
}

// NewSpatialImage creates a spatial image from a labeled volume.
// rawSpacing and unit come from the image metadata; unit may be empty.
func NewSpatialImage(vol *models.VoxelVolume, labels models.LabelTable, rawSpacing r3.Vec, unit string) (*SpatialImage, error) {
	s := &SpatialImage{
		rawSpacing: rawSpacing,
		unit:       unit,
	}
	raw, err := Flatten(vol)
	if err != nil {
		return nil, fmt.Errorf("failed to flatten volume: %w", err)
	}
	s.geometry = s.build(raw, vol.Width, vol.Height, vol.Depth(), copyLabels(labels), 1)
	s.version = 1
	return s, nil
}

// Geometry returns the geometry of the current volume and label table,
// or nil before a volume has been set
func (s *SpatialImage) Geometry() *Geometry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.geometry
}

// Labels returns a copy of the label table
func (s *SpatialImage) Labels() models.LabelTable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.geometry == nil {
		return models.LabelTable{}
	}
	return copyLabels(s.geometry.Labels)
}

// Version returns the token of the current volume and label table
func (s *SpatialImage) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// SetVolume replaces the volume and rebuilds the geometry. On error the
// previous geometry is kept. On a zero SpatialImage the label table starts
// out empty.
func (s *SpatialImage) SetVolume(vol *models.VoxelVolume) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	labels := models.LabelTable{}
	if s.geometry != nil {
		labels = s.geometry.Labels
	}
	raw, err := Flatten(vol)
	if err != nil {
		return fmt.Errorf("failed to flatten volume: %w", err)
	}
	s.geometry = s.build(raw, vol.Width, vol.Height, vol.Depth(), labels, s.version+1)
	s.version++
	return nil
}

// SetLabels replaces the label table and rebuilds the geometry. The
// flattened buffer is immutable and shared with the new geometry.
func (s *SpatialImage) SetLabels(labels models.LabelTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.geometry
	if g == nil {
		return fmt.Errorf("no volume to label: %w", ErrEmptyVolume)
	}
	s.geometry = s.build(g.Raw, g.Width, g.Height, g.Depth, copyLabels(labels), s.version+1)
	s.version++
	return nil
}

func (s *SpatialImage) build(raw []byte, width, height, depth int, labels models.LabelTable, version uint64) *Geometry {
	g := &Geometry{
		Version:     version,
		Raw:         raw,
		Width:       width,
		Height:      height,
		Depth:       depth,
		Labels:      labels,
		DomainTypes: Classify(labels, depth),
		Spacing:     NormalizeSpacing(s.rawSpacing, s.unit),
	}

	c := takeCensus(raw, width, height, depth, labels, g.Spacing.Delta)
	g.DomainNum = c.counts
	g.InteriorPoints = c.interior
	g.Adjacents = c.adjacents

	logging.Debugf("built geometry v%d: %dx%dx%d voxels (%s), %d domain types",
		version, width, height, depth, humanize.Bytes(uint64(len(raw))), len(labels))
	return g
}

func copyLabels(labels models.LabelTable) models.LabelTable {
	c := make(models.LabelTable, len(labels))
	for name, value := range labels {
		c[name] = value
	}
	return c
}
