package export

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"spatialimg/pkg/spatialimage"
)

// DomainSummary describes one domain type of the geometry
type DomainSummary struct {
	Name             string    `yaml:"name"`
	SampledValue     uint8     `yaml:"sampledValue"`
	SpatialDimension int       `yaml:"spatialDimensions"`
	Voxels           int       `yaml:"voxels"`
	InteriorPoint    []float64 `yaml:"interiorPoint,omitempty"`
}

// Summary is the geometry metadata handed to the SBML writer
type Summary struct {
	Title     string          `yaml:"title,omitempty"`
	Width     int             `yaml:"width"`
	Height    int             `yaml:"height"`
	Depth     int             `yaml:"depth"`
	Unit      string          `yaml:"unit"`
	Spacing   []float64       `yaml:"spacing"`
	Domains   []DomainSummary `yaml:"domains"`
	Adjacents [][2]string     `yaml:"adjacents,omitempty"`
}

// NewSummary collects the metadata of a spatial image's current geometry
func NewSummary(img *spatialimage.SpatialImage) *Summary {
	g := img.Geometry()
	labels := g.Labels

	s := &Summary{
		Title:   img.Title,
		Width:   g.Width,
		Height:  g.Height,
		Depth:   g.Depth,
		Unit:    g.Spacing.Unit,
		Spacing: []float64{g.Spacing.Delta.X, g.Spacing.Delta.Y, g.Spacing.Delta.Z},
	}
	for _, name := range labels.Names() {
		d := DomainSummary{
			Name:             name,
			SampledValue:     labels[name],
			SpatialDimension: g.DomainTypes[name],
			Voxels:           g.DomainNum[name],
		}
		if p, ok := g.InteriorPoints[name]; ok {
			d.InteriorPoint = []float64{p.X, p.Y, p.Z}
		}
		s.Domains = append(s.Domains, d)
	}
	for _, pair := range g.Adjacents {
		s.Adjacents = append(s.Adjacents, [2]string{pair.A, pair.B})
	}
	return s
}

// WriteSummary writes the summary as YAML
func WriteSummary(w io.Writer, s *Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return enc.Close()
}
