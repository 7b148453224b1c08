package spatialimage

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"spatialimg/internal/models"
)

// census holds what two passes over the flattened buffer learn about
// each domain type.
type census struct {
	counts    map[string]int
	interior  map[string]r3.Vec
	adjacents []models.AdjacentPair
}

// valueIndex maps every pixel value to the domain type it marks. When two
// names share a value the lexically smallest one wins.
func valueIndex(labels models.LabelTable) [256]string {
	var index [256]string
	names := labels.Names()
	for i := len(names) - 1; i >= 0; i-- {
		index[labels[names[i]]] = names[i]
	}
	return index
}

// takeCensus counts the voxels of every domain type, finds an interior point
// for each and lists the domain types that touch along a face. Memory use
// does not depend on the size of the volume.
func takeCensus(raw []byte, width, height, depth int, labels models.LabelTable, delta r3.Vec) census {
	index := valueIndex(labels)
	planeSize := width * height

	// First pass: voxel counts, coordinate sums and face contacts per pixel value
	var (
		counts [256]int
		sums   [256]r3.Vec
	)
	touching := make(map[models.AdjacentPair]struct{})
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := z*planeSize + y*width + x
				v := raw[i]
				name := index[v]
				if name == "" {
					continue
				}
				counts[v]++
				sums[v].X += float64(x)
				sums[v].Y += float64(y)
				sums[v].Z += float64(z)

				if x+1 < width {
					addAdjacent(touching, name, index[raw[i+1]])
				}
				if y+1 < height {
					addAdjacent(touching, name, index[raw[i+width]])
				}
				if z+1 < depth {
					addAdjacent(touching, name, index[raw[i+planeSize]])
				}
			}
		}
	}

	// Second pass: the voxel nearest the centroid lies inside the domain even
	// when the centroid does not. The first voxel in buffer order wins ties.
	var (
		centroids [256]r3.Vec
		nearest   [256]r3.Vec
		best      [256]float64
	)
	for v := range counts {
		best[v] = math.Inf(1)
		if counts[v] > 0 {
			centroids[v] = r3.Scale(1/float64(counts[v]), sums[v])
		}
	}
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v := raw[z*planeSize+y*width+x]
				if index[v] == "" {
					continue
				}
				p := r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)}
				if d := r3.Norm2(r3.Sub(p, centroids[v])); d < best[v] {
					best[v] = d
					nearest[v] = p
				}
			}
		}
	}

	c := census{
		counts:   make(map[string]int, len(labels)),
		interior: make(map[string]r3.Vec, len(labels)),
	}
	for _, name := range labels.Names() {
		c.counts[name] = 0
	}
	for v := range counts {
		name := index[v]
		if name == "" || counts[v] == 0 {
			continue
		}
		c.counts[name] = counts[v]
		p := nearest[v]
		c.interior[name] = r3.Vec{X: p.X * delta.X, Y: p.Y * delta.Y, Z: p.Z * delta.Z}
	}

	c.adjacents = make([]models.AdjacentPair, 0, len(touching))
	for pair := range touching {
		c.adjacents = append(c.adjacents, pair)
	}
	sort.Slice(c.adjacents, func(i, j int) bool {
		if c.adjacents[i].A != c.adjacents[j].A {
			return c.adjacents[i].A < c.adjacents[j].A
		}
		return c.adjacents[i].B < c.adjacents[j].B
	})
	return c
}

func addAdjacent(set map[models.AdjacentPair]struct{}, a, b string) {
	if b == "" || a == b {
		return
	}
	if b < a {
		a, b = b, a
	}
	set[models.AdjacentPair{A: a, B: b}] = struct{}{}
}
