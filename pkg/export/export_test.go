package export

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"spatialimg/internal/models"
	"spatialimg/pkg/spatialimage"
)

// createTestImage builds a spatial image with depth planes of 3x2 voxels
func createTestImage(t *testing.T, depth int) *spatialimage.SpatialImage {
	t.Helper()
	vol := &models.VoxelVolume{Width: 3, Height: 2}
	for z := 0; z < depth; z++ {
		vol.Planes = append(vol.Planes, []byte{1, 1, 2, 1, 2, byte(z)})
	}
	img, err := spatialimage.NewSpatialImage(vol, models.LabelTable{"cytosol": 1, "membrane": 2},
		r3.Vec{X: 250, Y: 250, Z: 1000}, "nm")
	if err != nil {
		t.Fatalf("NewSpatialImage failed: %v", err)
	}
	return img
}

func decodeTIFF(t *testing.T, path string) *image.Gray {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer file.Close()

	img, err := tiff.Decode(file)
	if err != nil {
		t.Fatalf("Failed to decode %s: %v", path, err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("Expected *image.Gray, got %T", img)
	}
	return gray
}

func TestSaveAsImageEmptyName(t *testing.T) {
	dir := t.TempDir()
	path, err := SaveAsImage(createTestImage(t, 1).Geometry(), dir, "")
	if err != nil || path != "" {
		t.Errorf("Expected no-op, got path %q err %v", path, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Expected no files, got %d", len(entries))
	}
}

func TestSaveAsImageSingle(t *testing.T) {
	g := createTestImage(t, 1).Geometry()
	path, err := SaveAsImage(g, t.TempDir(), "cell")
	if err != nil {
		t.Fatalf("SaveAsImage failed: %v", err)
	}
	if filepath.Base(path) != "cell.tiff" {
		t.Errorf("Expected cell.tiff, got %s", path)
	}

	img := decodeTIFF(t, path)
	if img.Bounds().Dx() != 3 || img.Bounds().Dy() != 2 {
		t.Errorf("Expected 3x2 image, got %v", img.Bounds())
	}
	if !bytes.Equal(img.Pix, g.Raw) {
		t.Errorf("Expected pixels %v, got %v", g.Raw, img.Pix)
	}
}

func TestSaveAsImageStack(t *testing.T) {
	g := createTestImage(t, 3).Geometry()
	path, err := SaveAsImage(g, filepath.Join(t.TempDir(), "out"), "cell")
	if err != nil {
		t.Fatalf("SaveAsImage failed: %v", err)
	}

	// The decoder reads the first page only
	img := decodeTIFF(t, path)
	if !bytes.Equal(img.Pix, g.Plane(1)) {
		t.Errorf("Expected first page %v, got %v", g.Plane(1), img.Pix)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	if !bytes.Contains(data, []byte("images=3\nslices=3\nunit=um\nspacing=1\n")) {
		t.Errorf("ImageJ description missing from stack")
	}

	// Walk the IFD chain and check every page points at its plane
	le := binary.LittleEndian
	off := le.Uint32(data[4:8])
	pages := 0
	for off != 0 {
		n := int(le.Uint16(data[off:]))
		for i := 0; i < n; i++ {
			entry := data[int(off)+2+12*i:]
			if le.Uint16(entry) == tagStripOffsets {
				start := le.Uint32(entry[8:])
				size := uint32(g.Width * g.Height)
				if !bytes.Equal(data[start:start+size], g.Plane(pages+1)) {
					t.Errorf("Page %d does not hold plane %d", pages, pages+1)
				}
			}
		}
		off = le.Uint32(data[int(off)+2+12*n:])
		pages++
	}
	if pages != 3 {
		t.Errorf("Expected 3 pages, got %d", pages)
	}
}

func TestStackLayout(t *testing.T) {
	// 3 planes of 3x2, an odd-length description
	l, err := newStackLayout(18, 7, 3)
	if err != nil {
		t.Fatalf("newStackLayout failed: %v", err)
	}
	expected := stackLayout{dataOff: 8, descOff: 26, ratOff: 34, ifdOff: 50, planeSize: 6}
	if l != expected {
		t.Errorf("Expected %+v, got %+v", expected, l)
	}
	if off := l.stripOffset(2); off != 20 {
		t.Errorf("Expected page 2 at 20, got %d", off)
	}

	// Offsets past 4 GiB cannot be written
	if _, err := newStackLayout(1<<32, 64, 2); !errors.Is(err, ErrStackTooLarge) {
		t.Errorf("Expected ErrStackTooLarge for 4 GiB of samples, got %v", err)
	}
	// The IFD chain alone can push the end of the file over the limit
	if _, err := newStackLayout(math.MaxUint32-200, 64, 1); !errors.Is(err, ErrStackTooLarge) {
		t.Errorf("Expected ErrStackTooLarge when the IFD does not fit, got %v", err)
	}
	if _, err := newStackLayout(10, 7, 3); err == nil {
		t.Error("Expected error for samples that do not split into planes, got nil")
	}
}

func TestRational(t *testing.T) {
	tests := []struct {
		v        float64
		num, den uint32
	}{
		{4, 4000000, 1000000},
		{0.5, 500000, 1000000},
		{math.Inf(1), 1, 1},
		{math.NaN(), 1, 1},
		{-2, 1, 1},
		{0, 1, 1},
		{1e12, math.MaxUint32, 1},
	}
	for _, tt := range tests {
		num, den := rational(tt.v)
		if num != tt.num || den != tt.den {
			t.Errorf("rational(%g): expected %d/%d, got %d/%d", tt.v, tt.num, tt.den, num, den)
		}
	}
}

func TestSampledField(t *testing.T) {
	g := createTestImage(t, 2).Geometry()

	field, err := NewSampledField(g, false)
	if err != nil {
		t.Fatalf("NewSampledField failed: %v", err)
	}
	if string(field.Samples) != "1 1 2 1 2 0 1 1 2 1 2 1" {
		t.Errorf("Unexpected samples %q", field.Samples)
	}
	if field.SamplesLength != 12 || field.Compression != CompressionNone {
		t.Errorf("Expected 12 uncompressed samples, got %d %s", field.SamplesLength, field.Compression)
	}
	if field.NumSamples1 != 3 || field.NumSamples2 != 2 || field.NumSamples3 != 2 {
		t.Errorf("Unexpected sample counts %d %d %d", field.NumSamples1, field.NumSamples2, field.NumSamples3)
	}

	var buf bytes.Buffer
	if _, err := field.WriteTo(&buf); err != nil || buf.String() != string(field.Samples) {
		t.Errorf("WriteTo wrote %q, err %v", buf.String(), err)
	}
}

func TestSampledFieldDeflated(t *testing.T) {
	g := createTestImage(t, 4).Geometry()

	field, err := NewSampledField(g, true)
	if err != nil {
		t.Fatalf("NewSampledField failed: %v", err)
	}
	if field.Compression != CompressionDeflated {
		t.Errorf("Expected deflated samples, got %s", field.Compression)
	}
	if n := len(strings.Fields(string(field.Samples))); n != field.SamplesLength {
		t.Errorf("SamplesLength %d does not match %d samples", field.SamplesLength, n)
	}

	values, err := field.Values()
	if err != nil {
		t.Fatalf("Values failed: %v", err)
	}
	if !bytes.Equal(values, g.Raw) {
		t.Errorf("Inflated samples %v differ from %v", values, g.Raw)
	}
}

func TestWriteSummary(t *testing.T) {
	img := createTestImage(t, 2)
	img.Title = "cell"

	var buf bytes.Buffer
	if err := WriteSummary(&buf, NewSummary(img)); err != nil {
		t.Fatalf("WriteSummary failed: %v", err)
	}

	var s Summary
	if err := yaml.Unmarshal(buf.Bytes(), &s); err != nil {
		t.Fatalf("Summary is not valid YAML: %v", err)
	}
	if s.Title != "cell" || s.Depth != 2 || s.Unit != "um" {
		t.Errorf("Unexpected summary header %+v", s)
	}
	if len(s.Spacing) != 3 || s.Spacing[0] != 0.25 || s.Spacing[2] != 1 {
		t.Errorf("Unexpected spacing %v", s.Spacing)
	}
	if len(s.Domains) != 2 || s.Domains[0].Name != "cytosol" || s.Domains[1].Name != "membrane" {
		t.Fatalf("Unexpected domains %+v", s.Domains)
	}
	if s.Domains[0].SpatialDimension != 3 || s.Domains[1].SpatialDimension != 2 {
		t.Errorf("Unexpected dimensions %+v", s.Domains)
	}
	if s.Domains[0].Voxels != 7 || s.Domains[1].Voxels != 4 {
		t.Errorf("Unexpected voxel counts %+v", s.Domains)
	}
	if len(s.Adjacents) != 1 || s.Adjacents[0] != [2]string{"cytosol", "membrane"} {
		t.Errorf("Unexpected adjacents %v", s.Adjacents)
	}
}
