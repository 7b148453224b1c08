// Package loader reads a directory of labeled image planes into a voxel volume.
package loader

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "golang.org/x/image/tiff"

	"spatialimg/internal/models"
	"spatialimg/pkg/logging"
)

// SupportedFormats returns the file extensions LoadSlices reads
func SupportedFormats() []string {
	return []string{".tif", ".tiff", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if a file has a supported image extension
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range SupportedFormats() {
		if ext == f {
			return true
		}
	}
	return false
}

// LoadSlices reads every supported image in dir as one plane of a volume.
// Planes are ordered by the number embedded in their filename. The width
// and height of the first plane set the dimensions of the volume.
func LoadSlices(dir string) (*models.VoxelVolume, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var imageFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && IsSupportedFormat(entry.Name()) {
			imageFiles = append(imageFiles, entry.Name())
		}
	}

	if len(imageFiles) == 0 {
		return nil, fmt.Errorf("no images found in input directory %s", dir)
	}

	sort.SliceStable(imageFiles, func(i, j int) bool {
		numI := extractNumber(imageFiles[i])
		numJ := extractNumber(imageFiles[j])
		if numI != numJ {
			return numI < numJ
		}
		return imageFiles[i] < imageFiles[j]
	})

	vol := &models.VoxelVolume{}
	for _, filename := range imageFiles {
		img, err := LoadImage(filepath.Join(dir, filename))
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", filename, err)
		}

		bounds := img.Bounds()
		if len(vol.Planes) == 0 {
			vol.Width = bounds.Dx()
			vol.Height = bounds.Dy()
		} else if bounds.Dx() != vol.Width || bounds.Dy() != vol.Height {
			return nil, fmt.Errorf("image %s is %dx%d, expected %dx%d",
				filename, bounds.Dx(), bounds.Dy(), vol.Width, vol.Height)
		}

		plane, err := ToPlane(img)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", filename, err)
		}
		vol.Planes = append(vol.Planes, plane)
	}

	logging.Infof("Loaded %d slices with dimensions %dx%d", vol.Depth(), vol.Width, vol.Height)
	return vol, nil
}

// LoadImage decodes a single image file
func LoadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// ToPlane converts an image into a row-major plane of 8-bit label values.
// Paletted images yield their palette indices, as label images store the
// label in the index and only use the palette for display.
func ToPlane(img image.Image) ([]byte, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := make([]byte, width*height)

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < height; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+width]
			copy(plane[y*width:], row)
		}
	case *image.Paletted:
		for y := 0; y < height; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+width]
			copy(plane[y*width:], row)
		}
	case *image.Gray16:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v := src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y
				if v > 255 {
					return nil, fmt.Errorf("label value %d at (%d,%d) does not fit in 8 bits", v, x, y)
				}
				plane[y*width+x] = uint8(v)
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				g := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
				plane[y*width+x] = g.Y
			}
		}
	}
	return plane, nil
}

// extractNumber returns the digits of a filename as a number, or 0
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}
