// Package export writes the geometry of a spatial image for the tools that
// build the SBML document: TIFF images, SampledField samples and a summary.
package export

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"spatialimg/pkg/logging"
	"spatialimg/pkg/spatialimage"
	"spatialimg/pkg/visualization"
)

// ErrStackTooLarge is returned when a stack does not fit the 32-bit offsets
// of a classic TIFF file.
var ErrStackTooLarge = errors.New("stack exceeds 4 GiB TIFF limit")

// imageJVersion is written into stack descriptions so ImageJ reads the
// slice count and calibration back.
const imageJVersion = "1.54f"

// SaveAsImage writes the volume to dir/name.tiff: a single image when the
// volume has one plane and a multi-page stack otherwise. An empty name
// disables the export and SaveAsImage returns "" and no error.
func SaveAsImage(g *spatialimage.Geometry, dir, name string) (string, error) {
	if name == "" {
		logging.Debugf("no export name, skipping TIFF export")
		return "", nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(dir, name+".tiff")

	var err error
	if g.Depth > 1 {
		err = writeStack(path, g)
	} else {
		err = writeSingle(path, g)
	}
	if err != nil {
		return "", fmt.Errorf("failed to save %s: %w", path, err)
	}
	logging.Infof("Saved %d plane(s) to %s", g.Depth, path)
	return path, nil
}

func writeSingle(path string, g *spatialimage.Geometry) error {
	img, err := visualization.NewViewer(g.Raw, g.Width, g.Height, g.Depth).ExtractSlice("z", 0)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return tiff.Encode(file, img, nil)
}

// TIFF tag numbers and field types used by the stack writer
const (
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagImageDescription = 270
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagXResolution      = 282
	tagYResolution      = 283
	tagResolutionUnit   = 296

	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
)

type ifdEntry struct {
	tag, typ uint16
	count    uint32
	value    uint32
}

// Entries per IFD; the first page also carries the ImageJ description.
const (
	pageEntries      = 12
	firstPageEntries = pageEntries + 1
)

func ifdSize(entries int) uint64 {
	return 2 + 12*uint64(entries) + 4
}

// stackLayout holds the file offsets of a multi-page stack
type stackLayout struct {
	dataOff   uint32
	descOff   uint32
	ratOff    uint32
	ifdOff    uint32
	planeSize uint32
}

// newStackLayout places the pixel data, the description, the resolution
// rationals and the IFD chain. Every offset and the end of the file must fit
// in 32 bits.
func newStackLayout(rawLen, descLen, depth int) (stackLayout, error) {
	if depth < 1 || rawLen%depth != 0 {
		return stackLayout{}, fmt.Errorf("%d samples do not split into %d planes", rawLen, depth)
	}
	data := uint64(8)
	desc := align(data + uint64(rawLen))
	rat := align(desc + uint64(descLen))
	ifd := rat + 16
	end := ifd + ifdSize(firstPageEntries) + uint64(depth-1)*ifdSize(pageEntries)
	if end > math.MaxUint32 {
		return stackLayout{}, fmt.Errorf("%d bytes: %w", end, ErrStackTooLarge)
	}
	return stackLayout{
		dataOff:   uint32(data),
		descOff:   uint32(desc),
		ratOff:    uint32(rat),
		ifdOff:    uint32(ifd),
		planeSize: uint32(rawLen / depth),
	}, nil
}

// stripOffset is where the pixels of page i start
func (l stackLayout) stripOffset(i int) uint32 {
	return l.dataOff + uint32(i)*l.planeSize
}

// writeStack writes every plane as one page of an uncompressed 8-bit TIFF.
// The file holds the pixel data, the ImageJ description, the resolution
// rationals and then one IFD per page.
func writeStack(path string, g *spatialimage.Geometry) error {
	desc := fmt.Sprintf("ImageJ=%s\nimages=%d\nslices=%d\nunit=%s\nspacing=%g\nloop=false\n\x00",
		imageJVersion, g.Depth, g.Depth, g.Spacing.Unit, g.Spacing.Delta.Z)

	layout, err := newStackLayout(len(g.Raw), len(desc), g.Depth)
	if err != nil {
		return err
	}
	ifdOff := layout.ifdOff

	xnum, xden := rational(1 / g.Spacing.Delta.X)
	ynum, yden := rational(1 / g.Spacing.Delta.Y)

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	w := bufio.NewWriter(file)
	le := binary.LittleEndian

	// Header
	w.WriteString("II")
	binary.Write(w, le, uint16(42))
	binary.Write(w, le, ifdOff)

	w.Write(g.Raw)
	pad(w, layout.descOff-layout.dataOff-uint32(len(g.Raw)))
	w.WriteString(desc)
	pad(w, layout.ratOff-layout.descOff-uint32(len(desc)))
	binary.Write(w, le, [4]uint32{xnum, xden, ynum, yden})

	for i := 0; i < g.Depth; i++ {
		entries := []ifdEntry{
			{tagImageWidth, typeLong, 1, uint32(g.Width)},
			{tagImageLength, typeLong, 1, uint32(g.Height)},
			{tagBitsPerSample, typeShort, 1, 8},
			{tagCompression, typeShort, 1, 1},
			{tagPhotometric, typeShort, 1, 1},
		}
		if i == 0 {
			entries = append(entries, ifdEntry{tagImageDescription, typeASCII, uint32(len(desc)), layout.descOff})
		}
		entries = append(entries,
			ifdEntry{tagStripOffsets, typeLong, 1, layout.stripOffset(i)},
			ifdEntry{tagSamplesPerPixel, typeShort, 1, 1},
			ifdEntry{tagRowsPerStrip, typeLong, 1, uint32(g.Height)},
			ifdEntry{tagStripByteCounts, typeLong, 1, layout.planeSize},
			ifdEntry{tagXResolution, typeRational, 1, layout.ratOff},
			ifdEntry{tagYResolution, typeRational, 1, layout.ratOff + 8},
			ifdEntry{tagResolutionUnit, typeShort, 1, 1},
		)

		next := uint32(0)
		ifdOff += uint32(ifdSize(len(entries)))
		if i < g.Depth-1 {
			next = ifdOff
		}

		binary.Write(w, le, uint16(len(entries)))
		for _, e := range entries {
			binary.Write(w, le, e.tag)
			binary.Write(w, le, e.typ)
			binary.Write(w, le, e.count)
			if e.typ == typeShort {
				// SHORT values are left-justified in the value field
				binary.Write(w, le, [2]uint16{uint16(e.value), 0})
			} else {
				binary.Write(w, le, e.value)
			}
		}
		binary.Write(w, le, next)
	}

	if err := w.Flush(); err != nil {
		return err
	}
	return file.Close()
}

// align rounds a file offset up to the next word boundary
func align(off uint64) uint64 {
	return (off + 1) &^ 1
}

func pad(w *bufio.Writer, n uint32) {
	for ; n > 0; n-- {
		w.WriteByte(0)
	}
}

// rational approximates v as a fraction with a fixed denominator. Values
// that are not positive and finite become 1.
func rational(v float64) (num, den uint32) {
	if !(v > 0) || math.IsInf(v, 1) {
		return 1, 1
	}
	den = 1000000
	scaled := math.Round(v * float64(den))
	if scaled > math.MaxUint32 {
		return uint32(math.Min(math.Round(v), math.MaxUint32)), 1
	}
	return uint32(scaled), den
}
