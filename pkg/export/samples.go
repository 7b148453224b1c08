package export

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/zlib"

	"spatialimg/pkg/spatialimage"
)

// Compression values of a SampledField
const (
	CompressionNone     = "uncompressed"
	CompressionDeflated = "deflated"
)

// SampledField describes the flattened volume the way an SBML SampledField
// stores it: the samples as space separated integers.
type SampledField struct {
	NumSamples1, NumSamples2, NumSamples3 int

	// DataType is the type of one sample
	DataType string

	// Interpolation is how values between samples are looked up
	Interpolation string

	// Compression is CompressionNone or CompressionDeflated
	Compression string

	// Samples holds one integer per sample, or per compressed byte when deflated
	Samples []byte

	// SamplesLength is the number of integers in Samples
	SamplesLength int
}

// NewSampledField encodes the flattened volume of g. With deflate set the
// buffer is zlib-compressed first and the compressed bytes are listed.
func NewSampledField(g *spatialimage.Geometry, deflate bool) (*SampledField, error) {
	f := &SampledField{
		NumSamples1:   g.Width,
		NumSamples2:   g.Height,
		NumSamples3:   g.Depth,
		DataType:      "uint8",
		Interpolation: "nearestNeighbor",
		Compression:   CompressionNone,
	}

	data := g.Raw
	if deflate {
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(g.Raw); err != nil {
			return nil, fmt.Errorf("failed to deflate samples: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("failed to deflate samples: %w", err)
		}
		data = buf.Bytes()
		f.Compression = CompressionDeflated
	}

	f.Samples = formatSamples(data)
	f.SamplesLength = len(data)
	return f, nil
}

// Values decodes the samples back into the flattened volume
func (f *SampledField) Values() ([]byte, error) {
	fields := bytes.Fields(f.Samples)
	data := make([]byte, len(fields))
	for i, field := range fields {
		v, err := strconv.ParseUint(string(field), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		data[i] = byte(v)
	}

	if f.Compression != CompressionDeflated {
		return data, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to inflate samples: %w", err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// WriteTo writes the samples text to w
func (f *SampledField) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.Samples)
	return int64(n), err
}

func formatSamples(data []byte) []byte {
	out := make([]byte, 0, len(data)*4)
	for i, v := range data {
		if i > 0 {
			out = append(out, ' ')
		}
		out = strconv.AppendUint(out, uint64(v), 10)
	}
	return out
}
