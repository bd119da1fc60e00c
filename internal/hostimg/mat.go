package hostimg

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidShape is returned for non-positive rows, cols or channels.
	ErrInvalidShape = errors.New("hostimg: invalid shape")

	// ErrUnknownDepth is returned for a depth outside the supported set.
	ErrUnknownDepth = errors.New("hostimg: unknown depth")

	// ErrLengthMismatch is returned when backing data does not hold rows*cols*channels samples.
	ErrLengthMismatch = errors.New("hostimg: length mismatch")
)

// Depth is the element type of a host image.
type Depth uint8

const (
	Depth8U Depth = iota
	Depth16U
	Depth16S
	Depth32S
	Depth32F
	Depth64F
)

// Size returns the byte size of one sample.
func (d Depth) Size() int {
	switch d {
	case Depth8U:
		return 1
	case Depth16U, Depth16S:
		return 2
	case Depth32S, Depth32F:
		return 4
	case Depth64F:
		return 8
	default:
		return 0
	}
}

func (d Depth) String() string {
	switch d {
	case Depth8U:
		return "8U"
	case Depth16U:
		return "16U"
	case Depth16S:
		return "16S"
	case Depth32S:
		return "32S"
	case Depth32F:
		return "32F"
	case Depth64F:
		return "64F"
	default:
		return fmt.Sprintf("Depth(%d)", uint8(d))
	}
}

// ParseDepth maps names such as "8U" or "32F" back to a Depth.
func ParseDepth(s string) (Depth, error) {
	for d := Depth8U; d <= Depth64F; d++ {
		if d.String() == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDepth, s)
}

// Mat is a dense host image: row-major, channels interleaved per pixel,
// first row at the top. Sample (x, y, c) lives at (y*cols + x)*channels + c.
type Mat struct {
	rows     int
	cols     int
	channels int
	depth    Depth
	data     any
}

// NewMat allocates a zero-filled image.
func NewMat(rows, cols, channels int, depth Depth) (*Mat, error) {
	if rows <= 0 || cols <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrInvalidShape, rows, cols, channels)
	}
	data, err := allocate(depth, rows*cols*channels)
	if err != nil {
		return nil, err
	}
	return &Mat{rows: rows, cols: cols, channels: channels, depth: depth, data: data}, nil
}

// FromData wraps an existing typed slice without copying. The depth is
// taken from the slice type.
func FromData(rows, cols, channels int, data any) (*Mat, error) {
	if rows <= 0 || cols <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrInvalidShape, rows, cols, channels)
	}
	depth, n, err := describe(data)
	if err != nil {
		return nil, err
	}
	if n != rows*cols*channels {
		return nil, fmt.Errorf("%w: expected %d samples, got %d", ErrLengthMismatch, rows*cols*channels, n)
	}
	return &Mat{rows: rows, cols: cols, channels: channels, depth: depth, data: data}, nil
}

func (m *Mat) Rows() int     { return m.rows }
func (m *Mat) Cols() int     { return m.cols }
func (m *Mat) Channels() int { return m.channels }
func (m *Mat) Depth() Depth  { return m.depth }

// Len returns the number of samples (rows*cols*channels).
func (m *Mat) Len() int { return m.rows * m.cols * m.channels }

// Data returns the backing slice. Its dynamic type follows Depth.
func (m *Mat) Data() any { return m.data }

// Uint8s returns the backing slice of an 8U image, or nil.
func (m *Mat) Uint8s() []uint8 {
	v, _ := m.data.([]uint8)
	return v
}

// Float32s returns the backing slice of a 32F image, or nil.
func (m *Mat) Float32s() []float32 {
	v, _ := m.data.([]float32)
	return v
}

// Float64s returns the backing slice of a 64F image, or nil.
func (m *Mat) Float64s() []float64 {
	v, _ := m.data.([]float64)
	return v
}

func (m *Mat) offset(row, col, ch int) int {
	return (row*m.cols+col)*m.channels + ch
}

// At returns sample (row, col, ch) as float64.
func (m *Mat) At(row, col, ch int) float64 {
	return m.sample(m.offset(row, col, ch))
}

// Set stores v at (row, col, ch), saturating for integer depths.
func (m *Mat) Set(row, col, ch int, v float64) {
	m.setSample(m.offset(row, col, ch), v)
}

// Clone returns a deep copy.
func (m *Mat) Clone() *Mat {
	out := *m
	switch d := m.data.(type) {
	case []uint8:
		out.data = append([]uint8(nil), d...)
	case []uint16:
		out.data = append([]uint16(nil), d...)
	case []int16:
		out.data = append([]int16(nil), d...)
	case []int32:
		out.data = append([]int32(nil), d...)
	case []float32:
		out.data = append([]float32(nil), d...)
	case []float64:
		out.data = append([]float64(nil), d...)
	}
	return &out
}

// ConvertTo converts the receiver's samples to depth in place, replacing
// the backing slice. Narrowing conversions round to nearest and saturate.
func (m *Mat) ConvertTo(depth Depth) error {
	if depth == m.depth {
		return nil
	}
	dst, err := allocate(depth, m.Len())
	if err != nil {
		return err
	}
	src := &Mat{rows: m.rows, cols: m.cols, channels: m.channels, depth: m.depth, data: m.data}
	m.data = dst
	m.depth = depth
	for i, n := 0, m.Len(); i < n; i++ {
		m.setSample(i, src.sample(i))
	}
	return nil
}

// Split separates an interleaved image into one single-channel image per
// channel, each still row-major.
func (m *Mat) Split() []*Mat {
	planes := make([]*Mat, m.channels)
	pixels := m.rows * m.cols
	for c := range planes {
		p, _ := NewMat(m.rows, m.cols, 1, m.depth)
		for i := 0; i < pixels; i++ {
			p.setSample(i, m.sample(i*m.channels+c))
		}
		planes[c] = p
	}
	return planes
}

func (m *Mat) sample(i int) float64 {
	switch d := m.data.(type) {
	case []uint8:
		return float64(d[i])
	case []uint16:
		return float64(d[i])
	case []int16:
		return float64(d[i])
	case []int32:
		return float64(d[i])
	case []float32:
		return float64(d[i])
	case []float64:
		return d[i]
	}
	return math.NaN()
}

func (m *Mat) setSample(i int, v float64) {
	switch d := m.data.(type) {
	case []uint8:
		d[i] = SaturateUint8(v)
	case []uint16:
		d[i] = uint16(saturate(v, 0, math.MaxUint16))
	case []int16:
		d[i] = int16(saturate(v, math.MinInt16, math.MaxInt16))
	case []int32:
		d[i] = int32(saturate(v, math.MinInt32, math.MaxInt32))
	case []float32:
		d[i] = float32(v)
	case []float64:
		d[i] = v
	}
}

// SaturateUint8 rounds v to nearest and clamps it to [0, 255]. NaN maps to 0.
func SaturateUint8(v float64) uint8 {
	return uint8(saturate(v, 0, math.MaxUint8))
}

func saturate(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.RoundToEven(v)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func allocate(depth Depth, n int) (any, error) {
	switch depth {
	case Depth8U:
		return make([]uint8, n), nil
	case Depth16U:
		return make([]uint16, n), nil
	case Depth16S:
		return make([]int16, n), nil
	case Depth32S:
		return make([]int32, n), nil
	case Depth32F:
		return make([]float32, n), nil
	case Depth64F:
		return make([]float64, n), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDepth, depth)
	}
}

func describe(data any) (Depth, int, error) {
	switch d := data.(type) {
	case []uint8:
		return Depth8U, len(d), nil
	case []uint16:
		return Depth16U, len(d), nil
	case []int16:
		return Depth16S, len(d), nil
	case []int32:
		return Depth32S, len(d), nil
	case []float32:
		return Depth32F, len(d), nil
	case []float64:
		return Depth64F, len(d), nil
	default:
		return 0, 0, fmt.Errorf("%w: %T", ErrUnknownDepth, data)
	}
}
