// Package layout moves pixel buffers between the host layout (row-major,
// channels interleaved per pixel, BGR channel order) and the device layout
// (column-major, one plane per channel, planes in reverse host order).
package layout

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxnlabs/pixel-bridge/internal/device"
	"github.com/fxnlabs/pixel-bridge/internal/hostimg"
	"github.com/fxnlabs/pixel-bridge/internal/metrics"
	"go.uber.org/zap"
)

var (
	// ErrUnsupportedChannelCount is returned by HostToDevice for images
	// that are not Mono, Stereo or Color.
	ErrUnsupportedChannelCount = errors.New("layout: unsupported channel count")

	// ErrUnsupportedPlaneCount is returned by DeviceToHost for arrays with
	// more than one plane.
	ErrUnsupportedPlaneCount = errors.New("layout: unsupported plane count")

	// ErrUnsupportedElementType is returned by DeviceToHost for host depths
	// other than 32F, 64F and 8U.
	ErrUnsupportedElementType = errors.New("layout: unsupported element type")
)

// ChannelLayout is the closed set of host channel arrangements.
type ChannelLayout int

const (
	Mono   ChannelLayout = 1
	Stereo ChannelLayout = 2
	Color  ChannelLayout = 3
)

func (l ChannelLayout) String() string {
	switch l {
	case Mono:
		return "mono"
	case Stereo:
		return "stereo"
	case Color:
		return "color"
	default:
		return fmt.Sprintf("ChannelLayout(%d)", int(l))
	}
}

// ChannelLayoutOf classifies a channel count.
func ChannelLayoutOf(channels int) (ChannelLayout, error) {
	switch l := ChannelLayout(channels); l {
	case Mono, Stereo, Color:
		return l, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedChannelCount, channels)
	}
}

// DevicePlane returns the device plane that host channel ch lands in.
func (l ChannelLayout) DevicePlane(ch int) int {
	return int(l) - 1 - ch
}

// Converter performs layout conversions on a device backend. It holds no
// per-call state and is safe for concurrent use.
type Converter struct {
	backend device.Backend
	log     *zap.Logger
}

// NewConverter creates a converter on backend.
func NewConverter(backend device.Backend, log *zap.Logger) *Converter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Converter{
		backend: backend,
		log:     log.Named("layout"),
	}
}

// Backend returns the device backend conversions run on.
func (c *Converter) Backend() device.Backend {
	return c.backend
}

// HostToDevice converts a Mono, Stereo or Color host image into a Float32
// device array of dims (rows, cols, channels). Host channel ch lands in
// device plane channels-1-ch. img is not modified.
func (c *Converter) HostToDevice(img *hostimg.Mat) (_ *device.Array, err error) {
	start := time.Now()
	defer func() { c.observe(metrics.DirectionHostToDevice, start, img, err) }()

	if img == nil {
		return nil, fmt.Errorf("%w: nil image", hostimg.ErrInvalidShape)
	}
	layout, err := ChannelLayoutOf(img.Channels())
	if err != nil {
		return nil, err
	}

	work := img.Clone()
	if err := work.ConvertTo(hostimg.Depth32F); err != nil {
		return nil, err
	}

	rows, cols := work.Rows(), work.Cols()
	out, err := c.backend.Alloc(device.Dims{Rows: rows, Cols: cols, Planes: int(layout)}, device.Float32)
	if err != nil {
		return nil, fmt.Errorf("allocating output: %w", err)
	}

	for ch, plane := range work.Split() {
		if err := c.uploadPlane(out, layout.DevicePlane(ch), plane); err != nil {
			_ = out.Release()
			return nil, fmt.Errorf("channel %d: %w", ch, err)
		}
	}

	c.log.Debug("converted host image to device",
		zap.Int("rows", rows),
		zap.Int("cols", cols),
		zap.Stringer("layout", layout),
		zap.Stringer("source_depth", img.Depth()))
	return out, nil
}

// uploadPlane stores a row-major rows×cols float32 plane into plane p of out.
// A row-major rows×cols buffer is a column-major cols×rows buffer, so the
// plane is uploaded with swapped dims and transposed on the device.
func (c *Converter) uploadPlane(out *device.Array, p int, plane *hostimg.Mat) error {
	swapped, err := c.backend.Upload(device.Dims{Rows: plane.Cols(), Cols: plane.Rows(), Planes: 1}, plane.Float32s())
	if err != nil {
		return err
	}
	defer swapped.Release()

	transposed, err := c.backend.Transpose(swapped)
	if err != nil {
		return err
	}
	defer transposed.Release()

	return c.backend.AssignPlane(out, p, transposed)
}

// DeviceToHost converts a single-plane device array into a one-channel host
// image of the requested depth, which must be 32F, 64F or 8U.
func (c *Converter) DeviceToHost(arr *device.Array, depth hostimg.Depth) (_ *hostimg.Mat, err error) {
	start := time.Now()
	var dst *hostimg.Mat
	defer func() { c.observe(metrics.DirectionDeviceToHost, start, dst, err) }()

	dtype, err := checkDeviceToHost(arr, depth)
	if err != nil {
		return nil, err
	}
	dims := arr.Dims()
	dst, err = hostimg.NewMat(dims.Rows, dims.Cols, 1, depth)
	if err != nil {
		return nil, err
	}
	if err := c.download(dst, arr, dtype); err != nil {
		return nil, err
	}
	return dst, nil
}

// DeviceToHostInto is DeviceToHost writing into dst, which must already have
// the array's rows and cols, one channel and the requested depth. dst is
// left untouched on error.
func (c *Converter) DeviceToHostInto(dst *hostimg.Mat, arr *device.Array, depth hostimg.Depth) (err error) {
	start := time.Now()
	defer func() { c.observe(metrics.DirectionDeviceToHost, start, dst, err) }()

	dtype, err := checkDeviceToHost(arr, depth)
	if err != nil {
		return err
	}
	dims := arr.Dims()
	if dst == nil || dst.Rows() != dims.Rows || dst.Cols() != dims.Cols || dst.Channels() != 1 || dst.Depth() != depth {
		return fmt.Errorf("%w: destination does not match %s array as %s", device.ErrDimsMismatch, dims, depth)
	}
	return c.download(dst, arr, dtype)
}

// download transposes arr back to row-major order, casts it to dtype when
// needed and copies the result into dst's backing slice.
func (c *Converter) download(dst *hostimg.Mat, arr *device.Array, dtype device.DType) error {
	transposed, err := c.backend.Transpose(arr)
	if err != nil {
		return err
	}
	defer transposed.Release()

	src := transposed
	if dtype != transposed.DType() {
		cast, err := c.backend.Cast(transposed, dtype)
		if err != nil {
			return err
		}
		defer cast.Release()
		src = cast
	}

	if err := c.backend.Download(src, dst.Data()); err != nil {
		return err
	}

	c.log.Debug("converted device array to host",
		zap.Stringer("dims", arr.Dims()),
		zap.Stringer("source_type", arr.DType()),
		zap.Stringer("depth", dst.Depth()))
	return nil
}

func checkDeviceToHost(arr *device.Array, depth hostimg.Depth) (device.DType, error) {
	if arr == nil {
		return 0, fmt.Errorf("%w: nil array", device.ErrDimsMismatch)
	}
	if planes := arr.Dims().Planes; planes != 1 {
		return 0, fmt.Errorf("%w: array has %d planes", ErrUnsupportedPlaneCount, planes)
	}
	return dtypeFor(depth)
}

// ExtractPlanes converts every plane of arr into its own one-channel host
// image, in device plane order.
func (c *Converter) ExtractPlanes(arr *device.Array, depth hostimg.Depth) ([]*hostimg.Mat, error) {
	if arr == nil {
		return nil, fmt.Errorf("%w: nil array", device.ErrDimsMismatch)
	}
	if _, err := dtypeFor(depth); err != nil {
		return nil, err
	}
	planes := make([]*hostimg.Mat, arr.Dims().Planes)
	for p := range planes {
		plane, err := c.backend.ExtractPlane(arr, p)
		if err != nil {
			return nil, fmt.Errorf("plane %d: %w", p, err)
		}
		planes[p], err = c.DeviceToHost(plane, depth)
		_ = plane.Release()
		if err != nil {
			return nil, fmt.Errorf("plane %d: %w", p, err)
		}
	}
	return planes, nil
}

func (c *Converter) observe(direction string, start time.Time, img *hostimg.Mat, err error) {
	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultError
		c.log.Warn("layout conversion failed", zap.String("direction", direction), zap.Error(err))
	} else if img != nil {
		metrics.ConversionPixels.WithLabelValues(direction).Add(float64(img.Rows() * img.Cols()))
	}
	metrics.Conversions.WithLabelValues(direction, result).Inc()
	metrics.ConversionDuration.WithLabelValues(direction).Observe(float64(time.Since(start).Microseconds()) / 1000)
}

func dtypeFor(depth hostimg.Depth) (device.DType, error) {
	switch depth {
	case hostimg.Depth32F:
		return device.Float32, nil
	case hostimg.Depth64F:
		return device.Float64, nil
	case hostimg.Depth8U:
		return device.Uint8, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedElementType, depth)
	}
}
