package layout

import (
	"math/rand"
	"testing"

	"github.com/fxnlabs/pixel-bridge/internal/device"
	"github.com/fxnlabs/pixel-bridge/internal/hostimg"
	"github.com/fxnlabs/pixel-bridge/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestConverter(t *testing.T) (*Converter, *device.CPUBackend) {
	t.Helper()
	log := zaptest.NewLogger(t)
	backend := device.NewCPUBackend(log, 0)
	require.NoError(t, backend.Initialize())
	t.Cleanup(func() {
		assert.Zero(t, backend.MemoryUsed(), "device arrays leaked")
		_ = backend.Cleanup()
	})
	return NewConverter(backend, log), backend
}

func mustMat(t *testing.T, rows, cols, channels int, data any) *hostimg.Mat {
	t.Helper()
	m, err := hostimg.FromData(rows, cols, channels, data)
	require.NoError(t, err)
	return m
}

func TestChannelLayoutOf(t *testing.T) {
	for _, tc := range []struct {
		channels int
		expected ChannelLayout
	}{{1, Mono}, {2, Stereo}, {3, Color}} {
		l, err := ChannelLayoutOf(tc.channels)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, l)
	}

	for _, channels := range []int{0, 4, 5, -1} {
		_, err := ChannelLayoutOf(channels)
		assert.ErrorIs(t, err, ErrUnsupportedChannelCount)
	}

	assert.Equal(t, 2, Color.DevicePlane(0))
	assert.Equal(t, 0, Color.DevicePlane(2))
	assert.Equal(t, 1, Stereo.DevicePlane(0))
	assert.Equal(t, 0, Mono.DevicePlane(0))
}

func TestHostToDevice_TwoByTwoMono(t *testing.T) {
	conv, backend := newTestConverter(t)

	img := mustMat(t, 2, 2, 1, []uint8{1, 2, 3, 4})
	arr, err := conv.HostToDevice(img)
	require.NoError(t, err)
	defer arr.Release()

	assert.Equal(t, device.Dims{Rows: 2, Cols: 2, Planes: 1}, arr.Dims())
	assert.Equal(t, device.Float32, arr.DType())

	// column-major storage of [[1,2],[3,4]]
	got, err := arr.Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 3, 2, 4}, got)

	// transposing back on the device reproduces the row-major image
	tr, err := backend.Transpose(arr)
	require.NoError(t, err)
	defer tr.Release()
	back, err := tr.Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, back)

	out, err := conv.DeviceToHost(arr, hostimg.Depth8U)
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 2, 3, 4}, out.Uint8s())
	assert.Equal(t, 2, out.Rows())
	assert.Equal(t, 2, out.Cols())
	assert.Equal(t, 1, out.Channels())
}

func TestHostToDevice_SinglePixelColor(t *testing.T) {
	conv, _ := newTestConverter(t)

	// B=10, G=20, R=30
	img := mustMat(t, 1, 1, 3, []uint8{10, 20, 30})
	arr, err := conv.HostToDevice(img)
	require.NoError(t, err)
	defer arr.Release()

	assert.Equal(t, device.Dims{Rows: 1, Cols: 1, Planes: 3}, arr.Dims())
	got, err := arr.Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{30, 20, 10}, got)
}

func TestHostToDevice_PlaneMapping(t *testing.T) {
	testCases := []struct {
		name     string
		channels int
		depth    hostimg.Depth
	}{
		{"mono 8U", 1, hostimg.Depth8U},
		{"stereo 16S", 2, hostimg.Depth16S},
		{"color 8U", 3, hostimg.Depth8U},
		{"color 64F", 3, hostimg.Depth64F},
	}

	rng := rand.New(rand.NewSource(7))
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conv, _ := newTestConverter(t)

			rows, cols := 3, 5
			img, err := hostimg.NewMat(rows, cols, tc.channels, tc.depth)
			require.NoError(t, err)
			for y := 0; y < rows; y++ {
				for x := 0; x < cols; x++ {
					for c := 0; c < tc.channels; c++ {
						img.Set(y, x, c, float64(rng.Intn(200)))
					}
				}
			}

			arr, err := conv.HostToDevice(img)
			require.NoError(t, err)
			defer arr.Release()

			d := arr.Dims()
			require.Equal(t, device.Dims{Rows: rows, Cols: cols, Planes: tc.channels}, d)
			got, err := arr.Float32s()
			require.NoError(t, err)

			for y := 0; y < rows; y++ {
				for x := 0; x < cols; x++ {
					for c := 0; c < tc.channels; c++ {
						p := tc.channels - 1 - c
						assert.Equal(t, float32(img.At(y, x, c)), got[d.Index(y, x, p)],
							"pixel (%d,%d) channel %d", x, y, c)
					}
				}
			}
		})
	}
}

func TestHostToDevice_StereoPlanes(t *testing.T) {
	conv, _ := newTestConverter(t)

	// 1x2 image, interleaved (c0, c1)
	img := mustMat(t, 1, 2, 2, []float32{1, 100, 2, 200})
	arr, err := conv.HostToDevice(img)
	require.NoError(t, err)
	defer arr.Release()

	p0, err := arr.Plane(0)
	require.NoError(t, err)
	p1, err := arr.Plane(1)
	require.NoError(t, err)
	assert.Equal(t, []float32{100, 200}, p0)
	assert.Equal(t, []float32{1, 2}, p1)
}

func TestHostToDevice_DoesNotMutateInput(t *testing.T) {
	conv, _ := newTestConverter(t)

	data := []uint8{9, 8, 7, 6, 5, 4}
	img := mustMat(t, 1, 2, 3, data)
	arr, err := conv.HostToDevice(img)
	require.NoError(t, err)
	defer arr.Release()

	assert.Equal(t, []uint8{9, 8, 7, 6, 5, 4}, data)
	assert.Equal(t, hostimg.Depth8U, img.Depth())
}

func TestHostToDevice_UnsupportedChannelCount(t *testing.T) {
	conv, backend := newTestConverter(t)

	before := testutil.ToFloat64(metrics.Conversions.WithLabelValues(metrics.DirectionHostToDevice, metrics.ResultError))

	img, err := hostimg.NewMat(2, 2, 4, hostimg.Depth8U)
	require.NoError(t, err)
	arr, err := conv.HostToDevice(img)
	assert.ErrorIs(t, err, ErrUnsupportedChannelCount)
	assert.Nil(t, arr)
	assert.Zero(t, backend.MemoryUsed())

	after := testutil.ToFloat64(metrics.Conversions.WithLabelValues(metrics.DirectionHostToDevice, metrics.ResultError))
	assert.Equal(t, before+1, after)

	_, err = conv.HostToDevice(nil)
	assert.ErrorIs(t, err, hostimg.ErrInvalidShape)
}

func TestHostToDevice_OutOfDeviceMemory(t *testing.T) {
	log := zaptest.NewLogger(t)
	// enough for the 2x2x3 output but not for the per-plane temporaries
	backend := device.NewCPUBackend(log, 2*2*3*4)
	require.NoError(t, backend.Initialize())
	defer backend.Cleanup()
	conv := NewConverter(backend, log)

	img, err := hostimg.NewMat(2, 2, 3, hostimg.Depth8U)
	require.NoError(t, err)
	_, err = conv.HostToDevice(img)
	assert.ErrorIs(t, err, device.ErrOutOfDeviceMemory)
	assert.Zero(t, backend.MemoryUsed())
}

func TestDeviceToHost_RoundTrip(t *testing.T) {
	testCases := []struct {
		name  string
		data  any
		depth hostimg.Depth
		delta float64
	}{
		{"8U", []uint8{0, 1, 127, 128, 254, 255}, hostimg.Depth8U, 0},
		{"32F", []float32{-1.5, 0, 0.25, 3.75, 1e6, -7}, hostimg.Depth32F, 0},
		{"64F narrows through float32", []float64{0.1, 0.2, 1.0 / 3, 5, 1e-3, 42}, hostimg.Depth64F, 1e-6},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conv, _ := newTestConverter(t)

			img := mustMat(t, 2, 3, 1, tc.data)
			arr, err := conv.HostToDevice(img)
			require.NoError(t, err)
			defer arr.Release()

			out, err := conv.DeviceToHost(arr, tc.depth)
			require.NoError(t, err)
			require.Equal(t, img.Rows(), out.Rows())
			require.Equal(t, img.Cols(), out.Cols())
			assert.Equal(t, tc.depth, out.Depth())

			for y := 0; y < img.Rows(); y++ {
				for x := 0; x < img.Cols(); x++ {
					assert.InDelta(t, img.At(y, x, 0), out.At(y, x, 0), tc.delta)
				}
			}
		})
	}
}

func TestDeviceToHost_Cast(t *testing.T) {
	conv, _ := newTestConverter(t)

	img := mustMat(t, 1, 4, 1, []float32{-3, 2.5, 3.5, 300})
	arr, err := conv.HostToDevice(img)
	require.NoError(t, err)
	defer arr.Release()

	u8, err := conv.DeviceToHost(arr, hostimg.Depth8U)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 2, 4, 255}, u8.Uint8s())

	f64, err := conv.DeviceToHost(arr, hostimg.Depth64F)
	require.NoError(t, err)
	assert.Equal(t, []float64{-3, 2.5, 3.5, 300}, f64.Float64s())
}

func TestDeviceToHost_UnsupportedPlaneCount(t *testing.T) {
	conv, _ := newTestConverter(t)

	for _, channels := range []int{2, 3} {
		img, err := hostimg.NewMat(2, 2, channels, hostimg.Depth8U)
		require.NoError(t, err)
		arr, err := conv.HostToDevice(img)
		require.NoError(t, err)

		out, err := conv.DeviceToHost(arr, hostimg.Depth32F)
		assert.ErrorIs(t, err, ErrUnsupportedPlaneCount)
		assert.Nil(t, out)

		dst := mustMat(t, 2, 2, 1, []float32{7, 7, 7, 7})
		err = conv.DeviceToHostInto(dst, arr, hostimg.Depth32F)
		assert.ErrorIs(t, err, ErrUnsupportedPlaneCount)
		assert.Equal(t, []float32{7, 7, 7, 7}, dst.Float32s())

		require.NoError(t, arr.Release())
	}
}

func TestDeviceToHost_UnsupportedElementType(t *testing.T) {
	conv, _ := newTestConverter(t)

	img := mustMat(t, 1, 2, 1, []uint8{1, 2})
	arr, err := conv.HostToDevice(img)
	require.NoError(t, err)
	defer arr.Release()

	for _, depth := range []hostimg.Depth{hostimg.Depth16U, hostimg.Depth16S, hostimg.Depth32S, hostimg.Depth(99)} {
		out, err := conv.DeviceToHost(arr, depth)
		assert.ErrorIs(t, err, ErrUnsupportedElementType, "depth %s", depth)
		assert.Nil(t, out)
	}

	_, err = conv.ExtractPlanes(arr, hostimg.Depth16U)
	assert.ErrorIs(t, err, ErrUnsupportedElementType)
}

func TestDeviceToHostInto(t *testing.T) {
	conv, _ := newTestConverter(t)

	img := mustMat(t, 2, 2, 1, []uint8{1, 2, 3, 4})
	arr, err := conv.HostToDevice(img)
	require.NoError(t, err)
	defer arr.Release()

	t.Run("writes into destination", func(t *testing.T) {
		dst, err := hostimg.NewMat(2, 2, 1, hostimg.Depth64F)
		require.NoError(t, err)
		require.NoError(t, conv.DeviceToHostInto(dst, arr, hostimg.Depth64F))
		assert.Equal(t, []float64{1, 2, 3, 4}, dst.Float64s())
	})

	t.Run("mismatched destination is untouched", func(t *testing.T) {
		dst := mustMat(t, 1, 4, 1, []uint8{9, 9, 9, 9})
		err := conv.DeviceToHostInto(dst, arr, hostimg.Depth8U)
		assert.ErrorIs(t, err, device.ErrDimsMismatch)
		assert.Equal(t, []uint8{9, 9, 9, 9}, dst.Uint8s())
	})

	t.Run("released array", func(t *testing.T) {
		other, err := conv.HostToDevice(img)
		require.NoError(t, err)
		require.NoError(t, other.Release())

		_, err = conv.DeviceToHost(other, hostimg.Depth8U)
		assert.ErrorIs(t, err, device.ErrReleased)
	})
}

func TestExtractPlanes(t *testing.T) {
	conv, _ := newTestConverter(t)

	// 2x1 BGR image
	img := mustMat(t, 2, 1, 3, []uint8{
		1, 2, 3,
		4, 5, 6,
	})
	arr, err := conv.HostToDevice(img)
	require.NoError(t, err)
	defer arr.Release()

	planes, err := conv.ExtractPlanes(arr, hostimg.Depth8U)
	require.NoError(t, err)
	require.Len(t, planes, 3)

	// device order is R, G, B
	assert.Equal(t, []uint8{3, 6}, planes[0].Uint8s())
	assert.Equal(t, []uint8{2, 5}, planes[1].Uint8s())
	assert.Equal(t, []uint8{1, 4}, planes[2].Uint8s())
	for _, p := range planes {
		assert.Equal(t, 2, p.Rows())
		assert.Equal(t, 1, p.Cols())
	}
}
