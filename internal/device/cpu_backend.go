package device

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/fxnlabs/pixel-bridge/internal/metrics"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// CPUName is the registry name of the CPU backend.
const CPUName = "cpu"

// CPUBackend implements Backend in host memory. It is always available and
// serves as the fallback when no accelerator is registered.
type CPUBackend struct {
	logger *zap.Logger
	limit  int64

	mu          sync.Mutex
	used        int64
	initialized bool
}

// NewCPUBackend creates a CPU backend. A positive memoryLimit caps the
// bytes held by live arrays; zero means unlimited.
func NewCPUBackend(logger *zap.Logger, memoryLimit int64) *CPUBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CPUBackend{
		logger: logger,
		limit:  memoryLimit,
	}
}

func (c *CPUBackend) Name() string { return CPUName }

// Initialize prepares the CPU backend for use
func (c *CPUBackend) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	c.initialized = true
	c.logger.Info("CPU backend initialized", zap.Int64("memory_limit", c.limit))
	return nil
}

// Cleanup marks the backend unusable. Live arrays can still be released.
func (c *CPUBackend) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.used > 0 {
		c.logger.Warn("CPU backend cleaned up with live arrays", zap.Int64("bytes", c.used))
	}
	c.initialized = false
	return nil
}

// IsAvailable always returns true.
func (c *CPUBackend) IsAvailable() bool {
	return true
}

// GetDeviceInfo returns device information for CPU
func (c *CPUBackend) GetDeviceInfo() DeviceInfo {
	info := DeviceInfo{
		Name:              fmt.Sprintf("CPU (%s)", runtime.GOARCH),
		ComputeCapability: "N/A",
		DriverVersion:     runtime.Version(),
	}
	if c.limit > 0 {
		info.TotalMemory = c.limit
		info.AvailableMemory = c.limit - c.MemoryUsed()
	}
	return info
}

// MemoryUsed returns the bytes held by live arrays.
func (c *CPUBackend) MemoryUsed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Alloc allocates a zero-filled array.
func (c *CPUBackend) Alloc(dims Dims, dtype DType) (*Array, error) {
	if !dims.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrDimsMismatch, dims)
	}
	if !dtype.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrTypeMismatch, dtype)
	}
	n := dims.Len()
	var data any
	switch dtype {
	case Float32:
		data = make([]float32, n)
	case Float64:
		data = make([]float64, n)
	case Uint8:
		data = make([]uint8, n)
	}
	return c.wrap(dims, dtype, data)
}

// Upload copies column-major host data into a new Float32 array.
func (c *CPUBackend) Upload(dims Dims, host []float32) (*Array, error) {
	if !dims.Valid() || len(host) != dims.Len() {
		return nil, fmt.Errorf("%w: %s for %d elements", ErrDimsMismatch, dims, len(host))
	}
	return c.wrap(dims, Float32, append([]float32(nil), host...))
}

// Transpose swaps rows and columns of every plane. Each plane is handed to
// gonum as the row-major Cols×Rows matrix its column-major storage already
// is; the transposed view is then materialized row-major, which is the
// column-major layout of the Cols×Rows result.
func (c *CPUBackend) Transpose(a *Array) (*Array, error) {
	src, err := c.data(a)
	if err != nil {
		return nil, err
	}
	d := a.Dims()
	out, err := c.Alloc(Dims{Rows: d.Cols, Cols: d.Rows, Planes: d.Planes}, a.DType())
	if err != nil {
		return nil, err
	}
	dst := out.buf.(*hostBuffer).data
	n := d.PlaneLen()
	plane := make([]float64, n)
	for p := 0; p < d.Planes; p++ {
		for i := 0; i < n; i++ {
			plane[i] = load(src, p*n+i)
		}
		m := mat.NewDense(d.Cols, d.Rows, plane)
		var t mat.Dense
		t.CloneFrom(m.T())
		for i, v := range t.RawMatrix().Data {
			store(dst, p*n+i, v)
		}
	}
	return out, nil
}

// Cast converts every element to dtype.
func (c *CPUBackend) Cast(a *Array, dtype DType) (*Array, error) {
	src, err := c.data(a)
	if err != nil {
		return nil, err
	}
	out, err := c.Alloc(a.Dims(), dtype)
	if err != nil {
		return nil, err
	}
	dst := out.buf.(*hostBuffer).data
	for i, n := 0, a.Len(); i < n; i++ {
		store(dst, i, load(src, i))
	}
	return out, nil
}

// AssignPlane copies src into plane p of dst.
func (c *CPUBackend) AssignPlane(dst *Array, p int, src *Array) error {
	to, err := c.data(dst)
	if err != nil {
		return err
	}
	from, err := c.data(src)
	if err != nil {
		return err
	}
	dd, sd := dst.Dims(), src.Dims()
	if p < 0 || p >= dd.Planes {
		return fmt.Errorf("%w: %d of %d", ErrPlaneOutOfRange, p, dd.Planes)
	}
	if sd.Planes != 1 || sd.Rows != dd.Rows || sd.Cols != dd.Cols {
		return fmt.Errorf("%w: cannot assign %s into plane of %s", ErrDimsMismatch, sd, dd)
	}
	n := dd.PlaneLen()
	for i := 0; i < n; i++ {
		store(to, p*n+i, load(from, i))
	}
	return nil
}

// ExtractPlane copies plane p of a into a new single-plane array.
func (c *CPUBackend) ExtractPlane(a *Array, p int) (*Array, error) {
	src, err := c.data(a)
	if err != nil {
		return nil, err
	}
	d := a.Dims()
	if p < 0 || p >= d.Planes {
		return nil, fmt.Errorf("%w: %d of %d", ErrPlaneOutOfRange, p, d.Planes)
	}
	out, err := c.Alloc(Dims{Rows: d.Rows, Cols: d.Cols, Planes: 1}, a.DType())
	if err != nil {
		return nil, err
	}
	dst := out.buf.(*hostBuffer).data
	n := d.PlaneLen()
	for i := 0; i < n; i++ {
		store(dst, i, load(src, p*n+i))
	}
	return out, nil
}

// Download copies the contents of a into dst.
func (c *CPUBackend) Download(a *Array, dst any) error {
	src, err := c.data(a)
	if err != nil {
		return err
	}
	n := a.Len()
	switch s := src.(type) {
	case []float32:
		if d, ok := dst.([]float32); ok && len(d) == n {
			copy(d, s)
			return nil
		}
	case []float64:
		if d, ok := dst.([]float64); ok && len(d) == n {
			copy(d, s)
			return nil
		}
	case []uint8:
		if d, ok := dst.([]uint8); ok && len(d) == n {
			copy(d, s)
			return nil
		}
	}
	return fmt.Errorf("%w: cannot download %s array of %d elements into %T", ErrTypeMismatch, a.DType(), n, dst)
}

// wrap accounts for data and hands it out as an Array.
func (c *CPUBackend) wrap(dims Dims, dtype DType, data any) (*Array, error) {
	size := int64(dims.Len()) * int64(dtype.Size())

	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return nil, ErrNotInitialized
	}
	if c.limit > 0 && c.used+size > c.limit {
		used := c.used
		c.mu.Unlock()
		metrics.DeviceAllocations.WithLabelValues(CPUName, metrics.ResultError).Inc()
		return nil, fmt.Errorf("%w: need %d bytes, %d of %d in use", ErrOutOfDeviceMemory, size, used, c.limit)
	}
	c.used += size
	c.mu.Unlock()

	metrics.DeviceAllocations.WithLabelValues(CPUName, metrics.ResultOK).Inc()
	metrics.DeviceMemoryUsedBytes.Add(float64(size))
	return NewArray(dims, dtype, &hostBuffer{data: data, size: size, owner: c}, c), nil
}

// data returns the storage of an array allocated by this backend.
func (c *CPUBackend) data(a *Array) (any, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil array", ErrDimsMismatch)
	}
	buf, err := a.Buffer()
	if err != nil {
		return nil, err
	}
	hb, ok := buf.(*hostBuffer)
	if !ok || hb.owner != c {
		return nil, ErrForeignArray
	}
	return hb.data, nil
}

func (c *CPUBackend) free(size int64) {
	c.mu.Lock()
	c.used -= size
	c.mu.Unlock()
	metrics.DeviceMemoryUsedBytes.Sub(float64(size))
}

// hostBuffer is CPU-resident array storage.
type hostBuffer struct {
	data  any
	size  int64
	owner *CPUBackend
}

func (b *hostBuffer) Free() error {
	b.owner.free(b.size)
	b.data = nil
	return nil
}

func load(data any, i int) float64 {
	switch d := data.(type) {
	case []float32:
		return float64(d[i])
	case []float64:
		return d[i]
	case []uint8:
		return float64(d[i])
	}
	return math.NaN()
}

func store(data any, i int, v float64) {
	switch d := data.(type) {
	case []float32:
		d[i] = float32(v)
	case []float64:
		d[i] = v
	case []uint8:
		d[i] = saturateUint8(v)
	}
}

// saturateUint8 rounds to nearest (ties to even) and clamps to [0, 255].
func saturateUint8(v float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.RoundToEven(v)
	switch {
	case v < 0:
		return 0
	case v > math.MaxUint8:
		return math.MaxUint8
	}
	return uint8(v)
}
