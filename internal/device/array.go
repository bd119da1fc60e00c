package device

import (
	"fmt"
	"sync"
)

// Dims describes a device array. Storage is column-major: the first
// dimension varies fastest, so element (r, c, p) sits at r + c*Rows + p*Rows*Cols.
type Dims struct {
	Rows   int
	Cols   int
	Planes int
}

// Len returns Rows*Cols*Planes.
func (d Dims) Len() int {
	return d.Rows * d.Cols * d.Planes
}

// PlaneLen returns Rows*Cols.
func (d Dims) PlaneLen() int {
	return d.Rows * d.Cols
}

// Index returns the linear offset of element (r, c, p).
func (d Dims) Index(r, c, p int) int {
	return r + c*d.Rows + p*d.Rows*d.Cols
}

// Valid reports whether every dimension is positive.
func (d Dims) Valid() bool {
	return d.Rows > 0 && d.Cols > 0 && d.Planes > 0
}

func (d Dims) String() string {
	return fmt.Sprintf("%dx%dx%d", d.Rows, d.Cols, d.Planes)
}

// Buffer is backend-owned storage behind an Array.
type Buffer interface {
	// Free returns the storage to the backend.
	Free() error
}

// Array is a uniquely owned handle to accelerator memory. The caller that
// receives an Array is responsible for calling Release.
type Array struct {
	dims    Dims
	dtype   DType
	backend Backend

	mu  sync.Mutex
	buf Buffer
}

// NewArray wraps backend storage. It is meant for Backend implementations.
func NewArray(dims Dims, dtype DType, buf Buffer, owner Backend) *Array {
	return &Array{dims: dims, dtype: dtype, buf: buf, backend: owner}
}

func (a *Array) Dims() Dims   { return a.dims }
func (a *Array) DType() DType { return a.dtype }

// Len returns the number of elements.
func (a *Array) Len() int { return a.dims.Len() }

// Bytes returns the storage size in bytes.
func (a *Array) Bytes() int64 {
	return int64(a.dims.Len()) * int64(a.dtype.Size())
}

// Backend returns the backend that allocated the array.
func (a *Array) Backend() Backend { return a.backend }

// Buffer returns the backing storage, or ErrReleased.
func (a *Array) Buffer() (Buffer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.buf == nil {
		return nil, ErrReleased
	}
	return a.buf, nil
}

// Released reports whether Release has been called.
func (a *Array) Released() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf == nil
}

// Release frees the accelerator storage. Calling it more than once is a no-op.
func (a *Array) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.buf == nil {
		return nil
	}
	err := a.buf.Free()
	a.buf = nil
	return err
}

// Float32s downloads the raw column-major contents of a Float32 array.
func (a *Array) Float32s() ([]float32, error) {
	if a.dtype != Float32 {
		return nil, fmt.Errorf("%w: array is %s", ErrTypeMismatch, a.dtype)
	}
	out := make([]float32, a.Len())
	if err := a.backend.Download(a, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Plane downloads plane p of a Float32 array as a column-major slice.
func (a *Array) Plane(p int) ([]float32, error) {
	if p < 0 || p >= a.dims.Planes {
		return nil, fmt.Errorf("%w: %d of %d", ErrPlaneOutOfRange, p, a.dims.Planes)
	}
	all, err := a.Float32s()
	if err != nil {
		return nil, err
	}
	n := a.dims.PlaneLen()
	return all[p*n : (p+1)*n], nil
}
