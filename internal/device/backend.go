package device

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// DeviceInfo contains information about the compute device
type DeviceInfo struct {
	Name              string `json:"name"`
	TotalMemory       int64  `json:"totalMemory"`     // in bytes, 0 when unbounded
	AvailableMemory   int64  `json:"availableMemory"` // in bytes, 0 when unbounded
	ComputeCapability string `json:"computeCapability"`
	DriverVersion     string `json:"driverVersion"`
}

// Backend defines the accelerator primitives the layout converter is
// composed from. Every array a backend returns is freshly allocated and
// owned by the caller.
//
// Implementation notes:
//   - Operations are synchronous; they return once the device work and any
//     host transfer has completed.
//   - Backends must be safe for concurrent use.
//   - Arrays allocated by one backend are rejected by another with
//     ErrForeignArray.
type Backend interface {
	// Name is the registry name of the backend, e.g. "cpu".
	Name() string

	// Initialize prepares the backend for use. Calling it twice is a no-op.
	Initialize() error

	// Cleanup releases backend resources. Arrays still alive afterwards
	// may only be released.
	Cleanup() error

	// IsAvailable checks if the backend can run on this system without
	// doing heavy initialization.
	IsAvailable() bool

	// GetDeviceInfo returns information about the device.
	GetDeviceInfo() DeviceInfo

	// Alloc allocates a zero-filled array.
	Alloc(dims Dims, dtype DType) (*Array, error)

	// Upload copies column-major float32 host data into a new Float32 array.
	Upload(dims Dims, host []float32) (*Array, error)

	// Transpose returns a new array with Rows and Cols swapped in every plane.
	Transpose(a *Array) (*Array, error)

	// Cast returns a new array with every element converted to dtype.
	// Conversion to Uint8 rounds to nearest and saturates.
	Cast(a *Array, dtype DType) (*Array, error)

	// AssignPlane copies the single-plane src into plane p of dst.
	AssignPlane(dst *Array, p int, src *Array) error

	// ExtractPlane returns a new single-plane array holding plane p of a.
	ExtractPlane(a *Array, p int) (*Array, error)

	// Download copies the column-major contents of a into dst, which must
	// be a slice of exactly a.Len() elements matching a.DType().
	Download(a *Array, dst any) error
}

// Factory creates a backend. Factories are registered by accelerator
// integrations so the Manager can discover them.
type Factory func(log *zap.Logger) Backend

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// RegisterBackend registers an accelerator backend under name. Passing a
// nil factory removes the registration.
func RegisterBackend(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		delete(registry, name)
		return
	}
	registry[name] = f
}

// RegisteredBackends returns the registered backend names in sorted order.
func RegisteredBackends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupBackend(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}
