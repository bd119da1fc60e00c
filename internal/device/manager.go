package device

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// AutoName selects the first available registered accelerator, falling
// back to the CPU backend.
const AutoName = "auto"

// Options controls backend selection.
type Options struct {
	// Backend is "auto", "cpu" or the name of a registered backend.
	Backend string
	// MemoryLimit caps the CPU backend's live bytes; zero means unlimited.
	MemoryLimit int64
}

// Manager handles backend selection and lifecycle
type Manager struct {
	backend Backend
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewManager creates a new manager and initializes the backend named in opts.
func NewManager(logger *zap.Logger, opts Options) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Backend == "" {
		opts.Backend = AutoName
	}

	m := &Manager{
		logger: logger.Named("device"),
	}
	if err := m.detectAndInitialize(opts); err != nil {
		return nil, err
	}
	return m, nil
}

// detectAndInitialize detects available backends and initializes the best one
func (m *Manager) detectAndInitialize(opts Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch opts.Backend {
	case CPUName:
	case AutoName:
		for _, name := range RegisteredBackends() {
			if b := m.tryBackend(name); b != nil {
				m.backend = b
				return nil
			}
		}
	default:
		b := m.tryBackend(opts.Backend)
		if b == nil {
			return fmt.Errorf("%w: %s", ErrBackendUnavailable, opts.Backend)
		}
		m.backend = b
		return nil
	}

	// Fall back to CPU
	cpuBackend := NewCPUBackend(m.logger.Named(CPUName), opts.MemoryLimit)
	if err := cpuBackend.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize CPU backend: %w", err)
	}
	m.backend = cpuBackend
	return nil
}

// tryBackend creates and initializes a registered backend, or returns nil.
func (m *Manager) tryBackend(name string) Backend {
	factory, ok := lookupBackend(name)
	if !ok {
		return nil
	}
	b := factory(m.logger.Named(name))
	if b == nil || !b.IsAvailable() {
		m.logger.Debug("backend not available", zap.String("backend", name))
		return nil
	}
	if err := b.Initialize(); err != nil {
		m.logger.Warn("backend failed to initialize", zap.String("backend", name), zap.Error(err))
		_ = b.Cleanup()
		return nil
	}
	m.logger.Info("Selected backend", zap.String("backend", name))
	return b
}

// GetBackend returns the current backend
func (m *Manager) GetBackend() Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend
}

// GetDeviceInfo returns device information from the current backend
func (m *Manager) GetDeviceInfo() DeviceInfo {
	backend := m.GetBackend()
	if backend == nil {
		return DeviceInfo{Name: "No backend available"}
	}
	return backend.GetDeviceInfo()
}

// IsAccelerated returns true if a non-CPU backend is active
func (m *Manager) IsAccelerated() bool {
	backend := m.GetBackend()
	if backend == nil {
		return false
	}
	_, isCPU := backend.(*CPUBackend)
	return !isCPU
}

// GetBackendType returns the name of the current backend, or "none".
func (m *Manager) GetBackendType() string {
	backend := m.GetBackend()
	if backend == nil {
		return "none"
	}
	return backend.Name()
}

// Cleanup releases resources held by the current backend
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend != nil {
		if err := m.backend.Cleanup(); err != nil {
			return err
		}
		m.backend = nil
	}
	return nil
}
