package device

import "errors"

var (
	// ErrBackendUnavailable is returned when the requested backend is not
	// registered or not usable on this system.
	ErrBackendUnavailable = errors.New("device: backend unavailable")

	// ErrNotInitialized is returned by backends used before Initialize.
	ErrNotInitialized = errors.New("device: backend not initialized")

	// ErrReleased is returned when an array is used after Release.
	ErrReleased = errors.New("device: array released")

	// ErrOutOfDeviceMemory is returned when an allocation exceeds the
	// backend's memory limit.
	ErrOutOfDeviceMemory = errors.New("device: out of device memory")

	// ErrDimsMismatch is returned for invalid or incompatible dimensions.
	ErrDimsMismatch = errors.New("device: dims mismatch")

	// ErrTypeMismatch is returned when a host slice does not match the
	// array's element type, or an element type is unknown.
	ErrTypeMismatch = errors.New("device: type mismatch")

	// ErrPlaneOutOfRange is returned for plane indices outside [0, Planes).
	ErrPlaneOutOfRange = errors.New("device: plane out of range")

	// ErrForeignArray is returned when an array is handed to a backend
	// that did not allocate it.
	ErrForeignArray = errors.New("device: array belongs to another backend")
)
