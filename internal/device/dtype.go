package device

import "fmt"

// DType is the element type of a device array.
type DType uint8

const (
	Float32 DType = iota
	Float64
	Uint8
)

// Size returns the byte size of one element.
func (d DType) Size() int {
	switch d {
	case Float32:
		return 4
	case Float64:
		return 8
	case Uint8:
		return 1
	default:
		return 0
	}
}

func (d DType) String() string {
	switch d {
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	case Uint8:
		return "u8"
	default:
		return fmt.Sprintf("DType(%d)", uint8(d))
	}
}

// Valid reports whether d is one of the supported element types.
func (d DType) Valid() bool {
	return d <= Uint8
}
