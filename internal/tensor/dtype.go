package tensor

import (
	"fmt"
	"strings"
)

// DType is the element type of a model input or output tensor.
type DType int

const (
	DTypeUnknown DType = iota
	Float32
	Uint8
	Int8
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// BytesPerElement returns the element width in bytes.
func (d DType) BytesPerElement() (int, error) {
	switch d {
	case Float32:
		return 4, nil
	case Uint8, Int8:
		return 1, nil
	default:
		return 0, &UnsupportedDtypeError{DType: d}
	}
}

// ParseDType accepts the names used in configuration files.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float32", "float", "f32":
		return Float32, nil
	case "uint8", "u8":
		return Uint8, nil
	case "int8", "i8":
		return Int8, nil
	default:
		return DTypeUnknown, fmt.Errorf("unknown dtype %q", s)
	}
}
