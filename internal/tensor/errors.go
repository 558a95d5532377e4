package tensor

import "fmt"

// UnsupportedLayoutError is returned when no channel axis can be identified in a shape.
type UnsupportedLayoutError struct {
	Shape []int64
}

func (e *UnsupportedLayoutError) Error() string {
	return fmt.Sprintf("unsupported tensor layout %v: expected rank 4 with 1 or 3 channels at dim 1 or dim 3", e.Shape)
}

// UnsupportedDtypeError is returned for element types other than float32, uint8 and int8.
type UnsupportedDtypeError struct {
	DType DType
}

func (e *UnsupportedDtypeError) Error() string {
	return fmt.Sprintf("unsupported tensor dtype %s", e.DType)
}

// BufferSizeMismatchError reports an encoded buffer whose length differs from the
// size implied by the resolved shape and dtype.
type BufferSizeMismatchError struct {
	Got  int
	Want int
}

func (e *BufferSizeMismatchError) Error() string {
	return fmt.Sprintf("buffer size mismatch: got %d bytes, want %d", e.Got, e.Want)
}
