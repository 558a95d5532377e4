// Package tensor converts images into model input buffers and model output
// buffers back into float32 values. Buffers are raw bytes so the same code
// serves float32 and quantized (uint8/int8) models.
package tensor

import "fmt"

// Quantization holds the affine parameters of an integer tensor:
// real = (q - ZeroPoint) * Scale.
type Quantization struct {
	Scale     float32 `json:"scale" yaml:"scale"`
	ZeroPoint int32   `json:"zero_point" yaml:"zero_point"`
}

// Descriptor describes one model input or output.
// Dimensions <= 0 are dynamic and resolved at encode time.
type Descriptor struct {
	Name  string
	Shape []int64
	DType DType
	Quant *Quantization
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s %v %s", d.Name, d.Shape, d.DType)
}

// Layout names the position of the channel axis in a 4-D image tensor.
type Layout int

const (
	// ChannelsLast is [N, H, W, C].
	ChannelsLast Layout = iota
	// ChannelsFirst is [N, C, H, W].
	ChannelsFirst
)

func (l Layout) String() string {
	if l == ChannelsFirst {
		return "NCHW"
	}
	return "NHWC"
}

// Geometry is the layout view of a 4-D shape. Height and Width keep the raw
// (possibly dynamic) values from the shape.
type Geometry struct {
	Layout   Layout
	Batch    int64
	Channels int
	Height   int64
	Width    int64
}

func isChannelDim(v int64) bool { return v == 1 || v == 3 }

// InferLayout identifies the channel axis. The last dimension wins when both
// dimension 1 and dimension 3 look like channel counts.
func InferLayout(shape []int64) (Geometry, error) {
	if len(shape) != 4 {
		return Geometry{}, &UnsupportedLayoutError{Shape: shape}
	}
	switch {
	case isChannelDim(shape[3]):
		return Geometry{
			Layout: ChannelsLast, Batch: shape[0], Channels: int(shape[3]),
			Height: shape[1], Width: shape[2],
		}, nil
	case isChannelDim(shape[1]):
		return Geometry{
			Layout: ChannelsFirst, Batch: shape[0], Channels: int(shape[1]),
			Height: shape[2], Width: shape[3],
		}, nil
	default:
		return Geometry{}, &UnsupportedLayoutError{Shape: shape}
	}
}

// Shape returns the concrete shape for a resolved geometry.
func (g Geometry) Shape() []int64 {
	if g.Layout == ChannelsFirst {
		return []int64{g.Batch, int64(g.Channels), g.Height, g.Width}
	}
	return []int64{g.Batch, g.Height, g.Width, int64(g.Channels)}
}

// ElementCount multiplies all dimensions. Dynamic dimensions yield 0.
func ElementCount(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, v := range shape {
		if v <= 0 {
			return 0
		}
		n *= int(v)
	}
	return n
}
