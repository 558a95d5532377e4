// Package inference defines the contract between the OCR pipeline and a model
// runtime. The pipeline only exchanges raw byte buffers plus shape and dtype
// metadata with a Model; everything inside Run is opaque.
package inference

import (
	"context"
	"fmt"

	"github.com/MeKo-Tech/craftocr/internal/tensor"
)

// Model is a loaded model with exactly one input and one output.
type Model interface {
	// Input describes the input tensor. Dimensions <= 0 are dynamic.
	Input() tensor.Descriptor
	// Output describes the output tensor as declared by the model.
	Output() tensor.Descriptor
	// Run executes the model on a buffer laid out for the concrete input shape.
	Run(ctx context.Context, input []byte, shape []int64) (*Output, error)
	Close() error
}

// Output is the result of a single Run.
type Output struct {
	Data  []byte
	Shape []int64
	DType tensor.DType
	Quant *tensor.Quantization
}

// Float32 decodes the output into real values.
func (o *Output) Float32() ([]float32, error) {
	vals, err := tensor.ToFloat32(o.Data, o.DType, o.Quant)
	if err != nil {
		return nil, err
	}
	if n := tensor.ElementCount(o.Shape); n != len(vals) {
		return nil, fmt.Errorf("output shape %v holds %d elements, buffer has %d", o.Shape, n, len(vals))
	}
	return vals, nil
}
