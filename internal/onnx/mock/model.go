// Package mock provides in-memory inference.Model implementations and
// synthetic detector/recognizer outputs for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MeKo-Tech/craftocr/internal/inference"
	"github.com/MeKo-Tech/craftocr/internal/tensor"
)

// RunFunc produces the output for one call.
type RunFunc func(ctx context.Context, input []byte, shape []int64) (*inference.Output, error)

// Model is a scripted inference.Model. It records every call.
type Model struct {
	In  tensor.Descriptor
	Out tensor.Descriptor
	Fn  RunFunc

	mu     sync.Mutex
	calls  [][]int64
	closed bool
}

var _ inference.Model = (*Model)(nil)

func (m *Model) Input() tensor.Descriptor  { return m.In }
func (m *Model) Output() tensor.Descriptor { return m.Out }

func (m *Model) Run(ctx context.Context, input []byte, shape []int64) (*inference.Output, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]int64(nil), shape...))
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.Fn(ctx, input, shape)
}

func (m *Model) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Calls returns the input shapes of every Run so far.
func (m *Model) Calls() [][]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]int64(nil), m.calls...)
}

// Closed reports whether Close was called.
func (m *Model) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Float32Output wraps float32 values as an inference output.
func Float32Output(values []float32, shape ...int64) *inference.Output {
	return &inference.Output{Data: tensor.FromFloat32(values), Shape: shape, DType: tensor.Float32}
}

// Fixed returns a RunFunc that always yields out.
func Fixed(out *inference.Output) RunFunc {
	return func(context.Context, []byte, []int64) (*inference.Output, error) {
		return out, nil
	}
}
