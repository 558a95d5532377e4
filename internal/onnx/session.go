// Package onnx runs single-input, single-output models through ONNX Runtime
// and exposes them as inference.Model values.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/MeKo-Tech/craftocr/internal/inference"
	"github.com/MeKo-Tech/craftocr/internal/tensor"
)

// Config controls how a model file is loaded.
type Config struct {
	ModelPath   string
	LibraryPath string
	NumThreads  int
	GPU         GPUConfig
	// Quantization parameters are not part of the ONNX tensor metadata, so
	// integer models take them from configuration.
	InputQuant  *tensor.Quantization
	OutputQuant *tensor.Quantization
}

// Session is an ONNX Runtime session bound to one model file.
type Session struct {
	cfg     Config
	session *ort.DynamicAdvancedSession
	input   tensor.Descriptor
	output  tensor.Descriptor
	mu      sync.RWMutex
}

var _ inference.Model = (*Session)(nil)

func dtypeOf(t ort.TensorElementDataType) (tensor.DType, error) {
	switch t {
	case ort.TensorElementDataTypeFloat:
		return tensor.Float32, nil
	case ort.TensorElementDataTypeUint8:
		return tensor.Uint8, nil
	case ort.TensorElementDataTypeInt8:
		return tensor.Int8, nil
	default:
		return tensor.DTypeUnknown, fmt.Errorf("unsupported ONNX element type %v", t)
	}
}

func describe(info ort.InputOutputInfo, q *tensor.Quantization) (tensor.Descriptor, error) {
	dt, err := dtypeOf(info.DataType)
	if err != nil {
		return tensor.Descriptor{}, fmt.Errorf("%s: %w", info.Name, err)
	}
	return tensor.Descriptor{
		Name:  info.Name,
		Shape: append([]int64(nil), info.Dimensions...),
		DType: dt,
		Quant: q,
	}, nil
}

// NewSession loads cfg.ModelPath. The model must declare exactly one input and one output.
func NewSession(cfg Config) (*Session, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path cannot be empty")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not accessible: %w", err)
	}
	if err := cfg.GPU.Validate(); err != nil {
		return nil, err
	}
	if err := InitEnvironment(cfg.LibraryPath, cfg.GPU.Enabled); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("expected 1 input and 1 output, model has %d and %d", len(inputs), len(outputs))
	}
	in, err := describe(inputs[0], cfg.InputQuant)
	if err != nil {
		return nil, err
	}
	out, err := describe(outputs[0], cfg.OutputQuant)
	if err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("failed to destroy session options", "error", err)
		}
	}()
	if err := configureGPU(opts, cfg.GPU); err != nil {
		return nil, err
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	sess, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Debug("ONNX session created",
		"model_path", cfg.ModelPath,
		"input", in.String(),
		"output", out.String(),
		"gpu", cfg.GPU.Enabled)

	return &Session{cfg: cfg, session: sess, input: in, output: out}, nil
}

// Input implements inference.Model.
func (s *Session) Input() tensor.Descriptor { return s.input }

// Output implements inference.Model.
func (s *Session) Output() tensor.Descriptor { return s.output }

// ModelPath returns the loaded model file.
func (s *Session) ModelPath() string { return s.cfg.ModelPath }

func newInputValue(data []byte, shape []int64, dt tensor.DType) (ort.Value, error) {
	sh := ort.NewShape(shape...)
	switch dt {
	case tensor.Float32:
		vals, err := tensor.ToFloat32(data, dt, nil)
		if err != nil {
			return nil, err
		}
		return ort.NewTensor(sh, vals)
	case tensor.Uint8:
		return ort.NewTensor(sh, data)
	case tensor.Int8:
		vals := make([]int8, len(data))
		for i, b := range data {
			vals[i] = int8(b)
		}
		return ort.NewTensor(sh, vals)
	default:
		return nil, &tensor.UnsupportedDtypeError{DType: dt}
	}
}

func outputBytes(v ort.Value) ([]byte, tensor.DType, error) {
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		return tensor.FromFloat32(t.GetData()), tensor.Float32, nil
	case *ort.Tensor[uint8]:
		return append([]byte(nil), t.GetData()...), tensor.Uint8, nil
	case *ort.Tensor[int8]:
		src := t.GetData()
		out := make([]byte, len(src))
		for i, b := range src {
			out[i] = byte(b)
		}
		return out, tensor.Int8, nil
	default:
		return nil, tensor.DTypeUnknown, fmt.Errorf("unsupported output value %T", v)
	}
}

// Run implements inference.Model. ONNX Runtime calls are not interruptible, so
// ctx is only checked before the call.
func (s *Session) Run(ctx context.Context, input []byte, shape []int64) (*inference.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := tensor.ElementCount(shape)
	bpe, err := s.input.DType.BytesPerElement()
	if err != nil {
		return nil, err
	}
	if want*bpe != len(input) {
		return nil, &tensor.BufferSizeMismatchError{Got: len(input), Want: want * bpe}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, errors.New("session is closed")
	}

	in, err := newInputValue(input, shape, s.input.DType)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := in.Destroy(); err != nil {
			slog.Warn("failed to destroy input tensor", "error", err)
		}
	}()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		if err := outputs[0].Destroy(); err != nil {
			slog.Warn("failed to destroy output tensor", "error", err)
		}
	}()

	data, dt, err := outputBytes(outputs[0])
	if err != nil {
		return nil, err
	}
	return &inference.Output{
		Data:  data,
		Shape: append([]int64(nil), outputs[0].GetShape()...),
		DType: dt,
		Quant: s.output.Quant,
	}, nil
}

// Close releases the session. The runtime environment stays initialized.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}
