// Package recognizer decodes text from cropped regions with a CTC recognition model.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/MeKo-Tech/craftocr/internal/inference"
	"github.com/MeKo-Tech/craftocr/internal/tensor"
)

// Config holds input sizing for dynamic recognizer inputs.
type Config struct {
	InputHeight  int
	InputWidth   int
	WidthDivisor int
}

// DefaultConfig matches the usual 64 pixel high, variable width recognizer input.
func DefaultConfig() Config {
	return Config{InputHeight: 64, WidthDivisor: 1}
}

// Validate rejects negative sizes.
func (c Config) Validate() error {
	if c.InputHeight < 0 || c.InputWidth < 0 || c.WidthDivisor < 0 {
		return fmt.Errorf("recognizer sizes must be non-negative: height=%d width=%d divisor=%d",
			c.InputHeight, c.InputWidth, c.WidthDivisor)
	}
	return nil
}

// Result is the recognized text of one region.
type Result struct {
	Text            string
	Confidence      float64
	CharConfidences []float64
	Indices         []int
	InputWidth      int
	InputHeight     int
	InferenceNs     int64
}

// Recognizer runs a recognition model and greedy-decodes its output.
type Recognizer struct {
	model  inference.Model
	labels *Labels
	cfg    Config
}

// New wraps model. labels must be non-nil.
func New(model inference.Model, labels *Labels, cfg Config) (*Recognizer, error) {
	if model == nil {
		return nil, errors.New("recognizer model is nil")
	}
	if labels == nil {
		return nil, &LabelLoadError{Err: ErrEmptyLabels}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := tensor.InferLayout(model.Input().Shape); err != nil {
		return nil, err
	}
	return &Recognizer{model: model, labels: labels, cfg: cfg}, nil
}

// Labels returns the label table.
func (r *Recognizer) Labels() *Labels { return r.labels }

// Model returns the wrapped model.
func (r *Recognizer) Model() inference.Model { return r.model }

// Encode converts a cropped region into the recognizer input buffer.
func (r *Recognizer) Encode(patch image.Image) (*tensor.Encoded, error) {
	return tensor.Encode(patch, r.model.Input(), tensor.EncodeOptions{
		HeightOverride: r.cfg.InputHeight,
		WidthOverride:  r.cfg.InputWidth,
		WidthDivisor:   r.cfg.WidthDivisor,
	})
}

// Infer runs the model on an encoded patch.
func (r *Recognizer) Infer(ctx context.Context, enc *tensor.Encoded) (*inference.Output, error) {
	return r.model.Run(ctx, enc.Data, enc.Shape())
}

// Decode turns a model output into text.
func (r *Recognizer) Decode(out *inference.Output) (*Decoded, error) {
	vals, err := tensor.ToFloat32(out.Data, out.DType, out.Quant)
	if err != nil {
		return nil, err
	}
	return DecodeGreedy(vals, out.Shape, r.labels)
}

// Recognize runs Encode, Infer and Decode on one patch.
func (r *Recognizer) Recognize(ctx context.Context, patch image.Image) (*Result, error) {
	enc, err := r.Encode(patch)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	start := time.Now()
	out, err := r.Infer(ctx, enc)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	elapsed := time.Since(start).Nanoseconds()
	dec, err := r.Decode(out)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &Result{
		Text:            dec.Text,
		Confidence:      dec.Confidence(),
		CharConfidences: dec.CharProbs,
		Indices:         dec.Collapsed,
		InputWidth:      enc.Width(),
		InputHeight:     enc.Height(),
		InferenceNs:     elapsed,
	}, nil
}
