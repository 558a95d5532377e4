// Package detector turns text/link score maps from a CRAFT-style detection
// model into boxes in original image coordinates.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/craftocr/internal/inference"
	"github.com/MeKo-Tech/craftocr/internal/mempool"
	"github.com/MeKo-Tech/craftocr/internal/tensor"
)

// Config holds detection post-processing settings.
type Config struct {
	Thresholds Thresholds
	MinArea    int
	MaskStride int
	// Used only when the model input height or width is dynamic.
	InputHeight  int
	InputWidth   int
	WidthDivisor int
}

// DefaultConfig returns the standard CRAFT settings.
func DefaultConfig() Config {
	return Config{
		Thresholds:   DefaultThresholds(),
		MinArea:      DefaultMinArea,
		MaskStride:   DefaultMaskStride,
		WidthDivisor: 32,
	}
}

// Validate checks threshold ranges and positive sizes.
func (c Config) Validate() error {
	if c.Thresholds.Text < 0 || c.Thresholds.Text > 1 {
		return fmt.Errorf("text threshold must be in [0,1], got %f", c.Thresholds.Text)
	}
	if c.Thresholds.Link < 0 || c.Thresholds.Link > 1 {
		return fmt.Errorf("link threshold must be in [0,1], got %f", c.Thresholds.Link)
	}
	if c.MinArea < 0 {
		return fmt.Errorf("min area must be non-negative, got %d", c.MinArea)
	}
	if c.MaskStride <= 0 {
		return fmt.Errorf("mask stride must be positive, got %d", c.MaskStride)
	}
	if c.InputHeight < 0 || c.InputWidth < 0 || c.WidthDivisor < 0 {
		return errors.New("input size overrides must be non-negative")
	}
	return nil
}

// Region is one detected text box.
type Region struct {
	Box        ImageBox `json:"box"`
	MaskBox    MaskBox  `json:"mask_box"`
	Confidence float64  `json:"confidence"`
	Pixels     int      `json:"pixels"`
}

// Result is the outcome of detection on one image.
type Result struct {
	Regions         []Region
	OriginalWidth   int
	OriginalHeight  int
	ResizedWidth    int
	ResizedHeight   int
	MaskWidth       int
	MaskHeight      int
	ForegroundCells int
	InferenceNs     int64
	PostprocessNs   int64
}

// Detector runs a detection model and post-processes its score map.
type Detector struct {
	model inference.Model
	cfg   Config
}

// New wraps model. The model input must have an identifiable channel axis.
func New(model inference.Model, cfg Config) (*Detector, error) {
	if model == nil {
		return nil, errors.New("detector model is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}
	if _, err := tensor.InferLayout(model.Input().Shape); err != nil {
		return nil, err
	}
	return &Detector{model: model, cfg: cfg}, nil
}

// Config returns the detector settings.
func (d *Detector) Config() Config { return d.cfg }

// Model returns the wrapped model.
func (d *Detector) Model() inference.Model { return d.model }

// Encode converts img into the detector input buffer.
func (d *Detector) Encode(img image.Image) (*tensor.Encoded, error) {
	return tensor.Encode(img, d.model.Input(), tensor.EncodeOptions{
		HeightOverride: d.cfg.InputHeight,
		WidthOverride:  d.cfg.InputWidth,
		WidthDivisor:   d.cfg.WidthDivisor,
	})
}

// Infer runs the model and returns its output as a score map. The backing
// slice comes from mempool; release it with ReleaseScoreMap.
func (d *Detector) Infer(ctx context.Context, enc *tensor.Encoded) (ScoreMap, error) {
	out, err := d.model.Run(ctx, enc.Data, enc.Shape())
	if err != nil {
		return ScoreMap{}, err
	}
	n, err := tensor.ElementsIn(out.Data, out.DType)
	if err != nil {
		return ScoreMap{}, err
	}
	vals := mempool.GetFloat32(n)
	if err := tensor.DecodeInto(vals, out.Data, out.DType, out.Quant); err != nil {
		mempool.PutFloat32(vals)
		return ScoreMap{}, err
	}
	sm, err := NewScoreMap(vals, out.Shape)
	if err != nil {
		mempool.PutFloat32(vals)
		return ScoreMap{}, err
	}
	return sm, nil
}

// ReleaseScoreMap returns the buffer of a map produced by Infer.
func ReleaseScoreMap(sm ScoreMap) { mempool.PutFloat32(sm.Data) }

// Postprocess binarizes sm, extracts components and maps them onto the original image.
func (d *Detector) Postprocess(sm ScoreMap, enc *tensor.Encoded) (*Result, error) {
	mapper := Mapper{
		Stride:         d.cfg.MaskStride,
		MaskWidth:      sm.Width,
		MaskHeight:     sm.Height,
		ResizedWidth:   enc.Width(),
		ResizedHeight:  enc.Height(),
		OriginalWidth:  enc.SourceWidth,
		OriginalHeight: enc.SourceHeight,
	}
	if err := mapper.Validate(); err != nil {
		return nil, err
	}

	mask := Binarize(sm, d.cfg.Thresholds)
	comps := FindComponents(mask, sm.TextProbabilities(), d.cfg.MinArea)

	res := &Result{
		Regions:         make([]Region, 0, len(comps)),
		OriginalWidth:   enc.SourceWidth,
		OriginalHeight:  enc.SourceHeight,
		ResizedWidth:    enc.Width(),
		ResizedHeight:   enc.Height(),
		MaskWidth:       sm.Width,
		MaskHeight:      sm.Height,
		ForegroundCells: mask.Count(),
	}
	for _, c := range comps {
		res.Regions = append(res.Regions, Region{
			Box:        mapper.Map(c.Box),
			MaskBox:    c.Box,
			Confidence: c.MeanScore,
			Pixels:     c.Pixels,
		})
	}

	slog.Debug("detection postprocessed",
		"mask_w", sm.Width, "mask_h", sm.Height,
		"foreground", res.ForegroundCells,
		"components", len(comps))
	return res, nil
}

// Detect runs Encode, Infer and Postprocess.
func (d *Detector) Detect(ctx context.Context, img image.Image) (*Result, error) {
	enc, err := d.Encode(img)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	start := time.Now()
	sm, err := d.Infer(ctx, enc)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	defer ReleaseScoreMap(sm)
	inferNs := time.Since(start).Nanoseconds()

	start = time.Now()
	res, err := d.Postprocess(sm, enc)
	if err != nil {
		return nil, fmt.Errorf("postprocess: %w", err)
	}
	res.InferenceNs = inferNs
	res.PostprocessNs = time.Since(start).Nanoseconds()
	return res, nil
}
