// Package pipeline chains detection and recognition into a single OCR pass
// over an image.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/craftocr/internal/detector"
	"github.com/MeKo-Tech/craftocr/internal/inference"
	"github.com/MeKo-Tech/craftocr/internal/models"
	"github.com/MeKo-Tech/craftocr/internal/onnx"
	"github.com/MeKo-Tech/craftocr/internal/recognizer"
)

// DefaultMinBoxSize is the smallest mapped width or height that is sent to the recognizer.
const DefaultMinBoxSize = 5

// Config holds configuration for the OCR pipeline and its components.
type Config struct {
	ModelsDir       string
	DetectorModel   onnx.Config
	RecognizerModel onnx.Config
	LabelsPath      string
	// BlankIndex selects the CTC blank class; negative means the last label.
	BlankIndex int

	Detector   detector.Config
	Recognizer recognizer.Config

	MinBoxSize int
	// MaxWorkers bounds concurrent recognizer calls per image. 1 is sequential.
	MaxWorkers       int
	WarmupIterations int
}

// DefaultConfig returns a default pipeline config with component defaults.
func DefaultConfig() Config {
	dir := models.GetModelsDir("")
	return Config{
		ModelsDir:       dir,
		DetectorModel:   onnx.Config{ModelPath: models.DetectorPath(dir)},
		RecognizerModel: onnx.Config{ModelPath: models.RecognizerPath(dir)},
		LabelsPath:      models.LabelsPath(dir),
		BlankIndex:      -1,
		Detector:        detector.DefaultConfig(),
		Recognizer:      recognizer.DefaultConfig(),
		MinBoxSize:      DefaultMinBoxSize,
		MaxWorkers:      1,
	}
}

// Validate checks settings that do not touch the filesystem.
func (c Config) Validate() error {
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := c.Recognizer.Validate(); err != nil {
		return fmt.Errorf("recognizer: %w", err)
	}
	if c.MinBoxSize < 0 {
		return fmt.Errorf("min box size must be non-negative, got %d", c.MinBoxSize)
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max workers must be >= 1, got %d", c.MaxWorkers)
	}
	if c.WarmupIterations < 0 {
		return errors.New("warmup iterations must be non-negative")
	}
	return nil
}

// Pipeline holds loaded models and settings. It is safe for concurrent use;
// nothing in it changes after construction.
type Pipeline struct {
	cfg        Config
	Detector   *detector.Detector
	Recognizer *recognizer.Recognizer
}

// New assembles a pipeline from already loaded models. The pipeline takes
// ownership of both models and closes them in Close.
func New(det, rec inference.Model, labels *recognizer.Labels, cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if labels == nil {
		return nil, &recognizer.LabelLoadError{Err: recognizer.ErrEmptyLabels}
	}
	if cfg.BlankIndex >= 0 {
		var err error
		if labels, err = labels.WithBlank(cfg.BlankIndex); err != nil {
			return nil, err
		}
	}
	d, err := detector.New(det, cfg.Detector)
	if err != nil {
		return nil, fmt.Errorf("init detector: %w", err)
	}
	r, err := recognizer.New(rec, labels, cfg.Recognizer)
	if err != nil {
		return nil, fmt.Errorf("init recognizer: %w", err)
	}
	return &Pipeline{cfg: cfg, Detector: d, Recognizer: r}, nil
}

// Close releases both models.
func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.Recognizer != nil {
		errs = append(errs, p.Recognizer.Model().Close())
	}
	if p.Detector != nil {
		errs = append(errs, p.Detector.Model().Close())
	}
	return errors.Join(errs...)
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Info describes the loaded models and key settings.
func (p *Pipeline) Info() map[string]any {
	det, rec := p.Detector.Model(), p.Recognizer.Model()
	dc := p.Detector.Config()
	return map[string]any{
		"detector": map[string]any{
			"input":          det.Input().String(),
			"output":         det.Output().String(),
			"text_threshold": dc.Thresholds.Text,
			"link_threshold": dc.Thresholds.Link,
			"min_area":       dc.MinArea,
			"mask_stride":    dc.MaskStride,
		},
		"recognizer": map[string]any{
			"input":       rec.Input().String(),
			"output":      rec.Output().String(),
			"labels":      p.Recognizer.Labels().Len(),
			"blank_index": p.Recognizer.Labels().Blank(),
		},
		"min_box_size": p.cfg.MinBoxSize,
		"max_workers":  p.cfg.MaxWorkers,
	}
}
