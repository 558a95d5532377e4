package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/craftocr/internal/models"
	"github.com/MeKo-Tech/craftocr/internal/onnx"
	"github.com/MeKo-Tech/craftocr/internal/recognizer"
	"github.com/MeKo-Tech/craftocr/internal/tensor"
)

// Builder constructs a file-backed Pipeline with fluent configuration.
type Builder struct {
	cfg Config
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// NewBuilderFromConfig starts from an existing config.
func NewBuilderFromConfig(cfg Config) *Builder { return &Builder{cfg: cfg} }

// WithModelsDir points all default model paths at dir.
func (b *Builder) WithModelsDir(dir string) *Builder {
	if dir != "" {
		b.cfg.ModelsDir = dir
		b.cfg.DetectorModel.ModelPath = models.DetectorPath(dir)
		b.cfg.RecognizerModel.ModelPath = models.RecognizerPath(dir)
		b.cfg.LabelsPath = models.LabelsPath(dir)
	}
	return b
}

// WithDetectorModelPath overrides the detector model path.
func (b *Builder) WithDetectorModelPath(path string) *Builder {
	if path != "" {
		b.cfg.DetectorModel.ModelPath = path
	}
	return b
}

// WithRecognizerModelPath overrides the recognizer model path.
func (b *Builder) WithRecognizerModelPath(path string) *Builder {
	if path != "" {
		b.cfg.RecognizerModel.ModelPath = path
	}
	return b
}

// WithLabelsPath overrides the label file path.
func (b *Builder) WithLabelsPath(path string) *Builder {
	if path != "" {
		b.cfg.LabelsPath = path
	}
	return b
}

// WithBlankIndex selects the CTC blank class. Negative means the last label.
func (b *Builder) WithBlankIndex(i int) *Builder {
	b.cfg.BlankIndex = i
	return b
}

// WithThresholds sets the text and link thresholds.
func (b *Builder) WithThresholds(text, link float32) *Builder {
	b.cfg.Detector.Thresholds.Text = text
	b.cfg.Detector.Thresholds.Link = link
	return b
}

// WithMinArea sets the minimum component bounding-box area in mask cells.
func (b *Builder) WithMinArea(n int) *Builder {
	if n >= 0 {
		b.cfg.Detector.MinArea = n
	}
	return b
}

// WithMaskStride sets the ratio between detector input and output grid.
func (b *Builder) WithMaskStride(s int) *Builder {
	if s > 0 {
		b.cfg.Detector.MaskStride = s
	}
	return b
}

// WithDetectorInputSize sets overrides for dynamic detector inputs.
func (b *Builder) WithDetectorInputSize(height, width int) *Builder {
	b.cfg.Detector.InputHeight = max(height, 0)
	b.cfg.Detector.InputWidth = max(width, 0)
	return b
}

// WithRecognizerInputSize sets overrides for dynamic recognizer inputs.
func (b *Builder) WithRecognizerInputSize(height, width, divisor int) *Builder {
	b.cfg.Recognizer.InputHeight = max(height, 0)
	b.cfg.Recognizer.InputWidth = max(width, 0)
	b.cfg.Recognizer.WidthDivisor = max(divisor, 0)
	return b
}

// WithInputQuantization sets quantization for integer model inputs.
func (b *Builder) WithInputQuantization(det, rec *tensor.Quantization) *Builder {
	b.cfg.DetectorModel.InputQuant = det
	b.cfg.RecognizerModel.InputQuant = rec
	return b
}

// WithMinBoxSize sets the smallest mapped box side that is recognized.
func (b *Builder) WithMinBoxSize(n int) *Builder {
	if n >= 0 {
		b.cfg.MinBoxSize = n
	}
	return b
}

// WithParallelWorkers bounds concurrent recognizer calls per image.
func (b *Builder) WithParallelWorkers(n int) *Builder {
	if n > 0 {
		b.cfg.MaxWorkers = n
	}
	return b
}

// WithThreads sets intra-op thread counts for both models (if >0).
func (b *Builder) WithThreads(n int) *Builder {
	if n > 0 {
		b.cfg.DetectorModel.NumThreads = n
		b.cfg.RecognizerModel.NumThreads = n
	}
	return b
}

// WithGPU configures the CUDA provider for both models.
func (b *Builder) WithGPU(g onnx.GPUConfig) *Builder {
	b.cfg.DetectorModel.GPU = g
	b.cfg.RecognizerModel.GPU = g
	return b
}

// WithLibraryPath sets the ONNX Runtime shared library.
func (b *Builder) WithLibraryPath(path string) *Builder {
	b.cfg.DetectorModel.LibraryPath = path
	b.cfg.RecognizerModel.LibraryPath = path
	return b
}

// WithWarmupIterations sets model warmup runs to reduce cold-start latency.
func (b *Builder) WithWarmupIterations(n int) *Builder {
	if n >= 0 {
		b.cfg.WarmupIterations = n
	}
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks settings and that model and label files exist.
func (b *Builder) Validate() error {
	if err := b.cfg.Validate(); err != nil {
		return err
	}
	if err := models.ValidateExists("detector model", b.cfg.DetectorModel.ModelPath); err != nil {
		return err
	}
	if err := models.ValidateExists("recognizer model", b.cfg.RecognizerModel.ModelPath); err != nil {
		return err
	}
	return nil
}

// Build loads both models and the label table.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	labels, err := recognizer.LoadLabels(b.cfg.LabelsPath)
	if err != nil {
		return nil, err
	}

	det, err := onnx.NewSession(b.cfg.DetectorModel)
	if err != nil {
		return nil, fmt.Errorf("load detector model: %w", err)
	}
	rec, err := onnx.NewSession(b.cfg.RecognizerModel)
	if err != nil {
		_ = det.Close()
		return nil, fmt.Errorf("load recognizer model: %w", err)
	}

	p, err := New(det, rec, labels, b.cfg)
	if err != nil {
		_ = det.Close()
		_ = rec.Close()
		return nil, err
	}

	if n := b.cfg.WarmupIterations; n > 0 {
		if err := p.Warmup(context.Background(), n); err != nil {
			_ = p.Close()
			return nil, err
		}
	}
	slog.Debug("pipeline built",
		"detector", b.cfg.DetectorModel.ModelPath,
		"recognizer", b.cfg.RecognizerModel.ModelPath,
		"labels", labels.Len())
	return p, nil
}
