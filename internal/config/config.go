package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/craftocr/internal/detector"
	"github.com/MeKo-Tech/craftocr/internal/models"
	"github.com/MeKo-Tech/craftocr/internal/onnx"
	"github.com/MeKo-Tech/craftocr/internal/pipeline"
	"github.com/MeKo-Tech/craftocr/internal/recognizer"
	"github.com/MeKo-Tech/craftocr/internal/tensor"
	"github.com/MeKo-Tech/craftocr/internal/utils"
)

var (
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validFormats   = []string{"text", "json", "csv"}
)

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	det := detector.DefaultConfig()
	rec := recognizer.DefaultConfig()
	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		Pipeline: PipelineConfig{
			Detector: DetectorConfig{
				TextThreshold: det.Thresholds.Text,
				LinkThreshold: det.Thresholds.Link,
				MinArea:       det.MinArea,
				MaskStride:    det.MaskStride,
				InputHeight:   det.InputHeight,
				InputWidth:    det.InputWidth,
				WidthDivisor:  det.WidthDivisor,
			},
			Recognizer: RecognizerConfig{
				BlankIndex:   -1,
				ImageHeight:  rec.InputHeight,
				ImageWidth:   rec.InputWidth,
				WidthDivisor: rec.WidthDivisor,
			},
			Parallel:   ParallelConfig{MaxWorkers: 1},
			MinBoxSize: pipeline.DefaultMinBoxSize,
		},
		Output: OutputConfig{
			Format:          "text",
			OverlayBoxColor: "#FF0000",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
		},
		GPU: GPUConfig{MemoryLimit: "auto"},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}
	if c.Output.OverlayBoxColor != "" {
		if _, err := utils.ParseHexColor(c.Output.OverlayBoxColor); err != nil {
			return fmt.Errorf("invalid output.overlay_box_color: %w", err)
		}
	}

	d := c.Pipeline.Detector
	if err := validateThreshold(float64(d.TextThreshold), "detector.text_threshold"); err != nil {
		return err
	}
	if err := validateThreshold(float64(d.LinkThreshold), "detector.link_threshold"); err != nil {
		return err
	}
	if d.MinArea < 0 {
		return fmt.Errorf("invalid detector.min_area: %d (must be non-negative)", d.MinArea)
	}
	if d.MaskStride < 1 {
		return fmt.Errorf("invalid detector.mask_stride: %d (must be positive)", d.MaskStride)
	}
	if d.InputHeight < 0 || d.InputWidth < 0 || d.WidthDivisor < 0 {
		return fmt.Errorf("invalid detector input size %dx%d (divisor %d)", d.InputWidth, d.InputHeight, d.WidthDivisor)
	}

	r := c.Pipeline.Recognizer
	if r.BlankIndex < -1 {
		return fmt.Errorf("invalid recognizer.blank_index: %d (must be -1 or a label index)", r.BlankIndex)
	}
	if r.ImageHeight < 0 || r.ImageWidth < 0 || r.WidthDivisor < 0 {
		return fmt.Errorf("invalid recognizer input size %dx%d (divisor %d)", r.ImageWidth, r.ImageHeight, r.WidthDivisor)
	}
	if err := validateQuant(d.InputQuant, "detector.input_quant"); err != nil {
		return err
	}
	if err := validateQuant(r.InputQuant, "recognizer.input_quant"); err != nil {
		return err
	}

	if c.Pipeline.Parallel.MaxWorkers <= 0 {
		return fmt.Errorf("invalid parallel max workers: %d (must be positive)", c.Pipeline.Parallel.MaxWorkers)
	}
	if c.Pipeline.MinBoxSize < 0 {
		return fmt.Errorf("invalid pipeline.min_box_size: %d (must be non-negative)", c.Pipeline.MinBoxSize)
	}
	if c.Pipeline.WarmupIterations < 0 {
		return fmt.Errorf("invalid pipeline.warmup_iterations: %d (must be non-negative)", c.Pipeline.WarmupIterations)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}

	if c.GPU.Device < 0 {
		return fmt.Errorf("invalid GPU device: %d", c.GPU.Device)
	}
	if _, err := parseMemoryLimit(c.GPU.MemoryLimit); err != nil {
		return fmt.Errorf("invalid GPU memory limit: %w", err)
	}
	return nil
}

// ToPipelineConfig converts the loaded configuration to a pipeline config.
// Empty model and label paths fall back to the models directory.
func (c *Config) ToPipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	dir := models.GetModelsDir(c.ModelsDir)
	cfg.ModelsDir = dir

	gpu := c.toGPUConfig()
	cfg.DetectorModel = onnx.Config{
		ModelPath:   firstNonEmpty(c.Pipeline.Detector.ModelPath, models.DetectorPath(dir)),
		LibraryPath: c.ONNX.LibraryPath,
		NumThreads:  c.Pipeline.Detector.NumThreads,
		GPU:         gpu,
		InputQuant:  c.Pipeline.Detector.InputQuant.toQuantization(),
	}
	cfg.RecognizerModel = onnx.Config{
		ModelPath:   firstNonEmpty(c.Pipeline.Recognizer.ModelPath, models.RecognizerPath(dir)),
		LibraryPath: c.ONNX.LibraryPath,
		NumThreads:  c.Pipeline.Recognizer.NumThreads,
		GPU:         gpu,
		InputQuant:  c.Pipeline.Recognizer.InputQuant.toQuantization(),
	}
	cfg.LabelsPath = firstNonEmpty(c.Pipeline.Recognizer.LabelsPath, models.LabelsPath(dir))
	cfg.BlankIndex = c.Pipeline.Recognizer.BlankIndex

	d := c.Pipeline.Detector
	cfg.Detector = detector.Config{
		Thresholds:   detector.Thresholds{Text: d.TextThreshold, Link: d.LinkThreshold},
		MinArea:      d.MinArea,
		MaskStride:   d.MaskStride,
		InputHeight:  d.InputHeight,
		InputWidth:   d.InputWidth,
		WidthDivisor: d.WidthDivisor,
	}
	r := c.Pipeline.Recognizer
	cfg.Recognizer = recognizer.Config{
		InputHeight:  r.ImageHeight,
		InputWidth:   r.ImageWidth,
		WidthDivisor: r.WidthDivisor,
	}

	cfg.MinBoxSize = c.Pipeline.MinBoxSize
	cfg.MaxWorkers = c.Pipeline.Parallel.MaxWorkers
	cfg.WarmupIterations = c.Pipeline.WarmupIterations
	return cfg
}

func (c *Config) toGPUConfig() onnx.GPUConfig {
	limit, _ := parseMemoryLimit(c.GPU.MemoryLimit)
	return onnx.GPUConfig{Enabled: c.GPU.Enabled, DeviceID: c.GPU.Device, MemLimit: limit}
}

func (q QuantConfig) toQuantization() *tensor.Quantization {
	if q.Scale == 0 {
		return nil
	}
	return &tensor.Quantization{Scale: q.Scale, ZeroPoint: q.ZeroPoint}
}

// ToYAML renders the configuration as YAML.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// FromYAML parses YAML on top of the defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := c.ToYAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

func validateQuant(q QuantConfig, name string) error {
	if q.Scale < 0 {
		return fmt.Errorf("invalid %s.scale: %g (must be non-negative)", name, q.Scale)
	}
	return nil
}

var memoryUnits = []struct {
	suffix string
	factor float64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// parseMemoryLimit converts "auto", "" or a size like "512MB" to bytes.
// Zero means no limit.
func parseMemoryLimit(limit string) (uint64, error) {
	s := strings.ToUpper(strings.TrimSpace(limit))
	if s == "" || s == "AUTO" {
		return 0, nil
	}
	for _, u := range memoryUnits {
		if !strings.HasSuffix(s, u.suffix) {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid number in memory limit: %s", limit)
		}
		return uint64(n * u.factor), nil
	}
	return 0, fmt.Errorf("memory limit must end with one of: B, KB, MB, GB")
}
