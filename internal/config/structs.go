//nolint:lll
package config

// Config is the complete craftocr configuration shared by all commands.
// Values come from defaults, a config file, CRAFTOCR_* environment
// variables and command-line flags, in increasing priority.
type Config struct {
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output" json:"output"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
	GPU      GPUConfig      `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
	ONNX     ONNXConfig     `mapstructure:"onnx" yaml:"onnx" json:"onnx"`
}

// PipelineConfig contains OCR pipeline settings.
type PipelineConfig struct {
	Detector   DetectorConfig   `mapstructure:"detector" yaml:"detector" json:"detector"`
	Recognizer RecognizerConfig `mapstructure:"recognizer" yaml:"recognizer" json:"recognizer"`
	Parallel   ParallelConfig   `mapstructure:"parallel" yaml:"parallel" json:"parallel"`

	// Mapped boxes narrower or shorter than this are not recognized.
	MinBoxSize       int `mapstructure:"min_box_size" yaml:"min_box_size" json:"min_box_size"`
	WarmupIterations int `mapstructure:"warmup_iterations" yaml:"warmup_iterations" json:"warmup_iterations"`
}

// DetectorConfig contains text detection settings.
type DetectorConfig struct {
	ModelPath     string      `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	TextThreshold float32     `mapstructure:"text_threshold" yaml:"text_threshold" json:"text_threshold"`
	LinkThreshold float32     `mapstructure:"link_threshold" yaml:"link_threshold" json:"link_threshold"`
	MinArea       int         `mapstructure:"min_area" yaml:"min_area" json:"min_area"`
	MaskStride    int         `mapstructure:"mask_stride" yaml:"mask_stride" json:"mask_stride"`
	InputHeight   int         `mapstructure:"input_height" yaml:"input_height" json:"input_height"`
	InputWidth    int         `mapstructure:"input_width" yaml:"input_width" json:"input_width"`
	WidthDivisor  int         `mapstructure:"width_divisor" yaml:"width_divisor" json:"width_divisor"`
	NumThreads    int         `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	InputQuant    QuantConfig `mapstructure:"input_quant" yaml:"input_quant" json:"input_quant"`
}

// RecognizerConfig contains text recognition settings.
type RecognizerConfig struct {
	ModelPath  string `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	LabelsPath string `mapstructure:"labels_path" yaml:"labels_path" json:"labels_path"`
	// BlankIndex selects the CTC blank class; -1 means the last label.
	BlankIndex   int         `mapstructure:"blank_index" yaml:"blank_index" json:"blank_index"`
	ImageHeight  int         `mapstructure:"image_height" yaml:"image_height" json:"image_height"`
	ImageWidth   int         `mapstructure:"image_width" yaml:"image_width" json:"image_width"`
	WidthDivisor int         `mapstructure:"width_divisor" yaml:"width_divisor" json:"width_divisor"`
	NumThreads   int         `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	InputQuant   QuantConfig `mapstructure:"input_quant" yaml:"input_quant" json:"input_quant"`
}

// QuantConfig holds affine quantization for integer model inputs. A zero
// scale means the encoder default.
type QuantConfig struct {
	Scale     float32 `mapstructure:"scale" yaml:"scale" json:"scale"`
	ZeroPoint int32   `mapstructure:"zero_point" yaml:"zero_point" json:"zero_point"`
}

// ParallelConfig contains parallel processing settings.
type ParallelConfig struct {
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format          string `mapstructure:"format" yaml:"format" json:"format"`
	File            string `mapstructure:"file" yaml:"file" json:"file"`
	OverlayDir      string `mapstructure:"overlay_dir" yaml:"overlay_dir" json:"overlay_dir"`
	OverlayBoxColor string `mapstructure:"overlay_box_color" yaml:"overlay_box_color" json:"overlay_box_color"`
	SortTopLeft     bool   `mapstructure:"sort_top_left" yaml:"sort_top_left" json:"sort_top_left"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// GPUConfig contains GPU acceleration settings.
type GPUConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Device      int    `mapstructure:"device" yaml:"device" json:"device"`
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
}

// ONNXConfig locates the ONNX Runtime shared library.
type ONNXConfig struct {
	LibraryPath string `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
}
