package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "craftocr"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "CRAFTOCR"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so that cobra
// flag bindings are visible.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on v.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads defaults, the first config file found on the search paths and
// the environment, then validates the result.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithFile is Load with an explicit config file. An empty path searches
// the standard locations and tolerates a missing file.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	cfg, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithFileWithoutValidation loads like LoadWithFile but skips Validate.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for flag binding.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so that AutomaticEnv can resolve it
// during Unmarshal.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("models_dir", d.ModelsDir)
	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("pipeline.detector.model_path", d.Pipeline.Detector.ModelPath)
	l.v.SetDefault("pipeline.detector.text_threshold", d.Pipeline.Detector.TextThreshold)
	l.v.SetDefault("pipeline.detector.link_threshold", d.Pipeline.Detector.LinkThreshold)
	l.v.SetDefault("pipeline.detector.min_area", d.Pipeline.Detector.MinArea)
	l.v.SetDefault("pipeline.detector.mask_stride", d.Pipeline.Detector.MaskStride)
	l.v.SetDefault("pipeline.detector.input_height", d.Pipeline.Detector.InputHeight)
	l.v.SetDefault("pipeline.detector.input_width", d.Pipeline.Detector.InputWidth)
	l.v.SetDefault("pipeline.detector.width_divisor", d.Pipeline.Detector.WidthDivisor)
	l.v.SetDefault("pipeline.detector.num_threads", d.Pipeline.Detector.NumThreads)
	l.v.SetDefault("pipeline.detector.input_quant.scale", d.Pipeline.Detector.InputQuant.Scale)
	l.v.SetDefault("pipeline.detector.input_quant.zero_point", d.Pipeline.Detector.InputQuant.ZeroPoint)

	l.v.SetDefault("pipeline.recognizer.model_path", d.Pipeline.Recognizer.ModelPath)
	l.v.SetDefault("pipeline.recognizer.labels_path", d.Pipeline.Recognizer.LabelsPath)
	l.v.SetDefault("pipeline.recognizer.blank_index", d.Pipeline.Recognizer.BlankIndex)
	l.v.SetDefault("pipeline.recognizer.image_height", d.Pipeline.Recognizer.ImageHeight)
	l.v.SetDefault("pipeline.recognizer.image_width", d.Pipeline.Recognizer.ImageWidth)
	l.v.SetDefault("pipeline.recognizer.width_divisor", d.Pipeline.Recognizer.WidthDivisor)
	l.v.SetDefault("pipeline.recognizer.num_threads", d.Pipeline.Recognizer.NumThreads)
	l.v.SetDefault("pipeline.recognizer.input_quant.scale", d.Pipeline.Recognizer.InputQuant.Scale)
	l.v.SetDefault("pipeline.recognizer.input_quant.zero_point", d.Pipeline.Recognizer.InputQuant.ZeroPoint)

	l.v.SetDefault("pipeline.parallel.max_workers", d.Pipeline.Parallel.MaxWorkers)
	l.v.SetDefault("pipeline.min_box_size", d.Pipeline.MinBoxSize)
	l.v.SetDefault("pipeline.warmup_iterations", d.Pipeline.WarmupIterations)

	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.file", d.Output.File)
	l.v.SetDefault("output.overlay_dir", d.Output.OverlayDir)
	l.v.SetDefault("output.overlay_box_color", d.Output.OverlayBoxColor)
	l.v.SetDefault("output.sort_top_left", d.Output.SortTopLeft)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	l.v.SetDefault("gpu.enabled", d.GPU.Enabled)
	l.v.SetDefault("gpu.device", d.GPU.Device)
	l.v.SetDefault("gpu.memory_limit", d.GPU.MemoryLimit)

	l.v.SetDefault("onnx.library_path", d.ONNX.LibraryPath)
}

// GenerateDefaultConfigFile writes the default configuration as YAML.
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	cfg := DefaultConfig()
	return cfg.Save(filename)
}

// GetConfigSearchPaths returns the directories searched for craftocr.yaml.
func GetConfigSearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}
	return append(paths, "/etc/"+ConfigFileName)
}
