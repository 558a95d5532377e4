package onnx

import (
	"fmt"
	"log/slog"
	"strconv"

	ort "github.com/yalue/onnxruntime_go"
)

// GPUConfig enables the CUDA execution provider.
type GPUConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	DeviceID int    `mapstructure:"device_id" yaml:"device_id" json:"device_id"`
	MemLimit uint64 `mapstructure:"mem_limit" yaml:"mem_limit" json:"mem_limit"`
}

// Validate checks the GPU settings. Disabled configs are always valid.
func (g GPUConfig) Validate() error {
	if g.Enabled && g.DeviceID < 0 {
		return fmt.Errorf("gpu device id must be non-negative, got %d", g.DeviceID)
	}
	return nil
}

func (g GPUConfig) providerSettings() map[string]string {
	s := map[string]string{
		"device_id":                 strconv.Itoa(g.DeviceID),
		"arena_extend_strategy":     "kNextPowerOfTwo",
		"do_copy_in_default_stream": "1",
	}
	if g.MemLimit > 0 {
		s["gpu_mem_limit"] = strconv.FormatUint(g.MemLimit, 10)
	}
	return s
}

func configureGPU(opts *ort.SessionOptions, g GPUConfig) error {
	if !g.Enabled {
		return nil
	}
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("failed to create CUDA provider options: %w", err)
	}
	defer func() {
		if err := cuda.Destroy(); err != nil {
			slog.Warn("failed to destroy CUDA provider options", "error", err)
		}
	}()
	if err := cuda.Update(g.providerSettings()); err != nil {
		return fmt.Errorf("failed to update CUDA provider options: %w", err)
	}
	if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
		return fmt.Errorf("failed to append CUDA execution provider: %w", err)
	}
	return nil
}
