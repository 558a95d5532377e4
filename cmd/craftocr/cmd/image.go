package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/craftocr/internal/config"
	"github.com/MeKo-Tech/craftocr/internal/pipeline"
	"github.com/MeKo-Tech/craftocr/internal/utils"
)

const (
	outputFormatJSON = "json"
	outputFormatCSV  = "csv"
	outputFormatText = "text"
)

// newPipeline builds the OCR pipeline. Tests replace it with mock models.
var newPipeline = func(cfg pipeline.Config) (*pipeline.Pipeline, error) {
	return pipeline.NewBuilderFromConfig(cfg).Build()
}

// fileResult pairs an input path with its OCR result in JSON output.
type fileResult struct {
	File string                   `json:"file"`
	OCR  *pipeline.OCRImageResult `json:"ocr"`
}

// imageCmd represents the image command.
var imageCmd = &cobra.Command{
	Use:   "image [files...]",
	Short: "Process images for OCR text detection and recognition",
	Long: `Process one or more image files to extract text using OCR.

Supported formats: JPEG, PNG, BMP, TIFF, WebP

Examples:
  craftocr image photo.jpg
  craftocr image *.png --format json
  craftocr image scan.tiff --overlay-dir out/ --sort`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, imageFlagBindings)
	},
	RunE: runImage,
}

var imageFlagBindings = []flagBinding{
	{"output.format", "format"},
	{"output.file", "output"},
	{"output.overlay_dir", "overlay-dir"},
	{"output.overlay_box_color", "overlay-box-color"},
	{"output.sort_top_left", "sort"},
	{"pipeline.detector.model_path", "det-model"},
	{"pipeline.detector.text_threshold", "text-threshold"},
	{"pipeline.detector.link_threshold", "link-threshold"},
	{"pipeline.detector.min_area", "min-area"},
	{"pipeline.detector.mask_stride", "mask-stride"},
	{"pipeline.recognizer.model_path", "rec-model"},
	{"pipeline.recognizer.labels_path", "labels"},
	{"pipeline.recognizer.blank_index", "blank-index"},
	{"pipeline.recognizer.image_height", "rec-height"},
	{"pipeline.min_box_size", "min-box-size"},
	{"pipeline.parallel.max_workers", "workers"},
	{"gpu.enabled", "gpu"},
	{"gpu.device", "gpu-device"},
	{"gpu.memory_limit", "gpu-mem-limit"},
}

func addImageFlags(cmd *cobra.Command) {
	d := config.DefaultConfig()
	cmd.Flags().StringP("format", "f", d.Output.Format, "output format (text, json, csv)")
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	cmd.Flags().String("overlay-dir", "", "directory to write overlay images with region boxes")
	cmd.Flags().String("overlay-box-color", d.Output.OverlayBoxColor, "overlay box color (#RRGGBB)")
	cmd.Flags().Bool("sort", false, "sort regions top-to-bottom, left-to-right")
	cmd.Flags().Bool("progress", false, "show a progress bar on stderr for multiple images")

	cmd.Flags().String("det-model", "", "override detector model path")
	cmd.Flags().Float32("text-threshold", d.Pipeline.Detector.TextThreshold, "text score threshold (0..1)")
	cmd.Flags().Float32("link-threshold", d.Pipeline.Detector.LinkThreshold, "link score threshold (0..1)")
	cmd.Flags().Int("min-area", d.Pipeline.Detector.MinArea, "minimum component area in mask cells")
	cmd.Flags().Int("mask-stride", d.Pipeline.Detector.MaskStride, "detector input pixels per score map cell")

	cmd.Flags().String("rec-model", "", "override recognizer model path")
	cmd.Flags().String("labels", "", "override label file path")
	cmd.Flags().Int("blank-index", d.Pipeline.Recognizer.BlankIndex, "CTC blank class (-1 = last label)")
	cmd.Flags().Int("rec-height", d.Pipeline.Recognizer.ImageHeight, "recognizer input height")
	cmd.Flags().Int("min-box-size", d.Pipeline.MinBoxSize, "skip regions narrower or shorter than this")
	cmd.Flags().Int("workers", d.Pipeline.Parallel.MaxWorkers, "concurrent recognizer calls per image")

	cmd.Flags().Bool("gpu", false, "enable GPU acceleration using CUDA")
	cmd.Flags().Int("gpu-device", 0, "CUDA device ID to use")
	cmd.Flags().String("gpu-mem-limit", d.GPU.MemoryLimit, "GPU memory limit (e.g. '2GB', '512MB', 'auto')")
}

func runImage(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("no input files provided")
	}
	for _, p := range args {
		if !utils.IsSupportedImage(p) {
			return fmt.Errorf("unsupported image format: %s", p)
		}
	}

	cfg := GetConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	imgs := make([]image.Image, 0, len(args))
	for _, p := range args {
		img, _, err := utils.LoadImage(p)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
		imgs = append(imgs, img)
	}

	pl, err := newPipeline(cfg.ToPipelineConfig())
	if err != nil {
		return fmt.Errorf("failed to build OCR pipeline: %w", err)
	}
	defer func() {
		if err := pl.Close(); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error closing pipeline: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	var progress pipeline.ProgressCallback
	if show, _ := cmd.Flags().GetBool("progress"); show && len(imgs) > 1 {
		progress = pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), "OCR")
	}
	results, err := pl.ProcessImages(ctx, imgs, progress)
	if err != nil {
		return fmt.Errorf("OCR failed: %w", err)
	}

	files := make([]fileResult, len(results))
	for i, res := range results {
		if cfg.Output.SortTopLeft {
			pipeline.SortRegionsTopLeft(res)
		}
		files[i] = fileResult{File: args[i], OCR: res}
		if cfg.Output.OverlayDir != "" {
			path, err := saveOverlay(cfg.Output, args[i], imgs[i], res)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Saved overlay: %s\n", path)
		}
	}

	out, err := formatResults(cfg.Output.Format, files)
	if err != nil {
		return err
	}
	if cfg.Output.File != "" {
		if err := os.WriteFile(cfg.Output.File, []byte(out), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		_, err := fmt.Fprintf(cmd.ErrOrStderr(), "Results written to %s\n", cfg.Output.File)
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// formatResults renders results; several files get per-file headers in the
// text and csv formats.
func formatResults(format string, files []fileResult) (string, error) {
	if !slices.Contains([]string{outputFormatText, outputFormatJSON, outputFormatCSV}, format) {
		return "", fmt.Errorf("invalid output format: %s", format)
	}
	if format == outputFormatJSON {
		var v any = files
		if len(files) == 1 {
			v = files[0]
		}
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return string(b), nil
	}

	parts := make([]string, 0, len(files))
	for _, f := range files {
		var s string
		var err error
		if format == outputFormatCSV {
			s, err = pipeline.ToCSVImage(f.OCR)
		} else {
			s, err = pipeline.ToPlainTextImage(f.OCR)
		}
		if err != nil {
			return "", fmt.Errorf("format %s failed for %s: %w", format, f.File, err)
		}
		if len(files) > 1 {
			if format == outputFormatCSV {
				s = "# " + f.File + "\n" + s
			} else {
				s = f.File + ":\n" + s
			}
		}
		parts = append(parts, s)
	}
	sep := "\n\n"
	if format == outputFormatCSV {
		sep = ""
	}
	return strings.TrimRight(strings.Join(parts, sep), "\n"), nil
}

func saveOverlay(out config.OutputConfig, src string, img image.Image, res *pipeline.OCRImageResult) (string, error) {
	col, err := utils.ParseHexColor(out.OverlayBoxColor)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(out.OverlayDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create overlay dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	path := filepath.Join(out.OverlayDir, base+"_overlay.png")
	if err := imaging.Save(pipeline.RenderOverlay(img, res, col), path); err != nil {
		return "", fmt.Errorf("failed to save overlay: %w", err)
	}
	return path, nil
}

func init() {
	rootCmd.AddCommand(imageCmd)
	addImageFlags(imageCmd)
}

// GetImageCommand returns the image command for testing purposes.
func GetImageCommand() *cobra.Command {
	return imageCmd
}
