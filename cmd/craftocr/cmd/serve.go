package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/craftocr/internal/config"
	"github.com/MeKo-Tech/craftocr/internal/server"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for OCR API",
	Long: `Start an HTTP server that provides REST and WebSocket endpoints for OCR.

The server provides the following endpoints:
  POST /ocr/image - Process an uploaded image (format=json|csv|text|overlay)
  GET  /ws/ocr    - WebSocket; streams regions as they are recognized
  GET  /health    - Health check endpoint
  GET  /models    - Loaded model information
  GET  /metrics   - Prometheus metrics

Examples:
  craftocr serve
  craftocr serve --port 8080
  craftocr serve --host 0.0.0.0 --port 3000 --workers 4`,
	SilenceUsage: true,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, serveFlagBindings)
	},
	RunE: runServe,
}

var serveFlagBindings = []flagBinding{
	{"server.host", "host"},
	{"server.port", "port"},
	{"server.cors_origin", "cors-origin"},
	{"server.max_upload_mb", "max-upload-mb"},
	{"server.timeout_sec", "timeout"},
	{"server.shutdown_timeout", "shutdown-timeout"},
	{"output.overlay_box_color", "overlay-box-color"},
	{"pipeline.parallel.max_workers", "workers"},
	{"pipeline.warmup_iterations", "warmup"},
	{"pipeline.detector.model_path", "det-model"},
	{"pipeline.recognizer.model_path", "rec-model"},
	{"pipeline.recognizer.labels_path", "labels"},
	{"gpu.enabled", "gpu"},
	{"gpu.device", "gpu-device"},
}

func addServeFlags(cmd *cobra.Command) {
	defaults := config.DefaultConfig()
	d := defaults.Server
	cmd.Flags().String("host", d.Host, "server host")
	cmd.Flags().IntP("port", "p", d.Port, "server port")
	cmd.Flags().String("cors-origin", d.CORSOrigin, "CORS allowed origin")
	cmd.Flags().Int("max-upload-mb", d.MaxUploadMB, "maximum upload size in MB")
	cmd.Flags().Int("timeout", d.TimeoutSec, "per-request processing timeout in seconds (0 = none)")
	cmd.Flags().Int("shutdown-timeout", d.ShutdownTimeout, "graceful shutdown timeout in seconds")
	cmd.Flags().String("overlay-box-color", defaults.Output.OverlayBoxColor, "default overlay box color (#RRGGBB)")
	cmd.Flags().Int("workers", defaults.Pipeline.Parallel.MaxWorkers, "concurrent recognizer calls per image")
	cmd.Flags().Int("warmup", 0, "warmup runs before accepting requests")
	cmd.Flags().String("det-model", "", "override detector model path")
	cmd.Flags().String("rec-model", "", "override recognizer model path")
	cmd.Flags().String("labels", "", "override label file path")
	cmd.Flags().Bool("gpu", false, "enable GPU acceleration using CUDA")
	cmd.Flags().Int("gpu-device", 0, "CUDA device ID to use")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	srv, err := server.NewServer(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		CORSOrigin:      cfg.Server.CORSOrigin,
		MaxUploadMB:     int64(cfg.Server.MaxUploadMB),
		TimeoutSec:      cfg.Server.TimeoutSec,
		OverlayBoxColor: cfg.Output.OverlayBoxColor,
		PipelineConfig:  cfg.ToPipelineConfig(),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			slog.Error("Failed to close server resources", "error", err)
		}
	}()

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting OCR server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServeFlags(serveCmd)
}
