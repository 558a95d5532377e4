// Package server exposes the OCR pipeline over HTTP and WebSocket.
package server

import (
	"context"
	"image"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/craftocr/internal/pipeline"
)

// pipelineInterface defines the methods needed by the server from a pipeline.
type pipelineInterface interface {
	ProcessImageStream(ctx context.Context, img image.Image, onRegion pipeline.RegionCallback) (*pipeline.OCRImageResult, error)
	Info() map[string]any
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline        pipelineInterface
	corsOrigin      string
	maxUploadMB     int64
	timeoutSec      int
	overlayBoxColor string
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	TimeoutSec      int
	OverlayBoxColor string
	PipelineConfig  pipeline.Config
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// OCRResponse wraps an image result or an error.
type OCRResponse struct {
	Success bool                     `json:"success"`
	Result  *pipeline.OCRImageResult `json:"result,omitempty"`
	Error   string                   `json:"error,omitempty"`
	// Stage is set when the pipeline failed in a known stage.
	Stage string `json:"stage,omitempty"`
}

// NewServer builds the pipeline from config and wraps it.
func NewServer(config Config) (*Server, error) {
	pl, err := pipeline.NewBuilderFromConfig(config.PipelineConfig).Build()
	if err != nil {
		return nil, err
	}
	return newServer(pl, config), nil
}

func newServer(p pipelineInterface, config Config) *Server {
	s := &Server{
		pipeline:        p,
		corsOrigin:      config.CORSOrigin,
		maxUploadMB:     config.MaxUploadMB,
		timeoutSec:      config.TimeoutSec,
		overlayBoxColor: config.OverlayBoxColor,
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}
	if s.maxUploadMB <= 0 {
		s.maxUploadMB = 50
	}
	return s
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.pipeline != nil {
		return s.pipeline.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/models", s.corsMiddleware(s.modelsHandler))
	mux.HandleFunc("/ocr/image", s.corsMiddleware(s.ocrImageHandler))
	mux.HandleFunc("/ws/ocr", s.ocrWebSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeoutSec > 0 {
		return context.WithTimeout(parent, time.Duration(s.timeoutSec)*time.Second)
	}
	return context.WithCancel(parent)
}
