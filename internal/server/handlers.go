package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/MeKo-Tech/craftocr/internal/pipeline"
	"github.com/MeKo-Tech/craftocr/internal/utils"
	"github.com/MeKo-Tech/craftocr/internal/version"
)

const (
	formatJSON    = "json"
	formatText    = "text"
	formatCSV     = "csv"
	formatOverlay = "overlay"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.pipeline == nil {
		s.writeErrorResponse(w, "OCR pipeline not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.Info())
}

func (s *Server) ocrImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read image data", http.StatusInternalServerError)
		return
	}
	uploadSizeBytes.Observe(float64(len(data)))

	img, _, err := utils.DecodeImage(bytes.NewReader(data))
	if err != nil {
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return
	}
	slog.Debug("OCR image request", "filename", header.Filename, "bytes", len(data),
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	if s.pipeline == nil {
		s.writeErrorResponse(w, "OCR pipeline not initialized", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := s.requestContext(r.Context())
	defer cancel()

	start := time.Now()
	res, err := s.pipeline.ProcessImageStream(ctx, img, nil)
	if err != nil {
		ocrRequestsTotal.WithLabelValues("image", "error").Inc()
		slog.Warn("OCR processing failed", "filename", header.Filename, "error", err)
		s.writeProcessingError(w, err)
		return
	}
	recordResult("image", res, time.Since(start))

	if r.FormValue("sort") == "1" {
		pipeline.SortRegionsTopLeft(res)
	}

	format := r.FormValue("format")
	if format == "" {
		format = r.URL.Query().Get("format")
	}
	switch format {
	case formatCSV:
		out, err := pipeline.ToCSVImage(res)
		if err != nil {
			http.Error(w, fmt.Sprintf("formatting failed: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, out)
	case formatText:
		out, err := pipeline.ToPlainTextImage(res)
		if err != nil {
			http.Error(w, fmt.Sprintf("formatting failed: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, out)
	case formatOverlay:
		s.writeOverlay(w, r, img, res)
	default:
		writeJSON(w, http.StatusOK, OCRResponse{Success: true, Result: res})
	}
}

func (s *Server) writeOverlay(w http.ResponseWriter, r *http.Request, img image.Image, res *pipeline.OCRImageResult) {
	col := color.NRGBA{R: 255, A: 255}
	for _, candidate := range []string{r.FormValue("box"), s.overlayBoxColor} {
		if c, err := utils.ParseHexColor(candidate); err == nil {
			col = c
			break
		}
	}
	ov := pipeline.RenderOverlay(img, res, col)
	if ov == nil {
		http.Error(w, "overlay failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, ov); err != nil {
		slog.Error("Failed to encode overlay", "error", err)
	}
}

// writeProcessingError maps pipeline failures to HTTP status codes.
func (s *Server) writeProcessingError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	resp := OCRResponse{Success: false, Error: fmt.Sprintf("OCR processing failed: %v", err)}
	var se *pipeline.StageError
	if errors.As(err, &se) {
		resp.Stage = string(se.Stage)
	}
	writeJSON(w, status, resp)
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, OCRResponse{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func recordResult(kind string, res *pipeline.OCRImageResult, d time.Duration) {
	ocrRequestsTotal.WithLabelValues(kind, "success").Inc()
	ocrProcessingDuration.WithLabelValues(kind).Observe(d.Seconds())
	n := 0
	for _, region := range res.Regions {
		n += utf8.RuneCountInString(region.Text)
	}
	ocrTextLength.WithLabelValues(kind).Observe(float64(n))
}
