package pipeline

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sourcegraph/conc/pool"

	"github.com/MeKo-Tech/craftocr/internal/detector"
	"github.com/MeKo-Tech/craftocr/internal/recognizer"
)

// OCRRegionResult combines detection geometry with recognition output.
type OCRRegionResult struct {
	Box           detector.ImageBox `json:"box"`
	MaskBox       detector.MaskBox  `json:"mask_box"`
	DetConfidence float64           `json:"det_confidence"`

	Text            string    `json:"text"`
	RecConfidence   float64   `json:"rec_confidence"`
	CharConfidences []float64 `json:"char_confidences,omitempty"`

	Timing struct {
		RecognizeEncodeNs int64 `json:"recognize_encode_ns"`
		RecognizeModelNs  int64 `json:"recognize_model_ns"`
		RecognizeDecodeNs int64 `json:"recognize_decode_ns"`
		RecognizeTotalNs  int64 `json:"recognize_total_ns"`
	} `json:"timing"`
}

// OCRImageResult is the per-image aggregated OCR output.
type OCRImageResult struct {
	Width          int               `json:"width"`
	Height         int               `json:"height"`
	Regions        []OCRRegionResult `json:"regions"`
	SkippedRegions int               `json:"skipped_regions"`
	AvgDetConf     float64           `json:"avg_det_confidence"`
	Detection      struct {
		ResizedWidth  int `json:"resized_width"`
		ResizedHeight int `json:"resized_height"`
		MaskWidth     int `json:"mask_width"`
		MaskHeight    int `json:"mask_height"`
		Candidates    int `json:"candidates"`
	} `json:"detection"`
	Processing struct {
		DetectionNs   int64 `json:"detection_ns"`
		RecognitionNs int64 `json:"recognition_ns"`
		TotalNs       int64 `json:"total_ns"`
	} `json:"processing"`
}

// RegionCallback receives each recognized region as soon as it is ready.
// Calls are serialized; with parallel workers they may arrive out of order.
type RegionCallback func(index int, region OCRRegionResult)

// ProcessImage runs detection then recognition on a single image.
func (p *Pipeline) ProcessImage(img image.Image) (*OCRImageResult, error) {
	return p.ProcessImageContext(context.Background(), img)
}

// ProcessImageContext is like ProcessImage but allows cancellation via context.
// Cancellation is observed between regions.
func (p *Pipeline) ProcessImageContext(ctx context.Context, img image.Image) (*OCRImageResult, error) {
	return p.ProcessImageStream(ctx, img, nil)
}

// ProcessImageStream is ProcessImageContext with a per-region callback.
func (p *Pipeline) ProcessImageStream(ctx context.Context, img image.Image, onRegion RegionCallback) (*OCRImageResult, error) {
	res, err := p.processImage(ctx, img, onRegion)
	status := "ok"
	if err != nil {
		status = "error"
	}
	imagesProcessed.WithLabelValues(status).Inc()
	return res, err
}

func observe(stage Stage, start time.Time) int64 {
	d := time.Since(start)
	stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
	return d.Nanoseconds()
}

func (p *Pipeline) processImage(ctx context.Context, img image.Image, onRegion RegionCallback) (*OCRImageResult, error) {
	if p == nil || p.Detector == nil || p.Recognizer == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	slog.Debug("Starting image processing", "width", bounds.Dx(), "height", bounds.Dy())
	totalStart := time.Now()

	start := time.Now()
	enc, err := p.Detector.Encode(img)
	if err != nil {
		return nil, imageErr(StageEncode, err)
	}
	observe(StageEncode, start)
	slog.Debug("detector input encoded",
		"shape", enc.Shape(),
		"layout", enc.Geometry.Layout.String(),
		"bytes", len(enc.Data),
		"head", hex.EncodeToString(enc.Data[:min(16, len(enc.Data))]))

	start = time.Now()
	sm, err := p.Detector.Infer(ctx, enc)
	if err != nil {
		return nil, imageErr(StageDetect, err)
	}
	observe(StageDetect, start)

	start = time.Now()
	det, err := p.Detector.Postprocess(sm, enc)
	detector.ReleaseScoreMap(sm)
	if err != nil {
		return nil, imageErr(StagePostprocess, err)
	}
	observe(StagePostprocess, start)

	res := &OCRImageResult{Width: bounds.Dx(), Height: bounds.Dy()}
	res.Detection.ResizedWidth = det.ResizedWidth
	res.Detection.ResizedHeight = det.ResizedHeight
	res.Detection.MaskWidth = det.MaskWidth
	res.Detection.MaskHeight = det.MaskHeight
	res.Detection.Candidates = len(det.Regions)
	res.Processing.DetectionNs = time.Since(totalStart).Nanoseconds()
	regionsDetected.Observe(float64(len(det.Regions)))

	kept := make([]detector.Region, 0, len(det.Regions))
	for _, r := range det.Regions {
		if r.Box.Width() < p.cfg.MinBoxSize || r.Box.Height() < p.cfg.MinBoxSize {
			slog.Debug("skipping small region", "box", r.Box.String(), "min_size", p.cfg.MinBoxSize)
			res.SkippedRegions++
			regionsSkipped.Inc()
			continue
		}
		kept = append(kept, r)
	}

	recStart := time.Now()
	regions, err := p.recognizeRegions(ctx, img, kept, onRegion)
	if err != nil {
		return nil, err
	}
	res.Regions = regions
	res.Processing.RecognitionNs = time.Since(recStart).Nanoseconds()

	if len(regions) > 0 {
		var sum float64
		for _, r := range regions {
			sum += r.DetConfidence
		}
		res.AvgDetConf = sum / float64(len(regions))
	}
	res.Processing.TotalNs = time.Since(totalStart).Nanoseconds()

	slog.Debug("Image processing completed",
		"regions", len(res.Regions),
		"skipped", res.SkippedRegions,
		"total_ms", float64(res.Processing.TotalNs)/1e6)
	return res, nil
}

// recognizeRegions runs the recognizer on every region, sequentially or with
// a bounded pool. Results keep detection order.
func (p *Pipeline) recognizeRegions(ctx context.Context, img image.Image,
	regions []detector.Region, onRegion RegionCallback,
) ([]OCRRegionResult, error) {
	out := make([]OCRRegionResult, len(regions))
	emit := newEmitter(onRegion)

	if p.cfg.MaxWorkers <= 1 || len(regions) <= 1 {
		for i, r := range regions {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rr, err := p.recognizeRegion(ctx, img, i, r)
			if err != nil {
				return nil, err
			}
			out[i] = rr
			emit(i, rr)
		}
		return out, nil
	}

	wp := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(p.cfg.MaxWorkers)
	for i, r := range regions {
		wp.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rr, err := p.recognizeRegion(ctx, img, i, r)
			if err != nil {
				return err
			}
			out[i] = rr
			emit(i, rr)
			return nil
		})
	}
	if err := wp.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) recognizeRegion(ctx context.Context, img image.Image, idx int, r detector.Region) (OCRRegionResult, error) {
	rr := OCRRegionResult{Box: r.Box, MaskBox: r.MaskBox, DetConfidence: r.Confidence}
	total := time.Now()

	patch, err := recognizer.Crop(img, r.Box)
	if err != nil {
		return rr, regionErr(StageCrop, idx, err)
	}

	start := time.Now()
	enc, err := p.Recognizer.Encode(patch)
	if err != nil {
		return rr, regionErr(StageEncode, idx, err)
	}
	rr.Timing.RecognizeEncodeNs = time.Since(start).Nanoseconds()

	start = time.Now()
	out, err := p.Recognizer.Infer(ctx, enc)
	if err != nil {
		return rr, regionErr(StageRecognize, idx, err)
	}
	rr.Timing.RecognizeModelNs = observe(StageRecognize, start)

	start = time.Now()
	dec, err := p.Recognizer.Decode(out)
	if err != nil {
		return rr, regionErr(StageDecode, idx, err)
	}
	rr.Timing.RecognizeDecodeNs = observe(StageDecode, start)

	rr.Text = dec.Text
	rr.RecConfidence = dec.Confidence()
	rr.CharConfidences = dec.CharProbs
	rr.Timing.RecognizeTotalNs = time.Since(total).Nanoseconds()
	return rr, nil
}

// Warmup runs the detector on a blank image and the recognizer on a blank
// patch n times each.
func (p *Pipeline) Warmup(ctx context.Context, n int) error {
	blank := imaging.New(64, 64, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	strip := imaging.New(128, 32, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	for i := range n {
		if _, err := p.Detector.Detect(ctx, blank); err != nil {
			return fmt.Errorf("detector warmup %d: %w", i, err)
		}
		if _, err := p.Recognizer.Recognize(ctx, strip); err != nil {
			return fmt.Errorf("recognizer warmup %d: %w", i, err)
		}
	}
	return nil
}

func newEmitter(cb RegionCallback) RegionCallback {
	if cb == nil {
		return func(int, OCRRegionResult) {}
	}
	var mu sync.Mutex
	return func(i int, r OCRRegionResult) {
		mu.Lock()
		defer mu.Unlock()
		cb(i, r)
	}
}
