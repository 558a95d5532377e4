package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	imagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "craftocr_images_processed_total",
			Help: "Images run through the pipeline, by outcome",
		},
		[]string{"status"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "craftocr_stage_duration_seconds",
			Help:    "Time spent per pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		},
		[]string{"stage"},
	)

	regionsDetected = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "craftocr_regions_detected",
			Help:    "Candidate regions per image after component filtering",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 200},
		},
	)

	regionsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "craftocr_regions_skipped_total",
			Help: "Regions dropped because their mapped size was below the minimum",
		},
	)
)
