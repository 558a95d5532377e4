package server

import (
	"context"
	"image"
	"sync"

	"github.com/MeKo-Tech/craftocr/internal/detector"
	"github.com/MeKo-Tech/craftocr/internal/pipeline"
)

// mockPipeline returns canned regions and records what it was asked to do.
type mockPipeline struct {
	mu      sync.Mutex
	regions []pipeline.OCRRegionResult
	err     error
	calls   int
	lastImg image.Image
	closed  bool
}

func newMockPipeline() *mockPipeline {
	return &mockPipeline{regions: []pipeline.OCRRegionResult{
		{Box: detector.ImageBox{X1: 10, Y1: 20, X2: 40, Y2: 30}, DetConfidence: 0.9, Text: "World", RecConfidence: 0.8},
		{Box: detector.ImageBox{X1: 2, Y1: 2, X2: 12, Y2: 10}, DetConfidence: 0.7, Text: "Hello", RecConfidence: 0.6},
	}}
}

func (m *mockPipeline) ProcessImageStream(ctx context.Context, img image.Image,
	onRegion pipeline.RegionCallback,
) (*pipeline.OCRImageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastImg = img
	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &pipeline.OCRImageResult{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
	for i, r := range m.regions {
		res.Regions = append(res.Regions, r)
		if onRegion != nil {
			onRegion(i, r)
		}
	}
	return res, nil
}

func (m *mockPipeline) Info() map[string]any {
	return map[string]any{"min_box_size": 5, "max_workers": 1}
}

func (m *mockPipeline) Close() error {
	m.closed = true
	return nil
}
