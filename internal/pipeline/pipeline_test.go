package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sort"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/craftocr/internal/detector"
	"github.com/MeKo-Tech/craftocr/internal/inference"
	"github.com/MeKo-Tech/craftocr/internal/onnx/mock"
	"github.com/MeKo-Tech/craftocr/internal/recognizer"
	"github.com/MeKo-Tech/craftocr/internal/tensor"
)

// detModel returns a detector with a fixed square input of side in and a
// mask x mask score map containing rects.
func detModel(in, mask int, rects ...mock.Rect) *mock.Model {
	return &mock.Model{
		In:  tensor.Descriptor{Name: "image", Shape: []int64{1, int64(in), int64(in), 3}, DType: tensor.Float32},
		Out: tensor.Descriptor{Name: "scores", Shape: []int64{1, -1, -1, 2}, DType: tensor.Float32},
		Fn: mock.Fixed(mock.Float32Output(mock.ScoreMap(mask, mask, rects...),
			1, int64(mask), int64(mask), 2)),
	}
}

// recModel always decodes seq over three classes (A, B, blank).
func recModel(seq ...int) *mock.Model {
	return &mock.Model{
		In:  tensor.Descriptor{Name: "patch", Shape: []int64{1, 1, -1, -1}, DType: tensor.Float32},
		Out: tensor.Descriptor{Name: "probs", Shape: []int64{1, -1, 3}, DType: tensor.Float32},
		Fn:  seqOutput(seq...),
	}
}

func seqOutput(seq ...int) mock.RunFunc {
	return mock.Fixed(mock.Float32Output(mock.OneHotSequence(seq, 3), 1, int64(len(seq)), 3))
}

func testLabels(t testing.TB) *recognizer.Labels {
	t.Helper()
	l, err := recognizer.NewLabels([]string{"A", "B", "-"})
	require.NoError(t, err)
	return l
}

func newTestPipeline(t testing.TB, det, rec *mock.Model, mutate ...func(*Config)) *Pipeline {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	p, err := New(det, rec, testLabels(t), cfg)
	require.NoError(t, err)
	return p
}

func grayImage(w, h int) image.Image {
	return imaging.New(w, h, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
}

func TestProcessImage_MapsAndRecognizes(t *testing.T) {
	det := detModel(16, 8, mock.Rect{X0: 2, Y0: 2, X1: 5, Y1: 5})
	rec := recModel(0, 2, 1)
	p := newTestPipeline(t, det, rec)

	res, err := p.ProcessImage(grayImage(32, 32))
	require.NoError(t, err)

	require.Len(t, res.Regions, 1)
	r := res.Regions[0]
	assert.Equal(t, detector.ImageBox{X1: 8, Y1: 8, X2: 24, Y2: 24}, r.Box)
	assert.Equal(t, detector.MaskBox{XMin: 2, YMin: 2, XMax: 5, YMax: 5}, r.MaskBox)
	assert.Equal(t, "AB", r.Text)
	assert.Len(t, r.CharConfidences, 2)
	assert.Greater(t, r.RecConfidence, 0.9)
	assert.InDelta(t, float64(mock.Sigmoid(mock.HighLogit)), r.DetConfidence, 1e-6)

	assert.Equal(t, 32, res.Width)
	assert.Equal(t, 32, res.Height)
	assert.Equal(t, 16, res.Detection.ResizedWidth)
	assert.Equal(t, 8, res.Detection.MaskWidth)
	assert.Equal(t, 1, res.Detection.Candidates)
	assert.Zero(t, res.SkippedRegions)
	assert.InDelta(t, r.DetConfidence, res.AvgDetConf, 1e-9)
	assert.Positive(t, res.Processing.TotalNs)

	// 16x16 patch at height 64 keeps its aspect ratio.
	assert.Equal(t, [][]int64{{1, 1, 64, 64}}, rec.Calls())
	assert.Equal(t, [][]int64{{1, 16, 16, 3}}, det.Calls())
	require.NoError(t, ValidateOCRImageResult(res))
}

func TestProcessImage_EmptyMask(t *testing.T) {
	rec := recModel(0)
	p := newTestPipeline(t, detModel(16, 8), rec)

	res, err := p.ProcessImage(grayImage(32, 32))
	require.NoError(t, err)
	assert.Empty(t, res.Regions)
	assert.Zero(t, res.AvgDetConf)
	assert.Empty(t, rec.Calls())
}

func TestProcessImage_SkipsSmallBoxes(t *testing.T) {
	// Mask 16x16 over a 32x32 input of a 32x32 image: one cell is 2 pixels.
	det := detModel(32, 16,
		mock.Rect{X0: 0, Y0: 0, X1: 0, Y1: 9}, // 2px wide
		mock.Rect{X0: 4, Y0: 4, X1: 7, Y1: 7}, // 8x8 px
	)
	rec := recModel(1)
	p := newTestPipeline(t, det, rec)

	res, err := p.ProcessImage(grayImage(32, 32))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Detection.Candidates)
	assert.Equal(t, 1, res.SkippedRegions)
	require.Len(t, res.Regions, 1)
	assert.Equal(t, detector.ImageBox{X1: 8, Y1: 8, X2: 16, Y2: 16}, res.Regions[0].Box)
	assert.Equal(t, "B", res.Regions[0].Text)
	assert.Len(t, rec.Calls(), 1)
}

func TestProcessImage_MinBoxSizeZeroKeepsAll(t *testing.T) {
	det := detModel(32, 16,
		mock.Rect{X0: 0, Y0: 0, X1: 0, Y1: 9},
		mock.Rect{X0: 4, Y0: 4, X1: 7, Y1: 7},
	)
	p := newTestPipeline(t, det, recModel(0), func(c *Config) { c.MinBoxSize = 0 })

	res, err := p.ProcessImage(grayImage(32, 32))
	require.NoError(t, err)
	assert.Len(t, res.Regions, 2)
	assert.Zero(t, res.SkippedRegions)
}

func TestProcessImage_StageErrors(t *testing.T) {
	boom := errors.New("boom")
	img := grayImage(32, 32)

	t.Run("encode", func(t *testing.T) {
		det := detModel(16, 8)
		det.In.Shape = []int64{1, -1, -1, 3}
		p := newTestPipeline(t, det, recModel(0))
		_, err := p.ProcessImage(img)
		var se *StageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, StageEncode, se.Stage)
		assert.Equal(t, -1, se.Region)
		assert.ErrorIs(t, err, tensor.ErrDynamicHeight)
		assert.Empty(t, det.Calls())
	})

	t.Run("detect", func(t *testing.T) {
		det := detModel(16, 8)
		det.Fn = func(context.Context, []byte, []int64) (*inference.Output, error) { return nil, boom }
		p := newTestPipeline(t, det, recModel(0))
		_, err := p.ProcessImage(img)
		var se *StageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, StageDetect, se.Stage)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("invalid score map", func(t *testing.T) {
		det := detModel(16, 8)
		det.Fn = mock.Fixed(mock.Float32Output(make([]float32, 2*8*8*2), 2, 8, 8, 2))
		p := newTestPipeline(t, det, recModel(0))
		_, err := p.ProcessImage(img)
		var ie *detector.InvalidScoreMapError
		require.ErrorAs(t, err, &ie)
	})

	t.Run("recognize", func(t *testing.T) {
		rec := recModel(0)
		rec.Fn = func(context.Context, []byte, []int64) (*inference.Output, error) { return nil, boom }
		p := newTestPipeline(t, detModel(16, 8, mock.Rect{X0: 2, Y0: 2, X1: 5, Y1: 5}), rec)
		_, err := p.ProcessImage(img)
		var se *StageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, StageRecognize, se.Stage)
		assert.Equal(t, 0, se.Region)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "region 0")
	})

	t.Run("decode", func(t *testing.T) {
		rec := recModel(0)
		rec.Fn = mock.Fixed(mock.Float32Output(make([]float32, 2*3*3), 2, 3, 3))
		p := newTestPipeline(t, detModel(16, 8, mock.Rect{X0: 2, Y0: 2, X1: 5, Y1: 5}), rec)
		_, err := p.ProcessImage(img)
		var se *StageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, StageDecode, se.Stage)
		var be *recognizer.UnsupportedBatchError
		assert.ErrorAs(t, err, &be)
	})

	t.Run("nil image", func(t *testing.T) {
		p := newTestPipeline(t, detModel(16, 8), recModel(0))
		_, err := p.ProcessImage(nil)
		require.Error(t, err)
	})
}

func TestProcessImage_CancelledBetweenRegions(t *testing.T) {
	det := detModel(32, 16,
		mock.Rect{X0: 0, Y0: 0, X1: 3, Y1: 3},
		mock.Rect{X0: 8, Y0: 8, X1: 11, Y1: 11},
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := recModel(0)
	inner := seqOutput(0)
	rec.Fn = func(ctx context.Context, in []byte, shape []int64) (*inference.Output, error) {
		cancel()
		return inner(ctx, in, shape)
	}
	p := newTestPipeline(t, det, rec)

	_, err := p.ProcessImageContext(ctx, grayImage(32, 32))
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, rec.Calls(), 1)
}

func TestProcessImage_AlreadyCancelled(t *testing.T) {
	det := detModel(16, 8)
	p := newTestPipeline(t, det, recModel(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ProcessImageContext(ctx, grayImage(32, 32))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, det.Calls())
}

// threeRegionPipeline detects three boxes of different widths whose
// recognizer inputs can be told apart by encoded width.
func threeRegionPipeline(t *testing.T, workers int) (*Pipeline, *mock.Model) {
	t.Helper()
	det := detModel(32, 16,
		mock.Rect{X0: 0, Y0: 0, X1: 3, Y1: 2},  // 8x6 px
		mock.Rect{X0: 6, Y0: 0, X1: 13, Y1: 2}, // 16x6 px
		mock.Rect{X0: 0, Y0: 6, X1: 5, Y1: 8},  // 12x6 px
	)
	byWidth := map[int64][]int{16: {0}, 32: {1}, 24: {0, 2, 1}}
	rec := recModel(0)
	rec.Fn = func(ctx context.Context, in []byte, shape []int64) (*inference.Output, error) {
		seq, ok := byWidth[shape[3]]
		if !ok {
			return nil, errors.New("unexpected width")
		}
		return seqOutput(seq...)(ctx, in, shape)
	}
	p := newTestPipeline(t, det, rec, func(c *Config) {
		c.Recognizer.InputHeight = 12
		c.MaxWorkers = workers
	})
	return p, rec
}

func TestProcessImage_ParallelKeepsDetectionOrder(t *testing.T) {
	for _, workers := range []int{1, 4} {
		p, rec := threeRegionPipeline(t, workers)

		var mu sync.Mutex
		var seen []int
		res, err := p.ProcessImageStream(context.Background(), grayImage(32, 32), func(i int, _ OCRRegionResult) {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
		})
		require.NoError(t, err)

		texts := make([]string, len(res.Regions))
		for i, r := range res.Regions {
			texts[i] = r.Text
		}
		assert.Equal(t, []string{"A", "B", "AB"}, texts, "workers=%d", workers)
		assert.Equal(t, detector.ImageBox{X1: 0, Y1: 0, X2: 8, Y2: 6}, res.Regions[0].Box)
		assert.Len(t, rec.Calls(), 3)

		sort.Ints(seen)
		assert.Equal(t, []int{0, 1, 2}, seen)
	}
}

func TestNew_BlankOverride(t *testing.T) {
	det := detModel(16, 8, mock.Rect{X0: 2, Y0: 2, X1: 5, Y1: 5})
	p := newTestPipeline(t, det, recModel(0, 1, 2), func(c *Config) { c.BlankIndex = 0 })

	res, err := p.ProcessImage(grayImage(32, 32))
	require.NoError(t, err)
	require.Len(t, res.Regions, 1)
	assert.Equal(t, "B-", res.Regions[0].Text)

	info := p.Info()
	rec, ok := info["recognizer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0, rec["blank_index"])
	assert.Equal(t, 3, rec["labels"])
}

func TestNew_Validation(t *testing.T) {
	_, err := New(detModel(16, 8), recModel(0), testLabels(t), Config{
		Detector:   detector.DefaultConfig(),
		Recognizer: recognizer.DefaultConfig(),
		MaxWorkers: 0,
	})
	require.Error(t, err)

	_, err = New(detModel(16, 8), recModel(0), nil, DefaultConfig())
	var le *recognizer.LabelLoadError
	require.ErrorAs(t, err, &le)

	cfg := DefaultConfig()
	cfg.BlankIndex = 7
	_, err = New(detModel(16, 8), recModel(0), testLabels(t), cfg)
	require.Error(t, err)
}

func TestClose_ClosesBothModels(t *testing.T) {
	det, rec := detModel(16, 8), recModel(0)
	p := newTestPipeline(t, det, rec)
	require.NoError(t, p.Close())
	assert.True(t, det.Closed())
	assert.True(t, rec.Closed())

	var nilPipeline *Pipeline
	assert.NoError(t, nilPipeline.Close())
}

func TestWarmup(t *testing.T) {
	det, rec := detModel(16, 8), recModel(0)
	p := newTestPipeline(t, det, rec)

	require.NoError(t, p.Warmup(context.Background(), 2))
	assert.Len(t, det.Calls(), 2)
	assert.Len(t, rec.Calls(), 2)
	// 128x32 strip at height 64.
	assert.Equal(t, []int64{1, 1, 64, 256}, rec.Calls()[0])
}

type recordingProgress struct {
	started, completed int
	progress           []int
	errs               []int
}

func (r *recordingProgress) OnStart(total int)         { r.started = total }
func (r *recordingProgress) OnProgress(current, _ int) { r.progress = append(r.progress, current) }
func (r *recordingProgress) OnComplete()               { r.completed++ }
func (r *recordingProgress) OnError(i int, _ error)    { r.errs = append(r.errs, i) }

func TestProcessImages(t *testing.T) {
	p := newTestPipeline(t, detModel(16, 8, mock.Rect{X0: 2, Y0: 2, X1: 5, Y1: 5}), recModel(1))
	prog := &recordingProgress{}

	results, err := p.ProcessImages(context.Background(), []image.Image{grayImage(32, 32), grayImage(64, 64)}, prog)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 64, results[1].Width)
	assert.Equal(t, detector.ImageBox{X1: 16, Y1: 16, X2: 48, Y2: 48}, results[1].Regions[0].Box)
	assert.Equal(t, 2, prog.started)
	assert.Equal(t, []int{1, 2}, prog.progress)
	assert.Equal(t, 1, prog.completed)

	prog = &recordingProgress{}
	results, err = p.ProcessImages(context.Background(), []image.Image{grayImage(32, 32), nil}, prog)
	require.Error(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, []int{1}, prog.errs)
	assert.Zero(t, prog.completed)
}

func TestRenderOverlay(t *testing.T) {
	src := grayImage(32, 32)
	res := &OCRImageResult{Width: 32, Height: 32, Regions: []OCRRegionResult{
		{Box: detector.ImageBox{X1: 8, Y1: 8, X2: 24, Y2: 24}},
	}}
	red := color.NRGBA{R: 255, A: 255}

	out := RenderOverlay(src, res, red)
	require.NotNil(t, out)
	assert.Equal(t, red, out.NRGBAAt(8, 8))
	assert.Equal(t, red, out.NRGBAAt(23, 16))
	assert.Equal(t, color.NRGBA{R: 128, G: 128, B: 128, A: 255}, out.NRGBAAt(16, 16))
	// source untouched
	r, _, _, _ := src.At(8, 8).RGBA()
	assert.Equal(t, uint32(128)<<8|128, r)

	assert.Nil(t, RenderOverlay(nil, res, red))
}
