package pipeline

import (
	"context"
	"fmt"
	"image"
)

// ProcessImages runs the pipeline over several images in order. Images are
// processed one at a time; region-level parallelism follows MaxWorkers.
// The first failure stops processing.
func (p *Pipeline) ProcessImages(ctx context.Context, imgs []image.Image, progress ProgressCallback) ([]*OCRImageResult, error) {
	if progress == nil {
		progress = NoOpProgressCallback{}
	}
	progress.OnStart(len(imgs))
	out := make([]*OCRImageResult, 0, len(imgs))
	for i, img := range imgs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := p.ProcessImageContext(ctx, img)
		if err != nil {
			progress.OnError(i, err)
			return out, fmt.Errorf("image %d: %w", i, err)
		}
		out = append(out, res)
		progress.OnProgress(i+1, len(imgs))
	}
	progress.OnComplete()
	return out, nil
}
