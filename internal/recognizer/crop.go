package recognizer

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/craftocr/internal/detector"
)

// Crop extracts box from img. Box coordinates are relative to the image origin.
func Crop(img image.Image, box detector.ImageBox) (image.Image, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	b := img.Bounds()
	r := box.Rect().Add(b.Min).Intersect(b)
	if r.Empty() {
		return nil, fmt.Errorf("crop %s outside image %dx%d", box, b.Dx(), b.Dy())
	}
	return imaging.Crop(img, r), nil
}
