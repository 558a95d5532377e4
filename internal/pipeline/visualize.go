package pipeline

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/craftocr/internal/utils"
)

// RenderOverlay returns a copy of img with every region box outlined.
func RenderOverlay(img image.Image, res *OCRImageResult, boxColor color.Color) *image.NRGBA {
	if img == nil {
		return nil
	}
	dst := imaging.Clone(img)
	if res == nil {
		return dst
	}
	for _, r := range res.Regions {
		utils.DrawRect(dst, r.Box.Rect(), boxColor, 2)
	}
	return dst
}
