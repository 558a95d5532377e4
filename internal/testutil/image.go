// Package testutil builds synthetic page images and request bodies for tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Ink is the foreground used for text and blocks.
var Ink = color.NRGBA{A: 255}

// Paper is the background of generated pages.
var Paper = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// CreateTestImage returns a width x height image filled with bg.
func CreateTestImage(width, height int, bg color.Color) *image.NRGBA {
	return imaging.New(width, height, bg)
}

// Page returns a white page with a black block for each rect.
func Page(width, height int, blocks ...image.Rectangle) *image.NRGBA {
	img := CreateTestImage(width, height, Paper)
	for _, b := range blocks {
		draw.Draw(img, b, &image.Uniform{C: Ink}, image.Point{}, draw.Src)
	}
	return img
}

// TextLine draws text with the 7x13 bitmap face, baseline at (x, y).
func TextLine(img draw.Image, text string, x, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: Ink},
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// TextImage renders text centered on a page sized to fit it with margin on
// every side.
func TextImage(text string, margin int) *image.NRGBA {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	h := face.Metrics().Height.Ceil()
	img := CreateTestImage(w+2*margin, h+2*margin, Paper)
	TextLine(img, text, margin, margin+face.Metrics().Ascent.Ceil())
	return img
}

// PNGBytes encodes img as PNG.
func PNGBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// WriteImage saves img under dir; the format follows the name's extension.
func WriteImage(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(img, path), "save %s", path)
	return path
}
