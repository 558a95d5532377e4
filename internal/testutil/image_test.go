package testutil

import (
	"image"
	"mime"
	"mime/multipart"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPage(t *testing.T) {
	img := Page(20, 10, image.Rect(2, 2, 5, 4))
	assert.Equal(t, image.Rect(0, 0, 20, 10), img.Bounds())
	assert.Equal(t, Ink, img.NRGBAAt(3, 3))
	assert.Equal(t, Paper, img.NRGBAAt(10, 8))
}

func TestTextImageHasInk(t *testing.T) {
	img := TextImage("Hi", 4)
	require.Equal(t, 2*7+8, img.Bounds().Dx())

	dark := 0
	for y := range img.Bounds().Dy() {
		for x := range img.Bounds().Dx() {
			if img.NRGBAAt(x, y).R < 128 {
				dark++
			}
		}
	}
	assert.Positive(t, dark)
	// margins stay blank
	for x := range img.Bounds().Dx() {
		assert.Equal(t, Paper, img.NRGBAAt(x, 0))
	}
}

func TestWriteImageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := WriteImage(t, dir, "page.png", Page(8, 6, image.Rect(0, 0, 4, 3)))

	got, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Bounds().Dx())
	assert.Equal(t, 6, got.Bounds().Dy())
}

func TestMultipartImage(t *testing.T) {
	data := PNGBytes(t, Page(4, 4))
	body, ct := MultipartImage(t, "a.png", data, map[string]string{"format": "csv"})

	_, params, err := mime.ParseMediaType(ct)
	require.NoError(t, err)
	form, err := multipart.NewReader(body, params["boundary"]).ReadForm(1 << 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"csv"}, form.Value["format"])
	require.Len(t, form.File["image"], 1)
	assert.Equal(t, "a.png", form.File["image"][0].Filename)
	assert.Equal(t, int64(len(data)), form.File["image"][0].Size)
}
