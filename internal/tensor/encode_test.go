package tensor

import (
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniform(w, h int, c color.NRGBA) image.Image {
	return imaging.New(w, h, c)
}

func readF32(buf []byte, i int) float32 {
	return math.Float32frombits(binary.NativeEndian.Uint32(buf[i*4:]))
}

func TestInferLayout(t *testing.T) {
	tests := []struct {
		name    string
		shape   []int64
		layout  Layout
		ch      int
		h, w    int64
		wantErr bool
	}{
		{"nhwc rgb", []int64{1, 608, 800, 3}, ChannelsLast, 3, 608, 800, false},
		{"nchw gray", []int64{1, 1, 64, -1}, ChannelsFirst, 1, 64, -1, false},
		{"nchw rgb", []int64{1, 3, 32, 32}, ChannelsFirst, 3, 32, 32, false},
		{"last dim wins", []int64{1, 3, 5, 1}, ChannelsLast, 1, 3, 5, false},
		{"no channel axis", []int64{1, 5, 5, 5}, 0, 0, 0, 0, true},
		{"rank 3", []int64{1, 32, 3}, 0, 0, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := InferLayout(tt.shape)
			if tt.wantErr {
				var le *UnsupportedLayoutError
				require.ErrorAs(t, err, &le)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.layout, g.Layout)
			assert.Equal(t, tt.ch, g.Channels)
			assert.Equal(t, tt.h, g.Height)
			assert.Equal(t, tt.w, g.Width)
		})
	}
}

func TestResolve(t *testing.T) {
	t.Run("static dims ignore overrides", func(t *testing.T) {
		g, err := Resolve(Descriptor{Shape: []int64{1, 16, 24, 3}, DType: Float32}, 100, 50,
			EncodeOptions{HeightOverride: 7, WidthOverride: 9, WidthDivisor: 8})
		require.NoError(t, err)
		assert.Equal(t, int64(16), g.Height)
		assert.Equal(t, int64(24), g.Width)
	})

	t.Run("dynamic height needs override", func(t *testing.T) {
		_, err := Resolve(Descriptor{Shape: []int64{1, 1, -1, -1}, DType: Float32}, 100, 50, EncodeOptions{})
		assert.ErrorIs(t, err, ErrDynamicHeight)
	})

	t.Run("aspect ratio width rounded to divisor", func(t *testing.T) {
		// 100x50 at height 64 -> 128, already a multiple of 8
		g, err := Resolve(Descriptor{Shape: []int64{1, 1, -1, -1}, DType: Float32}, 100, 50,
			EncodeOptions{HeightOverride: 64, WidthDivisor: 8})
		require.NoError(t, err)
		assert.Equal(t, int64(64), g.Height)
		assert.Equal(t, int64(128), g.Width)

		g, err = Resolve(Descriptor{Shape: []int64{1, 1, -1, -1}, DType: Float32}, 31, 20,
			EncodeOptions{HeightOverride: 64, WidthDivisor: 10})
		require.NoError(t, err)
		// round(31*64/20)=99 -> 100
		assert.Equal(t, int64(100), g.Width)
	})

	t.Run("width override also rounded", func(t *testing.T) {
		g, err := Resolve(Descriptor{Shape: []int64{-1, 1, 64, -1}, DType: Float32}, 10, 10,
			EncodeOptions{WidthOverride: 250, WidthDivisor: 4})
		require.NoError(t, err)
		assert.Equal(t, int64(252), g.Width)
		assert.Equal(t, int64(1), g.Batch)
	})
}

func TestEncode_Float32UniformGray(t *testing.T) {
	img := uniform(8, 8, color.NRGBA{R: 128, G: 128, B: 128, A: 255})

	enc, err := Encode(img, Descriptor{Shape: []int64{1, 8, 8, 3}, DType: Float32}, EncodeOptions{})
	require.NoError(t, err)
	require.Len(t, enc.Data, 8*8*3*4)
	assert.Equal(t, 8, enc.Width())
	assert.Equal(t, 8, enc.Height())

	for i := range 8 * 8 * 3 {
		assert.InDelta(t, 128.0/255.0, readF32(enc.Data, i), 1e-6)
	}
}

func TestEncode_SingleChannelLuminance(t *testing.T) {
	img := uniform(4, 2, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
	enc, err := Encode(img, Descriptor{Shape: []int64{1, 1, 2, 4}, DType: Float32}, EncodeOptions{})
	require.NoError(t, err)
	require.Len(t, enc.Data, 2*4*4)
	for i := range 8 {
		assert.InDelta(t, 0.2989, readF32(enc.Data, i), 1e-5)
	}
}

func TestEncode_ChannelOrdering(t *testing.T) {
	img := uniform(2, 2, color.NRGBA{R: 255, G: 0, B: 51, A: 255})

	t.Run("channels last interleaves", func(t *testing.T) {
		enc, err := Encode(img, Descriptor{Shape: []int64{1, 2, 2, 3}, DType: Float32}, EncodeOptions{})
		require.NoError(t, err)
		for px := range 4 {
			assert.InDelta(t, 1.0, readF32(enc.Data, px*3), 1e-6)
			assert.InDelta(t, 0.0, readF32(enc.Data, px*3+1), 1e-6)
			assert.InDelta(t, 0.2, readF32(enc.Data, px*3+2), 1e-6)
		}
	})

	t.Run("channels first writes planes", func(t *testing.T) {
		enc, err := Encode(img, Descriptor{Shape: []int64{1, 3, 2, 2}, DType: Float32}, EncodeOptions{})
		require.NoError(t, err)
		assert.Equal(t, ChannelsFirst, enc.Geometry.Layout)
		for px := range 4 {
			assert.InDelta(t, 1.0, readF32(enc.Data, px), 1e-6)
			assert.InDelta(t, 0.0, readF32(enc.Data, 4+px), 1e-6)
			assert.InDelta(t, 0.2, readF32(enc.Data, 8+px), 1e-6)
		}
	})
}

func TestEncode_Quantized(t *testing.T) {
	img := uniform(3, 3, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	t.Run("uint8 saturates", func(t *testing.T) {
		q := &Quantization{Scale: 0.5 / 255, ZeroPoint: 10}
		enc, err := Encode(img, Descriptor{Shape: []int64{1, 3, 3, 1}, DType: Uint8, Quant: q}, EncodeOptions{})
		require.NoError(t, err)
		require.Len(t, enc.Data, 9)
		for _, b := range enc.Data {
			assert.Equal(t, byte(255), b)
		}
	})

	t.Run("int8 default quantization", func(t *testing.T) {
		enc, err := Encode(img, Descriptor{Shape: []int64{1, 3, 3, 3}, DType: Int8}, EncodeOptions{})
		require.NoError(t, err)
		for _, b := range enc.Data {
			assert.Equal(t, int8(127), int8(b))
		}
	})
}

func TestEncode_ResizesAndReplicatesBatch(t *testing.T) {
	img := uniform(40, 20, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	enc, err := Encode(img, Descriptor{Shape: []int64{2, 3, 10, 12}, DType: Float32}, EncodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 40, enc.SourceWidth)
	assert.Equal(t, 20, enc.SourceHeight)
	per := 3 * 10 * 12 * 4
	require.Len(t, enc.Data, 2*per)
	assert.Equal(t, enc.Data[:per], enc.Data[per:])
	assert.Equal(t, []int64{2, 3, 10, 12}, enc.Shape())
}

func TestEncode_Errors(t *testing.T) {
	img := uniform(4, 4, color.NRGBA{A: 255})

	_, err := Encode(img, Descriptor{Shape: []int64{1, 4, 4, 4}, DType: Float32}, EncodeOptions{})
	var le *UnsupportedLayoutError
	require.ErrorAs(t, err, &le)

	_, err = Encode(img, Descriptor{Shape: []int64{1, 4, 4, 3}, DType: DTypeUnknown}, EncodeOptions{})
	var de *UnsupportedDtypeError
	require.ErrorAs(t, err, &de)

	_, err = EncodeInto(make([]byte, 10), img, Descriptor{Shape: []int64{1, 4, 4, 3}, DType: Float32}, EncodeOptions{})
	var se *BufferSizeMismatchError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 10, se.Got)
	assert.Equal(t, 4*4*3*4, se.Want)

	_, err = Encode(nil, Descriptor{Shape: []int64{1, 4, 4, 3}, DType: Float32}, EncodeOptions{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDynamicHeight))
}
