package tensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// ErrDynamicHeight is returned when the input height is dynamic and no override was given.
var ErrDynamicHeight = errors.New("dynamic input height requires an explicit height override")

// Luminance weights for single-channel inputs.
const (
	lumaR = 0.2989
	lumaG = 0.5870
	lumaB = 0.1140
)

// EncodeOptions control size resolution for dynamic dimensions. They have no
// effect on dimensions the model fixes.
type EncodeOptions struct {
	HeightOverride int
	WidthOverride  int
	// WidthDivisor rounds a dynamic width up to a multiple of itself. Values <= 1 disable it.
	WidthDivisor int
}

// Encoded is an image converted into a model input buffer.
type Encoded struct {
	Data     []byte
	Geometry Geometry
	DType    DType
	// Source size of the image before resizing.
	SourceWidth  int
	SourceHeight int
}

// Width returns the resolved input width.
func (e *Encoded) Width() int { return int(e.Geometry.Width) }

// Height returns the resolved input height.
func (e *Encoded) Height() int { return int(e.Geometry.Height) }

// Shape returns the concrete input shape.
func (e *Encoded) Shape() []int64 { return e.Geometry.Shape() }

// Resolve computes the concrete geometry for an image of srcW x srcH.
func Resolve(desc Descriptor, srcW, srcH int, opts EncodeOptions) (Geometry, error) {
	g, err := InferLayout(desc.Shape)
	if err != nil {
		return Geometry{}, err
	}
	if srcW <= 0 || srcH <= 0 {
		return Geometry{}, fmt.Errorf("invalid source size %dx%d", srcW, srcH)
	}
	if g.Batch <= 0 {
		g.Batch = 1
	}

	if g.Height <= 0 {
		if opts.HeightOverride <= 0 {
			return Geometry{}, ErrDynamicHeight
		}
		g.Height = int64(opts.HeightOverride)
	}

	if g.Width <= 0 {
		w := opts.WidthOverride
		if w <= 0 {
			w = int(math.Round(float64(srcW) * float64(g.Height) / float64(srcH)))
			w = max(w, 1)
		}
		if d := opts.WidthDivisor; d > 1 {
			w = ((w + d - 1) / d) * d
		}
		g.Width = int64(w)
	}
	return g, nil
}

// ByteSize returns the buffer length required for a resolved geometry.
func ByteSize(g Geometry, dt DType) (int, error) {
	bpe, err := dt.BytesPerElement()
	if err != nil {
		return 0, err
	}
	return int(g.Batch) * g.Channels * int(g.Height) * int(g.Width) * bpe, nil
}

// Encode resizes img to the input geometry of desc and writes it into a new buffer.
func Encode(img image.Image, desc Descriptor, opts EncodeOptions) (*Encoded, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	b := img.Bounds()
	g, err := Resolve(desc, b.Dx(), b.Dy(), opts)
	if err != nil {
		return nil, err
	}
	size, err := ByteSize(g, desc.DType)
	if err != nil {
		return nil, err
	}
	return EncodeInto(make([]byte, size), img, desc, opts)
}

// EncodeInto writes img into dst, which must have exactly the size implied by
// the resolved geometry and dtype.
func EncodeInto(dst []byte, img image.Image, desc Descriptor, opts EncodeOptions) (*Encoded, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	b := img.Bounds()
	g, err := Resolve(desc, b.Dx(), b.Dy(), opts)
	if err != nil {
		return nil, err
	}
	bpe, err := desc.DType.BytesPerElement()
	if err != nil {
		return nil, err
	}
	want, _ := ByteSize(g, desc.DType)
	if len(dst) != want {
		return nil, &BufferSizeMismatchError{Got: len(dst), Want: want}
	}

	w, h := int(g.Width), int(g.Height)
	var src *image.NRGBA
	if b.Dx() == w && b.Dy() == h {
		src = imaging.Clone(img)
	} else {
		src = imaging.Resize(img, w, h, imaging.Linear)
	}

	q := desc.Quant.Effective(desc.DType)
	plane := w * h
	for y := range h {
		row := src.Pix[y*src.Stride:]
		for x := range w {
			r := float32(row[x*4]) / 255
			gr := float32(row[x*4+1]) / 255
			bl := float32(row[x*4+2]) / 255
			px := y*w + x
			if g.Channels == 1 {
				writeElement(dst, px, lumaR*r+lumaG*gr+lumaB*bl, desc.DType, q)
				continue
			}
			vals := [3]float32{r, gr, bl}
			for c, v := range vals {
				idx := px*3 + c
				if g.Layout == ChannelsFirst {
					idx = c*plane + px
				}
				writeElement(dst, idx, v, desc.DType, q)
			}
		}
	}

	// Every batch slot carries the same image.
	per := plane * g.Channels * bpe
	for n := 1; n < int(g.Batch); n++ {
		copy(dst[n*per:(n+1)*per], dst[:per])
	}

	return &Encoded{
		Data:         dst,
		Geometry:     g,
		DType:        desc.DType,
		SourceWidth:  b.Dx(),
		SourceHeight: b.Dy(),
	}, nil
}

func writeElement(dst []byte, idx int, v float32, dt DType, q Quantization) {
	switch dt {
	case Float32:
		binary.NativeEndian.PutUint32(dst[idx*4:], math.Float32bits(v))
	case Uint8:
		dst[idx] = byte(Quantize(v, q, Uint8))
	case Int8:
		dst[idx] = byte(int8(Quantize(v, q, Int8)))
	}
}
