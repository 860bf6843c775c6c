package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrNotImage is returned when the data cannot be decoded by any registered codec.
var ErrNotImage = errors.New("not a valid image")

// DefaultJPEGQuality matches what most image libraries use when saving JPEG.
const DefaultJPEGQuality = 75

// Decoded is an image together with the codec that read it.
type Decoded struct {
	Image  image.Image
	Format string
}

// Decode reads jpeg, png, gif, bmp, tiff or webp data.
func Decode(data []byte) (Decoded, error) {
	if len(data) == 0 {
		return Decoded{}, ErrNotImage
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return Decoded{Image: img, Format: format}, nil
}

// EncodeJPEG re-encodes img as an RGB JPEG.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, toRGBA(img), &jpeg.Options{Quality: DefaultJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Resize scales img to size x size with bilinear interpolation, ignoring the
// aspect ratio the same way the classifier was trained.
func Resize(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// Tensor resizes img and flattens it to HWC float32 RGB values in [0,255].
func Tensor(img image.Image, size int) []float32 {
	if size <= 0 {
		return nil
	}
	rgba := Resize(img, size)
	out := make([]float32, 0, size*size*3)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := rgba.PixOffset(x, y)
			px := rgba.Pix[off : off+3 : off+3]
			out = append(out, float32(px[0]), float32(px[1]), float32(px[2]))
		}
	}
	return out
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
