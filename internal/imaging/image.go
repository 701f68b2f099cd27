package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/born-ml/ddpm/internal/tensor"
)

// captionHeight is the band reserved above the grid by Caption.
const captionHeight = 16

// ToImage converts a [C, H, W] grid with values in [0, 1] to an image.
// One channel gives a grayscale image, three an RGB one. Values are clamped.
func ToImage(grid *tensor.Tensor) (image.Image, error) {
	s := grid.Shape()
	if len(s) != 3 || (s[0] != 1 && s[0] != 3) {
		return nil, fmt.Errorf("imaging: expected [1|3, H, W] grid, got %v: %w", s, tensor.ErrShapeMismatch)
	}
	c, h, w := s[0], s[1], s[2]
	data := grid.Data()

	if c == 1 {
		img := image.NewGray(image.Rect(0, 0, w, h))
		for i, v := range data {
			img.Pix[i] = toByte(v)
		}
		return img, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	plane := h * w
	for i := 0; i < plane; i++ {
		img.Pix[i*4+0] = toByte(data[i])
		img.Pix[i*4+1] = toByte(data[plane+i])
		img.Pix[i*4+2] = toByte(data[2*plane+i])
		img.Pix[i*4+3] = 255
	}
	return img, nil
}

// Upscale enlarges img by an integer factor with nearest-neighbor sampling.
func Upscale(img image.Image, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Caption returns a copy of img with text drawn in a band above it.
func Caption(img image.Image, text string) image.Image {
	b := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()+captionHeight))
	draw.Draw(canvas, canvas.Bounds(), image.Black, image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(0, captionHeight, b.Dx(), b.Dy()+captionHeight), img, b.Min, draw.Src)

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(2, captionHeight-3), // baseline offset
	}
	d.DrawString(text)
	return canvas
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// SavePNG writes img to a PNG file.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func toByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}
