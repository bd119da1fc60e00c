// Package imageio reads image files into host images and writes single
// channel host images back out as PNG.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/fxnlabs/pixel-bridge/internal/hostimg"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ErrNotSingleChannel is returned by SaveGray for multi-channel images.
var ErrNotSingleChannel = errors.New("imageio: image is not single channel")

// Load decodes the image file at path.
func Load(path string) (*hostimg.Mat, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads any registered format (PNG, JPEG, GIF, BMP, TIFF). 8-bit
// grayscale becomes a 1-channel 8U image, 16-bit grayscale a 1-channel 16U
// image, and everything else a 3-channel 8U image in BGR order with alpha
// dropped. The format name is returned alongside.
func Decode(r io.Reader) (*hostimg.Mat, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decoding image: %w", err)
	}
	m, err := FromImage(img)
	if err != nil {
		return nil, "", err
	}
	return m, format, nil
}

// FromImage converts a decoded image into a host image.
func FromImage(img image.Image) (*hostimg.Mat, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		m, err := hostimg.NewMat(h, w, 1, hostimg.Depth8U)
		if err != nil {
			return nil, err
		}
		dst := m.Uint8s()
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst[y*w:], src.Pix[off:off+w])
		}
		return m, nil
	case *image.Gray16:
		m, err := hostimg.NewMat(h, w, 1, hostimg.Depth16U)
		if err != nil {
			return nil, err
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				m.Set(y, x, 0, float64(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
		return m, nil
	}

	m, err := hostimg.NewMat(h, w, 3, hostimg.Depth8U)
	if err != nil {
		return nil, err
	}
	dst := m.Uint8s()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := (y*w + x) * 3
			dst[i+0] = c.B
			dst[i+1] = c.G
			dst[i+2] = c.R
		}
	}
	return m, nil
}

// ToGray converts a single-channel host image to an 8-bit grayscale image,
// rounding and saturating non-8U samples.
func ToGray(m *hostimg.Mat) (*image.Gray, error) {
	if m.Channels() != 1 {
		return nil, fmt.Errorf("%w: %d channels", ErrNotSingleChannel, m.Channels())
	}
	u8 := m
	if m.Depth() != hostimg.Depth8U {
		u8 = m.Clone()
		if err := u8.ConvertTo(hostimg.Depth8U); err != nil {
			return nil, err
		}
	}
	g := image.NewGray(image.Rect(0, 0, m.Cols(), m.Rows()))
	copy(g.Pix, u8.Uint8s())
	return g, nil
}

// SaveGray writes a single-channel host image to path as an 8-bit PNG.
func SaveGray(path string, m *hostimg.Mat) error {
	g, err := ToGray(m)
	if err != nil {
		return err
	}
	f, err := os.Create(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return err
	}
	if err := png.Encode(f, g); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
