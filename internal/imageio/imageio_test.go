package imageio

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxnlabs/pixel-bridge/internal/hostimg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func testRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 30, G: 20, B: 10, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 60, G: 50, B: 40, A: 255})
	return img
}

func TestDecode_Formats(t *testing.T) {
	encoders := map[string]func(*bytes.Buffer, image.Image) error{
		"png":  func(b *bytes.Buffer, img image.Image) error { return png.Encode(b, img) },
		"bmp":  func(b *bytes.Buffer, img image.Image) error { return bmp.Encode(b, img) },
		"tiff": func(b *bytes.Buffer, img image.Image) error { return tiff.Encode(b, img, nil) },
	}

	for name, encode := range encoders {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, encode(&buf, testRGBA()))

			m, format, err := Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, name, format)
			assert.Equal(t, 1, m.Rows())
			assert.Equal(t, 2, m.Cols())
			assert.Equal(t, 3, m.Channels())
			// BGR order
			assert.Equal(t, []uint8{10, 20, 30, 40, 50, 60}, m.Uint8s())
		})
	}
}

func TestFromImage_Gray(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 3, 2))
	copy(g.Pix, []uint8{1, 2, 3, 4, 5, 6})

	m, err := FromImage(g)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Channels())
	assert.Equal(t, hostimg.Depth8U, m.Depth())
	assert.Equal(t, []uint8{1, 2, 3, 4, 5, 6}, m.Uint8s())

	t.Run("sub image", func(t *testing.T) {
		sub := g.SubImage(image.Rect(1, 1, 3, 2))
		m, err := FromImage(sub)
		require.NoError(t, err)
		assert.Equal(t, []uint8{5, 6}, m.Uint8s())
	})
}

func TestFromImage_Gray16(t *testing.T) {
	g := image.NewGray16(image.Rect(0, 0, 2, 1))
	g.SetGray16(0, 0, color.Gray16{Y: 1000})
	g.SetGray16(1, 0, color.Gray16{Y: 65535})

	m, err := FromImage(g)
	require.NoError(t, err)
	assert.Equal(t, hostimg.Depth16U, m.Depth())
	assert.Equal(t, 1000.0, m.At(0, 0, 0))
	assert.Equal(t, 65535.0, m.At(0, 1, 0))
}

func TestDecode_Invalid(t *testing.T) {
	_, _, err := Decode(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

func TestSaveGray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plane.png")

	m, err := hostimg.FromData(2, 2, 1, []float32{0, 64.4, 128.6, 400})
	require.NoError(t, err)
	require.NoError(t, SaveGray(path, m))

	loaded, format, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, []uint8{0, 64, 129, 255}, loaded.Uint8s())

	// source image keeps its depth
	assert.Equal(t, hostimg.Depth32F, m.Depth())

	t.Run("multi channel rejected", func(t *testing.T) {
		color3, err := hostimg.NewMat(1, 1, 3, hostimg.Depth8U)
		require.NoError(t, err)
		err = SaveGray(filepath.Join(dir, "x.png"), color3)
		assert.ErrorIs(t, err, ErrNotSingleChannel)
		_, statErr := os.Stat(filepath.Join(dir, "x.png"))
		assert.True(t, os.IsNotExist(statErr))
	})
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
