//go:build !nogpu

package capture

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Extensions lists the image file extensions the sources decode.
var Extensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// Supported reports whether name has a decodable image extension.
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Decode decodes one image of any supported format.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("capture: decode: %w", err)
	}
	return img, format, nil
}

// DecodeFile opens and decodes the image at path.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// BGRA converts img into tightly packed BGRA8 rows of size width×height,
// scaling bilinearly when the sizes differ.
func BGRA(img image.Image, width, height int) []byte {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	sr := img.Bounds()
	if sr.Dx() == width && sr.Dy() == height {
		draw.Draw(dst, dst.Bounds(), img, sr.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, sr, draw.Src, nil)
	}
	pix := dst.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
	return pix
}

// Solid returns a source repeating c. Only the first frame reports an
// update.
func Solid(c color.Color, width, height uint32, interval time.Duration) *Source {
	px := color.RGBAModel.Convert(c).(color.RGBA)
	pix := make([]byte, 4*int(width)*int(height))
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = px.B, px.G, px.R, px.A
	}
	return newSource(width, height, interval, once(pix))
}

// NewImage returns a source repeating img at its own size. Only the first
// frame reports an update.
func NewImage(img image.Image, interval time.Duration) *Source {
	b := img.Bounds()
	pix := BGRA(img, b.Dx(), b.Dy())
	return newSource(uint32(b.Dx()), uint32(b.Dy()), interval, once(pix))
}

// OpenImage decodes path and returns a source repeating it.
func OpenImage(path string, interval time.Duration) (*Source, error) {
	img, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return NewImage(img, interval), nil
}
