// Package texture decodes texture images into GPU-ready pixel data.
package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// WrapMode is the texture coordinate wrapping mode.
type WrapMode int

const (
	WrapRepeat      WrapMode = iota // Tile the texture
	WrapClampToEdge                 // Clamp to the edge texels
)

// String returns a human-readable wrap mode name.
func (w WrapMode) String() string {
	switch w {
	case WrapRepeat:
		return "Repeat"
	case WrapClampToEdge:
		return "ClampToEdge"
	default:
		return fmt.Sprintf("Unknown(%d)", int(w))
	}
}

// Texture is decoded pixel data plus its sampling policy.
type Texture struct {
	Width  int
	Height int
	// Pixels holds non-premultiplied RGBA8 rows, bottom row first, as GL
	// expects for texture uploads.
	Pixels []byte
	Wrap   WrapMode
	// Mipmaps is set for power-of-two textures. Other textures must be
	// sampled with a linear minification filter.
	Mipmaps bool
}

// Placeholder returns the 1x1 opaque black texture used while a real
// texture is missing.
func Placeholder() *Texture {
	return FromImage(image.NewUniform(color.NRGBA{A: 255}), image.Rect(0, 0, 1, 1))
}

// IsPlaceholder reports whether t is a 1x1 opaque black texture.
func (t *Texture) IsPlaceholder() bool {
	return t.Width == 1 && t.Height == 1 && bytes.Equal(t.Pixels, []byte{0, 0, 0, 255})
}

// MaxPixels bounds the decoded size of a texture.
const MaxPixels = 8192 * 8192

var (
	// ErrUnknownFormat is returned for data that is not a supported image.
	ErrUnknownFormat = errors.New("unknown image format")
	// ErrTooLarge is returned for images with more than MaxPixels pixels.
	ErrTooLarge = errors.New("image too large")
	// ErrEmptyImage is returned for images with no pixels.
	ErrEmptyImage = errors.New("image has no pixels")
)

func checkSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmptyImage, width, height)
	}
	if width > MaxPixels/height {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, width, height, MaxPixels)
	}
	return nil
}

// Decode decodes an encoded image. The format is sniffed from the content;
// TGA has no signature and is only tried when name ends in .tga.
func Decode(data []byte, name string) (*Texture, error) {
	kind, _ := filetype.Match(data)
	switch {
	case filetype.IsImage(data):
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding %s as %s: %w", name, kind.Extension, err)
		}
		if err := checkSize(cfg.Width, cfg.Height); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", name, err)
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding %s as %s: %w", name, kind.Extension, err)
		}
		return FromImage(img, img.Bounds()), nil

	case kind == types.Unknown && strings.EqualFold(filepath.Ext(name), ".tga"):
		img, err := DecodeTGA(data)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", name, err)
		}
		return FromImage(img, img.Bounds()), nil

	case kind != types.Unknown:
		return nil, fmt.Errorf("decoding %s: %w: content is %s", name, ErrUnknownFormat, kind.MIME.Value)
	default:
		return nil, fmt.Errorf("decoding %s: %w", name, ErrUnknownFormat)
	}
}

// FromImage converts the bounds region of img into a Texture, flipping it
// along the Y axis.
func FromImage(img image.Image, bounds image.Rectangle) *Texture {
	w, h := bounds.Dx(), bounds.Dy()
	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)

	rowSize := w * 4
	pixels := make([]byte, rowSize*h)
	for y := 0; y < h; y++ {
		src := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+rowSize]
		copy(pixels[(h-1-y)*rowSize:], src)
	}

	tex := &Texture{
		Width:  w,
		Height: h,
		Pixels: pixels,
	}
	if isPowerOf2(w) && isPowerOf2(h) {
		tex.Wrap = WrapRepeat
		tex.Mipmaps = true
	} else {
		tex.Wrap = WrapClampToEdge
	}
	return tex
}

func isPowerOf2(v int) bool {
	return v > 0 && v&(v-1) == 0
}
