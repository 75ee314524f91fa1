package texture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// TGA image types.
const (
	TGATypeUncompressed = 2  // Uncompressed true-color
	TGATypeRLE          = 10 // RLE compressed true-color
)

const tgaHeaderSize = 18

// ErrTruncatedTGA is returned when TGA pixel data ends early.
var ErrTruncatedTGA = errors.New("truncated TGA data")

// DecodeTGA decodes an uncompressed or RLE true-color TGA image with 24 or
// 32 bits per pixel.
func DecodeTGA(data []byte) (*image.RGBA, error) {
	if len(data) < tgaHeaderSize {
		return nil, ErrTruncatedTGA
	}

	idLength := int(data[0])
	colorMapType := data[1]
	imageType := data[2]
	width := int(data[12]) | int(data[13])<<8
	height := int(data[14]) | int(data[15])<<8
	bpp := int(data[16])
	descriptor := data[17]

	if colorMapType != 0 {
		return nil, fmt.Errorf("color-mapped TGA not supported")
	}
	if imageType != TGATypeUncompressed && imageType != TGATypeRLE {
		return nil, fmt.Errorf("unsupported TGA type %d", imageType)
	}
	if bpp != 24 && bpp != 32 {
		return nil, fmt.Errorf("unsupported TGA bit depth %d", bpp)
	}

	offset := tgaHeaderSize + idLength
	if offset > len(data) {
		return nil, ErrTruncatedTGA
	}
	if err := checkSize(width, height); err != nil {
		return nil, err
	}

	// Reject data too short for the header's dimensions before allocating.
	// An RLE packet covers at most 128 pixels.
	bytesPer := bpp / 8
	pixels := width * height
	need := pixels * bytesPer
	if imageType == TGATypeRLE {
		need = (pixels + 127) / 128 * (1 + bytesPer)
	}
	if len(data)-offset < need {
		return nil, ErrTruncatedTGA
	}

	px := &tgaPixels{
		img:         image.NewRGBA(image.Rect(0, 0, width, height)),
		data:        data[offset:],
		bytesPer:    bytesPer,
		topToBottom: descriptor&0x20 != 0,
	}

	var err error
	if imageType == TGATypeUncompressed {
		err = px.decodeRaw()
	} else {
		err = px.decodeRLE()
	}
	if err != nil {
		return nil, err
	}
	return px.img, nil
}

// tgaPixels walks TGA pixel data in file order. Bottom-to-top files are
// written flipped so the result is always top-to-bottom.
type tgaPixels struct {
	img         *image.RGBA
	data        []byte
	pos         int
	bytesPer    int
	topToBottom bool
}

func (p *tgaPixels) next() (color.RGBA, bool) {
	if p.pos+p.bytesPer > len(p.data) {
		return color.RGBA{}, false
	}
	d := p.data[p.pos:]
	c := color.RGBA{R: d[2], G: d[1], B: d[0], A: 255}
	if p.bytesPer == 4 {
		c.A = d[3]
	}
	p.pos += p.bytesPer
	return c, true
}

func (p *tgaPixels) set(i int, c color.RGBA) {
	w := p.img.Rect.Dx()
	x, y := i%w, i/w
	if !p.topToBottom {
		y = p.img.Rect.Dy() - 1 - y
	}
	p.img.SetRGBA(x, y, c)
}

func (p *tgaPixels) count() int {
	return p.img.Rect.Dx() * p.img.Rect.Dy()
}

func (p *tgaPixels) decodeRaw() error {
	for i := 0; i < p.count(); i++ {
		c, ok := p.next()
		if !ok {
			return ErrTruncatedTGA
		}
		p.set(i, c)
	}
	return nil
}

func (p *tgaPixels) decodeRLE() error {
	total := p.count()
	i := 0
	for i < total {
		if p.pos >= len(p.data) {
			return ErrTruncatedTGA
		}
		packet := p.data[p.pos]
		p.pos++
		run := int(packet&0x7F) + 1

		if packet&0x80 != 0 {
			// Run-length packet: one pixel repeated.
			c, ok := p.next()
			if !ok {
				return ErrTruncatedTGA
			}
			for j := 0; j < run && i < total; j++ {
				p.set(i, c)
				i++
			}
			continue
		}

		for j := 0; j < run && i < total; j++ {
			c, ok := p.next()
			if !ok {
				return ErrTruncatedTGA
			}
			p.set(i, c)
			i++
		}
	}
	return nil
}
