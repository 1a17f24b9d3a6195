package tilestore

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/dyluth/terrain/internal/raster"
)

// EncodeTile encodes a tile as RGBA PNG. Unpainted (pure black) pixels are
// written fully transparent; every other pixel is written opaque.
func EncodeTile(img *image.RGBA) ([]byte, error) {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := img.RGBAAt(b.Min.X+x, b.Min.Y+y)
			if raster.IsUnpainted(c) {
				continue
			}
			out.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode tile: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeTile decodes a stored tile into an opaque raster, dropping alpha so
// transparent pixels read back as unpainted. The image must be size×size.
func DecodeTile(data []byte, size int) (*image.RGBA, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode tile: %w", err)
	}

	b := img.Bounds()
	if b.Dx() != size || b.Dy() != size {
		return nil, fmt.Errorf("tile is %dx%d, expected %dx%d", b.Dx(), b.Dy(), size, size)
	}

	return raster.Opaque(img), nil
}
