package inference

import (
	"context"
	"image"
	"image/color"

	"github.com/dyluth/terrain/internal/raster"
)

// DefaultFillColor is the colour FillInpainter paints when none is given.
var DefaultFillColor = color.RGBA{R: 194, G: 178, B: 128, A: 0xff}

// FillInpainter is a deterministic backend that paints every masked pixel a
// fixed colour and leaves the rest of the image untouched. It is used for
// dry runs without a model and as the stand-in model in tests.
type FillInpainter struct {
	Color color.RGBA
}

// NewFillInpainter returns a fill backend. Black is replaced by
// DefaultFillColor since it would read back as unpainted.
func NewFillInpainter(c color.RGBA) *FillInpainter {
	if raster.IsUnpainted(c) {
		c = DefaultFillColor
	}
	c.A = 0xff
	return &FillInpainter{Color: c}
}

// Inpaint implements Inpainter.
func (f *FillInpainter) Inpaint(_ context.Context, req Request) (image.Image, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	out := raster.Clone(req.Image)
	mb := req.Mask.Bounds()
	for y := 0; y < mb.Dy(); y++ {
		for x := 0; x < mb.Dx(); x++ {
			if req.Mask.GrayAt(mb.Min.X+x, mb.Min.Y+y).Y != 0 {
				out.SetRGBA(x, y, f.Color)
			}
		}
	}
	return out, nil
}
