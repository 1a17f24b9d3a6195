// Package raster holds the small set of in-memory image helpers shared by the
// tile store, the compositor and the inference gateway. Tiles are held as
// opaque *image.RGBA; pure black (0,0,0) is the unpainted sentinel.
package raster

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Blank returns an all-black (unpainted) opaque square raster.
func Blank(size int) *image.RGBA {
	return BlankRect(image.Rect(0, 0, size, size))
}

// BlankRect returns an all-black opaque raster covering r.
func BlankRect(r image.Rectangle) *image.RGBA {
	img := image.NewRGBA(r)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

// IsUnpainted reports whether a pixel is the unpainted sentinel.
func IsUnpainted(c color.RGBA) bool {
	return c.R == 0 && c.G == 0 && c.B == 0
}

// Opaque converts any image to an opaque RGBA raster with bounds starting at
// (0,0). Colour channels are taken un-premultiplied and alpha is discarded,
// so a fully transparent pixel becomes the unpainted sentinel.
func Opaque(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			if c.A == 0 {
				c = color.NRGBA{}
			}
			dst.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}

// Fit returns src as an opaque size×size raster, rescaling when the
// dimensions differ.
func Fit(src image.Image, size int) *image.RGBA {
	img := Opaque(src)
	if img.Bounds().Dx() == size && img.Bounds().Dy() == size {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Clone returns a deep copy of img with bounds rebased to (0,0).
func Clone(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(dst, image.Point{}, img, b, draw.Src, nil)
	return dst
}

// Equal reports whether two rasters have the same size and pixels.
func Equal(a, b *image.RGBA) bool {
	if a.Bounds().Size() != b.Bounds().Size() {
		return false
	}
	ab, bb := a.Bounds(), b.Bounds()
	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			if a.RGBAAt(ab.Min.X+x, ab.Min.Y+y) != b.RGBAAt(bb.Min.X+x, bb.Min.Y+y) {
				return false
			}
		}
	}
	return true
}
