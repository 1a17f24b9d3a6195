package compositor

import (
	"fmt"
	"image"
	"image/color"

	"github.com/dyluth/terrain/internal/raster"
	"golang.org/x/image/draw"
)

// quadrant returns the placement of tile i (row-major) in a 2×2 composite.
func quadrant(i, size int) image.Point {
	return image.Pt((i%2)*size, (i/2)*size)
}

// Compose assembles 1 tile (returned as a copy) or 4 tiles in row-major
// order (top-left, top-right, bottom-left, bottom-right) into one raster.
func Compose(tiles []*image.RGBA, size int) (*image.RGBA, error) {
	switch len(tiles) {
	case 1:
		return raster.Clone(tiles[0]), nil
	case 4:
		full := image.NewRGBA(image.Rect(0, 0, 2*size, 2*size))
		for i, t := range tiles {
			if t.Bounds().Dx() != size || t.Bounds().Dy() != size {
				return nil, fmt.Errorf("tile %d is %v, expected %dx%d", i, t.Bounds().Size(), size, size)
			}
			draw.Copy(full, quadrant(i, size), t, t.Bounds(), draw.Src, nil)
		}
		return full, nil
	default:
		return nil, fmt.Errorf("cannot compose %d tiles", len(tiles))
	}
}

// Crop copies the size×size window at offset out of full.
func Crop(full *image.RGBA, offset image.Point, size int) (*image.RGBA, error) {
	r := image.Rectangle{Min: offset, Max: offset.Add(image.Pt(size, size))}.Add(full.Bounds().Min)
	if !r.In(full.Bounds()) {
		return nil, fmt.Errorf("window %v lies outside composite %v", r, full.Bounds())
	}
	return raster.Clone(full.SubImage(r).(*image.RGBA)), nil
}

// DeriveMask marks unpainted (black) pixels white and painted pixels black.
func DeriveMask(window *image.RGBA) *image.Gray {
	b := window.Bounds()
	mask := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if raster.IsUnpainted(window.RGBAAt(b.Min.X+x, b.Min.Y+y)) {
				mask.SetGray(x, y, color.Gray{Y: 0xff})
			}
		}
	}
	return mask
}

// MaskEmpty reports whether no pixel needs generating.
func MaskEmpty(mask *image.Gray) bool {
	for _, v := range mask.Pix {
		if v != 0 {
			return false
		}
	}
	return true
}

// Splice writes window back into full at offset, in place.
func Splice(full, window *image.RGBA, offset image.Point) {
	draw.Copy(full, full.Bounds().Min.Add(offset), window, window.Bounds(), draw.Src, nil)
}

// Split cuts full back into n tiles (1 or 4) in the order Compose expects.
func Split(full *image.RGBA, n, size int) ([]*image.RGBA, error) {
	switch n {
	case 1:
		return []*image.RGBA{raster.Clone(full)}, nil
	case 4:
		tiles := make([]*image.RGBA, 4)
		for i := range tiles {
			min := full.Bounds().Min.Add(quadrant(i, size))
			r := image.Rectangle{Min: min, Max: min.Add(image.Pt(size, size))}
			if !r.In(full.Bounds()) {
				return nil, fmt.Errorf("quadrant %v lies outside composite %v", r, full.Bounds())
			}
			tiles[i] = raster.Clone(full.SubImage(r).(*image.RGBA))
		}
		return tiles, nil
	default:
		return nil, fmt.Errorf("cannot split into %d tiles", n)
	}
}
