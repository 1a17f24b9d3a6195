package canvas

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"sort"
)

// DefaultTileSize is the side length of a tile in pixels.
const DefaultTileSize = 512

var (
	// ErrAlignmentBound is returned when no acceptable window is found within
	// the search bound. It indicates a broken geometry invariant, not bad input.
	ErrAlignmentBound = errors.New("alignment search exceeded bound")

	// ErrInvalidTileSize is returned for non-positive tile sizes.
	ErrInvalidTileSize = errors.New("invalid tile size")
)

// Coord addresses a single tile on the canvas.
// It is encoded in JSON as a [row, col] pair to match the wire format of
// tilesUpdated and tilesIndex events and of the index document.
type Coord struct {
	Row int
	Col int
}

// String returns the coordinate as "(row,col)".
func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// MarshalJSON encodes the coordinate as [row, col].
func (c Coord) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{c.Row, c.Col})
}

// UnmarshalJSON decodes a [row, col] pair.
func (c *Coord) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("tile coordinate must be a [row, col] array: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("tile coordinate must have exactly 2 elements, got %d", len(pair))
	}
	c.Row, c.Col = pair[0], pair[1]
	return nil
}

// floorDiv divides rounding towards negative infinity, so that pixel -1
// belongs to tile -1 rather than tile 0.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// TileOf returns the tile containing pixel (x, y).
func TileOf(x, y, size int) Coord {
	return Coord{Row: floorDiv(y, size), Col: floorDiv(x, size)}
}

// OverlappingTiles returns the tiles touched by the size-square window whose
// top-left corner is (x, y), in row-major order.
// The result has 1, 2 or 4 entries.
func OverlappingTiles(x, y, size int) []Coord {
	start := TileOf(x, y, size)
	end := TileOf(x+size-1, y+size-1, size)

	tiles := make([]Coord, 0, 4)
	for row := start.Row; row <= end.Row; row++ {
		for col := start.Col; col <= end.Col; col++ {
			tiles = append(tiles, Coord{Row: row, Col: col})
		}
	}
	return tiles
}

// Alignment is the outcome of shifting a requested window corner until the
// window touches an acceptable number of tiles.
type Alignment struct {
	// X, Y is the shifted corner that selected Tiles.
	X, Y int
	// Tiles are the tiles under the window in row-major order (1 or 4 entries).
	Tiles []Coord
	// Shift is how many diagonal (-1, -1) steps were taken from the request.
	Shift int
	// ReqX, ReqY is the corner as requested, before any shift.
	ReqX, ReqY int
}

// Origin returns the pixel position of the top-left corner of the first tile.
func (a Alignment) Origin(size int) image.Point {
	return image.Pt(a.Tiles[0].Col*size, a.Tiles[0].Row*size)
}

// Offset returns the requested window corner relative to the composed tile
// raster. The tiles only ever sit up to two steps away from the request, so
// the window nearly always fits; when it would overhang the composite by a
// pixel it is clamped to the nearest position inside.
func (a Alignment) Offset(size int) image.Point {
	span := size
	if len(a.Tiles) == 4 {
		span = 2 * size
	}
	off := image.Pt(a.ReqX, a.ReqY).Sub(a.Origin(size))
	return image.Pt(clamp(off.X, 0, span-size), clamp(off.Y, 0, span-size))
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// Align shifts (x, y) by (-1, -1) until the window touches exactly 1 or 4
// tiles. The search is bounded by size steps; ErrAlignmentBound is returned
// if the bound is reached (only possible for degenerate tile sizes).
func Align(x, y, size int) (Alignment, error) {
	return alignWhere(x, y, size, func(n int) bool { return n == 1 || n == 4 })
}

// AlignQuad is like Align but only accepts windows touching exactly 4 tiles.
// An already aligned corner is shifted once so that it straddles 4 tiles.
func AlignQuad(x, y, size int) (Alignment, error) {
	return alignWhere(x, y, size, func(n int) bool { return n == 4 })
}

func alignWhere(x, y, size int, accept func(n int) bool) (Alignment, error) {
	if size < 1 {
		return Alignment{}, fmt.Errorf("%w: %d", ErrInvalidTileSize, size)
	}

	for shift := 0; shift <= size; shift++ {
		tiles := OverlappingTiles(x-shift, y-shift, size)
		if accept(len(tiles)) {
			return Alignment{X: x - shift, Y: y - shift, Tiles: tiles, Shift: shift, ReqX: x, ReqY: y}, nil
		}
	}

	return Alignment{}, fmt.Errorf("%w: no acceptable window within %d steps of (%d, %d)", ErrAlignmentBound, size, x, y)
}

// Neighborhood expands tiles by radius in every direction and returns the
// deduplicated union in row-major order.
func Neighborhood(tiles []Coord, radius int) []Coord {
	seen := make(map[Coord]struct{}, len(tiles)*(2*radius+1)*(2*radius+1))
	for _, t := range tiles {
		for dr := -radius; dr <= radius; dr++ {
			for dc := -radius; dc <= radius; dc++ {
				seen[Coord{Row: t.Row + dr, Col: t.Col + dc}] = struct{}{}
			}
		}
	}

	out := make([]Coord, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	SortCoords(out)
	return out
}

// SortCoords sorts coordinates in row-major order.
func SortCoords(coords []Coord) {
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].Row != coords[j].Row {
			return coords[i].Row < coords[j].Row
		}
		return coords[i].Col < coords[j].Col
	})
}

// MergeCoords returns the sorted, deduplicated union of the given sets.
func MergeCoords(sets ...[]Coord) []Coord {
	seen := make(map[Coord]struct{})
	for _, set := range sets {
		for _, c := range set {
			seen[c] = struct{}{}
		}
	}

	out := make([]Coord, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	SortCoords(out)
	return out
}
