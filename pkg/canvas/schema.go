package canvas

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Blob key and Pub/Sub channel helpers
//
// Key pattern:     {prefix_root}/{space}/{row}_{col}.png
// Index pattern:   {prefix_root}/{space}/index.json
// Channel pattern: terrain:{canvas_name}:events

const (
	// DefaultPrefixRoot is the blob prefix under which every space lives.
	DefaultPrefixRoot = "public/tiles"

	// DefaultSpace is the space used when a request does not name one.
	DefaultSpace = "global"

	// IndexObject is the object name of the tile index inside a space prefix.
	IndexObject = "index.json"

	tileExt = ".png"
)

// SpacePrefix returns the blob prefix for a space.
// Pattern: {prefix_root}/{space}
func SpacePrefix(prefixRoot, space string) string {
	if space == "" {
		space = DefaultSpace
	}
	return path.Join(prefixRoot, space)
}

// TileKey returns the blob key for a tile.
// Pattern: {prefix}/{row}_{col}.png
func TileKey(prefix string, c Coord) string {
	return fmt.Sprintf("%s/%d_%d%s", prefix, c.Row, c.Col, tileExt)
}

// IndexKey returns the blob key for the tile index document.
// Pattern: {prefix}/index.json
func IndexKey(prefix string) string {
	return prefix + "/" + IndexObject
}

// ParseTileKey extracts the tile coordinate from a tile blob key.
// Returns false for keys that are not tile objects (for example the index).
func ParseTileKey(key string) (Coord, bool) {
	name := path.Base(key)
	if !strings.HasSuffix(name, tileExt) {
		return Coord{}, false
	}
	name = strings.TrimSuffix(name, tileExt)

	rowStr, colStr, ok := strings.Cut(name, "_")
	if !ok {
		return Coord{}, false
	}

	row, err := strconv.Atoi(rowStr)
	if err != nil {
		return Coord{}, false
	}
	col, err := strconv.Atoi(colStr)
	if err != nil {
		return Coord{}, false
	}

	return Coord{Row: row, Col: col}, true
}

// EventsChannel returns the Pub/Sub channel carrying all events of a canvas.
// Pattern: terrain:{canvas_name}:events
func EventsChannel(canvasName string) string {
	return fmt.Sprintf("terrain:%s:events", canvasName)
}
