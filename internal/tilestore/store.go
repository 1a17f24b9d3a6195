// Package tilestore reads and writes canvas tiles and the tile index in a
// blob store. Missing or unreadable tiles are not errors: they read back as
// blank (unpainted) tiles.
package tilestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log"

	"github.com/dyluth/terrain/internal/raster"
	"github.com/dyluth/terrain/pkg/canvas"
)

// Store is the tile store adapter for one canvas space.
// It is safe for concurrent use if the underlying Blobs is.
type Store struct {
	blobs      Blobs
	prefixRoot string
	space      string
	tileSize   int
}

// New creates a store for the default space under prefixRoot.
func New(blobs Blobs, prefixRoot string, tileSize int) *Store {
	return &Store{
		blobs:      blobs,
		prefixRoot: prefixRoot,
		space:      canvas.DefaultSpace,
		tileSize:   tileSize,
	}
}

// ForSpace returns a store sharing the same blobs for another space.
// An empty space selects the default space.
func (s *Store) ForSpace(space string) *Store {
	if space == "" {
		space = canvas.DefaultSpace
	}
	clone := *s
	clone.space = space
	return &clone
}

// Space returns the space this store reads and writes.
func (s *Store) Space() string {
	return s.space
}

// Prefix returns the blob prefix of this store's space.
func (s *Store) Prefix() string {
	return canvas.SpacePrefix(s.prefixRoot, s.space)
}

// TileSize returns the tile side length in pixels.
func (s *Store) TileSize() int {
	return s.tileSize
}

// Get fetches and decodes a tile. Any failure yields a blank tile; failures
// other than a missing object are logged.
func (s *Store) Get(ctx context.Context, c canvas.Coord) *image.RGBA {
	key := canvas.TileKey(s.Prefix(), c)

	data, err := s.blobs.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("[Store] Reading tile %s failed, treating as blank: %v", key, err)
		}
		return raster.Blank(s.tileSize)
	}

	img, err := DecodeTile(data, s.tileSize)
	if err != nil {
		log.Printf("[Store] Tile %s is unreadable, treating as blank: %v", key, err)
		return raster.Blank(s.tileSize)
	}

	return img
}

// Put encodes a tile (black→transparent) and uploads it, overwriting any
// prior content at that coordinate.
func (s *Store) Put(ctx context.Context, c canvas.Coord, img *image.RGBA) error {
	if sz := img.Bounds().Size(); sz.X != s.tileSize || sz.Y != s.tileSize {
		return fmt.Errorf("tile %s is %dx%d, expected %dx%d", c, sz.X, sz.Y, s.tileSize, s.tileSize)
	}

	data, err := EncodeTile(img)
	if err != nil {
		return fmt.Errorf("tile %s: %w", c, err)
	}

	if err := s.blobs.Put(ctx, canvas.TileKey(s.Prefix(), c), data); err != nil {
		return fmt.Errorf("failed to store tile %s: %w", c, err)
	}
	return nil
}

// List enumerates the coordinates of every stored tile in this space,
// sorted row-major. Non-tile objects under the prefix are ignored.
func (s *Store) List(ctx context.Context) ([]canvas.Coord, error) {
	keys, err := s.blobs.List(ctx, s.Prefix()+"/")
	if err != nil {
		return nil, err
	}

	coords := make([]canvas.Coord, 0, len(keys))
	for _, key := range keys {
		if c, ok := canvas.ParseTileKey(key); ok {
			coords = append(coords, c)
		}
	}
	canvas.SortCoords(coords)
	return coords, nil
}

// indexDocument is the persisted shape of the tile index.
type indexDocument struct {
	Tiles []canvas.Coord `json:"tiles"`
}

// ReadIndex loads the persisted tile index.
// Returns an error wrapping ErrNotFound if no index has been written.
func (s *Store) ReadIndex(ctx context.Context) ([]canvas.Coord, error) {
	data, err := s.blobs.Get(ctx, canvas.IndexKey(s.Prefix()))
	if err != nil {
		return nil, err
	}

	var doc indexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse tile index: %w", err)
	}
	if doc.Tiles == nil {
		doc.Tiles = []canvas.Coord{}
	}
	return doc.Tiles, nil
}

// WriteIndex persists the tile index document.
func (s *Store) WriteIndex(ctx context.Context, tiles []canvas.Coord) error {
	if tiles == nil {
		tiles = []canvas.Coord{}
	}

	data, err := json.Marshal(indexDocument{Tiles: tiles})
	if err != nil {
		return fmt.Errorf("failed to marshal tile index: %w", err)
	}

	if err := s.blobs.Put(ctx, canvas.IndexKey(s.Prefix()), data); err != nil {
		return fmt.Errorf("failed to store tile index: %w", err)
	}
	return nil
}
