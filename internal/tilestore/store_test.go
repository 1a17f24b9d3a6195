package tilestore

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/terrain/internal/raster"
	"github.com/dyluth/terrain/pkg/canvas"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTileSize = 16

// setupTestStore creates a store backed by a miniredis instance
func setupTestStore(t *testing.T) (*Store, *RedisBlobs, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	blobs := NewRedisBlobs(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { blobs.Close() })

	return New(blobs, canvas.DefaultPrefixRoot, testTileSize), blobs, mr
}

func paintedTile(size int) *image.RGBA {
	img := raster.Blank(size)
	for y := 0; y < size/2; y++ {
		for x := 0; x < size; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 99, A: 0xff})
		}
	}
	return img
}

// failingBlobs returns err from every operation
type failingBlobs struct{ err error }

func (f failingBlobs) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingBlobs) Put(context.Context, string, []byte) error { return f.err }
func (f failingBlobs) List(context.Context, string) ([]string, error) { return nil, f.err }

func TestStoreGet(t *testing.T) {
	ctx := context.Background()

	t.Run("missing tile reads as blank", func(t *testing.T) {
		store, _, _ := setupTestStore(t)
		img := store.Get(ctx, canvas.Coord{Row: 3, Col: 4})
		assert.True(t, raster.Equal(raster.Blank(testTileSize), img))
	})

	t.Run("transport failure reads as blank", func(t *testing.T) {
		store := New(failingBlobs{err: errors.New("connection refused")}, canvas.DefaultPrefixRoot, testTileSize)
		img := store.Get(ctx, canvas.Coord{})
		assert.True(t, raster.Equal(raster.Blank(testTileSize), img))
	})

	t.Run("corrupt tile reads as blank", func(t *testing.T) {
		store, blobs, _ := setupTestStore(t)
		key := canvas.TileKey(store.Prefix(), canvas.Coord{})
		require.NoError(t, blobs.Put(ctx, key, []byte("not a png")))

		img := store.Get(ctx, canvas.Coord{})
		assert.True(t, raster.Equal(raster.Blank(testTileSize), img))
	})

	t.Run("wrong sized tile reads as blank", func(t *testing.T) {
		store, blobs, _ := setupTestStore(t)
		data, err := EncodeTile(paintedTile(testTileSize * 2))
		require.NoError(t, err)
		require.NoError(t, blobs.Put(ctx, canvas.TileKey(store.Prefix(), canvas.Coord{}), data))

		img := store.Get(ctx, canvas.Coord{})
		assert.True(t, raster.Equal(raster.Blank(testTileSize), img))
	})
}

func TestStorePutGetRoundTrip(t *testing.T) {
	store, _, _ := setupTestStore(t)
	ctx := context.Background()

	want := paintedTile(testTileSize)
	require.NoError(t, store.Put(ctx, canvas.Coord{Row: -1, Col: 2}, want))

	got := store.Get(ctx, canvas.Coord{Row: -1, Col: 2})
	assert.True(t, raster.Equal(want, got))
}

func TestStorePut(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects wrong size", func(t *testing.T) {
		store, _, _ := setupTestStore(t)
		err := store.Put(ctx, canvas.Coord{}, raster.Blank(testTileSize+1))
		assert.Error(t, err)
	})

	t.Run("surfaces store failure", func(t *testing.T) {
		store := New(failingBlobs{err: errors.New("read-only")}, canvas.DefaultPrefixRoot, testTileSize)
		err := store.Put(ctx, canvas.Coord{}, raster.Blank(testTileSize))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read-only")
	})

	t.Run("writes under the space prefix", func(t *testing.T) {
		store, _, mr := setupTestStore(t)
		require.NoError(t, store.ForSpace("mars").Put(ctx, canvas.Coord{Row: 1, Col: 2}, raster.Blank(testTileSize)))
		assert.True(t, mr.Exists("terrain:blob:public/tiles/mars/1_2.png"))
	})
}

func TestStoreList(t *testing.T) {
	store, _, _ := setupTestStore(t)
	ctx := context.Background()

	for _, c := range []canvas.Coord{{Row: 1, Col: 1}, {Row: 0, Col: -3}, {Row: 0, Col: 2}} {
		require.NoError(t, store.Put(ctx, c, raster.Blank(testTileSize)))
	}
	require.NoError(t, store.WriteIndex(ctx, []canvas.Coord{{Row: 9, Col: 9}}))
	require.NoError(t, store.ForSpace("other").Put(ctx, canvas.Coord{Row: 5, Col: 5}, raster.Blank(testTileSize)))

	coords, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []canvas.Coord{{Row: 0, Col: -3}, {Row: 0, Col: 2}, {Row: 1, Col: 1}}, coords)
}

func TestStoreListDoesNotMatchSiblingSpaces(t *testing.T) {
	store, _, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ForSpace("global2").Put(ctx, canvas.Coord{}, raster.Blank(testTileSize)))

	coords, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, coords)
}

func TestStoreIndex(t *testing.T) {
	store, _, _ := setupTestStore(t)
	ctx := context.Background()

	t.Run("missing index is ErrNotFound", func(t *testing.T) {
		_, err := store.ReadIndex(ctx)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("write then read", func(t *testing.T) {
		tiles := []canvas.Coord{{Row: 0, Col: 0}, {Row: 0, Col: 1}}
		require.NoError(t, store.WriteIndex(ctx, tiles))

		got, err := store.ReadIndex(ctx)
		require.NoError(t, err)
		assert.Equal(t, tiles, got)
	})

	t.Run("empty index encodes as empty list", func(t *testing.T) {
		require.NoError(t, store.WriteIndex(ctx, nil))

		got, err := store.ReadIndex(ctx)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}
