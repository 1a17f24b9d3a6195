package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpacePrefix(t *testing.T) {
	assert.Equal(t, "public/tiles/global", SpacePrefix(DefaultPrefixRoot, ""))
	assert.Equal(t, "public/tiles/mars", SpacePrefix(DefaultPrefixRoot, "mars"))
	assert.Equal(t, "tiles/mars", SpacePrefix("tiles/", "mars"))
}

func TestTileKey(t *testing.T) {
	prefix := SpacePrefix(DefaultPrefixRoot, DefaultSpace)

	assert.Equal(t, "public/tiles/global/3_-4.png", TileKey(prefix, Coord{Row: 3, Col: -4}))
	assert.Equal(t, "public/tiles/global/index.json", IndexKey(prefix))
}

func TestParseTileKey(t *testing.T) {
	tests := []struct {
		key  string
		want Coord
		ok   bool
	}{
		{"public/tiles/global/0_0.png", Coord{0, 0}, true},
		{"public/tiles/global/-1_12.png", Coord{-1, 12}, true},
		{"public/tiles/global/index.json", Coord{}, false},
		{"public/tiles/global/abc.png", Coord{}, false},
		{"public/tiles/global/1_x.png", Coord{}, false},
		{"1_2.png", Coord{1, 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := ParseTileKey(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("round trips with TileKey", func(t *testing.T) {
		c := Coord{Row: -7, Col: 9}
		got, ok := ParseTileKey(TileKey("p", c))
		assert.True(t, ok)
		assert.Equal(t, c, got)
	})
}

func TestEventsChannel(t *testing.T) {
	assert.Equal(t, "terrain:global:events", EventsChannel("global"))
}
