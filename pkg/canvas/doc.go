// Package canvas provides the shared vocabulary of the terrain tile canvas:
// tile coordinates and render-window geometry, storage key and Pub/Sub channel
// naming, the event payloads exchanged with clients, and a Redis-backed client
// for publishing and subscribing to those events.
//
// # Overview
//
// The canvas is an unbounded integer pixel plane partitioned into square tiles
// of TileSize pixels. A tile is addressed by (row, col), where
// row = floor(y / TileSize) and col = floor(x / TileSize). Render requests
// target a TileSize-square window whose top-left corner may fall anywhere;
// Align shifts that corner diagonally until the window touches exactly one tile
// (aligned) or exactly four tiles (one quadrant each).
//
// # Storage Schema
//
// Tiles and the tile index live in a blob store under a per-space prefix:
//
//	Tiles: {prefix_root}/{space}/{row}_{col}.png
//	Index: {prefix_root}/{space}/index.json
//
// The default prefix is public/tiles/global.
//
// # Pub/Sub Schema
//
// All events for one canvas travel on a single channel as JSON envelopes:
//
//	Channel:  terrain:{canvas_name}:events
//	Envelope: {"name": "renderTile", "data": {...}}
//
// Inbound events are renderTile, clearTiles and indexTiles. Outbound events
// are tilesUpdated and tilesIndex.
//
// # Usage Example
//
//	client, err := canvas.NewClient(&redis.Options{Addr: "localhost:6379"}, "global")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Publish(ctx, canvas.EventRenderTile, &canvas.RenderTile{
//		X: 500, Y: 500, Caption: "a satellite image of a mountain", ID: uuid.New().String(),
//	})
package canvas
