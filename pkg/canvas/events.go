package canvas

import (
	"encoding/json"
	"fmt"
)

// EventName identifies the kind of payload carried by an Envelope.
type EventName string

const (
	// EventRenderTile asks the worker to paint the window at (x, y).
	EventRenderTile EventName = "renderTile"

	// EventClearTiles asks the worker to reset tiles around (x, y) to blank.
	EventClearTiles EventName = "clearTiles"

	// EventIndexTiles asks the worker to publish the current tile index.
	EventIndexTiles EventName = "indexTiles"

	// EventTilesUpdated announces the tiles written by a render or clear.
	EventTilesUpdated EventName = "tilesUpdated"

	// EventTilesIndex carries the full tile index.
	EventTilesIndex EventName = "tilesIndex"
)

// Inbound reports whether the event is a request handled by the worker.
func (n EventName) Inbound() bool {
	switch n {
	case EventRenderTile, EventClearTiles, EventIndexTiles:
		return true
	}
	return false
}

// Envelope is the JSON message published on the canvas events channel.
type Envelope struct {
	Name EventName       `json:"name"`
	Data json.RawMessage `json:"data"`
}

// NewEnvelope wraps a payload for publishing.
func NewEnvelope(name EventName, payload any) (*Envelope, error) {
	if payload == nil {
		payload = struct{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}
	return &Envelope{Name: name, Data: data}, nil
}

// Decode unmarshals the envelope payload into v.
func (e *Envelope) Decode(v any) error {
	data := e.Data
	if len(data) == 0 || string(data) == "null" {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Name, err)
	}
	return nil
}

// RenderTile requests that the window at (X, Y) be filled for Caption.
type RenderTile struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Caption string `json:"caption"`
	ID      string `json:"id"`
	Space   string `json:"space,omitempty"`
}

// Validate checks the fields a render needs.
// The caption may be empty; the sanitizer substitutes the default for it.
func (r *RenderTile) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("renderTile: id is required")
	}
	return nil
}

// ClearTiles requests that the tiles around (X, Y) be reset to blank.
type ClearTiles struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Space string `json:"space,omitempty"`
}

// IndexTiles requests the current tile index of a space (default if empty).
type IndexTiles struct {
	Space string `json:"space,omitempty"`
}

// TilesUpdated announces the outcome of a render or clear.
// An empty Tiles list means nothing changed (including on failure).
type TilesUpdated struct {
	Tiles []Coord `json:"tiles"`
	ID    string  `json:"id,omitempty"`
	Space string  `json:"space,omitempty"`
}

// NewTilesUpdated builds a tilesUpdated payload, encoding nil tiles as [].
func NewTilesUpdated(tiles []Coord, id, space string) *TilesUpdated {
	if tiles == nil {
		tiles = []Coord{}
	}
	return &TilesUpdated{Tiles: tiles, ID: id, Space: space}
}

// TilesIndex carries the set of tiles that currently exist.
type TilesIndex struct {
	Tiles []Coord `json:"tiles"`
	Space string  `json:"space,omitempty"`
}

// NewTilesIndex builds a tilesIndex payload, encoding nil tiles as [].
func NewTilesIndex(tiles []Coord, space string) *TilesIndex {
	if tiles == nil {
		tiles = []Coord{}
	}
	return &TilesIndex{Tiles: tiles, Space: space}
}
