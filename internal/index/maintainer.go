// Package index keeps the per-space tile index document in step with the
// tiles actually stored.
package index

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/dyluth/terrain/internal/tilestore"
	"github.com/dyluth/terrain/pkg/canvas"
)

// Maintainer rebuilds and serves tile indexes. Updates are serialised within
// a process so concurrent renders cannot drop each other's tiles.
type Maintainer struct {
	store *tilestore.Store

	mu     sync.Mutex
	spaces map[string]struct{}
}

// NewMaintainer creates a maintainer over store (any space).
func NewMaintainer(store *tilestore.Store) *Maintainer {
	return &Maintainer{
		store:  store,
		spaces: map[string]struct{}{canvas.DefaultSpace: {}},
	}
}

// Update merges written into a fresh enumeration of the space and persists
// the result. If enumeration fails the previously persisted index is used as
// the base instead; if that is also unavailable the index is left untouched.
func (m *Maintainer) Update(ctx context.Context, space string, written []canvas.Coord) ([]canvas.Coord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	store := m.store.ForSpace(space)
	m.spaces[store.Space()] = struct{}{}

	base, err := store.List(ctx)
	if err != nil {
		log.Printf("[Index] Listing space %q failed, merging into previous index: %v", store.Space(), err)
		prev, perr := store.ReadIndex(ctx)
		if perr != nil && !errors.Is(perr, tilestore.ErrNotFound) {
			return nil, fmt.Errorf("cannot enumerate tiles of space %q: %w", store.Space(), errors.Join(err, perr))
		}
		base = prev
	}

	tiles := canvas.MergeCoords(base, written)
	if err := store.WriteIndex(ctx, tiles); err != nil {
		return nil, err
	}
	return tiles, nil
}

// Rescan rebuilds the index of space purely from enumeration.
func (m *Maintainer) Rescan(ctx context.Context, space string) ([]canvas.Coord, error) {
	return m.Update(ctx, space, nil)
}

// Current returns the persisted index of space, rescanning if it is missing
// or unreadable.
func (m *Maintainer) Current(ctx context.Context, space string) ([]canvas.Coord, error) {
	store := m.store.ForSpace(space)

	tiles, err := store.ReadIndex(ctx)
	if err == nil {
		return tiles, nil
	}
	if !errors.Is(err, tilestore.ErrNotFound) {
		log.Printf("[Index] Reading index of space %q failed, rescanning: %v", store.Space(), err)
	}
	return m.Rescan(ctx, store.Space())
}

// Spaces returns the spaces this maintainer has seen, sorted.
func (m *Maintainer) Spaces() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.spaces))
	for s := range m.spaces {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// RunPeriodic rescans every known space each interval until ctx is done.
// Tiles written by other processes are picked up this way.
func (m *Maintainer) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, space := range m.Spaces() {
				tiles, err := m.Rescan(ctx, space)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Printf("[Index] Periodic rescan of space %q failed: %v", space, err)
					continue
				}
				log.Printf("[Index] Rescanned space %q: %d tile(s)", space, len(tiles))
			}
		}
	}
}
