// Package watch waits for and streams canvas events for the CLI.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/terrain/pkg/canvas"
)

// OutputFormat selects how StreamEvents renders events.
type OutputFormat string

const (
	OutputFormatDefault OutputFormat = "default"
	OutputFormatJSON    OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q (valid: default, json)", s)
}

// WaitForEvent returns the first event for which match is true.
// Subscription errors (malformed messages) are skipped.
func WaitForEvent(ctx context.Context, sub *canvas.Subscription, match func(*canvas.Envelope) bool, timeout time.Duration) (*canvas.Envelope, error) {
	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for event after %v", timeout)

		case env, ok := <-sub.Events():
			if !ok {
				return nil, fmt.Errorf("subscription closed while waiting for event")
			}
			if match(env) {
				return env, nil
			}

		case _, ok := <-sub.Errors():
			if !ok {
				return nil, fmt.Errorf("subscription closed while waiting for event")
			}
		}
	}
}

// WaitForTilesUpdated waits for the tilesUpdated reply to request id.
func WaitForTilesUpdated(ctx context.Context, sub *canvas.Subscription, id string, timeout time.Duration) (*canvas.TilesUpdated, error) {
	var updated canvas.TilesUpdated
	_, err := WaitForEvent(ctx, sub, func(env *canvas.Envelope) bool {
		if env.Name != canvas.EventTilesUpdated {
			return false
		}
		var candidate canvas.TilesUpdated
		if env.Decode(&candidate) != nil || candidate.ID != id {
			return false
		}
		updated = candidate
		return true
	}, timeout)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// WaitForTilesIndex waits for the next tilesIndex event.
func WaitForTilesIndex(ctx context.Context, sub *canvas.Subscription, timeout time.Duration) (*canvas.TilesIndex, error) {
	env, err := WaitForEvent(ctx, sub, func(env *canvas.Envelope) bool {
		return env.Name == canvas.EventTilesIndex
	}, timeout)
	if err != nil {
		return nil, err
	}

	var index canvas.TilesIndex
	if err := env.Decode(&index); err != nil {
		return nil, err
	}
	return &index, nil
}

// StreamEvents writes every event accepted by match (nil accepts all) to w
// until ctx is done or the subscription closes.
func StreamEvents(ctx context.Context, sub *canvas.Subscription, match func(*canvas.Envelope) bool, format OutputFormat, w io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case env, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if match != nil && !match(env) {
				continue
			}
			line, err := formatEvent(env, format, time.Now())
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}

		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			if format == OutputFormatDefault {
				fmt.Fprintf(w, "⚠️  %v\n", err)
			}
		}
	}
}

// jsonEvent is one line of --output=json.
type jsonEvent struct {
	Timestamp string          `json:"timestamp"`
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
}

func formatEvent(env *canvas.Envelope, format OutputFormat, now time.Time) (string, error) {
	if format == OutputFormatJSON {
		data := env.Data
		if len(data) == 0 {
			data = json.RawMessage("{}")
		}
		b, err := json.Marshal(jsonEvent{Timestamp: now.UTC().Format(time.RFC3339), Name: string(env.Name), Data: data})
		if err != nil {
			return "", fmt.Errorf("failed to encode event: %w", err)
		}
		return string(b), nil
	}

	return fmt.Sprintf("[%s] %s", now.Format("15:04:05"), describe(env)), nil
}

// describe summarises an event for humans.
func describe(env *canvas.Envelope) string {
	switch env.Name {
	case canvas.EventRenderTile:
		var r canvas.RenderTile
		if env.Decode(&r) == nil {
			return fmt.Sprintf("🖌️  render requested at (%d, %d) %q [id=%s]", r.X, r.Y, r.Caption, r.ID)
		}
	case canvas.EventClearTiles:
		var c canvas.ClearTiles
		if env.Decode(&c) == nil {
			return fmt.Sprintf("🧹 clear requested around (%d, %d)", c.X, c.Y)
		}
	case canvas.EventIndexTiles:
		return "📇 index requested"
	case canvas.EventTilesUpdated:
		var u canvas.TilesUpdated
		if env.Decode(&u) == nil {
			if len(u.Tiles) == 0 {
				return fmt.Sprintf("✗ no tiles updated [id=%s]", u.ID)
			}
			return fmt.Sprintf("✓ %d tile(s) updated [id=%s]", len(u.Tiles), u.ID)
		}
	case canvas.EventTilesIndex:
		var i canvas.TilesIndex
		if env.Decode(&i) == nil {
			return fmt.Sprintf("📇 index: %d tile(s)", len(i.Tiles))
		}
	}
	return fmt.Sprintf("%s %s", env.Name, string(env.Data))
}
