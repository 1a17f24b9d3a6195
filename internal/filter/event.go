package filter

import (
	"encoding/json"
	"path/filepath"

	"github.com/dyluth/terrain/pkg/canvas"
)

// Criteria defines filtering criteria for canvas events.
// All filters are ANDed together - an event must match ALL criteria to pass.
type Criteria struct {
	NameGlob  string // Glob pattern for the event name, empty = no filter
	Space     string // Exact match on the payload's space, empty = no filter
	RequestID string // Exact match on the payload's id, empty = no filter
}

// routing holds the payload fields shared by requests and replies
type routing struct {
	Space string `json:"space"`
	ID    string `json:"id"`
}

// Matches returns true if the event matches all filter criteria.
// A payload without a space field matches only when Space equals
// defaultSpace, since the worker treats it as addressed to that space.
func (c *Criteria) Matches(env *canvas.Envelope, defaultSpace string) bool {
	if c.NameGlob != "" {
		matched, err := filepath.Match(c.NameGlob, string(env.Name))
		if err != nil || !matched {
			return false
		}
	}

	if c.Space == "" && c.RequestID == "" {
		return true
	}

	var r routing
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return false
		}
	}

	if c.Space != "" {
		space := r.Space
		if space == "" {
			space = defaultSpace
		}
		if space != c.Space {
			return false
		}
	}

	if c.RequestID != "" && r.ID != c.RequestID {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.NameGlob != "" || c.Space != "" || c.RequestID != ""
}

// Validate reports a malformed name glob.
func (c *Criteria) Validate() error {
	if c.NameGlob == "" {
		return nil
	}
	_, err := filepath.Match(c.NameGlob, "")
	return err
}
