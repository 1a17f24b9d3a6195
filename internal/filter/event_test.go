package filter

import (
	"testing"

	"github.com/dyluth/terrain/pkg/canvas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(t *testing.T, name canvas.EventName, payload any) *canvas.Envelope {
	env, err := canvas.NewEnvelope(name, payload)
	require.NoError(t, err)
	return env
}

func TestCriteria_Matches(t *testing.T) {
	render := envelope(t, canvas.EventRenderTile, canvas.RenderTile{X: 1, Y: 2, Caption: "c", ID: "r1", Space: "mars"})
	updated := envelope(t, canvas.EventTilesUpdated, canvas.NewTilesUpdated(nil, "r1", ""))
	index := envelope(t, canvas.EventTilesIndex, canvas.NewTilesIndex(nil, ""))

	tests := []struct {
		name     string
		criteria Criteria
		env      *canvas.Envelope
		want     bool
	}{
		{"empty criteria match everything", Criteria{}, render, true},
		{"glob matches", Criteria{NameGlob: "tiles*"}, updated, true},
		{"glob rejects", Criteria{NameGlob: "tiles*"}, render, false},
		{"space exact", Criteria{Space: "mars"}, render, true},
		{"space mismatch", Criteria{Space: "venus"}, render, false},
		{"missing space means default", Criteria{Space: "global"}, updated, true},
		{"missing space is not another space", Criteria{Space: "mars"}, updated, false},
		{"request id", Criteria{RequestID: "r1"}, updated, true},
		{"request id missing", Criteria{RequestID: "r1"}, index, false},
		{"all criteria ANDed", Criteria{NameGlob: "renderTile", Space: "mars", RequestID: "r1"}, render, true},
		{"one failing criterion rejects", Criteria{NameGlob: "renderTile", Space: "mars", RequestID: "r2"}, render, false},
		{"invalid glob rejects", Criteria{NameGlob: "["}, render, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.criteria.Matches(tt.env, "global"))
		})
	}
}

func TestCriteria_MalformedPayload(t *testing.T) {
	env := &canvas.Envelope{Name: canvas.EventRenderTile, Data: []byte(`[1,2]`)}
	assert.False(t, (&Criteria{Space: "global"}).Matches(env, "global"))
	assert.True(t, (&Criteria{NameGlob: "render*"}).Matches(env, "global"))
}

func TestCriteria_HasFiltersAndValidate(t *testing.T) {
	assert.False(t, (&Criteria{}).HasFilters())
	assert.True(t, (&Criteria{RequestID: "x"}).HasFilters())

	assert.NoError(t, (&Criteria{NameGlob: "tiles*"}).Validate())
	assert.Error(t, (&Criteria{NameGlob: "["}).Validate())
}
