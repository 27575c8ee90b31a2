package metadata

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tum-esm/em27-metadata/internal/models"
)

func TestLocationRegistry(t *testing.T) {
	r := testRegistry(t)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"lid1", "lid2", "lid3"}, r.IDs())
	assert.True(t, r.Has("lid2"))
	assert.False(t, r.Has("LID2"), "ids are case sensitive")

	loc, err := r.Lookup("lid1")
	require.NoError(t, err)
	assert.Equal(t, 48.1, loc.Latitude)

	_, err = r.Lookup("nowhere")
	require.ErrorIs(t, err, ErrNotFound)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "location", nf.Kind)
	assert.EqualError(t, err, `unknown location id "nowhere"`)
}

func TestLocationRegistryNil(t *testing.T) {
	var r *LocationRegistry
	assert.False(t, r.Has("lid1"))
	assert.Zero(t, r.Len())
	assert.Empty(t, r.IDs())

	_, err := r.Lookup("lid1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocationBounds(t *testing.T) {
	tests := []struct {
		name    string
		loc     models.Location
		wantErr bool
	}{
		{"edges", models.Location{LocationID: "edge", Longitude: -180, Latitude: 90, Altitude: 10000}, false},
		{"below sea level", models.Location{LocationID: "low", Altitude: -20}, false},
		{"longitude", models.Location{LocationID: "x", Longitude: 180.5}, true},
		{"latitude", models.Location{LocationID: "x", Latitude: -90.01}, true},
		{"altitude low", models.Location{LocationID: "x", Altitude: -21}, true},
		{"altitude high", models.Location{LocationID: "x", Altitude: 10001}, true},
		{"nan", models.Location{LocationID: "x", Latitude: math.NaN()}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewLocationRegistry([]models.Location{tt.loc})
			if !tt.wantErr {
				require.NoError(t, err)
				assert.True(t, r.Has(tt.loc.LocationID))
				return
			}
			require.ErrorIs(t, err, ErrValidation)
			assert.Nil(t, r)
			assert.Equal(t, []Rule{RuleCoordinates}, rules(err))
		})
	}
}

func TestLocationIDs(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"lid1", true},
		{"TUM_I-3", true},
		{strings.Repeat("a", 128), true},
		{strings.Repeat("a", 129), false},
		{"", false},
		{"with space", false},
		{"ümlaut", false},
		{"a/b", false},
	}

	for _, tt := range tests {
		_, err := NewLocationRegistry([]models.Location{{LocationID: tt.id}})
		if tt.valid {
			assert.NoError(t, err, "id %q", tt.id)
		} else {
			assert.Equal(t, []Rule{RuleInvalidID}, rules(err), "id %q", tt.id)
		}
	}
}

func TestLocationDuplicates(t *testing.T) {
	locs := append(testLocations(), models.Location{LocationID: "lid2", Longitude: 1, Latitude: 1})
	_, err := NewLocationRegistry(locs)
	require.Error(t, err)

	vs := Violations(err)
	require.Len(t, vs, 1)
	assert.Equal(t, RuleDuplicateID, vs[0].Rule)
	assert.Equal(t, "lid2", vs[0].ID)
	assert.Equal(t, `locations "lid2": duplicate_id: location ids must be unique`, vs[0].Error())
}
