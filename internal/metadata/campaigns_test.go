package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tum-esm/em27-metadata/internal/models"
)

func testCampaign(stations ...models.Station) models.Campaign {
	return models.Campaign{
		CampaignID: "muc",
		From:       day,
		To:         day.AddDate(0, 1, 0),
		Stations:   stations,
	}
}

func TestValidateCampaigns(t *testing.T) {
	sensors := []string{"ma", "mb", "mc"}

	// lid3 is the northernmost location, lid2 the easternmost
	tests := []struct {
		name      string
		campaign  models.Campaign
		wantRules []Rule
	}{
		{
			name: "valid",
			campaign: testCampaign(
				models.Station{SensorID: "ma", LocationID: "lid3", Direction: "north"},
				models.Station{SensorID: "mb", LocationID: "lid2", Direction: "south"},
				models.Station{SensorID: "mc", LocationID: "lid1", Direction: "upwind"},
			),
		},
		{
			name: "east and west",
			campaign: testCampaign(
				models.Station{SensorID: "ma", LocationID: "lid2", Direction: "East"},
				models.Station{SensorID: "mb", LocationID: "lid1", Direction: "WEST"},
			),
		},
		{
			name: "north below south",
			campaign: testCampaign(
				models.Station{SensorID: "ma", LocationID: "lid2", Direction: "North"},
				models.Station{SensorID: "mb", LocationID: "lid3", Direction: "south"},
			),
			wantRules: []Rule{RuleDirection},
		},
		{
			name: "same location north and south",
			campaign: testCampaign(
				models.Station{SensorID: "ma", LocationID: "lid1", Direction: "north"},
				models.Station{SensorID: "mb", LocationID: "lid1", Direction: "south"},
			),
			wantRules: []Rule{RuleDirection},
		},
		{
			name: "east of west",
			campaign: testCampaign(
				models.Station{SensorID: "ma", LocationID: "lid1", Direction: "east"},
				models.Station{SensorID: "mb", LocationID: "lid2", Direction: "west"},
			),
			wantRules: []Rule{RuleDirection},
		},
		{
			name: "duplicate station",
			campaign: testCampaign(
				models.Station{SensorID: "ma", LocationID: "lid1", Direction: "north"},
				models.Station{SensorID: "ma", LocationID: "lid1", Direction: "North"},
			),
			wantRules: []Rule{RuleDuplicateStation},
		},
		{
			name: "unknown references",
			campaign: testCampaign(
				models.Station{SensorID: "zz", LocationID: "lid1", Direction: "center"},
				models.Station{SensorID: "ma", LocationID: "nowhere", Direction: "north"},
			),
			wantRules: []Rule{RuleUnknownSensor, RuleUnknownLocation},
		},
		{
			name: "unknown additional location",
			campaign: func() models.Campaign {
				c := testCampaign()
				c.AdditionalLocationIDs = []string{"lid1", "nowhere"}
				return c
			}(),
			wantRules: []Rule{RuleUnknownLocation},
		},
		{
			name: "inverted dates",
			campaign: func() models.Campaign {
				c := testCampaign()
				c.From, c.To = c.To, c.From
				return c
			}(),
			wantRules: []Rule{RuleInvertedRange},
		},
		{
			name: "empty dates",
			campaign: func() models.Campaign {
				c := testCampaign()
				c.To = c.From
				return c
			}(),
			wantRules: []Rule{RuleInvertedRange},
		},
		{
			name: "invalid id",
			campaign: func() models.Campaign {
				c := testCampaign()
				c.CampaignID = "munich 2020"
				return c
			}(),
			wantRules: []Rule{RuleInvalidID},
		},
	}

	registry := testRegistry(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCampaigns([]models.Campaign{tt.campaign}, sensors, registry)
			if tt.wantRules == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, tt.wantRules, rules(err))
		})
	}
}

func TestValidateCampaignsDirectionDetail(t *testing.T) {
	c := testCampaign(
		models.Station{SensorID: "mb", LocationID: "lid3", Direction: "south"},
		models.Station{SensorID: "ma", LocationID: "lid2", Direction: "north"},
	)
	err := ValidateCampaigns([]models.Campaign{c}, []string{"ma", "mb"}, testRegistry(t))
	require.Error(t, err)

	vs := Violations(err)
	require.Len(t, vs, 1)
	assert.Equal(t, "campaigns", vs[0].Document)
	assert.Equal(t, "muc", vs[0].ID)
	assert.Equal(t, 1, vs[0].Index, "violation points at the north station")
	assert.Contains(t, vs[0].Detail, `north station ma at "lid2"`)
	assert.Contains(t, vs[0].Detail, `south station mb at "lid3"`)
}

func TestValidateCampaignsDuplicateID(t *testing.T) {
	campaigns := []models.Campaign{testCampaign(), testCampaign()}
	err := ValidateCampaigns(campaigns, nil, testRegistry(t))
	require.Error(t, err)
	assert.Equal(t, []Rule{RuleDuplicateID}, rules(err))
}

func TestValidateCampaignsWithoutRegistry(t *testing.T) {
	c := testCampaign(
		models.Station{SensorID: "ma", LocationID: "nowhere", Direction: "north"},
		models.Station{SensorID: "zz", LocationID: "lid3", Direction: "south"},
	)
	c.AdditionalLocationIDs = []string{"elsewhere"}

	var err error
	require.NotPanics(t, func() {
		err = ValidateCampaigns([]models.Campaign{c}, []string{"ma"}, nil)
	})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, []Rule{RuleUnknownSensor}, rules(err), "location references are skipped without a registry")

	require.NoError(t, ValidateCampaigns([]models.Campaign{testCampaign()}, nil, nil))
}
