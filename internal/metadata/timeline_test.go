package metadata

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tum-esm/em27-metadata/internal/models"
)

var day = time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)

func at(h, m, s int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second)
}

func bounded(from, to time.Time, setup models.Setup) models.Segment {
	return models.Segment{From: from, To: models.Until(to), Setup: setup}
}

func open(from time.Time, setup models.Setup) models.Segment {
	return models.Segment{From: from, To: models.Unbounded(), Setup: setup}
}

func testSetup(locationID string, utcOffset float64) models.Setup {
	return models.Setup{
		LocationID:         locationID,
		SerialNumber:       61,
		UTCOffset:          utcOffset,
		PressureDataSource: "ma",
		Calibration:        models.DefaultCalibration(),
	}
}

func testLocations() []models.Location {
	return []models.Location{
		{LocationID: "lid1", Details: "description of location 1", Longitude: 10.5, Latitude: 48.1, Altitude: 500},
		{LocationID: "lid2", Details: "description of location 2", Longitude: 11.3, Latitude: 48.0, Altitude: 600},
		{LocationID: "lid3", Details: "description of location 3", Longitude: 11.0, Latitude: 48.3, Altitude: 520},
	}
}

func testRegistry(t *testing.T) *LocationRegistry {
	t.Helper()
	r, err := NewLocationRegistry(testLocations())
	require.NoError(t, err)
	return r
}

// maSensor changes its utc offset three times during day.
func maSensor() models.Sensor {
	return models.Sensor{
		SensorID:     "ma",
		SerialNumber: 61,
		Segments: []models.Segment{
			bounded(at(0, 0, 0), at(1, 59, 59), testSetup("lid1", 0)),
			bounded(at(2, 0, 0), at(15, 59, 59), testSetup("lid1", 5)),
			bounded(at(16, 0, 0), at(21, 59, 59), testSetup("lid1", 9)),
			open(at(22, 0, 0), testSetup("lid1", 0)),
		},
	}
}

func rules(err error) []Rule {
	var out []Rule
	for _, v := range Violations(err) {
		out = append(out, v.Rule)
	}
	return out
}

func TestNewTimeline(t *testing.T) {
	tl, err := NewTimeline(maSensor(), testRegistry(t))
	require.NoError(t, err)
	assert.Equal(t, "ma", tl.SensorID())
	assert.Equal(t, 4, tl.Len())

	start, ok := tl.Start()
	require.True(t, ok)
	assert.Equal(t, at(0, 0, 0), start)

	seg, ok := tl.SegmentAt(at(15, 59, 59))
	require.True(t, ok)
	assert.Equal(t, 5.0, seg.Setup.UTCOffset)

	seg, ok = tl.SegmentAt(at(16, 0, 0))
	require.True(t, ok)
	assert.Equal(t, 9.0, seg.Setup.UTCOffset)

	seg, ok = tl.SegmentAt(day.AddDate(5, 0, 0))
	require.True(t, ok, "open ended segment must cover the future")
	assert.Equal(t, 0.0, seg.Setup.UTCOffset)

	_, ok = tl.SegmentAt(day.Add(-time.Second))
	assert.False(t, ok)

	seg, ok = tl.SegmentAt(at(1, 59, 59).Add(500 * time.Millisecond))
	require.True(t, ok, "instants inside an end second belong to that segment")
	assert.Equal(t, at(0, 0, 0), seg.From)

	seg, ok = tl.SegmentAt(at(2, 0, 0).Add(-time.Nanosecond))
	require.True(t, ok)
	assert.Equal(t, 0.0, seg.Setup.UTCOffset)
}

func TestValidateTimeline(t *testing.T) {
	base := testSetup("lid1", 1)

	tests := []struct {
		name      string
		segments  []models.Segment
		wantRules []Rule
		wantIndex int
	}{
		{
			name: "one second gap",
			segments: []models.Segment{
				bounded(at(0, 0, 0), at(1, 59, 59), base),
				open(at(2, 0, 1), base),
			},
			wantRules: []Rule{RuleGap},
			wantIndex: 1,
		},
		{
			name: "overlap",
			segments: []models.Segment{
				bounded(at(0, 0, 0), at(2, 0, 0), base),
				open(at(2, 0, 0), base),
			},
			wantRules: []Rule{RuleOverlap},
			wantIndex: 1,
		},
		{
			name: "unordered",
			segments: []models.Segment{
				bounded(at(2, 0, 0), at(3, 59, 59), base),
				open(at(1, 0, 0), base),
			},
			wantRules: []Rule{RuleUnordered},
			wantIndex: 1,
		},
		{
			name: "open end before last",
			segments: []models.Segment{
				open(at(0, 0, 0), base),
				open(at(2, 0, 0), base),
			},
			wantRules: []Rule{RuleUnboundedMisplaced},
			wantIndex: 0,
		},
		{
			name: "last segment bounded",
			segments: []models.Segment{
				bounded(at(0, 0, 0), at(1, 59, 59), base),
				bounded(at(2, 0, 0), at(3, 59, 59), base),
			},
			wantRules: []Rule{RuleUnboundedMissing},
			wantIndex: 1,
		},
		{
			name: "inverted segment",
			segments: []models.Segment{
				bounded(at(2, 0, 0), at(1, 0, 0), base),
				open(at(3, 0, 0), base),
			},
			wantRules: []Rule{RuleInvertedRange, RuleGap},
			wantIndex: 0,
		},
		{
			name: "unknown location",
			segments: []models.Segment{
				open(at(0, 0, 0), testSetup("nowhere", 1)),
			},
			wantRules: []Rule{RuleUnknownLocation},
			wantIndex: 0,
		},
		{
			name: "unknown profile location",
			segments: []models.Segment{
				open(at(0, 0, 0), func() models.Setup {
					s := base
					s.AtmosphericProfileLocationID = "nowhere"
					return s
				}()),
			},
			wantRules: []Rule{RuleUnknownLocation},
			wantIndex: 0,
		},
		{
			name: "utc offset at bound",
			segments: []models.Segment{
				open(at(0, 0, 0), testSetup("lid1", -12)),
			},
			wantRules: []Rule{RuleUTCOffset},
			wantIndex: 0,
		},
		{
			name: "empty pressure source",
			segments: []models.Segment{
				open(at(0, 0, 0), func() models.Setup {
					s := base
					s.PressureDataSource = ""
					return s
				}()),
			},
			wantRules: []Rule{RuleEmptyField},
			wantIndex: 0,
		},
		{
			name: "serial number zero",
			segments: []models.Segment{
				open(at(0, 0, 0), func() models.Setup {
					s := base
					s.SerialNumber = 0
					return s
				}()),
			},
			wantRules: []Rule{RuleSerialNumber},
			wantIndex: 0,
		},
	}

	registry := testRegistry(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sensor := models.Sensor{SensorID: "ma", SerialNumber: 61, Segments: tt.segments}
			err := ValidateTimeline(sensor, registry)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation), "error must match ErrValidation")
			assert.Equal(t, tt.wantRules, rules(err))

			vs := Violations(err)
			require.NotEmpty(t, vs)
			assert.Equal(t, "sensors", vs[0].Document)
			assert.Equal(t, "ma", vs[0].ID)
			assert.Equal(t, tt.wantIndex, vs[0].Index)

			tl, err := NewTimeline(sensor, registry)
			assert.Error(t, err)
			assert.Nil(t, tl)
		})
	}
}

func TestValidateTimelineGapDetail(t *testing.T) {
	sensor := models.Sensor{SensorID: "ma", SerialNumber: 61, Segments: []models.Segment{
		bounded(at(0, 0, 0), at(1, 59, 59), testSetup("lid1", 0)),
		open(at(2, 0, 1), testSetup("lid1", 0)),
	}}
	err := ValidateTimeline(sensor, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no setup between 2020-02-01T02:00:00Z and 2020-02-01T02:00:00Z")
}

func TestValidateTimelineCollectsAll(t *testing.T) {
	sensor := models.Sensor{SensorID: "bad id", SerialNumber: 0, Segments: []models.Segment{
		bounded(at(0, 0, 0), at(1, 59, 59), testSetup("nowhere", 13)),
		open(at(3, 0, 0), testSetup("lid1", 0)),
	}}
	err := ValidateTimeline(sensor, testRegistry(t))
	require.Error(t, err)
	assert.Equal(t, []Rule{
		RuleInvalidID,
		RuleSerialNumber,
		RuleUTCOffset,
		RuleUnknownLocation,
		RuleGap,
	}, rules(err))
}

func TestValidateTimelineWithoutRegistry(t *testing.T) {
	sensor := maSensor()
	sensor.Segments[0].Setup.LocationID = "anywhere"
	assert.NoError(t, ValidateTimeline(sensor, nil), "location references are only checked against a registry")
}

func TestEmptyTimeline(t *testing.T) {
	tl, err := NewTimeline(models.Sensor{SensorID: "mb", SerialNumber: 86}, nil)
	require.NoError(t, err)
	assert.Zero(t, tl.Len())

	_, ok := tl.Start()
	assert.False(t, ok)
	_, ok = tl.SegmentAt(day)
	assert.False(t, ok)

	_, err = tl.Resolve(day, day.Add(time.Hour))
	require.ErrorIs(t, err, ErrRange)
}
