package metadata

import (
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tum-esm/em27-metadata/internal/models"
)

// Adjacency is the step between the inclusive end of a segment and the start
// of the next one.
const Adjacency = models.Resolution

const maxAbsUTCOffset = 12.0

// Timeline is the validated, chronologically ordered setup history of one
// sensor.
type Timeline struct {
	sensorID string
	segments []models.Segment
}

// NewTimeline validates the sensor and wraps its segments. Location references
// are checked against locations unless it is nil.
func NewTimeline(sensor models.Sensor, locations *LocationRegistry) (*Timeline, error) {
	if err := ValidateTimeline(sensor, locations); err != nil {
		return nil, err
	}
	return newTimeline(sensor), nil
}

func newTimeline(sensor models.Sensor) *Timeline {
	return &Timeline{
		sensorID: sensor.SensorID,
		segments: append([]models.Segment(nil), sensor.Segments...),
	}
}

// ValidateTimeline checks the sensor's segments in a single pass and returns
// every violation found, or nil.
func ValidateTimeline(sensor models.Sensor, locations *LocationRegistry) error {
	var errs *multierror.Error
	for _, v := range checkTimeline(sensor, locations) {
		errs = multierror.Append(errs, v)
	}
	return errs.ErrorOrNil()
}

func checkTimeline(sensor models.Sensor, locations *LocationRegistry) []*ValidationError {
	var out []*ValidationError
	add := func(index int, rule Rule, format string, args ...any) {
		out = append(out, &ValidationError{
			Document: docSensors, ID: sensor.SensorID, Index: index,
			Rule: rule, Detail: fmt.Sprintf(format, args...),
		})
	}

	if !validID(sensor.SensorID) {
		add(-1, RuleInvalidID, "must be 1-%d characters of letters, numbers, dashes, underscores", maxIDLength)
	}
	if sensor.SerialNumber < 1 {
		add(-1, RuleSerialNumber, "serial number %d must be at least 1", sensor.SerialNumber)
	}

	last := len(sensor.Segments) - 1
	for i, seg := range sensor.Segments {
		setup := seg.Setup
		end, bounded := seg.To.Time()

		if bounded && end.Before(seg.From) {
			add(i, RuleInvertedRange, "to_datetime %s is before from_datetime %s", fmtTime(end), fmtTime(seg.From))
		}
		if !bounded && i != last {
			add(i, RuleUnboundedMisplaced, "only the last segment may be open ended")
		}
		if bounded && i == last {
			add(i, RuleUnboundedMissing, "last segment must be open ended, ends at %s", fmtTime(end))
		}

		if setup.SerialNumber < 1 {
			add(i, RuleSerialNumber, "serial number %d must be at least 1", setup.SerialNumber)
		}
		if !(setup.UTCOffset > -maxAbsUTCOffset && setup.UTCOffset < maxAbsUTCOffset) {
			add(i, RuleUTCOffset, "utc offset %v outside (-%v, %v)", setup.UTCOffset, maxAbsUTCOffset, maxAbsUTCOffset)
		}
		if setup.PressureDataSource == "" {
			add(i, RuleEmptyField, "pressure data source must not be empty")
		}
		if setup.LocationID == "" {
			add(i, RuleEmptyField, "location id must not be empty")
		} else if locations != nil && !locations.Has(setup.LocationID) {
			add(i, RuleUnknownLocation, "location id %q is not in the locations document", setup.LocationID)
		}
		if id := setup.AtmosphericProfileLocationID; id != "" && locations != nil && !locations.Has(id) {
			add(i, RuleUnknownLocation, "atmospheric profile location id %q is not in the locations document", id)
		}

		if i == 0 {
			continue
		}
		prev := sensor.Segments[i-1]
		if !seg.From.After(prev.From) {
			add(i, RuleUnordered, "from_datetime %s is not after the previous segment's %s", fmtTime(seg.From), fmtTime(prev.From))
			continue
		}
		prevEnd, ok := prev.To.Time()
		if !ok {
			// already reported as a misplaced open end
			continue
		}
		switch next := prevEnd.Add(Adjacency); {
		case seg.From.Before(next):
			add(i, RuleOverlap, "from_datetime %s overlaps the previous segment ending %s", fmtTime(seg.From), fmtTime(prevEnd))
		case seg.From.After(next):
			add(i, RuleGap, "no setup between %s and %s", fmtTime(next), fmtTime(seg.From.Add(-Adjacency)))
		}
	}
	return out
}

func fmtTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func (t *Timeline) SensorID() string {
	return t.sensorID
}

// Segments returns a copy of the segments.
func (t *Timeline) Segments() []models.Segment {
	return append([]models.Segment(nil), t.segments...)
}

func (t *Timeline) Len() int {
	return len(t.segments)
}

// Start returns the first instant covered by the timeline.
func (t *Timeline) Start() (time.Time, bool) {
	if len(t.segments) == 0 {
		return time.Time{}, false
	}
	return t.segments[0].From, true
}

// search returns the index of the first segment whose end covers at.
// Segments are ordered and gap free, so this is the only candidate containing at.
func (t *Timeline) search(at time.Time) int {
	return sort.Search(len(t.segments), func(i int) bool {
		return t.segments[i].To.Covers(at)
	})
}

// SegmentAt returns the segment covering at.
func (t *Timeline) SegmentAt(at time.Time) (models.Segment, bool) {
	i := t.search(at)
	if i == len(t.segments) || !t.segments[i].Contains(at) {
		return models.Segment{}, false
	}
	return t.segments[i], true
}
