package metadata

import (
	"sort"
	"time"

	"github.com/tum-esm/em27-metadata/internal/models"
)

// Chunk is a maximal part of a query interval over which the setup is constant.
// From and To are inclusive.
type Chunk struct {
	From  time.Time
	To    time.Time
	Setup models.Setup
}

// Resolve intersects [from, to] with the timeline. Neighbouring segments with
// equal setups collapse into one chunk, so chunk boundaries only appear where
// a property actually changes. Both bounds must be whole seconds.
func (t *Timeline) Resolve(from, to time.Time) ([]Chunk, error) {
	if to.Before(from) {
		return nil, &RangeError{SensorID: t.sensorID, From: from, To: to, Reason: "from_datetime is after to_datetime"}
	}
	if !wholeSecond(from) || !wholeSecond(to) {
		return nil, &RangeError{SensorID: t.sensorID, From: from, To: to, Reason: "datetimes must be whole seconds"}
	}
	start, ok := t.Start()
	if !ok {
		return nil, &RangeError{SensorID: t.sensorID, From: from, To: to, Reason: "sensor has no recorded history"}
	}
	if from.Before(start) {
		return nil, &RangeError{SensorID: t.sensorID, From: from, To: to,
			Reason: "query outside recorded history, which starts at " + fmtTime(start)}
	}

	var chunks []Chunk
	for i := t.search(from); i < len(t.segments); i++ {
		seg := t.segments[i]
		if seg.From.After(to) {
			break
		}

		lo, hi := seg.From, to
		if lo.Before(from) {
			lo = from
		}
		if end, ok := seg.To.Time(); ok && end.Before(to) {
			hi = end
		}

		if n := len(chunks); n > 0 && chunks[n-1].Setup.Equal(seg.Setup) {
			chunks[n-1].To = hi
			continue
		}
		chunks = append(chunks, Chunk{From: lo, To: hi, Setup: seg.Setup})
	}
	return chunks, nil
}

func wholeSecond(t time.Time) bool {
	return t.Equal(t.Truncate(Adjacency))
}

// Explode returns the setup in effect at each instant of ts, in the order of
// ts. Instants the timeline does not cover map to nil.
func (t *Timeline) Explode(ts []time.Time) []*models.Setup {
	out := make([]*models.Setup, len(ts))

	order := make([]int, len(ts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return ts[order[a]].Before(ts[order[b]])
	})

	seg := 0
	for _, idx := range order {
		at := ts[idx]
		for seg < len(t.segments) && !t.segments[seg].To.Covers(at) {
			seg++
		}
		if seg == len(t.segments) {
			break
		}
		if t.segments[seg].Contains(at) {
			setup := t.segments[seg].Setup
			out[idx] = &setup
		}
	}
	return out
}
