// Package metadata validates EM27 location, sensor and campaign documents and
// answers which sensor setup applied during a time interval.
//
// A Metadata value is immutable once built. All of its methods are safe for
// concurrent use.
package metadata

import (
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tum-esm/em27-metadata/internal/models"
)

type Metadata struct {
	locations    *LocationRegistry
	sensors      map[string]models.Sensor
	timelines    map[string]*Timeline
	sensorIDs    []string
	campaigns    []models.Campaign
	campaignByID map[string]int
}

// Build validates the three documents and their cross references. It either
// returns a complete store or every violation it found, never both.
func Build(locations []models.Location, sensors []models.Sensor, campaigns []models.Campaign) (*Metadata, error) {
	var errs *multierror.Error

	registry, err := newLocationRegistry(locations)
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	m := &Metadata{
		locations:    registry,
		sensors:      make(map[string]models.Sensor, len(sensors)),
		timelines:    make(map[string]*Timeline, len(sensors)),
		campaignByID: make(map[string]int, len(campaigns)),
	}
	known := make(map[string]bool, len(sensors))
	for _, s := range sensors {
		for _, v := range checkTimeline(s, registry) {
			errs = multierror.Append(errs, v)
		}
		if known[s.SensorID] {
			errs = multierror.Append(errs, &ValidationError{
				Document: docSensors, ID: s.SensorID, Index: -1,
				Rule: RuleDuplicateID, Detail: "sensor ids must be unique",
			})
			continue
		}
		known[s.SensorID] = true
		m.sensors[s.SensorID] = s
		m.timelines[s.SensorID] = newTimeline(s)
		m.sensorIDs = append(m.sensorIDs, s.SensorID)
	}
	sort.Strings(m.sensorIDs)

	for _, v := range checkCampaigns(campaigns, known, registry) {
		errs = multierror.Append(errs, v)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	m.campaigns = append([]models.Campaign(nil), campaigns...)
	for i, c := range m.campaigns {
		m.campaignByID[c.CampaignID] = i
	}
	return m, nil
}

// Get returns the contexts covering [from, to] for a sensor, in chronological
// order. Every context is a maximal period in which all properties are constant.
func (m *Metadata) Get(sensorID string, from, to time.Time) ([]models.SensorDataContext, error) {
	tl, err := m.Timeline(sensorID)
	if err != nil {
		return nil, err
	}
	chunks, err := tl.Resolve(from, to)
	if err != nil {
		return nil, err
	}

	out := make([]models.SensorDataContext, len(chunks))
	for i, c := range chunks {
		out[i] = m.context(sensorID, c.From, c.To, c.Setup)
	}
	markSharedDates(out)
	return out, nil
}

// Explode looks up the context of a sensor at each instant of ts. Instants
// before the sensor's recorded history map to nil.
func (m *Metadata) Explode(sensorID string, ts []time.Time) ([]*models.SensorDataContext, error) {
	tl, err := m.Timeline(sensorID)
	if err != nil {
		return nil, err
	}

	out := make([]*models.SensorDataContext, len(ts))
	for i, setup := range tl.Explode(ts) {
		if setup == nil {
			continue
		}
		ctx := m.context(sensorID, ts[i], ts[i], *setup)
		out[i] = &ctx
	}
	return out, nil
}

func (m *Metadata) context(sensorID string, from, to time.Time, s models.Setup) models.SensorDataContext {
	return models.SensorDataContext{
		SensorID:                   sensorID,
		SerialNumber:               s.SerialNumber,
		From:                       from,
		To:                         to,
		Location:                   m.locations.byID[s.LocationID],
		AtmosphericProfileLocation: m.locations.byID[s.ProfileLocationID()],
		UTCOffset:                  s.UTCOffset,
		PressureDataSource:         s.PressureDataSource,
		Calibration:                s.Calibration,
	}
}

// markSharedDates flags contexts that begin or end on the same UTC date as a
// neighbouring context.
func markSharedDates(ctxs []models.SensorDataContext) {
	for i := range ctxs {
		if i > 0 && sameDate(ctxs[i-1].To, ctxs[i].From) {
			ctxs[i].MultipleContextsOnDate = true
			continue
		}
		if i < len(ctxs)-1 && sameDate(ctxs[i].To, ctxs[i+1].From) {
			ctxs[i].MultipleContextsOnDate = true
		}
	}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func (m *Metadata) Timeline(sensorID string) (*Timeline, error) {
	tl, ok := m.timelines[sensorID]
	if !ok {
		return nil, &NotFoundError{Kind: "sensor", ID: sensorID}
	}
	return tl, nil
}

func (m *Metadata) Location(id string) (models.Location, error) {
	return m.locations.Lookup(id)
}

// Locations returns all locations ordered by id.
func (m *Metadata) Locations() []models.Location {
	out := make([]models.Location, 0, m.locations.Len())
	for _, id := range m.locations.ids {
		out = append(out, m.locations.byID[id])
	}
	return out
}

func (m *Metadata) Sensor(id string) (models.Sensor, error) {
	s, ok := m.sensors[id]
	if !ok {
		return models.Sensor{}, &NotFoundError{Kind: "sensor", ID: id}
	}
	s.Segments = append([]models.Segment(nil), s.Segments...)
	return s, nil
}

// SensorIDs returns all sensor ids in sorted order.
func (m *Metadata) SensorIDs() []string {
	return append([]string(nil), m.sensorIDs...)
}

func (m *Metadata) Campaign(id string) (models.Campaign, error) {
	i, ok := m.campaignByID[id]
	if !ok {
		return models.Campaign{}, &NotFoundError{Kind: "campaign", ID: id}
	}
	return m.campaigns[i], nil
}

// Campaigns returns the campaigns in document order.
func (m *Metadata) Campaigns() []models.Campaign {
	return append([]models.Campaign(nil), m.campaigns...)
}
