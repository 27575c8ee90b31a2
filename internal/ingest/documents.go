package ingest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tum-esm/em27-metadata/internal/metadata"
	"github.com/tum-esm/em27-metadata/internal/models"
)

const (
	DocLocations = "locations"
	DocSensors   = "sensors"
	DocCampaigns = "campaigns"
)

// DocumentNames lists the metadata documents in load order.
var DocumentNames = []string{DocLocations, DocSensors, DocCampaigns}

// Documents holds the raw JSON of the three metadata documents.
type Documents struct {
	Locations []byte
	Sensors   []byte
	Campaigns []byte
}

func (d *Documents) Get(name string) []byte {
	switch name {
	case DocLocations:
		return d.Locations
	case DocSensors:
		return d.Sensors
	case DocCampaigns:
		return d.Campaigns
	}
	return nil
}

func (d *Documents) Set(name string, data []byte) {
	switch name {
	case DocLocations:
		d.Locations = data
	case DocSensors:
		d.Sensors = data
	case DocCampaigns:
		d.Campaigns = data
	}
}

// Build decodes the documents and validates them into a metadata store.
func Build(docs Documents) (*metadata.Metadata, error) {
	locations, err := DecodeLocations(docs.Locations)
	if err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	sensors, err := DecodeSensors(docs.Sensors)
	if err != nil {
		return nil, fmt.Errorf("decode sensors: %w", err)
	}
	campaigns, err := DecodeCampaigns(docs.Campaigns)
	if err != nil {
		return nil, fmt.Errorf("decode campaigns: %w", err)
	}
	return metadata.Build(locations, sensors, campaigns)
}

var datetimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}([+-]\d{2}:?\d{2}|Z)$`)

// ParseDatetime parses YYYY-MM-DDTHH:MM:SS followed by a UTC offset written
// as +HHMM, +HH:MM or Z. The result is in UTC.
func ParseDatetime(s string) (time.Time, error) {
	if !datetimePattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("datetime %q must match the pattern YYYY-MM-DDTHH:MM:SS+HHMM", s)
	}
	layout := "2006-01-02T15:04:05-0700"
	switch {
	case strings.HasSuffix(s, "Z"):
		layout = "2006-01-02T15:04:05Z07:00"
	case s[len(s)-3] == ':':
		layout = "2006-01-02T15:04:05-07:00"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse datetime %q: %w", s, err)
	}
	return t.UTC(), nil
}

// FormatDatetime is the inverse of ParseDatetime for UTC times.
func FormatDatetime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05-0700")
}

type datetime struct {
	time.Time
}

func (d *datetime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("datetime must be a string")
	}
	t, err := ParseDatetime(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

type locationDoc struct {
	LocationID string   `json:"location_id"`
	Details    string   `json:"details"`
	Lon        *float64 `json:"lon"`
	Lat        *float64 `json:"lat"`
	Alt        *float64 `json:"alt"`
}

func DecodeLocations(data []byte) ([]models.Location, error) {
	items, err := splitList(data)
	if err != nil {
		return nil, err
	}

	var errs *multierror.Error
	locations := make([]models.Location, 0, len(items))
	for i, item := range items {
		var doc locationDoc
		if err := json.Unmarshal(item, &doc); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("location %d: %w", i, err))
			continue
		}
		for _, f := range missingFields(map[string]bool{
			"location_id": doc.LocationID == "",
			"lon":         doc.Lon == nil,
			"lat":         doc.Lat == nil,
			"alt":         doc.Alt == nil,
		}) {
			errs = multierror.Append(errs, fmt.Errorf("location %d (%q): missing %s", i, doc.LocationID, f))
		}
		if doc.Lon == nil || doc.Lat == nil || doc.Alt == nil {
			continue
		}
		locations = append(locations, models.Location{
			LocationID: doc.LocationID,
			Details:    doc.Details,
			Longitude:  *doc.Lon,
			Latitude:   *doc.Lat,
			Altitude:   *doc.Alt,
		})
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return locations, nil
}

type sensorDoc struct {
	SensorID     string     `json:"sensor_id"`
	SerialNumber *int       `json:"serial_number"`
	Setups       []setupDoc `json:"setups"`
}

// setupDoc accepts both the long field names and their short aliases.
type setupDoc struct {
	From   *datetime      `json:"from_datetime"`
	FromDT *datetime      `json:"from_dt"`
	To     *datetime      `json:"to_datetime"`
	ToDT   *datetime      `json:"to_dt"`
	Value  *setupValueDoc `json:"value"`
	V      *setupValueDoc `json:"v"`
}

type setupValueDoc struct {
	LocationID                   string          `json:"location_id"`
	LID                          string          `json:"lid"`
	PressureDataSource           *string         `json:"pressure_data_source"`
	PDS                          *string         `json:"pds"`
	UTCOffset                    *float64        `json:"utc_offset"`
	AtmosphericProfileLocationID *string         `json:"atmospheric_profile_location_id"`
	ProfileLID                   *string         `json:"profile_lid"`
	SerialNumber                 *int            `json:"serial_number"`
	CalibrationFactors           *calibrationDoc `json:"calibration_factors"`
}

type calibrationDoc struct {
	Pressure *float64           `json:"pressure"`
	XCO2     *gasCalibrationDoc `json:"xco2"`
	XCH4     *gasCalibrationDoc `json:"xch4"`
	XCO      *gasCalibrationDoc `json:"xco"`
}

type gasCalibrationDoc struct {
	Factors []float64 `json:"factors"`
	Scheme  string    `json:"scheme"`
	Note    string    `json:"note"`
}

func DecodeSensors(data []byte) ([]models.Sensor, error) {
	items, err := splitList(data)
	if err != nil {
		return nil, err
	}

	var errs *multierror.Error
	sensors := make([]models.Sensor, 0, len(items))
	for i, item := range items {
		var doc sensorDoc
		if err := json.Unmarshal(item, &doc); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("sensor %d: %w", i, err))
			continue
		}
		if doc.SerialNumber == nil {
			errs = multierror.Append(errs, fmt.Errorf("sensor %d (%q): missing serial_number", i, doc.SensorID))
			continue
		}

		sensor := models.Sensor{SensorID: doc.SensorID, SerialNumber: *doc.SerialNumber}
		for j, setup := range doc.Setups {
			seg, err := setup.segment(sensor)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("sensor %q setup %d: %w", doc.SensorID, j, err))
				continue
			}
			sensor.Segments = append(sensor.Segments, seg)
		}
		sensors = append(sensors, sensor)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return sensors, nil
}

func (d setupDoc) segment(sensor models.Sensor) (models.Segment, error) {
	from := firstOf(d.From, d.FromDT)
	if from == nil {
		return models.Segment{}, fmt.Errorf("missing from_datetime")
	}
	v := firstOf(d.Value, d.V)
	if v == nil {
		return models.Segment{}, fmt.Errorf("missing value")
	}

	to := models.Unbounded()
	if end := firstOf(d.To, d.ToDT); end != nil {
		to = models.Until(end.Time)
	}

	setup := models.Setup{
		LocationID:         v.LocationID,
		SerialNumber:       sensor.SerialNumber,
		PressureDataSource: sensor.SensorID,
		Calibration:        models.DefaultCalibration(),
	}
	if setup.LocationID == "" {
		setup.LocationID = v.LID
	}
	if p := firstOf(v.PressureDataSource, v.PDS); p != nil {
		setup.PressureDataSource = *p
	}
	if v.UTCOffset != nil {
		setup.UTCOffset = *v.UTCOffset
	}
	if p := firstOf(v.AtmosphericProfileLocationID, v.ProfileLID); p != nil {
		setup.AtmosphericProfileLocationID = *p
	}
	if v.SerialNumber != nil {
		setup.SerialNumber = *v.SerialNumber
	}
	if c := v.CalibrationFactors; c != nil {
		if c.Pressure != nil {
			setup.Calibration.Pressure = *c.Pressure
		}
		setup.Calibration.XCO2 = c.XCO2.model()
		setup.Calibration.XCH4 = c.XCH4.model()
		setup.Calibration.XCO = c.XCO.model()
	}

	return models.Segment{From: from.Time, To: to, Setup: setup}, nil
}

func (g *gasCalibrationDoc) model() *models.GasCalibration {
	if g == nil {
		return nil
	}
	return &models.GasCalibration{
		Factors: append([]float64(nil), g.Factors...),
		Scheme:  g.Scheme,
		Note:    g.Note,
	}
}

type campaignDoc struct {
	CampaignID            string       `json:"campaign_id"`
	From                  *datetime    `json:"from_datetime"`
	To                    *datetime    `json:"to_datetime"`
	Stations              []stationDoc `json:"stations"`
	AdditionalLocationIDs []string     `json:"additional_location_ids"`
}

type stationDoc struct {
	SensorID          string `json:"sensor_id"`
	DefaultLocationID string `json:"default_location_id"`
	LocationID        string `json:"location_id"`
	Direction         string `json:"direction"`
}

func DecodeCampaigns(data []byte) ([]models.Campaign, error) {
	items, err := splitList(data)
	if err != nil {
		return nil, err
	}

	var errs *multierror.Error
	campaigns := make([]models.Campaign, 0, len(items))
	for i, item := range items {
		var doc campaignDoc
		if err := json.Unmarshal(item, &doc); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("campaign %d: %w", i, err))
			continue
		}
		missing := missingFields(map[string]bool{
			"from_datetime": doc.From == nil,
			"to_datetime":   doc.To == nil,
		})
		for _, f := range missing {
			errs = multierror.Append(errs, fmt.Errorf("campaign %d (%q): missing %s", i, doc.CampaignID, f))
		}
		if len(missing) > 0 {
			continue
		}

		c := models.Campaign{
			CampaignID:            doc.CampaignID,
			From:                  doc.From.Time,
			To:                    doc.To.Time,
			AdditionalLocationIDs: doc.AdditionalLocationIDs,
		}
		for _, st := range doc.Stations {
			loc := st.DefaultLocationID
			if loc == "" {
				loc = st.LocationID
			}
			c.Stations = append(c.Stations, models.Station{
				SensorID:   st.SensorID,
				LocationID: loc,
				Direction:  st.Direction,
			})
		}
		campaigns = append(campaigns, c)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return campaigns, nil
}

func firstOf[T any](vs ...*T) *T {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}
