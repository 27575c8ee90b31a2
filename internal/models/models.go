package models

import (
	"math"
	"time"
)

type Location struct {
	LocationID string
	Details    string
	Longitude  float64
	Latitude   float64
	Altitude   float64 // meters above sea level
}

// GasCalibration holds the calibration of one retrieved gas product.
type GasCalibration struct {
	Factors []float64
	Scheme  string // e.g. "Ohyama2021"
	Note    string
}

func (g *GasCalibration) equal(o *GasCalibration) bool {
	if g == nil || o == nil {
		return g == nil && o == nil
	}
	if g.Scheme != o.Scheme || g.Note != o.Note || len(g.Factors) != len(o.Factors) {
		return false
	}
	for i := range g.Factors {
		if !sameFloat(g.Factors[i], o.Factors[i]) {
			return false
		}
	}
	return true
}

type CalibrationFactors struct {
	Pressure float64
	XCO2     *GasCalibration
	XCH4     *GasCalibration
	XCO      *GasCalibration
}

// DefaultCalibration is applied to setups that do not carry calibration factors.
func DefaultCalibration() CalibrationFactors {
	return CalibrationFactors{Pressure: 1.0}
}

func (c CalibrationFactors) Equal(o CalibrationFactors) bool {
	return sameFloat(c.Pressure, o.Pressure) &&
		c.XCO2.equal(o.XCO2) &&
		c.XCH4.equal(o.XCH4) &&
		c.XCO.equal(o.XCO)
}

// Setup is the configuration of a sensor while it is constant.
type Setup struct {
	LocationID                   string
	SerialNumber                 int
	UTCOffset                    float64
	PressureDataSource           string
	AtmosphericProfileLocationID string // empty means LocationID
	Calibration                  CalibrationFactors
}

// ProfileLocationID returns the location used for atmospheric profiles.
func (s Setup) ProfileLocationID() string {
	if s.AtmosphericProfileLocationID == "" {
		return s.LocationID
	}
	return s.AtmosphericProfileLocationID
}

// Equal reports whether every field matches exactly. Floats are compared by
// their bit pattern, so 0 and -0 are different values.
func (s Setup) Equal(o Setup) bool {
	return s.LocationID == o.LocationID &&
		s.SerialNumber == o.SerialNumber &&
		sameFloat(s.UTCOffset, o.UTCOffset) &&
		s.PressureDataSource == o.PressureDataSource &&
		s.ProfileLocationID() == o.ProfileLocationID() &&
		s.Calibration.Equal(o.Calibration)
}

func sameFloat(a, b float64) bool {
	return math.Float64bits(a) == math.Float64bits(b)
}

// Resolution is the precision of metadata datetimes. A bounded end covers the
// whole second it names.
const Resolution = time.Second

// End is the inclusive end of a segment: either a bounded instant or open ended.
type End struct {
	at      time.Time
	bounded bool
}

func Until(t time.Time) End {
	return End{at: t, bounded: true}
}

func Unbounded() End {
	return End{}
}

func (e End) IsBounded() bool {
	return e.bounded
}

// Time returns the end instant and true, or the zero time and false when the
// end is open.
func (e End) Time() (time.Time, bool) {
	return e.at, e.bounded
}

// Covers reports whether t falls before the second following the end.
func (e End) Covers(t time.Time) bool {
	return !e.bounded || t.Before(e.at.Add(Resolution))
}

func (e End) String() string {
	if !e.bounded {
		return "unbounded"
	}
	return e.at.Format(time.RFC3339)
}

type Segment struct {
	From  time.Time
	To    End
	Setup Setup
}

// Contains reports whether t falls inside the segment.
func (s Segment) Contains(t time.Time) bool {
	return !t.Before(s.From) && s.To.Covers(t)
}

type Sensor struct {
	SensorID     string
	SerialNumber int
	Segments     []Segment
}

// Station is a sensor placed at a location for a campaign.
type Station struct {
	SensorID   string
	LocationID string
	Direction  string // "north", "south", "east", "west", "upwind", ...
}

type Campaign struct {
	CampaignID            string
	From                  time.Time
	To                    time.Time
	Stations              []Station
	AdditionalLocationIDs []string
}

// SensorDataContext is a period in which every metadata property of a sensor
// is constant.
type SensorDataContext struct {
	SensorID                   string
	SerialNumber               int
	From                       time.Time
	To                         time.Time
	Location                   Location
	AtmosphericProfileLocation Location
	UTCOffset                  float64
	PressureDataSource         string
	Calibration                CalibrationFactors
	MultipleContextsOnDate     bool
}
