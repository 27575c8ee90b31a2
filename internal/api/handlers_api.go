package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tum-esm/em27-metadata/internal/ingest"
	"github.com/tum-esm/em27-metadata/internal/metadata"
	"github.com/tum-esm/em27-metadata/internal/metrics"
	"github.com/tum-esm/em27-metadata/internal/models"
)

func (s *Server) handleAPILocations(w http.ResponseWriter, r *http.Request) {
	md, ok := s.requireMetadata(w)
	if !ok {
		return
	}
	locations := md.Locations()
	out := make([]LocationJSON, 0, len(locations))
	for _, l := range locations {
		out = append(out, locationJSON(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPILocation(w http.ResponseWriter, r *http.Request) {
	md, ok := s.requireMetadata(w)
	if !ok {
		return
	}
	l, err := md.Location(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, locationJSON(l))
}

func (s *Server) handleAPISensors(w http.ResponseWriter, r *http.Request) {
	md, ok := s.requireMetadata(w)
	if !ok {
		return
	}
	ids := md.SensorIDs()
	out := make([]SensorJSON, 0, len(ids))
	for _, id := range ids {
		sensor, err := md.Sensor(id)
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, sensorJSON(sensor))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPISensor(w http.ResponseWriter, r *http.Request) {
	md, ok := s.requireMetadata(w)
	if !ok {
		return
	}
	sensor, err := md.Sensor(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sensorJSON(sensor))
}

func (s *Server) handleAPICampaigns(w http.ResponseWriter, r *http.Request) {
	md, ok := s.requireMetadata(w)
	if !ok {
		return
	}
	campaigns := md.Campaigns()
	out := make([]CampaignJSON, 0, len(campaigns))
	for _, c := range campaigns {
		out = append(out, campaignJSON(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPICampaign(w http.ResponseWriter, r *http.Request) {
	md, ok := s.requireMetadata(w)
	if !ok {
		return
	}
	c, err := md.Campaign(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaignJSON(c))
}

// handleAPIContexts resolves the sensor's contexts between the from and to
// query parameters, both inclusive.
func (s *Server) handleAPIContexts(w http.ResponseWriter, r *http.Request) {
	status := s.serveContexts(w, r)
	metrics.QueriesTotal.WithLabelValues("contexts", strconv.Itoa(status)).Inc()
}

func (s *Server) serveContexts(w http.ResponseWriter, r *http.Request) int {
	md, ok := s.requireMetadata(w)
	if !ok {
		return http.StatusServiceUnavailable
	}

	q := r.URL.Query()
	from, err := parseQueryTime(q.Get("from"))
	if err != nil {
		return writeError(w, fmt.Errorf("from: %w", err))
	}
	to, err := parseQueryTime(q.Get("to"))
	if err != nil {
		return writeError(w, fmt.Errorf("to: %w", err))
	}

	ctxs, err := md.Get(r.PathValue("id"), from, to)
	if err != nil {
		return writeError(w, err)
	}
	metrics.ContextsPerQuery.Observe(float64(len(ctxs)))

	out := make([]ContextJSON, 0, len(ctxs))
	for _, c := range ctxs {
		out = append(out, ToContextJSON(c))
	}
	writeJSON(w, http.StatusOK, out)
	return http.StatusOK
}

// handleAPISetups returns the context in effect at each "at" timestamp, or
// null where the sensor has no setup. Timestamps may be repeated or comma
// separated.
func (s *Server) handleAPISetups(w http.ResponseWriter, r *http.Request) {
	status := s.serveSetups(w, r)
	metrics.QueriesTotal.WithLabelValues("setups", strconv.Itoa(status)).Inc()
}

func (s *Server) serveSetups(w http.ResponseWriter, r *http.Request) int {
	md, ok := s.requireMetadata(w)
	if !ok {
		return http.StatusServiceUnavailable
	}

	var ts []time.Time
	for _, v := range r.URL.Query()["at"] {
		for _, part := range strings.Split(v, ",") {
			t, err := parseQueryTime(part)
			if err != nil {
				return writeError(w, fmt.Errorf("at: %w", err))
			}
			ts = append(ts, t)
		}
	}
	if len(ts) == 0 {
		return writeError(w, errBadRequest("at: at least one timestamp is required"))
	}

	ctxs, err := md.Explode(r.PathValue("id"), ts)
	if err != nil {
		return writeError(w, err)
	}

	out := make([]*ContextJSON, len(ctxs))
	for i, c := range ctxs {
		if c != nil {
			cj := ToContextJSON(*c)
			out[i] = &cj
		}
	}
	writeJSON(w, http.StatusOK, out)
	return http.StatusOK
}

func (s *Server) requireMetadata(w http.ResponseWriter) (*metadata.Metadata, bool) {
	md := s.Metadata()
	if md == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "metadata not loaded yet"})
		return nil, false
	}
	return md, true
}

// parseQueryTime parses a datetime query parameter. A '+' left unescaped in
// the URL arrives as a space and is restored.
func parseQueryTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errBadRequest("missing datetime")
	}
	if i := strings.LastIndexByte(v, ' '); i > 0 {
		v = v[:i] + "+" + v[i+1:]
	}
	t, err := ingest.ParseDatetime(v)
	if err != nil {
		return time.Time{}, badRequestError{err}
	}
	return t, nil
}

type badRequestError struct {
	err error
}

func (e badRequestError) Error() string { return e.err.Error() }
func (e badRequestError) Unwrap() error { return e.err }

func errBadRequest(msg string) error {
	return badRequestError{errors.New(msg)}
}

func writeError(w http.ResponseWriter, err error) int {
	var bad badRequestError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, metadata.ErrRange), errors.As(err, &bad):
		status = http.StatusBadRequest
	default:
		log.Printf("api: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
	return status
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: write response: %v", err)
	}
}

type LocationJSON struct {
	LocationID string  `json:"location_id"`
	Details    string  `json:"details"`
	Lon        float64 `json:"lon"`
	Lat        float64 `json:"lat"`
	Alt        float64 `json:"alt"`
}

type GasCalibrationJSON struct {
	Factors []float64 `json:"factors"`
	Scheme  string    `json:"scheme,omitempty"`
	Note    string    `json:"note,omitempty"`
}

type CalibrationJSON struct {
	Pressure float64             `json:"pressure"`
	XCO2     *GasCalibrationJSON `json:"xco2,omitempty"`
	XCH4     *GasCalibrationJSON `json:"xch4,omitempty"`
	XCO      *GasCalibrationJSON `json:"xco,omitempty"`
}

type ContextJSON struct {
	SensorID                   string          `json:"sensor_id"`
	SerialNumber               int             `json:"serial_number"`
	FromDatetime               string          `json:"from_datetime"`
	ToDatetime                 string          `json:"to_datetime"`
	Location                   LocationJSON    `json:"location"`
	AtmosphericProfileLocation LocationJSON    `json:"atmospheric_profile_location"`
	UTCOffset                  float64         `json:"utc_offset"`
	PressureDataSource         string          `json:"pressure_data_source"`
	CalibrationFactors         CalibrationJSON `json:"calibration_factors"`
	MultipleContextsOnDate     bool            `json:"multiple_ctx_on_this_date"`
}

type SetupValueJSON struct {
	LocationID                   string          `json:"location_id"`
	SerialNumber                 int             `json:"serial_number"`
	UTCOffset                    float64         `json:"utc_offset"`
	PressureDataSource           string          `json:"pressure_data_source"`
	AtmosphericProfileLocationID string          `json:"atmospheric_profile_location_id"`
	CalibrationFactors           CalibrationJSON `json:"calibration_factors"`
}

type SetupJSON struct {
	FromDatetime string         `json:"from_datetime"`
	ToDatetime   *string        `json:"to_datetime"`
	Value        SetupValueJSON `json:"value"`
}

type SensorJSON struct {
	SensorID     string      `json:"sensor_id"`
	SerialNumber int         `json:"serial_number"`
	Setups       []SetupJSON `json:"setups"`
}

type StationJSON struct {
	SensorID          string `json:"sensor_id"`
	DefaultLocationID string `json:"default_location_id"`
	Direction         string `json:"direction"`
}

type CampaignJSON struct {
	CampaignID            string        `json:"campaign_id"`
	FromDatetime          string        `json:"from_datetime"`
	ToDatetime            string        `json:"to_datetime"`
	Stations              []StationJSON `json:"stations"`
	AdditionalLocationIDs []string      `json:"additional_location_ids"`
}

func locationJSON(l models.Location) LocationJSON {
	return LocationJSON{
		LocationID: l.LocationID,
		Details:    l.Details,
		Lon:        l.Longitude,
		Lat:        l.Latitude,
		Alt:        l.Altitude,
	}
}

func gasJSON(g *models.GasCalibration) *GasCalibrationJSON {
	if g == nil {
		return nil
	}
	return &GasCalibrationJSON{Factors: g.Factors, Scheme: g.Scheme, Note: g.Note}
}

func calibrationJSON(c models.CalibrationFactors) CalibrationJSON {
	return CalibrationJSON{
		Pressure: c.Pressure,
		XCO2:     gasJSON(c.XCO2),
		XCH4:     gasJSON(c.XCH4),
		XCO:      gasJSON(c.XCO),
	}
}

func ToContextJSON(c models.SensorDataContext) ContextJSON {
	return ContextJSON{
		SensorID:                   c.SensorID,
		SerialNumber:               c.SerialNumber,
		FromDatetime:               ingest.FormatDatetime(c.From),
		ToDatetime:                 ingest.FormatDatetime(c.To),
		Location:                   locationJSON(c.Location),
		AtmosphericProfileLocation: locationJSON(c.AtmosphericProfileLocation),
		UTCOffset:                  c.UTCOffset,
		PressureDataSource:         c.PressureDataSource,
		CalibrationFactors:         calibrationJSON(c.Calibration),
		MultipleContextsOnDate:     c.MultipleContextsOnDate,
	}
}

func sensorJSON(s models.Sensor) SensorJSON {
	out := SensorJSON{SensorID: s.SensorID, SerialNumber: s.SerialNumber, Setups: make([]SetupJSON, 0, len(s.Segments))}
	for _, seg := range s.Segments {
		setup := SetupJSON{
			FromDatetime: ingest.FormatDatetime(seg.From),
			Value: SetupValueJSON{
				LocationID:                   seg.Setup.LocationID,
				SerialNumber:                 seg.Setup.SerialNumber,
				UTCOffset:                    seg.Setup.UTCOffset,
				PressureDataSource:           seg.Setup.PressureDataSource,
				AtmosphericProfileLocationID: seg.Setup.ProfileLocationID(),
				CalibrationFactors:           calibrationJSON(seg.Setup.Calibration),
			},
		}
		if end, ok := seg.To.Time(); ok {
			formatted := ingest.FormatDatetime(end)
			setup.ToDatetime = &formatted
		}
		out.Setups = append(out.Setups, setup)
	}
	return out
}

func campaignJSON(c models.Campaign) CampaignJSON {
	out := CampaignJSON{
		CampaignID:            c.CampaignID,
		FromDatetime:          ingest.FormatDatetime(c.From),
		ToDatetime:            ingest.FormatDatetime(c.To),
		Stations:              make([]StationJSON, 0, len(c.Stations)),
		AdditionalLocationIDs: append([]string{}, c.AdditionalLocationIDs...),
	}
	for _, st := range c.Stations {
		out.Stations = append(out.Stations, StationJSON{
			SensorID:          st.SensorID,
			DefaultLocationID: st.LocationID,
			Direction:         st.Direction,
		})
	}
	return out
}
