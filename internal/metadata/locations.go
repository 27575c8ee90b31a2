package metadata

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/tum-esm/em27-metadata/internal/models"
)

const (
	docLocations = "locations"
	docSensors   = "sensors"
	docCampaigns = "campaigns"
)

const (
	maxIDLength = 128
	minAltitude = -20.0
	maxAltitude = 10000.0
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func validID(id string) bool {
	return len(id) <= maxIDLength && idPattern.MatchString(id)
}

// LocationRegistry maps location ids to validated locations.
type LocationRegistry struct {
	byID map[string]models.Location
	ids  []string
}

// NewLocationRegistry validates the locations document and indexes it.
func NewLocationRegistry(locations []models.Location) (*LocationRegistry, error) {
	r, err := newLocationRegistry(locations)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// newLocationRegistry always returns a registry of the valid-looking entries so
// that reference checks of other documents can still run.
func newLocationRegistry(locations []models.Location) (*LocationRegistry, error) {
	r := &LocationRegistry{byID: make(map[string]models.Location, len(locations))}

	var errs *multierror.Error
	for _, loc := range locations {
		for _, v := range checkLocation(loc) {
			errs = multierror.Append(errs, v)
		}
		if _, dup := r.byID[loc.LocationID]; dup {
			errs = multierror.Append(errs, &ValidationError{
				Document: docLocations, ID: loc.LocationID, Index: -1,
				Rule: RuleDuplicateID, Detail: "location ids must be unique",
			})
			continue
		}
		r.byID[loc.LocationID] = loc
		r.ids = append(r.ids, loc.LocationID)
	}
	sort.Strings(r.ids)
	return r, errs.ErrorOrNil()
}

func checkLocation(loc models.Location) []*ValidationError {
	var out []*ValidationError
	add := func(rule Rule, format string, args ...any) {
		out = append(out, &ValidationError{
			Document: docLocations, ID: loc.LocationID, Index: -1,
			Rule: rule, Detail: fmt.Sprintf(format, args...),
		})
	}

	if !validID(loc.LocationID) {
		add(RuleInvalidID, "must be 1-%d characters of letters, numbers, dashes, underscores", maxIDLength)
	}
	// negated comparisons also reject NaN
	if !(loc.Longitude >= -180 && loc.Longitude <= 180) {
		add(RuleCoordinates, "longitude %v outside [-180, 180]", loc.Longitude)
	}
	if !(loc.Latitude >= -90 && loc.Latitude <= 90) {
		add(RuleCoordinates, "latitude %v outside [-90, 90]", loc.Latitude)
	}
	if !(loc.Altitude >= minAltitude && loc.Altitude <= maxAltitude) {
		add(RuleCoordinates, "altitude %v outside [%v, %v]", loc.Altitude, minAltitude, maxAltitude)
	}
	return out
}

// Lookup returns the location with the given id. A nil registry holds no
// locations.
func (r *LocationRegistry) Lookup(id string) (models.Location, error) {
	if r == nil {
		return models.Location{}, &NotFoundError{Kind: "location", ID: id}
	}
	loc, ok := r.byID[id]
	if !ok {
		return models.Location{}, &NotFoundError{Kind: "location", ID: id}
	}
	return loc, nil
}

func (r *LocationRegistry) Has(id string) bool {
	if r == nil {
		return false
	}
	_, ok := r.byID[id]
	return ok
}

// IDs returns all location ids in sorted order.
func (r *LocationRegistry) IDs() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.ids...)
}

func (r *LocationRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ids)
}
