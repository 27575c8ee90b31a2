package metadata

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/tum-esm/em27-metadata/internal/models"
)

// directionPairs lists labels whose locations must be ordered: the first
// label's coordinate is strictly greater than the second's.
var directionPairs = []struct {
	greater, lesser string
	axis            string
	coord           func(models.Location) float64
}{
	{"north", "south", "latitude", func(l models.Location) float64 { return l.Latitude }},
	{"east", "west", "longitude", func(l models.Location) float64 { return l.Longitude }},
}

// ValidateCampaigns checks campaign ids, date ranges, station references and
// the geographic consistency of paired direction labels. Location references
// and directions are only checked when locations is non-nil.
func ValidateCampaigns(campaigns []models.Campaign, sensorIDs []string, locations *LocationRegistry) error {
	sensors := make(map[string]bool, len(sensorIDs))
	for _, id := range sensorIDs {
		sensors[id] = true
	}

	var errs *multierror.Error
	for _, v := range checkCampaigns(campaigns, sensors, locations) {
		errs = multierror.Append(errs, v)
	}
	return errs.ErrorOrNil()
}

func checkCampaigns(campaigns []models.Campaign, sensors map[string]bool, locations *LocationRegistry) []*ValidationError {
	var out []*ValidationError
	seen := make(map[string]bool, len(campaigns))

	for _, c := range campaigns {
		add := func(index int, rule Rule, format string, args ...any) {
			out = append(out, &ValidationError{
				Document: docCampaigns, ID: c.CampaignID, Index: index,
				Rule: rule, Detail: fmt.Sprintf(format, args...),
			})
		}

		if !validID(c.CampaignID) {
			add(-1, RuleInvalidID, "must be 1-%d characters of letters, numbers, dashes, underscores", maxIDLength)
		}
		if seen[c.CampaignID] {
			add(-1, RuleDuplicateID, "campaign ids must be unique")
		}
		seen[c.CampaignID] = true

		if !c.From.Before(c.To) {
			add(-1, RuleInvertedRange, "from_datetime %s must be before to_datetime %s", fmtTime(c.From), fmtTime(c.To))
		}

		triples := make(map[models.Station]int, len(c.Stations))
		for i, st := range c.Stations {
			key := models.Station{SensorID: st.SensorID, LocationID: st.LocationID, Direction: strings.ToLower(st.Direction)}
			if first, dup := triples[key]; dup {
				add(i, RuleDuplicateStation, "station (%s, %s, %s) repeats station %d", st.SensorID, st.LocationID, st.Direction, first)
			} else {
				triples[key] = i
			}
			if !sensors[st.SensorID] {
				add(i, RuleUnknownSensor, "sensor id %q is not in the sensors document", st.SensorID)
			}
			if locations != nil && !locations.Has(st.LocationID) {
				add(i, RuleUnknownLocation, "location id %q is not in the locations document", st.LocationID)
			}
		}

		for _, id := range c.AdditionalLocationIDs {
			if locations != nil && !locations.Has(id) {
				add(-1, RuleUnknownLocation, "additional location id %q is not in the locations document", id)
			}
		}

		if locations != nil {
			out = append(out, checkDirections(c, locations)...)
		}
	}
	return out
}

func checkDirections(c models.Campaign, locations *LocationRegistry) []*ValidationError {
	var out []*ValidationError
	for _, pair := range directionPairs {
		for i, hi := range c.Stations {
			if !strings.EqualFold(hi.Direction, pair.greater) {
				continue
			}
			hiLoc, err := locations.Lookup(hi.LocationID)
			if err != nil {
				continue
			}
			for _, lo := range c.Stations {
				if !strings.EqualFold(lo.Direction, pair.lesser) {
					continue
				}
				loLoc, err := locations.Lookup(lo.LocationID)
				if err != nil {
					continue
				}
				if pair.coord(hiLoc) > pair.coord(loLoc) {
					continue
				}
				out = append(out, &ValidationError{
					Document: docCampaigns, ID: c.CampaignID, Index: i, Rule: RuleDirection,
					Detail: fmt.Sprintf("%s station %s at %q (%s %v) is not %s of %s station %s at %q (%s %v)",
						pair.greater, hi.SensorID, hi.LocationID, pair.axis, pair.coord(hiLoc),
						pair.greater, pair.lesser, lo.SensorID, lo.LocationID, pair.axis, pair.coord(loLoc)),
				})
			}
		}
	}
	return out
}
