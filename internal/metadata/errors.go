package metadata

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation = errors.New("invalid metadata")
	ErrNotFound   = errors.New("not found")
	ErrRange      = errors.New("interval out of range")
)

// Rule names the invariant a document violates.
type Rule string

const (
	RuleInvalidID          Rule = "invalid_id"
	RuleDuplicateID        Rule = "duplicate_id"
	RuleCoordinates        Rule = "coordinates_out_of_bounds"
	RuleSerialNumber       Rule = "invalid_serial_number"
	RuleUTCOffset          Rule = "utc_offset_out_of_bounds"
	RuleEmptyField         Rule = "empty_field"
	RuleInvertedRange      Rule = "inverted_range"
	RuleUnordered          Rule = "unordered"
	RuleOverlap            Rule = "overlap"
	RuleGap                Rule = "gap"
	RuleUnboundedMisplaced Rule = "unbounded_not_last"
	RuleUnboundedMissing   Rule = "last_segment_bounded"
	RuleUnknownLocation    Rule = "unknown_location"
	RuleUnknownSensor      Rule = "unknown_sensor"
	RuleDuplicateStation   Rule = "duplicate_station"
	RuleDirection          Rule = "direction_inconsistent"
)

// ValidationError describes one violation found in a metadata document.
// Index is the position of the offending element (segment or station) inside
// the entry identified by ID, or -1 when the entry itself is at fault.
type ValidationError struct {
	Document string // "locations", "sensors" or "campaigns"
	ID       string
	Index    int
	Rule     Rule
	Detail   string
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s %q [%d]: %s: %s", e.Document, e.ID, e.Index, e.Rule, e.Detail)
	}
	return fmt.Sprintf("%s %q: %s: %s", e.Document, e.ID, e.Rule, e.Detail)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type NotFoundError struct {
	Kind string // "sensor", "location", "campaign"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown %s id %q", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type RangeError struct {
	SensorID string
	From     time.Time
	To       time.Time
	Reason   string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("sensor %q: interval %s..%s: %s",
		e.SensorID, e.From.Format(time.RFC3339), e.To.Format(time.RFC3339), e.Reason)
}

func (e *RangeError) Is(target error) bool {
	return target == ErrRange
}

// Violations returns every ValidationError contained in err.
func Violations(err error) []*ValidationError {
	var out []*ValidationError
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		switch x := err.(type) {
		case *ValidationError:
			out = append(out, x)
		case interface{ WrappedErrors() []error }:
			for _, e := range x.WrappedErrors() {
				walk(e)
			}
		case interface{ Unwrap() []error }:
			for _, e := range x.Unwrap() {
				walk(e)
			}
		case interface{ Unwrap() error }:
			walk(x.Unwrap())
		}
	}
	walk(err)
	return out
}
