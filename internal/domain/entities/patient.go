package entities

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the canonical second-precision layout used for every
// persisted timestamp. Lexical order of values in this layout equals
// chronological order.
const TimestampLayout = "2006-01-02 15:04:05"

// DateLayout is the calendar-date prefix of TimestampLayout
const DateLayout = "2006-01-02"

// Category represents the acuity category assigned at triage
type Category string

const (
	CategoryCritical Category = "Critical"
	CategoryModerate Category = "Moderate"
	CategoryLow      Category = "Low"
)

// Categories lists the known categories in severity order
var Categories = []Category{CategoryCritical, CategoryModerate, CategoryLow}

// IsValid reports whether c is one of the known categories
func (c Category) IsValid() bool {
	switch c {
	case CategoryCritical, CategoryModerate, CategoryLow:
		return true
	}
	return false
}

// Rank returns the severity rank used for ordering. Lower is more severe.
func (c Category) Rank() int {
	switch c {
	case CategoryCritical:
		return 1
	case CategoryModerate:
		return 2
	case CategoryLow:
		return 3
	default:
		return 4
	}
}

// ParseCategory parses a category name case-insensitively
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if strings.EqualFold(strings.TrimSpace(s), string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid category: %q (valid: Critical, Moderate, Low)", s)
}

// Display markers derived from the category
const (
	ColorRed    = "(Red)"
	ColorOrange = "(Orange)"
	ColorGreen  = "(Green)"
	ColorGrey   = "(Grey)"
)

// ColorFor returns the display marker for a category
func ColorFor(c Category) string {
	switch c {
	case CategoryCritical:
		return ColorRed
	case CategoryModerate:
		return ColorOrange
	case CategoryLow:
		return ColorGreen
	default:
		return ColorGrey
	}
}

// Vitals holds the vital signs captured at intake
type Vitals struct {
	SBP  float64 `json:"sbp" bson:"sbp"`
	DBP  float64 `json:"dbp" bson:"dbp"`
	Temp float64 `json:"temp" bson:"temp"`
	HR   float64 `json:"hr" bson:"hr"`
	RR   float64 `json:"rr" bson:"rr"`
	O2   float64 `json:"o2" bson:"o2"`
}

// DispatchState is the state of a registration with respect to dispatch
type DispatchState string

const (
	DispatchStateWaiting  DispatchState = "waiting"
	DispatchStateAssigned DispatchState = "assigned"
)

// PatientRegistration represents an active patient waiting for, or being seen
// by, a clinician. It is identified by MRN plus arrival timestamp.
type PatientRegistration struct {
	MRN                 string   `json:"mrn" bson:"mrn"`
	Name                string   `json:"name" bson:"name"`
	Age                 int      `json:"age" bson:"age"`
	Gender              string   `json:"gender" bson:"gender"`
	Complaint           string   `json:"complaint" bson:"complaint"`
	Vitals              `bson:",inline"`
	Category            Category `json:"category" bson:"category"`
	Color               string   `json:"color" bson:"color"`
	ArrivalTimestamp    string   `json:"arrivalTimestamp" bson:"arrivalTimestamp"`
	RegisteredTimestamp string   `json:"registeredTimestamp" bson:"registeredTimestamp"`
	Booked              bool     `json:"booked" bson:"booked"`
	AssignedSession     string   `json:"assignedSession,omitempty" bson:"assignedSession"`
	AssignedAt          string   `json:"assignedAt,omitempty" bson:"assignedAt"`
}

// Key returns the identity of the registration
func (p *PatientRegistration) Key() RegistrationKey {
	return RegistrationKey{MRN: p.MRN, ArrivalTimestamp: p.ArrivalTimestamp}
}

// State returns the dispatch state derived from the assignment marking
func (p *PatientRegistration) State() DispatchState {
	if p.AssignedSession != "" {
		return DispatchStateAssigned
	}
	return DispatchStateWaiting
}

// ArrivalDate returns the calendar date of the arrival, or false when the
// arrival timestamp cannot be parsed.
func (p *PatientRegistration) ArrivalDate() (string, bool) {
	t, err := ParseTimestamp(p.ArrivalTimestamp)
	if err != nil {
		return "", false
	}
	return t.Format(DateLayout), true
}

// Validate checks the record before it crosses the store boundary
func (p *PatientRegistration) Validate() error {
	if strings.TrimSpace(p.MRN) == "" {
		return fmt.Errorf("mrn is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if p.Age < 0 {
		return fmt.Errorf("age must not be negative")
	}
	if p.Category != "" && !p.Category.IsValid() {
		return fmt.Errorf("invalid category %q", p.Category)
	}
	if p.ArrivalTimestamp == "" {
		return fmt.Errorf("arrivalTimestamp is required")
	}
	return nil
}

// RegistrationKey identifies a registration. MRN alone is not unique across
// visits.
type RegistrationKey struct {
	MRN              string `json:"mrn"`
	ArrivalTimestamp string `json:"arrivalTimestamp"`
}

// String returns a printable form of the key
func (k RegistrationKey) String() string {
	return k.MRN + "@" + k.ArrivalTimestamp
}

// ParseTimestamp parses a persisted timestamp in TimestampLayout. Stored
// values carry no zone; the result is the same wall clock in UTC so that
// date and hour extraction never depend on the host zone.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, strings.TrimSpace(s), time.UTC)
}

// Elapsed returns how long before now the persisted timestamp s was, reading
// s as a wall clock in now's location
func Elapsed(s string, now time.Time) (time.Duration, error) {
	t, err := ParseTimestamp(s)
	if err != nil {
		return 0, err
	}
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, now.Location())
	return now.Sub(wall), nil
}

// FormatTimestamp formats t in TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}
