package repositories

import (
	"context"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
)

// Persisted field names. Filters and patches are keyed by these.
const (
	FieldMRN                 = "mrn"
	FieldName                = "name"
	FieldCategory            = "category"
	FieldColor               = "color"
	FieldArrivalTimestamp    = "arrivalTimestamp"
	FieldRegisteredTimestamp = "registeredTimestamp"
	FieldBooked              = "booked"
	FieldAssignedSession     = "assignedSession"
	FieldAssignedAt          = "assignedAt"
	FieldCompletedTimestamp  = "completedTimestamp"
)

// Filter is a conjunction of field-equality predicates. A nil or empty
// filter matches every record.
type Filter map[string]interface{}

// Patch lists field values to overwrite
type Patch map[string]interface{}

// KeyFilter returns the filter selecting one registration by identity
func KeyFilter(key entities.RegistrationKey) Filter {
	return Filter{
		FieldMRN:              key.MRN,
		FieldArrivalTimestamp: key.ArrivalTimestamp,
	}
}

// PatientRepository is the active-registration collection of the patient
// record store
type PatientRepository interface {
	// Insert stores a new registration
	Insert(ctx context.Context, patient *entities.PatientRegistration) error

	// FindAll returns every registration matching filter
	FindAll(ctx context.Context, filter Filter) ([]*entities.PatientRegistration, error)

	// FindOne returns the first match, or nil when nothing matches
	FindOne(ctx context.Context, filter Filter) (*entities.PatientRegistration, error)

	// UpdateOne applies patch to the first match and returns the matched count
	UpdateOne(ctx context.Context, filter Filter, patch Patch) (int64, error)

	// DeleteOne removes the first match
	DeleteOne(ctx context.Context, filter Filter) error

	// Count returns the number of matches
	Count(ctx context.Context, filter Filter) (int64, error)
}

// VisitRepository is the visit history collection. Records are never changed
// after insert.
type VisitRepository interface {
	// Insert appends a visit record
	Insert(ctx context.Context, visit *entities.VisitRecord) error

	// FindAll returns every visit matching filter in insertion order
	FindAll(ctx context.Context, filter Filter) ([]*entities.VisitRecord, error)

	// DeleteOne removes the first match. It only undoes a completion whose
	// registration could not be removed.
	DeleteOne(ctx context.Context, filter Filter) error

	// Count returns the number of matches
	Count(ctx context.Context, filter Filter) (int64, error)
}
