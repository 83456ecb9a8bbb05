package database

import (
	"fmt"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/triage-dispatch/backend/pkg/errors"
)

// patientField returns the persisted value of a registration field
func patientField(p *entities.PatientRegistration, field string) (interface{}, bool) {
	switch field {
	case repositories.FieldMRN:
		return p.MRN, true
	case repositories.FieldName:
		return p.Name, true
	case "age":
		return p.Age, true
	case "gender":
		return p.Gender, true
	case "complaint":
		return p.Complaint, true
	case repositories.FieldCategory:
		return string(p.Category), true
	case repositories.FieldColor:
		return p.Color, true
	case repositories.FieldArrivalTimestamp:
		return p.ArrivalTimestamp, true
	case repositories.FieldRegisteredTimestamp:
		return p.RegisteredTimestamp, true
	case repositories.FieldBooked:
		return p.Booked, true
	case repositories.FieldAssignedSession:
		return p.AssignedSession, true
	case repositories.FieldAssignedAt:
		return p.AssignedAt, true
	}
	return nil, false
}

// setPatientField overwrites one patchable field
func setPatientField(p *entities.PatientRegistration, field string, value interface{}) error {
	switch field {
	case repositories.FieldCategory:
		s, err := asString(field, value)
		if err != nil {
			return err
		}
		p.Category = entities.Category(s)
	case repositories.FieldColor:
		s, err := asString(field, value)
		if err != nil {
			return err
		}
		p.Color = s
	case repositories.FieldAssignedSession:
		s, err := asString(field, value)
		if err != nil {
			return err
		}
		p.AssignedSession = s
	case repositories.FieldAssignedAt:
		s, err := asString(field, value)
		if err != nil {
			return err
		}
		p.AssignedAt = s
	case repositories.FieldBooked:
		b, ok := value.(bool)
		if !ok {
			return apperrors.NewValidationError(fmt.Sprintf("field %s expects a bool", field))
		}
		p.Booked = b
	default:
		return apperrors.NewValidationError(fmt.Sprintf("field %s cannot be patched", field))
	}
	return nil
}

func visitField(v *entities.VisitRecord, field string) (interface{}, bool) {
	switch field {
	case repositories.FieldMRN:
		return v.MRN, true
	case repositories.FieldName:
		return v.Name, true
	case repositories.FieldCategory:
		return string(v.Category), true
	case repositories.FieldArrivalTimestamp:
		return v.ArrivalTimestamp, true
	case repositories.FieldCompletedTimestamp:
		return v.CompletedTimestamp, true
	}
	return nil, false
}

func matchPatient(p *entities.PatientRegistration, filter repositories.Filter) (bool, error) {
	for field, want := range filter {
		got, ok := patientField(p, field)
		if !ok {
			return false, apperrors.NewValidationError(fmt.Sprintf("unknown patient field %s", field))
		}
		if got != normalise(want) {
			return false, nil
		}
	}
	return true, nil
}

func matchVisit(v *entities.VisitRecord, filter repositories.Filter) (bool, error) {
	for field, want := range filter {
		got, ok := visitField(v, field)
		if !ok {
			return false, apperrors.NewValidationError(fmt.Sprintf("unknown visit field %s", field))
		}
		if got != normalise(want) {
			return false, nil
		}
	}
	return true, nil
}

// isPatchable reports whether field may be changed after insert
func isPatchable(field string) bool {
	switch field {
	case repositories.FieldCategory, repositories.FieldColor,
		repositories.FieldAssignedSession, repositories.FieldAssignedAt,
		repositories.FieldBooked:
		return true
	}
	return false
}

// normalise maps named string types to string so filter values compare equal
// to stored values
func normalise(v interface{}) interface{} {
	switch t := v.(type) {
	case entities.Category:
		return string(t)
	case entities.TimeBucket:
		return string(t)
	}
	return v
}

func asString(field string, value interface{}) (string, error) {
	switch v := normalise(value).(type) {
	case string:
		return v, nil
	default:
		return "", apperrors.NewValidationError(fmt.Sprintf("field %s expects a string", field))
	}
}

// patientColumns maps persisted field names to relational column names
var patientColumns = map[string]string{
	repositories.FieldMRN:                 "mrn",
	repositories.FieldName:                "name",
	"age":                                 "age",
	"gender":                              "gender",
	"complaint":                           "complaint",
	repositories.FieldCategory:            "category",
	repositories.FieldColor:               "color",
	repositories.FieldArrivalTimestamp:    "arrival_timestamp",
	repositories.FieldRegisteredTimestamp: "registered_timestamp",
	repositories.FieldBooked:              "booked",
	repositories.FieldAssignedSession:     "assigned_session",
	repositories.FieldAssignedAt:          "assigned_at",
}

var visitColumns = map[string]string{
	repositories.FieldMRN:                "mrn",
	repositories.FieldName:               "name",
	repositories.FieldCategory:           "category",
	repositories.FieldArrivalTimestamp:   "arrival_timestamp",
	repositories.FieldCompletedTimestamp: "completed_timestamp",
}
