package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/providers"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/repositories"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/triage-dispatch/backend/pkg/errors"
)

// scheduledArrivalLayouts are the accepted forms of a requested arrival time
var scheduledArrivalLayouts = []string{
	time.RFC3339,
	entities.TimestampLayout,
	"2006-01-02T15:04",
}

// RegistrationService handles patient intake
type RegistrationService struct {
	patients   repositories.PatientRepository
	visits     repositories.VisitRepository
	ledger     *BookingLedger
	classifier providers.SeverityClassifier
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewRegistrationService creates a new registration service. classifier and
// metrics may be nil; without a classifier every registration that does not
// carry a category is recorded as Low.
func NewRegistrationService(
	patients repositories.PatientRepository,
	visits repositories.VisitRepository,
	ledger *BookingLedger,
	classifier providers.SeverityClassifier,
	metrics *observability.Metrics,
) *RegistrationService {
	return &RegistrationService{
		patients:   patients,
		visits:     visits,
		ledger:     ledger,
		classifier: classifier,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Register validates and stores a new registration
func (s *RegistrationService) Register(ctx context.Context, req *entities.RegistrationRequest) (*entities.RegistrationResult, error) {
	ctx, span := observability.StartSpan(ctx, "RegistrationService.Register")
	defer span.End()

	if req == nil {
		return nil, apperrors.NewValidationError("registration request is required")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("name is required")
	}
	if req.Age < 0 {
		return nil, apperrors.NewValidationError("age must not be negative")
	}

	mrn := strings.TrimSpace(req.MRN)
	if mrn == "" {
		mrn = uuid.New().String()[:8]
	}

	registeredAt := entities.FormatTimestamp(s.now())
	arrival, booked, err := resolveArrival(req.ScheduledArrival, registeredAt)
	if err != nil {
		return nil, err
	}

	category, degraded, err := s.categorise(ctx, req)
	if err != nil {
		return nil, err
	}

	patient := &entities.PatientRegistration{
		MRN:                 mrn,
		Name:                name,
		Age:                 req.Age,
		Gender:              strings.TrimSpace(req.Gender),
		Complaint:           strings.TrimSpace(req.Complaint),
		Vitals:              req.Vitals,
		Category:            category,
		Color:               entities.ColorFor(category),
		ArrivalTimestamp:    arrival,
		RegisteredTimestamp: registeredAt,
		Booked:              booked,
	}
	if err := patient.Validate(); err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	existing, err := s.patients.FindOne(ctx, repositories.KeyFilter(patient.Key()))
	if err != nil {
		observability.RecordError(span, err)
		return nil, apperrors.NewInternalError("failed to check for duplicate registration", err)
	}
	if existing != nil {
		return nil, apperrors.NewConflictError(fmt.Sprintf("registration %s already exists", patient.Key()))
	}

	date, _ := patient.ArrivalDate()
	dateFull := booked && s.ledger.IsFull(date)

	err = s.ledger.Book(patient, func() error {
		return s.patients.Insert(ctx, patient)
	})
	if err != nil {
		observability.RecordError(span, err)
		if apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			return nil, err
		}
		return nil, apperrors.NewInternalError("failed to store registration", err)
	}

	visitCount, err := s.visits.Count(ctx, repositories.Filter{repositories.FieldMRN: mrn})
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("mrn", mrn).Msg("Failed to count visit history")
		visitCount = 0
	}

	logger := observability.LoggerFromContext(ctx)
	logger.Info().
		Str("mrn", mrn).
		Str("arrival", arrival).
		Str("category", string(category)).
		Bool("booked", booked).
		Bool("date_full", dateFull).
		Msg("Patient registered")

	return &entities.RegistrationResult{
		Patient:      patient,
		DateFull:     dateFull,
		BookedOnDate: s.ledger.Count(date),
		VisitCount:   int(visitCount),
		Degraded:     degraded,
	}, nil
}

// Lookup returns the active registrations and visit history of a patient
func (s *RegistrationService) Lookup(ctx context.Context, mrn string) (*entities.PatientHistory, error) {
	mrn = strings.TrimSpace(mrn)
	if mrn == "" {
		return nil, apperrors.NewValidationError("mrn is required")
	}

	filter := repositories.Filter{repositories.FieldMRN: mrn}

	active, err := s.patients.FindAll(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read registrations", err)
	}
	visits, err := s.visits.FindAll(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read visit history", err)
	}
	if len(active) == 0 && len(visits) == 0 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no records for mrn %s", mrn))
	}

	SortForDispatch(entities.DefaultBucketSchedule, active)
	return &entities.PatientHistory{
		MRN:        mrn,
		Active:     active,
		Visits:     visits,
		VisitCount: len(visits),
	}, nil
}

// Visits lists the visit history in completion order
func (s *RegistrationService) Visits(ctx context.Context) ([]*entities.VisitRecord, error) {
	visits, err := s.visits.FindAll(ctx, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read visit history", err)
	}
	return visits, nil
}

// BookedSlots returns every booked arrival timestamp
func (s *RegistrationService) BookedSlots() []string {
	return s.ledger.BookedSlots()
}

// Availability reports booking capacity for a date
func (s *RegistrationService) Availability(date string) (*entities.DateAvailability, error) {
	if _, err := time.Parse(entities.DateLayout, date); err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date))
	}

	booked := s.ledger.Count(date)
	remaining := s.ledger.Ceiling() - booked
	if remaining < 0 {
		remaining = 0
	}
	return &entities.DateAvailability{
		Date:      date,
		Booked:    booked,
		Capacity:  s.ledger.Ceiling(),
		Remaining: remaining,
		Full:      s.ledger.IsFull(date),
	}, nil
}

// categorise returns the manual category when one is given, otherwise the
// classifier's decision. A classifier failure never fails registration.
func (s *RegistrationService) categorise(ctx context.Context, req *entities.RegistrationRequest) (entities.Category, bool, error) {
	if strings.TrimSpace(req.Category) != "" {
		c, err := entities.ParseCategory(req.Category)
		if err != nil {
			return "", false, apperrors.NewValidationError(err.Error())
		}
		return c, false, nil
	}

	logger := observability.LoggerFromContext(ctx)

	if s.classifier == nil {
		observability.RecordClassifierFallback(ctx, s.metrics, "unconfigured")
		logger.Warn().Msg("No severity classifier configured; defaulting to Low")
		return entities.CategoryLow, true, nil
	}

	prediction, err := s.classifier.Classify(ctx, req.Complaint, req.Vitals)
	if err != nil {
		observability.RecordClassifierFallback(ctx, s.metrics, "error")
		logger.Warn().Err(err).Msg("Severity classifier failed; defaulting to Low")
		return entities.CategoryLow, true, nil
	}

	category, degraded := DecideCategory(prediction)
	if degraded {
		observability.RecordClassifierFallback(ctx, s.metrics, "unusable_prediction")
		logger.Warn().Msg("Severity classifier returned no usable distribution; defaulting to Low")
	}
	return category, degraded, nil
}

func resolveArrival(scheduled, registeredAt string) (string, bool, error) {
	scheduled = strings.TrimSpace(scheduled)
	if scheduled == "" {
		return registeredAt, false, nil
	}
	for _, layout := range scheduledArrivalLayouts {
		t, err := time.ParseInLocation(layout, scheduled, time.Local)
		if err == nil {
			return entities.FormatTimestamp(t.In(time.Local)), true, nil
		}
	}
	return "", false, apperrors.NewValidationError(fmt.Sprintf("invalid scheduledArrival %q", scheduled))
}
