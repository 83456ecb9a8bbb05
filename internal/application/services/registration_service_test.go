package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/triage-dispatch/backend/internal/adapters/database"
	"github.com/zatekoja/triage-dispatch/backend/internal/application/services"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/providers"
	apperrors "github.com/zatekoja/triage-dispatch/backend/pkg/errors"
)

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, complaint string, vitals entities.Vitals) (*providers.Prediction, error) {
	args := m.Called(ctx, complaint, vitals)
	prediction, _ := args.Get(0).(*providers.Prediction)
	return prediction, args.Error(1)
}

type registrationFixture struct {
	patients *database.MemoryPatientAdapter
	visits   *database.MemoryVisitAdapter
	ledger   *services.BookingLedger
	service  *services.RegistrationService
}

func newRegistrationFixture(classifier providers.SeverityClassifier, ceiling int) *registrationFixture {
	f := &registrationFixture{
		patients: database.NewMemoryPatientAdapter(),
		visits:   database.NewMemoryVisitAdapter(),
		ledger:   services.NewBookingLedger(ceiling, false),
	}
	f.service = services.NewRegistrationService(f.patients, f.visits, f.ledger, classifier, nil)
	return f
}

func intakeRequest() *entities.RegistrationRequest {
	return &entities.RegistrationRequest{
		Name:      "  Ada Obi ",
		Age:       34,
		Gender:    "F",
		Complaint: "shortness of breath",
		Vitals:    entities.Vitals{SBP: 130, DBP: 85, Temp: 37.9, HR: 110, RR: 26, O2: 91},
	}
}

func TestRegistrationService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("classifier decides the category", func(t *testing.T) {
		classifier := &mockClassifier{}
		req := intakeRequest()
		classifier.On("Classify", mock.Anything, req.Complaint, req.Vitals).Return(&providers.Prediction{
			Category:      entities.CategoryCritical,
			Probabilities: probs(0.8, 0.15, 0.05),
		}, nil).Once()
		f := newRegistrationFixture(classifier, 0)

		result, err := f.service.Register(ctx, req)
		require.NoError(t, err)

		p := result.Patient
		assert.Len(t, p.MRN, 8)
		assert.Equal(t, "Ada Obi", p.Name)
		assert.Equal(t, entities.CategoryCritical, p.Category)
		assert.Equal(t, entities.ColorRed, p.Color)
		assert.False(t, p.Booked)
		assert.Equal(t, p.RegisteredTimestamp, p.ArrivalTimestamp)
		assert.False(t, result.Degraded)
		assert.False(t, result.DateFull)
		assert.Equal(t, 0, result.VisitCount)
		classifier.AssertExpectations(t)

		stored, err := f.patients.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored)
	})

	t.Run("manual category skips the classifier", func(t *testing.T) {
		classifier := &mockClassifier{}
		f := newRegistrationFixture(classifier, 0)

		req := intakeRequest()
		req.MRN = "abc12345"
		req.Category = "moderate"
		req.ScheduledArrival = "2024-03-04T09:30"

		result, err := f.service.Register(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, "abc12345", result.Patient.MRN)
		assert.Equal(t, entities.CategoryModerate, result.Patient.Category)
		assert.Equal(t, "2024-03-04 09:30:00", result.Patient.ArrivalTimestamp)
		assert.True(t, result.Patient.Booked)
		assert.Equal(t, 1, result.BookedOnDate)
		classifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("classifier failure degrades to Low", func(t *testing.T) {
		classifier := &mockClassifier{}
		classifier.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused")).Once()
		f := newRegistrationFixture(classifier, 0)

		result, err := f.service.Register(ctx, intakeRequest())
		require.NoError(t, err)
		assert.Equal(t, entities.CategoryLow, result.Patient.Category)
		assert.True(t, result.Degraded)
	})

	t.Run("unusable prediction degrades to Low", func(t *testing.T) {
		classifier := &mockClassifier{}
		classifier.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(&providers.Prediction{Category: entities.CategoryCritical}, nil).Once()
		f := newRegistrationFixture(classifier, 0)

		result, err := f.service.Register(ctx, intakeRequest())
		require.NoError(t, err)
		assert.Equal(t, entities.CategoryLow, result.Patient.Category)
		assert.True(t, result.Degraded)
	})

	t.Run("no classifier configured", func(t *testing.T) {
		f := newRegistrationFixture(nil, 0)

		result, err := f.service.Register(ctx, intakeRequest())
		require.NoError(t, err)
		assert.Equal(t, entities.CategoryLow, result.Patient.Category)
		assert.True(t, result.Degraded)
	})

	t.Run("full date is reported but accepted", func(t *testing.T) {
		f := newRegistrationFixture(nil, 2)

		for i, arrival := range []string{"2024-03-04 09:00:00", "2024-03-04 09:15:00", "2024-03-04 09:30:00"} {
			req := intakeRequest()
			req.Category = "Low"
			req.ScheduledArrival = arrival

			result, err := f.service.Register(ctx, req)
			require.NoError(t, err)
			assert.Equal(t, i == 2, result.DateFull, "booking %d", i)
			assert.Equal(t, i+1, result.BookedOnDate)
		}
	})

	t.Run("returning patient visit count", func(t *testing.T) {
		f := newRegistrationFixture(nil, 0)
		require.NoError(t, f.visits.Insert(ctx, &entities.VisitRecord{MRN: "ret00001", CompletedTimestamp: "2024-02-01 10:00:00"}))
		require.NoError(t, f.visits.Insert(ctx, &entities.VisitRecord{MRN: "ret00001", CompletedTimestamp: "2024-02-20 10:00:00"}))

		req := intakeRequest()
		req.MRN = "ret00001"
		result, err := f.service.Register(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 2, result.VisitCount)
	})

	t.Run("duplicate identity", func(t *testing.T) {
		f := newRegistrationFixture(nil, 0)
		req := intakeRequest()
		req.MRN = "dup00001"
		req.ScheduledArrival = "2024-03-04 09:00:00"

		_, err := f.service.Register(ctx, req)
		require.NoError(t, err)
		_, err = f.service.Register(ctx, req)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
		assert.Equal(t, 1, f.ledger.Count("2024-03-04"))
	})

	t.Run("validation", func(t *testing.T) {
		f := newRegistrationFixture(nil, 0)

		_, err := f.service.Register(ctx, nil)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

		req := intakeRequest()
		req.Name = " "
		_, err = f.service.Register(ctx, req)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

		req = intakeRequest()
		req.Age = -1
		_, err = f.service.Register(ctx, req)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

		req = intakeRequest()
		req.ScheduledArrival = "next tuesday"
		_, err = f.service.Register(ctx, req)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

		req = intakeRequest()
		req.Category = "Urgent"
		_, err = f.service.Register(ctx, req)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

		count, err := f.patients.Count(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestRegistrationService_Lookup(t *testing.T) {
	ctx := context.Background()
	f := newRegistrationFixture(nil, 0)
	seedPatients(t, f.patients,
		newPatient("m1", "2024-03-05 09:00:00", entities.CategoryLow, true),
		newPatient("m1", "2024-03-04 09:00:00", entities.CategoryLow, true),
		newPatient("m2", "2024-03-04 09:00:00", entities.CategoryLow, false),
	)
	require.NoError(t, f.visits.Insert(ctx, &entities.VisitRecord{MRN: "m1", CompletedTimestamp: "2024-02-01 10:00:00"}))
	require.NoError(t, f.visits.Insert(ctx, &entities.VisitRecord{MRN: "m3", CompletedTimestamp: "2024-02-01 10:00:00"}))

	history, err := f.service.Lookup(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, history.Active, 2)
	assert.Equal(t, "2024-03-04 09:00:00", history.Active[0].ArrivalTimestamp)
	assert.Equal(t, 1, history.VisitCount)

	history, err = f.service.Lookup(ctx, "m3")
	require.NoError(t, err)
	assert.Empty(t, history.Active)
	assert.Equal(t, 1, history.VisitCount)

	_, err = f.service.Lookup(ctx, "nobody")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

	_, err = f.service.Lookup(ctx, "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestRegistrationService_Availability(t *testing.T) {
	f := newRegistrationFixture(nil, 2)
	require.NoError(t, f.ledger.Book(newPatient("a", "2024-03-04 09:00:00", entities.CategoryLow, true), noop))

	availability, err := f.service.Availability("2024-03-04")
	require.NoError(t, err)
	assert.Equal(t, &entities.DateAvailability{Date: "2024-03-04", Booked: 1, Capacity: 2, Remaining: 1, Full: false}, availability)

	require.NoError(t, f.ledger.Book(newPatient("b", "2024-03-04 09:15:00", entities.CategoryLow, true), noop))
	availability, err = f.service.Availability("2024-03-04")
	require.NoError(t, err)
	assert.True(t, availability.Full)
	assert.Zero(t, availability.Remaining)

	assert.Equal(t, []string{"2024-03-04 09:00:00", "2024-03-04 09:15:00"}, f.service.BookedSlots())

	_, err = f.service.Availability("4th March")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}
