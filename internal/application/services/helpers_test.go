package services_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zatekoja/triage-dispatch/backend/internal/adapters/database"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
)

func newPatient(mrn, arrival string, category entities.Category, booked bool) *entities.PatientRegistration {
	return &entities.PatientRegistration{
		MRN:                 mrn,
		Name:                "Patient " + mrn,
		Age:                 40,
		Complaint:           "abdominal pain",
		Category:            category,
		Color:               entities.ColorFor(category),
		ArrivalTimestamp:    arrival,
		RegisteredTimestamp: arrival,
		Booked:              booked,
	}
}

func seedPatients(t *testing.T, repo *database.MemoryPatientAdapter, patients ...*entities.PatientRegistration) {
	t.Helper()
	for _, p := range patients {
		require.NoError(t, repo.Insert(context.Background(), p))
	}
}

// recordingBus is an EventBus that keeps every published event
type recordingBus struct {
	mu     sync.Mutex
	events []*entities.SeverityEvent
	err    error
}

func (b *recordingBus) Publish(ctx context.Context, channel string, event *entities.SeverityEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.SeverityEvent, error) {
	return make(chan *entities.SeverityEvent), nil
}

func (b *recordingBus) Unsubscribe(ctx context.Context, channel string) error { return nil }

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) published() []*entities.SeverityEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*entities.SeverityEvent(nil), b.events...)
}
