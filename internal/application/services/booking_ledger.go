package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/triage-dispatch/backend/pkg/errors"
)

// DefaultCapacityPerDay is the number of booked arrivals a date can hold
const DefaultCapacityPerDay = 16

// BookingLedger tracks booked arrivals per calendar date. It reports
// fullness but only rejects bookings when enforcement is turned on.
type BookingLedger struct {
	mu      sync.RWMutex
	ceiling int
	enforce bool
	counts  map[string]int
	slots   map[entities.RegistrationKey]string
}

// NewBookingLedger creates an empty ledger
func NewBookingLedger(ceiling int, enforce bool) *BookingLedger {
	if ceiling <= 0 {
		ceiling = DefaultCapacityPerDay
	}
	return &BookingLedger{
		ceiling: ceiling,
		enforce: enforce,
		counts:  make(map[string]int),
		slots:   make(map[entities.RegistrationKey]string),
	}
}

// Ceiling returns the per-date capacity
func (l *BookingLedger) Ceiling() int {
	return l.ceiling
}

// Count returns the number of booked arrivals on date (YYYY-MM-DD)
func (l *BookingLedger) Count(date string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[date]
}

// IsFull reports whether date has reached the ceiling
func (l *BookingLedger) IsFull(date string) bool {
	return l.Count(date) >= l.ceiling
}

// BookedSlots returns the arrival timestamps of every booked registration in
// chronological order
func (l *BookingLedger) BookedSlots() []string {
	l.mu.RLock()
	slots := make([]string, 0, len(l.slots))
	for _, ts := range l.slots {
		slots = append(slots, ts)
	}
	l.mu.RUnlock()

	sort.Strings(slots)
	return slots
}

// Book runs commit and counts the registration once commit succeeds. The
// ledger lock is held across both steps so readers never observe one
// without the other. Walk-ins are committed without being counted.
func (l *BookingLedger) Book(p *entities.PatientRegistration, commit func() error) error {
	if !p.Booked {
		return commit()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	date, ok := p.ArrivalDate()
	if ok && l.enforce && l.counts[date] >= l.ceiling {
		return apperrors.NewConflictError(fmt.Sprintf("no booking slots left on %s", date))
	}

	if err := commit(); err != nil {
		return err
	}

	if ok {
		l.track(p.Key(), date)
	}
	return nil
}

// Release runs commit and uncounts the registration once commit succeeds
func (l *BookingLedger) Release(p *entities.PatientRegistration, commit func() error) error {
	if !p.Booked {
		return commit()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := commit(); err != nil {
		return err
	}

	key := p.Key()
	if _, tracked := l.slots[key]; tracked {
		date, _ := p.ArrivalDate()
		delete(l.slots, key)
		l.counts[date]--
		if l.counts[date] <= 0 {
			delete(l.counts, date)
		}
	}
	return nil
}

// Rebuild recomputes every count from a full scan of the store
func (l *BookingLedger) Rebuild(ctx context.Context, repo repositories.PatientRepository) error {
	booked, err := repo.FindAll(ctx, repositories.Filter{repositories.FieldBooked: true})
	if err != nil {
		return fmt.Errorf("failed to scan booked registrations: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.counts = make(map[string]int)
	l.slots = make(map[entities.RegistrationKey]string)
	for _, p := range booked {
		date, ok := p.ArrivalDate()
		if !ok {
			log.Warn().Str("mrn", p.MRN).Str("arrival", p.ArrivalTimestamp).Msg("Booked registration has unparseable arrival; not counted")
			continue
		}
		l.track(p.Key(), date)
	}

	log.Info().Int("booked", len(l.slots)).Int("dates", len(l.counts)).Msg("Booking ledger rebuilt")
	return nil
}

func (l *BookingLedger) track(key entities.RegistrationKey, date string) {
	if _, exists := l.slots[key]; exists {
		return
	}
	l.slots[key] = key.ArrivalTimestamp
	l.counts[date]++
}
