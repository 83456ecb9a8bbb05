package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/triage-dispatch/backend/pkg/errors"
)

// MemoryPatientAdapter implements PatientRepository in process memory. It
// stores copies, so callers never share state with the store.
type MemoryPatientAdapter struct {
	mu       sync.RWMutex
	patients []*entities.PatientRegistration
}

// NewMemoryPatientAdapter creates an empty in-memory patient store
func NewMemoryPatientAdapter() *MemoryPatientAdapter {
	return &MemoryPatientAdapter{}
}

// Insert stores a new registration
func (a *MemoryPatientAdapter) Insert(ctx context.Context, patient *entities.PatientRegistration) error {
	if err := patient.Validate(); err != nil {
		return apperrors.NewValidationError(err.Error())
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := patient.Key()
	for _, p := range a.patients {
		if p.Key() == key {
			return apperrors.NewConflictError(fmt.Sprintf("registration %s already exists", key))
		}
	}

	stored := *patient
	a.patients = append(a.patients, &stored)
	return nil
}

// FindAll returns every registration matching filter in insertion order
func (a *MemoryPatientAdapter) FindAll(ctx context.Context, filter repositories.Filter) ([]*entities.PatientRegistration, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make([]*entities.PatientRegistration, 0, len(a.patients))
	for _, p := range a.patients {
		ok, err := matchPatient(p, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			found := *p
			result = append(result, &found)
		}
	}
	return result, nil
}

// FindOne returns the first match, or nil
func (a *MemoryPatientAdapter) FindOne(ctx context.Context, filter repositories.Filter) (*entities.PatientRegistration, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	i, err := a.indexOf(filter)
	if err != nil || i < 0 {
		return nil, err
	}
	found := *a.patients[i]
	return &found, nil
}

// UpdateOne applies patch to the first match
func (a *MemoryPatientAdapter) UpdateOne(ctx context.Context, filter repositories.Filter, patch repositories.Patch) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i, err := a.indexOf(filter)
	if err != nil || i < 0 {
		return 0, err
	}

	updated := *a.patients[i]
	for field, value := range patch {
		if err := setPatientField(&updated, field, value); err != nil {
			return 0, err
		}
	}
	if err := updated.Validate(); err != nil {
		return 0, apperrors.NewValidationError(err.Error())
	}
	a.patients[i] = &updated
	return 1, nil
}

// DeleteOne removes the first match
func (a *MemoryPatientAdapter) DeleteOne(ctx context.Context, filter repositories.Filter) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	i, err := a.indexOf(filter)
	if err != nil || i < 0 {
		return err
	}
	a.patients = append(a.patients[:i], a.patients[i+1:]...)
	return nil
}

// Count returns the number of matches
func (a *MemoryPatientAdapter) Count(ctx context.Context, filter repositories.Filter) (int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var n int64
	for _, p := range a.patients {
		ok, err := matchPatient(p, filter)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (a *MemoryPatientAdapter) indexOf(filter repositories.Filter) (int, error) {
	for i, p := range a.patients {
		ok, err := matchPatient(p, filter)
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

// MemoryVisitAdapter implements VisitRepository in process memory
type MemoryVisitAdapter struct {
	mu     sync.RWMutex
	visits []*entities.VisitRecord
}

// NewMemoryVisitAdapter creates an empty in-memory visit store
func NewMemoryVisitAdapter() *MemoryVisitAdapter {
	return &MemoryVisitAdapter{}
}

// Insert appends a visit record
func (a *MemoryVisitAdapter) Insert(ctx context.Context, visit *entities.VisitRecord) error {
	if visit.MRN == "" {
		return apperrors.NewValidationError("mrn is required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	stored := *visit
	a.visits = append(a.visits, &stored)
	return nil
}

// FindAll returns every visit matching filter in insertion order
func (a *MemoryVisitAdapter) FindAll(ctx context.Context, filter repositories.Filter) ([]*entities.VisitRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make([]*entities.VisitRecord, 0, len(a.visits))
	for _, v := range a.visits {
		ok, err := matchVisit(v, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			found := *v
			result = append(result, &found)
		}
	}
	return result, nil
}

// DeleteOne removes the first match
func (a *MemoryVisitAdapter) DeleteOne(ctx context.Context, filter repositories.Filter) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, v := range a.visits {
		ok, err := matchVisit(v, filter)
		if err != nil {
			return err
		}
		if ok {
			a.visits = append(a.visits[:i], a.visits[i+1:]...)
			return nil
		}
	}
	return nil
}

// Count returns the number of matches
func (a *MemoryVisitAdapter) Count(ctx context.Context, filter repositories.Filter) (int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var n int64
	for _, v := range a.visits {
		ok, err := matchVisit(v, filter)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}
