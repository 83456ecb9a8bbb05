package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/providers"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/repositories"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/triage-dispatch/backend/pkg/errors"
)

// DefaultSessionTTL is how long an assignment marking stays live without the
// session polling NextForSession before the patient is handed back
const DefaultSessionTTL = 30 * time.Minute

// DispatchConfig configures a DispatchQueue
type DispatchConfig struct {
	Schedule   entities.BucketSchedule
	SessionTTL time.Duration
	Now        func() time.Time
}

// DispatchQueue hands active registrations to clinician sessions one at a
// time. The store is the source of truth: every decision re-reads and
// re-sorts the active set under mu, and every marking write is conditional
// on the marking just read so that instances sharing a store never hand one
// patient to two sessions. cursors caches which registration each session
// holds.
type DispatchQueue struct {
	mu       sync.Mutex
	patients repositories.PatientRepository
	visits   repositories.VisitRepository
	ledger   *BookingLedger
	events   providers.EventBus
	metrics  *observability.Metrics
	schedule entities.BucketSchedule
	ttl      time.Duration
	now      func() time.Time
	cursors  map[string]entities.RegistrationKey
}

// NewDispatchQueue creates a new dispatch queue. events and metrics may be nil.
func NewDispatchQueue(
	patients repositories.PatientRepository,
	visits repositories.VisitRepository,
	ledger *BookingLedger,
	events providers.EventBus,
	metrics *observability.Metrics,
	cfg DispatchConfig,
) *DispatchQueue {
	if cfg.Schedule == nil {
		cfg.Schedule = entities.DefaultBucketSchedule
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DispatchQueue{
		patients: patients,
		visits:   visits,
		ledger:   ledger,
		events:   events,
		metrics:  metrics,
		schedule: cfg.Schedule,
		ttl:      cfg.SessionTTL,
		now:      cfg.Now,
		cursors:  make(map[string]entities.RegistrationKey),
	}
}

// Schedule returns the bucket schedule used for ordering
func (q *DispatchQueue) Schedule() entities.BucketSchedule {
	return q.schedule
}

// NextForSession returns the registration currently assigned to sessionID,
// or assigns the first waiting registration in dispatch order. It returns
// nil when nothing is waiting. Each call refreshes the assignment marking,
// which keeps it live.
func (q *DispatchQueue) NextForSession(ctx context.Context, sessionID string) (*entities.PatientRegistration, error) {
	ctx, span := observability.StartSpan(ctx, "DispatchQueue.NextForSession")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	if strings.TrimSpace(sessionID) == "" {
		return nil, apperrors.NewValidationError("session id is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	stamp := entities.FormatTimestamp(now)

	current, err := q.current(ctx, sessionID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, apperrors.NewInternalError("failed to load current assignment", err)
	}
	if current != nil {
		matched, err := q.patients.UpdateOne(ctx, sessionFilter(current.Key(), sessionID), repositories.Patch{
			repositories.FieldAssignedAt: stamp,
		})
		if err != nil {
			observability.RecordError(span, err)
			return nil, apperrors.NewInternalError("failed to refresh assignment", err)
		}
		if matched > 0 {
			current.AssignedAt = stamp
			return current, nil
		}
		delete(q.cursors, sessionID)
	}

	active, err := q.activeSorted(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	for _, p := range active {
		if q.isHeld(p, now) {
			continue
		}

		// Claim only if the marking is still the one just read. A miss means
		// another instance claimed or refreshed it first.
		matched, err := q.patients.UpdateOne(ctx, markingFilter(p), repositories.Patch{
			repositories.FieldAssignedSession: sessionID,
			repositories.FieldAssignedAt:      stamp,
		})
		if err != nil {
			observability.RecordError(span, err)
			return nil, apperrors.NewInternalError("failed to mark assignment", err)
		}
		if matched == 0 {
			continue
		}

		if p.AssignedSession != "" {
			observability.LoggerFromContext(ctx).Warn().
				Str("session_id", p.AssignedSession).
				Str("mrn", p.MRN).
				Str("assigned_at", p.AssignedAt).
				Msg("Reclaimed stale assignment")
		}

		p.AssignedSession = sessionID
		p.AssignedAt = stamp
		q.cursors[sessionID] = p.Key()

		observability.RecordAssignment(ctx, q.metrics, p.Category)
		observability.LoggerFromContext(ctx).Info().
			Str("session_id", sessionID).
			Str("mrn", p.MRN).
			Str("arrival", p.ArrivalTimestamp).
			Str("category", string(p.Category)).
			Msg("Patient assigned")
		return p, nil
	}

	return nil, nil
}

// CompleteCurrent closes the session's current assignment: a visit record is
// appended, the registration removed and its booking slot released. A visit
// is written at most once per registration; if the registration cannot be
// removed the visit is taken back so a retry starts clean.
func (q *DispatchQueue) CompleteCurrent(ctx context.Context, sessionID, medicine, test string) (*entities.VisitRecord, error) {
	ctx, span := observability.StartSpan(ctx, "DispatchQueue.CompleteCurrent")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	q.mu.Lock()
	defer q.mu.Unlock()

	p, err := q.current(ctx, sessionID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, apperrors.NewInternalError("failed to load current assignment", err)
	}
	if p == nil {
		return nil, apperrors.NewNoAssignmentError(sessionID)
	}

	logger := observability.LoggerFromContext(ctx)
	registration := repositories.Filter{
		repositories.FieldMRN:              p.MRN,
		repositories.FieldArrivalTimestamp: p.ArrivalTimestamp,
	}

	existing, err := q.visits.FindAll(ctx, registration)
	if err != nil {
		observability.RecordError(span, err)
		return nil, apperrors.NewInternalError("failed to check visit history", err)
	}

	var visit *entities.VisitRecord
	inserted := false
	if len(existing) > 0 {
		// an earlier attempt recorded the visit and then failed to remove
		// the registration and to take the visit back
		visit = existing[0]
		logger.Warn().Str("mrn", p.MRN).Str("arrival", p.ArrivalTimestamp).Msg("Reusing visit from an earlier completion attempt")
	} else {
		visit = entities.NewVisitRecord(p, strings.TrimSpace(medicine), strings.TrimSpace(test), entities.FormatTimestamp(q.now()))
		if err := q.visits.Insert(ctx, visit); err != nil {
			observability.RecordError(span, err)
			return nil, apperrors.NewInternalError("failed to record visit", err)
		}
		inserted = true
	}

	if err := q.remove(ctx, p); err != nil {
		observability.RecordError(span, err)
		if inserted {
			undo := repositories.Filter{
				repositories.FieldMRN:                p.MRN,
				repositories.FieldArrivalTimestamp:   p.ArrivalTimestamp,
				repositories.FieldCompletedTimestamp: visit.CompletedTimestamp,
			}
			if derr := q.visits.DeleteOne(ctx, undo); derr != nil {
				logger.Error().Err(derr).Str("mrn", p.MRN).Msg("Failed to take back visit of an incomplete completion")
			}
		}
		return nil, apperrors.NewInternalError("failed to remove completed registration", err)
	}
	delete(q.cursors, sessionID)

	observability.RecordCompletion(ctx, q.metrics, p.Category)
	logger.Info().
		Str("session_id", sessionID).
		Str("mrn", p.MRN).
		Msg("Visit completed")
	return visit, nil
}

// UpdateSeverity changes the category of a registration by identity. The
// assignment is left untouched. Subscribers are notified after the write.
func (q *DispatchQueue) UpdateSeverity(ctx context.Context, mrn, arrival string, category entities.Category) (*entities.PatientRegistration, error) {
	ctx, span := observability.StartSpan(ctx, "DispatchQueue.UpdateSeverity")
	defer span.End()

	if !category.IsValid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid category %q", category))
	}

	key := entities.RegistrationKey{MRN: mrn, ArrivalTimestamp: arrival}

	updated, err := func() (*entities.PatientRegistration, error) {
		q.mu.Lock()
		defer q.mu.Unlock()

		matched, err := q.patients.UpdateOne(ctx, repositories.KeyFilter(key), repositories.Patch{
			repositories.FieldCategory: string(category),
			repositories.FieldColor:    entities.ColorFor(category),
		})
		if err != nil {
			return nil, apperrors.NewInternalError("failed to update severity", err)
		}
		if matched == 0 {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("registration %s not found", key))
		}

		p, err := q.patients.FindOne(ctx, repositories.KeyFilter(key))
		if err != nil {
			return nil, apperrors.NewInternalError("failed to reload registration", err)
		}
		if p == nil {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("registration %s not found", key))
		}
		return p, nil
	}()
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	observability.RecordSeverityUpdate(ctx, q.metrics, category)
	q.publish(ctx, entities.NewSeverityUpdatedEvent(key, category))
	return updated, nil
}

// Release hands the session's current patient back to the waiting set
func (q *DispatchQueue) Release(ctx context.Context, sessionID string) error {
	ctx, span := observability.StartSpan(ctx, "DispatchQueue.Release")
	defer span.End()

	q.mu.Lock()
	defer q.mu.Unlock()

	p, err := q.current(ctx, sessionID)
	if err != nil {
		observability.RecordError(span, err)
		return apperrors.NewInternalError("failed to load current assignment", err)
	}
	if p == nil {
		return apperrors.NewNoAssignmentError(sessionID)
	}

	if _, err := q.patients.UpdateOne(ctx, sessionFilter(p.Key(), sessionID), unmarkPatch()); err != nil {
		observability.RecordError(span, err)
		return apperrors.NewInternalError("failed to release assignment", err)
	}
	delete(q.cursors, sessionID)

	observability.LoggerFromContext(ctx).Info().
		Str("session_id", sessionID).
		Str("mrn", p.MRN).
		Msg("Assignment released")
	return nil
}

// Withdraw removes a registration that will not be seen, clearing any cursor
// bound to it and its booking slot. No visit record is written.
func (q *DispatchQueue) Withdraw(ctx context.Context, mrn, arrival string) error {
	ctx, span := observability.StartSpan(ctx, "DispatchQueue.Withdraw")
	defer span.End()

	key := entities.RegistrationKey{MRN: mrn, ArrivalTimestamp: arrival}

	q.mu.Lock()
	defer q.mu.Unlock()

	p, err := q.patients.FindOne(ctx, repositories.KeyFilter(key))
	if err != nil {
		observability.RecordError(span, err)
		return apperrors.NewInternalError("failed to load registration", err)
	}
	if p == nil {
		return apperrors.NewNotFoundError(fmt.Sprintf("registration %s not found", key))
	}

	if err := q.remove(ctx, p); err != nil {
		observability.RecordError(span, err)
		return apperrors.NewInternalError("failed to withdraw registration", err)
	}

	for sessionID, held := range q.cursors {
		if held == key {
			delete(q.cursors, sessionID)
		}
	}

	observability.LoggerFromContext(ctx).Info().Str("mrn", mrn).Str("arrival", arrival).Msg("Registration withdrawn")
	return nil
}

// Snapshot returns the active set in dispatch order with dispatch states
func (q *DispatchQueue) Snapshot(ctx context.Context) (*entities.QueueSnapshot, error) {
	ctx, span := observability.StartSpan(ctx, "DispatchQueue.Snapshot")
	defer span.End()

	q.mu.Lock()
	defer q.mu.Unlock()

	active, err := q.activeSorted(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	now := q.now()
	snapshot := &entities.QueueSnapshot{Entries: make([]entities.QueueEntry, 0, len(active))}
	for i, p := range active {
		state := p.State()
		if state == entities.DispatchStateAssigned && !q.isHeld(p, now) {
			state = entities.DispatchStateWaiting
		}
		if state == entities.DispatchStateAssigned {
			snapshot.Assigned++
		} else {
			snapshot.Waiting++
		}
		snapshot.Entries = append(snapshot.Entries, entities.QueueEntry{
			Position: i + 1,
			State:    state,
			Bucket:   q.schedule.BucketOf(p.ArrivalTimestamp),
			Patient:  p,
		})
	}
	return snapshot, nil
}

// ReleaseExpired hands back every assignment whose marking has not been
// refreshed for at least the session TTL and returns how many were released.
// Markings written by other instances sharing the store are included.
func (q *DispatchQueue) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	active, err := q.activeSorted(ctx)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, p := range active {
		if p.AssignedSession == "" || q.isFresh(p, now) {
			continue
		}
		matched, err := q.patients.UpdateOne(ctx, markingFilter(p), unmarkPatch())
		if err != nil {
			return released, apperrors.NewInternalError("failed to release expired assignment", err)
		}
		if matched == 0 {
			continue
		}
		if held, ok := q.cursors[p.AssignedSession]; ok && held == p.Key() {
			delete(q.cursors, p.AssignedSession)
		}
		released++

		observability.LoggerFromContext(ctx).Warn().
			Str("session_id", p.AssignedSession).
			Str("mrn", p.MRN).
			Str("assigned_at", p.AssignedAt).
			Msg("Session expired; patient returned to queue")
	}

	observability.RecordExpiredSessions(ctx, q.metrics, released)
	return released, nil
}

// StartExpirySweeper runs ReleaseExpired every interval. It blocks until ctx
// is done.
func (q *DispatchQueue) StartExpirySweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := observability.GetLogger()
	logger.Info().Dur("interval", interval).Dur("ttl", q.ttl).Msg("Session expiry sweeper started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Session expiry sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := q.ReleaseExpired(ctx, q.now()); err != nil {
				logger.Error().Err(err).Msg("Session expiry sweep failed")
			}
		}
	}
}

// Restore rebuilds session cursors from assignment markings in the store.
// A session marked on more than one registration keeps the first in
// dispatch order; the other markings are cleared.
func (q *DispatchQueue) Restore(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	active, err := q.activeSorted(ctx)
	if err != nil {
		return 0, err
	}

	q.cursors = make(map[string]entities.RegistrationKey)
	for _, p := range active {
		if p.AssignedSession == "" {
			continue
		}
		if _, exists := q.cursors[p.AssignedSession]; exists {
			if _, err := q.patients.UpdateOne(ctx, markingFilter(p), unmarkPatch()); err != nil {
				return len(q.cursors), apperrors.NewInternalError("failed to clear duplicate assignment", err)
			}
			continue
		}
		q.cursors[p.AssignedSession] = p.Key()
	}

	observability.GetLogger().Info().Int("sessions", len(q.cursors)).Msg("Dispatch cursors restored")
	return len(q.cursors), nil
}

// activeSorted reads every active registration and sorts it into dispatch
// order. Callers hold mu.
func (q *DispatchQueue) activeSorted(ctx context.Context) ([]*entities.PatientRegistration, error) {
	start := time.Now()
	active, err := q.patients.FindAll(ctx, nil)
	observability.RecordDBMetric(ctx, q.metrics, "patients.find_all", time.Since(start))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read active registrations", err)
	}
	SortForDispatch(q.schedule, active)
	return active, nil
}

// current returns the registration sessionID holds, or nil. A marking
// found in the store without a local cursor is adopted, so a session may
// move between instances. Callers hold mu.
func (q *DispatchQueue) current(ctx context.Context, sessionID string) (*entities.PatientRegistration, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, nil
	}

	if key, ok := q.cursors[sessionID]; ok {
		p, err := q.patients.FindOne(ctx, repositories.KeyFilter(key))
		if err != nil {
			return nil, err
		}
		if p != nil && p.AssignedSession == sessionID {
			return p, nil
		}
		delete(q.cursors, sessionID)
	}

	p, err := q.patients.FindOne(ctx, repositories.Filter{repositories.FieldAssignedSession: sessionID})
	if err != nil || p == nil {
		return nil, err
	}
	q.cursors[sessionID] = p.Key()
	return p, nil
}

// isHeld reports whether p may not be given to another session: it is bound
// to a local cursor, or its marking is younger than the TTL. A stale marking
// with no local cursor is left over from a lost session.
func (q *DispatchQueue) isHeld(p *entities.PatientRegistration, now time.Time) bool {
	if p.AssignedSession == "" {
		return false
	}
	if held, ok := q.cursors[p.AssignedSession]; ok && held == p.Key() {
		return true
	}
	return q.isFresh(p, now)
}

// isFresh reports whether p's marking was written or refreshed within the
// TTL. An unreadable marking time is never fresh.
func (q *DispatchQueue) isFresh(p *entities.PatientRegistration, now time.Time) bool {
	elapsed, err := entities.Elapsed(p.AssignedAt, now)
	if err != nil {
		return false
	}
	return elapsed < q.ttl
}

// markingFilter selects p only while its marking is unchanged
func markingFilter(p *entities.PatientRegistration) repositories.Filter {
	filter := repositories.KeyFilter(p.Key())
	filter[repositories.FieldAssignedSession] = p.AssignedSession
	filter[repositories.FieldAssignedAt] = p.AssignedAt
	return filter
}

// sessionFilter selects key only while sessionID holds it
func sessionFilter(key entities.RegistrationKey, sessionID string) repositories.Filter {
	filter := repositories.KeyFilter(key)
	filter[repositories.FieldAssignedSession] = sessionID
	return filter
}

func unmarkPatch() repositories.Patch {
	return repositories.Patch{
		repositories.FieldAssignedSession: "",
		repositories.FieldAssignedAt:      "",
	}
}

func (q *DispatchQueue) remove(ctx context.Context, p *entities.PatientRegistration) error {
	deleteOne := func() error {
		return q.patients.DeleteOne(ctx, repositories.KeyFilter(p.Key()))
	}
	if q.ledger == nil {
		return deleteOne()
	}
	return q.ledger.Release(p, deleteOne)
}

func (q *DispatchQueue) publish(ctx context.Context, event *entities.SeverityEvent) {
	if q.events == nil {
		return
	}
	if err := q.events.Publish(ctx, providers.EventChannelSeverityUpdates, event); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("mrn", event.MRN).Msg("Failed to publish severity update")
	}
}
