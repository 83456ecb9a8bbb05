package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/repositories"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/triage-dispatch/backend/pkg/errors"
)

// AnalyticsService computes dashboard aggregates. Nothing is cached: every
// call reads the store.
type AnalyticsService struct {
	patients repositories.PatientRepository
	visits   repositories.VisitRepository
	schedule entities.BucketSchedule
	now      func() time.Time
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(
	patients repositories.PatientRepository,
	visits repositories.VisitRepository,
	schedule entities.BucketSchedule,
) *AnalyticsService {
	if schedule == nil {
		schedule = entities.DefaultBucketSchedule
	}
	return &AnalyticsService{
		patients: patients,
		visits:   visits,
		schedule: schedule,
		now:      time.Now,
	}
}

// SeverityCounts tallies active registrations per category
func (s *AnalyticsService) SeverityCounts(ctx context.Context) (entities.SeverityCounts, error) {
	active, err := s.active(ctx)
	if err != nil {
		return nil, err
	}
	return severityCounts(active), nil
}

// GroupByDate returns one date page of active registrations grouped by time
// bucket. An empty date selects the earliest date; a date with no
// registrations selects the next date present, or the last one.
func (s *AnalyticsService) GroupByDate(ctx context.Context, date string) (*entities.DatePage, error) {
	if date != "" {
		if _, err := time.Parse(entities.DateLayout, date); err != nil {
			return nil, apperrors.NewValidationError(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date))
		}
	}

	active, err := s.active(ctx)
	if err != nil {
		return nil, err
	}
	return groupByDate(s.schedule, active, date), nil
}

// TimeHistogram counts active registrations per minute of day
func (s *AnalyticsService) TimeHistogram(ctx context.Context) (entities.TimeHistogram, error) {
	active, err := s.active(ctx)
	if err != nil {
		return entities.TimeHistogram{}, err
	}
	return timeHistogram(active), nil
}

// WeekdayBreakdown aggregates active registrations and visit history by
// weekday
func (s *AnalyticsService) WeekdayBreakdown(ctx context.Context) (entities.WeekdayBreakdown, error) {
	active, err := s.active(ctx)
	if err != nil {
		return entities.WeekdayBreakdown{}, err
	}
	visits, err := s.visits.FindAll(ctx, nil)
	if err != nil {
		return entities.WeekdayBreakdown{}, apperrors.NewInternalError("failed to read visit history", err)
	}
	return weekdayBreakdown(active, visits), nil
}

// Dashboard composes every aggregate from a single read of the store
func (s *AnalyticsService) Dashboard(ctx context.Context, date string) (*entities.Dashboard, error) {
	ctx, span := observability.StartSpan(ctx, "AnalyticsService.Dashboard")
	defer span.End()

	if date != "" {
		if _, err := time.Parse(entities.DateLayout, date); err != nil {
			return nil, apperrors.NewValidationError(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date))
		}
	}

	active, err := s.active(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	visits, err := s.visits.FindAll(ctx, nil)
	if err != nil {
		observability.RecordError(span, err)
		return nil, apperrors.NewInternalError("failed to read visit history", err)
	}

	return &entities.Dashboard{
		GeneratedAt:    s.now(),
		ActiveCount:    len(active),
		CompletedCount: len(visits),
		SeverityCounts: severityCounts(active),
		Page:           groupByDate(s.schedule, active, date),
		Times:          timeHistogram(active),
		Weekdays:       weekdayBreakdown(active, visits),
	}, nil
}

func (s *AnalyticsService) active(ctx context.Context) ([]*entities.PatientRegistration, error) {
	active, err := s.patients.FindAll(ctx, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to read active registrations", err)
	}
	SortForDispatch(s.schedule, active)
	return active, nil
}

func severityCounts(active []*entities.PatientRegistration) entities.SeverityCounts {
	counts := make(entities.SeverityCounts, len(entities.Categories))
	for _, c := range entities.Categories {
		counts[c] = 0
	}
	for _, p := range active {
		counts[p.Category]++
	}
	return counts
}

// groupByDate expects active in dispatch order
func groupByDate(schedule entities.BucketSchedule, active []*entities.PatientRegistration, requested string) *entities.DatePage {
	byDate := make(map[string][]*entities.PatientRegistration)
	undated := []*entities.PatientRegistration{}
	for _, p := range active {
		date, ok := p.ArrivalDate()
		if !ok {
			undated = append(undated, p)
			continue
		}
		byDate[date] = append(byDate[date], p)
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	page := &entities.DatePage{Dates: dates, Undated: undated}
	if len(dates) == 0 {
		page.Date = requested
		page.Buckets = emptyBuckets()
		return page
	}

	idx := 0
	if requested != "" {
		idx = sort.SearchStrings(dates, requested)
		if idx == len(dates) {
			idx = len(dates) - 1
		}
	}

	page.Date = dates[idx]
	if idx > 0 {
		page.Previous = dates[idx-1]
	}
	if idx < len(dates)-1 {
		page.Next = dates[idx+1]
	}

	page.Buckets = emptyBuckets()
	for _, p := range byDate[page.Date] {
		bucket := schedule.BucketOf(p.ArrivalTimestamp)
		i := bucket.Rank() - 1
		page.Buckets[i].Patients = append(page.Buckets[i].Patients, p)
	}
	return page
}

func emptyBuckets() []entities.BucketGroup {
	groups := make([]entities.BucketGroup, len(entities.BucketOrder))
	for i, b := range entities.BucketOrder {
		groups[i] = entities.BucketGroup{Bucket: b, Patients: []*entities.PatientRegistration{}}
	}
	return groups
}

// timeHistogram expects active in dispatch order; entries keep first-seen
// order so the peak tie-break is the first key encountered
func timeHistogram(active []*entities.PatientRegistration) entities.TimeHistogram {
	hist := entities.TimeHistogram{Entries: []entities.TimeCount{}}
	index := make(map[string]int)

	for _, p := range active {
		t, err := entities.ParseTimestamp(p.ArrivalTimestamp)
		if err != nil {
			continue
		}
		minute := t.Format("15:04")
		if i, ok := index[minute]; ok {
			hist.Entries[i].Count++
			continue
		}
		index[minute] = len(hist.Entries)
		hist.Entries = append(hist.Entries, entities.TimeCount{Time: minute, Count: 1})
	}

	best := 0
	for _, e := range hist.Entries {
		if e.Count > best {
			best = e.Count
			hist.PeakTime = e.Time
		}
	}
	return hist
}

func weekdayBreakdown(active []*entities.PatientRegistration, visits []*entities.VisitRecord) entities.WeekdayBreakdown {
	stats := make(map[time.Weekday]*entities.WeekdayStats, len(entities.Weekdays))
	for _, d := range entities.Weekdays {
		byCategory := make(entities.SeverityCounts, len(entities.Categories))
		for _, c := range entities.Categories {
			byCategory[c] = 0
		}
		stats[d] = &entities.WeekdayStats{Weekday: d.String(), ByCategory: byCategory}
	}

	add := func(timestamp string, category entities.Category) {
		t, err := entities.ParseTimestamp(timestamp)
		if err != nil {
			return
		}
		day := stats[t.Weekday()]
		day.Total++
		if category.IsValid() {
			day.ByCategory[category]++
		}
	}

	for _, p := range active {
		add(p.ArrivalTimestamp, p.Category)
	}
	for _, v := range visits {
		ts := v.ArrivalTimestamp
		if strings.TrimSpace(ts) == "" {
			ts = v.CompletedTimestamp
		}
		add(ts, v.Category)
	}

	breakdown := entities.WeekdayBreakdown{
		Days:        make([]entities.WeekdayStats, 0, len(entities.Weekdays)),
		PeakWeekday: entities.Weekdays[0].String(),
	}
	best := 0
	for _, d := range entities.Weekdays {
		day := stats[d]
		breakdown.Days = append(breakdown.Days, *day)
		if day.Total > best {
			best = day.Total
			breakdown.PeakWeekday = day.Weekday
		}
	}
	return breakdown
}
