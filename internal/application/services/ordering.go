package services

import (
	"sort"

	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
)

// Sentinel key parts for registrations whose arrival cannot be parsed, so
// they sort after every well-formed registration.
const (
	sentinelDate         = "9999-12-31"
	sentinelBucketRank   = 99
	sentinelSeverityRank = 99
)

// dispatchKey is the total order over active registrations
type dispatchKey struct {
	date         string
	bucketRank   int
	severityRank int
	raw          string
}

func keyFor(schedule entities.BucketSchedule, p *entities.PatientRegistration) dispatchKey {
	date, ok := p.ArrivalDate()
	if !ok {
		return dispatchKey{
			date:         sentinelDate,
			bucketRank:   sentinelBucketRank,
			severityRank: sentinelSeverityRank,
			raw:          p.ArrivalTimestamp,
		}
	}
	return dispatchKey{
		date:         date,
		bucketRank:   schedule.BucketOf(p.ArrivalTimestamp).Rank(),
		severityRank: p.Category.Rank(),
		raw:          p.ArrivalTimestamp,
	}
}

func (k dispatchKey) less(o dispatchKey) bool {
	if k.date != o.date {
		return k.date < o.date
	}
	if k.bucketRank != o.bucketRank {
		return k.bucketRank < o.bucketRank
	}
	if k.severityRank != o.severityRank {
		return k.severityRank < o.severityRank
	}
	return k.raw < o.raw
}

// SortForDispatch stably sorts registrations by (arrival date, time bucket
// rank, severity rank, raw arrival timestamp)
func SortForDispatch(schedule entities.BucketSchedule, patients []*entities.PatientRegistration) {
	keys := make(map[*entities.PatientRegistration]dispatchKey, len(patients))
	for _, p := range patients {
		keys[p] = keyFor(schedule, p)
	}
	sort.SliceStable(patients, func(i, j int) bool {
		return keys[patients[i]].less(keys[patients[j]])
	})
}
