package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zatekoja/triage-dispatch/backend/internal/application/services"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
)

func mrns(patients []*entities.PatientRegistration) []string {
	out := make([]string, len(patients))
	for i, p := range patients {
		out[i] = p.MRN
	}
	return out
}

func TestSortForDispatch(t *testing.T) {
	schedule := entities.DefaultBucketSchedule

	t.Run("date then bucket then severity then time", func(t *testing.T) {
		patients := []*entities.PatientRegistration{
			newPatient("tomorrow-critical", "2024-03-05 09:00:00", entities.CategoryCritical, true),
			newPatient("afternoon-critical", "2024-03-04 14:00:00", entities.CategoryCritical, false),
			newPatient("morning-low", "2024-03-04 09:05:00", entities.CategoryLow, false),
			newPatient("morning-critical-late", "2024-03-04 11:30:00", entities.CategoryCritical, false),
			newPatient("morning-critical-early", "2024-03-04 10:00:00", entities.CategoryCritical, false),
			newPatient("lunch-critical", "2024-03-04 12:30:00", entities.CategoryCritical, false),
		}

		services.SortForDispatch(schedule, patients)

		assert.Equal(t, []string{
			"morning-critical-early",
			"morning-critical-late",
			"morning-low",
			"afternoon-critical",
			"lunch-critical",
			"tomorrow-critical",
		}, mrns(patients))
	})

	t.Run("unparseable arrivals sort last in raw order", func(t *testing.T) {
		patients := []*entities.PatientRegistration{
			newPatient("bad-b", "not a time", entities.CategoryCritical, false),
			newPatient("ok", "2031-01-01 23:00:00", entities.CategoryLow, false),
			newPatient("bad-a", "garbage", entities.CategoryCritical, false),
		}

		services.SortForDispatch(schedule, patients)

		assert.Equal(t, []string{"ok", "bad-a", "bad-b"}, mrns(patients))
	})

	t.Run("equal keys keep input order", func(t *testing.T) {
		patients := []*entities.PatientRegistration{
			newPatient("first", "2024-03-04 09:00:00", entities.CategoryLow, false),
			newPatient("second", "2024-03-04 09:00:00", entities.CategoryLow, false),
		}

		services.SortForDispatch(schedule, patients)

		assert.Equal(t, []string{"first", "second"}, mrns(patients))
	})

	t.Run("custom schedule", func(t *testing.T) {
		custom, err := entities.ParseBucketSchedule("Morning=6-12,Afternoon=12-18")
		assert.NoError(t, err)

		early := newPatient("early", "2024-03-04 07:00:00", entities.CategoryLow, false)
		noon := newPatient("noon", "2024-03-04 12:30:00", entities.CategoryCritical, false)

		patients := []*entities.PatientRegistration{noon, early}
		services.SortForDispatch(custom, patients)
		assert.Equal(t, []string{"early", "noon"}, mrns(patients))

		services.SortForDispatch(schedule, patients)
		assert.Equal(t, []string{"noon", "early"}, mrns(patients))
	})
}
