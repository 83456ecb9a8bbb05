package entities

import (
	"fmt"
	"strconv"
	"strings"
)

// TimeBucket is a fixed segment of the day
type TimeBucket string

const (
	BucketMorning   TimeBucket = "Morning"
	BucketAfternoon TimeBucket = "Afternoon"
	BucketEvening   TimeBucket = "Evening"
	BucketLateNight TimeBucket = "LateNight"
	BucketOther     TimeBucket = "Other"
)

// BucketOrder is the fixed total order of buckets. It doubles as the
// tie-break rank in dispatch ordering.
var BucketOrder = []TimeBucket{BucketMorning, BucketAfternoon, BucketEvening, BucketLateNight, BucketOther}

// Rank returns the position of b in BucketOrder, starting at 1
func (b TimeBucket) Rank() int {
	for i, candidate := range BucketOrder {
		if candidate == b {
			return i + 1
		}
	}
	return len(BucketOrder)
}

// HourRange maps the half-open hour interval [Start, End) to a bucket
type HourRange struct {
	Bucket TimeBucket
	Start  int
	End    int
}

// BucketSchedule assigns hours to buckets. Hours not covered by any range
// belong to BucketOther.
type BucketSchedule []HourRange

// DefaultBucketSchedule leaves 12:00-13:00 and 16:00-17:00 uncovered, so
// those hours fall into BucketOther.
var DefaultBucketSchedule = BucketSchedule{
	{Bucket: BucketMorning, Start: 9, End: 12},
	{Bucket: BucketAfternoon, Start: 13, End: 16},
	{Bucket: BucketEvening, Start: 17, End: 21},
	{Bucket: BucketLateNight, Start: 21, End: 24},
}

// BucketOfHour returns the bucket containing hour
func (s BucketSchedule) BucketOfHour(hour int) TimeBucket {
	for _, r := range s {
		if hour >= r.Start && hour < r.End {
			return r.Bucket
		}
	}
	return BucketOther
}

// BucketOf returns the bucket for a persisted timestamp. Unparseable input
// maps to BucketOther.
func (s BucketSchedule) BucketOf(timestamp string) TimeBucket {
	t, err := ParseTimestamp(timestamp)
	if err != nil {
		return BucketOther
	}
	return s.BucketOfHour(t.Hour())
}

// String renders the schedule in the same form ParseBucketSchedule accepts
func (s BucketSchedule) String() string {
	parts := make([]string, 0, len(s))
	for _, r := range s {
		parts = append(parts, fmt.Sprintf("%s=%d-%d", r.Bucket, r.Start, r.End))
	}
	return strings.Join(parts, ",")
}

// ParseBucketSchedule parses "Morning=9-12,Afternoon=13-16,..." into a
// schedule. An empty string yields DefaultBucketSchedule.
func ParseBucketSchedule(raw string) (BucketSchedule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultBucketSchedule, nil
	}

	var schedule BucketSchedule
	for _, part := range strings.Split(raw, ",") {
		name, hours, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("invalid bucket range %q: expected Name=start-end", part)
		}

		bucket := TimeBucket(strings.TrimSpace(name))
		if bucket == BucketOther || bucket.Rank() == len(BucketOrder) {
			return nil, fmt.Errorf("invalid bucket name %q", name)
		}

		startStr, endStr, ok := strings.Cut(hours, "-")
		if !ok {
			return nil, fmt.Errorf("invalid hours %q for bucket %s", hours, bucket)
		}
		start, err := strconv.Atoi(strings.TrimSpace(startStr))
		if err != nil {
			return nil, fmt.Errorf("invalid start hour for bucket %s: %w", bucket, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(endStr))
		if err != nil {
			return nil, fmt.Errorf("invalid end hour for bucket %s: %w", bucket, err)
		}
		if start < 0 || end > 24 || start >= end {
			return nil, fmt.Errorf("invalid hour range %d-%d for bucket %s", start, end, bucket)
		}

		schedule = append(schedule, HourRange{Bucket: bucket, Start: start, End: end})
	}

	return schedule, nil
}
