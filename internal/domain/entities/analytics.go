package entities

import "time"

// Weekdays lists the canonical Monday-first weekday order
var Weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// SeverityCounts tallies registrations per category
type SeverityCounts map[Category]int

// BucketGroup holds the registrations of one date that fall in one bucket
type BucketGroup struct {
	Bucket   TimeBucket             `json:"bucket"`
	Patients []*PatientRegistration `json:"patients"`
}

// DatePage is one page of the grouped-by-date view
type DatePage struct {
	Date     string        `json:"date"`
	Previous string        `json:"previous,omitempty"`
	Next     string        `json:"next,omitempty"`
	Dates    []string      `json:"dates"`
	Buckets  []BucketGroup `json:"buckets"`
	// Undated holds registrations whose arrival cannot be parsed. They
	// belong to no date, so every page carries them.
	Undated []*PatientRegistration `json:"undated"`
}

// TimeCount is one entry of the time-of-day histogram
type TimeCount struct {
	Time  string `json:"time"`
	Count int    `json:"count"`
}

// TimeHistogram counts registrations per minute of day
type TimeHistogram struct {
	Entries  []TimeCount `json:"entries"`
	PeakTime string      `json:"peakTime"`
}

// WeekdayStats is the aggregate for one weekday
type WeekdayStats struct {
	Weekday    string         `json:"weekday"`
	Total      int            `json:"total"`
	ByCategory SeverityCounts `json:"byCategory"`
}

// WeekdayBreakdown aggregates registrations by weekday
type WeekdayBreakdown struct {
	Days        []WeekdayStats `json:"days"`
	PeakWeekday string         `json:"peakWeekday"`
}

// Dashboard is the composite operations dashboard
type Dashboard struct {
	GeneratedAt    time.Time        `json:"generatedAt"`
	ActiveCount    int              `json:"activeCount"`
	CompletedCount int              `json:"completedCount"`
	SeverityCounts SeverityCounts   `json:"severityCounts"`
	Page           *DatePage        `json:"page"`
	Times          TimeHistogram    `json:"times"`
	Weekdays       WeekdayBreakdown `json:"weekdays"`
}
