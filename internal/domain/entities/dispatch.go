package entities

// QueueEntry is one row of the ordered queue view
type QueueEntry struct {
	Position int                  `json:"position"`
	State    DispatchState        `json:"state"`
	Bucket   TimeBucket           `json:"bucket"`
	Patient  *PatientRegistration `json:"patient"`
}

// QueueSnapshot is the ordered active set at one instant
type QueueSnapshot struct {
	Entries  []QueueEntry `json:"entries"`
	Waiting  int          `json:"waiting"`
	Assigned int          `json:"assigned"`
}
