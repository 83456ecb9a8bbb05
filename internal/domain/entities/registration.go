package entities

// RegistrationRequest carries intake form data for a new registration
type RegistrationRequest struct {
	MRN              string `json:"mrn,omitempty"`
	Name             string `json:"name"`
	Age              int    `json:"age"`
	Gender           string `json:"gender"`
	Complaint        string `json:"complaint"`
	Vitals           Vitals `json:"vitals"`
	ScheduledArrival string `json:"scheduledArrival,omitempty"`
	Category         string `json:"category,omitempty"`
}

// RegistrationResult is returned after a registration is stored
type RegistrationResult struct {
	Patient      *PatientRegistration `json:"patient"`
	DateFull     bool                 `json:"dateFull"`
	BookedOnDate int                  `json:"bookedOnDate"`
	VisitCount   int                  `json:"visitCount"`
	Degraded     bool                 `json:"degraded"`
}

// PatientHistory is what a returning patient lookup shows
type PatientHistory struct {
	MRN        string                 `json:"mrn"`
	Active     []*PatientRegistration `json:"active"`
	Visits     []*VisitRecord         `json:"visits"`
	VisitCount int                    `json:"visitCount"`
}

// DateAvailability reports booking capacity for one date
type DateAvailability struct {
	Date      string `json:"date"`
	Booked    int    `json:"booked"`
	Capacity  int    `json:"capacity"`
	Remaining int    `json:"remaining"`
	Full      bool   `json:"full"`
}
