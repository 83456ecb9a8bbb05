package entities

// VisitRecord represents a completed clinician visit. It is written once when
// the visit completes and never changed afterwards.
type VisitRecord struct {
	MRN                string   `json:"mrn" bson:"mrn"`
	Name               string   `json:"name" bson:"name"`
	Complaint          string   `json:"complaint" bson:"complaint"`
	Medicine           string   `json:"medicine,omitempty" bson:"medicine"`
	Test               string   `json:"test,omitempty" bson:"test"`
	CompletedTimestamp string   `json:"completedTimestamp" bson:"completedTimestamp"`
	ArrivalTimestamp   string   `json:"arrivalTimestamp" bson:"arrivalTimestamp"`
	Category           Category `json:"category" bson:"category"`
}

// NewVisitRecord creates the visit record that closes a registration
func NewVisitRecord(p *PatientRegistration, medicine, test, completedAt string) *VisitRecord {
	return &VisitRecord{
		MRN:                p.MRN,
		Name:               p.Name,
		Complaint:          p.Complaint,
		Medicine:           medicine,
		Test:               test,
		CompletedTimestamp: completedAt,
		ArrivalTimestamp:   p.ArrivalTimestamp,
		Category:           p.Category,
	}
}
