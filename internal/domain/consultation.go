package domain

import (
	"time"
)

// ConsultationRequest is the structured record the intake flow collects.
// Each field is captured verbatim from one user turn; no format validation
// is applied at capture time (employees is free text, email and phone are
// not checked), matching the behavior of the public intake flow.
type ConsultationRequest struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Company      string    `json:"company"`
	Employees    string    `json:"employees"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	Requirements string    `json:"requirements"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsComplete reports whether all six intake fields have been captured.
func (r *ConsultationRequest) IsComplete() bool {
	return r.Name != "" && r.Company != "" && r.Employees != "" &&
		r.Phone != "" && r.Email != "" && r.Requirements != ""
}
