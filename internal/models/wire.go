package models

import "time"

// Structured error codes returned by the admission endpoint
const (
	CodeRestricted      = "RESTRICTED"
	CodeNotFound        = "NOT_FOUND"
	CodeValidationError = "VALIDATION_ERROR"
)

// CheckInRequest is the request body of the check-in endpoint.
// Exactly one subject reference must be present. With CheckOnly set the
// server reports admission status without recording anything.
type CheckInRequest struct {
	QRCodeData   string `json:"qrCodeData,omitempty"`
	EmployeeID   string `json:"employeeId,omitempty"`
	ContractorID string `json:"contractorId,omitempty"`
	CheckOnly    bool   `json:"checkOnly,omitempty"`
	SourceType   string `json:"sourceType,omitempty"`
	GuestCount   int    `json:"guestCount,omitempty"`
}

// Ref extracts the subject reference from the request
func (r CheckInRequest) Ref() SubjectRef {
	return SubjectRef{
		QRPayload:    r.QRCodeData,
		EmployeeID:   r.EmployeeID,
		ContractorID: r.ContractorID,
	}
}

// CheckStatusResponse is the check-only response
type CheckStatusResponse struct {
	AlreadyCheckedIn bool       `json:"alreadyCheckedIn"`
	EmployeeID       string     `json:"employeeId"`
	LastCheckInTime  *time.Time `json:"lastCheckInTime,omitempty"`
	CooldownEndsAt   *time.Time `json:"cooldownEndsAt,omitempty"`
	EntityType       string     `json:"entityType"`
}

// CheckInResponse is the commit response on success
type CheckInResponse struct {
	Success    bool      `json:"success"`
	VisitLog   *VisitLog `json:"visitLog,omitempty"`
	Data       *Subject  `json:"data,omitempty"`
	EntityType string    `json:"entityType"`
}

// ErrorResponse is the body of every non-2xx admission response.
// Code is the contract; Message is for humans only.
type ErrorResponse struct {
	Code            string     `json:"code"`
	Message         string     `json:"message"`
	EmployeeID      string     `json:"employeeId,omitempty"`
	LastCheckInTime *time.Time `json:"lastCheckInTime,omitempty"`
	CooldownEndsAt  *time.Time `json:"cooldownEndsAt,omitempty"`
	EntityType      string     `json:"entityType,omitempty"`
}
