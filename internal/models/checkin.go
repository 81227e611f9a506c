package models

import (
	"errors"
	"fmt"
	"time"
)

// Entity type constants matching the backend entityType field
const (
	EntityEmployee   = "employee"
	EntityContractor = "contractor"
)

// Source type constants for how a check-in was initiated
const (
	SourceQR     = "QR"
	SourceManual = "manual"
)

// Queue entry status constants
const (
	QueueStatusPending = "pending"
	QueueStatusFailed  = "failed"
)

// ContractorIDPrefix synthesizes a stable subject id for contractors,
// who have no employee id of their own.
const ContractorIDPrefix = "CONTRACTOR_"

// Subject is an employee or contractor eligible to check in
type Subject struct {
	SubjectID  string  `json:"subjectId"`
	Name       string  `json:"name"`
	Department *string `json:"department,omitempty"`
	EntityType string  `json:"entityType"`
}

// SubjectRef identifies the subject of a check-in attempt.
// Exactly one of the three fields must be populated.
type SubjectRef struct {
	QRPayload    string `json:"qrCodeData,omitempty"`
	EmployeeID   string `json:"employeeId,omitempty"`
	ContractorID string `json:"contractorId,omitempty"`
}

// ErrInvalidSubjectRef is returned when a ref does not carry exactly one identifier
var ErrInvalidSubjectRef = errors.New("exactly one of qrCodeData, employeeId or contractorId must be set")

// Validate checks that exactly one identifier is populated
func (r SubjectRef) Validate() error {
	set := 0
	if r.QRPayload != "" {
		set++
	}
	if r.EmployeeID != "" {
		set++
	}
	if r.ContractorID != "" {
		set++
	}
	if set != 1 {
		return ErrInvalidSubjectRef
	}
	return nil
}

// Key returns the resolved subject identity used for dedupe, in-flight
// guarding and local cooldown records. QR payloads carry the subject id
// directly, so all three forms collapse to the same key space.
func (r SubjectRef) Key() string {
	switch {
	case r.EmployeeID != "":
		return r.EmployeeID
	case r.ContractorID != "":
		return ContractorIDPrefix + r.ContractorID
	default:
		return r.QRPayload
	}
}

// QueuedCheckIn represents one not-yet-confirmed check-in attempt
// persisted in the pending queue.
type QueuedCheckIn struct {
	ID         string     `json:"id"`
	Ref        SubjectRef `json:"ref"`
	SourceType string     `json:"sourceType"`
	GuestCount int        `json:"guestCount"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
	Status     string     `json:"status"`
	LastError  *string    `json:"lastError,omitempty"`
}

// NewQueuedCheckIn builds a queue entry with a stable client-generated id
// derived from the subject identity and the submission timestamp.
func NewQueuedCheckIn(ref SubjectRef, sourceType string, guestCount int, at time.Time) QueuedCheckIn {
	return QueuedCheckIn{
		ID:         fmt.Sprintf("%s-%d", ref.Key(), at.UnixMilli()),
		Ref:        ref,
		SourceType: sourceType,
		GuestCount: guestCount,
		EnqueuedAt: at,
		Status:     QueueStatusPending,
	}
}

// LocalCheckInRecord is a lightweight local history entry used to
// approximate the cooldown check while offline.
type LocalCheckInRecord struct {
	SubjectID  string    `json:"subjectId"`
	SourceType string    `json:"sourceType"`
	Timestamp  time.Time `json:"timestamp"`
}

// VisitLog is a server-side record of one accepted check-in
type VisitLog struct {
	ID         int64     `json:"id"`
	SubjectID  string    `json:"subjectId"`
	SourceType string    `json:"sourceType"`
	GuestCount int       `json:"guestCount"`
	VisitedAt  time.Time `json:"visitedAt"`
}
