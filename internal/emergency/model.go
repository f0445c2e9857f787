package emergency

import (
	"time"

	"github.com/google/uuid"
)

// Status values are part of the wire contract and must match exactly.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusCancelled Status = "CANCELLED"
	StatusFinished  Status = "FINISHED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusCancelled, StatusFinished:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusFinished
}

// Emergency is an urgent-care request. AssignedDentistID is non-nil exactly
// while status is APPROVED or FINISHED; cancelling an APPROVED emergency
// releases the claim back to nil.
type Emergency struct {
	ID                uuid.UUID
	RequesterName     string
	DNI               string
	Phone             string
	Description       string
	PatientID         *uuid.UUID // set when the DNI matched a known patient
	TargetDentistID   *uuid.UUID // nil means broadcast to all available dentists
	AssignedDentistID *uuid.UUID
	Status            Status
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Broadcast reports whether the request goes to every available dentist
// rather than one named target.
func (e *Emergency) Broadcast() bool {
	return e.TargetDentistID == nil
}
