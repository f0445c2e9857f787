package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Status values are part of the wire contract and must match exactly.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusScheduled Status = "SCHEDULED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

const (
	// DefaultDurationMinutes applies when a booking names no duration.
	DefaultDurationMinutes = 30

	// MinJustificationLen is the shortest acceptable cancellation reason for
	// an appointment the patient was already told is confirmed.
	MinJustificationLen = 5
)

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DentistID       uuid.UUID
	ServiceName     string
	Date            time.Time // calendar day; the time-of-day part is ignored
	TimeLabel       string    // slot label, e.g. "10:30 AM"
	DurationMinutes int
	Notes           string
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type edge struct {
	from, to Status
}

// transitionTable is the single source of truth for legal moves. Anything not
// listed is rejected before any write happens.
var transitionTable = map[edge]bool{
	{StatusPending, StatusScheduled}:   true,
	{StatusPending, StatusCancelled}:   true,
	{StatusScheduled, StatusCancelled}: true,
	{StatusScheduled, StatusCompleted}: true,
}

func TransitionAllowed(from, to Status) bool {
	return transitionTable[edge{from, to}]
}

// DateOnly strips the time-of-day part so calendar-day comparisons are exact.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
