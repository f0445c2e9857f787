package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrConflictChanged means the conflicting appointment lost its SCHEDULED
	// status between the occupancy check and the override write. The caller
	// should retry the booking; state was rolled back.
	ErrConflictChanged = errors.New("conflicting appointment changed state")
)

// Repository contains all DB interactions the service needs. Every status
// mutation is a conditional write guarded on the expected current status.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListForDentistDay returns all appointments for one dentist on one
	// calendar day, any status. Occupancy is computed in memory.
	ListForDentistDay(ctx context.Context, dentistID uuid.UUID, date time.Time) ([]Appointment, error)
	ListByDentist(ctx context.Context, dentistID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Schedule moves PENDING to SCHEDULED and fixes the duration in the same
	// conditional write. Zero rows affected surfaces as ErrAppointmentNotFound.
	Schedule(ctx context.Context, id uuid.UUID, durationMinutes int) (*Appointment, error)

	// CancelFrom moves `from` to CANCELLED and appends the note to the audit
	// trail. Zero rows affected surfaces as ErrAppointmentNotFound.
	CancelFrom(ctx context.Context, id uuid.UUID, from Status, note string) (*Appointment, error)

	// ReplaceBooking cancels the conflicting SCHEDULED appointment (appending
	// the override justification) and creates the replacement as SCHEDULED,
	// atomically. Returns ErrConflictChanged when the conflict row is no
	// longer SCHEDULED; nothing is written in that case.
	ReplaceBooking(ctx context.Context, conflictID uuid.UUID, justification string, replacement *Appointment) error

	// CompleteStale promotes every SCHEDULED appointment dated strictly
	// before the given day to COMPLETED and reports how many rows changed.
	CompleteStale(ctx context.Context, before time.Time) (int64, error)
}
