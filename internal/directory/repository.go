package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDentistNotFound = errors.New("dentist not found")
	ErrPatientNotFound = errors.New("patient not found")
	ErrUserNotFound    = errors.New("user not found")
)

// Reader is the narrow view of the profile store the engine depends on.
type Reader interface {
	DentistByID(ctx context.Context, id uuid.UUID) (*Dentist, error)
	PatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	PatientByDNI(ctx context.Context, dni string) (*Patient, error)
	ListEmergencyAvailableDentists(ctx context.Context) ([]Dentist, error)
	ContactByUserID(ctx context.Context, userID uuid.UUID) (*Contact, error)
}

// PrefStore covers the one profile attribute the engine owns the write path
// for: the per-user push opt-outs it consumes.
type PrefStore interface {
	PrefsByUserID(ctx context.Context, userID uuid.UUID) (Prefs, error)
	UpdatePrefs(ctx context.Context, userID uuid.UUID, p Prefs) error
}
