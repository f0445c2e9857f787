package directory

import (
	"time"

	"github.com/google/uuid"
)

// Profile data is owned by the excluded profile subsystem. The engine reads
// names for message interpolation, phones and device tokens for dispatch, and
// the emergency-availability flag for broadcast routing. It never writes any
// of it except the notification preference flags, which belong to the engine's
// own consumers.

type Dentist struct {
	ID                    uuid.UUID
	UserID                uuid.UUID
	Name                  string
	Phone                 string
	Specialty             string
	AvailableForEmergency bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Patient struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	DNI       string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Prefs are per-user opt-outs. Only the push channel honors them.
type Prefs struct {
	MuteEmergencies   bool `json:"mute_emergencies"`
	MuteAppointments  bool `json:"mute_appointments"`
	MuteStatusChanges bool `json:"mute_status_changes"`
}

// Contact is everything the dispatch fanout needs to reach one user.
type Contact struct {
	UserID    uuid.UUID
	Name      string
	Phone     string
	PushToken string
	Locale    string
	Prefs     Prefs
}
