package notify

import (
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryAppointment Category = "appointment"
	CategoryEmergency   Category = "emergency"
	CategoryGeneric     Category = "generic"
)

// Kind identifies the lifecycle transition behind an event. The string value
// doubles as the realtime event name and the message catalog key.
type Kind string

const (
	KindAppointmentRequested Kind = "appointment_requested"
	KindAppointmentApproved  Kind = "appointment_approved"
	KindAppointmentCancelled Kind = "appointment_cancelled"
	KindEmergencyCreated     Kind = "emergency_created"
	KindEmergencyClaimed     Kind = "emergency_claimed"
	KindEmergencyCancelled   Kind = "emergency_cancelled"
	KindEmergencyFinished    Kind = "emergency_finished"
)

type Notification struct {
	ID          uuid.UUID
	RecipientID uuid.UUID
	Category    Category
	Title       string
	Message     string
	Link        string
	Read        bool
	CreatedAt   time.Time
}

// Event is one lifecycle transition to fan out. Recipients are user ids; the
// fanout resolves contact details and preferences itself.
type Event struct {
	Kind       Kind
	Category   Category
	Link       string
	Params     map[string]string
	Recipients []uuid.UUID

	// TextAlert additionally attempts a best-effort out-of-band text message
	// to each recipient's phone. Used for emergency broadcasts.
	TextAlert bool
}

// Topic returns the realtime topic for the event category.
func (c Category) Topic() string {
	switch c {
	case CategoryAppointment:
		return "appointments"
	case CategoryEmergency:
		return "emergencies"
	default:
		return "notifications"
	}
}
