package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/smilecare/dental-scheduling/internal/appointment"
	"github.com/smilecare/dental-scheduling/internal/emergency"
)

const dateLayout = "2006-01-02"

type RequestAppointmentRequest struct {
	PatientID string `json:"patient_id,omitempty"`
	DentistID string `json:"dentist_id"`
	Service   string `json:"service"`
	Date      string `json:"date"` // YYYY-MM-DD
	Time      string `json:"time"` // slot label, e.g. "10:30 AM"
	Notes     string `json:"notes,omitempty"`
}

type BookAppointmentRequest struct {
	PatientID       string `json:"patient_id"`
	Service         string `json:"service"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Notes           string `json:"notes,omitempty"`
	Override        bool   `json:"override,omitempty"`
	Justification   string `json:"justification,omitempty"`
}

type ApproveAppointmentRequest struct {
	DurationMinutes int `json:"duration_minutes,omitempty"`
}

type CancelAppointmentRequest struct {
	Justification string `json:"justification,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	DentistID       uuid.UUID `json:"dentist_id"`
	Service         string    `json:"service"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           string    `json:"notes,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		DentistID:       a.DentistID,
		Service:         a.ServiceName,
		Date:            a.Date.Format(dateLayout),
		Time:            a.TimeLabel,
		DurationMinutes: a.DurationMinutes,
		Notes:           a.Notes,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt,
	}
}

// TargetDentistID accepts a dentist UUID, or "ALL"/empty for a broadcast to
// every dentist available for emergencies.
type CreateEmergencyRequest struct {
	Name            string `json:"name"`
	DNI             string `json:"dni,omitempty"`
	Phone           string `json:"phone"`
	Description     string `json:"description"`
	TargetDentistID string `json:"target_dentist_id,omitempty"`
}

type EmergencyResponse struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	DNI               string     `json:"dni,omitempty"`
	Phone             string     `json:"phone"`
	Description       string     `json:"description"`
	PatientID         *uuid.UUID `json:"patient_id,omitempty"`
	TargetDentistID   *uuid.UUID `json:"target_dentist_id,omitempty"`
	AssignedDentistID *uuid.UUID `json:"assigned_dentist_id,omitempty"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toEmergencyResponse(e *emergency.Emergency) EmergencyResponse {
	return EmergencyResponse{
		ID:                e.ID,
		Name:              e.RequesterName,
		DNI:               e.DNI,
		Phone:             e.Phone,
		Description:       e.Description,
		PatientID:         e.PatientID,
		TargetDentistID:   e.TargetDentistID,
		AssignedDentistID: e.AssignedDentistID,
		Status:            string(e.Status),
		CreatedAt:         e.CreatedAt,
	}
}

type NotificationResponse struct {
	ID        uuid.UUID `json:"id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type UnreadCountResponse struct {
	Unread int64 `json:"unread"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
