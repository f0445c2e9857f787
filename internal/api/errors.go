package api

import (
	"errors"
	"net/http"

	"github.com/smilecare/dental-scheduling/internal/appointment"
	"github.com/smilecare/dental-scheduling/internal/directory"
	"github.com/smilecare/dental-scheduling/internal/emergency"
	"github.com/smilecare/dental-scheduling/internal/notify"
	redisclient "github.com/smilecare/dental-scheduling/internal/redis"
)

func handleAppointmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, appointment.ErrSlotOccupied):
		writeError(w, http.StatusConflict, "slot_occupied", err.Error())
	case errors.Is(err, appointment.ErrSlotBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrConflictChanged):
		writeError(w, http.StatusConflict, "booking_conflict_retry", "the conflicting appointment changed state, please retry")
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, directory.ErrDentistNotFound),
		errors.Is(err, directory.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "profile_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleEmergencyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, emergency.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, emergency.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, emergency.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, "already_claimed", "another dentist already took this emergency")
	case errors.Is(err, emergency.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, emergency.ErrEmergencyNotFound):
		writeError(w, http.StatusNotFound, "emergency_not_found", err.Error())
	case errors.Is(err, directory.ErrDentistNotFound),
		errors.Is(err, directory.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "profile_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleNotificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notify.ErrNotificationNotFound):
		writeError(w, http.StatusNotFound, "notification_not_found", err.Error())
	case errors.Is(err, directory.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
