package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/smilecare/dental-scheduling/internal/appointment"
	"github.com/smilecare/dental-scheduling/internal/identity"
)

func requestAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RequestAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		dentistID, err := uuid.Parse(req.DentistID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_dentist_id", "dentist_id must be a valid UUID")
			return
		}
		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		in := appointment.RequestInput{
			DentistID:   dentistID,
			ServiceName: req.Service,
			Date:        date,
			TimeLabel:   req.Time,
			Notes:       req.Notes,
		}
		if req.PatientID != "" {
			patientID, err := uuid.Parse(req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			in.PatientID = patientID
		}

		appt, err := svc.Request(r.Context(), identity.FromContext(r.Context()), in)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		appt, err := svc.Book(r.Context(), identity.FromContext(r.Context()), appointment.BookInput{
			PatientID:       patientID,
			ServiceName:     req.Service,
			Date:            date,
			TimeLabel:       req.Time,
			DurationMinutes: req.DurationMinutes,
			Notes:           req.Notes,
			Override:        req.Override,
			Justification:   req.Justification,
		})
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func approveAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req ApproveAppointmentRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		appt, err := svc.Approve(r.Context(), identity.FromContext(r.Context()), id, req.DurationMinutes)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req CancelAppointmentRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		appt, err := svc.Cancel(r.Context(), identity.FromContext(r.Context()), id, req.Justification)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		if !mayViewAppointment(identity.FromContext(r.Context()), appt) {
			writeError(w, http.StatusForbidden, "forbidden", "appointment belongs to another user")
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// listAppointmentsHandler returns the caller's own appointments: a dentist's
// agenda or a patient's history.
func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := identity.FromContext(r.Context())
		limit := queryInt(r, "limit", 20)
		offset := queryInt(r, "offset", 0)

		var (
			appts []appointment.Appointment
			err   error
		)
		switch {
		case actor.IsDentist():
			appts, err = svc.ListForDentist(r.Context(), actor.DentistID, limit, offset)
		case actor.IsPatient():
			appts, err = svc.ListForPatient(r.Context(), actor.PatientID, limit, offset)
		default:
			writeError(w, http.StatusForbidden, "forbidden", "no profile attached to this user")
			return
		}
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			out = append(out, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// dentistScheduleHandler renders the half-hour grid with occupancy for one
// dentist-day, so clients can offer the remaining slots.
func dentistScheduleHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dentistID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_dentist_id", "id must be a valid UUID")
			return
		}
		date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date query parameter must be YYYY-MM-DD")
			return
		}

		slots, err := svc.ScheduleForDay(r.Context(), dentistID, date)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, slots)
	}
}

func mayViewAppointment(actor identity.Actor, a *appointment.Appointment) bool {
	if actor.IsDentist() {
		return a.DentistID == actor.DentistID
	}
	if actor.IsPatient() {
		return a.PatientID == actor.PatientID
	}
	return false
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
