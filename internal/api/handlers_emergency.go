package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/smilecare/dental-scheduling/internal/emergency"
	"github.com/smilecare/dental-scheduling/internal/identity"
)

// createEmergencyHandler is deliberately public: someone in pain may not have
// an account yet. The DNI, when present, binds the request to a patient.
func createEmergencyHandler(svc *emergency.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateEmergencyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in := emergency.CreateInput{
			RequesterName: req.Name,
			DNI:           req.DNI,
			Phone:         req.Phone,
			Description:   req.Description,
		}
		if target := strings.TrimSpace(req.TargetDentistID); target != "" && !strings.EqualFold(target, "ALL") {
			id, err := uuid.Parse(target)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_target_dentist_id", `target_dentist_id must be a UUID or "ALL"`)
				return
			}
			in.TargetDentistID = &id
		}

		e, err := svc.Create(r.Context(), in)
		if err != nil {
			handleEmergencyError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toEmergencyResponse(e))
	}
}

func claimEmergencyHandler(svc *emergency.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		e, err := svc.Claim(r.Context(), identity.FromContext(r.Context()), id)
		if err != nil {
			handleEmergencyError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toEmergencyResponse(e))
	}
}

func cancelEmergencyHandler(svc *emergency.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		e, err := svc.Cancel(r.Context(), identity.FromContext(r.Context()), id)
		if err != nil {
			handleEmergencyError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toEmergencyResponse(e))
	}
}

func finishEmergencyHandler(svc *emergency.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		e, err := svc.Finish(r.Context(), identity.FromContext(r.Context()), id)
		if err != nil {
			handleEmergencyError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toEmergencyResponse(e))
	}
}

func getEmergencyHandler(svc *emergency.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		e, err := svc.Get(r.Context(), identity.FromContext(r.Context()), id)
		if err != nil {
			handleEmergencyError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toEmergencyResponse(e))
	}
}

// listPendingEmergenciesHandler is the dentist inbox: broadcasts plus requests
// targeted directly at the caller.
func listPendingEmergenciesHandler(svc *emergency.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListPendingFor(r.Context(), identity.FromContext(r.Context()))
		if err != nil {
			handleEmergencyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, emergencyResponses(list))
	}
}

func listAssignedEmergenciesHandler(svc *emergency.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListAssignedTo(r.Context(), identity.FromContext(r.Context()))
		if err != nil {
			handleEmergencyError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, emergencyResponses(list))
	}
}

func emergencyResponses(list []emergency.Emergency) []EmergencyResponse {
	out := make([]EmergencyResponse, 0, len(list))
	for i := range list {
		out = append(out, toEmergencyResponse(&list[i]))
	}
	return out
}
