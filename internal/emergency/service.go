package emergency

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smilecare/dental-scheduling/internal/directory"
	"github.com/smilecare/dental-scheduling/internal/identity"
	"github.com/smilecare/dental-scheduling/internal/metrics"
	"github.com/smilecare/dental-scheduling/internal/notify"
)

var (
	ErrValidation        = errors.New("invalid emergency input")
	ErrForbidden         = errors.New("actor may not act on this emergency")
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyClaimed is distinct from ErrInvalidTransition so clients can
	// say "another dentist took this" instead of "bad request". It is
	// authoritative: the losing caller must not retry.
	ErrAlreadyClaimed = errors.New("emergency already claimed by another dentist")
)

type Service struct {
	repo     Repository
	dir      directory.Reader
	dispatch notify.Dispatcher
	log      zerolog.Logger
}

func NewService(repo Repository, dir directory.Reader, dispatch notify.Dispatcher, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		dir:      dir,
		dispatch: dispatch,
		log:      log,
	}
}

type CreateInput struct {
	RequesterName   string
	DNI             string
	Phone           string
	Description     string
	TargetDentistID *uuid.UUID // nil broadcasts to all available dentists
}

// Create registers a PENDING emergency and routes the alert: to the one
// target dentist when the request names one, otherwise to every dentist
// currently flagged available for emergencies. The DNI is used as a
// best-effort patient lookup key; an unknown DNI still creates the request.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Emergency, error) {
	switch {
	case strings.TrimSpace(in.RequesterName) == "":
		return nil, fmt.Errorf("%w: requester name is required", ErrValidation)
	case strings.TrimSpace(in.Phone) == "":
		return nil, fmt.Errorf("%w: phone is required", ErrValidation)
	case strings.TrimSpace(in.Description) == "":
		return nil, fmt.Errorf("%w: description is required", ErrValidation)
	}

	e := &Emergency{
		RequesterName:   strings.TrimSpace(in.RequesterName),
		DNI:             strings.TrimSpace(in.DNI),
		Phone:           strings.TrimSpace(in.Phone),
		Description:     strings.TrimSpace(in.Description),
		TargetDentistID: in.TargetDentistID,
		Status:          StatusPending,
	}

	if e.DNI != "" {
		if patient, err := s.dir.PatientByDNI(ctx, e.DNI); err == nil {
			e.PatientID = &patient.ID
		} else if !errors.Is(err, directory.ErrPatientNotFound) {
			s.log.Warn().Err(err).Str("dni", e.DNI).Msg("patient lookup by dni failed")
		}
	}

	if err := s.repo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create emergency: %w", err)
	}
	metrics.Transitions.WithLabelValues("emergency", "none", string(StatusPending)).Inc()

	recipients, err := s.alertRecipients(ctx, e)
	if err != nil {
		s.log.Warn().Err(err).Str("emergency", e.ID.String()).Msg("resolve alert recipients failed")
	}
	s.dispatch.Dispatch(ctx, notify.Event{
		Kind:       notify.KindEmergencyCreated,
		Category:   notify.CategoryEmergency,
		Link:       "/emergencies/" + e.ID.String(),
		Params:     s.eventParams(ctx, e),
		Recipients: recipients,
		TextAlert:  true,
	})

	return e, nil
}

// Claim assigns the emergency to the acting dentist. Any dentist may attempt
// a broadcast claim; only the first conditional write wins. Losing the write
// is authoritative, not transient.
func (s *Service) Claim(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Emergency, error) {
	if !actor.IsDentist() {
		return nil, ErrForbidden
	}

	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.TargetDentistID != nil && *e.TargetDentistID != actor.DentistID {
		return nil, ErrForbidden
	}

	claimed, err := s.repo.Claim(ctx, id, actor.DentistID)
	if err != nil {
		if errors.Is(err, ErrEmergencyNotFound) {
			return nil, s.classifyLostClaim(ctx, id)
		}
		return nil, fmt.Errorf("claim emergency: %w", err)
	}

	metrics.Transitions.WithLabelValues("emergency", string(StatusPending), string(StatusApproved)).Inc()
	s.notifyRequester(ctx, claimed, notify.KindEmergencyClaimed)

	return claimed, nil
}

// Cancel terminates the emergency. PENDING requests may be cancelled by the
// bound requester or any dentist with visibility; APPROVED requests only by
// the assigned dentist, whose claim is released back to null. The record
// stays terminally CANCELLED, it is not re-broadcast.
func (s *Service) Cancel(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Emergency, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var cancelled *Emergency
	switch e.Status {
	case StatusPending:
		if !s.mayCancelPending(actor, e) {
			return nil, ErrForbidden
		}
		cancelled, err = s.repo.CancelPending(ctx, id)
		if err != nil {
			if errors.Is(err, ErrEmergencyNotFound) {
				return nil, s.classifyLostCancel(ctx, actor, id)
			}
			return nil, fmt.Errorf("cancel emergency: %w", err)
		}
	case StatusApproved:
		if !actor.IsDentist() || e.AssignedDentistID == nil || *e.AssignedDentistID != actor.DentistID {
			return nil, ErrForbidden
		}
		cancelled, err = s.repo.Release(ctx, id, actor.DentistID)
		if err != nil {
			if errors.Is(err, ErrEmergencyNotFound) {
				return nil, s.classifyLostWrite(ctx, id, StatusCancelled)
			}
			return nil, fmt.Errorf("cancel emergency: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, StatusCancelled)
	}

	metrics.Transitions.WithLabelValues("emergency", string(e.Status), string(StatusCancelled)).Inc()
	if actor.IsDentist() {
		s.notifyRequester(ctx, cancelled, notify.KindEmergencyCancelled)
	} else {
		s.notifyDentist(ctx, cancelled, notify.KindEmergencyCancelled)
	}

	return cancelled, nil
}

// Finish closes an APPROVED emergency. Only the assigned dentist may finish.
func (s *Service) Finish(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Emergency, error) {
	if !actor.IsDentist() {
		return nil, ErrForbidden
	}

	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status == StatusApproved && (e.AssignedDentistID == nil || *e.AssignedDentistID != actor.DentistID) {
		return nil, ErrForbidden
	}

	finished, err := s.repo.Finish(ctx, id, actor.DentistID)
	if err != nil {
		if errors.Is(err, ErrEmergencyNotFound) {
			return nil, s.classifyLostWrite(ctx, id, StatusFinished)
		}
		return nil, fmt.Errorf("finish emergency: %w", err)
	}

	metrics.Transitions.WithLabelValues("emergency", string(StatusApproved), string(StatusFinished)).Inc()
	s.notifyRequester(ctx, finished, notify.KindEmergencyFinished)

	return finished, nil
}

// Get returns one emergency to a party with a stake in it. The record carries
// the requester's DNI and phone, so reads are gated: the bound patient, the
// target or assigned dentist, or any dentist for a broadcast.
func (s *Service) Get(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Emergency, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !mayView(actor, e) {
		return nil, ErrForbidden
	}
	return e, nil
}

func mayView(actor identity.Actor, e *Emergency) bool {
	if actor.IsDentist() {
		if e.TargetDentistID == nil || *e.TargetDentistID == actor.DentistID {
			return true
		}
		return e.AssignedDentistID != nil && *e.AssignedDentistID == actor.DentistID
	}
	if actor.IsPatient() && e.PatientID != nil {
		return *e.PatientID == actor.PatientID
	}
	return false
}

func (s *Service) ListPendingFor(ctx context.Context, actor identity.Actor) ([]Emergency, error) {
	if !actor.IsDentist() {
		return nil, ErrForbidden
	}
	return s.repo.ListPendingFor(ctx, actor.DentistID)
}

func (s *Service) ListAssignedTo(ctx context.Context, actor identity.Actor) ([]Emergency, error) {
	if !actor.IsDentist() {
		return nil, ErrForbidden
	}
	return s.repo.ListAssignedTo(ctx, actor.DentistID)
}

// classifyLostClaim turns a zero-row claim write into the user-facing error.
// The distinction matters: APPROVED means someone else won the race.
func (s *Service) classifyLostClaim(ctx context.Context, id uuid.UUID) error {
	metrics.ClaimConflicts.Inc()
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == StatusApproved {
		return ErrAlreadyClaimed
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, StatusApproved)
}

// classifyLostCancel reports why a PENDING cancel wrote zero rows. When the
// request was claimed mid-flight it now belongs to the assigned dentist, so
// anyone else is refused rather than told the transition is impossible; the
// assigned dentist can retry and take the APPROVED cancel path.
func (s *Service) classifyLostCancel(ctx context.Context, actor identity.Actor, id uuid.UUID) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == StatusApproved {
		assigned := actor.IsDentist() && current.AssignedDentistID != nil && *current.AssignedDentistID == actor.DentistID
		if !assigned {
			return ErrForbidden
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, StatusCancelled)
}

func (s *Service) classifyLostWrite(ctx context.Context, id uuid.UUID, requested Status) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, requested)
}

func (s *Service) mayCancelPending(actor identity.Actor, e *Emergency) bool {
	if actor.IsDentist() {
		return e.TargetDentistID == nil || *e.TargetDentistID == actor.DentistID
	}
	if actor.IsPatient() && e.PatientID != nil {
		return *e.PatientID == actor.PatientID
	}
	return false
}

func (s *Service) alertRecipients(ctx context.Context, e *Emergency) ([]uuid.UUID, error) {
	if e.TargetDentistID != nil {
		dentist, err := s.dir.DentistByID(ctx, *e.TargetDentistID)
		if err != nil {
			return nil, err
		}
		return []uuid.UUID{dentist.UserID}, nil
	}

	available, err := s.dir.ListEmergencyAvailableDentists(ctx)
	if err != nil {
		return nil, err
	}
	recipients := make([]uuid.UUID, 0, len(available))
	for _, d := range available {
		recipients = append(recipients, d.UserID)
	}
	return recipients, nil
}

func (s *Service) notifyRequester(ctx context.Context, e *Emergency, kind notify.Kind) {
	if e.PatientID == nil {
		// Unbound requesters have no account to notify; the realtime topic
		// still fires for dashboards.
		s.dispatch.Dispatch(ctx, notify.Event{
			Kind:     kind,
			Category: notify.CategoryEmergency,
			Link:     "/emergencies/" + e.ID.String(),
			Params:   s.eventParams(ctx, e),
		})
		return
	}
	patient, err := s.dir.PatientByID(ctx, *e.PatientID)
	if err != nil {
		s.log.Warn().Err(err).Str("patient", e.PatientID.String()).Msg("skip notice, patient lookup failed")
		return
	}
	s.dispatch.Dispatch(ctx, notify.Event{
		Kind:       kind,
		Category:   notify.CategoryEmergency,
		Link:       "/emergencies/" + e.ID.String(),
		Params:     s.eventParams(ctx, e),
		Recipients: []uuid.UUID{patient.UserID},
	})
}

func (s *Service) notifyDentist(ctx context.Context, e *Emergency, kind notify.Kind) {
	dentistID := e.AssignedDentistID
	if dentistID == nil {
		dentistID = e.TargetDentistID
	}
	if dentistID == nil {
		return
	}
	dentist, err := s.dir.DentistByID(ctx, *dentistID)
	if err != nil {
		s.log.Warn().Err(err).Str("dentist", dentistID.String()).Msg("skip notice, dentist lookup failed")
		return
	}
	s.dispatch.Dispatch(ctx, notify.Event{
		Kind:       kind,
		Category:   notify.CategoryEmergency,
		Link:       "/emergencies/" + e.ID.String(),
		Params:     s.eventParams(ctx, e),
		Recipients: []uuid.UUID{dentist.UserID},
	})
}

func (s *Service) eventParams(ctx context.Context, e *Emergency) map[string]string {
	params := map[string]string{
		"name":        e.RequesterName,
		"description": e.Description,
		"phone":       e.Phone,
	}
	if e.AssignedDentistID != nil {
		if dentist, err := s.dir.DentistByID(ctx, *e.AssignedDentistID); err == nil {
			params["dentist"] = dentist.Name
		}
	}
	return params
}
