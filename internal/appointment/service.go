package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smilecare/dental-scheduling/internal/directory"
	"github.com/smilecare/dental-scheduling/internal/identity"
	"github.com/smilecare/dental-scheduling/internal/metrics"
	"github.com/smilecare/dental-scheduling/internal/notify"
	redisclient "github.com/smilecare/dental-scheduling/internal/redis"
)

var (
	ErrValidation        = errors.New("invalid appointment input")
	ErrForbidden         = errors.New("actor may not act on this appointment")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSlotOccupied      = errors.New("slot already occupied for this dentist")
	ErrSlotBusy          = errors.New("slot is currently being booked, please retry")
)

type Service struct {
	repo     Repository
	dir      directory.Reader
	locker   redisclient.Locker
	dispatch notify.Dispatcher
	log      zerolog.Logger
}

func NewService(repo Repository, dir directory.Reader, locker redisclient.Locker, dispatch notify.Dispatcher, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		dir:      dir,
		locker:   locker,
		dispatch: dispatch,
		log:      log,
	}
}

type RequestInput struct {
	PatientID   uuid.UUID
	DentistID   uuid.UUID
	ServiceName string
	Date        time.Time
	TimeLabel   string
	Notes       string
}

type BookInput struct {
	PatientID       uuid.UUID
	ServiceName     string
	Date            time.Time
	TimeLabel       string
	DurationMinutes int
	Notes           string

	// Override cancels a conflicting SCHEDULED appointment with the given
	// justification instead of failing on occupancy.
	Override      bool
	Justification string
}

// Request creates a PENDING appointment on behalf of a patient. PENDING
// records do not block slots; occupancy is only enforced when a dentist
// schedules.
func (s *Service) Request(ctx context.Context, actor identity.Actor, in RequestInput) (*Appointment, error) {
	if actor.IsPatient() {
		in.PatientID = actor.PatientID
	}
	if err := validateBookingFields(in.PatientID, in.DentistID, in.ServiceName, in.Date, in.TimeLabel); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:       in.PatientID,
		DentistID:       in.DentistID,
		ServiceName:     in.ServiceName,
		Date:            DateOnly(in.Date),
		TimeLabel:       in.TimeLabel,
		DurationMinutes: DefaultDurationMinutes,
		Notes:           in.Notes,
		Status:          StatusPending,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create appointment request: %w", err)
	}
	metrics.Transitions.WithLabelValues("appointment", "none", string(StatusPending)).Inc()

	if dentist, err := s.dir.DentistByID(ctx, a.DentistID); err == nil {
		s.dispatch.Dispatch(ctx, notify.Event{
			Kind:       notify.KindAppointmentRequested,
			Category:   notify.CategoryAppointment,
			Link:       "/appointments/" + a.ID.String(),
			Params:     s.eventParams(ctx, a, ""),
			Recipients: []uuid.UUID{dentist.UserID},
		})
	} else {
		s.log.Warn().Err(err).Str("dentist", a.DentistID.String()).Msg("skip request notice, dentist lookup failed")
	}

	return a, nil
}

// Book creates a SCHEDULED appointment directly in the acting dentist's own
// agenda. When the slot is taken, Override performs the explicit
// double-booking flow: the conflicting appointment is cancelled with the
// supplied justification and the new booking is written in the same
// transaction.
func (s *Service) Book(ctx context.Context, actor identity.Actor, in BookInput) (*Appointment, error) {
	if !actor.IsDentist() {
		return nil, ErrForbidden
	}
	dentistID := actor.DentistID

	if err := validateBookingFields(in.PatientID, dentistID, in.ServiceName, in.Date, in.TimeLabel); err != nil {
		return nil, err
	}
	if in.DurationMinutes <= 0 {
		in.DurationMinutes = DefaultDurationMinutes
	}
	start, err := ParseSlotLabel(in.TimeLabel)
	if err != nil || start < gridOpenMinute || start > gridCloseMinute {
		return nil, fmt.Errorf("%w: time %q is outside the clinic grid", ErrValidation, in.TimeLabel)
	}

	a := &Appointment{
		PatientID:       in.PatientID,
		DentistID:       dentistID,
		ServiceName:     in.ServiceName,
		Date:            DateOnly(in.Date),
		TimeLabel:       in.TimeLabel,
		DurationMinutes: in.DurationMinutes,
		Notes:           in.Notes,
		Status:          StatusScheduled,
	}

	var cancelled *Appointment
	dateKey := a.Date.Format("2006-01-02")

	err = s.locker.WithBookingLock(ctx, dentistID, dateKey, func(lockCtx context.Context) error {
		day, err := s.repo.ListForDentistDay(lockCtx, dentistID, a.Date)
		if err != nil {
			return fmt.Errorf("load dentist day: %w", err)
		}

		occupied := OccupiedSlots(day)
		if spanFree(occupied, start, in.DurationMinutes) {
			return s.repo.Create(lockCtx, a)
		}

		if !in.Override {
			return ErrSlotOccupied
		}
		if len(strings.TrimSpace(in.Justification)) < MinJustificationLen {
			return fmt.Errorf("%w: override justification must be at least %d characters", ErrValidation, MinJustificationLen)
		}

		var conflicts []Appointment
		for _, existing := range day {
			if existing.Status == StatusScheduled && overlaps(existing, start, in.DurationMinutes) {
				conflicts = append(conflicts, existing)
			}
		}
		if len(conflicts) != 1 {
			// Zero would mean the occupancy map lied; more than one cannot be
			// resolved by cancelling a single conflicting booking.
			return ErrSlotOccupied
		}

		if err := s.repo.ReplaceBooking(lockCtx, conflicts[0].ID, in.Justification, a); err != nil {
			return err
		}
		c := conflicts[0]
		cancelled = &c
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		return nil, err
	}

	metrics.Transitions.WithLabelValues("appointment", "none", string(StatusScheduled)).Inc()
	if cancelled != nil {
		metrics.Transitions.WithLabelValues("appointment", string(StatusScheduled), string(StatusCancelled)).Inc()
		s.notifyPatient(ctx, cancelled, notify.KindAppointmentCancelled, in.Justification)
	}
	s.notifyPatient(ctx, a, notify.KindAppointmentApproved, "")

	return a, nil
}

// Approve moves a PENDING request to SCHEDULED with the dentist's chosen
// duration. Only the assigned dentist may approve, and the slot span must be
// free at approval time.
func (s *Service) Approve(ctx context.Context, actor identity.Actor, id uuid.UUID, durationMinutes int) (*Appointment, error) {
	if !actor.IsDentist() {
		return nil, ErrForbidden
	}
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.DentistID != actor.DentistID {
		return nil, ErrForbidden
	}
	if !TransitionAllowed(appt.Status, StatusScheduled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusScheduled)
	}
	if durationMinutes <= 0 {
		durationMinutes = DefaultDurationMinutes
	}
	start, err := ParseSlotLabel(appt.TimeLabel)
	if err != nil {
		return nil, fmt.Errorf("%w: stored time %q is not a slot label", ErrValidation, appt.TimeLabel)
	}

	var updated *Appointment
	dateKey := DateOnly(appt.Date).Format("2006-01-02")

	err = s.locker.WithBookingLock(ctx, appt.DentistID, dateKey, func(lockCtx context.Context) error {
		day, err := s.repo.ListForDentistDay(lockCtx, appt.DentistID, appt.Date)
		if err != nil {
			return fmt.Errorf("load dentist day: %w", err)
		}
		others := day[:0:0]
		for _, existing := range day {
			if existing.ID != appt.ID {
				others = append(others, existing)
			}
		}
		if !spanFree(OccupiedSlots(others), start, durationMinutes) {
			return ErrSlotOccupied
		}

		updated, err = s.repo.Schedule(lockCtx, appt.ID, durationMinutes)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// The conditional write lost: someone moved the record first.
				return s.classifyLostWrite(lockCtx, appt.ID, StatusScheduled)
			}
			return fmt.Errorf("schedule appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		return nil, err
	}

	metrics.Transitions.WithLabelValues("appointment", string(StatusPending), string(StatusScheduled)).Inc()
	s.notifyPatient(ctx, updated, notify.KindAppointmentApproved, "")

	return updated, nil
}

// Cancel rejects a PENDING request or cancels a SCHEDULED appointment. A
// SCHEDULED cancellation demands a justification of at least five characters,
// which is appended to the appointment's audit notes; rejecting a tentative
// PENDING request needs none.
func (s *Service) Cancel(ctx context.Context, actor identity.Actor, id uuid.UUID, justification string) (*Appointment, error) {
	if !actor.IsDentist() {
		return nil, ErrForbidden
	}
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.DentistID != actor.DentistID {
		return nil, ErrForbidden
	}

	from := appt.Status
	switch from {
	case StatusPending:
		justification = ""
	case StatusScheduled:
		if len(strings.TrimSpace(justification)) < MinJustificationLen {
			return nil, fmt.Errorf("%w: cancellation justification must be at least %d characters", ErrValidation, MinJustificationLen)
		}
	default:
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, StatusCancelled)
	}

	updated, err := s.repo.CancelFrom(ctx, appt.ID, from, justification)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, s.classifyLostWrite(ctx, appt.ID, StatusCancelled)
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	metrics.Transitions.WithLabelValues("appointment", string(from), string(StatusCancelled)).Inc()
	s.notifyPatient(ctx, updated, notify.KindAppointmentCancelled, justification)

	return updated, nil
}

// SweepStale promotes past-dated SCHEDULED appointments to COMPLETED in one
// bulk conditional write. Silent by design: no notifications are dispatched.
// Idempotent: a second run over the same data writes nothing.
func (s *Service) SweepStale(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.repo.CompleteStale(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("sweep stale appointments: %w", err)
	}
	if count > 0 {
		metrics.SweptAppointments.Add(float64(count))
		metrics.Transitions.WithLabelValues("appointment", string(StatusScheduled), string(StatusCompleted)).Add(float64(count))
		s.log.Info().Int64("count", count).Msg("stale appointments completed")
	}
	return count, nil
}

// ScheduleForDay returns the full slot grid with occupancy for one dentist-day.
func (s *Service) ScheduleForDay(ctx context.Context, dentistID uuid.UUID, date time.Time) ([]Slot, error) {
	if _, err := s.dir.DentistByID(ctx, dentistID); err != nil {
		return nil, err
	}
	day, err := s.repo.ListForDentistDay(ctx, dentistID, date)
	if err != nil {
		return nil, fmt.Errorf("load dentist day: %w", err)
	}
	return DaySchedule(day), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListForDentist(ctx context.Context, dentistID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListByDentist(ctx, dentistID, limit, offset)
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// classifyLostWrite re-reads a record after a zero-row conditional write to
// report the real current-versus-requested state.
func (s *Service) classifyLostWrite(ctx context.Context, id uuid.UUID, requested Status) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, requested)
}

func (s *Service) notifyPatient(ctx context.Context, a *Appointment, kind notify.Kind, reason string) {
	patient, err := s.dir.PatientByID(ctx, a.PatientID)
	if err != nil {
		s.log.Warn().Err(err).Str("patient", a.PatientID.String()).Msg("skip notice, patient lookup failed")
		return
	}
	s.dispatch.Dispatch(ctx, notify.Event{
		Kind:       kind,
		Category:   notify.CategoryAppointment,
		Link:       "/appointments/" + a.ID.String(),
		Params:     s.eventParams(ctx, a, reason),
		Recipients: []uuid.UUID{patient.UserID},
	})
}

func (s *Service) eventParams(ctx context.Context, a *Appointment, reason string) map[string]string {
	params := map[string]string{
		"service": a.ServiceName,
		"date":    a.Date.Format("02/01/2006"),
		"time":    a.TimeLabel,
		"reason":  reason,
	}
	if dentist, err := s.dir.DentistByID(ctx, a.DentistID); err == nil {
		params["dentist"] = dentist.Name
	}
	if patient, err := s.dir.PatientByID(ctx, a.PatientID); err == nil {
		params["patient"] = patient.Name
	}
	return params
}

func validateBookingFields(patientID, dentistID uuid.UUID, serviceName string, date time.Time, timeLabel string) error {
	switch {
	case patientID == uuid.Nil:
		return fmt.Errorf("%w: patient is required", ErrValidation)
	case dentistID == uuid.Nil:
		return fmt.Errorf("%w: dentist is required", ErrValidation)
	case strings.TrimSpace(serviceName) == "":
		return fmt.Errorf("%w: service is required", ErrValidation)
	case date.IsZero():
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	if _, err := ParseSlotLabel(timeLabel); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
