package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilecare/dental-scheduling/internal/directory"
	"github.com/smilecare/dental-scheduling/internal/identity"
	"github.com/smilecare/dental-scheduling/internal/notify"
	redisclient "github.com/smilecare/dental-scheduling/internal/redis"
)

// fakeRepo mirrors the conditional-write behavior of the Postgres layer: every
// status mutation checks the expected current state under the mutex and
// reports a miss as ErrAppointmentNotFound.
type fakeRepo struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*Appointment
	order []uuid.UUID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: make(map[uuid.UUID]*Appointment)}
}

func (r *fakeRepo) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	r.byID[a.ID] = &cp
	r.order = append(r.order, a.ID)
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) ListForDentistDay(_ context.Context, dentistID uuid.UUID, date time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	day := DateOnly(date)
	var out []Appointment
	for _, id := range r.order {
		a := r.byID[id]
		if a.DentistID == dentistID && DateOnly(a.Date).Equal(day) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListByDentist(_ context.Context, dentistID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, id := range r.order {
		if a := r.byID[id]; a.DentistID == dentistID {
			out = append(out, *a)
		}
	}
	return page(out, limit, offset), nil
}

func (r *fakeRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, id := range r.order {
		if a := r.byID[id]; a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	return page(out, limit, offset), nil
}

func (r *fakeRepo) Schedule(_ context.Context, id uuid.UUID, durationMinutes int) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok || a.Status != StatusPending {
		return nil, ErrAppointmentNotFound
	}
	a.Status = StatusScheduled
	a.DurationMinutes = durationMinutes
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) CancelFrom(_ context.Context, id uuid.UUID, from Status, note string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = StatusCancelled
	if note != "" {
		if a.Notes != "" {
			a.Notes += "\n"
		}
		a.Notes += note
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) ReplaceBooking(_ context.Context, conflictID uuid.UUID, justification string, replacement *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conflict, ok := r.byID[conflictID]
	if !ok || conflict.Status != StatusScheduled {
		return ErrConflictChanged
	}
	conflict.Status = StatusCancelled
	if conflict.Notes != "" {
		conflict.Notes += "\n"
	}
	conflict.Notes += justification
	conflict.UpdatedAt = time.Now()

	if replacement.ID == uuid.Nil {
		replacement.ID = uuid.New()
	}
	replacement.CreatedAt = time.Now()
	replacement.UpdatedAt = replacement.CreatedAt
	cp := *replacement
	r.byID[replacement.ID] = &cp
	r.order = append(r.order, replacement.ID)
	return nil
}

func (r *fakeRepo) CompleteStale(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	day := DateOnly(before)
	var count int64
	for _, a := range r.byID {
		if a.Status == StatusScheduled && DateOnly(a.Date).Before(day) {
			a.Status = StatusCompleted
			a.UpdatedAt = time.Now()
			count++
		}
	}
	return count, nil
}

func page(in []Appointment, limit, offset int) []Appointment {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit < len(in) {
		in = in[:limit]
	}
	return in
}

type fakeDir struct {
	dentists map[uuid.UUID]*directory.Dentist
	patients map[uuid.UUID]*directory.Patient
}

func (d *fakeDir) DentistByID(_ context.Context, id uuid.UUID) (*directory.Dentist, error) {
	if dt, ok := d.dentists[id]; ok {
		return dt, nil
	}
	return nil, directory.ErrDentistNotFound
}

func (d *fakeDir) PatientByID(_ context.Context, id uuid.UUID) (*directory.Patient, error) {
	if p, ok := d.patients[id]; ok {
		return p, nil
	}
	return nil, directory.ErrPatientNotFound
}

func (d *fakeDir) PatientByDNI(_ context.Context, dni string) (*directory.Patient, error) {
	for _, p := range d.patients {
		if p.DNI == dni {
			return p, nil
		}
	}
	return nil, directory.ErrPatientNotFound
}

func (d *fakeDir) ListEmergencyAvailableDentists(_ context.Context) ([]directory.Dentist, error) {
	var out []directory.Dentist
	for _, dt := range d.dentists {
		if dt.AvailableForEmergency {
			out = append(out, *dt)
		}
	}
	return out, nil
}

func (d *fakeDir) ContactByUserID(_ context.Context, userID uuid.UUID) (*directory.Contact, error) {
	return &directory.Contact{UserID: userID, Locale: "es"}, nil
}

type fakeLocker struct {
	busy bool
}

func (l *fakeLocker) WithBookingLock(ctx context.Context, _ uuid.UUID, _ string, fn func(context.Context) error) error {
	if l.busy {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}

// keyedLocker mirrors the redis locker's keying: one mutex per dentist-day,
// so callers for the same dentist and date serialize against each other.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *keyedLocker) WithBookingLock(ctx context.Context, dentistID uuid.UUID, date string, fn func(context.Context) error) error {
	key := dentistID.String() + ":" + date
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

type fakeDispatcher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (d *fakeDispatcher) Dispatch(_ context.Context, ev notify.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *fakeDispatcher) byKind(kind notify.Kind) []notify.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []notify.Event
	for _, ev := range d.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	svc      *Service
	repo     *fakeRepo
	dir      *fakeDir
	dispatch *fakeDispatcher
	locker   *fakeLocker

	dentist       identity.Actor
	otherDentist  identity.Actor
	patient       identity.Actor
	dentistUserID uuid.UUID
	patientUserID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dentistID, otherDentistID := uuid.New(), uuid.New()
	patientID := uuid.New()
	dentistUserID, otherUserID, patientUserID := uuid.New(), uuid.New(), uuid.New()

	dir := &fakeDir{
		dentists: map[uuid.UUID]*directory.Dentist{
			dentistID:      {ID: dentistID, UserID: dentistUserID, Name: "Ana Flores"},
			otherDentistID: {ID: otherDentistID, UserID: otherUserID, Name: "Luis Paredes"},
		},
		patients: map[uuid.UUID]*directory.Patient{
			patientID: {ID: patientID, UserID: patientUserID, Name: "Carlos Vega"},
		},
	}

	repo := newFakeRepo()
	dispatch := &fakeDispatcher{}
	locker := &fakeLocker{}

	return &fixture{
		svc:      NewService(repo, dir, locker, dispatch, zerolog.Nop()),
		repo:     repo,
		dir:      dir,
		dispatch: dispatch,
		locker:   locker,
		dentist: identity.Actor{
			UserID: dentistUserID, Role: identity.RoleDentist, DentistID: dentistID,
		},
		otherDentist: identity.Actor{
			UserID: otherUserID, Role: identity.RoleDentist, DentistID: otherDentistID,
		},
		patient: identity.Actor{
			UserID: patientUserID, Role: identity.RolePatient, PatientID: patientID,
		},
		dentistUserID: dentistUserID,
		patientUserID: patientUserID,
	}
}

func (f *fixture) day() time.Time {
	return time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) seedScheduled(t *testing.T, label string, duration int) *Appointment {
	t.Helper()
	a := &Appointment{
		PatientID:       f.patient.PatientID,
		DentistID:       f.dentist.DentistID,
		ServiceName:     "Cleaning",
		Date:            f.day(),
		TimeLabel:       label,
		DurationMinutes: duration,
		Status:          StatusScheduled,
	}
	require.NoError(t, f.repo.Create(context.Background(), a))
	return a
}

func TestRequestCreatesPendingAndNotifiesDentist(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.Request(context.Background(), f.patient, RequestInput{
		DentistID:   f.dentist.DentistID,
		ServiceName: "Checkup",
		Date:        f.day(),
		TimeLabel:   "10:00 AM",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, DefaultDurationMinutes, appt.DurationMinutes)
	assert.Equal(t, f.patient.PatientID, appt.PatientID)

	events := f.dispatch.byKind(notify.KindAppointmentRequested)
	require.Len(t, events, 1)
	assert.Equal(t, []uuid.UUID{f.dentistUserID}, events[0].Recipients)
}

func TestRequestRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Request(context.Background(), f.patient, RequestInput{
		DentistID:   f.dentist.DentistID,
		ServiceName: "Checkup",
		Date:        f.day(),
		TimeLabel:   "10:15 AM is not a slot",
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Request(context.Background(), f.patient, RequestInput{
		DentistID: f.dentist.DentistID,
		Date:      f.day(),
		TimeLabel: "10:00 AM",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBookRequiresDentist(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Book(context.Background(), f.patient, BookInput{
		PatientID:   f.patient.PatientID,
		ServiceName: "Cleaning",
		Date:        f.day(),
		TimeLabel:   "09:00 AM",
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestBookFreeSlot(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.Book(context.Background(), f.dentist, BookInput{
		PatientID:       f.patient.PatientID,
		ServiceName:     "Cleaning",
		Date:            f.day(),
		TimeLabel:       "09:00 AM",
		DurationMinutes: 60,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, 60, appt.DurationMinutes)
	assert.Equal(t, f.dentist.DentistID, appt.DentistID)

	events := f.dispatch.byKind(notify.KindAppointmentApproved)
	require.Len(t, events, 1)
	assert.Equal(t, []uuid.UUID{f.patientUserID}, events[0].Recipients)
}

func TestBookOccupiedWithoutOverride(t *testing.T) {
	f := newFixture(t)
	f.seedScheduled(t, "10:00 AM", 60)

	_, err := f.svc.Book(context.Background(), f.dentist, BookInput{
		PatientID:   f.patient.PatientID,
		ServiceName: "Filling",
		Date:        f.day(),
		TimeLabel:   "10:30 AM",
	})
	assert.ErrorIs(t, err, ErrSlotOccupied)
}

func TestBookOverrideShortJustificationLeavesConflictIntact(t *testing.T) {
	f := newFixture(t)
	conflict := f.seedScheduled(t, "10:00 AM", 30)

	_, err := f.svc.Book(context.Background(), f.dentist, BookInput{
		PatientID:     f.patient.PatientID,
		ServiceName:   "Filling",
		Date:          f.day(),
		TimeLabel:     "10:00 AM",
		Override:      true,
		Justification: "  ugh ",
	})
	assert.ErrorIs(t, err, ErrValidation)

	kept, err := f.repo.GetByID(context.Background(), conflict.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, kept.Status, "failed override must not touch the conflict")
}

func TestBookOverrideReplacesConflict(t *testing.T) {
	f := newFixture(t)
	conflict := f.seedScheduled(t, "10:00 AM", 60)

	appt, err := f.svc.Book(context.Background(), f.dentist, BookInput{
		PatientID:     f.patient.PatientID,
		ServiceName:   "Emergency filling",
		Date:          f.day(),
		TimeLabel:     "10:00 AM",
		Override:      true,
		Justification: "urgent retreatment of broken crown",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)

	old, err := f.repo.GetByID(context.Background(), conflict.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, old.Status)
	assert.Contains(t, old.Notes, "urgent retreatment")

	assert.Len(t, f.dispatch.byKind(notify.KindAppointmentCancelled), 1)
	assert.Len(t, f.dispatch.byKind(notify.KindAppointmentApproved), 1)
}

func TestBookOverrideNeedsExactlyOneConflict(t *testing.T) {
	f := newFixture(t)
	f.seedScheduled(t, "10:00 AM", 30)
	f.seedScheduled(t, "10:30 AM", 30)

	// A 60-minute override span touching two bookings cannot be resolved by
	// cancelling one of them.
	_, err := f.svc.Book(context.Background(), f.dentist, BookInput{
		PatientID:       f.patient.PatientID,
		ServiceName:     "Surgery",
		Date:            f.day(),
		TimeLabel:       "10:00 AM",
		DurationMinutes: 60,
		Override:        true,
		Justification:   "long procedure needed",
	})
	assert.ErrorIs(t, err, ErrSlotOccupied)
}

func TestBookConcurrentOverlappingSpansOneWins(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.repo, f.dir, &keyedLocker{}, f.dispatch, zerolog.Nop())

	// A 60-minute booking at 10:00 AM and a 30-minute booking at 10:30 AM
	// start on different slot labels but cover the same 10:30 AM grid slot.
	// Because the lock is keyed per dentist-day they serialize, and the loser
	// must see the winner's occupancy.
	inputs := []BookInput{
		{
			PatientID:       f.patient.PatientID,
			ServiceName:     "Root canal",
			Date:            f.day(),
			TimeLabel:       "10:00 AM",
			DurationMinutes: 60,
		},
		{
			PatientID:   f.patient.PatientID,
			ServiceName: "Checkup",
			Date:        f.day(),
			TimeLabel:   "10:30 AM",
		},
	}

	errs := make([]error, len(inputs))
	var wg sync.WaitGroup
	for i, in := range inputs {
		wg.Add(1)
		go func(i int, in BookInput) {
			defer wg.Done()
			_, errs[i] = svc.Book(context.Background(), f.dentist, in)
		}(i, in)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, ErrSlotOccupied)
			lost++
		}
	}
	assert.Equal(t, 1, won, "exactly one overlapping booking may land")
	assert.Equal(t, 1, lost)

	day, err := f.repo.ListForDentistDay(context.Background(), f.dentist.DentistID, f.day())
	require.NoError(t, err)
	halfPast, err := ParseSlotLabel("10:30 AM")
	require.NoError(t, err)
	var covering int
	for _, a := range day {
		if a.Status == StatusScheduled && overlaps(a, halfPast, slotMinutes) {
			covering++
		}
	}
	assert.Equal(t, 1, covering, "the 10:30 AM slot must be held by a single booking")
}

func TestBookWhenLockBusy(t *testing.T) {
	f := newFixture(t)
	f.locker.busy = true

	_, err := f.svc.Book(context.Background(), f.dentist, BookInput{
		PatientID:   f.patient.PatientID,
		ServiceName: "Cleaning",
		Date:        f.day(),
		TimeLabel:   "09:00 AM",
	})
	assert.ErrorIs(t, err, ErrSlotBusy)
}

func TestApproveOnlyByAssignedDentist(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.Request(context.Background(), f.patient, RequestInput{
		DentistID:   f.dentist.DentistID,
		ServiceName: "Checkup",
		Date:        f.day(),
		TimeLabel:   "11:00 AM",
	})
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), f.otherDentist, appt.ID, 30)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Approve(context.Background(), f.patient, appt.ID, 30)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestApproveSchedulesWithChosenDuration(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.Request(context.Background(), f.patient, RequestInput{
		DentistID:   f.dentist.DentistID,
		ServiceName: "Root canal",
		Date:        f.day(),
		TimeLabel:   "11:00 AM",
	})
	require.NoError(t, err)

	updated, err := f.svc.Approve(context.Background(), f.dentist, appt.ID, 90)
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, updated.Status)
	assert.Equal(t, 90, updated.DurationMinutes)
	assert.Len(t, f.dispatch.byKind(notify.KindAppointmentApproved), 1)
}

func TestApproveBlockedByOccupiedSpan(t *testing.T) {
	f := newFixture(t)
	f.seedScheduled(t, "11:00 AM", 60)

	appt, err := f.svc.Request(context.Background(), f.patient, RequestInput{
		DentistID:   f.dentist.DentistID,
		ServiceName: "Checkup",
		Date:        f.day(),
		TimeLabel:   "11:30 AM",
	})
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), f.dentist, appt.ID, 30)
	assert.ErrorIs(t, err, ErrSlotOccupied)

	kept, err := f.repo.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, kept.Status)
}

func TestApproveRejectsTerminalStates(t *testing.T) {
	f := newFixture(t)
	appt := f.seedScheduled(t, "11:00 AM", 30)

	_, err := f.svc.Approve(context.Background(), f.dentist, appt.ID, 30)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelScheduledNeedsJustification(t *testing.T) {
	f := newFixture(t)
	appt := f.seedScheduled(t, "11:00 AM", 30)

	_, err := f.svc.Cancel(context.Background(), f.dentist, appt.ID, "no")
	assert.ErrorIs(t, err, ErrValidation)

	kept, err := f.repo.GetByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, kept.Status)

	updated, err := f.svc.Cancel(context.Background(), f.dentist, appt.ID, "equipment failure, must reschedule")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
	assert.Contains(t, updated.Notes, "equipment failure")
}

func TestCancelPendingSkipsJustification(t *testing.T) {
	f := newFixture(t)

	appt, err := f.svc.Request(context.Background(), f.patient, RequestInput{
		DentistID:   f.dentist.DentistID,
		ServiceName: "Checkup",
		Date:        f.day(),
		TimeLabel:   "11:00 AM",
	})
	require.NoError(t, err)

	updated, err := f.svc.Cancel(context.Background(), f.dentist, appt.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
	assert.Empty(t, updated.Notes)
}

func TestCancelForbiddenForOtherDentist(t *testing.T) {
	f := newFixture(t)
	appt := f.seedScheduled(t, "11:00 AM", 30)

	_, err := f.svc.Cancel(context.Background(), f.otherDentist, appt.ID, "taking over this slot")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSweepStaleIsIdempotent(t *testing.T) {
	f := newFixture(t)

	past := &Appointment{
		PatientID:       f.patient.PatientID,
		DentistID:       f.dentist.DentistID,
		ServiceName:     "Cleaning",
		Date:            f.day().AddDate(0, 0, -3),
		TimeLabel:       "09:00 AM",
		DurationMinutes: 30,
		Status:          StatusScheduled,
	}
	require.NoError(t, f.repo.Create(context.Background(), past))
	f.seedScheduled(t, "09:00 AM", 30) // today, must survive

	count, err := f.svc.SweepStale(context.Background(), f.day())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	swept, err := f.repo.GetByID(context.Background(), past.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, swept.Status)

	count, err = f.svc.SweepStale(context.Background(), f.day())
	require.NoError(t, err)
	assert.Zero(t, count, "second sweep over the same data writes nothing")
}

func TestScheduleForDay(t *testing.T) {
	f := newFixture(t)
	f.seedScheduled(t, "10:00 AM", 60)

	slots, err := f.svc.ScheduleForDay(context.Background(), f.dentist.DentistID, f.day())
	require.NoError(t, err)
	require.Len(t, slots, 31)

	byLabel := make(map[string]bool, len(slots))
	for _, s := range slots {
		byLabel[s.Label] = s.Occupied
	}
	assert.True(t, byLabel["10:00 AM"])
	assert.True(t, byLabel["10:30 AM"])
	assert.False(t, byLabel["11:00 AM"])
}

func TestScheduleForDayUnknownDentist(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ScheduleForDay(context.Background(), uuid.New(), f.day())
	assert.ErrorIs(t, err, directory.ErrDentistNotFound)
}
