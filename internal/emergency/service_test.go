package emergency

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
)

// fakeRepo reproduces the conditional-write semantics of the Postgres layer:
// every mutation checks the expected current state under the mutex and reports
// a miss as ErrEmergencyNotFound, exactly like a zero-row UPDATE.
type fakeRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*Emergency

	// beforeCancelPending, when set, runs before the write takes the mutex.
	// Tests use it to slip a concurrent state change into the race window.
	beforeCancelPending func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: make(map[uuid.UUID]*Emergency)}
}

func (r *fakeRepo) Create(_ context.Context, e *Emergency) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	r.byID[e.ID] = &cp
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*Emergency, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, ErrEmergencyNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeRepo) ListPendingFor(_ context.Context, dentistID uuid.UUID) ([]Emergency, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Emergency
	for _, e := range r.byID {
		if e.Status != StatusPending {
			continue
		}
		if e.TargetDentistID == nil || *e.TargetDentistID == dentistID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListAssignedTo(_ context.Context, dentistID uuid.UUID) ([]Emergency, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Emergency
	for _, e := range r.byID {
		if e.AssignedDentistID != nil && *e.AssignedDentistID == dentistID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeRepo) Claim(_ context.Context, id, dentistID uuid.UUID) (*Emergency, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok || e.Status != StatusPending {
		return nil, ErrEmergencyNotFound
	}
	d := dentistID
	e.Status = StatusApproved
	e.AssignedDentistID = &d
	e.UpdatedAt = time.Now()
	cp := *e
	return &cp, nil
}

func (r *fakeRepo) Release(_ context.Context, id, dentistID uuid.UUID) (*Emergency, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok || e.Status != StatusApproved || e.AssignedDentistID == nil || *e.AssignedDentistID != dentistID {
		return nil, ErrEmergencyNotFound
	}
	e.Status = StatusCancelled
	e.AssignedDentistID = nil
	e.UpdatedAt = time.Now()
	cp := *e
	return &cp, nil
}

func (r *fakeRepo) CancelPending(_ context.Context, id uuid.UUID) (*Emergency, error) {
	if r.beforeCancelPending != nil {
		r.beforeCancelPending()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok || e.Status != StatusPending {
		return nil, ErrEmergencyNotFound
	}
	e.Status = StatusCancelled
	e.UpdatedAt = time.Now()
	cp := *e
	return &cp, nil
}

func (r *fakeRepo) Finish(_ context.Context, id, dentistID uuid.UUID) (*Emergency, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok || e.Status != StatusApproved || e.AssignedDentistID == nil || *e.AssignedDentistID != dentistID {
		return nil, ErrEmergencyNotFound
	}
	e.Status = StatusFinished
	e.UpdatedAt = time.Now()
	cp := *e
	return &cp, nil
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

type fakeDispatcher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (d *fakeDispatcher) Dispatch(_ context.Context, ev notify.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *fakeDispatcher) last() (notify.Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.events) == 0 {
		return notify.Event{}, false
	}
	return d.events[len(d.events)-1], true
}

type fixture struct {
	svc      *Service
	repo     *fakeRepo
	dispatch *fakeDispatcher

	dentists []identity.Actor
	patient  identity.Actor
}

func newFixture(t *testing.T, dentistCount int) *fixture {
	t.Helper()

	dir := &fakeDir{
		dentists: make(map[uuid.UUID]*directory.Dentist),
		patients: make(map[uuid.UUID]*directory.Patient),
	}

	var dentists []identity.Actor
	for i := 0; i < dentistCount; i++ {
		id, userID := uuid.New(), uuid.New()
		dir.dentists[id] = &directory.Dentist{
			ID: id, UserID: userID, Name: "Dra. Ruiz", AvailableForEmergency: true,
		}
		dentists = append(dentists, identity.Actor{
			UserID: userID, Role: identity.RoleDentist, DentistID: id,
		})
	}

	patientID, patientUserID := uuid.New(), uuid.New()
	dir.patients[patientID] = &directory.Patient{
		ID: patientID, UserID: patientUserID, Name: "Carlos Vega", DNI: "45678901",
	}

	repo := newFakeRepo()
	dispatch := &fakeDispatcher{}

	return &fixture{
		svc:      NewService(repo, dir, dispatch, zerolog.Nop()),
		repo:     repo,
		dispatch: dispatch,
		dentists: dentists,
		patient:  identity.Actor{UserID: patientUserID, Role: identity.RolePatient, PatientID: patientID},
	}
}

func (f *fixture) createBroadcast(t *testing.T) *Emergency {
	t.Helper()
	e, err := f.svc.Create(context.Background(), CreateInput{
		RequesterName: "Maria Lopez",
		Phone:         "+51 999 888 777",
		Description:   "broken molar, severe pain",
	})
	require.NoError(t, err)
	return e
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.svc.Create(context.Background(), CreateInput{Phone: "1", Description: "pain"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Create(context.Background(), CreateInput{RequesterName: "x", Description: "pain"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Create(context.Background(), CreateInput{RequesterName: "x", Phone: "1"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateBroadcastAlertsAllAvailableDentists(t *testing.T) {
	f := newFixture(t, 3)

	e := f.createBroadcast(t)
	assert.Equal(t, StatusPending, e.Status)
	assert.True(t, e.Broadcast())

	ev, ok := f.dispatch.last()
	require.True(t, ok)
	assert.Equal(t, notify.KindEmergencyCreated, ev.Kind)
	assert.True(t, ev.TextAlert)
	assert.Len(t, ev.Recipients, 3)
}

func TestCreateBindsKnownDNI(t *testing.T) {
	f := newFixture(t, 1)

	e, err := f.svc.Create(context.Background(), CreateInput{
		RequesterName: "Carlos Vega",
		DNI:           "45678901",
		Phone:         "+51 111 222 333",
		Description:   "lost filling",
	})
	require.NoError(t, err)
	require.NotNil(t, e.PatientID)
	assert.Equal(t, f.patient.PatientID, *e.PatientID)

	// Unknown DNI still creates the request, just unbound.
	e2, err := f.svc.Create(context.Background(), CreateInput{
		RequesterName: "Someone Else",
		DNI:           "00000000",
		Phone:         "+51 111 222 334",
		Description:   "chipped tooth",
	})
	require.NoError(t, err)
	assert.Nil(t, e2.PatientID)
}

func TestCreateTargetedAlertsOnlyTarget(t *testing.T) {
	f := newFixture(t, 3)
	target := f.dentists[1]

	e, err := f.svc.Create(context.Background(), CreateInput{
		RequesterName:   "Maria Lopez",
		Phone:           "+51 999 888 777",
		Description:     "crown fell off",
		TargetDentistID: &target.DentistID,
	})
	require.NoError(t, err)
	assert.False(t, e.Broadcast())

	ev, ok := f.dispatch.last()
	require.True(t, ok)
	assert.Equal(t, []uuid.UUID{target.UserID}, ev.Recipients)
}

func TestClaimConcurrentExactlyOneWinner(t *testing.T) {
	const racers = 16
	f := newFixture(t, racers)
	e := f.createBroadcast(t)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []uuid.UUID
		conflict int
	)
	for _, actor := range f.dentists {
		wg.Add(1)
		go func(actor identity.Actor) {
			defer wg.Done()
			claimed, err := f.svc.Claim(context.Background(), actor, e.ID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				if assert.NotNil(t, claimed.AssignedDentistID) {
					winners = append(winners, *claimed.AssignedDentistID)
				}
			case assert.ErrorIs(t, err, ErrAlreadyClaimed):
				conflict++
			}
		}(actor)
	}
	wg.Wait()

	require.Len(t, winners, 1, "exactly one dentist wins the race")
	assert.Equal(t, racers-1, conflict, "every loser sees an authoritative conflict")

	final, err := f.repo.GetByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, final.Status)
	require.NotNil(t, final.AssignedDentistID)
	assert.Equal(t, winners[0], *final.AssignedDentistID)
}

func TestClaimTargetedRejectsOtherDentist(t *testing.T) {
	f := newFixture(t, 2)
	target := f.dentists[0]

	e, err := f.svc.Create(context.Background(), CreateInput{
		RequesterName:   "Maria Lopez",
		Phone:           "+51 999 888 777",
		Description:     "abscess",
		TargetDentistID: &target.DentistID,
	})
	require.NoError(t, err)

	_, err = f.svc.Claim(context.Background(), f.dentists[1], e.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Claim(context.Background(), target, e.ID)
	assert.NoError(t, err)
}

func TestClaimRequiresDentist(t *testing.T) {
	f := newFixture(t, 1)
	e := f.createBroadcast(t)

	_, err := f.svc.Claim(context.Background(), f.patient, e.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCancelApprovedReleasesClaim(t *testing.T) {
	f := newFixture(t, 2)
	e := f.createBroadcast(t)

	winner := f.dentists[0]
	_, err := f.svc.Claim(context.Background(), winner, e.ID)
	require.NoError(t, err)

	// Only the assigned dentist may cancel an APPROVED emergency.
	_, err = f.svc.Cancel(context.Background(), f.dentists[1], e.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	cancelled, err := f.svc.Cancel(context.Background(), winner, e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.AssignedDentistID, "cancelling releases the claim")

	// Terminal: nobody can re-claim a cancelled emergency.
	_, err = f.svc.Claim(context.Background(), f.dentists[1], e.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelPendingByBoundPatient(t *testing.T) {
	f := newFixture(t, 1)

	e, err := f.svc.Create(context.Background(), CreateInput{
		RequesterName: "Carlos Vega",
		DNI:           "45678901",
		Phone:         "+51 111 222 333",
		Description:   "lost filling",
	})
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(context.Background(), f.patient, e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestCancelPendingLostToConcurrentClaim(t *testing.T) {
	f := newFixture(t, 2)
	e := f.createBroadcast(t)
	winner := f.dentists[0]

	// The claim lands between the cancelling dentist's read and their write.
	// The emergency now belongs to the winner, so the refusal is ownership,
	// not a broken state machine.
	f.repo.beforeCancelPending = func() {
		_, err := f.repo.Claim(context.Background(), e.ID, winner.DentistID)
		require.NoError(t, err)
	}

	_, err := f.svc.Cancel(context.Background(), f.dentists[1], e.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	final, err := f.repo.GetByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, final.Status)
	require.NotNil(t, final.AssignedDentistID)
	assert.Equal(t, winner.DentistID, *final.AssignedDentistID)
}

func TestCancelPendingUnboundPatientForbidden(t *testing.T) {
	f := newFixture(t, 1)
	e := f.createBroadcast(t)

	_, err := f.svc.Cancel(context.Background(), f.patient, e.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestFinishOnlyByAssignedDentist(t *testing.T) {
	f := newFixture(t, 2)
	e := f.createBroadcast(t)

	winner := f.dentists[0]
	_, err := f.svc.Claim(context.Background(), winner, e.ID)
	require.NoError(t, err)

	_, err = f.svc.Finish(context.Background(), f.dentists[1], e.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	finished, err := f.svc.Finish(context.Background(), winner, e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, finished.Status)
	require.NotNil(t, finished.AssignedDentistID, "finishing keeps the assignment for the record")
}

func TestFinishPendingIsInvalid(t *testing.T) {
	f := newFixture(t, 1)
	e := f.createBroadcast(t)

	_, err := f.svc.Finish(context.Background(), f.dentists[0], e.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGetBroadcastVisibleToAnyDentist(t *testing.T) {
	f := newFixture(t, 2)
	e := f.createBroadcast(t)

	got, err := f.svc.Get(context.Background(), f.dentists[1], e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
}

func TestGetTargetedHiddenFromOtherDentists(t *testing.T) {
	f := newFixture(t, 2)
	target := f.dentists[0]

	e, err := f.svc.Create(context.Background(), CreateInput{
		RequesterName:   "Maria Lopez",
		Phone:           "+51 999 888 777",
		Description:     "abscess",
		TargetDentistID: &target.DentistID,
	})
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), f.dentists[1], e.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.svc.Get(context.Background(), target, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
}

func TestGetGuardsRequesterContactDetails(t *testing.T) {
	f := newFixture(t, 1)

	e, err := f.svc.Create(context.Background(), CreateInput{
		RequesterName: "Carlos Vega",
		DNI:           "45678901",
		Phone:         "+51 111 222 333",
		Description:   "lost filling",
	})
	require.NoError(t, err)

	// The bound patient sees their own request.
	got, err := f.svc.Get(context.Background(), f.patient, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "45678901", got.DNI)

	// A different patient does not, even authenticated.
	stranger := identity.Actor{
		UserID: uuid.New(), Role: identity.RolePatient, PatientID: uuid.New(),
	}
	_, err = f.svc.Get(context.Background(), stranger, e.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	// Neither does an anonymous actor.
	_, err = f.svc.Get(context.Background(), identity.Actor{}, e.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestListPendingForDentist(t *testing.T) {
	f := newFixture(t, 2)
	f.createBroadcast(t)

	target := f.dentists[0]
	_, err := f.svc.Create(context.Background(), CreateInput{
		RequesterName:   "Maria Lopez",
		Phone:           "+51 999 888 777",
		Description:     "abscess",
		TargetDentistID: &target.DentistID,
	})
	require.NoError(t, err)

	mine, err := f.svc.ListPendingFor(context.Background(), target)
	require.NoError(t, err)
	assert.Len(t, mine, 2, "broadcast plus targeted")

	other, err := f.svc.ListPendingFor(context.Background(), f.dentists[1])
	require.NoError(t, err)
	assert.Len(t, other, 1, "only the broadcast")
}
