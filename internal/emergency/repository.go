package emergency

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrEmergencyNotFound = errors.New("emergency not found")

// Repository contains all DB interactions the service needs. Claim, Release,
// CancelPending and Finish are conditional writes: each one embeds the
// expected current state in the UPDATE itself and reports a lost race as
// ErrEmergencyNotFound (zero rows), which the service classifies.
type Repository interface {
	Create(ctx context.Context, e *Emergency) error
	GetByID(ctx context.Context, id uuid.UUID) (*Emergency, error)

	// ListPendingFor returns PENDING emergencies visible to one dentist:
	// broadcasts plus requests targeted at them.
	ListPendingFor(ctx context.Context, dentistID uuid.UUID) ([]Emergency, error)
	ListAssignedTo(ctx context.Context, dentistID uuid.UUID) ([]Emergency, error)

	// Claim is the first-writer-wins primitive:
	// status=APPROVED, assigned=dentist WHERE status=PENDING.
	Claim(ctx context.Context, id, dentistID uuid.UUID) (*Emergency, error)

	// Release cancels an APPROVED emergency held by the given dentist and
	// clears the assignment back to NULL.
	Release(ctx context.Context, id, dentistID uuid.UUID) (*Emergency, error)

	// CancelPending cancels an emergency that was never claimed.
	CancelPending(ctx context.Context, id uuid.UUID) (*Emergency, error)

	// Finish closes an APPROVED emergency held by the given dentist.
	Finish(ctx context.Context, id, dentistID uuid.UUID) (*Emergency, error)
}
