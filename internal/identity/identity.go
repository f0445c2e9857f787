package identity

import (
	"context"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDentist Role = "DENTIST"
)

// Actor is the authenticated caller of a transition, as asserted by the
// identity provider. The engine trusts Role and the profile references and
// never re-derives them.
type Actor struct {
	UserID    uuid.UUID
	Role      Role
	DentistID uuid.UUID // set only when Role == RoleDentist
	PatientID uuid.UUID // set only when Role == RolePatient
	Locale    string
}

// Anonymous is the actor for unauthenticated requests, such as a public
// emergency submission.
var Anonymous = Actor{}

func (a Actor) IsDentist() bool {
	return a.Role == RoleDentist && a.DentistID != uuid.Nil
}

func (a Actor) IsPatient() bool {
	return a.Role == RolePatient && a.PatientID != uuid.Nil
}

func (a Actor) IsAnonymous() bool {
	return a.UserID == uuid.Nil
}

type contextKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

// FromContext returns the actor stored by the auth middleware, or Anonymous.
func FromContext(ctx context.Context) Actor {
	if a, ok := ctx.Value(contextKey{}).(Actor); ok {
		return a
	}
	return Anonymous
}
