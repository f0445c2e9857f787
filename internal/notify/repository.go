package notify

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Store persists notification records. Rows are insert-only except for the
// recipient-gated read flag.
type Store interface {
	Insert(ctx context.Context, n *Notification) error
	ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]Notification, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
}
