package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.Category,
		&n.Title,
		&n.Message,
		&n.Link,
		&n.Read,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (s *PgStore) Insert(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, category, title, message, link, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, COALESCE($7, now()))
	`, n.ID, n.RecipientID, n.Category, n.Title, n.Message, n.Link, nullableTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PgStore) ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, recipient_id, category, title, message, link, read, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PgStore) CountUnread(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM notifications
		WHERE recipient_id = $1 AND read = false
	`, recipientID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead is recipient-gated: a notification can only be marked read by the
// user it was addressed to.
func (s *PgStore) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET read = true
		WHERE id = $1 AND recipient_id = $2
	`, id, recipientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *PgStore) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET read = true
		WHERE recipient_id = $1 AND read = false
	`, recipientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
