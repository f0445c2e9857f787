package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied at startup. Statements are idempotent so every binary can
// run them without coordination.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                  UUID PRIMARY KEY,
		name                TEXT NOT NULL,
		phone               TEXT NOT NULL DEFAULT '',
		fcm_token           TEXT NOT NULL DEFAULT '',
		locale              TEXT NOT NULL DEFAULT 'es',
		mute_emergencies    BOOLEAN NOT NULL DEFAULT false,
		mute_appointments   BOOLEAN NOT NULL DEFAULT false,
		mute_status_changes BOOLEAN NOT NULL DEFAULT false,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS dentists (
		id                      UUID PRIMARY KEY,
		user_id                 UUID NOT NULL REFERENCES users(id),
		specialty               TEXT NOT NULL DEFAULT '',
		available_for_emergency BOOLEAN NOT NULL DEFAULT false,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS patients (
		id         UUID PRIMARY KEY,
		user_id    UUID NOT NULL REFERENCES users(id),
		dni        TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS patients_dni_idx ON patients (dni) WHERE dni <> ''`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id               UUID PRIMARY KEY,
		patient_id       UUID NOT NULL REFERENCES patients(id),
		dentist_id       UUID NOT NULL REFERENCES dentists(id),
		service_name     TEXT NOT NULL,
		visit_date       DATE NOT NULL,
		time_label       TEXT NOT NULL,
		duration_minutes INT NOT NULL DEFAULT 30,
		notes            TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS appointments_dentist_date_idx
		ON appointments (dentist_id, visit_date) WHERE status = 'SCHEDULED'`,
	`CREATE TABLE IF NOT EXISTS emergencies (
		id                  UUID PRIMARY KEY,
		requester_name      TEXT NOT NULL,
		dni                 TEXT NOT NULL DEFAULT '',
		phone               TEXT NOT NULL,
		description         TEXT NOT NULL,
		patient_id          UUID REFERENCES patients(id),
		target_dentist_id   UUID REFERENCES dentists(id),
		assigned_dentist_id UUID REFERENCES dentists(id),
		status              TEXT NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS emergencies_pending_idx ON emergencies (status) WHERE status = 'PENDING'`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id           UUID PRIMARY KEY,
		recipient_id UUID NOT NULL REFERENCES users(id),
		category     TEXT NOT NULL,
		title        TEXT NOT NULL,
		message      TEXT NOT NULL,
		link         TEXT NOT NULL DEFAULT '',
		read         BOOLEAN NOT NULL DEFAULT false,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_recipient_idx ON notifications (recipient_id, created_at DESC)`,
}

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
