package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	id, patient_id, dentist_id, service_name, visit_date, time_label,
	duration_minutes, notes, status, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DentistID,
		&a.ServiceName,
		&a.Date,
		&a.TimeLabel,
		&a.DurationMinutes,
		&a.Notes,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *PgRepository) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_id, dentist_id, service_name, visit_date, time_label,
			 duration_minutes, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.PatientID, a.DentistID, a.ServiceName, DateOnly(a.Date), a.TimeLabel,
		a.DurationMinutes, a.Notes, a.Status)

	created, err := scanAppointment(row)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	*a = *created
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListForDentistDay(ctx context.Context, dentistID uuid.UUID, date time.Time) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE dentist_id = $1 AND visit_date = $2
		ORDER BY time_label
	`, dentistID, DateOnly(date))
}

func (r *PgRepository) ListByDentist(ctx context.Context, dentistID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE dentist_id = $1
		ORDER BY visit_date DESC, time_label
		LIMIT $2 OFFSET $3
	`, dentistID, limit, offset)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY visit_date DESC, time_label
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
}

func (r *PgRepository) list(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) Schedule(ctx context.Context, id uuid.UUID, durationMinutes int) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    duration_minutes = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $4
		RETURNING `+appointmentColumns+`
	`, id, StatusScheduled, durationMinutes, StatusPending)

	return scanAppointment(row)
}

func (r *PgRepository) CancelFrom(ctx context.Context, id uuid.UUID, from Status, note string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    notes = concat_ws(E'\n', NULLIF(notes, ''), NULLIF($3, '')),
		    updated_at = now()
		WHERE id = $1
		  AND status = $4
		RETURNING `+appointmentColumns+`
	`, id, StatusCancelled, note, from)

	return scanAppointment(row)
}

func (r *PgRepository) ReplaceBooking(ctx context.Context, conflictID uuid.UUID, justification string, replacement *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin override tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
		    notes = concat_ws(E'\n', NULLIF(notes, ''), NULLIF($3, '')),
		    updated_at = now()
		WHERE id = $1
		  AND status = $4
	`, conflictID, StatusCancelled, justification, StatusScheduled)
	if err != nil {
		return fmt.Errorf("cancel conflicting appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflictChanged
	}

	if replacement.ID == uuid.Nil {
		replacement.ID = uuid.New()
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_id, dentist_id, service_name, visit_date, time_label,
			 duration_minutes, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+appointmentColumns+`
	`, replacement.ID, replacement.PatientID, replacement.DentistID, replacement.ServiceName,
		DateOnly(replacement.Date), replacement.TimeLabel, replacement.DurationMinutes,
		replacement.Notes, StatusScheduled)

	created, err := scanAppointment(row)
	if err != nil {
		return fmt.Errorf("insert replacement appointment: %w", err)
	}
	*replacement = *created

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit override tx: %w", err)
	}
	return nil
}

func (r *PgRepository) CompleteStale(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $1,
		    updated_at = now()
		WHERE status = $2
		  AND visit_date < $3
	`, StatusCompleted, StatusScheduled, DateOnly(before))
	if err != nil {
		return 0, fmt.Errorf("complete stale appointments: %w", err)
	}
	return tag.RowsAffected(), nil
}
