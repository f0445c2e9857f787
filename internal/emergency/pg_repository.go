package emergency

import (
	"context"
	"errors"
	"fmt"

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

const emergencyColumns = `
	id, requester_name, dni, phone, description, patient_id,
	target_dentist_id, assigned_dentist_id, status, created_at, updated_at`

func scanEmergency(row pgx.Row) (*Emergency, error) {
	var e Emergency
	err := row.Scan(
		&e.ID,
		&e.RequesterName,
		&e.DNI,
		&e.Phone,
		&e.Description,
		&e.PatientID,
		&e.TargetDentistID,
		&e.AssignedDentistID,
		&e.Status,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmergencyNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *PgRepository) Create(ctx context.Context, e *Emergency) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO emergencies
			(id, requester_name, dni, phone, description, patient_id,
			 target_dentist_id, assigned_dentist_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8, now(), now())
		RETURNING `+emergencyColumns+`
	`, e.ID, e.RequesterName, e.DNI, e.Phone, e.Description, e.PatientID,
		e.TargetDentistID, e.Status)

	created, err := scanEmergency(row)
	if err != nil {
		return fmt.Errorf("insert emergency: %w", err)
	}
	*e = *created
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Emergency, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+emergencyColumns+`
		FROM emergencies
		WHERE id = $1
	`, id)
	return scanEmergency(row)
}

func (r *PgRepository) ListPendingFor(ctx context.Context, dentistID uuid.UUID) ([]Emergency, error) {
	return r.list(ctx, `
		SELECT `+emergencyColumns+`
		FROM emergencies
		WHERE status = $1
		  AND (target_dentist_id IS NULL OR target_dentist_id = $2)
		ORDER BY created_at
	`, StatusPending, dentistID)
}

func (r *PgRepository) ListAssignedTo(ctx context.Context, dentistID uuid.UUID) ([]Emergency, error) {
	return r.list(ctx, `
		SELECT `+emergencyColumns+`
		FROM emergencies
		WHERE assigned_dentist_id = $1
		ORDER BY created_at DESC
	`, dentistID)
}

func (r *PgRepository) list(ctx context.Context, query string, args ...any) ([]Emergency, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Emergency
	for rows.Next() {
		e, err := scanEmergency(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Claim performs the first-writer-wins conditional write. Under concurrent
// attempts exactly one UPDATE matches the PENDING row; every other caller
// scans zero rows and gets ErrEmergencyNotFound back for classification.
func (r *PgRepository) Claim(ctx context.Context, id, dentistID uuid.UUID) (*Emergency, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE emergencies
		SET status = $2,
		    assigned_dentist_id = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $4
		RETURNING `+emergencyColumns+`
	`, id, StatusApproved, dentistID, StatusPending)

	return scanEmergency(row)
}

func (r *PgRepository) Release(ctx context.Context, id, dentistID uuid.UUID) (*Emergency, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE emergencies
		SET status = $2,
		    assigned_dentist_id = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		  AND assigned_dentist_id = $4
		RETURNING `+emergencyColumns+`
	`, id, StatusCancelled, StatusApproved, dentistID)

	return scanEmergency(row)
}

func (r *PgRepository) CancelPending(ctx context.Context, id uuid.UUID) (*Emergency, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE emergencies
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+emergencyColumns+`
	`, id, StatusCancelled, StatusPending)

	return scanEmergency(row)
}

func (r *PgRepository) Finish(ctx context.Context, id, dentistID uuid.UUID) (*Emergency, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE emergencies
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		  AND assigned_dentist_id = $4
		RETURNING `+emergencyColumns+`
	`, id, StatusFinished, StatusApproved, dentistID)

	return scanEmergency(row)
}
