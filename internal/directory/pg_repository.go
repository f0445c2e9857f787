package directory

import (
	"context"
	"errors"

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

const dentistColumns = `
	d.id, d.user_id, u.name, u.phone, d.specialty, d.available_for_emergency, d.created_at, d.updated_at`

func scanDentist(row pgx.Row) (*Dentist, error) {
	var d Dentist
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Name,
		&d.Phone,
		&d.Specialty,
		&d.AvailableForEmergency,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDentistNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.DNI,
		&p.Phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) DentistByID(ctx context.Context, id uuid.UUID) (*Dentist, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+dentistColumns+`
		FROM dentists d
		JOIN users u ON u.id = d.user_id
		WHERE d.id = $1
	`, id)
	return scanDentist(row)
}

func (r *PgRepository) PatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT p.id, p.user_id, u.name, p.dni, u.phone, p.created_at, p.updated_at
		FROM patients p
		JOIN users u ON u.id = p.user_id
		WHERE p.id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) PatientByDNI(ctx context.Context, dni string) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT p.id, p.user_id, u.name, p.dni, u.phone, p.created_at, p.updated_at
		FROM patients p
		JOIN users u ON u.id = p.user_id
		WHERE p.dni = $1
	`, dni)
	return scanPatient(row)
}

func (r *PgRepository) ListEmergencyAvailableDentists(ctx context.Context) ([]Dentist, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+dentistColumns+`
		FROM dentists d
		JOIN users u ON u.id = d.user_id
		WHERE d.available_for_emergency = true
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Dentist
	for rows.Next() {
		d, err := scanDentist(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ContactByUserID(ctx context.Context, userID uuid.UUID) (*Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, phone, fcm_token, locale,
		       mute_emergencies, mute_appointments, mute_status_changes
		FROM users
		WHERE id = $1
	`, userID).Scan(
		&c.UserID,
		&c.Name,
		&c.Phone,
		&c.PushToken,
		&c.Locale,
		&c.Prefs.MuteEmergencies,
		&c.Prefs.MuteAppointments,
		&c.Prefs.MuteStatusChanges,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *PgRepository) PrefsByUserID(ctx context.Context, userID uuid.UUID) (Prefs, error) {
	var p Prefs
	err := r.pool.QueryRow(ctx, `
		SELECT mute_emergencies, mute_appointments, mute_status_changes
		FROM users
		WHERE id = $1
	`, userID).Scan(&p.MuteEmergencies, &p.MuteAppointments, &p.MuteStatusChanges)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Prefs{}, ErrUserNotFound
		}
		return Prefs{}, err
	}
	return p, nil
}

func (r *PgRepository) UpdatePrefs(ctx context.Context, userID uuid.UUID, p Prefs) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET mute_emergencies = $2,
		    mute_appointments = $3,
		    mute_status_changes = $4,
		    updated_at = now()
		WHERE id = $1
	`, userID, p.MuteEmergencies, p.MuteAppointments, p.MuteStatusChanges)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
