package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smilecare/dental-scheduling/internal/appointment"
	"github.com/smilecare/dental-scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	dentistIDs, err := seedDentists(context.Background(), pool, 20)
	if err != nil {
		log.Fatalf("seed dentists: %v", err)
	}
	patientIDs, err := seedPatients(context.Background(), pool, 500)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, dentistIDs, patientIDs, 2000); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

var specialties = []string{
	"Orthodontics",
	"Endodontics",
	"Periodontics",
	"Pediatric Dentistry",
	"Oral Surgery",
	"Prosthodontics",
	"General Dentistry",
}

var services = []string{
	"Cleaning",
	"Whitening",
	"Root Canal",
	"Extraction",
	"Filling",
	"Crown",
	"Checkup",
}

func seedDentists(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d dentists", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		userID := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, name, phone, fcm_token, locale)
			VALUES ($1, $2, $3, $4, $5)
		`, userID, gofakeit.Name(), gofakeit.Phone(), gofakeit.UUID(), pickLocale())
		if err != nil {
			return nil, err
		}

		id := uuid.New()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		_, err = tx.Exec(ctx, `
			INSERT INTO dentists (id, user_id, specialty, available_for_emergency)
			VALUES ($1, $2, $3, $4)
		`, id, userID, spec, gofakeit.Bool())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("dentists seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 100

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			userID := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, name, phone, fcm_token, locale)
				VALUES ($1, $2, $3, $4, $5)
			`, userID, gofakeit.Name(), gofakeit.Phone(), gofakeit.UUID(), pickLocale())
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}

			id := uuid.New()
			dni := fmt.Sprintf("%08d", gofakeit.Number(10000000, 99999999))
			_, err = tx.Exec(ctx, `
				INSERT INTO patients (id, user_id, dni)
				VALUES ($1, $2, $3)
			`, id, userID, dni)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return ids, nil
}

func seedAppointments(ctx context.Context, pool *pgxpool.Pool, dentists, patients []uuid.UUID, count int) error {
	log.Printf("seeding %d appointments", count)

	statuses := []appointment.Status{
		appointment.StatusPending,
		appointment.StatusScheduled,
		appointment.StatusScheduled,
		appointment.StatusCancelled,
		appointment.StatusCompleted,
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		dentist := dentists[gofakeit.Number(0, len(dentists)-1)]
		patient := patients[gofakeit.Number(0, len(patients)-1)]
		status := statuses[gofakeit.Number(0, len(statuses)-1)]
		service := services[gofakeit.Number(0, len(services)-1)]

		date := time.Now().AddDate(0, 0, gofakeit.Number(-30, 30))
		slot := appointment.FormatSlot(7*60 + gofakeit.Number(0, 30)*30)
		duration := []int{30, 60, 90}[gofakeit.Number(0, 2)]

		_, err := tx.Exec(ctx, `
			INSERT INTO appointments (id, patient_id, dentist_id, service_name, visit_date, time_label, duration_minutes, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.New(), patient, dentist, service, date.Format("2006-01-02"), slot, duration, status)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("appointments seeded")
	return nil
}

func pickLocale() string {
	if gofakeit.Number(0, 3) == 0 {
		return "en"
	}
	return "es"
}
