package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smilecare/dental-scheduling/internal/config"
	"github.com/smilecare/dental-scheduling/internal/db"
)

// The simulator stresses the part of the engine that must stay correct under
// contention: it creates broadcast emergencies and has every dentist race to
// claim each one. A healthy run shows exactly one winner per emergency and a
// pile of 409s.

type SimConfig struct {
	APIBaseURL  string
	Rounds      int
	DentistCap  int
	PostgresDSN string
	JWTSecret   string
}

type dentistIdentity struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Token  string
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p95
}

type Simulator struct {
	config   SimConfig
	dentists []dentistIdentity
	client   *http.Client

	create OperationMetrics
	claim  OperationMetrics

	badRounds int64 // rounds where winners != 1
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required (set in .env or environment)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dentists, err := loadDentists(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load dentists: %v", err)
	}
	log.Printf("loaded %d dentists, running %d claim rounds", len(dentists), cfg.Rounds)

	sim := &Simulator{
		config:   cfg,
		dentists: dentists,
		client:   &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Rounds:      getInt("SIM_ROUNDS", 50),
		DentistCap:  getInt("SIM_DENTIST_CAP", 20),
		PostgresDSN: baseCfg.PostgresDSN,
		JWTSecret:   baseCfg.JWTSecret,
	}
}

func loadDentists(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) ([]dentistIdentity, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, user_id FROM dentists WHERE available_for_emergency LIMIT $1
	`, cfg.DentistCap)
	if err != nil {
		return nil, fmt.Errorf("query dentists: %w", err)
	}
	defer rows.Close()

	var dentists []dentistIdentity
	for rows.Next() {
		var d dentistIdentity
		if err := rows.Scan(&d.ID, &d.UserID); err != nil {
			return nil, err
		}
		d.Token, err = mintToken(cfg.JWTSecret, d)
		if err != nil {
			return nil, err
		}
		dentists = append(dentists, d)
	}
	if len(dentists) == 0 {
		return nil, fmt.Errorf("no emergency-available dentists found, run the seed first")
	}
	return dentists, rows.Err()
}

func mintToken(secret string, d dentistIdentity) (string, error) {
	claims := jwt.MapClaims{
		"sub":        d.UserID.String(),
		"role":       "DENTIST",
		"dentist_id": d.ID.String(),
		"exp":        time.Now().Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *Simulator) Run() {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for round := 0; round < s.config.Rounds; round++ {
		emergencyID, ok := s.createEmergency(ctx, rng)
		if !ok {
			continue
		}
		s.raceClaims(ctx, emergencyID)
	}
}

func (s *Simulator) createEmergency(ctx context.Context, rng *rand.Rand) (uuid.UUID, bool) {
	body, _ := json.Marshal(map[string]string{
		"name":        gofakeit.Name(),
		"phone":       gofakeit.Phone(),
		"description": "severe toothache, case " + strconv.Itoa(rng.Int()),
	})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/emergencies", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.create.Record(latency, false, false)
		return uuid.Nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		s.create.Record(latency, false, false)
		return uuid.Nil, false
	}

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil || created.ID == uuid.Nil {
		s.create.Record(latency, false, false)
		return uuid.Nil, false
	}

	s.create.Record(latency, true, false)
	return created.ID, true
}

// raceClaims fires every dentist at the same emergency concurrently and counts
// winners. Anything other than exactly one winner is a correctness failure.
func (s *Simulator) raceClaims(ctx context.Context, emergencyID uuid.UUID) {
	var winners int64
	var wg sync.WaitGroup

	for _, d := range s.dentists {
		wg.Add(1)
		go func(d dentistIdentity) {
			defer wg.Done()

			start := time.Now()
			url := fmt.Sprintf("%s/emergencies/%s/claim", s.config.APIBaseURL, emergencyID)
			req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
			req.Header.Set("Authorization", "Bearer "+d.Token)

			resp, err := s.client.Do(req)
			latency := time.Since(start)
			if err != nil {
				s.claim.Record(latency, false, false)
				return
			}
			defer resp.Body.Close()

			switch resp.StatusCode {
			case http.StatusOK:
				atomic.AddInt64(&winners, 1)
				s.claim.Record(latency, true, false)
			case http.StatusConflict:
				s.claim.Record(latency, false, true)
			default:
				s.claim.Record(latency, false, false)
			}
		}(d)
	}
	wg.Wait()

	if atomic.LoadInt64(&winners) != 1 {
		atomic.AddInt64(&s.badRounds, 1)
		log.Printf("round on %s finished with %d winners", emergencyID, winners)
	}
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("CLAIM RACE REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Rounds: %d  Dentists per round: %d\n\n", s.config.Rounds, len(s.dentists))

	printOperationReport("Create emergency", &s.create)
	printOperationReport("Claim", &s.claim)

	bad := atomic.LoadInt64(&s.badRounds)
	if bad == 0 {
		fmt.Println("All rounds finished with exactly one winner.")
	} else {
		fmt.Printf("FAIL: %d rounds did not finish with exactly one winner.\n", bad)
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond),
		max.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
