package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/smilecare/dental-scheduling/internal/appointment"
	"github.com/smilecare/dental-scheduling/internal/directory"
	"github.com/smilecare/dental-scheduling/internal/emergency"
	"github.com/smilecare/dental-scheduling/internal/metrics"
	"github.com/smilecare/dental-scheduling/internal/notify"
)

type RouterConfig struct {
	Appointments  *appointment.Service
	Emergencies   *emergency.Service
	Notifications notify.Store
	Prefs         directory.PrefStore
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	JWTSecret     string
	Env           string
	Version       string
	Logger        zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(Authenticator(cfg.JWTSecret))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Emergency intake stays open: no account needed to ask for help.
	r.Post("/emergencies", createEmergencyHandler(cfg.Emergencies))

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)

		r.Get("/appointments", listAppointmentsHandler(cfg.Appointments))
		r.Post("/appointments", requestAppointmentHandler(cfg.Appointments))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))

		r.Get("/dentists/{id}/schedule", dentistScheduleHandler(cfg.Appointments))

		r.Get("/emergencies/{id}", getEmergencyHandler(cfg.Emergencies))
		r.Post("/emergencies/{id}/cancel", cancelEmergencyHandler(cfg.Emergencies))

		r.Get("/notifications", listNotificationsHandler(cfg.Notifications))
		r.Get("/notifications/unread-count", unreadCountHandler(cfg.Notifications))
		r.Post("/notifications/{id}/read", markNotificationReadHandler(cfg.Notifications))
		r.Post("/notifications/read-all", markAllNotificationsReadHandler(cfg.Notifications))
		r.Get("/notification-preferences", getPrefsHandler(cfg.Prefs))
		r.Put("/notification-preferences", updatePrefsHandler(cfg.Prefs))
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireDentist)

		r.Post("/appointments/book", bookAppointmentHandler(cfg.Appointments))
		r.Post("/appointments/{id}/approve", approveAppointmentHandler(cfg.Appointments))

		r.Get("/emergencies/pending", listPendingEmergenciesHandler(cfg.Emergencies))
		r.Get("/emergencies/assigned", listAssignedEmergenciesHandler(cfg.Emergencies))
		r.Post("/emergencies/{id}/claim", claimEmergencyHandler(cfg.Emergencies))
		r.Post("/emergencies/{id}/finish", finishEmergencyHandler(cfg.Emergencies))
	})

	return r
}
