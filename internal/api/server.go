// Package api serves the notification sink and reminder job controls
// over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nhle/bizops/internal/model"
	"github.com/nhle/bizops/internal/scheduler"
	"github.com/nhle/bizops/internal/store"
)

// NotificationStore is the owner-scoped notification API.
type NotificationStore interface {
	ListNotifications(ctx context.Context, userID string, f store.NotificationFilter) ([]model.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	DeleteNotification(ctx context.Context, userID, id string) error
}

// Jobs exposes scheduler state and manual runs.
type Jobs interface {
	Statuses() []scheduler.Status
	RunNow(ctx context.Context, name string) error
}

// LiveFeed upgrades a request to a live notification stream for userID.
type LiveFeed interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string)
}

// Deps wires the server. Gatherer may be nil to omit /metrics.
type Deps struct {
	Store       NotificationStore
	Jobs        Jobs
	Feed        LiveFeed
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
	Logger      *zap.Logger
}

type server struct {
	store  NotificationStore
	jobs   Jobs
	feed   LiveFeed
	logger *zap.Logger
}

// NewHandler builds the router.
func NewHandler(d Deps) http.Handler {
	s := &server{
		store:  d.Store,
		jobs:   d.Jobs,
		feed:   d.Feed,
		logger: d.Logger.With(zap.String("component", "api")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", userHeader},
		MaxAge:         300,
	}))

	r.Get("/api/health", s.health)
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/notifications", func(r chi.Router) {
		r.Use(requireUser)

		r.Get("/", s.listNotifications)
		r.Get("/unread/count", s.countUnread)
		r.Put("/read-all", s.markAllRead)
		r.Put("/{id}/read", s.markRead)
		r.Delete("/{id}", s.deleteNotification)
		if s.feed != nil {
			r.Get("/ws", s.liveFeed)
		}
	})

	if s.jobs != nil {
		r.Route("/api/reminders/jobs", func(r chi.Router) {
			r.Use(requireUser)

			r.Get("/", s.listJobs)
			r.Post("/{name}/run", s.runJob)
		})
	}

	return r
}
