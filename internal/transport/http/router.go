package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"discussfront/internal/handler"
	"discussfront/internal/httputil"
	sessionmw "discussfront/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	ThreadHandler  *handler.ThreadHandler
	CommentHandler *handler.CommentHandler
	NoticeHandler  *handler.NoticeHandler

	// HealthChecks are run by /health; any failure answers 503.
	HealthChecks map[string]func(ctx context.Context) error
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// Health check endpoint (useful for deployment/monitoring)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		for name, check := range cfg.HealthChecks {
			if err := check(r.Context()); err != nil {
				status[name] = err.Error()
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httputil.WriteJSON(w, code, status)
	})
	r.Handle("/metrics", promhttp.Handler())

	// Everything else is scoped to a viewer session
	r.Group(func(r chi.Router) {
		r.Use(sessionmw.SessionMiddleware)

		r.Route("/posts/{postID}/comments", func(r chi.Router) {
			r.Get("/", cfg.ThreadHandler.Get)
			r.Post("/", cfg.ThreadHandler.Reply)
			r.Post("/more", cfg.ThreadHandler.LoadMore)
		})

		r.Route("/comments/{id}", func(r chi.Router) {
			r.Get("/", cfg.CommentHandler.Get)
			r.Delete("/", cfg.CommentHandler.Delete)
			r.Post("/vote", cfg.CommentHandler.Vote)
			r.Post("/subscribe", cfg.CommentHandler.Subscribe)
			r.Post("/remove", cfg.CommentHandler.Remove)
			r.Patch("/moderation", cfg.CommentHandler.Moderate)
		})

		r.Get("/users/{username}/comments", cfg.CommentHandler.ListByUser)

		r.Get("/notices", cfg.NoticeHandler.List)
	})

	return r
}
