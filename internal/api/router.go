// Package api exposes the discovery service over HTTP.
//
// Routes:
//
//	GET  /jobs                 → filtered listing query
//	GET  /jobs/{id}            → one listing
//	POST /jobs/{id}/view       → increment view counter
//	POST /jobs/{id}/apply      → increment application counter
//	GET  /recommendations      → ranked listings for a user or ad-hoc skills
//	GET  /trending             → recent, trusted listings
//	GET  /search?q=            → semantic search, keyword match without embeddings
//	PUT  /profiles/{userID}    → store a user profile
//	POST /ingest               → trigger a manual ingestion pass
//	GET  /runs                 → recent ingestion runs
//	GET  /scheduler            → scheduler state and next runs
//	GET  /health, /metrics
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gophora/discovery-service/internal/observability"
)

// RouterConfig holds the HTTP-level knobs.
type RouterConfig struct {
	CORSAllowOrigins string
	RateLimitPerMin  int
}

// ParseOrigins splits a comma-separated origin list. Empty means "*".
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	out := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// Router builds the HTTP handler with middlewares and routes.
func (s *Server) Router(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	rate := cfg.RateLimitPerMin
	if rate <= 0 {
		rate = 30
	}

	r.Get("/jobs", s.listJobs)
	r.Get("/jobs/{id}", s.getJob)
	r.Get("/recommendations", s.recommendations)
	r.Get("/trending", s.trending)
	r.Get("/search", s.search)
	r.Get("/runs", s.runs)
	r.Get("/scheduler", s.schedulerStatus)

	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(rate, time.Minute))
		wr.Post("/jobs/{id}/view", s.incrementView)
		wr.Post("/jobs/{id}/apply", s.incrementApply)
		wr.Put("/profiles/{userID}", s.saveProfile)
		wr.Post("/ingest", s.triggerIngest)
	})

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())
	return r
}
