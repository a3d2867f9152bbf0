package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"gophora/discovery-service/internal/ingest"
	"gophora/discovery-service/internal/matcher"
	"gophora/discovery-service/internal/model"
	"gophora/discovery-service/internal/scheduler"
	"gophora/discovery-service/internal/store"
)

// Recommender ranks listings for users.
type Recommender interface {
	Recommend(ctx context.Context, p model.UserProfile, limit int) []matcher.Scored
	RecommendForUser(ctx context.Context, userID string, limit int) []matcher.Scored
	Trending(ctx context.Context, limit int) []matcher.Scored
	Search(ctx context.Context, query string, limit int) []matcher.Scored
}

// Ingester runs a manual ingestion pass.
type Ingester interface {
	RunManual(ctx context.Context) ingest.Summary
}

// TaskRunner is the part of the scheduler the API needs.
type TaskRunner interface {
	Status() scheduler.Status
	RunDetached(name string, fn func(ctx context.Context) error) error
}

// HealthChecker probes dependencies and returns failures by name.
type HealthChecker func(ctx context.Context) map[string]string

// Deps are the Server's collaborators. Health may be nil.
type Deps struct {
	Store       store.Store
	Profiles    store.ProfileRepository
	Recommender Recommender
	Ingester    Ingester
	Scheduler   TaskRunner
	Health      HealthChecker
	Version     string
}

// Server holds shared dependencies of the HTTP handlers.
type Server struct {
	deps   Deps
	logger *zap.Logger
}

// NewServer returns a configured Server.
func NewServer(logger *zap.Logger, deps Deps) *Server {
	return &Server{deps: deps, logger: logger.Named("api")}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

type listQuery struct {
	Category   string `validate:"omitempty,oneof=work education hobbies contribution"`
	SkillLevel string `validate:"omitempty,oneof=zero low medium high"`
	Group      string `validate:"omitempty,oneof=skill_based immediate"`
	Status     string `validate:"omitempty,oneof=active inactive"`
	Approved   string `validate:"omitempty,oneof=true false any"`
	Source     string `validate:"max=64"`
	Location   string `validate:"max=128"`
	Keyword    string `validate:"max=128"`
	Limit      int    `validate:"gte=0,lte=500"`
}

type recommendQuery struct {
	UserID string   `validate:"required_without=Skills,max=128"`
	Skills []string `validate:"required_without=UserID,max=50,dive,max=64"`
	Limit  int      `validate:"gte=0,lte=500"`
}

type searchQuery struct {
	Query string `validate:"required,max=256"`
	Limit int    `validate:"gte=0,lte=500"`
}

type profileBody struct {
	Skills    []string `json:"skills" validate:"max=50,dive,required,max=64"`
	Interests []string `json:"interests" validate:"max=50,dive,required,max=64"`
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := parseLimit(w, q.Get("limit"))
	if !ok {
		return
	}
	lq := listQuery{
		Category:   strings.ToLower(strings.TrimSpace(q.Get("category"))),
		SkillLevel: strings.ToLower(strings.TrimSpace(q.Get("skill_level"))),
		Group:      strings.ToLower(strings.TrimSpace(q.Get("group"))),
		Status:     strings.ToLower(strings.TrimSpace(q.Get("status"))),
		Approved:   strings.ToLower(strings.TrimSpace(q.Get("approved"))),
		Source:     strings.TrimSpace(q.Get("source")),
		Location:   strings.TrimSpace(q.Get("location")),
		Keyword:    strings.TrimSpace(q.Get("q")),
		Limit:      limit,
	}
	if err := getValidator().Struct(lq); err != nil {
		jsonError(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	f := store.Filter{
		Status:     model.StatusActive,
		SkillLevel: model.SkillLevel(lq.SkillLevel),
		Group:      model.Group(lq.Group),
		Source:     lq.Source,
		Location:   lq.Location,
		Keyword:    lq.Keyword,
	}
	if lq.Category != "" {
		f.Category, _ = model.ParseCategory(lq.Category)
	}
	if lq.Status != "" {
		f.Status = model.Status(lq.Status)
	}
	switch lq.Approved {
	case "", "true":
		approved := true
		f.Approved = &approved
	case "false":
		approved := false
		f.Approved = &approved
	}

	listings, err := s.deps.Store.Query(r.Context(), f, lq.Limit)
	if err != nil {
		s.logger.Error("query listings failed", zap.Error(err))
		listings = []model.Listing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": listings, "count": len(listings)})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	l, err := s.deps.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, "get listing", err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) incrementView(w http.ResponseWriter, r *http.Request) {
	s.increment(w, r, model.CounterViews)
}

func (s *Server) incrementApply(w http.ResponseWriter, r *http.Request) {
	s.increment(w, r, model.CounterApplications)
}

func (s *Server) increment(w http.ResponseWriter, r *http.Request, c model.Counter) {
	if err := s.deps.Store.IncrementCounter(r.Context(), chi.URLParam(r, "id"), c); err != nil {
		s.storeError(w, "increment "+string(c), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := parseLimit(w, q.Get("limit"))
	if !ok {
		return
	}
	rq := recommendQuery{
		UserID: strings.TrimSpace(q.Get("user_id")),
		Skills: splitList(q.Get("skills")),
		Limit:  limit,
	}
	if err := getValidator().Struct(rq); err != nil {
		jsonError(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	var items []matcher.Scored
	if rq.UserID != "" {
		items = s.deps.Recommender.RecommendForUser(r.Context(), rq.UserID, rq.Limit)
	} else {
		items = s.deps.Recommender.Recommend(r.Context(), model.UserProfile{Skills: rq.Skills}, rq.Limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) trending(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r.URL.Query().Get("limit"))
	if !ok {
		return
	}
	items := s.deps.Recommender.Trending(r.Context(), limit)
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r.URL.Query().Get("limit"))
	if !ok {
		return
	}
	sq := searchQuery{Query: strings.TrimSpace(r.URL.Query().Get("q")), Limit: limit}
	if err := getValidator().Struct(sq); err != nil {
		jsonError(w, validationMessage(err), http.StatusBadRequest)
		return
	}
	items := s.deps.Recommender.Search(r.Context(), sq.Query, sq.Limit)
	writeJSON(w, http.StatusOK, map[string]any{"query": sq.Query, "items": items, "count": len(items)})
}

func (s *Server) saveProfile(w http.ResponseWriter, r *http.Request) {
	var body profileBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := getValidator().Struct(body); err != nil {
		jsonError(w, validationMessage(err), http.StatusBadRequest)
		return
	}
	p := model.UserProfile{UserID: chi.URLParam(r, "userID"), Skills: body.Skills, Interests: body.Interests}
	if err := s.deps.Profiles.SaveProfile(r.Context(), p); err != nil {
		s.storeError(w, "save profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) triggerIngest(w http.ResponseWriter, r *http.Request) {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait {
		sum := s.deps.Ingester.RunManual(r.Context())
		writeJSON(w, http.StatusOK, sum)
		return
	}

	err := s.deps.Scheduler.RunDetached(string(model.RunManual), func(ctx context.Context) error {
		s.deps.Ingester.RunManual(ctx)
		return ctx.Err()
	})
	if err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) runs(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r.URL.Query().Get("limit"))
	if !ok {
		return
	}
	runs, err := s.deps.Store.RecentRuns(r.Context(), limit)
	if err != nil {
		s.storeError(w, "recent runs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": runs, "count": len(runs)})
}

func (s *Server) schedulerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Scheduler.Status())
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "service": "discovery-service", "version": s.deps.Version}
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if failed := s.deps.Health(ctx); len(failed) > 0 {
			resp["status"] = "degraded"
			resp["failures"] = failed
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	var ve *store.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, "not found", http.StatusNotFound)
	case errors.As(err, &ve):
		jsonError(w, ve.Msg, http.StatusBadRequest)
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		jsonError(w, "database error", http.StatusInternalServerError)
	}
}

func parseLimit(w http.ResponseWriter, raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		jsonError(w, "limit must be a non-negative integer", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		return "invalid " + strings.ToLower(fe.Field()) + ": failed " + fe.Tag()
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
