// Package matcher ranks stored listings for a user profile.
package matcher

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"gophora/discovery-service/internal/embedder"
	"gophora/discovery-service/internal/model"
	"gophora/discovery-service/internal/observability"
	"gophora/discovery-service/internal/store"
)

const (
	// SkillBoost is added once per profile skill found in a listing's
	// required skills.
	SkillBoost = 0.1
	// DefaultCandidatePool bounds how many listings are scored per request.
	DefaultCandidatePool = 500
	// DefaultEmbedTimeout bounds the query embedding call of a request.
	DefaultEmbedTimeout = 10 * time.Second
)

// Scored is one ranked recommendation.
type Scored struct {
	Listing    model.Listing `json:"listing"`
	Score      float64       `json:"score"`
	Similarity float64       `json:"similarity"`
	Boost      float64       `json:"boost"`
}

// Matcher ranks active, approved listings against a profile. With no
// profile embedding it degrades to skill overlap only.
type Matcher struct {
	store    store.Store
	profiles store.ProfileRepository
	embedder     embedder.Embedder
	pool         int
	embedTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithCandidatePool overrides DefaultCandidatePool.
func WithCandidatePool(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.pool = n
		}
	}
}

// WithEmbedTimeout overrides DefaultEmbedTimeout.
func WithEmbedTimeout(d time.Duration) Option {
	return func(m *Matcher) {
		if d > 0 {
			m.embedTimeout = d
		}
	}
}

// WithClock overrides the time source used by Trending.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

// New returns a Matcher.
func New(logger *zap.Logger, s store.Store, profiles store.ProfileRepository, e embedder.Embedder, opts ...Option) *Matcher {
	m := &Matcher{
		store:        s,
		profiles:     profiles,
		embedder:     e,
		pool:         DefaultCandidatePool,
		embedTimeout: DefaultEmbedTimeout,
		now:          time.Now,
		logger:       logger.Named("matcher"),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Recommend returns up to limit listings for profile, best first. Errors
// are logged and produce an empty result.
func (m *Matcher) Recommend(ctx context.Context, profile model.UserProfile, limit int) []Scored {
	limit = store.ClampLimit(limit)
	ctx, span := observability.StartSpan(ctx, "matcher.Recommend")
	defer span.End()

	profileVec := m.embedQuery(ctx, embedder.ProfileText(profile.Skills, profile.Interests))

	candidates, err := m.store.Query(ctx, candidateFilter(), m.pool)
	if err != nil {
		m.logger.Error("candidate query failed", zap.String("user_id", profile.UserID), zap.Error(err))
		return []Scored{}
	}

	semantic := profileVec != nil
	if !semantic {
		m.logger.Debug("no profile embedding, using skill overlap only", zap.String("user_id", profile.UserID))
	}

	out := make([]Scored, 0, len(candidates))
	for _, l := range candidates {
		boost := SkillOverlapBoost(profile.Skills, l.RequiredSkills)
		if !semantic {
			if boost == 0 {
				continue
			}
			out = append(out, Scored{Listing: l, Score: boost, Boost: boost})
			continue
		}
		sim := CosineSimilarity(profileVec, l.Embedding)
		out = append(out, Scored{Listing: l, Score: sim + boost, Similarity: sim, Boost: boost})
	}

	rank(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RecommendForUser loads the profile for userID and calls Recommend. An
// unknown user, or a profile lookup failure, gets an empty result.
func (m *Matcher) RecommendForUser(ctx context.Context, userID string, limit int) []Scored {
	p, err := m.profiles.GetProfile(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		m.logger.Debug("no profile stored", zap.String("user_id", userID))
		return []Scored{}
	case err != nil:
		m.logger.Error("profile lookup failed", zap.String("user_id", userID), zap.Error(err))
		return []Scored{}
	}
	return m.Recommend(ctx, p, limit)
}

// Search ranks listings by similarity to a free-text query. Listings
// without an embedding are skipped. With no query embedding it falls back
// to a keyword match, newest first.
func (m *Matcher) Search(ctx context.Context, query string, limit int) []Scored {
	limit = store.ClampLimit(limit)
	query = strings.TrimSpace(query)
	if query == "" {
		return []Scored{}
	}
	ctx, span := observability.StartSpan(ctx, "matcher.Search")
	defer span.End()

	queryVec := m.embedQuery(ctx, query)
	f := candidateFilter()
	if queryVec == nil {
		f.Keyword = query
	}
	candidates, err := m.store.Query(ctx, f, m.pool)
	if err != nil {
		m.logger.Error("search query failed", zap.Error(err))
		return []Scored{}
	}

	out := make([]Scored, 0, len(candidates))
	for _, l := range candidates {
		if queryVec == nil {
			out = append(out, Scored{Listing: l})
			continue
		}
		if len(l.Embedding) == 0 {
			continue
		}
		sim := CosineSimilarity(queryVec, l.Embedding)
		out = append(out, Scored{Listing: l, Score: sim, Similarity: sim})
	}
	rank(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// embedQuery embeds text as a search query under the embed timeout. It
// returns nil when there is no embedder or the call fails.
func (m *Matcher) embedQuery(ctx context.Context, text string) []float32 {
	if text == "" || m.embedder == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(embedder.AsQuery(ctx), m.embedTimeout)
	defer cancel()
	return m.embedder.Embed(ctx, text)
}

func candidateFilter() store.Filter {
	approved := true
	return store.Filter{Status: model.StatusActive, Approved: &approved}
}

// Trending ranks active approved listings by recency and trust:
// score = max(0, 100 - hours since stored) * 0.4 + trust * 0.6.
func (m *Matcher) Trending(ctx context.Context, limit int) []Scored {
	limit = store.ClampLimit(limit)
	candidates, err := m.store.Query(ctx, candidateFilter(), m.pool)
	if err != nil {
		m.logger.Error("trending query failed", zap.Error(err))
		return []Scored{}
	}

	now := m.now()
	out := make([]Scored, 0, len(candidates))
	for _, l := range candidates {
		recency := math.Max(0, 100-now.Sub(l.StoredAt).Hours())
		out = append(out, Scored{Listing: l, Score: recency*0.4 + float64(l.TrustScore)*0.6})
	}
	rank(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func rank(out []Scored) {
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Listing.StoredAt.After(out[j].Listing.StoredAt)
	})
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either vector has zero norm or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, sim))
}

// SkillOverlapBoost adds SkillBoost for each profile skill that occurs,
// case-insensitively, inside any required skill.
func SkillOverlapBoost(profileSkills, required []string) float64 {
	if len(profileSkills) == 0 || len(required) == 0 {
		return 0
	}
	lowered := make([]string, len(required))
	for i, r := range required {
		lowered[i] = strings.ToLower(r)
	}

	var boost float64
	for _, s := range profileSkills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		for _, r := range lowered {
			if strings.Contains(r, s) {
				boost += SkillBoost
				break
			}
		}
	}
	return boost
}
