package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gophora/discovery-service/internal/model"
)

// Memory is an in-process Store and ProfileRepository.
type Memory struct {
	mu       sync.RWMutex
	byID     map[string]*model.Listing
	byURL    map[string]string
	runs     []model.ScrapeRun
	profiles map[string]model.UserProfile
	now      func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the time source; used to age listings in tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory returns an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		byID:     make(map[string]*model.Listing),
		byURL:    make(map[string]string),
		profiles: make(map[string]model.UserProfile),
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Memory) Upsert(_ context.Context, l model.Listing) (string, bool, error) {
	if err := validateListing(l); err != nil {
		return "", false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byURL[l.CanonicalURL]; ok {
		return id, false, nil
	}

	l.ID = uuid.NewString()
	l.Status = model.StatusActive
	l.StoredAt = m.now().UTC()
	l.InactiveAt = nil
	l.Views, l.Applications = 0, 0
	if l.Group == "" {
		l.Group = model.GroupFor(l.IsImmediate, l.SkillLevel)
	}

	m.byID[l.ID] = &l
	m.byURL[l.CanonicalURL] = l.ID
	return l.ID, true, nil
}

func (m *Memory) Get(_ context.Context, id string) (model.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.byID[id]
	if !ok {
		return model.Listing{}, ErrNotFound
	}
	return *l, nil
}

func (m *Memory) Query(_ context.Context, f Filter, limit int) ([]model.Listing, error) {
	limit = ClampLimit(limit)

	m.mu.RLock()
	out := make([]model.Listing, 0)
	for _, l := range m.byID {
		if matches(l, f) {
			out = append(out, *l)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StoredAt.Equal(out[j].StoredAt) {
			return out[i].StoredAt.After(out[j].StoredAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matches(l *model.Listing, f Filter) bool {
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	if f.Category != "" && l.Category != f.Category {
		return false
	}
	if f.SkillLevel != "" && l.SkillLevel != f.SkillLevel {
		return false
	}
	if f.Group != "" && l.Group != f.Group {
		return false
	}
	if f.Source != "" && l.SourceName != f.Source {
		return false
	}
	if f.Approved != nil && l.Approved != *f.Approved {
		return false
	}
	if f.Location != "" && !containsFold(l.Location, f.Location) {
		return false
	}
	if f.Keyword != "" && !containsFold(l.Title, f.Keyword) && !containsFold(l.Description, f.Keyword) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (m *Memory) ExistingURLs(_ context.Context, urls []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool)
	for _, u := range urls {
		if _, ok := m.byURL[u]; ok {
			out[u] = true
		}
	}
	return out, nil
}

func (m *Memory) DeactivateOlderThan(_ context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, &ValidationError{Msg: "days must not be negative"}
	}
	now := m.now().UTC()
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, l := range m.byID {
		if l.Status == model.StatusActive && l.StoredAt.Before(cutoff) {
			l.Status = model.StatusInactive
			at := now
			l.InactiveAt = &at
			n++
		}
	}
	return n, nil
}

func (m *Memory) IncrementCounter(_ context.Context, id string, c model.Counter) error {
	if _, err := model.ParseCounter(string(c)); err != nil {
		return &ValidationError{Msg: err.Error()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	switch c {
	case model.CounterViews:
		l.Views++
	case model.CounterApplications:
		l.Applications++
	}
	return nil
}

func (m *Memory) AppendRun(_ context.Context, run model.ScrapeRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) RecentRuns(_ context.Context, limit int) ([]model.ScrapeRun, error) {
	limit = ClampLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.ScrapeRun, 0, limit)
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}

func (m *Memory) GetProfile(_ context.Context, userID string) (model.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[userID]
	if !ok {
		return model.UserProfile{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) SaveProfile(_ context.Context, p model.UserProfile) error {
	if strings.TrimSpace(p.UserID) == "" {
		return &ValidationError{Msg: "user id is required"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = p
	return nil
}
