package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gophora/discovery-service/internal/model"
	"gophora/discovery-service/internal/store"
)

func listing(url string) model.Listing {
	return model.Listing{
		RawListing: model.RawListing{
			Title:        "Title " + url,
			Company:      "Acme",
			Location:     "Berlin, Germany",
			CanonicalURL: url,
			SourceName:   "remotive",
		},
		TrustScore:   80,
		IsLegitimate: true,
		Approved:     true,
		Category:     model.CategoryWork,
		SkillLevel:   model.SkillMedium,
	}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestUpsert_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	id1, created, err := s.Upsert(ctx, listing("https://x/1"))
	require.NoError(t, err)
	assert.True(t, created)

	second := listing("https://x/1")
	second.Title = "different title"
	id2, created, err := s.Upsert(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	got, err := s.Get(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "Title https://x/1", got.Title, "first write wins")
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Zero(t, got.Views)
	assert.False(t, got.StoredAt.IsZero())
}

func TestUpsert_ConcurrentSameURLCreatesOnce(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	ids := map[string]bool{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, created, err := s.Upsert(ctx, listing("https://x/race"))
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			ids[id] = true
			if created {
				createdCount++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	assert.Len(t, ids, 1)
}

func TestUpsert_RejectsMissingURL(t *testing.T) {
	_, _, err := store.NewMemory().Upsert(context.Background(), listing(""))
	var ve *store.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestQuery_FiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	s := store.NewMemory(store.WithClock(c.now))

	a := listing("https://x/a")
	a.Category = model.CategoryEducation
	_, _, _ = s.Upsert(ctx, a)
	c.advance(time.Minute)

	b := listing("https://x/b")
	b.Location = "Remote (US)"
	b.Approved = false
	_, _, _ = s.Upsert(ctx, b)
	c.advance(time.Minute)

	cc := listing("https://x/c")
	cc.Group = model.GroupImmediate
	_, _, _ = s.Upsert(ctx, cc)

	all, err := s.Query(ctx, store.Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "https://x/c", all[0].CanonicalURL, "most recent first")

	edu, _ := s.Query(ctx, store.Filter{Category: model.CategoryEducation}, 10)
	require.Len(t, edu, 1)
	assert.Equal(t, "https://x/a", edu[0].CanonicalURL)

	remote, _ := s.Query(ctx, store.Filter{Location: "remote"}, 10)
	require.Len(t, remote, 1)

	approved := true
	ap, _ := s.Query(ctx, store.Filter{Approved: &approved, Group: model.GroupImmediate}, 10)
	require.Len(t, ap, 1)
	assert.Equal(t, "https://x/c", ap[0].CanonicalURL)

	kw, _ := s.Query(ctx, store.Filter{Keyword: "x/b"}, 10)
	require.Len(t, kw, 1)

	limited, _ := s.Query(ctx, store.Filter{}, 2)
	assert.Len(t, limited, 2)
}

func TestDeactivateOlderThan_Idempotent(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := store.NewMemory(store.WithClock(c.now))

	oldID, _, _ := s.Upsert(ctx, listing("https://x/old"))
	c.advance(20 * 24 * time.Hour)
	newID, _, _ := s.Upsert(ctx, listing("https://x/new"))
	c.advance(11 * 24 * time.Hour)

	n, err := s.DeactivateOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.DeactivateOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "second run changes nothing")

	old, _ := s.Get(ctx, oldID)
	assert.Equal(t, model.StatusInactive, old.Status)
	require.NotNil(t, old.InactiveAt)

	fresh, _ := s.Get(ctx, newID)
	assert.Equal(t, model.StatusActive, fresh.Status)

	active, _ := s.Query(ctx, store.Filter{Status: model.StatusActive}, 10)
	assert.Len(t, active, 1)
}

func TestIncrementCounter(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	id, _, _ := s.Upsert(ctx, listing("https://x/1"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.IncrementCounter(ctx, id, model.CounterViews)
		}()
	}
	wg.Wait()
	require.NoError(t, s.IncrementCounter(ctx, id, model.CounterApplications))

	got, _ := s.Get(ctx, id)
	assert.Equal(t, int64(50), got.Views)
	assert.Equal(t, int64(1), got.Applications)

	assert.ErrorIs(t, s.IncrementCounter(ctx, "missing", model.CounterViews), store.ErrNotFound)
	var ve *store.ValidationError
	assert.ErrorAs(t, s.IncrementCounter(ctx, id, model.Counter("likes")), &ve)
}

func TestRuns_AppendOnlyNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendRun(ctx, model.ScrapeRun{ID: fmt.Sprintf("run-%d", i), Kind: model.RunPrimary}))
	}
	runs, err := s.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "run-1", runs[1].ID)
}

func TestProfiles(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	_, err := s.GetProfile(ctx, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SaveProfile(ctx, model.UserProfile{UserID: "u1", Skills: []string{"go"}}))
	p, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, p.Skills)

	assert.Error(t, s.SaveProfile(ctx, model.UserProfile{}))
}

func TestExistingURLs(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	_, _, _ = s.Upsert(ctx, listing("https://x/1"))

	got, err := s.ExistingURLs(ctx, []string{"https://x/1", "https://x/2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"https://x/1": true}, got)
}
