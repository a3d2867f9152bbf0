package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"gophora/discovery-service/internal/classifier"
	"gophora/discovery-service/internal/embedder"
	"gophora/discovery-service/internal/ingest"
	"gophora/discovery-service/internal/model"
	"gophora/discovery-service/internal/scraper"
	"gophora/discovery-service/internal/store"
)

type fakeSource struct {
	name    string
	records []model.RawListing

	mu      sync.Mutex
	filters []string
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(_ context.Context, filter string) []model.RawListing {
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()
	out := make([]model.RawListing, len(f.records))
	copy(out, f.records)
	return out
}

// hangingSource blocks every fetch until its context is done.
type hangingSource struct{ name string }

func (h hangingSource) Name() string { return h.name }

func (h hangingSource) Fetch(ctx context.Context, _ string) []model.RawListing {
	<-ctx.Done()
	return nil
}

// scriptedClassifier approves everything except URLs listed in fail.
type scriptedClassifier struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (s *scriptedClassifier) Classify(_ context.Context, raw model.RawListing) (model.ClassificationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, raw.CanonicalURL)
	if s.fail[raw.CanonicalURL] {
		return model.ClassificationResult{}, errors.New("model unavailable")
	}
	return model.ClassificationResult{
		IsLegitimate: true,
		TrustScore:   85,
		Confidence:   0.9,
		Category:     model.CategoryWork,
		SkillLevel:   model.SkillLow,
	}, nil
}

type constEmbedder struct{ v []float32 }

func (c constEmbedder) Embed(context.Context, string) []float32 { return c.v }

func raw(url, title string) model.RawListing {
	return model.RawListing{
		Title:        title,
		Company:      "Acme",
		Description:  title + " role",
		CanonicalURL: url,
		SourceName:   "fake",
	}
}

func newPipeline(t *testing.T, s store.Store, c *scriptedClassifier, e embedder.Embedder, sources []scraper.Source, opts ...ingest.Option) *ingest.Pipeline {
	t.Helper()
	guarded := classifier.NewGuarded(zap.NewNop(), c, "test", time.Second)
	return ingest.NewPipeline(zap.NewNop(), sources, s, guarded, e, opts...)
}

func TestDeduplicator_Filter(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	_, _, err := s.Upsert(ctx, model.Listing{RawListing: raw("https://x/stored", "stored")})
	require.NoError(t, err)

	d := ingest.NewDeduplicator(s)
	fresh, dupes, noURL, err := d.Filter(ctx, []model.RawListing{
		raw("https://x/a", "first"),
		raw("https://x/a", "second"),
		raw("https://x/stored", "old"),
		raw("", "no url"),
		raw("https://x/b", "b"),
	})
	require.NoError(t, err)
	require.Len(t, fresh, 2)
	assert.Equal(t, "first", fresh[0].Title, "first occurrence wins")
	assert.Equal(t, "https://x/b", fresh[1].CanonicalURL)
	assert.Equal(t, 2, dupes)
	assert.Equal(t, 1, noURL)

	isNew, err := d.IsNew(ctx, raw("https://x/stored", ""))
	require.NoError(t, err)
	assert.False(t, isNew)
	isNew, err = d.IsNew(ctx, raw("https://x/other", ""))
	require.NoError(t, err)
	assert.True(t, isNew)
	isNew, _ = d.IsNew(ctx, raw("", ""))
	assert.False(t, isNew)
}

func TestRunPrimary_FailOpenClassification(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	c := &scriptedClassifier{fail: map[string]bool{"https://x/2": true}}
	src := &fakeSource{name: "fake", records: []model.RawListing{
		raw("https://x/1", "one"),
		raw("https://x/2", "two"),
		raw("https://x/3", "three"),
	}}

	p := newPipeline(t, s, c, constEmbedder{v: []float32{1, 0}}, []scraper.Source{src})
	sum := p.RunPrimary(ctx)

	assert.Equal(t, 3, sum.Totals.Stored)
	assert.Equal(t, 2, sum.Totals.Approved)
	assert.Equal(t, 1, sum.Totals.ClassificationFailed)

	all, err := s.Query(ctx, store.Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, l := range all {
		if l.CanonicalURL == "https://x/2" {
			assert.False(t, l.Approved)
			assert.Zero(t, l.TrustScore)
			assert.Equal(t, []string{model.ClassificationFailedFlag}, l.RedFlags)
			continue
		}
		assert.True(t, l.Approved)
		assert.Equal(t, []float32{1, 0}, l.Embedding)
	}
}

func TestRunPrimary_DuplicatesNeverReachClassifier(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	c := &scriptedClassifier{}
	a := &fakeSource{name: "a", records: []model.RawListing{
		raw("https://x/1", "one"),
		raw("https://x/1", "one again"),
		raw("", "no url"),
	}}
	b := &fakeSource{name: "b", records: []model.RawListing{
		raw("https://x/1", "one from b"),
		raw("https://x/2", "two"),
	}}

	p := newPipeline(t, s, c, embedder.Nop{}, []scraper.Source{a, b})
	sum := p.RunPrimary(ctx)

	assert.Equal(t, 2, sum.Totals.Stored)
	assert.Equal(t, 2, sum.Totals.Duplicates)
	assert.Equal(t, 1, sum.Totals.SkippedNoURL)
	assert.ElementsMatch(t, []string{"https://x/1", "https://x/2"}, c.calls)

	require.Len(t, sum.Runs, 2)
	assert.Equal(t, "a", sum.Runs[0].Source)
	assert.Equal(t, 1, sum.Runs[0].Counts.Stored)
	assert.Equal(t, 1, sum.Runs[1].Counts.Duplicates)

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	// A second pass over the same data stores nothing new.
	c.calls = nil
	again := p.RunPrimary(ctx)
	assert.Zero(t, again.Totals.Stored)
	assert.Empty(t, c.calls)
	all, _ := s.Query(ctx, store.Filter{}, 10)
	assert.Len(t, all, 2)
}

func TestRunPrimary_FetchesEverySkill(t *testing.T) {
	src := &fakeSource{name: "fake"}
	p := newPipeline(t, store.NewMemory(), &scriptedClassifier{}, nil, []scraper.Source{src},
		ingest.WithSkills([]string{"go", "python"}))
	p.RunPrimary(context.Background())
	assert.ElementsMatch(t, []string{"go", "python"}, src.filters)
}

func TestRunEntryLevel(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	entry := raw("https://x/entry", "Customer Service Representative")
	entry.JobType = "part-time"
	senior := raw("https://x/senior", "Senior Staff Engineer")
	src := &fakeSource{name: "fake", records: []model.RawListing{entry, senior}}

	p := newPipeline(t, s, &scriptedClassifier{}, nil, []scraper.Source{src},
		ingest.WithEntryFilters([]string{"support"}))
	sum := p.RunEntryLevel(ctx)

	assert.Equal(t, model.RunEntryLevel, sum.Kind)
	assert.Equal(t, 1, sum.Totals.Scraped)
	assert.Equal(t, 1, sum.Totals.Stored)
	assert.Equal(t, []string{"support"}, src.filters)

	got, err := s.Query(ctx, store.Filter{Group: model.GroupImmediate}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://x/entry", got[0].CanonicalURL)
	assert.True(t, got[0].IsImmediate)
	assert.Equal(t, "Entry", got[0].ExperienceLevel)
}

func TestRun_PublishesEvent(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sub := rdb.Subscribe(ctx, ingest.EventJobsIngested)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	src := &fakeSource{name: "fake", records: []model.RawListing{raw("https://x/1", "one")}}
	p := newPipeline(t, store.NewMemory(), &scriptedClassifier{}, nil, []scraper.Source{src}, ingest.WithEvents(rdb))
	p.RunPrimary(ctx)

	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(rctx)
	require.NoError(t, err)

	var event map[string]any
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	assert.Equal(t, ingest.EventJobsIngested, event["type"])
	assert.Equal(t, "primary", event["kind"])
	assert.EqualValues(t, 1, event["stored"])
}

func TestRun_PublishFailureIsNotFatal(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	src := &fakeSource{name: "fake", records: []model.RawListing{raw("https://x/1", "one")}}
	p := newPipeline(t, store.NewMemory(), &scriptedClassifier{}, nil, []scraper.Source{src}, ingest.WithEvents(rdb))
	sum := p.RunPrimary(context.Background())
	assert.Equal(t, 1, sum.Totals.Stored)
}

func TestRun_FailingSourceDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	c := &scriptedClassifier{}
	empty := &fakeSource{name: "empty"}
	healthy := &fakeSource{name: "healthy", records: []model.RawListing{
		raw("https://x/b1", "b one"),
		raw("https://x/b2", "b two"),
	}}

	p := newPipeline(t, s, c, embedder.Nop{},
		[]scraper.Source{hangingSource{name: "hanging"}, empty, healthy},
		ingest.WithFetchTimeout(50*time.Millisecond),
	)

	start := time.Now()
	sum := p.RunPrimary(ctx)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, 2, sum.Totals.Stored, "only the healthy source is counted")
	require.Len(t, sum.Runs, 3)
	assert.Equal(t, "hanging", sum.Runs[0].Source)
	assert.Zero(t, sum.Runs[0].Counts.Scraped)
	assert.Zero(t, sum.Runs[1].Counts.Stored)
	assert.Equal(t, 2, sum.Runs[2].Counts.Stored)

	all, err := s.Query(ctx, store.Filter{}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRun_WarnsOnRecordsWithoutURL(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	src := &fakeSource{name: "board", records: []model.RawListing{
		raw("", "no url"),
		raw("", "no url either"),
		raw("https://x/1", "one"),
	}}
	guarded := classifier.NewGuarded(zap.NewNop(), &scriptedClassifier{}, "test", time.Second)
	p := ingest.NewPipeline(zap.New(core), []scraper.Source{src}, store.NewMemory(), guarded, embedder.Nop{})

	sum := p.RunPrimary(context.Background())
	assert.Equal(t, 2, sum.Totals.SkippedNoURL)
	assert.Equal(t, 1, sum.Totals.Stored)

	warned := logs.FilterMessage("records without canonical url skipped").All()
	require.Len(t, warned, 1)
	fields := warned[0].ContextMap()
	assert.Equal(t, "board", fields["source"])
	assert.Equal(t, int64(2), fields["count"])
}
