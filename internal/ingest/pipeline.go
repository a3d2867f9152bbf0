// Package ingest runs ingestion passes: fetch from every source, drop
// duplicates, classify, embed and store.
package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gophora/discovery-service/internal/classifier"
	"gophora/discovery-service/internal/embedder"
	"gophora/discovery-service/internal/model"
	"gophora/discovery-service/internal/observability"
	"gophora/discovery-service/internal/scraper"
	"gophora/discovery-service/internal/store"
)

// EventJobsIngested is the Redis channel notified after every pass.
const EventJobsIngested = "EVENT_JOBS_INGESTED"

// DefaultEntryFilters are the search keywords of the entry-level sweep.
var DefaultEntryFilters = []string{"entry level", "junior", "customer service", "data entry", "virtual assistant"}

const (
	defaultFetchConcurrency = 4
	defaultFetchTimeout     = 2 * time.Minute
)

// Summary describes one finished pass.
type Summary struct {
	Kind   model.RunKind     `json:"kind"`
	Totals model.RunCounts   `json:"totals"`
	Runs   []model.ScrapeRun `json:"runs"`
}

// Pipeline owns the components of an ingestion pass. It is safe to run
// several passes concurrently; uniqueness is enforced by the store.
type Pipeline struct {
	sources      []scraper.Source
	store        store.Store
	dedup        *Deduplicator
	classifier   classifier.Classifier
	embedder     embedder.Embedder
	rdb          redis.Cmdable
	skills       []string
	entryFilters []string
	concurrency  int
	callTimeout  time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEvents publishes EventJobsIngested on rdb after each pass.
func WithEvents(rdb redis.Cmdable) Option {
	return func(p *Pipeline) { p.rdb = rdb }
}

// WithSkills sets the search keywords of the primary pass.
func WithSkills(skills []string) Option {
	return func(p *Pipeline) { p.skills = skills }
}

// WithEntryFilters sets the search keywords of the entry-level pass.
func WithEntryFilters(filters []string) Option {
	return func(p *Pipeline) {
		if len(filters) > 0 {
			p.entryFilters = filters
		}
	}
}

// WithCallTimeout bounds each embedding call.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.callTimeout = d }
}

// WithFetchTimeout bounds each Fetch call of a source.
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.fetchTimeout = d
		}
	}
}

// WithConcurrency bounds how many sources are fetched at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithClock overrides the time source for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline wires a pipeline. c must already apply the failure policy
// (see classifier.Guarded); e must return nil on failure.
func NewPipeline(
	logger *zap.Logger,
	sources []scraper.Source,
	s store.Store,
	c classifier.Classifier,
	e embedder.Embedder,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		sources:      sources,
		store:        s,
		dedup:        NewDeduplicator(s),
		classifier:   c,
		embedder:     e,
		skills:       []string{""},
		entryFilters: DefaultEntryFilters,
		concurrency:  defaultFetchConcurrency,
		callTimeout:  30 * time.Second,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
		logger:       logger.Named("ingest"),
	}
	for _, o := range opts {
		o(p)
	}
	if len(p.skills) == 0 {
		p.skills = []string{""}
	}
	return p
}

// RunPrimary fetches every source for every configured skill.
func (p *Pipeline) RunPrimary(ctx context.Context) Summary {
	return p.run(ctx, model.RunPrimary, p.skills, nil)
}

// RunEntryLevel fetches every source for the entry-level keywords and keeps
// only records that look like entry-level or temporary work. Kept records
// are marked immediate.
func (p *Pipeline) RunEntryLevel(ctx context.Context) Summary {
	return p.run(ctx, model.RunEntryLevel, p.entryFilters, entryLevel)
}

// RunManual is a primary pass recorded with the manual kind.
func (p *Pipeline) RunManual(ctx context.Context) Summary {
	return p.run(ctx, model.RunManual, p.skills, nil)
}

func entryLevel(r *model.RawListing) bool {
	if !scraper.IsEntryLevel(r.Title + " " + r.Description + " " + r.JobType) {
		return false
	}
	r.IsImmediate = true
	if r.ExperienceLevel == "" || r.ExperienceLevel == "Mid-level" {
		r.ExperienceLevel = "Entry"
	}
	return true
}

type sourceBatch struct {
	source  string
	records []model.RawListing
	started time.Time
}

func (p *Pipeline) run(ctx context.Context, kind model.RunKind, filters []string, keep func(*model.RawListing) bool) Summary {
	ctx, span := observability.StartSpan(ctx, "ingest.run", attribute.String("kind", string(kind)))
	defer span.End()

	p.logger.Info("pass started", zap.String("kind", string(kind)), zap.Int("sources", len(p.sources)))
	batches := p.fetchAll(ctx, filters)

	summary := Summary{Kind: kind, Runs: make([]model.ScrapeRun, 0, len(batches))}
	claimed := make(map[string]bool)

	for _, b := range batches {
		run := model.ScrapeRun{
			ID:        ulid.Make().String(),
			Source:    b.source,
			Kind:      kind,
			StartedAt: b.started.UTC(),
		}

		records := b.records
		if keep != nil {
			filtered := records[:0]
			for i := range records {
				if keep(&records[i]) {
					filtered = append(filtered, records[i])
				}
			}
			records = filtered
		}
		run.Counts.Scraped = len(records)

		unclaimed := make([]model.RawListing, 0, len(records))
		for _, r := range records {
			if r.Deduplicable() && claimed[r.CanonicalURL] {
				run.Counts.Duplicates++
				continue
			}
			unclaimed = append(unclaimed, r)
		}

		fresh, dupes, noURL, err := p.dedup.Filter(ctx, unclaimed)
		if err != nil {
			p.logger.Warn("store lookup failed, relying on upsert conflicts", zap.String("source", b.source), zap.Error(err))
			run.Errors = append(run.Errors, err.Error())
		}
		run.Counts.Duplicates += dupes
		run.Counts.SkippedNoURL = noURL
		if noURL > 0 {
			p.logger.Warn("records without canonical url skipped", zap.String("source", b.source), zap.Int("count", noURL))
		}
		for _, r := range fresh {
			claimed[r.CanonicalURL] = true
		}
		observability.IngestListingsTotal.WithLabelValues(b.source, "duplicate").Add(float64(run.Counts.Duplicates))
		observability.IngestListingsTotal.WithLabelValues(b.source, "no_url").Add(float64(noURL))

		for _, r := range fresh {
			if ctx.Err() != nil {
				run.Errors = append(run.Errors, ctx.Err().Error())
				break
			}
			p.process(ctx, r, &run)
		}

		run.FinishedAt = p.now().UTC()
		if err := p.store.AppendRun(ctx, run); err != nil {
			p.logger.Warn("append run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
		summary.Totals.Add(run.Counts)
		summary.Runs = append(summary.Runs, run)

		p.logger.Info("source done",
			zap.String("kind", string(kind)),
			zap.String("source", b.source),
			zap.Int("scraped", run.Counts.Scraped),
			zap.Int("stored", run.Counts.Stored),
			zap.Int("approved", run.Counts.Approved),
			zap.Int("duplicates", run.Counts.Duplicates),
			zap.Int("no_url", run.Counts.SkippedNoURL),
			zap.Int("classification_failed", run.Counts.ClassificationFailed),
		)
	}

	p.publish(ctx, summary)
	p.logger.Info("pass complete",
		zap.String("kind", string(kind)),
		zap.Int("stored", summary.Totals.Stored),
		zap.Int("approved", summary.Totals.Approved),
		zap.Int("duplicates", summary.Totals.Duplicates),
	)
	return summary
}

// fetchAll queries every source concurrently. Filters for one source run
// sequentially. The result keeps source registration order.
func (p *Pipeline) fetchAll(ctx context.Context, filters []string) []sourceBatch {
	batches := make([]sourceBatch, len(p.sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, src := range p.sources {
		g.Go(func() error {
			start, t0 := p.now(), time.Now()
			var records []model.RawListing
			for _, f := range filters {
				if gctx.Err() != nil {
					break
				}
				fctx, cancel := context.WithTimeout(gctx, p.fetchTimeout)
				records = append(records, src.Fetch(fctx, f)...)
				cancel()
			}
			observability.SourceFetchDuration.WithLabelValues(src.Name()).Observe(time.Since(t0).Seconds())
			batches[i] = sourceBatch{source: src.Name(), records: records, started: start}
			return nil
		})
	}
	_ = g.Wait()
	return batches
}

func (p *Pipeline) process(ctx context.Context, raw model.RawListing, run *model.ScrapeRun) {
	result, _ := p.classifier.Classify(ctx, raw)
	if rejected(result) {
		run.Counts.ClassificationFailed++
	}

	var vec []float32
	if p.embedder != nil {
		ectx, cancel := context.WithTimeout(ctx, p.callTimeout)
		vec = p.embedder.Embed(ectx, embedder.ListingText(raw.Title, raw.Company, raw.Description))
		cancel()
	}

	listing := model.NewListing(raw, result, vec)
	_, created, err := p.store.Upsert(ctx, listing)
	switch {
	case err != nil:
		p.logger.Error("upsert failed", zap.String("url", raw.CanonicalURL), zap.Error(err))
		run.Errors = append(run.Errors, err.Error())
		observability.IngestListingsTotal.WithLabelValues(raw.SourceName, "error").Inc()
	case !created:
		run.Counts.Duplicates++
		observability.IngestListingsTotal.WithLabelValues(raw.SourceName, "duplicate").Inc()
	default:
		run.Counts.Stored++
		outcome := "stored"
		if listing.Approved {
			run.Counts.Approved++
			outcome = "approved"
		}
		observability.IngestListingsTotal.WithLabelValues(raw.SourceName, outcome).Inc()
	}
}

func rejected(c model.ClassificationResult) bool {
	if c.IsLegitimate || c.TrustScore != 0 {
		return false
	}
	for _, f := range c.RedFlags {
		if strings.EqualFold(f, model.ClassificationFailedFlag) {
			return true
		}
	}
	return false
}

func (p *Pipeline) publish(ctx context.Context, s Summary) {
	if p.rdb == nil {
		return
	}
	ids := make([]string, 0, len(s.Runs))
	for _, r := range s.Runs {
		ids = append(ids, r.ID)
	}
	event, _ := json.Marshal(map[string]any{
		"type":     EventJobsIngested,
		"kind":     s.Kind,
		"runIds":   ids,
		"stored":   s.Totals.Stored,
		"approved": s.Totals.Approved,
	})
	if err := p.rdb.Publish(ctx, EventJobsIngested, event).Err(); err != nil {
		p.logger.Warn("publish "+EventJobsIngested+" failed", zap.Error(err))
	}
}
