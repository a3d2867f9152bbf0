package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"gophora/discovery-service/internal/classifier"
	"gophora/discovery-service/internal/config"
	"gophora/discovery-service/internal/db"
	"gophora/discovery-service/internal/embedder"
	"gophora/discovery-service/internal/ingest"
	"gophora/discovery-service/internal/matcher"
	"gophora/discovery-service/internal/scraper"
	"gophora/discovery-service/internal/store"
)

// components is everything the commands share, wired from Config.
type components struct {
	cfg      *config.Config
	sources  *config.SourcesFile
	pool     *pgxpool.Pool
	rdb      *redis.Client
	store    store.Store
	profiles store.ProfileRepository
	pipeline *ingest.Pipeline
	matcher  *matcher.Matcher
	checks   map[string]db.Check
}

func (c *components) Close() {
	if c.rdb != nil {
		_ = c.rdb.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
}

func wire(ctx context.Context, logger *zap.Logger) (*components, error) {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	path := viper.GetString("config")
	if path == "" {
		path = cfg.SourcesFile
	}
	sf, err := config.LoadSources(path)
	if err != nil {
		return nil, err
	}
	sf.Apply(cfg)

	c := &components{cfg: cfg, sources: sf, checks: map[string]db.Check{}}

	// ── Store ────────────────────────────────────────────────────────────────
	if cfg.UsesMemoryStore() {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		mem := store.NewMemory()
		c.store, c.profiles = mem, mem
	} else {
		logger.Info("connecting to PostgreSQL")
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		c.pool = pool
		pg := store.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		c.store, c.profiles = pg, pg
		c.checks["postgres"] = pool.Ping
		logger.Info("PostgreSQL connected")
	}

	// ── Redis ────────────────────────────────────────────────────────────────
	if cfg.RedisURL != "" {
		logger.Info("connecting to Redis")
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		c.rdb = rdb
		c.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info("Redis connected")
	}

	// ── AI ───────────────────────────────────────────────────────────────────
	cls, emb, err := buildAI(ctx, logger, cfg, c.rdb)
	if err != nil {
		c.Close()
		return nil, err
	}

	// ── Pipeline & matcher ───────────────────────────────────────────────────
	reg := scraper.NewDefaultRegistry(logger, cfg, sf)
	logger.Info("sources registered", zap.Strings("sources", reg.Names()))

	opts := []ingest.Option{
		ingest.WithSkills(cfg.Skills),
		ingest.WithEntryFilters(sf.EntryFilter),
		ingest.WithCallTimeout(cfg.ClassifierTimeout),
	}
	if c.rdb != nil {
		opts = append(opts, ingest.WithEvents(c.rdb))
	}
	c.pipeline = ingest.NewPipeline(logger, reg.Sources(), c.store, cls, emb, opts...)
	c.matcher = matcher.New(logger, c.store, c.profiles, emb,
		matcher.WithCandidatePool(cfg.CandidatePoolLimit),
		matcher.WithEmbedTimeout(cfg.ClassifierTimeout),
	)
	return c, nil
}

func buildAI(ctx context.Context, logger *zap.Logger, cfg *config.Config, rdb *redis.Client) (classifier.Classifier, embedder.Embedder, error) {
	var (
		backend  classifier.Classifier = classifier.NewHeuristic()
		provider                       = "heuristic"
		emb      embedder.Embedder     = embedder.Nop{}
		gen      *classifier.Generator
	)

	if cfg.GeminiAPIKey != "" {
		var err error
		gen, err = classifier.NewGenerator(ctx, cfg.GeminiAPIKey, cfg.ClassifierModel)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini: %w", err)
		}
		backend, provider = classifier.NewGemini(gen), "gemini"
	} else {
		logger.Warn("GEMINI_API_KEY not set, using heuristic classifier")
	}

	switch cfg.EmbeddingProvider {
	case "gemini":
		if gen != nil {
			emb = embedder.NewGemini(logger, gen.Client(), cfg.EmbeddingModel, cfg.EmbeddingDimensions)
		} else {
			logger.Warn("gemini embeddings need GEMINI_API_KEY, recommendations fall back to skill overlap")
		}
	case "openai":
		emb = embedder.NewOpenAI(logger, cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	}

	if _, isNop := emb.(embedder.Nop); !isNop && rdb != nil {
		emb = embedder.NewCached(logger, emb, rdb, cfg.EmbeddingCacheTTL)
	}

	cls := classifier.NewGuarded(logger, backend, provider, cfg.ClassifierTimeout)
	return cls, emb, nil
}
