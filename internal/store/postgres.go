package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/attribute"

	"gophora/discovery-service/internal/model"
	"gophora/discovery-service/internal/observability"
)

//go:embed schema.sql
var schemaSQL string

// PgxPool is the subset of *pgxpool.Pool the store uses.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the production Store and ProfileRepository.
type Postgres struct {
	pool PgxPool
	now  func() time.Time
}

// NewPostgres wraps a connection pool. The pool must have pgvector types
// registered (see db.NewPostgresPool).
func NewPostgres(pool PgxPool) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("op=store.migrate: %w", err)
	}
	return nil
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const listingColumns = `id::text, canonical_url, source, title, company, description, requirements,
	location, job_type, compensation, tags, skills, experience_level, listing_group, is_immediate,
	posted_at, fetched_at, trust_score, is_legitimate, confidence, red_flags, credibility_notes,
	category, subcategory, skill_level, payment_timeframe, required_skills, salary_range,
	time_commitment, deadline, embedding, status, approved, stored_at, inactive_at, views, applications`

func (p *Postgres) Upsert(ctx context.Context, l model.Listing) (id string, created bool, err error) {
	ctx, span := observability.StartSpan(ctx, "store.Upsert", attribute.String("source", l.SourceName))
	defer func() { observability.EndSpan(span, err) }()

	if err := validateListing(l); err != nil {
		return "", false, err
	}

	var emb *pgvector.Vector
	if len(l.Embedding) > 0 {
		v := pgvector.NewVector(l.Embedding)
		emb = &v
	}
	group := l.Group
	if group == "" {
		group = model.GroupFor(l.IsImmediate, l.SkillLevel)
	}

	err = p.pool.QueryRow(ctx,
		`INSERT INTO listings (canonical_url, source, title, company, description, requirements,
		   location, job_type, compensation, tags, skills, experience_level, listing_group, is_immediate,
		   posted_at, fetched_at, trust_score, is_legitimate, confidence, red_flags, credibility_notes,
		   category, subcategory, skill_level, payment_timeframe, required_skills, salary_range,
		   time_commitment, deadline, embedding, approved)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
		   $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)
		 ON CONFLICT (canonical_url) DO NOTHING
		 RETURNING id::text`,
		l.CanonicalURL, l.SourceName, l.Title, l.Company, l.Description, l.Requirements,
		l.Location, l.JobType, l.CompensationText, nonNil(l.Tags), nonNil(l.Skills), l.ExperienceLevel,
		string(group), l.IsImmediate, l.PostedAt, fetchedAt(l.FetchedAt, p.now), l.TrustScore,
		l.IsLegitimate, l.Confidence, nonNil(l.RedFlags), l.CredibilityNotes, string(l.Category),
		l.Subcategory, string(l.SkillLevel), l.PaymentTimeframe, nonNil(l.RequiredSkills), l.SalaryRange,
		l.TimeCommitment, l.Deadline, emb, l.Approved,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("op=listing.upsert: %w", err)
	}

	// Conflict: another pass (or an earlier one) stored this URL.
	err = p.pool.QueryRow(ctx,
		`SELECT id::text FROM listings WHERE canonical_url = $1`, l.CanonicalURL,
	).Scan(&id)
	if err != nil {
		return "", false, fmt.Errorf("op=listing.upsert.lookup: %w", err)
	}
	return id, false, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (model.Listing, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Listing{}, ErrNotFound
	}
	row := p.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Listing{}, ErrNotFound
	}
	if err != nil {
		return model.Listing{}, fmt.Errorf("op=listing.get: %w", err)
	}
	return l, nil
}

func (p *Postgres) Query(ctx context.Context, f Filter, limit int) (out []model.Listing, err error) {
	ctx, span := observability.StartSpan(ctx, "store.Query")
	defer func() { observability.EndSpan(span, err) }()

	sqlStr, args, err := buildQuery(f, limit)
	if err != nil {
		return nil, fmt.Errorf("op=listing.query.build: %w", err)
	}

	rows, err := p.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("op=listing.query: %w", err)
	}
	defer rows.Close()

	out = make([]model.Listing, 0)
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("op=listing.query.scan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// buildQuery renders Filter into SQL. Split out so it can be tested without
// a database.
func buildQuery(f Filter, limit int) (string, []any, error) {
	q := psql.Select(listingColumns).From("listings")

	if f.Status != "" {
		q = q.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.Category != "" {
		q = q.Where(sq.Eq{"category": string(f.Category)})
	}
	if f.SkillLevel != "" {
		q = q.Where(sq.Eq{"skill_level": string(f.SkillLevel)})
	}
	if f.Group != "" {
		q = q.Where(sq.Eq{"listing_group": string(f.Group)})
	}
	if f.Source != "" {
		q = q.Where(sq.Eq{"source": f.Source})
	}
	if f.Approved != nil {
		q = q.Where(sq.Eq{"approved": *f.Approved})
	}
	if f.Location != "" {
		q = q.Where(sq.ILike{"location": likePattern(f.Location)})
	}
	if f.Keyword != "" {
		pat := likePattern(f.Keyword)
		q = q.Where(sq.Or{sq.ILike{"title": pat}, sq.ILike{"description": pat}})
	}

	return q.OrderBy("stored_at DESC", "id").Limit(uint64(ClampLimit(limit))).ToSql()
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func (p *Postgres) ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(urls) == 0 {
		return out, nil
	}
	rows, err := p.pool.Query(ctx,
		`SELECT canonical_url FROM listings WHERE canonical_url = ANY($1)`, urls)
	if err != nil {
		return nil, fmt.Errorf("op=listing.existing_urls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("op=listing.existing_urls.scan: %w", err)
		}
		out[u] = true
	}
	return out, rows.Err()
}

func (p *Postgres) DeactivateOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, &ValidationError{Msg: "days must not be negative"}
	}
	cutoff := p.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	tag, err := p.pool.Exec(ctx,
		`UPDATE listings
		 SET status = 'inactive', inactive_at = NOW()
		 WHERE status = 'active' AND stored_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("op=listing.deactivate: %w", err)
	}
	return tag.RowsAffected(), nil
}

// counterColumns whitelists the columns IncrementCounter may touch.
var counterColumns = map[model.Counter]string{
	model.CounterViews:        "views",
	model.CounterApplications: "applications",
}

func (p *Postgres) IncrementCounter(ctx context.Context, id string, c model.Counter) error {
	col, ok := counterColumns[c]
	if !ok {
		return &ValidationError{Msg: fmt.Sprintf("unknown counter %q", c)}
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE listings SET `+col+` = `+col+` + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("op=listing.increment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AppendRun(ctx context.Context, run model.ScrapeRun) error {
	counts, err := json.Marshal(run.Counts)
	if err != nil {
		return fmt.Errorf("op=run.append.marshal: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO scrape_runs (id, source, kind, started_at, finished_at, counts, errors)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`,
		run.ID, run.Source, string(run.Kind), run.StartedAt, run.FinishedAt, string(counts), nonNil(run.Errors),
	)
	if err != nil {
		return fmt.Errorf("op=run.append: %w", err)
	}
	return nil
}

func (p *Postgres) RecentRuns(ctx context.Context, limit int) ([]model.ScrapeRun, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, source, kind, started_at, finished_at, counts, errors
		 FROM scrape_runs ORDER BY started_at DESC LIMIT $1`, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("op=run.recent: %w", err)
	}
	defer rows.Close()

	out := make([]model.ScrapeRun, 0)
	for rows.Next() {
		var (
			r      model.ScrapeRun
			kind   string
			counts []byte
		)
		if err := rows.Scan(&r.ID, &r.Source, &kind, &r.StartedAt, &r.FinishedAt, &counts, &r.Errors); err != nil {
			return nil, fmt.Errorf("op=run.recent.scan: %w", err)
		}
		r.Kind = model.RunKind(kind)
		if err := json.Unmarshal(counts, &r.Counts); err != nil {
			return nil, fmt.Errorf("op=run.recent.counts: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) GetProfile(ctx context.Context, userID string) (model.UserProfile, error) {
	prof := model.UserProfile{UserID: userID}
	err := p.pool.QueryRow(ctx,
		`SELECT skills, interests FROM profiles WHERE user_id = $1`, userID,
	).Scan(&prof.Skills, &prof.Interests)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.UserProfile{}, ErrNotFound
	}
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("op=profile.get: %w", err)
	}
	return prof, nil
}

func (p *Postgres) SaveProfile(ctx context.Context, prof model.UserProfile) error {
	if strings.TrimSpace(prof.UserID) == "" {
		return &ValidationError{Msg: "user id is required"}
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, skills, interests) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET skills = EXCLUDED.skills, interests = EXCLUDED.interests`,
		prof.UserID, nonNil(prof.Skills), nonNil(prof.Interests),
	)
	if err != nil {
		return fmt.Errorf("op=profile.save: %w", err)
	}
	return nil
}

func scanListing(row pgx.Row) (model.Listing, error) {
	var (
		l                          model.Listing
		group, category, level, st string
		emb                        *pgvector.Vector
	)
	err := row.Scan(
		&l.ID, &l.CanonicalURL, &l.SourceName, &l.Title, &l.Company, &l.Description, &l.Requirements,
		&l.Location, &l.JobType, &l.CompensationText, &l.Tags, &l.Skills, &l.ExperienceLevel, &group,
		&l.IsImmediate, &l.PostedAt, &l.FetchedAt, &l.TrustScore, &l.IsLegitimate, &l.Confidence,
		&l.RedFlags, &l.CredibilityNotes, &category, &l.Subcategory, &level, &l.PaymentTimeframe,
		&l.RequiredSkills, &l.SalaryRange, &l.TimeCommitment, &l.Deadline, &emb, &st, &l.Approved,
		&l.StoredAt, &l.InactiveAt, &l.Views, &l.Applications,
	)
	if err != nil {
		return model.Listing{}, err
	}
	l.Group = model.Group(group)
	l.Category = model.Category(category)
	l.SkillLevel = model.SkillLevel(level)
	l.Status = model.Status(st)
	if emb != nil {
		l.Embedding = emb.Slice()
	}
	return l, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func fetchedAt(t time.Time, now func() time.Time) time.Time {
	if t.IsZero() {
		return now().UTC()
	}
	return t
}
