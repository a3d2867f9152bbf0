// Package classifier scores raw listings for legitimacy and assigns their
// category, skill level and extracted metadata.
package classifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gophora/discovery-service/internal/model"
	"gophora/discovery-service/internal/observability"
	"gophora/discovery-service/internal/scraper"
)

// Classifier produces a ClassificationResult for one raw listing.
type Classifier interface {
	Classify(ctx context.Context, raw model.RawListing) (model.ClassificationResult, error)
}

// Guarded wraps a backend with the failure policy used by ingestion: a
// backend error becomes model.RejectedClassification and is never returned.
// Successful results are normalised and merged with keyword red flags.
type Guarded struct {
	backend  Classifier
	provider string
	redFlags []string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewGuarded wraps backend. A zero timeout leaves the caller's deadline in
// charge.
func NewGuarded(logger *zap.Logger, backend Classifier, provider string, timeout time.Duration) *Guarded {
	return &Guarded{
		backend:  backend,
		provider: provider,
		redFlags: scraper.DefaultRedFlags,
		timeout:  timeout,
		logger:   logger.Named("classifier"),
	}
}

// Classify never returns an error.
func (g *Guarded) Classify(ctx context.Context, raw model.RawListing) (model.ClassificationResult, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	ctx, span := observability.StartSpan(ctx, "classifier.Classify")
	start := time.Now()
	res, err := g.backend.Classify(ctx, raw)
	observability.ObserveAI(g.provider, "classify", start)
	observability.EndSpan(span, err)

	if err != nil {
		g.logger.Warn("classification failed, listing will not be approved",
			zap.String("url", raw.CanonicalURL),
			zap.String("source", raw.SourceName),
			zap.Error(err),
		)
		return model.RejectedClassification(), nil
	}

	res.Normalize()
	res.RedFlags = mergeFlags(res.RedFlags,
		scraper.MatchRedFlags(raw.Title, raw.Company, raw.Description, g.redFlags))
	return res, nil
}

// mergeFlags appends extra to base, skipping case-insensitive duplicates.
func mergeFlags(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, f := range list {
			k := normalizeKey(f)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, f)
		}
	}
	return out
}
