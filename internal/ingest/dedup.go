package ingest

import (
	"context"
	"fmt"

	"gophora/discovery-service/internal/model"
)

// URLChecker reports which canonical URLs are already stored.
type URLChecker interface {
	ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error)
}

// Deduplicator drops records whose canonical URL was already seen, either
// earlier in the same batch or in the store.
type Deduplicator struct {
	store URLChecker
}

// NewDeduplicator returns a Deduplicator backed by store.
func NewDeduplicator(store URLChecker) *Deduplicator {
	return &Deduplicator{store: store}
}

// IsNew reports whether raw has a canonical URL that is not stored yet.
func (d *Deduplicator) IsNew(ctx context.Context, raw model.RawListing) (bool, error) {
	if !raw.Deduplicable() {
		return false, nil
	}
	existing, err := d.store.ExistingURLs(ctx, []string{raw.CanonicalURL})
	if err != nil {
		return false, fmt.Errorf("existing urls: %w", err)
	}
	return !existing[raw.CanonicalURL], nil
}

// Filter splits batch into fresh records (first occurrence wins) and counts
// of duplicates and records without a URL. The store is consulted once, so
// the answer reflects the store at call time. When the lookup fails the
// batch-level result is still returned together with the error.
func (d *Deduplicator) Filter(ctx context.Context, batch []model.RawListing) (fresh []model.RawListing, dupes, noURL int, err error) {
	seen := make(map[string]bool, len(batch))
	unique := make([]model.RawListing, 0, len(batch))
	urls := make([]string, 0, len(batch))

	for _, r := range batch {
		if !r.Deduplicable() {
			noURL++
			continue
		}
		if seen[r.CanonicalURL] {
			dupes++
			continue
		}
		seen[r.CanonicalURL] = true
		unique = append(unique, r)
		urls = append(urls, r.CanonicalURL)
	}
	if len(unique) == 0 {
		return unique, dupes, noURL, nil
	}

	existing, err := d.store.ExistingURLs(ctx, urls)
	if err != nil {
		return unique, dupes, noURL, fmt.Errorf("existing urls: %w", err)
	}

	fresh = unique[:0]
	for _, r := range unique {
		if existing[r.CanonicalURL] {
			dupes++
			continue
		}
		fresh = append(fresh, r)
	}
	return fresh, dupes, noURL, nil
}
