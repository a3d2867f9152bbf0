// Package store persists listings, the ingestion run log and user profiles.
//
// Two implementations share one contract: Postgres (production) and Memory
// (tests and local runs without a database). Uniqueness of the canonical URL
// is enforced by the store itself, so concurrent upserts need no locking in
// callers.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gophora/discovery-service/internal/model"
)

// ErrNotFound is returned when a listing or profile does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError is returned for caller mistakes (bad filter values).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

const (
	// DefaultLimit applies when a query passes limit <= 0.
	DefaultLimit = 50
	// MaxLimit caps any query.
	MaxLimit = 500
)

// Filter narrows Query. Zero values mean "any"; all set fields are ANDed.
type Filter struct {
	Status     model.Status
	Category   model.Category
	SkillLevel model.SkillLevel
	Group      model.Group
	Source     string
	// Location matches as a case-insensitive substring.
	Location string
	// Keyword matches title or description as a case-insensitive substring.
	Keyword  string
	Approved *bool
}

// Store is the listing repository.
type Store interface {
	// Upsert inserts l unless a listing with the same canonical URL exists.
	// It returns the stored id and whether a new row was created.
	Upsert(ctx context.Context, l model.Listing) (id string, created bool, err error)
	Get(ctx context.Context, id string) (model.Listing, error)
	// Query returns matching listings, most recently stored first.
	Query(ctx context.Context, f Filter, limit int) ([]model.Listing, error)
	// ExistingURLs reports which of urls are already stored.
	ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error)
	// DeactivateOlderThan marks active listings stored more than days ago as
	// inactive and returns how many changed. Running it twice changes nothing.
	DeactivateOlderThan(ctx context.Context, days int) (int64, error)
	// IncrementCounter atomically adds one to a counter.
	IncrementCounter(ctx context.Context, id string, c model.Counter) error
	AppendRun(ctx context.Context, run model.ScrapeRun) error
	RecentRuns(ctx context.Context, limit int) ([]model.ScrapeRun, error)
}

// ProfileRepository reads user profiles for recommendations.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (model.UserProfile, error)
	SaveProfile(ctx context.Context, p model.UserProfile) error
}

// ClampLimit maps limit into [1, MaxLimit], using DefaultLimit for <= 0.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func validateListing(l model.Listing) error {
	if strings.TrimSpace(l.CanonicalURL) == "" {
		return &ValidationError{Msg: "canonical url is required"}
	}
	if l.TrustScore < 0 || l.TrustScore > 100 {
		return &ValidationError{Msg: fmt.Sprintf("trust score %d out of range", l.TrustScore)}
	}
	return nil
}
