// Package embedder turns listing and profile text into fixed-length vectors.
//
// Embedders never return errors: a failed call yields a nil vector and the
// listing is stored without one.
package embedder

import (
	"context"
	"strings"
)

// DefaultDimensions is the vector length of text-embedding-004 and of the
// listings.embedding column.
const DefaultDimensions = 768

// Embedder returns the embedding of text, or nil on any failure.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

type queryKey struct{}

// AsQuery marks ctx so that embedders which tell search queries apart from
// stored documents embed the text as a query.
func AsQuery(ctx context.Context) context.Context {
	return context.WithValue(ctx, queryKey{}, true)
}

// IsQuery reports whether ctx was marked with AsQuery.
func IsQuery(ctx context.Context) bool {
	q, _ := ctx.Value(queryKey{}).(bool)
	return q
}

// ListingText builds the embedding input for a listing.
func ListingText(title, company, description string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{title, company, description} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// ProfileText builds the embedding input for a user profile.
func ProfileText(skills, interests []string) string {
	return strings.TrimSpace(strings.Join(skills, " ") + " " + strings.Join(interests, " "))
}

// Nop never produces a vector. Matching falls back to skill overlap.
type Nop struct{}

func (Nop) Embed(context.Context, string) []float32 { return nil }

func checkDims(v []float32, dims int) []float32 {
	if len(v) == 0 || (dims > 0 && len(v) != dims) {
		return nil
	}
	return v
}
