// Package scraper implements job offer fetching and normalisation.
//
// Every adapter satisfies Source: it fetches one external board, maps each
// record into model.RawListing and never returns an error to its caller.
// Failures are logged and produce an empty slice.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gophora/discovery-service/internal/config"
	"gophora/discovery-service/internal/model"
)

const (
	// DefaultHTTPTimeout bounds a single upstream request.
	DefaultHTTPTimeout = 20 * time.Second
	maxBodyBytes       = 8 << 20
	userAgent          = "gophora-discovery/1.0"
)

// Source is one external job board.
type Source interface {
	Name() string
	// Fetch returns normalised listings matching filter (a skill or keyword,
	// empty for everything). It never fails: errors yield an empty slice.
	Fetch(ctx context.Context, filter string) []model.RawListing
}

// Registry holds adapters by name, preserving registration order.
type Registry struct {
	order   []string
	sources map[string]Source
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds s, replacing any adapter with the same name.
func (r *Registry) Register(s Source) {
	name := s.Name()
	if _, exists := r.sources[name]; !exists {
		r.order = append(r.order, name)
	}
	r.sources[name] = s
}

// Resolve returns the adapter registered under name.
func (r *Registry) Resolve(name string) (Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

// Sources returns the named adapters, or every adapter when names is empty.
// Unknown names are skipped.
func (r *Registry) Sources(names ...string) []Source {
	if len(names) == 0 {
		names = r.order
	}
	out := make([]Source, 0, len(names))
	for _, n := range names {
		if s, ok := r.sources[n]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Names lists registered adapter names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// newHTTPClient returns the client every adapter owns.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// getBody performs a GET and returns the body of a 200 response.
func getBody(ctx context.Context, client *http.Client, reqURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned %d: %s", resp.StatusCode, snippet(body, 256))
	}
	return body, nil
}

// getJSON performs a GET and decodes a JSON body into out.
func getJSON(ctx context.Context, client *http.Client, reqURL string, header http.Header, out any) error {
	body, err := getBody(ctx, client, reqURL, header)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}
	return nil
}

func snippet(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}

// logFetchError is the single place adapters report a failed fetch.
func logFetchError(logger *zap.Logger, source, filter string, err error) {
	logger.Warn("source fetch failed",
		zap.String("source", source),
		zap.String("filter", filter),
		zap.Error(err),
	)
}

// NewDefaultRegistry registers the built-in API adapters plus any HTML boards
// from the sources file. When enabled is non-empty only those names are kept.
func NewDefaultRegistry(logger *zap.Logger, cfg *config.Config, sf *config.SourcesFile) *Registry {
	timeout := cfg.HTTPTimeout
	all := []Source{
		NewRemotive(logger, timeout),
		NewArbeitnow(logger, timeout),
		NewAdzuna(logger, timeout, cfg.AdzunaAppID, cfg.AdzunaAppKey, cfg.AdzunaCountry),
		NewFindwork(logger, timeout, cfg.FindworkAPIKey),
	}
	if sf != nil {
		for _, b := range sf.Boards {
			all = append(all, NewHTMLBoard(logger, timeout, b))
		}
	}

	enabled := map[string]bool{}
	if sf != nil {
		for _, n := range sf.Enabled {
			enabled[n] = true
		}
	}

	reg := NewRegistry()
	for _, s := range all {
		if len(enabled) > 0 && !enabled[s.Name()] {
			continue
		}
		reg.Register(s)
	}
	return reg
}
