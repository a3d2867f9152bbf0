package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"gophora/discovery-service/internal/config"
	"gophora/discovery-service/internal/model"
)

// HTMLBoard scrapes a server-rendered job board described by CSS selectors.
type HTMLBoard struct {
	cfg    config.BoardConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTMLBoard constructs an adapter for one configured board.
func NewHTMLBoard(logger *zap.Logger, timeout time.Duration, cfg config.BoardConfig) *HTMLBoard {
	return &HTMLBoard{cfg: cfg, client: newHTTPClient(timeout), logger: logger}
}

func (b *HTMLBoard) Name() string { return b.cfg.Name }

// Fetch downloads the board page and extracts every item matching filter.
func (b *HTMLBoard) Fetch(ctx context.Context, filter string) []model.RawListing {
	body, err := getBody(ctx, b.client, b.cfg.URL, nil)
	if err != nil {
		logFetchError(b.logger, b.Name(), filter, err)
		return []model.RawListing{}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		logFetchError(b.logger, b.Name(), filter, fmt.Errorf("parse html: %w", err))
		return []model.RawListing{}
	}

	base, _ := url.Parse(b.cfg.URL)
	now := time.Now().UTC()
	out := []model.RawListing{}

	doc.Find(b.cfg.Item).Each(func(_ int, item *goquery.Selection) {
		title := selectText(item, b.cfg.Title)
		if title == "" {
			return
		}
		desc := selectText(item, b.cfg.Description)
		if !MatchesFilter(filter, title, desc, nil) {
			return
		}

		raw := model.RawListing{
			Title:        title,
			Company:      selectText(item, b.cfg.Company),
			Description:  desc,
			Location:     selectText(item, b.cfg.Location),
			CanonicalURL: resolveLink(base, item, b.cfg.Link),
			SourceName:   b.Name(),
		}
		finalize(&raw, now)
		out = append(out, raw)
	})
	return out
}

func selectText(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(item.Find(selector).First().Text())
}

// resolveLink reads href from the link selector (or the item itself when the
// item is the anchor) and resolves it against the board URL.
func resolveLink(base *url.URL, item *goquery.Selection, selector string) string {
	sel := item.Find(selector).First()
	if sel.Length() == 0 {
		sel = item
	}
	href, ok := sel.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
