package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"gophora/discovery-service/internal/model"
)

const (
	adzunaBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize = 50
	adzunaMaxPages = 3 // max 150 results per filter
)

// Adzuna fetches job offers from the Adzuna public API.
// If AppID or AppKey is empty, Fetch returns an empty slice and logs once per
// call; the pass simply proceeds with the other sources.
type Adzuna struct {
	AppID   string
	AppKey  string
	Country string // "us", "gb", "fr", …
	BaseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewAdzuna constructs the adapter with its own HTTP client.
func NewAdzuna(logger *zap.Logger, timeout time.Duration, appID, appKey, country string) *Adzuna {
	if country == "" {
		country = "us"
	}
	return &Adzuna{
		AppID:   appID,
		AppKey:  appKey,
		Country: country,
		BaseURL: adzunaBaseURL,
		client:  newHTTPClient(timeout),
		logger:  logger,
	}
}

func (f *Adzuna) Name() string { return "adzuna" }

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

// adzunaResult mirrors a single Adzuna job listing.
type adzunaResult struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Company      adzunaName     `json:"company"`
	Location     adzunaName     `json:"location"`
	Category     adzunaCategory `json:"category"`
	SalaryMin    float64        `json:"salary_min"`
	SalaryMax    float64        `json:"salary_max"`
	RedirectURL  string         `json:"redirect_url"`
	Created      string         `json:"created"`
	ContractTime string         `json:"contract_time"`
	ContractType string         `json:"contract_type"`
}

type adzunaName struct {
	DisplayName string `json:"display_name"`
}

type adzunaCategory struct {
	Label string `json:"label"`
}

// Fetch retrieves offers matching filter, iterating through pages until no
// more results or adzunaMaxPages is reached. Pages are fetched sequentially.
func (f *Adzuna) Fetch(ctx context.Context, filter string) []model.RawListing {
	if f.AppID == "" || f.AppKey == "" {
		f.logger.Info("ADZUNA_APP_ID / ADZUNA_APP_KEY not set, skipping source")
		return []model.RawListing{}
	}

	results := []model.RawListing{}
	now := time.Now().UTC()

	for page := 1; page <= adzunaMaxPages; page++ {
		batch, err := f.fetchPage(ctx, filter, page)
		if err != nil {
			logFetchError(f.logger, f.Name(), filter, fmt.Errorf("page %d: %w", page, err))
			break
		}
		if len(batch) == 0 {
			break // No more results
		}
		for _, r := range batch {
			results = append(results, f.normalize(r, now))
		}
		if len(batch) < adzunaPageSize {
			break // Last page
		}
	}

	return results
}

func (f *Adzuna) fetchPage(ctx context.Context, filter string, page int) ([]adzunaResult, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", f.BaseURL, f.Country, page)

	params := url.Values{}
	params.Set("app_id", f.AppID)
	params.Set("app_key", f.AppKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	if filter != "" {
		params.Set("what", filter)
	}
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")

	header := http.Header{}
	header.Set("Accept", "application/json")

	var apiResp adzunaResponse
	if err := getJSON(ctx, f.client, endpoint+"?"+params.Encode(), header, &apiResp); err != nil {
		return nil, err
	}
	return apiResp.Results, nil
}

func (f *Adzuna) normalize(r adzunaResult, now time.Time) model.RawListing {
	sourceURL := r.RedirectURL
	if sourceURL == "" && r.ID != "" {
		sourceURL = fmt.Sprintf("adzuna:%s", r.ID)
	}

	raw := model.RawListing{
		Title:            r.Title,
		Company:          r.Company.DisplayName,
		Description:      r.Description,
		Location:         r.Location.DisplayName,
		JobType:          r.ContractTime,
		CompensationText: formatSalaryRange(r.SalaryMin, r.SalaryMax),
		CanonicalURL:     sourceURL,
		SourceName:       f.Name(),
		PostedAt:         parseTime(commonLayouts, r.Created),
	}
	if r.Category.Label != "" {
		raw.Tags = []string{r.Category.Label}
	}
	finalize(&raw, now)
	return raw
}

func formatSalaryRange(lo, hi float64) string {
	switch {
	case lo > 0 && hi > 0 && hi != lo:
		return fmt.Sprintf("%.0f - %.0f", lo, hi)
	case lo > 0:
		return fmt.Sprintf("%.0f", lo)
	case hi > 0:
		return fmt.Sprintf("%.0f", hi)
	}
	return ""
}
