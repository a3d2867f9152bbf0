package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"gophora/discovery-service/internal/model"
)

const findworkBaseURL = "https://findwork.dev/api/jobs/"

// Findwork fetches the findwork.dev API. It needs a token; without one the
// adapter is a no-op.
type Findwork struct {
	APIKey   string
	BaseURL  string
	MaxPages int
	client   *http.Client
	logger   *zap.Logger
}

// NewFindwork constructs the adapter with its own HTTP client.
func NewFindwork(logger *zap.Logger, timeout time.Duration, apiKey string) *Findwork {
	return &Findwork{
		APIKey:   apiKey,
		BaseURL:  findworkBaseURL,
		MaxPages: 2,
		client:   newHTTPClient(timeout),
		logger:   logger,
	}
}

func (f *Findwork) Name() string { return "findwork" }

type findworkResponse struct {
	Next    *string       `json:"next"`
	Results []findworkJob `json:"results"`
}

type findworkJob struct {
	ID             int      `json:"id"`
	Role           string   `json:"role"`
	CompanyName    string   `json:"company_name"`
	EmploymentType string   `json:"employment_type"`
	Location       string   `json:"location"`
	Remote         bool     `json:"remote"`
	URL            string   `json:"url"`
	Text           string   `json:"text"`
	DatePosted     string   `json:"date_posted"`
	Keywords       []string `json:"keywords"`
}

// Fetch queries findwork with server-side search and follows the next link.
func (f *Findwork) Fetch(ctx context.Context, filter string) []model.RawListing {
	if f.APIKey == "" {
		f.logger.Info("FINDWORK_API_KEY not set, skipping source")
		return []model.RawListing{}
	}

	params := url.Values{}
	params.Set("sort_by", "date")
	if filter != "" {
		params.Set("search", filter)
	}
	reqURL := f.BaseURL + "?" + params.Encode()

	header := http.Header{}
	header.Set("Authorization", "Token "+f.APIKey)

	now := time.Now().UTC()
	out := []model.RawListing{}
	for page := 1; page <= f.MaxPages && reqURL != ""; page++ {
		var resp findworkResponse
		if err := getJSON(ctx, f.client, reqURL, header, &resp); err != nil {
			logFetchError(f.logger, f.Name(), filter, fmt.Errorf("page %d: %w", page, err))
			break
		}
		for _, j := range resp.Results {
			out = append(out, f.normalize(j, now))
		}
		reqURL = ""
		if resp.Next != nil {
			reqURL = *resp.Next
		}
	}
	return out
}

func (f *Findwork) normalize(j findworkJob, now time.Time) model.RawListing {
	location := j.Location
	if location == "" && j.Remote {
		location = "Remote"
	}
	raw := model.RawListing{
		Title:        j.Role,
		Company:      j.CompanyName,
		Description:  j.Text,
		Location:     location,
		JobType:      j.EmploymentType,
		CanonicalURL: j.URL,
		SourceName:   f.Name(),
		Tags:         j.Keywords,
		PostedAt:     parseTime(commonLayouts, j.DatePosted),
	}
	finalize(&raw, now)
	return raw
}
