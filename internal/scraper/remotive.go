package scraper

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"gophora/discovery-service/internal/model"
)

const remotiveBaseURL = "https://remotive.com/api/remote-jobs"

// Remotive fetches remote jobs from the Remotive public API. The API has no
// server-side skill search, so filtering happens on the client.
type Remotive struct {
	BaseURL string
	Limit   int
	client  *http.Client
	logger  *zap.Logger
}

// NewRemotive constructs the adapter with its own HTTP client.
func NewRemotive(logger *zap.Logger, timeout time.Duration) *Remotive {
	return &Remotive{
		BaseURL: remotiveBaseURL,
		Limit:   50,
		client:  newHTTPClient(timeout),
		logger:  logger,
	}
}

func (r *Remotive) Name() string { return "remotive" }

type remotiveResponse struct {
	Jobs []remotiveJob `json:"jobs"`
}

type remotiveJob struct {
	ID                        int      `json:"id"`
	URL                       string   `json:"url"`
	Title                     string   `json:"title"`
	CompanyName               string   `json:"company_name"`
	Category                  string   `json:"category"`
	Tags                      []string `json:"tags"`
	JobType                   string   `json:"job_type"`
	PublicationDate           string   `json:"publication_date"`
	CandidateRequiredLocation string   `json:"candidate_required_location"`
	Salary                    string   `json:"salary"`
	Description               string   `json:"description"`
}

// Fetch returns Remotive jobs whose title, description or tags mention filter.
func (r *Remotive) Fetch(ctx context.Context, filter string) []model.RawListing {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(r.Limit))

	var resp remotiveResponse
	if err := getJSON(ctx, r.client, r.BaseURL+"?"+params.Encode(), nil, &resp); err != nil {
		logFetchError(r.logger, r.Name(), filter, err)
		return []model.RawListing{}
	}

	now := time.Now().UTC()
	out := make([]model.RawListing, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		if !MatchesFilter(filter, j.Title, j.Description, j.Tags) {
			continue
		}
		out = append(out, r.normalize(j, now))
	}
	return out
}

func (r *Remotive) normalize(j remotiveJob, now time.Time) model.RawListing {
	location := j.CandidateRequiredLocation
	if location == "" {
		location = "Remote"
	}
	raw := model.RawListing{
		Title:            j.Title,
		Company:          j.CompanyName,
		Description:      j.Description,
		Location:         location,
		JobType:          j.JobType,
		CompensationText: j.Salary,
		CanonicalURL:     j.URL,
		SourceName:       r.Name(),
		Tags:             j.Tags,
		PostedAt:         parseTime(commonLayouts, j.PublicationDate),
	}
	finalize(&raw, now)
	return raw
}
