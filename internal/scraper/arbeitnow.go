package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"gophora/discovery-service/internal/model"
)

const arbeitnowBaseURL = "https://www.arbeitnow.com/api/job-board-api"

// Arbeitnow fetches the Arbeitnow job board API. Records are decoded
// loosely because the API mixes numeric and string types across fields.
type Arbeitnow struct {
	BaseURL  string
	MaxPages int
	client   *http.Client
	logger   *zap.Logger
}

// NewArbeitnow constructs the adapter with its own HTTP client.
func NewArbeitnow(logger *zap.Logger, timeout time.Duration) *Arbeitnow {
	return &Arbeitnow{
		BaseURL:  arbeitnowBaseURL,
		MaxPages: 2,
		client:   newHTTPClient(timeout),
		logger:   logger,
	}
}

func (a *Arbeitnow) Name() string { return "arbeitnow" }

type arbeitnowResponse struct {
	Data  []map[string]any `json:"data"`
	Links struct {
		Next *string `json:"next"`
	} `json:"links"`
}

type arbeitnowJob struct {
	Slug        string   `mapstructure:"slug"`
	CompanyName string   `mapstructure:"company_name"`
	Title       string   `mapstructure:"title"`
	Description string   `mapstructure:"description"`
	Remote      bool     `mapstructure:"remote"`
	URL         string   `mapstructure:"url"`
	Tags        []string `mapstructure:"tags"`
	JobTypes    []string `mapstructure:"job_types"`
	Location    string   `mapstructure:"location"`
	CreatedAt   int64    `mapstructure:"created_at"`
}

// Fetch walks up to MaxPages pages and keeps jobs matching filter.
func (a *Arbeitnow) Fetch(ctx context.Context, filter string) []model.RawListing {
	now := time.Now().UTC()
	out := []model.RawListing{}

	for page := 1; page <= a.MaxPages; page++ {
		var resp arbeitnowResponse
		reqURL := fmt.Sprintf("%s?page=%d", a.BaseURL, page)
		if err := getJSON(ctx, a.client, reqURL, nil, &resp); err != nil {
			logFetchError(a.logger, a.Name(), filter, fmt.Errorf("page %d: %w", page, err))
			break
		}

		for _, rec := range resp.Data {
			job, err := decodeArbeitnow(rec)
			if err != nil {
				a.logger.Debug("arbeitnow record skipped", zap.Error(err))
				continue
			}
			if !MatchesFilter(filter, job.Title, job.Description, job.Tags) {
				continue
			}
			out = append(out, a.normalize(job, now))
		}

		if resp.Links.Next == nil || *resp.Links.Next == "" || len(resp.Data) == 0 {
			break
		}
	}
	return out
}

func decodeArbeitnow(rec map[string]any) (arbeitnowJob, error) {
	var job arbeitnowJob
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &job,
	})
	if err != nil {
		return job, err
	}
	if err := dec.Decode(rec); err != nil {
		return job, fmt.Errorf("decode arbeitnow record: %w", err)
	}
	return job, nil
}

func (a *Arbeitnow) normalize(j arbeitnowJob, now time.Time) model.RawListing {
	location := j.Location
	if j.Remote && !strings.Contains(strings.ToLower(location), "remote") {
		if location == "" {
			location = "Remote"
		} else {
			location += " (Remote)"
		}
	}
	var posted *time.Time
	if j.CreatedAt > 0 {
		t := time.Unix(j.CreatedAt, 0).UTC()
		posted = &t
	}
	raw := model.RawListing{
		Title:        j.Title,
		Company:      j.CompanyName,
		Description:  j.Description,
		Location:     location,
		JobType:      strings.Join(j.JobTypes, ", "),
		CanonicalURL: j.URL,
		SourceName:   a.Name(),
		Tags:         j.Tags,
		PostedAt:     posted,
	}
	finalize(&raw, now)
	return raw
}
