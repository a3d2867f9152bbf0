package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"gophora/discovery-service/internal/observability"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "text-embedding-3-small"
)

// OpenAI embeds text through any OpenAI-compatible /embeddings endpoint.
// Rate limits and server errors are retried with exponential backoff; other
// 4xx responses fail immediately.
type OpenAI struct {
	baseURL    string
	apiKey     string
	model      string
	dims       int
	client     *http.Client
	maxElapsed time.Duration
	logger     *zap.Logger
}

// OpenAIOption configures an OpenAI embedder.
type OpenAIOption func(*OpenAI)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(o *OpenAI) { o.client = c }
}

// WithMaxElapsed bounds the total retry time.
func WithMaxElapsed(d time.Duration) OpenAIOption {
	return func(o *OpenAI) { o.maxElapsed = d }
}

// NewOpenAI builds an OpenAI-compatible embedder.
func NewOpenAI(logger *zap.Logger, baseURL, apiKey, model string, dims int, opts ...OpenAIOption) *OpenAI {
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if model = strings.TrimSpace(model); model == "" || model == defaultGeminiModel {
		model = defaultOpenAIModel
	}
	if dims <= 0 {
		dims = DefaultDimensions
	}
	o := &OpenAI{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		dims:       dims,
		client:     &http.Client{Timeout: 30 * time.Second},
		maxElapsed: 30 * time.Second,
		logger:     logger.Named("embedder"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (o *OpenAI) Embed(ctx context.Context, text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	start := time.Now()
	v, err := o.embedWithRetry(ctx, text)
	observability.ObserveAI("openai", "embed", start)
	if err != nil {
		o.logger.Warn("embedding failed", zap.Error(err))
		return nil
	}
	return v
}

func (o *OpenAI) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: o.model, Input: text, Dimensions: o.dims})
	if err != nil {
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = o.maxElapsed

	var out []float32
	op := func() error {
		v, err := o.post(ctx, body)
		if err != nil {
			return err
		}
		out = v
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *OpenAI) post(ctx context.Context, body []byte) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("embeddings endpoint returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, backoff.Permanent(fmt.Errorf("embeddings endpoint returned %d: %s", resp.StatusCode, truncate(raw, 200)))
	}

	var er embeddingResponse
	if err := json.Unmarshal(raw, &er); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode embeddings response: %w", err))
	}
	if len(er.Data) == 0 {
		return nil, backoff.Permanent(errors.New("embeddings response has no data"))
	}
	v := checkDims(er.Data[0].Embedding, o.dims)
	if v == nil {
		return nil, backoff.Permanent(fmt.Errorf("unexpected embedding length %d, want %d", len(er.Data[0].Embedding), o.dims))
	}
	return v, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
