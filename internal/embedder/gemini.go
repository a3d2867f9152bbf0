package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"gophora/discovery-service/internal/observability"
)

const defaultGeminiModel = "text-embedding-004"

const (
	taskDocument = "RETRIEVAL_DOCUMENT"
	taskQuery    = "RETRIEVAL_QUERY"
)

// contentEmbedder is the part of genai.Models the Gemini embedder calls.
type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Gemini embeds text with the Gemini embedding API.
type Gemini struct {
	models contentEmbedder
	model  string
	dims   int
	logger *zap.Logger
}

// NewGemini returns a Gemini embedder sharing client.
func NewGemini(logger *zap.Logger, client *genai.Client, model string, dims int) *Gemini {
	return newGemini(logger, client.Models, model, dims)
}

func newGemini(logger *zap.Logger, models contentEmbedder, model string, dims int) *Gemini {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultGeminiModel
	}
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Gemini{models: models, model: model, dims: dims, logger: logger.Named("embedder")}
}

func (g *Gemini) Embed(ctx context.Context, text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	start := time.Now()
	v, err := g.embed(ctx, text)
	observability.ObserveAI("gemini", "embed", start)
	if err != nil {
		g.logger.Warn("embedding failed", zap.Error(err))
		return nil
	}
	return v
}

func (g *Gemini) embed(ctx context.Context, text string) ([]float32, error) {
	dims := int32(g.dims)
	task := taskDocument
	if IsQuery(ctx) {
		task = taskQuery
	}
	resp, err := g.models.EmbedContent(ctx, g.model, genai.Text(text), &genai.EmbedContentConfig{
		TaskType:             task,
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("gemini api returned no embedding")
	}
	v := checkDims(resp.Embeddings[0].Values, g.dims)
	if v == nil {
		return nil, fmt.Errorf("unexpected embedding length %d, want %d", len(resp.Embeddings[0].Values), g.dims)
	}
	return v, nil
}
