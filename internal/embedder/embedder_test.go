package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

func vec(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(i) / float32(n)
	}
	return v
}

func TestListingText(t *testing.T) {
	assert.Equal(t, "Go Dev Acme Build things", ListingText(" Go Dev ", "Acme", "Build things"))
	assert.Equal(t, "Go Dev Build things", ListingText("Go Dev", "", "Build things"))
	assert.Equal(t, "python react", ProfileText([]string{"python"}, []string{"react"}))
}

type stubModels struct {
	resp   *genai.EmbedContentResponse
	err    error
	config *genai.EmbedContentConfig
}

func (s *stubModels) EmbedContent(_ context.Context, _ string, _ []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	s.config = cfg
	return s.resp, s.err
}

func TestGemini(t *testing.T) {
	ok := &stubModels{resp: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: vec(8)}},
	}}
	g := newGemini(zap.NewNop(), ok, "", 8)
	assert.Len(t, g.Embed(context.Background(), "hello"), 8)
	require.NotNil(t, ok.config.OutputDimensionality)
	assert.Equal(t, int32(8), *ok.config.OutputDimensionality)

	assert.Equal(t, "RETRIEVAL_DOCUMENT", ok.config.TaskType)

	assert.Len(t, g.Embed(AsQuery(context.Background()), "python react"), 8)
	assert.Equal(t, "RETRIEVAL_QUERY", ok.config.TaskType)

	assert.Nil(t, g.Embed(context.Background(), "  "), "empty input is not sent")

	short := &stubModels{resp: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: vec(4)}},
	}}
	assert.Nil(t, newGemini(zap.NewNop(), short, "", 8).Embed(context.Background(), "hello"), "wrong dimension discarded")

	failing := &stubModels{err: errors.New("quota")}
	assert.Nil(t, newGemini(zap.NewNop(), failing, "", 8).Embed(context.Background(), "hello"))
}

func TestOpenAI_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": vec(8)}},
		})
	}))
	defer srv.Close()

	o := NewOpenAI(zap.NewNop(), srv.URL, "key", "", 8, WithMaxElapsed(5*time.Second))
	v := o.Embed(context.Background(), "hello")
	assert.Len(t, v, 8)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAI_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	o := NewOpenAI(zap.NewNop(), srv.URL, "bad", "", 8, WithMaxElapsed(5*time.Second))
	assert.Nil(t, o.Embed(context.Background(), "hello"))
	assert.Equal(t, int32(1), calls.Load())
}

type countingEmbedder struct {
	calls int
	out   []float32
}

func (c *countingEmbedder) Embed(context.Context, string) []float32 {
	c.calls++
	return c.out
}

func TestCached(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	inner := &countingEmbedder{out: []float32{0.5, -1.25, 3}}
	c := NewCached(zap.NewNop(), inner, rdb, time.Hour)
	ctx := context.Background()

	first := c.Embed(ctx, "same text")
	second := c.Embed(ctx, "same text")
	assert.Equal(t, inner.out, first)
	assert.Equal(t, inner.out, second)
	assert.Equal(t, 1, inner.calls)
	assert.True(t, mr.Exists(cacheKey(ctx, "same text")))
	assert.Equal(t, time.Hour, mr.TTL(cacheKey(ctx, "same text")))

	c.Embed(ctx, "other text")
	assert.Equal(t, 2, inner.calls)

	qctx := AsQuery(ctx)
	c.Embed(qctx, "same text")
	assert.Equal(t, 3, inner.calls, "query embeddings do not reuse document entries")
	assert.True(t, mr.Exists(cacheKey(qctx, "same text")))
	assert.NotEqual(t, cacheKey(ctx, "same text"), cacheKey(qctx, "same text"))
}

func TestCached_FailuresAreNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	inner := &countingEmbedder{}
	c := NewCached(zap.NewNop(), inner, rdb, time.Hour)
	assert.Nil(t, c.Embed(context.Background(), "x"))
	assert.Nil(t, c.Embed(context.Background(), "x"))
	assert.Equal(t, 2, inner.calls)
}

func TestCached_RedisDownFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	inner := &countingEmbedder{out: []float32{1}}
	c := NewCached(zap.NewNop(), inner, rdb, time.Hour)
	assert.Equal(t, []float32{1}, c.Embed(context.Background(), "x"))
}
