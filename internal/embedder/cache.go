package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	cacheKeyPrefix      = "embedding:"
	queryCacheKeyPrefix = "embedding:query:"
)

// Cached memoises another Embedder in Redis, keyed by the SHA-256 of the
// input text. Query embeddings are cached apart from document ones. Redis
// failures fall through to the wrapped embedder.
type Cached struct {
	next   Embedder
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewCached wraps next with a Redis cache.
func NewCached(logger *zap.Logger, next Embedder, rdb redis.Cmdable, ttl time.Duration) *Cached {
	return &Cached{next: next, rdb: rdb, ttl: ttl, logger: logger.Named("embedder.cache")}
}

func (c *Cached) Embed(ctx context.Context, text string) []float32 {
	key := cacheKey(ctx, text)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if v := decodeVector(raw); v != nil {
			return v
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Debug("cache read failed", zap.Error(err))
	}

	v := c.next.Embed(ctx, text)
	if v == nil {
		return nil
	}
	if err := c.rdb.Set(ctx, key, encodeVector(v), c.ttl).Err(); err != nil {
		c.logger.Debug("cache write failed", zap.Error(err))
	}
	return v
}

func cacheKey(ctx context.Context, text string) string {
	sum := sha256.Sum256([]byte(text))
	if IsQuery(ctx) {
		return queryCacheKeyPrefix + hex.EncodeToString(sum[:])
	}
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
