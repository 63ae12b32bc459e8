// Package embedcache memoizes query embeddings in process and, optionally, in Redis.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"writing-comparator/internal/domain"
)

const keyPrefix = "writing:embed:"

// Encoder wraps a VectorEncoder with a two-tier cache keyed by model and text.
type Encoder struct {
	next   domain.VectorEncoder
	model  string
	local  *expirable.LRU[string, []float32]
	remote *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New builds a cache in front of next. remote may be nil.
func New(next domain.VectorEncoder, model string, size int, ttl time.Duration, remote *redis.Client, logger *slog.Logger) *Encoder {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{
		next:   next,
		model:  model,
		local:  expirable.NewLRU[string, []float32](size, nil, ttl),
		remote: remote,
		ttl:    ttl,
		logger: logger,
	}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (e *Encoder) key(text string) string {
	sum := sha256.Sum256([]byte(e.model + "\x00" + text))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func (e *Encoder) lookup(ctx context.Context, key string) ([]float32, bool) {
	if v, ok := e.local.Get(key); ok {
		return v, true
	}
	if e.remote == nil {
		return nil, false
	}

	raw, err := e.remote.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			e.logger.WarnContext(ctx, "embed_cache_remote_get_failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	v := domain.Coerce(raw)
	if len(v) == 0 {
		return nil, false
	}
	e.local.Add(key, v)
	return v, true
}

func (e *Encoder) store(ctx context.Context, key string, v []float32) {
	if len(v) == 0 {
		return
	}
	e.local.Add(key, v)
	if e.remote == nil {
		return
	}
	if err := e.remote.Set(ctx, key, domain.FormatVector(v), e.ttl).Err(); err != nil {
		e.logger.WarnContext(ctx, "embed_cache_remote_set_failed", slog.String("error", err.Error()))
	}
}

// Embed returns a cached vector or delegates and caches the result.
func (e *Encoder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if v, ok := e.lookup(ctx, key); ok {
		return v, nil
	}
	v, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.store(ctx, key, v)
	return v, nil
}

// EmbedBatch serves hits from the cache and sends only misses to the wrapped encoder.
func (e *Encoder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		keys[i] = e.key(t)
		if v, ok := e.lookup(ctx, keys[i]); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := e.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embed batch returned %d vectors for %d texts", len(vectors), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = vectors[j]
		e.store(ctx, keys[i], vectors[j])
	}
	return out, nil
}

// Len reports the number of in-process entries.
func (e *Encoder) Len() int {
	return e.local.Len()
}

var _ domain.VectorEncoder = (*Encoder)(nil)
