// Package cache keeps exported PDFs in Redis, keyed by a digest of
// everything that determines their bytes.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/lvillar/letterpdf/config"
	"github.com/lvillar/letterpdf/encode"
	"github.com/lvillar/letterpdf/layout"
)

const keyPrefix = "letterpdf:pdf:"

// PDFCache is a Redis-backed byte cache. A nil *PDFCache is a valid,
// always-missing cache.
type PDFCache struct {
	rdb redis.Cmdable
	ttl time.Duration
	log *zap.Logger
}

// New connects to Redis. It returns (nil, nil) when no address is
// configured.
func New(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*PDFCache, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("cache: connecting to redis %s: %w", cfg.Addr, err)
	}
	return NewWithClient(rdb, cfg.TTL, log), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb redis.Cmdable, ttl time.Duration, log *zap.Logger) *PDFCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &PDFCache{rdb: rdb, ttl: ttl, log: log}
}

// Get returns the cached bytes for key. Misses and Redis failures both
// report false; failures are logged.
func (c *PDFCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("pdf cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

// Set stores data under key. Failures are logged and otherwise ignored.
func (c *PDFCache) Set(ctx context.Context, key string, data []byte) {
	if c == nil {
		return
	}
	if err := c.rdb.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		c.log.Warn("pdf cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Fingerprint lists the inputs of one export.
type Fingerprint struct {
	Page     *layout.Page
	Scale    float64
	Quality  float64
	Renderer string
	Fonts    string
	// Assets maps element sources to a digest of their bytes.
	Assets map[string]string
	// Metadata goes into the info dictionary and is never drawn, so the
	// page alone does not cover it.
	Metadata encode.Metadata
}

// Key digests f. Two exports share a key only if their composed page,
// options, image bytes and document metadata are identical.
func Key(f Fingerprint) (string, error) {
	h := sha256.New()
	page, err := json.Marshal(f.Page)
	if err != nil {
		return "", fmt.Errorf("cache: encoding page: %w", err)
	}
	h.Write(page)
	meta, err := json.Marshal(f.Metadata)
	if err != nil {
		return "", fmt.Errorf("cache: encoding metadata: %w", err)
	}
	h.Write([]byte{0})
	h.Write(meta)
	for _, s := range []string{
		strconv.FormatFloat(f.Scale, 'g', -1, 64),
		strconv.FormatFloat(f.Quality, 'g', -1, 64),
		f.Renderer,
		f.Fonts,
	} {
		h.Write([]byte{0})
		h.Write([]byte(s))
	}
	srcs := make([]string, 0, len(f.Assets))
	for src := range f.Assets {
		srcs = append(srcs, src)
	}
	sort.Strings(srcs)
	for _, src := range srcs {
		h.Write([]byte{0})
		h.Write([]byte(src))
		h.Write([]byte{'='})
		h.Write([]byte(f.Assets[src]))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Digest returns the hex sha256 of data, for Fingerprint.Assets.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
