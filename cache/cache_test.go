package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvillar/letterpdf/config"
	"github.com/lvillar/letterpdf/encode"
	"github.com/lvillar/letterpdf/layout"
)

// fakeRedis implements the two commands the cache uses.
type fakeRedis struct {
	redis.Cmdable
	data    map[string][]byte
	ttls    map[string]time.Duration
	failing bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.failing {
		return redis.NewStringResult("", errors.New("connection refused"))
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	if f.failing {
		return redis.NewStatusResult("", errors.New("connection refused"))
	}
	f.data[key] = value.([]byte)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func TestPDFCache_GetSet(t *testing.T) {
	rdb := newFakeRedis()
	c := NewWithClient(rdb, time.Hour, nil)
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", []byte("%PDF-1.3"))
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("%PDF-1.3"), got)
	assert.Equal(t, time.Hour, rdb.ttls[keyPrefix+"k"])
}

func TestPDFCache_FailuresAreMisses(t *testing.T) {
	rdb := newFakeRedis()
	rdb.failing = true
	c := NewWithClient(rdb, time.Hour, nil)

	c.Set(context.Background(), "k", []byte("x"))
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestPDFCache_Nil(t *testing.T) {
	var c *PDFCache
	c.Set(context.Background(), "k", []byte("x"))
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestNew_Disabled(t *testing.T) {
	c, err := New(context.Background(), config.RedisConfig{}, nil)
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestKey(t *testing.T) {
	page := &layout.Page{Width: 595, Height: 842, Elements: []layout.Element{
		{Kind: layout.KindNumber, Text: "RYD-1/2024"},
	}}
	base := Fingerprint{
		Page: page, Scale: 3, Quality: 0.95, Renderer: "chrome",
		Metadata: encode.Metadata{Title: "RYD-1/2024", Subject: "تعميم"},
		Assets:   map[string]string{"a": Digest([]byte("a")), "b": Digest([]byte("b"))},
	}
	k1, err := Key(base)
	require.NoError(t, err)
	assert.Len(t, k1, 64)

	same := base
	same.Assets = map[string]string{"b": Digest([]byte("b")), "a": Digest([]byte("a"))}
	k2, _ := Key(same)
	assert.Equal(t, k1, k2, "asset order must not matter")

	variants := []func(f *Fingerprint){
		func(f *Fingerprint) { f.Scale = 2 },
		func(f *Fingerprint) { f.Quality = 0.9 },
		func(f *Fingerprint) { f.Renderer = "draw" },
		func(f *Fingerprint) {
			f.Assets = map[string]string{"a": Digest([]byte("changed")), "b": Digest([]byte("b"))}
		},
		func(f *Fingerprint) { f.Metadata.Subject = "موضوع جديد" },
		func(f *Fingerprint) { f.Metadata.Author = "New Author" },
		func(f *Fingerprint) { f.Metadata.CreatedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) },
		func(f *Fingerprint) {
			f.Page = &layout.Page{Width: 595, Height: 842, Elements: []layout.Element{{Kind: layout.KindNumber, Text: "RYD-2/2024"}}}
		},
	}
	for i, mutate := range variants {
		f := base
		mutate(&f)
		k, err := Key(f)
		require.NoError(t, err)
		assert.NotEqual(t, k1, k, "variant %d should change the key", i)
	}
}
