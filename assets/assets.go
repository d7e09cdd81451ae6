// Package assets loads and caches everything a letter needs before it is
// rendered: the template background, the QR code, the signature image and
// the Arabic font family.
//
// Images are fetched once per URL for the lifetime of a Preloader and shared
// by every export that references them. Concurrent requests for the same URL
// wait on a single fetch.
package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/lvillar/letterpdf/storage"
)

// MaxImageSize caps the encoded size of a single image.
const MaxImageSize = 32 << 20

// ErrUnsupportedScheme is returned for URLs the preloader cannot fetch.
var ErrUnsupportedScheme = errors.New("assets: unsupported URL scheme")

// LoadError reports which image failed to load.
type LoadError struct {
	URL string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("assets: loading %s: %v", shortURL(e.URL), e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Asset is a fetched and decoded image.
type Asset struct {
	URL    string
	Data   []byte // encoded bytes as fetched
	MIME   string
	Format string // decoder name: png, jpeg, gif, webp, bmp
	Image  image.Image
}

// DataURL returns the asset inlined as a base64 data URL.
func (a *Asset) DataURL() string {
	return "data:" + a.MIME + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// BlobFetcher reads objects from blob storage for s3:// URLs.
type BlobFetcher interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// Preloader fetches and decodes images, caching them by URL.
// It is safe for concurrent use.
type Preloader struct {
	client *http.Client
	blobs  BlobFetcher
	group  singleflight.Group

	mu    sync.RWMutex
	cache map[string]*Asset
}

// Option configures a Preloader.
type Option func(*Preloader)

// WithHTTPClient sets the client used for http(s) URLs.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Preloader) { p.client = c }
}

// WithBlobs enables s3://bucket/key URLs.
func WithBlobs(b BlobFetcher) Option {
	return func(p *Preloader) { p.blobs = b }
}

// NewPreloader creates a Preloader with an empty cache.
func NewPreloader(opts ...Option) *Preloader {
	p := &Preloader{
		client: &http.Client{Timeout: 20 * time.Second},
		cache:  make(map[string]*Asset),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Image returns the decoded image at rawURL, fetching it on first use.
func (p *Preloader) Image(ctx context.Context, rawURL string) (*Asset, error) {
	p.mu.RLock()
	a, ok := p.cache[rawURL]
	p.mu.RUnlock()
	if ok {
		return a, nil
	}

	v, err, _ := p.group.Do(rawURL, func() (any, error) {
		a, err := p.load(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.cache[rawURL] = a
		p.mu.Unlock()
		return a, nil
	})
	if err != nil {
		return nil, &LoadError{URL: rawURL, Err: err}
	}
	return v.(*Asset), nil
}

// Images loads every URL concurrently. The first failure cancels the rest
// and is returned.
func (p *Preloader) Images(ctx context.Context, urls []string) (map[string]*Asset, error) {
	out := make(map[string]*Asset, len(urls))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, u := range urls {
		g.Go(func() error {
			a, err := p.Image(ctx, u)
			if err != nil {
				return err
			}
			mu.Lock()
			out[u] = a
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Cached reports whether rawURL is already in the cache.
func (p *Preloader) Cached(rawURL string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.cache[rawURL]
	return ok
}

// Forget drops rawURL from the cache.
func (p *Preloader) Forget(rawURL string) {
	p.mu.Lock()
	delete(p.cache, rawURL)
	p.mu.Unlock()
}

func (p *Preloader) load(ctx context.Context, rawURL string) (*Asset, error) {
	data, err := p.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}
	return &Asset{
		URL:    rawURL,
		Data:   data,
		MIME:   "image/" + format,
		Format: format,
		Image:  img,
	}, nil
}

func (p *Preloader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	switch {
	case strings.HasPrefix(rawURL, "data:"):
		_, data, err := ParseDataURL(rawURL)
		return data, err
	case strings.HasPrefix(rawURL, "s3://"):
		if p.blobs == nil {
			return nil, fmt.Errorf("%w: s3 (blob storage not configured)", ErrUnsupportedScheme)
		}
		bucket, key, err := storage.ParseS3URL(rawURL)
		if err != nil {
			return nil, err
		}
		return p.blobs.Fetch(ctx, bucket, key)
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		return p.fetchHTTP(ctx, rawURL)
	}
	return nil, ErrUnsupportedScheme
}

func (p *Preloader) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "image/*")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxImageSize {
		return nil, fmt.Errorf("image exceeds %d bytes", MaxImageSize)
	}
	return data, nil
}

// ParseDataURL decodes an RFC 2397 data URL.
func ParseDataURL(raw string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return "", nil, errors.New("assets: not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("assets: malformed data URL")
	}
	isBase64 := strings.HasSuffix(meta, ";base64")
	mime = strings.TrimSuffix(meta, ";base64")
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if mime == "" {
		mime = "text/plain"
	}

	if isBase64 {
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", nil, fmt.Errorf("assets: data URL: %w", err)
		}
		return mime, data, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("assets: data URL: %w", err)
	}
	return mime, []byte(s), nil
}

func shortURL(u string) string {
	if strings.HasPrefix(u, "data:") && len(u) > 40 {
		return u[:40] + "..."
	}
	return u
}
