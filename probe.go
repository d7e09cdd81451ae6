package letterpdf

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPProber sends a HEAD request to the service origin. Any HTTP response
// counts as online; only transport failures report ErrOffline.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

// NewHTTPProber probes origin + "/healthz".
func NewHTTPProber(origin string) *HTTPProber {
	return &HTTPProber{
		URL:    strings.TrimRight(origin, "/") + "/healthz",
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOffline, err)
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrOffline, err)
	}
	resp.Body.Close()
	return nil
}
