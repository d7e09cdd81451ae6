package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// waitForAssets resolves once fonts are ready and every image is decoded.
const waitForAssets = `Promise.all([
  document.fonts.ready,
  ...Array.from(document.images).map(function (img) { return img.decode().catch(function () {}); })
]).then(function () { return document.fonts.status === "loaded"; })`

// ChromeOptions configures the headless browser.
type ChromeOptions struct {
	ExecPath  string
	NoSandbox bool
	// Settle is slept after fonts report ready; browsers tend to report
	// ready before glyph metrics stabilize.
	Settle time.Duration
	Logger *zap.Logger
}

// Chrome rasterizes snapshot HTML in a long-lived headless browser. Each
// request gets its own tab.
type Chrome struct {
	opts          ChromeOptions
	log           *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewChrome starts the browser. It fails when no Chrome binary can be
// launched, so callers can fall back to Draw.
func NewChrome(ctx context.Context, opts ChromeOptions) (*Chrome, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("font-render-hinting", "none"),
		chromedp.Flag("allow-file-access-from-files", true),
	)
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.Flag("no-sandbox", true))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			log.Debug(fmt.Sprintf("chromedp: "+format, args...))
		}),
	)
	// An empty Run launches the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("raster: starting chrome: %w", err)
	}

	return &Chrome{
		opts:          opts,
		log:           log,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close shuts the browser down.
func (c *Chrome) Close() error {
	c.browserCancel()
	c.allocCancel()
	return nil
}

// Rasterize implements Rasterizer.
func (c *Chrome) Rasterize(ctx context.Context, req Request) (image.Image, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if len(req.HTML) == 0 {
		return nil, errors.New("raster: chrome needs snapshot HTML")
	}

	dir := req.Dir
	if dir == "" {
		d, err := os.MkdirTemp("", "letterpdf-raster-")
		if err != nil {
			return nil, fmt.Errorf("raster: scratch dir: %w", err)
		}
		defer os.RemoveAll(d)
		dir = d
	}
	path := filepath.Join(dir, "page.html")
	if err := os.WriteFile(path, req.HTML, 0o600); err != nil {
		return nil, fmt.Errorf("raster: writing snapshot: %w", err)
	}

	// The tab lives under the browser context; tie it to the caller's
	// context so a timeout closes it.
	tabCtx, cancel := chromedp.NewContext(c.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	w, h := Size(req.Page, 1)
	var ready bool
	var shot []byte
	start := time.Now()
	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(w), int64(h), chromedp.EmulateScale(req.Scale)),
		chromedp.Navigate("file://"+filepath.ToSlash(path)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(waitForAssets, &ready, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
		chromedp.Sleep(c.opts.Settle),
		chromedp.CaptureScreenshot(&shot),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("raster: chrome: %w", ctxErr)
		}
		return nil, fmt.Errorf("raster: chrome: %w", err)
	}
	if !ready {
		c.log.Warn("fonts not fully loaded at capture time")
	}

	img, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("raster: decoding screenshot: %w", err)
	}
	c.log.Debug("page captured",
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
		zap.Duration("duration", time.Since(start)),
	)
	return img, nil
}
