// Package app wires configuration into a ready Exporter for the commands.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lvillar/letterpdf"
	"github.com/lvillar/letterpdf/assets"
	"github.com/lvillar/letterpdf/cache"
	"github.com/lvillar/letterpdf/config"
	"github.com/lvillar/letterpdf/qr"
	"github.com/lvillar/letterpdf/raster"
	"github.com/lvillar/letterpdf/storage"
	"github.com/lvillar/letterpdf/store"
)

// App holds the exporter and the resources it owns.
type App struct {
	Exporter *letterpdf.Exporter
	Letters  store.Letters
	// Memory is set when no database is configured, so callers can seed it.
	Memory  *store.Memory
	closers []func() error
	log     *zap.Logger
}

// Build connects every configured backend. Optional backends that fail to
// come up (Chrome, Redis) are logged and replaced by their fallback;
// required ones (database, blob storage) fail the build.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{log: log}
	opts := []letterpdf.Option{
		letterpdf.WithLogger(log),
		letterpdf.WithOrigin(cfg.Export.Origin),
		letterpdf.WithTimeout(cfg.Export.Timeout),
		letterpdf.WithScratchDir(cfg.Export.ScratchDir),
		letterpdf.WithDefaults(cfg.Export.Scale, cfg.Export.Quality),
		letterpdf.WithSystemAuthor(cfg.Export.SystemAuthor),
		letterpdf.WithFonts(assets.NewFonts(cfg.Fonts.Family, cfg.Fonts.Files, log)),
	}

	if !cfg.Export.SkipProbe {
		opts = append(opts, letterpdf.WithProber(letterpdf.NewHTTPProber(cfg.Export.Origin)))
	}

	if cfg.QR.Endpoint != "" {
		opts = append(opts, letterpdf.WithQR(qr.Remote{Endpoint: cfg.QR.Endpoint}))
	} else {
		opts = append(opts, letterpdf.WithQR(qr.Local{HighRecovery: cfg.QR.HighRecovery}))
	}

	var preloadOpts []assets.Option
	if cfg.Minio.Endpoint != "" {
		blobs, err := storage.New(cfg.Minio)
		if err != nil {
			return nil, err
		}
		if err := blobs.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		preloadOpts = append(preloadOpts, assets.WithBlobs(blobs))
		opts = append(opts, letterpdf.WithArchiver(blobs))
	}
	opts = append(opts, letterpdf.WithPreloader(assets.NewPreloader(preloadOpts...)))

	if cfg.Database.DSN != "" {
		pg, err := store.OpenPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		a.Letters = pg
		opts = append(opts, letterpdf.WithLetters(pg), letterpdf.WithSignatures(pg))
	} else {
		a.Memory = store.NewMemory()
		a.Letters = a.Memory
		opts = append(opts, letterpdf.WithLetters(a.Memory), letterpdf.WithSignatures(a.Memory))
	}

	pdfCache, err := cache.New(ctx, cfg.Redis, log)
	if err != nil {
		log.Warn("pdf cache disabled", zap.Error(err))
	} else if pdfCache != nil {
		opts = append(opts, letterpdf.WithCache(pdfCache))
	}

	opts = append(opts, a.rasterizer(ctx, cfg))

	a.Exporter = letterpdf.New(opts...)
	return a, nil
}

func (a *App) rasterizer(ctx context.Context, cfg *config.Config) letterpdf.Option {
	if cfg.Export.Renderer != "chrome" {
		return letterpdf.WithRasterizer(raster.Draw{}, "draw")
	}
	c, err := raster.NewChrome(ctx, raster.ChromeOptions{
		ExecPath:  cfg.Chrome.ExecPath,
		NoSandbox: cfg.Chrome.NoSandbox,
		Settle:    cfg.Export.SettleDelay,
		Logger:    a.log,
	})
	if err != nil {
		a.log.Warn("chrome unavailable, falling back to the built-in rasterizer", zap.Error(err))
		return letterpdf.WithRasterizer(raster.Draw{}, "draw")
	}
	a.closers = append(a.closers, c.Close)
	return letterpdf.WithRasterizer(c, "chrome")
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = fmt.Errorf("app: closing: %w", err)
		}
	}
	return first
}
