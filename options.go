package letterpdf

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lvillar/letterpdf/assets"
	"github.com/lvillar/letterpdf/cache"
	"github.com/lvillar/letterpdf/compose"
	"github.com/lvillar/letterpdf/layout"
	"github.com/lvillar/letterpdf/qr"
	"github.com/lvillar/letterpdf/raster"
	"github.com/lvillar/letterpdf/store"
)

// Defaults applied when Options leave a field zero.
const (
	DefaultScale   = 3.0
	DefaultQuality = 0.95
	DefaultTimeout = 30 * time.Second
)

// Hooks are called around one export. OnStart runs once the export has
// been accepted; exactly one of OnComplete and OnError follows.
type Hooks struct {
	OnStart    func()
	OnComplete func(*Result)
	OnError    func(*ExportError)
}

// Indicator is a busy indicator shown for the duration of an export.
type Indicator interface {
	Show()
	Hide()
}

// Options tunes one export.
type Options struct {
	// Filename overrides the download name.
	Filename string
	// Scale is the raster density in pixels per point. Zero means
	// DefaultScale.
	Scale float64
	// Quality is the JPEG quality in (0, 1]. Zero means DefaultQuality.
	Quality float64
	// NoTemplate drops the template background. Element positions still
	// come from the letter's template.
	NoTemplate bool
	// Progress receives monotonically increasing values in [0, 1].
	Progress  func(float64)
	Hooks     Hooks
	Indicator Indicator
}

func (o Options) withDefaults(e *Exporter) Options {
	if o.Scale <= 0 {
		o.Scale = e.scale
	}
	if o.Quality <= 0 {
		o.Quality = e.quality
	}
	return o
}

func (o Options) progress(v float64) {
	if o.Progress != nil {
		o.Progress(v)
	}
}

// Prober checks that the service origin is reachable before an export
// starts fetching assets.
type Prober interface {
	Probe(ctx context.Context) error
}

// Archiver stores finished PDFs. storage.Client implements it.
type Archiver interface {
	Archive(ctx context.Context, name string, pdf []byte) (string, error)
}

// ComposeFunc builds the page for a letter.
type ComposeFunc func(compose.Input) (*layout.Page, error)

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger. Failures are logged once per export.
func WithLogger(log *zap.Logger) Option {
	return func(e *Exporter) {
		e.log = log
	}
}

// WithRasterizer sets the rasterizer and the name recorded in cache keys.
func WithRasterizer(r raster.Rasterizer, name string) Option {
	return func(e *Exporter) {
		e.raster = r
		e.rasterName = name
	}
}

// WithLetters sets the store used by the ByID methods.
func WithLetters(s store.Letters) Option {
	return func(e *Exporter) {
		e.letters = s
	}
}

// WithSignatures sets the signature store.
func WithSignatures(s store.Signatures) Option {
	return func(e *Exporter) {
		e.signatures = s
	}
}

// WithPreloader shares an image cache between exporters.
func WithPreloader(p *assets.Preloader) Option {
	return func(e *Exporter) {
		e.preloader = p
	}
}

// WithFonts sets the font registry.
func WithFonts(f *assets.Fonts) Option {
	return func(e *Exporter) {
		e.fonts = f
	}
}

// WithQR sets the QR image source. The default generates PNGs locally.
func WithQR(src qr.Source) Option {
	return func(e *Exporter) {
		e.qr = src
	}
}

// WithOrigin sets the origin that verification links point to.
func WithOrigin(origin string) Option {
	return func(e *Exporter) {
		e.origin = origin
	}
}

// WithProber enables the connectivity check.
func WithProber(p Prober) Option {
	return func(e *Exporter) {
		e.prober = p
	}
}

// WithCache enables the PDF cache.
func WithCache(c *cache.PDFCache) Option {
	return func(e *Exporter) {
		e.cache = c
	}
}

// WithArchiver enables Archive.
func WithArchiver(a Archiver) Option {
	return func(e *Exporter) {
		e.archiver = a
	}
}

// WithComposer replaces compose.Compose.
func WithComposer(fn ComposeFunc) Option {
	return func(e *Exporter) {
		e.compose = fn
	}
}

// WithTimeout bounds each export.
func WithTimeout(d time.Duration) Option {
	return func(e *Exporter) {
		e.timeout = d
	}
}

// WithScratchDir sets where per-export scratch directories are created.
func WithScratchDir(dir string) Option {
	return func(e *Exporter) {
		e.scratchRoot = dir
	}
}

// WithDefaults sets the scale and quality used when Options leave them zero.
func WithDefaults(scale, quality float64) Option {
	return func(e *Exporter) {
		if scale > 0 {
			e.scale = scale
		}
		if quality > 0 {
			e.quality = quality
		}
	}
}

// WithSystemAuthor sets the PDF author used for letters without a creator.
func WithSystemAuthor(name string) Option {
	return func(e *Exporter) {
		e.systemAuthor = name
	}
}
