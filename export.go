// Package letterpdf exports official Arabic letters as single-page A4 PDFs.
//
// An Exporter composes the letter page from its template, preloads every
// image it needs, rasterizes the page at high density and wraps the bitmap
// in a PDF. The same composed page also renders as print HTML and as
// preview bitmaps.
package letterpdf

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lvillar/letterpdf/assets"
	"github.com/lvillar/letterpdf/cache"
	"github.com/lvillar/letterpdf/compose"
	"github.com/lvillar/letterpdf/encode"
	"github.com/lvillar/letterpdf/htmlrender"
	"github.com/lvillar/letterpdf/layout"
	"github.com/lvillar/letterpdf/model"
	"github.com/lvillar/letterpdf/pageops"
	"github.com/lvillar/letterpdf/preview"
	"github.com/lvillar/letterpdf/qr"
	"github.com/lvillar/letterpdf/raster"
	"github.com/lvillar/letterpdf/store"
)

// Result is a finished export.
type Result struct {
	JobID    string
	PDF      []byte
	Filename string
	Cached   bool
}

// Exporter runs letter exports. It is safe for concurrent use; at most one
// export per letter runs at a time.
type Exporter struct {
	log          *zap.Logger
	raster       raster.Rasterizer
	rasterName   string
	letters      store.Letters
	signatures   store.Signatures
	preloader    *assets.Preloader
	fonts        *assets.Fonts
	qr           qr.Source
	origin       string
	prober       Prober
	cache        *cache.PDFCache
	archiver     Archiver
	compose      ComposeFunc
	timeout      time.Duration
	scratchRoot  string
	scale        float64
	quality      float64
	systemAuthor string

	mu      sync.Mutex
	pending map[string]struct{}
	active  map[string]struct{} // scratch dirs in use
}

// New creates an Exporter. Without options it rasterizes with raster.Draw,
// generates QR codes locally and skips the connectivity probe.
func New(opts ...Option) *Exporter {
	e := &Exporter{
		rasterName: "draw",
		qr:         qr.Local{},
		compose:    compose.Compose,
		timeout:    DefaultTimeout,
		scale:      DefaultScale,
		quality:    DefaultQuality,
		pending:    make(map[string]struct{}),
		active:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.raster == nil {
		e.raster = raster.Draw{}
	}
	if e.preloader == nil {
		e.preloader = assets.NewPreloader()
	}
	if e.fonts == nil {
		e.fonts = assets.NewFonts("", nil, e.log)
	}
	return e
}

// Pending reports whether an export of letterID is running.
func (e *Exporter) Pending(letterID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.pending[letterID]
	return ok
}

// acquire marks letterID as exporting. The check and the insert happen
// under one lock so two callers can never both pass.
func (e *Exporter) acquire(letterID string) (release func(), ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.pending[letterID]; busy {
		return nil, false
	}
	e.pending[letterID] = struct{}{}
	return func() {
		e.mu.Lock()
		delete(e.pending, letterID)
		e.mu.Unlock()
	}, true
}

// Export produces the PDF and its download filename.
func (e *Exporter) Export(ctx context.Context, l *model.Letter, opts Options) (*Result, error) {
	if l == nil {
		return nil, e.fail("", "", "load", opts, newExportError("", "load", KindNotFound, ErrNotFound))
	}
	return e.guarded(ctx, l.ID, opts, func(ctx context.Context, jobID string) (*model.Letter, error) {
		return l, nil
	})
}

// Preview produces the PDF bytes for inline display.
func (e *Exporter) Preview(ctx context.Context, l *model.Letter, opts Options) ([]byte, error) {
	res, err := e.Export(ctx, l, opts)
	if err != nil {
		return nil, err
	}
	return res.PDF, nil
}

// ExportByID loads the letter from the store and exports it.
func (e *Exporter) ExportByID(ctx context.Context, id string, opts Options) (*Result, error) {
	return e.guarded(ctx, id, opts, func(ctx context.Context, jobID string) (*model.Letter, error) {
		return e.load(ctx, id)
	})
}

// PreviewByID is ExportByID returning only the bytes.
func (e *Exporter) PreviewByID(ctx context.Context, id string, opts Options) ([]byte, error) {
	res, err := e.ExportByID(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	return res.PDF, nil
}

// PreviewPNG exports the letter and renders page at zoom.
func (e *Exporter) PreviewPNG(ctx context.Context, id string, page int, zoom float64, opts Options) ([]byte, error) {
	pdf, err := e.PreviewByID(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	v, err := preview.Open(pdf)
	if err != nil {
		return nil, newExportError(id, "preview", KindRender, err)
	}
	defer v.Close()
	if err := v.GoTo(page); err != nil {
		return nil, newExportError(id, "preview", KindNotFound, err)
	}
	v.SetZoom(zoom)
	png, err := v.RenderPNG()
	if err != nil {
		return nil, newExportError(id, "preview", KindRender, err)
	}
	return png, nil
}

func (e *Exporter) load(ctx context.Context, id string) (*model.Letter, error) {
	if e.letters == nil {
		return nil, fmt.Errorf("%w: no letter store configured", ErrNotFound)
	}
	l, err := e.letters.GetLetter(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if l == nil {
		return nil, ErrNotFound
	}
	return l, nil
}

type loadFunc func(ctx context.Context, jobID string) (*model.Letter, error)

// guarded runs one export under the per-letter guard and owns every
// side effect that must be undone: indicator, timeout, pending id and
// scratch directory.
func (e *Exporter) guarded(ctx context.Context, letterID string, opts Options, load loadFunc) (res *Result, err error) {
	release, ok := e.acquire(letterID)
	if !ok {
		return nil, e.fail("", letterID, "guard", opts, newExportError(letterID, "guard", KindConcurrency, ErrExportInProgress))
	}
	defer release()

	jobID := uuid.NewString()
	if opts.Indicator != nil {
		opts.Indicator.Show()
		defer opts.Indicator.Hide()
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if opts.Hooks.OnStart != nil {
		opts.Hooks.OnStart()
	}

	dir, err := e.scratchDir(jobID)
	if err != nil {
		return nil, e.fail(jobID, letterID, "scratch", opts, newExportError(letterID, "scratch", KindRender, err))
	}
	defer e.cleanup(dir)

	start := time.Now()
	op := "load"
	l, err := load(ctx, jobID)
	if err == nil {
		opts = opts.withDefaults(e)
		res, op, err = e.run(ctx, l, opts, dir)
	}
	if err != nil {
		return nil, e.fail(jobID, letterID, op, opts, newExportError(letterID, op, KindRender, err))
	}

	res.JobID = jobID
	if res.Filename == "" {
		res.Filename = Filename(l)
	}
	e.log.Info("letter exported",
		zap.String("job_id", jobID),
		zap.String("letter_id", letterID),
		zap.Int("bytes", len(res.PDF)),
		zap.Bool("cached", res.Cached),
		zap.Duration("duration", time.Since(start)),
	)
	if opts.Hooks.OnComplete != nil {
		opts.Hooks.OnComplete(res)
	}
	return res, nil
}

// fail logs err once and reports it to the hooks.
func (e *Exporter) fail(jobID, letterID, op string, opts Options, err *ExportError) *ExportError {
	log := e.log.Error
	if err.Kind == KindConcurrency || err.Kind == KindNotFound || err.Kind == KindCanceled {
		log = e.log.Info
	}
	log("letter export failed",
		zap.String("job_id", jobID),
		zap.String("letter_id", letterID),
		zap.String("op", op),
		zap.String("kind", string(err.Kind)),
		zap.Error(err.Err),
	)
	if opts.Hooks.OnError != nil {
		opts.Hooks.OnError(err)
	}
	return err
}

// prepared is a composed page with every image it references loaded.
type prepared struct {
	page   *layout.Page
	assets map[string]*assets.Asset
	fonts  *assets.FontSet
}

// run is the pipeline proper. It returns the step that failed.
func (e *Exporter) run(ctx context.Context, l *model.Letter, opts Options, dir string) (*Result, string, error) {
	if e.prober != nil {
		if err := e.prober.Probe(ctx); err != nil {
			return nil, "probe", err
		}
	}
	opts.progress(0.1)

	p, op, err := e.prepare(ctx, l, opts, true, opts.progress)
	if err != nil {
		return nil, op, err
	}

	meta := encode.MetadataFor(l, e.systemAuthor)
	key := e.cacheKey(p, meta, opts)
	if key != "" {
		if pdf, ok := e.cache.Get(ctx, key); ok {
			opts.progress(1)
			return &Result{PDF: pdf, Filename: opts.Filename, Cached: true}, "", nil
		}
	}

	html, err := htmlrender.Render(p.page, htmlrender.Options{
		Mode:       htmlrender.Snapshot,
		Assets:     p.assets,
		Fonts:      p.fonts,
		FontFamily: p.fonts.Family,
	})
	if err != nil {
		return nil, "html", err
	}
	img, err := e.raster.Rasterize(ctx, raster.Request{
		Page:   p.page,
		HTML:   html,
		Assets: p.assets,
		Fonts:  p.fonts,
		Scale:  opts.Scale,
		Dir:    dir,
	})
	if err != nil {
		return nil, "rasterize", err
	}
	opts.progress(0.7)

	if err := ctx.Err(); err != nil {
		return nil, "encode", err
	}
	var buf bytes.Buffer
	if err := encode.Encode(&buf, img, meta, opts.Quality); err != nil {
		return nil, "encode", err
	}
	opts.progress(0.9)

	if key != "" {
		e.cache.Set(ctx, key, buf.Bytes())
	}
	opts.progress(1)
	return &Result{PDF: buf.Bytes(), Filename: opts.Filename}, "", nil
}

// prepare loads fonts, resolves the signature and QR images, preloads the
// images and composes the page. With snapshot false only sources that a
// browser cannot fetch on its own are loaded.
func (e *Exporter) prepare(ctx context.Context, l *model.Letter, opts Options, snapshot bool, progress func(float64)) (*prepared, string, error) {
	fonts := e.fonts.Load(ctx)
	progress(0.2)

	in := compose.Input{Letter: l, WithTemplate: !opts.NoTemplate}
	if compose.ShowsSignature(l) && e.signatures != nil {
		sig, err := e.signatures.GetSignature(ctx, l.SignatureID)
		if err != nil {
			return nil, "signature", fmt.Errorf("%w: %w", ErrStore, err)
		}
		if sig != nil {
			in.SignatureURL = sig.SignatureURL
		}
	}
	if token := l.Verification(); token != "" && e.qr != nil {
		link, err := qr.VerificationLink(e.origin, token)
		if err != nil {
			return nil, "qr", err
		}
		scale := opts.Scale
		if !snapshot {
			scale = 1
		}
		in.QRImageURL, err = e.qr.ImageURL(link, compose.QRPixels(l, scale))
		if err != nil {
			return nil, "qr", err
		}
	}

	var urls []string
	if tpl := l.EffectiveTemplate(); in.WithTemplate && tpl != nil && tpl.ImageURL != "" {
		urls = append(urls, tpl.ImageURL)
	}
	for _, u := range []string{in.SignatureURL, in.QRImageURL} {
		if u != "" {
			urls = append(urls, u)
		}
	}
	if !snapshot {
		urls = nonWeb(urls)
	}
	loaded, err := e.preloader.Images(ctx, urls)
	if err != nil {
		return nil, "preload", err
	}
	progress(0.3)

	page, err := e.compose(in)
	if err != nil {
		return nil, "compose", err
	}
	return &prepared{page: page, assets: loaded, fonts: fonts}, "", nil
}

func nonWeb(urls []string) []string {
	var out []string
	for _, u := range urls {
		if !htmlrender.IsWebURL(u) {
			out = append(out, u)
		}
	}
	return out
}

func (e *Exporter) cacheKey(p *prepared, meta encode.Metadata, opts Options) string {
	if e.cache == nil {
		return ""
	}
	digests := make(map[string]string, len(p.assets))
	for src, a := range p.assets {
		digests[src] = cache.Digest(a.Data)
	}
	fonts := p.fonts.Family
	if p.fonts.Degraded {
		fonts += ":degraded"
	}
	key, err := cache.Key(cache.Fingerprint{
		Page:     p.page,
		Scale:    opts.Scale,
		Quality:  opts.Quality,
		Renderer: e.rasterName,
		Fonts:    fonts,
		Assets:   digests,
		Metadata: meta,
	})
	if err != nil {
		e.log.Warn("pdf cache key", zap.Error(err))
		return ""
	}
	return key
}

// PrintHTML renders the print document of a letter: same composition,
// images by their original URL, and a script that opens the print dialog.
func (e *Exporter) PrintHTML(ctx context.Context, l *model.Letter, opts Options) ([]byte, error) {
	if l == nil {
		return nil, e.fail("", "", "load", opts, newExportError("", "load", KindNotFound, ErrNotFound))
	}
	opts = opts.withDefaults(e)
	p, op, err := e.prepare(ctx, l, opts, false, func(float64) {})
	if err != nil {
		return nil, e.fail("", l.ID, op, opts, newExportError(l.ID, op, KindRender, err))
	}
	html, err := htmlrender.Render(p.page, htmlrender.Options{
		Mode:       htmlrender.Print,
		Assets:     p.assets,
		Fonts:      p.fonts,
		FontFamily: p.fonts.Family,
	})
	if err != nil {
		return nil, e.fail("", l.ID, "html", opts, newExportError(l.ID, "html", KindRender, err))
	}
	return html, nil
}

// PrintHTMLByID loads the letter and renders its print document.
func (e *Exporter) PrintHTMLByID(ctx context.Context, id string, opts Options) ([]byte, error) {
	l, err := e.load(ctx, id)
	if err != nil {
		return nil, e.fail("", id, "load", opts, newExportError(id, "load", KindRender, err))
	}
	return e.PrintHTML(ctx, l, opts)
}

// Bundle exports each letter and merges them, in order, into one PDF.
func (e *Exporter) Bundle(ctx context.Context, ids []string, opts Options) ([]byte, error) {
	if len(ids) == 0 {
		return nil, &ExportError{Kind: KindRender, Op: "bundle", Err: pageops.ErrNoInput}
	}
	docs := make([][]byte, 0, len(ids))
	for _, id := range ids {
		res, err := e.ExportByID(ctx, id, opts)
		if err != nil {
			return nil, err
		}
		docs = append(docs, res.PDF)
	}
	var buf bytes.Buffer
	if err := pageops.Bundle(&buf, docs...); err != nil {
		return nil, &ExportError{Kind: KindEncoding, Op: "bundle", Err: err}
	}
	return buf.Bytes(), nil
}

// Archive exports a finalized letter and uploads it. It returns the object
// key.
func (e *Exporter) Archive(ctx context.Context, id string, opts Options) (string, error) {
	if e.archiver == nil {
		return "", ErrNoArchive
	}
	l, err := e.load(ctx, id)
	if err != nil {
		return "", newExportError(id, "load", KindRender, err)
	}
	if l.WorkflowStatus != model.StatusFinalized {
		return "", ErrNotFinalized
	}
	res, err := e.Export(ctx, l, opts)
	if err != nil {
		return "", err
	}
	key, err := e.archiver.Archive(ctx, res.Filename, res.PDF)
	if err != nil {
		return "", fmt.Errorf("letterpdf: archiving letter %s: %w", id, err)
	}
	e.log.Info("letter archived", zap.String("letter_id", id), zap.String("key", key))
	return key, nil
}
