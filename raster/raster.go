// Package raster turns a composed letter page into a bitmap.
//
// Two implementations exist. Chrome loads the snapshot HTML into a headless
// browser tab and captures it, which gives full Arabic shaping and exact
// parity with the print path. Draw paints the layout directly with
// golang.org/x/image and needs no browser; it reorders right-to-left runs
// but does not apply Arabic contextual shaping.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/lvillar/letterpdf/assets"
	"github.com/lvillar/letterpdf/layout"
)

// MaxScale bounds the device scale factor. A4 at 8x is already ~32 MP.
const MaxScale = 8.0

// ErrInvalidScale is returned for a scale outside (0, MaxScale].
var ErrInvalidScale = errors.New("raster: scale must be in (0, 8]")

// Request is one page to rasterize.
type Request struct {
	// Page is the composed layout. Draw paints it directly.
	Page *layout.Page
	// HTML is the self-contained snapshot document. Chrome loads it.
	HTML []byte
	// Assets are the preloaded images, keyed by element source.
	Assets map[string]*assets.Asset
	Fonts  *assets.FontSet
	// Scale is the output pixel density relative to page points.
	Scale float64
	// Dir is the job's scratch directory. Rasterizers may write into it and
	// the caller removes it.
	Dir string
}

// Rasterizer produces a bitmap of exactly Page.Width*Scale by
// Page.Height*Scale pixels (rounded).
type Rasterizer interface {
	Rasterize(ctx context.Context, req Request) (image.Image, error)
}

// Func adapts a function to the Rasterizer interface.
type Func func(ctx context.Context, req Request) (image.Image, error)

// Rasterize implements Rasterizer.
func (f Func) Rasterize(ctx context.Context, req Request) (image.Image, error) {
	return f(ctx, req)
}

// Size returns the pixel dimensions for a page at scale.
func Size(page *layout.Page, scale float64) (int, int) {
	w, h := layout.PageWidth, layout.PageHeight
	if page != nil && page.Width > 0 && page.Height > 0 {
		w, h = page.Width, page.Height
	}
	return int(w*scale + 0.5), int(h*scale + 0.5)
}

func validate(req Request) error {
	if req.Scale <= 0 || req.Scale > MaxScale {
		return fmt.Errorf("%w: got %v", ErrInvalidScale, req.Scale)
	}
	return nil
}
