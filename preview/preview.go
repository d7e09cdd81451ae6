// Package preview pages through an exported letter PDF and renders its
// pages to bitmaps for display.
//
// Exported letters are image-only, so a page is rendered by painting its
// image XObjects where the content stream places them. Vector text and
// paths are not drawn.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"sync"

	"golang.org/x/image/draw"

	"github.com/lvillar/letterpdf/reader"
)

// Zoom limits.
const (
	MinZoom  = 0.5
	MaxZoom  = 3.0
	ZoomStep = 0.25
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("preview: viewer closed")
	// ErrNoPages is returned by Open for a document without pages.
	ErrNoPages = errors.New("preview: document has no pages")
)

// Viewer holds one parsed document, the current page and the zoom level.
// It is safe for concurrent use.
type Viewer struct {
	mu     sync.Mutex
	doc    *reader.Document
	page   int
	zoom   float64
	images map[imageKey]image.Image
}

type imageKey struct {
	page  int
	index int
}

// Open parses pdf and positions the viewer on page 1 at zoom 1.
func Open(pdf []byte) (*Viewer, error) {
	v := &Viewer{}
	if err := v.Load(pdf); err != nil {
		return nil, err
	}
	return v, nil
}

// Load replaces the document. The previous document is released first,
// even if the new one fails to parse.
func (v *Viewer) Load(pdf []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.release()

	doc, err := reader.Parse(pdf)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	if doc.NumPages() == 0 {
		return ErrNoPages
	}
	v.doc = doc
	v.page = 1
	v.zoom = 1
	v.images = make(map[imageKey]image.Image)
	return nil
}

// Close releases the parsed document. Calling Close twice is harmless.
func (v *Viewer) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.release()
	return nil
}

func (v *Viewer) release() {
	v.doc = nil
	v.images = nil
	v.page = 0
}

// NumPages returns the page count, or 0 when closed.
func (v *Viewer) NumPages() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.doc == nil {
		return 0
	}
	return v.doc.NumPages()
}

// Page returns the current 1-based page number.
func (v *Viewer) Page() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.page
}

// Zoom returns the current zoom factor.
func (v *Viewer) Zoom() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.zoom
}

// GoTo moves to page n.
func (v *Viewer) GoTo(n int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.doc == nil {
		return ErrClosed
	}
	if n < 1 || n > v.doc.NumPages() {
		return fmt.Errorf("preview: page %d out of range [1, %d]", n, v.doc.NumPages())
	}
	v.page = n
	return nil
}

// Next advances one page and reports whether it moved.
func (v *Viewer) Next() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.doc == nil || v.page >= v.doc.NumPages() {
		return false
	}
	v.page++
	return true
}

// Prev goes back one page and reports whether it moved.
func (v *Viewer) Prev() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.doc == nil || v.page <= 1 {
		return false
	}
	v.page--
	return true
}

// ZoomIn increases the zoom by one step and returns the new value.
func (v *Viewer) ZoomIn() float64 { return v.stepZoom(ZoomStep) }

// ZoomOut decreases the zoom by one step and returns the new value.
func (v *Viewer) ZoomOut() float64 { return v.stepZoom(-ZoomStep) }

func (v *Viewer) stepZoom(delta float64) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.zoom = ClampZoom(v.zoom + delta)
	return v.zoom
}

// SetZoom sets the zoom clamped to [MinZoom, MaxZoom] and returns it.
func (v *Viewer) SetZoom(z float64) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.zoom = ClampZoom(z)
	return v.zoom
}

// ClampZoom limits z to [MinZoom, MaxZoom]. NaN maps to 1.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return 1
	}
	return math.Min(MaxZoom, math.Max(MinZoom, z))
}

// Render paints the current page at the current zoom. One PDF point maps
// to zoom pixels.
func (v *Viewer) Render() (*image.RGBA, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.doc == nil {
		return nil, ErrClosed
	}
	page, err := v.doc.Page(v.page)
	if err != nil {
		return nil, err
	}

	mb := page.MediaBox
	w := int(math.Round(mb.Width() * v.zoom))
	h := int(math.Round(mb.Height() * v.zoom))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("preview: page %d has an empty media box", v.page)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)

	placements, err := page.Placements()
	if err != nil {
		return nil, fmt.Errorf("preview: page %d: %w", v.page, err)
	}
	for i, p := range placements {
		src, err := v.decoded(imageKey{page: v.page, index: i}, p.Image)
		if err != nil {
			return nil, fmt.Errorf("preview: page %d: %w", v.page, err)
		}
		// PDF space grows upwards from the bottom-left corner.
		b := p.Matrix.Bounds()
		r := image.Rect(
			int(math.Round((b.LLX-mb.LLX)*v.zoom)),
			int(math.Round((mb.URY-b.URY)*v.zoom)),
			int(math.Round((b.URX-mb.LLX)*v.zoom)),
			int(math.Round((mb.URY-b.LLY)*v.zoom)),
		)
		draw.ApproxBiLinear.Scale(dst, r, src, src.Bounds(), draw.Over, nil)
	}
	return dst, nil
}

// decoded returns the pixels of an image, cached per placement.
func (v *Viewer) decoded(key imageKey, x *reader.Image) (image.Image, error) {
	if img, ok := v.images[key]; ok {
		return img, nil
	}
	img, err := x.Decode()
	if err != nil {
		return nil, err
	}
	v.images[key] = img
	return img, nil
}

// RenderPNG is Render encoded as PNG.
func (v *Viewer) RenderPNG() ([]byte, error) {
	img, err := v.Render()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("preview: encoding png: %w", err)
	}
	return buf.Bytes(), nil
}
