// Package compose lays out a letter on a fixed A4 page.
//
// Compose is a pure function from a Letter and its effective template to a
// layout.Page. It never fetches anything: the signature URL and the QR image
// source are resolved by the caller and passed in, so the same page can be
// rendered for export, preview and print without drift.
package compose

import (
	"errors"
	"strings"

	"github.com/lvillar/letterpdf/layout"
	"github.com/lvillar/letterpdf/model"
)

// Defaults used when a template omits a slot or a field.
const (
	DefaultFontSize   = 14.0
	DefaultLineHeight = 1.8
	DefaultQRSize     = 100.0
	DefaultQRMargin   = 40.0
)

var (
	defaultNumber    = model.ElementConfig{X: 100, Y: 60, Width: 150}
	defaultDate      = model.ElementConfig{X: 100, Y: 85, Width: 150}
	defaultSignature = model.ElementConfig{X: 50, Y: 650, Width: 150, Height: 80}
	defaultBody      = model.ElementConfig{X: 50, Y: 200, Width: 495, Height: 520}
)

// ErrNoLetter is returned when Compose is called without a letter.
var ErrNoLetter = errors.New("compose: nil letter")

// Input is everything Compose needs for one page.
type Input struct {
	Letter       *model.Letter
	WithTemplate bool
	// SignatureURL is the resolved signature image. Empty means the store
	// returned no signature.
	SignatureURL string
	// QRImageURL encodes the verification link. Empty omits the QR block.
	QRImageURL string
}

// Compose builds the page for in. Elements are emitted back to front:
// background, number, date, body, QR, signature.
func Compose(in Input) (*layout.Page, error) {
	l := in.Letter
	if l == nil {
		return nil, ErrNoLetter
	}
	tpl := l.EffectiveTemplate()
	els := elementsOf(tpl)

	page := &layout.Page{
		Width:     layout.PageWidth,
		Height:    layout.PageHeight,
		Direction: "rtl",
		Title:     l.Reference(),
	}

	if in.WithTemplate && tpl != nil && strings.TrimSpace(tpl.ImageURL) != "" {
		page.Elements = append(page.Elements, layout.Element{
			Kind: layout.KindBackground,
			Box:  layout.Box{W: layout.PageWidth, H: layout.PageHeight},
			Src:  tpl.ImageURL,
			Fit:  "fill",
		})
	}

	if cfg := slot(els.LetterNumber, defaultNumber); cfg != nil {
		page.Elements = append(page.Elements, textElement(layout.KindNumber, cfg, l.Reference(), true))
	}

	if cfg := slot(els.LetterDate, defaultDate); cfg != nil && strings.TrimSpace(l.Content.Date) != "" {
		page.Elements = append(page.Elements, textElement(layout.KindDate, cfg, l.Content.Date, false))
	}

	if cfg := slot(els.Body, defaultBody); cfg != nil && strings.TrimSpace(l.Content.Body) != "" {
		lh := float64(l.Content.LineHeight)
		if lh <= 0 {
			lh = DefaultLineHeight
		}
		page.Elements = append(page.Elements, layout.Element{
			Kind:       layout.KindBody,
			Box:        layout.Box{X: cfg.X, Y: cfg.Y, W: cfg.Width, H: cfg.Height},
			HTML:       l.Content.Body,
			Align:      "right",
			FontSize:   fontSize(cfg),
			LineHeight: lh,
		})
	}

	if in.QRImageURL != "" && l.Verification() != "" {
		var pos *model.QRPosition
		if tpl != nil {
			pos = tpl.QRPosition
		}
		page.Elements = append(page.Elements, layout.Element{
			Kind: layout.KindQR,
			Box:  QRBox(pos),
			Src:  in.QRImageURL,
			Fit:  "contain",
		})
	}

	if in.SignatureURL != "" && ShowsSignature(l) {
		cfg := slot(els.Signature, defaultSignature)
		page.Elements = append(page.Elements, layout.Element{
			Kind: layout.KindSignature,
			Box:  layout.Box{X: cfg.X, Y: cfg.Y, W: cfg.Width, H: cfg.Height},
			Src:  in.SignatureURL,
			Fit:  "contain",
		})
	}

	return page, nil
}

// ShowsSignature reports whether the letter qualifies for a signature
// overlay before the signature itself is resolved: it has a signature id,
// it is approved (or finalized when the slot allows it), and the template
// slot is enabled. Callers use it to skip the store lookup entirely.
func ShowsSignature(l *model.Letter) bool {
	if l == nil || strings.TrimSpace(l.SignatureID) == "" {
		return false
	}
	cfg := elementsOf(l.EffectiveTemplate()).Signature
	if !cfg.Enabled() {
		return false
	}
	switch l.WorkflowStatus {
	case model.StatusApproved:
		return true
	case model.StatusFinalized:
		return cfg != nil && cfg.ShowWhenFinalized
	}
	return false
}

// QRBox resolves the QR placement. Explicit x and y always win; the
// alignment keyword only fills an axis that was left unset. Without any
// position the code sits in the bottom-left corner.
func QRBox(pos *model.QRPosition) layout.Box {
	size := DefaultQRSize
	align := "left"
	var x, y *float64
	if pos != nil {
		if pos.Size > 0 {
			size = pos.Size
		}
		if pos.Alignment != "" {
			align = strings.ToLower(pos.Alignment)
		}
		x, y = pos.X, pos.Y
	}

	b := layout.Box{W: size, H: size}
	switch {
	case x != nil:
		b.X = *x
	case align == "right":
		b.X = layout.PageWidth - DefaultQRMargin - size
	case align == "center":
		b.X = (layout.PageWidth - size) / 2
	default:
		b.X = DefaultQRMargin
	}
	if y != nil {
		b.Y = *y
	} else {
		b.Y = layout.PageHeight - DefaultQRMargin - size
	}
	return b
}

// QRPixels is the pixel size to request from a QR source so the code stays
// sharp at the given raster scale.
func QRPixels(l *model.Letter, scale float64) int {
	var pos *model.QRPosition
	if tpl := l.EffectiveTemplate(); tpl != nil {
		pos = tpl.QRPosition
	}
	if scale <= 0 {
		scale = 1
	}
	return int(QRBox(pos).W*scale + 0.5)
}

func elementsOf(tpl *model.Template) model.LetterElements {
	if tpl == nil || tpl.LetterElements == nil {
		return model.LetterElements{}
	}
	return *tpl.LetterElements
}

// slot returns the effective config for a slot, or nil when it is disabled.
// Zero width and height are filled from the default geometry.
func slot(cfg *model.ElementConfig, def model.ElementConfig) *model.ElementConfig {
	if cfg == nil {
		d := def
		return &d
	}
	if !cfg.Enabled() {
		return nil
	}
	c := *cfg
	if c.Width <= 0 {
		c.Width = def.Width
	}
	if c.Height <= 0 {
		c.Height = def.Height
	}
	return &c
}

func textElement(kind layout.Kind, cfg *model.ElementConfig, text string, bold bool) layout.Element {
	align := strings.ToLower(cfg.Alignment)
	if align == "" {
		align = "right"
	}
	return layout.Element{
		Kind:     kind,
		Box:      layout.Box{X: cfg.X, Y: cfg.Y, W: cfg.Width, H: cfg.Height},
		Text:     text,
		Align:    align,
		FontSize: fontSize(cfg),
		Bold:     bold,
	}
}

func fontSize(cfg *model.ElementConfig) float64 {
	if cfg.FontSize > 0 {
		return cfg.FontSize
	}
	return DefaultFontSize
}
