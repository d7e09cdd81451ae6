// Package layout describes a composed letter page as a flat list of
// absolutely positioned elements.
//
// A Page is the single description consumed by every renderer: the snapshot
// HTML that gets rasterized for export, the print HTML, and the pure-Go
// fallback rasterizer. Keeping coordinates here stops the print and export
// paths from drifting apart.
//
// Example JSON:
//
//	{
//	  "width": 595, "height": 842, "direction": "rtl",
//	  "elements": [
//	    {"kind": "background", "box": {"x": 0, "y": 0, "w": 595, "h": 842}, "src": "https://..."},
//	    {"kind": "number", "box": {"x": 60, "y": 120, "w": 160}, "text": "RYD-12/2024", "align": "right"}
//	  ]
//	}
package layout

// A4 page size in PDF points.
const (
	PageWidth  = 595.0
	PageHeight = 842.0
)

// Kind identifies what an element represents on the letter.
type Kind string

const (
	KindBackground Kind = "background"
	KindNumber     Kind = "number"
	KindDate       Kind = "date"
	KindBody       Kind = "body"
	KindQR         Kind = "qr"
	KindSignature  Kind = "signature"
)

// IsImage reports whether elements of this kind carry an image source.
func (k Kind) IsImage() bool {
	return k == KindBackground || k == KindQR || k == KindSignature
}

// Box is a rectangle in page points, origin at the top-left corner.
// A zero H means the height follows the content.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h,omitempty"`
}

// Page is a composed letter page.
type Page struct {
	Width     float64   `json:"width"`
	Height    float64   `json:"height"`
	Direction string    `json:"direction"` // rtl
	Title     string    `json:"title,omitempty"`
	Elements  []Element `json:"elements"`
}

// Element is a single positioned item on the page.
// The Kind field determines which other fields are relevant.
type Element struct {
	Kind Kind `json:"kind"`
	Box  Box  `json:"box"`

	// Text content (number, date)
	Text     string  `json:"text,omitempty"`
	Align    string  `json:"align,omitempty"` // right, left, center
	FontSize float64 `json:"fontSize,omitempty"`
	Bold     bool    `json:"bold,omitempty"`

	// Rich content (body)
	HTML       string  `json:"html,omitempty"`
	LineHeight float64 `json:"lineHeight,omitempty"`

	// Image (background, qr, signature)
	Src string `json:"src,omitempty"`
	Fit string `json:"fit,omitempty"` // fill, contain
}

// Find returns the first element of the given kind.
func (p *Page) Find(kind Kind) (Element, bool) {
	for _, e := range p.Elements {
		if e.Kind == kind {
			return e, true
		}
	}
	return Element{}, false
}

// Has reports whether the page contains an element of the given kind.
func (p *Page) Has(kind Kind) bool {
	_, ok := p.Find(kind)
	return ok
}

// ImageSources returns the distinct image sources referenced by the page,
// in element order.
func (p *Page) ImageSources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range p.Elements {
		if !e.Kind.IsImage() || e.Src == "" || seen[e.Src] {
			continue
		}
		seen[e.Src] = true
		out = append(out, e.Src)
	}
	return out
}
