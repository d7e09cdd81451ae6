package model

// Template is the visual backdrop and layout rules of a letter.
type Template struct {
	ID             string          `json:"id,omitempty"`
	Name           string          `json:"name,omitempty"`
	ImageURL       string          `json:"image_url,omitempty"`
	LetterElements *LetterElements `json:"letter_elements,omitempty"`
	QRPosition     *QRPosition     `json:"qr_position,omitempty"`
}

// LetterElements configures the positioned slots of a template.
// A nil slot falls back to the default geometry.
type LetterElements struct {
	LetterNumber *ElementConfig `json:"letterNumber,omitempty"`
	LetterDate   *ElementConfig `json:"letterDate,omitempty"`
	Signature    *ElementConfig `json:"signature,omitempty"`
	Body         *ElementConfig `json:"body,omitempty"`
}

// ElementConfig positions one slot in page points from the top-left corner.
type ElementConfig struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width,omitempty"`
	Height    float64 `json:"height,omitempty"`
	Alignment string  `json:"alignment,omitempty"`
	FontSize  float64 `json:"fontSize,omitempty"`
	// EnabledFlag is tri-state: a missing flag means enabled.
	EnabledFlag *bool `json:"enabled,omitempty"`
	// ShowWhenFinalized lets the signature slot render for finalized letters too.
	ShowWhenFinalized bool `json:"showWhenFinalized,omitempty"`
}

// Enabled reports whether the slot should be composed.
func (c *ElementConfig) Enabled() bool {
	if c == nil {
		return true
	}
	return c.EnabledFlag == nil || *c.EnabledFlag
}

// QRPosition places the verification QR code. Explicit coordinates always
// take precedence over the alignment keyword.
type QRPosition struct {
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
	Size      float64  `json:"size,omitempty"`
	Alignment string   `json:"alignment,omitempty"` // right, left, center
}

// Bool returns a pointer to b, for building element configs.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f, for building QR positions.
func Float(f float64) *float64 { return &f }
