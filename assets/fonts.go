package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// Font is one parsed font file of the letter family.
type Font struct {
	Path string
	Data []byte
	Bold bool
	Face *opentype.Font
}

// MIME returns the media type used when embedding the font as a data URL.
func (f *Font) MIME() string {
	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".otf":
		return "font/otf"
	case ".woff":
		return "font/woff"
	case ".woff2":
		return "font/woff2"
	}
	return "font/ttf"
}

// FontSet is the result of a font load.
type FontSet struct {
	Family string
	Fonts  []*Font
	// Degraded is set when the configured family could not be loaded and
	// renderers must fall back to Fallback.
	Degraded bool
	Fallback *opentype.Font
}

// Regular returns the first non-bold face, else the first face, else the
// fallback.
func (s *FontSet) Regular() *opentype.Font {
	return s.pick(false)
}

// BoldFace returns the first bold face, else Regular.
func (s *FontSet) BoldFace() *opentype.Font {
	return s.pick(true)
}

func (s *FontSet) pick(bold bool) *opentype.Font {
	for _, f := range s.Fonts {
		if f.Bold == bold {
			return f.Face
		}
	}
	if len(s.Fonts) > 0 {
		return s.Fonts[0].Face
	}
	return s.Fallback
}

var (
	fallbackOnce sync.Once
	fallbackFont *opentype.Font
	fallbackErr  error
)

// FallbackFont returns the bundled Go Regular face.
func FallbackFont() (*opentype.Font, error) {
	fallbackOnce.Do(func() {
		fallbackFont, fallbackErr = opentype.Parse(goregular.TTF)
	})
	return fallbackFont, fallbackErr
}

// Fonts loads the configured font family once and hands out the same set
// afterwards. A degraded load is retried on the next call.
type Fonts struct {
	family string
	files  []string
	log    *zap.Logger

	mu     sync.Mutex
	loaded *FontSet
}

// NewFonts creates a font registry for family backed by files.
func NewFonts(family string, files []string, log *zap.Logger) *Fonts {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fonts{family: family, files: files, log: log}
}

// Load returns the registered family, loading it if needed. It never
// fails: problems are logged and reported through FontSet.Degraded.
func (f *Fonts) Load(ctx context.Context) *FontSet {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.loaded != nil && !f.loaded.Degraded {
		return f.loaded
	}

	set := &FontSet{Family: f.family}
	fb, err := FallbackFont()
	if err != nil {
		f.log.Error("parsing fallback font", zap.Error(err))
	}
	set.Fallback = fb

	var errs []error
	for _, path := range f.files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		font, err := loadFont(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		set.Fonts = append(set.Fonts, font)
	}
	if len(f.files) == 0 {
		errs = append(errs, errors.New("no font files configured"))
	}

	if len(errs) > 0 || len(set.Fonts) == 0 {
		set.Degraded = true
		f.log.Warn("font family degraded, using fallback face",
			zap.String("family", f.family),
			zap.Int("loaded", len(set.Fonts)),
			zap.Error(errors.Join(errs...)),
		)
	}
	f.loaded = set
	return set
}

func loadFont(path string) (*Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("assets: reading font: %w", err)
	}
	face, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("assets: parsing font %s: %w", path, err)
	}
	base := strings.ToLower(filepath.Base(path))
	return &Font{
		Path: path,
		Data: data,
		Bold: strings.Contains(base, "bold"),
		Face: face,
	}, nil
}
