// Package encode wraps a rasterized letter page into a single-page A4 PDF.
//
// The bitmap is embedded as a JPEG drawn edge to edge: the raster already
// contains the template margins, so the page itself has none.
package encode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/lvillar/letterpdf/layout"
	"github.com/lvillar/letterpdf/model"
)

// DefaultQuality is the JPEG quality used when none is given.
const DefaultQuality = 0.95

// ErrNoImage is returned when Encode is called without a bitmap.
var ErrNoImage = errors.New("encode: nil image")

// Error records which step of the encoding failed.
type Error struct {
	Op  string // e.g. "jpeg", "embed", "output"
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("encode.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Metadata is written into the PDF info dictionary.
type Metadata struct {
	Title     string
	Author    string
	Subject   string
	Keywords  []string
	Creator   string
	Producer  string
	CreatedAt time.Time // zero means now
}

// MetadataFor derives the document metadata of a letter. systemAuthor is
// used when the letter has no creator name.
func MetadataFor(l *model.Letter, systemAuthor string) Metadata {
	author := strings.TrimSpace(l.CreatorName)
	if author == "" {
		author = systemAuthor
	}
	ref := l.Reference()
	keywords := []string{ref, "خطاب"}
	if l.BranchCode != "" {
		keywords = append(keywords, l.BranchCode)
	}
	if l.Year > 0 {
		keywords = append(keywords, strconv.Itoa(l.Year))
	}
	return Metadata{
		Title:     ref,
		Author:    author,
		Subject:   l.Content.Subject,
		Keywords:  keywords,
		Creator:   "letterpdf",
		Producer:  "letterpdf (go-pdf/fpdf)",
		CreatedAt: l.UpdatedAt,
	}
}

// JPEGQuality maps a (0,1] quality to the 1..100 scale of image/jpeg.
// Out-of-range values are clamped; zero or negative selects DefaultQuality.
func JPEGQuality(q float64) int {
	if q <= 0 {
		q = DefaultQuality
	}
	if q > 1 {
		q = 1
	}
	v := int(q*100 + 0.5)
	if v < 1 {
		v = 1
	}
	return v
}

// Encode writes a one-page 595x842 pt PDF with img covering the page.
func Encode(w io.Writer, img image.Image, meta Metadata, quality float64) error {
	if img == nil {
		return ErrNoImage
	}

	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, img, &jpeg.Options{Quality: JPEGQuality(quality)}); err != nil {
		return &Error{Op: "jpeg", Err: err}
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: layout.PageWidth, Ht: layout.PageHeight},
	})
	pdf.SetCompression(true)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	if meta.Title != "" {
		pdf.SetTitle(meta.Title, true)
	}
	if meta.Author != "" {
		pdf.SetAuthor(meta.Author, true)
	}
	if meta.Subject != "" {
		pdf.SetSubject(meta.Subject, true)
	}
	if len(meta.Keywords) > 0 {
		pdf.SetKeywords(strings.Join(meta.Keywords, ", "), true)
	}
	if meta.Creator != "" {
		pdf.SetCreator(meta.Creator, true)
	}
	if meta.Producer != "" {
		pdf.SetProducer(meta.Producer, true)
	}
	if !meta.CreatedAt.IsZero() {
		pdf.SetCreationDate(meta.CreatedAt)
		pdf.SetModificationDate(meta.CreatedAt)
	}

	pdf.AddPage()
	opts := fpdf.ImageOptions{ImageType: "JPG"}
	pdf.RegisterImageOptionsReader("page", opts, &jpg)
	pdf.ImageOptions("page", 0, 0, layout.PageWidth, layout.PageHeight, false, opts, 0, "")
	if pdf.Err() {
		return &Error{Op: "embed", Err: pdf.Error()}
	}

	if err := pdf.Output(w); err != nil {
		return &Error{Op: "output", Err: err}
	}
	return nil
}

// Bytes is Encode into a new buffer.
func Bytes(img image.Image, meta Metadata, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, meta, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
