// Package pageops combines exported letter PDFs.
//
// Pages are imported as templates with the gofpdi contrib package and
// redrawn at their original media box, so each letter keeps its own size.
package pageops

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-pdf/fpdf"
	"github.com/go-pdf/fpdf/contrib/gofpdi"

	"github.com/lvillar/letterpdf/reader"
)

// ErrNoInput is returned when Bundle is called without documents.
var ErrNoInput = errors.New("pageops: no input documents")

// A4 in points, used when an imported page reports no media box.
const (
	a4Width  = 595.28
	a4Height = 841.89
)

// Bundle writes every page of pdfs, in order, into one document.
func Bundle(w io.Writer, pdfs ...[]byte) error {
	if len(pdfs) == 0 {
		return ErrNoInput
	}

	out := fpdf.New("P", "pt", "A4", "")
	out.SetAutoPageBreak(false, 0)
	out.SetCompression(true)

	// Template names are numbered per importer, so the bundle shares one.
	imp := gofpdi.NewImporter()
	for i, data := range pdfs {
		if err := appendDocument(out, imp, data); err != nil {
			return fmt.Errorf("pageops: document %d: %w", i+1, err)
		}
	}
	if err := out.Output(w); err != nil {
		return fmt.Errorf("pageops: writing bundle: %w", err)
	}
	return nil
}

// BundleFiles reads the PDFs at paths and writes the bundle to output.
func BundleFiles(output string, paths ...string) error {
	docs := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("pageops: reading %s: %w", p, err)
		}
		docs = append(docs, data)
	}
	var buf bytes.Buffer
	if err := Bundle(&buf, docs...); err != nil {
		return err
	}
	if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("pageops: writing %s: %w", output, err)
	}
	return nil
}

// PageCount parses data just far enough to count its pages.
func PageCount(data []byte) (int, error) {
	doc, err := reader.Parse(data)
	if err != nil {
		return 0, err
	}
	return doc.NumPages(), nil
}

func appendDocument(out *fpdf.Fpdf, imp *gofpdi.Importer, data []byte) error {
	n, err := PageCount(data)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("document has no pages")
	}

	for page := 1; page <= n; page++ {
		var rs io.ReadSeeker = bytes.NewReader(data)
		tpl := imp.ImportPageFromStream(out, &rs, page, "/MediaBox")
		w, h := a4Width, a4Height
		if box, ok := imp.GetPageSizes()[page]["/MediaBox"]; ok && box["w"] > 0 && box["h"] > 0 {
			w, h = box["w"], box["h"]
		}
		// "L" would swap the dimensions back; the size already carries the orientation.
		out.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})
		imp.UseImportedTemplate(out, tpl, 0, 0, w, h)
	}
	return out.Error()
}
