package pageops_test

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-pdf/fpdf"

	"github.com/lvillar/letterpdf/pageops"
	"github.com/lvillar/letterpdf/reader"
)

// letter makes a PDF of n pages sized w x h points.
func letter(t *testing.T, n int, w, h float64) []byte {
	t.Helper()
	pdf := fpdf.NewCustom(&fpdf.InitType{OrientationStr: "P", UnitStr: "pt", Size: fpdf.SizeType{Wd: w, Ht: h}})
	pdf.SetFont("Helvetica", "", 12)
	for i := 0; i < n; i++ {
		pdf.AddPage()
		pdf.Text(40, 60, "letter")
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("generating PDF: %v", err)
	}
	return buf.Bytes()
}

func TestBundlePageCount(t *testing.T) {
	var buf bytes.Buffer
	if err := pageops.Bundle(&buf, letter(t, 1, 595, 842), letter(t, 2, 595, 842)); err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	n, err := pageops.PageCount(buf.Bytes())
	if err != nil {
		t.Fatalf("PageCount: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 pages, got %d", n)
	}
}

func TestBundleKeepsPageSize(t *testing.T) {
	var buf bytes.Buffer
	if err := pageops.Bundle(&buf, letter(t, 1, 595, 842), letter(t, 1, 842, 595)); err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	doc, err := reader.Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("parsing bundle: %v", err)
	}
	want := [][2]float64{{595, 842}, {842, 595}}
	for i, sz := range want {
		p, err := doc.Page(i + 1)
		if err != nil {
			t.Fatalf("page %d: %v", i+1, err)
		}
		if math.Abs(p.MediaBox.Width()-sz[0]) > 0.5 || math.Abs(p.MediaBox.Height()-sz[1]) > 0.5 {
			t.Errorf("page %d MediaBox = %+v, want %vx%v", i+1, p.MediaBox, sz[0], sz[1])
		}
	}
}

func TestBundleErrors(t *testing.T) {
	var buf bytes.Buffer
	if err := pageops.Bundle(&buf); !errors.Is(err, pageops.ErrNoInput) {
		t.Errorf("expected ErrNoInput, got %v", err)
	}
	if err := pageops.Bundle(&buf, []byte("not a pdf")); err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestBundleFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	b := filepath.Join(dir, "b.pdf")
	out := filepath.Join(dir, "bundle.pdf")
	if err := os.WriteFile(a, letter(t, 2, 595, 842), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, letter(t, 1, 595, 842), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := pageops.BundleFiles(out, a, b); err != nil {
		t.Fatalf("BundleFiles: %v", err)
	}
	doc, err := reader.Open(out)
	if err != nil {
		t.Fatalf("reading bundle: %v", err)
	}
	if doc.NumPages() != 3 {
		t.Errorf("expected 3 pages, got %d", doc.NumPages())
	}
}
