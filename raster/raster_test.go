package raster

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/lvillar/letterpdf/assets"
	"github.com/lvillar/letterpdf/htmlrender"
	"github.com/lvillar/letterpdf/layout"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func testPage() (*layout.Page, map[string]*assets.Asset) {
	page := &layout.Page{
		Width: layout.PageWidth, Height: layout.PageHeight, Direction: "rtl",
		Elements: []layout.Element{
			{Kind: layout.KindBackground, Box: layout.Box{W: 595, H: 842}, Src: "bg", Fit: "fill"},
			{Kind: layout.KindNumber, Box: layout.Box{X: 60, Y: 120, W: 160}, Text: "RYD-12/2024", FontSize: 14},
			{Kind: layout.KindBody, Box: layout.Box{X: 50, Y: 200, W: 495, H: 520}, HTML: "<p>Hello world</p><p>second</p>", FontSize: 14, LineHeight: 1.8},
			{Kind: layout.KindQR, Box: layout.Box{X: 40, Y: 702, W: 100, H: 100}, Src: "qr", Fit: "contain"},
		},
	}
	a := map[string]*assets.Asset{
		"bg": {Image: solid(10, 14, color.RGBA{R: 240, G: 230, B: 200, A: 255})},
		"qr": {Image: solid(8, 8, color.Black)},
	}
	return page, a
}

func TestDrawSizeAndLayers(t *testing.T) {
	page, a := testPage()
	img, err := Draw{}.Rasterize(context.Background(), Request{Page: page, Assets: a, Scale: 2})
	if err != nil {
		t.Fatalf("Rasterize failed: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 1190 || b.Dy() != 1684 {
		t.Fatalf("size = %dx%d, want 1190x1684", b.Dx(), b.Dy())
	}

	// background stretched to the corner
	r, g, bl, _ := img.At(2, 2).RGBA()
	if r>>8 != 240 || g>>8 != 230 || bl>>8 != 200 {
		t.Errorf("corner pixel = %d,%d,%d, want background color", r>>8, g>>8, bl>>8)
	}
	// QR center is black
	r, g, bl, _ = img.At(180, 1504).RGBA()
	if r>>8 != 0 || g>>8 != 0 || bl>>8 != 0 {
		t.Errorf("qr pixel = %d,%d,%d, want black", r>>8, g>>8, bl>>8)
	}
}

func TestDrawMissingAsset(t *testing.T) {
	page, _ := testPage()
	_, err := Draw{}.Rasterize(context.Background(), Request{Page: page, Scale: 1})
	if err == nil {
		t.Fatal("expected error for missing asset")
	}
}

func TestDrawInvalidScale(t *testing.T) {
	page, a := testPage()
	for _, s := range []float64{0, -1, 8.5} {
		_, err := Draw{}.Rasterize(context.Background(), Request{Page: page, Assets: a, Scale: s})
		if !errors.Is(err, ErrInvalidScale) {
			t.Errorf("scale %v: expected ErrInvalidScale, got %v", s, err)
		}
	}
}

func TestDrawCancelled(t *testing.T) {
	page, a := testPage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Draw{}).Rasterize(ctx, Request{Page: page, Assets: a, Scale: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestVisual(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello world", "hello world"},
		{"مرحبا بكم", "مكب ابحرم"},
		{"رقم RYD-12/2024 الخطاب", "باطخلا RYD-12/2024 مقر"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Visual(tt.in); got != tt.want {
			t.Errorf("Visual(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParagraphs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"<p>one</p><p>two</p>", []string{"one", "two"}},
		{"a<br>b", []string{"a", "b"}},
		{"<div>x <b>y</b></div>tail", []string{"x y", "tail"}},
		{"line1\nline2", []string{"line1", "line2"}},
		{"<p>a</p><script>bad()</script>", []string{"a"}},
	}
	for _, tt := range tests {
		if got := Paragraphs(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Paragraphs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSize(t *testing.T) {
	w, h := Size(nil, 3)
	if w != 1785 || h != 2526 {
		t.Errorf("Size = %dx%d", w, h)
	}
}

// TestChrome needs a local Chrome; set LETTERPDF_CHROME_TEST=1 to run it.
func TestChrome(t *testing.T) {
	if os.Getenv("LETTERPDF_CHROME_TEST") == "" {
		t.Skip("LETTERPDF_CHROME_TEST not set")
	}
	c, err := NewChrome(context.Background(), ChromeOptions{NoSandbox: true, Settle: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewChrome: %v", err)
	}
	defer c.Close()

	page := &layout.Page{Width: 595, Height: 842, Direction: "rtl", Elements: []layout.Element{
		{Kind: layout.KindNumber, Box: layout.Box{X: 60, Y: 120, W: 160}, Text: "RYD-1/2024", FontSize: 14},
	}}
	doc, err := htmlrender.Render(page, htmlrender.Options{Mode: htmlrender.Snapshot})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, err := c.Rasterize(context.Background(), Request{Page: page, HTML: doc, Scale: 2, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1190 || b.Dy() != 1684 {
		t.Errorf("size = %dx%d", b.Dx(), b.Dy())
	}
}
