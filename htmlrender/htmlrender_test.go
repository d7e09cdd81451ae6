package htmlrender

import (
	"errors"
	"strings"
	"testing"

	"github.com/lvillar/letterpdf/assets"
	"github.com/lvillar/letterpdf/layout"
)

func samplePage() *layout.Page {
	return &layout.Page{
		Width:     layout.PageWidth,
		Height:    layout.PageHeight,
		Direction: "rtl",
		Title:     "RYD-12/2024",
		Elements: []layout.Element{
			{Kind: layout.KindBackground, Box: layout.Box{W: 595, H: 842}, Src: "https://cdn.example.com/bg.png", Fit: "fill"},
			{Kind: layout.KindNumber, Box: layout.Box{X: 60, Y: 120, W: 160}, Text: "RYD-12/2024", Align: "right", FontSize: 14, Bold: true},
			{Kind: layout.KindBody, Box: layout.Box{X: 50, Y: 200, W: 495, H: 520}, HTML: "<p>السلام <b>عليكم</b></p>", LineHeight: 1.8, FontSize: 14},
			{Kind: layout.KindQR, Box: layout.Box{X: 40, Y: 702, W: 100, H: 100}, Src: "https://qr.example.com/q?data=x", Fit: "contain"},
		},
	}
}

func sampleAssets() map[string]*assets.Asset {
	return map[string]*assets.Asset{
		"https://cdn.example.com/bg.png":  {MIME: "image/png", Data: []byte("bg")},
		"https://qr.example.com/q?data=x": {MIME: "image/png", Data: []byte("qr")},
	}
}

func TestRenderSnapshotInlinesImages(t *testing.T) {
	out, err := Render(samplePage(), Options{Mode: Snapshot, Assets: sampleAssets()})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	html := string(out)

	if strings.Contains(html, "https://cdn.example.com/bg.png") {
		t.Error("snapshot references a remote image")
	}
	if !strings.Contains(html, `src="data:image/png;base64,Ymc="`) {
		t.Error("background not inlined as data URL")
	}
	if !strings.Contains(html, MarkerClass) {
		t.Error("marker class missing")
	}
	if !strings.Contains(html, `dir="rtl"`) {
		t.Error("document direction missing")
	}
	if !strings.Contains(html, "<p>السلام <b>عليكم</b></p>") {
		t.Error("body HTML was escaped or altered")
	}
	if !strings.Contains(html, "left:60px;top:120px;width:160px;") {
		t.Error("number box not positioned in CSS pixels")
	}
	if !strings.Contains(html, "white-space:pre-wrap;word-break:break-word;") {
		t.Error("body wrapping rules missing")
	}
	if strings.Contains(html, "window.print") {
		t.Error("snapshot must not print")
	}
}

func TestRenderSnapshotMissingAsset(t *testing.T) {
	_, err := Render(samplePage(), Options{Mode: Snapshot})
	if !errors.Is(err, ErrMissingAsset) {
		t.Fatalf("expected ErrMissingAsset, got %v", err)
	}
}

func TestRenderPrintKeepsURLs(t *testing.T) {
	out, err := Render(samplePage(), Options{Mode: Print, Assets: sampleAssets()})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	html := string(out)

	if !strings.Contains(html, `src="https://cdn.example.com/bg.png"`) {
		t.Error("print should keep original image URLs")
	}
	if !strings.Contains(html, "@page{size:A4;margin:0;}") {
		t.Error("print page rule missing")
	}
	if !strings.Contains(html, "window.print()") {
		t.Error("print script missing")
	}
	if !strings.Contains(html, "left:60pt;top:120pt;") {
		t.Error("print path should use the same coordinates in points")
	}
}

func TestRenderPrintInlinesNonWebSources(t *testing.T) {
	page := samplePage()
	page.Elements[0].Src = "s3://templates/bg.png"
	a := sampleAssets()
	a["s3://templates/bg.png"] = &assets.Asset{MIME: "image/png", Data: []byte("bg")}

	out, err := Render(page, Options{Mode: Print, Assets: a})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.Contains(string(out), "s3://") {
		t.Error("s3 source leaked into print HTML")
	}
}

func TestRenderEscapesText(t *testing.T) {
	page := samplePage()
	page.Elements[1].Text = `<script>alert(1)</script>`
	out, err := Render(page, Options{Mode: Snapshot, Assets: sampleAssets()})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.Contains(string(out), "<script>alert(1)</script>") {
		t.Error("number text was not escaped")
	}
}

func TestRenderEmbedsFonts(t *testing.T) {
	fonts := &assets.FontSet{
		Family: "Cairo",
		Fonts:  []*assets.Font{{Path: "Cairo-Regular.ttf", Data: []byte("font")}},
	}
	out, err := Render(samplePage(), Options{Mode: Snapshot, Assets: sampleAssets(), Fonts: fonts})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	html := string(out)
	if !strings.Contains(html, `@font-face{font-family:"Cairo";src:url(data:font/ttf;base64,Zm9udA==)`) {
		t.Error("font-face rule missing")
	}
	if !strings.Contains(html, `font-family:"Cairo", "Segoe UI"`) {
		t.Error("font stack should lead with the letter family")
	}
}
