package preview

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/lvillar/letterpdf/encode"
	"github.com/lvillar/letterpdf/pageops"
)

// letterPDF encodes a bitmap whose top half is red and bottom half blue.
func letterPDF(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 119, 168))
	for y := 0; y < 168; y++ {
		for x := 0; x < 119; x++ {
			c := color.RGBA{R: 220, A: 255}
			if y >= 84 {
				c = color.RGBA{B: 220, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	data, err := encode.Bytes(img, encode.Metadata{Title: "t"}, 0.95)
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	return data
}

func TestRenderOrientationAndSize(t *testing.T) {
	v, err := Open(letterPDF(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer v.Close()

	img, err := v.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 595 || b.Dy() != 842 {
		t.Fatalf("size = %v, want 595x842", b)
	}
	r, _, b, _ := img.At(297, 100).RGBA()
	if r>>8 < 150 || b>>8 > 80 {
		t.Errorf("top pixel = r%d b%d, want red", r>>8, b>>8)
	}
	r, _, b, _ = img.At(297, 740).RGBA()
	if b>>8 < 150 || r>>8 > 80 {
		t.Errorf("bottom pixel = r%d b%d, want blue", r>>8, b>>8)
	}
}

func TestZoom(t *testing.T) {
	v, err := Open(letterPDF(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if z := v.ZoomIn(); z != 1.25 {
		t.Errorf("ZoomIn = %v, want 1.25", z)
	}
	for i := 0; i < 20; i++ {
		v.ZoomIn()
	}
	if z := v.Zoom(); z != MaxZoom {
		t.Errorf("zoom = %v, want clamped to %v", z, MaxZoom)
	}
	for i := 0; i < 20; i++ {
		v.ZoomOut()
	}
	if z := v.Zoom(); z != MinZoom {
		t.Errorf("zoom = %v, want clamped to %v", z, MinZoom)
	}

	v.SetZoom(2)
	img, err := v.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1190 || b.Dy() != 1684 {
		t.Errorf("size at zoom 2 = %v", b)
	}
}

func TestClampZoom(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0.5},
		{0.75, 0.75},
		{3.5, 3},
		{-2, 0.5},
	}
	for _, tt := range tests {
		if got := ClampZoom(tt.in); got != tt.want {
			t.Errorf("ClampZoom(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNavigation(t *testing.T) {
	var bundle bytes.Buffer
	if err := pageops.Bundle(&bundle, letterPDF(t), letterPDF(t), letterPDF(t)); err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	v, err := Open(bundle.Bytes())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if v.NumPages() != 3 {
		t.Fatalf("pages = %d, want 3", v.NumPages())
	}
	if v.Prev() {
		t.Error("Prev on first page should not move")
	}
	if !v.Next() || !v.Next() || v.Page() != 3 {
		t.Errorf("page after two Next = %d", v.Page())
	}
	if v.Next() {
		t.Error("Next on last page should not move")
	}
	if err := v.GoTo(2); err != nil || v.Page() != 2 {
		t.Errorf("GoTo(2): page %d, err %v", v.Page(), err)
	}
	if err := v.GoTo(4); err == nil {
		t.Error("expected error for page 4")
	}
	img, err := v.Render()
	if err != nil {
		t.Fatalf("Render on bundled page: %v", err)
	}
	if r, _, _, _ := img.At(297, 100).RGBA(); r>>8 < 150 {
		t.Errorf("bundled page top pixel red = %d, want the letter image", r>>8)
	}
}

func TestLoadReplacesAndClose(t *testing.T) {
	v, err := Open(letterPDF(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	v.SetZoom(2)
	if err := v.Load([]byte("garbage")); err == nil {
		t.Fatal("expected parse error")
	}
	if v.NumPages() != 0 {
		t.Error("previous document should be released after a failed Load")
	}
	if err := v.Load(letterPDF(t)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v.Zoom() != 1 || v.Page() != 1 {
		t.Errorf("Load should reset page and zoom, got page %d zoom %v", v.Page(), v.Zoom())
	}

	v.Close()
	v.Close()
	if _, err := v.Render(); !errors.Is(err, ErrClosed) {
		t.Errorf("Render after Close: %v", err)
	}
}

func TestRenderPNG(t *testing.T) {
	v, err := Open(letterPDF(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, err := v.RenderPNG()
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding png: %v", err)
	}
	if img.Bounds().Dx() != 595 {
		t.Errorf("width = %d", img.Bounds().Dx())
	}
}

// solidPDF encodes a single-colour page.
func solidPDF(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 60, 84))
	for y := 0; y < 84; y++ {
		for x := 0; x < 60; x++ {
			img.Set(x, y, c)
		}
	}
	data, err := encode.Bytes(img, encode.Metadata{Title: "solid"}, 0.95)
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	return data
}

func TestBundledLettersKeepTheirContent(t *testing.T) {
	red := color.RGBA{R: 230, A: 255}
	blue := color.RGBA{B: 230, A: 255}
	var bundle bytes.Buffer
	if err := pageops.Bundle(&bundle, solidPDF(t, red), solidPDF(t, blue), solidPDF(t, red)); err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	v, err := Open(bundle.Bytes())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer v.Close()

	for i, want := range []string{"red", "blue", "red"} {
		if err := v.GoTo(i + 1); err != nil {
			t.Fatalf("GoTo(%d): %v", i+1, err)
		}
		img, err := v.Render()
		if err != nil {
			t.Fatalf("page %d: Render: %v", i+1, err)
		}
		r, _, b, _ := img.At(297, 421).RGBA()
		got := "other"
		switch {
		case r>>8 > 150 && b>>8 < 80:
			got = "red"
		case b>>8 > 150 && r>>8 < 80:
			got = "blue"
		}
		if got != want {
			t.Errorf("page %d centre = r%d b%d (%s), want %s", i+1, r>>8, b>>8, got, want)
		}
	}
}
