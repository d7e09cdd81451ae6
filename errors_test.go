package letterpdf

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lvillar/letterpdf/assets"
	"github.com/lvillar/letterpdf/encode"
	"github.com/lvillar/letterpdf/model"
)

func TestNewExportErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		def  Kind
		want Kind
	}{
		{"deadline", fmt.Errorf("raster: chrome: %w", context.DeadlineExceeded), KindRender, KindTimeout},
		{"canceled", context.Canceled, KindRender, KindCanceled},
		{"offline", fmt.Errorf("%w: dial tcp", ErrOffline), KindRender, KindConnectivity},
		{"asset", &assets.LoadError{URL: "x", Err: errors.New("404")}, KindRender, KindAssetLoad},
		{"encode", &encode.Error{Op: "jpeg", Err: errors.New("bad")}, KindRender, KindEncoding},
		{"no image", encode.ErrNoImage, KindRender, KindEncoding},
		{"not found", ErrNotFound, KindRender, KindNotFound},
		{"store", fmt.Errorf("%w: dial tcp 10.0.0.5:5432: connection refused", ErrStore), KindRender, KindStore},
		{"store deadline", fmt.Errorf("%w: %w", ErrStore, context.DeadlineExceeded), KindRender, KindTimeout},
		{"default", errors.New("boom"), KindRender, KindRender},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newExportError("L1", "op", tt.def, tt.err)
			if got.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", got.Kind, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Error("original error not in chain")
			}
		})
	}
}

func TestExportErrorKeepsInnerKind(t *testing.T) {
	inner := &ExportError{Kind: KindConcurrency, LetterID: "L1", Op: "guard", Err: ErrExportInProgress}
	wrapped := fmt.Errorf("bundle: %w", inner)
	if got := newExportError("L1", "bundle", KindRender, wrapped); got != inner {
		t.Errorf("expected the inner error back, got %v", got)
	}
}

func TestUserMessages(t *testing.T) {
	for kind := range userMessages {
		e := &ExportError{Kind: kind}
		if e.UserMessage() == "" {
			t.Errorf("kind %q has no message", kind)
		}
	}
	if got := (&ExportError{Kind: "unknown"}).UserMessage(); got != userMessages[KindRender] {
		t.Errorf("unknown kind message = %q", got)
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("KindOf(plain) should be empty")
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		letter model.Letter
		want   string
	}{
		{model.Letter{LetterReference: "RYD-15", Number: 15, Year: 2024}, "RYD-15.pdf"},
		{model.Letter{LetterReference: "  ", Number: 15, Year: 2024}, "خطاب-15-2024.pdf"},
		{model.Letter{Number: 3, Year: 2025, BranchCode: "JED"}, "خطاب-3-2025.pdf"},
		{model.Letter{LetterReference: "HQ/1/2024"}, "HQ-1-2024.pdf"},
		{model.Letter{LetterReference: `HQ\9\2024`}, "HQ-9-2024.pdf"},
	}
	for _, tt := range tests {
		if got := Filename(&tt.letter); got != tt.want {
			t.Errorf("Filename(%+v) = %q, want %q", tt.letter, got, tt.want)
		}
	}
}
