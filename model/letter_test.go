package model

import (
	"encoding/json"
	"testing"
)

func TestLineHeightUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want LineHeight
	}{
		{`{"lineHeight": 2}`, 2},
		{`{"lineHeight": "1.6"}`, 1.6},
		{`{"lineHeight": ""}`, 0},
		{`{"lineHeight": null}`, 0},
		{`{}`, 0},
	}
	for _, tt := range tests {
		var c Content
		if err := json.Unmarshal([]byte(tt.in), &c); err != nil {
			t.Fatalf("%s: %v", tt.in, err)
		}
		if c.LineHeight != tt.want {
			t.Errorf("%s: got %v, want %v", tt.in, c.LineHeight, tt.want)
		}
	}

	var c Content
	if err := json.Unmarshal([]byte(`{"lineHeight": "tall"}`), &c); err == nil {
		t.Error("expected error for non-numeric lineHeight")
	}
}

func TestEffectiveTemplatePrefersSnapshot(t *testing.T) {
	live := &Template{ImageURL: "https://cdn.example.com/a.png"}
	snap := &Template{ImageURL: "https://cdn.example.com/b.png"}

	l := Letter{Template: live, TemplateSnapshot: snap}
	if got := l.EffectiveTemplate(); got != snap {
		t.Errorf("expected snapshot, got %+v", got)
	}

	l.TemplateSnapshot = nil
	if got := l.EffectiveTemplate(); got != live {
		t.Errorf("expected live template, got %+v", got)
	}
}

func TestReference(t *testing.T) {
	tests := []struct {
		name   string
		letter Letter
		want   string
	}{
		{"explicit", Letter{LetterReference: "RYD-12/2024", Number: 1, Year: 2020}, "RYD-12/2024"},
		{"synthesized", Letter{BranchCode: "JED", Number: 7, Year: 2025}, "JED-7/2025"},
		{"no branch", Letter{Number: 7, Year: 2025}, "7/2025"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.letter.Reference(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVerificationFallsBackToContent(t *testing.T) {
	l := Letter{Content: Content{VerificationURL: " tok-2 "}}
	if got := l.Verification(); got != "tok-2" {
		t.Errorf("got %q", got)
	}
	l.VerificationURL = "tok-1"
	if got := l.Verification(); got != "tok-1" {
		t.Errorf("got %q", got)
	}
}

func TestElementEnabledDefaults(t *testing.T) {
	var nilCfg *ElementConfig
	if !nilCfg.Enabled() {
		t.Error("nil config should be enabled")
	}
	if !(&ElementConfig{}).Enabled() {
		t.Error("missing flag should be enabled")
	}
	if (&ElementConfig{EnabledFlag: Bool(false)}).Enabled() {
		t.Error("explicit false should be disabled")
	}
}
