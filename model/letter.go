// Package model defines the letter, template, and signature records that the
// export pipeline reads from the data store.
//
// The pipeline treats every value in this package as read-only input.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WorkflowStatus is the approval state of a letter.
type WorkflowStatus string

const (
	StatusDraft       WorkflowStatus = "draft"
	StatusSubmitted   WorkflowStatus = "submitted"
	StatusUnderReview WorkflowStatus = "under_review"
	StatusApproved    WorkflowStatus = "approved"
	StatusRejected    WorkflowStatus = "rejected"
	StatusFinalized   WorkflowStatus = "finalized"
)

// Valid reports whether s is one of the known workflow states.
func (s WorkflowStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved, StatusRejected, StatusFinalized:
		return true
	}
	return false
}

// Letter is an official letter as stored in the letters table.
type Letter struct {
	ID              string         `json:"id"`
	Number          int            `json:"number"`
	Year            int            `json:"year"`
	LetterReference string         `json:"letter_reference,omitempty"`
	BranchCode      string         `json:"branch_code,omitempty"`
	Content         Content        `json:"content"`
	VerificationURL string         `json:"verification_url,omitempty"`
	SignatureID     string         `json:"signature_id,omitempty"`
	WorkflowStatus  WorkflowStatus `json:"workflow_status"`
	CreatorName     string         `json:"creator_name,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at,omitempty"`

	// Template is the live letter_templates relation.
	Template *Template `json:"letter_templates,omitempty"`
	// TemplateSnapshot freezes the template layout at the time the letter used it.
	TemplateSnapshot *Template `json:"template_snapshot,omitempty"`
}

// Content holds the free-form fields of a letter.
type Content struct {
	Subject         string     `json:"subject,omitempty"`
	To              string     `json:"to,omitempty"`
	Body            string     `json:"body,omitempty"` // trusted, pre-sanitized rich HTML
	Date            string     `json:"date,omitempty"` // already formatted upstream
	LineHeight      LineHeight `json:"lineHeight,omitempty"`
	VerificationURL string     `json:"verification_url,omitempty"`
}

// LineHeight is a CSS unitless line-height. The editor stores it either as a
// JSON number or as a numeric string.
type LineHeight float64

// UnmarshalJSON accepts 1.8, "1.8", "" and null.
func (l *LineHeight) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*l = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*l = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("model: invalid lineHeight %q", s)
		}
		*l = LineHeight(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("model: invalid lineHeight: %w", err)
	}
	*l = LineHeight(v)
	return nil
}

// EffectiveTemplate returns the single visual source of truth for the letter:
// the template snapshot when present, otherwise the live template. The two are
// never merged.
func (l *Letter) EffectiveTemplate() *Template {
	if l.TemplateSnapshot != nil {
		return l.TemplateSnapshot
	}
	return l.Template
}

// Verification returns the verification token, preferring the top-level
// column over the copy kept inside content.
func (l *Letter) Verification() string {
	if v := strings.TrimSpace(l.VerificationURL); v != "" {
		return v
	}
	return strings.TrimSpace(l.Content.VerificationURL)
}

// Reference returns the composite reference printed on the letter:
// letter_reference when set, otherwise branch-number/year.
func (l *Letter) Reference() string {
	if ref := strings.TrimSpace(l.LetterReference); ref != "" {
		return ref
	}
	if l.BranchCode != "" {
		return fmt.Sprintf("%s-%d/%d", l.BranchCode, l.Number, l.Year)
	}
	return fmt.Sprintf("%d/%d", l.Number, l.Year)
}

// Signature is a row of the signatures table.
type Signature struct {
	ID           string `json:"id"`
	SignatureURL string `json:"signature_url"`
}
