package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lvillar/letterpdf"
	"github.com/lvillar/letterpdf/store"
)

// RegisterResources adds the letter resources backed by letters.
func RegisterResources(s *Server, letters store.Letters) {
	s.AddResource(Resource{
		URI:         "letter://{id}/metadata",
		Name:        "Letter metadata",
		Description: "Reference, status, subject and the PDF filename of a letter, e.g. letter://0f3c.../metadata",
		MIMEType:    "application/json",
		Handler: func(ctx context.Context, uri, id string) ([]ResourceContent, error) {
			return letterMetadata(ctx, letters, uri, id)
		},
	})
}

func letterMetadata(ctx context.Context, letters store.Letters, uri, id string) ([]ResourceContent, error) {
	l, err := letters.GetLetter(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading letter %s: %w", id, err)
	}
	if l == nil {
		return nil, fmt.Errorf("letter %s: %w", id, letterpdf.ErrNotFound)
	}

	tpl := l.EffectiveTemplate()
	info := map[string]any{
		"id":             l.ID,
		"reference":      l.Reference(),
		"number":         l.Number,
		"year":           l.Year,
		"branchCode":     l.BranchCode,
		"status":         l.WorkflowStatus,
		"subject":        l.Content.Subject,
		"to":             l.Content.To,
		"date":           l.Content.Date,
		"creator":        l.CreatorName,
		"filename":       letterpdf.Filename(l),
		"hasTemplate":    tpl != nil,
		"templateFrozen": l.TemplateSnapshot != nil,
		"hasSignature":   l.SignatureID != "",
		"verification":   l.Verification(),
	}
	if !l.UpdatedAt.IsZero() {
		info["updatedAt"] = l.UpdatedAt
	}

	jsonBytes, _ := json.MarshalIndent(info, "", "  ")
	return []ResourceContent{{
		URI:      uri,
		MIMEType: "application/json",
		Text:     string(jsonBytes),
	}}, nil
}
