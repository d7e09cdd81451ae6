package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/lvillar/letterpdf"
	"github.com/lvillar/letterpdf/raster"
	"github.com/lvillar/letterpdf/reader"
)

// RegisterTools adds the letter tools backed by exp, plus pdf_info.
func RegisterTools(s *Server, exp *letterpdf.Exporter) {
	s.AddTool(exportLetterTool(exp))
	s.AddTool(previewPageTool(exp))
	s.AddTool(bundleLettersTool(exp))
	s.AddTool(pdfInfoTool())
}

var exportOptionProps = map[string]any{
	"scale": map[string]any{
		"type":        "number",
		"description": "Raster density in pixels per point, at most 8 (default 3).",
	},
	"quality": map[string]any{
		"type":        "number",
		"description": "JPEG quality in (0, 1] (default 0.95).",
	},
	"template": map[string]any{
		"type":        "boolean",
		"description": "Draw the letterhead template (default true).",
	},
}

func props(extra map[string]any) map[string]any {
	out := make(map[string]any, len(exportOptionProps)+len(extra))
	for k, v := range exportOptionProps {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func exportLetterTool(exp *letterpdf.Exporter) Tool {
	return Tool{
		Name:        "export_letter",
		Description: "Export an official letter as a single-page A4 PDF. Returns the PDF as base64, or writes it to outputPath.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": props(map[string]any{
				"letterId": map[string]any{
					"type":        "string",
					"description": "ID of the letter to export",
				},
				"outputPath": map[string]any{
					"type":        "string",
					"description": "Optional file path to save the PDF. If omitted, returns base64.",
				},
			}),
			"required": []string{"letterId"},
		},
		Handler: func(ctx context.Context, args map[string]any) (ToolResult, error) {
			id, err := requireString(args, "letterId")
			if err != nil {
				return ToolResult{}, err
			}
			opts, err := exportOptions(args)
			if err != nil {
				return ToolResult{}, err
			}
			res, err := exp.ExportByID(ctx, id, opts)
			if err != nil {
				return ToolResult{}, userError(err)
			}
			return pdfResult(args, res.Filename, res.PDF)
		},
	}
}

func previewPageTool(exp *letterpdf.Exporter) Tool {
	return Tool{
		Name:        "preview_letter_page",
		Description: "Render a page of an exported letter as a PNG image.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": props(map[string]any{
				"letterId": map[string]any{
					"type":        "string",
					"description": "ID of the letter to preview",
				},
				"page": map[string]any{
					"type":        "number",
					"description": "1-based page number (default 1)",
				},
				"zoom": map[string]any{
					"type":        "number",
					"description": "Zoom factor between 0.5 and 3 (default 1)",
				},
			}),
			"required": []string{"letterId"},
		},
		Handler: func(ctx context.Context, args map[string]any) (ToolResult, error) {
			id, err := requireString(args, "letterId")
			if err != nil {
				return ToolResult{}, err
			}
			opts, err := exportOptions(args)
			if err != nil {
				return ToolResult{}, err
			}
			page := int(numberArg(args, "page", 1))
			zoom := numberArg(args, "zoom", 1)
			png, err := exp.PreviewPNG(ctx, id, page, zoom, opts)
			if err != nil {
				return ToolResult{}, userError(err)
			}
			return ToolResult{Content: []ContentBlock{{
				Type:     "image",
				MIMEType: "image/png",
				Data:     base64.StdEncoding.EncodeToString(png),
			}}}, nil
		},
	}
}

func bundleLettersTool(exp *letterpdf.Exporter) Tool {
	return Tool{
		Name:        "bundle_letters",
		Description: "Export several letters and merge them, in order, into one PDF.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": props(map[string]any{
				"letterIds": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Letter IDs in output order",
				},
				"outputPath": map[string]any{
					"type":        "string",
					"description": "Optional file path to save the PDF. If omitted, returns base64.",
				},
			}),
			"required": []string{"letterIds"},
		},
		Handler: func(ctx context.Context, args map[string]any) (ToolResult, error) {
			raw, ok := args["letterIds"].([]any)
			if !ok || len(raw) == 0 {
				return ToolResult{}, fmt.Errorf("missing 'letterIds' argument")
			}
			ids := make([]string, 0, len(raw))
			for _, v := range raw {
				id, ok := v.(string)
				if !ok || id == "" {
					return ToolResult{}, fmt.Errorf("'letterIds' must contain non-empty strings")
				}
				ids = append(ids, id)
			}
			opts, err := exportOptions(args)
			if err != nil {
				return ToolResult{}, err
			}
			pdf, err := exp.Bundle(ctx, ids, opts)
			if err != nil {
				return ToolResult{}, userError(err)
			}
			return pdfResult(args, fmt.Sprintf("%d letters", len(ids)), pdf)
		},
	}
}

func pdfInfoTool() Tool {
	return Tool{
		Name:        "pdf_info",
		Description: "Get information about a PDF file: version, metadata, page sizes and placed images.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Path to the PDF file",
				},
			},
			"required": []string{"path"},
		},
		Handler: handlePDFInfo,
	}
}

func handlePDFInfo(_ context.Context, args map[string]any) (ToolResult, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return ToolResult{}, err
	}

	doc, err := reader.Open(path)
	if err != nil {
		return ToolResult{}, fmt.Errorf("opening PDF: %w", err)
	}

	meta := doc.Info()
	info := map[string]any{
		"version":  doc.Version,
		"numPages": doc.NumPages(),
		"metadata": map[string]any{
			"title":        meta.Title,
			"author":       meta.Author,
			"subject":      meta.Subject,
			"keywords":     meta.Keywords,
			"creator":      meta.Creator,
			"producer":     meta.Producer,
			"creationDate": meta.CreationDate,
		},
	}

	pages := make([]map[string]any, 0, doc.NumPages())
	for n, page := range doc.Pages() {
		p := map[string]any{
			"page":   n,
			"width":  page.MediaBox.Width(),
			"height": page.MediaBox.Height(),
		}
		placements, err := page.Placements()
		if err != nil {
			p["error"] = err.Error()
		} else {
			images := make([]map[string]any, 0, len(placements))
			for _, pl := range placements {
				b := pl.Matrix.Bounds()
				images = append(images, map[string]any{
					"name":   pl.Name,
					"x":      b.LLX,
					"y":      b.LLY,
					"width":  b.Width(),
					"height": b.Height(),
				})
			}
			p["images"] = images
		}
		pages = append(pages, p)
	}
	info["pages"] = pages

	jsonBytes, _ := json.MarshalIndent(info, "", "  ")
	return ToolResult{
		Content: []ContentBlock{{Type: "text", Text: string(jsonBytes)}},
	}, nil
}

func pdfResult(args map[string]any, label string, pdf []byte) (ToolResult, error) {
	if outputPath, ok := args["outputPath"].(string); ok && outputPath != "" {
		if err := os.WriteFile(outputPath, pdf, 0o644); err != nil {
			return ToolResult{}, fmt.Errorf("writing file: %w", err)
		}
		return ToolResult{Content: []ContentBlock{{
			Type: "text",
			Text: fmt.Sprintf("PDF exported (%s): %s (%d bytes)", label, outputPath, len(pdf)),
		}}}, nil
	}
	return ToolResult{Content: []ContentBlock{{
		Type: "text",
		Text: fmt.Sprintf("PDF exported (%s, %d bytes). Base64 data:\n%s", label, len(pdf), base64.StdEncoding.EncodeToString(pdf)),
	}}}, nil
}

// userError keeps the Arabic user message next to the technical one.
func userError(err error) error {
	var ee *letterpdf.ExportError
	if errors.As(err, &ee) {
		return fmt.Errorf("%s (%s): %w", ee.UserMessage(), ee.Kind, err)
	}
	return err
}

func exportOptions(args map[string]any) (letterpdf.Options, error) {
	var opts letterpdf.Options
	if v, ok := args["scale"]; ok {
		f, ok := v.(float64)
		if !ok || f <= 0 || f > raster.MaxScale {
			return opts, fmt.Errorf("'scale' must be in (0, %g]", raster.MaxScale)
		}
		opts.Scale = f
	}
	if v, ok := args["quality"]; ok {
		f, ok := v.(float64)
		if !ok || f <= 0 || f > 1 {
			return opts, fmt.Errorf("'quality' must be in (0, 1]")
		}
		opts.Quality = f
	}
	if v, ok := args["template"]; ok {
		b, ok := v.(bool)
		if !ok {
			return opts, fmt.Errorf("'template' must be a boolean")
		}
		opts.NoTemplate = !b
	}
	return opts, nil
}

func requireString(args map[string]any, key string) (string, error) {
	s, ok := args[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("missing '%s' argument", key)
	}
	return s, nil
}

func numberArg(args map[string]any, key string, def float64) float64 {
	if f, ok := args[key].(float64); ok {
		return f
	}
	return def
}
