package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lvillar/letterpdf"
	"github.com/lvillar/letterpdf/raster"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var kindStatus = map[letterpdf.Kind]int{
	letterpdf.KindConcurrency:  http.StatusConflict,
	letterpdf.KindConnectivity: http.StatusServiceUnavailable,
	letterpdf.KindAssetLoad:    http.StatusBadGateway,
	letterpdf.KindTimeout:      http.StatusGatewayTimeout,
	letterpdf.KindCanceled:     499,
	letterpdf.KindEncoding:     http.StatusInternalServerError,
	letterpdf.KindRender:       http.StatusInternalServerError,
	letterpdf.KindNotFound:     http.StatusNotFound,
	letterpdf.KindStore:        http.StatusServiceUnavailable,
}

// errorStatus maps an exporter error to a status and response body.
func errorStatus(err error) (int, errorResponse) {
	var ee *letterpdf.ExportError
	switch {
	case errors.As(err, &ee):
		status, ok := kindStatus[ee.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		return status, errorResponse{Error: ee.UserMessage(), Code: string(ee.Kind)}
	case errors.Is(err, letterpdf.ErrNotFinalized):
		return http.StatusUnprocessableEntity, errorResponse{Error: "لا يمكن أرشفة خطاب غير نهائي", Code: "not_finalized"}
	case errors.Is(err, letterpdf.ErrNoArchive):
		return http.StatusNotImplemented, errorResponse{Error: "الأرشفة غير مفعلة", Code: "archive_disabled"}
	}
	return http.StatusInternalServerError, errorResponse{Error: "خطأ داخلي في الخادم", Code: "internal"}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorStatus(err)
	if status >= http.StatusInternalServerError && body.Code == "internal" {
		s.log.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
	}
	s.respondJSON(w, status, body)
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: "bad_request"})
}

// exportOptions reads scale, quality and template from the query string.
func exportOptions(r *http.Request) (letterpdf.Options, error) {
	var opts letterpdf.Options
	q := r.URL.Query()
	if v := q.Get("scale"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > raster.MaxScale {
			return opts, fmt.Errorf("invalid scale %q", v)
		}
		opts.Scale = f
	}
	if v := q.Get("quality"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 1 {
			return opts, fmt.Errorf("invalid quality %q", v)
		}
		opts.Quality = f
	}
	if v := q.Get("template"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid template %q", v)
		}
		opts.NoTemplate = !b
	}
	return opts, nil
}

func (s *Server) downloadPDF(w http.ResponseWriter, r *http.Request) {
	opts, err := exportOptions(r)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	res, err := s.exp.ExportByID(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writePDF(w, "attachment", res.Filename, res.PDF)
}

func (s *Server) previewPDF(w http.ResponseWriter, r *http.Request) {
	opts, err := exportOptions(r)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	pdf, err := s.exp.PreviewByID(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writePDF(w, "inline", "preview.pdf", pdf)
}

func (s *Server) previewPage(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 1 {
		s.badRequest(w, "invalid page")
		return
	}
	zoom := 1.0
	if v := r.URL.Query().Get("zoom"); v != "" {
		zoom, err = strconv.ParseFloat(v, 64)
		if err != nil {
			s.badRequest(w, "invalid zoom")
			return
		}
	}
	opts, err := exportOptions(r)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	png, err := s.exp.PreviewPNG(r.Context(), chi.URLParam(r, "id"), page, zoom, opts)
	if err != nil {
		// a page past the end is reported as not_found
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

func (s *Server) printHTML(w http.ResponseWriter, r *http.Request) {
	opts, err := exportOptions(r)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	doc, err := s.exp.PrintHTMLByID(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(doc)
}

func (s *Server) archive(w http.ResponseWriter, r *http.Request) {
	opts, err := exportOptions(r)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	key, err := s.exp.Archive(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"key": key})
}

type bundleRequest struct {
	LetterIDs []string `json:"letter_ids"`
	Filename  string   `json:"filename"`
}

func (s *Server) bundle(w http.ResponseWriter, r *http.Request) {
	var req bundleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	if len(req.LetterIDs) == 0 {
		s.badRequest(w, "letter_ids is required")
		return
	}
	opts, err := exportOptions(r)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	pdf, err := s.exp.Bundle(r.Context(), req.LetterIDs, opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	name := strings.TrimSpace(req.Filename)
	if name == "" {
		name = "خطابات.pdf"
	}
	writePDF(w, "attachment", name, pdf)
}

func writePDF(w http.ResponseWriter, disposition, filename string, pdf []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", ContentDisposition(disposition, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.Write(pdf)
}

// ContentDisposition builds a header value with an ASCII fallback name and
// an RFC 5987 filename* parameter carrying the UTF-8 name.
func ContentDisposition(disposition, filename string) string {
	fallback := asciiFallback(filename)
	if fallback == filename {
		return fmt.Sprintf("%s; filename=%q", disposition, filename)
	}
	return fmt.Sprintf("%s; filename=%q; filename*=UTF-8''%s", disposition, fallback, encodeExtValue(filename))
}

func asciiFallback(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '"' || r == '\\':
			b.WriteByte('_')
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), " -_")
	if out == "" || out == ".pdf" || strings.HasPrefix(out, ".") {
		return "letter.pdf"
	}
	return out
}

// encodeExtValue percent-encodes everything outside RFC 5987 attr-char.
func encodeExtValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
