package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvillar/letterpdf"
	"github.com/lvillar/letterpdf/config"
	"github.com/lvillar/letterpdf/model"
	"github.com/lvillar/letterpdf/store"
)

const testSecret = "test-secret"

func pngDataURL(t *testing.T, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func testLetter(t *testing.T, id string, status model.WorkflowStatus) *model.Letter {
	return &model.Letter{
		ID: id, Number: 12, Year: 2024, BranchCode: "JED",
		Content:         model.Content{Subject: "إشعار", Body: "<p>نص الخطاب</p>"},
		VerificationURL: "tok-" + id,
		WorkflowStatus:  status,
		Template:        &model.Template{ImageURL: pngDataURL(t, color.White)},
	}
}

type memArchive struct{}

func (memArchive) Archive(_ context.Context, name string, _ []byte) (string, error) {
	return "archive/" + name, nil
}

func newTestServer(t *testing.T, secret string) *httptest.Server {
	t.Helper()
	mem := store.NewMemory()
	mem.PutLetter(testLetter(t, "L1", model.StatusApproved))
	mem.PutLetter(testLetter(t, "L2", model.StatusApproved))
	mem.PutLetter(testLetter(t, "F1", model.StatusFinalized))

	exp := letterpdf.New(
		letterpdf.WithLetters(mem),
		letterpdf.WithSignatures(mem),
		letterpdf.WithOrigin("https://letters.example"),
		letterpdf.WithScratchDir(t.TempDir()),
		letterpdf.WithDefaults(1, 0.9),
		letterpdf.WithArchiver(memArchive{}),
	)
	srv := New(exp, config.ServerConfig{MaxRequestSize: 1 << 20}, secret, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func token(t *testing.T, secret, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
		"iat": time.Now().Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, testSecret)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	head, err := http.Head(ts.URL + "/healthz")
	require.NoError(t, err)
	head.Body.Close()
	assert.Equal(t, http.StatusOK, head.StatusCode)
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, testSecret)
	url := ts.URL + "/api/v1/letters/L1/print"

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + token(t, "other", "u1", time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"expired", "Bearer " + token(t, testSecret, "u1", time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"valid", "Bearer " + token(t, testSecret, "u1", time.Now().Add(time.Hour)), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, url, nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestDownloadPDF(t *testing.T) {
	ts := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/api/v1/letters/L1/pdf?scale=1&quality=0.8")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	cd := resp.Header.Get("Content-Disposition")
	assert.True(t, strings.HasPrefix(cd, "attachment;"), cd)
	assert.Contains(t, cd, "filename*=UTF-8''")

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body.Bytes(), []byte("%PDF-")))
}

func TestErrorResponses(t *testing.T) {
	ts := newTestServer(t, "")

	tests := []struct {
		name   string
		method string
		path   string
		want   int
		code   string
	}{
		{"unknown letter", http.MethodGet, "/api/v1/letters/nope/pdf", http.StatusNotFound, "not_found"},
		{"bad scale", http.MethodGet, "/api/v1/letters/L1/pdf?scale=x", http.StatusBadRequest, "bad_request"},
		{"scale too large", http.MethodGet, "/api/v1/letters/L1/pdf?scale=20", http.StatusBadRequest, "bad_request"},
		{"bad quality", http.MethodGet, "/api/v1/letters/L1/preview?quality=2", http.StatusBadRequest, "bad_request"},
		{"bad page", http.MethodGet, "/api/v1/letters/L1/preview/pages/0.png", http.StatusBadRequest, "bad_request"},
		{"page past end", http.MethodGet, "/api/v1/letters/L1/preview/pages/3.png", http.StatusNotFound, "not_found"},
		{"archive draft", http.MethodPost, "/api/v1/letters/L1/archive", http.StatusUnprocessableEntity, "not_finalized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.want, resp.StatusCode)
			var body errorResponse
			require.NoError(t, jsonDecode(resp, &body))
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestPreviewPage(t *testing.T) {
	ts := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/api/v1/letters/L1/preview/pages/1.png?zoom=0.5")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 298, img.Bounds().Dx())
}

func TestArchiveAndBundle(t *testing.T) {
	ts := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/api/v1/letters/F1/archive", "application/json", nil)
	require.NoError(t, err)
	var archived map[string]string
	require.NoError(t, jsonDecode(resp, &archived))
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "archive/خطاب-12-2024.pdf", archived["key"])

	resp, err = http.Post(ts.URL+"/api/v1/bundles", "application/json",
		strings.NewReader(`{"letter_ids":["L1","L2"],"filename":"batch.pdf"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="batch.pdf"`, resp.Header.Get("Content-Disposition"))

	bad, err := http.Post(ts.URL+"/api/v1/bundles", "application/json", strings.NewReader(`{"letter_ids":[]}`))
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestExportWebSocket(t *testing.T) {
	ts := newTestServer(t, testSecret)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/letters/L1/export/ws?access_token=" +
		token(t, testSecret, "u1", time.Now().Add(time.Hour))

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var progress []float64
	var final Event
	for {
		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == EventProgress {
			progress = append(progress, ev.Progress)
			continue
		}
		final = ev
		break
	}

	require.Equal(t, EventComplete, final.Type, "error event: %+v", final)
	assert.Equal(t, "خطاب-12-2024.pdf", final.Filename)
	pdf, err := base64.StdEncoding.DecodeString(final.PDF)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))

	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
	assert.Equal(t, 1.0, progress[len(progress)-1])
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		kind letterpdf.Kind
		want int
	}{
		{letterpdf.KindConcurrency, http.StatusConflict},
		{letterpdf.KindConnectivity, http.StatusServiceUnavailable},
		{letterpdf.KindAssetLoad, http.StatusBadGateway},
		{letterpdf.KindTimeout, http.StatusGatewayTimeout},
		{letterpdf.KindEncoding, http.StatusInternalServerError},
		{letterpdf.KindRender, http.StatusInternalServerError},
		{letterpdf.KindNotFound, http.StatusNotFound},
		{letterpdf.KindStore, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		err := fmt.Errorf("wrapped: %w", &letterpdf.ExportError{Kind: tt.kind, LetterID: "L", Op: "test"})
		status, body := errorStatus(err)
		assert.Equal(t, tt.want, status, tt.kind)
		assert.Equal(t, string(tt.kind), body.Code)
	}

	status, body := errorStatus(letterpdf.ErrNoArchive)
	assert.Equal(t, http.StatusNotImplemented, status)
	assert.Equal(t, "archive_disabled", body.Code)

	status, _ = errorStatus(fmt.Errorf("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{"RYD-7-2024.pdf", `attachment; filename="RYD-7-2024.pdf"`},
		{"خطاب-7-2024.pdf", `attachment; filename="7-2024.pdf"; filename*=UTF-8''%D8%AE%D8%B7%D8%A7%D8%A8-7-2024.pdf`},
		{"خطاب.pdf", `attachment; filename="letter.pdf"; filename*=UTF-8''%D8%AE%D8%B7%D8%A7%D8%A8.pdf`},
		{`a "b".pdf`, `attachment; filename="a _b_.pdf"; filename*=UTF-8''a%20%22b%22.pdf`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ContentDisposition("attachment", tt.name), tt.name)
	}
}

func jsonDecode(resp *http.Response, v any) error {
	return json.NewDecoder(resp.Body).Decode(v)
}
