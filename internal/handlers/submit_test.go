package handlers_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subitocasaweb/lead-intake/internal/config"
	"github.com/subitocasaweb/lead-intake/internal/handlers"
	"github.com/subitocasaweb/lead-intake/internal/models"
)

// tinyPNG is a complete 1x1 transparent PNG.
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
	0x00, 0x00, 0x00, 0x0a, 0x49, 0x44, 0x41, 0x54,
	0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00, 0x05, 0x00, 0x01,
	0x0d, 0x0a, 0x2d, 0xb4,
	0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44,
	0xae, 0x42, 0x60, 0x82,
}

var tinyPDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type attachment struct {
	name    string
	content []byte
}

func newTestServer(t *testing.T) (*handlers.Server, *config.Config) {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.Server.RateLimiting.Enabled = false
	cfg.Storage.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Storage.UploadDir = filepath.Join(t.TempDir(), "uploads")
	cfg.Email.SMTP.Host = "" // notification disabled
	return handlers.NewServer(cfg), cfg
}

// openSession fetches the form state and returns the session cookie and
// CSRF token.
func openSession(t *testing.T, srv *handlers.Server) (*http.Cookie, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/form", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.FormResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.CSRFToken)

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "lead_session" {
			return cookie, resp.CSRFToken
		}
	}
	t.Fatal("session cookie not set")
	return nil, ""
}

func postForm(t *testing.T, srv *handlers.Server, cookie *http.Cookie, fields map[string]string, files []attachment) (*httptest.ResponseRecorder, models.FormResponse) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for key, value := range fields {
		require.NoError(t, w.WriteField(key, value))
	}
	for _, f := range files {
		part, err := w.CreateFormFile("allegati[]", f.name)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/form", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp models.FormResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func validFields(token string) map[string]string {
	return map[string]string{
		"nome":       "Mario",
		"email":      "mario@example.com",
		"operazione": "vendita",
		"tipologia":  "appartamento",
		"privacy":    "on",
		"csrf_token": token,
	}
}

func readRecords(t *testing.T, cfg *config.Config) [][]string {
	t.Helper()
	f, err := os.Open(cfg.RecordPath())
	require.NoError(t, err)
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func uploadCount(t *testing.T, cfg *config.Config) int {
	t.Helper()
	entries, err := os.ReadDir(cfg.Storage.UploadDir)
	require.NoError(t, err)
	return len(entries)
}

func TestGetFormState(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/form", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.FormResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.True(t, resp.Success)
	assert.Equal(t, "vendita", resp.Form.Operation)
	assert.Equal(t, "appartamento", resp.Form.PropertyType)
	assert.Empty(t, resp.Errors.Fields)
	assert.Empty(t, resp.Errors.General)
	assert.Regexp(t, "^[0-9a-f]{64}$", resp.CSRFToken)
}

func TestStorageFailureSurfacesAndRejects(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.Server.RateLimiting.Enabled = false
	cfg.Storage.UploadDir = filepath.Join(t.TempDir(), "uploads")
	cfg.Email.SMTP.Host = ""

	// A regular file where the data directory should be.
	blocked := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0644))
	cfg.Storage.DataDir = blocked

	srv := handlers.NewServer(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/form", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var state models.FormResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.False(t, state.Success)
	require.NotEmpty(t, state.Errors.General)
	assert.Contains(t, state.Errors.General[0], blocked)

	// An otherwise valid submission is turned away while storage is down.
	cookie, token := openSession(t, srv)
	post, resp := postForm(t, srv, cookie, validFields(token), nil)
	require.Equal(t, http.StatusServiceUnavailable, post.Code)
	assert.False(t, resp.Success)
	require.NotEmpty(t, resp.Errors.General)
	assert.Equal(t, 0, uploadCount(t, cfg))
}

func TestSubmitAccepted(t *testing.T) {
	srv, cfg := newTestServer(t)
	cookie, token := openSession(t, srv)

	rec, resp := postForm(t, srv, cookie, validFields(token), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Message, "Grazie")
	assert.Empty(t, resp.Uploads)
	assert.Empty(t, resp.Errors.Warnings)

	// Form comes back reset.
	assert.Empty(t, resp.Form.FirstName)
	assert.Equal(t, "vendita", resp.Form.Operation)
	assert.Equal(t, "appartamento", resp.Form.PropertyType)
	assert.False(t, resp.Form.Privacy)

	rows := readRecords(t, cfg)
	require.Len(t, rows, 2)
	require.Len(t, rows[1], len(rows[0]))
	assert.Equal(t, "Mario", rows[1][1])
	assert.Equal(t, "vendita", rows[1][10])
	assert.Equal(t, "appartamento", rows[1][11])
	assert.Equal(t, "", rows[1][16])
}

func TestSubmitWrongCSRF(t *testing.T) {
	srv, cfg := newTestServer(t)
	cookie, _ := openSession(t, srv)

	fields := validFields("0000000000000000000000000000000000000000000000000000000000000000")
	rec, resp := postForm(t, srv, cookie, fields, nil)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.False(t, resp.Success)
	require.NotEmpty(t, resp.Errors.General)
	assert.Contains(t, resp.Errors.General[0], "Token CSRF")

	// Submitted values echoed back unchanged.
	assert.Equal(t, "Mario", resp.Form.FirstName)
	assert.Equal(t, "mario@example.com", resp.Form.Email)

	_, err := os.Stat(cfg.RecordPath())
	assert.True(t, os.IsNotExist(err))
}

func TestSubmitMissingPrivacy(t *testing.T) {
	srv, cfg := newTestServer(t)
	cookie, token := openSession(t, srv)

	fields := validFields(token)
	delete(fields, "privacy")
	rec, resp := postForm(t, srv, cookie, fields, nil)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Len(t, resp.Errors.Fields["privacy"], 1)

	_, err := os.Stat(cfg.RecordPath())
	assert.True(t, os.IsNotExist(err))
}

func TestCSRFRotatesOnAccept(t *testing.T) {
	srv, cfg := newTestServer(t)
	cookie, token := openSession(t, srv)

	_, resp := postForm(t, srv, cookie, validFields(token), nil)
	require.True(t, resp.Success)
	require.NotEqual(t, token, resp.CSRFToken)

	// The previous token is no longer accepted.
	rec, retry := postForm(t, srv, cookie, validFields(token), nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, retry.Errors.General[0], "Token CSRF")
	assert.Len(t, readRecords(t, cfg), 2)

	// The rotated one is.
	_, again := postForm(t, srv, cookie, validFields(resp.CSRFToken), nil)
	assert.True(t, again.Success)
	assert.Len(t, readRecords(t, cfg), 3)
}

func TestSubmitWithAttachments(t *testing.T) {
	srv, cfg := newTestServer(t)
	cookie, token := openSession(t, srv)

	files := []attachment{
		{name: "planimetria.png", content: tinyPNG},
		{name: "visura.pdf", content: tinyPDF},
	}
	rec, resp := postForm(t, srv, cookie, validFields(token), files)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, resp.Success)
	require.Len(t, resp.Uploads, 2)
	assert.Equal(t, 2, uploadCount(t, cfg))

	rows := readRecords(t, cfg)
	require.Len(t, rows, 2)
	assert.Equal(t, resp.Uploads[0]+"|"+resp.Uploads[1], rows[1][16])

	// The stored file is publicly retrievable under its relative path.
	get := httptest.NewRequest(http.MethodGet, "/"+resp.Uploads[0], nil)
	getRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(getRec, get)
	require.Equal(t, http.StatusOK, getRec.Code)
	assert.Equal(t, tinyPNG, getRec.Body.Bytes())
}

func TestSubmitOversizedFileRejected(t *testing.T) {
	srv, cfg := newTestServer(t)
	cfg.Uploads.MaxFileSize = 10
	cookie, token := openSession(t, srv)

	files := []attachment{{name: "grande.png", content: tinyPNG}}
	rec, resp := postForm(t, srv, cookie, validFields(token), files)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Len(t, resp.Errors.Fields[models.AttachmentsField], 1)
	assert.Contains(t, resp.Errors.Fields[models.AttachmentsField][0], "grande.png")

	assert.Equal(t, 0, uploadCount(t, cfg))
	_, err := os.Stat(cfg.RecordPath())
	assert.True(t, os.IsNotExist(err))
}

func TestSubmitTooManyFiles(t *testing.T) {
	srv, cfg := newTestServer(t)
	cookie, token := openSession(t, srv)

	var files []attachment
	for i := 0; i < 6; i++ {
		files = append(files, attachment{name: "doc.pdf", content: tinyPDF})
	}
	rec, resp := postForm(t, srv, cookie, validFields(token), files)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NotEmpty(t, resp.Errors.General)
	assert.Contains(t, resp.Errors.General[0], "al massimo 5 file")

	// Nothing moved, even though each file was individually valid.
	assert.Equal(t, 0, uploadCount(t, cfg))
}

func TestRejectionIsIdempotent(t *testing.T) {
	srv, cfg := newTestServer(t)
	cookie, token := openSession(t, srv)

	fields := validFields(token)
	fields["email"] = "not-an-email"
	files := []attachment{{name: "planimetria.png", content: tinyPNG}}

	for i := 0; i < 3; i++ {
		rec, _ := postForm(t, srv, cookie, fields, files)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	}

	assert.Equal(t, 0, uploadCount(t, cfg))
	_, err := os.Stat(cfg.RecordPath())
	assert.True(t, os.IsNotExist(err))
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
