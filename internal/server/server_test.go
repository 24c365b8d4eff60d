package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/auth"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/config"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/genai"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/imaging"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/models"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/service"
)

const testSecret = "test-secret"

type stubGenerator struct {
	calls       int
	lastSubject string
	lastPrompt  string
	lastUploads []imaging.Upload
	result      *service.Result
	err         error
}

func (g *stubGenerator) Generate(_ context.Context, subject, prompt string, uploads []imaging.Upload) (*service.Result, error) {
	g.calls++
	g.lastSubject = subject
	g.lastPrompt = prompt
	g.lastUploads = uploads
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

type stubProfiles struct {
	profile   *service.Profile
	granted   *models.User
	lastFree  int
	lastPaid  int
	err       error
}

func (p *stubProfiles) Profile(_ context.Context, subject string) (*service.Profile, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.profile, nil
}

func (p *stubProfiles) GrantQuota(_ context.Context, subject string, freeDelta, paidDelta int) (*models.User, error) {
	p.lastFree = freeDelta
	p.lastPaid = paidDelta
	if p.err != nil {
		return nil, p.err
	}
	return p.granted, nil
}

type stubWebhook struct {
	payload []byte
	err     error
}

func (h *stubWebhook) HandleGatewayWebhook(_ context.Context, payload []byte) error {
	h.payload = payload
	return h.err
}

func testServer(gen ThumbnailGenerator, users UserProfiles, payments PaymentWebhook) *Server {
	cfg := config.Config{
		AuthJWTSecret:      testSecret,
		AdminUsername:      "admin",
		AdminPassword:      "secret",
		MaxUploadFiles:     5,
		MaxUploadFileBytes: 10 << 20,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, log, auth.NewVerifier(testSecret), gen, users, payments)
}

func bearerToken(t *testing.T) string {
	t.Helper()
	token, err := auth.NewToken(testSecret, "user_1", time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

// multipartBody builds a generate request body with one part per file,
// each carrying an explicit Content-Type.
func multipartBody(t *testing.T, prompt string, files []struct{ name, mime string }) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if prompt != "" {
		require.NoError(t, w.WriteField("prompt", prompt))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, f.name))
		h.Set("Content-Type", f.mime)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte("file-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestGenerateRequiresToken(t *testing.T) {
	gen := &stubGenerator{}
	srv := testServer(gen, &stubProfiles{}, &stubWebhook{})

	body, contentType := multipartBody(t, "p", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate/thumbnail", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
	assert.Equal(t, 0, gen.calls)
}

func TestGenerateSuccess(t *testing.T) {
	gen := &stubGenerator{result: &service.Result{
		Message:   "Thumbnail generated",
		Image:     "data:image/png;base64,aGVsbG8=",
		Prompt:    "enhanced",
		QuotaLeft: 1,
	}}
	srv := testServer(gen, &stubProfiles{}, &stubWebhook{})

	body, contentType := multipartBody(t, "my video", []struct{ name, mime string }{
		{"a.png", "image/png"},
		{"b.jpg", "image/jpeg"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate/thumbnail", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearerToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success   bool   `json:"success"`
		Message   string `json:"message"`
		Image     string `json:"image"`
		Prompt    string `json:"prompt"`
		QuotaLeft int    `json:"quotaLeft"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Thumbnail generated", resp.Message)
	assert.Equal(t, "data:image/png;base64,aGVsbG8=", resp.Image)
	assert.Equal(t, "enhanced", resp.Prompt)
	assert.Equal(t, 1, resp.QuotaLeft)

	assert.Equal(t, "user_1", gen.lastSubject)
	assert.Equal(t, "my video", gen.lastPrompt)
	require.Len(t, gen.lastUploads, 2)
	assert.Equal(t, "a.png", gen.lastUploads[0].OriginalName)
	assert.Equal(t, "image/jpeg", gen.lastUploads[1].MimeType)
	assert.Equal(t, []byte("file-bytes"), gen.lastUploads[0].Data)
}

func TestGenerateQuotaExceeded(t *testing.T) {
	gen := &stubGenerator{err: service.ErrQuotaExceeded}
	srv := testServer(gen, &stubProfiles{}, &stubWebhook{})

	body, contentType := multipartBody(t, "p", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate/thumbnail", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearerToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Free quota exceeded","error":"User has no free quota left"}`, rec.Body.String())
}

func TestGenerateNoImage(t *testing.T) {
	gen := &stubGenerator{err: fmt.Errorf("invoke model: %w", genai.ErrNoImage)}
	srv := testServer(gen, &stubProfiles{}, &stubWebhook{})

	body, contentType := multipartBody(t, "p", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate/thumbnail", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearerToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"no image produced"}`, rec.Body.String())
}

func TestGeneratePipelineError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("boom")}
	srv := testServer(gen, &stubProfiles{}, &stubWebhook{})

	body, contentType := multipartBody(t, "p", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate/thumbnail", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearerToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to generate thumbnails"}`, rec.Body.String())
}

func TestGenerateRejectsDisallowedType(t *testing.T) {
	gen := &stubGenerator{}
	srv := testServer(gen, &stubProfiles{}, &stubWebhook{})

	body, contentType := multipartBody(t, "p", []struct{ name, mime string }{
		{"a.png", "image/png"},
		{"clip.gif", "image/gif"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate/thumbnail", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearerToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Only JPEG, PNG, WEBP, and JPG files are allowed"}`, rec.Body.String())
	assert.Equal(t, 0, gen.calls, "one bad file must reject the whole batch")
}

func TestGenerateRejectsTooManyFiles(t *testing.T) {
	gen := &stubGenerator{}
	srv := testServer(gen, &stubProfiles{}, &stubWebhook{})

	files := make([]struct{ name, mime string }, 6)
	for i := range files {
		files[i] = struct{ name, mime string }{fmt.Sprintf("f%d.png", i), "image/png"}
	}
	body, contentType := multipartBody(t, "p", files)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate/thumbnail", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", bearerToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"too many files"}`, rec.Body.String())
	assert.Equal(t, 0, gen.calls)
}

func TestGenerateNotMultipart(t *testing.T) {
	srv := testServer(&stubGenerator{}, &stubProfiles{}, &stubWebhook{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/generate/thumbnail", bytes.NewBufferString(`{"prompt":"p"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearerToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid multipart form"}`, rec.Body.String())
}

func TestMe(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	profiles := &stubProfiles{profile: &service.Profile{
		User:        models.User{Subject: "user_1", FreeQuota: 1, PaidQuota: 10, IsActive: true},
		Generations: 3,
		Purchases: []models.Purchase{{
			ID: 7, Amount: 29900, Currency: "RUB",
			Status: models.PurchaseStatusCompleted, CreatedAt: now,
		}},
	}}
	srv := testServer(&stubGenerator{}, profiles, &stubWebhook{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/me", nil)
	req.Header.Set("Authorization", bearerToken(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		UserID      string `json:"userid"`
		FreeQuota   int    `json:"freeQuota"`
		PaidQuota   int    `json:"paidQuota"`
		IsActive    bool   `json:"isActive"`
		Generations int    `json:"generations"`
		Purchases   []struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		} `json:"purchaseHistory"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user_1", resp.UserID)
	assert.Equal(t, 1, resp.FreeQuota)
	assert.Equal(t, 10, resp.PaidQuota)
	assert.True(t, resp.IsActive)
	assert.Equal(t, 3, resp.Generations)
	require.Len(t, resp.Purchases, 1)
	assert.Equal(t, "completed", resp.Purchases[0].Status)
}

func TestPaymentWebhook(t *testing.T) {
	hook := &stubWebhook{}
	srv := testServer(&stubGenerator{}, &stubProfiles{}, hook)

	payload := `{"event":"payment.succeeded","object":{"id":"ch_1"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/payment", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.JSONEq(t, payload, string(hook.payload))
}

func TestPaymentWebhookError(t *testing.T) {
	hook := &stubWebhook{err: errors.New("webhook missing payment id")}
	srv := testServer(&stubGenerator{}, &stubProfiles{}, hook)

	req := httptest.NewRequest(http.MethodPost, "/webhook/payment", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRequiresBasicAuth(t *testing.T) {
	srv := testServer(&stubGenerator{}, &stubProfiles{}, &stubWebhook{})

	req := httptest.NewRequest(http.MethodGet, "/admin/users/user_1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/users/user_1", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminGetUser(t *testing.T) {
	profiles := &stubProfiles{profile: &service.Profile{
		User: models.User{Subject: "user_1", FreeQuota: 2, IsActive: true},
	}}
	srv := testServer(&stubGenerator{}, profiles, &stubWebhook{})

	req := httptest.NewRequest(http.MethodGet, "/admin/users/user_1", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"userid":"user_1"`)
}

func TestAdminGrantQuota(t *testing.T) {
	profiles := &stubProfiles{granted: &models.User{Subject: "user_1", FreeQuota: 5, PaidQuota: 10}}
	srv := testServer(&stubGenerator{}, profiles, &stubWebhook{})

	req := httptest.NewRequest(http.MethodPost, "/admin/users/user_1/quota", bytes.NewBufferString(`{"free_delta":3}`))
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, profiles.lastFree)
	assert.Equal(t, 0, profiles.lastPaid)
	assert.JSONEq(t, `{"userid":"user_1","freeQuota":5,"paidQuota":10}`, rec.Body.String())
}

func TestAdminGrantQuotaRequiresDelta(t *testing.T) {
	srv := testServer(&stubGenerator{}, &stubProfiles{}, &stubWebhook{})

	req := httptest.NewRequest(http.MethodPost, "/admin/users/user_1/quota", bytes.NewBufferString(`{}`))
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv := testServer(&stubGenerator{}, &stubProfiles{}, &stubWebhook{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
