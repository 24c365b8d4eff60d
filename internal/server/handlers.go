package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/auth"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/genai"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/imaging"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/service"
)

type generateResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Image     string `json:"image"`
	Prompt    string `json:"prompt"`
	QuotaLeft int    `json:"quotaLeft"`
}

type quotaExceededResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerateThumbnail(w http.ResponseWriter, r *http.Request) {
	maxBody := int64(s.cfg.MaxUploadFiles)*s.cfg.MaxUploadFileBytes + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	prompt := r.FormValue("prompt")

	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["images"]
	}
	if len(headers) > s.cfg.MaxUploadFiles {
		s.writeError(w, http.StatusBadRequest, "too many files")
		return
	}
	// Validate the whole batch before reading a single byte: one bad part
	// rejects the request with nothing processed or persisted.
	for _, header := range headers {
		if !imaging.AllowedTypes[header.Header.Get("Content-Type")] {
			s.writeError(w, http.StatusBadRequest, "Only JPEG, PNG, WEBP, and JPG files are allowed")
			return
		}
		if header.Size > s.cfg.MaxUploadFileBytes {
			s.writeError(w, http.StatusBadRequest, "file too large")
			return
		}
	}

	uploads := make([]imaging.Upload, 0, len(headers))
	for _, header := range headers {
		data, err := readPart(header, s.cfg.MaxUploadFileBytes)
		if err != nil {
			s.log.Error("read upload", "file", header.Filename, "err", err)
			s.writeError(w, http.StatusBadRequest, "failed to read uploaded file")
			return
		}
		uploads = append(uploads, imaging.Upload{
			OriginalName: header.Filename,
			MimeType:     header.Header.Get("Content-Type"),
			Data:         data,
		})
	}

	subject := auth.FromContext(r.Context())
	result, err := s.generation.Generate(r.Context(), subject, prompt, uploads)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrQuotaExceeded):
			s.writeJSON(w, http.StatusForbidden, quotaExceededResponse{
				Success: false,
				Message: "Free quota exceeded",
				Error:   "User has no free quota left",
			})
		case errors.Is(err, genai.ErrNoImage):
			s.log.Error("generation returned no image", "subject", subject)
			s.writeError(w, http.StatusInternalServerError, "no image produced")
		default:
			s.log.Error("generate thumbnail", "subject", subject, "err", err)
			s.writeError(w, http.StatusInternalServerError, "Failed to generate thumbnails")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, generateResponse{
		Success:   true,
		Message:   result.Message,
		Image:     result.Image,
		Prompt:    result.Prompt,
		QuotaLeft: result.QuotaLeft,
	})
}

type purchaseView struct {
	ID        int64     `json:"id"`
	Amount    int       `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type profileResponse struct {
	UserID          string         `json:"userid"`
	FreeQuota       int            `json:"freeQuota"`
	PaidQuota       int            `json:"paidQuota"`
	IsActive        bool           `json:"isActive"`
	Generations     int            `json:"generations"`
	PurchaseHistory []purchaseView `json:"purchaseHistory"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	subject := auth.FromContext(r.Context())
	profile, err := s.users.Profile(r.Context(), subject)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profileView(profile))
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body error")
		return
	}
	if err := s.payments.HandleGatewayWebhook(r.Context(), body); err != nil {
		s.log.Error("payment webhook", "err", err)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleAdminGetUser(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	profile, err := s.users.Profile(r.Context(), subject)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profileView(profile))
}

type quotaGrantRequest struct {
	FreeDelta int `json:"free_delta"`
	PaidDelta int `json:"paid_delta"`
}

func (s *Server) handleAdminGrantQuota(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	var req quotaGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.FreeDelta == 0 && req.PaidDelta == 0 {
		s.writeError(w, http.StatusBadRequest, "free_delta or paid_delta required")
		return
	}
	user, err := s.users.GrantQuota(r.Context(), subject, req.FreeDelta, req.PaidDelta)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"userid":    user.Subject,
		"freeQuota": user.FreeQuota,
		"paidQuota": user.PaidQuota,
	})
}

func profileView(profile *service.Profile) profileResponse {
	purchases := make([]purchaseView, 0, len(profile.Purchases))
	for _, p := range profile.Purchases {
		purchases = append(purchases, purchaseView{
			ID:        p.ID,
			Amount:    p.Amount,
			Currency:  p.Currency,
			Status:    string(p.Status),
			CreatedAt: p.CreatedAt,
		})
	}
	return profileResponse{
		UserID:          profile.User.Subject,
		FreeQuota:       profile.User.FreeQuota,
		PaidQuota:       profile.User.PaidQuota,
		IsActive:        profile.User.IsActive,
		Generations:     profile.Generations,
		PurchaseHistory: purchases,
	}
}

func readPart(header *multipart.FileHeader, limit int64) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(io.LimitReader(file, limit+1))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("handler error", "err", err)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
