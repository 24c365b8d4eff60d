package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/genai"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeUserStore struct {
	users  map[string]*models.User
	nextID int64
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]*models.User{}}
}

func (s *fakeUserStore) Ensure(_ context.Context, subject string, freeQuota int) (*models.User, bool, error) {
	if user, ok := s.users[subject]; ok {
		copied := *user
		return &copied, false, nil
	}
	s.nextID++
	user := &models.User{ID: s.nextID, Subject: subject, FreeQuota: freeQuota, IsActive: true}
	s.users[subject] = user
	copied := *user
	return &copied, true, nil
}

func (s *fakeUserStore) ConsumeFreeQuota(_ context.Context, userID int64) (int, bool, error) {
	user := s.byID(userID)
	if user == nil {
		return 0, false, fmt.Errorf("user %d not found", userID)
	}
	if user.FreeQuota < 1 {
		return user.FreeQuota, false, nil
	}
	user.FreeQuota--
	return user.FreeQuota, true, nil
}

func (s *fakeUserStore) AddPaidQuota(_ context.Context, userID int64, delta int) error {
	user := s.byID(userID)
	if user == nil {
		return fmt.Errorf("user %d not found", userID)
	}
	user.PaidQuota += delta
	return nil
}

func (s *fakeUserStore) byID(userID int64) *models.User {
	for _, user := range s.users {
		if user.ID == userID {
			return user
		}
	}
	return nil
}

type logEntry struct {
	userID     int64
	model      string
	prompt     string
	imageCount int
}

type fakeLogStore struct {
	entries []logEntry
}

func (s *fakeLogStore) Log(_ context.Context, userID int64, model, prompt string, imageCount int) error {
	s.entries = append(s.entries, logEntry{userID: userID, model: model, prompt: prompt, imageCount: imageCount})
	return nil
}

type fakeGenerator struct {
	calls   int
	lastReq genai.GenerateRequest
	img     *genai.GeneratedImage
	err     error
}

func (g *fakeGenerator) GenerateImage(_ context.Context, req genai.GenerateRequest) (*genai.GeneratedImage, error) {
	g.calls++
	g.lastReq = req
	if g.err != nil {
		return nil, g.err
	}
	return g.img, nil
}

func (g *fakeGenerator) Model() string {
	return "test-model"
}

type fakeEnhancer struct {
	calls      int
	lastPrompt string
	lastCount  int
	out        string
	err        error
}

func (e *fakeEnhancer) Enhance(_ context.Context, prompt string, imageCount int) (string, error) {
	e.calls++
	e.lastPrompt = prompt
	e.lastCount = imageCount
	if e.err != nil {
		return "", e.err
	}
	return e.out, nil
}

type savedArtifact struct {
	kind        string
	name        string
	contentType string
	size        int
}

type fakeArchiver struct {
	saved []savedArtifact
	err   error
}

func (a *fakeArchiver) Save(_ context.Context, kind, name string, data []byte, contentType string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.saved = append(a.saved, savedArtifact{kind: kind, name: name, contentType: contentType, size: len(data)})
	return "stored/" + name, nil
}

type fakePurchaseStore struct {
	purchases []*models.Purchase
	nextID    int64
	updates   []models.PurchaseStatus
}

func (s *fakePurchaseStore) Create(_ context.Context, purchase *models.Purchase) error {
	s.nextID++
	purchase.ID = s.nextID
	copied := *purchase
	s.purchases = append(s.purchases, &copied)
	return nil
}

func (s *fakePurchaseStore) UpdateStatus(_ context.Context, purchaseID int64, status models.PurchaseStatus, payload string) error {
	for _, p := range s.purchases {
		if p.ID == purchaseID {
			p.Status = status
			p.GatewayResponse = payload
			s.updates = append(s.updates, status)
			return nil
		}
	}
	return fmt.Errorf("purchase %d not found", purchaseID)
}

func (s *fakePurchaseStore) FindByProviderCharge(_ context.Context, provider, chargeID string) (*models.Purchase, error) {
	for _, p := range s.purchases {
		if p.Provider == provider && p.ProviderChargeID == chargeID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}
