package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/models"
)

// PurchaseStore persists purchase records created by the payment gateway.
type PurchaseStore interface {
	Create(ctx context.Context, purchase *models.Purchase) error
	UpdateStatus(ctx context.Context, purchaseID int64, status models.PurchaseStatus, payload string) error
	FindByProviderCharge(ctx context.Context, provider, chargeID string) (*models.Purchase, error)
}

// PurchaseUserStore is the slice of the user ledger the webhook needs.
type PurchaseUserStore interface {
	Ensure(ctx context.Context, subject string, freeQuota int) (*models.User, bool, error)
	AddPaidQuota(ctx context.Context, userID int64, delta int) error
}

// PurchaseService processes payment-gateway status callbacks. Checkout
// itself happens at the gateway; this service only records outcomes and
// credits paid quota on success.
type PurchaseService struct {
	provider         string
	credits          int
	freeQuotaDefault int
	log              *slog.Logger
	purchases        PurchaseStore
	users            PurchaseUserStore
}

func NewPurchaseService(provider string, credits, freeQuotaDefault int, log *slog.Logger, purchases PurchaseStore, users PurchaseUserStore) *PurchaseService {
	if provider == "" {
		provider = "gateway"
	}
	return &PurchaseService{
		provider:         provider,
		credits:          credits,
		freeQuotaDefault: freeQuotaDefault,
		log:              log,
		purchases:        purchases,
		users:            users,
	}
}

type gatewayEvent struct {
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Amount struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"amount"`
		Metadata struct {
			Subject string `json:"subject"`
		} `json:"metadata"`
	} `json:"object"`
}

// HandleGatewayWebhook records a payment status update and, on success,
// credits the purchased quota. Replays of completed purchases are no-ops.
func (s *PurchaseService) HandleGatewayWebhook(ctx context.Context, payload []byte) error {
	var evt gatewayEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("parse webhook: %w", err)
	}
	if evt.Object.ID == "" {
		return fmt.Errorf("webhook missing payment id")
	}

	purchase, err := s.purchases.FindByProviderCharge(ctx, s.provider, evt.Object.ID)
	if err != nil {
		return fmt.Errorf("find purchase: %w", err)
	}
	if purchase == nil {
		purchase, err = s.recordPurchase(ctx, evt, payload)
		if err != nil {
			return err
		}
	}
	if purchase.Status == models.PurchaseStatusCompleted {
		return nil // already processed
	}

	switch evt.Object.Status {
	case "succeeded":
		if err := s.users.AddPaidQuota(ctx, purchase.UserID, s.credits); err != nil {
			return fmt.Errorf("add paid quota: %w", err)
		}
		if err := s.purchases.UpdateStatus(ctx, purchase.ID, models.PurchaseStatusCompleted, string(payload)); err != nil {
			return fmt.Errorf("update purchase status: %w", err)
		}
		s.log.Info("purchase completed", "purchase_id", purchase.ID, "user_id", purchase.UserID, "credits", s.credits)
		return nil
	case "canceled", "failed":
		if err := s.purchases.UpdateStatus(ctx, purchase.ID, models.PurchaseStatusFailed, string(payload)); err != nil {
			return fmt.Errorf("update purchase status: %w", err)
		}
		return nil
	default:
		if err := s.purchases.UpdateStatus(ctx, purchase.ID, models.PurchaseStatusPending, string(payload)); err != nil {
			return fmt.Errorf("update purchase status: %w", err)
		}
		return nil
	}
}

// recordPurchase creates the record for a charge the gateway reports but we
// have never seen, attributing it via the metadata subject.
func (s *PurchaseService) recordPurchase(ctx context.Context, evt gatewayEvent, payload []byte) (*models.Purchase, error) {
	subject := strings.TrimSpace(evt.Object.Metadata.Subject)
	if subject == "" {
		return nil, fmt.Errorf("unknown charge %s with no metadata subject", evt.Object.ID)
	}
	user, _, err := s.users.Ensure(ctx, subject, s.freeQuotaDefault)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	purchase := &models.Purchase{
		UserID:           user.ID,
		Amount:           minorUnits(evt.Object.Amount.Value),
		Currency:         evt.Object.Amount.Currency,
		Status:           models.PurchaseStatusPending,
		Provider:         s.provider,
		ProviderChargeID: evt.Object.ID,
		GatewayResponse:  string(payload),
	}
	if err := s.purchases.Create(ctx, purchase); err != nil {
		return nil, fmt.Errorf("record purchase: %w", err)
	}
	return purchase, nil
}

// minorUnits converts a decimal amount string ("299.00") to integer minor units.
func minorUnits(value string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return int(math.Round(f * 100))
}
