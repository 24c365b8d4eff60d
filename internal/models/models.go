package models

import "time"

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
)

// User is keyed by the external auth subject and carries the generation quotas.
type User struct {
	ID        int64
	Subject   string
	FreeQuota int
	PaidQuota int
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Purchase records one payment attempt reported by the payment gateway.
type Purchase struct {
	ID               int64
	UserID           int64
	Amount           int
	Currency         string
	Status           PurchaseStatus
	Provider         string
	ProviderChargeID string
	GatewayResponse  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// GenerationLog is the audit record written after each successful generation.
type GenerationLog struct {
	ID         int64
	UserID     int64
	Model      string
	Prompt     string
	ImageCount int
	CreatedAt  time.Time
}
