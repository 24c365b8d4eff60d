package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/models"
)

type PurchaseRepository struct {
	db *sql.DB
}

func NewPurchaseRepository(db *sql.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

func (r *PurchaseRepository) Create(ctx context.Context, purchase *models.Purchase) error {
	const query = `
INSERT INTO purchases (user_id, amount, currency, status, provider, provider_charge_id, gateway_response)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, purchase.UserID, purchase.Amount, purchase.Currency, purchase.Status, purchase.Provider, purchase.ProviderChargeID, purchase.GatewayResponse)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	purchase.ID = id
	return nil
}

func (r *PurchaseRepository) UpdateStatus(ctx context.Context, purchaseID int64, status models.PurchaseStatus, payload string) error {
	const query = `UPDATE purchases SET status = ?, gateway_response = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, status, payload, purchaseID); err != nil {
		return fmt.Errorf("update purchase status: %w", err)
	}
	return nil
}

func (r *PurchaseRepository) FindByProviderCharge(ctx context.Context, provider, chargeID string) (*models.Purchase, error) {
	const query = `
SELECT id, user_id, amount, currency, status, provider, COALESCE(provider_charge_id, ''), COALESCE(gateway_response, ''), created_at, COALESCE(updated_at, created_at) as updated_at
FROM purchases WHERE provider = ? AND provider_charge_id = ? LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, provider, chargeID)
	var p models.Purchase
	if err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Status, &p.Provider, &p.ProviderChargeID, &p.GatewayResponse, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan purchase: %w", err)
	}
	return &p, nil
}

func (r *PurchaseRepository) ListByUser(ctx context.Context, userID int64) ([]models.Purchase, error) {
	const query = `
SELECT id, user_id, amount, currency, status, provider, COALESCE(provider_charge_id, ''), COALESCE(gateway_response, ''), created_at, COALESCE(updated_at, created_at) as updated_at
FROM purchases WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []models.Purchase
	for rows.Next() {
		var p models.Purchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Status, &p.Provider, &p.ProviderChargeID, &p.GatewayResponse, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}
