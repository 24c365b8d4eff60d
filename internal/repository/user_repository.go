package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindBySubject(ctx context.Context, subject string) (*models.User, error) {
	const query = `
SELECT id, subject, free_quota, paid_quota, is_active, created_at, updated_at
FROM users WHERE subject = ?`
	row := r.db.QueryRowContext(ctx, query, subject)
	var u models.User
	var active int
	if err := row.Scan(&u.ID, &u.Subject, &u.FreeQuota, &u.PaidQuota, &active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.IsActive = active != 0
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	const query = `
INSERT INTO users (subject, free_quota, paid_quota, is_active)
VALUES (?, ?, ?, ?)`
	active := 0
	if user.IsActive {
		active = 1
	}
	res, err := r.db.ExecContext(ctx, query, user.Subject, user.FreeQuota, user.PaidQuota, active)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	user.ID = id
	return user, nil
}

// Ensure looks the user up by auth subject and creates it with the default
// quota when absent. The second return value reports whether a row was created.
func (r *UserRepository) Ensure(ctx context.Context, subject string, freeQuota int) (*models.User, bool, error) {
	user, err := r.FindBySubject(ctx, subject)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		return user, false, nil
	}
	newUser := &models.User{
		Subject:   subject,
		FreeQuota: freeQuota,
		IsActive:  true,
	}
	created, err := r.Create(ctx, newUser)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// ConsumeFreeQuota decrements free_quota by one in a single conditional
// update so concurrent requests cannot race it below zero. It returns the
// remaining quota and whether a unit was actually consumed.
func (r *UserRepository) ConsumeFreeQuota(ctx context.Context, userID int64) (int, bool, error) {
	const query = `
UPDATE users SET free_quota = free_quota - 1, updated_at = NOW()
WHERE id = ? AND free_quota > 0`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, false, fmt.Errorf("consume free quota: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("free quota rows affected: %w", err)
	}

	const remainingQuery = `SELECT free_quota FROM users WHERE id = ?`
	var remaining int
	if err := r.db.QueryRowContext(ctx, remainingQuery, userID).Scan(&remaining); err != nil {
		return 0, false, fmt.Errorf("read remaining quota: %w", err)
	}
	return remaining, affected > 0, nil
}

func (r *UserRepository) AddFreeQuota(ctx context.Context, userID int64, delta int) error {
	const query = `UPDATE users SET free_quota = GREATEST(free_quota + ?, 0), updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, delta, userID); err != nil {
		return fmt.Errorf("update free quota: %w", err)
	}
	return nil
}

func (r *UserRepository) AddPaidQuota(ctx context.Context, userID int64, delta int) error {
	const query = `UPDATE users SET paid_quota = GREATEST(paid_quota + ?, 0), updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, delta, userID); err != nil {
		return fmt.Errorf("update paid quota: %w", err)
	}
	return nil
}

func (r *UserRepository) SetActive(ctx context.Context, userID int64, active bool) error {
	value := 0
	if active {
		value = 1
	}
	const query = `UPDATE users SET is_active = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, value, userID); err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return nil
}
