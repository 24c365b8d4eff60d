package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/models"
)

type GenerationRepository struct {
	db *sql.DB
}

func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Log(ctx context.Context, userID int64, model, prompt string, imageCount int) error {
	const query = `
INSERT INTO generation_logs (user_id, model, prompt, image_count)
VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, userID, model, prompt, imageCount); err != nil {
		return fmt.Errorf("insert generation log: %w", err)
	}
	return nil
}

func (r *GenerationRepository) CountForUser(ctx context.Context, userID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM generation_logs WHERE user_id = ?`
	row := r.db.QueryRowContext(ctx, query, userID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count generations: %w", err)
	}
	return count, nil
}

func (r *GenerationRepository) RecentForUser(ctx context.Context, userID int64, limit int) ([]models.GenerationLog, error) {
	const query = `
SELECT id, user_id, model, prompt, image_count, created_at
FROM generation_logs WHERE user_id = ?
ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list generation logs: %w", err)
	}
	defer rows.Close()

	var logs []models.GenerationLog
	for rows.Next() {
		var l models.GenerationLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Model, &l.Prompt, &l.ImageCount, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
