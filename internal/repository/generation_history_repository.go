package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/postpilot/autopilot/internal/models"
)

type GenerationHistoryRepository interface {
	Create(ctx context.Context, history *models.GenerationHistory) (int64, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.GenerationHistory, error)
}

type generationHistoryRepository struct {
	db *sql.DB
}

func NewGenerationHistoryRepository(db *sql.DB) GenerationHistoryRepository {
	return &generationHistoryRepository{db: db}
}

func (r *generationHistoryRepository) Create(ctx context.Context, history *models.GenerationHistory) (int64, error) {
	query := `
		INSERT INTO generation_history (user_id, run_id, source_item_id, source_group_id, post_id, error_message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, history.UserID, history.RunID,
		history.SourceItemID, history.SourceGroupID, history.PostID, history.ErrorMessage).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *generationHistoryRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.GenerationHistory, error) {
	query := `SELECT id, user_id, run_id, source_item_id, source_group_id, post_id, error_message, created_at FROM generation_history WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var histories []*models.GenerationHistory
	for rows.Next() {
		var h models.GenerationHistory
		err := rows.Scan(&h.ID, &h.UserID, &h.RunID, &h.SourceItemID, &h.SourceGroupID,
			&h.PostID, &h.ErrorMessage, &h.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		histories = append(histories, &h)
	}
	return histories, rows.Err()
}
