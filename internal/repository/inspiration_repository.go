package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/postpilot/autopilot/internal/models"
)

type InspirationRepository interface {
	Create(ctx context.Context, inspiration *models.Inspiration) (int64, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.Inspiration, error)
}

type inspirationRepository struct {
	db *sql.DB
}

func NewInspirationRepository(db *sql.DB) InspirationRepository {
	return &inspirationRepository{db: db}
}

func (r *inspirationRepository) Create(ctx context.Context, inspiration *models.Inspiration) (int64, error) {
	query := `
		INSERT INTO inspirations (user_id, snippet, source)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, inspiration.UserID, inspiration.Snippet, inspiration.Source).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

// ListByUserID returns the pool in a stable order so round-robin selection
// stays deterministic.
func (r *inspirationRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.Inspiration, error) {
	query := `SELECT id, user_id, snippet, source, created_at FROM inspirations WHERE user_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var inspirations []*models.Inspiration
	for rows.Next() {
		var i models.Inspiration
		err := rows.Scan(&i.ID, &i.UserID, &i.Snippet, &i.Source, &i.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		inspirations = append(inspirations, &i)
	}
	return inspirations, rows.Err()
}
