package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/postpilot/autopilot/internal/models"
)

type MediaItemRepository interface {
	Create(ctx context.Context, item *models.MediaItem) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.MediaItem, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.MediaItem, error)
	ListByStatus(ctx context.Context, userID int64, status models.MediaItemStatus) ([]*models.MediaItem, error)
	ListUngroupedAnalyzed(ctx context.Context, userID int64) ([]*models.MediaItem, error)
	ListByGroupID(ctx context.Context, groupID int64) ([]*models.MediaItem, error)
	TransitionStatus(ctx context.Context, id int64, from, to models.MediaItemStatus) (bool, error)
	SetAnalysis(ctx context.Context, id int64, description string, topics []string) error
	SetFailure(ctx context.Context, id int64, reason string) error
	AssignGroup(ctx context.Context, tx *sql.Tx, itemID, groupID int64) (bool, error)
	SetPost(ctx context.Context, id, postID int64) error
}

type mediaItemRepository struct {
	db *sql.DB
}

func NewMediaItemRepository(db *sql.DB) MediaItemRepository {
	return &mediaItemRepository{db: db}
}

const mediaItemColumns = `id, user_id, source_uri, media_kind, file_size, status, description, topics, group_id, post_id, failure_reason, uploaded_at, created_at, updated_at`

func scanMediaItem(row interface{ Scan(...any) error }) (*models.MediaItem, error) {
	var item models.MediaItem
	err := row.Scan(&item.ID, &item.UserID, &item.SourceURI, &item.MediaKind, &item.FileSize,
		&item.Status, &item.Description, &item.Topics, &item.GroupID, &item.PostID,
		&item.FailureReason, &item.UploadedAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *mediaItemRepository) Create(ctx context.Context, item *models.MediaItem) (int64, error) {
	query := `
		INSERT INTO media_items (user_id, source_uri, media_kind, file_size, status, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, item.UserID, item.SourceURI, item.MediaKind,
		item.FileSize, item.Status, item.UploadedAt).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *mediaItemRepository) GetByID(ctx context.Context, id int64) (*models.MediaItem, error) {
	query := `SELECT ` + mediaItemColumns + ` FROM media_items WHERE id = $1`
	item, err := scanMediaItem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return item, nil
}

func (r *mediaItemRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.MediaItem, error) {
	query := `SELECT ` + mediaItemColumns + ` FROM media_items WHERE user_id = $1 ORDER BY uploaded_at, id`
	return r.list(ctx, query, userID)
}

func (r *mediaItemRepository) ListByStatus(ctx context.Context, userID int64, status models.MediaItemStatus) ([]*models.MediaItem, error) {
	query := `SELECT ` + mediaItemColumns + ` FROM media_items WHERE user_id = $1 AND status = $2 ORDER BY uploaded_at, id`
	return r.list(ctx, query, userID, status)
}

func (r *mediaItemRepository) ListUngroupedAnalyzed(ctx context.Context, userID int64) ([]*models.MediaItem, error) {
	query := `SELECT ` + mediaItemColumns + ` FROM media_items WHERE user_id = $1 AND status = $2 AND group_id IS NULL AND post_id IS NULL ORDER BY uploaded_at, id`
	return r.list(ctx, query, userID, models.MediaStatusAnalyzed)
}

func (r *mediaItemRepository) ListByGroupID(ctx context.Context, groupID int64) ([]*models.MediaItem, error) {
	query := `SELECT ` + mediaItemColumns + ` FROM media_items WHERE group_id = $1 ORDER BY uploaded_at, id`
	return r.list(ctx, query, groupID)
}

func (r *mediaItemRepository) list(ctx context.Context, query string, args ...any) ([]*models.MediaItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var items []*models.MediaItem
	for rows.Next() {
		item, err := scanMediaItem(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// TransitionStatus advances an item only when it is still in the expected
// state. The conditional update is what makes transitions mutually exclusive
// across workers: the first caller wins, everyone else sees false.
func (r *mediaItemRepository) TransitionStatus(ctx context.Context, id int64, from, to models.MediaItemStatus) (bool, error) {
	query := `
		UPDATE media_items
		SET status = $1,
			updated_at = $2
		WHERE id = $3 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, to, time.Now(), id, from)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return n == 1, nil
}

func (r *mediaItemRepository) SetAnalysis(ctx context.Context, id int64, description string, topics []string) error {
	query := `
		UPDATE media_items
		SET description = $1,
			topics = $2,
			updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, description, pq.StringArray(topics), time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *mediaItemRepository) SetFailure(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE media_items
		SET failure_reason = $1,
			updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, reason, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// AssignGroup claims an item for a group. Returns false when the item was
// already claimed, so the caller can abort instead of committing a group that
// lost some of its members to a concurrent pass.
func (r *mediaItemRepository) AssignGroup(ctx context.Context, tx *sql.Tx, itemID, groupID int64) (bool, error) {
	query := `
		UPDATE media_items
		SET group_id = $1,
			updated_at = $2
		WHERE id = $3 AND group_id IS NULL
	`

	var res sql.Result
	var err error
	if tx != nil {
		res, err = tx.ExecContext(ctx, query, groupID, time.Now(), itemID)
	} else {
		res, err = r.db.ExecContext(ctx, query, groupID, time.Now(), itemID)
	}
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return n == 1, nil
}

func (r *mediaItemRepository) SetPost(ctx context.Context, id, postID int64) error {
	query := `
		UPDATE media_items
		SET post_id = $1,
			updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, postID, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
