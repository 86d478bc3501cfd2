package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/postpilot/autopilot/internal/models"
)

type PostRepository interface {
	Create(ctx context.Context, post *models.Post) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.Post, error)
	ListByStatus(ctx context.Context, userID int64, statuses ...string) ([]*models.Post, error)
	CountByUserID(ctx context.Context, userID int64) (int, error)
	UpdateStatus(ctx context.Context, status string, postID int64) error
	ScheduleStore
}

// ScheduleStore is the slice of post persistence the slot allocator needs.
// WithTenantLock serializes allocations for one tenant; the occupancy and
// capacity checks are only trustworthy inside it.
type ScheduleStore interface {
	WithTenantLock(ctx context.Context, userID int64, fn func(ctx context.Context) error) error
	ExistsScheduledAt(ctx context.Context, userID int64, at time.Time) (bool, error)
	CountScheduledBetween(ctx context.Context, userID int64, from, to time.Time) (int, error)
	MarkScheduled(ctx context.Context, postID int64, at time.Time) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, title, caption, hashtags, media_urls, confidence, status, scheduled_time, source_item_id, source_group_id, created_at, updated_at`

func scanPost(row interface{ Scan(...any) error }) (*models.Post, error) {
	var post models.Post
	err := row.Scan(&post.ID, &post.UserID, &post.Title, &post.Caption, &post.Hashtags,
		&post.MediaURLs, &post.Confidence, &post.Status, &post.ScheduledTime,
		&post.SourceItemID, &post.SourceGroupID, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (user_id, title, caption, hashtags, media_urls, confidence, status, scheduled_time, source_item_id, source_group_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, post.UserID, post.Title, post.Caption,
		post.Hashtags, post.MediaURLs, post.Confidence, post.Status,
		post.ScheduledTime, post.SourceItemID, post.SourceGroupID).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *postRepository) ListByStatus(ctx context.Context, userID int64, statuses ...string) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 AND status = ANY($2) ORDER BY created_at DESC`
	return r.list(ctx, query, userID, pq.Array(statuses))
}

func (r *postRepository) list(ctx context.Context, query string, args ...any) ([]*models.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) CountByUserID(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM posts WHERE user_id = $1`

	var count int
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&count)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return count, nil
}

func (r *postRepository) UpdateStatus(ctx context.Context, status string, postID int64) error {
	query := `
		UPDATE posts
		SET status = $1,
			updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, status, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

type txKey struct{}

// WithTenantLock runs fn inside a transaction holding a per-tenant advisory
// lock, so two concurrent allocations for the same tenant cannot both pass
// the occupancy check and claim the same slot.
func (r *postRepository) WithTenantLock(ctx context.Context, userID int64, fn func(ctx context.Context) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, userID); err != nil {
		slog.Info(err.Error())
		return err
	}

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// querier returns the transaction bound to ctx by WithTenantLock, or the
// plain connection pool.
func (r *postRepository) querier(ctx context.Context) interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
} {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return r.db
}

func (r *postRepository) ExistsScheduledAt(ctx context.Context, userID int64, at time.Time) (bool, error) {
	query := `SELECT 1 FROM posts WHERE user_id = $1 AND status = $2 AND scheduled_time = $3`

	var result int
	err := r.querier(ctx).QueryRowContext(ctx, query, userID, models.PostStatusScheduled, at).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}
	return result == 1, nil
}

func (r *postRepository) CountScheduledBetween(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM posts WHERE user_id = $1 AND status = $2 AND scheduled_time > $3 AND scheduled_time <= $4`

	var count int
	err := r.querier(ctx).QueryRowContext(ctx, query, userID, models.PostStatusScheduled, from, to).Scan(&count)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return count, nil
}

func (r *postRepository) MarkScheduled(ctx context.Context, postID int64, at time.Time) error {
	query := `
		UPDATE posts
		SET status = $1,
			scheduled_time = $2,
			updated_at = $3
		WHERE id = $4
	`
	_, err := r.querier(ctx).ExecContext(ctx, query, models.PostStatusScheduled, at, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
