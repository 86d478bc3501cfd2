package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/postpilot/autopilot/internal/models"
)

// ErrMemberClaimed means a concurrent grouping pass claimed one of the
// candidate's members first. The whole candidate is stale, not just the item.
var ErrMemberClaimed = errors.New("media item already claimed by another group")

type MediaGroupRepository interface {
	Create(ctx context.Context, group *models.MediaGroup, memberIDs []int64) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.MediaGroup, error)
	ListByStatus(ctx context.Context, userID int64, status models.MediaGroupStatus) ([]*models.MediaGroup, error)
	TransitionStatus(ctx context.Context, id int64, from, to models.MediaGroupStatus) (bool, error)
	SetPost(ctx context.Context, id, postID int64) error
	MemberCount(ctx context.Context, id int64) (int, error)
}

type mediaGroupRepository struct {
	db *sql.DB
	mi MediaItemRepository
}

func NewMediaGroupRepository(db *sql.DB, mi MediaItemRepository) MediaGroupRepository {
	return &mediaGroupRepository{db: db, mi: mi}
}

const mediaGroupColumns = `id, user_id, rule, rationale, member_count, confidence, common_topics, theme, story_arc, status, post_id, created_at, updated_at`

func scanMediaGroup(row interface{ Scan(...any) error }) (*models.MediaGroup, error) {
	var g models.MediaGroup
	err := row.Scan(&g.ID, &g.UserID, &g.Rule, &g.Rationale, &g.MemberCount, &g.Confidence,
		&g.CommonTopics, &g.Theme, &g.StoryArc, &g.Status, &g.PostID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// Create inserts the group and claims its members in one transaction. A member
// already claimed elsewhere rolls the whole group back with ErrMemberClaimed,
// so member_count can never disagree with the items pointing at the group.
func (r *mediaGroupRepository) Create(ctx context.Context, group *models.MediaGroup, memberIDs []int64) (int64, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	query := `
		INSERT INTO media_groups (user_id, rule, rationale, member_count, confidence, common_topics, theme, story_arc, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	var id int64
	err = tx.QueryRowContext(ctx, query, group.UserID, group.Rule, group.Rationale,
		len(memberIDs), group.Confidence, group.CommonTopics, group.Theme,
		group.StoryArc, group.Status).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	for _, itemID := range memberIDs {
		var claimed bool
		claimed, err = r.mi.AssignGroup(ctx, tx, itemID, id)
		if err != nil {
			return 0, err
		}
		if !claimed {
			err = fmt.Errorf("group claim on item %d: %w", itemID, ErrMemberClaimed)
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *mediaGroupRepository) GetByID(ctx context.Context, id int64) (*models.MediaGroup, error) {
	query := `SELECT ` + mediaGroupColumns + ` FROM media_groups WHERE id = $1`
	group, err := scanMediaGroup(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return group, nil
}

func (r *mediaGroupRepository) ListByStatus(ctx context.Context, userID int64, status models.MediaGroupStatus) ([]*models.MediaGroup, error) {
	query := `SELECT ` + mediaGroupColumns + ` FROM media_groups WHERE user_id = $1 AND status = $2 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, userID, status)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var groups []*models.MediaGroup
	for rows.Next() {
		group, err := scanMediaGroup(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

func (r *mediaGroupRepository) TransitionStatus(ctx context.Context, id int64, from, to models.MediaGroupStatus) (bool, error) {
	query := `
		UPDATE media_groups
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

func (r *mediaGroupRepository) SetPost(ctx context.Context, id, postID int64) error {
	query := `
		UPDATE media_groups
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

func (r *mediaGroupRepository) MemberCount(ctx context.Context, id int64) (int, error) {
	query := `SELECT COUNT(*) FROM media_items WHERE group_id = $1`

	var count int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&count)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return count, nil
}
