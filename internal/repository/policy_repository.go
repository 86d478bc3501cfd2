package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpilot/autopilot/internal/models"
)

type PolicyRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*models.AutoPilotPolicy, bool, error)
	Upsert(ctx context.Context, policy *models.AutoPilotPolicy) error
	ListEnabled(ctx context.Context) ([]*models.AutoPilotPolicy, error)
}

type policyRepository struct {
	db *sql.DB
}

func NewPolicyRepository(db *sql.DB) PolicyRepository {
	return &policyRepository{db: db}
}

const policyColumns = `id, user_id, enabled, posts_per_week, confidence_threshold, preferred_slots, auto_schedule, images_per_post, timezone, brand_voice, created_at, updated_at`

func scanPolicy(row interface{ Scan(...any) error }) (*models.AutoPilotPolicy, error) {
	var p models.AutoPilotPolicy
	err := row.Scan(&p.ID, &p.UserID, &p.Enabled, &p.PostsPerWeek, &p.ConfidenceThreshold,
		&p.PreferredSlots, &p.AutoSchedule, &p.ImagesPerPost, &p.Timezone, &p.BrandVoice,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *policyRepository) GetByUserID(ctx context.Context, userID int64) (*models.AutoPilotPolicy, bool, error) {
	query := `SELECT ` + policyColumns + ` FROM autopilot_policies WHERE user_id = $1`
	policy, err := scanPolicy(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}
	return policy, true, nil
}

func (r *policyRepository) Upsert(ctx context.Context, policy *models.AutoPilotPolicy) error {
	query := `
		INSERT INTO autopilot_policies (user_id, enabled, posts_per_week, confidence_threshold, preferred_slots, auto_schedule, images_per_post, timezone, brand_voice)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE
		SET enabled = EXCLUDED.enabled,
			posts_per_week = EXCLUDED.posts_per_week,
			confidence_threshold = EXCLUDED.confidence_threshold,
			preferred_slots = EXCLUDED.preferred_slots,
			auto_schedule = EXCLUDED.auto_schedule,
			images_per_post = EXCLUDED.images_per_post,
			timezone = EXCLUDED.timezone,
			brand_voice = EXCLUDED.brand_voice,
			updated_at = $10
	`
	_, err := r.db.ExecContext(ctx, query, policy.UserID, policy.Enabled, policy.PostsPerWeek,
		policy.ConfidenceThreshold, policy.PreferredSlots, policy.AutoSchedule,
		policy.ImagesPerPost, policy.Timezone, policy.BrandVoice, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *policyRepository) ListEnabled(ctx context.Context) ([]*models.AutoPilotPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM autopilot_policies WHERE enabled = true ORDER BY user_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var policies []*models.AutoPilotPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		policies = append(policies, policy)
	}
	return policies, rows.Err()
}
