package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/postpilot/autopilot/internal/models"
	"github.com/postpilot/autopilot/internal/repository"
	"github.com/postpilot/autopilot/internal/transfer"
)

type PolicyService interface {
	GetPolicy(ctx context.Context, userID int64) (*models.AutoPilotPolicy, error)
	UpdatePolicy(ctx context.Context, userID int64, update transfer.PolicyUpdate) error
}

type policyService struct {
	po repository.PolicyRepository
}

func NewPolicyService(po repository.PolicyRepository) PolicyService {
	return &policyService{po: po}
}

// GetPolicy returns the stored policy, or a conservative default for tenants
// that never configured one.
func (s *policyService) GetPolicy(ctx context.Context, userID int64) (*models.AutoPilotPolicy, error) {
	policy, found, err := s.po.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.AutoPilotPolicy{
			UserID:              userID,
			Enabled:             false,
			PostsPerWeek:        3,
			ConfidenceThreshold: 0.8,
			AutoSchedule:        false,
			ImagesPerPost:       1,
			Timezone:            "UTC",
		}, nil
	}
	return policy, nil
}

func (s *policyService) UpdatePolicy(ctx context.Context, userID int64, update transfer.PolicyUpdate) error {
	if update.PostsPerWeek < 0 || update.PostsPerWeek > 50 {
		err := errors.New("posts per week must be between 0 and 50")
		slog.Info(err.Error())
		return err
	}
	if update.ConfidenceThreshold < 0 || update.ConfidenceThreshold > 1 {
		err := errors.New("confidence threshold must be between 0 and 1")
		slog.Info(err.Error())
		return err
	}
	if update.ImagesPerPost < 0 || update.ImagesPerPost > 3 {
		err := errors.New("images per post must be between 0 and 3")
		slog.Info(err.Error())
		return err
	}
	for _, slot := range update.PreferredSlots {
		if _, _, err := parseSlot(slot); err != nil {
			slog.Info(err.Error())
			return err
		}
	}
	if update.Timezone != "" {
		if _, err := time.LoadLocation(update.Timezone); err != nil {
			slog.Info(err.Error())
			return errors.New("unknown timezone")
		}
	}

	return s.po.Upsert(ctx, &models.AutoPilotPolicy{
		UserID:              userID,
		Enabled:             update.Enabled,
		PostsPerWeek:        update.PostsPerWeek,
		ConfidenceThreshold: update.ConfidenceThreshold,
		PreferredSlots:      pq.StringArray(update.PreferredSlots),
		AutoSchedule:        update.AutoSchedule,
		ImagesPerPost:       update.ImagesPerPost,
		Timezone:            update.Timezone,
		BrandVoice:          update.BrandVoice,
	})
}
