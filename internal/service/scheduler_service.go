package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/postpilot/autopilot/internal/models"
	"github.com/postpilot/autopilot/internal/repository"
)

var ErrNoSlot = errors.New("no free slot within the look-ahead window")

// SchedulerService is the publication gate: it maps a draft post and the
// tenant policy to a final status, allocating a concrete time slot when the
// policy allows it.
type SchedulerService interface {
	Finalize(ctx context.Context, post *models.Post, policy *models.AutoPilotPolicy) (*models.Post, error)
}

type schedulerService struct {
	pr            repository.PostRepository
	lookaheadDays int
	now           func() time.Time
}

func NewSchedulerService(pr repository.PostRepository, lookaheadDays int) SchedulerService {
	if lookaheadDays <= 0 {
		lookaheadDays = 28
	}
	return &schedulerService{
		pr:            pr,
		lookaheadDays: lookaheadDays,
		now:           time.Now,
	}
}

type gateOutcome int

const (
	outcomeDraft gateOutcome = iota
	outcomePendingApproval
	outcomeSchedule
)

// decideOutcome is the gate's decision table, evaluated in order.
func decideOutcome(confidence float64, policy *models.AutoPilotPolicy) gateOutcome {
	if confidence < policy.ConfidenceThreshold {
		return outcomeDraft
	}
	if !policy.AutoSchedule || len(policy.PreferredSlots) == 0 {
		return outcomePendingApproval
	}
	return outcomeSchedule
}

// Finalize persists the draft with its gated status. An allocation failure
// downgrades to PENDING_APPROVAL instead of failing the pipeline run.
func (s *schedulerService) Finalize(ctx context.Context, post *models.Post, policy *models.AutoPilotPolicy) (*models.Post, error) {
	outcome := decideOutcome(post.Confidence, policy)

	switch outcome {
	case outcomeDraft:
		post.Status = models.PostStatusDraft
	default:
		post.Status = models.PostStatusPendingApproval
	}

	id, err := s.pr.Create(ctx, post)
	if err != nil {
		return nil, err
	}
	post.ID = id

	if outcome != outcomeSchedule {
		return post, nil
	}

	err = s.pr.WithTenantLock(ctx, post.UserID, func(ctx context.Context) error {
		slot, err := s.findSlot(ctx, post.UserID, policy)
		if err != nil {
			return err
		}
		if err := s.pr.MarkScheduled(ctx, post.ID, slot); err != nil {
			return err
		}
		post.Status = models.PostStatusScheduled
		post.ScheduledTime.Time = slot
		post.ScheduledTime.Valid = true
		return nil
	})
	if err != nil {
		slog.Info(fmt.Sprintf("slot allocation failed for post %d: %v", post.ID, err))
		post.Status = models.PostStatusPendingApproval
		post.ScheduledTime.Valid = false
	}

	return post, nil
}

// findSlot scans forward day by day in the tenant's timezone, trying each
// preferred slot in configured order. A candidate must be strictly in the
// future, unoccupied, and must not push the trailing 7-day scheduled count
// over the weekly target.
func (s *schedulerService) findSlot(ctx context.Context, userID int64, policy *models.AutoPilotPolicy) (time.Time, error) {
	loc := policy.Location()
	now := s.now().In(loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	for d := 0; d <= s.lookaheadDays; d++ {
		date := day.AddDate(0, 0, d)
		for _, slot := range policy.PreferredSlots {
			hour, minute, err := parseSlot(slot)
			if err != nil {
				slog.Info(fmt.Sprintf("skipping malformed slot %q: %v", slot, err))
				continue
			}

			candidate := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc)
			if !candidate.After(now) {
				continue
			}

			occupied, err := s.pr.ExistsScheduledAt(ctx, userID, candidate)
			if err != nil {
				return time.Time{}, err
			}
			if occupied {
				continue
			}

			if policy.PostsPerWeek > 0 {
				count, err := s.pr.CountScheduledBetween(ctx, userID, candidate.AddDate(0, 0, -7), candidate)
				if err != nil {
					return time.Time{}, err
				}
				if count >= policy.PostsPerWeek {
					continue
				}
			}

			return candidate, nil
		}
	}

	return time.Time{}, ErrNoSlot
}

func parseSlot(slot string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(slot), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", slot)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", slot)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", slot)
	}
	return hour, minute, nil
}
