package job

import (
	"context"
	"testing"
	"time"

	"github.com/postpilot/autopilot/internal/models"
)

type fakeScheduleCounter struct {
	scheduled []time.Time
}

func (f *fakeScheduleCounter) Create(ctx context.Context, post *models.Post) (int64, error) {
	return 0, nil
}

func (f *fakeScheduleCounter) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	return nil, nil
}

func (f *fakeScheduleCounter) ListByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	return nil, nil
}

func (f *fakeScheduleCounter) ListByStatus(ctx context.Context, userID int64, statuses ...string) ([]*models.Post, error) {
	return nil, nil
}

func (f *fakeScheduleCounter) CountByUserID(ctx context.Context, userID int64) (int, error) {
	return 0, nil
}

func (f *fakeScheduleCounter) UpdateStatus(ctx context.Context, status string, postID int64) error {
	return nil
}

func (f *fakeScheduleCounter) WithTenantLock(ctx context.Context, userID int64, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeScheduleCounter) ExistsScheduledAt(ctx context.Context, userID int64, at time.Time) (bool, error) {
	return false, nil
}

func (f *fakeScheduleCounter) CountScheduledBetween(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	count := 0
	for _, at := range f.scheduled {
		if at.After(from) && !at.After(to) {
			count++
		}
	}
	return count, nil
}

func (f *fakeScheduleCounter) MarkScheduled(ctx context.Context, postID int64, at time.Time) error {
	return nil
}

// Demand is measured against the upcoming week only: posts already published
// in the past must not eat into the target for new content.
func TestWeeklyDemandCountsUpcomingWeekOnly(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	pr := &fakeScheduleCounter{scheduled: []time.Time{
		now.AddDate(0, 0, -2), // already posted, outside the window
		now.AddDate(0, 0, 2),  // upcoming
		now.AddDate(0, 0, 9),  // beyond the week
	}}

	j := &AutoPilotSweepJob{pr: pr, now: func() time.Time { return now }}
	policy := &models.AutoPilotPolicy{UserID: 1, PostsPerWeek: 3}

	if got := j.weeklyDemand(context.Background(), policy); got != 2 {
		t.Errorf("weeklyDemand = %d, want 2", got)
	}
}

func TestWeeklyDemandZeroTarget(t *testing.T) {
	j := &AutoPilotSweepJob{pr: &fakeScheduleCounter{}, now: time.Now}

	if got := j.weeklyDemand(context.Background(), &models.AutoPilotPolicy{PostsPerWeek: 0}); got != 0 {
		t.Errorf("weeklyDemand = %d, want 0", got)
	}
}
