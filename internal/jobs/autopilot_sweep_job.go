package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/postpilot/autopilot/internal/models"
	"github.com/postpilot/autopilot/internal/queue"
	"github.com/postpilot/autopilot/internal/repository"
	"github.com/postpilot/autopilot/internal/service"
)

// AutoPilotSweepJob is the periodic trigger for the pipeline: it pushes
// pending media into analysis, runs grouping, and enqueues generation for
// whatever became ready, one tenant at a time.
type AutoPilotSweepJob struct {
	po     repository.PolicyRepository
	mi     repository.MediaItemRepository
	mg     repository.MediaGroupRepository
	pr     repository.PostRepository
	gr     service.GroupingService
	client *asynq.Client
	now    func() time.Time
}

func NewAutoPilotSweepJob(
	po repository.PolicyRepository,
	mi repository.MediaItemRepository,
	mg repository.MediaGroupRepository,
	pr repository.PostRepository,
	gr service.GroupingService,
	client *asynq.Client) *AutoPilotSweepJob {
	return &AutoPilotSweepJob{
		po:     po,
		mi:     mi,
		mg:     mg,
		pr:     pr,
		gr:     gr,
		client: client,
		now:    time.Now,
	}
}

func (c *AutoPilotSweepJob) Sweep() {
	ctx := context.Background()

	policies, err := c.po.ListEnabled(ctx)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, policy := range policies {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(policy *models.AutoPilotPolicy) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.sweepTenant(ctx, policy); err != nil {
				slog.Info(fmt.Sprintf("sweep failed for user %d: %v", policy.UserID, err))
			}
		}(policy)
	}

	wg.Wait()
}

func (c *AutoPilotSweepJob) sweepTenant(ctx context.Context, policy *models.AutoPilotPolicy) error {
	userID := policy.UserID

	// Push newly discovered media into analysis. The conditional state
	// transition in the worker makes double-enqueueing harmless.
	pending, err := c.mi.ListByStatus(ctx, userID, models.MediaStatusPending)
	if err != nil {
		return err
	}
	for _, item := range pending {
		if err := queue.EnqueueAnalyze(c.client, queue.AnalyzeMediaPayload{MediaItemID: item.ID}); err != nil {
			slog.Info(err.Error())
		}
	}

	if _, err := c.gr.RunGrouping(ctx, userID, policy.Location()); err != nil {
		return err
	}
	if _, err := c.gr.PromoteReady(ctx, userID); err != nil {
		return err
	}

	demand := c.weeklyDemand(ctx, policy)
	if demand <= 0 {
		return nil
	}

	ready, err := c.mg.ListByStatus(ctx, userID, models.GroupStatusReadyForPost)
	if err != nil {
		return err
	}
	for _, group := range ready {
		if demand <= 0 {
			break
		}
		if err := queue.EnqueueGenerate(c.client, queue.GeneratePostPayload{
			UserID:  userID,
			GroupID: group.ID,
		}, 0); err != nil {
			slog.Info(err.Error())
			continue
		}
		demand--
	}

	// Leftover singles fill whatever demand the groups did not cover.
	singles, err := c.mi.ListUngroupedAnalyzed(ctx, userID)
	if err != nil {
		return err
	}
	for _, item := range singles {
		if demand <= 0 {
			break
		}
		if err := queue.EnqueueGenerate(c.client, queue.GeneratePostPayload{
			UserID:      userID,
			MediaItemID: item.ID,
		}, 0); err != nil {
			slog.Info(err.Error())
			continue
		}
		demand--
	}

	return nil
}

// weeklyDemand is how many more posts this tenant wants over the upcoming
// week, given its target and what is already scheduled in that window.
func (c *AutoPilotSweepJob) weeklyDemand(ctx context.Context, policy *models.AutoPilotPolicy) int {
	if policy.PostsPerWeek <= 0 {
		return 0
	}

	now := c.now()
	scheduled, err := c.pr.CountScheduledBetween(ctx, policy.UserID, now, now.AddDate(0, 0, 7))
	if err != nil {
		slog.Info(err.Error())
		return 0
	}

	return policy.PostsPerWeek - scheduled
}
