package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/postpilot/autopilot/internal/models"
)

func (q *Queue) HandleAnalyzeMediaTask(ctx context.Context, task *asynq.Task) error {
	var payload AnalyzeMediaPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	// Analysis failures are terminal for the item, not for the task: the item
	// carries the failure reason, so there is nothing to retry here.
	if err := q.in.Analyze(ctx, payload.MediaItemID); err != nil {
		log.Printf("Error analyzing media item %d: %v", payload.MediaItemID, err)
	}
	return nil
}

func (q *Queue) HandleGeneratePostTask(ctx context.Context, task *asynq.Task) error {
	var payload GeneratePostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	if err := q.GeneratePost(ctx, payload); err != nil {
		log.Printf("Error generating post for user %d: %v", payload.UserID, err)
	}
	return nil
}

// GeneratePost runs one generation unit of work to completion: orchestrate,
// gate, persist, record history.
func (q *Queue) GeneratePost(ctx context.Context, payload GeneratePostPayload) error {
	policy, err := q.pol.GetPolicy(ctx, payload.UserID)
	if err != nil {
		return err
	}
	applyOverrides(policy, payload)

	runID := uuid.NewString()

	var post *models.Post
	var genErr error

	switch {
	case payload.MediaItemID != 0:
		post, genErr = q.generateForItem(ctx, payload.MediaItemID, policy)
	case payload.GroupID != 0:
		post, genErr = q.generateForGroup(ctx, payload.GroupID, policy)
	case payload.Topic != "":
		post, genErr = q.generateForTopic(ctx, payload, policy)
	default:
		return fmt.Errorf("generation payload names no source")
	}

	history := &models.GenerationHistory{
		UserID: payload.UserID,
		RunID:  runID,
	}
	if payload.MediaItemID != 0 {
		history.SourceItemID = sql.NullInt64{Int64: payload.MediaItemID, Valid: true}
	}
	if payload.GroupID != 0 {
		history.SourceGroupID = sql.NullInt64{Int64: payload.GroupID, Valid: true}
	}
	if post != nil {
		history.PostID = sql.NullInt64{Int64: post.ID, Valid: true}
	}
	if genErr != nil {
		history.ErrorMessage = genErr.Error()
	}
	if _, err := q.gh.Create(ctx, history); err != nil {
		log.Printf("Error saving generation history (run %s): %v", runID, err)
	}

	return genErr
}

func (q *Queue) generateForItem(ctx context.Context, itemID int64, policy *models.AutoPilotPolicy) (*models.Post, error) {
	ok, err := q.in.BeginGeneration(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Another worker owns this item.
		return nil, nil
	}

	item, err := q.mi.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("media item %d not found", itemID)
	}

	post, genErr := q.gen.GenerateForItem(ctx, item, policy)
	if genErr == nil {
		post, genErr = q.sched.Finalize(ctx, post, policy)
	}

	var postID int64
	if post != nil {
		postID = post.ID
	}
	if err := q.in.CompleteGeneration(ctx, itemID, postID, genErr); err != nil {
		return post, err
	}
	return post, genErr
}

func (q *Queue) generateForGroup(ctx context.Context, groupID int64, policy *models.AutoPilotPolicy) (*models.Post, error) {
	ok, err := q.mg.TransitionStatus(ctx, groupID, models.GroupStatusReadyForPost, models.GroupStatusGenerating)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	group, err := q.mg.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, fmt.Errorf("media group %d not found", groupID)
	}

	members, err := q.mi.ListByGroupID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	post, genErr := q.gen.GenerateForGroup(ctx, group, members, policy)
	if genErr == nil {
		post, genErr = q.sched.Finalize(ctx, post, policy)
	}

	if genErr != nil {
		if _, err := q.mg.TransitionStatus(ctx, groupID, models.GroupStatusGenerating, models.GroupStatusFailed); err != nil {
			return nil, err
		}
		return nil, genErr
	}

	if err := q.mg.SetPost(ctx, groupID, post.ID); err != nil {
		return post, err
	}
	if _, err := q.mg.TransitionStatus(ctx, groupID, models.GroupStatusGenerating, models.GroupStatusGenerated); err != nil {
		return post, err
	}
	return post, nil
}

func (q *Queue) generateForTopic(ctx context.Context, payload GeneratePostPayload, policy *models.AutoPilotPolicy) (*models.Post, error) {
	imageCount := policy.ImagesPerPost
	if payload.ImageCount > 0 {
		imageCount = payload.ImageCount
	}

	post, err := q.gen.GenerateFromTopic(ctx, payload.UserID, payload.Topic, imageCount, policy)
	if err != nil {
		return nil, err
	}
	return q.sched.Finalize(ctx, post, policy)
}

// applyOverrides folds per-request knobs from a bulk generation request into
// a copy of the tenant policy.
func applyOverrides(policy *models.AutoPilotPolicy, payload GeneratePostPayload) {
	if payload.ConfidenceThreshold > 0 {
		policy.ConfidenceThreshold = payload.ConfidenceThreshold
	}
	if payload.ImageCount > 0 {
		policy.ImagesPerPost = payload.ImageCount
	}
	if payload.AutoSchedule != nil {
		policy.AutoSchedule = *payload.AutoSchedule
	}
}
