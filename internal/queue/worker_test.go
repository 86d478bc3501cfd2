package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/postpilot/autopilot/internal/models"
	"github.com/postpilot/autopilot/internal/transfer"
)

type stubPolicyService struct {
	policy *models.AutoPilotPolicy
}

func (s *stubPolicyService) GetPolicy(ctx context.Context, userID int64) (*models.AutoPilotPolicy, error) {
	p := *s.policy
	return &p, nil
}

func (s *stubPolicyService) UpdatePolicy(ctx context.Context, userID int64, update transfer.PolicyUpdate) error {
	return nil
}

type stubGenService struct {
	post *models.Post
	err  error
}

func (s *stubGenService) GenerateForItem(ctx context.Context, item *models.MediaItem, policy *models.AutoPilotPolicy) (*models.Post, error) {
	return s.post, s.err
}

func (s *stubGenService) GenerateForGroup(ctx context.Context, group *models.MediaGroup, members []*models.MediaItem, policy *models.AutoPilotPolicy) (*models.Post, error) {
	return s.post, s.err
}

func (s *stubGenService) GenerateFromTopic(ctx context.Context, userID int64, topic string, imageCount int, policy *models.AutoPilotPolicy) (*models.Post, error) {
	return s.post, s.err
}

type stubScheduler struct {
	finalized int
}

func (s *stubScheduler) Finalize(ctx context.Context, post *models.Post, policy *models.AutoPilotPolicy) (*models.Post, error) {
	s.finalized++
	post.ID = 99
	post.Status = models.PostStatusScheduled
	return post, nil
}

type stubHistory struct {
	records []*models.GenerationHistory
}

func (s *stubHistory) Create(ctx context.Context, h *models.GenerationHistory) (int64, error) {
	s.records = append(s.records, h)
	return int64(len(s.records)), nil
}

func (s *stubHistory) ListByUserID(ctx context.Context, userID int64) ([]*models.GenerationHistory, error) {
	return s.records, nil
}

func TestApplyOverrides(t *testing.T) {
	on := true

	policy := &models.AutoPilotPolicy{ConfidenceThreshold: 0.8, ImagesPerPost: 1, AutoSchedule: false}
	applyOverrides(policy, GeneratePostPayload{ConfidenceThreshold: 0.5, ImageCount: 3, AutoSchedule: &on})

	if policy.ConfidenceThreshold != 0.5 || policy.ImagesPerPost != 3 || !policy.AutoSchedule {
		t.Errorf("overrides not applied: %+v", policy)
	}

	untouched := &models.AutoPilotPolicy{ConfidenceThreshold: 0.8, ImagesPerPost: 1, AutoSchedule: true}
	applyOverrides(untouched, GeneratePostPayload{})
	if untouched.ConfidenceThreshold != 0.8 || untouched.ImagesPerPost != 1 || !untouched.AutoSchedule {
		t.Errorf("zero payload must not override: %+v", untouched)
	}
}

func TestGeneratePostTopicFlow(t *testing.T) {
	history := &stubHistory{}
	sched := &stubScheduler{}
	q := NewQueue(nil, nil, history, nil,
		&stubGenService{post: &models.Post{UserID: 1, Confidence: 0.9}},
		sched,
		&stubPolicyService{policy: &models.AutoPilotPolicy{UserID: 1, ImagesPerPost: 1}})

	err := q.GeneratePost(context.Background(), GeneratePostPayload{UserID: 1, Topic: "spring cleaning"})
	if err != nil {
		t.Fatal(err)
	}

	if sched.finalized != 1 {
		t.Errorf("expected one finalize, got %d", sched.finalized)
	}
	if len(history.records) != 1 {
		t.Fatalf("expected one history record, got %d", len(history.records))
	}
	rec := history.records[0]
	if !rec.PostID.Valid || rec.PostID.Int64 != 99 {
		t.Errorf("history should reference the post, got %v", rec.PostID)
	}
	if rec.RunID == "" {
		t.Error("history should carry a run id")
	}
	if rec.ErrorMessage != "" {
		t.Errorf("unexpected error message %q", rec.ErrorMessage)
	}
}

func TestGeneratePostRecordsFailure(t *testing.T) {
	history := &stubHistory{}
	q := NewQueue(nil, nil, history, nil,
		&stubGenService{err: errors.New("model unavailable")},
		&stubScheduler{},
		&stubPolicyService{policy: &models.AutoPilotPolicy{UserID: 1}})

	err := q.GeneratePost(context.Background(), GeneratePostPayload{UserID: 1, Topic: "anything"})
	if err == nil {
		t.Fatal("expected generation error to propagate")
	}

	if len(history.records) != 1 {
		t.Fatalf("failure must still be recorded, got %d records", len(history.records))
	}
	if history.records[0].ErrorMessage == "" {
		t.Error("history should carry the failure message")
	}
}

func TestGeneratePostRequiresSource(t *testing.T) {
	q := NewQueue(nil, nil, &stubHistory{}, nil, &stubGenService{}, &stubScheduler{},
		&stubPolicyService{policy: &models.AutoPilotPolicy{UserID: 1}})

	if err := q.GeneratePost(context.Background(), GeneratePostPayload{UserID: 1}); err == nil {
		t.Fatal("expected error for payload without a source")
	}
}
