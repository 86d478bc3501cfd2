package queue

import (
	"github.com/postpilot/autopilot/internal/repository"
	"github.com/postpilot/autopilot/internal/service"
)

type Queue struct {
	mi    repository.MediaItemRepository
	mg    repository.MediaGroupRepository
	gh    repository.GenerationHistoryRepository
	in    service.IngestionService
	gen   service.GenerationService
	sched service.SchedulerService
	pol   service.PolicyService
}

func NewQueue(
	mi repository.MediaItemRepository,
	mg repository.MediaGroupRepository,
	gh repository.GenerationHistoryRepository,
	in service.IngestionService,
	gen service.GenerationService,
	sched service.SchedulerService,
	pol service.PolicyService) *Queue {
	return &Queue{
		mi:    mi,
		mg:    mg,
		gh:    gh,
		in:    in,
		gen:   gen,
		sched: sched,
		pol:   pol,
	}
}

const (
	TaskTypeAnalyzeMedia = "media:analyze"
	TaskTypeGeneratePost = "autopilot:generate"
)

type AnalyzeMediaPayload struct {
	MediaItemID int64 `json:"media_item_id"`
}

// GeneratePostPayload describes one generation unit of work: exactly one of
// MediaItemID, GroupID or Topic is set. Zero-valued overrides fall back to
// the tenant policy.
type GeneratePostPayload struct {
	UserID              int64   `json:"user_id"`
	MediaItemID         int64   `json:"media_item_id,omitempty"`
	GroupID             int64   `json:"group_id,omitempty"`
	Topic               string  `json:"topic,omitempty"`
	ImageCount          int     `json:"image_count,omitempty"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	AutoSchedule        *bool   `json:"auto_schedule,omitempty"`
}
