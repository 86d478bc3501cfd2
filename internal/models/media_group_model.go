package models

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type MediaGroup struct {
	ID           int64            `db:"id" json:"id"`
	UserID       int64            `db:"user_id" json:"user_id"`
	Rule         string           `db:"rule" json:"rule"`
	Rationale    string           `db:"rationale" json:"rationale"`
	MemberCount  int              `db:"member_count" json:"member_count"`
	Confidence   float64          `db:"confidence" json:"confidence"`
	CommonTopics pq.StringArray   `db:"common_topics" json:"common_topics"`
	Theme        string           `db:"theme" json:"theme"`
	StoryArc     string           `db:"story_arc" json:"story_arc"`
	Status       MediaGroupStatus `db:"status" json:"status"`
	PostID       sql.NullInt64    `db:"post_id" json:"post_id"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

const (
	GroupRuleSameDay          = "same-day"
	GroupRuleSequentialUpload = "sequential-upload"
	GroupRuleSimilarTopics    = "similar-topics"
	GroupRuleEventDetected    = "event-detected"
	GroupRuleSameFolder       = "same-folder"
)

const (
	StoryArcChronological = "chronological"
	StoryArcBeforeAfter   = "before-after"
	StoryArcCollection    = "collection"
	StoryArcNone          = "none"
)

type MediaGroupStatus string

const (
	GroupStatusPending      MediaGroupStatus = "pending"
	GroupStatusReadyForPost MediaGroupStatus = "ready_for_post"
	GroupStatusGenerating   MediaGroupStatus = "generating"
	GroupStatusGenerated    MediaGroupStatus = "generated"
	GroupStatusFailed       MediaGroupStatus = "failed"
)

// groupTransitions keeps group status monotonic forward, except that any
// non-terminal status may drop to failed.
var groupTransitions = map[MediaGroupStatus][]MediaGroupStatus{
	GroupStatusPending:      {GroupStatusReadyForPost, GroupStatusFailed},
	GroupStatusReadyForPost: {GroupStatusGenerating, GroupStatusFailed},
	GroupStatusGenerating:   {GroupStatusGenerated, GroupStatusFailed},
}

func (s MediaGroupStatus) CanTransition(to MediaGroupStatus) bool {
	for _, next := range groupTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
