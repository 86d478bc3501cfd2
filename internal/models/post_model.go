package models

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type Post struct {
	ID            int64          `db:"id" json:"id"`
	UserID        int64          `db:"user_id" json:"user_id"`
	Title         string         `db:"title" json:"title"`
	Caption       string         `db:"caption" json:"caption"`
	Hashtags      pq.StringArray `db:"hashtags" json:"hashtags"`
	MediaURLs     pq.StringArray `db:"media_urls" json:"media_urls"`
	Confidence    float64        `db:"confidence" json:"confidence"`
	Status        string         `db:"status" json:"status"`
	ScheduledTime sql.NullTime   `db:"scheduled_time" json:"scheduled_time"`
	SourceItemID  sql.NullInt64  `db:"source_item_id" json:"source_item_id"`
	SourceGroupID sql.NullInt64  `db:"source_group_id" json:"source_group_id"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusDraft           = "draft"
	PostStatusPendingApproval = "pending_approval"
	PostStatusScheduled       = "scheduled"
	PostStatusPosted          = "posted"
	PostStatusFailed          = "failed"
)
