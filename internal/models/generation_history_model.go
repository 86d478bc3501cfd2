package models

import (
	"database/sql"
	"time"
)

// GenerationHistory records the outcome of one pipeline unit of work so that
// failures surface for review instead of being dropped.
type GenerationHistory struct {
	ID            int64         `db:"id" json:"id"`
	UserID        int64         `db:"user_id" json:"user_id"`
	RunID         string        `db:"run_id" json:"run_id"`
	SourceItemID  sql.NullInt64 `db:"source_item_id" json:"source_item_id"`
	SourceGroupID sql.NullInt64 `db:"source_group_id" json:"source_group_id"`
	PostID        sql.NullInt64 `db:"post_id" json:"post_id"`
	ErrorMessage  string        `db:"error_message" json:"error_message"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}
