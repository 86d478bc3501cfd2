package models

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type MediaItem struct {
	ID            int64           `db:"id" json:"id"`
	UserID        int64           `db:"user_id" json:"user_id"`
	SourceURI     string          `db:"source_uri" json:"source_uri"`
	MediaKind     string          `db:"media_kind" json:"media_kind"` // image, video
	FileSize      int64           `db:"file_size" json:"file_size"`
	Status        MediaItemStatus `db:"status" json:"status"`
	Description   string          `db:"description" json:"description"`
	Topics        pq.StringArray  `db:"topics" json:"topics"`
	GroupID       sql.NullInt64   `db:"group_id" json:"group_id"`
	PostID        sql.NullInt64   `db:"post_id" json:"post_id"`
	FailureReason string          `db:"failure_reason" json:"failure_reason"`
	UploadedAt    time.Time       `db:"uploaded_at" json:"uploaded_at"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

const (
	MediaKindImage = "image"
	MediaKindVideo = "video"
)

// IsGrouped is derived from the group reference, never stored on its own.
func (m *MediaItem) IsGrouped() bool {
	return m.GroupID.Valid
}

type MediaItemStatus string

const (
	MediaStatusPending    MediaItemStatus = "pending"
	MediaStatusAnalyzing  MediaItemStatus = "analyzing"
	MediaStatusAnalyzed   MediaItemStatus = "analyzed"
	MediaStatusGenerating MediaItemStatus = "generating"
	MediaStatusGenerated  MediaItemStatus = "generated"
	MediaStatusFailed     MediaItemStatus = "failed"
	MediaStatusSkipped    MediaItemStatus = "skipped"
)

// mediaTransitions is the closed transition table for media items. Anything
// not listed here is an illegal transition.
var mediaTransitions = map[MediaItemStatus][]MediaItemStatus{
	MediaStatusPending:    {MediaStatusAnalyzing, MediaStatusSkipped},
	MediaStatusAnalyzing:  {MediaStatusAnalyzed, MediaStatusFailed, MediaStatusSkipped},
	MediaStatusAnalyzed:   {MediaStatusGenerating},
	MediaStatusGenerating: {MediaStatusGenerated, MediaStatusFailed, MediaStatusSkipped},
}

func (s MediaItemStatus) CanTransition(to MediaItemStatus) bool {
	for _, next := range mediaTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible. A terminal
// item may still be referenced by a group.
func (s MediaItemStatus) IsTerminal() bool {
	return len(mediaTransitions[s]) == 0
}
