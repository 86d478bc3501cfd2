package models

import (
	"time"

	"github.com/lib/pq"
)

// AutoPilotPolicy is the per-tenant automation configuration. The pipeline
// reads it, it never writes it.
type AutoPilotPolicy struct {
	ID                  int64          `db:"id" json:"id"`
	UserID              int64          `db:"user_id" json:"user_id"`
	Enabled             bool           `db:"enabled" json:"enabled"`
	PostsPerWeek        int            `db:"posts_per_week" json:"posts_per_week"`
	ConfidenceThreshold float64        `db:"confidence_threshold" json:"confidence_threshold"`
	PreferredSlots      pq.StringArray `db:"preferred_slots" json:"preferred_slots"` // "HH:MM", in preference order
	AutoSchedule        bool           `db:"auto_schedule" json:"auto_schedule"`
	ImagesPerPost       int            `db:"images_per_post" json:"images_per_post"` // 0-3
	Timezone            string         `db:"timezone" json:"timezone"`
	BrandVoice          string         `db:"brand_voice" json:"brand_voice"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

// Location resolves the tenant timezone, falling back to UTC.
func (p *AutoPilotPolicy) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
