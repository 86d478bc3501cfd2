package models

import "time"

// Inspiration is one snippet of external content used to season prompts.
type Inspiration struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Snippet   string    `db:"snippet" json:"snippet"`
	Source    string    `db:"source" json:"source"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
