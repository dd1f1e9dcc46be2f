package models

import (
	"time"

	"github.com/google/uuid"
)

// Rating is a participant's score for a completed match.
type Rating struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MatchID   uuid.UUID `gorm:"column:match_id;type:uuid;not null" json:"match_id"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
	Score     int       `gorm:"column:score;not null" json:"score"`
	Feedback  *string   `gorm:"column:feedback" json:"feedback,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
