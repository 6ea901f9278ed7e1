package transcript

import "time"

// Line is one finalized utterance. ID is monotonic, so ordering by it
// reproduces arrival order.
type Line struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `gorm:"not null;index" json:"conversation_id"`
	Role           string    `gorm:"not null;size:16" json:"role"`
	Text           string    `gorm:"type:text" json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Line) TableName() string {
	return "transcript_lines"
}
