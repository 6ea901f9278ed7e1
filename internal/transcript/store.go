package transcript

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

var ErrEmptyText = errors.New("empty transcript text")

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Line{})
}

func (s *Store) Append(ctx context.Context, conversationID, role, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	line := &Line{
		ConversationID: conversationID,
		Role:           role,
		Text:           text,
	}
	return s.db.WithContext(ctx).Create(line).Error
}

// List returns the lines of a conversation in arrival order. A limit of zero
// or less returns everything.
func (s *Store) List(ctx context.Context, conversationID string, limit int) ([]Line, error) {
	var lines []Line
	q := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) Count(ctx context.Context, conversationID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Line{}).Where("conversation_id = ?", conversationID).Count(&n).Error
	return n, err
}

func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	return s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Delete(&Line{}).Error
}
