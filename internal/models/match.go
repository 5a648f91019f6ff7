package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Like is a directed edge from one traveler to another. There is at most one
// per ordered pair and it is never deleted.
type Like struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	FromUserID string    `json:"from_user_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_likes_pair"`
	ToUserID   string    `json:"to_user_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_likes_pair;index"`
	CreatedAt  time.Time `json:"created_at"`
}

func (l *Like) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// Match is an undirected pair stored with User1ID < User2ID.
type Match struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	User1ID   string    `json:"user1_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_matches_pair"`
	User2ID   string    `json:"user2_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_matches_pair;index"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *Match) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// NewMatch builds a match for the pair in canonical order.
func NewMatch(a, b string) Match {
	user1, user2 := OrderedPair(a, b)
	return Match{User1ID: user1, User2ID: user2}
}

func OrderedPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

func (m Match) Involves(userID string) bool {
	return m.User1ID == userID || m.User2ID == userID
}

// OtherParticipant returns the participant that is not userID.
func (m Match) OtherParticipant(userID string) string {
	if m.User1ID == userID {
		return m.User2ID
	}
	return m.User1ID
}

func (m Match) Participants() []string {
	return []string{m.User1ID, m.User2ID}
}

type Message struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MatchID   string    `json:"match_id" gorm:"type:varchar(36);not null;index:idx_messages_match"`
	SenderID  string    `json:"sender_id" gorm:"type:varchar(36);not null"`
	Content   string    `json:"content" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_messages_match"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// MessageBefore orders messages by creation time, id as tie-breaker.
func MessageBefore(a, b Message) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
