package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/google/uuid"
)

// ConversationState is the per-session state a turn reads and mutates.
// The session id never changes and the message log is append-only.
type ConversationState struct {
	sessionID     string
	UserID        string
	BusinessType  models.BusinessType
	CurrentIntent *models.Intent
	Context       map[string]any
	messages      []models.Message
	StartedAt     time.Time
	LastUpdated   time.Time
}

// NewConversationState returns an empty state for a session.
func NewConversationState(sessionID string) *ConversationState {
	now := time.Now()
	return &ConversationState{
		sessionID:    sessionID,
		BusinessType: models.BusinessGeneric,
		Context:      make(map[string]any),
		messages:     []models.Message{},
		StartedAt:    now,
		LastUpdated:  now,
	}
}

func (s *ConversationState) SessionID() string { return s.sessionID }

// Messages returns a copy of the message log in arrival order.
func (s *ConversationState) Messages() []models.Message {
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *ConversationState) Len() int { return len(s.messages) }

// Recent returns up to k of the latest messages in arrival order.
func (s *ConversationState) Recent(k int) []models.Message {
	if k <= 0 {
		return nil
	}
	start := len(s.messages) - k
	if start < 0 {
		start = 0
	}
	out := make([]models.Message, len(s.messages)-start)
	copy(out, s.messages[start:])
	return out
}

// Append adds a message to the end of the log and returns it.
func (s *ConversationState) Append(role models.Role, text string, metadata map[string]any) models.Message {
	msg := models.Message{
		ID:        uuid.NewString(),
		SessionID: s.sessionID,
		Role:      role,
		Text:      text,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}
	s.messages = append(s.messages, msg)
	s.LastUpdated = msg.Timestamp
	return msg
}

// LastUserText returns the text of the latest user message, or "".
func (s *ConversationState) LastUserText() string {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == models.RoleUser {
			return s.messages[i].Text
		}
	}
	return ""
}

// SessionData is the persisted form of a ConversationState
type SessionData struct {
	SessionID     string              `json:"session_id"`
	UserID        string              `json:"user_id"`
	BusinessType  models.BusinessType `json:"business_type"`
	CurrentIntent *models.Intent      `json:"current_intent,omitempty"`
	Context       map[string]any      `json:"context"`
	Messages      []models.Message    `json:"messages"`
	Metadata      Metadata            `json:"metadata"`
}

// Metadata contains session information
type Metadata struct {
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}

func (s *ConversationState) MarshalJSON() ([]byte, error) {
	return json.Marshal(SessionData{
		SessionID:     s.sessionID,
		UserID:        s.UserID,
		BusinessType:  s.BusinessType,
		CurrentIntent: s.CurrentIntent,
		Context:       s.Context,
		Messages:      s.messages,
		Metadata: Metadata{
			StartedAt:    s.StartedAt,
			LastActivity: s.LastUpdated,
			MessageCount: len(s.messages),
		},
	})
}

func (s *ConversationState) UnmarshalJSON(data []byte) error {
	var sd SessionData
	if err := json.Unmarshal(data, &sd); err != nil {
		return err
	}
	s.sessionID = sd.SessionID
	s.UserID = sd.UserID
	s.BusinessType = sd.BusinessType
	s.CurrentIntent = sd.CurrentIntent
	s.Context = sd.Context
	s.messages = sd.Messages
	s.StartedAt = sd.Metadata.StartedAt
	s.LastUpdated = sd.Metadata.LastActivity
	if s.Context == nil {
		s.Context = make(map[string]any)
	}
	if s.messages == nil {
		s.messages = []models.Message{}
	}
	return nil
}

// Store defines the interface for conversation storage
// This allows us to swap between Redis, in-memory, etc.
type Store interface {
	// Load returns the session's state, or an empty state if none exists
	Load(ctx context.Context, sessionID string) (*ConversationState, error)

	// Save persists the full state
	Save(ctx context.Context, state *ConversationState) error

	// Clear removes a session from storage
	Clear(ctx context.Context, sessionID string) error

	// Exists checks if a session exists
	Exists(ctx context.Context, sessionID string) (bool, error)
}
