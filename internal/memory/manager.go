package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

// Manager orchestrates conversation memory: storage plus per-session exclusion.
// At most one holder of a session's lock exists at any time.
type Manager struct {
	store  Store
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sem  chan struct{}
	refs int
}

// NewManager creates a new memory manager
func NewManager(store Store, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sessionLock),
	}
}

// Acquire blocks until the caller exclusively owns sessionID or ctx is done.
// The returned release func must be called exactly once.
func (m *Manager) Acquire(ctx context.Context, sessionID string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sessionLock{sem: make(chan struct{}, 1)}
		m.locks[sessionID] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		m.unref(sessionID, l)
		return nil, fmt.Errorf("waiting for session %s: %w", sessionID, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			m.unref(sessionID, l)
		})
	}, nil
}

func (m *Manager) unref(sessionID string, l *sessionLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, sessionID)
	}
}

// Load returns the state for a session, empty if it does not exist.
func (m *Manager) Load(ctx context.Context, sessionID string) (*ConversationState, error) {
	state, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return state, nil
}

func (m *Manager) Save(ctx context.Context, state *ConversationState) error {
	if err := m.store.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	m.logger.Debug("session saved",
		zap.String("session_id", state.SessionID()),
		zap.Int("message_count", state.Len()))
	return nil
}

// GetMessages returns the message log of a session
func (m *Manager) GetMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	state, err := m.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return state.Messages(), nil
}

// ClearSession removes a session while holding its lock
func (m *Manager) ClearSession(ctx context.Context, sessionID string) error {
	release, err := m.Acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	if err := m.store.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	m.logger.Info("session cleared", zap.String("session_id", sessionID))
	return nil
}

func (m *Manager) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	return m.store.Exists(ctx, sessionID)
}

// GetActiveSessionCount returns the number of sessions with a turn in flight or waiting
func (m *Manager) GetActiveSessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// Close closes the underlying store
func (m *Manager) Close() error {
	if closer, ok := m.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// FormatHistory renders messages as a "User: ..." / "Assistant: ..." transcript for prompts.
func FormatHistory(messages []models.Message) string {
	chat := make([]llms.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser:
			chat = append(chat, llms.HumanChatMessage{Content: msg.Text})
		case models.RoleAssistant:
			chat = append(chat, llms.AIChatMessage{Content: msg.Text})
		case models.RoleSystem:
			chat = append(chat, llms.SystemChatMessage{Content: msg.Text})
		}
	}

	formatted, err := llms.GetBufferString(chat, "User", "Assistant")
	if err != nil {
		return ""
	}
	return formatted
}
