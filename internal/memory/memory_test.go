package memory

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConversationStateAppendOnly(t *testing.T) {
	t.Parallel()

	state := NewConversationState("s1")
	first := state.Append(models.RoleUser, "hi", nil)
	state.Append(models.RoleAssistant, "hello", map[string]any{"k": "v"})
	state.Append(models.RoleUser, "laptops please", nil)

	assert.Equal(t, "s1", state.SessionID())
	assert.Equal(t, "s1", first.SessionID)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, 3, state.Len())

	msgs := state.Messages()
	msgs[0].Text = "tampered"
	assert.Equal(t, "hi", state.Messages()[0].Text)

	recent := state.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "hello", recent[0].Text)
	assert.Equal(t, "laptops please", recent[1].Text)
	assert.Len(t, state.Recent(10), 3)
	assert.Nil(t, state.Recent(0))
	assert.Equal(t, "laptops please", state.LastUserText())
}

func TestConversationStateJSONPreservesSessionAndOrder(t *testing.T) {
	t.Parallel()

	state := NewConversationState("s2")
	state.UserID = "u1"
	state.Context["cart"] = "empty"
	state.CurrentIntent = &models.Intent{Kind: models.IntentProductDiscovery, Confidence: 0.8}
	state.Append(models.RoleUser, "one", nil)
	state.Append(models.RoleAssistant, "two", nil)

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var decoded ConversationState
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "s2", decoded.SessionID())
	assert.Equal(t, "u1", decoded.UserID)
	assert.Equal(t, "empty", decoded.Context["cart"])
	assert.Equal(t, models.IntentProductDiscovery, decoded.CurrentIntent.Kind)
	require.Equal(t, 2, decoded.Len())
	assert.Equal(t, "one", decoded.Messages()[0].Text)
	assert.Equal(t, "two", decoded.Messages()[1].Text)
}

func TestCacheStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewCacheStore(time.Minute)

	state, err := store.Load(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", state.SessionID())
	assert.Zero(t, state.Len())

	exists, err := store.Exists(ctx, "new")
	require.NoError(t, err)
	assert.False(t, exists)

	state.Append(models.RoleUser, "hi", nil)
	require.NoError(t, store.Save(ctx, state))

	// mutations after save are not visible to the store
	state.Append(models.RoleUser, "unsaved", nil)

	loaded, err := store.Load(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
	assert.Equal(t, 1, store.Count())

	require.NoError(t, store.Clear(ctx, "new"))
	exists, err = store.Exists(ctx, "new")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestManagerSerializesSameSession(t *testing.T) {
	t.Parallel()

	m := NewManager(NewCacheStore(time.Minute), zap.NewNop())
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(ctx, "same")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
	assert.Zero(t, m.GetActiveSessionCount())
}

func TestManagerDifferentSessionsDoNotBlock(t *testing.T) {
	t.Parallel()

	m := NewManager(NewCacheStore(time.Minute), zap.NewNop())
	ctx := context.Background()

	releaseA, err := m.Acquire(ctx, "a")
	require.NoError(t, err)
	defer releaseA()

	ctxB, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	releaseB, err := m.Acquire(ctxB, "b")
	require.NoError(t, err)
	releaseB()
}

func TestManagerAcquireHonoursContext(t *testing.T) {
	t.Parallel()

	m := NewManager(NewCacheStore(time.Minute), zap.NewNop())
	release, err := m.Acquire(context.Background(), "busy")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx, "busy")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // second call is a no-op
	assert.Zero(t, m.GetActiveSessionCount())
}

func TestManagerClearSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewManager(NewCacheStore(time.Minute), zap.NewNop())

	state, err := m.Load(ctx, "c")
	require.NoError(t, err)
	state.Append(models.RoleUser, "hello", nil)
	require.NoError(t, m.Save(ctx, state))

	msgs, err := m.GetMessages(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	require.NoError(t, m.ClearSession(ctx, "c"))
	exists, err := m.SessionExists(ctx, "c")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFormatHistory(t *testing.T) {
	t.Parallel()

	out := FormatHistory([]models.Message{
		{Role: models.RoleUser, Text: "hi"},
		{Role: models.RoleAssistant, Text: "hello there"},
	})
	assert.Contains(t, out, "User: hi")
	assert.Contains(t, out, "Assistant: hello there")
	assert.Equal(t, "", FormatHistory(nil))
}
