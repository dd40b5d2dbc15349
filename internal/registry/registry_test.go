package registry

import (
	"context"
	"testing"

	"github.com/avvvet/chatbuddy/internal/memory"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct{ kinds []models.ActionKind }

func (s stubHandler) Execute(ctx context.Context, action models.Action, state *memory.ConversationState) (*models.CandidateResponse, error) {
	return &models.CandidateResponse{Content: "ok", Format: models.FormatText}, nil
}

func (s stubHandler) SupportedActions() []models.ActionKind { return s.kinds }

func TestRegisterAndLookup(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Register("b", stubHandler{kinds: []models.ActionKind{models.ActionSearchProducts}}))
	require.NoError(t, r.Register("a", stubHandler{}))

	h, ok := r.Lookup("b")
	require.True(t, ok)
	assert.NotNil(t, h)
	assert.False(t, r.Has("missing"))
	assert.Equal(t, []string{"a", "b"}, r.Names())
	assert.Equal(t, []string{"search_products"}, r.Capabilities()["b"])
}

func TestRegisterRejectsInvalid(t *testing.T) {
	t.Parallel()

	r := New()
	require.NoError(t, r.Register("a", stubHandler{}))
	assert.Error(t, r.Register("a", stubHandler{}))
	assert.Error(t, r.Register("", stubHandler{}))
	assert.Error(t, r.Register("nil", nil))

	r.Seal()
	assert.ErrorIs(t, r.Register("late", stubHandler{}), ErrSealed)
	assert.True(t, r.Has("a"))
}
