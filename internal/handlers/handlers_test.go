package handlers

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/avvvet/chatbuddy/internal/catalog"
	"github.com/avvvet/chatbuddy/internal/config"
	"github.com/avvvet/chatbuddy/internal/llm"
	"github.com/avvvet/chatbuddy/internal/memory"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	content string
	err     error
}

func (f *fakeProvider) Complete(context.Context, *llm.LLMRequest) (*llm.LLMResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.LLMResponse{Content: f.content}, nil
}

func newCatalog(t *testing.T) *catalog.SQLiteRepository {
	t.Helper()
	repo, err := catalog.NewSQLiteRepository(filepath.Join(t.TempDir(), "catalog.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	_, err = repo.Seed(context.Background(), catalog.DemoSeed())
	require.NoError(t, err)
	return repo
}

func newState(text string, intent *models.Intent) *memory.ConversationState {
	state := memory.NewConversationState("s1")
	state.BusinessType = models.BusinessEcommerce
	state.CurrentIntent = intent
	if text != "" {
		state.Append(models.RoleUser, text, nil)
	}
	return state
}

func TestDiscoverySearch(t *testing.T) {
	t.Parallel()
	h := NewDiscoveryHandler(newCatalog(t), zap.NewNop())
	ctx := context.Background()

	t.Run("category and budget from entities", func(t *testing.T) {
		state := newState("show me laptops under $1000", &models.Intent{
			Kind:     models.IntentProductDiscovery,
			Entities: map[string]any{"category": "laptops", "budget": "under $1000"},
		})
		resp, err := h.Execute(ctx, models.Action{Kind: models.ActionSearchProducts}, state)
		require.NoError(t, err)
		assert.Equal(t, models.FormatCarousel, resp.Format)
		assert.Equal(t, 2, resp.ItemCount())
		assert.Equal(t, "I found 2 great options for laptops:", resp.Content)
		assert.Equal(t, []string{"Add to cart", "Compare", "See reviews", "Filter results"}, resp.QuickReplies)
		assert.Equal(t, "ecommerce", resp.Metadata["business_type"])
	})

	t.Run("brand attribute from parameters", func(t *testing.T) {
		resp, err := h.Execute(ctx, models.Action{
			Kind:       models.ActionSearchProducts,
			Parameters: map[string]any{"query": "", "brand": "Apple"},
		}, newState("", nil))
		require.NoError(t, err)
		assert.Equal(t, models.FormatCarousel, resp.Format)
		assert.Equal(t, 2, resp.ItemCount())
	})

	t.Run("no results", func(t *testing.T) {
		state := newState("", nil)
		resp, err := h.Execute(ctx, models.Action{
			Kind:       models.ActionSearchProducts,
			Parameters: map[string]any{"query": "submarine"},
		}, state)
		require.NoError(t, err)
		assert.Equal(t, models.FormatQuickReplies, resp.Format)
		assert.Contains(t, resp.Content, "I couldn't find any results for 'submarine'")
	})

	t.Run("nothing to search for", func(t *testing.T) {
		resp, err := h.Execute(ctx, models.Action{Kind: models.ActionSearchProducts}, newState("", nil))
		require.NoError(t, err)
		assert.True(t, resp.NeedsClarification)
		assert.Equal(t, []string{"Electronics", "Clothing", "Home & Garden", "Sports"}, resp.QuickReplies)
	})
}

func TestDiscoveryRecommend(t *testing.T) {
	t.Parallel()
	h := NewDiscoveryHandler(newCatalog(t), zap.NewNop())

	resp, err := h.Execute(context.Background(), models.Action{
		Kind:       models.ActionRecommendItems,
		Parameters: map[string]any{"category": "phones"},
	}, newState("recommend a phone", nil))
	require.NoError(t, err)
	require.Equal(t, models.FormatCarousel, resp.Format)
	items := resp.Payload.(*models.ListPayload).Items
	require.Len(t, items, 2)
	assert.Equal(t, "phone-002", items[0].ID)
}

func TestDiscoveryGeneralResponse(t *testing.T) {
	t.Parallel()
	h := NewDiscoveryHandler(newCatalog(t), zap.NewNop())

	tests := []struct {
		text        string
		wantPrefix  string
		wantSuggest bool
	}{
		{"hi there", "Hello! I'm here to help you discover", false},
		{"thanks a lot", "You're welcome!", false},
		{"something within my budget", "I'd love to help you find", true},
		{"what is the meaning of life", "I'm here to help you discover and find great products!", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			resp, err := h.Execute(context.Background(), models.Action{Kind: models.ActionGeneralResponse}, newState(tt.text, nil))
			require.NoError(t, err)
			assert.Equal(t, models.FormatQuickReplies, resp.Format)
			assert.Contains(t, resp.Content, tt.wantPrefix)
			assert.Equal(t, tt.wantSuggest, len(resp.SuggestedActions) > 0)
		})
	}
}

func TestDiscoveryClarify(t *testing.T) {
	t.Parallel()
	h := NewDiscoveryHandler(newCatalog(t), zap.NewNop())

	withBudget := newState("laptops under 900", &models.Intent{
		Kind:     models.IntentProductDiscovery,
		Entities: map[string]any{"category": "laptops", "price_range": "under 900"},
	})
	resp, err := h.Execute(context.Background(), models.Action{Kind: models.ActionClarifyParams}, withBudget)
	require.NoError(t, err)
	require.Len(t, resp.SuggestedActions, 1)
	assert.Equal(t, models.ActionSearchProducts, resp.SuggestedActions[0].Kind)
	assert.False(t, resp.NeedsClarification)

	resp, err = h.Execute(context.Background(), models.Action{Kind: models.ActionClarifyParams}, newState("stuff", nil))
	require.NoError(t, err)
	assert.True(t, resp.NeedsClarification)
}

func TestDiscoveryUnsupportedAction(t *testing.T) {
	t.Parallel()
	h := NewDiscoveryHandler(newCatalog(t), zap.NewNop())

	resp, err := h.Execute(context.Background(), models.Action{Kind: models.ActionTrackOrder}, newState("", nil))
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "I specialize in helping")
}

func TestDetailHandler(t *testing.T) {
	t.Parallel()
	repo := newCatalog(t)
	ctx := context.Background()

	t.Run("by brand and model with generated description", func(t *testing.T) {
		h := NewDetailHandler(repo, &fakeProvider{
			content: `{"message": "The XPS 13 is a compact powerhouse.", "quick_replies": ["Buy now"]}`,
		}, 5, zap.NewNop())
		state := newState("tell me about the dell xps 13", &models.Intent{
			Kind:     models.IntentProductDetail,
			Entities: map[string]any{"brand": "Dell", "model": "XPS 13"},
		})

		resp, err := h.Execute(ctx, models.Action{Kind: models.ActionGetProductDetails}, state)
		require.NoError(t, err)
		assert.Equal(t, models.FormatProductDetail, resp.Format)
		assert.Equal(t, "The XPS 13 is a compact powerhouse.", resp.Content)
		assert.Equal(t, []string{"Buy now"}, resp.QuickReplies)

		detail := resp.Payload.(*models.DetailPayload).Detail
		assert.Equal(t, "laptop-001", detail.ID)
		assert.Equal(t, "$999.99", detail.Price)
		assert.Equal(t, "In Stock", detail.Availability)
	})

	t.Run("provider failure falls back", func(t *testing.T) {
		h := NewDetailHandler(repo, &fakeProvider{err: errors.New("timeout")}, 5, zap.NewNop())
		resp, err := h.Execute(ctx, models.Action{
			Kind:       models.ActionGetProductDetails,
			Parameters: map[string]any{"product_id": "laptop-004"},
		}, newState("", nil))
		require.NoError(t, err)
		assert.Equal(t, "Here are the detailed specifications for HP Spectre x360:", resp.Content)
		assert.Equal(t, "Out of Stock", resp.Payload.(*models.DetailPayload).Detail.Availability)
	})

	t.Run("unknown product", func(t *testing.T) {
		h := NewDetailHandler(repo, nil, 5, zap.NewNop())
		resp, err := h.Execute(ctx, models.Action{
			Kind:       models.ActionGetProductDetails,
			Parameters: map[string]any{"product_name": "flux capacitor"},
		}, newState("", nil))
		require.NoError(t, err)
		assert.Equal(t, models.FormatQuickReplies, resp.Format)
		assert.Contains(t, resp.Content, "flux capacitor")
	})

	t.Run("no product named", func(t *testing.T) {
		h := NewDetailHandler(repo, nil, 5, zap.NewNop())
		resp, err := h.Execute(ctx, models.Action{Kind: models.ActionGetProductDetails}, newState("", nil))
		require.NoError(t, err)
		assert.True(t, resp.NeedsClarification)
	})
}

func TestDetailCompare(t *testing.T) {
	t.Parallel()
	h := NewDetailHandler(newCatalog(t), nil, 5, zap.NewNop())

	resp, err := h.Execute(context.Background(), models.Action{
		Kind: models.ActionCompareProducts,
		Parameters: map[string]any{"products": []any{
			"Lenovo IdeaPad 5",
			map[string]any{"id": "laptop-002"},
		}},
	}, newState("", nil))
	require.NoError(t, err)
	require.Equal(t, models.FormatComparison, resp.Format)

	comparison := resp.Payload.(*models.ComparisonPayload).Comparison
	require.Len(t, comparison.Products, 2)
	assert.Equal(t, "MacBook Air M2 is the best rated option. Lenovo IdeaPad 5 is the most affordable.", comparison.Recommendation)
	assert.Equal(t, []string{"$649.00", "$1199.00"}, comparison.ComparisonMatrix["Price"])

	resp, err = h.Execute(context.Background(), models.Action{Kind: models.ActionCompareProducts}, newState("", nil))
	require.NoError(t, err)
	assert.True(t, resp.NeedsClarification)
}

func TestClarificationHandler(t *testing.T) {
	t.Parallel()
	h := NewClarificationHandler(zap.NewNop())
	ctx := context.Background()

	t.Run("form per missing parameter", func(t *testing.T) {
		state := newState("I want something", &models.Intent{Kind: models.IntentProductDiscovery})
		resp, err := h.Execute(ctx, models.Action{
			Kind:       models.ActionClarifyParams,
			Parameters: map[string]any{"missing_params": []string{"category", "budget", "color_scheme"}},
		}, state)
		require.NoError(t, err)
		assert.Equal(t, models.FormatForm, resp.Format)
		assert.True(t, resp.NeedsClarification)

		fields := resp.Payload.(*models.FormPayload).Fields
		require.Len(t, fields, 3)
		assert.Equal(t, "select", fields[0].FieldType)
		assert.Equal(t, "What type of product are you looking for?", fields[0].Label)
		assert.NotEmpty(t, fields[0].Options)
		assert.Equal(t, "number", fields[1].FieldType)
		assert.Equal(t, "text", fields[2].FieldType)
		assert.Equal(t, "Color Scheme", fields[2].Label)
		assert.True(t, fields[2].Required)
	})

	t.Run("planner supplied list", func(t *testing.T) {
		state := newState("where is my order", &models.Intent{Kind: models.IntentProcessQuestions})
		resp, err := h.Execute(ctx, models.Action{
			Kind:       models.ActionClarifyParams,
			Parameters: map[string]any{"missing_params": []any{"order_id"}},
		}, state)
		require.NoError(t, err)
		assert.Equal(t, "What's your order number?", resp.Content)
	})

	t.Run("brand and model skip the form", func(t *testing.T) {
		state := newState("dell xps 13 in silver", &models.Intent{
			Kind:     models.IntentProductDetail,
			Entities: map[string]any{"brand": "Dell", "model": "XPS 13", "color": "silver"},
		})
		resp, err := h.Execute(ctx, models.Action{
			Kind:       models.ActionClarifyParams,
			Parameters: map[string]any{"missing_params": []string{"product_id"}},
		}, state)
		require.NoError(t, err)
		assert.Equal(t, models.FormatQuickReplies, resp.Format)
		require.Len(t, resp.SuggestedActions, 1)
		assert.Equal(t, config.ProductDetailHandler, resp.SuggestedActions[0].HandlerName)
		assert.Equal(t, "Dell XPS 13 silver", resp.SuggestedActions[0].Parameters["product_name"])
	})
}

func TestParsePriceRange(t *testing.T) {
	t.Parallel()

	f := func(v float64) *float64 { return &v }
	tests := []struct {
		in       any
		min, max *float64
	}{
		{"under $1,000", nil, f(1000)},
		{"over 500", f(500), nil},
		{"$500-$1000", f(500), f(1000)},
		{float64(750), nil, f(750)},
		{map[string]any{"min": float64(10), "max": float64(20)}, f(10), f(20)},
		{"cheap", nil, nil},
	}
	for _, tt := range tests {
		min, max := parsePriceRange(tt.in)
		assert.Equal(t, tt.min, min, "%v", tt.in)
		assert.Equal(t, tt.max, max, "%v", tt.in)
	}
}
