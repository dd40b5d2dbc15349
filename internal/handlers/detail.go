package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/avvvet/chatbuddy/internal/catalog"
	"github.com/avvvet/chatbuddy/internal/config"
	"github.com/avvvet/chatbuddy/internal/llm"
	"github.com/avvvet/chatbuddy/internal/memory"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/avvvet/chatbuddy/internal/prompts"
	"go.uber.org/zap"
)

var specFields = []string{"processor", "ram", "storage", "screen_size", "weight", "os", "graphics"}

// DetailHandler answers questions about specific products.
type DetailHandler struct {
	catalog  catalog.Repository
	provider llm.Provider // optional; nil uses the fixed description
	history  int
	logger   *zap.Logger
}

func NewDetailHandler(repo catalog.Repository, provider llm.Provider, historyWindow int, logger *zap.Logger) *DetailHandler {
	return &DetailHandler{catalog: repo, provider: provider, history: historyWindow, logger: logger}
}

func (h *DetailHandler) SupportedActions() []models.ActionKind {
	return []models.ActionKind{models.ActionGetProductDetails, models.ActionCompareProducts}
}

func (h *DetailHandler) Execute(ctx context.Context, action models.Action, state *memory.ConversationState) (*models.CandidateResponse, error) {
	switch action.Kind {
	case models.ActionGetProductDetails:
		return h.details(ctx, action, state)
	case models.ActionCompareProducts:
		return h.compare(ctx, action, state)
	}
	return &models.CandidateResponse{
		HandlerName:  config.ProductDetailHandler,
		Content:      "I can give you details about specific products or compare them. Which product are you interested in?",
		Format:       models.FormatQuickReplies,
		QuickReplies: []string{"Search products", "Compare products", "Popular items"},
	}, nil
}

// productRef is how a product was named by the planner or the user.
type productRef struct {
	ID   string
	Name string
}

func (r productRef) String() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

func (h *DetailHandler) details(ctx context.Context, action models.Action, state *memory.ConversationState) (*models.CandidateResponse, error) {
	ref := detailRef(action.Parameters, entities(state), state.Context)
	if ref.ID == "" && ref.Name == "" {
		return h.clarification("Which product would you like to know more about? You can tell me the product name or brand and model.",
			[]string{"Browse products", "Search by name", "Popular products"}), nil
	}

	product, err := h.resolve(ctx, state.BusinessType, ref)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return &models.CandidateResponse{
			HandlerName:  config.ProductDetailHandler,
			Content:      fmt.Sprintf("I couldn't find any results for '%s'. Could you check the name or try a different product?", ref),
			Format:       models.FormatQuickReplies,
			QuickReplies: []string{"Search products", "Browse categories", "Contact support"},
		}, nil
	}

	detail := toDetail(product)
	message, replies := h.describe(ctx, state, detail)
	return &models.CandidateResponse{
		HandlerName:  config.ProductDetailHandler,
		Content:      message,
		Format:       models.FormatProductDetail,
		Payload:      &models.DetailPayload{Detail: detail},
		Metadata:     map[string]any{"business_type": string(state.BusinessType)},
		QuickReplies: replies,
	}, nil
}

func detailRef(params, ents, sessionContext map[string]any) productRef {
	ref := productRef{
		ID:   firstString(params["product_id"]),
		Name: firstString(params["product_name"]),
	}
	if info, ok := params["product_info"].(map[string]any); ok {
		ref.ID = firstString(info["id"], ref.ID)
		ref.Name = firstString(info["name"], ref.Name)
	}
	if ref.ID != "" || ref.Name != "" {
		return ref
	}

	brand, model := firstString(ents["brand"]), firstString(ents["model"])
	if brand != "" && model != "" {
		ref.Name = brand + " " + model
		return ref
	}

	var mentioned []string
	mentioned = append(mentioned, stringList(ents["products"])...)
	mentioned = append(mentioned, stringList(sessionContext["mentioned_products"])...)
	if len(mentioned) > 0 {
		ref.Name = mentioned[0]
	}
	return ref
}

// resolve looks a product up by id, then by name. A missing product is (nil, nil).
func (h *DetailHandler) resolve(ctx context.Context, bt models.BusinessType, ref productRef) (*models.Product, error) {
	if ref.ID != "" {
		p, err := h.catalog.GetByID(ctx, bt, ref.ID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("get product %s: %w", ref.ID, err)
		}
	}
	if ref.Name != "" {
		p, err := h.catalog.FindByName(ctx, bt, ref.Name)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("find product %q: %w", ref.Name, err)
		}
	}
	return nil, nil
}

// describe asks the content collaborator for a description. Any failure
// falls back to a fixed sentence; it never fails the action.
func (h *DetailHandler) describe(ctx context.Context, state *memory.ConversationState, detail models.ProductDetail) (string, []string) {
	fallback := fmt.Sprintf("Here are the detailed specifications for %s:", detail.Name)
	fallbackReplies := []string{"Compare with similar", "Check availability", "Add to cart"}
	if h.provider == nil {
		return fallback, fallbackReplies
	}

	system, human, err := prompts.BuildProductDetailPrompts(string(state.BusinessType), detail,
		memory.FormatHistory(state.Recent(h.history)))
	if err != nil {
		h.logger.Warn("failed to build product detail prompt", zap.Error(err))
		return fallback, fallbackReplies
	}

	resp, err := h.provider.Complete(ctx, &llm.LLMRequest{
		SystemPrompt: system,
		Prompt:       human,
		MaxTokens:    600,
		Temperature:  0.3,
	})
	if err != nil {
		h.logger.Warn("product description unavailable",
			zap.String("session_id", state.SessionID()),
			zap.Error(err))
		return fallback, fallbackReplies
	}

	message, replies := prompts.ParseReply(resp.Content)
	if message == "" {
		return fallback, fallbackReplies
	}
	if len(replies) == 0 {
		replies = fallbackReplies
	}
	return message, replies
}

func (h *DetailHandler) compare(ctx context.Context, action models.Action, state *memory.ConversationState) (*models.CandidateResponse, error) {
	refs := comparisonRefs(action.Parameters["products"])
	if len(refs) < 2 {
		refs = comparisonRefs(entities(state)["comparison_products"])
	}
	if len(refs) < 2 {
		return h.clarification("Which products would you like me to compare? Name at least two.",
			[]string{"Browse products", "Popular items", "Search products"}), nil
	}

	var details []models.ProductDetail
	var products []*models.Product
	for _, ref := range refs {
		p, err := h.resolve(ctx, state.BusinessType, ref)
		if err != nil {
			return nil, err
		}
		if p != nil {
			products = append(products, p)
			details = append(details, toDetail(p))
		}
	}
	if len(details) < 2 {
		return &models.CandidateResponse{
			HandlerName:  config.ProductDetailHandler,
			Content:      "I could only find one of those products, so there is nothing to compare yet. Could you name another one?",
			Format:       models.FormatQuickReplies,
			QuickReplies: []string{"Search products", "Browse categories", "Popular items"},
		}, nil
	}

	comparison := buildComparison(products, details)
	return &models.CandidateResponse{
		HandlerName:  config.ProductDetailHandler,
		Content:      "Here's a detailed comparison:",
		Format:       models.FormatComparison,
		Payload:      &models.ComparisonPayload{Comparison: comparison},
		Metadata:     map[string]any{"business_type": string(state.BusinessType)},
		QuickReplies: []string{"Show details", "Check availability", "Add to cart"},
	}, nil
}

// comparisonRefs accepts names, ids inside maps, or a mix of both.
func comparisonRefs(v any) []productRef {
	var refs []productRef
	switch t := v.(type) {
	case []string:
		for _, name := range t {
			refs = append(refs, productRef{Name: name})
		}
	case []any:
		for _, item := range t {
			switch p := item.(type) {
			case string:
				refs = append(refs, productRef{Name: p})
			case map[string]any:
				refs = append(refs, productRef{ID: firstString(p["id"]), Name: firstString(p["name"])})
			}
		}
	}
	return refs
}

func buildComparison(products []*models.Product, details []models.ProductDetail) models.ProductComparison {
	names := make([]string, len(details))
	for i, d := range details {
		names[i] = d.Name
	}

	matrix := map[string][]string{
		"Price":        make([]string, len(details)),
		"Availability": make([]string, len(details)),
		"Rating":       make([]string, len(details)),
	}
	for i, d := range details {
		matrix["Price"][i] = d.Price
		matrix["Availability"][i] = d.Availability
		if d.Rating != nil {
			matrix["Rating"][i] = fmt.Sprintf("%.1f", *d.Rating)
		}
	}

	best := 0
	for i, p := range products {
		if ratingOf(p) > ratingOf(products[best]) {
			best = i
		}
	}

	cheapest := -1
	for i, p := range products {
		if p.Price != nil && (cheapest < 0 || *p.Price < *products[cheapest].Price) {
			cheapest = i
		}
	}

	recommendation := fmt.Sprintf("%s is the best rated option.", details[best].Name)
	if cheapest >= 0 && cheapest != best {
		recommendation += fmt.Sprintf(" %s is the most affordable.", details[cheapest].Name)
	}

	return models.ProductComparison{
		Products:         details,
		Summary:          "Comparing " + strings.Join(names, ", ") + ".",
		Recommendation:   recommendation,
		ComparisonMatrix: matrix,
	}
}

func ratingOf(p *models.Product) float64 {
	if p.Rating == nil {
		return 0
	}
	return *p.Rating
}

func toDetail(p *models.Product) models.ProductDetail {
	specs := make(map[string]any)
	for _, field := range specFields {
		if v, ok := p.Metadata[field]; ok {
			specs[specLabel(field)] = v
		}
	}

	var features []string
	if v, ok := p.Metadata["touchscreen"].(bool); ok && v {
		features = append(features, "Touchscreen Display")
	}
	if v, ok := p.Metadata["convertible"].(bool); ok && v {
		features = append(features, "2-in-1 Convertible Design")
	}
	if g := stringValue(p.Metadata["graphics"]); g != "" {
		features = append(features, "Dedicated Graphics: "+g)
	}
	sort.Strings(features)

	availability := "Out of Stock"
	if p.Availability {
		availability = "In Stock"
	}

	var images []string
	if p.ImageURL != "" {
		images = []string{p.ImageURL}
	}

	reviews := 0
	if n, ok := p.Metadata["reviews_count"].(float64); ok {
		reviews = int(n)
	}

	return models.ProductDetail{
		ID:             p.ID,
		Name:           p.Name,
		Price:          formatPrice(p.Price),
		Images:         images,
		Specifications: specs,
		Features:       features,
		Description:    p.Description,
		Availability:   availability,
		Rating:         p.Rating,
		ReviewsCount:   reviews,
	}
}

func specLabel(field string) string {
	words := strings.Split(field, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func (h *DetailHandler) clarification(message string, replies []string) *models.CandidateResponse {
	return &models.CandidateResponse{
		HandlerName:        config.ProductDetailHandler,
		Content:            message,
		Format:             models.FormatQuickReplies,
		QuickReplies:       replies,
		NeedsClarification: true,
	}
}
