package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/avvvet/chatbuddy/internal/catalog"
	"github.com/avvvet/chatbuddy/internal/config"
	"github.com/avvvet/chatbuddy/internal/memory"
	"github.com/avvvet/chatbuddy/internal/models"
	"go.uber.org/zap"
)

const searchLimit = 8

// attributes copied from parameters into metadata filters
var attributeParams = []string{"color", "brand", "processor", "ram", "storage", "os"}

// DiscoveryHandler searches and recommends catalog products.
type DiscoveryHandler struct {
	catalog catalog.Repository
	logger  *zap.Logger
}

func NewDiscoveryHandler(repo catalog.Repository, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{catalog: repo, logger: logger}
}

func (h *DiscoveryHandler) SupportedActions() []models.ActionKind {
	return []models.ActionKind{
		models.ActionSearchProducts,
		models.ActionRecommendItems,
		models.ActionGeneralResponse,
		models.ActionClarifyParams,
	}
}

func (h *DiscoveryHandler) Execute(ctx context.Context, action models.Action, state *memory.ConversationState) (*models.CandidateResponse, error) {
	switch action.Kind {
	case models.ActionSearchProducts:
		return h.search(ctx, action, state)
	case models.ActionRecommendItems:
		return h.recommend(ctx, action, state)
	case models.ActionGeneralResponse:
		return h.generalResponse(state), nil
	case models.ActionClarifyParams:
		return h.clarify(action, state), nil
	default:
		return h.unsupported(action), nil
	}
}

func (h *DiscoveryHandler) search(ctx context.Context, action models.Action, state *memory.ConversationState) (*models.CandidateResponse, error) {
	req := h.searchRequest(action, state)
	if req.Query == "" && req.Filters.Empty() {
		return h.searchClarification(state.BusinessType), nil
	}

	result, err := h.catalog.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}
	if len(result.Items) == 0 {
		return &models.CandidateResponse{
			HandlerName: config.ProductDiscoveryHandler,
			Content: fmt.Sprintf("I couldn't find any results for '%s'. Let me help you search differently or suggest alternatives.",
				displayQuery(req)),
			Format:       models.FormatQuickReplies,
			QuickReplies: []string{"Browse categories", "Popular items", "Search tips", "Contact support"},
		}, nil
	}

	return h.carousel(result.Items, displayQuery(req), state.BusinessType, map[string]any{
		"total_count": result.TotalCount,
		"facets":      result.Facets,
		"suggestions": result.Suggestions,
	}), nil
}

// searchRequest merges action parameters with the intent's entities.
func (h *DiscoveryHandler) searchRequest(action models.Action, state *memory.ConversationState) catalog.SearchRequest {
	params := action.Parameters
	ents := entities(state)

	req := catalog.SearchRequest{
		BusinessType: state.BusinessType,
		Query:        firstString(params["query"]),
		Limit:        searchLimit,
	}
	req.Filters.Category = firstString(ents["category"], params["category"])

	for _, key := range []string{"price_range", "budget", "budget_range"} {
		src := ents[key]
		if src == nil {
			src = params[key]
		}
		if src == nil {
			continue
		}
		if min, max := parsePriceRange(src); min != nil || max != nil {
			req.Filters.MinPrice, req.Filters.MaxPrice = min, max
			break
		}
	}

	for _, key := range attributeParams {
		if v := firstString(ents[key], params[key]); v != "" {
			if req.Filters.Attributes == nil {
				req.Filters.Attributes = make(map[string]string)
			}
			req.Filters.Attributes[key] = v
		}
	}

	if req.Query == "" {
		// category searches phrased as commands rely on the filters alone
		text := state.LastUserText()
		lower := strings.ToLower(text)
		if req.Filters.Category == "" || !containsAny(lower, "show me", "find", "search", "under", "within", "budget") {
			req.Query = text
		}
	}
	return req
}

func displayQuery(req catalog.SearchRequest) string {
	if req.Query != "" {
		return req.Query
	}
	if req.Filters.Category != "" {
		return req.Filters.Category
	}
	return "your search"
}

func (h *DiscoveryHandler) recommend(ctx context.Context, action models.Action, state *memory.ConversationState) (*models.CandidateResponse, error) {
	category := firstString(action.Parameters["category"], entities(state)["category"])
	items, err := h.catalog.TopRated(ctx, state.BusinessType, category, 6)
	if err != nil {
		return nil, fmt.Errorf("top rated products: %w", err)
	}
	if len(items) == 0 {
		return &models.CandidateResponse{
			HandlerName:  config.ProductDiscoveryHandler,
			Content:      "Here are some popular items you might be interested in:",
			Format:       models.FormatQuickReplies,
			QuickReplies: []string{"See all products", "Browse categories", "Get personalized", "Contact support"},
		}, nil
	}

	label := "you"
	if category != "" {
		label = category
	}
	return h.carousel(items, label, state.BusinessType, map[string]any{"recommended": true}), nil
}

func (h *DiscoveryHandler) carousel(items []models.Product, query string, bt models.BusinessType, extra map[string]any) *models.CandidateResponse {
	metadata := map[string]any{"business_type": string(bt)}
	for k, v := range extra {
		metadata[k] = v
	}
	return &models.CandidateResponse{
		HandlerName:  config.ProductDiscoveryHandler,
		Content:      fmt.Sprintf("I found %d great options for %s:", len(items), query),
		Format:       models.FormatCarousel,
		Payload:      &models.ListPayload{Items: items},
		Metadata:     metadata,
		QuickReplies: carouselReplies(bt),
	}
}

func carouselReplies(bt models.BusinessType) []string {
	switch bt {
	case models.BusinessEcommerce:
		return []string{"Add to cart", "Compare", "See reviews", "Filter results"}
	case models.BusinessHotel:
		return []string{"Book now", "Check availability", "View amenities", "Compare rooms"}
	case models.BusinessRealEstate:
		return []string{"Schedule viewing", "Get more info", "Check mortgage", "Contact agent"}
	case models.BusinessRental:
		return []string{"Reserve now", "Check availability", "View terms", "Get quote"}
	}
	return []string{"See more details", "Compare products", "Refine search", "Contact support"}
}

func (h *DiscoveryHandler) searchClarification(bt models.BusinessType) *models.CandidateResponse {
	var message string
	var replies []string
	switch bt {
	case models.BusinessEcommerce:
		message = "I'd love to help you find products! What are you looking for?"
		replies = []string{"Electronics", "Clothing", "Home & Garden", "Sports"}
	case models.BusinessHotel:
		message = "I can help you find the perfect room! What are your preferences?"
		replies = []string{"Standard rooms", "Suites", "Ocean view", "Business center"}
	case models.BusinessRealEstate:
		message = "Let me help you find properties! What type are you interested in?"
		replies = []string{"Houses", "Apartments", "Condos", "Commercial"}
	case models.BusinessRental:
		message = "I can help you find rental items! What do you need?"
		replies = []string{"Vehicles", "Tools", "Equipment", "Event items"}
	default:
		message = "What can I help you find today?"
		replies = []string{"Browse categories", "Popular items", "New arrivals", "Deals"}
	}
	return &models.CandidateResponse{
		HandlerName:        config.ProductDiscoveryHandler,
		Content:            message,
		Format:             models.FormatQuickReplies,
		QuickReplies:       replies,
		NeedsClarification: true,
	}
}

func (h *DiscoveryHandler) generalResponse(state *memory.ConversationState) *models.CandidateResponse {
	text := state.LastUserText()
	lower := strings.ToLower(text)

	switch {
	case containsWord(lower, "hello", "hi", "hey", "help"):
		message, replies := greeting(state.BusinessType)
		return quickReplies(message, replies)
	case containsAny(lower, "thank"):
		return quickReplies("You're welcome! Is there anything else I can help you find today?",
			[]string{"Browse more", "Search again", "Get recommendations", "Contact support"})
	case containsAny(lower, "laptop", "computer", "phone", "electronics", "price", "cost", "budget", "under", "within"):
		resp := quickReplies("I'd love to help you find what you're looking for! Let me search for products based on your request.",
			[]string{"Search now", "Filter results", "Browse categories", "Get recommendations"})
		resp.SuggestedActions = []models.Action{{
			Kind:         models.ActionSearchProducts,
			HandlerName:  config.ProductDiscoveryHandler,
			Parameters:   map[string]any{"query": text},
			Priority:     models.MinPriority,
			Instructions: "Search for products based on user query",
		}}
		return resp
	}

	message, replies := helpful(state.BusinessType)
	return quickReplies(message, replies)
}

func greeting(bt models.BusinessType) (string, []string) {
	switch bt {
	case models.BusinessEcommerce:
		return "Hello! I'm here to help you discover amazing products. What are you looking for today?",
			[]string{"Browse electronics", "Show me deals", "Popular items", "Help me search"}
	case models.BusinessHotel:
		return "Welcome! I can help you find the perfect room for your stay. How can I assist you?",
			[]string{"Check availability", "View rooms", "Special offers", "Hotel amenities"}
	case models.BusinessRealEstate:
		return "Hello! I'm here to help you find your dream property. What type of property are you interested in?",
			[]string{"Houses for sale", "Apartments", "View listings", "Schedule viewing"}
	case models.BusinessRental:
		return "Hi there! I can help you find rental items for your needs. What are you looking to rent?",
			[]string{"Vehicles", "Tools & equipment", "Event items", "Browse categories"}
	}
	return "Hello! I'm here to help you find what you're looking for. How can I assist you today?",
		[]string{"Browse products", "Search items", "Popular choices", "Get help"}
}

func helpful(bt models.BusinessType) (string, []string) {
	switch bt {
	case models.BusinessEcommerce:
		return "I'm here to help you discover and find great products! You can search for specific items, browse categories, or get personalized recommendations.",
			[]string{"Search products", "Browse categories", "Popular items", "Get recommendations"}
	case models.BusinessHotel:
		return "I can help you find the perfect accommodation! You can check room availability, view amenities, or get recommendations based on your preferences.",
			[]string{"Check availability", "View rooms", "Hotel amenities", "Special offers"}
	case models.BusinessRealEstate:
		return "I'm here to help you find your ideal property! You can search listings, filter by preferences, or schedule viewings.",
			[]string{"Search properties", "Filter by price", "View listings", "Schedule viewing"}
	case models.BusinessRental:
		return "I can help you find rental items for any need! Search by category, check availability, or browse our inventory.",
			[]string{"Browse categories", "Check availability", "Search items", "Popular rentals"}
	}
	return "I'm here to help you find exactly what you need! Feel free to search, browse, or ask for recommendations.",
		[]string{"Search", "Browse", "Recommendations", "Help"}
}

// clarify asks for more details, unless the intent already names a
// category and a budget, in which case it proposes the search instead.
func (h *DiscoveryHandler) clarify(action models.Action, state *memory.ConversationState) *models.CandidateResponse {
	ents := entities(state)
	category := firstString(ents["category"])
	budget := ents["budget_range"]
	if budget == nil {
		budget = ents["price_range"]
	}

	if category != "" && budget != nil {
		resp := quickReplies(fmt.Sprintf("Let me search for %s within your budget range!", category),
			[]string{"See results", "Filter more", "Browse categories", "Get recommendations"})
		resp.SuggestedActions = []models.Action{{
			Kind:        models.ActionSearchProducts,
			HandlerName: config.ProductDiscoveryHandler,
			Parameters: map[string]any{
				"query":        state.LastUserText(),
				"category":     category,
				"budget_range": budget,
			},
			Priority:     models.MinPriority,
			Instructions: "Search for products with available criteria",
		}}
		return resp
	}

	resp := quickReplies("I'd like to help you find the perfect products! Could you tell me a bit more about what you're looking for?",
		[]string{"Browse categories", "Popular items", "Get recommendations", "Help me search"})
	resp.NeedsClarification = true
	resp.Metadata = map[string]any{"missing_params": action.Parameters["missing_params"]}
	return resp
}

func (h *DiscoveryHandler) unsupported(action models.Action) *models.CandidateResponse {
	h.logger.Debug("unsupported action for discovery handler", zap.String("action", string(action.Kind)))
	return quickReplies("I specialize in helping you discover and search for products. How can I help you find what you're looking for?",
		[]string{"Search products", "Browse categories", "Get recommendations", "Popular items"})
}

func quickReplies(message string, replies []string) *models.CandidateResponse {
	return &models.CandidateResponse{
		HandlerName:  config.ProductDiscoveryHandler,
		Content:      message,
		Format:       models.FormatQuickReplies,
		QuickReplies: replies,
	}
}
