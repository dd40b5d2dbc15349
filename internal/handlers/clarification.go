package handlers

import (
	"context"
	"fmt"
	"slices"

	"github.com/avvvet/chatbuddy/internal/config"
	"github.com/avvvet/chatbuddy/internal/memory"
	"github.com/avvvet/chatbuddy/internal/models"
	"go.uber.org/zap"
)

// questions asked for a missing parameter, per intent
var questions = map[models.IntentKind]map[string]string{
	models.IntentProductDiscovery: {
		"category":    "What type of product are you looking for?",
		"budget":      "What's your budget range?",
		"preferences": "Any specific features or preferences?",
		"use_case":    "What will you be using this for?",
	},
	models.IntentProductDetail: {
		"product_id":     "Which specific product would you like to know about?",
		"product_name":   "What's the exact product name?",
		"model":          "Which model or variant?",
		"specifications": "What specific details do you need?",
	},
	models.IntentProcessQuestions: {
		"order_id": "What's your order number?",
		"email":    "What's your email address?",
		"phone":    "What's your phone number?",
		"status":   "What process are you asking about?",
	},
	models.IntentCompanyInfo: {
		"location":   "Which location are you asking about?",
		"service":    "Which service do you need info about?",
		"department": "Which department can help you?",
	},
}

// known field shapes; anything else is a text field
var fieldTemplates = map[string]models.FormField{
	"budget":   {FieldType: "number", Placeholder: "e.g. 1000", Validation: map[string]any{"min": 0}},
	"email":    {FieldType: "email", Placeholder: "you@example.com"},
	"phone":    {FieldType: "tel", Placeholder: "+1 555 0100"},
	"order_id": {FieldType: "text", Placeholder: "e.g. ORD-12345"},
	"check_in": {FieldType: "date"},
	"guests":   {FieldType: "number", Validation: map[string]any{"min": 1}},
	"category": {FieldType: "select"},
}

// ClarificationHandler collects missing parameters with a form.
type ClarificationHandler struct {
	logger *zap.Logger
}

func NewClarificationHandler(logger *zap.Logger) *ClarificationHandler {
	return &ClarificationHandler{logger: logger}
}

func (h *ClarificationHandler) SupportedActions() []models.ActionKind {
	return []models.ActionKind{models.ActionClarifyParams}
}

func (h *ClarificationHandler) Execute(_ context.Context, action models.Action, state *memory.ConversationState) (*models.CandidateResponse, error) {
	if action.Kind != models.ActionClarifyParams {
		return &models.CandidateResponse{
			HandlerName:        config.ClarificationHandler,
			Content:            "I help collect missing information to provide better assistance. What details can I help you clarify?",
			Format:             models.FormatQuickReplies,
			QuickReplies:       []string{"Start over", "Help me decide", "Show me options", "I'm not sure"},
			NeedsClarification: true,
		}, nil
	}

	missing := stringList(action.Parameters["missing_params"])
	if len(missing) == 0 && state.CurrentIntent != nil {
		missing = state.CurrentIntent.MissingParams
	}
	kind := intentKind(state)
	ents := entities(state)

	if shortcut := h.shortcut(kind, missing, ents, state.LastUserText()); shortcut != nil {
		return shortcut, nil
	}

	if len(missing) == 0 {
		missing = []string{"details"}
	}
	fields := make([]models.FormField, 0, len(missing))
	for _, name := range missing {
		fields = append(fields, formField(kind, name, state.BusinessType))
	}

	h.logger.Debug("requesting missing parameters",
		zap.String("session_id", state.SessionID()),
		zap.Strings("missing", missing))

	return &models.CandidateResponse{
		HandlerName:        config.ClarificationHandler,
		Content:            clarificationMessage(kind, missing),
		Format:             models.FormatForm,
		Payload:            &models.FormPayload{Fields: fields},
		Metadata:           map[string]any{"missing_params": missing},
		QuickReplies:       []string{"Help me decide", "Show me options", "I'm not sure"},
		NeedsClarification: true,
	}, nil
}

// shortcut skips the form when the intent already carries enough to act on.
func (h *ClarificationHandler) shortcut(kind models.IntentKind, missing []string, ents map[string]any, lastText string) *models.CandidateResponse {
	switch kind {
	case models.IntentProductDetail:
		brand, model := firstString(ents["brand"]), firstString(ents["model"])
		if !slices.Contains(missing, "product_id") || brand == "" || model == "" {
			return nil
		}
		query := brand + " " + model
		if color := firstString(ents["color"]); color != "" {
			query += " " + color
		}
		return &models.CandidateResponse{
			HandlerName:  config.ClarificationHandler,
			Content:      fmt.Sprintf("I found you're looking for the %s. Let me search for that product and show you the details!", query),
			Format:       models.FormatQuickReplies,
			QuickReplies: []string{"Show me the details", "Compare with similar products", "Check availability", "See specifications"},
			SuggestedActions: []models.Action{{
				Kind:         models.ActionGetProductDetails,
				HandlerName:  config.ProductDetailHandler,
				Parameters:   map[string]any{"product_name": query, "search_mode": true},
				Priority:     models.MaxPriority,
				Instructions: "Search for product by name and return details",
			}},
		}

	case models.IntentProductDiscovery:
		category := firstString(ents["category"])
		if !slices.Contains(missing, "preferences") || category == "" {
			return nil
		}
		return &models.CandidateResponse{
			HandlerName:  config.ClarificationHandler,
			Content:      fmt.Sprintf("Great! I can help you find %s. Let me show you some options!", category),
			Format:       models.FormatQuickReplies,
			QuickReplies: []string{"See all options", "Filter by price", "Popular choices", "Best rated"},
			SuggestedActions: []models.Action{{
				Kind:         models.ActionSearchProducts,
				HandlerName:  config.ProductDiscoveryHandler,
				Parameters:   map[string]any{"category": category, "query": lastText},
				Priority:     models.MaxPriority,
				Instructions: "Search for products in the specified category",
			}},
		}
	}
	return nil
}

func formField(kind models.IntentKind, name string, bt models.BusinessType) models.FormField {
	field, ok := fieldTemplates[name]
	if !ok {
		field = models.FormField{FieldType: "text"}
	}
	field.Name = name
	field.Required = true
	field.Label = specLabel(name)
	if q, ok := questions[kind][name]; ok {
		field.Label = q
	}
	if field.FieldType == "select" {
		field.Options = categoryOptions(bt)
		if len(field.Options) == 0 {
			field.FieldType = "text"
		}
	}
	return field
}

func categoryOptions(bt models.BusinessType) []string {
	switch bt {
	case models.BusinessEcommerce:
		return []string{"Electronics", "Clothing", "Home & Garden", "Sports"}
	case models.BusinessHotel:
		return []string{"Standard rooms", "Suites", "Family rooms"}
	case models.BusinessRealEstate:
		return []string{"Houses", "Apartments", "Condos", "Commercial"}
	case models.BusinessRental:
		return []string{"Vehicles", "Tools", "Equipment", "Event items"}
	}
	return nil
}

func clarificationMessage(kind models.IntentKind, missing []string) string {
	if len(missing) == 1 {
		if q, ok := questions[kind][missing[0]]; ok {
			return q
		}
	}
	return "I need a bit more information to help you better. Could you fill in the details below?"
}
