package config

import "github.com/avvvet/chatbuddy/internal/models"

// Business describes the domain profile a turn runs against.
type Business struct {
	Type          models.BusinessType `json:"business_type"`
	ProductFields []string            `json:"product_fields,omitempty"`
	SearchFields  []string            `json:"search_fields,omitempty"`
	ProcessStages []string            `json:"process_stages,omitempty"`
	QuickReplies  []string            `json:"quick_replies"`
}

// Flow is the conversation flow hint handed to the planner for an intent.
type Flow struct {
	Intent         string   `json:"intent"`
	Actions        []string `json:"actions"`
	ResponseFormat string   `json:"response_format"`
}

var businesses = map[models.BusinessType]Business{
	models.BusinessEcommerce: {
		Type:          models.BusinessEcommerce,
		ProductFields: []string{"name", "price", "description", "category", "in_stock"},
		SearchFields:  []string{"category", "brand", "price_range", "rating"},
		ProcessStages: []string{"cart", "checkout", "payment", "shipping", "delivery"},
		QuickReplies:  []string{"Browse products", "Track order", "Contact support", "Help"},
	},
	models.BusinessHotel: {
		Type:          models.BusinessHotel,
		ProductFields: []string{"room_type", "price_per_night", "amenities", "availability"},
		SearchFields:  []string{"check_in", "check_out", "guests", "location", "amenities"},
		ProcessStages: []string{"search", "booking", "payment", "confirmation", "check_in"},
		QuickReplies:  []string{"Check availability", "View rooms", "Make reservation", "Contact hotel"},
	},
	models.BusinessRealEstate: {
		Type:          models.BusinessRealEstate,
		ProductFields: []string{"property_type", "price", "bedrooms", "location", "features"},
		SearchFields:  []string{"location", "price_range", "property_type", "bedrooms"},
		ProcessStages: []string{"inquiry", "viewing", "application", "approval", "signing"},
		QuickReplies:  []string{"View properties", "Schedule viewing", "Get information", "Contact agent"},
	},
	models.BusinessRental: {
		Type:          models.BusinessRental,
		ProductFields: []string{"item_name", "daily_rate", "availability", "condition"},
		SearchFields:  []string{"category", "date_range", "location", "price_range"},
		ProcessStages: []string{"reservation", "pickup", "usage", "return", "billing"},
		QuickReplies:  []string{"Check availability", "Browse items", "Make reservation", "Contact us"},
	},
}

// BusinessFor returns the profile of a business type, falling back to the generic profile.
func BusinessFor(bt models.BusinessType) Business {
	if b, ok := businesses[bt]; ok {
		return b
	}
	return Business{
		Type:         models.BusinessGeneric,
		QuickReplies: []string{"Get help", "Browse options", "Contact support", "Learn more"},
	}
}

var flows = map[models.IntentKind]Flow{
	models.IntentCompanyInfo: {
		Intent:         "Provide information about the business",
		Actions:        []string{"search_company_info", "get_business_details"},
		ResponseFormat: "informational",
	},
	models.IntentProductDiscovery: {
		Intent:         "Help user discover products/services",
		Actions:        []string{"search_products", "filter_results", "recommend_items"},
		ResponseFormat: "carousel_with_details",
	},
	models.IntentProductDetail: {
		Intent:         "Provide detailed information about specific products",
		Actions:        []string{"get_product_details", "compare_products", "get_reviews"},
		ResponseFormat: "detailed_product_view",
	},
	models.IntentProcessQuestions: {
		Intent:         "Guide user through business processes",
		Actions:        []string{"get_process_info", "track_status", "provide_next_steps"},
		ResponseFormat: "step_by_step",
	},
	models.IntentGeneralConversation: {
		Intent:         "Engage in helpful conversation",
		Actions:        []string{"general_response", "redirect_if_needed"},
		ResponseFormat: "conversational",
	},
}

// FlowFor returns the conversation flow for an intent kind.
func FlowFor(kind models.IntentKind) Flow {
	if f, ok := flows[kind]; ok {
		return f
	}
	return flows[models.IntentGeneralConversation]
}
