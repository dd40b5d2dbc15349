package models

import "time"

// Turn request from HTTP, WebSocket, NATS or the CLI
type TurnRequest struct {
	SessionID    string         `json:"session_id"`
	UserID       string         `json:"user_id,omitempty"`
	Message      string         `json:"message"`
	BusinessType BusinessType   `json:"business_type,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// Role of a message author
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of a session's append-only log
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Role      Role           `json:"role"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type BusinessType string

const (
	BusinessEcommerce  BusinessType = "ecommerce"
	BusinessHotel      BusinessType = "hotel"
	BusinessRealEstate BusinessType = "real_estate"
	BusinessRental     BusinessType = "rental"
	BusinessGeneric    BusinessType = "generic"
)

// BusinessTypes lists every supported business type in display order
var BusinessTypes = []BusinessType{
	BusinessEcommerce,
	BusinessHotel,
	BusinessRealEstate,
	BusinessRental,
	BusinessGeneric,
}

func (b BusinessType) Valid() bool {
	for _, bt := range BusinessTypes {
		if b == bt {
			return true
		}
	}
	return false
}

// IntentKind is the conversation type assigned by the classifier
type IntentKind string

const (
	IntentCompanyInfo         IntentKind = "company_info"
	IntentProductDiscovery    IntentKind = "product_discovery"
	IntentProductDetail       IntentKind = "product_detail"
	IntentProcessQuestions    IntentKind = "process_questions"
	IntentGeneralConversation IntentKind = "general_conversation"
)

var IntentKinds = []IntentKind{
	IntentCompanyInfo,
	IntentProductDiscovery,
	IntentProductDetail,
	IntentProcessQuestions,
	IntentGeneralConversation,
}

func (k IntentKind) Valid() bool {
	for _, ik := range IntentKinds {
		if k == ik {
			return true
		}
	}
	return false
}

// Intent is produced once per turn
type Intent struct {
	Kind          IntentKind     `json:"conversation_type"`
	Confidence    float64        `json:"confidence"`
	Entities      map[string]any `json:"entities"`
	MissingParams []string       `json:"missing_params"`
}

type ActionKind string

const (
	ActionSearchProducts    ActionKind = "search_products"
	ActionGetCompanyInfo    ActionKind = "get_company_info"
	ActionGetProductDetails ActionKind = "get_product_details"
	ActionCompareProducts   ActionKind = "compare_products"
	ActionTrackOrder        ActionKind = "track_order"
	ActionClarifyParams     ActionKind = "clarify_params"
	ActionRecommendItems    ActionKind = "recommend_items"
	ActionGeneralResponse   ActionKind = "general_response"
)

var ActionKinds = []ActionKind{
	ActionSearchProducts,
	ActionGetCompanyInfo,
	ActionGetProductDetails,
	ActionCompareProducts,
	ActionTrackOrder,
	ActionClarifyParams,
	ActionRecommendItems,
	ActionGeneralResponse,
}

func (k ActionKind) Valid() bool {
	for _, ak := range ActionKinds {
		if k == ak {
			return true
		}
	}
	return false
}

// Priority bounds for actions
const (
	MinPriority = 1
	MaxPriority = 10
)

// Action is a unit of work proposed for a turn
type Action struct {
	Kind         ActionKind     `json:"action_type"`
	HandlerName  string         `json:"agent_name"`
	Parameters   map[string]any `json:"parameters"`
	Priority     int            `json:"priority"`
	Instructions string         `json:"instructions"`
}

// ResponseFormat tags how a response should be rendered
type ResponseFormat string

const (
	FormatText          ResponseFormat = "text"
	FormatCarousel      ResponseFormat = "carousel"
	FormatQuickReplies  ResponseFormat = "quick_replies"
	FormatForm          ResponseFormat = "form"
	FormatProductDetail ResponseFormat = "product_detail"
	FormatComparison    ResponseFormat = "product_comparison"
	FormatMixed         ResponseFormat = "mixed"
)

// Product is a catalog item, also used as a carousel entry
type Product struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Price        *float64       `json:"price,omitempty"`
	Category     string         `json:"category,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Availability bool           `json:"availability"`
	ImageURL     string         `json:"image_url,omitempty"`
	Rating       *float64       `json:"rating,omitempty"`
}

// FormField describes one input of a form response
type FormField struct {
	Name        string         `json:"name"`
	Label       string         `json:"label"`
	FieldType   string         `json:"field_type"`
	Required    bool           `json:"required"`
	Options     []string       `json:"options,omitempty"`
	Placeholder string         `json:"placeholder,omitempty"`
	Validation  map[string]any `json:"validation,omitempty"`
}

type ProductDetail struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Price          string         `json:"price,omitempty"`
	Images         []string       `json:"images,omitempty"`
	Specifications map[string]any `json:"specifications,omitempty"`
	Features       []string       `json:"features,omitempty"`
	Description    string         `json:"description"`
	Availability   string         `json:"availability"`
	Rating         *float64       `json:"rating,omitempty"`
	ReviewsCount   int            `json:"reviews_count"`
}

type ProductComparison struct {
	Products         []ProductDetail     `json:"products"`
	Summary          string              `json:"summary"`
	Recommendation   string              `json:"recommendation"`
	ComparisonMatrix map[string][]string `json:"comparison_matrix,omitempty"`
}

// FinalResponse is the single externally visible result of a turn
type FinalResponse struct {
	Message      string         `json:"message"`
	Format       ResponseFormat `json:"response_format"`
	QuickReplies []string       `json:"quick_replies"`
	ListItems    []Product      `json:"carousel_items"`
	FormFields   []FormField    `json:"form_fields"`
	Metadata     map[string]any `json:"metadata"`
	SessionID    string         `json:"session_id"`
}

// Error codes carried in metadata.error_code
const (
	ErrorLLMTimeout     = "LLM_API_TIMEOUT"
	ErrorLLMFailed      = "LLM_API_FAILED"
	ErrorParseError     = "PARSE_ERROR"
	ErrorInvalidRequest = "INVALID_REQUEST"
	ErrorInternal       = "INTERNAL_ERROR"
)
