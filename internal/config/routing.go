package config

import (
	"fmt"
	"os"

	"github.com/avvvet/chatbuddy/internal/models"
	"gopkg.in/yaml.v3"
)

// Handler names registered by the service
const (
	ProductDiscoveryHandler = "product_discovery_agent"
	ProductDetailHandler    = "product_detail_agent"
	ClarificationHandler    = "clarification_agent"
)

// Routing holds the static, integrator-supplied dispatch tables.
type Routing struct {
	RequiredParams   map[models.ActionKind][]string `yaml:"required_params"`
	ActionFallback   map[models.ActionKind]string   `yaml:"action_fallback"`
	IntentFallback   map[models.IntentKind]string   `yaml:"intent_fallback"`
	UltimateFallback string                         `yaml:"ultimate_fallback"`
	GenericPhrases   []string                       `yaml:"generic_phrases"`
}

// DefaultRouting returns the tables the service ships with.
func DefaultRouting() *Routing {
	return &Routing{
		RequiredParams: map[models.ActionKind][]string{
			models.ActionSearchProducts:    {},
			models.ActionGetProductDetails: {},
			models.ActionCompareProducts:   {},
			models.ActionRecommendItems:    {},
			models.ActionClarifyParams:     {"missing_params"},
			models.ActionGeneralResponse:   {},
		},
		ActionFallback: map[models.ActionKind]string{
			models.ActionSearchProducts:    ProductDiscoveryHandler,
			models.ActionRecommendItems:    ProductDiscoveryHandler,
			models.ActionGeneralResponse:   ProductDiscoveryHandler,
			models.ActionGetProductDetails: ProductDetailHandler,
			models.ActionCompareProducts:   ProductDetailHandler,
			models.ActionClarifyParams:     ClarificationHandler,
		},
		IntentFallback: map[models.IntentKind]string{
			models.IntentProductDiscovery:    ProductDiscoveryHandler,
			models.IntentProductDetail:       ProductDetailHandler,
			models.IntentCompanyInfo:         ProductDiscoveryHandler,
			models.IntentProcessQuestions:    ProductDiscoveryHandler,
			models.IntentGeneralConversation: ProductDiscoveryHandler,
		},
		UltimateFallback: ProductDiscoveryHandler,
		GenericPhrases: []string{
			"I'd be happy to help",
			"I specialize in helping",
			"I couldn't find any results",
			"Let me help you search",
		},
	}
}

// LoadRouting reads routing tables from a YAML file. An empty path yields the defaults.
// Tables missing from the file keep their default values.
func LoadRouting(path string) (*Routing, error) {
	routing := DefaultRouting()
	if path == "" {
		return routing, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing file: %w", err)
	}

	var fromFile Routing
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("failed to parse routing file: %w", err)
	}

	if fromFile.RequiredParams != nil {
		routing.RequiredParams = fromFile.RequiredParams
	}
	if fromFile.ActionFallback != nil {
		routing.ActionFallback = fromFile.ActionFallback
	}
	if fromFile.IntentFallback != nil {
		routing.IntentFallback = fromFile.IntentFallback
	}
	if fromFile.UltimateFallback != "" {
		routing.UltimateFallback = fromFile.UltimateFallback
	}
	if fromFile.GenericPhrases != nil {
		routing.GenericPhrases = fromFile.GenericPhrases
	}

	for kind := range routing.RequiredParams {
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown action kind %q in required_params", kind)
		}
	}
	return routing, nil
}

// Validate checks the routing tables against the set of registered handler names.
func (r *Routing) Validate(registered func(name string) bool) error {
	if r.UltimateFallback == "" {
		return fmt.Errorf("ultimate_fallback cannot be empty")
	}
	if !registered(r.UltimateFallback) {
		return fmt.Errorf("ultimate_fallback %q is not a registered handler", r.UltimateFallback)
	}
	return nil
}

// HandlerForIntent returns the default handler for an intent kind.
func (r *Routing) HandlerForIntent(kind models.IntentKind) string {
	if name, ok := r.IntentFallback[kind]; ok && name != "" {
		return name
	}
	return r.UltimateFallback
}
