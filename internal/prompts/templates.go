package prompts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	lcprompts "github.com/tmc/langchaingo/prompts"
)

const ClassificationSystemPrompt = `You are an intelligent conversation classifier for a customer service system.
Your job is to analyze user messages and classify them into one of five conversation types:

1. company_info: Questions about the business, services, locations, hours, policies
2. product_discovery: Looking for products/services, recommendations, browsing (general search)
3. product_detail: Questions about specific products, detailed information, specifications, comparisons
4. process_questions: Questions about purchasing, ordering, delivery, returns, account issues
5. general_conversation: Greetings, small talk, or unclear intent

IMPORTANT: You must respond with exact lowercase values for conversation_type.

RESPONSE FORMAT:
You must respond with a valid JSON object in this exact format:
{
  "conversation_type": "one of the five types above",
  "confidence": 0.0 to 1.0,
  "entities": {"entity_name": "value"},
  "missing_params": ["param_name"]
}

Only mark parameters as missing if they are absolutely critical for the query.
For product_detail queries, product_id is NEVER required; product names, brands and models are sufficient.`

const classificationHumanTemplate = `Business Type: {{.business_type}}
Business Context: {{.business_context}}

Conversation History:
{{.conversation_history}}

Current Context: {{.current_context}}

User Message: "{{.message}}"

Classify this message and return a JSON response:`

const PlanningSystemPrompt = `You are an action planning agent for a customer service system.
Based on the classified user intent, determine the optimal sequence of actions to take.

Available Actions:
- search_products: Search for products/services (general search)
- get_company_info: Retrieve company information
- get_product_details: Get detailed information about specific products
- compare_products: Compare multiple products side-by-side
- track_order: Track order status
- clarify_params: Ask for missing parameters
- recommend_items: Generate recommendations
- general_response: Provide general conversational response

Agent Assignments (use these exact agent names):
{{.handlers}}

GUIDELINES:
- For product searches with clear criteria (e.g., "laptops under $1000"), use search_products directly
- For product detail queries with clear product names, use get_product_details directly
- Only use clarify_params if critical information is missing

For each action, specify:
- action_type: the action to take
- agent_name: which specialized agent should handle it
- parameters: specific parameters for the action
- priority: 1-10 (10 being highest priority)
- instructions: specific instructions for the agent

Return a JSON object with an "actions" array.`

const planningHumanTemplate = `User Intent: {{.user_intent}}
Conversation Flow: {{.conversation_flow}}
Business Configuration: {{.business_config}}
Current Context: {{.current_context}}
Available Actions: {{.available_actions}}

Plan the optimal actions to address this user intent:`

const ProductDetailSystemPrompt = `You are a product specialist for a {{.business_type}} business.
Write a short, friendly description of the product below for a customer.
Respond with a JSON object: {"message": "text for the customer", "quick_replies": ["up to four short follow-ups"]}`

const productDetailHumanTemplate = `Product:
{{.product}}

Recent conversation:
{{.conversation_history}}`

var (
	classificationHuman = lcprompts.NewPromptTemplate(classificationHumanTemplate,
		[]string{"business_type", "business_context", "conversation_history", "current_context", "message"})
	planningSystem = lcprompts.NewPromptTemplate(PlanningSystemPrompt, []string{"handlers"})
	planningHuman  = lcprompts.NewPromptTemplate(planningHumanTemplate,
		[]string{"user_intent", "conversation_flow", "business_config", "current_context", "available_actions"})
	productDetailSystem = lcprompts.NewPromptTemplate(ProductDetailSystemPrompt, []string{"business_type"})
	productDetailHuman  = lcprompts.NewPromptTemplate(productDetailHumanTemplate, []string{"product", "conversation_history"})
)

// ClassificationInput carries the values rendered into the classification prompt.
type ClassificationInput struct {
	Message      string
	BusinessType string
	Business     any
	History      string
	Context      map[string]any
}

func BuildClassificationPrompt(in ClassificationInput) (string, error) {
	return classificationHuman.Format(map[string]any{
		"business_type":        in.BusinessType,
		"business_context":     toJSON(in.Business),
		"conversation_history": historyOrPlaceholder(in.History),
		"current_context":      toJSON(in.Context),
		"message":              in.Message,
	})
}

// PlanningInput carries the values rendered into the planning prompts.
type PlanningInput struct {
	Intent           any
	Flow             any
	Business         any
	Context          map[string]any
	AvailableActions []string
	Handlers         map[string][]string // handler name -> supported action kinds
}

func BuildPlanningPrompts(in PlanningInput) (system, human string, err error) {
	system, err = planningSystem.Format(map[string]any{
		"handlers": buildHandlersSection(in.Handlers),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to render planning system prompt: %w", err)
	}

	human, err = planningHuman.Format(map[string]any{
		"user_intent":       toJSON(in.Intent),
		"conversation_flow": toJSON(in.Flow),
		"business_config":   toJSON(in.Business),
		"current_context":   toJSON(in.Context),
		"available_actions": strings.Join(in.AvailableActions, ", "),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to render planning prompt: %w", err)
	}
	return system, human, nil
}

func BuildProductDetailPrompts(businessType string, product any, history string) (system, human string, err error) {
	system, err = productDetailSystem.Format(map[string]any{"business_type": businessType})
	if err != nil {
		return "", "", err
	}
	human, err = productDetailHuman.Format(map[string]any{
		"product":              toJSON(product),
		"conversation_history": historyOrPlaceholder(history),
	})
	if err != nil {
		return "", "", err
	}
	return system, human, nil
}

func buildHandlersSection(handlers map[string][]string) string {
	var builder strings.Builder

	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		builder.WriteString(fmt.Sprintf("- %s: %s\n", name, strings.Join(handlers[name], ", ")))
	}
	return builder.String()
}

func historyOrPlaceholder(history string) string {
	if strings.TrimSpace(history) == "" {
		return "No previous conversation."
	}
	return history
}

func toJSON(v any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
