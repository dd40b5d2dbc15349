package prompts

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/avvvet/chatbuddy/internal/models"
)

var ErrNoJSON = errors.New("no valid JSON found in response")

// ParseIntent parses a classifier response into an Intent.
// Missing fields, unknown kinds and out-of-range confidence are errors.
func ParseIntent(content string) (*models.Intent, error) {
	jsonContent := ExtractJSON(content)
	if jsonContent == "" {
		return nil, ErrNoJSON
	}

	var raw struct {
		ConversationType *string        `json:"conversation_type"`
		Confidence       *float64       `json:"confidence"`
		Entities         map[string]any `json:"entities"`
		MissingParams    []string       `json:"missing_params"`
	}
	if err := json.Unmarshal([]byte(jsonContent), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if raw.ConversationType == nil {
		return nil, fmt.Errorf("missing conversation_type")
	}
	kind := models.IntentKind(strings.ToLower(strings.TrimSpace(*raw.ConversationType)))
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown conversation_type %q", *raw.ConversationType)
	}
	if raw.Confidence == nil {
		return nil, fmt.Errorf("missing confidence")
	}
	if *raw.Confidence < 0 || *raw.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", *raw.Confidence)
	}

	intent := &models.Intent{
		Kind:          kind,
		Confidence:    *raw.Confidence,
		Entities:      raw.Entities,
		MissingParams: raw.MissingParams,
	}
	if intent.Entities == nil {
		intent.Entities = make(map[string]any)
	}
	if intent.MissingParams == nil {
		intent.MissingParams = []string{}
	}
	return intent, nil
}

// ParseActions parses a planner response into actions ordered by descending priority.
// Actions with equal priority keep their proposed order.
func ParseActions(content string) ([]models.Action, error) {
	jsonContent := ExtractJSON(content)
	if jsonContent == "" {
		return nil, ErrNoJSON
	}

	var raw struct {
		Actions *[]struct {
			ActionType   *string        `json:"action_type"`
			AgentName    *string        `json:"agent_name"`
			Parameters   map[string]any `json:"parameters"`
			Priority     *int           `json:"priority"`
			Instructions string         `json:"instructions"`
		} `json:"actions"`
	}
	if err := json.Unmarshal([]byte(jsonContent), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if raw.Actions == nil {
		return nil, fmt.Errorf("missing actions")
	}

	actions := make([]models.Action, 0, len(*raw.Actions))
	for i, item := range *raw.Actions {
		if item.ActionType == nil {
			return nil, fmt.Errorf("action %d: missing action_type", i)
		}
		kind := models.ActionKind(*item.ActionType)
		if !kind.Valid() {
			return nil, fmt.Errorf("action %d: unknown action_type %q", i, *item.ActionType)
		}
		if item.AgentName == nil {
			return nil, fmt.Errorf("action %d: missing agent_name", i)
		}

		priority := models.MinPriority
		if item.Priority != nil {
			priority = *item.Priority
		}
		if priority < models.MinPriority || priority > models.MaxPriority {
			return nil, fmt.Errorf("action %d: priority %d out of range", i, priority)
		}

		params := item.Parameters
		if params == nil {
			params = make(map[string]any)
		}
		actions = append(actions, models.Action{
			Kind:         kind,
			HandlerName:  *item.AgentName,
			Parameters:   params,
			Priority:     priority,
			Instructions: item.Instructions,
		})
	}

	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Priority > actions[j].Priority
	})
	return actions, nil
}

// ParseReply parses a content-generation response of the form {"message", "quick_replies"}.
// Plain text is returned as the message.
func ParseReply(content string) (message string, quickReplies []string) {
	if jsonContent := ExtractJSON(content); jsonContent != "" {
		var reply struct {
			Message      string   `json:"message"`
			QuickReplies []string `json:"quick_replies"`
		}
		if err := json.Unmarshal([]byte(jsonContent), &reply); err == nil && reply.Message != "" {
			return reply.Message, reply.QuickReplies
		}
	}
	return strings.TrimSpace(content), nil
}

// ExtractJSON strips markdown fences and returns the outermost JSON object in content.
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}

	end := strings.LastIndex(content, "}")
	if end == -1 || end <= start {
		return ""
	}

	return content[start : end+1]
}
