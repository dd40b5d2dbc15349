// Package dispatch turns a planned action list into one final response:
// validation, deduplication, routing, execution, selection and assembly.
package dispatch

import (
	"reflect"
	"strings"

	"github.com/avvvet/chatbuddy/internal/config"
	"github.com/avvvet/chatbuddy/internal/models"
	"go.uber.org/zap"
)

// Validator checks actions against the required-parameters table and
// inserts clarification actions for the ones missing parameters.
type Validator struct {
	routing *config.Routing
	logger  *zap.Logger
}

func NewValidator(routing *config.Routing, logger *zap.Logger) *Validator {
	return &Validator{routing: routing, logger: logger}
}

// Validate walks actions in planner order. A clarification action is placed
// immediately before the action it clarifies; the result is not re-sorted.
func (v *Validator) Validate(actions []models.Action, intent models.Intent) []models.Action {
	out := make([]models.Action, 0, len(actions))

	for _, action := range actions {
		missing := missingParams(v.routing.RequiredParams[action.Kind], action.Parameters)
		if len(missing) > 0 {
			clarify := v.clarificationFor(action, missing, intent)
			v.logger.Debug("inserting clarification action",
				zap.String("action", string(action.Kind)),
				zap.Strings("missing", missing),
				zap.String("handler", clarify.HandlerName))
			out = append(out, clarify)
		}
		out = append(out, action)
	}
	return out
}

func (v *Validator) clarificationFor(original models.Action, missing []string, intent models.Intent) models.Action {
	priority := original.Priority + 1
	if priority > models.MaxPriority {
		priority = models.MaxPriority
	}

	context := original.Parameters
	if context == nil {
		context = map[string]any{}
	}

	return models.Action{
		Kind:        models.ActionClarifyParams,
		HandlerName: v.routing.HandlerForIntent(intent.Kind),
		Parameters: map[string]any{
			"missing_params": missing,
			"context":        context,
		},
		Priority:     priority,
		Instructions: "clarify: " + strings.Join(missing, ", "),
	}
}

func missingParams(required []string, params map[string]any) []string {
	var missing []string
	for _, name := range required {
		if isFalsy(params[name]) {
			missing = append(missing, name)
		}
	}
	return missing
}

// isFalsy reports whether a parameter value counts as not provided:
// nil, false, numeric zero, empty string, empty slice or map.
func isFalsy(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return !rv.Bool()
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
