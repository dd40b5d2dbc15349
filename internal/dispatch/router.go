package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/avvvet/chatbuddy/internal/config"
	"github.com/avvvet/chatbuddy/internal/models"
	"go.uber.org/zap"
)

// Key identifies structurally identical actions.
type Key struct {
	Kind        models.ActionKind
	HandlerName string
	Params      string
}

// DedupKey builds the key of an action. Parameters are serialized as JSON,
// which orders map keys at every level; nil and empty maps give "".
func DedupKey(action models.Action) Key {
	key := Key{Kind: action.Kind, HandlerName: action.HandlerName}
	if len(action.Parameters) == 0 {
		return key
	}
	data, err := json.Marshal(action.Parameters)
	if err != nil {
		// unserializable values still need a stable key
		key.Params = fmt.Sprintf("%v", action.Parameters)
		return key
	}
	key.Params = string(data)
	return key
}

// Deduplicate drops every action whose key was already seen, keeping the
// first occurrence and the original order.
func Deduplicate(actions []models.Action) []models.Action {
	seen := make(map[Key]struct{}, len(actions))
	out := make([]models.Action, 0, len(actions))
	for _, action := range actions {
		key := DedupKey(action)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, action)
	}
	return out
}

// Router rewrites actions that target unregistered handlers.
type Router struct {
	routing    *config.Routing
	registered func(name string) bool
	logger     *zap.Logger
}

func NewRouter(routing *config.Routing, registered func(name string) bool, logger *zap.Logger) *Router {
	return &Router{routing: routing, registered: registered, logger: logger}
}

// Route deduplicates actions and resolves each to a registered handler:
// action table, then intent table, then the ultimate fallback. An empty
// result is replaced by a single general_response action.
func (r *Router) Route(actions []models.Action, intent models.Intent) []models.Action {
	deduped := Deduplicate(actions)
	if dropped := len(actions) - len(deduped); dropped > 0 {
		r.logger.Warn("dropped duplicate actions", zap.Int("dropped", dropped))
	}

	for i := range deduped {
		action := &deduped[i]
		if r.registered(action.HandlerName) {
			continue
		}
		target := r.fallbackFor(action.Kind, intent.Kind)
		r.logger.Warn("rerouting action to fallback handler",
			zap.String("action", string(action.Kind)),
			zap.String("from", action.HandlerName),
			zap.String("to", target))
		action.HandlerName = target
	}

	if len(deduped) == 0 {
		deduped = append(deduped, models.Action{
			Kind:        models.ActionGeneralResponse,
			HandlerName: r.intentFallback(intent.Kind),
			Parameters:  map[string]any{},
			Priority:    models.MinPriority,
		})
	}
	return deduped
}

// fallbackFor skips table entries that name unregistered handlers, so the
// result is registered whenever the ultimate fallback is.
func (r *Router) fallbackFor(action models.ActionKind, intent models.IntentKind) string {
	if name, ok := r.routing.ActionFallback[action]; ok && r.registered(name) {
		return name
	}
	return r.intentFallback(intent)
}

func (r *Router) intentFallback(intent models.IntentKind) string {
	if name, ok := r.routing.IntentFallback[intent]; ok && r.registered(name) {
		return name
	}
	return r.routing.UltimateFallback
}
