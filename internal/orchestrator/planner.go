package orchestrator

import (
	"context"

	"github.com/avvvet/chatbuddy/internal/config"
	"github.com/avvvet/chatbuddy/internal/llm"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/avvvet/chatbuddy/internal/prompts"
	"go.uber.org/zap"
)

// PlanInput is what the planner sees of a turn.
type PlanInput struct {
	SessionID    string
	Intent       models.Intent
	BusinessType models.BusinessType
	Context      map[string]any
}

// Planner proposes the actions of a turn. Errors are either *ParseError or *CallError.
type Planner interface {
	Plan(ctx context.Context, in PlanInput) ([]models.Action, error)
}

// FallbackAction is the single action used when the planner output cannot be parsed.
func FallbackAction(intent models.Intent, routing *config.Routing) models.Action {
	return models.Action{
		Kind:        models.ActionGeneralResponse,
		HandlerName: routing.HandlerForIntent(intent.Kind),
		Parameters:  map[string]any{},
		Priority:    models.MinPriority,
	}
}

type LLMPlanner struct {
	provider     llm.Provider
	capabilities map[string][]string
	logger       *zap.Logger
}

// NewLLMPlanner takes the handler capabilities advertised to the model,
// usually registry.Capabilities().
func NewLLMPlanner(provider llm.Provider, capabilities map[string][]string, logger *zap.Logger) *LLMPlanner {
	return &LLMPlanner{provider: provider, capabilities: capabilities, logger: logger}
}

func (p *LLMPlanner) Plan(ctx context.Context, in PlanInput) ([]models.Action, error) {
	available := make([]string, 0, len(models.ActionKinds))
	for _, kind := range models.ActionKinds {
		available = append(available, string(kind))
	}

	system, human, err := prompts.BuildPlanningPrompts(prompts.PlanningInput{
		Intent:           in.Intent,
		Flow:             config.FlowFor(in.Intent.Kind),
		Business:         config.BusinessFor(in.BusinessType),
		Context:          in.Context,
		AvailableActions: available,
		Handlers:         p.capabilities,
	})
	if err != nil {
		return nil, &CallError{Op: "plan", Err: err}
	}

	resp, err := p.provider.Complete(ctx, &llm.LLMRequest{
		SystemPrompt: system,
		Prompt:       human,
		MaxTokens:    1500,
		Temperature:  0.2,
	})
	if err != nil {
		return nil, &CallError{Op: "plan", Err: err}
	}

	actions, err := prompts.ParseActions(resp.Content)
	if err != nil {
		p.logger.Warn("failed to parse action plan",
			zap.String("session_id", in.SessionID),
			zap.Error(err))
		return nil, &ParseError{Op: "plan", Err: err}
	}

	p.logger.Debug("actions planned",
		zap.String("session_id", in.SessionID),
		zap.Int("count", len(actions)))
	return actions, nil
}
