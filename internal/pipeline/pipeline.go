// Package pipeline sequences a turn: classify, plan, validate and route,
// execute, then respond or handle the error.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/avvvet/chatbuddy/internal/config"
	"github.com/avvvet/chatbuddy/internal/dispatch"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/avvvet/chatbuddy/internal/orchestrator"
	"go.uber.org/zap"
)

const (
	ErrorMessage    = "I apologize, but I encountered an issue processing your request. Please try again or contact our support team."
	FallbackMessage = "I'm here to help! What would you like to know?"

	maxSteps = 16
)

var errorReplies = []string{"Try again", "Contact support", "Browse help"}

// Options tunes a Pipeline.
type Options struct {
	CollaboratorTimeout time.Duration // zero disables the deadline
	HistoryWindow       int
}

type Pipeline struct {
	classifier  orchestrator.Classifier
	planner     orchestrator.Planner
	validator   *dispatch.Validator
	router      *dispatch.Router
	coordinator *dispatch.Coordinator
	selector    *dispatch.Selector
	routing     *config.Routing
	opts        Options
	logger      *zap.Logger
}

func New(
	classifier orchestrator.Classifier,
	planner orchestrator.Planner,
	routing *config.Routing,
	registered func(name string) bool,
	coordinator *dispatch.Coordinator,
	opts Options,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		classifier:  classifier,
		planner:     planner,
		validator:   dispatch.NewValidator(routing, logger),
		router:      dispatch.NewRouter(routing, registered, logger),
		coordinator: coordinator,
		selector:    dispatch.NewSelector(routing.GenericPhrases),
		routing:     routing,
		opts:        opts,
		logger:      logger,
	}
}

// Run drives the state machine from classify to done. The returned context
// always carries a Response.
func (p *Pipeline) Run(ctx context.Context, tc TurnContext) TurnContext {
	stage := StageClassify
	for steps := 0; stage != StageDone; steps++ {
		if steps == maxSteps {
			// unreachable with the transitions below
			tc.Fatal = fmt.Errorf("turn did not finish after %d stages", maxSteps)
			stage = StageHandleError
		}
		tc.Visited = append(tc.Visited, stage)
		stage, tc = p.transition(ctx, stage, tc)
	}
	return tc
}

func (p *Pipeline) transition(ctx context.Context, stage Stage, tc TurnContext) (Stage, TurnContext) {
	p.logger.Debug("turn stage",
		zap.String("session_id", tc.SessionID),
		zap.Stringer("stage", stage))

	switch stage {
	case StageClassify:
		if tc.Fatal == nil {
			tc = p.classify(ctx, tc)
		}
		return StagePlan, tc

	case StagePlan:
		if tc.Fatal == nil {
			tc = p.plan(ctx, tc)
		}
		return StageValidateRoute, tc

	case StageValidateRoute:
		if tc.Fatal == nil {
			validated := p.validator.Validate(tc.Proposed, tc.Intent)
			tc.Actions = p.router.Route(validated, tc.Intent)
			p.logger.Debug("actions routed",
				zap.String("session_id", tc.SessionID),
				zap.Int("proposed", len(tc.Proposed)),
				zap.Int("routed", len(tc.Actions)))
		}
		return StageExecute, tc

	case StageExecute:
		if tc.Fatal != nil {
			return StageHandleError, tc
		}
		tc.Candidates = p.coordinator.Execute(ctx, tc.Actions, tc.State)
		return StageSelectAndRespond, tc

	case StageSelectAndRespond:
		selected := p.selector.Select(tc.Candidates)
		if selected == nil {
			tc.Response = &models.FinalResponse{
				Message:      FallbackMessage,
				Format:       models.FormatQuickReplies,
				QuickReplies: config.BusinessFor(tc.BusinessType).QuickReplies,
				ListItems:    []models.Product{},
				FormFields:   []models.FormField{},
				Metadata:     map[string]any{},
				SessionID:    tc.SessionID,
			}
		} else {
			tc.Response = dispatch.Assemble(selected, tc.SessionID)
		}
		dispatch.AppendAssistant(tc.State, tc.Response)
		return StageDone, tc

	case StageHandleError:
		p.logger.Error("turn failed",
			zap.String("session_id", tc.SessionID),
			zap.Error(tc.Fatal))
		tc.Response = ErrorResponse(tc.SessionID, tc.Fatal.Error(), orchestrator.ErrorCode(tc.Fatal))
		dispatch.AppendAssistant(tc.State, tc.Response)
		return StageDone, tc
	}
	return StageDone, tc
}

func (p *Pipeline) classify(ctx context.Context, tc TurnContext) TurnContext {
	ctx, cancel := p.collaboratorContext(ctx)
	defer cancel()

	intent, err := p.classifier.Classify(ctx, orchestrator.ClassifyInput{
		SessionID:    tc.SessionID,
		Message:      tc.Message,
		History:      p.history(tc),
		Context:      tc.State.Context,
		BusinessType: tc.BusinessType,
	})
	switch {
	case err == nil:
		tc.Intent = *intent
	case orchestrator.IsParseError(err):
		tc.Intent = orchestrator.DefaultIntent()
	default:
		tc.Fatal = err
		return tc
	}

	// handlers read the intent from the state during execute
	current := tc.Intent
	tc.State.CurrentIntent = &current
	return tc
}

func (p *Pipeline) plan(ctx context.Context, tc TurnContext) TurnContext {
	ctx, cancel := p.collaboratorContext(ctx)
	defer cancel()

	actions, err := p.planner.Plan(ctx, orchestrator.PlanInput{
		SessionID:    tc.SessionID,
		Intent:       tc.Intent,
		BusinessType: tc.BusinessType,
		Context:      tc.State.Context,
	})
	switch {
	case err == nil:
		tc.Proposed = actions
	case orchestrator.IsParseError(err):
		tc.Proposed = []models.Action{orchestrator.FallbackAction(tc.Intent, p.routing)}
	default:
		tc.Fatal = err
	}
	return tc
}

// history returns up to K messages preceding the current user message.
func (p *Pipeline) history(tc TurnContext) []models.Message {
	msgs := tc.State.Recent(p.opts.HistoryWindow + 1)
	if n := len(msgs); n > 0 && msgs[n-1].Role == models.RoleUser && msgs[n-1].Text == tc.Message {
		msgs = msgs[:n-1]
	}
	if len(msgs) > p.opts.HistoryWindow {
		msgs = msgs[len(msgs)-p.opts.HistoryWindow:]
	}
	return msgs
}

func (p *Pipeline) collaboratorContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.CollaboratorTimeout > 0 {
		return context.WithTimeout(ctx, p.opts.CollaboratorTimeout)
	}
	return context.WithCancel(ctx)
}

// ErrorResponse is the fixed apology returned when a turn cannot complete.
// The error detail only travels in metadata.
func ErrorResponse(sessionID, detail, code string) *models.FinalResponse {
	return &models.FinalResponse{
		Message:      ErrorMessage,
		Format:       models.FormatQuickReplies,
		QuickReplies: append([]string(nil), errorReplies...),
		ListItems:    []models.Product{},
		FormFields:   []models.FormField{},
		Metadata: map[string]any{
			"error":      detail,
			"error_code": code,
		},
		SessionID: sessionID,
	}
}
