package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/avvvet/chatbuddy/internal/memory"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/avvvet/chatbuddy/internal/registry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	HandlerErrorMessage = "I apologize, but I encountered an issue processing your request. Please try rephrasing or contact support."
	UnavailableMessage  = "I understand your request, but I'm not able to process it right now. Please try again or contact support."

	// OrchestratorName is the handler name on candidates built for unregistered handlers.
	OrchestratorName = "orchestrator"
)

// HandlerSource resolves handler names.
type HandlerSource interface {
	Lookup(name string) (registry.Handler, bool)
}

// CoordinatorOptions configures execution.
type CoordinatorOptions struct {
	HandlerTimeout time.Duration // zero disables the per-handler deadline
	Parallel       bool
	MaxParallel    int // ignored unless Parallel; zero means one goroutine per action
}

// Coordinator runs actions against their handlers with per-action isolation.
type Coordinator struct {
	handlers HandlerSource
	opts     CoordinatorOptions
	logger   *zap.Logger
}

func NewCoordinator(handlers HandlerSource, opts CoordinatorOptions, logger *zap.Logger) *Coordinator {
	return &Coordinator{handlers: handlers, opts: opts, logger: logger}
}

// Execute returns exactly one candidate per action, in action order.
// Handler failures never escape; they become synthetic candidates.
func (c *Coordinator) Execute(ctx context.Context, actions []models.Action, state *memory.ConversationState) []*models.CandidateResponse {
	candidates := make([]*models.CandidateResponse, len(actions))

	if !c.opts.Parallel || len(actions) < 2 {
		for i, action := range actions {
			candidates[i] = c.executeOne(ctx, action, state)
		}
		return candidates
	}

	// each goroutine owns one slot, so output order matches action order
	g, gctx := errgroup.WithContext(ctx)
	if c.opts.MaxParallel > 0 {
		g.SetLimit(c.opts.MaxParallel)
	}
	for i, action := range actions {
		g.Go(func() error {
			candidates[i] = c.executeOne(gctx, action, state)
			return nil
		})
	}
	_ = g.Wait()
	return candidates
}

func (c *Coordinator) executeOne(ctx context.Context, action models.Action, state *memory.ConversationState) *models.CandidateResponse {
	handler, ok := c.handlers.Lookup(action.HandlerName)
	if !ok {
		c.logger.Warn("no handler registered for action",
			zap.String("handler", action.HandlerName),
			zap.String("action", string(action.Kind)))
		return &models.CandidateResponse{
			HandlerName: OrchestratorName,
			Content:     UnavailableMessage,
			Format:      models.FormatText,
		}
	}

	candidate, err := c.invoke(ctx, handler, action, state)
	if err == nil && candidate == nil {
		err = fmt.Errorf("handler %s returned no response", action.HandlerName)
	}
	if err != nil {
		c.logger.Warn("handler execution failed",
			zap.String("handler", action.HandlerName),
			zap.String("action", string(action.Kind)),
			zap.Error(err))
		return &models.CandidateResponse{
			HandlerName: action.HandlerName,
			Content:     HandlerErrorMessage,
			Format:      models.FormatText,
			Metadata: map[string]any{
				"error":  true,
				"detail": err.Error(),
			},
		}
	}
	return candidate
}

// invoke calls the handler under the handler deadline and turns a panic into an error.
func (c *Coordinator) invoke(ctx context.Context, handler registry.Handler, action models.Action, state *memory.ConversationState) (candidate *models.CandidateResponse, err error) {
	if c.opts.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.HandlerTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panicked",
				zap.String("handler", action.HandlerName),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			candidate, err = nil, fmt.Errorf("handler %s panicked: %v", action.HandlerName, r)
		}
	}()

	candidate, err = handler.Execute(ctx, action, state)
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("handler %s: %w", action.HandlerName, ctx.Err())
	}
	return candidate, err
}
