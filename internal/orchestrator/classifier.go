package orchestrator

import (
	"context"

	"github.com/avvvet/chatbuddy/internal/config"
	"github.com/avvvet/chatbuddy/internal/llm"
	"github.com/avvvet/chatbuddy/internal/memory"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/avvvet/chatbuddy/internal/prompts"
	"go.uber.org/zap"
)

// ClassifyInput is what the classifier sees of a turn.
type ClassifyInput struct {
	SessionID    string
	Message      string
	History      []models.Message // last K messages before the current one
	Context      map[string]any
	BusinessType models.BusinessType
}

// Classifier assigns an intent to the current user message. Errors are
// either *ParseError or *CallError.
type Classifier interface {
	Classify(ctx context.Context, in ClassifyInput) (*models.Intent, error)
}

// DefaultIntent is used when the classifier output cannot be parsed.
func DefaultIntent() models.Intent {
	return models.Intent{
		Kind:          models.IntentGeneralConversation,
		Confidence:    0.5,
		Entities:      map[string]any{},
		MissingParams: []string{},
	}
}

type LLMClassifier struct {
	provider llm.Provider
	logger   *zap.Logger
}

func NewLLMClassifier(provider llm.Provider, logger *zap.Logger) *LLMClassifier {
	return &LLMClassifier{provider: provider, logger: logger}
}

func (c *LLMClassifier) Classify(ctx context.Context, in ClassifyInput) (*models.Intent, error) {
	prompt, err := prompts.BuildClassificationPrompt(prompts.ClassificationInput{
		Message:      in.Message,
		BusinessType: string(in.BusinessType),
		Business:     config.BusinessFor(in.BusinessType),
		History:      memory.FormatHistory(in.History),
		Context:      in.Context,
	})
	if err != nil {
		return nil, &CallError{Op: "classify", Err: err}
	}

	resp, err := c.provider.Complete(ctx, &llm.LLMRequest{
		SystemPrompt: prompts.ClassificationSystemPrompt,
		Prompt:       prompt,
		MaxTokens:    1000,
		Temperature:  0.1, // low temperature for consistent classification
	})
	if err != nil {
		return nil, &CallError{Op: "classify", Err: err}
	}

	intent, err := prompts.ParseIntent(resp.Content)
	if err != nil {
		c.logger.Warn("failed to parse classification",
			zap.String("session_id", in.SessionID),
			zap.Error(err))
		return nil, &ParseError{Op: "classify", Err: err}
	}

	c.logger.Debug("message classified",
		zap.String("session_id", in.SessionID),
		zap.String("intent", string(intent.Kind)),
		zap.Float64("confidence", intent.Confidence))
	return intent, nil
}
