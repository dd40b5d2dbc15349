package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avvvet/chatbuddy/internal/config"
	"github.com/avvvet/chatbuddy/internal/dispatch"
	"github.com/avvvet/chatbuddy/internal/memory"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/avvvet/chatbuddy/internal/orchestrator"
	"github.com/avvvet/chatbuddy/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
		goleak.IgnoreTopFunction("github.com/redis/go-redis/v9/internal/pool.startGlobalTimeCache.func1"),
	)
}

type classifyFunc func(ctx context.Context, in orchestrator.ClassifyInput) (*models.Intent, error)

func (f classifyFunc) Classify(ctx context.Context, in orchestrator.ClassifyInput) (*models.Intent, error) {
	return f(ctx, in)
}

type planFunc func(ctx context.Context, in orchestrator.PlanInput) ([]models.Action, error)

func (f planFunc) Plan(ctx context.Context, in orchestrator.PlanInput) ([]models.Action, error) {
	return f(ctx, in)
}

type stubHandler struct {
	calls   atomic.Int32
	respond func(action models.Action, state *memory.ConversationState) (*models.CandidateResponse, error)
}

func (h *stubHandler) Execute(_ context.Context, action models.Action, state *memory.ConversationState) (*models.CandidateResponse, error) {
	h.calls.Add(1)
	return h.respond(action, state)
}

func (h *stubHandler) SupportedActions() []models.ActionKind {
	return models.ActionKinds
}

func listHandler() *stubHandler {
	return &stubHandler{respond: func(models.Action, *memory.ConversationState) (*models.CandidateResponse, error) {
		return &models.CandidateResponse{
			HandlerName: config.ProductDiscoveryHandler,
			Content:     "I found 2 great options for laptops:",
			Format:      models.FormatCarousel,
			Payload:     &models.ListPayload{Items: []models.Product{{ID: "a"}, {ID: "b"}}},
		}, nil
	}}
}

func genericHandler() *stubHandler {
	return &stubHandler{respond: func(models.Action, *memory.ConversationState) (*models.CandidateResponse, error) {
		return &models.CandidateResponse{
			HandlerName: config.ProductDetailHandler,
			Content:     "I'd be happy to help with that.",
			Format:      models.FormatText,
		}, nil
	}}
}

func fixedIntent(kind models.IntentKind) classifyFunc {
	return func(context.Context, orchestrator.ClassifyInput) (*models.Intent, error) {
		return &models.Intent{Kind: kind, Confidence: 0.9, Entities: map[string]any{}, MissingParams: []string{}}, nil
	}
}

func fixedPlan(actions ...models.Action) planFunc {
	return func(context.Context, orchestrator.PlanInput) ([]models.Action, error) {
		return actions, nil
	}
}

type fixture struct {
	discovery *stubHandler
	detail    *stubHandler
	pipeline  *Pipeline
	service   *Service
	store     *memory.CacheStore
}

func newFixture(t *testing.T, classifier orchestrator.Classifier, planner orchestrator.Planner, opts Options) *fixture {
	t.Helper()
	f := &fixture{discovery: listHandler(), detail: genericHandler()}

	reg := registry.New()
	require.NoError(t, reg.Register(config.ProductDiscoveryHandler, f.discovery))
	require.NoError(t, reg.Register(config.ProductDetailHandler, f.detail))
	reg.Seal()

	logger := zap.NewNop()
	routing := config.DefaultRouting()
	coordinator := dispatch.NewCoordinator(reg, dispatch.CoordinatorOptions{}, logger)
	if opts.HistoryWindow == 0 {
		opts.HistoryWindow = 5
	}
	f.pipeline = New(classifier, planner, routing, reg.Has, coordinator, opts, logger)
	f.store = memory.NewCacheStore(time.Minute)
	f.service = NewService(f.pipeline, memory.NewManager(f.store, logger), models.BusinessEcommerce, logger)
	return f
}

func search(handler string) models.Action {
	return models.Action{
		Kind:        models.ActionSearchProducts,
		HandlerName: handler,
		Parameters:  map[string]any{"query": "laptops"},
		Priority:    8,
	}
}

func TestProcessTurnSelectsBestCandidate(t *testing.T) {
	f := newFixture(t,
		fixedIntent(models.IntentProductDiscovery),
		fixedPlan(
			models.Action{Kind: models.ActionGetProductDetails, HandlerName: config.ProductDetailHandler, Priority: 9},
			search(config.ProductDiscoveryHandler),
		),
		Options{})
	ctx := context.Background()

	resp := f.service.ProcessTurn(ctx, models.TurnRequest{SessionID: "s1", Message: "show me laptops"})
	require.NotNil(t, resp)
	assert.Equal(t, models.FormatCarousel, resp.Format)
	assert.Equal(t, "I found 2 great options for laptops:", resp.Message)
	assert.Len(t, resp.ListItems, 2)
	assert.Equal(t, "s1", resp.SessionID)

	state, err := f.store.Load(ctx, "s1")
	require.NoError(t, err)
	msgs := state.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, resp.Message, msgs[1].Text)
	require.NotNil(t, state.CurrentIntent)
	assert.Equal(t, models.IntentProductDiscovery, state.CurrentIntent.Kind)
	assert.Equal(t, models.BusinessEcommerce, state.BusinessType)
}

func TestPlannerCallFailureSkipsExecution(t *testing.T) {
	f := newFixture(t,
		fixedIntent(models.IntentProductDiscovery),
		planFunc(func(context.Context, orchestrator.PlanInput) ([]models.Action, error) {
			return nil, &orchestrator.CallError{Op: "plan", Err: errors.New("connection reset by peer")}
		}),
		Options{})

	state := memory.NewConversationState("s2")
	state.Append(models.RoleUser, "hello", nil)
	tc := f.pipeline.Run(context.Background(), TurnContext{SessionID: "s2", Message: "hello", State: state})

	assert.Equal(t, []Stage{StageClassify, StagePlan, StageValidateRoute, StageExecute, StageHandleError}, tc.Visited)
	assert.Nil(t, tc.Candidates)
	assert.Nil(t, tc.Actions)
	assert.Zero(t, f.discovery.calls.Load())
	assert.Zero(t, f.detail.calls.Load())

	resp := tc.Response
	require.NotNil(t, resp)
	assert.Equal(t, models.FormatQuickReplies, resp.Format)
	assert.Equal(t, ErrorMessage, resp.Message)
	assert.Equal(t, []string{"Try again", "Contact support", "Browse help"}, resp.QuickReplies)
	assert.Contains(t, resp.Metadata["error"], "connection reset by peer")
	assert.Equal(t, models.ErrorLLMFailed, resp.Metadata["error_code"])
	assert.NotContains(t, resp.Message, "connection reset")

	require.Equal(t, 2, state.Len())
	assert.Equal(t, ErrorMessage, state.Messages()[1].Text)
}

func TestClassifierCallFailureIsFatal(t *testing.T) {
	var planned atomic.Bool
	f := newFixture(t,
		classifyFunc(func(context.Context, orchestrator.ClassifyInput) (*models.Intent, error) {
			return nil, &orchestrator.CallError{Op: "classify", Err: errors.New("503 service unavailable")}
		}),
		planFunc(func(context.Context, orchestrator.PlanInput) ([]models.Action, error) {
			planned.Store(true)
			return nil, nil
		}),
		Options{})

	resp := f.service.ProcessTurn(context.Background(), models.TurnRequest{SessionID: "s3", Message: "hi"})
	assert.Equal(t, ErrorMessage, resp.Message)
	assert.False(t, planned.Load(), "planner is not called after a fatal classification")
}

func TestMalformedCollaboratorOutputUsesDefaults(t *testing.T) {
	var seenIntent models.Intent
	f := newFixture(t,
		classifyFunc(func(context.Context, orchestrator.ClassifyInput) (*models.Intent, error) {
			return nil, &orchestrator.ParseError{Op: "classify", Err: errors.New("unknown conversation_type")}
		}),
		planFunc(func(_ context.Context, in orchestrator.PlanInput) ([]models.Action, error) {
			seenIntent = in.Intent
			return nil, &orchestrator.ParseError{Op: "plan", Err: errors.New("missing actions")}
		}),
		Options{})

	state := memory.NewConversationState("s4")
	state.Append(models.RoleUser, "blah", nil)
	tc := f.pipeline.Run(context.Background(), TurnContext{SessionID: "s4", Message: "blah", State: state})

	assert.NoError(t, tc.Fatal)
	assert.Equal(t, orchestrator.DefaultIntent(), seenIntent)
	require.Len(t, tc.Actions, 1)
	assert.Equal(t, models.ActionGeneralResponse, tc.Actions[0].Kind)
	assert.Equal(t, config.ProductDiscoveryHandler, tc.Actions[0].HandlerName)
	assert.Equal(t, models.MinPriority, tc.Actions[0].Priority)
	assert.Equal(t, StageSelectAndRespond, tc.Visited[len(tc.Visited)-1])
	assert.NotContains(t, tc.Response.Metadata, "error")
}

func TestHandlerFailureIsIsolated(t *testing.T) {
	f := newFixture(t,
		fixedIntent(models.IntentProductDiscovery),
		fixedPlan(
			models.Action{Kind: models.ActionGetProductDetails, HandlerName: config.ProductDetailHandler, Priority: 9},
			search(config.ProductDiscoveryHandler),
		),
		Options{})
	f.detail.respond = func(models.Action, *memory.ConversationState) (*models.CandidateResponse, error) {
		return nil, errors.New("catalog offline")
	}

	state := memory.NewConversationState("s5")
	state.Append(models.RoleUser, "laptops", nil)
	tc := f.pipeline.Run(context.Background(), TurnContext{SessionID: "s5", Message: "laptops", State: state})

	require.Len(t, tc.Candidates, 2)
	assert.Equal(t, true, tc.Candidates[0].Metadata["error"])
	assert.Equal(t, models.FormatCarousel, tc.Response.Format)
	assert.NotContains(t, tc.Response.Metadata, "error")
}

func TestUnregisteredHandlerIsRerouted(t *testing.T) {
	f := newFixture(t,
		fixedIntent(models.IntentProductDetail),
		fixedPlan(models.Action{Kind: models.ActionTrackOrder, HandlerName: "order_agent", Priority: 5}),
		Options{})

	state := memory.NewConversationState("s6")
	state.Append(models.RoleUser, "where is my order", nil)
	tc := f.pipeline.Run(context.Background(), TurnContext{SessionID: "s6", Message: "where is my order", State: state})

	require.Len(t, tc.Actions, 1)
	assert.Equal(t, config.ProductDetailHandler, tc.Actions[0].HandlerName)
	assert.Equal(t, int32(1), f.detail.calls.Load())
}

func TestCollaboratorTimeoutIsFatal(t *testing.T) {
	f := newFixture(t,
		classifyFunc(func(ctx context.Context, _ orchestrator.ClassifyInput) (*models.Intent, error) {
			<-ctx.Done()
			return nil, &orchestrator.CallError{Op: "classify", Err: ctx.Err()}
		}),
		fixedPlan(),
		Options{CollaboratorTimeout: 20 * time.Millisecond})

	resp := f.service.ProcessTurn(context.Background(), models.TurnRequest{SessionID: "s7", Message: "hello"})
	assert.Equal(t, ErrorMessage, resp.Message)
	assert.Equal(t, models.ErrorLLMTimeout, resp.Metadata["error_code"])
}

func TestHistoryExcludesCurrentMessage(t *testing.T) {
	var history []models.Message
	f := newFixture(t,
		classifyFunc(func(_ context.Context, in orchestrator.ClassifyInput) (*models.Intent, error) {
			history = in.History
			return &models.Intent{Kind: models.IntentGeneralConversation, Confidence: 1}, nil
		}),
		fixedPlan(search(config.ProductDiscoveryHandler)),
		Options{HistoryWindow: 2})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.service.ProcessTurn(ctx, models.TurnRequest{SessionID: "s8", Message: fmt.Sprintf("message %d", i)})
	}

	require.Len(t, history, 2)
	assert.Equal(t, "message 1", history[0].Text)
	assert.Equal(t, models.RoleAssistant, history[1].Role)
}

func TestProcessTurnSerializesSession(t *testing.T) {
	var inside, overlap atomic.Int32
	f := newFixture(t,
		classifyFunc(func(context.Context, orchestrator.ClassifyInput) (*models.Intent, error) {
			if inside.Add(1) > 1 {
				overlap.Add(1)
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			return &models.Intent{Kind: models.IntentProductDiscovery, Confidence: 1}, nil
		}),
		fixedPlan(search(config.ProductDiscoveryHandler)),
		Options{})
	ctx := context.Background()

	const turns = 10
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.service.ProcessTurn(ctx, models.TurnRequest{SessionID: "shared", Message: "laptops"})
		}()
	}
	wg.Wait()

	assert.Zero(t, overlap.Load())
	state, err := f.store.Load(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, 2*turns, state.Len())
}

func TestProcessTurnRecoversPanics(t *testing.T) {
	f := newFixture(t,
		fixedIntent(models.IntentProductDiscovery),
		planFunc(func(context.Context, orchestrator.PlanInput) ([]models.Action, error) {
			panic("planner exploded")
		}),
		Options{})

	ctx := context.Background()
	resp := f.service.ProcessTurn(ctx, models.TurnRequest{SessionID: "s9", Message: "hi"})
	assert.Equal(t, ErrorMessage, resp.Message)
	assert.Equal(t, models.ErrorInternal, resp.Metadata["error_code"])
	assert.Zero(t, f.service.ActiveSessions())

	state, err := f.store.Load(ctx, "s9")
	require.NoError(t, err)
	msgs := state.Messages()
	require.Len(t, msgs, 2, "the failed turn stays in the history")
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, ErrorMessage, msgs[1].Text)
	assert.Equal(t, models.ErrorInternal, msgs[1].Metadata["error_code"])
}

func TestProcessTurnRejectsInvalidRequests(t *testing.T) {
	f := newFixture(t, fixedIntent(models.IntentProductDiscovery), fixedPlan(), Options{})

	resp := f.service.ProcessTurn(context.Background(), models.TurnRequest{SessionID: "s10", Message: "  "})
	assert.Equal(t, models.ErrorInvalidRequest, resp.Metadata["error_code"])

	resp = f.service.ProcessTurn(context.Background(), models.TurnRequest{Message: "hi", BusinessType: "casino"})
	assert.Equal(t, models.ErrorInvalidRequest, resp.Metadata["error_code"])
	assert.NotEmpty(t, resp.SessionID)
}

func TestSelectWithoutCandidatesFallsBack(t *testing.T) {
	f := newFixture(t, fixedIntent(models.IntentProductDiscovery), fixedPlan(), Options{})

	state := memory.NewConversationState("s11")
	next, tc := f.pipeline.transition(context.Background(), StageSelectAndRespond,
		TurnContext{SessionID: "s11", BusinessType: models.BusinessHotel, State: state})

	assert.Equal(t, StageDone, next)
	assert.Equal(t, FallbackMessage, tc.Response.Message)
	assert.Equal(t, config.BusinessFor(models.BusinessHotel).QuickReplies, tc.Response.QuickReplies)
	assert.Equal(t, 1, state.Len())
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "validate_route", StageValidateRoute.String())
	assert.Equal(t, "handle_error", StageHandleError.String())
	assert.Equal(t, "unknown", Stage(42).String())
}
