package pipeline

import (
	"context"
	"fmt"
	"maps"
	"runtime/debug"
	"strings"

	"github.com/avvvet/chatbuddy/internal/dispatch"
	"github.com/avvvet/chatbuddy/internal/memory"
	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service is the turn entry point shared by every transport.
type Service struct {
	pipeline        *Pipeline
	sessions        *memory.Manager
	defaultBusiness models.BusinessType
	logger          *zap.Logger
}

func NewService(pipeline *Pipeline, sessions *memory.Manager, defaultBusiness models.BusinessType, logger *zap.Logger) *Service {
	if !defaultBusiness.Valid() {
		defaultBusiness = models.BusinessGeneric
	}
	return &Service{
		pipeline:        pipeline,
		sessions:        sessions,
		defaultBusiness: defaultBusiness,
		logger:          logger,
	}
}

// ProcessTurn runs one turn and always returns a response. Turns of the
// same session are serialized; different sessions run concurrently.
func (s *Service) ProcessTurn(ctx context.Context, req models.TurnRequest) (resp *models.FinalResponse) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if strings.TrimSpace(req.Message) == "" {
		return ErrorResponse(req.SessionID, "message is required", models.ErrorInvalidRequest)
	}
	if req.BusinessType != "" && !req.BusinessType.Valid() {
		return ErrorResponse(req.SessionID, fmt.Sprintf("unknown business_type %q", req.BusinessType), models.ErrorInvalidRequest)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("turn panicked",
				zap.String("session_id", req.SessionID),
				zap.Any("panic", r))
			resp = ErrorResponse(req.SessionID, fmt.Sprintf("internal error: %v", r), models.ErrorInternal)
		}
	}()

	release, err := s.sessions.Acquire(ctx, req.SessionID)
	if err != nil {
		return ErrorResponse(req.SessionID, err.Error(), models.ErrorInternal)
	}
	defer release()

	state, err := s.sessions.Load(ctx, req.SessionID)
	if err != nil {
		s.logger.Error("failed to load session",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		return ErrorResponse(req.SessionID, err.Error(), models.ErrorInternal)
	}

	switch {
	case req.BusinessType != "":
		state.BusinessType = req.BusinessType
	case state.Len() == 0 || !state.BusinessType.Valid():
		state.BusinessType = s.defaultBusiness
	}
	if req.UserID != "" {
		state.UserID = req.UserID
	}
	maps.Copy(state.Context, req.Context)
	state.Append(models.RoleUser, req.Message, nil)

	tc := s.run(ctx, TurnContext{
		SessionID:    req.SessionID,
		Message:      req.Message,
		BusinessType: state.BusinessType,
		State:        state,
	})

	if err := s.sessions.Save(ctx, state); err != nil {
		// the turn already happened; the caller still gets its response
		s.logger.Error("failed to save session",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
	}

	s.logger.Info("turn processed",
		zap.String("session_id", req.SessionID),
		zap.String("intent", string(tc.Intent.Kind)),
		zap.Int("actions", len(tc.Actions)),
		zap.String("format", string(tc.Response.Format)))
	return tc.Response
}

// run drives the pipeline while the session lock is held. A panic becomes the
// error response and is recorded in the log like any handle_error reply.
func (s *Service) run(ctx context.Context, tc TurnContext) (out TurnContext) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("turn panicked",
				zap.String("session_id", tc.SessionID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			out = tc
			out.Response = ErrorResponse(tc.SessionID, fmt.Sprintf("internal error: %v", r), models.ErrorInternal)
			dispatch.AppendAssistant(out.State, out.Response)
		}
	}()
	return s.pipeline.Run(ctx, tc)
}

// History returns the message log of a session.
func (s *Service) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	return s.sessions.GetMessages(ctx, sessionID)
}

// ClearSession deletes a session's state.
func (s *Service) ClearSession(ctx context.Context, sessionID string) error {
	return s.sessions.ClearSession(ctx, sessionID)
}

func (s *Service) ActiveSessions() int {
	return s.sessions.GetActiveSessionCount()
}
